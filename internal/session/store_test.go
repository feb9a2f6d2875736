package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/psichat/client-go/internal/identity"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, Table, *Bus) {
	t.Helper()
	table := NewMemoryTable()
	bus := NewBus()
	t.Cleanup(func() { bus.Close() })

	store := New(identity.NewProvider(), table, bus, opts...)
	t.Cleanup(store.Teardown)
	return store, table, bus
}

func TestRestoreWithoutEntryLeavesUnauthenticated(t *testing.T) {
	store, _, _ := newTestStore(t)

	require.NoError(t, store.Restore(context.Background()))
	require.Nil(t, store.Current())
	require.Empty(t, store.Token())
}

func TestWriteThenRestore(t *testing.T) {
	ctx := context.Background()
	store, table, _ := newTestStore(t)

	rec := testRecord(1)
	require.NoError(t, store.Write(ctx, &rec))
	require.Equal(t, "token", store.Token())

	// A fresh store adopting the same tab identity restores the entry.
	other := New(identity.NewProvider(), table, NewBus())
	require.NoError(t, other.SwitchActive(ctx, store.TabID()))
	require.NotNil(t, other.Current())
	require.EqualValues(t, 1, other.Current().User.ID)
}

func TestWritePublishesLoginThenUpdate(t *testing.T) {
	ctx := context.Background()
	store, _, bus := newTestStore(t)

	ch, cancel := bus.Subscribe()
	defer cancel()

	rec := testRecord(1)
	require.NoError(t, store.Write(ctx, &rec))
	ev := <-ch
	require.Equal(t, ActionLogin, ev.Action)
	require.Equal(t, store.TabID(), ev.Tab)
	require.Equal(t, store.TabID(), ev.Origin)

	rec.User.Name = "Ana Maria"
	require.NoError(t, store.Write(ctx, &rec))
	require.Equal(t, ActionUpdate, (<-ch).Action)
}

func TestLogoutDeletesOnlyOwnEntry(t *testing.T) {
	ctx := context.Background()
	table := NewMemoryTable()
	bus := NewBus()
	defer bus.Close()

	recA := testRecord(1)
	recB := testRecord(2)

	storeA := New(identity.NewProvider(), table, bus)
	storeB := New(identity.NewProvider(), table, bus)
	require.NoError(t, storeA.Write(ctx, &recA))
	require.NoError(t, storeB.Write(ctx, &recB))

	ch, cancel := bus.Subscribe()
	defer cancel()

	require.NoError(t, storeA.Write(ctx, nil))
	require.Equal(t, ActionLogout, (<-ch).Action)
	require.Nil(t, storeA.Current())

	// Store B's credential is untouched.
	require.NotNil(t, storeB.Current())
	all, err := table.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestSwitchActiveUnknownTab(t *testing.T) {
	store, _, _ := newTestStore(t)
	err := store.SwitchActive(context.Background(), "tab_missing")
	require.ErrorIs(t, err, ErrNoSession)
}

func TestCurrentReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)

	rec := testRecord(1)
	require.NoError(t, store.Write(ctx, &rec))

	got := store.Current()
	got.User.Name = "mutated"
	require.Equal(t, "Ana", store.Current().User.Name)
}

func TestLivenessRejectionForcesLogout(t *testing.T) {
	ctx := context.Background()

	var loggedOut atomic.Bool
	store, table, bus := newTestStore(t, WithForcedLogoutHandler(func(reason string) {
		loggedOut.Store(true)
	}))

	rec := testRecord(1)
	require.NoError(t, store.Write(ctx, &rec))

	ch, cancel := bus.Subscribe()
	defer cancel()

	store.StartLiveness(ctx, time.Hour, func(ctx context.Context, token string) error {
		return fmt.Errorf("probe: %w", ErrCredentialRejected)
	})

	require.Eventually(t, loggedOut.Load, time.Second, 5*time.Millisecond)
	require.Nil(t, store.Current())

	entry, err := table.Get(ctx, store.TabID())
	require.NoError(t, err)
	require.Nil(t, entry)

	require.Equal(t, ActionExpired, (<-ch).Action)
}

func TestLivenessTransientErrorKeepsSession(t *testing.T) {
	ctx := context.Background()

	store, _, _ := newTestStore(t, WithForcedLogoutHandler(func(string) {
		t.Error("transient probe failure must not force logout")
	}))

	rec := testRecord(1)
	require.NoError(t, store.Write(ctx, &rec))

	var probed atomic.Bool
	store.StartLiveness(ctx, time.Hour, func(ctx context.Context, token string) error {
		probed.Store(true)
		return errors.New("connection refused")
	})

	require.Eventually(t, probed.Load, time.Second, 5*time.Millisecond)
	require.NotNil(t, store.Current())
}

func TestLivenessSkipsWhenUnauthenticated(t *testing.T) {
	store, _, _ := newTestStore(t)

	store.StartLiveness(context.Background(), 10*time.Millisecond, func(ctx context.Context, token string) error {
		t.Error("probe must not run without a credential")
		return nil
	})
	time.Sleep(50 * time.Millisecond)
}
