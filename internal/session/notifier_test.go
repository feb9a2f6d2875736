package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/psichat/client-go/internal/domain"
)

func TestBusFansOutToAllSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	chA, cancelA := bus.Subscribe()
	chB, cancelB := bus.Subscribe()
	defer cancelA()
	defer cancelB()

	ev := Event{Action: ActionLogin, Tab: "tab_1", Origin: "tab_1"}
	require.NoError(t, bus.Publish(context.Background(), ev))

	require.Equal(t, ev, <-chA)
	require.Equal(t, ev, <-chB)
}

func TestBusCancelClosesChannel(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	cancel()

	_, open := <-ch
	require.False(t, open)

	// Cancelled subscribers no longer receive.
	require.NoError(t, bus.Publish(context.Background(), Event{Action: ActionLogout}))

	// Cancelling twice is harmless.
	cancel()
}

func TestBusDropsWhenSubscriberLags(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	defer cancel()

	// Overflow the subscriber buffer; Publish must never block.
	for i := 0; i < 100; i++ {
		require.NoError(t, bus.Publish(context.Background(), Event{Action: ActionUpdate}))
	}
	require.Equal(t, cap(ch), len(ch))
}

func TestFileNotifierSeesForeignWrites(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.json")

	notifier, err := NewFileNotifier(path)
	require.NoError(t, err)
	defer notifier.Close()

	ch, cancel := notifier.Subscribe()
	defer cancel()

	// Another process replaces the table file atomically.
	table, err := NewFileTable(path)
	require.NoError(t, err)
	require.NoError(t, table.Put(ctx, "tab_other", domain.SessionRecord{Token: "t"}))

	select {
	case ev := <-ch:
		require.Equal(t, ActionExternal, ev.Action)
	case <-time.After(2 * time.Second):
		t.Fatal("no event for foreign table write")
	}
}

func TestFileNotifierIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.json")

	notifier, err := NewFileNotifier(path)
	require.NoError(t, err)
	defer notifier.Close()

	ch, cancel := notifier.Subscribe()
	defer cancel()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644))

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %+v for unrelated file", ev)
	case <-time.After(200 * time.Millisecond):
	}
}
