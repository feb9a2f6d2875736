package chat

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/psichat/client-go/internal/domain"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func optimisticAt(at time.Time, text string, ref string) domain.Message {
	return domain.Message{
		ID:        domain.NewOptimisticID(at),
		Sender:    domain.RoleUser,
		Text:      text,
		CreatedAt: at,
		ClientRef: ref,
	}
}

func TestReconcileReplacesOptimisticEcho(t *testing.T) {
	now := time.Now()
	tl := NewTimeline(5 * time.Second)
	tl.now = fixedClock(now)

	tl.Append(optimisticAt(now.Add(-time.Second), "hello", ""))

	res := tl.Reconcile(domain.Message{ID: 42, Sender: domain.RoleUser, Text: "hello"})
	require.Equal(t, Replaced, res)

	msgs := tl.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, int64(42), msgs[0].ID)
	require.False(t, msgs[0].Optimistic())
}

func TestReconcileAppendsCounterpartMessage(t *testing.T) {
	now := time.Now()
	tl := NewTimeline(5 * time.Second)
	tl.now = fixedClock(now)

	tl.Append(optimisticAt(now, "hello", ""))

	// Same text but different sender never matches.
	res := tl.Reconcile(domain.Message{ID: 43, Sender: domain.RoleTutor, Text: "hello"})
	require.Equal(t, Appended, res)
	require.Equal(t, 2, tl.Len())
}

func TestReconcileIgnoresEntriesPastWindow(t *testing.T) {
	now := time.Now()
	tl := NewTimeline(5 * time.Second)
	tl.now = fixedClock(now)

	tl.Append(optimisticAt(now.Add(-10*time.Second), "stale", ""))

	res := tl.Reconcile(domain.Message{ID: 44, Sender: domain.RoleUser, Text: "stale"})
	require.Equal(t, Appended, res)
	require.Equal(t, 2, tl.Len())
}

func TestReconcileClientRefMatchesExactly(t *testing.T) {
	now := time.Now()
	tl := NewTimeline(5 * time.Second)
	tl.now = fixedClock(now)

	tl.Append(optimisticAt(now.Add(-2*time.Second), "hi", "ref-a"))
	tl.Append(optimisticAt(now.Add(-time.Second), "hi", "ref-b"))

	res := tl.Reconcile(domain.Message{ID: 50, Sender: domain.RoleUser, Text: "hi", ClientRef: "ref-b"})
	require.Equal(t, Replaced, res)

	msgs := tl.Messages()
	require.Equal(t, "ref-a", msgs[0].ClientRef)
	require.Equal(t, int64(50), msgs[1].ID)
}

func TestReconcileRapidIdenticalMessagesPairFIFO(t *testing.T) {
	now := time.Now()
	tl := NewTimeline(5 * time.Second)
	tl.now = fixedClock(now)

	first := optimisticAt(now.Add(-2*time.Second), "ok", "")
	second := optimisticAt(now.Add(-time.Second), "ok", "")
	tl.Append(first)
	tl.Append(second)

	// Echoes arrive in send order; each consumes the oldest candidate.
	require.Equal(t, Replaced, tl.Reconcile(domain.Message{ID: 60, Sender: domain.RoleUser, Text: "ok"}))
	require.Equal(t, Replaced, tl.Reconcile(domain.Message{ID: 61, Sender: domain.RoleUser, Text: "ok"}))

	msgs := tl.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, int64(60), msgs[0].ID)
	require.Equal(t, int64(61), msgs[1].ID)
}

func TestReconcileNeverDropsAuthoritative(t *testing.T) {
	tl := NewTimeline(5 * time.Second)

	for i := 0; i < 5; i++ {
		res := tl.Reconcile(domain.Message{ID: int64(i + 1), Sender: domain.RoleTutor, Text: fmt.Sprintf("m%d", i)})
		require.Equal(t, Appended, res)
	}
	require.Equal(t, 5, tl.Len())
}

func TestMessagesReturnsCopy(t *testing.T) {
	tl := NewTimeline(5 * time.Second)
	tl.Append(domain.Message{ID: 1, Text: "a"})

	msgs := tl.Messages()
	msgs[0].Text = "mutated"
	require.Equal(t, "a", tl.Messages()[0].Text)
}
