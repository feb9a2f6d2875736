package chat

import (
	"sync"
	"time"

	"github.com/psichat/client-go/internal/domain"
)

// ReconcileResult says what Reconcile did with an authoritative message.
type ReconcileResult int

const (
	// Replaced: an optimistic counterpart was found and swapped in place.
	Replaced ReconcileResult = iota
	// Appended: no counterpart existed, the message went to the end.
	Appended
)

// Timeline is the visible message sequence of one conversation. The sender's
// own UI appends optimistic entries immediately; when the server echoes the
// authoritative copy, Reconcile folds the two into exactly one entry holding
// the authoritative id.
type Timeline struct {
	mu     sync.RWMutex
	msgs   []domain.Message
	window time.Duration
	now    func() time.Time
}

func NewTimeline(window time.Duration) *Timeline {
	return &Timeline{window: window, now: time.Now}
}

// Append adds a message without reconciliation, e.g. history loaded over the
// request/response API.
func (t *Timeline) Append(msg domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.msgs = append(t.msgs, msg)
}

// Reconcile merges an authoritative message into the sequence.
//
// A correlation ref matches exactly when the server echoes it. Otherwise the
// heuristic applies: walk backward over entries still inside the
// reconciliation window looking for an optimistic entry with the same sender
// role and identical text. Candidates are consumed oldest-first, so two
// rapid identical messages resolve in send order instead of folding into
// one. No match means append; an authoritative message is never dropped.
func (t *Timeline) Reconcile(auth domain.Message) ReconcileResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	if idx := t.match(auth); idx >= 0 {
		t.msgs[idx] = auth
		return Replaced
	}
	t.msgs = append(t.msgs, auth)
	return Appended
}

// match returns the index of the optimistic counterpart, or -1. The backward
// scan stops at the first entry older than the window, bounding work to the
// recent tail rather than the whole sequence.
func (t *Timeline) match(auth domain.Message) int {
	now := t.now()
	heuristic := -1
	for i := len(t.msgs) - 1; i >= 0; i-- {
		m := t.msgs[i]
		if !m.Optimistic() {
			continue
		}
		if now.Sub(m.OptimisticTime()) > t.window {
			break
		}
		if auth.ClientRef != "" && m.ClientRef == auth.ClientRef {
			return i
		}
		if m.Sender == auth.Sender && m.Text == auth.Text {
			// Keep walking: going backward, the last hit is the oldest
			// candidate, preserving FIFO pairing.
			heuristic = i
		}
	}
	return heuristic
}

// Messages returns a copy of the visible sequence.
func (t *Timeline) Messages() []domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]domain.Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}

// Len returns the number of visible entries.
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.msgs)
}
