package domain

import "time"

// Role identifies who authored a message on the wire.
type Role string

const (
	RoleUser  Role = "user"
	RoleTutor Role = "tutor"
)

// optimisticIDFloor separates server-minted ids from client-minted ones.
// Client ids are unix-millisecond timestamps, which are far above any id the
// backend hands out.
const optimisticIDFloor = 1_000_000_000_000

// Message is one entry in the visible conversation sequence.
//
// Two provenance forms exist transiently: an optimistic message is appended
// by the sender's own client before the server confirms it, carrying a
// client-minted timestamp id; the authoritative copy arrives over the wire
// with the durable server id. Reconciliation folds the two into one entry.
type Message struct {
	ID        int64          `json:"id"`
	SessionID int64          `json:"session_id"`
	UserID    int64          `json:"user_id"`
	Sender    Role           `json:"sender"`
	Text      string         `json:"text"`
	CreatedAt time.Time      `json:"created_at"`
	Analysis  map[string]any `json:"analysis,omitempty"`

	// ClientRef correlates an authoritative echo with its optimistic
	// counterpart exactly. Empty when the server does not echo it back, in
	// which case reconciliation falls back to a heuristic match.
	ClientRef string `json:"client_ref,omitempty"`
}

// Optimistic reports whether the message still carries a client-minted id.
func (m Message) Optimistic() bool {
	return m.ID >= optimisticIDFloor
}

// OptimisticTime returns the mint time encoded in a client-minted id.
func (m Message) OptimisticTime() time.Time {
	return time.UnixMilli(m.ID)
}

// NewOptimisticID mints a client-side message id from the current time.
func NewOptimisticID(now time.Time) int64 {
	return now.UnixMilli()
}
