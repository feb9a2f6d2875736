package session

import (
	"context"

	"github.com/psichat/client-go/internal/domain"
	"github.com/psichat/client-go/internal/identity"
)

// Table is the shared session table: a persistent map from tab identity to
// session record, visible to every client instance on the same origin.
//
// Writers follow a single-ownership discipline: each instance mutates only
// the entry for its own tab identity, so concurrent writes to the same key
// never occur by construction. Implementations resolve whole-table races as
// last-write-wins per key.
type Table interface {
	// Get returns the record for a tab, or nil if absent.
	Get(ctx context.Context, tab identity.TabID) (*domain.SessionRecord, error)
	// Put upserts the record for a tab.
	Put(ctx context.Context, tab identity.TabID, rec domain.SessionRecord) error
	// Delete removes the entry for a tab. Deleting an absent entry is a no-op.
	Delete(ctx context.Context, tab identity.TabID) error
	// All returns a snapshot of every entry, for session-listing views.
	All(ctx context.Context) (map[identity.TabID]domain.SessionRecord, error)
	Close() error
}
