// Package session keeps several independently-authenticated client
// instances ("tabs") consistent through a shared persistent table. Each
// instance owns exactly one entry, keyed by its tab identity; sibling
// instances learn about changes through the cross-tab notifier instead of
// polling.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/psichat/client-go/internal/domain"
	"github.com/psichat/client-go/internal/identity"
	"github.com/psichat/client-go/pkg/log"
)

var (
	// ErrNoSession is returned when an operation needs a session entry that
	// does not exist.
	ErrNoSession = errors.New("no session for tab")

	// ErrCredentialRejected marks a liveness probe failure that means the
	// stored credential is expired or invalid, as opposed to a transient
	// network error.
	ErrCredentialRejected = errors.New("credential rejected")
)

// ProbeFunc asks the backend whether a credential is still valid ("who am
// I"). It returns nil for a live credential, ErrCredentialRejected (possibly
// wrapped) for a rejected one, and any other error for transient failures.
type ProbeFunc func(ctx context.Context, token string) error

// Store is the per-tab façade over the shared session table. It reads and
// writes only the entry for its own tab identity and republishes state when
// a foreign entry changes.
type Store struct {
	ids      *identity.Provider
	table    Table
	notifier Notifier
	logger   zerolog.Logger

	mu      sync.RWMutex
	current *domain.SessionRecord

	onForcedLogout func(reason string)

	livenessMu     sync.Mutex
	livenessCancel context.CancelFunc
}

// Option configures a Store.
type Option func(*Store)

// WithForcedLogoutHandler installs the callback invoked when the liveness
// check rejects the stored credential. This is the only externally-triggered
// forced logout path.
func WithForcedLogoutHandler(fn func(reason string)) Option {
	return func(s *Store) { s.onForcedLogout = fn }
}

// WithLogger overrides the store's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

func New(ids *identity.Provider, table Table, notifier Notifier, opts ...Option) *Store {
	s := &Store{
		ids:      ids,
		table:    table,
		notifier: notifier,
		logger:   log.L(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore loads this tab's entry into memory. An absent or malformed entry
// leaves the store unauthenticated; it is not an error.
func (s *Store) Restore(ctx context.Context) error {
	tab := s.ids.Current()
	rec, err := s.table.Get(ctx, tab)
	if err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}

	s.mu.Lock()
	s.current = rec
	s.mu.Unlock()

	if rec != nil {
		s.logger.Info().Str(log.FieldTabID, string(tab)).Int64(log.FieldUserID, rec.User.ID).Msg("session restored")
	}
	return nil
}

// Write upserts this tab's entry, or deletes it when rec is nil (logout).
// Every mutation is published so sibling tabs refresh their listings; their
// own credentials are untouched.
func (s *Store) Write(ctx context.Context, rec *domain.SessionRecord) error {
	tab := s.ids.Current()

	action := ActionLogin
	s.mu.Lock()
	if s.current != nil && rec != nil {
		action = ActionUpdate
	}
	s.mu.Unlock()

	if rec == nil {
		if err := s.table.Delete(ctx, tab); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		action = ActionLogout
	} else {
		if err := s.table.Put(ctx, tab, *rec); err != nil {
			return fmt.Errorf("failed to write session: %w", err)
		}
	}

	s.mu.Lock()
	s.current = rec
	s.mu.Unlock()

	s.publish(ctx, Event{Action: action, Tab: tab, Origin: tab})
	return nil
}

// Read is a pure lookup of any tab's entry.
func (s *Store) Read(ctx context.Context, tab identity.TabID) (*domain.SessionRecord, error) {
	return s.table.Get(ctx, tab)
}

// Sessions returns every entry in the shared table, for session-listing UI.
func (s *Store) Sessions(ctx context.Context) (map[identity.TabID]domain.SessionRecord, error) {
	return s.table.All(ctx)
}

// SwitchActive adopts another tab's entry as this instance's active session.
// Only the identity binding of this instance changes; no table entry is
// touched.
func (s *Store) SwitchActive(ctx context.Context, tab identity.TabID) error {
	rec, err := s.table.Get(ctx, tab)
	if err != nil {
		return fmt.Errorf("failed to read session: %w", err)
	}
	if rec == nil {
		return ErrNoSession
	}

	s.ids.Adopt(tab)
	s.mu.Lock()
	s.current = rec
	s.mu.Unlock()

	s.logger.Info().Str(log.FieldTabID, string(tab)).Int64(log.FieldUserID, rec.User.ID).Msg("switched active session")
	return nil
}

// Current returns a copy of this tab's in-memory session, or nil when
// unauthenticated.
func (s *Store) Current() *domain.SessionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return nil
	}
	rec := *s.current
	return &rec
}

// Token returns the active credential, or empty when unauthenticated.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return ""
	}
	return s.current.Token
}

// TabID returns this instance's tab identity.
func (s *Store) TabID() identity.TabID {
	return s.ids.Current()
}

// Events exposes the notifier stream, letting presentation code refresh
// session listings when any tab's entry changes.
func (s *Store) Events() (<-chan Event, func()) {
	return s.notifier.Subscribe()
}

// StartLiveness runs a periodic "who am I" probe of the stored credential.
// A rejection deletes this tab's entry, publishes an expiry event and
// invokes the forced-logout handler. Transient probe errors are only logged.
func (s *Store) StartLiveness(ctx context.Context, interval time.Duration, probe ProbeFunc) {
	s.livenessMu.Lock()
	defer s.livenessMu.Unlock()

	if s.livenessCancel != nil {
		s.livenessCancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	s.livenessCancel = cancel

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		s.checkLiveness(ctx, probe)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.checkLiveness(ctx, probe)
			}
		}
	}()
}

// Teardown stops the liveness check. Table and notifier lifecycles belong to
// the caller that constructed them.
func (s *Store) Teardown() {
	s.livenessMu.Lock()
	defer s.livenessMu.Unlock()

	if s.livenessCancel != nil {
		s.livenessCancel()
		s.livenessCancel = nil
	}
}

func (s *Store) checkLiveness(ctx context.Context, probe ProbeFunc) {
	token := s.Token()
	if token == "" {
		return
	}

	err := probe(ctx, token)
	switch {
	case err == nil:
		return
	case errors.Is(err, ErrCredentialRejected):
		tab := s.ids.Current()
		s.logger.Warn().Str(log.FieldTabID, string(tab)).Msg("session expired, logging out")

		if derr := s.table.Delete(ctx, tab); derr != nil {
			s.logger.Error().Err(derr).Msg("failed to delete expired session")
		}
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()

		s.publish(ctx, Event{Action: ActionExpired, Tab: tab, Origin: tab})
		if s.onForcedLogout != nil {
			s.onForcedLogout("session expired")
		}
	default:
		// Network trouble is not a verdict on the credential.
		s.logger.Debug().Err(err).Msg("liveness check failed")
	}
}

func (s *Store) publish(ctx context.Context, ev Event) {
	if err := s.notifier.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish session event")
	}
}
