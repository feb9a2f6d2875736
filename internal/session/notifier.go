package session

import (
	"context"
	"sync"

	"github.com/psichat/client-go/internal/identity"
)

// Action describes what happened to a session table entry.
type Action string

const (
	ActionLogin    Action = "login"
	ActionLogout   Action = "logout"
	ActionUpdate   Action = "update"
	ActionExpired  Action = "expired"
	ActionExternal Action = "external" // another process touched the table
)

// Event is a cross-tab notification that an entry changed. Origin carries
// the publishing tab identity so subscribers can skip their own writes.
type Event struct {
	Action Action         `json:"action"`
	Tab    identity.TabID `json:"tab_id"`
	Origin identity.TabID `json:"origin,omitempty"`
}

// Notifier tells every open instance that a session entry changed, without
// polling. Subscribe returns a cancel func; cancelling closes the channel.
type Notifier interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe() (<-chan Event, func())
	Close() error
}

// Bus is the in-process Notifier: a fan-out of buffered channels. It also
// serves as the delivery stage for the file and Redis notifiers.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

func (b *Bus) Publish(_ context.Context, ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber not keeping up, drop rather than block.
		}
	}
	return nil
}

func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, 16)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	return nil
}

var _ Notifier = (*Bus)(nil)
