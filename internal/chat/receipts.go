package chat

import (
	"sync"
	"time"

	"github.com/psichat/client-go/pkg/debounce"
)

// ReceiptBatcher deduplicates and rate-limits read acknowledgements for
// counterpart messages: at most one receipt per message id, ever, with
// bursts of arrivals coalesced into a single batched send.
type ReceiptBatcher struct {
	send func(ids []int64)

	mu      sync.Mutex
	seen    map[int64]struct{}
	pending []int64
	deb     *debounce.Debouncer
}

func NewReceiptBatcher(delay time.Duration, send func(ids []int64)) *ReceiptBatcher {
	b := &ReceiptBatcher{
		send: send,
		seen: make(map[int64]struct{}),
	}
	b.deb = debounce.New(delay, b.flush)
	return b
}

// Observe records a counterpart message. The ledger is updated before the
// acknowledgement is scheduled, so a duplicate delivery racing a slow round
// trip still cannot produce a second receipt.
func (b *ReceiptBatcher) Observe(messageID int64) {
	b.mu.Lock()
	if _, dup := b.seen[messageID]; dup {
		b.mu.Unlock()
		return
	}
	b.seen[messageID] = struct{}{}
	b.pending = append(b.pending, messageID)
	b.mu.Unlock()

	b.deb.Trigger()
}

// Flush sends any pending acknowledgements immediately.
func (b *ReceiptBatcher) Flush() {
	b.deb.Stop()
	b.flush()
}

// Acknowledged reports whether a receipt for the id has been recorded.
func (b *ReceiptBatcher) Acknowledged(messageID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.seen[messageID]
	return ok
}

// Stop cancels any scheduled send without flushing.
func (b *ReceiptBatcher) Stop() {
	b.deb.Stop()
}

func (b *ReceiptBatcher) flush() {
	b.mu.Lock()
	ids := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(ids) > 0 {
		b.send(ids)
	}
}
