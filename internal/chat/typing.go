package chat

import (
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/psichat/client-go/pkg/debounce"
)

// TypingController debounces local keystrokes into start/stop typing signals
// and folds remote signals into the set of currently-typing identities.
//
// Local side: the first keystroke sends typing=true; further keystrokes
// refresh it at most once per second so bursts never flood the wire. Once
// input goes quiet for the idle window, exactly one typing=false goes out.
//
// Remote side: the protocol sends an explicit typing=false, but a defensive
// expiry clears membership anyway when no refresh arrives, so a dropped
// stop signal cannot leave a ghost typist on screen.
type TypingController struct {
	send func(active bool)

	mu      sync.Mutex
	active  bool
	limiter *rate.Limiter
	idle    *debounce.Debouncer

	expiry time.Duration
	remote map[int64]*time.Timer
	typing map[int64]struct{}
}

func NewTypingController(idleWindow, remoteExpiry time.Duration, send func(active bool)) *TypingController {
	c := &TypingController{
		send:    send,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		expiry:  remoteExpiry,
		remote:  make(map[int64]*time.Timer),
		typing:  make(map[int64]struct{}),
	}
	c.idle = debounce.New(idleWindow, c.idleFired)
	return c
}

// InputActivity records a local keystroke.
func (c *TypingController) InputActivity() {
	c.mu.Lock()
	wasActive := c.active
	c.active = true
	// The start signal always goes out; refreshes consume limiter tokens so
	// a burst of keystrokes cannot flood the wire.
	refresh := c.limiter.Allow() || !wasActive
	c.mu.Unlock()

	if refresh {
		c.send(true)
	}
	c.idle.Trigger()
}

// StopTyping sends the stop signal immediately, e.g. when the message is
// sent or the input is cleared. It is a no-op when not typing.
func (c *TypingController) StopTyping() {
	c.idle.Stop()

	c.mu.Lock()
	wasActive := c.active
	c.active = false
	c.mu.Unlock()

	if wasActive {
		c.send(false)
	}
}

func (c *TypingController) idleFired() {
	c.mu.Lock()
	wasActive := c.active
	c.active = false
	c.mu.Unlock()

	if wasActive {
		c.send(false)
	}
}

// HandleRemote folds an incoming typing signal into the typing set.
func (c *TypingController) HandleRemote(userID int64, isTyping bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if timer, ok := c.remote[userID]; ok {
		timer.Stop()
		delete(c.remote, userID)
	}

	if !isTyping {
		delete(c.typing, userID)
		return
	}

	c.typing[userID] = struct{}{}
	c.remote[userID] = time.AfterFunc(c.expiry, func() {
		c.expireRemote(userID)
	})
}

func (c *TypingController) expireRemote(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.typing, userID)
	delete(c.remote, userID)
}

// Typing returns the identities currently signaling typing, sorted.
func (c *TypingController) Typing() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]int64, 0, len(c.typing))
	for id := range c.typing {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Stop cancels all pending timers.
func (c *TypingController) Stop() {
	c.idle.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, timer := range c.remote {
		timer.Stop()
		delete(c.remote, id)
	}
	c.active = false
}
