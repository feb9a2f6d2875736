// Package realtime owns the long-lived bidirectional connection of a client
// instance: at most one logical connection at a time, an authenticated
// handshake, reconnection with a capped backoff, and a subscriber registry
// dispatching inbound messages by type.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/psichat/client-go/internal/config"
	"github.com/psichat/client-go/internal/domain"
	"github.com/psichat/client-go/pkg/log"
)

// ErrUnauthenticated is returned by Connect when no credential is supplied.
var ErrUnauthenticated = errors.New("missing credential")

// Scope identifies which conversation a connection serves. A zero SessionID
// means the user's personal channel; otherwise a specific counseling
// session.
type Scope struct {
	UserID    int64
	SessionID int64
}

func (s Scope) String() string {
	if s.SessionID != 0 {
		return fmt.Sprintf("session/%d", s.SessionID)
	}
	return fmt.Sprintf("user/%d", s.UserID)
}

// HandlerFunc receives the raw payload of an inbound message.
type HandlerFunc func(payload []byte)

// Subscription is the handle returned by On. Cancelling it exactly once is
// the caller's responsibility; cancelling twice is harmless.
type Subscription struct {
	m       *Manager
	msgType string
	once    sync.Once
}

// Cancel removes the handler from the registry.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.m.remove(s)
	})
}

// Manager owns the realtime connection of one client instance.
//
// Connect and Send are fire-and-forget; results surface later through the
// subscriber registry. Lifecycle events ("connected", "disconnected") are
// dispatched like any other inbound type, on every transition, including
// those triggered internally by reconnection.
type Manager struct {
	dialer Dialer
	cfg    config.RealtimeConfig
	logger zerolog.Logger

	mu       sync.Mutex
	status   domain.ConnectionStatus
	scope    Scope
	token    string
	conn     Conn
	sendCh   chan []byte
	gen      int
	attempts int
	retry    *time.Timer
	stopped  bool

	subMu sync.RWMutex
	subs  map[string]map[*Subscription]HandlerFunc
}

func NewManager(dialer Dialer, cfg config.RealtimeConfig) *Manager {
	return &Manager{
		dialer:  dialer,
		cfg:     cfg,
		logger:  log.L(),
		status:  domain.StatusDisconnected,
		stopped: true,
		subs:    make(map[string]map[*Subscription]HandlerFunc),
	}
}

// Status returns the current lifecycle state.
func (m *Manager) Status() domain.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// On registers a handler for a named inbound message type. Multiple handlers
// per type are supported; each registration gets its own handle, so
// re-render-triggered re-subscription never double-invokes anything the
// caller did not register twice.
func (m *Manager) On(msgType string, fn HandlerFunc) *Subscription {
	sub := &Subscription{m: m, msgType: msgType}

	m.subMu.Lock()
	defer m.subMu.Unlock()
	if m.subs[msgType] == nil {
		m.subs[msgType] = make(map[*Subscription]HandlerFunc)
	}
	m.subs[msgType][sub] = fn
	return sub
}

func (m *Manager) remove(sub *Subscription) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	if handlers, ok := m.subs[sub.msgType]; ok {
		delete(handlers, sub)
		if len(handlers) == 0 {
			delete(m.subs, sub.msgType)
		}
	}
}

// Connect opens the connection for the given scope, authenticated by token.
// It rejects immediately when the credential is absent. Connecting while
// already connected to the same scope is a no-op; a different scope tears
// the old connection down first. Dialing happens in the background; watch
// the "connected"/"disconnected" events for the outcome.
func (m *Manager) Connect(token string, scope Scope) error {
	if token == "" {
		return ErrUnauthenticated
	}

	m.mu.Lock()
	if !m.stopped && m.scope == scope && m.status != domain.StatusDisconnected {
		m.mu.Unlock()
		return nil
	}

	// A live connection for another scope dies here.
	m.teardownLocked()

	m.stopped = false
	m.token = token
	m.scope = scope
	m.attempts = 0
	m.gen++
	gen := m.gen
	m.status = domain.StatusConnecting
	m.mu.Unlock()

	go m.dial(gen)
	return nil
}

// Send enqueues a payload onto the active connection. When not connected the
// payload is logged and dropped; there is no implicit queueing, so message
// ordering stays trivial and the UI layer owns optimistic consistency.
func (m *Manager) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal outbound message: %w", err)
	}

	m.mu.Lock()
	ch := m.sendCh
	connected := m.status == domain.StatusConnected
	m.mu.Unlock()

	if !connected || ch == nil {
		m.logger.Debug().Str(log.FieldStatus, m.Status().String()).Msg("not connected, dropping outbound message")
		return nil
	}

	select {
	case ch <- data:
	default:
		m.logger.Warn().Msg("send buffer full, dropping outbound message")
	}
	return nil
}

// Disconnect closes the connection for good: the pending retry timer is
// cancelled synchronously and the subscriber registry is cleared, so no
// handler can fire against a logically-dead connection.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	wasDisconnected := m.status == domain.StatusDisconnected && m.stopped
	m.stopped = true
	m.teardownLocked()
	m.mu.Unlock()

	if !wasDisconnected {
		m.emitLifecycle(domain.EventDisconnected, "client disconnect")
	}

	m.subMu.Lock()
	m.subs = make(map[string]map[*Subscription]HandlerFunc)
	m.subMu.Unlock()
}

// teardownLocked invalidates pumps, stops the retry timer and closes the
// physical connection. Callers hold m.mu.
func (m *Manager) teardownLocked() {
	m.gen++
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	if m.conn != nil {
		m.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		m.conn.Close()
		m.conn = nil
	}
	m.sendCh = nil
	m.status = domain.StatusDisconnected
}

func (m *Manager) dial(gen int) {
	m.mu.Lock()
	if gen != m.gen || m.stopped {
		m.mu.Unlock()
		return
	}
	wsURL := m.buildURL()
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DialTimeout)
	defer cancel()

	conn, err := m.dialer.Dial(ctx, wsURL)

	m.mu.Lock()
	if gen != m.gen || m.stopped {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		m.status = domain.StatusDisconnected
		m.scheduleRetryLocked()
		attempt := m.attempts
		scope := m.scope
		m.mu.Unlock()

		m.logger.Warn().Err(err).Int(log.FieldAttempt, attempt).Str(log.FieldScope, scope.String()).Msg("dial failed")
		m.emitLifecycle(domain.EventDisconnected, err.Error())
		return
	}

	m.conn = conn
	m.sendCh = make(chan []byte, 256)
	m.status = domain.StatusConnected
	m.attempts = 0
	sendCh := m.sendCh
	scope := m.scope
	m.mu.Unlock()

	m.logger.Info().Str(log.FieldScope, scope.String()).Msg("connected")
	go m.readPump(gen, conn)
	go m.writePump(gen, conn, sendCh)
	m.emitLifecycle(domain.EventConnected, "")
}

func (m *Manager) buildURL() string {
	base := m.cfg.URL
	if m.scope.SessionID != 0 {
		return fmt.Sprintf("%s/ws/tutor-chat/%d?token=%s", base, m.scope.SessionID, url.QueryEscape(m.token))
	}
	return fmt.Sprintf("%s/ws/%d?token=%s", base, m.scope.UserID, url.QueryEscape(m.token))
}

func (m *Manager) readPump(gen int, conn Conn) {
	conn.SetReadLimit(m.cfg.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(m.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(m.cfg.PongWait))
		return nil
	})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			m.handleClosed(gen, err)
			return
		}
		m.dispatch(payload)
	}
}

func (m *Manager) writePump(gen int, conn Conn, sendCh <-chan []byte) {
	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-sendCh:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				m.handleClosed(gen, err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				m.handleClosed(gen, err)
				return
			}
		}
	}
}

// dispatch delivers an inbound message to the handlers registered for its
// type, in wire-arrival order.
func (m *Manager) dispatch(payload []byte) {
	var base domain.BaseMessage
	if err := json.Unmarshal(payload, &base); err != nil || base.Type == "" {
		m.logger.Debug().Msg("dropping untyped inbound message")
		return
	}
	m.emit(base.Type, payload)
}

func (m *Manager) emit(msgType string, payload []byte) {
	m.subMu.RLock()
	handlers := make([]HandlerFunc, 0, len(m.subs[msgType]))
	for _, fn := range m.subs[msgType] {
		handlers = append(handlers, fn)
	}
	m.subMu.RUnlock()

	for _, fn := range handlers {
		fn(payload)
	}
}

func (m *Manager) emitLifecycle(event, reason string) {
	payload, _ := json.Marshal(struct {
		Type   string `json:"type"`
		Reason string `json:"reason,omitempty"`
	}{Type: event, Reason: reason})
	m.emit(event, payload)
}

// handleClosed reacts to an unexpected close of the physical connection.
// Stale generations are ignored so a connection replaced by Connect or
// Disconnect cannot trigger a spurious reconnect.
func (m *Manager) handleClosed(gen int, err error) {
	m.mu.Lock()
	if gen != m.gen || m.stopped {
		m.mu.Unlock()
		return
	}
	// Both pumps report the same close; the generation bump makes the
	// second report stale.
	m.gen++

	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.sendCh = nil
	m.status = domain.StatusDisconnected
	m.scheduleRetryLocked()
	attempt := m.attempts
	scope := m.scope
	m.mu.Unlock()

	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
		m.logger.Warn().Err(err).Str(log.FieldScope, scope.String()).Msg("connection lost")
	}
	m.logger.Info().Int(log.FieldAttempt, attempt).Str(log.FieldScope, scope.String()).Msg("reconnect scheduled")
	m.emitLifecycle(domain.EventDisconnected, err.Error())
}

// scheduleRetryLocked arms the reconnect timer: delay grows with each
// attempt up to the configured cap, and retries continue until Disconnect
// is called or a dial succeeds. Callers hold m.mu.
func (m *Manager) scheduleRetryLocked() {
	m.attempts++
	delay := time.Duration(m.attempts) * m.cfg.RetryBase
	if delay > m.cfg.RetryCap {
		delay = m.cfg.RetryCap
	}

	if m.retry != nil {
		m.retry.Stop()
	}
	m.retry = time.AfterFunc(delay, m.redial)
}

func (m *Manager) redial() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.gen++
	gen := m.gen
	m.status = domain.StatusConnecting
	m.mu.Unlock()

	m.dial(gen)
}
