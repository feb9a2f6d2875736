// Package chat reconciles the live message sequence of one conversation:
// optimistic sends against authoritative echoes, remote typing signals into
// a typing set, and inbound counterpart messages into batched read receipts.
// Presentation code sees plain data and a Send function; nothing about wire
// framing leaks upward.
package chat

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/psichat/client-go/internal/config"
	"github.com/psichat/client-go/internal/domain"
	"github.com/psichat/client-go/internal/realtime"
	"github.com/psichat/client-go/pkg/log"
)

// Client wires the connection manager to the reconciliation machinery for
// one conversation scope.
type Client struct {
	mgr      *realtime.Manager
	self     domain.User
	scope    realtime.Scope
	timeline *Timeline
	typing   *TypingController
	receipts *ReceiptBatcher
	logger   zerolog.Logger

	onMessage func(domain.Message)
	onAlert   func(domain.AlertNotification)
	subs      []*realtime.Subscription
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// OnMessage installs a callback fired for every message that lands in the
// timeline, optimistic and authoritative alike.
func OnMessage(fn func(domain.Message)) ClientOption {
	return func(c *Client) { c.onMessage = fn }
}

// OnAlert installs a callback for out-of-band alert notifications.
func OnAlert(fn func(domain.AlertNotification)) ClientOption {
	return func(c *Client) { c.onAlert = fn }
}

func NewClient(mgr *realtime.Manager, self domain.User, scope realtime.Scope, cfg config.ChatConfig, opts ...ClientOption) *Client {
	c := &Client{
		mgr:      mgr,
		self:     self,
		scope:    scope,
		timeline: NewTimeline(cfg.ReconcileWindow),
		logger:   log.L(),
	}
	c.typing = NewTypingController(cfg.TypingIdle, cfg.TypingExpiry, c.sendTyping)
	c.receipts = NewReceiptBatcher(cfg.ReceiptDelay, c.sendReceipts)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start subscribes to the conversation's inbound types and opens the
// connection. The subscriptions live until Close.
func (c *Client) Start(token string) error {
	c.subs = append(c.subs,
		c.mgr.On(domain.MsgTypeChatMessage, c.handleChatMessage),
		c.mgr.On(domain.MsgTypeTyping, c.handleTyping),
		c.mgr.On(domain.MsgTypeAlert, c.handleAlert),
	)
	return c.mgr.Connect(token, c.scope)
}

// Send appends an optimistic entry and puts the message on the wire. The
// authoritative echo replaces the optimistic entry on arrival.
func (c *Client) Send(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	now := time.Now()
	msg := domain.Message{
		ID:        domain.NewOptimisticID(now),
		SessionID: c.scope.SessionID,
		UserID:    c.self.ID,
		Sender:    c.self.SenderRole(),
		Text:      text,
		CreatedAt: now,
		ClientRef: uuid.NewString(),
	}
	c.timeline.Append(msg)
	c.notify(msg)
	c.typing.StopTyping()

	return c.mgr.Send(domain.ChatMessageOut{
		Type:      domain.MsgTypeChatMessage,
		SessionID: c.scope.SessionID,
		Text:      text,
		Sender:    msg.Sender,
		ClientRef: msg.ClientRef,
	})
}

// InputActivity records a local keystroke for typing indication.
func (c *Client) InputActivity() {
	c.typing.InputActivity()
}

// Messages returns the visible message sequence.
func (c *Client) Messages() []domain.Message {
	return c.timeline.Messages()
}

// TypingUsers returns the identities currently typing.
func (c *Client) TypingUsers() []int64 {
	return c.typing.Typing()
}

// Status returns the connection lifecycle state.
func (c *Client) Status() domain.ConnectionStatus {
	return c.mgr.Status()
}

// Close flushes pending receipts, cancels subscriptions and disconnects.
func (c *Client) Close() {
	c.receipts.Flush()
	c.typing.Stop()
	for _, sub := range c.subs {
		sub.Cancel()
	}
	c.subs = nil
	c.mgr.Disconnect()
}

func (c *Client) handleChatMessage(payload []byte) {
	var in domain.ChatMessageIn
	if err := json.Unmarshal(payload, &in); err != nil {
		c.logger.Warn().Err(err).Msg("malformed chat message")
		return
	}

	msg := in.AsMessage()
	res := c.timeline.Reconcile(msg)
	if res == Appended {
		c.notify(msg)
	}

	// Acknowledge the counterpart's messages, never our own echoes.
	if msg.Sender != c.self.SenderRole() {
		c.receipts.Observe(msg.ID)
	}
}

func (c *Client) handleTyping(payload []byte) {
	var in domain.TypingIndicator
	if err := json.Unmarshal(payload, &in); err != nil {
		c.logger.Warn().Err(err).Msg("malformed typing indicator")
		return
	}
	if in.UserID == c.self.ID {
		return
	}
	c.typing.HandleRemote(in.UserID, in.IsTyping)
}

func (c *Client) handleAlert(payload []byte) {
	var in domain.AlertNotification
	if err := json.Unmarshal(payload, &in); err != nil {
		c.logger.Warn().Err(err).Msg("malformed alert notification")
		return
	}
	c.logger.Info().Int64(log.FieldSessionID, in.SessionID).Str("alert_type", in.AlertType).Msg("alert received")
	if c.onAlert != nil {
		c.onAlert(in)
	}
}

func (c *Client) sendTyping(active bool) {
	c.mgr.Send(domain.TypingIndicator{
		Type:      domain.MsgTypeTyping,
		SessionID: c.scope.SessionID,
		UserID:    c.self.ID,
		IsTyping:  active,
	})
}

func (c *Client) sendReceipts(ids []int64) {
	c.mgr.Send(domain.ReadReceipt{
		Type:       domain.MsgTypeReadReceipt,
		SessionID:  c.scope.SessionID,
		MessageIDs: ids,
	})
}

func (c *Client) notify(msg domain.Message) {
	if c.onMessage != nil {
		c.onMessage(msg)
	}
}
