package domain

import "time"

// WebSocket message types sent by the client.
const (
	MsgTypeChatMessage = "chat_message"
	MsgTypeTyping      = "typing_indicator"
	MsgTypeReadReceipt = "read_receipt"
)

// WebSocket message types received from the server. Chat messages and typing
// indicators flow both ways; connected/disconnected are synthesized locally
// by the connection manager on every lifecycle transition.
const (
	MsgTypeAlert      = "alert_notification"
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
)

// BaseMessage is the envelope shared by all wire messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

// ChatMessageOut carries a new chat message to the server.
type ChatMessageOut struct {
	Type      string `json:"type"`
	SessionID int64  `json:"session_id"`
	Text      string `json:"text"`
	Sender    Role   `json:"sender"`
	ClientRef string `json:"client_ref,omitempty"`
}

// TypingIndicator signals typing state. Outbound it describes the local
// user; inbound UserID identifies the remote party.
type TypingIndicator struct {
	Type      string `json:"type"`
	SessionID int64  `json:"session_id"`
	UserID    int64  `json:"user_id,omitempty"`
	IsTyping  bool   `json:"is_typing"`
}

// ReadReceipt acknowledges a batch of counterpart messages.
type ReadReceipt struct {
	Type       string  `json:"type"`
	SessionID  int64   `json:"session_id"`
	MessageIDs []int64 `json:"message_ids"`
}

// Server -> Client messages

// ChatPayload is the authoritative copy of a message as the server echoes it.
type ChatPayload struct {
	ID        int64          `json:"id"`
	UserID    int64          `json:"user_id"`
	Text      string         `json:"text"`
	Sender    Role           `json:"sender"`
	Timestamp time.Time      `json:"timestamp"`
	Analysis  map[string]any `json:"analysis,omitempty"`
	ClientRef string         `json:"client_ref,omitempty"`
}

// ChatMessageIn wraps an authoritative chat message.
type ChatMessageIn struct {
	Type      string      `json:"type"`
	SessionID int64       `json:"session_id"`
	Message   ChatPayload `json:"message"`
}

// AsMessage converts the wire payload into a timeline entry.
func (in ChatMessageIn) AsMessage() Message {
	return Message{
		ID:        in.Message.ID,
		SessionID: in.SessionID,
		UserID:    in.Message.UserID,
		Sender:    in.Message.Sender,
		Text:      in.Message.Text,
		CreatedAt: in.Message.Timestamp,
		Analysis:  in.Message.Analysis,
		ClientRef: in.Message.ClientRef,
	}
}

// AlertNotification is an out-of-band alert pushed by the server, e.g. an
// emergency raised on a counseling session.
type AlertNotification struct {
	Type        string    `json:"type"`
	SessionID   int64     `json:"session_id"`
	AlertType   string    `json:"alert_type"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}
