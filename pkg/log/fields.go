package log

const (
	// Session
	FieldTabID  = "tab_id"
	FieldUserID = "user_id"

	// Realtime
	FieldScope   = "scope"
	FieldMsgType = "msg_type"
	FieldStatus  = "status"
	FieldAttempt = "attempt"

	// Chat
	FieldSessionID = "session_id"
	FieldMessageID = "message_id"
)
