package domain

// ConnectionStatus is the lifecycle state of the realtime connection.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
)

func (s ConnectionStatus) String() string { return string(s) }
