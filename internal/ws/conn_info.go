package ws

import "time"

// ConnInfo describes one live socket connection.
type ConnInfo struct {
	SocketID    string
	UserID      string
	Username    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
