package chat

import "time"

// Event types published on a conversation's live channel.
const (
	EventUserTurn = "user_turn"
	EventDelta    = "delta"
	EventDone     = "done"
	EventTimeout  = "timeout"
	EventError    = "error"
)

// Event is one live update of a conversation, mirrored to websocket clients.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Text      string    `json:"text,omitempty"`
	ReportID  string    `json:"report_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
