package domain

import "time"

// ConversationSummary is derived from the chat log on every listing request;
// it is never stored.
type ConversationSummary struct {
	SessionID    string    `json:"session_id"`
	Title        string    `json:"title"`
	LastMessage  string    `json:"last_message"`
	MessageCount int       `json:"message_count"`
	UpdatedAt    time.Time `json:"updated_at"`

	// LastRecordID is the recency proxy the listing is ordered by.
	LastRecordID int64 `json:"-"`
}
