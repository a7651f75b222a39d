package domain

import (
	"context"
	"time"
)

// Role tags written by the workflow engine into the message payload.
const (
	RoleTagHuman = "human"
	RoleTagAI    = "ai"
)

// LogRecord is one row of the external append-only chat log. The workflow
// engine owns the table; this service only reads it. Within a session the ID
// order is the chronological order.
type LogRecord struct {
	ID        int64
	SessionID string
	RoleTag   string
	Content   string
	CreatedAt *time.Time // only when a timestamp column is configured
}

// ChatLogRepository reads the external chat log. Implementations must never
// write to it.
type ChatLogRepository interface {
	// ListByPrefix returns every record whose session id starts with prefix,
	// ordered by id ascending.
	ListByPrefix(ctx context.Context, prefix string) ([]*LogRecord, error)
	// ListBySession returns the records of one session ordered by id ascending.
	ListBySession(ctx context.Context, sessionID string) ([]*LogRecord, error)
}
