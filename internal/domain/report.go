package domain

import (
	"context"
	"time"
)

// Report is a generated artifact referenced from assistant text by its id.
type Report struct {
	ID        string
	FileName  string
	PDFData   string // base64
	Type      string
	CreatedAt time.Time
}

// ReportRepository looks artifacts up by identifier.
type ReportRepository interface {
	GetByID(ctx context.Context, id string) (*Report, error)
}
