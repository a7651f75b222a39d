package v1

import (
	"context"
	"time"

	"github.com/gosuda/fiscalflow/internal/auth"
	"github.com/gosuda/fiscalflow/internal/chat"
	"github.com/gosuda/fiscalflow/internal/domain"
	"github.com/gosuda/fiscalflow/internal/history"
	"github.com/gosuda/fiscalflow/internal/reports"
)

// AuthService abstracts authentication operations for handler testing.
// *auth.Service satisfies this interface.
type AuthService interface {
	Login(ctx context.Context, username, password string) (*auth.Tokens, *domain.Principal, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.Tokens, error)
	Logout(ctx context.Context, tokens ...string) error
}

// ChatService opens relayed turns. *chat.Service satisfies this interface.
type ChatService interface {
	Start(ctx context.Context, p *domain.Principal, in *chat.Input) (*chat.Turn, error)
}

// Extractor finds report identifiers. *extract.Extractor satisfies this
// interface.
type Extractor interface {
	Extract(ctx context.Context, text string) (string, bool)
}

// HistoryService reads conversations back from the chat log.
// *history.Reconstructor satisfies this interface.
type HistoryService interface {
	ListConversations(ctx context.Context, username string, limit, offset int) ([]*domain.ConversationSummary, int, error)
	ListGrouped(ctx context.Context, username string, now time.Time) ([]history.Band, error)
	GetTranscript(ctx context.Context, sessionID, username string) ([]*domain.Turn, error)
}

// ReportService loads report artifacts. *reports.Service satisfies this
// interface.
type ReportService interface {
	Get(ctx context.Context, id string) (*reports.Artifact, error)
}
