package v1_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/fiscalflow/internal/auth"
	"github.com/gosuda/fiscalflow/internal/domain"
	"github.com/gosuda/fiscalflow/internal/history"
	"github.com/gosuda/fiscalflow/internal/relay"
	"github.com/gosuda/fiscalflow/internal/server/middleware"
)

// ---------------------------------------------------------------------------
// Context helpers: inject the principal into context for DoCtx
// ---------------------------------------------------------------------------

func testPrincipal() *domain.Principal {
	return &domain.Principal{
		UserID:        uuid.MustParse("5f0c2a4e-0d7b-4f43-9d55-1b8a4c7e2f10"),
		Username:      "contable",
		DisplayName:   "Allan",
		Role:          "Contable",
		ResponseStyle: "técnico-detallado",
	}
}

func userCtx() context.Context {
	return middleware.WithPrincipal(context.Background(), testPrincipal())
}

func parseErrorBody(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

// ---------------------------------------------------------------------------
// Mock AuthService
// ---------------------------------------------------------------------------

type mockAuthService struct {
	loginFunc   func(ctx context.Context, username, password string) (*auth.Tokens, *domain.Principal, error)
	refreshFunc func(ctx context.Context, refreshToken string) (*auth.Tokens, error)
	logoutFunc  func(ctx context.Context, tokens ...string) error
}

func (m *mockAuthService) Login(ctx context.Context, username, password string) (*auth.Tokens, *domain.Principal, error) {
	return m.loginFunc(ctx, username, password)
}

func (m *mockAuthService) Refresh(ctx context.Context, refreshToken string) (*auth.Tokens, error) {
	return m.refreshFunc(ctx, refreshToken)
}

func (m *mockAuthService) Logout(ctx context.Context, tokens ...string) error {
	return m.logoutFunc(ctx, tokens...)
}

// ---------------------------------------------------------------------------
// Mock HistoryService
// ---------------------------------------------------------------------------

type mockHistory struct {
	listFunc       func(ctx context.Context, username string, limit, offset int) ([]*domain.ConversationSummary, int, error)
	groupedFunc    func(ctx context.Context, username string, now time.Time) ([]history.Band, error)
	transcriptFunc func(ctx context.Context, sessionID, username string) ([]*domain.Turn, error)
}

func (m *mockHistory) ListConversations(ctx context.Context, username string, limit, offset int) ([]*domain.ConversationSummary, int, error) {
	return m.listFunc(ctx, username, limit, offset)
}

func (m *mockHistory) ListGrouped(ctx context.Context, username string, now time.Time) ([]history.Band, error) {
	return m.groupedFunc(ctx, username, now)
}

func (m *mockHistory) GetTranscript(ctx context.Context, sessionID, username string) ([]*domain.Turn, error) {
	return m.transcriptFunc(ctx, sessionID, username)
}

// ---------------------------------------------------------------------------
// Mock relay, extractor and report repository
// ---------------------------------------------------------------------------

type mockRelayer struct {
	relayFunc func(ctx context.Context, req *relay.Request) (*relay.Response, error)
}

func (m *mockRelayer) Relay(ctx context.Context, req *relay.Request) (*relay.Response, error) {
	return m.relayFunc(ctx, req)
}

func (m *mockRelayer) Timeout() time.Duration { return time.Minute }

type mockExtractor struct {
	extractFunc func(ctx context.Context, text string) (string, bool)
}

func (m *mockExtractor) Extract(ctx context.Context, text string) (string, bool) {
	return m.extractFunc(ctx, text)
}

type mockReportRepo struct {
	getByIDFunc func(ctx context.Context, id string) (*domain.Report, error)
}

func (m *mockReportRepo) GetByID(ctx context.Context, id string) (*domain.Report, error) {
	return m.getByIDFunc(ctx, id)
}
