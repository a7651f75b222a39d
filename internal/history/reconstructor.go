// Package history rebuilds conversations from the workflow engine's flat chat
// log. Nothing here is stored; every listing is derived on request.
package history

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/fiscalflow/internal/domain"
	"github.com/gosuda/fiscalflow/internal/metrics"
	"github.com/gosuda/fiscalflow/internal/session"
)

// AssistantFirstTitle is used when a conversation was opened by the assistant.
const AssistantFirstTitle = "Conversación iniciada por el asistente"

// UntitledTitle is used when the opening user turn has no text (attachment only).
const UntitledTitle = "Conversación sin título"

const (
	DefaultPageSize      = 50
	DefaultPreviewLength = 100
	DefaultTitleLength   = 80
	ellipsis             = "…"
)

// ActivitySource reports when this service last completed a turn for each of
// a user's conversations, keyed by scoped key.
type ActivitySource interface {
	LastActivity(ctx context.Context, username string) (map[string]time.Time, error)
}

// Reconstructor derives summaries and transcripts from the chat log.
type Reconstructor struct {
	logs     domain.ChatLogRepository
	activity ActivitySource
	metrics  *metrics.Metrics

	pageSize   int
	previewLen int
	titleLen   int
}

// Option configures a Reconstructor.
type Option func(*Reconstructor)

// WithActivity adds a recency source besides the log timestamps.
func WithActivity(a ActivitySource) Option {
	return func(r *Reconstructor) { r.activity = a }
}

// WithMetrics enables instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconstructor) { r.metrics = m }
}

// WithLimits overrides the default page size and clip lengths. Non-positive
// values keep the defaults.
func WithLimits(pageSize, previewLen, titleLen int) Option {
	return func(r *Reconstructor) {
		if pageSize > 0 {
			r.pageSize = pageSize
		}
		if previewLen > 0 {
			r.previewLen = previewLen
		}
		if titleLen > 0 {
			r.titleLen = titleLen
		}
	}
}

func New(logs domain.ChatLogRepository, opts ...Option) *Reconstructor {
	r := &Reconstructor{
		logs:       logs,
		pageSize:   DefaultPageSize,
		previewLen: DefaultPreviewLength,
		titleLen:   DefaultTitleLength,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ListConversations returns one page of the user's conversations, most recent
// first, and the total number of conversations. A non-positive limit uses the
// default page size.
func (r *Reconstructor) ListConversations(ctx context.Context, username string, limit, offset int) ([]*domain.ConversationSummary, int, error) {
	all, err := r.summaries(ctx, username)
	r.metrics.ObserveHistoryRead("list", err)
	if err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = r.pageSize
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []*domain.ConversationSummary{}, len(all), nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], len(all), nil
}

// ListGrouped returns all of the user's conversations banded by recency as
// seen from now.
func (r *Reconstructor) ListGrouped(ctx context.Context, username string, now time.Time) ([]Band, error) {
	all, err := r.summaries(ctx, username)
	r.metrics.ObserveHistoryRead("grouped", err)
	if err != nil {
		return nil, err
	}
	return Group(all, now), nil
}

// GetTranscript returns the turns of one conversation in log order. Keys that
// do not belong to username are rejected before any read.
func (r *Reconstructor) GetTranscript(ctx context.Context, sessionID, username string) ([]*domain.Turn, error) {
	if !session.Owns(sessionID, username) {
		r.metrics.ObserveHistoryRead("transcript", domain.ErrUnauthorized)
		log.Warn().Str("username", username).Str("session_id", sessionID).Msg("history: transcript of another user requested")
		return nil, fmt.Errorf("history.Reconstructor.GetTranscript: %w", domain.ErrUnauthorized)
	}

	records, err := r.logs.ListBySession(ctx, sessionID)
	r.metrics.ObserveHistoryRead("transcript", err)
	if err != nil {
		return nil, fmt.Errorf("history.Reconstructor.GetTranscript: %w", err)
	}

	turns := make([]*domain.Turn, 0, len(records))
	for _, rec := range records {
		turns = append(turns, &domain.Turn{
			ID:   strconv.FormatInt(rec.ID, 10),
			Role: domain.RoleFromTag(rec.RoleTag),
			Text: rec.Content,
		})
	}
	return turns, nil
}

type conversation struct {
	first, last *domain.LogRecord
	count       int
	updatedAt   time.Time
}

func (r *Reconstructor) summaries(ctx context.Context, username string) ([]*domain.ConversationSummary, error) {
	if username == "" {
		return nil, fmt.Errorf("history.Reconstructor: empty username: %w", domain.ErrUnauthorized)
	}

	records, err := r.logs.ListByPrefix(ctx, session.UserPrefix(username))
	if err != nil {
		return nil, fmt.Errorf("history.Reconstructor: list records: %w", err)
	}

	byKey := make(map[string]*conversation)
	for _, rec := range records {
		// The prefix match is repeated here so a repository that only
		// approximates it cannot leak another user's rows.
		if !session.Owns(rec.SessionID, username) {
			continue
		}
		c, ok := byKey[rec.SessionID]
		if !ok {
			c = &conversation{first: rec, last: rec}
			byKey[rec.SessionID] = c
		}
		if rec.ID < c.first.ID {
			c.first = rec
		}
		if rec.ID > c.last.ID {
			c.last = rec
		}
		c.count++
		if rec.CreatedAt != nil && rec.CreatedAt.After(c.updatedAt) {
			c.updatedAt = *rec.CreatedAt
		}
	}

	r.mergeActivity(ctx, username, byKey)

	out := make([]*domain.ConversationSummary, 0, len(byKey))
	for key, c := range byKey {
		out = append(out, &domain.ConversationSummary{
			SessionID:    key,
			Title:        r.title(c.first),
			LastMessage:  clip(c.last.Content, r.previewLen),
			MessageCount: c.count,
			UpdatedAt:    c.updatedAt,
			LastRecordID: c.last.ID,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastRecordID > out[j].LastRecordID
	})
	return out, nil
}

func (r *Reconstructor) mergeActivity(ctx context.Context, username string, byKey map[string]*conversation) {
	if r.activity == nil || len(byKey) == 0 {
		return
	}
	seen, err := r.activity.LastActivity(ctx, username)
	if err != nil {
		log.Warn().Err(err).Str("username", username).Msg("history: activity lookup failed, using log timestamps only")
		return
	}
	for key, t := range seen {
		if c, ok := byKey[key]; ok && t.After(c.updatedAt) {
			c.updatedAt = t
		}
	}
}

// title never looks past the first record.
func (r *Reconstructor) title(first *domain.LogRecord) string {
	if domain.RoleFromTag(first.RoleTag) != domain.RoleUser {
		return AssistantFirstTitle
	}
	t := clip(first.Content, r.titleLen)
	if t == "" {
		return UntitledTitle
	}
	return t
}

// clip collapses whitespace and cuts s to n runes, marking the cut.
func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n])) + ellipsis
}
