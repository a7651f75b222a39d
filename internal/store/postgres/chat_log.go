package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/fiscalflow/internal/domain"
)

// ChatLogTable is written by the workflow engine's memory node. Never written
// here.
const ChatLogTable = "n8n_chat_histories"

type ChatLogRepo struct {
	pool       *pgxpool.Pool
	selectCols string
	hasTime    bool
}

// NewChatLogRepo reads the chat log. timestampColumn is optional.
func NewChatLogRepo(pool *pgxpool.Pool, timestampColumn string) *ChatLogRepo {
	return &ChatLogRepo{
		pool:       pool,
		selectCols: chatLogColumns(timestampColumn),
		hasTime:    timestampColumn != "",
	}
}

func chatLogColumns(timestampColumn string) string {
	cols := `id, session_id, COALESCE(message->>'type', ''), COALESCE(message->>'content', '')`
	if timestampColumn != "" {
		cols += ", " + pgx.Identifier{timestampColumn}.Sanitize()
	}
	return cols
}

func (r *ChatLogRepo) ListByPrefix(ctx context.Context, prefix string) ([]*domain.LogRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+r.selectCols+`
		 FROM `+ChatLogTable+` WHERE session_id LIKE $1 ESCAPE '\'
		 ORDER BY id ASC`,
		escapeLike(prefix)+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("chatLogRepo.ListByPrefix: %w", err)
	}
	defer rows.Close()

	records, err := r.scan(rows)
	if err != nil {
		return nil, fmt.Errorf("chatLogRepo.ListByPrefix: %w", err)
	}
	return records, nil
}

func (r *ChatLogRepo) ListBySession(ctx context.Context, sessionID string) ([]*domain.LogRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+r.selectCols+`
		 FROM `+ChatLogTable+` WHERE session_id = $1
		 ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("chatLogRepo.ListBySession: %w", err)
	}
	defer rows.Close()

	records, err := r.scan(rows)
	if err != nil {
		return nil, fmt.Errorf("chatLogRepo.ListBySession: %w", err)
	}
	return records, nil
}

func (r *ChatLogRepo) scan(rows pgx.Rows) ([]*domain.LogRecord, error) {
	records := make([]*domain.LogRecord, 0)
	for rows.Next() {
		var rec domain.LogRecord
		var err error
		if r.hasTime {
			var at *time.Time
			err = rows.Scan(&rec.ID, &rec.SessionID, &rec.RoleTag, &rec.Content, &at)
			rec.CreatedAt = at
		} else {
			err = rows.Scan(&rec.ID, &rec.SessionID, &rec.RoleTag, &rec.Content)
		}
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return records, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`) //nolint:gochecknoglobals // stateless

// escapeLike makes s match literally inside a LIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
