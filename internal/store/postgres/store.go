package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/fiscalflow/internal/domain"
)

type Store struct {
	pool     *pgxpool.Pool
	users    *UserRepo
	chatLogs *ChatLogRepo
	reports  *ReportRepo
}

// Options tune repositories that read tables owned by the workflow engine.
type Options struct {
	// ChatLogTimestampColumn names an optional timestamp column of the chat
	// log; empty when the table has none.
	ChatLogTimestampColumn string
}

func New(ctx context.Context, dsn string, maxConns int32, opts Options) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	return &Store{
		pool:     pool,
		users:    NewUserRepo(pool),
		chatLogs: NewChatLogRepo(pool, opts.ChatLogTimestampColumn),
		reports:  NewReportRepo(pool),
	}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks connectivity for health probes.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres.Store.Ping: %w", err)
	}
	return nil
}

func (s *Store) Users() domain.UserRepository       { return s.users }
func (s *Store) ChatLogs() domain.ChatLogRepository { return s.chatLogs }
func (s *Store) Reports() domain.ReportRepository   { return s.reports }
