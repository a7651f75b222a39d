package postgres

import (
	"context"
	"fmt"
)

// schema creates the tables this service owns. The chat log and the reports
// table belong to the workflow engine and are only read.
const schema = `
CREATE TABLE IF NOT EXISTS app_users (
	id             uuid PRIMARY KEY,
	username       text NOT NULL UNIQUE CHECK (username = lower(username)),
	password_hash  text NOT NULL,
	display_name   text NOT NULL,
	role           text NOT NULL,
	response_style text NOT NULL,
	created_at     timestamptz NOT NULL DEFAULT now(),
	updated_at     timestamptz NOT NULL DEFAULT now()
);`

// Migrate applies the schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres.Store.Migrate: %w", err)
	}
	return nil
}
