package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlInteractionEntries = `
CREATE TABLE IF NOT EXISTS interaction_entries (
    seq         BIGSERIAL    PRIMARY KEY,
    id          TEXT         NOT NULL UNIQUE,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    success     BOOLEAN      NOT NULL,
    category    TEXT         NOT NULL DEFAULT '',
    entry       JSONB        NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_interaction_entries_category
    ON interaction_entries (category) WHERE category <> '';

CREATE INDEX IF NOT EXISTS idx_interaction_entries_created_at
    ON interaction_entries (created_at);
`

// Migrate creates the interaction log table and its indexes if they do not
// exist. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlInteractionEntries); err != nil {
		return fmt.Errorf("interaction postgres: migrate: %w", err)
	}
	return nil
}
