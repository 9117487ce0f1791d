// Package postgres provides a PostgreSQL-backed [interaction.LogStore].
//
// Each entry is stored as a JSONB document alongside a few indexed columns
// used for filtering. Inserting a new entry and trimming the table back to
// capacity happen in one transaction, so the ring-buffer invariant holds
// across processes sharing the same database.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, interaction.MaxEntries)
//	if err != nil { … }
//	defer store.Close()
//	logger := interaction.NewLogger(store)
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/fitcoach/internal/interaction"
)

// Compile-time interface checks.
var (
	_ interaction.LogStore = (*Store)(nil)
	_ interaction.Named    = (*Store)(nil)
)

// Store implements [interaction.LogStore] on top of a [pgxpool.Pool].
// All operations are safe for concurrent use.
type Store struct {
	pool     *pgxpool.Pool
	capacity int
}

// NewStore connects to dsn, runs [Migrate] and returns a store that retains
// at most capacity entries. A non-positive capacity selects
// [interaction.MaxEntries].
func NewStore(ctx context.Context, dsn string, capacity int) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("interaction postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("interaction postgres: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("interaction postgres: migrate: %w", err)
	}
	return NewStoreFromPool(pool, capacity), nil
}

// NewStoreFromPool wraps an existing pool. The caller is responsible for
// running [Migrate] and closing the pool.
func NewStoreFromPool(pool *pgxpool.Pool, capacity int) *Store {
	if capacity <= 0 {
		capacity = interaction.MaxEntries
	}
	return &Store{pool: pool, capacity: capacity}
}

// Backend implements [interaction.Named].
func (s *Store) Backend() string { return "postgres" }

// Ping reports whether the database is reachable. It is used by readiness
// probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}

// Append implements [interaction.LogStore].
func (s *Store) Append(ctx context.Context, e interaction.Entry) error {
	doc, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("interaction postgres: marshal entry: %w", err)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		const insert = `
			INSERT INTO interaction_entries (id, created_at, success, category, entry)
			VALUES ($1, $2, $3, $4, $5)`
		if _, err := tx.Exec(ctx, insert,
			e.ID, e.Timestamp, e.Success, string(e.Category()), doc,
		); err != nil {
			return fmt.Errorf("interaction postgres: insert: %w", err)
		}

		const trim = `
			DELETE FROM interaction_entries
			WHERE seq <= (
				SELECT seq FROM interaction_entries
				ORDER BY seq DESC
				OFFSET $1 LIMIT 1
			)`
		if _, err := tx.Exec(ctx, trim, s.capacity); err != nil {
			return fmt.Errorf("interaction postgres: trim: %w", err)
		}
		return nil
	})
}

// List implements [interaction.LogStore].
func (s *Store) List(ctx context.Context) ([]interaction.Entry, error) {
	const q = `
		SELECT entry FROM interaction_entries
		ORDER BY seq DESC
		LIMIT $1`
	rows, err := s.pool.Query(ctx, q, s.capacity)
	if err != nil {
		return nil, fmt.Errorf("interaction postgres: list: %w", err)
	}
	defer rows.Close()

	var out []interaction.Entry
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("interaction postgres: scan: %w", err)
		}
		var e interaction.Entry
		if err := json.Unmarshal(doc, &e); err != nil {
			return nil, fmt.Errorf("interaction postgres: decode entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("interaction postgres: list rows: %w", err)
	}
	return out, nil
}

// Clear implements [interaction.LogStore].
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM interaction_entries`); err != nil {
		return fmt.Errorf("interaction postgres: clear: %w", err)
	}
	return nil
}
