// Package pgstore is a persist.LocalStore backed by a Postgres table of JSONB
// snapshots. The schema is created by internal/migrations.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultHistoryLimit is how many replaced versions are kept per key.
const DefaultHistoryLimit = 10

// Store reads and writes registry_snapshots.
type Store struct {
	pool         *pgxpool.Pool
	historyLimit int
}

type Option func(*Store)

// WithHistoryLimit sets how many replaced versions to keep per key. Zero
// disables history.
func WithHistoryLimit(n int) Option {
	return func(s *Store) {
		if n >= 0 {
			s.historyLimit = n
		}
	}
}

func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, historyLimit: DefaultHistoryLimit}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const (
	selectSnapshot = `SELECT data FROM registry_snapshots WHERE key = $1`

	archiveSnapshot = `
		INSERT INTO registry_snapshot_history (key, data)
		SELECT key, data FROM registry_snapshots WHERE key = $1`

	upsertSnapshot = `
		INSERT INTO registry_snapshots (key, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE
		SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`

	trimHistory = `
		DELETE FROM registry_snapshot_history
		WHERE key = $1 AND id NOT IN (
			SELECT id FROM registry_snapshot_history
			WHERE key = $1
			ORDER BY replaced_at DESC, id DESC
			LIMIT $2
		)`

	deleteSnapshots = `DELETE FROM registry_snapshots`

	selectHistory = `
		SELECT data FROM registry_snapshot_history
		WHERE key = $1
		ORDER BY replaced_at DESC, id DESC
		LIMIT $2`
)

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, selectSnapshot, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select snapshot %s: %w", key, err)
	}
	return data, true, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	return s.PutAll(ctx, map[string][]byte{key: data})
}

// PutAll writes every entry in one transaction.
func (s *Store) PutAll(ctx context.Context, entries map[string][]byte) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for key, data := range entries {
		if err := s.put(ctx, tx, key, data); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshots: %w", err)
	}
	return nil
}

func (s *Store) put(ctx context.Context, tx pgx.Tx, key string, data []byte) error {
	if s.historyLimit > 0 {
		if _, err := tx.Exec(ctx, archiveSnapshot, key); err != nil {
			return fmt.Errorf("archive snapshot %s: %w", key, err)
		}
		if _, err := tx.Exec(ctx, trimHistory, key, s.historyLimit); err != nil {
			return fmt.Errorf("trim snapshot history %s: %w", key, err)
		}
	}
	// JSONB parameter: pass as string so pgx does not re-encode the bytes.
	if _, err := tx.Exec(ctx, upsertSnapshot, key, string(data)); err != nil {
		return fmt.Errorf("upsert snapshot %s: %w", key, err)
	}
	return nil
}

// Clear removes the live snapshots. History is kept.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, deleteSnapshots); err != nil {
		return fmt.Errorf("clear snapshots: %w", err)
	}
	return nil
}

// History returns up to limit replaced versions of key, newest first.
func (s *Store) History(ctx context.Context, key string, limit int) ([][]byte, error) {
	rows, err := s.pool.Query(ctx, selectHistory, key, limit)
	if err != nil {
		return nil, fmt.Errorf("select snapshot history %s: %w", key, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) ([]byte, error) {
		var data []byte
		err := row.Scan(&data)
		return data, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan snapshot history %s: %w", key, err)
	}
	return out, nil
}

// Ping verifies the pool can reach the database.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
