package gist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is a PostgreSQL-backed gist store using a pgx pool.
// Requires a table with schema:
//
//	CREATE TABLE gists (
//	    id TEXT PRIMARY KEY,
//	    content TEXT NOT NULL,
//	    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
//	);
type PGStore struct {
	pool      *pgxpool.Pool
	tableName string
	closed    bool
}

// PGStoreOption configures PGStore behavior.
type PGStoreOption func(*pgStoreConfig)

type pgStoreConfig struct {
	tableName string
}

// WithPGTableName sets the table name for gist storage.
// Default: "gists".
func WithPGTableName(name string) PGStoreOption {
	return func(c *pgStoreConfig) {
		c.tableName = name
	}
}

// NewPGStore creates a new PostgreSQL-backed gist store.
func NewPGStore(pool *pgxpool.Pool, opts ...PGStoreOption) *PGStore {
	cfg := &pgStoreConfig{
		tableName: "gists",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &PGStore{
		pool:      pool,
		tableName: cfg.tableName,
	}
}

// Load retrieves canonical content if it exists.
func (s *PGStore) Load(ctx context.Context, gistID string) (string, bool, error) {
	if s.closed {
		return "", false, ErrStoreClosed{}
	}

	query := fmt.Sprintf("SELECT content FROM %s WHERE id = $1", s.tableName)

	var content string
	err := s.pool.QueryRow(ctx, query, gistID).Scan(&content)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("gist: postgres load: %w", err)
	}
	return content, true, nil
}

// Save stores canonical content, overwriting any prior value.
func (s *PGStore) Save(ctx context.Context, gistID, content string) error {
	if s.closed {
		return ErrStoreClosed{}
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, content, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET content = $2, updated_at = NOW()`,
		s.tableName)

	if _, err := s.pool.Exec(ctx, query, gistID, content); err != nil {
		return fmt.Errorf("gist: postgres save: %w", err)
	}
	return nil
}

// Delete removes a gist from the store.
func (s *PGStore) Delete(ctx context.Context, gistID string) error {
	if s.closed {
		return ErrStoreClosed{}
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.tableName)
	if _, err := s.pool.Exec(ctx, query, gistID); err != nil {
		return fmt.Errorf("gist: postgres delete: %w", err)
	}
	return nil
}

// Close shuts down the store and the underlying pool.
func (s *PGStore) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.pool.Close()
	return nil
}
