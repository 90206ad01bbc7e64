// Package postgres provides a PostgreSQL implementation of keystore.Store.
// It uses pgx/v5 for connection pooling and applies its own embedded
// schema migrations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/haugen-media/gatekeeper/pkg/keystore"
)

// Store is a PostgreSQL-backed key store.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure Store implements keystore.Store at compile time.
var _ keystore.Store = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// LookupByHash returns the credential record whose key hash matches.
func (s *Store) LookupByHash(ctx context.Context, hash string) (*keystore.Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, key_hash, label, site, level, status,
		       per_second, per_minute, per_hour, per_day,
		       expires_at, last_used_at, created_at
		FROM api_keys
		WHERE key_hash = $1
	`, hash)

	var rec keystore.Record
	var status string
	err := row.Scan(
		&rec.ID, &rec.KeyHash, &rec.Label, &rec.Site, &rec.Level, &status,
		&rec.PerSecond, &rec.PerMinute, &rec.PerHour, &rec.PerDay,
		&rec.ExpiresAt, &rec.LastUsedAt, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, keystore.ErrNotFound
		}
		return nil, fmt.Errorf("querying api key: %w", err)
	}
	rec.Status = keystore.Status(status)

	return &rec, nil
}

// TouchLastUsed records a successful use of the credential.
func (s *Store) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = $2 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("updating last_used_at: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return keystore.ErrNotFound
	}
	return nil
}

// Insert stores a new credential record. Used by seed tooling and tests;
// issuance itself (key generation, distribution) happens elsewhere.
func (s *Store) Insert(ctx context.Context, rec *keystore.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO api_keys (
			id, key_hash, label, site, level, status,
			per_second, per_minute, per_hour, per_day,
			expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		rec.ID, rec.KeyHash, rec.Label, rec.Site, rec.Level, string(rec.Status),
		rec.PerSecond, rec.PerMinute, rec.PerHour, rec.PerDay,
		rec.ExpiresAt, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting api key: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
