// Package store keeps an optional PostgreSQL history of completed calculations.
//
// Only run metadata is stored (counts, parameters, delivery result, artifact
// path). The ranked table itself lives in the artifact file.
package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/topsis/internal/config"
	"github.com/JonMunkholm/topsis/internal/core"
)

// MaxListLimit caps ListRecent.
const MaxListLimit = 200

const schemaSQL = `
CREATE TABLE IF NOT EXISTS calculation_runs (
	run_id        UUID PRIMARY KEY,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	recipient     TEXT NOT NULL,
	row_count     INTEGER NOT NULL,
	criteria      INTEGER NOT NULL,
	weights       TEXT NOT NULL,
	impacts       TEXT NOT NULL,
	delivered     BOOLEAN NOT NULL,
	delivery_kind TEXT NOT NULL DEFAULT '',
	artifact_path TEXT NOT NULL,
	duration_ms   BIGINT NOT NULL,
	client_ip     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS calculation_runs_created_at_idx ON calculation_runs (created_at DESC);
`

const runColumns = `run_id, created_at, recipient, row_count, criteria, weights, impacts,
	delivered, delivery_kind, artifact_path, duration_ms, client_ip`

// PostgresStore records runs in the calculation_runs table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects using cfg, verifies the connection and creates the
// schema if it is missing.
func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// DatabaseName returns the database name in url for logging, or "" if it
// cannot be parsed.
func DatabaseName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}

// EnsureSchema creates the run table and index if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks connectivity for the health endpoint.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// RecordRun inserts one run. Recording the same run twice is a no-op.
func (s *PostgresStore) RecordRun(ctx context.Context, run core.RunRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO calculation_runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (run_id) DO NOTHING`,
		run.ID, run.CreatedAt, run.Recipient, run.Rows, run.Criteria, run.Weights, run.Impacts,
		run.Delivered, run.DeliveryKind, run.ArtifactPath, run.DurationMs, run.ClientIP,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

// ListRecent returns up to limit runs, newest first. limit goes through
// ClampLimit.
func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]core.RunRecord, error) {
	limit = ClampLimit(limit)

	rows, err := s.pool.Query(ctx, `
		SELECT `+runColumns+`
		FROM calculation_runs
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	runs, err := pgx.CollectRows(rows, scanRun)
	if err != nil {
		return nil, fmt.Errorf("scan runs: %w", err)
	}
	return runs, nil
}

// GetRun returns a single run, or nil when it does not exist.
func (s *PostgresStore) GetRun(ctx context.Context, id string) (*core.RunRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+runColumns+` FROM calculation_runs WHERE run_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	run, err := pgx.CollectExactlyOneRow(rows, scanRun)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &run, nil
}

func scanRun(row pgx.CollectableRow) (core.RunRecord, error) {
	var r core.RunRecord
	err := row.Scan(
		&r.ID, &r.CreatedAt, &r.Recipient, &r.Rows, &r.Criteria, &r.Weights, &r.Impacts,
		&r.Delivered, &r.DeliveryKind, &r.ArtifactPath, &r.DurationMs, &r.ClientIP,
	)
	return r, err
}

// ClampLimit bounds a requested page size. Non-positive values mean the
// default of 20.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
