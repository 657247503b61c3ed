// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/sitepdf/internal/crawler"
)

const defaultTable = "captured_pages"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for capture rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// CaptureStore writes one row per captured page into Postgres.
type CaptureStore struct {
	pool  pool
	table string
}

// NewCaptureStore connects a pool using cfg.
func NewCaptureStore(ctx context.Context, cfg Config) (*CaptureStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &CaptureStore{pool: p, table: table}, nil
}

// NewCaptureStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewCaptureStoreWithPool(p pool, table string) (*CaptureStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &CaptureStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *CaptureStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the capture table when it does not exist.
func (s *CaptureStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id          TEXT PRIMARY KEY,
	job_id      TEXT NOT NULL,
	ordinal     INTEGER NOT NULL,
	url         TEXT NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	depth       INTEGER NOT NULL,
	status_code INTEGER NOT NULL,
	text_bytes  INTEGER NOT NULL,
	rasterized  BOOLEAN NOT NULL,
	captured_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// RecordCapture upserts a capture row. Row ids are derived from the job and
// ordinal, so a retried job overwrites its earlier rows.
func (s *CaptureStore) RecordCapture(ctx context.Context, record crawler.CaptureRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("capture store is not configured")
	}
	if record.ID == "" {
		return fmt.Errorf("record id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	job_id,
	ordinal,
	url,
	title,
	depth,
	status_code,
	text_bytes,
	rasterized,
	captured_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
ON CONFLICT (id) DO UPDATE SET
	url         = EXCLUDED.url,
	title       = EXCLUDED.title,
	depth       = EXCLUDED.depth,
	status_code = EXCLUDED.status_code,
	text_bytes  = EXCLUDED.text_bytes,
	rasterized  = EXCLUDED.rasterized,
	captured_at = EXCLUDED.captured_at`, s.table)

	args := []any{
		record.ID,
		record.JobID,
		record.Ordinal,
		record.URL,
		record.Title,
		record.Depth,
		record.StatusCode,
		record.TextBytes,
		record.Rasterized,
		record.CapturedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert capture: %w", err)
	}
	return nil
}

// ListCaptures returns a job's rows ordered by ordinal.
func (s *CaptureStore) ListCaptures(ctx context.Context, jobID string) ([]crawler.CaptureRecord, error) {
	query := fmt.Sprintf(`
SELECT id, job_id, ordinal, url, title, depth, status_code, text_bytes, rasterized, captured_at
FROM %s
WHERE job_id = $1
ORDER BY ordinal`, s.table)
	rows, err := s.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list captures: %w", err)
	}
	defer rows.Close()

	out := []crawler.CaptureRecord{}
	for rows.Next() {
		var rec crawler.CaptureRecord
		err := rows.Scan(
			&rec.ID,
			&rec.JobID,
			&rec.Ordinal,
			&rec.URL,
			&rec.Title,
			&rec.Depth,
			&rec.StatusCode,
			&rec.TextBytes,
			&rec.Rasterized,
			&rec.CapturedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan capture row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate capture rows: %w", err)
	}
	return out, nil
}
