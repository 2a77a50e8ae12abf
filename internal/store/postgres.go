package store

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies
// it for unit tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using a pgx connection pool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS fetch_audit (
	id               TEXT PRIMARY KEY,
	domain           TEXT NOT NULL,
	request_id       TEXT,
	outcome          TEXT NOT NULL,
	contract_version TEXT,
	lifecycle        TEXT,
	field            TEXT,
	detail           TEXT,
	observed_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fetch_audit_domain ON fetch_audit(domain, observed_at DESC);
CREATE INDEX IF NOT EXISTS idx_fetch_audit_outcome ON fetch_audit(outcome);
`

// Migrate creates the audit schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

// RecordFetch appends one fetch outcome.
func (s *PostgresStore) RecordFetch(ctx context.Context, rec *FetchRecord) error {
	stampRecord(rec)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO fetch_audit (id, domain, request_id, outcome, contract_version, lifecycle, field, detail, observed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.Domain, rec.RequestID, string(rec.Outcome),
		rec.ContractVersion, rec.Lifecycle, rec.Field, rec.Detail, rec.ObservedAt.UTC(),
	)
	if err != nil {
		return eris.Wrap(err, "postgres: record fetch")
	}
	return nil
}

// ListFetches returns matching records, newest first.
func (s *PostgresStore) ListFetches(ctx context.Context, f Filter) ([]FetchRecord, error) {
	query := `SELECT id, domain, request_id, outcome, contract_version, lifecycle, field, detail, observed_at
		FROM fetch_audit WHERE 1=1`
	var args []any
	if f.Domain != "" {
		args = append(args, f.Domain)
		query += ` AND domain = $1`
	}
	if f.Outcome != "" {
		args = append(args, string(f.Outcome))
		query += ` AND outcome = $` + strconv.Itoa(len(args))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)
	query += ` ORDER BY observed_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args))
	args = append(args, f.Offset)
	query += ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list fetches")
	}
	defer rows.Close()

	var records []FetchRecord
	for rows.Next() {
		var rec FetchRecord
		var outcome string
		if err := rows.Scan(&rec.ID, &rec.Domain, &rec.RequestID, &outcome,
			&rec.ContractVersion, &rec.Lifecycle, &rec.Field, &rec.Detail, &rec.ObservedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan fetch record")
		}
		rec.Outcome = Outcome(outcome)
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "postgres: iterate fetch records")
}

// OutcomeCounts returns per-outcome totals.
func (s *PostgresStore) OutcomeCounts(ctx context.Context, domain string) (map[Outcome]int, error) {
	query := `SELECT outcome, COUNT(*) FROM fetch_audit`
	var args []any
	if domain != "" {
		query += ` WHERE domain = $1`
		args = append(args, domain)
	}
	query += ` GROUP BY outcome`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: outcome counts")
	}
	defer rows.Close()

	counts := make(map[Outcome]int)
	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan outcome count")
		}
		counts[Outcome(outcome)] = int(n)
	}
	return counts, eris.Wrap(rows.Err(), "postgres: iterate outcome counts")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
