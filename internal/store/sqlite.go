package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given DSN and configures WAL
// mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS fetch_audit (
	id               TEXT PRIMARY KEY,
	domain           TEXT NOT NULL,
	request_id       TEXT,
	outcome          TEXT NOT NULL,
	contract_version TEXT,
	lifecycle        TEXT,
	field            TEXT,
	detail           TEXT,
	observed_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fetch_audit_domain ON fetch_audit(domain, observed_at DESC);
CREATE INDEX IF NOT EXISTS idx_fetch_audit_outcome ON fetch_audit(outcome);
`

// Migrate creates the audit schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	return nil
}

// RecordFetch appends one fetch outcome.
func (s *SQLiteStore) RecordFetch(ctx context.Context, rec *FetchRecord) error {
	stampRecord(rec)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fetch_audit (id, domain, request_id, outcome, contract_version, lifecycle, field, detail, observed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Domain, rec.RequestID, string(rec.Outcome),
		rec.ContractVersion, rec.Lifecycle, rec.Field, rec.Detail, rec.ObservedAt.UTC(),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: record fetch")
	}
	return nil
}

// ListFetches returns matching records, newest first.
func (s *SQLiteStore) ListFetches(ctx context.Context, f Filter) ([]FetchRecord, error) {
	query := `SELECT id, domain, request_id, outcome, contract_version, lifecycle, field, detail, observed_at
		FROM fetch_audit WHERE 1=1`
	var args []any
	if f.Domain != "" {
		query += " AND domain = ?"
		args = append(args, f.Domain)
	}
	if f.Outcome != "" {
		query += " AND outcome = ?"
		args = append(args, string(f.Outcome))
	}
	query += " ORDER BY observed_at DESC, id DESC LIMIT ? OFFSET ?"

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list fetches")
	}
	defer rows.Close()

	var records []FetchRecord
	for rows.Next() {
		var rec FetchRecord
		var outcome string
		if err := rows.Scan(&rec.ID, &rec.Domain, &rec.RequestID, &outcome,
			&rec.ContractVersion, &rec.Lifecycle, &rec.Field, &rec.Detail, &rec.ObservedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan fetch record")
		}
		rec.Outcome = Outcome(outcome)
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: iterate fetch records")
}

// OutcomeCounts returns per-outcome totals.
func (s *SQLiteStore) OutcomeCounts(ctx context.Context, domain string) (map[Outcome]int, error) {
	query := `SELECT outcome, COUNT(*) FROM fetch_audit`
	var args []any
	if domain != "" {
		query += " WHERE domain = ?"
		args = append(args, domain)
	}
	query += " GROUP BY outcome"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: outcome counts")
	}
	defer rows.Close()

	counts := make(map[Outcome]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan outcome count")
		}
		counts[Outcome(outcome)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: iterate outcome counts")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func stampRecord(rec *FetchRecord) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.ObservedAt.IsZero() {
		rec.ObservedAt = time.Now().UTC()
	}
}
