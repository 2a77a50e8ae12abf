package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return &PostgresStore{pool: mock}, mock
}

func TestPostgres_RecordFetch(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	observed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := &FetchRecord{
		ID:              "f1",
		Domain:          "cfo",
		RequestID:       "req-9",
		Outcome:         OutcomeContractViolation,
		ContractVersion: "999",
		Field:           "cfo_version",
		Detail:          `contract violation at "cfo_version"`,
		ObservedAt:      observed,
	}

	mock.ExpectExec(`INSERT INTO fetch_audit`).
		WithArgs("f1", "cfo", "req-9", "contract_violation", "999", "", "cfo_version",
			`contract violation at "cfo_version"`, observed).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.RecordFetch(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListFetches(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	observed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{
		"id", "domain", "request_id", "outcome", "contract_version", "lifecycle", "field", "detail", "observed_at",
	}).AddRow("f1", "cfo", "req-1", "valid", "1", "success", "", "", observed)

	mock.ExpectQuery(`SELECT id, domain, request_id, outcome, contract_version, lifecycle, field, detail, observed_at\s+FROM fetch_audit`).
		WithArgs("cfo", 100, 0).
		WillReturnRows(rows)

	got, err := s.ListFetches(context.Background(), Filter{Domain: "cfo"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "f1", got[0].ID)
	assert.Equal(t, OutcomeValid, got[0].Outcome)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListFetches_QueryError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, domain`).
		WithArgs(100, 0).
		WillReturnError(assert.AnError)

	_, err := s.ListFetches(context.Background(), Filter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list fetches")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_OutcomeCounts(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"outcome", "count"}).
		AddRow("valid", int64(7)).
		AddRow("transport_error", int64(2))

	mock.ExpectQuery(`SELECT outcome, COUNT\(\*\) FROM fetch_audit WHERE domain = \$1 GROUP BY outcome`).
		WithArgs("core").
		WillReturnRows(rows)

	counts, err := s.OutcomeCounts(context.Background(), "core")
	require.NoError(t, err)
	assert.Equal(t, map[Outcome]int{
		OutcomeValid:          7,
		OutcomeTransportError: 2,
	}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS fetch_audit`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
