package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLite_RecordAndList(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	rec := &FetchRecord{
		Domain:          "cfo",
		RequestID:       "req-1",
		Outcome:         OutcomeValid,
		ContractVersion: "1",
		Lifecycle:       "success",
	}
	require.NoError(t, s.RecordFetch(ctx, rec))
	assert.NotEmpty(t, rec.ID, "ID assigned when empty")
	assert.False(t, rec.ObservedAt.IsZero(), "ObservedAt assigned when empty")

	got, err := s.ListFetches(ctx, Filter{Domain: "cfo"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].ID)
	assert.Equal(t, OutcomeValid, got[0].Outcome)
	assert.Equal(t, "req-1", got[0].RequestID)
	assert.Equal(t, "success", got[0].Lifecycle)
}

func TestSQLite_ListFilters(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	records := []FetchRecord{
		{ID: "a", Domain: "cfo", Outcome: OutcomeValid, ObservedAt: base},
		{ID: "b", Domain: "cfo", Outcome: OutcomeContractViolation, Field: "cfo_version", ObservedAt: base.Add(time.Minute)},
		{ID: "c", Domain: "core", Outcome: OutcomeTransportError, ObservedAt: base.Add(2 * time.Minute)},
	}
	for i := range records {
		require.NoError(t, s.RecordFetch(ctx, &records[i]))
	}

	t.Run("by domain newest first", func(t *testing.T) {
		got, err := s.ListFetches(ctx, Filter{Domain: "cfo"})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "b", got[0].ID)
		assert.Equal(t, "a", got[1].ID)
	})

	t.Run("by outcome", func(t *testing.T) {
		got, err := s.ListFetches(ctx, Filter{Outcome: OutcomeContractViolation})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "cfo_version", got[0].Field)
	})

	t.Run("limit and offset", func(t *testing.T) {
		got, err := s.ListFetches(ctx, Filter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "b", got[0].ID)
	})

	t.Run("no match", func(t *testing.T) {
		got, err := s.ListFetches(ctx, Filter{Domain: "intelligence"})
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestSQLite_OutcomeCounts(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	for _, rec := range []FetchRecord{
		{Domain: "cfo", Outcome: OutcomeValid},
		{Domain: "cfo", Outcome: OutcomeValid},
		{Domain: "cfo", Outcome: OutcomeContractViolation},
		{Domain: "core", Outcome: OutcomeTransportError},
	} {
		r := rec
		require.NoError(t, s.RecordFetch(ctx, &r))
	}

	counts, err := s.OutcomeCounts(ctx, "cfo")
	require.NoError(t, err)
	assert.Equal(t, map[Outcome]int{
		OutcomeValid:             2,
		OutcomeContractViolation: 1,
	}, counts)

	all, err := s.OutcomeCounts(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, all[OutcomeValid]+all[OutcomeContractViolation])
	assert.Equal(t, 1, all[OutcomeTransportError])
}
