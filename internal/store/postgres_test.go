package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contractor-intel/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

func TestPostgresStore_GetContractorByURL_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM contractors WHERE profile_url = \$1`).
		WithArgs("https://unknown").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetContractorByURL(context.Background(), "https://unknown")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO runs`).
		WithArgs("10013", 25, 0, "running", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	run, err := s.CreateRun(context.Background(), model.SearchParams{ZipCode: "10013", Distance: 25})
	require.NoError(t, err)
	assert.Equal(t, int64(7), run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinalizeRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET`).
		WithArgs(10, 2, 1, 3, 3, 1, "completed", pgxmock.AnyArg(), pgxmock.AnyArg(), int64(7), "running").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	run := &model.Run{
		ID:       7,
		Counters: model.RunCounters{Found: 10, New: 2, FullRefreshed: 1, MetadataUpdated: 3, Unchanged: 3, Failed: 1},
		Status:   model.RunStatusCompleted,
	}
	require.NoError(t, s.FinalizeRun(context.Background(), run))
	assert.NotNil(t, run.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinalizeRun_AlreadyFinalized(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET`).
		WithArgs(0, 0, 0, 0, 0, 0, "failed", pgxmock.AnyArg(), pgxmock.AnyArg(), int64(9), "running").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	run := &model.Run{ID: 9, Status: model.RunStatusFailed, Error: "boom"}
	err := s.FinalizeRun(context.Background(), run)
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_TouchLastFetched_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE contractors SET last_fetched_at`).
		WithArgs(pgxmock.AnyArg(), "https://unknown").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.TouchLastFetched(context.Background(), "https://unknown", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Stats(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT\s+COUNT\(\*\)`).
		WithArgs(3.8).
		WillReturnRows(pgxmock.NewRows([]string{"total", "with", "stale", "avg_rating", "avg_quality", "below"}).
			AddRow(42, 30, 5, 4.3, 4.0, 6))

	st, err := s.Stats(context.Background(), 3.8)
	require.NoError(t, err)
	assert.Equal(t, 42, st.TotalContractors)
	assert.Equal(t, 30, st.WithInsights)
	assert.Equal(t, 5, st.StaleInsights)
	assert.InDelta(t, 4.3, st.AvgRating, 0.001)
	assert.Equal(t, 6, st.BelowThreshold)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	started := time.Now().UTC().Add(-time.Hour)
	completed := time.Now().UTC()
	errMsg := "profile fetch failed"

	mock.ExpectQuery(`SELECT id, zip_code, distance, max_results`).
		WithArgs("completed", 50).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "zip_code", "distance", "max_results", "found", "new_count", "full_refreshed",
			"metadata_updated", "unchanged", "failed", "status", "error", "started_at", "completed_at",
		}).AddRow(int64(1), "10013", 25, 0, 10, 2, 1, 3, 3, 1, model.RunStatusCompleted, &errMsg, started, &completed))

	runs, err := s.ListRuns(context.Background(), RunFilter{Status: model.RunStatusCompleted})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, int64(1), runs[0].ID)
	assert.Equal(t, "profile fetch failed", runs[0].Error)
	require.NotNil(t, runs[0].CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
