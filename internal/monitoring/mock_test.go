package monitoring

import (
	"context"
	"time"

	"github.com/sells-group/contractor-intel/internal/model"
	"github.com/sells-group/contractor-intel/internal/store"
)

// mockStore feeds the collector canned runs and stats.
type mockStore struct {
	runs     []model.Run
	runsErr  error
	stats    store.Stats
	statsErr error
}

func (m *mockStore) GetContractorByURL(_ context.Context, _ string) (*model.Contractor, error) {
	return nil, store.ErrNotFound
}

func (m *mockStore) GetContractor(_ context.Context, _ int64) (*model.Contractor, error) {
	return nil, store.ErrNotFound
}

func (m *mockStore) UpsertContractor(_ context.Context, c *model.Contractor) (*model.Contractor, error) {
	return c, nil
}

func (m *mockStore) PatchMetadata(_ context.Context, _ string, _ model.MetadataPatch, _ time.Time) error {
	return nil
}

func (m *mockStore) TouchLastFetched(_ context.Context, _ string, _ time.Time) error {
	return nil
}

func (m *mockStore) ListContractors(_ context.Context, _ store.ContractorFilter) ([]model.Contractor, int, error) {
	return nil, 0, nil
}

func (m *mockStore) ListLocations(_ context.Context) ([]string, error) { return nil, nil }

func (m *mockStore) ListForInsights(_ context.Context, _ store.InsightFilter) ([]model.Contractor, error) {
	return nil, nil
}

func (m *mockStore) SaveInsight(_ context.Context, _ string, _ model.Insight, _ *model.QualityScore) error {
	return nil
}

func (m *mockStore) CreateRun(_ context.Context, params model.SearchParams) (*model.Run, error) {
	return &model.Run{Params: params, Status: model.RunStatusRunning}, nil
}

func (m *mockStore) FinalizeRun(_ context.Context, _ *model.Run) error { return nil }

func (m *mockStore) ListRuns(_ context.Context, _ store.RunFilter) ([]model.Run, error) {
	return m.runs, m.runsErr
}

func (m *mockStore) Stats(_ context.Context, _ float64) (*store.Stats, error) {
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	s := m.stats
	return &s, nil
}

func (m *mockStore) Migrate(_ context.Context) error { return nil }

func (m *mockStore) Close() error { return nil }
