package server

import (
	"context"
	"time"

	"github.com/sells-group/contractor-intel/internal/model"
	"github.com/sells-group/contractor-intel/internal/store"
)

// fakeStore serves canned responses and records the filters it was queried
// with. Write methods are unreachable from the API and panic if called.
type fakeStore struct {
	contractors []model.Contractor
	total       int
	listErr     error
	lastFilter  store.ContractorFilter

	byID map[int64]*model.Contractor

	runs          []model.Run
	lastRunFilter store.RunFilter

	stats     *store.Stats
	statsErr  error
	locations []string
}

func (f *fakeStore) GetContractorByURL(_ context.Context, _ string) (*model.Contractor, error) {
	panic("not used")
}

func (f *fakeStore) GetContractor(_ context.Context, id int64) (*model.Contractor, error) {
	if c, ok := f.byID[id]; ok {
		return c, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) UpsertContractor(_ context.Context, _ *model.Contractor) (*model.Contractor, error) {
	panic("not used")
}

func (f *fakeStore) PatchMetadata(_ context.Context, _ string, _ model.MetadataPatch, _ time.Time) error {
	panic("not used")
}

func (f *fakeStore) TouchLastFetched(_ context.Context, _ string, _ time.Time) error {
	panic("not used")
}

func (f *fakeStore) ListContractors(_ context.Context, filter store.ContractorFilter) ([]model.Contractor, int, error) {
	f.lastFilter = filter
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	return f.contractors, f.total, nil
}

func (f *fakeStore) ListLocations(_ context.Context) ([]string, error) {
	return f.locations, nil
}

func (f *fakeStore) ListForInsights(_ context.Context, _ store.InsightFilter) ([]model.Contractor, error) {
	panic("not used")
}

func (f *fakeStore) SaveInsight(_ context.Context, _ string, _ model.Insight, _ *model.QualityScore) error {
	panic("not used")
}

func (f *fakeStore) CreateRun(_ context.Context, _ model.SearchParams) (*model.Run, error) {
	panic("not used")
}

func (f *fakeStore) FinalizeRun(_ context.Context, _ *model.Run) error {
	panic("not used")
}

func (f *fakeStore) ListRuns(_ context.Context, filter store.RunFilter) ([]model.Run, error) {
	f.lastRunFilter = filter
	return f.runs, nil
}

func (f *fakeStore) Stats(_ context.Context, _ float64) (*store.Stats, error) {
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	return f.stats, nil
}

func (f *fakeStore) Migrate(_ context.Context) error { return nil }

func (f *fakeStore) Close() error { return nil }
