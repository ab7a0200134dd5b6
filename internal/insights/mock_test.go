package insights

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contractor-intel/internal/model"
	"github.com/sells-group/contractor-intel/internal/store"
	"github.com/sells-group/contractor-intel/pkg/anthropic"
)

// fakeClient implements anthropic.Client with scripted responses. Requests
// are routed to the generator or judge queue by system prompt.
type fakeClient struct {
	mu sync.Mutex

	genOut   []string
	genErr   []error
	judgeOut []string
	judgeErr []error

	genCalls     int
	judgeCalls   int
	genPrompts   []string
	judgePrompts []string
}

func (f *fakeClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	system := ""
	if len(req.System) > 0 {
		system = req.System[0].Text
	}
	user := ""
	if len(req.Messages) > 0 {
		user = req.Messages[0].Content
	}

	if strings.Contains(system, "expert evaluator") {
		idx := f.judgeCalls
		f.judgeCalls++
		f.judgePrompts = append(f.judgePrompts, user)
		if idx < len(f.judgeErr) && f.judgeErr[idx] != nil {
			return nil, f.judgeErr[idx]
		}
		if idx >= len(f.judgeOut) {
			return nil, eris.New("fake: judge queue exhausted")
		}
		return textResponse(f.judgeOut[idx]), nil
	}

	idx := f.genCalls
	f.genCalls++
	f.genPrompts = append(f.genPrompts, user)
	if idx < len(f.genErr) && f.genErr[idx] != nil {
		return nil, f.genErr[idx]
	}
	if idx >= len(f.genOut) {
		return nil, eris.New("fake: generator queue exhausted")
	}
	return textResponse(f.genOut[idx]), nil
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		ID:         "msg_fake",
		Content:    []anthropic.ContentBlock{{Type: "text", Text: text}},
		StopReason: "end_turn",
	}
}

// judgeJSON builds a judge response payload.
func judgeJSON(acc, act, pers, conc float64, feedback string) string {
	return fmt.Sprintf(`{"accuracy": %g, "actionability": %g, "personalization": %g, "conciseness": %g, "feedback": %q}`,
		acc, act, pers, conc, feedback)
}

// genJSON builds a generator response payload.
func genJSON(insight string, points ...string) string {
	quoted := make([]string, len(points))
	for i, p := range points {
		quoted[i] = fmt.Sprintf("%q", p)
	}
	return fmt.Sprintf(`{"insight": %q, "talking_points": [%s]}`, insight, strings.Join(quoted, ", "))
}

// testContractor returns a contractor fixture for prompt and loop tests.
func insightContractor() *model.Contractor {
	rating := 4.5
	reviews := 120
	desc := "Family-owned roofing company serving northern New Jersey since 1987."
	return &model.Contractor{
		ID:             1,
		Name:           "Apex Roofing",
		Location:       "Wayne, NJ",
		Rating:         &rating,
		Reviews:        &reviews,
		Description:    &desc,
		Certifications: []string{"Master Elite", "Certified Installer"},
		ProfileURL:     "https://www.gaf.com/en-us/roofing-contractors/residential/apex-roofing-1",
		LastFetchedAt:  time.Now().UTC(),
	}
}

// fakeInsightStore implements store.Store for Service tests. Only the
// insight-related methods do real work.
type fakeInsightStore struct {
	contractors []model.Contractor
	saved       map[string]savedInsight
	saveErr     error
}

type savedInsight struct {
	insight model.Insight
	score   *model.QualityScore
}

func newFakeInsightStore(contractors ...model.Contractor) *fakeInsightStore {
	return &fakeInsightStore{contractors: contractors, saved: map[string]savedInsight{}}
}

func (f *fakeInsightStore) ListForInsights(_ context.Context, filter store.InsightFilter) ([]model.Contractor, error) {
	var out []model.Contractor
	for _, c := range f.contractors {
		switch {
		case filter.Missing && c.Insight == nil,
			filter.Stale && c.InsightStale,
			filter.BelowOverall > 0 && c.Quality != nil && c.Quality.Overall < filter.BelowOverall:
			out = append(out, c)
		case !filter.Missing && !filter.Stale && filter.BelowOverall == 0:
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeInsightStore) SaveInsight(_ context.Context, profileURL string, insight model.Insight, score *model.QualityScore) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved[profileURL] = savedInsight{insight: insight, score: score}
	return nil
}

func (f *fakeInsightStore) GetContractorByURL(context.Context, string) (*model.Contractor, error) {
	return nil, store.ErrNotFound
}

func (f *fakeInsightStore) GetContractor(context.Context, int64) (*model.Contractor, error) {
	return nil, store.ErrNotFound
}

func (f *fakeInsightStore) UpsertContractor(_ context.Context, c *model.Contractor) (*model.Contractor, error) {
	return c, nil
}

func (f *fakeInsightStore) PatchMetadata(context.Context, string, model.MetadataPatch, time.Time) error {
	return nil
}

func (f *fakeInsightStore) TouchLastFetched(context.Context, string, time.Time) error { return nil }

func (f *fakeInsightStore) ListContractors(context.Context, store.ContractorFilter) ([]model.Contractor, int, error) {
	return nil, 0, nil
}

func (f *fakeInsightStore) ListLocations(context.Context) ([]string, error) { return nil, nil }

func (f *fakeInsightStore) CreateRun(context.Context, model.SearchParams) (*model.Run, error) {
	return &model.Run{}, nil
}

func (f *fakeInsightStore) FinalizeRun(context.Context, *model.Run) error { return nil }

func (f *fakeInsightStore) ListRuns(context.Context, store.RunFilter) ([]model.Run, error) {
	return nil, nil
}

func (f *fakeInsightStore) Stats(context.Context, float64) (*store.Stats, error) {
	return &store.Stats{}, nil
}

func (f *fakeInsightStore) Migrate(context.Context) error { return nil }
func (f *fakeInsightStore) Close() error                  { return nil }
