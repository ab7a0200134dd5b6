package insights

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contractor-intel/internal/model"
)

func newTestService(st *fakeInsightStore, client *fakeClient) *Service {
	gen := NewGenerator(client, "gen-model")
	scorer := NewScorer(client, "judge-model", model.DefaultRubricWeights())
	improver := NewImprover(gen, scorer, 3.8, 2)
	return NewService(st, gen, scorer, improver, 3.8)
}

func TestServiceGenerateMissing(t *testing.T) {
	missing := *insightContractor()
	stale := *insightContractor()
	stale.ProfileURL = "https://www.gaf.com/en-us/roofing-contractors/residential/stale-co-2"
	stale.Name = "Stale Co"
	stale.Insight = &model.Insight{Text: "old", GeneratedAt: time.Now().UTC()}
	stale.InsightStale = true

	st := newFakeInsightStore(missing, stale)
	client := &fakeClient{genOut: []string{genJSON("fresh one"), genJSON("fresh two")}}
	svc := newTestService(st, client)

	n, err := svc.GenerateMissing(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Contains(t, st.saved, missing.ProfileURL)
	assert.Equal(t, "fresh one", st.saved[missing.ProfileURL].insight.Text)
	assert.Nil(t, st.saved[missing.ProfileURL].score)
	require.Contains(t, st.saved, stale.ProfileURL)
}

func TestServiceGenerateMissingIsolatesFailures(t *testing.T) {
	a := *insightContractor()
	b := *insightContractor()
	b.ProfileURL = "https://www.gaf.com/en-us/roofing-contractors/residential/other-3"
	b.Name = "Other Roofing"

	st := newFakeInsightStore(a, b)
	client := &fakeClient{
		genOut: []string{"", genJSON("second ok")},
		genErr: []error{assert.AnError, nil},
	}
	svc := newTestService(st, client)

	n, err := svc.GenerateMissing(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NotContains(t, st.saved, a.ProfileURL)
	assert.Contains(t, st.saved, b.ProfileURL)
}

func TestServiceEvaluateUnscored(t *testing.T) {
	unscored := *insightContractor()
	unscored.Insight = &model.Insight{Text: "needs a score", GeneratedAt: time.Now().UTC()}

	st := newFakeInsightStore(unscored)
	client := &fakeClient{judgeOut: []string{judgeJSON(3, 3, 3, 3, "below bar")}}
	svc := newTestService(st, client)

	n, err := svc.EvaluateUnscored(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	saved := st.saved[unscored.ProfileURL]
	require.NotNil(t, saved.score)
	assert.InDelta(t, 3.0, saved.score.Overall, 0.001)
	assert.True(t, saved.insight.BelowThreshold)
}

func TestServiceImproveBelowThreshold(t *testing.T) {
	low := *insightContractor()
	low.Insight = &model.Insight{Text: "weak insight", GeneratedAt: time.Now().UTC()}
	low.Quality = &model.QualityScore{
		Accuracy: 3, Actionability: 3, Personalization: 3, Conciseness: 3,
		Overall: 3.0, Feedback: "generic", EvaluatedAt: time.Now().UTC(),
	}

	st := newFakeInsightStore(low)
	client := &fakeClient{
		genOut:   []string{genJSON("sharper insight")},
		judgeOut: []string{judgeJSON(4, 4, 4, 4, "good now")},
	}
	svc := newTestService(st, client)

	n, err := svc.ImproveBelowThreshold(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	saved := st.saved[low.ProfileURL]
	assert.Equal(t, "sharper insight", saved.insight.Text)
	assert.False(t, saved.insight.BelowThreshold)
	require.NotNil(t, saved.score)
	assert.InDelta(t, 4.0, saved.score.Overall, 0.001)
}
