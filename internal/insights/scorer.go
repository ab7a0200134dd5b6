package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contractor-intel/internal/model"
	"github.com/sells-group/contractor-intel/internal/resilience"
	"github.com/sells-group/contractor-intel/pkg/anthropic"
)

// Scorer evaluates insights with the judge model against the fixed rubric.
type Scorer struct {
	ai      anthropic.Client
	model   string
	weights model.RubricWeights
	retry   resilience.RetryConfig
}

// NewScorer creates a Scorer using the given judge model ID and weights.
func NewScorer(ai anthropic.Client, modelID string, weights model.RubricWeights) *Scorer {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("anthropic", "judge_insight")
	return &Scorer{ai: ai, model: modelID, weights: weights, retry: retry}
}

// judgeResponse is the JSON contract for the judge model.
type judgeResponse struct {
	Accuracy        float64 `json:"accuracy"`
	Actionability   float64 `json:"actionability"`
	Personalization float64 `json:"personalization"`
	Conciseness     float64 `json:"conciseness"`
	Feedback        string  `json:"feedback"`
}

// Score judges the given insight text for the contractor. Out-of-range
// dimension scores are clamped to [1,5] with a recorded clamp note; they are
// never an error.
func (s *Scorer) Score(ctx context.Context, insightText string, c *model.Contractor) (*model.QualityScore, error) {
	prompt := buildJudgePrompt(c, insightText)

	temp := 0.3
	resp, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return s.ai.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       s.model,
			MaxTokens:   400,
			System:      anthropic.BuildCachedSystemBlocks(judgeSystemPrompt),
			Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
			Temperature: &temp,
		})
	})
	if err != nil {
		return nil, eris.Wrapf(err, "insights: judge for %s", c.Name)
	}
	resp.Usage.LogCost(s.model, "insight_evaluation")

	text := strings.TrimSpace(resp.Text())
	raw, ok := extractJSON(text)
	if !ok {
		return nil, eris.Errorf("insights: no JSON in judge response: %s", text)
	}

	var parsed judgeResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, eris.Wrap(err, "insights: parse judge response")
	}

	score := &model.QualityScore{
		Feedback:    parsed.Feedback,
		EvaluatedAt: time.Now().UTC(),
	}
	score.Accuracy = clampDimension(model.DimAccuracy, parsed.Accuracy, score)
	score.Actionability = clampDimension(model.DimActionability, parsed.Actionability, score)
	score.Personalization = clampDimension(model.DimPersonalization, parsed.Personalization, score)
	score.Conciseness = clampDimension(model.DimConciseness, parsed.Conciseness, score)
	score.Recompute(s.weights)

	return score, nil
}

// clampDimension bounds a raw judge score to [1,5], recording any clamp on
// the score's notes.
func clampDimension(d model.Dimension, v float64, score *model.QualityScore) float64 {
	switch {
	case v < 1:
		score.ClampNotes = append(score.ClampNotes,
			fmt.Sprintf("%s score %.1f clamped to 1.0", d, v))
		return 1
	case v > 5:
		score.ClampNotes = append(score.ClampNotes,
			fmt.Sprintf("%s score %.1f clamped to 5.0", d, v))
		return 5
	}
	return v
}
