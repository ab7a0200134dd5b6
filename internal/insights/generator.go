// Package insights generates sales annotations for contractors and keeps
// them above a quality bar using a judge model and an improvement loop.
package insights

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contractor-intel/internal/model"
	"github.com/sells-group/contractor-intel/internal/resilience"
	"github.com/sells-group/contractor-intel/pkg/anthropic"
)

// Generator produces sales insights for contractors via the generation model.
type Generator struct {
	ai    anthropic.Client
	model string
	retry resilience.RetryConfig
}

// NewGenerator creates a Generator using the given model ID.
func NewGenerator(ai anthropic.Client, modelID string) *Generator {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("anthropic", "generate_insight")
	return &Generator{ai: ai, model: modelID, retry: retry}
}

// generateResponse is the JSON contract for the generation model.
type generateResponse struct {
	Insight       string   `json:"insight"`
	TalkingPoints []string `json:"talking_points"`
}

// Generate produces an insight for the contractor. A non-empty guidance
// string switches to the targeted regeneration prompt, carrying the previous
// insight and judge feedback.
func (g *Generator) Generate(ctx context.Context, c *model.Contractor, oldInsight, feedback, guidance string) (*model.Insight, error) {
	var prompt string
	if guidance == "" {
		prompt = buildGeneratePrompt(c)
	} else {
		prompt = buildRegeneratePrompt(c, oldInsight, feedback, guidance)
	}

	temp := 0.7
	resp, err := resilience.DoVal(ctx, g.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return g.ai.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       g.model,
			MaxTokens:   400,
			System:      anthropic.BuildCachedSystemBlocks(generatorSystemPrompt),
			Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
			Temperature: &temp,
		})
	})
	if err != nil {
		return nil, eris.Wrapf(err, "insights: generate for %s", c.Name)
	}
	resp.Usage.LogCost(g.model, "insight_generation")

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, eris.Errorf("insights: empty generation response for %s", c.Name)
	}

	insight := &model.Insight{GeneratedAt: time.Now().UTC()}
	if raw, ok := extractJSON(text); ok {
		var parsed generateResponse
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil && parsed.Insight != "" {
			insight.Text = strings.TrimSpace(parsed.Insight)
			insight.TalkingPoints = parsed.TalkingPoints
			return insight, nil
		}
	}

	// Model ignored the JSON contract; take the raw text as the insight.
	insight.Text = text
	return insight, nil
}
