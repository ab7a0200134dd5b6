package insights

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contractor-intel/internal/model"
)

// loopState tracks the improvement loop's position.
type loopState int

const (
	stateScoring loopState = iota
	stateRegenerating
	stateAccepted
	stateExhausted
)

// candidate is the loop-local accumulator: the best insight/score pair seen
// across iterations. A later, worse iteration never replaces it.
type candidate struct {
	insight *model.Insight
	score   *model.QualityScore
}

// Result is the committed outcome of one improvement loop invocation.
type Result struct {
	Insight    *model.Insight
	Score      *model.QualityScore
	Iterations int
}

// Improver drives repeated generation and scoring for a contractor until the
// weighted overall clears the threshold or the iteration budget runs out.
type Improver struct {
	gen           *Generator
	scorer        *Scorer
	threshold     float64
	maxIterations int
}

// NewImprover creates an Improver with the given quality threshold and
// regeneration budget.
func NewImprover(gen *Generator, scorer *Scorer, threshold float64, maxIterations int) *Improver {
	return &Improver{gen: gen, scorer: scorer, threshold: threshold, maxIterations: maxIterations}
}

// Improve runs the quality loop for one contractor. It returns the best
// insight/score pair seen, tagged below-threshold when the budget was
// exhausted without clearing the bar. A generation or scoring failure after
// the first successful pass ends the loop and commits the best so far; a
// failure before any score exists is an error.
func (im *Improver) Improve(ctx context.Context, c *model.Contractor) (*Result, error) {
	log := zap.L().With(zap.String("contractor", c.Name))

	var (
		best       candidate
		cur        candidate
		iterations int
	)

	// Bootstrap: reuse an existing unscored insight, otherwise generate one.
	switch {
	case c.Insight != nil && c.Quality != nil:
		cur = candidate{insight: c.Insight, score: c.Quality}
	case c.Insight != nil:
		score, err := im.scorer.Score(ctx, c.Insight.Text, c)
		if err != nil {
			return nil, eris.Wrap(err, "improve: score existing insight")
		}
		cur = candidate{insight: c.Insight, score: score}
	default:
		insight, err := im.gen.Generate(ctx, c, "", "", "")
		if err != nil {
			return nil, eris.Wrap(err, "improve: initial generation")
		}
		score, err := im.scorer.Score(ctx, insight.Text, c)
		if err != nil {
			return nil, eris.Wrap(err, "improve: score initial insight")
		}
		cur = candidate{insight: insight, score: score}
	}
	best = cur

	state := stateScoring
	for state == stateScoring || state == stateRegenerating {
		switch state {
		case stateScoring:
			if cur.score.Overall > best.score.Overall {
				best = cur
			}
			switch {
			case best.score.Overall >= im.threshold:
				state = stateAccepted
			case iterations >= im.maxIterations:
				state = stateExhausted
			default:
				state = stateRegenerating
			}

		case stateRegenerating:
			guidance := identifyWeaknesses(cur.score)
			log.Info("regenerating insight",
				zap.Int("iteration", iterations+1),
				zap.Float64("overall", cur.score.Overall),
				zap.String("guidance", guidance))

			insight, err := im.gen.Generate(ctx, c, cur.insight.Text, cur.score.Feedback, guidance)
			if err != nil {
				log.Warn("regeneration failed, committing best so far", zap.Error(err))
				state = stateExhausted
				break
			}
			iterations++

			score, err := im.scorer.Score(ctx, insight.Text, c)
			if err != nil {
				log.Warn("scoring failed, committing best so far", zap.Error(err))
				state = stateExhausted
				break
			}
			cur = candidate{insight: insight, score: score}
			state = stateScoring
		}
	}

	best.insight.BelowThreshold = best.score.Overall < im.threshold
	if state == stateAccepted {
		log.Info("insight accepted",
			zap.Float64("overall", best.score.Overall),
			zap.Int("iterations", iterations))
	} else {
		log.Warn("iteration budget exhausted",
			zap.Float64("best_overall", best.score.Overall),
			zap.Float64("threshold", im.threshold),
			zap.Int("iterations", iterations))
	}

	return &Result{Insight: best.insight, Score: best.score, Iterations: iterations}, nil
}

// dimensionGuidance maps each rubric dimension to its regeneration advice.
var dimensionGuidance = map[model.Dimension]string{
	model.DimAccuracy:        "be more accurate and fact-based, referencing specific contractor data",
	model.DimActionability:   "provide clearer action items and specific materials/services the contractor might need",
	model.DimPersonalization: "make it more personalized to this contractor's unique strengths and specializations",
	model.DimConciseness:     "be more concise and avoid repetitive language",
}

// weakDimensionCutoff is the per-dimension score below which a dimension is
// called out explicitly in the regeneration guidance.
const weakDimensionCutoff = 3.5

// identifyWeaknesses builds targeted guidance from a score. Every dimension
// below the cutoff is named in fixed dimension order; if none is, the single
// weakest dimension is targeted (ties break in the same fixed order).
func identifyWeaknesses(score *model.QualityScore) string {
	var issues []string
	for _, d := range model.Dimensions {
		if score.Dimension(d) < weakDimensionCutoff {
			issues = append(issues, dimensionGuidance[d])
		}
	}
	if len(issues) == 0 {
		weakest := score.WeakestDimension()
		issues = append(issues, fmt.Sprintf("improve %s", weakest))
	}
	return strings.Join(issues, ", ")
}
