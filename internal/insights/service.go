package insights

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contractor-intel/internal/store"
)

// Service runs batch insight work against the store. Per-contractor failures
// are logged and skipped; they never abort the batch.
type Service struct {
	store     store.Store
	gen       *Generator
	scorer    *Scorer
	improver  *Improver
	threshold float64
}

// NewService wires the batch insight operations.
func NewService(st store.Store, gen *Generator, scorer *Scorer, improver *Improver, threshold float64) *Service {
	return &Service{store: st, gen: gen, scorer: scorer, improver: improver, threshold: threshold}
}

// GenerateMissing generates and persists insights for contractors that have
// none, or whose content changed since the last generation. Returns the
// number generated.
func (s *Service) GenerateMissing(ctx context.Context, limit int) (int, error) {
	log := zap.L().With(zap.String("phase", "generate"))

	contractors, err := s.store.ListForInsights(ctx, store.InsightFilter{Missing: true, Stale: true, Limit: limit})
	if err != nil {
		return 0, eris.Wrap(err, "insights: list missing")
	}
	log.Info("generating insights", zap.Int("contractors", len(contractors)))

	generated := 0
	for i := range contractors {
		c := &contractors[i]
		if ctx.Err() != nil {
			return generated, ctx.Err()
		}

		insight, genErr := s.gen.Generate(ctx, c, "", "", "")
		if genErr != nil {
			log.Warn("generation failed", zap.String("contractor", c.Name), zap.Error(genErr))
			continue
		}
		if saveErr := s.store.SaveInsight(ctx, c.ProfileURL, *insight, nil); saveErr != nil {
			log.Warn("save insight failed", zap.String("contractor", c.Name), zap.Error(saveErr))
			continue
		}
		generated++
	}

	log.Info("generation complete", zap.Int("generated", generated))
	return generated, nil
}

// EvaluateUnscored judges contractors that carry an insight but no quality
// score, persisting the scores. Returns the number evaluated.
func (s *Service) EvaluateUnscored(ctx context.Context, limit int) (int, error) {
	log := zap.L().With(zap.String("phase", "evaluate"))

	contractors, err := s.store.ListForInsights(ctx, store.InsightFilter{Limit: limit})
	if err != nil {
		return 0, eris.Wrap(err, "insights: list for evaluation")
	}

	evaluated := 0
	for i := range contractors {
		c := &contractors[i]
		if c.Insight == nil || c.Quality != nil {
			continue
		}
		if ctx.Err() != nil {
			return evaluated, ctx.Err()
		}

		score, scoreErr := s.scorer.Score(ctx, c.Insight.Text, c)
		if scoreErr != nil {
			log.Warn("evaluation failed", zap.String("contractor", c.Name), zap.Error(scoreErr))
			continue
		}

		insight := *c.Insight
		insight.BelowThreshold = score.Overall < s.threshold
		if saveErr := s.store.SaveInsight(ctx, c.ProfileURL, insight, score); saveErr != nil {
			log.Warn("save score failed", zap.String("contractor", c.Name), zap.Error(saveErr))
			continue
		}

		log.Info("evaluated insight",
			zap.String("contractor", c.Name),
			zap.Float64("overall", score.Overall))
		evaluated++
	}

	log.Info("evaluation complete", zap.Int("evaluated", evaluated))
	return evaluated, nil
}

// ImproveBelowThreshold runs the improvement loop over scored contractors
// below the quality threshold, persisting the best result for each. Returns
// the number whose committed score cleared the threshold.
func (s *Service) ImproveBelowThreshold(ctx context.Context, limit int) (int, error) {
	log := zap.L().With(zap.String("phase", "improve"))

	contractors, err := s.store.ListForInsights(ctx, store.InsightFilter{BelowOverall: s.threshold, Limit: limit})
	if err != nil {
		return 0, eris.Wrap(err, "insights: list below threshold")
	}
	log.Info("improving insights", zap.Int("contractors", len(contractors)), zap.Float64("threshold", s.threshold))

	improved := 0
	for i := range contractors {
		c := &contractors[i]
		if ctx.Err() != nil {
			return improved, ctx.Err()
		}

		res, impErr := s.improver.Improve(ctx, c)
		if impErr != nil {
			log.Warn("improvement failed", zap.String("contractor", c.Name), zap.Error(impErr))
			continue
		}
		if saveErr := s.store.SaveInsight(ctx, c.ProfileURL, *res.Insight, res.Score); saveErr != nil {
			log.Warn("save improved insight failed", zap.String("contractor", c.Name), zap.Error(saveErr))
			continue
		}
		if res.Score.Overall >= s.threshold {
			improved++
		}
	}

	log.Info("improvement complete", zap.Int("improved", improved))
	return improved, nil
}

// Threshold returns the configured quality threshold.
func (s *Service) Threshold() float64 { return s.threshold }
