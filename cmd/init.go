package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contractor-intel/internal/insights"
	"github.com/sells-group/contractor-intel/internal/store"
	"github.com/sells-group/contractor-intel/pkg/anthropic"
)

// initStore opens the configured backend and applies migrations.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "contractor-intel.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// initInsights wires the generation loop against the Anthropic API.
func initInsights(st store.Store) (*insights.Service, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic API key is required (CONTRACTOR_ANTHROPIC_KEY)")
	}

	ai := anthropic.NewClient(cfg.Anthropic.Key)
	gen := insights.NewGenerator(ai, cfg.Anthropic.GeneratorModel)
	scorer := insights.NewScorer(ai, cfg.Anthropic.JudgeModel, cfg.Insights.Weights)
	improver := insights.NewImprover(gen, scorer, cfg.Insights.Threshold, cfg.Insights.MaxIterations)

	return insights.NewService(st, gen, scorer, improver, cfg.Insights.Threshold), nil
}
