package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.GeneratorModel)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.JudgeModel)
	assert.Equal(t, "https://www.gaf.com", cfg.Scrape.BaseURL)
	assert.True(t, cfg.Scrape.Headless)
	assert.Equal(t, 10, cfg.Scrape.MaxPages)
	assert.Equal(t, 25, cfg.Scrape.DefaultDistance)
	assert.InDelta(t, 0.3, cfg.Refresh.Thresholds.RatingDelta, 0.001)
	assert.Equal(t, 10, cfg.Refresh.Thresholds.ReviewsUp)
	assert.Equal(t, 5, cfg.Refresh.Thresholds.ReviewsDown)
	assert.Equal(t, 3, cfg.Refresh.FetchConcurrency)
	assert.InDelta(t, 3.8, cfg.Insights.Threshold, 0.001)
	assert.Equal(t, 2, cfg.Insights.MaxIterations)
	assert.InDelta(t, 0.40, cfg.Insights.Weights.Accuracy, 0.001)
	assert.InDelta(t, 0.30, cfg.Insights.Weights.Actionability, 0.001)
	assert.InDelta(t, 0.20, cfg.Insights.Weights.Personalization, 0.001)
	assert.InDelta(t, 0.10, cfg.Insights.Weights.Conciseness, 0.001)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
	assert.Equal(t, 24, cfg.Monitoring.LookbackWindowHours)
	assert.InDelta(t, 0.10, cfg.Monitoring.FailureRateThreshold, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/contractors
log:
  level: debug
  format: console
refresh:
  fetch_concurrency: 8
  thresholds:
    rating_delta: 0.5
insights:
  threshold: 4.2
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 8, cfg.Refresh.FetchConcurrency)
	assert.InDelta(t, 0.5, cfg.Refresh.Thresholds.RatingDelta, 0.001)
	assert.InDelta(t, 4.2, cfg.Insights.Threshold, 0.001)
	// Defaults still apply for unset values
	assert.Equal(t, 10, cfg.Refresh.Thresholds.ReviewsUp)
	assert.Equal(t, 2, cfg.Insights.MaxIterations)
}

func TestLoadRejectsBadWeights(t *testing.T) {
	chdirTemp(t)

	yaml := `
insights:
  weights:
    accuracy: 0.7
    actionability: 0.3
    personalization: 0.2
    conciseness: 0.1
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weights")
}

func TestLoadRejectsBadThresholds(t *testing.T) {
	chdirTemp(t)

	yaml := `
refresh:
  thresholds:
    rating_delta: -0.3
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	_, err := Load()
	require.Error(t, err)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	chdirTemp(t)

	yaml := `
store:
  driver: sqlite
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("CONTRACTOR_STORE_DRIVER", "postgres")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
}
