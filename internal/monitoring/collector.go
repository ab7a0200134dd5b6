// Package monitoring watches dataset health: refresh run outcomes within a
// lookback window plus insight coverage and quality aggregates.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contractor-intel/internal/model"
	"github.com/sells-group/contractor-intel/internal/store"
)

// maxRunsPerWindow bounds how many recent runs one collection inspects.
const maxRunsPerWindow = 1000

// MetricsSnapshot holds a point-in-time view of system health.
type MetricsSnapshot struct {
	// Refresh run metrics (within lookback window).
	RefreshTotal    int     `json:"refresh_total"`
	RefreshComplete int     `json:"refresh_complete"`
	RefreshFailed   int     `json:"refresh_failed"`
	RefreshRunning  int     `json:"refresh_running"`
	RefreshFailRate float64 `json:"refresh_fail_rate"`

	// Record outcome totals across the window's runs.
	RecordsFound     int `json:"records_found"`
	RecordsNew       int `json:"records_new"`
	RecordsRefreshed int `json:"records_refreshed"`
	RecordsPatched   int `json:"records_patched"`
	RecordsUnchanged int `json:"records_unchanged"`
	RecordsFailed    int `json:"records_failed"`

	// Insight coverage and quality (whole dataset).
	TotalContractors int     `json:"total_contractors"`
	WithInsights     int     `json:"with_insights"`
	StaleInsights    int     `json:"stale_insights"`
	AvgQuality       float64 `json:"avg_quality"`
	BelowThreshold   int     `json:"below_threshold"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the store.
type Collector struct {
	store            store.Store
	qualityThreshold float64
}

// NewCollector creates a metrics collector. The quality threshold feeds the
// below-threshold insight count.
func NewCollector(st store.Store, qualityThreshold float64) *Collector {
	return &Collector{store: st, qualityThreshold: qualityThreshold}
}

// Collect gathers a snapshot of system metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.store.ListRuns(ctx, store.RunFilter{Limit: maxRunsPerWindow})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	for _, r := range runs {
		if r.StartedAt.Before(cutoff) {
			continue
		}
		snap.RefreshTotal++
		switch r.Status {
		case model.RunStatusCompleted:
			snap.RefreshComplete++
		case model.RunStatusFailed:
			snap.RefreshFailed++
		case model.RunStatusRunning:
			snap.RefreshRunning++
		}
		snap.RecordsFound += r.Counters.Found
		snap.RecordsNew += r.Counters.New
		snap.RecordsRefreshed += r.Counters.FullRefreshed
		snap.RecordsPatched += r.Counters.MetadataUpdated
		snap.RecordsUnchanged += r.Counters.Unchanged
		snap.RecordsFailed += r.Counters.Failed
	}
	finished := snap.RefreshComplete + snap.RefreshFailed
	if finished > 0 {
		snap.RefreshFailRate = float64(snap.RefreshFailed) / float64(finished)
	}

	stats, err := c.store.Stats(ctx, c.qualityThreshold)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: dataset stats")
	}
	snap.TotalContractors = stats.TotalContractors
	snap.WithInsights = stats.WithInsights
	snap.StaleInsights = stats.StaleInsights
	snap.AvgQuality = stats.AvgQuality
	snap.BelowThreshold = stats.BelowThreshold

	return snap, nil
}
