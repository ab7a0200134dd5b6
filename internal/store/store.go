// Package store persists contractors and refresh runs. Two backends are
// provided: SQLite (default, zero-setup) and PostgreSQL.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contractor-intel/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = eris.New("store: not found")

// ErrAlreadyFinalized is returned when finalizing a run that is no longer
// in running status.
var ErrAlreadyFinalized = eris.New("store: run already finalized")

// ContractorFilter specifies criteria for listing contractors.
type ContractorFilter struct {
	Location   string  `json:"location,omitempty"`
	MinRating  float64 `json:"min_rating,omitempty"`
	MinReviews int     `json:"min_reviews,omitempty"`
	Search     string  `json:"search,omitempty"`
	SortBy     string  `json:"sort_by,omitempty"`
	SortDesc   bool    `json:"sort_desc,omitempty"`
	Limit      int     `json:"limit,omitempty"`
	Offset     int     `json:"offset,omitempty"`
}

// InsightFilter selects contractors for insight work.
type InsightFilter struct {
	// Missing selects contractors with no insight at all.
	Missing bool
	// Stale selects contractors whose content changed since the last
	// insight generation.
	Stale bool
	// BelowOverall, when positive, selects scored contractors whose
	// weighted overall is strictly below the value.
	BelowOverall float64
	Limit        int
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
}

// Stats is an aggregate view over the stored dataset.
type Stats struct {
	TotalContractors int     `json:"total_contractors"`
	WithInsights     int     `json:"with_insights"`
	StaleInsights    int     `json:"stale_insights"`
	AvgRating        float64 `json:"avg_rating"`
	AvgQuality       float64 `json:"avg_quality"`
	BelowThreshold   int     `json:"below_threshold"`
}

// Store defines the persistence interface for the contractor dataset.
type Store interface {
	// Contractors
	GetContractorByURL(ctx context.Context, profileURL string) (*model.Contractor, error)
	GetContractor(ctx context.Context, id int64) (*model.Contractor, error)
	// UpsertContractor writes all content fields keyed by profile URL,
	// preserving any existing insight and quality columns.
	UpsertContractor(ctx context.Context, c *model.Contractor) (*model.Contractor, error)
	// PatchMetadata updates only the non-nil patch fields plus the fetch
	// timestamp; fingerprint, insight, and quality are untouched.
	PatchMetadata(ctx context.Context, profileURL string, patch model.MetadataPatch, fetchedAt time.Time) error
	TouchLastFetched(ctx context.Context, profileURL string, at time.Time) error
	ListContractors(ctx context.Context, filter ContractorFilter) ([]model.Contractor, int, error)
	ListLocations(ctx context.Context) ([]string, error)

	// Insights
	ListForInsights(ctx context.Context, filter InsightFilter) ([]model.Contractor, error)
	SaveInsight(ctx context.Context, profileURL string, insight model.Insight, score *model.QualityScore) error

	// Runs (append-only; finalized exactly once)
	CreateRun(ctx context.Context, params model.SearchParams) (*model.Run, error)
	FinalizeRun(ctx context.Context, run *model.Run) error
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Aggregates
	Stats(ctx context.Context, qualityThreshold float64) (*Stats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// contractorSortColumns whitelists sortable columns to keep user-supplied
// sort keys out of SQL.
var contractorSortColumns = map[string]string{
	"name":       "name",
	"rating":     "rating",
	"reviews":    "reviews",
	"distance":   "distance",
	"quality":    "eval_overall",
	"updated_at": "updated_at",
}

func sortColumn(key string) string {
	if col, ok := contractorSortColumns[key]; ok {
		return col
	}
	return "updated_at"
}
