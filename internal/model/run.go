package model

import "time"

// RunStatus represents the current state of a refresh run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// SearchParams describe one listing search.
type SearchParams struct {
	ZipCode    string `json:"zip_code" yaml:"zip_code"`
	Distance   int    `json:"distance" yaml:"distance"`
	MaxResults int    `json:"max_results,omitempty" yaml:"max_results,omitempty"`
}

// RunCounters aggregates per-outcome counts for one refresh run.
type RunCounters struct {
	Found           int `json:"found"`
	New             int `json:"new"`
	FullRefreshed   int `json:"full_refreshed"`
	MetadataUpdated int `json:"metadata_updated"`
	Unchanged       int `json:"unchanged"`
	Failed          int `json:"failed"`
}

// Run records one reconciliation pass over a batch of listing snapshots.
// Rows are append-only; a run is finalized exactly once to completed or
// failed by the pass that owns it.
type Run struct {
	ID          int64       `json:"id"`
	Params      SearchParams `json:"params"`
	Counters    RunCounters `json:"counters"`
	Status      RunStatus   `json:"status"`
	Error       string      `json:"error,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}
