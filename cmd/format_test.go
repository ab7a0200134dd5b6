package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/contractor-intel/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	started := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	completed := started.Add(90 * time.Second)

	var buf bytes.Buffer
	formatRunsList(&buf, []model.Run{
		{
			ID:          7,
			Params:      model.SearchParams{ZipCode: "10013", Distance: 25},
			Counters:    model.RunCounters{Found: 20, New: 3, FullRefreshed: 2, MetadataUpdated: 5, Unchanged: 9, Failed: 1},
			Status:      model.RunStatusCompleted,
			StartedAt:   started,
			CompletedAt: &completed,
		},
		{
			ID:        8,
			Params:    model.SearchParams{ZipCode: "07470"},
			Status:    model.RunStatusRunning,
			StartedAt: started,
		},
	})

	out := buf.String()
	assert.Contains(t, out, "10013")
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "1m30s")
	assert.Contains(t, out, "running")
	assert.Contains(t, out, "2026-08-30 09:00")
}

func TestFormatContractorsList(t *testing.T) {
	rating := 4.5
	reviews := 120

	var buf bytes.Buffer
	formatContractorsList(&buf, []model.Contractor{
		{
			ID:       1,
			Name:     "Apex Roofing",
			Location: "Wayne, NJ",
			Rating:   &rating,
			Reviews:  &reviews,
			Quality: &model.QualityScore{
				Overall: 4.12,
			},
		},
		{
			ID:           2,
			Name:         "A Contractor With A Very Long Business Name LLC",
			Location:     "Brooklyn, NY",
			InsightStale: true,
		},
	})

	out := buf.String()
	assert.Contains(t, out, "Apex Roofing")
	assert.Contains(t, out, "4.5")
	assert.Contains(t, out, "4.12")
	assert.Contains(t, out, "yes")
	assert.Contains(t, out, "...")
	assert.NotContains(t, out, "A Contractor With A Very Long Business Name LLC")
}
