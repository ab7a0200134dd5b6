package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Snapshot is one lightweight observation of a contractor listing, taken
// from a search results page without visiting the full profile. Optional
// fields are pointers: absent is distinct from zero.
type Snapshot struct {
	SourceID       string   `json:"source_id,omitempty"`
	Name           string   `json:"name"`
	Phone          *string  `json:"phone,omitempty"`
	Location       string   `json:"location"`
	Distance       *float64 `json:"distance,omitempty"`
	Rating         *float64 `json:"rating,omitempty"`
	Reviews        *int     `json:"reviews,omitempty"`
	ProfileURL     string   `json:"profile_url"`
	Description    *string  `json:"description,omitempty"`
	Certifications []string `json:"certifications,omitempty"`
}

// Validate checks snapshot invariants.
func (s Snapshot) Validate() error {
	if s.SourceID == "" && s.ProfileURL == "" {
		return fmt.Errorf("snapshot: source id and profile url both absent")
	}
	if s.Rating != nil && (*s.Rating < 0 || *s.Rating > 5) {
		return fmt.Errorf("snapshot: rating %.2f out of range [0,5]", *s.Rating)
	}
	if s.Reviews != nil && *s.Reviews < 0 {
		return fmt.Errorf("snapshot: negative review count %d", *s.Reviews)
	}
	return nil
}

// Fingerprint returns a stable SHA-256 hex digest over the change-relevant
// fields, used to detect content drift cheaply.
func (s Snapshot) Fingerprint() string {
	var b strings.Builder
	b.WriteString(s.Name)
	b.WriteByte('|')
	if s.Phone != nil {
		b.WriteString(*s.Phone)
	}
	b.WriteByte('|')
	b.WriteString(s.Location)
	b.WriteByte('|')
	if s.Rating != nil {
		b.WriteString(strconv.FormatFloat(*s.Rating, 'f', 1, 64))
	}
	b.WriteByte('|')
	if s.Reviews != nil {
		b.WriteString(strconv.Itoa(*s.Reviews))
	}
	b.WriteByte('|')
	b.WriteString(s.ProfileURL)
	b.WriteByte('|')
	if s.Description != nil {
		b.WriteString(*s.Description)
	}
	b.WriteByte('|')
	b.WriteString(strings.Join(s.Certifications, ","))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Insight is an AI-generated sales annotation for a contractor.
type Insight struct {
	Text           string    `json:"text"`
	TalkingPoints  []string  `json:"talking_points,omitempty"`
	BelowThreshold bool      `json:"below_threshold,omitempty"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// Contractor is the persisted record for one listing, keyed uniquely by
// profile URL. SourceID, when present, is also unique.
type Contractor struct {
	ID             int64         `json:"id"`
	SourceID       string        `json:"source_id,omitempty"`
	Name           string        `json:"name"`
	Phone          *string       `json:"phone,omitempty"`
	Location       string        `json:"location"`
	Distance       *float64      `json:"distance,omitempty"`
	Rating         *float64      `json:"rating,omitempty"`
	Reviews        *int          `json:"reviews,omitempty"`
	ProfileURL     string        `json:"profile_url"`
	Description    *string       `json:"description,omitempty"`
	Certifications []string      `json:"certifications,omitempty"`
	Insight        *Insight      `json:"insight,omitempty"`
	Quality        *QualityScore `json:"quality,omitempty"`
	InsightStale   bool          `json:"insight_stale"`
	Fingerprint    string        `json:"fingerprint,omitempty"`
	LastFetchedAt  time.Time     `json:"last_fetched_at"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Snapshot projects the stored record back into snapshot form, used when
// re-fetching a profile from stored identity fields.
func (c *Contractor) Snapshot() Snapshot {
	return Snapshot{
		SourceID:       c.SourceID,
		Name:           c.Name,
		Phone:          c.Phone,
		Location:       c.Location,
		Distance:       c.Distance,
		Rating:         c.Rating,
		Reviews:        c.Reviews,
		ProfileURL:     c.ProfileURL,
		Description:    c.Description,
		Certifications: c.Certifications,
	}
}

// MetadataPatch carries the lightweight fields a metadata-only update may
// touch. Nil fields are left unchanged in the store.
type MetadataPatch struct {
	Rating   *float64
	Reviews  *int
	Distance *float64
}
