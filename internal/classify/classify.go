// Package classify decides how a fresh listing snapshot should be
// reconciled against the previously stored contractor record.
package classify

import (
	"math"

	"github.com/sells-group/contractor-intel/internal/model"
)

// Kind is the reconciliation category for one snapshot.
type Kind string

const (
	// KindNew means no stored record matches the snapshot identity.
	KindNew Kind = "new"
	// KindFullRefresh means at least one threshold rule fired and the full
	// profile must be re-fetched.
	KindFullRefresh Kind = "full_refresh"
	// KindMetadataOnly means only lightweight fields drifted.
	KindMetadataOnly Kind = "metadata_only"
	// KindUnchanged means nothing relevant differs.
	KindUnchanged Kind = "unchanged"
)

// Reason names a full-refresh trigger that fired.
type Reason string

const (
	ReasonPhoneChanged Reason = "phone_changed"
	ReasonURLChanged   Reason = "url_changed"
	ReasonRatingDelta  Reason = "rating_delta"
	ReasonReviewsUp    Reason = "reviews_up"
	ReasonReviewsDown  Reason = "reviews_down"
)

// Field names a lightweight metadata field that drifted.
type Field string

const (
	FieldRating   Field = "rating"
	FieldReviews  Field = "reviews"
	FieldDistance Field = "distance"
)

// Thresholds hold the change-detection bounds. These come from
// configuration, never hardcoded at call sites.
type Thresholds struct {
	// RatingDelta is the exclusive bound on |new - old| rating drift.
	RatingDelta float64 `yaml:"rating_delta" mapstructure:"rating_delta"`
	// ReviewsUp is the inclusive minimum review-count increase.
	ReviewsUp int `yaml:"reviews_up" mapstructure:"reviews_up"`
	// ReviewsDown is the inclusive minimum review-count decrease.
	ReviewsDown int `yaml:"reviews_down" mapstructure:"reviews_down"`
}

// DefaultThresholds returns the standard change-detection bounds.
func DefaultThresholds() Thresholds {
	return Thresholds{RatingDelta: 0.3, ReviewsUp: 10, ReviewsDown: 5}
}

// Outcome is the classification result for one snapshot.
type Outcome struct {
	Kind Kind
	// Reasons lists the full-refresh triggers that fired, in fixed rule
	// order. Non-empty iff Kind == KindFullRefresh.
	Reasons []Reason
	// Changed lists the drifted metadata fields. Non-empty iff
	// Kind == KindMetadataOnly.
	Changed []Field
}

// rule pairs a full-refresh reason with its predicate. Rules are evaluated
// against an immutable (stored, snapshot) pair; all firing reasons are
// accumulated before returning.
type rule struct {
	reason Reason
	fires  func(t Thresholds, old *model.Contractor, snap model.Snapshot) bool
}

var refreshRules = []rule{
	{ReasonPhoneChanged, func(_ Thresholds, old *model.Contractor, snap model.Snapshot) bool {
		return !ptrEq(old.Phone, snap.Phone)
	}},
	{ReasonURLChanged, func(_ Thresholds, old *model.Contractor, snap model.Snapshot) bool {
		return snap.ProfileURL != "" && old.ProfileURL != snap.ProfileURL
	}},
	{ReasonRatingDelta, func(t Thresholds, old *model.Contractor, snap model.Snapshot) bool {
		if old.Rating == nil || snap.Rating == nil {
			// Cannot threshold against an absent value; presence flips fall
			// through to the metadata diff.
			return false
		}
		return math.Abs(*snap.Rating-*old.Rating) > t.RatingDelta
	}},
	{ReasonReviewsUp, func(t Thresholds, old *model.Contractor, snap model.Snapshot) bool {
		if old.Reviews == nil || snap.Reviews == nil {
			return false
		}
		return *snap.Reviews-*old.Reviews >= t.ReviewsUp
	}},
	{ReasonReviewsDown, func(t Thresholds, old *model.Contractor, snap model.Snapshot) bool {
		if old.Reviews == nil || snap.Reviews == nil {
			return false
		}
		return *old.Reviews-*snap.Reviews >= t.ReviewsDown
	}},
}

// Classify compares a snapshot against the stored record (nil when no
// record matches the snapshot identity) and returns the reconciliation
// outcome. Pure and deterministic: no I/O, no clock.
func Classify(snap model.Snapshot, stored *model.Contractor, t Thresholds) Outcome {
	if stored == nil {
		return Outcome{Kind: KindNew}
	}

	var reasons []Reason
	for _, r := range refreshRules {
		if r.fires(t, stored, snap) {
			reasons = append(reasons, r.reason)
		}
	}
	if len(reasons) > 0 {
		return Outcome{Kind: KindFullRefresh, Reasons: reasons}
	}

	var changed []Field
	if !ptrEq(stored.Rating, snap.Rating) {
		changed = append(changed, FieldRating)
	}
	if !ptrEq(stored.Reviews, snap.Reviews) {
		changed = append(changed, FieldReviews)
	}
	if !ptrEq(stored.Distance, snap.Distance) {
		changed = append(changed, FieldDistance)
	}
	if len(changed) > 0 {
		return Outcome{Kind: KindMetadataOnly, Changed: changed}
	}

	return Outcome{Kind: KindUnchanged}
}

// MetadataPatch builds the store patch for a MetadataOnly outcome. Only the
// drifted fields are populated; description, certifications, fingerprint
// and insight are never part of a metadata patch.
func (o Outcome) MetadataPatch(snap model.Snapshot) model.MetadataPatch {
	var patch model.MetadataPatch
	for _, f := range o.Changed {
		switch f {
		case FieldRating:
			patch.Rating = snap.Rating
		case FieldReviews:
			patch.Reviews = snap.Reviews
		case FieldDistance:
			patch.Distance = snap.Distance
		}
	}
	return patch
}

// ptrEq treats absent as unequal to any concrete value, never as zero.
func ptrEq[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
