package model

import (
	"math"
	"time"

	"github.com/rotisserie/eris"
)

// Dimension is one weighted axis of insight quality.
type Dimension string

const (
	DimAccuracy        Dimension = "accuracy"
	DimActionability   Dimension = "actionability"
	DimPersonalization Dimension = "personalization"
	DimConciseness     Dimension = "conciseness"
)

// Dimensions lists the rubric dimensions in fixed order. The order doubles
// as the tie-break when identifying the weakest dimension.
var Dimensions = []Dimension{DimAccuracy, DimActionability, DimPersonalization, DimConciseness}

// RubricWeights holds per-dimension weights for the overall score.
type RubricWeights struct {
	Accuracy        float64 `yaml:"accuracy" mapstructure:"accuracy"`
	Actionability   float64 `yaml:"actionability" mapstructure:"actionability"`
	Personalization float64 `yaml:"personalization" mapstructure:"personalization"`
	Conciseness     float64 `yaml:"conciseness" mapstructure:"conciseness"`
}

// DefaultRubricWeights returns the standard rubric weighting.
func DefaultRubricWeights() RubricWeights {
	return RubricWeights{
		Accuracy:        0.40,
		Actionability:   0.30,
		Personalization: 0.20,
		Conciseness:     0.10,
	}
}

// Validate checks that the weights form a proper convex combination.
func (w RubricWeights) Validate() error {
	for _, v := range []float64{w.Accuracy, w.Actionability, w.Personalization, w.Conciseness} {
		if v < 0 {
			return eris.Errorf("model: negative rubric weight %.3f", v)
		}
	}
	sum := w.Accuracy + w.Actionability + w.Personalization + w.Conciseness
	if math.Abs(sum-1.0) > 1e-6 {
		return eris.Errorf("model: rubric weights sum to %.3f, want 1.0", sum)
	}
	return nil
}

// QualityScore holds judge-assigned rubric scores for one insight. All four
// dimensions are always present; Overall is derived and recomputed whenever
// a dimension changes.
type QualityScore struct {
	Accuracy        float64   `json:"accuracy"`
	Actionability   float64   `json:"actionability"`
	Personalization float64   `json:"personalization"`
	Conciseness     float64   `json:"conciseness"`
	Overall         float64   `json:"overall"`
	Feedback        string    `json:"feedback,omitempty"`
	ClampNotes      []string  `json:"clamp_notes,omitempty"`
	EvaluatedAt     time.Time `json:"evaluated_at"`
}

// Dimension returns the score for the named dimension.
func (q *QualityScore) Dimension(d Dimension) float64 {
	switch d {
	case DimAccuracy:
		return q.Accuracy
	case DimActionability:
		return q.Actionability
	case DimPersonalization:
		return q.Personalization
	case DimConciseness:
		return q.Conciseness
	}
	return 0
}

// Recompute sets Overall from the dimensions under the given weights,
// rounded to two decimals.
func (q *QualityScore) Recompute(w RubricWeights) {
	overall := q.Accuracy*w.Accuracy +
		q.Actionability*w.Actionability +
		q.Personalization*w.Personalization +
		q.Conciseness*w.Conciseness
	q.Overall = math.Round(overall*100) / 100
}

// WeakestDimension returns the lowest-scoring dimension. Ties break in
// fixed dimension order (accuracy first).
func (q *QualityScore) WeakestDimension() Dimension {
	weakest := Dimensions[0]
	low := q.Dimension(weakest)
	for _, d := range Dimensions[1:] {
		if q.Dimension(d) < low {
			weakest = d
			low = q.Dimension(d)
		}
	}
	return weakest
}
