package domain

import (
	"fmt"
	"math"
)

// WeightSumTolerance is the permitted deviation of the weight sum from 1.0.
// Weights read from YAML configuration accumulate small float errors, so the
// sum is validated with an epsilon rather than exact equality.
const WeightSumTolerance = 1e-6

// DimensionScore holds the four judge-assigned dimensions for one item.
// Each dimension is a real number in [0,1]. A DimensionScore is never
// partially present: a judge response either yields all four dimensions or
// the item is treated as failed.
type DimensionScore struct {
	// Relevance measures how closely the item matches the run's topics.
	Relevance float64 `json:"relevance"`

	// Importance measures the item's significance and impact.
	Importance float64 `json:"importance"`

	// Timeliness measures how fresh the item is.
	Timeliness float64 `json:"timeliness"`

	// Reliability measures how trustworthy the item's source is.
	Reliability float64 `json:"reliability"`
}

// InRange reports whether every dimension lies in [0,1].
func (d DimensionScore) InRange() bool {
	for _, v := range []float64{d.Relevance, d.Importance, d.Timeliness, d.Reliability} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return false
		}
	}
	return true
}

// Weights defines the contribution of each dimension to the composite score.
// A valid weight set sums to 1.0 within WeightSumTolerance.
type Weights struct {
	Relevance   float64 `json:"relevance" yaml:"relevance" validate:"min=0,max=1"`
	Importance  float64 `json:"importance" yaml:"importance" validate:"min=0,max=1"`
	Timeliness  float64 `json:"timeliness" yaml:"timeliness" validate:"min=0,max=1"`
	Reliability float64 `json:"reliability" yaml:"reliability" validate:"min=0,max=1"`
}

// DefaultWeights returns the standard weight set used by the original
// scoring formula: 0.3 relevance, 0.3 importance, 0.2 timeliness,
// 0.2 reliability.
func DefaultWeights() Weights {
	return Weights{Relevance: 0.3, Importance: 0.3, Timeliness: 0.2, Reliability: 0.2}
}

// Validate checks that the weights sum to 1.0 within tolerance.
func (w Weights) Validate() error {
	sum := w.Relevance + w.Importance + w.Timeliness + w.Reliability
	if math.Abs(sum-1.0) > WeightSumTolerance {
		return fmt.Errorf("%w: weights sum to %.6f, want 1.0", ErrInvalidWeights, sum)
	}
	return nil
}

// Composite computes the weighted composite score for the given dimensions:
// the exact weighted sum Σ(dimension_i × weight_i).
func (w Weights) Composite(d DimensionScore) float64 {
	return d.Relevance*w.Relevance +
		d.Importance*w.Importance +
		d.Timeliness*w.Timeliness +
		d.Reliability*w.Reliability
}

// Score is the judging outcome for a single item within a run. A Score is
// created at most once per item per run and never mutated afterwards;
// resuming a run reuses prior Scores unchanged.
type Score struct {
	// ItemID links the score back to its item.
	ItemID string `json:"item_id"`

	// Dimensions holds the four judge-assigned dimension scores.
	Dimensions DimensionScore `json:"dimensions"`

	// Composite is the weighted sum of the dimensions under Weights.
	Composite float64 `json:"composite"`

	// Weights records the weight set used to compute Composite, so a
	// checkpointed score remains self-describing across config changes.
	Weights Weights `json:"weights_used"`

	// Analysis is the judge's optional one-line justification.
	Analysis string `json:"analysis,omitempty"`
}

// NewScore builds a Score for an item, computing the composite locally from
// the dimensions and weights. The judge's own composite, if any, is ignored.
func NewScore(itemID string, d DimensionScore, w Weights, analysis string) Score {
	return Score{
		ItemID:     itemID,
		Dimensions: d,
		Composite:  w.Composite(d),
		Weights:    w,
		Analysis:   analysis,
	}
}

// ScoredItem pairs an item with its scoring outcome. A nil Score means the
// item failed to receive one (retries exhausted, malformed response, or a
// skipped batch); failed items are reported, never silently discarded.
type ScoredItem struct {
	Item  Item   `json:"item"`
	Score *Score `json:"score,omitempty"`
}
