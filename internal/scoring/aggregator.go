package scoring

import (
	"fmt"
	"sort"

	"github.com/weizhiyuan62/zhilan/internal/domain"
)

// DefaultMinScore is the acceptance threshold applied when none is
// configured.
const DefaultMinScore = 0.6

// Aggregator selects the final item set from scoring output: it drops
// unscored items, applies the composite score threshold, orders the rest
// best-first, and optionally caps the count.
type Aggregator struct {
	// MinScore is the inclusive composite threshold for acceptance.
	MinScore float64

	// TopN caps how many items are returned after sorting. Zero means
	// no cap.
	TopN int
}

// NewAggregator validates the threshold and returns an aggregator.
func NewAggregator(minScore float64, topN int) (*Aggregator, error) {
	if minScore < 0 || minScore > 1 {
		return nil, fmt.Errorf("%w: min score %.3f outside [0, 1]", domain.ErrInvalidConfiguration, minScore)
	}
	if topN < 0 {
		return nil, fmt.Errorf("%w: top N cannot be negative", domain.ErrInvalidConfiguration)
	}
	return &Aggregator{MinScore: minScore, TopN: topN}, nil
}

// Select returns accepted items ordered by composite score descending.
// Items tied on composite keep their input order. Unscored items and items
// below the threshold are rejected; the summary's Accepted and Rejected
// counters are updated in place.
func (a *Aggregator) Select(items []domain.ScoredItem, summary *domain.RunSummary) []domain.ScoredItem {
	accepted := make([]domain.ScoredItem, 0, len(items))
	rejected := 0

	for _, item := range items {
		if item.Score == nil || item.Score.Composite < a.MinScore {
			rejected++
			continue
		}
		accepted = append(accepted, item)
	}

	sort.SliceStable(accepted, func(i, j int) bool {
		return accepted[i].Score.Composite > accepted[j].Score.Composite
	})

	if a.TopN > 0 && len(accepted) > a.TopN {
		rejected += len(accepted) - a.TopN
		accepted = accepted[:a.TopN]
	}

	if summary != nil {
		summary.Accepted = len(accepted)
		summary.Rejected = rejected
	}
	return accepted
}
