package ports

import (
	"context"

	"github.com/weizhiyuan62/zhilan/internal/domain"
)

// Collector produces the candidate item set for a run. The scorer treats it
// as a black box: it only requires an ordered sequence of items with unique
// IDs. Implementations fetch from one or more upstream sources and
// deduplicate before returning.
type Collector interface {
	// Collect fetches items matching the topics within the time window.
	// The returned slice preserves a stable collection order.
	Collect(ctx context.Context, topics []string, window domain.TimeRange) ([]domain.Item, error)
}
