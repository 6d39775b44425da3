// Package collect gathers candidate items from upstream sources: web
// search, news APIs, and preprint feeds. Sources are fetched concurrently
// per topic, then merged with exact and near-duplicate filtering so the
// scorer sees each story once.
package collect

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/agnivade/levenshtein"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"

	"github.com/weizhiyuan62/zhilan/internal/domain"
	"github.com/weizhiyuan62/zhilan/internal/ports"
)

// DefaultFetchConcurrency bounds simultaneous upstream fetches across all
// source and topic pairs.
const DefaultFetchConcurrency = 3

// titleSimilarityThreshold marks two titles as the same story. Titles at
// or above this normalized similarity collapse into one item.
const titleSimilarityThreshold = 0.9

// Source fetches items for one topic from one upstream.
type Source interface {
	// Name identifies the source in logs and item metadata.
	Name() string

	// Fetch returns items for the topic. Implementations filter by the
	// window where the upstream supports it; the collector re-filters
	// regardless.
	Fetch(ctx context.Context, topic string, window domain.TimeRange) ([]domain.Item, error)
}

// MultiSourceCollector implements ports.Collector by fanning fetches out
// across sources and topics, then deduplicating the merged result. A
// failing source is logged and skipped; the run proceeds with whatever the
// healthy sources returned.
type MultiSourceCollector struct {
	sources     []Source
	concurrency int
	logger      *slog.Logger
	folder      cases.Caser
}

var _ ports.Collector = (*MultiSourceCollector)(nil)

// NewMultiSourceCollector builds a collector over the given sources.
func NewMultiSourceCollector(sources []Source, concurrency int, logger *slog.Logger) (*MultiSourceCollector, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: at least one source is required", domain.ErrInvalidConfiguration)
	}
	if concurrency <= 0 {
		concurrency = DefaultFetchConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiSourceCollector{
		sources:     sources,
		concurrency: concurrency,
		logger:      logger.With("component", "collector"),
		folder:      cases.Fold(),
	}, nil
}

// Collect fetches every source for every topic and returns the merged,
// deduplicated item list. Order is stable: sources in registration order,
// topics in argument order, items in source order.
func (c *MultiSourceCollector) Collect(ctx context.Context, topics []string, window domain.TimeRange) ([]domain.Item, error) {
	if len(topics) == 0 {
		return nil, fmt.Errorf("%w: no topics to collect", domain.ErrEmptyValue)
	}

	type fetchResult struct {
		order int
		items []domain.Item
	}

	var (
		mu      sync.Mutex
		results []fetchResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	order := 0
	for _, source := range c.sources {
		for _, topic := range topics {
			idx := order
			order++
			g.Go(func() error {
				items, err := source.Fetch(gctx, topic, window)
				if err != nil {
					// One bad upstream should not starve the run.
					c.logger.Warn("source fetch failed",
						"source", source.Name(),
						"topic", topic,
						"error", err)
					return nil
				}
				c.logger.Debug("source fetch complete",
					"source", source.Name(),
					"topic", topic,
					"items", len(items))

				mu.Lock()
				results = append(results, fetchResult{order: idx, items: items})
				mu.Unlock()
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Restore deterministic order before deduplication so the "first
	// seen wins" rule is stable across runs.
	merged := make([]domain.Item, 0)
	for want := 0; want < order; want++ {
		for _, r := range results {
			if r.order == want {
				merged = append(merged, r.items...)
				break
			}
		}
	}

	deduped := c.dedupe(merged, window)
	c.logger.Info("collection complete",
		"topics", len(topics),
		"sources", len(c.sources),
		"collected", len(merged),
		"after_dedup", len(deduped))
	return deduped, nil
}

// dedupe drops items outside the window, exact ID duplicates, and items
// whose titles are near-identical to one already kept.
func (c *MultiSourceCollector) dedupe(items []domain.Item, window domain.TimeRange) []domain.Item {
	seen := make(map[string]bool, len(items))
	keptTitles := make([]string, 0, len(items))
	kept := make([]domain.Item, 0, len(items))

	for _, item := range items {
		if item.Title == "" || item.URL == "" {
			continue
		}
		if !window.Contains(item.PublishedAt) {
			continue
		}
		if seen[item.ID] {
			continue
		}

		folded := c.folder.String(item.Title)
		if c.nearDuplicate(folded, keptTitles) {
			c.logger.Debug("dropping near-duplicate title", "title", item.Title)
			continue
		}

		seen[item.ID] = true
		keptTitles = append(keptTitles, folded)
		kept = append(kept, item)
	}
	return kept
}

func (c *MultiSourceCollector) nearDuplicate(folded string, keptTitles []string) bool {
	for _, prior := range keptTitles {
		if titleSimilarity(folded, prior) >= titleSimilarityThreshold {
			return true
		}
	}
	return false
}

// titleSimilarity computes normalized edit-distance similarity in [0, 1].
func titleSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len([]rune(a))
	if lb := len([]rune(b)); lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	distance := levenshtein.ComputeDistance(a, b)
	return 1 - float64(distance)/float64(longest)
}
