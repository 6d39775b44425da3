// Package report renders a run's accepted items into a markdown digest
// with summary statistics, optionally converted to HTML.
package report

import (
	"fmt"
	"sort"

	"github.com/weizhiyuan62/zhilan/internal/domain"
)

// Stats summarizes the accepted item set of a run.
type Stats struct {
	// Count is the number of accepted items.
	Count int

	// AverageComposite is the mean composite score, 0 when Count is 0.
	AverageComposite float64

	// Sources maps source name to item count, as sorted rows.
	Sources []DistributionRow

	// Dates maps publication day (YYYY-MM-DD, or "unknown") to item
	// count, as sorted rows.
	Dates []DistributionRow

	// ScoreBuckets counts items per composite score band.
	ScoreBuckets []DistributionRow
}

// DistributionRow is one labeled count in a distribution.
type DistributionRow struct {
	Label string
	Count int
}

// scoreBands are the composite bands reported, highest first.
var scoreBands = []struct {
	label    string
	min, max float64
}{
	{"0.9 - 1.0", 0.9, 1.0000001},
	{"0.8 - 0.9", 0.8, 0.9},
	{"0.7 - 0.8", 0.7, 0.8},
	{"0.6 - 0.7", 0.6, 0.7},
	{"below 0.6", 0.0, 0.6},
}

// ComputeStats builds distribution statistics over scored items. Items
// with a nil score are ignored.
func ComputeStats(items []domain.ScoredItem) Stats {
	stats := Stats{}
	sources := make(map[string]int)
	dates := make(map[string]int)
	buckets := make(map[string]int)

	var sum float64
	for _, item := range items {
		if item.Score == nil {
			continue
		}
		stats.Count++
		sum += item.Score.Composite

		sources[item.Item.SourceName]++

		day := "unknown"
		if item.Item.PublishedAt != nil {
			day = item.Item.PublishedAt.UTC().Format("2006-01-02")
		}
		dates[day]++

		for _, band := range scoreBands {
			if item.Score.Composite >= band.min && item.Score.Composite < band.max {
				buckets[band.label]++
				break
			}
		}
	}

	if stats.Count > 0 {
		stats.AverageComposite = sum / float64(stats.Count)
	}

	stats.Sources = sortedRows(sources, byCountDesc)
	stats.Dates = sortedRows(dates, byLabelDesc)
	for _, band := range scoreBands {
		if n := buckets[band.label]; n > 0 {
			stats.ScoreBuckets = append(stats.ScoreBuckets, DistributionRow{Label: band.label, Count: n})
		}
	}
	return stats
}

type rowOrder int

const (
	byCountDesc rowOrder = iota
	byLabelDesc
)

func sortedRows(m map[string]int, order rowOrder) []DistributionRow {
	rows := make([]DistributionRow, 0, len(m))
	for label, count := range m {
		rows = append(rows, DistributionRow{Label: label, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		switch order {
		case byLabelDesc:
			return rows[i].Label > rows[j].Label
		default:
			if rows[i].Count != rows[j].Count {
				return rows[i].Count > rows[j].Count
			}
			return rows[i].Label < rows[j].Label
		}
	})
	return rows
}

// String renders a compact one-line summary for logs.
func (s Stats) String() string {
	return fmt.Sprintf("%d items, average composite %.3f across %d sources",
		s.Count, s.AverageComposite, len(s.Sources))
}
