package domain

import "fmt"

// RunSummary reports item coverage for one scoring run. Callers always see
// the full accounting of scored, failed, and checkpoint-skipped counts, so a
// partially successful run is never mistaken for a complete one.
type RunSummary struct {
	// Total is the number of candidate items handed to the scorer.
	Total int `json:"total"`

	// Scored counts items newly scored in this run. Items whose Score was
	// reused from a checkpoint are counted in FromCheckpoint instead.
	Scored int `json:"scored"`

	// Failed counts items that ended the run without a Score.
	Failed int `json:"failed"`

	// FromCheckpoint counts items whose Score was reused from a prior
	// interrupted run instead of being re-dispatched.
	FromCheckpoint int `json:"from_checkpoint"`

	// Accepted counts scored items at or above the minimum composite.
	Accepted int `json:"accepted"`

	// Rejected counts items the aggregator filtered out: composites below
	// the threshold, items past the TopN cap, and unscored items.
	Rejected int `json:"rejected"`
}

// String renders the summary in the "42 of 50 items scored" style used in
// run logs and the final report.
func (s RunSummary) String() string {
	return fmt.Sprintf("%d of %d items scored (%d from checkpoint, %d failed, %d accepted, %d rejected)",
		s.Scored, s.Total, s.FromCheckpoint, s.Failed, s.Accepted, s.Rejected)
}
