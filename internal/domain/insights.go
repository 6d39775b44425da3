package domain

// Insights is the run-level synthesis the judge produces over the accepted
// item set, complementing the per-item scores. A run without insights is
// still complete; the report simply omits the synthesis sections.
type Insights struct {
	// Summary is a short executive summary of the accepted set as a whole.
	Summary string `json:"summary"`

	// KeyPoints lists the most significant individual developments.
	KeyPoints []string `json:"key_points,omitempty"`

	// Trends lists patterns that span multiple items.
	Trends []string `json:"trends,omitempty"`
}
