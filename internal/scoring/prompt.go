// Package scoring implements the batched judge-scoring pipeline: items are
// grouped into batches, each batch is sent to the LLM judge as a single
// prompt, and the structured response is parsed back into per-item
// dimension scores. A checkpoint records completed work so interrupted runs
// resume without re-scoring.
package scoring

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/weizhiyuan62/zhilan/internal/domain"
)

// DefaultPromptTemplate renders one batch of items for the judge. Each item
// carries its ID so responses can be correlated back regardless of order.
const DefaultPromptTemplate = `You are an expert analyst evaluating {{.Topic}} content. Score each item below on four dimensions, each from 0.0 to 1.0:

- relevance: how directly the item concerns {{.Topic}}
- importance: the significance of the development described
- timeliness: how recent and current the information is
- reliability: the credibility of the source and claims

Items:
{{range .Items}}
[id: {{.ID}}]
Title: {{.Title}}
Source: {{.SourceName}}{{if .PublishedAt}}
Published: {{.PublishedAt.Format "2006-01-02"}}{{end}}
Summary: {{.Summary}}
{{end}}
Respond with a JSON array containing one object per item. Echo each item's id exactly. Use this format:
[{"id": "<item id>", "relevance": 0.0, "importance": 0.0, "timeliness": 0.0, "reliability": 0.0, "analysis": "<one sentence rationale>"}]

Return only the JSON array, no other text.`

// maxSummaryRunes bounds how much body text goes into the prompt per item.
const maxSummaryRunes = 600

// promptItem is the per-item view exposed to the template.
type promptItem struct {
	ID          string
	Title       string
	SourceName  string
	PublishedAt *time.Time
	Summary     string
}

// PromptBuilder renders batch prompts from a compiled template.
type PromptBuilder struct {
	tmpl  *template.Template
	topic string
}

// NewPromptBuilder compiles the template text, or DefaultPromptTemplate
// when text is empty. The topic is interpolated into the judging criteria.
func NewPromptBuilder(text, topic string) (*PromptBuilder, error) {
	if text == "" {
		text = DefaultPromptTemplate
	}
	if topic == "" {
		topic = "the configured topics"
	}
	tmpl, err := template.New("batchPrompt").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}
	return &PromptBuilder{tmpl: tmpl, topic: topic}, nil
}

// Build renders the prompt for one batch of items.
func (b *PromptBuilder) Build(items []domain.Item) (string, error) {
	view := struct {
		Topic string
		Items []promptItem
	}{Topic: b.topic, Items: make([]promptItem, 0, len(items))}

	for _, item := range items {
		view.Items = append(view.Items, promptItem{
			ID:          item.ID,
			Title:       item.Title,
			SourceName:  item.SourceName,
			PublishedAt: item.PublishedAt,
			Summary:     truncateRunes(item.Body, maxSummaryRunes),
		})
	}

	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buf.String(), nil
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// judgeEntry is the expected JSON shape of one element in the judge's
// response array. Dimension fields are pointers so a missing field fails
// validation instead of silently reading as zero.
type judgeEntry struct {
	// ID must echo the item ID from the prompt.
	ID string `json:"id" validate:"required"`

	// The four dimension scores, each in [0, 1].
	Relevance   *float64 `json:"relevance" validate:"required"`
	Importance  *float64 `json:"importance" validate:"required"`
	Timeliness  *float64 `json:"timeliness" validate:"required"`
	Reliability *float64 `json:"reliability" validate:"required"`

	// Analysis is the judge's free-text rationale.
	Analysis string `json:"analysis"`
}

// dimensions converts the entry into a DimensionScore, checking bounds.
func (e *judgeEntry) dimensions() (domain.DimensionScore, error) {
	d := domain.DimensionScore{
		Relevance:   *e.Relevance,
		Importance:  *e.Importance,
		Timeliness:  *e.Timeliness,
		Reliability: *e.Reliability,
	}
	if !d.InRange() {
		return domain.DimensionScore{}, fmt.Errorf("entry %s: dimension score outside [0, 1]", e.ID)
	}
	return d, nil
}

// validateEntry checks structural validity of a parsed entry.
func validateEntry(v *validator.Validate, entry *judgeEntry) error {
	if err := v.Struct(entry); err != nil {
		return fmt.Errorf("invalid judge entry: %w", err)
	}
	return nil
}

// extractJSONArray pulls a JSON array out of a judge response that may wrap
// it in markdown code fences or surrounding prose. Returns "" when no
// balanced array is found.
func extractJSONArray(response string) string {
	return extractDelimited(response, '[', ']')
}

// extractJSONObject does the same for a single JSON object.
func extractJSONObject(response string) string {
	return extractDelimited(response, '{', '}')
}

func extractDelimited(response string, open, close byte) string {
	response = strings.TrimSpace(response)

	if idx := strings.Index(response, "```json"); idx != -1 {
		rest := response[idx+7:]
		if end := strings.Index(rest, "```"); end != -1 {
			if candidate := strings.TrimSpace(rest[:end]); strings.HasPrefix(candidate, string(open)) {
				return candidate
			}
		}
	}

	if idx := strings.Index(response, "```"); idx != -1 {
		rest := response[idx+3:]
		if nl := strings.Index(rest, "\n"); nl != -1 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end != -1 {
			if candidate := strings.TrimSpace(rest[:end]); strings.HasPrefix(candidate, string(open)) {
				return candidate
			}
		}
	}

	start := strings.IndexByte(response, open)
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escapeNext := false
	for i := start; i < len(response); i++ {
		char := response[i]

		if escapeNext {
			escapeNext = false
			continue
		}
		if char == '\\' {
			escapeNext = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch char {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return response[start : i+1]
			}
		}
	}

	return ""
}
