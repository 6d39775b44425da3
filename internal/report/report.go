package report

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/weizhiyuan62/zhilan/internal/domain"
)

// markdownTemplate renders the digest. Items arrive pre-sorted best-first
// from the aggregator.
const markdownTemplate = `# {{.Title}}

Generated: {{.GeneratedAt.Format "2006-01-02 15:04 MST"}}

{{.Summary.String}}
{{- if .Insights}}

## Executive summary

{{.Insights.Summary}}
{{- if .Insights.KeyPoints}}

### Key points
{{range .Insights.KeyPoints}}
- {{.}}{{end}}
{{- end}}
{{- if .Insights.Trends}}

### Trends
{{range .Insights.Trends}}
- {{.}}{{end}}
{{- end}}
{{- end}}

## Statistics

- Accepted items: {{.Stats.Count}}
- Average composite score: {{printf "%.3f" .Stats.AverageComposite}}

### By source
{{range .Stats.Sources}}
- {{.Label}}: {{.Count}}{{end}}

### By date
{{range .Stats.Dates}}
- {{.Label}}: {{.Count}}{{end}}

### By score
{{range .Stats.ScoreBuckets}}
- {{.Label}}: {{.Count}}{{end}}

## Items
{{range $i, $it := .Items}}
### {{inc $i}}. {{$it.Item.Title}}

- Score: **{{printf "%.3f" $it.Score.Composite}}** (relevance {{printf "%.2f" $it.Score.Dimensions.Relevance}}, importance {{printf "%.2f" $it.Score.Dimensions.Importance}}, timeliness {{printf "%.2f" $it.Score.Dimensions.Timeliness}}, reliability {{printf "%.2f" $it.Score.Dimensions.Reliability}})
- Source: {{$it.Item.SourceName}}{{if $it.Item.PublishedAt}} ({{$it.Item.PublishedAt.Format "2006-01-02"}}){{end}}
- Link: {{$it.Item.URL}}
{{- if $it.Score.Analysis}}
- Analysis: {{$it.Score.Analysis}}
{{- end}}
{{if $it.Item.Body}}
> {{$it.Item.Body}}
{{end}}{{end}}`

// Generator renders run output into markdown and HTML.
type Generator struct {
	tmpl     *template.Template
	markdown goldmark.Markdown
	title    string
	now      func() time.Time
}

// NewGenerator builds a generator. The title heads the rendered report.
func NewGenerator(title string) (*Generator, error) {
	if title == "" {
		title = "Intelligence Digest"
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"inc": func(i int) int { return i + 1 },
	}).Parse(markdownTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse report template: %w", err)
	}

	return &Generator{
		tmpl: tmpl,
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		),
		title: title,
		now:   time.Now,
	}, nil
}

// Markdown renders the accepted items and run summary as a markdown
// digest. Every item must carry a non-nil score; the aggregator guarantees
// this for its output. A nil insights skips the synthesis sections.
func (g *Generator) Markdown(items []domain.ScoredItem, summary domain.RunSummary, insights *domain.Insights) (string, error) {
	for _, item := range items {
		if item.Score == nil {
			return "", fmt.Errorf("unscored item %q cannot be reported", item.Item.Title)
		}
	}

	view := struct {
		Title       string
		GeneratedAt time.Time
		Summary     domain.RunSummary
		Insights    *domain.Insights
		Stats       Stats
		Items       []domain.ScoredItem
	}{
		Title:       g.title,
		GeneratedAt: g.now(),
		Summary:     summary,
		Insights:    insights,
		Stats:       ComputeStats(items),
		Items:       items,
	}

	var buf bytes.Buffer
	if err := g.tmpl.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return buf.String(), nil
}

// HTML renders the markdown digest and converts it to HTML.
func (g *Generator) HTML(items []domain.ScoredItem, summary domain.RunSummary, insights *domain.Insights) (string, error) {
	md, err := g.Markdown(items, summary, insights)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := g.markdown.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("failed to convert report to HTML: %w", err)
	}
	return buf.String(), nil
}
