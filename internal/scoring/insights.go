package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"
	"time"

	"github.com/weizhiyuan62/zhilan/internal/domain"
)

// DefaultInsightsTemplate renders the accepted set for the run-level
// synthesis call.
const DefaultInsightsTemplate = `You are an expert analyst reviewing the top-ranked {{.Topic}} items from an intelligence run. Synthesize them into an executive summary.

Items, best first:
{{range .Items}}
{{.Rank}}. {{.Title}} (score {{printf "%.2f" .Composite}})
{{- if .Analysis}}
   {{.Analysis}}
{{- end}}
{{end}}
Respond with a single JSON object. Use this format:
{"summary": "<two to four sentences covering the set as a whole>", "key_points": ["<most significant individual developments>"], "trends": ["<patterns spanning multiple items>"]}

Return only the JSON object, no other text.`

// maxInsightsItems caps how many accepted items feed the synthesis prompt.
const maxInsightsItems = 20

var insightsTmpl = template.Must(template.New("insightsPrompt").Parse(DefaultInsightsTemplate))

// insightsItem is the per-item view exposed to the synthesis template.
type insightsItem struct {
	Rank      int
	Title     string
	Composite float64
	Analysis  string
}

// insightsEntry is the expected JSON shape of the synthesis response.
type insightsEntry struct {
	Summary   string   `json:"summary" validate:"required"`
	KeyPoints []string `json:"key_points"`
	Trends    []string `json:"trends"`
}

// Insights makes one synthesis call over the accepted set and returns the
// executive summary, key points, and trends the judge identifies. The
// accepted slice must be ordered best first and every item must carry a
// score. An empty set yields nil without calling the judge.
func (s *BatchScorer) Insights(ctx context.Context, accepted []domain.ScoredItem) (*domain.Insights, error) {
	if len(accepted) == 0 {
		return nil, nil
	}
	if len(accepted) > maxInsightsItems {
		accepted = accepted[:maxInsightsItems]
	}

	prompt, err := buildInsightsPrompt(s.prompt.topic, accepted)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	response, err := s.judgeClient.Complete(ctx, prompt, map[string]any{"temperature": s.config.Temperature})
	if err != nil {
		s.recordBatch(start, "insights_failed")
		return nil, fmt.Errorf("insights synthesis failed: %w", err)
	}

	insights, err := s.parseInsightsResponse(response)
	if err != nil {
		s.recordBatch(start, "insights_unparseable")
		return nil, err
	}

	s.recordBatch(start, "insights_success")
	s.logger.Info("insights synthesized",
		"items", len(accepted),
		"key_points", len(insights.KeyPoints),
		"trends", len(insights.Trends))
	return insights, nil
}

func buildInsightsPrompt(topic string, accepted []domain.ScoredItem) (string, error) {
	view := struct {
		Topic string
		Items []insightsItem
	}{Topic: topic, Items: make([]insightsItem, 0, len(accepted))}

	for i, scored := range accepted {
		if scored.Score == nil {
			return "", fmt.Errorf("unscored item %q cannot feed insights", scored.Item.Title)
		}
		view.Items = append(view.Items, insightsItem{
			Rank:      i + 1,
			Title:     scored.Item.Title,
			Composite: scored.Score.Composite,
			Analysis:  scored.Score.Analysis,
		})
	}

	var buf bytes.Buffer
	if err := insightsTmpl.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("failed to execute insights template: %w", err)
	}
	return buf.String(), nil
}

func (s *BatchScorer) parseInsightsResponse(response string) (*domain.Insights, error) {
	jsonStr := extractJSONObject(response)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON object found in insights response (%d chars)", len(response))
	}

	var entry insightsEntry
	if err := json.Unmarshal([]byte(jsonStr), &entry); err != nil {
		return nil, fmt.Errorf("failed to parse insights response: %w", err)
	}
	if err := s.validator.Struct(&entry); err != nil {
		return nil, fmt.Errorf("invalid insights response: %w", err)
	}

	return &domain.Insights{
		Summary:   entry.Summary,
		KeyPoints: entry.KeyPoints,
		Trends:    entry.Trends,
	}, nil
}
