// Package testutils provides deterministic fakes for pipeline tests.
package testutils

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/weizhiyuan62/zhilan/internal/domain"
	"github.com/weizhiyuan62/zhilan/internal/ports"
)

var idPattern = regexp.MustCompile(`\[id: ([^\]]+)\]`)

// MockJudgeClient implements ports.JudgeClient with deterministic,
// prompt-derived responses. It extracts the item IDs embedded in a batch
// prompt and answers with one well-formed JSON entry per ID, so tests can
// drive the scorer without a live provider.
//
// Behavior is tweakable per test: fail specific calls, omit entries, emit
// entries out of order, or override the dimensions per item.
type MockJudgeClient struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	options []map[string]any

	// Model is returned by GetModel. Defaults to "mock-judge".
	Model string

	// DimsFor overrides the dimensions for an item ID. When nil, stable
	// pseudo-random dimensions are derived from the ID.
	DimsFor func(id string) domain.DimensionScore

	// FailFunc, when non-nil, is consulted before responding. The call
	// argument is 1-based; returning a non-nil error fails that call.
	FailFunc func(call int, prompt string) error

	// DelayFor, when non-nil, returns how long a call sleeps before
	// responding, letting tests control completion order across
	// concurrent calls.
	DelayFor func(call int, prompt string) time.Duration

	// InsightsResponse is returned verbatim for prompts carrying no item
	// IDs, such as the run-level synthesis prompt.
	InsightsResponse string

	// OmitIDs lists item IDs to silently drop from responses,
	// simulating a judge that returns a partial batch.
	OmitIDs map[string]bool

	// ReverseOrder emits entries in reverse prompt order, exercising
	// ID-based correlation.
	ReverseOrder bool

	// ExtraID, when set, is appended as an entry for an item that was
	// never in the prompt.
	ExtraID string

	// WrapMarkdown wraps the JSON array in a ```json code fence.
	WrapMarkdown bool
}

var _ ports.JudgeClient = (*MockJudgeClient)(nil)

// Complete parses the prompt for item IDs and returns a JSON array scoring
// each one.
func (m *MockJudgeClient) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.calls++
	call := m.calls
	m.prompts = append(m.prompts, prompt)
	m.options = append(m.options, options)
	m.mu.Unlock()

	if m.FailFunc != nil {
		if err := m.FailFunc(call, prompt); err != nil {
			return "", err
		}
	}

	if m.DelayFor != nil {
		if d := m.DelayFor(call, prompt); d > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(d):
			}
		}
	}

	ids := m.extractIDs(prompt)
	if len(ids) == 0 && m.InsightsResponse != "" {
		return m.InsightsResponse, nil
	}
	if m.ReverseOrder {
		for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
			ids[i], ids[j] = ids[j], ids[i]
		}
	}
	if m.ExtraID != "" {
		ids = append(ids, m.ExtraID)
	}

	entries := make([]string, 0, len(ids))
	for _, id := range ids {
		if m.OmitIDs[id] {
			continue
		}
		d := m.dims(id)
		entries = append(entries, fmt.Sprintf(
			`{"id": %q, "relevance": %g, "importance": %g, "timeliness": %g, "reliability": %g, "analysis": "mock analysis for %s"}`,
			id, d.Relevance, d.Importance, d.Timeliness, d.Reliability, id))
	}

	body := "[" + strings.Join(entries, ", ") + "]"
	if m.WrapMarkdown {
		body = "```json\n" + body + "\n```"
	}
	return body, nil
}

// EstimateTokens implements ports.JudgeClient.
func (m *MockJudgeClient) EstimateTokens(text string) (int, error) {
	return (len(text) + 3) / 4, nil
}

// GetModel implements ports.JudgeClient.
func (m *MockJudgeClient) GetModel() string {
	if m.Model == "" {
		return "mock-judge"
	}
	return m.Model
}

// Calls returns how many Complete calls were made.
func (m *MockJudgeClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Options returns the request options received per call.
func (m *MockJudgeClient) Options() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]any, len(m.options))
	copy(out, m.options)
	return out
}

// Prompts returns a copy of every prompt received.
func (m *MockJudgeClient) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}

func (m *MockJudgeClient) extractIDs(prompt string) []string {
	matches := idPattern.FindAllStringSubmatch(prompt, -1)
	ids := make([]string, 0, len(matches))
	for _, match := range matches {
		ids = append(ids, match[1])
	}
	return ids
}

func (m *MockJudgeClient) dims(id string) domain.DimensionScore {
	if m.DimsFor != nil {
		return m.DimsFor(id)
	}
	return DerivedDims(id)
}

// DerivedDims deterministically maps an item ID onto dimension scores in
// [0, 1]. The same ID always yields the same dimensions.
func DerivedDims(id string) domain.DimensionScore {
	h := fnv.New32a()
	h.Write([]byte(id))
	seed := h.Sum32()

	dim := func(shift uint) float64 {
		return float64((seed>>shift)%1000) / 999.0
	}
	return domain.DimensionScore{
		Relevance:   dim(0),
		Importance:  dim(8),
		Timeliness:  dim(16),
		Reliability: dim(22),
	}
}
