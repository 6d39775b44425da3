package judge

import (
	"context"
	"sync"
)

// MockCoreJudge is a configurable CoreJudge for tests. It records every
// request and either returns a canned response, a canned error, or defers
// to a custom function.
type MockCoreJudge struct {
	mu sync.Mutex

	// Response is returned when DoFunc is nil and Err is nil.
	Response string
	// TokensIn and TokensOut are returned alongside Response.
	TokensIn  int
	TokensOut int
	// Err, when non-nil, is returned by every call.
	Err error
	// DoFunc, when non-nil, handles the call entirely. The attempt
	// argument is 1-based.
	DoFunc func(ctx context.Context, prompt string, attempt int) (string, error)

	// Model is returned by GetModel.
	Model string

	calls   int
	prompts []string
}

// DoRequest implements CoreJudge.
func (m *MockCoreJudge) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	m.mu.Lock()
	m.calls++
	attempt := m.calls
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if m.DoFunc != nil {
		response, err := m.DoFunc(ctx, prompt, attempt)
		if err != nil {
			return "", 0, 0, err
		}
		return response, m.TokensIn, m.TokensOut, nil
	}
	if m.Err != nil {
		return "", 0, 0, m.Err
	}
	return m.Response, m.TokensIn, m.TokensOut, nil
}

// GetModel implements CoreJudge.
func (m *MockCoreJudge) GetModel() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}

// Calls returns how many times DoRequest was invoked.
func (m *MockCoreJudge) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Prompts returns a copy of all prompts received so far.
func (m *MockCoreJudge) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}
