package judge

import (
	"context"
	"time"
)

type timeoutJudge struct {
	next    CoreJudge
	timeout time.Duration
}

// TimeoutMiddleware enforces a per-request deadline so a stalled provider
// cannot hang a batch indefinitely. The timeout context derives from the
// caller's context, so a canceled run still takes effect first.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next CoreJudge) CoreJudge {
		return &timeoutJudge{next: next, timeout: timeout}
	}
}

// DoRequest executes the request under a timeout context.
func (t *timeoutJudge) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.DoRequest(ctx, prompt, opts)
}

// GetModel returns the model name from the wrapped implementation.
func (t *timeoutJudge) GetModel() string { return t.next.GetModel() }
