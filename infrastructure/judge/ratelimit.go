package judge

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

type rateLimitedJudge struct {
	next    CoreJudge
	limiter *rate.Limiter
}

// RateLimitMiddleware paces requests with a token bucket so concurrent
// batch workers collectively stay under the provider's rate limits. The
// limit parameter sets sustained requests per second; burst allows short
// spikes above it. All workers sharing the client share one bucket.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(limit, burst)
	return func(next CoreJudge) CoreJudge {
		return &rateLimitedJudge{next: next, limiter: limiter}
	}
}

// DoRequest blocks until the limiter grants a token, then forwards the
// request. Context cancellation interrupts the wait.
func (r *rateLimitedJudge) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", 0, 0, fmt.Errorf("rate limit: %w", err)
	}
	return r.next.DoRequest(ctx, prompt, opts)
}

// GetModel returns the model name from the wrapped implementation.
func (r *rateLimitedJudge) GetModel() string { return r.next.GetModel() }
