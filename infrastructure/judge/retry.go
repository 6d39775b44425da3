package judge

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryConfig controls the retry middleware. Attempts counts every call
// including the first, so MaxAttempts=3 means one initial call plus up to
// two retries.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts permitted. Values
	// below 1 are treated as 1.
	MaxAttempts int

	// BaseDelay is the delay before the first retry. Subsequent delays
	// double each time.
	BaseDelay time.Duration

	// MaxDelay caps the computed delay, jitter included.
	MaxDelay time.Duration
}

// DefaultRetryConfig matches the engine's defaults: three total attempts
// with a one second base delay capped at thirty seconds.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

type retryJudge struct {
	next CoreJudge
	cfg  RetryConfig
	// sleep is swappable for tests.
	sleep func(time.Duration)
}

// RetryMiddleware retries failed requests with exponential backoff and
// jitter. Only transient failures are retried: a fatal error (bad
// credentials, malformed request, unknown model) or a non-retryable
// ProviderError is returned immediately, since repeating the identical
// request cannot succeed. When all attempts fail the error is wrapped in a
// RetryExhaustedError carrying the attempt count.
func RetryMiddleware(cfg RetryConfig) Middleware {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return func(next CoreJudge) CoreJudge {
		return &retryJudge{next: next, cfg: cfg}
	}
}

// DoRequest executes the request with retry logic. Context cancellation
// stops the attempt loop immediately, both between attempts and while
// waiting out a backoff delay.
func (r *retryJudge) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	var lastErr error

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		response, tokensIn, tokensOut, err := r.next.DoRequest(ctx, prompt, opts)
		if err == nil {
			return response, tokensIn, tokensOut, nil
		}

		lastErr = err

		if !isRetryableError(err) || ctx.Err() != nil {
			return "", 0, 0, err
		}

		if attempt == r.cfg.MaxAttempts {
			break
		}

		delay := r.backoffDelay(attempt - 1)
		if r.sleep != nil {
			r.sleep(delay)
			continue
		}
		select {
		case <-ctx.Done():
			return "", 0, 0, ctx.Err()
		case <-time.After(delay):
		}
	}

	return "", 0, 0, &RetryExhaustedError{Attempts: r.cfg.MaxAttempts, Err: lastErr}
}

// backoffDelay computes BaseDelay * 2^n with ±25% jitter, capped at
// MaxDelay.
func (r *retryJudge) backoffDelay(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	if n > 30 {
		n = 30
	}
	delay := time.Duration(float64(r.cfg.BaseDelay) * float64(int64(1)<<uint(n)))

	// #nosec G404 - weak RNG is fine for jitter
	jitter := time.Duration(rand.Float64() * float64(delay) * 0.5)
	delay = delay + jitter - (delay / 4)

	if r.cfg.MaxDelay > 0 && delay > r.cfg.MaxDelay {
		delay = r.cfg.MaxDelay
	}
	return delay
}

// GetModel returns the model name from the wrapped implementation.
func (r *retryJudge) GetModel() string { return r.next.GetModel() }

// isRetryableError reports whether the error is transient. Classified
// provider errors answer for themselves; unclassified errors are treated
// as transient so that raw transport failures still get retried. An open
// circuit is never retried here since the breaker already gates recovery.
func isRetryableError(err error) bool {
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.IsRetryable()
	}
	return true
}
