package judge

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a request
// without forwarding it to the provider.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerState represents the breaker's current state.
type CircuitBreakerState int

const (
	// StateClosed passes all requests through normally.
	StateClosed CircuitBreakerState = iota
	// StateOpen rejects all requests until the cooldown expires.
	StateOpen
	// StateHalfOpen lets a single probe request through to test recovery.
	StateHalfOpen
)

// CircuitBreaker tracks consecutive failures and opens once they exceed a
// threshold, so a hard-down provider is not hammered by every batch worker
// at once.
type CircuitBreaker struct {
	mu               sync.RWMutex
	state            CircuitBreakerState
	failureCount     int
	maxFailures      int
	cooldownDuration time.Duration
	lastFailure      time.Time
	probing          bool
}

// NewCircuitBreaker creates a breaker that opens after maxFailures
// consecutive errors and stays open for cooldownDuration before probing.
func NewCircuitBreaker(maxFailures int, cooldownDuration time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:            StateClosed,
		maxFailures:      maxFailures,
		cooldownDuration: cooldownDuration,
	}
}

// Call executes fn through the breaker. An open circuit returns
// ErrCircuitOpen without invoking fn. The lock is only held while checking
// and recording state, never across fn itself, so closed-state callers run
// concurrently; half-open admits a single probe at a time.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.acquire(); err != nil {
		return err
	}

	err := fn()
	cb.record(err)
	return err
}

// acquire decides whether a request may proceed and performs the
// open-to-half-open transition once the cooldown has expired.
func (cb *CircuitBreaker) acquire() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) < cb.cooldownDuration {
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probing = true
		return nil
	case StateHalfOpen:
		if cb.probing {
			return ErrCircuitOpen
		}
		cb.probing = true
		return nil
	default:
		return nil
	}
}

// record applies the outcome of a permitted request to the breaker state.
func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	wasProbe := cb.state == StateHalfOpen && cb.probing
	cb.probing = false

	if err != nil {
		cb.failureCount++
		cb.lastFailure = time.Now()
		if wasProbe || cb.failureCount >= cb.maxFailures {
			cb.state = StateOpen
		}
		return
	}

	cb.failureCount = 0
	cb.state = StateClosed
}

// GetState returns the breaker's current state.
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

type circuitBreakedJudge struct {
	next CoreJudge
	cb   *CircuitBreaker
}

// CircuitBreakerMiddleware wraps the provider in a circuit breaker shared
// by all requests through the client.
func CircuitBreakerMiddleware(maxFailures int, cooldown time.Duration) Middleware {
	cb := NewCircuitBreaker(maxFailures, cooldown)
	return func(next CoreJudge) CoreJudge {
		return &circuitBreakedJudge{next: next, cb: cb}
	}
}

// DoRequest executes the request through the circuit breaker. An open
// circuit fails fast with ErrCircuitOpen.
func (c *circuitBreakedJudge) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	var response string
	var tokensIn, tokensOut int

	err := c.cb.Call(func() error {
		var err error
		response, tokensIn, tokensOut, err = c.next.DoRequest(ctx, prompt, opts)
		return err
	})

	return response, tokensIn, tokensOut, err
}

// GetModel returns the model name from the wrapped implementation.
func (c *circuitBreakedJudge) GetModel() string { return c.next.GetModel() }
