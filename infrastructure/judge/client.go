package judge

import (
	"context"
	"fmt"
	"time"

	"github.com/weizhiyuan62/zhilan/internal/ports"
)

// CoreJudge defines the minimal interface a judge provider must implement.
// Providers translate a prompt into a provider-specific API call and return
// the raw response text plus token usage; everything else (retries,
// timeouts, rate limiting, observability) is layered on as middleware
// wrapping any conforming implementation.
type CoreJudge interface {
	// DoRequest sends a prompt to the judge provider and returns the
	// response text along with input and output token counts. The opts
	// map carries provider-tunable parameters such as temperature or
	// max tokens.
	DoRequest(ctx context.Context, prompt string, opts map[string]any) (response string, tokensIn, tokensOut int, err error)

	// GetModel returns the currently configured model name.
	GetModel() string
}

// TokenEstimator provides pluggable token estimation. Exact counts are not
// available before a request is made, so estimates are used for cost
// logging and batch sizing decisions.
type TokenEstimator interface {
	// EstimateTokens returns an approximate token count for the text.
	EstimateTokens(text string) int
}

// ClientConfig holds configuration for building a judge client:
// provider credentials, model selection, and the middleware chain.
type ClientConfig struct {
	// APIKey authenticates requests to the judge provider.
	APIKey string

	// Model specifies which model the provider should use.
	Model string

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the default.
	BaseURL string

	// Timeout sets the HTTP client timeout for individual requests.
	// Zero means no timeout at the transport level.
	Timeout time.Duration

	// TokenEstimator provides custom token counting logic.
	// If nil, a character-based estimator is used.
	TokenEstimator TokenEstimator

	// Middleware wraps the provider, applied in the order given
	// (the first entry becomes the outermost layer).
	Middleware []Middleware
}

// Middleware wraps a CoreJudge to add cross-cutting behavior such as
// retries, timeouts, rate limiting, metrics, or tracing.
type Middleware func(CoreJudge) CoreJudge

// Client implements ports.JudgeClient by composing a provider-specific
// CoreJudge with a middleware chain and a token estimator.
type Client struct {
	core      CoreJudge
	estimator TokenEstimator
}

var _ ports.JudgeClient = (*Client)(nil)

// NewClient assembles a judge client for the named provider. It validates
// the configuration, builds the provider through the factory registry, and
// applies the middleware chain.
func NewClient(providerType string, config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	factory, ok := providerFactories[providerType]
	if !ok {
		return nil, fmt.Errorf("unknown judge provider: %s", providerType)
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", providerType, err)
	}

	// Apply middleware in reverse order so the first entry is outermost.
	for i := len(config.Middleware) - 1; i >= 0; i-- {
		core = config.Middleware[i](core)
	}

	estimator := config.TokenEstimator
	if estimator == nil {
		estimator = &SimpleTokenEstimator{}
	}

	return &Client{core: core, estimator: estimator}, nil
}

// NewClientFromCore wraps an existing CoreJudge with the given middleware.
// Primarily useful for tests and for callers that construct providers
// themselves.
func NewClientFromCore(core CoreJudge, middleware ...Middleware) *Client {
	for i := len(middleware) - 1; i >= 0; i-- {
		core = middleware[i](core)
	}
	return &Client{core: core, estimator: &SimpleTokenEstimator{}}
}

// Complete sends a prompt to the judge and returns the response text,
// discarding token usage.
func (c *Client) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	response, _, _, err := c.CompleteWithUsage(ctx, prompt, options)
	return response, err
}

// CompleteWithUsage sends a prompt to the judge and returns the response
// text along with input and output token counts.
func (c *Client) CompleteWithUsage(ctx context.Context, prompt string, options map[string]any) (string, int, int, error) {
	return c.core.DoRequest(ctx, prompt, options)
}

// EstimateTokens returns an approximate token count for the text using the
// configured estimator.
func (c *Client) EstimateTokens(text string) (int, error) {
	return c.estimator.EstimateTokens(text), nil
}

// GetModel returns the model name from the underlying provider.
func (c *Client) GetModel() string { return c.core.GetModel() }

// SimpleTokenEstimator estimates roughly 4 characters per token, which is
// close enough for English text to drive cost logging.
type SimpleTokenEstimator struct{}

// EstimateTokens returns an approximate token count for the text.
func (e *SimpleTokenEstimator) EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// ProviderFactory creates a CoreJudge implementation from configuration.
type ProviderFactory func(ClientConfig) (CoreJudge, error)

var providerFactories = map[string]ProviderFactory{}

// RegisterProviderFactory registers a judge provider factory under a name.
// Providers self-register from their init functions.
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	providerFactories[providerType] = factory
}
