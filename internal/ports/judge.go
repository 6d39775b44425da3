// Package ports defines the interfaces between the scoring pipeline and its
// collaborators: the external LLM judge, the checkpoint store, the item
// collector, and the metrics sink. Implementations live under
// infrastructure/ and internal/collect; the pipeline itself depends only on
// these contracts.
package ports

import "context"

// JudgeClient defines the interface for the external LLM judge service.
// Implementations handle provider-specific details like authentication,
// request formatting, and response parsing; cross-cutting concerns such as
// retries, timeouts, and rate limiting are layered on as middleware.
type JudgeClient interface {
	// Complete sends a prompt to the judge and returns the raw response
	// text. The options map carries provider-tunable parameters:
	//   - "temperature": float64
	//   - "max_tokens": int
	//   - "system": string (system prompt)
	//   - "model": string (override the configured model)
	Complete(ctx context.Context, prompt string, options map[string]any) (string, error)

	// EstimateTokens calculates the approximate token count for a text.
	// Used for cost logging before dispatching a batch.
	EstimateTokens(text string) (int, error)

	// GetModel returns the model identifier used by this client.
	GetModel() string
}
