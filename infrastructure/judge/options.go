package judge

import (
	"fmt"
	"net/url"
	"time"
)

// Valid ranges for common request parameters, shared across providers.
const (
	// DefaultMaxTokens is used when a request does not set max_tokens.
	// Batch responses carry one JSON entry per item, so the default
	// leaves room for batches at the upper end of the size range.
	DefaultMaxTokens = 4096

	// MinTemperature is the minimum allowed temperature.
	MinTemperature = 0.0
	// MaxTemperature is the maximum allowed temperature across providers.
	MaxTemperature = 2.0
	// MinTopP is the minimum allowed top_p value.
	MinTopP = 0.0
	// MaxTopP is the maximum allowed top_p value.
	MaxTopP = 1.0
	// MinTimeout is the shortest accepted request timeout.
	MinTimeout = 1 * time.Second
	// MaxTimeout is the longest accepted request timeout.
	MaxTimeout = 10 * time.Minute
)

// RequestOptions is the standardized set of request parameters shared by
// all judge providers. Provider-specific extras pass through the Extra map.
type RequestOptions struct {
	// MaxTokens caps the response length.
	MaxTokens int
	// Model identifies the model to use for this request.
	Model string
	// Temperature controls output randomness; nil uses the provider
	// default.
	Temperature *float64
	// TopP enables nucleus sampling; nil uses the provider default.
	TopP *float64
	// System carries the system prompt, if any.
	System string
	// Extra holds provider-specific options not covered above.
	Extra map[string]any
}

// ParseRequestOptions extracts standardized request parameters from an
// options map, applying defaults for missing or invalid entries and
// collecting unrecognized keys into Extra.
func ParseRequestOptions(opts map[string]any, defaultModel string) RequestOptions {
	options := RequestOptions{
		MaxTokens: extractInt(opts, "max_tokens", DefaultMaxTokens, func(v int) bool { return v > 0 }),
		Model:     extractString(opts, "model", defaultModel),
		System:    extractString(opts, "system", ""),
		Extra:     make(map[string]any),
	}

	if temp := extractFloat64(opts, "temperature", -1, isValidTemperature); temp != -1 {
		options.Temperature = &temp
	}
	if topP := extractFloat64(opts, "top_p", -1, isValidTopP); topP != -1 {
		options.TopP = &topP
	}

	for k, v := range opts {
		switch k {
		case "max_tokens", "model", "system", "temperature", "top_p":
		default:
			options.Extra[k] = v
		}
	}

	return options
}

func extractInt(opts map[string]any, key string, defaultVal int, valid func(int) bool) int {
	if opts == nil {
		return defaultVal
	}
	val, ok := opts[key]
	if !ok {
		return defaultVal
	}
	intVal, ok := val.(int)
	if !ok || (valid != nil && !valid(intVal)) {
		return defaultVal
	}
	return intVal
}

func extractString(opts map[string]any, key, defaultVal string) string {
	if opts == nil {
		return defaultVal
	}
	val, ok := opts[key]
	if !ok {
		return defaultVal
	}
	strVal, ok := val.(string)
	if !ok || strVal == "" {
		return defaultVal
	}
	return strVal
}

func extractFloat64(opts map[string]any, key string, defaultVal float64, valid func(float64) bool) float64 {
	if opts == nil {
		return defaultVal
	}
	val, ok := opts[key]
	if !ok {
		return defaultVal
	}
	floatVal, ok := val.(float64)
	if !ok || (valid != nil && !valid(floatVal)) {
		return defaultVal
	}
	return floatVal
}

func isValidTemperature(val float64) bool { return val >= MinTemperature && val <= MaxTemperature }

func isValidTopP(val float64) bool { return val >= MinTopP && val <= MaxTopP }

// ClampFloat64 clamps val into [min, max].
func ClampFloat64(val, min, max float64) float64 {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// ValidateBaseURL validates and normalizes a base URL override. An empty
// string is valid and means the provider default.
func ValidateBaseURL(baseURL string) (string, error) {
	if baseURL == "" {
		return "", nil
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("URL scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("URL must include a host")
	}
	return parsed.String(), nil
}

// ValidateTimeout clamps a timeout into [MinTimeout, MaxTimeout].
// Zero or negative means the system default and passes through as zero.
func ValidateTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 0
	}
	if timeout < MinTimeout {
		return MinTimeout
	}
	if timeout > MaxTimeout {
		return MaxTimeout
	}
	return timeout
}

// TokenCounter estimates token counts from text length when a response
// does not report exact usage.
type TokenCounter struct {
	// CharactersPerToken is the assumed average characters per token.
	CharactersPerToken float64
}

// NewTokenCounter returns a counter using a 4 characters-per-token
// approximation, reasonable for English text.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{CharactersPerToken: 4.0}
}

// EstimateTokens estimates the token count for text.
func (tc *TokenCounter) EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return int(float64(len(text)) / tc.CharactersPerToken)
}

// GetTokenCount returns actualCount when positive, otherwise an estimate
// from the text.
func (tc *TokenCounter) GetTokenCount(actualCount int, text string) int {
	if actualCount > 0 {
		return actualCount
	}
	return tc.EstimateTokens(text)
}
