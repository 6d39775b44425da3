// Package application wires the pipeline together: it loads and validates
// run configuration, builds the collector, scorer, aggregator, and report
// generator, and orchestrates a full run.
package application

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/weizhiyuan62/zhilan/infrastructure/judge"
	"github.com/weizhiyuan62/zhilan/internal/collect"
	"github.com/weizhiyuan62/zhilan/internal/domain"
	"github.com/weizhiyuan62/zhilan/internal/scoring"
)

// Config is the full run configuration, loaded from YAML. Unknown fields
// are rejected so typos surface at startup instead of silently using
// defaults.
type Config struct {
	// Topics are the subjects to collect and score items for.
	Topics []string `yaml:"topics" validate:"required,min=1,dive,min=1"`

	// WindowDays is how many days back from now the collection window
	// extends.
	WindowDays int `yaml:"window_days" validate:"min=1,max=90"`

	// Sources configures the upstream collectors.
	Sources SourcesConfig `yaml:"sources"`

	// Judge configures the LLM judge client.
	Judge JudgeConfig `yaml:"judge" validate:"required"`

	// Scoring configures batching, weights, and selection.
	Scoring ScoringConfig `yaml:"scoring"`

	// Checkpoint configures resume state persistence.
	Checkpoint CheckpointConfig `yaml:"checkpoint"`

	// Output configures report rendering.
	Output OutputConfig `yaml:"output"`

	// Logging configures the structured logger.
	Logging LoggingConfig `yaml:"logging"`
}

// SourcesConfig enables and configures each upstream source.
type SourcesConfig struct {
	// WebSearch toggles the Bing HTML scraper.
	WebSearch bool `yaml:"web_search"`

	// Arxiv toggles the arXiv preprint feed.
	Arxiv bool `yaml:"arxiv"`

	// NewsAPIKey enables the NewsAPI source when non-empty. Supports
	// ${ENV_VAR} expansion.
	NewsAPIKey string `yaml:"newsapi_key"`

	// FetchConcurrency bounds simultaneous upstream fetches.
	FetchConcurrency int `yaml:"fetch_concurrency" validate:"min=0,max=10"`
}

// JudgeConfig selects and tunes the judge provider.
type JudgeConfig struct {
	// Provider is the judge backend, "openai" or "anthropic".
	Provider string `yaml:"provider" validate:"required,oneof=openai anthropic"`

	// Model overrides the provider's default model.
	Model string `yaml:"model" validate:"required"`

	// APIKey authenticates with the provider. Supports ${ENV_VAR}
	// expansion.
	APIKey string `yaml:"api_key" validate:"required"`

	// BaseURL overrides the provider endpoint, mainly for tests.
	BaseURL string `yaml:"base_url"`

	// RequestTimeout bounds each judge request.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxAttempts is the total attempts per judge call, first try
	// included.
	MaxAttempts int `yaml:"max_attempts" validate:"min=0,max=10"`

	// RetryBaseDelay seeds the exponential backoff between attempts.
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`

	// RetryMaxDelay caps the backoff delay.
	RetryMaxDelay time.Duration `yaml:"retry_max_delay"`

	// RequestsPerSecond paces judge requests across all workers.
	// Zero disables rate limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"min=0,max=100"`

	// Burst allows short spikes above the sustained rate.
	Burst int `yaml:"burst" validate:"min=0,max=100"`

	// BreakerMaxFailures opens the circuit breaker after this many
	// consecutive failures. Zero disables the breaker.
	BreakerMaxFailures int `yaml:"breaker_max_failures" validate:"min=0,max=100"`

	// BreakerCooldown is how long an open breaker rejects requests before
	// probing the provider again.
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"`
}

// ScoringConfig tunes the scoring stage and selection.
type ScoringConfig struct {
	// BatchSize is the number of items per judge request.
	BatchSize int `yaml:"batch_size" validate:"min=0,max=50"`

	// Concurrency caps simultaneous in-flight batches.
	Concurrency int `yaml:"concurrency" validate:"min=0,max=20"`

	// Temperature for judge requests.
	Temperature float64 `yaml:"temperature" validate:"min=0,max=1"`

	// MaxTokens caps the judge response length per batch. Zero uses the
	// provider default.
	MaxTokens int `yaml:"max_tokens" validate:"min=0,max=16384"`

	// Weights define the composite formula. Zero value uses the
	// defaults.
	Weights domain.Weights `yaml:"weights"`

	// MinScore is the inclusive composite acceptance threshold.
	MinScore float64 `yaml:"min_score" validate:"min=0,max=1"`

	// TopN caps the accepted item count. Zero means no cap.
	TopN int `yaml:"top_n" validate:"min=0"`
}

// CheckpointConfig locates resume state.
type CheckpointConfig struct {
	// Dir is the directory holding per-stage checkpoint files.
	Dir string `yaml:"dir"`
}

// OutputConfig controls report rendering.
type OutputConfig struct {
	// Dir receives the rendered report files.
	Dir string `yaml:"dir"`

	// Title heads the report.
	Title string `yaml:"title"`

	// HTML additionally renders an HTML version of the digest.
	HTML bool `yaml:"html"`
}

// LoggingConfig tunes the structured logger.
type LoggingConfig struct {
	// Level is the minimum level: debug, info, warn, or error.
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`

	// Format selects "text" or "json" output.
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// DefaultConfig returns the configuration used when a field is omitted.
func DefaultConfig() Config {
	retry := judge.DefaultRetryConfig()
	return Config{
		WindowDays: 7,
		Sources: SourcesConfig{
			WebSearch:        true,
			Arxiv:            true,
			FetchConcurrency: collect.DefaultFetchConcurrency,
		},
		Judge: JudgeConfig{
			MaxAttempts:        retry.MaxAttempts,
			RetryBaseDelay:     retry.BaseDelay,
			RetryMaxDelay:      retry.MaxDelay,
			RequestTimeout:     60 * time.Second,
			RequestsPerSecond:  2,
			Burst:              4,
			BreakerMaxFailures: 5,
			BreakerCooldown:    30 * time.Second,
		},
		Scoring: ScoringConfig{
			BatchSize:   scoring.DefaultBatchSize,
			Concurrency: scoring.DefaultConcurrency,
			Weights:     domain.DefaultWeights(),
			MinScore:    scoring.DefaultMinScore,
		},
		Checkpoint: CheckpointConfig{Dir: "checkpoints"},
		Output:     OutputConfig{Dir: "reports", Title: "Intelligence Digest"},
		Logging:    LoggingConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig reads, expands, validates, and defaults a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML config bytes. ${ENV_VAR} references in string
// fields are expanded from the environment before parsing.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()

	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks structural validity plus the cross-field rules the
// validator tags cannot express.
func (c Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}

	if err := c.Scoring.Weights.Validate(); err != nil {
		return err
	}

	if !c.Sources.WebSearch && !c.Sources.Arxiv && c.Sources.NewsAPIKey == "" {
		return fmt.Errorf("%w: no collection sources enabled", domain.ErrInvalidConfiguration)
	}

	return nil
}

// Window computes the collection time range ending now.
func (c Config) Window(now time.Time) domain.TimeRange {
	return domain.TimeRange{
		Start: now.AddDate(0, 0, -c.WindowDays),
		End:   now,
	}
}
