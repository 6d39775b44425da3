package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/weizhiyuan62/zhilan/infrastructure/judge"
	"github.com/weizhiyuan62/zhilan/internal/domain"
	"github.com/weizhiyuan62/zhilan/internal/ports"
)

// Defaults for the scorer configuration.
const (
	// DefaultBatchSize is how many items share one judge request.
	DefaultBatchSize = 10
	// DefaultConcurrency bounds in-flight judge requests.
	DefaultConcurrency = 5
	// DefaultStage names the checkpoint record for scoring progress.
	DefaultStage = "scoring"
)

// Config controls batching, concurrency, and judge request parameters.
type Config struct {
	// BatchSize is the number of items per judge request.
	BatchSize int `yaml:"batch_size" json:"batch_size" validate:"min=1,max=50"`

	// Concurrency caps simultaneous judge requests.
	Concurrency int `yaml:"concurrency" json:"concurrency" validate:"min=1,max=20"`

	// Temperature for judge requests. Zero keeps scoring deterministic.
	Temperature float64 `yaml:"temperature" json:"temperature" validate:"min=0,max=1"`

	// MaxTokens caps the judge response length per batch.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens" validate:"min=0,max=16384"`

	// Stage names the checkpoint record. Defaults to "scoring".
	Stage string `yaml:"stage" json:"stage"`

	// PromptTemplate overrides the default batch prompt template.
	PromptTemplate string `yaml:"prompt_template" json:"prompt_template"`

	// Topic is interpolated into the judging criteria.
	Topic string `yaml:"topic" json:"topic"`
}

// withDefaults fills zero values with the package defaults.
func (c Config) withDefaults() Config {
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Stage == "" {
		c.Stage = DefaultStage
	}
	return c
}

// BatchScorer runs the scoring stage: it partitions items into batches,
// fans batches out to the judge with bounded concurrency, parses responses
// into Scores, and checkpoints after every completed batch.
//
// Failure handling is two-tier. A batch whose judge call exhausts its
// retries marks its items as failed and the run continues. A fatal error
// (bad credentials, malformed request, checkpoint write failure) aborts the
// whole stage; batches already in flight are allowed to finish and
// checkpoint so their work survives into the next run.
type BatchScorer struct {
	judgeClient ports.JudgeClient
	store       ports.CheckpointStore
	metrics     ports.MetricsCollector
	logger      *slog.Logger
	prompt      *PromptBuilder
	validator   *validator.Validate
	weights     domain.Weights
	config      Config
}

// NewBatchScorer validates the configuration and weights and returns a
// ready scorer. The metrics collector may be nil.
func NewBatchScorer(
	judgeClient ports.JudgeClient,
	store ports.CheckpointStore,
	weights domain.Weights,
	config Config,
	logger *slog.Logger,
	metrics ports.MetricsCollector,
) (*BatchScorer, error) {
	if judgeClient == nil {
		return nil, fmt.Errorf("judge client cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("checkpoint store cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	config = config.withDefaults()

	v := validator.New()
	if err := v.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid scorer configuration: %w", err)
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}

	prompt, err := NewPromptBuilder(config.PromptTemplate, config.Topic)
	if err != nil {
		return nil, err
	}

	return &BatchScorer{
		judgeClient: judgeClient,
		store:       store,
		metrics:     metrics,
		logger:      logger.With("component", "scorer"),
		prompt:      prompt,
		validator:   v,
		weights:     weights,
		config:      config,
	}, nil
}

// checkpointRecord is the persisted shape of scoring progress: every score
// produced so far, keyed by item ID.
type checkpointRecord struct {
	Weights domain.Weights          `json:"weights"`
	Scores  map[string]domain.Score `json:"scores"`
}

// ScoreAll scores every item and returns one ScoredItem per input in input
// order. Items whose batch failed carry a nil Score. The returned summary
// counts newly scored, checkpoint-restored, and failed items.
//
// Duplicate item IDs are rejected up front: the checkpoint is keyed by ID,
// so duplicates would silently collapse into one record.
func (s *BatchScorer) ScoreAll(ctx context.Context, items []domain.Item) ([]domain.ScoredItem, domain.RunSummary, error) {
	summary := domain.RunSummary{Total: len(items)}
	if len(items) == 0 {
		return nil, summary, nil
	}

	if err := checkUniqueIDs(items); err != nil {
		return nil, summary, err
	}

	record, err := s.loadCheckpoint()
	if err != nil {
		return nil, summary, err
	}

	pending := make([]domain.Item, 0, len(items))
	for _, item := range items {
		if _, done := record.Scores[item.ID]; done {
			summary.FromCheckpoint++
			continue
		}
		pending = append(pending, item)
	}

	if summary.FromCheckpoint > 0 {
		s.logger.Info("resuming from checkpoint",
			"stage", s.config.Stage,
			"restored", summary.FromCheckpoint,
			"pending", len(pending))
	}

	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)

	for _, batch := range partition(pending, s.config.BatchSize) {
		g.Go(func() error {
			// A fatal error elsewhere cancels gctx; batches that have
			// not started yet stand down. The judge call below uses the
			// parent ctx so a batch already past this check finishes
			// and checkpoints its work.
			if gctx.Err() != nil {
				return nil
			}

			scores, err := s.scoreBatch(ctx, batch)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			for id, score := range scores {
				record.Scores[id] = score
			}
			if err := s.store.Save(s.config.Stage, record); err != nil {
				return fmt.Errorf("checkpoint save failed: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, summary, err
	}
	// A cancelled run must surface as an error, not as a clean result with
	// the pending items marked failed: the caller would otherwise treat the
	// run as complete and discard the checkpoint.
	if err := ctx.Err(); err != nil {
		return nil, summary, err
	}

	results := make([]domain.ScoredItem, 0, len(items))
	for _, item := range items {
		scored := domain.ScoredItem{Item: item}
		if score, ok := record.Scores[item.ID]; ok {
			sc := score
			scored.Score = &sc
		} else {
			summary.Failed++
		}
		results = append(results, scored)
	}
	summary.Scored = len(items) - summary.Failed - summary.FromCheckpoint

	s.logger.Info("scoring stage complete",
		"total", summary.Total,
		"scored", summary.Scored,
		"from_checkpoint", summary.FromCheckpoint,
		"failed", summary.Failed)

	return results, summary, nil
}

// scoreBatch sends one batch to the judge and parses the response into
// scores keyed by item ID. A retry-exhausted or unparseable batch returns
// an empty map and nil error so the run continues; fatal errors propagate.
func (s *BatchScorer) scoreBatch(ctx context.Context, batch []domain.Item) (map[string]domain.Score, error) {
	start := time.Now()

	prompt, err := s.prompt.Build(batch)
	if err != nil {
		return nil, err
	}

	if tokens, err := s.judgeClient.EstimateTokens(prompt); err == nil {
		s.logger.Debug("dispatching batch",
			"items", len(batch),
			"estimated_tokens", tokens,
			"model", s.judgeClient.GetModel())
	}

	options := map[string]any{"temperature": s.config.Temperature}
	if s.config.MaxTokens > 0 {
		options["max_tokens"] = s.config.MaxTokens
	}

	response, err := s.judgeClient.Complete(ctx, prompt, options)
	if err != nil {
		if judge.IsFatal(err) {
			s.recordBatch(start, "fatal")
			return nil, fmt.Errorf("judge rejected batch: %w", err)
		}
		s.logger.Warn("batch failed, items marked unscored",
			"items", len(batch),
			"error", err)
		s.recordBatch(start, "failed")
		return map[string]domain.Score{}, nil
	}

	scores, err := s.parseBatchResponse(response, batch)
	if err != nil {
		s.logger.Warn("unparseable judge response, items marked unscored",
			"items", len(batch),
			"error", err)
		s.recordBatch(start, "unparseable")
		return map[string]domain.Score{}, nil
	}

	s.recordBatch(start, "success")
	return scores, nil
}

// parseBatchResponse correlates judge entries back to batch items strictly
// by echoed ID. Entries with unknown IDs are dropped with a warning; batch
// items without a matching entry are left unscored.
func (s *BatchScorer) parseBatchResponse(response string, batch []domain.Item) (map[string]domain.Score, error) {
	jsonStr := extractJSONArray(response)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON array found in judge response (%d chars)", len(response))
	}

	var entries []judgeEntry
	if err := json.Unmarshal([]byte(jsonStr), &entries); err != nil {
		return nil, fmt.Errorf("failed to parse judge response: %w", err)
	}

	inBatch := make(map[string]bool, len(batch))
	for _, item := range batch {
		inBatch[item.ID] = true
	}

	scores := make(map[string]domain.Score, len(entries))
	for i := range entries {
		entry := &entries[i]
		if err := validateEntry(s.validator, entry); err != nil {
			s.logger.Warn("dropping invalid judge entry", "index", i, "error", err)
			continue
		}
		if !inBatch[entry.ID] {
			s.logger.Warn("dropping judge entry with unknown item id", "id", entry.ID)
			continue
		}
		if _, dup := scores[entry.ID]; dup {
			s.logger.Warn("dropping duplicate judge entry", "id", entry.ID)
			continue
		}

		dims, err := entry.dimensions()
		if err != nil {
			s.logger.Warn("dropping out-of-range judge entry", "id", entry.ID, "error", err)
			continue
		}

		score := domain.NewScore(entry.ID, dims, s.weights, entry.Analysis)
		scores[entry.ID] = score

		if s.metrics != nil {
			s.metrics.RecordHistogram("composite_score", score.Composite, nil)
		}
	}

	if len(scores) < len(batch) {
		s.logger.Warn("judge response missing entries",
			"expected", len(batch),
			"received", len(scores))
	}

	return scores, nil
}

// loadCheckpoint reads scoring progress. A checkpoint recorded under
// different weights is discarded: its composites would disagree with
// scores computed this run.
func (s *BatchScorer) loadCheckpoint() (checkpointRecord, error) {
	record := checkpointRecord{
		Weights: s.weights,
		Scores:  make(map[string]domain.Score),
	}

	var loaded checkpointRecord
	found, err := s.store.Load(s.config.Stage, &loaded)
	if err != nil {
		return record, fmt.Errorf("checkpoint load failed: %w", err)
	}
	if !found {
		return record, nil
	}

	if loaded.Weights != s.weights {
		s.logger.Warn("discarding checkpoint with mismatched weights",
			"stage", s.config.Stage)
		return record, nil
	}

	if loaded.Scores != nil {
		record.Scores = loaded.Scores
	}
	return record, nil
}

func (s *BatchScorer) recordBatch(start time.Time, status string) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordLatency("batch", time.Since(start), map[string]string{"status": status})
	s.metrics.RecordCounter("batches_total", 1, map[string]string{"status": status})
}

// checkUniqueIDs rejects input containing duplicate item IDs.
func checkUniqueIDs(items []domain.Item) error {
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if item.ID == "" {
			return fmt.Errorf("%w: item %q has no ID", domain.ErrEmptyValue, item.Title)
		}
		if seen[item.ID] {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateItemID, item.ID)
		}
		seen[item.ID] = true
	}
	return nil
}

// partition splits items into consecutive batches of at most size.
func partition(items []domain.Item, size int) [][]domain.Item {
	if size < 1 {
		size = 1
	}
	batches := make([][]domain.Item, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}
