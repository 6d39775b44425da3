package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/weizhiyuan62/zhilan/infrastructure/checkpoint"
	"github.com/weizhiyuan62/zhilan/infrastructure/judge"
	"github.com/weizhiyuan62/zhilan/internal/collect"
	"github.com/weizhiyuan62/zhilan/internal/domain"
	"github.com/weizhiyuan62/zhilan/internal/ports"
	"github.com/weizhiyuan62/zhilan/internal/report"
	"github.com/weizhiyuan62/zhilan/internal/scoring"
)

// Checkpoint stage names used by the pipeline.
const (
	// StageCollection records the collected item set.
	StageCollection = "collection"
	// StageScoring records per-item scores as batches complete.
	StageScoring = "scoring"
)

// RunResult summarizes a completed pipeline run.
type RunResult struct {
	// Summary carries the run counters.
	Summary domain.RunSummary

	// Accepted is the final selected item set, best first.
	Accepted []domain.ScoredItem

	// ReportPath is the markdown report location.
	ReportPath string

	// HTMLPath is the HTML report location, empty when HTML output is
	// disabled.
	HTMLPath string
}

// Pipeline runs collection, scoring, aggregation, and reporting as one
// resumable unit of work.
type Pipeline struct {
	cfg       Config
	collector ports.Collector
	scorer    *scoring.BatchScorer
	agg       *scoring.Aggregator
	generator *report.Generator
	store     ports.CheckpointStore
	logger    *slog.Logger
	now       func() time.Time
}

// NewPipeline assembles a pipeline from pre-built components. Most callers
// want Build, which constructs the components from configuration; this
// constructor exists for wiring fakes in tests.
func NewPipeline(
	cfg Config,
	collector ports.Collector,
	scorer *scoring.BatchScorer,
	store ports.CheckpointStore,
	logger *slog.Logger,
) (*Pipeline, error) {
	if collector == nil || scorer == nil || store == nil {
		return nil, fmt.Errorf("collector, scorer, and store are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	agg, err := scoring.NewAggregator(cfg.Scoring.MinScore, cfg.Scoring.TopN)
	if err != nil {
		return nil, err
	}
	generator, err := report.NewGenerator(cfg.Output.Title)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		cfg:       cfg,
		collector: collector,
		scorer:    scorer,
		agg:       agg,
		generator: generator,
		store:     store,
		logger:    logger.With("component", "pipeline"),
		now:       time.Now,
	}, nil
}

// Build constructs a pipeline from configuration: judge client with the
// full middleware chain, file-backed checkpoints, and the configured
// sources.
func Build(cfg Config, logger *slog.Logger, metrics ports.MetricsCollector) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := checkpoint.NewFileStore(cfg.Checkpoint.Dir)
	if err != nil {
		return nil, err
	}

	judgeClient, err := buildJudgeClient(cfg.Judge, metrics)
	if err != nil {
		return nil, err
	}

	collector, err := buildCollector(cfg, logger)
	if err != nil {
		return nil, err
	}

	scorer, err := scoring.NewBatchScorer(
		judgeClient,
		store,
		cfg.Scoring.Weights,
		scoring.Config{
			BatchSize:   cfg.Scoring.BatchSize,
			Concurrency: cfg.Scoring.Concurrency,
			Temperature: cfg.Scoring.Temperature,
			MaxTokens:   cfg.Scoring.MaxTokens,
			Stage:       StageScoring,
			Topic:       topicSummary(cfg.Topics),
		},
		logger,
		metrics,
	)
	if err != nil {
		return nil, err
	}

	return NewPipeline(cfg, collector, scorer, store, logger)
}

// buildJudgeClient assembles the judge client with retry, rate limiting,
// per-request timeouts, metrics, and tracing.
func buildJudgeClient(cfg JudgeConfig, metrics ports.MetricsCollector) (ports.JudgeClient, error) {
	middleware := []judge.Middleware{
		judge.TracingMiddleware("zhilan"),
		judge.RetryMiddleware(judge.RetryConfig{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
		}),
	}
	if cfg.BreakerMaxFailures > 0 {
		middleware = append(middleware, judge.CircuitBreakerMiddleware(cfg.BreakerMaxFailures, cfg.BreakerCooldown))
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		middleware = append(middleware, judge.RateLimitMiddleware(rate.Limit(cfg.RequestsPerSecond), burst))
	}
	middleware = append(middleware, judge.MetricsMiddleware(metrics))
	if cfg.RequestTimeout > 0 {
		middleware = append(middleware, judge.TimeoutMiddleware(cfg.RequestTimeout))
	}

	return judge.NewClient(cfg.Provider, judge.ClientConfig{
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		BaseURL:    cfg.BaseURL,
		Middleware: middleware,
	})
}

// buildCollector assembles the enabled sources.
func buildCollector(cfg Config, logger *slog.Logger) (ports.Collector, error) {
	httpClient := &http.Client{Timeout: 20 * time.Second}

	var sources []collect.Source
	if cfg.Sources.WebSearch {
		sources = append(sources, collect.NewWebSearchSource("", httpClient))
	}
	if cfg.Sources.NewsAPIKey != "" {
		newsSource, err := collect.NewNewsAPISource(cfg.Sources.NewsAPIKey, "", httpClient)
		if err != nil {
			return nil, err
		}
		sources = append(sources, newsSource)
	}
	if cfg.Sources.Arxiv {
		sources = append(sources, collect.NewArxivSource("", 0))
	}

	return collect.NewMultiSourceCollector(sources, cfg.Sources.FetchConcurrency, logger)
}

// Run executes a full pipeline pass. With fresh set, prior checkpoints are
// discarded first. On success both stage checkpoints are cleared so the
// next run starts clean.
func (p *Pipeline) Run(ctx context.Context, fresh bool) (RunResult, error) {
	var result RunResult

	if fresh {
		for _, stage := range []string{StageCollection, StageScoring} {
			if err := p.store.Clear(stage); err != nil {
				return result, fmt.Errorf("failed to clear %s checkpoint: %w", stage, err)
			}
		}
	}

	items, err := p.collectItems(ctx)
	if err != nil {
		return result, err
	}
	if len(items) == 0 {
		p.logger.Warn("no items collected, nothing to score")
		return result, nil
	}

	scored, summary, err := p.scorer.ScoreAll(ctx, items)
	if err != nil {
		return result, err
	}

	accepted := p.agg.Select(scored, &summary)
	result.Summary = summary
	result.Accepted = accepted
	p.logger.Info("selection complete", "summary", summary.String())

	// The synthesis call is best effort; a run without it still reports.
	var insights *domain.Insights
	if len(accepted) > 0 {
		ins, insErr := p.scorer.Insights(ctx, accepted)
		if insErr != nil {
			p.logger.Warn("reporting without insights", "error", insErr)
		} else {
			insights = ins
		}
	}

	if err := p.writeReports(&result, accepted, summary, insights); err != nil {
		return result, err
	}

	// The run is durable on disk now; drop resume state.
	for _, stage := range []string{StageCollection, StageScoring} {
		if err := p.store.Clear(stage); err != nil {
			return result, fmt.Errorf("failed to clear %s checkpoint: %w", stage, err)
		}
	}

	return result, nil
}

// collectItems returns the checkpointed item set when one exists so a
// resumed run scores the exact items the interrupted run collected.
func (p *Pipeline) collectItems(ctx context.Context) ([]domain.Item, error) {
	var items []domain.Item
	found, err := p.store.Load(StageCollection, &items)
	if err != nil {
		return nil, fmt.Errorf("failed to load collection checkpoint: %w", err)
	}
	if found {
		p.logger.Info("reusing checkpointed collection", "items", len(items))
		return items, nil
	}

	window := p.cfg.Window(p.now())
	items, err = p.collector.Collect(ctx, p.cfg.Topics, window)
	if err != nil {
		return nil, fmt.Errorf("collection failed: %w", err)
	}

	if err := p.store.Save(StageCollection, items); err != nil {
		return nil, fmt.Errorf("failed to checkpoint collection: %w", err)
	}
	return items, nil
}

func (p *Pipeline) writeReports(result *RunResult, accepted []domain.ScoredItem, summary domain.RunSummary, insights *domain.Insights) error {
	if err := os.MkdirAll(p.cfg.Output.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	stamp := p.now().Format("2006-01-02_150405")

	md, err := p.generator.Markdown(accepted, summary, insights)
	if err != nil {
		return err
	}
	result.ReportPath = filepath.Join(p.cfg.Output.Dir, fmt.Sprintf("digest_%s.md", stamp))
	if err := os.WriteFile(result.ReportPath, []byte(md), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if p.cfg.Output.HTML {
		html, err := p.generator.HTML(accepted, summary, insights)
		if err != nil {
			return err
		}
		result.HTMLPath = filepath.Join(p.cfg.Output.Dir, fmt.Sprintf("digest_%s.html", stamp))
		if err := os.WriteFile(result.HTMLPath, []byte(html), 0o644); err != nil {
			return fmt.Errorf("failed to write HTML report: %w", err)
		}
	}

	p.logger.Info("report written", "path", result.ReportPath)
	return nil
}

// topicSummary joins topics for prompt interpolation.
func topicSummary(topics []string) string {
	switch len(topics) {
	case 0:
		return ""
	case 1:
		return topics[0]
	default:
		out := topics[0]
		for _, t := range topics[1 : len(topics)-1] {
			out += ", " + t
		}
		return out + " and " + topics[len(topics)-1]
	}
}
