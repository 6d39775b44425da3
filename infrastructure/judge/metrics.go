package judge

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/weizhiyuan62/zhilan/internal/ports"
)

type metricsJudge struct {
	next      CoreJudge
	collector ports.MetricsCollector
}

// MetricsMiddleware records latency, request counts, and token usage for
// every judge call. A nil collector disables collection without removing
// the middleware from the chain.
func MetricsMiddleware(collector ports.MetricsCollector) Middleware {
	return func(next CoreJudge) CoreJudge {
		return &metricsJudge{next: next, collector: collector}
	}
}

// DoRequest executes the request while recording metrics labeled by
// provider, model, and outcome.
func (m *metricsJudge) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	start := time.Now()
	response, tokensIn, tokensOut, err := m.next.DoRequest(ctx, prompt, opts)

	labels := map[string]string{
		"provider": m.providerLabel(),
		"model":    m.next.GetModel(),
		"status":   "success",
	}

	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			labels["status"] = "timeout"
		case IsFatal(err):
			labels["status"] = "fatal"
		default:
			labels["status"] = "error"
		}
	}

	if m.collector != nil {
		m.collector.RecordHistogram("judge_latency_seconds", time.Since(start).Seconds(), labels)
		m.collector.RecordCounter("judge_requests_total", 1, labels)

		if err == nil {
			labels["token_type"] = "input"
			m.collector.RecordCounter("judge_tokens_total", float64(tokensIn), labels)

			labels["token_type"] = "output"
			m.collector.RecordCounter("judge_tokens_total", float64(tokensOut), labels)
		}
	}

	return response, tokensIn, tokensOut, err
}

func (m *metricsJudge) providerLabel() string {
	model := m.next.GetModel()
	switch {
	case strings.Contains(model, "gpt"):
		return "openai"
	case strings.Contains(model, "claude"):
		return "anthropic"
	default:
		return "unknown"
	}
}

// GetModel returns the model name from the wrapped implementation.
func (m *metricsJudge) GetModel() string { return m.next.GetModel() }
