package judge

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type tracedJudge struct {
	next   CoreJudge
	tracer trace.Tracer
}

// TracingMiddleware wraps each judge call in an OpenTelemetry span carrying
// the model, prompt length, and token usage. Spans are no-ops unless a
// tracer provider is installed.
func TracingMiddleware(serviceName string) Middleware {
	tracer := otel.Tracer(serviceName)
	return func(next CoreJudge) CoreJudge {
		return &tracedJudge{next: next, tracer: tracer}
	}
}

// DoRequest executes the request within a trace span.
func (t *tracedJudge) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	ctx, span := t.tracer.Start(ctx, "judge.request",
		trace.WithAttributes(
			attribute.String("judge.model", t.next.GetModel()),
			attribute.Int("judge.prompt_length", len(prompt)),
		),
	)
	defer span.End()

	response, tokensIn, tokensOut, err := t.next.DoRequest(ctx, prompt, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return response, tokensIn, tokensOut, err
	}

	span.SetAttributes(
		attribute.Int("judge.tokens.input", tokensIn),
		attribute.Int("judge.tokens.output", tokensOut),
	)
	return response, tokensIn, tokensOut, nil
}

// GetModel returns the model name from the wrapped implementation.
func (t *tracedJudge) GetModel() string { return t.next.GetModel() }
