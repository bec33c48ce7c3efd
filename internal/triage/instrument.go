package triage

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var llmTracer = otel.Tracer("github.com/linnemanlabs/bursar/internal/triage")

// instrumentedProvider wraps a Provider with per-call metrics and tracing.
type instrumentedProvider struct {
	inner   Provider
	metrics *Metrics
	op      string
}

// InstrumentProvider returns a Provider that records an llm.call span plus
// call counts, token usage, and duration under the given operation label.
// metrics may be nil.
func InstrumentProvider(inner Provider, metrics *Metrics, op string) Provider {
	return &instrumentedProvider{inner: inner, metrics: metrics, op: op}
}

func (p *instrumentedProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	ctx, span := llmTracer.Start(ctx, "llm.call", trace.WithAttributes(
		attribute.String("gen_ai.operation.name", "llm.call"),
		attribute.String("bursar.llm.op", p.op),
		attribute.Int("gen_ai.request.max_tokens", req.MaxTokens),
	))
	defer span.End()

	start := time.Now()
	resp, err := p.inner.Complete(ctx, req)

	var usage Usage
	if resp != nil {
		usage = resp.Usage
		span.SetAttributes(
			attribute.Int("gen_ai.usage.input_tokens", usage.InputTokens),
			attribute.Int("gen_ai.usage.output_tokens", usage.OutputTokens),
		)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	p.metrics.observeLLM(p.op, usage, time.Since(start).Seconds(), err)

	return resp, err
}
