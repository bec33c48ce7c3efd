package triage

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInstrumentProvider_CreatesSpans(t *testing.T) {
	// Not parallel: swaps the global OTel tracer provider.

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	inner := &mockProvider{fn: func(_ *CompletionRequest) (*CompletionResponse, error) {
		return &CompletionResponse{
			Text:  "ok",
			Usage: Usage{InputTokens: 100, OutputTokens: 40},
		}, nil
	}}

	p := InstrumentProvider(inner, nil, "classify")
	if _, err := p.Complete(context.Background(), &CompletionRequest{Prompt: "hi", MaxTokens: 512}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	s := spans[0]
	if s.Name != "llm.call" {
		t.Errorf("span name = %q, want llm.call", s.Name)
	}

	attrs := make(map[string]any)
	for _, a := range s.Attributes {
		attrs[string(a.Key)] = a.Value.AsInterface()
	}
	if v := attrs["gen_ai.operation.name"]; v != "llm.call" {
		t.Errorf("gen_ai.operation.name = %v, want llm.call", v)
	}
	if v := attrs["bursar.llm.op"]; v != "classify" {
		t.Errorf("bursar.llm.op = %v, want classify", v)
	}
	if v := attrs["gen_ai.request.max_tokens"]; v != int64(512) {
		t.Errorf("gen_ai.request.max_tokens = %v, want 512", v)
	}
	if v := attrs["gen_ai.usage.input_tokens"]; v != int64(100) {
		t.Errorf("gen_ai.usage.input_tokens = %v, want 100", v)
	}
	if v := attrs["gen_ai.usage.output_tokens"]; v != int64(40) {
		t.Errorf("gen_ai.usage.output_tokens = %v, want 40", v)
	}
}

func TestInstrumentProvider_RecordsMetricsAndErrors(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	boom := errors.New("rate limited")
	inner := &mockProvider{fn: func(_ *CompletionRequest) (*CompletionResponse, error) {
		return nil, boom
	}}

	p := InstrumentProvider(inner, m, "draft")
	if _, err := p.Complete(context.Background(), &CompletionRequest{Prompt: "hi"}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var found bool
	for _, mf := range mfs {
		if mf.GetName() != "bursar_llm_calls_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["op"] == "draft" && labels["outcome"] == "error" && metric.GetCounter().GetValue() == 1 {
				found = true
			}
		}
	}
	if !found {
		t.Error("bursar_llm_calls_total{op=draft,outcome=error} not incremented")
	}
}
