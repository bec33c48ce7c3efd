package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the triage subsystem. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	RunsTotal        *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	MessagesTotal    *prometheus.CounterVec
	SkippedTotal     prometheus.Counter
	DroppedTotal     *prometheus.CounterVec
	LLMCallsTotal    *prometheus.CounterVec
	LLMTokensIn      *prometheus.CounterVec
	LLMTokensOut     *prometheus.CounterVec
	LLMDuration      *prometheus.HistogramVec
	ResolutionsTotal *prometheus.CounterVec
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bursar_runs_total",
			Help: "Total pipeline runs by final status.",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bursar_run_duration_seconds",
			Help:    "Duration of pipeline runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s .. ~512s
		}, []string{"status"}),
		MessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bursar_messages_total",
			Help: "Messages queued for approval by route.",
		}, []string{"route"}),
		SkippedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bursar_messages_skipped_total",
			Help: "Messages skipped by the dedup guard.",
		}),
		DroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bursar_messages_dropped_total",
			Help: "Messages dropped by per-item failures, by stage.",
		}, []string{"stage"}),
		LLMCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bursar_llm_calls_total",
			Help: "Total LLM provider calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		LLMTokensIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bursar_llm_tokens_input_total",
			Help: "Total LLM input tokens consumed by operation.",
		}, []string{"op"}),
		LLMTokensOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bursar_llm_tokens_output_total",
			Help: "Total LLM output tokens consumed by operation.",
		}, []string{"op"}),
		LLMDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bursar_llm_call_duration_seconds",
			Help:    "Duration of individual LLM calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s .. ~64s
		}, []string{"op"}),
		ResolutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bursar_resolutions_total",
			Help: "Approval-queue resolutions by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.MessagesTotal,
		m.SkippedTotal,
		m.DroppedTotal,
		m.LLMCallsTotal,
		m.LLMTokensIn,
		m.LLMTokensOut,
		m.LLMDuration,
		m.ResolutionsTotal,
	)

	return m
}

func (m *Metrics) incRun(status string, seconds float64) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.WithLabelValues(status).Observe(seconds)
}

func (m *Metrics) incRoute(route Route) {
	if m == nil {
		return
	}
	m.MessagesTotal.WithLabelValues(string(route)).Inc()
}

func (m *Metrics) incSkipped() {
	if m == nil {
		return
	}
	m.SkippedTotal.Inc()
}

func (m *Metrics) incDropped(stage string) {
	if m == nil {
		return
	}
	m.DroppedTotal.WithLabelValues(stage).Inc()
}

func (m *Metrics) incResolution(outcome string) {
	if m == nil {
		return
	}
	m.ResolutionsTotal.WithLabelValues(outcome).Inc()
}

// observeLLM records one provider call for the instrumented provider.
func (m *Metrics) observeLLM(op string, usage Usage, seconds float64, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.LLMCallsTotal.WithLabelValues(op, outcome).Inc()
	m.LLMTokensIn.WithLabelValues(op).Add(float64(usage.InputTokens))
	m.LLMTokensOut.WithLabelValues(op).Add(float64(usage.OutputTokens))
	m.LLMDuration.WithLabelValues(op).Observe(seconds)
}
