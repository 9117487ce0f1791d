// Package observe provides application-wide observability primitives for
// fitcoach: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all fitcoach metrics.
const meterName = "github.com/MrWong99/fitcoach"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// RunDuration tracks end-to-end orchestration latency, retries included.
	RunDuration metric.Float64Histogram

	// LLMDuration tracks a single provider completion round trip.
	LLMDuration metric.Float64Histogram

	// ToolExecutionDuration tracks domain tool execution latency.
	ToolExecutionDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Attributes: provider, status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts failed provider calls. Attributes: provider, category.
	ProviderErrors metric.Int64Counter

	// ToolCalls counts tool invocations. Attributes: tool, status.
	ToolCalls metric.Int64Counter

	// Retries counts orchestrator retry attempts. Attribute: category.
	Retries metric.Int64Counter

	// Interactions counts logged interactions. Attributes: status, category.
	Interactions metric.Int64Counter

	// LogStoreErrors counts swallowed interaction-log failures.
	// Attributes: backend, op.
	LogStoreErrors metric.Int64Counter

	// StressQuestions counts stress-test questions. Attributes: category, status.
	StressQuestions metric.Int64Counter

	// --- Gauges ---

	// ActiveRuns tracks in-flight orchestrator runs.
	ActiveRuns metric.Int64UpDownCounter

	// ActiveStressTests tracks running stress-test batches.
	ActiveStressTests metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time.
	// Attributes: method, route, status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries in seconds, sized for
// LLM round trips that routinely take several seconds.
var latencyBuckets = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histogram := func(name, desc string) (metric.Float64Histogram, error) {
		return m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
	}

	if met.RunDuration, err = histogram("fitcoach.run.duration",
		"End-to-end latency of one orchestrated conversation turn."); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = histogram("fitcoach.llm.duration",
		"Latency of a single LLM completion request."); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = histogram("fitcoach.tool_execution.duration",
		"Latency of domain tool execution."); err != nil {
		return nil, err
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.ProviderRequests, "fitcoach.provider.requests", "Total provider API requests by provider and status."},
		{&met.ProviderErrors, "fitcoach.provider.errors", "Total provider errors by provider and error category."},
		{&met.ToolCalls, "fitcoach.tool.calls", "Total tool invocations by tool name and status."},
		{&met.Retries, "fitcoach.orchestrator.retries", "Total orchestrator retry attempts by error category."},
		{&met.Interactions, "fitcoach.interactions", "Total logged interactions by status and error category."},
		{&met.LogStoreErrors, "fitcoach.logstore.errors", "Interaction log write failures that were swallowed."},
		{&met.StressQuestions, "fitcoach.stress.questions", "Stress-test questions by question category and status."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.ActiveRuns, err = m.Int64UpDownCounter("fitcoach.active_runs",
		metric.WithDescription("Number of in-flight orchestrator runs."),
	); err != nil {
		return nil, err
	}
	if met.ActiveStressTests, err = m.Int64UpDownCounter("fitcoach.active_stress_tests",
		metric.WithDescription("Number of running stress-test batches."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("fitcoach.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route pattern and status class."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records one provider call and its latency.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, status string, seconds float64) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(Attr("provider", provider), Attr("status", status)))
	m.LLMDuration.Record(ctx, seconds, metric.WithAttributes(Attr("provider", provider)))
}

// RecordProviderError records a failed provider call.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, category string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(Attr("provider", provider), Attr("category", category)))
}

// RecordToolCall records one tool invocation and its latency.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, seconds float64) {
	m.ToolCalls.Add(ctx, 1, metric.WithAttributes(Attr("tool", tool), Attr("status", status)))
	m.ToolExecutionDuration.Record(ctx, seconds, metric.WithAttributes(Attr("tool", tool)))
}

// RecordRetry records one orchestrator retry.
func (m *Metrics) RecordRetry(ctx context.Context, category string) {
	m.Retries.Add(ctx, 1, metric.WithAttributes(Attr("category", category)))
}

// RecordInteraction records one logged interaction. category is empty for
// successful interactions.
func (m *Metrics) RecordInteraction(ctx context.Context, success bool, category string) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.Interactions.Add(ctx, 1, metric.WithAttributes(Attr("status", status), Attr("category", category)))
}

// RecordLogStoreError records a swallowed log store failure.
func (m *Metrics) RecordLogStoreError(ctx context.Context, backend, op string) {
	m.LogStoreErrors.Add(ctx, 1, metric.WithAttributes(Attr("backend", backend), Attr("op", op)))
}

// RecordStressQuestion records one stress-test question outcome.
func (m *Metrics) RecordStressQuestion(ctx context.Context, category, status string) {
	m.StressQuestions.Add(ctx, 1, metric.WithAttributes(Attr("category", category), Attr("status", status)))
}
