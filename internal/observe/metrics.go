// Package observe provides application-wide observability primitives for
// Colloquy: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware tying them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so metrics can be scraped
// from the standard /metrics endpoint. Tests should use [NewMetrics] with a
// custom [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Colloquy metrics.
const meterName = "github.com/colloquyhq/colloquy"

// Metrics holds all OpenTelemetry metric instruments for the application.
// The underlying OTel types handle their own synchronisation.
type Metrics struct {
	// PipelineDuration tracks end-to-end dialogue pipeline latency per input.
	PipelineDuration metric.Float64Histogram

	// LLMDuration tracks model completion latency.
	LLMDuration metric.Float64Histogram

	// ToolDuration tracks tool execution latency.
	ToolDuration metric.Float64Histogram

	// Turns counts committed turns. Attributes:
	//   attribute.String("role", ...), attribute.String("dialogue_type", ...)
	Turns metric.Int64Counter

	// ToolCalls counts tool invocations. Attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// ProactiveExpressions counts proactive expressions by type and outcome.
	// Attributes:
	//   attribute.String("type", ...), attribute.String("outcome", ...)
	ProactiveExpressions metric.Int64Counter

	// Fallbacks counts degraded operations. Attributes:
	//   attribute.String("component", ...) — "store" or "model"
	Fallbacks metric.Int64Counter

	// ActiveSessions tracks sessions touched within the activity window.
	ActiveSessions metric.Int64UpDownCounter

	// PushSubscribers tracks connected WebSocket push subscribers.
	PushSubscribers metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// model-bound dialogue latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.PipelineDuration, err = m.Float64Histogram("colloquy.pipeline.duration",
		metric.WithDescription("End-to-end dialogue pipeline latency per input."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("colloquy.llm.duration",
		metric.WithDescription("Model completion latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolDuration, err = m.Float64Histogram("colloquy.tool.duration",
		metric.WithDescription("Tool execution latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Turns, err = m.Int64Counter("colloquy.turns",
		metric.WithDescription("Committed turns by role and dialogue type."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("colloquy.tool.calls",
		metric.WithDescription("Tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.ProactiveExpressions, err = m.Int64Counter("colloquy.proactive.expressions",
		metric.WithDescription("Proactive expressions by type and outcome."),
	); err != nil {
		return nil, err
	}
	if met.Fallbacks, err = m.Int64Counter("colloquy.fallbacks",
		metric.WithDescription("Degraded operations by component."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("colloquy.active_sessions",
		metric.WithDescription("Sessions with recent activity."),
	); err != nil {
		return nil, err
	}
	if met.PushSubscribers, err = m.Int64UpDownCounter("colloquy.push_subscribers",
		metric.WithDescription("Connected WebSocket push subscribers."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("colloquy.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
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
// first call from [otel.GetMeterProvider]. Panics if instrument creation
// fails, which cannot happen with the global provider.
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

// RecordTurn records a committed turn with the standard attribute set.
func (m *Metrics) RecordTurn(ctx context.Context, role, dialogueType string) {
	m.Turns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("role", role),
		attribute.String("dialogue_type", dialogueType),
	))
}

// RecordToolCall records a tool invocation with the standard attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	))
}

// RecordProactive records a proactive expression outcome.
func (m *Metrics) RecordProactive(ctx context.Context, exprType, outcome string) {
	m.ProactiveExpressions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", exprType),
		attribute.String("outcome", outcome),
	))
}

// RecordFallback records a degraded operation for a component.
func (m *Metrics) RecordFallback(ctx context.Context, component string) {
	m.Fallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("component", component),
	))
}
