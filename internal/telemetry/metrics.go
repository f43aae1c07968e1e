package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Metrics bundles the service-level instruments. A zero value is usable and
// records nothing, so callers never need nil checks.
type Metrics struct {
	toolCalls      metric.Int64Counter
	toolDuration   metric.Float64Histogram
	compiles       metric.Int64Counter
	compileIssues  metric.Int64Counter
	compileLatency metric.Float64Histogram
}

// NewMetrics registers the studio instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("studio")

	toolCalls, err := meter.Int64Counter("studio.tool.calls",
		metric.WithDescription("Total tool operations dispatched"),
		metric.WithUnit("{call}"))
	if err != nil {
		return nil, err
	}
	toolDuration, err := meter.Float64Histogram("studio.tool.duration",
		metric.WithDescription("Tool call duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	compiles, err := meter.Int64Counter("studio.compile.total",
		metric.WithDescription("Total strategy compilations by outcome"),
		metric.WithUnit("{compile}"))
	if err != nil {
		return nil, err
	}
	compileIssues, err := meter.Int64Counter("studio.compile.issues",
		metric.WithDescription("Compile findings by issue code"),
		metric.WithUnit("{issue}"))
	if err != nil {
		return nil, err
	}
	compileLatency, err := meter.Float64Histogram("studio.compile.duration",
		metric.WithDescription("Strategy compile duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		toolCalls:      toolCalls,
		toolDuration:   toolDuration,
		compiles:       compiles,
		compileIssues:  compileIssues,
		compileLatency: compileLatency,
	}, nil
}

// RecordToolCall counts one tool operation and its latency.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, result string, elapsed time.Duration) {
	if m == nil || m.toolCalls == nil {
		return
	}
	attrs := metric.WithAttributes(ToolAttributes(Environment(), tool, result)...)
	m.toolCalls.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
}

// RecordCompile counts one compile pass and its per-issue findings.
func (m *Metrics) RecordCompile(ctx context.Context, statusHint string, issueCodes []string, elapsed time.Duration) {
	if m == nil || m.compiles == nil {
		return
	}
	attrs := metric.WithAttributes(CompileAttributes(Environment(), statusHint)...)
	m.compiles.Add(ctx, 1, attrs)
	m.compileLatency.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
	for _, code := range issueCodes {
		m.compileIssues.Add(ctx, 1, metric.WithAttributes(IssueAttributes(Environment(), code)...))
	}
}
