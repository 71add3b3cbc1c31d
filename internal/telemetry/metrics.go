package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// GateMetricsMeterName is the name used for the gate metrics meter
	GateMetricsMeterName = "github.com/hit-sharq/kasikeu-boys-high-school/gate"
)

// GateMetrics holds the OpenTelemetry instruments for gate decisions,
// identity resolution and webhook deliveries
type GateMetrics struct {
	decisionsTotal  metric.Int64Counter
	resolveDuration metric.Float64Histogram
	webhookEvents   metric.Int64Counter
}

// NewGateMetrics creates a new GateMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewGateMetrics(provider metric.MeterProvider) (*GateMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(GateMetricsMeterName)

	decisionsTotal, err := meter.Int64Counter(
		"school_gate_decisions_total",
		metric.WithDescription("Gate decisions by route classification and outcome"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	resolveDuration, err := meter.Float64Histogram(
		"school_gate_identity_resolve_duration_seconds",
		metric.WithDescription("Duration of identity resolution in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2),
	)
	if err != nil {
		return nil, err
	}

	webhookEvents, err := meter.Int64Counter(
		"school_gate_webhook_events_total",
		metric.WithDescription("Identity webhook deliveries by event type and result"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	return &GateMetrics{
		decisionsTotal:  decisionsTotal,
		resolveDuration: resolveDuration,
		webhookEvents:   webhookEvents,
	}, nil
}

// RecordDecision counts one gate decision
func (m *GateMetrics) RecordDecision(ctx context.Context, classification, decision string) {
	if m == nil || m.decisionsTotal == nil {
		return
	}

	m.decisionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("classification", classification),
		attribute.String("decision", decision),
	))
}

// RecordResolve records how long identity resolution took and how it ended
func (m *GateMetrics) RecordResolve(ctx context.Context, outcome string, duration time.Duration) {
	if m == nil || m.resolveDuration == nil {
		return
	}

	m.resolveDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

// RecordWebhookEvent counts one webhook delivery
func (m *GateMetrics) RecordWebhookEvent(ctx context.Context, eventType, result string) {
	if m == nil || m.webhookEvents == nil {
		return
	}

	m.webhookEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", eventType),
		attribute.String("result", result),
	))
}
