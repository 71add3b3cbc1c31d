package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/hit-sharq/kasikeu-boys-high-school/internal/versions"
)

// TracerProviderOption configures NewTracerProvider
type TracerProviderOption func(*tracerSetup)

type tracerSetup struct {
	serviceName    string
	serviceVersion string
	tracing        *TracingConfig
	endpoint       string
	insecure       bool

	// exporter replaces the OTLP exporter when set
	exporter sdktrace.SpanExporter
}

// WithTracerServiceName sets the service.name resource attribute
func WithTracerServiceName(name string) TracerProviderOption {
	return func(s *tracerSetup) {
		s.serviceName = name
	}
}

// WithTracerServiceVersion sets the service.version resource attribute
func WithTracerServiceVersion(version string) TracerProviderOption {
	return func(s *tracerSetup) {
		s.serviceVersion = version
	}
}

// WithTracingConfig sets the tracing section of the configuration
func WithTracingConfig(tc *TracingConfig) TracerProviderOption {
	return func(s *tracerSetup) {
		s.tracing = tc
	}
}

// WithTracerEndpoint sets the OTLP/HTTP collector address
func WithTracerEndpoint(endpoint string) TracerProviderOption {
	return func(s *tracerSetup) {
		s.endpoint = endpoint
	}
}

// WithTracerInsecure sends spans over plain HTTP
func WithTracerInsecure(insecure bool) TracerProviderOption {
	return func(s *tracerSetup) {
		s.insecure = insecure
	}
}

// WithSpanExporter exports spans to exp instead of the OTLP collector
func WithSpanExporter(exp sdktrace.SpanExporter) TracerProviderOption {
	return func(s *tracerSetup) {
		s.exporter = exp
	}
}

// NewTracerProvider returns an SDK tracer provider when tracing is enabled and
// a no-op provider otherwise. The SDK provider becomes the global provider and
// the caller must Shut it down.
//
// Sampling is parent based: when the site's edge already decided to sample a
// request, the gate's spans follow that decision; the configured ratio only
// applies to requests that arrive without trace context.
func NewTracerProvider(ctx context.Context, opts ...TracerProviderOption) (trace.TracerProvider, error) {
	s := &tracerSetup{
		serviceName:    DefaultServiceName,
		serviceVersion: versions.Version,
		endpoint:       DefaultEndpoint,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.tracing == nil || !s.tracing.Enabled {
		slog.Info("Tracing disabled, using no-op tracer provider")
		return noop.NewTracerProvider(), nil
	}

	res, err := newServiceResource(ctx, s.serviceName, s.serviceVersion)
	if err != nil {
		return nil, err
	}

	exporter := s.exporter
	if exporter == nil {
		exporter, err = newOTLPSpanExporter(ctx, s.endpoint, s.insecure)
		if err != nil {
			return nil, err
		}
		if s.insecure {
			slog.Warn("Spans are exported over unencrypted HTTP; use only in development")
		}
	}

	ratio := s.tracing.GetSampling()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	slog.Info("Tracing initialized",
		"endpoint", s.endpoint,
		"sampling_ratio", ratio,
		"custom_exporter", s.exporter != nil,
	)
	return tp, nil
}

func newOTLPSpanExporter(ctx context.Context, endpoint string, insecure bool) (sdktrace.SpanExporter, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}
	return exporter, nil
}
