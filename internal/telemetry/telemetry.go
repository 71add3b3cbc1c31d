package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry owns the gate's tracer and meter providers and, when Prometheus is
// enabled, the registry behind /metrics.
type Telemetry struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	metricsHandler http.Handler

	// shutdowns run in reverse order of creation
	shutdowns    []func(context.Context) error
	shutdownOnce sync.Once
	shutdownErr  error
}

// Option configures New
type Option func(*setup)

type setup struct {
	config *Config
}

// WithTelemetryConfig sets the telemetry section of the gate configuration
func WithTelemetryConfig(cfg *Config) Option {
	return func(s *setup) {
		s.config = cfg
	}
}

// New builds the providers described by the configuration. A missing or
// disabled configuration yields no-op providers. Shutdown must be called on
// exit to flush buffered spans and metrics.
func New(ctx context.Context, opts ...Option) (*Telemetry, error) {
	s := &setup{}
	for _, opt := range opts {
		opt(s)
	}

	cfg := s.config
	if cfg == nil || !cfg.Enabled {
		slog.Debug("Telemetry disabled")
		return newNoOpTelemetry(ctx)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry configuration: %w", err)
	}

	slog.Info("Initializing telemetry",
		"service_name", cfg.GetServiceName(),
		"service_version", cfg.GetServiceVersion(),
	)

	t := &Telemetry{}

	tp, err := NewTracerProvider(ctx,
		WithTracerServiceName(cfg.GetServiceName()),
		WithTracerServiceVersion(cfg.GetServiceVersion()),
		WithTracingConfig(cfg.Tracing),
		WithTracerEndpoint(cfg.GetEndpoint()),
		WithTracerInsecure(cfg.GetInsecure()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer provider: %w", err)
	}
	t.tracerProvider = tp
	if sdkTP, ok := tp.(*sdktrace.TracerProvider); ok {
		t.onShutdown("tracer provider", sdkTP.Shutdown)
	}

	meterOpts := []MeterProviderOption{
		WithMeterServiceName(cfg.GetServiceName()),
		WithMeterServiceVersion(cfg.GetServiceVersion()),
		WithMetricsConfig(cfg.Metrics),
		WithMeterEndpoint(cfg.GetEndpoint()),
		WithMeterInsecure(cfg.GetInsecure()),
	}
	if cfg.Metrics != nil && cfg.Metrics.Prometheus {
		reg := newScrapeRegistry()
		meterOpts = append(meterOpts, WithPrometheusRegisterer(reg))
		t.metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	}

	mp, err := NewMeterProvider(ctx, meterOpts...)
	if err != nil {
		_ = t.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create meter provider: %w", err)
	}
	t.meterProvider = mp
	if sdkMP, ok := mp.(*sdkmetric.MeterProvider); ok {
		t.onShutdown("meter provider", sdkMP.Shutdown)
	}

	slog.Info("Telemetry initialized successfully",
		"prometheus", t.metricsHandler != nil)
	return t, nil
}

// newScrapeRegistry returns a registry private to this server, so /metrics
// shows the gate and its runtime and nothing registered globally by libraries.
func newScrapeRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)
	return reg
}

func newNoOpTelemetry(ctx context.Context) (*Telemetry, error) {
	tp, err := NewTracerProvider(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create no-op tracer provider: %w", err)
	}
	mp, err := NewMeterProvider(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create no-op meter provider: %w", err)
	}
	return &Telemetry{tracerProvider: tp, meterProvider: mp}, nil
}

func (t *Telemetry) onShutdown(what string, fn func(context.Context) error) {
	t.shutdowns = append(t.shutdowns, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return fmt.Errorf("failed to shutdown %s: %w", what, err)
		}
		slog.Debug("Telemetry component shut down", "component", what)
		return nil
	})
}

// TracerProvider returns the tracer provider
func (t *Telemetry) TracerProvider() trace.TracerProvider {
	return t.tracerProvider
}

// MeterProvider returns the meter provider
func (t *Telemetry) MeterProvider() metric.MeterProvider {
	return t.meterProvider
}

// MetricsHandler returns the Prometheus scrape handler, or nil when the
// Prometheus exporter is not enabled
func (t *Telemetry) MetricsHandler() http.Handler {
	return t.metricsHandler
}

// Tracer returns a named tracer
func (t *Telemetry) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return t.tracerProvider.Tracer(name, opts...)
}

// Meter returns a named meter
func (t *Telemetry) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	return t.meterProvider.Meter(name, opts...)
}

// Shutdown flushes and stops the SDK providers. Later calls return the result
// of the first.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	t.shutdownOnce.Do(func() {
		if len(t.shutdowns) == 0 {
			return
		}
		slog.Info("Shutting down telemetry")

		var errs []error
		for i := len(t.shutdowns) - 1; i >= 0; i-- {
			if err := t.shutdowns[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
		t.shutdownErr = errors.Join(errs...)
	})
	return t.shutdownErr
}
