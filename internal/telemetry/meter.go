package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/hit-sharq/kasikeu-boys-high-school/internal/versions"
)

// DefaultMetricsInterval is how often metrics are pushed over OTLP
const DefaultMetricsInterval = 60 * time.Second

// MeterProviderOption configures NewMeterProvider
type MeterProviderOption func(*meterSetup)

type meterSetup struct {
	serviceName    string
	serviceVersion string
	metrics        *MetricsConfig
	endpoint       string
	insecure       bool
	interval       time.Duration
	registerer     prometheus.Registerer
}

// WithMeterServiceName sets the service.name resource attribute
func WithMeterServiceName(name string) MeterProviderOption {
	return func(s *meterSetup) {
		s.serviceName = name
	}
}

// WithMeterServiceVersion sets the service.version resource attribute
func WithMeterServiceVersion(version string) MeterProviderOption {
	return func(s *meterSetup) {
		s.serviceVersion = version
	}
}

// WithMetricsConfig sets the metrics section of the configuration
func WithMetricsConfig(mc *MetricsConfig) MeterProviderOption {
	return func(s *meterSetup) {
		s.metrics = mc
	}
}

// WithMeterEndpoint sets the OTLP/HTTP collector address
func WithMeterEndpoint(endpoint string) MeterProviderOption {
	return func(s *meterSetup) {
		s.endpoint = endpoint
	}
}

// WithMeterInsecure pushes metrics over plain HTTP
func WithMeterInsecure(insecure bool) MeterProviderOption {
	return func(s *meterSetup) {
		s.insecure = insecure
	}
}

// WithMetricsInterval overrides DefaultMetricsInterval
func WithMetricsInterval(d time.Duration) MeterProviderOption {
	return func(s *meterSetup) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithPrometheusRegisterer sets where the Prometheus exporter registers its
// collector. Defaults to prometheus.DefaultRegisterer.
func WithPrometheusRegisterer(reg prometheus.Registerer) MeterProviderOption {
	return func(s *meterSetup) {
		s.registerer = reg
	}
}

// NewMeterProvider returns an SDK meter provider with one reader per enabled
// exporter, or a no-op provider when none is enabled. The SDK provider becomes
// the global provider and the caller must Shut it down.
func NewMeterProvider(ctx context.Context, opts ...MeterProviderOption) (metric.MeterProvider, error) {
	s := &meterSetup{
		serviceName:    DefaultServiceName,
		serviceVersion: versions.Version,
		endpoint:       DefaultEndpoint,
		interval:       DefaultMetricsInterval,
	}
	for _, opt := range opts {
		opt(s)
	}

	if !s.metrics.anyExporter() {
		slog.Info("Metrics disabled, using no-op meter provider")
		return noop.NewMeterProvider(), nil
	}

	res, err := newServiceResource(ctx, s.serviceName, s.serviceVersion)
	if err != nil {
		return nil, err
	}

	readers, err := s.readers(ctx)
	if err != nil {
		return nil, err
	}

	mpOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range readers {
		mpOpts = append(mpOpts, sdkmetric.WithReader(r))
	}
	mp := sdkmetric.NewMeterProvider(mpOpts...)
	otel.SetMeterProvider(mp)

	slog.Info("Metrics initialized",
		"otlp", s.metrics.Enabled,
		"prometheus", s.metrics.Prometheus,
		"endpoint", s.endpoint,
		"interval", s.interval,
	)
	return mp, nil
}

// readers builds the OTLP push reader and the Prometheus pull reader
func (s *meterSetup) readers(ctx context.Context) ([]sdkmetric.Reader, error) {
	var readers []sdkmetric.Reader

	if s.metrics.Enabled {
		exporter, err := newOTLPMetricExporter(ctx, s.endpoint, s.insecure)
		if err != nil {
			return nil, err
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(s.interval)))
	}

	if s.metrics.Prometheus {
		reg := s.registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
		if err != nil {
			return nil, fmt.Errorf("failed to create Prometheus metrics exporter: %w", err)
		}
		readers = append(readers, exporter)
	}

	return readers, nil
}

func newOTLPMetricExporter(ctx context.Context, endpoint string, insecure bool) (sdkmetric.Exporter, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metrics exporter: %w", err)
	}
	return exporter, nil
}
