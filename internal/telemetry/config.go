// Package telemetry wires OpenTelemetry into the school gate: an OTLP/HTTP
// trace exporter, metrics pushed over OTLP and/or scraped by Prometheus, and
// the HTTP middleware that feeds them.
package telemetry

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/hit-sharq/kasikeu-boys-high-school/internal/versions"
)

const (
	// DefaultServiceName identifies the gate in the collector
	DefaultServiceName = "school-gate"

	// DefaultEndpoint is an OTLP/HTTP collector on the same host
	DefaultEndpoint = "localhost:4318"

	// DefaultSampling keeps 5% of traces that start at the gate
	DefaultSampling = 0.05
)

// Config is the telemetry section of the gate configuration
type Config struct {
	// Enabled turns telemetry on. Nothing below is read when it is false.
	Enabled bool `yaml:"enabled"`

	ServiceName string `yaml:"serviceName,omitempty"`

	// ServiceVersion defaults to the binary's build version
	ServiceVersion string `yaml:"serviceVersion,omitempty"`

	// Endpoint is the collector as host:port; the exporters add /v1/traces
	// and /v1/metrics themselves.
	Endpoint string `yaml:"endpoint,omitempty"`

	// Insecure exports over plain HTTP
	Insecure bool `yaml:"insecure,omitempty"`

	Tracing *TracingConfig `yaml:"tracing,omitempty"`
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`
}

// TracingConfig controls span export
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Sampling is the ratio of root traces kept, in (0, 1]. Nil means
	// DefaultSampling.
	Sampling *float64 `yaml:"sampling,omitempty"`
}

// MetricsConfig controls the two metric exporters, which are independent
type MetricsConfig struct {
	// Enabled pushes metrics to the OTLP endpoint
	Enabled bool `yaml:"enabled"`

	// Prometheus serves metrics on /metrics
	Prometheus bool `yaml:"prometheus,omitempty"`
}

// GetServiceName returns ServiceName or DefaultServiceName
func (c *Config) GetServiceName() string {
	if c.ServiceName == "" {
		return DefaultServiceName
	}
	return c.ServiceName
}

// GetServiceVersion returns ServiceVersion or the build version
func (c *Config) GetServiceVersion() string {
	if c.ServiceVersion == "" {
		return versions.Version
	}
	return c.ServiceVersion
}

// GetEndpoint returns Endpoint or DefaultEndpoint
func (c *Config) GetEndpoint() string {
	if c.Endpoint == "" {
		return DefaultEndpoint
	}
	return c.Endpoint
}

// GetInsecure reports whether export uses plain HTTP
func (c *Config) GetInsecure() bool {
	return c.Insecure
}

// GetSampling returns Sampling or DefaultSampling. Call Validate first.
func (c *TracingConfig) GetSampling() float64 {
	if c.Sampling == nil {
		return DefaultSampling
	}
	return *c.Sampling
}

// Validate checks an enabled configuration. Nil and disabled configurations
// are always valid.
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	var errs []error
	if c.Endpoint != "" {
		if err := validateEndpoint(c.Endpoint); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.Tracing.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tracing: %w", err))
	}
	if err := c.Metrics.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("metrics: %w", err))
	}
	return errors.Join(errs...)
}

// Validate checks the sampling ratio of enabled tracing
func (c *TracingConfig) Validate() error {
	if c == nil || !c.Enabled || c.Sampling == nil {
		return nil
	}
	if s := *c.Sampling; s <= 0 || s > 1.0 {
		return fmt.Errorf("sampling must be greater than 0.0 and at most 1.0, got %f", s)
	}
	return nil
}

// Validate accepts any combination of exporters, including none
func (c *MetricsConfig) Validate() error {
	return nil
}

func (c *MetricsConfig) anyExporter() bool {
	return c != nil && (c.Enabled || c.Prometheus)
}

// validateEndpoint rejects URLs; the OTLP HTTP exporters take host:port and
// would otherwise fail on the first export instead of at startup.
func validateEndpoint(endpoint string) error {
	if strings.Contains(endpoint, "://") {
		return fmt.Errorf("endpoint must be host:port without a scheme, got %q", endpoint)
	}
	if _, _, err := net.SplitHostPort(endpoint); err != nil {
		return fmt.Errorf("endpoint must be host:port, got %q: %w", endpoint, err)
	}
	return nil
}
