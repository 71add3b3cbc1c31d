package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hit-sharq/kasikeu-boys-high-school/internal/versions"
)

func TestConfig_Defaults(t *testing.T) {
	t.Parallel()

	empty := &Config{}
	assert.Equal(t, DefaultServiceName, empty.GetServiceName())
	assert.Equal(t, versions.Version, empty.GetServiceVersion())
	assert.Equal(t, DefaultEndpoint, empty.GetEndpoint())
	assert.False(t, empty.GetInsecure())
	assert.InDelta(t, DefaultSampling, (&TracingConfig{}).GetSampling(), 1e-9)

	set := &Config{
		ServiceName:    "kbhs-gate",
		ServiceVersion: "1.4.0",
		Endpoint:       "otel-collector:4318",
		Insecure:       true,
	}
	assert.Equal(t, "kbhs-gate", set.GetServiceName())
	assert.Equal(t, "1.4.0", set.GetServiceVersion())
	assert.Equal(t, "otel-collector:4318", set.GetEndpoint())
	assert.True(t, set.GetInsecure())
	assert.InDelta(t, 0.25, (&TracingConfig{Sampling: floatPtr(0.25)}).GetSampling(), 1e-9)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		config *Config
		errMsg string
	}{
		{name: "nil config", config: nil},
		{name: "disabled config ignores bad values", config: &Config{
			Endpoint: "http://collector:4318",
			Tracing:  &TracingConfig{Enabled: true, Sampling: floatPtr(7)},
		}},
		{name: "enabled with no sections", config: &Config{Enabled: true}},
		{name: "full config", config: &Config{
			Enabled:  true,
			Endpoint: "otel-collector:4318",
			Tracing:  &TracingConfig{Enabled: true, Sampling: floatPtr(1.0)},
			Metrics:  &MetricsConfig{Enabled: true, Prometheus: true},
		}},
		{name: "prometheus only", config: &Config{
			Enabled: true,
			Metrics: &MetricsConfig{Prometheus: true},
		}},
		{name: "disabled tracing ignores sampling", config: &Config{
			Enabled: true,
			Tracing: &TracingConfig{Sampling: floatPtr(-1)},
		}},
		{
			name:   "zero sampling",
			config: &Config{Enabled: true, Tracing: &TracingConfig{Enabled: true, Sampling: floatPtr(0)}},
			errMsg: "tracing: sampling must be greater than 0.0",
		},
		{
			name:   "sampling above one",
			config: &Config{Enabled: true, Tracing: &TracingConfig{Enabled: true, Sampling: floatPtr(1.5)}},
			errMsg: "at most 1.0",
		},
		{
			name:   "endpoint with scheme",
			config: &Config{Enabled: true, Endpoint: "https://collector.kasikeu.example:4318"},
			errMsg: "without a scheme",
		},
		{
			name:   "endpoint without port",
			config: &Config{Enabled: true, Endpoint: "collector"},
			errMsg: "endpoint must be host:port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.config.Validate()
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestConfig_ValidateJoinsErrors(t *testing.T) {
	t.Parallel()

	err := (&Config{
		Enabled:  true,
		Endpoint: "collector",
		Tracing:  &TracingConfig{Enabled: true, Sampling: floatPtr(2)},
	}).Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint must be host:port")
	assert.Contains(t, err.Error(), "tracing: sampling")
}

func TestMetricsConfig_AnyExporter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		config *MetricsConfig
		want   bool
	}{
		{name: "nil", want: false},
		{name: "none", config: &MetricsConfig{}, want: false},
		{name: "otlp", config: &MetricsConfig{Enabled: true}, want: true},
		{name: "prometheus", config: &MetricsConfig{Prometheus: true}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.config.anyExporter())
			assert.NoError(t, tt.config.Validate())
		})
	}
}
