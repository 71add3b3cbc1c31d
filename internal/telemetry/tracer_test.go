package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestNewTracerProvider(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		tracing *TracingConfig
		wantSDK bool
	}{
		{name: "no tracing section"},
		{name: "tracing disabled", tracing: &TracingConfig{Sampling: floatPtr(1.0)}},
		{name: "tracing enabled", tracing: &TracingConfig{Enabled: true, Sampling: floatPtr(0.5)}, wantSDK: true},
		{name: "default sampling", tracing: &TracingConfig{Enabled: true}, wantSDK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			opts := []TracerProviderOption{WithSpanExporter(tracetest.NewInMemoryExporter())}
			if tt.tracing != nil {
				opts = append(opts, WithTracingConfig(tt.tracing))
			}
			tp, err := NewTracerProvider(ctx, opts...)
			require.NoError(t, err)

			sdkTP, isSDK := tp.(*sdktrace.TracerProvider)
			assert.Equal(t, tt.wantSDK, isSDK)
			if !isSDK {
				_, ok := tp.(noop.TracerProvider)
				assert.True(t, ok, "expected no-op tracer provider")
				return
			}
			require.NoError(t, sdkTP.Shutdown(ctx))
		})
	}
}

func TestNewTracerProvider_OTLPExporter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tp, err := NewTracerProvider(ctx,
		WithTracingConfig(&TracingConfig{Enabled: true}),
		WithTracerEndpoint(newCollector(t)),
		WithTracerInsecure(true),
	)
	require.NoError(t, err)

	sdkTP, ok := tp.(*sdktrace.TracerProvider)
	require.True(t, ok)
	require.NoError(t, sdkTP.Shutdown(ctx))
}

func TestTracerProviderOptions(t *testing.T) {
	t.Parallel()

	tc := &TracingConfig{Enabled: true}
	exp := tracetest.NewInMemoryExporter()

	s := &tracerSetup{}
	for _, opt := range []TracerProviderOption{
		WithTracerServiceName("kbhs-gate"),
		WithTracerServiceVersion("2.0.0"),
		WithTracingConfig(tc),
		WithTracerEndpoint("collector.kasikeu.example:4318"),
		WithTracerInsecure(true),
		WithSpanExporter(exp),
	} {
		opt(s)
	}

	assert.Equal(t, "kbhs-gate", s.serviceName)
	assert.Equal(t, "2.0.0", s.serviceVersion)
	assert.Same(t, tc, s.tracing)
	assert.Equal(t, "collector.kasikeu.example:4318", s.endpoint)
	assert.True(t, s.insecure)
	assert.Same(t, exp, s.exporter)
}

func TestNewTracerProvider_ExportsToInjectedExporter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	exp := tracetest.NewInMemoryExporter()
	tp, err := NewTracerProvider(ctx,
		WithTracerServiceName("school-gate-test"),
		WithTracerServiceVersion("1.2.3"),
		WithTracingConfig(&TracingConfig{Enabled: true, Sampling: floatPtr(1.0)}),
		WithSpanExporter(exp),
	)
	require.NoError(t, err)

	sdkTP, ok := tp.(*sdktrace.TracerProvider)
	require.True(t, ok)

	_, span := tp.Tracer("test").Start(ctx, "gate.decide")
	span.End()
	require.NoError(t, sdkTP.ForceFlush(ctx))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "gate.decide", spans[0].Name)

	res := spans[0].Resource.Set()
	name, _ := res.Value("service.name")
	assert.Equal(t, "school-gate-test", name.AsString())
	version, _ := res.Value("service.version")
	assert.Equal(t, "1.2.3", version.AsString())
	component, _ := res.Value(attribute.Key("school.component"))
	assert.Equal(t, "route-gate", component.AsString())

	require.NoError(t, sdkTP.Shutdown(ctx))
}
