package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetricsMeterName is the instrumentation scope of the HTTP instruments
const HTTPMetricsMeterName = "github.com/hit-sharq/kasikeu-boys-high-school/http"

// latencyBuckets favour the sub-100ms range; the gate itself is fast and the
// long tail comes from the proxied site.
var latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// HTTPMetrics records request counts, latency and in-flight requests
type HTTPMetrics struct {
	requestDuration metric.Float64Histogram
	requestsTotal   metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter
	labeler         RouteLabeler
}

// NewHTTPMetrics creates the HTTP instruments on provider. A nil provider
// yields nil metrics, whose Middleware is a pass-through. labeler names
// requests that fall through to the site proxy.
func NewHTTPMetrics(provider metric.MeterProvider, labeler RouteLabeler) (*HTTPMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(HTTPMetricsMeterName)
	m := &HTTPMetrics{labeler: labeler}

	var err error
	m.requestDuration, err = meter.Float64Histogram(
		"school_gate_http_request_duration_seconds",
		metric.WithDescription("Time from the gate receiving a request to the response being written"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	)
	if err != nil {
		return nil, err
	}

	m.requestsTotal, err = meter.Int64Counter(
		"school_gate_http_requests_total",
		metric.WithDescription("Requests handled by the gate, including those it denied"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.activeRequests, err = meter.Int64UpDownCounter(
		"school_gate_http_active_requests",
		metric.WithDescription("Requests currently being handled"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Middleware records one observation per request
func (m *HTTPMetrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The request context may be cancelled by the time ServeHTTP returns
		ctx := r.Context()
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		m.activeRequests.Add(ctx, 1)
		defer m.activeRequests.Add(ctx, -1)

		next.ServeHTTP(ww, r)

		attrs := metric.WithAttributes(
			attribute.String("method", r.Method),
			attribute.String("route", routeLabel(r, m.labeler)),
			attribute.String("status_code", strconv.Itoa(ww.Status())),
		)
		m.requestDuration.Record(ctx, time.Since(start).Seconds(), attrs)
		m.requestsTotal.Add(ctx, 1, attrs)
	})
}

// MetricsMiddleware is NewHTTPMetrics followed by Middleware
func MetricsMiddleware(provider metric.MeterProvider, labeler RouteLabeler) (func(http.Handler) http.Handler, error) {
	metrics, err := NewHTTPMetrics(provider, labeler)
	if err != nil {
		return nil, err
	}
	return metrics.Middleware, nil
}
