package telemetry

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the instrumentation scope of HTTP server spans
	TracerName = "github.com/hit-sharq/kasikeu-boys-high-school/http"

	// MaxUserAgentLength caps the user agent recorded on spans
	MaxUserAgentLength = 256
)

// untracedPaths are health check and scrape endpoints hit on a fixed schedule.
var untracedPaths = map[string]struct{}{
	"/healthz": {},
	"/readyz":  {},
	"/metrics": {},
}

// TracingMiddleware starts a server span per request, continuing any W3C trace
// context the site's edge sent. The span is named after the matched route,
// or after labeler's label for proxied pages, once routing is done. A nil
// provider yields a pass-through.
func TracingMiddleware(provider trace.TracerProvider, labeler RouteLabeler) func(http.Handler) http.Handler {
	if provider == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	tracer := provider.Tracer(TracerName)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, skip := untracedPaths[r.URL.Path]; skip {
				next.ServeHTTP(w, r)
				return
			}

			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
					semconv.UserAgentOriginal(truncateUserAgent(r.UserAgent())),
				),
			)
			defer span.End()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// chi fills the route context in place, so r sees the pattern now
			route := routeLabel(r, labeler)
			span.SetName(r.Method + " " + route)

			status := ww.Status()
			span.SetAttributes(
				semconv.HTTPRouteKey.String(route),
				semconv.HTTPResponseStatusCode(status),
			)
			span.SetStatus(spanStatus(status))
		})
	}
}

// spanStatus maps an HTTP status onto a span status. 4xx stays Unset: the
// gate's 401 and 403 answers are correct behaviour for a server span.
func spanStatus(status int) (codes.Code, string) {
	switch {
	case status >= http.StatusInternalServerError:
		return codes.Error, http.StatusText(status)
	case status >= http.StatusBadRequest:
		return codes.Unset, ""
	default:
		return codes.Ok, ""
	}
}

func truncateUserAgent(ua string) string {
	if len(ua) > MaxUserAgentLength {
		return ua[:MaxUserAgentLength]
	}
	return ua
}
