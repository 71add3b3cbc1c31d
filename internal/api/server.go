// Package api assembles the school gate's HTTP surface.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/hit-sharq/kasikeu-boys-high-school/internal/gate"
	"github.com/hit-sharq/kasikeu-boys-high-school/internal/users"
)

// Paths served by the process itself
const (
	HealthPath     = "/healthz"
	ReadinessPath  = "/readyz"
	VersionPath    = "/version"
	MetricsPath    = "/metrics"
	CheckAdminPath = "/api/auth/check-admin"
	WebhookPath    = "/api/webhooks/identity"
	AdminUsersPath = "/api/admin/users"
)

// InfraPaths are served without running the gate.
var InfraPaths = []string{HealthPath, ReadinessPath, VersionPath, MetricsPath}

// ReadinessChecker reports whether the gate can verify sessions yet.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// ServerOption configures the HTTP server
type ServerOption func(*serverConfig)

// serverConfig holds the server configuration
type serverConfig struct {
	middlewares      []func(http.Handler) http.Handler
	readiness        ReadinessChecker
	metrics          http.Handler
	webhook          http.Handler
	webhookRateLimit int
	upstream         http.Handler
	userStore        users.Store
}

// WithMiddlewares adds middleware that runs before the gate
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithReadinessChecker sets the check behind the readiness endpoint
func WithReadinessChecker(c ReadinessChecker) ServerOption {
	return func(cfg *serverConfig) {
		cfg.readiness = c
	}
}

// WithMetricsHandler mounts a Prometheus handler at MetricsPath
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.metrics = h
	}
}

// WithWebhook mounts the identity webhook at WebhookPath, limited to
// perMinute requests per client IP. A non-positive limit disables limiting.
func WithWebhook(h http.Handler, perMinute int) ServerOption {
	return func(cfg *serverConfig) {
		cfg.webhook = h
		cfg.webhookRateLimit = perMinute
	}
}

// WithUpstream sets the handler for every path the process does not serve
func WithUpstream(h http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.upstream = h
	}
}

// WithUserStore mounts the admin user directory at AdminUsersPath
func WithUserStore(s users.Store) ServerOption {
	return func(cfg *serverConfig) {
		cfg.userStore = s
	}
}

// NewServer creates the router. Every request passes through g before it
// reaches a handler, except InfraPaths when g was built with them as bypass paths.
func NewServer(g *gate.Gate, opts ...ServerOption) *chi.Mux {
	cfg := &serverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()

	// Runs before any middleware that may rewrite RemoteAddr
	r.Use(recordPeerAddr)

	// Apply middleware
	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}
	r.Use(g.Middleware)

	r.Get(HealthPath, healthHandler)
	r.Get(ReadinessPath, readinessHandler(cfg.readiness))
	r.Get(VersionPath, versionHandler)
	if cfg.metrics != nil {
		r.Method(http.MethodGet, MetricsPath, cfg.metrics)
	}

	r.Get(CheckAdminPath, checkAdminHandler(g.Policy()))
	if cfg.userStore != nil {
		r.Mount(AdminUsersPath, newAdminUsersRoutes(cfg.userStore, g.Policy()).Router())
	}

	if cfg.webhook != nil {
		if cfg.webhookRateLimit > 0 {
			limiter := httprate.Limit(cfg.webhookRateLimit, time.Minute, httprate.WithKeyFuncs(keyByPeer))
			r.With(limiter).Method(http.MethodPost, WebhookPath, cfg.webhook)
		} else {
			r.Method(http.MethodPost, WebhookPath, cfg.webhook)
		}
	}

	fallback := cfg.upstream
	if fallback == nil {
		fallback = http.HandlerFunc(notFoundHandler)
	}
	r.NotFound(fallback.ServeHTTP)

	return r
}

type peerAddrKey struct{}

// recordPeerAddr keeps the connection's own address on the context. RealIP
// replaces RemoteAddr with a client-supplied header, which must not pick the
// webhook rate-limit bucket.
func recordPeerAddr(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), peerAddrKey{}, r.RemoteAddr)))
	})
}

// keyByPeer keys the limiter on the recorded peer address
func keyByPeer(r *http.Request) (string, error) {
	addr, ok := r.Context().Value(peerAddrKey{}).(string)
	if !ok {
		return httprate.KeyByIP(r)
	}
	peer := r.WithContext(r.Context())
	peer.RemoteAddr = addr
	return httprate.KeyByIP(peer)
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func notFoundHandler(w http.ResponseWriter, _ *http.Request) {
	gate.WriteJSONError(w, http.StatusNotFound, "not found")
}
