package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hit-sharq/kasikeu-boys-high-school/internal/api"
	"github.com/hit-sharq/kasikeu-boys-high-school/internal/config"
	"github.com/hit-sharq/kasikeu-boys-high-school/internal/gate"
	"github.com/hit-sharq/kasikeu-boys-high-school/internal/identity"
	"github.com/hit-sharq/kasikeu-boys-high-school/internal/routes"
	"github.com/hit-sharq/kasikeu-boys-high-school/internal/telemetry"
	"github.com/hit-sharq/kasikeu-boys-high-school/internal/users"
	"github.com/hit-sharq/kasikeu-boys-high-school/internal/webhook"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second

	identityTracerName = "github.com/hit-sharq/kasikeu-boys-high-school/identity"
)

// SchoolGateAppOption is a function that configures the app builder
type SchoolGateAppOption func(*schoolGateAppConfig) error

// schoolGateAppConfig collects the builder inputs. It supports dependency
// injection for testing while providing sensible defaults for production.
type schoolGateAppConfig struct {
	config *config.Config

	// Optional component overrides (primarily for testing)
	resolver  gate.Resolver
	userStore users.Store

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	// Telemetry components
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	metricsHandler http.Handler

	// Built components
	gateMetrics *telemetry.GateMetrics
}

func baseConfig(opts ...SchoolGateAppOption) (*schoolGateAppConfig, error) {
	cfg := &schoolGateAppConfig{
		address:        config.DefaultAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// NewSchoolGateApp builds the gate, its identity resolver, the user directory
// and the HTTP server from the configuration.
func NewSchoolGateApp(ctx context.Context, opts ...SchoolGateAppOption) (*SchoolGateApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}
	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if cfg.meterProvider != nil {
		cfg.gateMetrics, err = telemetry.NewGateMetrics(cfg.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create gate metrics: %w", err)
		}
	}

	g, classifier, err := buildGate(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build gate: %w", err)
	}

	if cfg.userStore == nil {
		cfg.userStore, err = users.NewStore(ctx, cfg.config.Users)
		if err != nil {
			return nil, fmt.Errorf("failed to create user store: %w", err)
		}
	}

	// Ensure cleanup happens on error
	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			_ = cfg.userStore.Close()
		}
	}()

	httpServer, err := buildHTTPServer(ctx, cfg, g, classifier)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)
	cleanupNeeded = false

	return &SchoolGateApp{
		config: cfg.config,
		components: &AppComponents{
			Gate:       g,
			Resolver:   cfg.resolver,
			Classifier: classifier,
			Users:      cfg.userStore,
		},
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) SchoolGateAppOption {
	return func(cfg *schoolGateAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) SchoolGateAppOption {
	return func(cfg *schoolGateAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares replaces the default HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) SchoolGateAppOption {
	return func(cfg *schoolGateAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithRequestTimeout bounds each request
func WithRequestTimeout(d time.Duration) SchoolGateAppOption {
	return func(cfg *schoolGateAppConfig) error {
		if d <= 0 {
			return fmt.Errorf("request timeout must be positive")
		}
		cfg.requestTimeout = d
		return nil
	}
}

// WithResolver allows injecting a custom identity resolver (for testing)
func WithResolver(r gate.Resolver) SchoolGateAppOption {
	return func(cfg *schoolGateAppConfig) error {
		cfg.resolver = r
		return nil
	}
}

// WithUserStore allows injecting a custom user store (for testing)
func WithUserStore(s users.Store) SchoolGateAppOption {
	return func(cfg *schoolGateAppConfig) error {
		cfg.userStore = s
		return nil
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider for HTTP and gate metrics
func WithMeterProvider(mp metric.MeterProvider) SchoolGateAppOption {
	return func(cfg *schoolGateAppConfig) error {
		cfg.meterProvider = mp
		return nil
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider for HTTP and identity spans
func WithTracerProvider(tp trace.TracerProvider) SchoolGateAppOption {
	return func(cfg *schoolGateAppConfig) error {
		cfg.tracerProvider = tp
		return nil
	}
}

// WithMetricsHandler serves h at the metrics endpoint
func WithMetricsHandler(h http.Handler) SchoolGateAppOption {
	return func(cfg *schoolGateAppConfig) error {
		cfg.metricsHandler = h
		return nil
	}
}

// buildGate builds the resolver, classifier and allow-list and wires them
// into the gate.
func buildGate(ctx context.Context, b *schoolGateAppConfig) (*gate.Gate, *routes.Classifier, error) {
	slog.Info("Initializing gate components")

	if b.resolver == nil {
		var resolverOpts []identity.ResolverOption
		if b.gateMetrics != nil {
			resolverOpts = append(resolverOpts, identity.WithResolveRecorder(b.gateMetrics))
		}
		if b.tracerProvider != nil {
			resolverOpts = append(resolverOpts, identity.WithTracer(b.tracerProvider.Tracer(identityTracerName)))
		}

		resolver, err := identity.NewResolverFromConfig(ctx, b.config.Identity, resolverOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create identity resolver: %w", err)
		}
		b.resolver = resolver
	}

	classifier, err := routes.NewClassifier(b.config.PatternSets())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compile route patterns: %w", err)
	}

	allowList := gate.ParseAllowList(b.config.AdminIDs)

	gateOpts := []gate.Option{
		gate.WithSignInPath(b.config.GetSignInPath()),
		gate.WithBypassPaths(api.InfraPaths...),
	}
	if b.gateMetrics != nil {
		gateOpts = append(gateOpts, gate.WithDecisionRecorder(b.gateMetrics))
	}

	g, err := gate.New(b.resolver, classifier, allowList, gateOpts...)
	if err != nil {
		return nil, nil, err
	}

	slog.Info("Gate components initialized successfully",
		"admins", allowList.Len(),
		"sign_in_path", b.config.GetSignInPath())
	return g, classifier, nil
}

// buildHTTPServer builds the HTTP server with router and middleware
func buildHTTPServer(
	_ context.Context,
	b *schoolGateAppConfig,
	g *gate.Gate,
	classifier *routes.Classifier,
) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	// Use default middlewares if not provided
	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	siteRoute := func(path string) string {
		return "site:" + classifier.Classify(path).String()
	}

	// Metrics and tracing go first so requests denied by the gate are still
	// counted and traced
	if b.meterProvider != nil {
		metricsMiddleware, err := telemetry.MetricsMiddleware(b.meterProvider, siteRoute)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
		}
		b.middlewares = append([]func(http.Handler) http.Handler{metricsMiddleware}, b.middlewares...)
		slog.Info("HTTP metrics middleware enabled")
	}
	if b.tracerProvider != nil {
		b.middlewares = append([]func(http.Handler) http.Handler{telemetry.TracingMiddleware(b.tracerProvider, siteRoute)}, b.middlewares...)
		slog.Info("HTTP tracing middleware enabled")
	}

	serverOpts := []api.ServerOption{
		api.WithMiddlewares(b.middlewares...),
		api.WithUserStore(b.userStore),
	}
	if checker, ok := b.resolver.(api.ReadinessChecker); ok {
		serverOpts = append(serverOpts, api.WithReadinessChecker(checker))
	}
	if b.metricsHandler != nil {
		serverOpts = append(serverOpts, api.WithMetricsHandler(b.metricsHandler))
	}

	webhookOpt, err := buildWebhook(b)
	if err != nil {
		return nil, err
	}
	if webhookOpt != nil {
		serverOpts = append(serverOpts, webhookOpt)
	}

	if b.config.Upstream != nil {
		proxy, err := api.NewUpstreamProxy(b.config.Upstream.URL, b.requestTimeout)
		if err != nil {
			return nil, err
		}
		serverOpts = append(serverOpts, api.WithUpstream(proxy))
		slog.Info("Forwarding allowed requests upstream", "url", b.config.Upstream.URL)
	} else {
		slog.Warn("No upstream configured, allowed requests to site pages return 404")
	}

	router := api.NewServer(g, serverOpts...)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}

// buildWebhook returns the server option mounting the identity webhook, or
// nil when no signing secret is configured.
func buildWebhook(b *schoolGateAppConfig) (api.ServerOption, error) {
	secret, err := b.config.Webhook.GetSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook secret: %w", err)
	}
	if secret == "" {
		slog.Warn("Webhook secret not configured, identity webhook disabled")
		return nil, nil
	}

	verifier, err := webhook.NewVerifier(secret)
	if err != nil {
		return nil, err
	}

	var hookOpts []webhook.Option
	if b.gateMetrics != nil {
		hookOpts = append(hookOpts, webhook.WithEventRecorder(b.gateMetrics))
	}
	handler := webhook.NewHandler(verifier, b.userStore, hookOpts...)

	slog.Info("Identity webhook enabled", "path", api.WebhookPath, "rate_limit", b.config.Webhook.GetRateLimit())
	return api.WithWebhook(handler, b.config.Webhook.GetRateLimit()), nil
}
