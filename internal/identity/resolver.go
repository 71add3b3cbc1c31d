package identity

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/hit-sharq/kasikeu-boys-high-school/internal/gate"
	"github.com/hit-sharq/kasikeu-boys-high-school/internal/otel"
)

// Resolution outcomes reported to the ResolveRecorder and on spans.
const (
	OutcomeAnonymous     = "anonymous"
	OutcomeAuthenticated = "authenticated"
	OutcomeInvalid       = "invalid"
	OutcomeUnavailable   = "unavailable"
)

// DefaultTimeout bounds one resolution, including any key set download.
const DefaultTimeout = 2 * time.Second

// ResolveRecorder observes every resolution.
type ResolveRecorder interface {
	RecordResolve(ctx context.Context, outcome string, d time.Duration)
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCookieName overrides SessionCookieName.
func WithCookieName(name string) ResolverOption {
	return func(r *Resolver) {
		if name != "" {
			r.cookieName = name
		}
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithResolveRecorder attaches a metrics recorder.
func WithResolveRecorder(rec ResolveRecorder) ResolverOption {
	return func(r *Resolver) {
		r.recorder = rec
	}
}

// WithTracer records a span per resolution.
func WithTracer(tracer trace.Tracer) ResolverOption {
	return func(r *Resolver) {
		r.tracer = tracer
	}
}

// Resolver turns a request's session token into a gate.Subject.
type Resolver struct {
	verifier   Verifier
	keys       *KeySet
	cookieName string
	timeout    time.Duration
	recorder   ResolveRecorder
	tracer     trace.Tracer
}

// NewResolver creates a Resolver backed by verifier. A nil verifier resolves
// every request to Anonymous.
func NewResolver(verifier Verifier, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		verifier:   verifier,
		cookieName: SessionCookieName,
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve implements gate.Resolver. It never fails: missing, invalid and
// unverifiable credentials all resolve to Anonymous.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) gate.Subject {
	start := time.Now()

	if r.verifier == nil {
		r.record(ctx, OutcomeAnonymous, start)
		return gate.Anonymous()
	}

	token, err := ExtractToken(req, r.cookieName)
	if err != nil {
		r.record(ctx, OutcomeAnonymous, start)
		return gate.Anonymous()
	}

	verifyCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	verifyCtx, span := otel.StartSpan(verifyCtx, r.tracer, "identity.Resolve")
	defer span.End()

	subject, err := r.verifier.Verify(verifyCtx, token)
	switch {
	case err == nil:
		otel.SetOutcome(span, otel.AttrIdentityOutcome, OutcomeAuthenticated, nil)
		r.record(ctx, OutcomeAuthenticated, start)
		return gate.Authenticated(subject)

	case errors.Is(err, ErrProviderUnavailable) || errors.Is(err, context.DeadlineExceeded):
		otel.SetOutcome(span, otel.AttrIdentityOutcome, OutcomeUnavailable, err)
		slog.Warn("Identity provider unavailable, treating request as anonymous",
			"error", err,
			"path", req.URL.Path)
		r.record(ctx, OutcomeUnavailable, start)

	default:
		otel.SetOutcome(span, otel.AttrIdentityOutcome, OutcomeInvalid, nil)
		slog.Debug("Session token rejected",
			"error", err,
			"path", req.URL.Path)
		r.record(ctx, OutcomeInvalid, start)
	}

	return gate.Anonymous()
}

// CheckReadiness reports whether the resolver can verify tokens. Resolvers
// without a remote key set are always ready.
func (r *Resolver) CheckReadiness(ctx context.Context) error {
	if r.keys == nil {
		return nil
	}
	return r.keys.CheckReadiness(ctx)
}

func (r *Resolver) record(ctx context.Context, outcome string, start time.Time) {
	if r.recorder == nil {
		return
	}
	r.recorder.RecordResolve(ctx, outcome, time.Since(start))
}
