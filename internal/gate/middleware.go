package gate

//go:generate mockgen -destination=mocks/mock_resolver.go -package=mocks -source=middleware.go Resolver,DecisionRecorder

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hit-sharq/kasikeu-boys-high-school/internal/routes"
)

// Resolver resolves the caller of a request. Implementations never fail: a
// missing, invalid or unverifiable credential resolves to Anonymous.
type Resolver interface {
	Resolve(ctx context.Context, r *http.Request) Subject
}

// DecisionRecorder observes every decision the gate makes.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, classification, decision string)
}

// Gate wires the resolver, classifier, policy and emitter together.
type Gate struct {
	resolver    Resolver
	classifier  *routes.Classifier
	policy      Policy
	emitter     Emitter
	bypassPaths []string
	recorder    DecisionRecorder
}

// Option configures a Gate.
type Option func(*Gate)

// WithSignInPath overrides the sign-in redirect target.
func WithSignInPath(p string) Option {
	return func(g *Gate) {
		g.emitter.SignInPath = p
	}
}

// WithBypassPaths lists infrastructure paths that skip the gate entirely.
func WithBypassPaths(paths ...string) Option {
	return func(g *Gate) {
		g.bypassPaths = append(g.bypassPaths, paths...)
	}
}

// WithDecisionRecorder attaches a metrics recorder.
func WithDecisionRecorder(rec DecisionRecorder) Option {
	return func(g *Gate) {
		g.recorder = rec
	}
}

// New creates a Gate. The allow-list is fixed for the lifetime of the Gate.
func New(resolver Resolver, classifier *routes.Classifier, allowList AllowList, opts ...Option) (*Gate, error) {
	if resolver == nil {
		return nil, errors.New("resolver is required")
	}
	if classifier == nil {
		return nil, errors.New("classifier is required")
	}

	g := &Gate{
		resolver:   resolver,
		classifier: classifier,
		policy:     Policy{AllowList: allowList},
		emitter: Emitter{
			SignInPath: DefaultSignInPath,
			HomePath:   DefaultHomePath,
		},
	}
	for _, opt := range opts {
		opt(g)
	}

	if allowList.Len() == 0 {
		slog.Warn("Admin allow-list is empty, admin routes are unreachable")
	}

	return g, nil
}

// Policy returns the gate's policy, for handlers that re-check admin access.
func (g *Gate) Policy() Policy {
	return g.policy
}

// Evaluate runs resolution, classification and decision for r without
// writing anything. The path is classified in canonical form.
func (g *Gate) Evaluate(r *http.Request) (Subject, routes.Classification, Decision) {
	subject := g.resolver.Resolve(r.Context(), r)
	class := g.classifier.Classify(routes.CanonicalPath(r.URL.Path))
	return subject, class, g.policy.Decide(subject, class, r.URL.RequestURI())
}

// Middleware returns an HTTP middleware that enforces the gate before any
// downstream handler runs. Requests with dot segments or repeated slashes are
// rewritten to their canonical path first, so the gate, the router and the
// upstream all see the same path.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if canonical := routes.CanonicalPath(r.URL.Path); canonical != r.URL.Path {
			slog.Debug("Rewriting request to canonical path",
				"path", r.URL.Path,
				"canonical", canonical)
			r = withPath(r, canonical)
		}

		if routes.IsBypassPath(r.URL.Path, g.bypassPaths) || !routes.ShouldGate(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		subject, class, decision := g.Evaluate(r)

		if g.recorder != nil {
			g.recorder.RecordDecision(r.Context(), class.String(), decision.Kind.String())
		}

		if decision.Allowed() {
			next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), subject)))
			return
		}

		slog.Info("Request denied by gate",
			"decision", decision.Kind.String(),
			"classification", class.String(),
			"subject", subject.String(),
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr)
		g.emitter.Emit(w, decision)
	})
}

// withPath returns a shallow copy of r whose URL path is p. RawPath is
// cleared so the escaped form cannot disagree with p.
func withPath(r *http.Request, p string) *http.Request {
	u := *r.URL
	u.Path = p
	u.RawPath = ""

	out := new(http.Request)
	*out = *r
	out.URL = &u
	return out
}
