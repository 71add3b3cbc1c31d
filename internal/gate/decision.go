package gate

import (
	"errors"
	"net/http"

	"github.com/hit-sharq/kasikeu-boys-high-school/internal/routes"
)

var (
	// ErrUnauthenticated is returned by Policy.Check when there is no session.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrForbidden is returned by Policy.Check when the subject is not an admin.
	ErrForbidden = errors.New("admin access required")
)

// Error messages written in JSON denial bodies.
const (
	MessageAuthenticationRequired = "Authentication required"
	MessageAdminRequired          = "Admin access required"
)

// ReasonUnauthorized is the reason attached to the home redirect for
// signed-in users who are not admins.
const ReasonUnauthorized = "unauthorized"

// Kind enumerates the possible outcomes of the gate.
type Kind int

const (
	// Continue lets the request reach its handler.
	Continue Kind = iota
	// RedirectSignIn sends the browser to the sign-in page with a return URL.
	RedirectSignIn
	// RedirectHome sends the browser to the home page with a reason.
	RedirectHome
	// Unauthorized answers 401 with a JSON body.
	Unauthorized
	// Forbidden answers 403 with a JSON body.
	Forbidden
)

// String returns the label used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case Continue:
		return "continue"
	case RedirectSignIn:
		return "redirect_sign_in"
	case RedirectHome:
		return "redirect_home"
	case Unauthorized:
		return "unauthorized"
	case Forbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Decision is the outcome for one request. ReturnTo is set only for
// RedirectSignIn and Reason only for RedirectHome.
type Decision struct {
	Kind     Kind
	ReturnTo string
	Reason   string
}

// Status returns the HTTP status written for a denial, or 0 for Continue.
func (d Decision) Status() int {
	switch d.Kind {
	case RedirectSignIn, RedirectHome:
		return http.StatusTemporaryRedirect
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	default:
		return 0
	}
}

// Message returns the JSON error message for Unauthorized and Forbidden.
func (d Decision) Message() string {
	switch d.Kind {
	case Unauthorized:
		return MessageAuthenticationRequired
	case Forbidden:
		return MessageAdminRequired
	default:
		return ""
	}
}

// Allowed reports whether the request may proceed.
func (d Decision) Allowed() bool {
	return d.Kind == Continue
}

// ResponseStrategy says how denials for a classification are delivered.
type ResponseStrategy int

const (
	// StrategyRedirect denies with a browser redirect.
	StrategyRedirect ResponseStrategy = iota
	// StrategyJSONError denies with a status code and JSON body.
	StrategyJSONError
)

// StrategyFor returns the response strategy for c. Only admin API routes
// answer with JSON; every other tier is browsed by humans.
func StrategyFor(c routes.Classification) ResponseStrategy {
	if c == routes.AdminAPI {
		return StrategyJSONError
	}
	return StrategyRedirect
}

// Policy holds the static inputs of the decision.
type Policy struct {
	AllowList AllowList
}

// Decide applies the gate's truth table. It is pure: the same inputs always
// produce the same Decision.
//
//	admin api  + anonymous  -> 401
//	admin api  + non-admin  -> 403
//	admin page + anonymous  -> sign-in redirect
//	admin page + non-admin  -> home redirect
//	protected  + anonymous  -> sign-in redirect
//	otherwise               -> continue
func (p Policy) Decide(s Subject, c routes.Classification, returnTo string) Decision {
	switch c {
	case routes.AdminAPI, routes.AdminPage:
		strategy := StrategyFor(c)
		if !s.IsAuthenticated() {
			if strategy == StrategyJSONError {
				return Decision{Kind: Unauthorized}
			}
			return Decision{Kind: RedirectSignIn, ReturnTo: returnTo}
		}
		if !p.AllowList.Contains(s.ID()) {
			if strategy == StrategyJSONError {
				return Decision{Kind: Forbidden}
			}
			return Decision{Kind: RedirectHome, Reason: ReasonUnauthorized}
		}
		return Decision{Kind: Continue}
	case routes.Protected:
		if !s.IsAuthenticated() {
			return Decision{Kind: RedirectSignIn, ReturnTo: returnTo}
		}
		return Decision{Kind: Continue}
	default:
		return Decision{Kind: Continue}
	}
}

// Check is the in-handler form of the admin requirement. It returns
// ErrUnauthenticated or ErrForbidden, or nil for an admin.
func (p Policy) Check(s Subject) error {
	if !s.IsAuthenticated() {
		return ErrUnauthenticated
	}
	if !p.AllowList.Contains(s.ID()) {
		return ErrForbidden
	}
	return nil
}
