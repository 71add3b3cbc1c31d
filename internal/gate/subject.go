// Package gate implements the request authorization gate that runs in front of
// every route of the school site.
//
// For each request the gate resolves the caller's identity, classifies the
// path, decides whether to let the request through, and either calls the next
// handler or writes a redirect or JSON error itself. Decisions are computed by
// a pure function over (Subject, Classification, AllowList) so they can be
// tested without any HTTP machinery.
package gate

import "context"

// Subject identifies the caller of a request. The zero value is anonymous.
type Subject struct {
	id string
}

// Anonymous returns the subject of a request with no valid session.
func Anonymous() Subject {
	return Subject{}
}

// Authenticated returns a signed-in subject. An empty id yields Anonymous.
func Authenticated(id string) Subject {
	return Subject{id: id}
}

// ID returns the opaque identity-provider id, or "" for anonymous callers.
func (s Subject) ID() string {
	return s.id
}

// IsAuthenticated reports whether the subject carries a session.
func (s Subject) IsAuthenticated() bool {
	return s.id != ""
}

// String implements fmt.Stringer for logging.
func (s Subject) String() string {
	if !s.IsAuthenticated() {
		return "anonymous"
	}
	return s.id
}

type subjectKey struct{}

// WithSubject returns a copy of ctx carrying s.
func WithSubject(ctx context.Context, s Subject) context.Context {
	return context.WithValue(ctx, subjectKey{}, s)
}

// SubjectFromContext returns the subject attached by the gate. The boolean is
// false when the request never went through the gate.
func SubjectFromContext(ctx context.Context) (Subject, bool) {
	s, ok := ctx.Value(subjectKey{}).(Subject)
	return s, ok
}
