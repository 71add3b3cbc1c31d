package telemetry

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// unknownRoute labels requests that match no chi pattern and have no labeler.
const unknownRoute = "unknown_route"

// RouteLabeler maps a request path the router did not match, usually a page of
// the proxied site, onto a small fixed set of labels.
type RouteLabeler func(path string) string

// routeLabel returns the chi pattern the request matched. Requests that fell
// through to the site proxy have no pattern and are labelled by labeler, so
// per-page paths never become label values.
func routeLabel(r *http.Request, labeler RouteLabeler) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	if labeler != nil {
		if label := labeler(r.URL.Path); label != "" {
			return label
		}
	}
	return unknownRoute
}
