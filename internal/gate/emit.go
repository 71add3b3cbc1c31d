package gate

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/goccy/go-json"
)

const (
	// DefaultSignInPath is where anonymous browsers are sent.
	DefaultSignInPath = "/sign-in"

	// DefaultHomePath is where signed-in non-admins are sent.
	DefaultHomePath = "/"

	// ReturnToParam carries the original request URI to the sign-in page.
	ReturnToParam = "redirect_url"

	// ReasonParam carries the denial reason to the home page.
	ReasonParam = "error"
)

// Emitter turns a denial Decision into an HTTP response.
type Emitter struct {
	SignInPath string
	HomePath   string
}

// Emit writes the response for a denial. Continue decisions are ignored; the
// caller is expected to invoke the next handler instead.
func (e Emitter) Emit(w http.ResponseWriter, d Decision) {
	switch d.Kind {
	case RedirectSignIn:
		writeRedirect(w, e.signInURL(d.ReturnTo))
	case RedirectHome:
		writeRedirect(w, e.homeURL(d.Reason))
	case Unauthorized, Forbidden:
		WriteJSONError(w, d.Status(), d.Message())
	case Continue:
	}
}

func (e Emitter) signInURL(returnTo string) string {
	target := e.SignInPath
	if target == "" {
		target = DefaultSignInPath
	}
	if returnTo == "" {
		return target
	}
	return target + "?" + url.Values{ReturnToParam: {returnTo}}.Encode()
}

func (e Emitter) homeURL(reason string) string {
	target := e.HomePath
	if target == "" {
		target = DefaultHomePath
	}
	if reason == "" {
		return target
	}
	return target + "?" + url.Values{ReasonParam: {reason}}.Encode()
}

func writeRedirect(w http.ResponseWriter, location string) {
	w.Header().Set("Location", location)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusTemporaryRedirect)
}

// WriteJSONError writes {"error": message} with the given status.
func WriteJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := struct {
		Error string `json:"error"`
	}{
		Error: message,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}
