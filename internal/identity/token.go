// Package identity resolves the caller of a request from the identity
// provider's session token.
//
// The token is read from the session cookie, or from an
// "Authorization: Bearer" header for API clients, and verified either against
// the provider's published JSON Web Key Set or a shared HMAC secret. Any
// failure resolves to an anonymous caller; identity errors are never surfaced
// to the client.
package identity

import (
	"errors"
	"net/http"
	"strings"
)

// SessionCookieName is the cookie the identity provider stores its session token in.
const SessionCookieName = "__session"

var (
	// ErrNoCredentials means the request carried neither a session cookie nor a bearer token.
	ErrNoCredentials = errors.New("no session credentials")

	// ErrInvalidToken means a token was present but failed verification.
	ErrInvalidToken = errors.New("invalid session token")

	// ErrKeyNotFound means the token names a signing key the key set does not contain.
	ErrKeyNotFound = errors.New("signing key not found")

	// ErrProviderUnavailable means the identity provider could not be reached in time.
	ErrProviderUnavailable = errors.New("identity provider unavailable")
)

// ExtractToken returns the session token from the named cookie, falling back to
// a bearer token in the Authorization header.
func ExtractToken(r *http.Request, cookieName string) (string, error) {
	if cookieName == "" {
		cookieName = SessionCookieName
	}

	if c, err := r.Cookie(cookieName); err == nil {
		if v := strings.TrimSpace(c.Value); v != "" {
			return v, nil
		}
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrNoCredentials
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrNoCredentials
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrNoCredentials
	}
	return token, nil
}
