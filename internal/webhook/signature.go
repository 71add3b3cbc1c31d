// Package webhook receives user lifecycle events from the identity provider
// and mirrors them into the user directory.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Signature headers sent with every delivery
const (
	HeaderID        = "svix-id"
	HeaderTimestamp = "svix-timestamp"
	HeaderSignature = "svix-signature"
)

const (
	// DefaultTolerance is how far a delivery timestamp may drift from now
	DefaultTolerance = 5 * time.Minute

	secretPrefix     = "whsec_"
	signatureVersion = "v1"
)

var (
	// ErrMissingHeaders is returned when any signature header is absent
	ErrMissingHeaders = errors.New("missing webhook headers")

	// ErrInvalidSignature is returned when no signature matches or the
	// timestamp is out of tolerance
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// Verifier checks signed webhook deliveries.
type Verifier struct {
	key       []byte
	tolerance time.Duration
	now       func() time.Time
}

// VerifierOption configures a Verifier
type VerifierOption func(*Verifier)

// WithTolerance overrides DefaultTolerance
func WithTolerance(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		v.tolerance = d
	}
}

// NewVerifier creates a Verifier from a "whsec_<base64>" secret.
func NewVerifier(secret string, opts ...VerifierOption) (*Verifier, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(secret), secretPrefix)
	if raw == "" {
		return nil, fmt.Errorf("webhook secret is empty")
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("webhook secret is not valid base64: %w", err)
	}

	v := &Verifier{
		key:       key,
		tolerance: DefaultTolerance,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify checks the signature headers against body.
func (v *Verifier) Verify(h http.Header, body []byte) error {
	id := h.Get(HeaderID)
	ts := h.Get(HeaderTimestamp)
	sigs := h.Get(HeaderSignature)
	if id == "" || ts == "" || sigs == "" {
		return ErrMissingHeaders
	}

	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: malformed timestamp", ErrInvalidSignature)
	}
	sent := time.Unix(sec, 0)
	now := v.now()
	if sent.Before(now.Add(-v.tolerance)) {
		return fmt.Errorf("%w: timestamp too old", ErrInvalidSignature)
	}
	if sent.After(now.Add(v.tolerance)) {
		return fmt.Errorf("%w: timestamp too new", ErrInvalidSignature)
	}

	expected := []byte(v.sign(id, ts, body))
	for _, entry := range strings.Fields(sigs) {
		version, sig, ok := strings.Cut(entry, ",")
		if !ok || version != signatureVersion {
			continue
		}
		if hmac.Equal([]byte(sig), expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// Sign returns a signature header value for body, as the provider would send it.
func (v *Verifier) Sign(id string, sent time.Time, body []byte) string {
	return signatureVersion + "," + v.sign(id, strconv.FormatInt(sent.Unix(), 10), body)
}

func (v *Verifier) sign(id, ts string, body []byte) string {
	mac := hmac.New(sha256.New, v.key)
	mac.Write([]byte(id))
	mac.Write([]byte{'.'})
	mac.Write([]byte(ts))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
