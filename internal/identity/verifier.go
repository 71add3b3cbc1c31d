package identity

//go:generate mockgen -destination=mocks/mock_verifier.go -package=mocks -source=verifier.go Verifier,KeySource

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier verifies a session token and returns its subject.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// KeySource resolves the verification key named by a token header.
type KeySource interface {
	Key(ctx context.Context, kid string) (any, error)
}

// ClaimsConfig holds the claim checks applied after the signature is verified.
type ClaimsConfig struct {
	// Issuer, when set, must equal the iss claim
	Issuer string

	// AuthorizedParties, when non-empty, must contain the azp claim if the
	// token carries one
	AuthorizedParties []string

	// Leeway is the clock skew tolerated on exp, nbf and iat
	Leeway time.Duration
}

// sessionClaims are the claims of a provider session token.
type sessionClaims struct {
	jwt.RegisteredClaims
	AuthorizedParty string `json:"azp,omitempty"`
}

var (
	asymmetricMethods = []string{"RS256", "RS384", "RS512", "PS256", "ES256", "ES384", "EdDSA"}
	hmacMethods       = []string{"HS256"}
)

type jwtVerifier struct {
	keyFunc func(ctx context.Context, t *jwt.Token) (any, error)
	methods []string
	claims  ClaimsConfig
}

// NewJWKSVerifier verifies asymmetrically signed tokens with keys from keys.
func NewJWKSVerifier(keys KeySource, cfg ClaimsConfig) Verifier {
	return &jwtVerifier{
		keyFunc: func(ctx context.Context, t *jwt.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			return keys.Key(ctx, kid)
		},
		methods: asymmetricMethods,
		claims:  cfg,
	}
}

// NewHMACVerifier verifies HS256 tokens signed with secret.
func NewHMACVerifier(secret []byte, cfg ClaimsConfig) (Verifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("hmac secret is required")
	}
	return &jwtVerifier{
		keyFunc: func(context.Context, *jwt.Token) (any, error) {
			return secret, nil
		},
		methods: hmacMethods,
		claims:  cfg,
	}, nil
}

// Verify parses and verifies token. Errors wrap ErrProviderUnavailable when
// the key could not be obtained, and ErrInvalidToken otherwise.
func (v *jwtVerifier) Verify(ctx context.Context, token string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.methods),
		jwt.WithLeeway(v.claims.Leeway),
		jwt.WithExpirationRequired(),
	}
	if v.claims.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.claims.Issuer))
	}

	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.keyFunc(ctx, t)
	}, opts...)
	if err != nil {
		if errors.Is(err, ErrProviderUnavailable) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}

	if len(v.claims.AuthorizedParties) > 0 && claims.AuthorizedParty != "" &&
		!slices.Contains(v.claims.AuthorizedParties, claims.AuthorizedParty) {
		return "", fmt.Errorf("%w: unauthorized party %q", ErrInvalidToken, claims.AuthorizedParty)
	}

	return claims.Subject, nil
}
