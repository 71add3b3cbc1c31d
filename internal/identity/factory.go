package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hit-sharq/kasikeu-boys-high-school/internal/config"
)

// prefetchTries is how many times the key set download is attempted at startup.
const prefetchTries = 3

// NewResolverFromConfig creates the Resolver for the configured identity mode.
// A nil config resolves every request to Anonymous.
func NewResolverFromConfig(
	ctx context.Context,
	cfg *config.IdentityConfig,
	opts ...ResolverOption,
) (*Resolver, error) {
	base := []ResolverOption{
		WithCookieName(cfg.GetCookieName()),
		WithTimeout(cfg.GetTimeout()),
	}
	opts = append(base, opts...)

	switch cfg.GetMode() {
	case config.IdentityModeAnonymous:
		slog.Info("identity: anonymous mode, every request is treated as signed out")
		return NewResolver(nil, opts...), nil
	case config.IdentityModeJWKS:
		return createJWKSResolver(ctx, cfg, opts)
	case config.IdentityModeHMAC:
		return createHMACResolver(cfg, opts)
	default:
		return nil, fmt.Errorf("unsupported identity mode: %s", cfg.Mode)
	}
}

func claimsConfig(cfg *config.IdentityConfig) ClaimsConfig {
	return ClaimsConfig{
		Issuer:            cfg.Issuer,
		AuthorizedParties: cfg.AuthorizedParties,
		Leeway:            cfg.GetLeeway(),
	}
}

func createJWKSResolver(ctx context.Context, cfg *config.IdentityConfig, opts []ResolverOption) (*Resolver, error) {
	if cfg.JWKS == nil {
		return nil, errors.New("jwks configuration is required for jwks mode")
	}

	keys := NewKeySet(cfg.JWKS.URL,
		WithCacheTTL(cfg.JWKS.GetCacheTTL()),
		WithMinRefreshInterval(cfg.JWKS.GetMinRefreshInterval()),
	)
	if err := keys.Prefetch(ctx, prefetchTries); err != nil {
		// Lookups fetch lazily; /readyz reports not ready until one succeeds.
		slog.Warn("Key set not available at startup", "url", cfg.JWKS.URL, "error", err)
	}

	r := NewResolver(NewJWKSVerifier(keys, claimsConfig(cfg)), opts...)
	r.keys = keys

	slog.Info("identity: jwks mode", "url", cfg.JWKS.URL, "issuer", cfg.Issuer)
	return r, nil
}

func createHMACResolver(cfg *config.IdentityConfig, opts []ResolverOption) (*Resolver, error) {
	secret, err := cfg.HMAC.GetSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to read hmac secret: %w", err)
	}

	verifier, err := NewHMACVerifier(secret, claimsConfig(cfg))
	if err != nil {
		return nil, err
	}

	slog.Info("identity: hmac mode")
	return NewResolver(verifier, opts...), nil
}
