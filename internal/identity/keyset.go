package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"

	"github.com/hit-sharq/kasikeu-boys-high-school/internal/httpclient"
)

const (
	// DefaultCacheTTL is how long a fetched key set is used without refetching
	DefaultCacheTTL = 15 * time.Minute

	// DefaultMinRefreshInterval is the minimum spacing between fetches caused
	// by tokens naming an unknown key id
	DefaultMinRefreshInterval = 30 * time.Second

	// fetchTimeout bounds one key set download. It is detached from the
	// request so a slow client does not poison the shared fetch.
	fetchTimeout = 5 * time.Second

	breakerName             = "identity-jwks"
	breakerFailureThreshold = 3
	breakerOpenTimeout      = 30 * time.Second
)

// KeySetOption configures a KeySet.
type KeySetOption func(*KeySet)

// WithCacheTTL overrides DefaultCacheTTL.
func WithCacheTTL(d time.Duration) KeySetOption {
	return func(k *KeySet) {
		if d > 0 {
			k.ttl = d
		}
	}
}

// WithMinRefreshInterval overrides DefaultMinRefreshInterval.
func WithMinRefreshInterval(d time.Duration) KeySetOption {
	return func(k *KeySet) {
		if d >= 0 {
			k.minRefresh = d
		}
	}
}

// WithHTTPClient replaces the client used to download the key set.
func WithHTTPClient(c httpclient.Client) KeySetOption {
	return func(k *KeySet) {
		if c != nil {
			k.client = c
		}
	}
}

// KeySet is a cached view of the identity provider's JSON Web Key Set.
//
// Concurrent lookups that miss the cache share one download. Downloads run
// behind a circuit breaker; while the provider is failing, the last good set
// keeps being served past its TTL.
type KeySet struct {
	url        string
	client     httpclient.Client
	ttl        time.Duration
	minRefresh time.Duration
	breaker    *gobreaker.CircuitBreaker[jwk.Set]
	group      singleflight.Group

	mu          sync.RWMutex
	set         jwk.Set
	fetchedAt   time.Time
	lastAttempt time.Time
}

// NewKeySet creates a KeySet for the given URL. Nothing is fetched until the
// first lookup or Prefetch.
func NewKeySet(url string, opts ...KeySetOption) *KeySet {
	k := &KeySet{
		url:        url,
		client:     httpclient.NewDefaultClient(fetchTimeout),
		ttl:        DefaultCacheTTL,
		minRefresh: DefaultMinRefreshInterval,
	}
	for _, opt := range opts {
		opt(k)
	}

	k.breaker = gobreaker.NewCircuitBreaker[jwk.Set](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Key set circuit breaker changed state",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	})
	return k
}

// Key returns the public key for kid, exported to its crypto type
// (*rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey).
func (k *KeySet) Key(ctx context.Context, kid string) (any, error) {
	set, fetchedAt, lastAttempt := k.snapshot()
	now := time.Now()
	fresh := set != nil && now.Sub(fetchedAt) < k.ttl

	if fresh {
		if key, ok := lookupKey(set, kid); ok {
			return exportKey(key)
		}
		// Unknown kid on a fresh set: the provider may have rotated keys.
		if now.Sub(lastAttempt) < k.minRefresh {
			return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, kid)
		}
	}

	refreshed, err := k.refresh(ctx)
	if err != nil {
		if set == nil {
			return nil, err
		}
		slog.Warn("Key set refresh failed, serving cached keys",
			"error", err,
			"fetched_at", fetchedAt)
		refreshed = set
	}

	key, ok := lookupKey(refreshed, kid)
	if !ok {
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, kid)
	}
	return exportKey(key)
}

// Prefetch loads the key set at startup, retrying with exponential backoff.
// Failure is not fatal: lookups fetch lazily.
func (k *KeySet) Prefetch(ctx context.Context, maxTries uint) error {
	set, err := backoff.Retry(ctx, func() (jwk.Set, error) {
		return k.load(ctx)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxTries),
	)
	if err != nil {
		return fmt.Errorf("failed to prefetch key set: %w", err)
	}

	k.store(set)
	slog.Info("Key set loaded", "url", k.url, "keys", set.Len())
	return nil
}

// CheckReadiness reports whether a key set has been loaded.
func (k *KeySet) CheckReadiness(_ context.Context) error {
	set, _, _ := k.snapshot()
	if set == nil {
		return errors.New("identity key set not loaded")
	}
	return nil
}

func (k *KeySet) snapshot() (jwk.Set, time.Time, time.Time) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.set, k.fetchedAt, k.lastAttempt
}

func (k *KeySet) store(set jwk.Set) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.set = set
	k.fetchedAt = time.Now()
}

// refresh joins or starts the shared download and waits for it, or for ctx.
func (k *KeySet) refresh(ctx context.Context) (jwk.Set, error) {
	ch := k.group.DoChan(k.url, func() (any, error) {
		return k.fetch()
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(jwk.Set), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, ctx.Err())
	}
}

func (k *KeySet) fetch() (jwk.Set, error) {
	k.mu.Lock()
	k.lastAttempt = time.Now()
	k.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	set, err := k.breaker.Execute(func() (jwk.Set, error) {
		return k.load(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	k.store(set)
	slog.Debug("Key set refreshed", "url", k.url, "keys", set.Len())
	return set, nil
}

func (k *KeySet) load(ctx context.Context) (jwk.Set, error) {
	data, err := k.client.Get(ctx, k.url)
	if err != nil {
		return nil, err
	}

	set, err := jwk.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key set: %w", err)
	}
	if set.Len() == 0 {
		return nil, errors.New("key set is empty")
	}
	return set, nil
}

// lookupKey finds kid in set. A token without a kid is accepted only when the
// set holds exactly one key.
func lookupKey(set jwk.Set, kid string) (jwk.Key, bool) {
	if kid == "" {
		if set.Len() != 1 {
			return nil, false
		}
		return set.Key(0)
	}
	return set.LookupKeyID(kid)
}

func exportKey(key jwk.Key) (any, error) {
	var raw any
	if err := jwk.Export(key, &raw); err != nil {
		return nil, fmt.Errorf("failed to export key: %w", err)
	}
	return raw, nil
}
