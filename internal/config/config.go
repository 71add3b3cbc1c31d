// Package config provides configuration loading and management for the school gate.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hit-sharq/kasikeu-boys-high-school/internal/routes"
	"github.com/hit-sharq/kasikeu-boys-high-school/internal/telemetry"
)

// EnvPrefix is the prefix for environment variables read through viper.
const EnvPrefix = "SCHOOL_GATE"

const (
	// DefaultAddress is the listen address when none is configured
	DefaultAddress = ":8080"

	// DefaultSignInPath is the sign-in page anonymous browsers are sent to
	DefaultSignInPath = "/sign-in"

	// DefaultSessionCookie is the cookie carrying the identity provider's session token
	DefaultSessionCookie = "__session"

	// DefaultIdentityTimeout bounds a single identity resolution
	DefaultIdentityTimeout = 2 * time.Second

	// DefaultIdentityLeeway is the clock skew tolerated on exp/nbf
	DefaultIdentityLeeway = 5 * time.Second

	// DefaultJWKSCacheTTL is how long a fetched key set is trusted
	DefaultJWKSCacheTTL = 15 * time.Minute

	// DefaultJWKSMinRefreshInterval rate-limits refreshes triggered by unknown key ids
	DefaultJWKSMinRefreshInterval = 30 * time.Second

	// DefaultWebhookRateLimit is the per-IP webhook request budget per minute
	DefaultWebhookRateLimit = 60

	// DefaultRedisPrefix namespaces the user directory keys
	DefaultRedisPrefix = "school:"
)

// IdentityMode selects how session tokens are verified.
type IdentityMode string

const (
	// IdentityModeAnonymous treats every request as anonymous
	IdentityModeAnonymous IdentityMode = "anonymous"

	// IdentityModeJWKS verifies asymmetric tokens against the provider's key set
	IdentityModeJWKS IdentityMode = "jwks"

	// IdentityModeHMAC verifies HS256 tokens with a shared secret
	IdentityModeHMAC IdentityMode = "hmac"
)

const (
	// UserStoreMemory keeps the user directory in process memory
	UserStoreMemory = "memory"

	// UserStoreRedis keeps the user directory in Redis
	UserStoreRedis = "redis"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path     string
	skipEnv  bool
	lookupFn func(string) (string, bool)
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// WithoutEnv disables environment overrides. Used by tests and `classify`.
func WithoutEnv() Option {
	return func(cfg *loaderConfig) error {
		cfg.skipEnv = true
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// Address is the HTTP listen address
	Address string `yaml:"address,omitempty" validate:"omitempty,hostname_port"`

	// AdminIDs is the comma-separated admin allow-list.
	// ADMIN_IDS in the environment takes precedence.
	AdminIDs string `yaml:"adminIds,omitempty"`

	Gate      *GateConfig       `yaml:"gate,omitempty"`
	Identity  *IdentityConfig   `yaml:"identity,omitempty"`
	Upstream  *UpstreamConfig   `yaml:"upstream,omitempty"`
	Webhook   *WebhookConfig    `yaml:"webhook,omitempty"`
	Users     *UsersConfig      `yaml:"users,omitempty"`
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// GateConfig holds the route gate settings
type GateConfig struct {
	// SignInPath is where anonymous browsers are redirected
	SignInPath string `yaml:"signInPath,omitempty" validate:"omitempty,startswith=/"`

	// Routes replaces the built-in pattern sets. A nil list keeps the default
	// for that set; an empty list clears it.
	Routes *RoutesConfig `yaml:"routes,omitempty"`
}

// RoutesConfig lists the pattern sets
type RoutesConfig struct {
	Public     []string `yaml:"public,omitempty"`
	AdminPages []string `yaml:"adminPages,omitempty"`
	AdminAPI   []string `yaml:"adminApi,omitempty"`
}

// IdentityConfig defines how the caller of a request is identified
type IdentityConfig struct {
	Mode IdentityMode `yaml:"mode,omitempty" validate:"omitempty,oneof=anonymous jwks hmac"`

	// CookieName is the session cookie; defaults to "__session"
	CookieName string `yaml:"cookieName,omitempty"`

	// Timeout bounds one resolution, e.g. "2s"
	Timeout string `yaml:"timeout,omitempty" validate:"omitempty,duration"`

	// Leeway is the tolerated clock skew, e.g. "5s"
	Leeway string `yaml:"leeway,omitempty" validate:"omitempty,duration"`

	// Issuer, when set, must equal the token's iss claim
	Issuer string `yaml:"issuer,omitempty" validate:"omitempty,url"`

	// AuthorizedParties, when non-empty, restricts the azp claim
	AuthorizedParties []string `yaml:"authorizedParties,omitempty" validate:"dive,url"`

	JWKS *JWKSConfig `yaml:"jwks,omitempty"`
	HMAC *HMACConfig `yaml:"hmac,omitempty"`
}

// JWKSConfig defines where signing keys are fetched from
type JWKSConfig struct {
	URL                string `yaml:"url" validate:"required,url"`
	CacheTTL           string `yaml:"cacheTTL,omitempty" validate:"omitempty,duration"`
	MinRefreshInterval string `yaml:"minRefreshInterval,omitempty" validate:"omitempty,duration"`
}

// HMACConfig defines the shared secret for HS256 tokens
type HMACConfig struct {
	// SecretFile is read first; SCHOOL_GATE_IDENTITY_HMAC_SECRET is the fallback
	SecretFile string `yaml:"secretFile,omitempty"`
}

// UpstreamConfig defines the site requests are proxied to after the gate
type UpstreamConfig struct {
	URL string `yaml:"url" validate:"required,url"`
}

// WebhookConfig defines the identity lifecycle webhook
type WebhookConfig struct {
	// Secret is the "whsec_" signing secret. WEBHOOK_SECRET takes precedence.
	Secret string `yaml:"secret,omitempty" validate:"omitempty,startswith=whsec_"`

	// SecretFile is read when Secret is empty
	SecretFile string `yaml:"secretFile,omitempty"`

	// RateLimit is the per-IP request budget per minute
	RateLimit int `yaml:"rateLimit,omitempty" validate:"gte=0"`
}

// UsersConfig selects the user directory backend
type UsersConfig struct {
	Store string       `yaml:"store,omitempty" validate:"omitempty,oneof=memory redis"`
	Redis *RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig defines the Redis connection for the user directory
type RedisConfig struct {
	Address      string `yaml:"address" validate:"required,hostname_port"`
	PasswordFile string `yaml:"passwordFile,omitempty"`
	DB           int    `yaml:"db,omitempty" validate:"gte=0,lte=15"`
	Prefix       string `yaml:"prefix,omitempty"`
}

// LoadConfig loads configuration from the given options and the environment.
// Without a path, defaults plus environment overrides are returned.
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{lookupFn: os.LookupEnv}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	var config Config
	if loaderCfg.path != "" {
		data, err := os.ReadFile(loaderCfg.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	if !loaderCfg.skipEnv {
		applyEnv(&config, newEnvReader(loaderCfg.lookupFn))
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	var errs []error

	if err := validateStruct(c); err != nil {
		errs = append(errs, err)
	}

	if _, err := routes.NewClassifier(c.PatternSets()); err != nil {
		errs = append(errs, fmt.Errorf("gate: %w", err))
	}

	if c.Identity != nil && c.Identity.GetMode() == IdentityModeJWKS && c.Identity.JWKS == nil {
		errs = append(errs, errors.New("identity: jwks configuration is required for jwks mode"))
	}

	if c.Users != nil && c.Users.Store == UserStoreRedis && c.Users.Redis == nil {
		errs = append(errs, errors.New("users: redis configuration is required for the redis store"))
	}

	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	return errors.Join(errs...)
}

// GetAddress returns the listen address, using DefaultAddress if unset
func (c *Config) GetAddress() string {
	if c.Address == "" {
		return DefaultAddress
	}
	return c.Address
}

// GetSignInPath returns the sign-in redirect target
func (c *Config) GetSignInPath() string {
	if c.Gate == nil || c.Gate.SignInPath == "" {
		return DefaultSignInPath
	}
	return c.Gate.SignInPath
}

// PatternSets returns the effective route patterns
func (c *Config) PatternSets() routes.PatternSets {
	sets := routes.DefaultPatternSets()
	if c.Gate == nil || c.Gate.Routes == nil {
		return sets
	}
	r := c.Gate.Routes
	if r.Public != nil {
		sets.Public = r.Public
	}
	if r.AdminPages != nil {
		sets.AdminPages = r.AdminPages
	}
	if r.AdminAPI != nil {
		sets.AdminAPI = r.AdminAPI
	}
	return sets
}

// GetMode returns the identity mode, defaulting to anonymous
func (i *IdentityConfig) GetMode() IdentityMode {
	if i == nil || i.Mode == "" {
		return IdentityModeAnonymous
	}
	return i.Mode
}

// GetCookieName returns the session cookie name
func (i *IdentityConfig) GetCookieName() string {
	if i == nil || i.CookieName == "" {
		return DefaultSessionCookie
	}
	return i.CookieName
}

// GetTimeout returns the resolution timeout
func (i *IdentityConfig) GetTimeout() time.Duration {
	if i == nil {
		return DefaultIdentityTimeout
	}
	return durationOr(i.Timeout, DefaultIdentityTimeout)
}

// GetLeeway returns the tolerated clock skew
func (i *IdentityConfig) GetLeeway() time.Duration {
	if i == nil {
		return DefaultIdentityLeeway
	}
	return durationOr(i.Leeway, DefaultIdentityLeeway)
}

// GetCacheTTL returns how long a key set is cached
func (j *JWKSConfig) GetCacheTTL() time.Duration {
	return durationOr(j.CacheTTL, DefaultJWKSCacheTTL)
}

// GetMinRefreshInterval returns the minimum spacing of forced refreshes
func (j *JWKSConfig) GetMinRefreshInterval() time.Duration {
	return durationOr(j.MinRefreshInterval, DefaultJWKSMinRefreshInterval)
}

// GetSecret returns the HMAC secret using the following priority:
// 1. Read from SecretFile if specified
// 2. Read from SCHOOL_GATE_IDENTITY_HMAC_SECRET
func (h *HMACConfig) GetSecret() ([]byte, error) {
	if h != nil && h.SecretFile != "" {
		secret, err := readSecretFile(h.SecretFile)
		if err != nil {
			return nil, err
		}
		return []byte(secret), nil
	}

	if env := os.Getenv(EnvPrefix + "_IDENTITY_HMAC_SECRET"); env != "" {
		return []byte(env), nil
	}

	return nil, fmt.Errorf(
		"no hmac secret configured: set identity.hmac.secretFile or %s_IDENTITY_HMAC_SECRET", EnvPrefix)
}

// GetSecret returns the webhook signing secret, or "" when the webhook is disabled
func (w *WebhookConfig) GetSecret() (string, error) {
	if w == nil {
		return "", nil
	}
	if w.Secret != "" {
		return w.Secret, nil
	}
	if w.SecretFile != "" {
		return readSecretFile(w.SecretFile)
	}
	return "", nil
}

// GetRateLimit returns the per-IP webhook budget per minute
func (w *WebhookConfig) GetRateLimit() int {
	if w == nil || w.RateLimit == 0 {
		return DefaultWebhookRateLimit
	}
	return w.RateLimit
}

// GetStore returns the user directory backend
func (u *UsersConfig) GetStore() string {
	if u == nil || u.Store == "" {
		return UserStoreMemory
	}
	return u.Store
}

// GetPassword returns the Redis password from PasswordFile or
// SCHOOL_GATE_REDIS_PASSWORD. An empty password is valid.
func (r *RedisConfig) GetPassword() (string, error) {
	if r.PasswordFile != "" {
		return readSecretFile(r.PasswordFile)
	}
	return os.Getenv(EnvPrefix + "_REDIS_PASSWORD"), nil
}

// GetPrefix returns the key prefix
func (r *RedisConfig) GetPrefix() string {
	if r.Prefix == "" {
		return DefaultRedisPrefix
	}
	return r.Prefix
}

func readSecretFile(path string) (string, error) {
	// Use filepath.Clean to prevent path traversal attacks
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to read secret from file %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func durationOr(raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
