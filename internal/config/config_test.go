package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hit-sharq/kasikeu-boys-high-school/internal/routes"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		yamlContent string
		wantErr     string
		check       func(t *testing.T, cfg *Config)
	}{
		{
			name: "full_config",
			yamlContent: `address: "127.0.0.1:9090"
adminIds: "user_a, user_b"
gate:
  signInPath: /login
  routes:
    adminPages: ["/staff-room.*"]
identity:
  mode: jwks
  timeout: 1500ms
  issuer: https://clerk.school.example
  authorizedParties: ["https://school.example"]
  jwks:
    url: https://clerk.school.example/.well-known/jwks.json
    cacheTTL: 5m
upstream:
  url: http://localhost:3000
webhook:
  secret: whsec_c2VjcmV0
  rateLimit: 10
users:
  store: redis
  redis:
    address: localhost:6379
    db: 2
telemetry:
  enabled: true
  tracing:
    enabled: true
    sampling: 0.5
`,
			check: func(t *testing.T, cfg *Config) {
				t.Helper()
				assert.Equal(t, "127.0.0.1:9090", cfg.GetAddress())
				assert.Equal(t, "user_a, user_b", cfg.AdminIDs)
				assert.Equal(t, "/login", cfg.GetSignInPath())
				assert.Equal(t, IdentityModeJWKS, cfg.Identity.GetMode())
				assert.Equal(t, 1500*time.Millisecond, cfg.Identity.GetTimeout())
				assert.Equal(t, DefaultIdentityLeeway, cfg.Identity.GetLeeway())
				assert.Equal(t, 5*time.Minute, cfg.Identity.JWKS.GetCacheTTL())
				assert.Equal(t, DefaultJWKSMinRefreshInterval, cfg.Identity.JWKS.GetMinRefreshInterval())
				assert.Equal(t, "http://localhost:3000", cfg.Upstream.URL)
				assert.Equal(t, 10, cfg.Webhook.GetRateLimit())
				assert.Equal(t, UserStoreRedis, cfg.Users.GetStore())
				assert.Equal(t, DefaultRedisPrefix, cfg.Users.Redis.GetPrefix())
				assert.True(t, cfg.Telemetry.Enabled)

				sets := cfg.PatternSets()
				assert.Equal(t, []string{"/staff-room.*"}, sets.AdminPages)
				assert.Equal(t, routes.DefaultPatternSets().Public, sets.Public)
				assert.Equal(t, []string{"/api/admin.*"}, sets.AdminAPI)
			},
		},
		{
			name:        "empty_file_uses_defaults",
			yamlContent: "{}",
			check: func(t *testing.T, cfg *Config) {
				t.Helper()
				assert.Equal(t, DefaultAddress, cfg.GetAddress())
				assert.Equal(t, DefaultSignInPath, cfg.GetSignInPath())
				assert.Equal(t, IdentityModeAnonymous, cfg.Identity.GetMode())
				assert.Equal(t, DefaultSessionCookie, cfg.Identity.GetCookieName())
				assert.Equal(t, DefaultIdentityTimeout, cfg.Identity.GetTimeout())
				assert.Equal(t, UserStoreMemory, cfg.Users.GetStore())
				assert.Equal(t, DefaultWebhookRateLimit, cfg.Webhook.GetRateLimit())
				assert.Equal(t, routes.DefaultPatternSets(), cfg.PatternSets())
			},
		},
		{
			name: "explicit_empty_set_clears_defaults",
			yamlContent: `gate:
  routes:
    public: []
`,
			check: func(t *testing.T, cfg *Config) {
				t.Helper()
				assert.Empty(t, cfg.PatternSets().Public)
				assert.NotEmpty(t, cfg.PatternSets().AdminPages)
			},
		},
		{
			name: "invalid_identity_mode",
			yamlContent: `identity:
  mode: saml
`,
			wantErr: "identity.mode: must be one of: anonymous jwks hmac",
		},
		{
			name: "invalid_duration",
			yamlContent: `identity:
  timeout: soon
`,
			wantErr: "identity.timeout: must be a positive duration",
		},
		{
			name: "jwks_mode_requires_url",
			yamlContent: `identity:
  mode: jwks
`,
			wantErr: "jwks configuration is required",
		},
		{
			name: "invalid_route_pattern",
			yamlContent: `gate:
  routes:
    adminApi: ["/api/admin(.*"]
`,
			wantErr: "routes.adminApi[0]",
		},
		{
			name: "sign_in_path_must_be_absolute",
			yamlContent: `gate:
  signInPath: sign-in
`,
			wantErr: "gate.signinpath: must start with \"/\"",
		},
		{
			name: "webhook_secret_prefix",
			yamlContent: `webhook:
  secret: plain
`,
			wantErr: "webhook.secret",
		},
		{
			name: "redis_store_requires_redis",
			yamlContent: `users:
  store: redis
`,
			wantErr: "redis configuration is required",
		},
		{
			name: "invalid_telemetry_sampling",
			yamlContent: `telemetry:
  enabled: true
  tracing:
    enabled: true
    sampling: 2
`,
			wantErr: "telemetry: tracing: sampling must be greater than 0.0",
		},
		{
			name:        "malformed_yaml",
			yamlContent: "address: [",
			wantErr:     "failed to parse YAML config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := writeConfig(t, tt.yamlContent)
			cfg, err := LoadConfig(WithConfigPath(path), WithoutEnv())

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestWithConfigPath(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(WithConfigPath(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")

	_, err = LoadConfig(WithConfigPath(filepath.Join(t.TempDir(), "missing.yaml")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to evaluate symlinks")
}

//nolint:paralleltest // uses t.Setenv
func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ADMIN_IDS", "legacy_admin")
	t.Setenv("SCHOOL_GATE_WEBHOOK_SECRET", "whsec_ZW52")
	t.Setenv("SCHOOL_GATE_UPSTREAM_URL", "http://site:3000")

	path := writeConfig(t, `adminIds: "file_admin"
webhook:
  secret: whsec_ZmlsZQ==
`)
	cfg, err := LoadConfig(WithConfigPath(path))
	require.NoError(t, err)

	assert.Equal(t, "legacy_admin", cfg.AdminIDs)
	assert.Equal(t, "whsec_ZW52", cfg.Webhook.Secret)
	assert.Equal(t, "http://site:3000", cfg.Upstream.URL)
}

//nolint:paralleltest // uses t.Setenv
func TestLoadConfig_PrefixedEnvWins(t *testing.T) {
	t.Setenv("ADMIN_IDS", "legacy_admin")
	t.Setenv("SCHOOL_GATE_ADMIN_IDS", "prefixed_admin")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "prefixed_admin", cfg.AdminIDs)
}

//nolint:paralleltest // uses t.Setenv
func TestHMACConfig_GetSecret(t *testing.T) {
	secretPath := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(secretPath, []byte("  from-file\n"), 0600))

	secret, err := (&HMACConfig{SecretFile: secretPath}).GetSecret()
	require.NoError(t, err)
	assert.Equal(t, []byte("from-file"), secret)

	t.Setenv("SCHOOL_GATE_IDENTITY_HMAC_SECRET", "from-env")
	secret, err = (&HMACConfig{}).GetSecret()
	require.NoError(t, err)
	assert.Equal(t, []byte("from-env"), secret)

	_, err = (&HMACConfig{SecretFile: filepath.Join(t.TempDir(), "missing")}).GetSecret()
	require.Error(t, err)
}

func TestWebhookConfig_GetSecret(t *testing.T) {
	t.Parallel()

	var nilCfg *WebhookConfig
	secret, err := nilCfg.GetSecret()
	require.NoError(t, err)
	assert.Empty(t, secret)

	path := filepath.Join(t.TempDir(), "webhook")
	require.NoError(t, os.WriteFile(path, []byte("whsec_abc\n"), 0600))
	secret, err = (&WebhookConfig{SecretFile: path}).GetSecret()
	require.NoError(t, err)
	assert.Equal(t, "whsec_abc", secret)
}
