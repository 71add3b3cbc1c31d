package config

import (
	"strings"

	"github.com/spf13/viper"
)

// envReader reads SCHOOL_GATE_* variables through viper and falls back to the
// unprefixed names the site already uses (ADMIN_IDS, WEBHOOK_SECRET).
type envReader struct {
	v      *viper.Viper
	lookup func(string) (string, bool)
}

func newEnvReader(lookup func(string) (string, bool)) *envReader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return &envReader{v: v, lookup: lookup}
}

// get returns the prefixed value if set, then the legacy unprefixed one.
func (e *envReader) get(key string, legacy ...string) (string, bool) {
	if val := e.v.GetString(key); val != "" {
		return val, true
	}
	for _, name := range legacy {
		if val, ok := e.lookup(name); ok && val != "" {
			return val, true
		}
	}
	return "", false
}

// applyEnv overlays environment values onto the file configuration.
func applyEnv(c *Config, env *envReader) {
	if val, ok := env.get("address"); ok {
		c.Address = val
	}
	if val, ok := env.get("admin_ids", "ADMIN_IDS"); ok {
		c.AdminIDs = val
	}
	if val, ok := env.get("identity.mode"); ok {
		if c.Identity == nil {
			c.Identity = &IdentityConfig{}
		}
		c.Identity.Mode = IdentityMode(val)
	}
	if val, ok := env.get("identity.jwks.url", "CLERK_JWKS_URL"); ok {
		if c.Identity == nil {
			c.Identity = &IdentityConfig{}
		}
		if c.Identity.JWKS == nil {
			c.Identity.JWKS = &JWKSConfig{}
		}
		c.Identity.JWKS.URL = val
	}
	if val, ok := env.get("upstream.url"); ok {
		c.Upstream = &UpstreamConfig{URL: val}
	}
	if val, ok := env.get("webhook.secret", "WEBHOOK_SECRET"); ok {
		if c.Webhook == nil {
			c.Webhook = &WebhookConfig{}
		}
		c.Webhook.Secret = val
	}
	if val, ok := env.get("redis.address"); ok {
		if c.Users == nil {
			c.Users = &UsersConfig{}
		}
		if c.Users.Redis == nil {
			c.Users.Redis = &RedisConfig{}
		}
		c.Users.Redis.Address = val
	}
}
