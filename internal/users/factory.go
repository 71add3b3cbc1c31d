package users

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hit-sharq/kasikeu-boys-high-school/internal/config"
)

// NewStore creates the Store selected by cfg. A nil config yields a MemoryStore.
func NewStore(ctx context.Context, cfg *config.UsersConfig) (Store, error) {
	switch store := cfg.GetStore(); store {
	case config.UserStoreMemory:
		slog.Info("Using in-memory user store")
		return NewMemoryStore(), nil
	case config.UserStoreRedis:
		if cfg.Redis == nil {
			return nil, fmt.Errorf("redis user store requires redis configuration")
		}
		password, err := cfg.Redis.GetPassword()
		if err != nil {
			return nil, err
		}
		return NewRedisStore(ctx, RedisOptions{
			Address:  cfg.Redis.Address,
			Password: password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.GetPrefix(),
		})
	default:
		return nil, fmt.Errorf("unsupported user store: %s", store)
	}
}
