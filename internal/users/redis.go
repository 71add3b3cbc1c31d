package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// maxTxRetries bounds optimistic-lock retries when two writers race on a user
const maxTxRetries = 3

// RedisOptions configures a RedisStore
type RedisOptions struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

// RedisStore keeps each user as a JSON string at <prefix>user:<externalID>
// and the set of external ids at <prefix>users.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Address, err)
	}

	slog.Info("User store connected to redis", "address", opts.Address, "db", opts.DB)
	return NewRedisStoreFromClient(client, opts.Prefix), nil
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *RedisStore) userKey(externalID string) string {
	return s.prefix + "user:" + externalID
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "users"
}

// Create implements Store
func (s *RedisStore) Create(ctx context.Context, externalID string, p Profile) (*User, error) {
	u, err := newUser(externalID, p, s.now().UTC())
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("failed to encode user: %w", err)
	}

	created, err := s.client.SetNX(ctx, s.userKey(externalID), data, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	if !created {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, externalID)
	}

	if err := s.client.SAdd(ctx, s.indexKey(), externalID).Err(); err != nil {
		return nil, fmt.Errorf("failed to index user: %w", err)
	}
	return u, nil
}

// Update implements Store
func (s *RedisStore) Update(ctx context.Context, externalID string, p Profile) (*User, error) {
	return s.modify(ctx, externalID, func(u *User) {
		u.applyProfile(p, s.now().UTC())
	})
}

// SetRole implements Store
func (s *RedisStore) SetRole(ctx context.Context, externalID string, role Role) (*User, error) {
	role, err := ParseRole(string(role))
	if err != nil {
		return nil, err
	}
	return s.modify(ctx, externalID, func(u *User) {
		u.Role = role
		u.UpdatedAt = s.now().UTC()
	})
}

// modify applies fn to the stored user inside a WATCH transaction.
func (s *RedisStore) modify(ctx context.Context, externalID string, fn func(*User)) (*User, error) {
	key := s.userKey(externalID)
	var out *User

	txf := func(tx *redis.Tx) error {
		u, err := s.read(ctx, tx, externalID)
		if err != nil {
			return err
		}
		fn(u)

		data, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("failed to encode user: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		if err == nil {
			out = u
		}
		return err
	}

	for range maxTxRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("failed to update user %s: concurrent modification", externalID)
}

// Delete implements Store
func (s *RedisStore) Delete(ctx context.Context, externalID string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.userKey(externalID))
		pipe.SRem(ctx, s.indexKey(), externalID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, externalID)
	}
	return nil
}

// GetByExternalID implements Store
func (s *RedisStore) GetByExternalID(ctx context.Context, externalID string) (*User, error) {
	return s.read(ctx, s.client, externalID)
}

// List implements Store
func (s *RedisStore) List(ctx context.Context) ([]*User, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	if len(ids) == 0 {
		return []*User{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.userKey(id)
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}

	out := make([]*User, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// key removed outside the store
			slog.Debug("Skipping dangling user index entry", "external_id", ids[i])
			continue
		}
		var u User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			return nil, fmt.Errorf("failed to decode user %s: %w", ids[i], err)
		}
		out = append(out, &u)
	}

	sortUsers(out)
	return out, nil
}

// Close implements Store
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) read(ctx context.Context, c redis.Cmdable, externalID string) (*User, error) {
	data, err := c.Get(ctx, s.userKey(externalID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, externalID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user: %w", err)
	}

	var u User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("failed to decode user %s: %w", externalID, err)
	}
	return &u, nil
}
