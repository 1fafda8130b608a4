package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/habedi/tokenguard/auth"
	"github.com/redis/go-redis/v9"
)

const (
	fieldAccess    = "access_token"
	fieldRefresh   = "refresh_token"
	fieldExpiresAt = "expires_at"
)

// DefaultRedisKey is the hash key used when none is given.
const DefaultRedisKey = "tokenguard:credentials"

type redisBackend struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewRedisBackend returns a Backend that keeps the pair in a Redis hash at key.
// A positive ttl expires the hash that long after each save.
func NewRedisBackend(rdb *redis.Client, key string, ttl time.Duration) Backend {
	if key == "" {
		key = DefaultRedisKey
	}
	return &redisBackend{rdb: rdb, key: key, ttl: ttl}
}

func (b *redisBackend) Load(ctx context.Context) (*auth.Credentials, error) {
	vals, err := b.rdb.HGetAll(ctx, b.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis hgetall %s: %w", b.key, err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	creds := &auth.Credentials{AccessToken: vals[fieldAccess], RefreshToken: vals[fieldRefresh]}
	if raw := vals[fieldExpiresAt]; raw != "" {
		unix, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s in %s: %w", fieldExpiresAt, b.key, err)
		}
		creds.ExpiresAt = time.Unix(unix, 0).UTC()
	}
	return creds, nil
}

func (b *redisBackend) Save(ctx context.Context, creds auth.Credentials) error {
	expiresAt := ""
	if !creds.ExpiresAt.IsZero() {
		expiresAt = strconv.FormatInt(creds.ExpiresAt.Unix(), 10)
	}
	_, err := b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, b.key)
		pipe.HSet(ctx, b.key,
			fieldAccess, creds.AccessToken,
			fieldRefresh, creds.RefreshToken,
			fieldExpiresAt, expiresAt,
		)
		if b.ttl > 0 {
			pipe.Expire(ctx, b.key, b.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save %s: %w", b.key, err)
	}
	return nil
}

func (b *redisBackend) Delete(ctx context.Context) error {
	if err := b.rdb.Del(ctx, b.key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", b.key, err)
	}
	return nil
}
