package sessionstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisKey = "scottystack:session"

// RedisBackend keeps the session under one key whose TTL follows the
// token expiry.
type RedisBackend struct {
	rdb *redis.Client
	key string
	now func() time.Time
}

func NewRedis(rdb *redis.Client, key string) *RedisBackend {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisBackend{rdb: rdb, key: key, now: time.Now}
}

func (r *RedisBackend) Get(ctx context.Context) ([]byte, error) {
	data, err := r.rdb.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return data, err
}

// Put stores data until expiresAt. A zero expiresAt stores it without TTL;
// one already in the past deletes the key.
func (r *RedisBackend) Put(ctx context.Context, data []byte, expiresAt time.Time) error {
	var ttl time.Duration
	if !expiresAt.IsZero() {
		ttl = expiresAt.Sub(r.now())
		if ttl <= 0 {
			return r.Delete(ctx)
		}
	}
	return r.rdb.Set(ctx, r.key, data, ttl).Err()
}

func (r *RedisBackend) Delete(ctx context.Context) error {
	return r.rdb.Del(ctx, r.key).Err()
}

func (r *RedisBackend) Close() error {
	return r.rdb.Close()
}
