package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "idempotency:"

// RedisStore shares captured responses between server replicas.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisClient parses a redis:// URL and verifies the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, bool, error) {
	raw, err := s.rdb.Get(ctx, redisPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get idempotency entry: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false, fmt.Errorf("decode idempotency entry: %w", err)
	}
	return &e, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, entry *Entry) error {
	now := time.Now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.ExpiresAt.IsZero() {
		entry.ExpiresAt = entry.CreatedAt.Add(s.ttl)
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode idempotency entry: %w", err)
	}
	if err := s.rdb.Set(ctx, redisPrefix+key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("set idempotency entry: %w", err)
	}
	return nil
}

func (s *RedisStore) Lock(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, redisPrefix+"lock:"+key, 1, lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("lock idempotency key: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) Unlock(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, redisPrefix+"lock:"+key).Err(); err != nil {
		return fmt.Errorf("unlock idempotency key: %w", err)
	}
	return nil
}
