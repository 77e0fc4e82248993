package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

func NewRedisClient(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

type RedisIdempotencyStore struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisIdempotencyStore(client *redis.Client, keyPrefix string) *RedisIdempotencyStore {
	if keyPrefix == "" {
		keyPrefix = "sanjose:sale:idempotency:"
	}
	return &RedisIdempotencyStore{client: client, keyPrefix: keyPrefix}
}

// Claim uses SETNX so only one caller wins a key until it expires or is
// released.
func (s *RedisIdempotencyStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	return ok, nil
}

func (s *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// RedisReportCache namespaces entries under a generation counter. Bumping
// the counter orphans older entries, which then age out by TTL.
type RedisReportCache struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisReportCache(client *redis.Client, keyPrefix string) *RedisReportCache {
	if keyPrefix == "" {
		keyPrefix = "sanjose:reports:"
	}
	return &RedisReportCache{client: client, keyPrefix: keyPrefix}
}

func (c *RedisReportCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisReportCache) generationKey() string {
	return c.keyPrefix + "generation"
}

func (c *RedisReportCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.generationKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *RedisReportCache) slot(entry Entry) string {
	return c.keyPrefix + strconv.FormatInt(entry.Generation, 10) + ":" + entry.Key
}

func (c *RedisReportCache) Get(ctx context.Context, key string, dest any) (Entry, bool, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return Entry{}, false, err
	}
	entry := Entry{Key: key, Generation: gen}
	val, err := c.client.Get(ctx, c.slot(entry)).Bytes()
	if errors.Is(err, redis.Nil) {
		return entry, false, nil
	}
	if err != nil {
		return entry, false, err
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return entry, false, err
	}
	return entry, true, nil
}

// Set stores the value under the generation the lookup saw. When an
// Invalidate ran in between, the write goes to an orphaned slot.
func (c *RedisReportCache) Set(ctx context.Context, entry Entry, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.slot(entry), payload, ttl).Err()
}

func (c *RedisReportCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, c.generationKey()).Err()
}
