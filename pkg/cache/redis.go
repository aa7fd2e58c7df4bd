package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/diazhh/petroedge-sub003/errors"
)

// RedisConfig holds connection settings for the shared cache.
type RedisConfig struct {
	Addr     string        `json:"addr"`
	Password string        `json:"password,omitempty"`
	DB       int           `json:"db,omitempty"`
	Timeout  time.Duration `json:"timeout,omitempty"`
}

// RedisStore is a Store backed by a shared Redis instance. All consumer
// instances and partitions read and write the same keyspace; concurrent
// misses recompute independently and last writer wins.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.WrapTransient(err, "RedisStore", "NewRedisStore", "ping redis")
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client. Used by tests.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get retrieves the value for key. redis.Nil maps to a plain miss.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.WrapTransient(err, "RedisStore", "Get", "fetch "+key)
	}
	return raw, true, nil
}

// Set stores value under key with the given TTL.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return errors.WrapTransient(err, "RedisStore", "Set", "store "+key)
	}
	return nil
}

// Delete removes key. Fire-and-forget semantics: a concurrent read may still
// serve the old value for up to its remaining TTL, which is the accepted
// staleness bound.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return errors.WrapTransient(err, "RedisStore", "Delete", "delete "+key)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
