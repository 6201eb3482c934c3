package session

import (
	"context"
	"errors"
	"sync"

	"github.com/deepgram/connected/internal/infrastructure/redis"
	"github.com/deepgram/connected/pkg/logger"
)

const (
	AccessTokenKey  = "connected_access_token"
	RefreshTokenKey = "connected_refresh_token"
	LastDrillKey    = "connected_last_drill_session_id"
)

// Store is durable key/value storage for credentials. Get returns "" with
// a nil error when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

type RedisStore struct {
	redisService *redis.Service
	prefix       string
}

type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewStore picks Redis when it is configured and reachable, and an
// in-memory store otherwise.
func NewStore(redisService *redis.Service, prefix string) Store {
	if redisService == nil {
		logger.Info(logger.SESSION, "Using in-memory session storage")
		return NewMemoryStore()
	}

	logger.Info(logger.SESSION, "Using Redis for session storage")
	if err := redisService.Ping(context.Background()); err != nil {
		logger.Error(logger.SESSION, "Redis connection failed: %v", err)
		logger.Warn(logger.SESSION, "Falling back to in-memory session storage")
		return NewMemoryStore()
	}

	return NewRedisStore(redisService, prefix)
}

func NewRedisStore(redisService *redis.Service, prefix string) *RedisStore {
	return &RedisStore{redisService: redisService, prefix: prefix}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Redis Store implementation
func (rs *RedisStore) key(k string) string {
	if rs.prefix == "" {
		return k
	}
	return rs.prefix + ":" + k
}

func (rs *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := rs.redisService.Get(ctx, rs.key(key))
	if errors.Is(err, redis.ErrNotFound) {
		return "", nil
	}
	return value, err
}

func (rs *RedisStore) Set(ctx context.Context, key, value string) error {
	return rs.redisService.Set(ctx, rs.key(key), value, 0)
}

func (rs *RedisStore) Delete(ctx context.Context, keys ...string) error {
	prefixed := make([]string, 0, len(keys))
	for _, k := range keys {
		prefixed = append(prefixed, rs.key(k))
	}
	return rs.redisService.Delete(ctx, prefixed...)
}

// Memory Store implementation
func (ms *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.values[key], nil
}

func (ms *MemoryStore) Set(ctx context.Context, key, value string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.values[key] = value
	return nil
}

func (ms *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for _, k := range keys {
		delete(ms.values, k)
	}
	return nil
}
