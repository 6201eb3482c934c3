package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/deepgram/connected/internal/config"
	"github.com/deepgram/connected/pkg/logger"
)

type Service struct {
	client *redis.Client
}

// NewService builds a client from REDIS_URL/REDIS_PASSWORD. It returns nil
// when Redis is not configured.
func NewService() *Service {
	logger.Info(logger.REDIS, "Initialising Redis service")
	addr := config.GetRedisURL()

	if addr == "" {
		logger.Warn(logger.REDIS, "Redis service not configured - REDIS_URL missing")
		return nil
	}

	return NewServiceWithAddr(addr, config.GetRedisPassword())
}

func NewServiceWithAddr(addr, password string) *Service {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	return &Service{client: client}
}

// Set stores a value in Redis with an optional expiration
func (s *Service) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	logger.Debug(logger.REDIS, "Setting Redis key: %s", key)
	return s.client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a value from Redis. A missing key yields ErrNotFound.
func (s *Service) Get(ctx context.Context, key string) (string, error) {
	logger.Debug(logger.REDIS, "Getting Redis key: %s", key)
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return value, err
}

// Delete removes keys from Redis
func (s *Service) Delete(ctx context.Context, keys ...string) error {
	logger.Debug(logger.REDIS, "Deleting Redis keys: %v", keys)
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

// Ping checks if Redis is accessible
func (s *Service) Ping(ctx context.Context) error {
	logger.Debug(logger.REDIS, "Pinging Redis server")
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *Service) Close() error {
	logger.Debug(logger.REDIS, "Closing Redis connection")
	return s.client.Close()
}

var ErrNotFound = errors.New("redis: key not found")
