package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wekeza/riskengine/internal/domain"
)

// RedisCache implements domain.Cache using Redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// GetAdvisory retrieves a cached advisory signal, or nil on miss.
func (c *RedisCache) GetAdvisory(ctx context.Context, txID string) (*domain.AdvisorySignal, error) {
	val, err := c.client.Get(ctx, c.makeKey(txID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var signal domain.AdvisorySignal
	if err := json.Unmarshal(val, &signal); err != nil {
		return nil, err
	}
	return &signal, nil
}

// SetAdvisory caches an advisory signal with TTL.
func (c *RedisCache) SetAdvisory(ctx context.Context, txID string, signal *domain.AdvisorySignal, ttl time.Duration) error {
	data, err := json.Marshal(signal)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.makeKey(txID), data, ttl).Err()
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) makeKey(txID string) string {
	return "riskengine:advisory:" + txID
}
