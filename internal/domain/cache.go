package domain

import (
	"context"
	"time"
)

// Cache stores advisory signals keyed by transaction ID so a transaction
// retried on a later cycle does not hit the advisory collaborator twice.
type Cache interface {
	// GetAdvisory returns the cached signal for a transaction, or nil on miss.
	GetAdvisory(ctx context.Context, txID string) (*AdvisorySignal, error)

	// SetAdvisory caches a signal with the given TTL.
	SetAdvisory(ctx context.Context, txID string, signal *AdvisorySignal, ttl time.Duration) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Memory settings
	LocalMaxSize int

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// TTL applied to advisory entries
	AdvisoryTTL time.Duration
}
