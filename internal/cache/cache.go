// Package cache provides the advisory-signal cache implementations.
package cache

import (
	"fmt"

	"github.com/wekeza/riskengine/internal/domain"
)

// New creates a cache based on configuration: an in-process LRU for
// single-node deployments, Redis when cycles may run on different nodes.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}
