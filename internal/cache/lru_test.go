package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/wekeza/riskengine/internal/domain"
)

func TestLRUCacheAdvisoryRoundTrip(t *testing.T) {
	c := NewLRUCache(10)
	ctx := context.Background()

	signal := &domain.AdvisorySignal{
		FraudScore:     0.72,
		Typologies:     []string{"Large Transaction"},
		Recommendation: domain.RecommendReview,
	}
	if err := c.SetAdvisory(ctx, "tx-001", signal, time.Minute); err != nil {
		t.Fatalf("SetAdvisory failed: %v", err)
	}

	got, err := c.GetAdvisory(ctx, "tx-001")
	if err != nil {
		t.Fatalf("GetAdvisory failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected a cached signal")
	}
	if got.FraudScore != 0.72 || got.Recommendation != domain.RecommendReview {
		t.Errorf("unexpected signal: %+v", got)
	}
	if len(got.Typologies) != 1 || got.Typologies[0] != "Large Transaction" {
		t.Errorf("typologies not round-tripped: %v", got.Typologies)
	}
}

func TestLRUCacheMiss(t *testing.T) {
	c := NewLRUCache(10)

	got, err := c.GetAdvisory(context.Background(), "no-such-tx")
	if err != nil {
		t.Fatalf("GetAdvisory failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil on miss, got %+v", got)
	}
}

func TestLRUCacheTTLExpiry(t *testing.T) {
	c := NewLRUCache(10)
	ctx := context.Background()

	signal := &domain.AdvisorySignal{FraudScore: 0.5, Recommendation: domain.RecommendApprove}
	if err := c.SetAdvisory(ctx, "tx-ttl", signal, 10*time.Millisecond); err != nil {
		t.Fatalf("SetAdvisory failed: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	got, err := c.GetAdvisory(ctx, "tx-ttl")
	if err != nil {
		t.Fatalf("GetAdvisory failed: %v", err)
	}
	if got != nil {
		t.Error("expired entry should be a miss")
	}

	// Expired entries are removed on read.
	if size, _ := c.Stats(); size != 0 {
		t.Errorf("expected empty cache after expiry, got %d entries", size)
	}
}

func TestLRUCacheEviction(t *testing.T) {
	c := NewLRUCache(3)
	ctx := context.Background()
	signal := &domain.AdvisorySignal{Recommendation: domain.RecommendApprove}

	for i := 0; i < 3; i++ {
		if err := c.SetAdvisory(ctx, fmt.Sprintf("tx-%d", i), signal, time.Minute); err != nil {
			t.Fatalf("SetAdvisory failed: %v", err)
		}
	}

	// Touch tx-0 so tx-1 becomes the LRU entry.
	if _, err := c.GetAdvisory(ctx, "tx-0"); err != nil {
		t.Fatalf("GetAdvisory failed: %v", err)
	}
	if err := c.SetAdvisory(ctx, "tx-3", signal, time.Minute); err != nil {
		t.Fatalf("SetAdvisory failed: %v", err)
	}

	if got, _ := c.GetAdvisory(ctx, "tx-1"); got != nil {
		t.Error("least recently used entry should have been evicted")
	}
	if got, _ := c.GetAdvisory(ctx, "tx-0"); got == nil {
		t.Error("recently used entry should survive eviction")
	}
	if size, capacity := c.Stats(); size != 3 || capacity != 3 {
		t.Errorf("expected size 3 of 3, got %d of %d", size, capacity)
	}
}

func TestLRUCacheOverwrite(t *testing.T) {
	c := NewLRUCache(10)
	ctx := context.Background()

	if err := c.SetAdvisory(ctx, "tx-001", &domain.AdvisorySignal{FraudScore: 0.2}, time.Minute); err != nil {
		t.Fatalf("SetAdvisory failed: %v", err)
	}
	if err := c.SetAdvisory(ctx, "tx-001", &domain.AdvisorySignal{FraudScore: 0.9}, time.Minute); err != nil {
		t.Fatalf("SetAdvisory failed: %v", err)
	}

	got, err := c.GetAdvisory(ctx, "tx-001")
	if err != nil {
		t.Fatalf("GetAdvisory failed: %v", err)
	}
	if got.FraudScore != 0.9 {
		t.Errorf("expected overwritten score 0.9, got %.2f", got.FraudScore)
	}
	if size, _ := c.Stats(); size != 1 {
		t.Errorf("overwrite should not grow the cache, got %d entries", size)
	}
}

func TestLRUCacheClose(t *testing.T) {
	c := NewLRUCache(10)
	ctx := context.Background()

	if err := c.SetAdvisory(ctx, "tx-001", &domain.AdvisorySignal{}, time.Minute); err != nil {
		t.Fatalf("SetAdvisory failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if size, _ := c.Stats(); size != 0 {
		t.Errorf("Close should drop all entries, got %d", size)
	}
}

func TestNewFactory(t *testing.T) {
	c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}

	if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
		t.Error("expected error for unknown cache type")
	}
}
