package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/wekeza/riskengine/internal/domain"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestChannelBusPublishSubscribe(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	var mu sync.Mutex
	var received []*domain.Message
	_, err := b.Subscribe(ctx, domain.TopicTransactionScored, func(_ context.Context, msg *domain.Message) error {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := b.Publish(ctx, domain.TopicTransactionScored, []byte(`{"score":0.4}`)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	if received[0].Topic != domain.TopicTransactionScored {
		t.Errorf("unexpected topic: %s", received[0].Topic)
	}
	if string(received[0].Payload) != `{"score":0.4}` {
		t.Errorf("unexpected payload: %s", received[0].Payload)
	}
	if received[0].ID == "" {
		t.Error("message should carry an ID")
	}
}

func TestChannelBusTopicIsolation(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	var mu sync.Mutex
	alerts := 0
	_, err := b.Subscribe(ctx, domain.TopicAlert, func(_ context.Context, _ *domain.Message) error {
		mu.Lock()
		alerts++
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := b.Publish(ctx, domain.TopicCaseOpened, []byte("{}")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := b.Publish(ctx, domain.TopicAlert, []byte("{}")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return alerts == 1
	})

	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if alerts != 1 {
		t.Errorf("subscriber received messages from another topic: %d", alerts)
	}
}

func TestChannelBusMultipleSubscribers(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	var mu sync.Mutex
	counts := map[string]int{}
	for _, name := range []string{"a", "b"} {
		name := name
		_, err := b.Subscribe(ctx, domain.TopicPortfolioMetric, func(_ context.Context, _ *domain.Message) error {
			mu.Lock()
			counts[name]++
			mu.Unlock()
			return nil
		})
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}
	}

	if err := b.Publish(ctx, domain.TopicPortfolioMetric, []byte("{}")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return counts["a"] == 1 && counts["b"] == 1
	})
}

func TestChannelBusUnsubscribe(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	var mu sync.Mutex
	count := 0
	sub, err := b.Subscribe(ctx, domain.TopicAlert, func(_ context.Context, _ *domain.Message) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if sub.Topic() != domain.TopicAlert {
		t.Errorf("unexpected subscription topic: %s", sub.Topic())
	}

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}

	if err := b.Publish(ctx, domain.TopicAlert, []byte("{}")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("handler ran %d times after unsubscribe", count)
	}
}

func TestChannelBusClose(t *testing.T) {
	b := NewChannelBus(10)
	ctx := context.Background()

	if err := b.Ping(ctx); err != nil {
		t.Errorf("Ping failed on open bus: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := b.Ping(ctx); err == nil {
		t.Error("Ping should fail on a closed bus")
	}
	if err := b.Publish(ctx, domain.TopicAlert, []byte("{}")); err == nil {
		t.Error("Publish should fail on a closed bus")
	}
	if _, err := b.Subscribe(ctx, domain.TopicAlert, func(context.Context, *domain.Message) error { return nil }); err == nil {
		t.Error("Subscribe should fail on a closed bus")
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close should be a no-op: %v", err)
	}
}

func TestNewFactory(t *testing.T) {
	b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 10})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer b.Close()

	if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
		t.Error("expected error for unknown bus type")
	}
}
