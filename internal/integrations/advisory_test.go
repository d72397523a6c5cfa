package integrations

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wekeza/riskengine/internal/domain"
)

func advisoryTx(id string, amount int64) *domain.Transaction {
	return &domain.Transaction{
		ID:            id,
		CustomerID:    "cust-001",
		AccountNumber: "acc-001",
		Amount:        decimal.NewFromInt(amount),
		Currency:      "KES",
		Type:          domain.TypeTransfer,
		Channel:       domain.ChannelMobile,
		Timestamp:     time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC),
	}
}

func TestStubAdvisoryBands(t *testing.T) {
	tests := []struct {
		name               string
		amount             int64
		wantScore          float64
		wantRecommendation domain.Recommendation
		wantTypologies     int
	}{
		{"low amount approves", 2_000_000, 0.2, domain.RecommendApprove, 0},
		{"mid amount reviews", 6_000_000, 0.6, domain.RecommendReview, 1},
		{"high amount blocks", 9_000_000, 0.9, domain.RecommendBlock, 1},
		{"score caps at one", 50_000_000, 1.0, domain.RecommendBlock, 1},
	}

	stub := &StubAdvisory{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signal, err := stub.Submit(context.Background(), advisoryTx("tx-001", tt.amount))
			if err != nil {
				t.Fatalf("Submit failed: %v", err)
			}
			if diff := signal.FraudScore - tt.wantScore; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("expected fraud score %.2f, got %.4f", tt.wantScore, signal.FraudScore)
			}
			if signal.Recommendation != tt.wantRecommendation {
				t.Errorf("expected %s, got %s", tt.wantRecommendation, signal.Recommendation)
			}
			if len(signal.Typologies) != tt.wantTypologies {
				t.Errorf("expected %d typologies, got %v", tt.wantTypologies, signal.Typologies)
			}
		})
	}
}

// countingAdvisory wraps the stub and counts upstream calls.
type countingAdvisory struct {
	calls int
}

func (c *countingAdvisory) Submit(ctx context.Context, tx *domain.Transaction) (*domain.AdvisorySignal, error) {
	c.calls++
	return (&StubAdvisory{}).Submit(ctx, tx)
}

// mapCache is a minimal domain.Cache for testing the caching decorator.
type mapCache struct {
	signals map[string]*domain.AdvisorySignal
}

func (m *mapCache) GetAdvisory(_ context.Context, txID string) (*domain.AdvisorySignal, error) {
	return m.signals[txID], nil
}

func (m *mapCache) SetAdvisory(_ context.Context, txID string, signal *domain.AdvisorySignal, _ time.Duration) error {
	m.signals[txID] = signal
	return nil
}

func (m *mapCache) Ping(context.Context) error { return nil }
func (m *mapCache) Close() error               { return nil }

func TestCachedAdvisoryAvoidsResubmission(t *testing.T) {
	upstream := &countingAdvisory{}
	cache := &mapCache{signals: make(map[string]*domain.AdvisorySignal)}
	client := &cachedAdvisory{next: upstream, cache: cache, ttl: time.Minute}
	ctx := context.Background()

	tx := advisoryTx("tx-001", 6_000_000)
	first, err := client.Submit(ctx, tx)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	second, err := client.Submit(ctx, tx)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if upstream.calls != 1 {
		t.Errorf("expected 1 upstream call, got %d", upstream.calls)
	}
	if first.FraudScore != second.FraudScore {
		t.Errorf("cached signal differs: %.4f vs %.4f", first.FraudScore, second.FraudScore)
	}

	// A different transaction goes upstream again.
	if _, err := client.Submit(ctx, advisoryTx("tx-002", 1_000_000)); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if upstream.calls != 2 {
		t.Errorf("expected 2 upstream calls, got %d", upstream.calls)
	}
}

func TestLiveAdvisorySubmit(t *testing.T) {
	var gotAuth string
	var gotReq advisoryRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		json.NewEncoder(w).Encode(advisoryResponse{
			FraudScore:     0.65,
			Typologies:     []string{"Structuring"},
			Recommendation: "REVIEW",
		})
	}))
	defer srv.Close()

	client, err := NewAdvisoryClient(domain.IntegrationConfig{
		Mode:     "live",
		Endpoint: srv.URL,
		APIKey:   "secret",
	}, nil, 0)
	if err != nil {
		t.Fatalf("NewAdvisoryClient failed: %v", err)
	}

	signal, err := client.Submit(context.Background(), advisoryTx("tx-001", 6_000_000))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if gotAuth != "Bearer secret" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if gotReq.EndToEndID != "tx-001" || gotReq.TxTp != string(domain.TypeTransfer) {
		t.Errorf("unexpected request: %+v", gotReq)
	}
	if gotReq.Amt.Amt != 6_000_000 || gotReq.Amt.Ccy != "KES" {
		t.Errorf("amount not carried: %+v", gotReq.Amt)
	}
	if signal.FraudScore != 0.65 || signal.Recommendation != domain.RecommendReview {
		t.Errorf("unexpected signal: %+v", signal)
	}
}

func TestLiveAdvisoryServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := NewAdvisoryClient(domain.IntegrationConfig{Mode: "live", Endpoint: srv.URL}, nil, 0)
	if err != nil {
		t.Fatalf("NewAdvisoryClient failed: %v", err)
	}

	if _, err := client.Submit(context.Background(), advisoryTx("tx-001", 1000)); err == nil {
		t.Error("expected error on 502 response")
	}
}

func TestNewAdvisoryClientValidation(t *testing.T) {
	if _, err := NewAdvisoryClient(domain.IntegrationConfig{Mode: "live"}, nil, 0); err == nil {
		t.Error("live mode without endpoint should fail")
	}
	if _, err := NewAdvisoryClient(domain.IntegrationConfig{Mode: "carrier-pigeon"}, nil, 0); err == nil {
		t.Error("unknown mode should fail")
	}
	if _, err := NewAdvisoryClient(domain.IntegrationConfig{}, nil, 0); err != nil {
		t.Errorf("empty mode should default to stub: %v", err)
	}
}
