// Package integrations implements the external collaborator clients.
// Each collaborator has a Live variant calling a configured endpoint and a
// Deterministic stub variant; the variant is selected once at construction,
// never re-checked per call.
package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/wekeza/riskengine/internal/domain"
)

// NewAdvisoryClient builds the advisory client variant selected by config,
// wrapped with the cache when one is provided.
func NewAdvisoryClient(cfg domain.IntegrationConfig, cache domain.Cache, cacheTTL time.Duration) (domain.AdvisoryClient, error) {
	var client domain.AdvisoryClient
	switch cfg.Mode {
	case "", "stub":
		client = &StubAdvisory{}
	case "live":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("advisory: live mode requires an endpoint")
		}
		client = &LiveAdvisory{
			endpoint: cfg.Endpoint,
			apiKey:   cfg.APIKey,
			http:     &http.Client{Timeout: timeoutOr(cfg.Timeout)},
		}
	default:
		return nil, fmt.Errorf("advisory: unknown mode %q", cfg.Mode)
	}

	if cache != nil {
		client = &cachedAdvisory{next: client, cache: cache, ttl: cacheTTL}
	}
	return client, nil
}

// StubAdvisory derives a deterministic fraud signal from the amount alone,
// so repeated cycles over the same transaction are reproducible.
type StubAdvisory struct{}

// Submit implements domain.AdvisoryClient.
func (s *StubAdvisory) Submit(_ context.Context, tx *domain.Transaction) (*domain.AdvisorySignal, error) {
	fraudScore := tx.AmountFloat() / 10_000_000
	if fraudScore > 1 {
		fraudScore = 1
	}

	signal := &domain.AdvisorySignal{
		FraudScore:     fraudScore,
		Recommendation: domain.RecommendApprove,
	}
	if fraudScore > 0.5 {
		signal.Typologies = []string{"Large Transaction"}
		signal.Recommendation = domain.RecommendReview
	}
	if fraudScore > 0.8 {
		signal.Recommendation = domain.RecommendBlock
	}
	return signal, nil
}

// LiveAdvisory submits transactions to the fraud-detection endpoint using
// an ISO 20022-flavored payload.
type LiveAdvisory struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

type advisoryRequest struct {
	TxTp string `json:"TxTp"`
	Amt  struct {
		Amt float64 `json:"Amt"`
		Ccy string  `json:"Ccy"`
	} `json:"Amt"`
	CdtrAcct struct {
		ID string `json:"Id"`
	} `json:"CdtrAcct"`
	Cdtr struct {
		Nm string `json:"Nm"`
		ID string `json:"Id"`
	} `json:"Cdtr"`
	CreDtTm    string `json:"CreDtTm"`
	EndToEndID string `json:"EndToEndId"`
}

type advisoryResponse struct {
	FraudScore     float64  `json:"fraudScore"`
	Typologies     []string `json:"typologies"`
	Recommendation string   `json:"recommendation"`
}

// Submit implements domain.AdvisoryClient.
func (l *LiveAdvisory) Submit(ctx context.Context, tx *domain.Transaction) (*domain.AdvisorySignal, error) {
	req := advisoryRequest{
		TxTp:       string(tx.Type),
		CreDtTm:    tx.Timestamp.UTC().Format(time.RFC3339),
		EndToEndID: tx.ID,
	}
	req.Amt.Amt = tx.AmountFloat()
	req.Amt.Ccy = tx.Currency
	req.CdtrAcct.ID = tx.AccountNumber
	req.Cdtr.Nm = tx.MerchantName
	req.Cdtr.ID = tx.CustomerID

	var resp advisoryResponse
	if err := postJSON(ctx, l.http, l.endpoint, bearerAuth(l.apiKey), req, &resp); err != nil {
		return nil, fmt.Errorf("advisory submit %s: %w", tx.ID, err)
	}

	return &domain.AdvisorySignal{
		FraudScore:     resp.FraudScore,
		Typologies:     resp.Typologies,
		Recommendation: domain.Recommendation(resp.Recommendation),
	}, nil
}

// cachedAdvisory fronts an advisory client with the signal cache so a
// transaction retried on a later cycle is not resubmitted upstream.
type cachedAdvisory struct {
	next  domain.AdvisoryClient
	cache domain.Cache
	ttl   time.Duration
}

func (c *cachedAdvisory) Submit(ctx context.Context, tx *domain.Transaction) (*domain.AdvisorySignal, error) {
	if cached, err := c.cache.GetAdvisory(ctx, tx.ID); err == nil && cached != nil {
		return cached, nil
	}

	signal, err := c.next.Submit(ctx, tx)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SetAdvisory(ctx, tx.ID, signal, c.ttl); err != nil {
		slog.Debug("failed to cache advisory signal",
			"tx_id", tx.ID,
			"error", err,
		)
	}
	return signal, nil
}

func timeoutOr(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}

func bearerAuth(key string) string {
	if key == "" {
		return ""
	}
	return "Bearer " + key
}

// postJSON issues a JSON POST and decodes the response body into out.
// Non-2xx statuses are errors.
func postJSON(ctx context.Context, client *http.Client, url, auth string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
