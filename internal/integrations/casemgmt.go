package integrations

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/wekeza/riskengine/internal/domain"
)

// NewCaseManager builds the case-management client variant selected by config.
func NewCaseManager(cfg domain.IntegrationConfig) (domain.CaseManager, error) {
	switch cfg.Mode {
	case "", "stub":
		return &StubCaseManager{}, nil
	case "live":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("case management: live mode requires an endpoint")
		}
		return &LiveCaseManager{
			endpoint: cfg.Endpoint,
			apiKey:   cfg.APIKey,
			http:     &http.Client{Timeout: timeoutOr(cfg.Timeout)},
		}, nil
	default:
		return nil, fmt.Errorf("case management: unknown mode %q", cfg.Mode)
	}
}

// StubCaseManager mints a local external-case identifier without leaving
// the process.
type StubCaseManager struct{}

// CreateExternalCase implements domain.CaseManager.
func (s *StubCaseManager) CreateExternalCase(_ context.Context, tx *domain.Transaction, score float64, reasons []string) (string, error) {
	externalID := "CMS-" + uuid.NewString()
	slog.Info("stub case-management workflow started",
		"external_case_id", externalID,
		"tx_id", tx.ID,
		"score", score,
		"reasons", len(reasons),
	)
	return externalID, nil
}

// LiveCaseManager starts a review workflow in the external case-management
// system.
type LiveCaseManager struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

type caseWorkflowRequest struct {
	WorkflowID string       `json:"workflowId"`
	Context    caseWorkflow `json:"context"`
}

type caseWorkflow struct {
	EntityID   string   `json:"entityId"`
	CustomerID string   `json:"customerId"`
	Amount     float64  `json:"amount"`
	Currency   string   `json:"currency"`
	RiskScore  float64  `json:"riskScore"`
	Reasons    []string `json:"reasons"`
}

type caseWorkflowResponse struct {
	ID string `json:"id"`
}

// CreateExternalCase implements domain.CaseManager.
func (l *LiveCaseManager) CreateExternalCase(ctx context.Context, tx *domain.Transaction, score float64, reasons []string) (string, error) {
	req := caseWorkflowRequest{
		WorkflowID: "transaction-risk-review",
		Context: caseWorkflow{
			EntityID:   tx.ID,
			CustomerID: tx.CustomerID,
			Amount:     tx.AmountFloat(),
			Currency:   tx.Currency,
			RiskScore:  score,
			Reasons:    reasons,
		},
	}

	var resp caseWorkflowResponse
	if err := postJSON(ctx, l.http, l.endpoint, bearerAuth(l.apiKey), req, &resp); err != nil {
		return "", fmt.Errorf("create external case for %s: %w", tx.ID, err)
	}
	return resp.ID, nil
}
