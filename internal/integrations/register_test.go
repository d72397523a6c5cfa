package integrations

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wekeza/riskengine/internal/domain"
)

func TestLiveRegisterLogEvent(t *testing.T) {
	var gotReq riskEventRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	register, err := NewRiskRegister(domain.IntegrationConfig{Mode: "live", Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewRiskRegister failed: %v", err)
	}

	err = register.LogEvent(context.Background(),
		domain.RiskCategoryOperational,
		"High Risk Transaction Detected: tx-001",
		"score 0.95",
		domain.SeverityHigh,
	)
	if err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	if gotReq.Name != "High Risk Transaction Detected: tx-001" {
		t.Errorf("unexpected name: %q", gotReq.Name)
	}
	if gotReq.RiskCategory != domain.RiskCategoryOperational || gotReq.Severity != domain.SeverityHigh {
		t.Errorf("unexpected category/severity: %+v", gotReq)
	}
	if gotReq.Status != "open" {
		t.Errorf("expected open status, got %q", gotReq.Status)
	}
	if gotReq.Likelihood != 4 || gotReq.Impact != 4 {
		t.Errorf("expected high-severity weights 4/4, got %d/%d", gotReq.Likelihood, gotReq.Impact)
	}
}

func TestSeverityWeights(t *testing.T) {
	tests := []struct {
		severity       string
		wantLikelihood int
		wantImpact     int
	}{
		{domain.SeverityCritical, 5, 5},
		{domain.SeverityHigh, 4, 4},
		{domain.SeverityMedium, 3, 3},
		{domain.SeverityLow, 2, 2},
		{"unknown", 2, 2},
	}

	for _, tt := range tests {
		likelihood, impact := severityWeights(tt.severity)
		if likelihood != tt.wantLikelihood || impact != tt.wantImpact {
			t.Errorf("severityWeights(%q) = %d/%d, want %d/%d",
				tt.severity, likelihood, impact, tt.wantLikelihood, tt.wantImpact)
		}
	}
}

func TestLiveCaseManagerCreate(t *testing.T) {
	var gotReq caseWorkflowRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		json.NewEncoder(w).Encode(caseWorkflowResponse{ID: "CMS-42"})
	}))
	defer srv.Close()

	manager, err := NewCaseManager(domain.IntegrationConfig{Mode: "live", Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewCaseManager failed: %v", err)
	}

	tx := advisoryTx("tx-001", 15_000_000)
	externalID, err := manager.CreateExternalCase(context.Background(), tx, 0.95, []string{"High amount: 15,000,000 KES"})
	if err != nil {
		t.Fatalf("CreateExternalCase failed: %v", err)
	}

	if externalID != "CMS-42" {
		t.Errorf("expected CMS-42, got %q", externalID)
	}
	if gotReq.WorkflowID != "transaction-risk-review" {
		t.Errorf("unexpected workflow: %q", gotReq.WorkflowID)
	}
	if gotReq.Context.EntityID != "tx-001" || gotReq.Context.RiskScore != 0.95 {
		t.Errorf("unexpected workflow context: %+v", gotReq.Context)
	}
}

func TestStubCaseManagerMintsIdentifier(t *testing.T) {
	manager := &StubCaseManager{}

	tx := advisoryTx("tx-001", 1_000_000)
	first, err := manager.CreateExternalCase(context.Background(), tx, 0.6, nil)
	if err != nil {
		t.Fatalf("CreateExternalCase failed: %v", err)
	}
	second, err := manager.CreateExternalCase(context.Background(), tx, 0.6, nil)
	if err != nil {
		t.Fatalf("CreateExternalCase failed: %v", err)
	}

	if len(first) < 5 || first[:4] != "CMS-" {
		t.Errorf("unexpected external case ID: %q", first)
	}
	if first == second {
		t.Error("external case IDs should be unique")
	}
}
