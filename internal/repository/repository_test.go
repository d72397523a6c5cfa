package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wekeza/riskengine/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "riskengine-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func sampleTransaction(id string, amount int64, ts time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:            id,
		CustomerID:    "cust-001",
		AccountNumber: "acc-001",
		Amount:        decimal.NewFromInt(amount),
		Currency:      "KES",
		Type:          domain.TypeTransfer,
		MerchantName:  "Duka la Mjini",
		Location:      "Nairobi",
		Channel:       domain.ChannelMobile,
		Timestamp:     ts,
		Status:        domain.StatusPending,
		CreatedAt:     ts,
	}
}

func sampleAssessment(txID string, score float64, tier domain.RiskTier) *domain.RiskAssessment {
	return &domain.RiskAssessment{
		ID:            "assess-" + txID,
		TransactionID: txID,
		Score:         score,
		Tier:          tier,
		Reasons:       []string{"High amount: 15,000,000 KES"},
		RuleScore:     score,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetTransaction", func(t *testing.T) {
		tx := sampleTransaction("tx-001", 1_500_000, now)

		if err := repo.SaveTransaction(ctx, tx); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}

		retrieved, err := repo.GetTransaction(ctx, tx.ID)
		if err != nil {
			t.Fatalf("GetTransaction failed: %v", err)
		}

		if retrieved.ID != tx.ID {
			t.Errorf("expected ID %s, got %s", tx.ID, retrieved.ID)
		}
		if !retrieved.Amount.Equal(tx.Amount) {
			t.Errorf("expected amount %s, got %s", tx.Amount, retrieved.Amount)
		}
		if retrieved.Status != domain.StatusPending {
			t.Errorf("expected PENDING, got %s", retrieved.Status)
		}
		if retrieved.Channel != domain.ChannelMobile {
			t.Errorf("expected MOBILE channel, got %s", retrieved.Channel)
		}
	})

	t.Run("GetMissingTransaction", func(t *testing.T) {
		if _, err := repo.GetTransaction(ctx, "no-such-tx"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("SaveRejectsMissingID", func(t *testing.T) {
		if err := repo.SaveTransaction(ctx, &domain.Transaction{}); err == nil {
			t.Error("expected error for empty transaction ID")
		}
	})

	t.Run("StatusTransitions", func(t *testing.T) {
		tx := sampleTransaction("tx-status", 100_000, now)
		if err := repo.SaveTransaction(ctx, tx); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}

		if err := repo.UpdateTransactionStatus(ctx, tx.ID, domain.StatusApproved); err != nil {
			t.Fatalf("PENDING -> APPROVED failed: %v", err)
		}

		// APPROVED is terminal.
		if err := repo.UpdateTransactionStatus(ctx, tx.ID, domain.StatusBlocked); err == nil {
			t.Error("expected transition out of APPROVED to be rejected")
		}
	})
}

func TestOpenCaseLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	tx := sampleTransaction("tx-case", 15_000_000, now)
	if err := repo.SaveTransaction(ctx, tx); err != nil {
		t.Fatalf("SaveTransaction failed: %v", err)
	}
	assessment := sampleAssessment(tx.ID, 0.95, domain.TierHigh)

	c, created, err := repo.OpenCase(ctx, tx, assessment, domain.StatusBlocked)
	if err != nil {
		t.Fatalf("OpenCase failed: %v", err)
	}
	if !created {
		t.Fatal("first OpenCase should create the case")
	}
	if c.Status != domain.CaseAssigned {
		t.Errorf("expected ASSIGNED, got %s", c.Status)
	}
	if c.CustomerID != tx.CustomerID || !c.Amount.Equal(tx.Amount) {
		t.Error("case should denormalize customer and amount")
	}

	// The status flip is part of the same storage transaction.
	stored, err := repo.GetTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if stored.Status != domain.StatusBlocked {
		t.Errorf("expected BLOCKED after OpenCase, got %s", stored.Status)
	}

	t.Run("SecondOpenIsNoOp", func(t *testing.T) {
		again, created, err := repo.OpenCase(ctx, tx, assessment, domain.StatusBlocked)
		if err != nil {
			t.Fatalf("OpenCase failed: %v", err)
		}
		if created {
			t.Error("second OpenCase must not create another case")
		}
		if again.ID != c.ID {
			t.Errorf("expected existing case %s, got %s", c.ID, again.ID)
		}
	})

	t.Run("GetOpenCaseByTransaction", func(t *testing.T) {
		found, err := repo.GetOpenCaseByTransaction(ctx, tx.ID)
		if err != nil {
			t.Fatalf("GetOpenCaseByTransaction failed: %v", err)
		}
		if found.ID != c.ID {
			t.Errorf("expected case %s, got %s", c.ID, found.ID)
		}
	})

	t.Run("AnalystAction", func(t *testing.T) {
		if err := c.Apply(domain.ActionClose, "analyst-1", "false positive", time.Now().UTC()); err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
		if err := repo.UpdateCase(ctx, c); err != nil {
			t.Fatalf("UpdateCase failed: %v", err)
		}

		stored, err := repo.GetCase(ctx, c.ID)
		if err != nil {
			t.Fatalf("GetCase failed: %v", err)
		}
		if stored.Status != domain.CaseClosed {
			t.Errorf("expected CLOSED, got %s", stored.Status)
		}
		if stored.AnalystID != "analyst-1" || stored.AnalystComment != "false positive" {
			t.Errorf("analyst fields not persisted: %+v", stored)
		}
		if stored.ClosedAt == nil {
			t.Error("ClosedAt should be set")
		}

		// No open case remains for the transaction.
		if _, err := repo.GetOpenCaseByTransaction(ctx, tx.ID); err != ErrNotFound {
			t.Errorf("expected ErrNotFound for closed case, got %v", err)
		}
	})

	t.Run("ListCasesByStatus", func(t *testing.T) {
		closed, err := repo.ListCases(ctx, domain.CaseClosed, 10)
		if err != nil {
			t.Fatalf("ListCases failed: %v", err)
		}
		if len(closed) != 1 {
			t.Errorf("expected 1 closed case, got %d", len(closed))
		}

		assigned, err := repo.ListCases(ctx, domain.CaseAssigned, 10)
		if err != nil {
			t.Fatalf("ListCases failed: %v", err)
		}
		if len(assigned) != 0 {
			t.Errorf("expected no assigned cases, got %d", len(assigned))
		}
	})
}

func TestFetchPendingExcludesCasedTransactions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first := sampleTransaction("tx-pending", 100_000, now.Add(-2*time.Minute))
	second := sampleTransaction("tx-cased", 15_000_000, now.Add(-time.Minute))
	for _, tx := range []*domain.Transaction{first, second} {
		if err := repo.SaveTransaction(ctx, tx); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}
	}

	if _, _, err := repo.OpenCase(ctx, second, sampleAssessment(second.ID, 0.9, domain.TierHigh), domain.StatusBlocked); err != nil {
		t.Fatalf("OpenCase failed: %v", err)
	}

	pending, err := repo.FetchPendingTransactions(ctx, 10)
	if err != nil {
		t.Fatalf("FetchPendingTransactions failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending transaction, got %d", len(pending))
	}
	if pending[0].ID != first.ID {
		t.Errorf("expected %s, got %s", first.ID, pending[0].ID)
	}
}

func TestGetTransactionHistory(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	old := sampleTransaction("tx-old", 1000, now.Add(-48*time.Hour))
	recent := sampleTransaction("tx-recent", 2000, now.Add(-time.Hour))
	newest := sampleTransaction("tx-newest", 3000, now.Add(-time.Minute))
	for _, tx := range []*domain.Transaction{old, recent, newest} {
		if err := repo.SaveTransaction(ctx, tx); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}
	}

	history, err := repo.GetTransactionHistory(ctx, now.Add(-24*time.Hour), 10)
	if err != nil {
		t.Fatalf("GetTransactionHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 transactions in window, got %d", len(history))
	}
	if history[0].ID != newest.ID {
		t.Errorf("expected newest first, got %s", history[0].ID)
	}
}

func TestAssessments(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first := sampleAssessment("tx-001", 0.4, domain.TierLow)
	first.CreatedAt = time.Now().UTC().Add(-time.Minute)
	second := sampleAssessment("tx-001", 0.6, domain.TierMedium)
	second.ID = "assess-tx-001-2"

	for _, a := range []*domain.RiskAssessment{first, second} {
		if err := repo.SaveAssessment(ctx, a); err != nil {
			t.Fatalf("SaveAssessment failed: %v", err)
		}
	}

	latest, err := repo.GetAssessmentByTransaction(ctx, "tx-001")
	if err != nil {
		t.Fatalf("GetAssessmentByTransaction failed: %v", err)
	}
	if latest.ID != second.ID {
		t.Errorf("expected latest assessment %s, got %s", second.ID, latest.ID)
	}
	if len(latest.Reasons) != 1 {
		t.Errorf("reasons not round-tripped: %v", latest.Reasons)
	}

	if _, err := repo.GetAssessmentByTransaction(ctx, "no-such-tx"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPortfolioAggregates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	amounts := []int64{500_000, 12_000_000, 15_000_000}
	for i, amount := range amounts {
		tx := sampleTransaction("tx-agg-"+string(rune('a'+i)), amount, now.Add(-time.Hour))
		tx.CustomerID = "cust-00" + string(rune('1'+i%2))
		if err := repo.SaveTransaction(ctx, tx); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}
	}

	// Outside the window.
	outside := sampleTransaction("tx-agg-old", 9_000_000, now.Add(-48*time.Hour))
	if err := repo.SaveTransaction(ctx, outside); err != nil {
		t.Fatalf("SaveTransaction failed: %v", err)
	}

	agg, err := repo.PortfolioAggregates(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("PortfolioAggregates failed: %v", err)
	}
	if agg.TotalTransactions != 3 {
		t.Errorf("expected 3 transactions in window, got %d", agg.TotalTransactions)
	}
	if agg.HighValueCount != 2 {
		t.Errorf("expected 2 high-value transactions, got %d", agg.HighValueCount)
	}
	if agg.UniqueCustomers != 2 {
		t.Errorf("expected 2 unique customers, got %d", agg.UniqueCustomers)
	}

	if err := repo.LogRiskMetric(ctx, &domain.RiskMetric{
		Type:         domain.RiskCategoryLiquidity,
		Name:         "Liquidity Coverage Ratio",
		Value:        3.0,
		Threshold:    1.0,
		Status:       string(domain.PortfolioOK),
		CalculatedAt: now,
	}); err != nil {
		t.Errorf("LogRiskMetric failed: %v", err)
	}
}
