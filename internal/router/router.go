// Package router drives the decision state machine for scored
// transactions: auto-approve, flag for review, or block with escalation.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/wekeza/riskengine/internal/domain"
)

// Router applies the tier-keyed transition rule and its side effects.
// Storage writes are authoritative; case-management forwarding, risk
// register events and bus publishes are best-effort.
type Router struct {
	repo     domain.Repository
	cases    domain.CaseManager
	register domain.RiskRegister
	bus      domain.EventBus
}

// New creates a case router. cases, register and bus may each be nil when
// the corresponding collaborator is not configured.
func New(repo domain.Repository, cases domain.CaseManager, register domain.RiskRegister, bus domain.EventBus) *Router {
	return &Router{
		repo:     repo,
		cases:    cases,
		register: register,
		bus:      bus,
	}
}

// Route transitions the transaction per its assessed tier and opens a
// review case for MEDIUM and HIGH. Returns the open case, if any.
// A storage failure is returned to the caller and leaves the transaction
// PENDING with no case, to be retried next cycle.
func (r *Router) Route(ctx context.Context, tx *domain.Transaction, assessment *domain.RiskAssessment) (*domain.Case, error) {
	switch assessment.Tier {
	case domain.TierLow:
		if err := r.repo.UpdateTransactionStatus(ctx, tx.ID, domain.StatusApproved); err != nil {
			return nil, fmt.Errorf("approve transaction %s: %w", tx.ID, err)
		}
		slog.Info("transaction auto-approved",
			"tx_id", tx.ID,
			"score", assessment.Score,
		)
		return nil, nil

	case domain.TierMedium:
		return r.openCase(ctx, tx, assessment, domain.StatusFlagged)

	case domain.TierHigh:
		c, err := r.openCase(ctx, tx, assessment, domain.StatusBlocked)
		if err != nil {
			return nil, err
		}
		r.logHighRiskEvent(ctx, tx, assessment)
		r.publishAlert(ctx, tx, assessment)
		return c, nil

	default:
		return nil, fmt.Errorf("transaction %s: unknown tier %q", tx.ID, assessment.Tier)
	}
}

// openCase creates the review case and flips the transaction status in one
// storage transaction, then forwards to case management. Opening a case
// for a transaction that already has a non-closed case is a no-op.
func (r *Router) openCase(ctx context.Context, tx *domain.Transaction, assessment *domain.RiskAssessment, status domain.TransactionStatus) (*domain.Case, error) {
	c, created, err := r.repo.OpenCase(ctx, tx, assessment, status)
	if err != nil {
		return nil, fmt.Errorf("open case for transaction %s: %w", tx.ID, err)
	}
	if !created {
		slog.Debug("case already open for transaction",
			"tx_id", tx.ID,
			"case_id", c.ID,
		)
		return c, nil
	}

	slog.Info("review case opened",
		"tx_id", tx.ID,
		"case_id", c.ID,
		"tier", assessment.Tier,
		"score", assessment.Score,
		"status", status,
	)

	if r.cases != nil {
		externalID, err := r.cases.CreateExternalCase(ctx, tx, assessment.Score, assessment.Reasons)
		if err != nil {
			slog.Warn("case-management forwarding failed",
				"tx_id", tx.ID,
				"case_id", c.ID,
				"error", err,
			)
		} else {
			slog.Debug("external case created",
				"case_id", c.ID,
				"external_case_id", externalID,
			)
		}
	}

	r.publishCaseOpened(ctx, c)
	return c, nil
}

func (r *Router) logHighRiskEvent(ctx context.Context, tx *domain.Transaction, assessment *domain.RiskAssessment) {
	if r.register == nil {
		return
	}
	title := "High Risk Transaction Detected: " + tx.ID
	description := fmt.Sprintf("Transaction of %s %s flagged as high risk. Reasons: %s",
		tx.Amount.StringFixed(0), tx.Currency, joinReasons(assessment.Reasons))
	if err := r.register.LogEvent(ctx, domain.RiskCategoryOperational, title, description, domain.SeverityHigh); err != nil {
		slog.Warn("risk register event failed",
			"tx_id", tx.ID,
			"error", err,
		)
	}
}

func (r *Router) publishCaseOpened(ctx context.Context, c *domain.Case) {
	if r.bus == nil {
		return
	}
	payload, _ := json.Marshal(domain.CaseOpenedEvent{
		CaseID:        c.ID,
		TransactionID: c.TransactionID,
		Tier:          c.Tier,
		Score:         c.Score,
		Reasons:       c.Reasons,
	})
	if err := r.bus.Publish(ctx, domain.TopicCaseOpened, payload); err != nil {
		slog.Warn("failed to publish case-opened event",
			"case_id", c.ID,
			"error", err,
		)
	}
}

func (r *Router) publishAlert(ctx context.Context, tx *domain.Transaction, assessment *domain.RiskAssessment) {
	if r.bus == nil {
		return
	}
	payload, _ := json.Marshal(assessment)
	if err := r.bus.Publish(ctx, domain.TopicAlert, payload); err != nil {
		slog.Warn("failed to publish alert",
			"tx_id", tx.ID,
			"error", err,
		)
	}
}

func joinReasons(reasons []string) string {
	if len(reasons) == 0 {
		return "none recorded"
	}
	out := reasons[0]
	for _, r := range reasons[1:] {
		out += "; " + r
	}
	return out
}
