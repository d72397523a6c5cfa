package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrCaseClosed is returned when an analyst action targets a case that is
// already in a terminal state.
var ErrCaseClosed = errors.New("case is in a terminal state")

// CaseStatus is the review-case state machine. ASSIGNED moves to CLOSED,
// ESCALATED or BLOCKED; all three are terminal here. ESCALATED hands the
// case to a manual process outside the engine.
type CaseStatus string

const (
	CaseAssigned  CaseStatus = "ASSIGNED"
	CaseClosed    CaseStatus = "CLOSED"
	CaseEscalated CaseStatus = "ESCALATED"
	CaseBlocked   CaseStatus = "BLOCKED"
)

// Terminal reports whether the case accepts no further analyst actions.
func (s CaseStatus) Terminal() bool {
	return s == CaseClosed || s == CaseEscalated || s == CaseBlocked
}

// CaseAction is an analyst decision on an assigned case.
type CaseAction string

const (
	ActionClose    CaseAction = "close"    // approve as false positive
	ActionEscalate CaseAction = "escalate" // hand off to manual review
	ActionBlock    CaseAction = "block"    // confirm and block
)

// StatusFor maps an analyst action to the resulting case status.
func (a CaseAction) StatusFor() (CaseStatus, error) {
	switch a {
	case ActionClose:
		return CaseClosed, nil
	case ActionEscalate:
		return CaseEscalated, nil
	case ActionBlock:
		return CaseBlocked, nil
	default:
		return "", fmt.Errorf("unknown case action: %s", a)
	}
}

// Case is a review record opened when a transaction's tier requires analyst
// attention. At most one non-closed case exists per transaction. Customer,
// amount and currency are denormalized for analyst queries.
type Case struct {
	ID             string          `json:"id"`
	TransactionID  string          `json:"transactionId"`
	CustomerID     string          `json:"customerId"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Score          float64         `json:"score"`
	Tier           RiskTier        `json:"tier"`
	Reasons        []string        `json:"reasons"`
	Status         CaseStatus      `json:"status"`
	AnalystID      string          `json:"analystId,omitempty"`
	AnalystComment string          `json:"analystComment,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	ClosedAt       *time.Time      `json:"closedAt,omitempty"`
}

// Apply validates and performs an analyst action on the case.
func (c *Case) Apply(action CaseAction, analystID, comment string, now time.Time) error {
	if c.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrCaseClosed, c.Status)
	}
	next, err := action.StatusFor()
	if err != nil {
		return err
	}
	c.Status = next
	c.AnalystID = analystID
	c.AnalystComment = comment
	c.UpdatedAt = now
	c.ClosedAt = &now
	return nil
}
