package domain

import (
	"context"
)

// Recommendation is the advisory collaborator's verdict on a transaction.
type Recommendation string

const (
	RecommendApprove Recommendation = "APPROVE"
	RecommendReview  Recommendation = "REVIEW"
	RecommendBlock   Recommendation = "BLOCK"
)

// AdvisorySignal is the fraud signal returned by the external detection
// collaborator. FraudScore is in [0,1].
type AdvisorySignal struct {
	FraudScore     float64        `json:"fraudScore"`
	Typologies     []string       `json:"typologies,omitempty"`
	Recommendation Recommendation `json:"recommendation"`
}

// AdvisoryClient supplies a fraud score and typology labels per transaction.
// A failed call is treated as an absent signal; the pipeline continues.
type AdvisoryClient interface {
	Submit(ctx context.Context, tx *Transaction) (*AdvisorySignal, error)
}

// CaseManager forwards review cases to the external case-management system.
// Best-effort: failure never blocks local case creation.
type CaseManager interface {
	CreateExternalCase(ctx context.Context, tx *Transaction, score float64, reasons []string) (string, error)
}

// Risk event severities and categories for the risk register.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

const (
	RiskCategoryOperational = "OPERATIONAL"
	RiskCategoryLiquidity   = "LIQUIDITY"
	RiskCategoryCredit      = "CREDIT"
)

// RiskRegister records high-severity events in the organizational risk
// register. Failures are logged only.
type RiskRegister interface {
	LogEvent(ctx context.Context, category, title, description, severity string) error
}
