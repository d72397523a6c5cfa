package domain

import (
	"time"
)

// RiskTier classifies a composite score against two ordered thresholds.
type RiskTier string

const (
	TierLow    RiskTier = "LOW"
	TierMedium RiskTier = "MEDIUM"
	TierHigh   RiskTier = "HIGH"
)

// RiskAssessment is the outcome of scoring one transaction.
// Score is the composite value after the single final clip to [0,1];
// the per-source contributions are kept for audit and may sum past 1.0.
type RiskAssessment struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transactionId"`
	Score         float64   `json:"score"`
	Tier          RiskTier  `json:"tier"`
	Reasons       []string  `json:"reasons"`
	RuleScore     float64   `json:"ruleScore"`
	AnomalyScore  float64   `json:"anomalyScore"`
	AdvisoryScore float64   `json:"advisoryScore"`
	CreatedAt     time.Time `json:"createdAt"`
}
