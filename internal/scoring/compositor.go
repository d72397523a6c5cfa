// Package scoring composes the per-source risk contributions into one
// composite score and tier.
package scoring

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wekeza/riskengine/internal/domain"
)

// advisoryFloor is the fraud score below which the advisory signal is
// ignored; advisoryWeight scales the signal's contribution.
const (
	advisoryFloor  = 0.3
	advisoryWeight = 0.2
)

// Input carries the contributions gathered for one transaction.
type Input struct {
	TransactionID       string
	RuleScore           float64
	RuleReasons         []string
	AnomalyContribution float64
	AnomalyReason       string
	Advisory            *domain.AdvisorySignal
}

// Compositor sums rule, anomaly and advisory contributions, applies the
// single final clip to [0,1] and maps the result to a tier.
type Compositor struct {
	highThreshold   float64
	mediumThreshold float64
}

// NewCompositor validates the threshold ordering and returns a compositor.
func NewCompositor(cfg domain.ScoringConfig) (*Compositor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scoring config: %w", err)
	}
	return &Compositor{
		highThreshold:   cfg.HighThreshold,
		mediumThreshold: cfg.MediumThreshold,
	}, nil
}

// Compose produces the final assessment. Contributions are summed before
// the one clip, so the reason list can describe more risk mass than the
// clipped score reflects; that ordering is part of the contract.
func (c *Compositor) Compose(in Input) *domain.RiskAssessment {
	total := in.RuleScore + in.AnomalyContribution

	reasons := make([]string, 0, len(in.RuleReasons)+2)
	reasons = append(reasons, in.RuleReasons...)
	if in.AnomalyContribution > 0 && in.AnomalyReason != "" {
		reasons = append(reasons, in.AnomalyReason)
	}

	var advisoryContribution float64
	if in.Advisory != nil && in.Advisory.FraudScore > advisoryFloor {
		advisoryContribution = in.Advisory.FraudScore * advisoryWeight
		total += advisoryContribution
		if len(in.Advisory.Typologies) > 0 {
			reasons = append(reasons, "Fraud advisory indicators: "+strings.Join(in.Advisory.Typologies, ", "))
		}
	}

	final := clip(total, 0, 1)

	return &domain.RiskAssessment{
		ID:            uuid.New().String(),
		TransactionID: in.TransactionID,
		Score:         final,
		Tier:          c.Tier(final),
		Reasons:       reasons,
		RuleScore:     in.RuleScore,
		AnomalyScore:  in.AnomalyContribution,
		AdvisoryScore: advisoryContribution,
		CreatedAt:     time.Now().UTC(),
	}
}

// Tier maps a clipped score to its risk tier. Monotonic by construction:
// the high threshold is checked first and is >= the medium threshold.
func (c *Compositor) Tier(score float64) domain.RiskTier {
	switch {
	case score >= c.highThreshold:
		return domain.TierHigh
	case score >= c.mediumThreshold:
		return domain.TierMedium
	default:
		return domain.TierLow
	}
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
