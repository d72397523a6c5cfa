// Package rules provides the deterministic rule-based risk scorer.
//
// Factors are CEL expressions compiled once at construction and evaluated
// in a fixed order. Contributions are summed without clipping; the single
// clip happens later in scoring, after anomaly and advisory contributions.
package rules

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/shopspring/decimal"

	"github.com/wekeza/riskengine/internal/domain"
)

// Amount thresholds shared with reason text. Values are in minor currency
// units of the portfolio currency (KES).
const (
	highAmountThreshold   = 10_000_000
	mediumAmountThreshold = 1_000_000
)

// factor is one compiled scoring rule. The expression returns the
// contribution as a double; zero means the factor did not trigger.
type factor struct {
	name       string
	expression string
	program    cel.Program
	reason     func(tx *domain.Transaction, contribution float64) string
}

// Scorer evaluates the fixed factor list against a transaction.
// Score is a pure function: no I/O, no shared mutable state.
type Scorer struct {
	factors []factor
}

// NewScorer compiles the factor expressions and returns a ready scorer.
func NewScorer() (*Scorer, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("merchant", cel.StringType),
		cel.Variable("tx_type", cel.StringType),
		cel.Variable("location", cel.StringType),
		cel.Variable("channel", cel.StringType),
		cel.Variable("hour", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	defs := []factor{
		{
			name:       "amount",
			expression: `amount > 10000000.0 ? 0.4 : (amount > 1000000.0 ? 0.2 : 0.0)`,
			reason: func(tx *domain.Transaction, c float64) string {
				label := "Medium amount"
				if c >= 0.4 {
					label = "High amount"
				}
				return fmt.Sprintf("%s: %s %s", label, formatAmount(tx.Amount), currencyOf(tx))
			},
		},
		{
			name:       "merchant",
			expression: `["unknown", "shell", "suspicious", "cash"].exists(k, merchant.contains(k)) ? 0.3 : 0.0`,
			reason: func(tx *domain.Transaction, _ float64) string {
				return "High-risk merchant: " + strings.ToLower(tx.MerchantName)
			},
		},
		{
			name:       "large_transfer",
			expression: `(tx_type == "transfer" || tx_type == "payment") && amount > 5000000.0 ? 0.2 : 0.0`,
			reason: func(_ *domain.Transaction, _ float64) string {
				return "Large transfer/payment"
			},
		},
		{
			name:       "location",
			expression: `location in ["unknown", "offshore", "foreign"] ? 0.25 : 0.0`,
			reason: func(tx *domain.Transaction, _ float64) string {
				return "High-risk location: " + strings.ToLower(tx.Location)
			},
		},
		{
			name:       "online_channel",
			expression: `channel == "online" && amount > 2000000.0 ? 0.15 : 0.0`,
			reason: func(_ *domain.Transaction, _ float64) string {
				return "Large online transaction"
			},
		},
		{
			name:       "off_hours",
			expression: `hour < 6 || hour > 22 ? 0.1 : 0.0`,
			reason: func(_ *domain.Transaction, _ float64) string {
				return "Off-hours transaction"
			},
		},
	}

	for i := range defs {
		ast, issues := env.Compile(defs[i].expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("failed to compile factor %s: %w", defs[i].name, issues.Err())
		}
		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("failed to create program for factor %s: %w", defs[i].name, err)
		}
		defs[i].program = program
	}

	return &Scorer{factors: defs}, nil
}

// Score evaluates all factors in order and returns the additive rule score
// together with the reasons in evaluation order. The result is not clipped.
func (s *Scorer) Score(tx *domain.Transaction) (float64, []string) {
	activation := map[string]any{
		"amount":   tx.AmountFloat(),
		"merchant": strings.ToLower(tx.MerchantName),
		"tx_type":  strings.ToLower(string(tx.Type)),
		"location": strings.ToLower(tx.Location),
		"channel":  strings.ToLower(string(tx.Channel)),
		"hour":     int64(tx.Timestamp.Hour()),
	}

	var total float64
	var reasons []string

	for _, f := range s.factors {
		out, _, err := f.program.Eval(activation)
		if err != nil {
			// Compile-time typing makes this unreachable for well-formed
			// transactions; treat as a non-triggering factor.
			slog.Warn("rule factor evaluation failed",
				"factor", f.name,
				"tx_id", tx.ID,
				"error", err,
			)
			continue
		}

		contribution := toContribution(out)
		if contribution <= 0 {
			continue
		}

		total += contribution
		reasons = append(reasons, f.reason(tx, contribution))
	}

	return total, reasons
}

// FactorCount returns the number of compiled factors.
func (s *Scorer) FactorCount() int {
	return len(s.factors)
}

func toContribution(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

func currencyOf(tx *domain.Transaction) string {
	if tx.Currency != "" {
		return tx.Currency
	}
	return "KES"
}

// formatAmount renders a decimal amount with thousands separators and no
// fractional digits, e.g. 15,000,000.
func formatAmount(d decimal.Decimal) string {
	s := d.Round(0).String()
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	n := len(s)
	if n <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	head := n % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < n; i += 3 {
		if b.Len() > 0 && !(neg && b.Len() == 1) {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
