package domain

import (
	"time"
)

// PortfolioStatus bands the liquidity coverage ratio.
type PortfolioStatus string

const (
	PortfolioOK       PortfolioStatus = "OK"
	PortfolioWarning  PortfolioStatus = "WARNING"
	PortfolioCritical PortfolioStatus = "CRITICAL"
)

// PortfolioAggregates is the raw aggregate row read from storage for a
// trailing window.
type PortfolioAggregates struct {
	TotalTransactions int64
	AverageAmount     float64
	HighValueCount    int64
	UniqueCustomers   int64
}

// PortfolioSnapshot is a window-scoped aggregate of transaction volume and
// the derived liquidity ratio. Recomputed wholesale each cycle.
type PortfolioSnapshot struct {
	Window                 time.Duration   `json:"-"`
	WindowHours            float64         `json:"windowHours"`
	TotalTransactions      int64           `json:"totalTransactions"`
	AverageAmount          float64         `json:"averageAmount"`
	HighValueCount         int64           `json:"highValueCount"`
	UniqueCustomers        int64           `json:"uniqueCustomers"`
	HighValueRatio         float64         `json:"highValueRatio"`
	LiquidityCoverageRatio float64         `json:"liquidityCoverageRatio"`
	Status                 PortfolioStatus `json:"status"`
	ComputedAt             time.Time       `json:"computedAt"`
}

// RiskMetric is a logged portfolio-level measurement.
type RiskMetric struct {
	Type         string    `json:"type"` // LIQUIDITY, CREDIT, OPERATIONAL, MARKET
	Name         string    `json:"name"`
	Value        float64   `json:"value"`
	Threshold    float64   `json:"threshold"`
	Status       string    `json:"status"`
	CalculatedAt time.Time `json:"calculatedAt"`
}
