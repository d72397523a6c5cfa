package domain

import (
	"context"
	"time"
)

// Repository defines the storage contract consumed by the engine.
type Repository interface {
	// Transaction operations
	SaveTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)

	// FetchPendingTransactions returns PENDING transactions without any
	// existing case, newest first, up to limit.
	FetchPendingTransactions(ctx context.Context, limit int) ([]*Transaction, error)

	// GetTransactionHistory returns transactions since the given time,
	// newest first, up to limit. Used for model training.
	GetTransactionHistory(ctx context.Context, since time.Time, limit int) ([]*Transaction, error)

	// UpdateTransactionStatus applies a status transition. Transitions out
	// of a terminal status are rejected.
	UpdateTransactionStatus(ctx context.Context, txID string, status TransactionStatus) error

	// OpenCase atomically creates a review case and applies the status
	// transition for the transaction. If a non-closed case already exists
	// for the transaction, the existing case is returned with created=false
	// and nothing is written.
	OpenCase(ctx context.Context, tx *Transaction, assessment *RiskAssessment, status TransactionStatus) (c *Case, created bool, err error)

	GetCase(ctx context.Context, caseID string) (*Case, error)
	GetOpenCaseByTransaction(ctx context.Context, txID string) (*Case, error)
	ListCases(ctx context.Context, status CaseStatus, limit int) ([]*Case, error)
	UpdateCase(ctx context.Context, c *Case) error

	// Assessment operations
	SaveAssessment(ctx context.Context, a *RiskAssessment) error
	GetAssessmentByTransaction(ctx context.Context, txID string) (*RiskAssessment, error)

	// Portfolio operations
	LogRiskMetric(ctx context.Context, m *RiskMetric) error
	PortfolioAggregates(ctx context.Context, window time.Duration) (*PortfolioAggregates, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
