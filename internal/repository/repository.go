// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wekeza/riskengine/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// highValueAmount is the per-transaction amount above which a transaction
// counts toward the high-value portfolio aggregate.
const highValueAmount = 10_000_000

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

const transactionColumns = `id, customer_id, account_number, amount, currency, type,
	   merchant_name, merchant_category, location, channel,
	   timestamp, status, created_at`

// SaveTransaction stores a new transaction in PENDING status.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx.ID == "" {
		return fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO transactions (
			id, customer_id, account_number, amount, currency, type,
			merchant_name, merchant_category, location, channel,
			timestamp, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tx.CustomerID, tx.AccountNumber,
		tx.Amount.String(), tx.Currency, tx.Type,
		tx.MerchantName, tx.MerchantCategory, tx.Location, tx.Channel,
		tx.Timestamp, tx.Status, tx.CreatedAt,
	)
	return err
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

	row := r.db.QueryRowContext(ctx, r.rebind(query), txID)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return tx, err
}

// FetchPendingTransactions returns PENDING transactions that have never had
// a case opened for them, newest first.
func (r *SQLRepository) FetchPendingTransactions(ctx context.Context, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT ` + transactionColumns + `
		FROM transactions t
		WHERE t.status = 'PENDING'
		  AND NOT EXISTS (SELECT 1 FROM cases c WHERE c.transaction_id = t.id)
		ORDER BY t.timestamp DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectTransactions(rows)
}

// GetTransactionHistory returns transactions since the given time, newest
// first, up to limit.
func (r *SQLRepository) GetTransactionHistory(ctx context.Context, since time.Time, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		limit = 1000
	}

	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE timestamp >= ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectTransactions(rows)
}

// UpdateTransactionStatus applies a status transition, rejecting moves out
// of a terminal status.
func (r *SQLRepository) UpdateTransactionStatus(ctx context.Context, txID string, status domain.TransactionStatus) error {
	var current domain.TransactionStatus
	query := `SELECT status FROM transactions WHERE id = ?`
	err := r.db.QueryRowContext(ctx, r.rebind(query), txID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if !current.CanTransition(status) {
		return fmt.Errorf("%w: cannot transition %s from %s to %s", ErrInvalidInput, txID, current, status)
	}

	// Guard against a concurrent transition with the prior status in the
	// WHERE clause.
	update := `UPDATE transactions SET status = ? WHERE id = ? AND status = ?`
	result, err := r.db.ExecContext(ctx, r.rebind(update), status, txID, current)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: transaction %s status changed concurrently", ErrInvalidInput, txID)
	}
	return nil
}

const caseColumns = `id, transaction_id, customer_id, amount, currency,
	   score, tier, reasons, status, analyst_id, analyst_comment,
	   created_at, updated_at, closed_at`

// OpenCase creates a review case and flips the transaction status in one
// database transaction, so a case row never exists without its status flip.
// If the transaction already has a non-closed case, nothing is written and
// the existing case is returned with created=false.
func (r *SQLRepository) OpenCase(ctx context.Context, tx *domain.Transaction, assessment *domain.RiskAssessment, status domain.TransactionStatus) (*domain.Case, bool, error) {
	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer dbtx.Rollback()

	existing := `
		SELECT ` + caseColumns + `
		FROM cases
		WHERE transaction_id = ? AND status = 'ASSIGNED'
		LIMIT 1
	`
	row := dbtx.QueryRowContext(ctx, r.rebind(existing), tx.ID)
	if c, err := scanCase(row); err == nil {
		return c, false, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}

	now := time.Now().UTC()
	c := &domain.Case{
		ID:            uuid.NewString(),
		TransactionID: tx.ID,
		CustomerID:    tx.CustomerID,
		Amount:        tx.Amount,
		Currency:      tx.Currency,
		Score:         assessment.Score,
		Tier:          assessment.Tier,
		Reasons:       assessment.Reasons,
		Status:        domain.CaseAssigned,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	reasons, _ := json.Marshal(c.Reasons)

	insert := `
		INSERT INTO cases (
			id, transaction_id, customer_id, amount, currency,
			score, tier, reasons, status, analyst_id, analyst_comment,
			created_at, updated_at, closed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`
	if _, err := dbtx.ExecContext(ctx, r.rebind(insert),
		c.ID, c.TransactionID, c.CustomerID,
		c.Amount.String(), c.Currency,
		c.Score, c.Tier, string(reasons), c.Status,
		c.AnalystID, c.AnalystComment,
		c.CreatedAt, c.UpdatedAt,
	); err != nil {
		return nil, false, err
	}

	update := `UPDATE transactions SET status = ? WHERE id = ? AND status = 'PENDING'`
	result, err := dbtx.ExecContext(ctx, r.rebind(update), status, tx.ID)
	if err != nil {
		return nil, false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if affected == 0 {
		return nil, false, fmt.Errorf("%w: transaction %s is not pending", ErrInvalidInput, tx.ID)
	}

	if err := dbtx.Commit(); err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// GetCase retrieves a case by ID.
func (r *SQLRepository) GetCase(ctx context.Context, caseID string) (*domain.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE id = ?`

	row := r.db.QueryRowContext(ctx, r.rebind(query), caseID)
	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// GetOpenCaseByTransaction retrieves the non-closed case for a transaction,
// if one exists.
func (r *SQLRepository) GetOpenCaseByTransaction(ctx context.Context, txID string) (*domain.Case, error) {
	query := `
		SELECT ` + caseColumns + `
		FROM cases
		WHERE transaction_id = ? AND status = 'ASSIGNED'
		LIMIT 1
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), txID)
	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// ListCases retrieves cases, optionally filtered by status, newest first.
func (r *SQLRepository) ListCases(ctx context.Context, status domain.CaseStatus, limit int) ([]*domain.Case, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows *sql.Rows
	var err error
	if status == "" {
		query := `SELECT ` + caseColumns + ` FROM cases ORDER BY created_at DESC LIMIT ?`
		rows, err = r.db.QueryContext(ctx, r.rebind(query), limit)
	} else {
		query := `SELECT ` + caseColumns + ` FROM cases WHERE status = ? ORDER BY created_at DESC LIMIT ?`
		rows, err = r.db.QueryContext(ctx, r.rebind(query), status, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []*domain.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

// UpdateCase persists analyst fields and status for an existing case.
func (r *SQLRepository) UpdateCase(ctx context.Context, c *domain.Case) error {
	query := `
		UPDATE cases
		SET status = ?, analyst_id = ?, analyst_comment = ?, updated_at = ?, closed_at = ?
		WHERE id = ?
	`

	var closedAt any
	if c.ClosedAt != nil {
		closedAt = *c.ClosedAt
	}

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		c.Status, c.AnalystID, c.AnalystComment, c.UpdatedAt, closedAt, c.ID,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveAssessment stores a scoring outcome.
func (r *SQLRepository) SaveAssessment(ctx context.Context, a *domain.RiskAssessment) error {
	reasons, _ := json.Marshal(a.Reasons)

	query := `
		INSERT INTO risk_assessments (
			id, transaction_id, score, tier, reasons,
			rule_score, anomaly_score, advisory_score, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		a.ID, a.TransactionID, a.Score, a.Tier, string(reasons),
		a.RuleScore, a.AnomalyScore, a.AdvisoryScore, a.CreatedAt,
	)
	return err
}

// GetAssessmentByTransaction retrieves the latest assessment for a
// transaction.
func (r *SQLRepository) GetAssessmentByTransaction(ctx context.Context, txID string) (*domain.RiskAssessment, error) {
	query := `
		SELECT id, transaction_id, score, tier, reasons,
			   rule_score, anomaly_score, advisory_score, created_at
		FROM risk_assessments
		WHERE transaction_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`

	var a domain.RiskAssessment
	var reasons string

	err := r.db.QueryRowContext(ctx, r.rebind(query), txID).Scan(
		&a.ID, &a.TransactionID, &a.Score, &a.Tier, &reasons,
		&a.RuleScore, &a.AnomalyScore, &a.AdvisoryScore, &a.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(reasons), &a.Reasons)
	return &a, nil
}

// LogRiskMetric appends a portfolio metric row.
func (r *SQLRepository) LogRiskMetric(ctx context.Context, m *domain.RiskMetric) error {
	query := `
		INSERT INTO risk_metrics (
			id, metric_type, metric_name, value, threshold, status, calculated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		uuid.NewString(), m.Type, m.Name, m.Value, m.Threshold, m.Status, m.CalculatedAt,
	)
	return err
}

// PortfolioAggregates computes the trailing-window aggregates in one query.
func (r *SQLRepository) PortfolioAggregates(ctx context.Context, window time.Duration) (*domain.PortfolioAggregates, error) {
	since := time.Now().UTC().Add(-window)

	query := `
		SELECT COUNT(*),
			   COALESCE(AVG(amount), 0),
			   COALESCE(SUM(CASE WHEN amount > ? THEN 1 ELSE 0 END), 0),
			   COUNT(DISTINCT customer_id)
		FROM transactions
		WHERE timestamp >= ?
	`

	var agg domain.PortfolioAggregates
	err := r.db.QueryRowContext(ctx, r.rebind(query), highValueAmount, since).Scan(
		&agg.TotalTransactions, &agg.AverageAmount, &agg.HighValueCount, &agg.UniqueCustomers,
	)
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

// scanner abstracts sql.Row and sql.Rows for the scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var amount string

	if err := s.Scan(
		&tx.ID, &tx.CustomerID, &tx.AccountNumber,
		&amount, &tx.Currency, &tx.Type,
		&tx.MerchantName, &tx.MerchantCategory, &tx.Location, &tx.Channel,
		&tx.Timestamp, &tx.Status, &tx.CreatedAt,
	); err != nil {
		return nil, err
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: bad amount %q: %w", tx.ID, amount, err)
	}
	tx.Amount = parsed
	return &tx, nil
}

func collectTransactions(rows *sql.Rows) ([]*domain.Transaction, error) {
	var transactions []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

func scanCase(s scanner) (*domain.Case, error) {
	var c domain.Case
	var amount, reasons string
	var analystID, analystComment sql.NullString
	var closedAt sql.NullTime

	if err := s.Scan(
		&c.ID, &c.TransactionID, &c.CustomerID, &amount, &c.Currency,
		&c.Score, &c.Tier, &reasons, &c.Status, &analystID, &analystComment,
		&c.CreatedAt, &c.UpdatedAt, &closedAt,
	); err != nil {
		return nil, err
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("case %s: bad amount %q: %w", c.ID, amount, err)
	}
	c.Amount = parsed
	c.AnalystID = analystID.String
	c.AnalystComment = analystComment.String
	if closedAt.Valid {
		t := closedAt.Time
		c.ClosedAt = &t
	}
	json.Unmarshal([]byte(reasons), &c.Reasons)
	return &c, nil
}
