package repository

// Schema definitions for the risk engine database.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    customer_id TEXT NOT NULL,
    account_number TEXT,
    amount NUMERIC NOT NULL,
    currency TEXT NOT NULL,
    type TEXT NOT NULL,
    merchant_name TEXT,
    merchant_category TEXT,
    location TEXT,
    channel TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    status TEXT NOT NULL DEFAULT 'PENDING',
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);
CREATE INDEX IF NOT EXISTS idx_transactions_customer ON transactions(customer_id);
CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(timestamp);
`

const schemaCases = `
CREATE TABLE IF NOT EXISTS cases (
    id TEXT PRIMARY KEY,
    transaction_id TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    amount NUMERIC NOT NULL,
    currency TEXT NOT NULL,
    score REAL NOT NULL,
    tier TEXT NOT NULL,
    reasons TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'ASSIGNED',
    analyst_id TEXT,
    analyst_comment TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    closed_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_cases_transaction ON cases(transaction_id);
CREATE INDEX IF NOT EXISTS idx_cases_status ON cases(status);
CREATE INDEX IF NOT EXISTS idx_cases_created ON cases(created_at);
`

const schemaAssessments = `
CREATE TABLE IF NOT EXISTS risk_assessments (
    id TEXT PRIMARY KEY,
    transaction_id TEXT NOT NULL,
    score REAL NOT NULL,
    tier TEXT NOT NULL,
    reasons TEXT NOT NULL,
    rule_score REAL NOT NULL,
    anomaly_score REAL NOT NULL,
    advisory_score REAL NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessments_transaction ON risk_assessments(transaction_id);
CREATE INDEX IF NOT EXISTS idx_assessments_created ON risk_assessments(created_at);
`

const schemaRiskMetrics = `
CREATE TABLE IF NOT EXISTS risk_metrics (
    id TEXT PRIMARY KEY,
    metric_type TEXT NOT NULL,
    metric_name TEXT NOT NULL,
    value REAL NOT NULL,
    threshold REAL NOT NULL,
    status TEXT NOT NULL,
    calculated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_risk_metrics_type ON risk_metrics(metric_type);
CREATE INDEX IF NOT EXISTS idx_risk_metrics_calculated ON risk_metrics(calculated_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaCases,
		schemaAssessments,
		schemaRiskMetrics,
	}
}
