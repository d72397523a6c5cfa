// Package domain defines the core types and interfaces for the risk engine.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrDataInvalid marks a transaction that fails ingestion validation.
// Processing of that single transaction is aborted; the record stays PENDING.
var ErrDataInvalid = errors.New("invalid transaction data")

// TransactionType classifies how funds moved.
type TransactionType string

const (
	TypeTransfer   TransactionType = "TRANSFER"
	TypePayment    TransactionType = "PAYMENT"
	TypeWithdrawal TransactionType = "WITHDRAWAL"
	TypeDeposit    TransactionType = "DEPOSIT"
)

// Channel identifies the origination channel of a transaction.
type Channel string

const (
	ChannelMobile Channel = "MOBILE"
	ChannelOnline Channel = "ONLINE"
	ChannelATM    Channel = "ATM"
	ChannelBranch Channel = "BRANCH"
)

// TransactionStatus is the lifecycle state of a transaction.
// PENDING transitions to APPROVED, FLAGGED or BLOCKED. APPROVED and
// BLOCKED are terminal; FLAGGED awaits analyst action.
type TransactionStatus string

const (
	StatusPending  TransactionStatus = "PENDING"
	StatusApproved TransactionStatus = "APPROVED"
	StatusFlagged  TransactionStatus = "FLAGGED"
	StatusBlocked  TransactionStatus = "BLOCKED"
)

// Terminal reports whether no further status transition is allowed.
func (s TransactionStatus) Terminal() bool {
	return s == StatusApproved || s == StatusBlocked
}

// CanTransition reports whether the status machine permits moving to next.
func (s TransactionStatus) CanTransition(next TransactionStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusApproved || next == StatusFlagged || next == StatusBlocked
	case StatusFlagged:
		return next == StatusApproved || next == StatusBlocked
	default:
		return false
	}
}

// Transaction is a financial transaction pending risk evaluation.
// Records are created by the ingestion boundary and mutated only by the
// case router; they are never deleted by the engine.
type Transaction struct {
	ID               string            `json:"id"`
	CustomerID       string            `json:"customerId"`
	AccountNumber    string            `json:"accountNumber,omitempty"`
	Amount           decimal.Decimal   `json:"amount"`
	Currency         string            `json:"currency"`
	Type             TransactionType   `json:"type"`
	MerchantName     string            `json:"merchantName,omitempty"`
	MerchantCategory string            `json:"merchantCategory,omitempty"`
	Location         string            `json:"location,omitempty"`
	Channel          Channel           `json:"channel"`
	Timestamp        time.Time         `json:"timestamp"`
	Status           TransactionStatus `json:"status"`
	CreatedAt        time.Time         `json:"createdAt"`
}

// AmountFloat returns the amount as a float64 for score and feature math.
// Monetary persistence and comparison stay decimal; only the statistical
// pipeline consumes the float form.
func (t *Transaction) AmountFloat() float64 {
	return t.Amount.InexactFloat64()
}

// Validate enforces the ingestion contract. A transaction with missing
// required fields is rejected with ErrDataInvalid rather than entering
// the scoring pipeline.
func (t *Transaction) Validate() error {
	var missing []string
	if t.ID == "" {
		missing = append(missing, "id")
	}
	if t.CustomerID == "" {
		missing = append(missing, "customerId")
	}
	if t.Amount.IsZero() || t.Amount.IsNegative() {
		missing = append(missing, "amount")
	}
	if t.Type == "" {
		missing = append(missing, "type")
	}
	if t.Channel == "" {
		missing = append(missing, "channel")
	}
	if t.Timestamp.IsZero() {
		missing = append(missing, "timestamp")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrDataInvalid, strings.Join(missing, ", "))
	}
	return nil
}

// ParseTransactionType normalizes a raw type string, returning "" when unknown.
func ParseTransactionType(raw string) TransactionType {
	switch TransactionType(strings.ToUpper(strings.TrimSpace(raw))) {
	case TypeTransfer:
		return TypeTransfer
	case TypePayment:
		return TypePayment
	case TypeWithdrawal:
		return TypeWithdrawal
	case TypeDeposit:
		return TypeDeposit
	default:
		return ""
	}
}

// ParseChannel normalizes a raw channel string, returning "" when unknown.
func ParseChannel(raw string) Channel {
	switch Channel(strings.ToUpper(strings.TrimSpace(raw))) {
	case ChannelMobile:
		return ChannelMobile
	case ChannelOnline:
		return ChannelOnline
	case ChannelATM:
		return ChannelATM
	case ChannelBranch:
		return ChannelBranch
	default:
		return ""
	}
}
