/**
 * @description
 * This file defines the core domain models for the transfer-service.
 * These structs represent the ledger records and data transfer objects (DTOs)
 * used throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Amounts are `decimal.Decimal` to avoid floating-point inaccuracies with
 *   financial data while still accepting the numeric JSON payloads emitted by
 *   the fraud detection service.
 * - A transfer is a small tree: one parent record plus, once approved, a
 *   withdrawal leg and a deposit leg whose ids are derived from the parent's.
 */

package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Transfer statuses. Once a record reaches a terminal status it never regresses,
// with the single exception of the completed -> declined compensating transition
// applied by the delayed fraud reconciliation.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusDeclined   = "declined"
	StatusFailed     = "failed"
)

// Roles a ledger record can play within a transfer.
const (
	RoleParent     = "parent"
	RoleWithdrawal = "withdrawal"
	RoleDeposit    = "deposit"
)

// Fraud check results recorded by the delayed reconciliation listener.
const (
	FraudResultUnset         = ""
	FraudResultVerified      = "verified_after_processing"
	FraudResultFraudDetected = "fraud_detected_after_processing"
)

// Balance update leg types.
const (
	TransactionTypeWithdrawal = "Withdrawal"
	TransactionTypeDeposit    = "Deposit"
)

// Suffixes appended to a parent transfer id to derive leg ids.
const (
	WithdrawalSuffix = "-withdrawal"
	DepositSuffix    = "-deposit"
)

// Transfer represents one ledger record for a money movement. It maps directly
// to the `transfers` table and acts as an append/update audit trail; records
// are never deleted.
type Transfer struct {
	ID               string          `json:"id"`
	TransferID       string          `json:"transferId"`
	Role             string          `json:"role"`
	UserID           string          `json:"userId"`
	FromAccount      string          `json:"fromAccount"`
	ToAccount        string          `json:"toAccount"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status"`
	TransactionType  string          `json:"transactionType"`
	Description      string          `json:"description"`
	FraudCheckResult string          `json:"fraudCheckResult,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// WithdrawalLegID derives the deterministic withdrawal-leg transfer id.
func WithdrawalLegID(parentTransferID string) string {
	return parentTransferID + WithdrawalSuffix
}

// DepositLegID derives the deterministic deposit-leg transfer id.
func DepositLegID(parentTransferID string) string {
	return parentTransferID + DepositSuffix
}

// ParentTransferID strips a leg suffix from a transfer id, if present. Verdicts
// and completion events may reference either the parent or one of its legs.
func ParentTransferID(transferID string) string {
	if s, ok := strings.CutSuffix(transferID, WithdrawalSuffix); ok {
		return s
	}
	if s, ok := strings.CutSuffix(transferID, DepositSuffix); ok {
		return s
	}
	return transferID
}

// InitiateTransferRequest is the DTO for incoming transfer API requests. The
// acting user id comes from the authenticated token, never from the body.
type InitiateTransferRequest struct {
	FromAccount     string          `json:"fromAccount"`
	ToAccount       string          `json:"toAccount"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency,omitempty"`
	TransactionType string          `json:"transactionType,omitempty"`
	Description     string          `json:"description,omitempty"`
}

// InitiateTransferResponse is returned to the caller once the saga resolves
// (verdict received or fail-open timeout elapsed).
type InitiateTransferResponse struct {
	TransferID    string `json:"transferId"`
	Status        string `json:"status"`
	StatusMessage string `json:"statusMessage"`
}
