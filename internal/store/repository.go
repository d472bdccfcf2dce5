/**
 * @description
 * This file defines the `Repository` interface, the contract for all ledger
 * data access required by the transfer-service. The interface decouples the
 * saga logic and the message consumers from the PostgreSQL implementation and
 * makes both straightforward to test with hand-written stubs.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - internal/domain: The service's domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/dlsbank/transfer-service/internal/domain"
)

var (
	ErrTransferNotFound        = errors.New("transfer not found")
	ErrDuplicateTransfer       = errors.New("transfer already exists")
	ErrInvalidStatusTransition = errors.New("invalid transfer status transition")
)

// Repository defines the set of methods for interacting with the ledger.
type Repository interface {
	// CreateTransfer inserts a new ledger record. The transfer id must be
	// unique; a replayed insert returns ErrDuplicateTransfer.
	CreateTransfer(ctx context.Context, transfer *domain.Transfer) error

	// FindTransferByTransferID loads one record by its logical transfer id.
	FindTransferByTransferID(ctx context.Context, transferID string) (*domain.Transfer, error)

	// UpdateTransferStatus applies a status transition under the state machine
	// rules. Re-applying the current status is an idempotent no-op; any other
	// transition out of a terminal state returns ErrInvalidStatusTransition.
	UpdateTransferStatus(ctx context.Context, transferID, status string) error

	// SetTransferOutcome applies a status transition and records the fraud
	// check result in one atomic update.
	SetTransferOutcome(ctx context.Context, transferID, status, fraudCheckResult string) error

	// ListStalePendingParents returns parent records still pending past the
	// cutoff, oldest first, for the sweeper to re-drive.
	ListStalePendingParents(ctx context.Context, olderThan time.Time, limit int) ([]domain.Transfer, error)
}
