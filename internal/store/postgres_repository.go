/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. Status updates are compare-and-set: the UPDATE only matches rows
 * whose current status is a legal source for the requested transition, which
 * serializes concurrent mutations per transfer id without any in-process lock.
 *
 * @dependencies
 * - context, time, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dlsbank/transfer-service/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const transferColumns = `id, transfer_id, role, user_id, from_account, to_account, amount, currency, status, transaction_type, description, COALESCE(fraud_check_result, ''), created_at, updated_at`

// CreateTransfer inserts a new ledger record.
func (r *PostgresRepository) CreateTransfer(ctx context.Context, transfer *domain.Transfer) error {
	query := `
		INSERT INTO transfers (id, transfer_id, role, user_id, from_account, to_account, amount, currency, status, transaction_type, description, fraud_check_result, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''), NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query,
		transfer.ID,
		transfer.TransferID,
		transfer.Role,
		transfer.UserID,
		transfer.FromAccount,
		transfer.ToAccount,
		transfer.Amount,
		transfer.Currency,
		transfer.Status,
		transfer.TransactionType,
		transfer.Description,
		transfer.FraudCheckResult,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateTransfer
		}
		return err
	}
	return nil
}

// FindTransferByTransferID loads one record by its logical transfer id.
func (r *PostgresRepository) FindTransferByTransferID(ctx context.Context, transferID string) (*domain.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE transfer_id = $1`
	row := r.db.QueryRow(ctx, query, transferID)
	return scanTransfer(row)
}

// UpdateTransferStatus applies a status transition under the state machine rules.
func (r *PostgresRepository) UpdateTransferStatus(ctx context.Context, transferID, status string) error {
	query := `
		UPDATE transfers
		SET status = $2, updated_at = NOW()
		WHERE transfer_id = $1 AND status = ANY($3)
	`
	tag, err := r.db.Exec(ctx, query, transferID, status, transitionSources(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.classifyMissedUpdate(ctx, transferID, status)
	}
	return nil
}

// SetTransferOutcome applies a status transition and records the fraud check
// result in one atomic update.
func (r *PostgresRepository) SetTransferOutcome(ctx context.Context, transferID, status, fraudCheckResult string) error {
	query := `
		UPDATE transfers
		SET status = $2, fraud_check_result = NULLIF($3, ''), updated_at = NOW()
		WHERE transfer_id = $1 AND status = ANY($4)
	`
	tag, err := r.db.Exec(ctx, query, transferID, status, fraudCheckResult, transitionSources(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.classifyMissedUpdate(ctx, transferID, status)
	}
	return nil
}

// ListStalePendingParents returns parent records still pending past the cutoff.
func (r *PostgresRepository) ListStalePendingParents(ctx context.Context, olderThan time.Time, limit int) ([]domain.Transfer, error) {
	query := `
		SELECT ` + transferColumns + `
		FROM transfers
		WHERE role = $1 AND status = $2 AND created_at < $3
		ORDER BY created_at ASC
		LIMIT $4
	`
	rows, err := r.db.Query(ctx, query, domain.RoleParent, domain.StatusPending, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []domain.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, *t)
	}
	return transfers, rows.Err()
}

// classifyMissedUpdate distinguishes the three reasons a compare-and-set
// update can match zero rows: missing record, idempotent repeat, or an illegal
// transition out of a terminal state.
func (r *PostgresRepository) classifyMissedUpdate(ctx context.Context, transferID, wanted string) error {
	var current string
	err := r.db.QueryRow(ctx, `SELECT status FROM transfers WHERE transfer_id = $1`, transferID).Scan(&current)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrTransferNotFound
		}
		return err
	}
	if current == wanted {
		return nil
	}
	return ErrInvalidStatusTransition
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransfer(row rowScanner) (*domain.Transfer, error) {
	var t domain.Transfer
	err := row.Scan(
		&t.ID,
		&t.TransferID,
		&t.Role,
		&t.UserID,
		&t.FromAccount,
		&t.ToAccount,
		&t.Amount,
		&t.Currency,
		&t.Status,
		&t.TransactionType,
		&t.Description,
		&t.FraudCheckResult,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransferNotFound
		}
		return nil, err
	}
	return &t, nil
}
