/**
 * @description
 * This file implements the balance update dispatcher. An approved transfer
 * moves money in two legs, withdrawal and deposit, each propagated as one
 * message keyed by its deterministic leg transfer id so the account system can
 * consume it idempotently.
 */

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/dlsbank/transfer-service/internal/domain"
	"github.com/dlsbank/transfer-service/pkg/rabbitmq"
)

// Routing keys on the service's topic exchange.
const (
	RoutingKeyFraudCheckRequested    = "fraud.check.requested"
	RoutingKeyFraudResult            = "fraud.result"
	RoutingKeyFraudEventCompleted    = "fraud.events.completed"
	RoutingKeyBalanceUpdateRequested = "balance.update.requested"
	RoutingKeyBalanceUpdateCompleted = "balance.update.completed"
)

// BalanceDispatcher publishes balance update messages for transfer legs.
type BalanceDispatcher struct {
	producer rabbitmq.Publisher
	exchange string
}

// NewBalanceDispatcher creates a dispatcher publishing to the given exchange.
func NewBalanceDispatcher(producer rabbitmq.Publisher, exchange string) *BalanceDispatcher {
	return &BalanceDispatcher{producer: producer, exchange: exchange}
}

// DispatchTransferLegs publishes exactly one withdrawal and one deposit
// message for an approved transfer. A publish failure aborts immediately: a
// funds-movement intent must never vanish silently, so the caller escalates
// the transfer as failed rather than dropping a leg.
func (d *BalanceDispatcher) DispatchTransferLegs(ctx context.Context, parent *domain.Transfer) error {
	now := time.Now().UTC()
	messages := []domain.BalanceUpdateMessage{
		{
			AccountID:       parent.FromAccount,
			Amount:          parent.Amount,
			TransactionID:   domain.WithdrawalLegID(parent.TransferID),
			TransactionType: domain.TransactionTypeWithdrawal,
			Timestamp:       now,
		},
		{
			AccountID:       parent.ToAccount,
			Amount:          parent.Amount,
			TransactionID:   domain.DepositLegID(parent.TransferID),
			TransactionType: domain.TransactionTypeDeposit,
			Timestamp:       now,
		},
	}

	for _, msg := range messages {
		if err := d.producer.Publish(ctx, d.exchange, RoutingKeyBalanceUpdateRequested, msg); err != nil {
			return fmt.Errorf("dispatch %s leg for transfer %s: %w", msg.TransactionType, parent.TransferID, err)
		}
	}
	return nil
}

// DispatchReversalAdjustments publishes compensating adjustments undoing both
// legs of a completed transfer that the delayed fraud re-check overturned.
// Each adjustment reuses the leg's transaction id with a reversal suffix so
// replays stay idempotent downstream.
func (d *BalanceDispatcher) DispatchReversalAdjustments(ctx context.Context, parent *domain.Transfer) error {
	now := time.Now().UTC()
	messages := []domain.BalanceUpdateMessage{
		{
			AccountID:       parent.FromAccount,
			Amount:          parent.Amount,
			TransactionID:   domain.WithdrawalLegID(parent.TransferID) + "-reversal",
			TransactionType: domain.TransactionTypeDeposit,
			IsAdjustment:    true,
			Timestamp:       now,
		},
		{
			AccountID:       parent.ToAccount,
			Amount:          parent.Amount,
			TransactionID:   domain.DepositLegID(parent.TransferID) + "-reversal",
			TransactionType: domain.TransactionTypeWithdrawal,
			IsAdjustment:    true,
			Timestamp:       now,
		},
	}

	for _, msg := range messages {
		if err := d.producer.Publish(ctx, d.exchange, RoutingKeyBalanceUpdateRequested, msg); err != nil {
			return fmt.Errorf("dispatch %s reversal for transfer %s: %w", msg.TransactionType, parent.TransferID, err)
		}
	}
	return nil
}
