/**
 * @description
 * This file implements the consumer for the delayed verdict channel: the
 * thorough fraud re-check that may finish long after the fast path resolved
 * the transfer, or long after the coordinator gave up waiting. Its job is to
 * reconcile the late verdict against whatever state the ledger is in now.
 *
 * Reconciliation rules:
 * - Unknown transfer id: acknowledge and drop.
 * - Terminal state already consistent with the verdict: no-op.
 * - Fraud verdict against a not-yet-declined record: decline parent and legs;
 *   if the record had completed, dispatch compensating balance adjustments.
 * - Clean verdict against a still-pending record: the fast path timed out and
 *   deferred to this listener, so settle the transfer now.
 * - Any unexpected error fails the message so it is redelivered; inconsistent
 *   state must never be dropped silently.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dlsbank/transfer-service/internal/domain"
	"github.com/dlsbank/transfer-service/internal/store"
)

// ReconcileConsumer consumes the delayed verdict channel.
type ReconcileConsumer struct {
	repo       store.Repository
	dispatcher *BalanceDispatcher
	dedupe     *Deduper
}

// NewReconcileConsumer creates the delayed reconciliation consumer. The
// deduper may be nil.
func NewReconcileConsumer(repo store.Repository, dispatcher *BalanceDispatcher, dedupe *Deduper) *ReconcileConsumer {
	return &ReconcileConsumer{repo: repo, dispatcher: dispatcher, dedupe: dedupe}
}

// HandleMessage processes one delayed verdict event.
func (c *ReconcileConsumer) HandleMessage(body []byte) bool {
	var event domain.DelayedVerdictEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=warn component=reconcile_consumer msg=\"dropping malformed event payload\" err=%v", err)
		return true
	}

	verdict := event.Verdict(time.Now().UTC())
	if verdict.TransferID == "" {
		log.Printf("level=warn component=reconcile_consumer msg=\"dropping event without transfer id\" event_type=%s", event.EventType)
		return true
	}

	// Verdicts may reference a leg; reconciliation always works on the parent.
	parentID := domain.ParentTransferID(verdict.TransferID)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	dedupeKey := fmt.Sprintf("fraud:reconcile:%s:%t", parentID, verdict.IsFraud)
	if c.dedupe.Seen(ctx, dedupeKey) {
		log.Printf("level=info component=reconcile_consumer msg=\"duplicate delayed verdict skipped\" transfer_id=%s", parentID)
		return true
	}

	if err := c.reconcile(ctx, parentID, verdict); err != nil {
		log.Printf("level=error component=reconcile_consumer msg=\"reconciliation failed; message will be redelivered\" transfer_id=%s err=%v", parentID, err)
		return false
	}

	c.dedupe.Mark(ctx, dedupeKey)
	return true
}

func (c *ReconcileConsumer) reconcile(ctx context.Context, parentID string, verdict domain.FraudVerdict) error {
	parent, err := c.repo.FindTransferByTransferID(ctx, parentID)
	if err != nil {
		if errors.Is(err, store.ErrTransferNotFound) {
			log.Printf("level=info component=reconcile_consumer msg=\"no transfer for delayed verdict; acknowledging\" transfer_id=%s", parentID)
			return nil
		}
		return fmt.Errorf("lookup transfer: %w", err)
	}

	if verdict.IsFraud {
		return c.reconcileFraud(ctx, parent)
	}
	return c.reconcileClean(ctx, parent)
}

// reconcileFraud declines the transfer unless it already is. A decline after
// completion is the sanctioned compensating transition and additionally
// reverses the balance updates that were dispatched optimistically.
func (c *ReconcileConsumer) reconcileFraud(ctx context.Context, parent *domain.Transfer) error {
	switch parent.Status {
	case domain.StatusDeclined:
		return nil
	case domain.StatusFailed:
		log.Printf("level=warn component=reconcile_consumer msg=\"fraud verdict for failed transfer; nothing to decline\" transfer_id=%s", parent.TransferID)
		return nil
	}

	wasCompleted := parent.Status == domain.StatusCompleted

	// Reversals go out before the decline is recorded. If the dispatch fails
	// the record is still completed on redelivery, so the reversal is retried;
	// the reversal keys keep downstream replays idempotent.
	if wasCompleted {
		if err := c.dispatcher.DispatchReversalAdjustments(ctx, parent); err != nil {
			return fmt.Errorf("dispatch reversal: %w", err)
		}
		log.Printf("level=info component=reconcile_consumer msg=\"compensating adjustments dispatched\" transfer_id=%s", parent.TransferID)
	}

	if err := c.repo.SetTransferOutcome(ctx, parent.TransferID, domain.StatusDeclined, domain.FraudResultFraudDetected); err != nil {
		if errors.Is(err, store.ErrInvalidStatusTransition) {
			log.Printf("level=warn component=reconcile_consumer msg=\"decline lost race to another terminal transition\" transfer_id=%s", parent.TransferID)
			return nil
		}
		return fmt.Errorf("decline parent: %w", err)
	}
	log.Printf("level=info component=reconcile_consumer msg=\"transfer declined by delayed verdict\" transfer_id=%s was_completed=%t", parent.TransferID, wasCompleted)

	for _, legID := range []string{domain.WithdrawalLegID(parent.TransferID), domain.DepositLegID(parent.TransferID)} {
		err := c.repo.UpdateTransferStatus(ctx, legID, domain.StatusDeclined)
		switch {
		case err == nil:
		case errors.Is(err, store.ErrTransferNotFound):
			// Legs exist only if the transfer was approved.
		case errors.Is(err, store.ErrInvalidStatusTransition):
			log.Printf("level=warn component=reconcile_consumer msg=\"leg already terminal; decline skipped\" transfer_id=%s", legID)
		default:
			return fmt.Errorf("decline leg %s: %w", legID, err)
		}
	}

	return nil
}

// reconcileClean settles a transfer that the fast path never resolved, and
// no-ops when the ledger already agrees with the verdict.
func (c *ReconcileConsumer) reconcileClean(ctx context.Context, parent *domain.Transfer) error {
	switch parent.Status {
	case domain.StatusCompleted:
		return nil
	case domain.StatusDeclined, domain.StatusFailed:
		log.Printf("level=warn component=reconcile_consumer msg=\"clean verdict contradicts terminal state; keeping ledger\" transfer_id=%s status=%s", parent.TransferID, parent.Status)
		return nil
	}

	log.Printf("level=info component=reconcile_consumer msg=\"settling transfer deferred to delayed verdict\" transfer_id=%s", parent.TransferID)
	return settleTransfer(ctx, c.repo, c.dispatcher, parent, domain.FraudResultVerified)
}
