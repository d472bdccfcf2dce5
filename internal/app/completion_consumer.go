/**
 * @description
 * This file implements the consumer for balance update confirmations. The
 * account system confirms each applied balance update keyed by the leg
 * transaction id the dispatcher published; this listener converges the
 * matching leg and its parent to completed when the saga's optimistic updates
 * did not already get there (e.g. after a crash mid-settlement).
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

// BalanceCompletionConsumer consumes balance update confirmations.
type BalanceCompletionConsumer struct {
	repo store.Repository
}

// NewBalanceCompletionConsumer creates the completion consumer.
func NewBalanceCompletionConsumer(repo store.Repository) *BalanceCompletionConsumer {
	return &BalanceCompletionConsumer{repo: repo}
}

// HandleMessage processes one confirmation event. Failures are requeued with
// backoff by the transport; drops are reserved for events that can never be
// applied.
func (c *BalanceCompletionConsumer) HandleMessage(body []byte) bool {
	var event domain.BalanceCompletionEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=warn component=completion_consumer msg=\"dropping malformed completion payload\" err=%v", err)
		return true
	}
	if event.TransactionID == "" {
		log.Printf("level=warn component=completion_consumer msg=\"dropping completion without transaction id\"")
		return true
	}

	parentID := domain.ParentTransferID(event.TransactionID)
	if parentID == event.TransactionID {
		// Not a leg id (e.g. a reversal adjustment confirmation); nothing to converge.
		log.Printf("level=info component=completion_consumer msg=\"completion for non-leg transaction; acknowledging\" transaction_id=%s", event.TransactionID)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := c.processEvent(ctx, parentID, event); err != nil {
		log.Printf("level=error component=completion_consumer msg=\"processing error; message will be redelivered\" transaction_id=%s err=%v", event.TransactionID, err)
		return false
	}
	return true
}

func (c *BalanceCompletionConsumer) processEvent(ctx context.Context, parentID string, event domain.BalanceCompletionEvent) error {
	parent, err := c.repo.FindTransferByTransferID(ctx, parentID)
	if err != nil {
		if errors.Is(err, store.ErrTransferNotFound) {
			log.Printf("level=info component=completion_consumer msg=\"no transfer for completion; acknowledging\" transfer_id=%s", parentID)
			return nil
		}
		return fmt.Errorf("lookup transfer: %w", err)
	}

	if store.IsTerminal(parent.Status) {
		// Completed, declined or failed: the confirmation is stale or the
		// optimistic path already finished. Never regress a finished record.
		return nil
	}

	if err := c.repo.UpdateTransferStatus(ctx, event.TransactionID, domain.StatusCompleted); err != nil {
		switch {
		case errors.Is(err, store.ErrTransferNotFound):
			log.Printf("level=warn component=completion_consumer msg=\"confirmed leg missing from ledger\" transaction_id=%s", event.TransactionID)
		case errors.Is(err, store.ErrInvalidStatusTransition):
			log.Printf("level=warn component=completion_consumer msg=\"leg already terminal; completion skipped\" transaction_id=%s", event.TransactionID)
		default:
			return fmt.Errorf("complete leg: %w", err)
		}
	}

	if err := c.repo.UpdateTransferStatus(ctx, parentID, domain.StatusCompleted); err != nil {
		if errors.Is(err, store.ErrInvalidStatusTransition) {
			log.Printf("level=warn component=completion_consumer msg=\"parent reached terminal state concurrently\" transfer_id=%s", parentID)
			return nil
		}
		return fmt.Errorf("complete parent: %w", err)
	}
	log.Printf("level=info component=completion_consumer msg=\"transfer converged to completed\" transfer_id=%s leg=%s", parentID, event.TransactionID)
	return nil
}
