/**
 * @description
 * This file implements the periodic sweeper. Two housekeeping concerns run on
 * a cron schedule:
 * - Pruning expired entries from the verdict stash so unclaimed verdicts do
 *   not accumulate without bound.
 * - Re-driving parent records stuck in pending past the verdict window, which
 *   happens when the process dies between the ledger write and the verdict
 *   resolution. A stashed verdict is honored if one exists; otherwise the
 *   record resolves per the same fail-open policy as the live timeout path.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/dlsbank/transfer-service/internal/domain"
	"github.com/dlsbank/transfer-service/internal/store"
)

// Sweeper re-drives stale pending transfers and prunes the verdict stash.
type Sweeper struct {
	repo       store.Repository
	dispatcher *BalanceDispatcher
	registry   *VerdictRegistry
	staleAfter time.Duration
	batchSize  int
}

// NewSweeper creates a sweeper that considers a parent record stale once it
// has been pending longer than staleAfter.
func NewSweeper(repo store.Repository, dispatcher *BalanceDispatcher, registry *VerdictRegistry, staleAfter time.Duration, batchSize int) *Sweeper {
	return &Sweeper{
		repo:       repo,
		dispatcher: dispatcher,
		registry:   registry,
		staleAfter: staleAfter,
		batchSize:  batchSize,
	}
}

// Run executes one sweep.
func (s *Sweeper) Run(ctx context.Context) {
	if pruned := s.registry.PruneStash(time.Now()); pruned > 0 {
		log.Printf("level=info component=sweeper msg=\"pruned expired stash entries\" count=%d", pruned)
	}

	cutoff := time.Now().UTC().Add(-s.staleAfter)
	stale, err := s.repo.ListStalePendingParents(ctx, cutoff, s.batchSize)
	if err != nil {
		log.Printf("level=error component=sweeper msg=\"failed to list stale pending transfers\" err=%v", err)
		return
	}

	for i := range stale {
		parent := stale[i]
		if verdict, ok := s.registry.ClaimStashed(parent.TransferID); ok && !verdict.Approved() {
			if err := s.repo.UpdateTransferStatus(ctx, parent.TransferID, domain.StatusDeclined); err != nil {
				log.Printf("level=error component=sweeper msg=\"failed to decline stale transfer\" transfer_id=%s err=%v", parent.TransferID, err)
			} else {
				log.Printf("level=info component=sweeper msg=\"stale transfer declined by stashed verdict\" transfer_id=%s", parent.TransferID)
			}
			continue
		}

		if err := settleTransfer(ctx, s.repo, s.dispatcher, &parent, domain.FraudResultUnset); err != nil {
			log.Printf("level=error component=sweeper msg=\"failed to re-drive stale transfer\" transfer_id=%s err=%v", parent.TransferID, err)
			continue
		}
		log.Printf("level=info component=sweeper msg=\"stale transfer resolved fail-open\" transfer_id=%s", parent.TransferID)
	}
}
