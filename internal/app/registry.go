/**
 * @description
 * This file implements the verdict registry: the single piece of state shared
 * between the saga coordinator and the fraud result consumer. It joins an
 * asynchronous fraud verdict to the in-flight request that triggered it.
 *
 * Key properties:
 * - Register/TryComplete/stash-claim are atomic under one mutex, so a verdict
 *   that arrives before the coordinator registers its waiter is never lost:
 *   Register checks the stash first and completes immediately.
 * - Waiter channels are single-assignment; the first verdict wins and the
 *   waiter is removed on delivery.
 * - Verdicts with no live waiter are stashed in a bounded, expiring cache
 *   until claimed or superseded.
 */

package app

import (
	"errors"
	"sync"
	"time"

	"github.com/dlsbank/transfer-service/internal/domain"
)

// ErrWaiterExists is returned when a transfer id is registered twice.
var ErrWaiterExists = errors.New("verdict waiter already registered")

type stashedVerdict struct {
	verdict   domain.FraudVerdict
	expiresAt time.Time
}

// VerdictRegistry correlates fraud verdicts with waiting transfer requests.
type VerdictRegistry struct {
	mu       sync.Mutex
	waiters  map[string]chan domain.FraudVerdict
	stash    map[string]stashedVerdict
	stashTTL time.Duration
	maxStash int
}

// NewVerdictRegistry creates a registry whose unclaimed-verdict stash holds at
// most maxStash entries, each expiring after stashTTL.
func NewVerdictRegistry(stashTTL time.Duration, maxStash int) *VerdictRegistry {
	return &VerdictRegistry{
		waiters:  make(map[string]chan domain.FraudVerdict),
		stash:    make(map[string]stashedVerdict),
		stashTTL: stashTTL,
		maxStash: maxStash,
	}
}

// Register creates a waiter for the given transfer id and returns the channel
// the verdict will be delivered on. If a verdict already arrived and sits in
// the stash, it is delivered immediately; the register/verdict race cannot
// drop a verdict. Registering an id that already has a live waiter is an
// error.
func (r *VerdictRegistry) Register(transferID string) (<-chan domain.FraudVerdict, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.waiters[transferID]; exists {
		return nil, ErrWaiterExists
	}

	ch := make(chan domain.FraudVerdict, 1)

	if stashed, ok := r.stash[transferID]; ok {
		delete(r.stash, transferID)
		if time.Now().Before(stashed.expiresAt) {
			ch <- stashed.verdict
			return ch, nil
		}
	}

	r.waiters[transferID] = ch
	return ch, nil
}

// TryComplete resolves a live waiter with the verdict. It returns true when a
// waiter was resolved and false when none existed, in which case the verdict
// is stashed for a later claim.
func (r *VerdictRegistry) TryComplete(transferID string, verdict domain.FraudVerdict) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch, ok := r.waiters[transferID]; ok {
		delete(r.waiters, transferID)
		ch <- verdict
		return true
	}

	r.stashLocked(transferID, verdict)
	return false
}

// Release removes a waiter without resolving it. The coordinator calls this
// when its verdict wait times out or is cancelled; a verdict arriving later
// goes to the stash instead.
func (r *VerdictRegistry) Release(transferID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.waiters, transferID)
}

// ClaimStashed removes and returns a stashed, unexpired verdict for the
// transfer id, if one exists.
func (r *VerdictRegistry) ClaimStashed(transferID string) (domain.FraudVerdict, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stashed, ok := r.stash[transferID]
	if !ok {
		return domain.FraudVerdict{}, false
	}
	delete(r.stash, transferID)
	if !time.Now().Before(stashed.expiresAt) {
		return domain.FraudVerdict{}, false
	}
	return stashed.verdict, true
}

// PruneStash drops expired stash entries and returns how many were removed.
func (r *VerdictRegistry) PruneStash(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, stashed := range r.stash {
		if !now.Before(stashed.expiresAt) {
			delete(r.stash, id)
			removed++
		}
	}
	return removed
}

// stashLocked inserts a verdict into the stash, evicting the entry closest to
// expiry when the cache is full. A duplicate verdict for the same transfer id
// supersedes the earlier one.
func (r *VerdictRegistry) stashLocked(transferID string, verdict domain.FraudVerdict) {
	if _, exists := r.stash[transferID]; !exists && len(r.stash) >= r.maxStash {
		oldestID := ""
		var oldestExpiry time.Time
		for id, entry := range r.stash {
			if oldestID == "" || entry.expiresAt.Before(oldestExpiry) {
				oldestID = id
				oldestExpiry = entry.expiresAt
			}
		}
		delete(r.stash, oldestID)
	}
	r.stash[transferID] = stashedVerdict{
		verdict:   verdict,
		expiresAt: time.Now().Add(r.stashTTL),
	}
}
