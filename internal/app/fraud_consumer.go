/**
 * @description
 * This file implements the consumer for the fast fraud verdict channel. Each
 * verdict is parsed defensively and handed to the verdict registry, which
 * either resolves the waiting saga or stashes the verdict for a later claim.
 *
 * Malformed payloads are logged and acknowledged; a bad message must never
 * crash the loop or spin in redelivery. Transport reconnection is handled by
 * the rabbitmq consumer underneath.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/dlsbank/transfer-service/internal/domain"
)

// FraudResultConsumer consumes the fast/primary verdict channel.
type FraudResultConsumer struct {
	registry *VerdictRegistry
	dedupe   *Deduper
}

// NewFraudResultConsumer creates a consumer completing the given registry.
// The deduper may be nil; the registry and ledger state machine already make
// duplicate verdicts harmless.
func NewFraudResultConsumer(registry *VerdictRegistry, dedupe *Deduper) *FraudResultConsumer {
	return &FraudResultConsumer{registry: registry, dedupe: dedupe}
}

// HandleMessage processes one fast-channel verdict. It always acknowledges:
// there is no redelivery that could make an unparseable payload parseable,
// and a verdict without a waiter is stashed rather than lost.
func (c *FraudResultConsumer) HandleMessage(body []byte) bool {
	verdict, err := domain.ParseFraudVerdict(body, time.Now().UTC())
	if err != nil {
		log.Printf("level=warn component=fraud_consumer msg=\"dropping malformed verdict payload\" err=%v", err)
		return true
	}
	if verdict.TransferID == "" {
		log.Printf("level=warn component=fraud_consumer msg=\"dropping verdict without transfer id\"")
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if !c.dedupe.FirstSeen(ctx, "fraud:result:"+verdict.TransferID) {
		log.Printf("level=info component=fraud_consumer msg=\"duplicate verdict skipped\" transfer_id=%s", verdict.TransferID)
		return true
	}

	if c.registry.TryComplete(verdict.TransferID, verdict) {
		log.Printf("level=info component=fraud_consumer msg=\"verdict delivered to waiter\" transfer_id=%s status=%s is_fraud=%t", verdict.TransferID, verdict.Status, verdict.IsFraud)
	} else {
		log.Printf("level=info component=fraud_consumer msg=\"no waiter for verdict; stashed\" transfer_id=%s status=%s", verdict.TransferID, verdict.Status)
	}
	return true
}
