/**
 * @description
 * This file implements a Redis-backed first-seen check used by the verdict
 * consumers to skip duplicate deliveries cheaply. Keys expire after seven
 * days, matching the fraud detection service's own idempotency window.
 *
 * The deduper is an optimization, not a correctness mechanism: the verdict
 * registry and the ledger state machine already make duplicate verdicts
 * no-ops, so a nil deduper or an unreachable Redis simply lets everything
 * through.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupeTTL = 7 * 24 * time.Hour

// Deduper tracks which messages have already been processed.
type Deduper struct {
	client *redis.Client
	prefix string
}

// NewDeduper creates a deduper over the given Redis client.
func NewDeduper(client *redis.Client, prefix string) *Deduper {
	return &Deduper{client: client, prefix: prefix}
}

// FirstSeen marks the key and reports whether this is its first occurrence.
// On any Redis failure it fails open and reports true.
func (d *Deduper) FirstSeen(ctx context.Context, key string) bool {
	if d == nil || d.client == nil {
		return true
	}
	ok, err := d.client.SetNX(ctx, d.prefix+":"+key, "1", dedupeTTL).Result()
	if err != nil {
		log.Printf("level=warn component=dedupe msg=\"redis setnx failed; treating message as first seen\" key=%s err=%v", key, err)
		return true
	}
	return ok
}

// Seen reports whether the key was already marked, without marking it. Used
// by consumers that must only mark after successful processing, so a failed
// attempt stays eligible for redelivery.
func (d *Deduper) Seen(ctx context.Context, key string) bool {
	if d == nil || d.client == nil {
		return false
	}
	n, err := d.client.Exists(ctx, d.prefix+":"+key).Result()
	if err != nil {
		log.Printf("level=warn component=dedupe msg=\"redis exists failed; treating message as unseen\" key=%s err=%v", key, err)
		return false
	}
	return n > 0
}

// Mark records the key as processed.
func (d *Deduper) Mark(ctx context.Context, key string) {
	if d == nil || d.client == nil {
		return
	}
	if err := d.client.Set(ctx, d.prefix+":"+key, "1", dedupeTTL).Err(); err != nil {
		log.Printf("level=warn component=dedupe msg=\"redis set failed\" key=%s err=%v", key, err)
	}
}
