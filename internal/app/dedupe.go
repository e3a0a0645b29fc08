/**
 * @description
 * Webhook event deduplication. Processors deliver webhooks at-least-once;
 * the deduper records seen event IDs so replays are acknowledged without
 * being re-applied. Redis backs the dedupe set in production; when Redis is
 * unavailable an in-memory fallback keeps ingress working on a single node.
 * The reconciler's compare-and-swap transitions remain the correctness
 * backstop either way.
 */

package app

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupeTTL = 48 * time.Hour

// EventDeduper reports whether an event ID has been seen before, recording it
// as seen in the same call. Forget releases an ID claimed by Seen so a
// redelivery is processed again; callers use it when applying the event
// failed after the claim.
type EventDeduper interface {
	Seen(ctx context.Context, eventID string) bool
	Forget(ctx context.Context, eventID string)
}

// RedisEventDeduper backs the dedupe set with Redis SETNX, falling back to an
// in-memory set when Redis errors.
type RedisEventDeduper struct {
	client   redis.UniversalClient
	prefix   string
	fallback *memoryDeduper
}

func NewRedisEventDeduper(client redis.UniversalClient, prefix string) *RedisEventDeduper {
	if prefix == "" {
		prefix = "marketvend:webhook_events"
	}
	return &RedisEventDeduper{
		client:   client,
		prefix:   prefix,
		fallback: newMemoryDeduper(),
	}
}

func (d *RedisEventDeduper) Seen(ctx context.Context, eventID string) bool {
	if eventID == "" {
		return false
	}
	if d.client == nil {
		return d.fallback.seen(eventID)
	}

	key := d.prefix + ":" + eventID
	set, err := d.client.SetNX(ctx, key, 1, dedupeTTL).Result()
	if err != nil {
		log.Printf("level=warn component=event_deduper msg=\"redis setnx failed; using in-memory fallback\" err=%v", err)
		return d.fallback.seen(eventID)
	}
	return !set
}

func (d *RedisEventDeduper) Forget(ctx context.Context, eventID string) {
	if eventID == "" {
		return
	}
	if d.client != nil {
		if err := d.client.Del(ctx, d.prefix+":"+eventID).Err(); err != nil {
			log.Printf("level=warn component=event_deduper msg=\"redis del failed\" event_id=%s err=%v", eventID, err)
		}
	}
	d.fallback.forget(eventID)
}

// memoryDeduper is a bounded in-process seen-set. Entries expire lazily.
type memoryDeduper struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func newMemoryDeduper() *memoryDeduper {
	return &memoryDeduper{entries: make(map[string]time.Time)}
}

func (d *memoryDeduper) seen(eventID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if expiry, ok := d.entries[eventID]; ok && now.Before(expiry) {
		return true
	}
	// Opportunistic sweep when the set grows large.
	if len(d.entries) > 10000 {
		for id, expiry := range d.entries {
			if now.After(expiry) {
				delete(d.entries, id)
			}
		}
	}
	d.entries[eventID] = now.Add(dedupeTTL)
	return false
}

func (d *memoryDeduper) forget(eventID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entries, eventID)
}
