package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DedupTTL is how long processed event ids are remembered. The queue
// redelivers within minutes, so a day of memory is comfortably past any
// redelivery horizon.
const DedupTTL = 24 * time.Hour

const dedupMarker = "seen"

// Deduper suppresses reprocessing of platform events. The event queue is
// at-least-once; a SET NX reservation per event id makes handling
// effectively once per retention window.
type Deduper struct {
	client *Client
	logger *zap.Logger
}

// NewDeduper creates an event deduplication service.
func NewDeduper(client *Client, logger *zap.Logger) *Deduper {
	return &Deduper{
		client: client,
		logger: logger,
	}
}

func (d *Deduper) buildKey(eventID string) string {
	return fmt.Sprintf("event:%s", eventID)
}

// Reserve atomically claims an event id. Returns true if this consumer is
// the first to see it, false if it was already processed.
func (d *Deduper) Reserve(ctx context.Context, eventID string) (bool, error) {
	key := d.buildKey(eventID)

	set, err := d.client.rdb.SetNX(ctx, key, dedupMarker, DedupTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}

	if !set {
		d.logger.Debug("duplicate event suppressed", zap.String("event_id", eventID))
	}

	return set, nil
}

// Release forgets a reservation so a failed handling attempt can be
// retried on redelivery.
func (d *Deduper) Release(ctx context.Context, eventID string) error {
	if err := d.client.rdb.Del(ctx, d.buildKey(eventID)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
