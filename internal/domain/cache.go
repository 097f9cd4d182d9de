package domain

import (
	"context"
	"time"
)

// MarketCache provides fast market record lookups.
type MarketCache interface {
	Set(ctx context.Context, market MarketRecord) error
	Get(ctx context.Context, id string) (MarketRecord, error)
	Invalidate(ctx context.Context, id string) error
}

// LockManager provides per-key mutual exclusion, in-process or distributed.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter provides sliding-window request limiting per key.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// EventPublisher fans committed events out to subscribers.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev Event) error
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus is the consumer side of event fan-out: live subscription plus
// replay from the durable stream.
type SignalBus interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// MarketChannel is the pub/sub channel carrying one market's events.
func MarketChannel(marketID string) string {
	return "ch:market:" + marketID
}

// MarketChannelPattern matches every MarketChannel.
const MarketChannelPattern = "ch:market:*"

// EventStream is the durable stream every committed event is appended to.
const EventStream = "stream:market_events"
