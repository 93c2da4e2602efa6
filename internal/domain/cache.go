package domain

import (
	"context"
	"time"
)

// RoundCache provides fast access to round state for read paths, so status
// queries do not contend on the engine mutex.
type RoundCache interface {
	SetRound(ctx context.Context, marketID string, b Batch) error
	GetRound(ctx context.Context, marketID string, roundID uint64) (Batch, error)
	SetCurrent(ctx context.Context, marketID string, roundID uint64) error
	GetCurrent(ctx context.Context, marketID string) (uint64, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub fan-out and durable streams for round events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
