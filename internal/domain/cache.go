package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceCache provides fast access to the latest prices.
type PriceCache interface {
	SetPrice(ctx context.Context, instrument string, price decimal.Decimal, ts time.Time) error
	GetPrice(ctx context.Context, instrument string) (decimal.Decimal, time.Time, error)
	GetPrices(ctx context.Context, instruments []string) (map[string]decimal.Decimal, error)
}

// ThrottleStore persists the last BUY signal time per instrument so cooldowns
// survive restarts.
type ThrottleStore interface {
	SaveSignal(ctx context.Context, instrument string, at time.Time) error
	LoadSignals(ctx context.Context) (map[string]time.Time, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// Lock is a held lock that is renewed until released.
type Lock interface {
	// Lost is closed when the lock could not be renewed and another holder
	// may own it.
	Lost() <-chan struct{}
	// Err reports why the lock was lost. It is nil while the lock is held.
	Err() error
	// Release stops renewal and frees the lock. It is safe to call more
	// than once.
	Release()
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// EventPublisher fans an event out to subscribers on a named channel.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	EventPublisher
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
