package domain

import (
	"context"
	"time"
)

// SignalBus fans lifecycle events out to push consumers (websocket hub,
// chat bridge, notifier workers).
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// LockManager serializes writers per trade id and per ad id. Acquire returns
// an unlock function that is safe to call more than once, or ErrLockHeld
// when another writer owns the key.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter throttles trade creation per taker.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
