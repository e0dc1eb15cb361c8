package domain

import (
	"context"
	"time"
)

// RateSource supplies the reference market rate used to price floating-mode
// ads at trade creation. Implementations return ErrNotFound when no rate has
// been published for the pair; callers fall back to a configured rate.
type RateSource interface {
	SetRate(ctx context.Context, asset, fiat string, rate int64, ts time.Time) error
	GetRate(ctx context.Context, asset, fiat string) (int64, time.Time, error)
}
