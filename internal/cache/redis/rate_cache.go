package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vignex/escrow-engine/internal/domain"
)

// RateCache implements domain.RateSource using Redis hashes. Each pair's
// reference rate lives at "rate:{asset}:{fiat}" with fields "rate" (fiat
// micro-units per asset unit) and "ts" (Unix nanosecond timestamp).
type RateCache struct {
	rdb *redis.Client
}

// NewRateCache creates a RateCache backed by the given Client.
func NewRateCache(c *Client) *RateCache {
	return &RateCache{rdb: c.Underlying()}
}

func rateKey(asset, fiat string) string {
	return "rate:" + asset + ":" + fiat
}

// SetRate stores the latest reference rate and timestamp for a pair.
func (rc *RateCache) SetRate(ctx context.Context, asset, fiat string, rate int64, ts time.Time) error {
	key := rateKey(asset, fiat)
	fields := map[string]interface{}{
		"rate": strconv.FormatInt(rate, 10),
		"ts":   strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := rc.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("redis: set rate %s/%s: %w", asset, fiat, err)
	}
	return nil
}

// GetRate retrieves the latest reference rate and timestamp for a pair.
// It returns domain.ErrNotFound when no rate has been published.
func (rc *RateCache) GetRate(ctx context.Context, asset, fiat string) (int64, time.Time, error) {
	key := rateKey(asset, fiat)
	vals, err := rc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get rate %s/%s: %w", asset, fiat, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	rateStr, ok := vals["rate"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	rate, err := strconv.ParseInt(rateStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse rate %s/%s: %w", asset, fiat, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse rate ts %s/%s: %w", asset, fiat, err)
	}

	return rate, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ domain.RateSource = (*RateCache)(nil)
