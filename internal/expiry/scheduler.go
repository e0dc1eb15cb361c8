// Package expiry cancels trades whose deadline passed without action. The
// scheduler is scan based: each tick re-derives pending work from persisted
// deadlines, so it survives restarts with no in-memory timer state.
package expiry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vignex/escrow-engine/internal/clock"
	"github.com/vignex/escrow-engine/internal/domain"
)

// Expirer fires the expire transition on one trade.
type Expirer interface {
	Expire(ctx context.Context, tradeID string) (domain.Trade, error)
}

// Scheduler polls for expired trades and resolves them. The conditional
// transition inside Expire guarantees exactly-once cancellation even when a
// user action races a tick, so running overlapping replicas is safe.
type Scheduler struct {
	trades   domain.TradeStore
	expirer  Expirer
	clock    clock.Clock
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(
	trades domain.TradeStore,
	expirer Expirer,
	clk clock.Clock,
	interval time.Duration,
	batch int,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		trades:   trades,
		expirer:  expirer,
		clock:    clk,
		interval: interval,
		batch:    batch,
		logger:   logger,
	}
}

// Run ticks until the context is cancelled. Errors in one tick are logged
// and never stop the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("expiry scheduler started",
		slog.Duration("interval", s.interval),
		slog.Int("batch", s.batch),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiry scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if n := s.Tick(ctx); n > 0 {
				s.logger.Info("expired trades", slog.Int("count", n))
			}
		}
	}
}

// Tick runs a single scan and returns how many trades it cancelled. A trade
// another actor resolved between scan and expire counts as handled, not as
// an error.
func (s *Scheduler) Tick(ctx context.Context) int {
	expired, err := s.trades.ListExpired(ctx, s.clock.Now(), s.batch)
	if err != nil {
		s.logger.Warn("expiry scan failed", slog.String("error", err.Error()))
		return 0
	}

	cancelled := 0
	for _, t := range expired {
		if ctx.Err() != nil {
			return cancelled
		}

		_, err := s.expirer.Expire(ctx, t.ID)
		switch {
		case err == nil:
			cancelled++
		case errors.Is(err, domain.ErrTradeClosed),
			errors.Is(err, domain.ErrPreconditionFailed):
			// Someone beat the scheduler to it; nothing left to do.
		case errors.Is(err, domain.ErrLockHeld):
			// A user action holds the trade; the next tick retries.
		default:
			s.logger.Error("expire trade failed",
				slog.String("trade_id", t.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return cancelled
}
