package expiry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vignex/escrow-engine/internal/clock"
	"github.com/vignex/escrow-engine/internal/domain"
)

// fakeTradeStore serves a canned expiry scan. Only ListExpired matters here;
// the rest of the interface panics so a test reaching it fails loudly.
type fakeTradeStore struct {
	domain.TradeStore
	expired []domain.Trade
	scans   int
}

func (f *fakeTradeStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Trade, error) {
	f.scans++
	if len(f.expired) > limit {
		return f.expired[:limit], nil
	}
	return f.expired, nil
}

type fakeExpirer struct {
	errs  map[string]error
	calls []string
}

func (f *fakeExpirer) Expire(ctx context.Context, tradeID string) (domain.Trade, error) {
	f.calls = append(f.calls, tradeID)
	if err, ok := f.errs[tradeID]; ok {
		return domain.Trade{}, err
	}
	return domain.Trade{ID: tradeID, Status: domain.TradeStatusCancelled}, nil
}

func newScheduler(trades domain.TradeStore, exp Expirer, batch int) *Scheduler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.NewFixed(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	return NewScheduler(trades, exp, clk, time.Second, batch, logger)
}

func TestTickExpiresEachScannedTrade(t *testing.T) {
	store := &fakeTradeStore{expired: []domain.Trade{{ID: "t1"}, {ID: "t2"}, {ID: "t3"}}}
	exp := &fakeExpirer{}
	s := newScheduler(store, exp, 50)

	n := s.Tick(context.Background())
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"t1", "t2", "t3"}, exp.calls)
}

func TestTickToleratesAlreadyResolvedTrades(t *testing.T) {
	store := &fakeTradeStore{expired: []domain.Trade{{ID: "t1"}, {ID: "t2"}, {ID: "t3"}, {ID: "t4"}}}
	exp := &fakeExpirer{errs: map[string]error{
		"t1": fmt.Errorf("trade: %w", domain.ErrTradeClosed),
		"t2": fmt.Errorf("trade: %w", domain.ErrPreconditionFailed),
		"t3": fmt.Errorf("trade: %w", domain.ErrLockHeld),
	}}
	s := newScheduler(store, exp, 50)

	// the three contested trades are skipped without failing the tick
	n := s.Tick(context.Background())
	assert.Equal(t, 1, n)
	assert.Len(t, exp.calls, 4)
}

func TestTickHonorsBatchLimit(t *testing.T) {
	var trades []domain.Trade
	for i := 0; i < 10; i++ {
		trades = append(trades, domain.Trade{ID: fmt.Sprintf("t%d", i)})
	}
	store := &fakeTradeStore{expired: trades}
	exp := &fakeExpirer{}
	s := newScheduler(store, exp, 4)

	n := s.Tick(context.Background())
	assert.Equal(t, 4, n)
	assert.Len(t, exp.calls, 4)
}

func TestTickStopsOnCancelledContext(t *testing.T) {
	store := &fakeTradeStore{expired: []domain.Trade{{ID: "t1"}, {ID: "t2"}}}
	exp := &fakeExpirer{}
	s := newScheduler(store, exp, 50)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n := s.Tick(ctx)
	assert.Equal(t, 0, n)
	assert.Empty(t, exp.calls)
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	store := &fakeTradeStore{}
	exp := &fakeExpirer{}
	s := newScheduler(store, exp, 50)
	s.interval = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, store.scans, 0)
}
