package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vignex/escrow-engine/internal/clock"
	"github.com/vignex/escrow-engine/internal/domain"
)

func newAdFixture(t *testing.T) (*AdService, *memBackend, *clock.Fixed) {
	t.Helper()
	be := newMemBackend()
	clk := clock.NewFixed(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewAdService(adStore{be}, be, be, auditStore{be}, clk, logger)
	be.users["merchant"] = domain.User{ID: "merchant", CreatedAt: clk.Now().AddDate(0, 0, -90)}
	return svc, be, clk
}

func validPostParams() PostAdParams {
	return PostAdParams{
		OwnerID:         "merchant",
		Side:            domain.AdSideSell,
		Asset:           "USDT",
		Fiat:            "INR",
		PriceMode:       domain.PriceModeFixed,
		FixedPrice:      90_000_000,
		Quantity:        200_000_000,
		MinOrderValue:   100_000_000,
		MaxOrderValue:   5_000_000_000,
		PaymentMethods:  []string{"UPI", "IMPS"},
		PaymentWindow:   30 * time.Minute,
		VerificationWin: 15 * time.Minute,
		AutoReply:       "UPI id is in the terms, pay within the window",
	}
}

func TestPostAd(t *testing.T) {
	svc, be, clk := newAdFixture(t)

	ad, err := svc.Post(context.Background(), validPostParams())
	require.NoError(t, err)

	assert.NotEmpty(t, ad.ID)
	assert.Equal(t, domain.AdStatusOpen, ad.Status)
	assert.Equal(t, int64(200_000_000), ad.RemainingQuantity)
	assert.Equal(t, ad.InitialQuantity, ad.RemainingQuantity)
	assert.Equal(t, clk.Now(), ad.CreatedAt)
	assert.Equal(t, 1, be.publishedCount())
}

func TestPostAdUnknownOwner(t *testing.T) {
	svc, _, _ := newAdFixture(t)
	p := validPostParams()
	p.OwnerID = "ghost"
	_, err := svc.Post(context.Background(), p)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostAdValidation(t *testing.T) {
	svc, _, _ := newAdFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(*PostAdParams)
		wantErr error
	}{
		{"bad side", func(p *PostAdParams) { p.Side = "SHORT" }, domain.ErrPreconditionFailed},
		{"zero quantity", func(p *PostAdParams) { p.Quantity = 0 }, domain.ErrInvalidQuantity},
		{"fixed without price", func(p *PostAdParams) { p.FixedPrice = 0 }, domain.ErrPreconditionFailed},
		{"floating without margin", func(p *PostAdParams) {
			p.PriceMode = domain.PriceModeFloating
			p.MarginBps = 0
		}, domain.ErrPreconditionFailed},
		{"inverted bounds", func(p *PostAdParams) {
			p.MinOrderValue = 10
			p.MaxOrderValue = 5
		}, domain.ErrPreconditionFailed},
		{"zero payment window", func(p *PostAdParams) { p.PaymentWindow = 0 }, domain.ErrPreconditionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPostParams()
			tt.mutate(&p)
			_, err := svc.Post(ctx, p)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAdStatusToggle(t *testing.T) {
	svc, _, _ := newAdFixture(t)
	ctx := context.Background()

	ad, err := svc.Post(ctx, validPostParams())
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, ad.ID, "stranger", domain.AdStatusPaused)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.SetStatus(ctx, ad.ID, "merchant", domain.AdStatusExhausted)
	assert.ErrorIs(t, err, domain.ErrPreconditionFailed)

	paused, err := svc.SetStatus(ctx, ad.ID, "merchant", domain.AdStatusPaused)
	require.NoError(t, err)
	assert.Equal(t, domain.AdStatusPaused, paused.Status)

	reopened, err := svc.SetStatus(ctx, ad.ID, "merchant", domain.AdStatusOpen)
	require.NoError(t, err)
	assert.Equal(t, domain.AdStatusOpen, reopened.Status)
}

func TestAdSoftDelete(t *testing.T) {
	svc, _, _ := newAdFixture(t)
	ctx := context.Background()

	ad, err := svc.Post(ctx, validPostParams())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, ad.ID, "merchant"))

	// the row survives for trades that reference it
	got, err := svc.Get(ctx, ad.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AdStatusDeleted, got.Status)

	// but it leaves the merchant's own listing
	owned, err := svc.ListByOwner(ctx, "merchant")
	require.NoError(t, err)
	assert.Empty(t, owned)

	// and cannot be revived
	_, err = svc.SetStatus(ctx, ad.ID, "merchant", domain.AdStatusOpen)
	assert.Error(t, err)
}

func TestListOpenFiltersBySide(t *testing.T) {
	svc, _, _ := newAdFixture(t)
	ctx := context.Background()

	sell := validPostParams()
	_, err := svc.Post(ctx, sell)
	require.NoError(t, err)

	buy := validPostParams()
	buy.Side = domain.AdSideBuy
	_, err = svc.Post(ctx, buy)
	require.NoError(t, err)

	paused := validPostParams()
	pausedAd, err := svc.Post(ctx, paused)
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, pausedAd.ID, "merchant", domain.AdStatusPaused)
	require.NoError(t, err)

	all, err := svc.ListOpen(ctx, "", domain.ListOpts{Limit: 50})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	buys, err := svc.ListOpen(ctx, domain.AdSideBuy, domain.ListOpts{Limit: 50})
	require.NoError(t, err)
	require.Len(t, buys, 1)
	assert.Equal(t, domain.AdSideBuy, buys[0].Side)
}
