package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vignex/escrow-engine/internal/domain"
	"github.com/vignex/escrow-engine/internal/service"
)

type stubAdService struct {
	post        func(ctx context.Context, p service.PostAdParams) (domain.Ad, error)
	get         func(ctx context.Context, id string) (domain.Ad, error)
	listOpen    func(ctx context.Context, side domain.AdSide, opts domain.ListOpts) ([]domain.Ad, error)
	listByOwner func(ctx context.Context, ownerID string) ([]domain.Ad, error)
	setStatus   func(ctx context.Context, adID, callerID string, status domain.AdStatus) (domain.Ad, error)
	del         func(ctx context.Context, adID, callerID string) error
}

func (s *stubAdService) Post(ctx context.Context, p service.PostAdParams) (domain.Ad, error) {
	return s.post(ctx, p)
}

func (s *stubAdService) Get(ctx context.Context, id string) (domain.Ad, error) {
	return s.get(ctx, id)
}

func (s *stubAdService) ListOpen(ctx context.Context, side domain.AdSide, opts domain.ListOpts) ([]domain.Ad, error) {
	return s.listOpen(ctx, side, opts)
}

func (s *stubAdService) ListByOwner(ctx context.Context, ownerID string) ([]domain.Ad, error) {
	return s.listByOwner(ctx, ownerID)
}

func (s *stubAdService) SetStatus(ctx context.Context, adID, callerID string, status domain.AdStatus) (domain.Ad, error) {
	return s.setStatus(ctx, adID, callerID, status)
}

func (s *stubAdService) Delete(ctx context.Context, adID, callerID string) error {
	return s.del(ctx, adID, callerID)
}

func adRouter(ads AdService) *http.ServeMux {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewAdHandler(ads, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/ads", h.Post)
	mux.HandleFunc("GET /api/ads", h.List)
	mux.HandleFunc("GET /api/ads/{id}", h.Get)
	mux.HandleFunc("POST /api/ads/{id}/status", h.SetStatus)
	mux.HandleFunc("DELETE /api/ads/{id}", h.Delete)
	return mux
}

func TestPostAdHandlerConvertsWindows(t *testing.T) {
	svc := &stubAdService{
		post: func(ctx context.Context, p service.PostAdParams) (domain.Ad, error) {
			assert.Equal(t, "merchant-1", p.OwnerID)
			assert.Equal(t, domain.AdSideSell, p.Side)
			assert.Equal(t, 30*time.Minute, p.PaymentWindow)
			assert.Equal(t, 15*time.Minute, p.VerificationWin)
			assert.Equal(t, 7, p.MinAccountAgeDays)
			return domain.Ad{ID: "ad-1", OwnerID: p.OwnerID, Status: domain.AdStatusOpen}, nil
		},
	}
	mux := adRouter(svc)

	rec := doJSON(t, mux, http.MethodPost, "/api/ads", map[string]any{
		"owner_id":                    "merchant-1",
		"side":                        "SELL",
		"asset":                       "USDT",
		"fiat":                        "INR",
		"price_mode":                  "FIXED",
		"fixed_price":                 90_000_000,
		"quantity":                    200_000_000,
		"payment_window_minutes":      30,
		"verification_window_minutes": 15,
		"min_account_age_days":        7,
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestPostAdHandlerRequiresOwner(t *testing.T) {
	mux := adRouter(&stubAdService{})
	rec := doJSON(t, mux, http.MethodPost, "/api/ads", map[string]any{"side": "SELL"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAdsHandlerRoutesByQuery(t *testing.T) {
	svc := &stubAdService{
		listOpen: func(ctx context.Context, side domain.AdSide, opts domain.ListOpts) ([]domain.Ad, error) {
			assert.Equal(t, domain.AdSideBuy, side)
			return []domain.Ad{{ID: "ad-1"}}, nil
		},
		listByOwner: func(ctx context.Context, ownerID string) ([]domain.Ad, error) {
			assert.Equal(t, "merchant-1", ownerID)
			return nil, nil
		},
	}
	mux := adRouter(svc)

	rec := doJSON(t, mux, http.MethodGet, "/api/ads?side=BUY", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Ads []domain.Ad `json:"ads"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Ads, 1)

	rec = doJSON(t, mux, http.MethodGet, "/api/ads?owner_id=merchant-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ads":[]`)
}

func TestSetAdStatusHandler(t *testing.T) {
	svc := &stubAdService{
		setStatus: func(ctx context.Context, adID, callerID string, status domain.AdStatus) (domain.Ad, error) {
			assert.Equal(t, "ad-1", adID)
			assert.Equal(t, "merchant-1", callerID)
			assert.Equal(t, domain.AdStatusPaused, status)
			return domain.Ad{ID: adID, Status: status}, nil
		},
	}
	mux := adRouter(svc)

	rec := doJSON(t, mux, http.MethodPost, "/api/ads/ad-1/status", map[string]any{
		"caller_id": "merchant-1", "status": "PAUSED",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/ads/ad-1/status", map[string]any{"status": "PAUSED"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteAdHandler(t *testing.T) {
	deleted := false
	svc := &stubAdService{
		del: func(ctx context.Context, adID, callerID string) error {
			deleted = true
			assert.Equal(t, "ad-1", adID)
			return nil
		},
	}
	mux := adRouter(svc)

	rec := doJSON(t, mux, http.MethodDelete, "/api/ads/ad-1?caller_id=merchant-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, deleted)

	rec = doJSON(t, mux, http.MethodDelete, "/api/ads/ad-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
