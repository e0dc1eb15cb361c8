package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/vignex/escrow-engine/internal/domain"
	"github.com/vignex/escrow-engine/internal/service"
)

// AdService defines the methods that the ad handler requires from the
// service layer.
type AdService interface {
	Post(ctx context.Context, p service.PostAdParams) (domain.Ad, error)
	Get(ctx context.Context, id string) (domain.Ad, error)
	ListOpen(ctx context.Context, side domain.AdSide, opts domain.ListOpts) ([]domain.Ad, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Ad, error)
	SetStatus(ctx context.Context, adID, callerID string, status domain.AdStatus) (domain.Ad, error)
	Delete(ctx context.Context, adID, callerID string) error
}

// AdHandler serves advertisement endpoints.
type AdHandler struct {
	ads    AdService
	logger *slog.Logger
}

// NewAdHandler creates an AdHandler with the given service and logger.
func NewAdHandler(ads AdService, logger *slog.Logger) *AdHandler {
	return &AdHandler{ads: ads, logger: logger}
}

type postAdRequest struct {
	OwnerID           string   `json:"owner_id"`
	Side              string   `json:"side"`
	Asset             string   `json:"asset"`
	Fiat              string   `json:"fiat"`
	PriceMode         string   `json:"price_mode"`
	FixedPrice        int64    `json:"fixed_price"`
	MarginBps         int64    `json:"margin_bps"`
	Quantity          int64    `json:"quantity"`
	MinOrderValue     int64    `json:"min_order_value"`
	MaxOrderValue     int64    `json:"max_order_value"`
	PaymentMethods    []string `json:"payment_methods"`
	PaymentWindowMins int      `json:"payment_window_minutes"`
	VerifyWindowMins  int      `json:"verification_window_minutes"`
	Terms             string   `json:"terms"`
	AutoReply         string   `json:"auto_reply"`
	MinAccountAgeDays int      `json:"min_account_age_days"`
}

// Post publishes a new advertisement.
// POST /api/ads
func (h *AdHandler) Post(w http.ResponseWriter, r *http.Request) {
	var req postAdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.OwnerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id is required")
		return
	}

	ad, err := h.ads.Post(r.Context(), service.PostAdParams{
		OwnerID:           req.OwnerID,
		Side:              domain.AdSide(req.Side),
		Asset:             req.Asset,
		Fiat:              req.Fiat,
		PriceMode:         domain.PriceMode(req.PriceMode),
		FixedPrice:        req.FixedPrice,
		MarginBps:         req.MarginBps,
		Quantity:          req.Quantity,
		MinOrderValue:     req.MinOrderValue,
		MaxOrderValue:     req.MaxOrderValue,
		PaymentMethods:    req.PaymentMethods,
		PaymentWindow:     time.Duration(req.PaymentWindowMins) * time.Minute,
		VerificationWin:   time.Duration(req.VerifyWindowMins) * time.Minute,
		Terms:             req.Terms,
		AutoReply:         req.AutoReply,
		MinAccountAgeDays: req.MinAccountAgeDays,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, "post ad", err)
		return
	}

	writeJSON(w, http.StatusCreated, ad)
}

// listAdsResponse wraps the list endpoint output.
type listAdsResponse struct {
	Ads []domain.Ad `json:"ads"`
}

// List returns the public order book, or a merchant's own ads when owner_id
// is given.
// GET /api/ads?side=SELL&limit=50&offset=0
// GET /api/ads?owner_id=...
func (h *AdHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var ads []domain.Ad
	var err error
	if ownerID := q.Get("owner_id"); ownerID != "" {
		ads, err = h.ads.ListByOwner(r.Context(), ownerID)
	} else {
		ads, err = h.ads.ListOpen(r.Context(), domain.AdSide(q.Get("side")), parseListOpts(r))
	}
	if err != nil {
		writeDomainError(w, r, h.logger, "list ads", err)
		return
	}

	if ads == nil {
		ads = []domain.Ad{}
	}
	writeJSON(w, http.StatusOK, listAdsResponse{Ads: ads})
}

// Get returns a single advertisement.
// GET /api/ads/{id}
func (h *AdHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing ad id")
		return
	}

	ad, err := h.ads.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "get ad", err)
		return
	}

	writeJSON(w, http.StatusOK, ad)
}

type setAdStatusRequest struct {
	CallerID string `json:"caller_id"`
	Status   string `json:"status"`
}

// SetStatus toggles an ad between OPEN and PAUSED.
// POST /api/ads/{id}/status
func (h *AdHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	var req setAdStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.CallerID == "" {
		writeError(w, http.StatusBadRequest, "caller_id is required")
		return
	}

	ad, err := h.ads.SetStatus(r.Context(), id, req.CallerID, domain.AdStatus(req.Status))
	if err != nil {
		writeDomainError(w, r, h.logger, "set ad status", err)
		return
	}

	writeJSON(w, http.StatusOK, ad)
}

// Delete soft-deletes an advertisement.
// DELETE /api/ads/{id}?caller_id=...
func (h *AdHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	callerID := r.URL.Query().Get("caller_id")
	if callerID == "" {
		writeError(w, http.StatusBadRequest, "caller_id query parameter required")
		return
	}

	if err := h.ads.Delete(r.Context(), id, callerID); err != nil {
		writeDomainError(w, r, h.logger, "delete ad", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "deleted",
		"ad_id":  id,
	})
}
