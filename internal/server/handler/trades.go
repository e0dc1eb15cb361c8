package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/vignex/escrow-engine/internal/domain"
	"github.com/vignex/escrow-engine/internal/service"
)

// TradeService defines the state-machine operations the trade handler
// requires from the service layer.
type TradeService interface {
	Create(ctx context.Context, p service.CreateTradeParams) (domain.Trade, error)
	Get(ctx context.Context, id string) (domain.Trade, error)
	Verify(ctx context.Context, tradeID, actorID string) (domain.Trade, error)
	MarkPaid(ctx context.Context, tradeID, actorID string) (domain.Trade, error)
	Release(ctx context.Context, tradeID, actorID string) (domain.Trade, error)
	Cancel(ctx context.Context, tradeID, actorID string) (domain.Trade, error)
	Extend(ctx context.Context, tradeID, actorID string, minutes int) (domain.Trade, error)
	Appeal(ctx context.Context, tradeID, actorID string) (domain.Trade, error)
	Resolve(ctx context.Context, tradeID, arbiterID string, outcome domain.AppealOutcome) (domain.Trade, error)
}

// DirectoryService defines the read-only trade index the handler uses for
// list endpoints.
type DirectoryService interface {
	TradesForUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Trade, error)
	TradesForAd(ctx context.Context, adID string, opts domain.ListOpts) ([]domain.Trade, error)
	PendingForMerchant(ctx context.Context, merchantID string, opts domain.ListOpts) ([]domain.Trade, error)
}

// TradeHandler serves the trade lifecycle endpoints. Each POST maps 1:1 to
// one state-machine transition.
type TradeHandler struct {
	trades    TradeService
	directory DirectoryService
	logger    *slog.Logger
}

// NewTradeHandler creates a TradeHandler with the given services and logger.
func NewTradeHandler(trades TradeService, directory DirectoryService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades:    trades,
		directory: directory,
		logger:    logger,
	}
}

type createTradeRequest struct {
	AdID     string `json:"ad_id"`
	TakerID  string `json:"taker_id"`
	Quantity int64  `json:"quantity"`
}

// Create opens a trade against an advertisement.
// POST /api/trades
func (h *TradeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.AdID == "" || req.TakerID == "" {
		writeError(w, http.StatusBadRequest, "ad_id and taker_id are required")
		return
	}

	t, err := h.trades.Create(r.Context(), service.CreateTradeParams{
		AdID:     req.AdID,
		TakerID:  req.TakerID,
		Quantity: req.Quantity,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, "create trade", err)
		return
	}

	writeJSON(w, http.StatusCreated, t)
}

// Get returns a single trade.
// GET /api/trades/{id}
func (h *TradeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing trade id")
		return
	}

	t, err := h.trades.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "get trade", err)
		return
	}

	writeJSON(w, http.StatusOK, t)
}

// actorRequest is the common body for transitions that only need a caller.
type actorRequest struct {
	ActorID string `json:"actor_id"`
}

// transition runs one actor-driven state-machine operation.
func (h *TradeHandler) transition(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	fn func(ctx context.Context, tradeID, actorID string) (domain.Trade, error),
) {
	id := pathParam(r, "id")
	var req actorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ActorID == "" {
		writeError(w, http.StatusBadRequest, "actor_id is required")
		return
	}

	t, err := fn(r.Context(), id, req.ActorID)
	if err != nil {
		writeDomainError(w, r, h.logger, op, err)
		return
	}

	writeJSON(w, http.StatusOK, t)
}

// Verify commits the merchant to the order.
// POST /api/trades/{id}/verify
func (h *TradeHandler) Verify(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "verify trade", h.trades.Verify)
}

// MarkPaid records the buyer's off-system payment.
// POST /api/trades/{id}/mark-paid
func (h *TradeHandler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "mark trade paid", h.trades.MarkPaid)
}

// Release settles escrow to the buyer.
// POST /api/trades/{id}/release
func (h *TradeHandler) Release(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "release trade", h.trades.Release)
}

// Cancel aborts an unverified trade.
// POST /api/trades/{id}/cancel
func (h *TradeHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "cancel trade", h.trades.Cancel)
}

// Appeal escalates a trade to arbitration.
// POST /api/trades/{id}/appeal
func (h *TradeHandler) Appeal(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "appeal trade", h.trades.Appeal)
}

type extendRequest struct {
	ActorID string `json:"actor_id"`
	Minutes int    `json:"minutes"`
}

// Extend lengthens the payment window.
// POST /api/trades/{id}/extend
func (h *TradeHandler) Extend(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	var req extendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ActorID == "" {
		writeError(w, http.StatusBadRequest, "actor_id is required")
		return
	}

	t, err := h.trades.Extend(r.Context(), id, req.ActorID, req.Minutes)
	if err != nil {
		writeDomainError(w, r, h.logger, "extend trade", err)
		return
	}

	writeJSON(w, http.StatusOK, t)
}

type resolveRequest struct {
	ArbiterID string `json:"arbiter_id"`
	Outcome   string `json:"outcome"`
}

// Resolve applies an arbiter's decision to an appealed trade.
// POST /api/trades/{id}/resolve
func (h *TradeHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ArbiterID == "" || req.Outcome == "" {
		writeError(w, http.StatusBadRequest, "arbiter_id and outcome are required")
		return
	}

	t, err := h.trades.Resolve(r.Context(), id, req.ArbiterID, domain.AppealOutcome(req.Outcome))
	if err != nil {
		writeDomainError(w, r, h.logger, "resolve trade", err)
		return
	}

	writeJSON(w, http.StatusOK, t)
}

// listTradesResponse wraps the list endpoint output.
type listTradesResponse struct {
	Trades []domain.Trade `json:"trades"`
}

// List returns trades for a user or for an ad.
// GET /api/trades?user_id=...&limit=50&offset=0
// GET /api/trades?ad_id=...
func (h *TradeHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("user_id")
	adID := q.Get("ad_id")

	if userID == "" && adID == "" {
		writeError(w, http.StatusBadRequest, "user_id or ad_id query parameter required")
		return
	}

	opts := parseListOpts(r)
	var trades []domain.Trade
	var err error
	if userID != "" {
		trades, err = h.directory.TradesForUser(r.Context(), userID, opts)
	} else {
		trades, err = h.directory.TradesForAd(r.Context(), adID, opts)
	}
	if err != nil {
		writeDomainError(w, r, h.logger, "list trades", err)
		return
	}

	if trades == nil {
		trades = []domain.Trade{}
	}
	writeJSON(w, http.StatusOK, listTradesResponse{Trades: trades})
}

// ListPending returns a merchant's trades awaiting verification.
// GET /api/trades/pending?merchant_id=...
func (h *TradeHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	merchantID := r.URL.Query().Get("merchant_id")
	if merchantID == "" {
		writeError(w, http.StatusBadRequest, "merchant_id query parameter required")
		return
	}

	trades, err := h.directory.PendingForMerchant(r.Context(), merchantID, parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, "list pending trades", err)
		return
	}

	if trades == nil {
		trades = []domain.Trade{}
	}
	writeJSON(w, http.StatusOK, listTradesResponse{Trades: trades})
}
