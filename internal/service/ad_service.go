package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vignex/escrow-engine/internal/clock"
	"github.com/vignex/escrow-engine/internal/domain"
)

// PostAdParams carries everything needed to publish an advertisement.
type PostAdParams struct {
	OwnerID           string
	Side              domain.AdSide
	Asset             string
	Fiat              string
	PriceMode         domain.PriceMode
	FixedPrice        int64
	MarginBps         int64
	Quantity          int64
	MinOrderValue     int64
	MaxOrderValue     int64
	PaymentMethods    []string
	PaymentWindow     time.Duration
	VerificationWin   time.Duration
	Terms             string
	AutoReply         string
	MinAccountAgeDays int
}

// AdService manages merchant advertisements. Inventory mutation during the
// trade lifecycle happens in TradeService; this service owns posting,
// listing and the owner-only status toggles.
type AdService struct {
	ads    domain.AdStore
	users  domain.UserStore
	bus    domain.SignalBus
	audit  domain.AuditStore
	clock  clock.Clock
	logger *slog.Logger
}

// NewAdService creates an AdService with all required dependencies.
func NewAdService(
	ads domain.AdStore,
	users domain.UserStore,
	bus domain.SignalBus,
	audit domain.AuditStore,
	clk clock.Clock,
	logger *slog.Logger,
) *AdService {
	return &AdService{
		ads:    ads,
		users:  users,
		bus:    bus,
		audit:  audit,
		clock:  clk,
		logger: logger,
	}
}

// Post validates and publishes a new advertisement.
func (s *AdService) Post(ctx context.Context, p PostAdParams) (domain.Ad, error) {
	if _, err := s.users.GetByID(ctx, p.OwnerID); err != nil {
		return domain.Ad{}, fmt.Errorf("ad_service: owner %q: %w", p.OwnerID, err)
	}
	if err := validatePostParams(p); err != nil {
		return domain.Ad{}, fmt.Errorf("ad_service: %w", err)
	}

	ad := domain.Ad{
		ID:                uuid.New().String(),
		OwnerID:           p.OwnerID,
		Side:              p.Side,
		Asset:             p.Asset,
		Fiat:              p.Fiat,
		PriceMode:         p.PriceMode,
		FixedPrice:        p.FixedPrice,
		MarginBps:         p.MarginBps,
		InitialQuantity:   p.Quantity,
		RemainingQuantity: p.Quantity,
		MinOrderValue:     p.MinOrderValue,
		MaxOrderValue:     p.MaxOrderValue,
		PaymentMethods:    p.PaymentMethods,
		PaymentWindow:     p.PaymentWindow,
		VerificationWin:   p.VerificationWin,
		Status:            domain.AdStatusOpen,
		Terms:             p.Terms,
		AutoReply:         p.AutoReply,
		MinAccountAgeDays: p.MinAccountAgeDays,
		CreatedAt:         s.clock.Now(),
	}
	if err := s.ads.Create(ctx, ad); err != nil {
		return domain.Ad{}, fmt.Errorf("ad_service: create: %w", err)
	}

	publishEvent(ctx, s.bus, s.logger, domain.Event{
		Type:    domain.EventAdPosted,
		AdID:    ad.ID,
		ActorID: ad.OwnerID,
		At:      ad.CreatedAt,
	})
	auditLog(ctx, s.audit, s.logger, "ad_posted", map[string]any{
		"ad_id":    ad.ID,
		"owner_id": ad.OwnerID,
		"side":     string(ad.Side),
		"quantity": ad.InitialQuantity,
	})

	s.logger.InfoContext(ctx, "ad_service: posted ad",
		slog.String("ad_id", ad.ID),
		slog.String("owner_id", ad.OwnerID),
		slog.String("side", string(ad.Side)),
	)
	return ad, nil
}

func validatePostParams(p PostAdParams) error {
	if p.Side != domain.AdSideBuy && p.Side != domain.AdSideSell {
		return fmt.Errorf("%w: side must be BUY or SELL", domain.ErrPreconditionFailed)
	}
	if p.Quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	switch p.PriceMode {
	case domain.PriceModeFixed:
		if p.FixedPrice <= 0 {
			return fmt.Errorf("%w: fixed price must be positive", domain.ErrPreconditionFailed)
		}
	case domain.PriceModeFloating:
		if p.MarginBps <= 0 {
			return fmt.Errorf("%w: margin must be positive", domain.ErrPreconditionFailed)
		}
	default:
		return fmt.Errorf("%w: price mode must be FIXED or FLOATING", domain.ErrPreconditionFailed)
	}
	if p.MinOrderValue < 0 || (p.MaxOrderValue > 0 && p.MaxOrderValue < p.MinOrderValue) {
		return fmt.Errorf("%w: order value bounds inverted", domain.ErrPreconditionFailed)
	}
	if p.PaymentWindow <= 0 || p.VerificationWin <= 0 {
		return fmt.Errorf("%w: payment and verification windows must be positive", domain.ErrPreconditionFailed)
	}
	return nil
}

// Get returns a single ad.
func (s *AdService) Get(ctx context.Context, id string) (domain.Ad, error) {
	ad, err := s.ads.GetByID(ctx, id)
	if err != nil {
		return domain.Ad{}, fmt.Errorf("ad_service: get %q: %w", id, err)
	}
	return ad, nil
}

// ListOpen returns the public order book of OPEN ads, optionally by side.
func (s *AdService) ListOpen(ctx context.Context, side domain.AdSide, opts domain.ListOpts) ([]domain.Ad, error) {
	ads, err := s.ads.ListOpen(ctx, side, opts)
	if err != nil {
		return nil, fmt.Errorf("ad_service: list open: %w", err)
	}
	return ads, nil
}

// ListByOwner returns a merchant's own ads, including paused and exhausted.
func (s *AdService) ListByOwner(ctx context.Context, ownerID string) ([]domain.Ad, error) {
	ads, err := s.ads.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ad_service: list by owner: %w", err)
	}
	return ads, nil
}

// SetStatus toggles an ad between OPEN and PAUSED. Only the owner may
// toggle, and EXHAUSTED ads cannot be reopened.
func (s *AdService) SetStatus(ctx context.Context, adID, callerID string, status domain.AdStatus) (domain.Ad, error) {
	if status != domain.AdStatusOpen && status != domain.AdStatusPaused {
		return domain.Ad{}, fmt.Errorf("ad_service: %w: status must be OPEN or PAUSED", domain.ErrPreconditionFailed)
	}
	return s.setStatus(ctx, adID, callerID, status)
}

// Delete soft-deletes an ad. The row is retained because trades reference it.
func (s *AdService) Delete(ctx context.Context, adID, callerID string) error {
	_, err := s.setStatus(ctx, adID, callerID, domain.AdStatusDeleted)
	return err
}

func (s *AdService) setStatus(ctx context.Context, adID, callerID string, status domain.AdStatus) (domain.Ad, error) {
	ad, err := s.ads.GetByID(ctx, adID)
	if err != nil {
		return domain.Ad{}, fmt.Errorf("ad_service: get %q: %w", adID, err)
	}
	if ad.OwnerID != callerID {
		return domain.Ad{}, fmt.Errorf("ad_service: set status %q: %w", adID, domain.ErrForbidden)
	}

	if err := s.ads.SetStatus(ctx, adID, status); err != nil {
		return domain.Ad{}, fmt.Errorf("ad_service: set status %q: %w", adID, err)
	}

	auditLog(ctx, s.audit, s.logger, "ad_status_changed", map[string]any{
		"ad_id":  adID,
		"status": string(status),
	})

	ad.Status = status
	return ad, nil
}
