package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vignex/escrow-engine/internal/clock"
	"github.com/vignex/escrow-engine/internal/domain"
)

// TradeConfig carries the tunables the state machine needs.
type TradeConfig struct {
	// LockTTL bounds how long a per-trade or per-ad lock is held.
	LockTTL time.Duration
	// CreateLimit and CreateWindow throttle trade creation per taker.
	CreateLimit  int
	CreateWindow time.Duration
	// FallbackRate prices floating ads when no reference rate has been
	// published for the pair. Fiat micro-units per asset unit.
	FallbackRate int64
}

// CreateTradeParams is a taker's order against an open advertisement.
type CreateTradeParams struct {
	AdID     string
	TakerID  string
	Quantity int64
}

// TradeService drives the trade lifecycle. Every mutation happens under a
// per-trade (or, for creation, per-ad) lock and commits its status change
// and ledger/inventory side effects in one storage transaction, so a
// transition either fully applies or leaves no trace.
type TradeService struct {
	users   domain.UserStore
	ads     domain.AdStore
	trades  domain.TradeStore
	audit   domain.AuditStore
	tx      domain.TxRunner
	locks   domain.LockManager
	limiter domain.RateLimiter
	rates   domain.RateSource
	bus     domain.SignalBus
	clock   clock.Clock
	cfg     TradeConfig
	logger  *slog.Logger
}

// NewTradeService creates a TradeService with all required dependencies.
func NewTradeService(
	users domain.UserStore,
	ads domain.AdStore,
	trades domain.TradeStore,
	audit domain.AuditStore,
	tx domain.TxRunner,
	locks domain.LockManager,
	limiter domain.RateLimiter,
	rates domain.RateSource,
	bus domain.SignalBus,
	clk clock.Clock,
	cfg TradeConfig,
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		users:   users,
		ads:     ads,
		trades:  trades,
		audit:   audit,
		tx:      tx,
		locks:   locks,
		limiter: limiter,
		rates:   rates,
		bus:     bus,
		clock:   clk,
		cfg:     cfg,
		logger:  logger,
	}
}

// Get returns a trade by ID.
func (s *TradeService) Get(ctx context.Context, id string) (domain.Trade, error) {
	t, err := s.trades.GetByID(ctx, id)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("trade_service: get %q: %w", id, err)
	}
	return t, nil
}

// Create opens a trade against an advertisement. The inventory take, the
// seller's escrow reservation and the trade row commit in one transaction;
// the unit price is snapshotted here and never recalculated, even for
// floating-priced ads.
func (s *TradeService) Create(ctx context.Context, p CreateTradeParams) (domain.Trade, error) {
	allowed, err := s.limiter.Allow(ctx, "trade_create:"+p.TakerID, s.cfg.CreateLimit, s.cfg.CreateWindow)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("trade_service: rate limit: %w", err)
	}
	if !allowed {
		return domain.Trade{}, fmt.Errorf("trade_service: create: %w", domain.ErrRateLimited)
	}

	unlock, err := s.locks.Acquire(ctx, "ad:"+p.AdID, s.cfg.LockTTL)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("trade_service: lock ad %q: %w", p.AdID, err)
	}
	defer unlock()

	ad, err := s.ads.GetByID(ctx, p.AdID)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("trade_service: ad %q: %w", p.AdID, err)
	}
	if ad.Status != domain.AdStatusOpen {
		return domain.Trade{}, fmt.Errorf("trade_service: ad %q: %w", p.AdID, domain.ErrAdNotOpen)
	}
	if p.TakerID == ad.OwnerID {
		return domain.Trade{}, fmt.Errorf("trade_service: taker is ad owner: %w", domain.ErrForbidden)
	}
	if p.Quantity <= 0 {
		return domain.Trade{}, fmt.Errorf("trade_service: create: %w", domain.ErrInvalidQuantity)
	}

	now := s.clock.Now()

	taker, err := s.users.GetByID(ctx, p.TakerID)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("trade_service: taker %q: %w", p.TakerID, err)
	}
	if ad.MinAccountAgeDays > 0 && taker.AccountAgeDays(now) < ad.MinAccountAgeDays {
		return domain.Trade{}, fmt.Errorf("trade_service: account younger than %d days: %w",
			ad.MinAccountAgeDays, domain.ErrForbidden)
	}

	unitPrice := ad.UnitPrice(s.referenceRate(ctx, ad.Asset, ad.Fiat))
	if unitPrice <= 0 {
		return domain.Trade{}, fmt.Errorf("trade_service: ad %q resolves to zero price: %w",
			p.AdID, domain.ErrPreconditionFailed)
	}
	notional := domain.Notional(p.Quantity, unitPrice)
	if notional <= 0 {
		return domain.Trade{}, fmt.Errorf("trade_service: create: %w", domain.ErrInvalidQuantity)
	}
	if notional < ad.MinOrderValue || (ad.MaxOrderValue > 0 && notional > ad.MaxOrderValue) {
		return domain.Trade{}, fmt.Errorf("trade_service: order value %d outside ad bounds: %w",
			notional, domain.ErrPreconditionFailed)
	}

	sellerID := domain.SellerOf(ad.Side, ad.OwnerID, p.TakerID)
	deadline := now.Add(ad.VerificationWin)
	trade := domain.Trade{
		ID:                   uuid.New().String(),
		AdID:                 ad.ID,
		AdSide:               ad.Side,
		MakerID:              ad.OwnerID,
		TakerID:              p.TakerID,
		Quantity:             p.Quantity,
		UnitPrice:            unitPrice,
		Status:               domain.TradeStatusWaitingVerification,
		VerificationDeadline: &deadline,
		CreatedAt:            now,
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.ads.TakeQuantity(ctx, ad.ID, p.Quantity); err != nil {
			return err
		}
		if err := s.users.Reserve(ctx, sellerID, notional); err != nil {
			return err
		}
		return s.trades.Create(ctx, trade)
	})
	if err != nil {
		return domain.Trade{}, fmt.Errorf("trade_service: create trade on ad %q: %w", p.AdID, err)
	}

	publishEvent(ctx, s.bus, s.logger, domain.Event{
		Type:      domain.EventTradeCreated,
		TradeID:   trade.ID,
		AdID:      ad.ID,
		ActorID:   p.TakerID,
		Status:    trade.Status,
		AutoReply: ad.AutoReply,
		At:        now,
	})
	if ad.RemainingQuantity == p.Quantity {
		publishEvent(ctx, s.bus, s.logger, domain.Event{
			Type: domain.EventAdExhausted,
			AdID: ad.ID,
			At:   now,
		})
	}
	auditLog(ctx, s.audit, s.logger, "trade_created", map[string]any{
		"trade_id":   trade.ID,
		"ad_id":      ad.ID,
		"taker_id":   p.TakerID,
		"quantity":   p.Quantity,
		"unit_price": unitPrice,
		"notional":   notional,
	})
	s.logger.InfoContext(ctx, "trade_service: created trade",
		slog.String("trade_id", trade.ID),
		slog.String("ad_id", ad.ID),
		slog.String("taker_id", p.TakerID),
		slog.Int64("notional", notional),
	)
	return trade, nil
}

// referenceRate resolves the published reference rate for a pair, falling
// back to the configured rate when none exists.
func (s *TradeService) referenceRate(ctx context.Context, asset, fiat string) int64 {
	rate, _, err := s.rates.GetRate(ctx, asset, fiat)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "trade_service: reference rate lookup failed",
				slog.String("asset", asset),
				slog.String("fiat", fiat),
				slog.String("error", err.Error()),
			)
		}
		return s.cfg.FallbackRate
	}
	return rate
}

// Verify is the merchant committing to honor the order. It swaps the
// verification deadline for the payment deadline.
func (s *TradeService) Verify(ctx context.Context, tradeID, actorID string) (domain.Trade, error) {
	return s.locked(ctx, tradeID, func(ctx context.Context, t domain.Trade) (domain.Trade, error) {
		if actorID != t.MakerID {
			return t, domain.ErrForbidden
		}
		if err := requireStatus(t, domain.TradeStatusWaitingVerification); err != nil {
			return t, err
		}
		now := s.clock.Now()
		if t.VerificationDeadline == nil || !now.Before(*t.VerificationDeadline) {
			return t, fmt.Errorf("verification deadline passed: %w", domain.ErrPreconditionFailed)
		}

		ad, err := s.ads.GetByID(ctx, t.AdID)
		if err != nil {
			return t, err
		}
		deadline := now.Add(ad.PaymentWindow)
		upd := domain.TradeUpdate{
			Status:          domain.TradeStatusPendingPayment,
			PaymentDeadline: &deadline,
			ExtendedMinutes: t.ExtendedMinutes,
		}
		if err := s.trades.Transition(ctx, t.ID, t.Status, upd); err != nil {
			return t, err
		}

		t.Status = upd.Status
		t.VerificationDeadline = nil
		t.PaymentDeadline = &deadline
		s.emit(ctx, domain.EventTradeVerified, t, actorID, nil)
		return t, nil
	})
}

// MarkPaid is the buyer asserting the off-system payment went out.
func (s *TradeService) MarkPaid(ctx context.Context, tradeID, actorID string) (domain.Trade, error) {
	return s.locked(ctx, tradeID, func(ctx context.Context, t domain.Trade) (domain.Trade, error) {
		if actorID != t.BuyerID() {
			return t, domain.ErrForbidden
		}
		if err := requireStatus(t, domain.TradeStatusPendingPayment); err != nil {
			return t, err
		}
		if t.PaymentDeadline == nil || !s.clock.Now().Before(*t.PaymentDeadline) {
			return t, fmt.Errorf("payment deadline passed: %w", domain.ErrPreconditionFailed)
		}

		upd := domain.TradeUpdate{
			Status:          domain.TradeStatusPaid,
			ExtendedMinutes: t.ExtendedMinutes,
		}
		if err := s.trades.Transition(ctx, t.ID, t.Status, upd); err != nil {
			return t, err
		}

		t.Status = upd.Status
		t.PaymentDeadline = nil
		s.emit(ctx, domain.EventTradePaid, t, actorID, nil)
		return t, nil
	})
}

// Release is the seller confirming receipt and handing over escrow. The
// status change and the settlement commit together, so settle applies at
// most once per trade.
func (s *TradeService) Release(ctx context.Context, tradeID, actorID string) (domain.Trade, error) {
	return s.locked(ctx, tradeID, func(ctx context.Context, t domain.Trade) (domain.Trade, error) {
		if actorID != t.SellerID() {
			return t, domain.ErrForbidden
		}
		if err := requireStatus(t, domain.TradeStatusPaid); err != nil {
			return t, err
		}

		now := s.clock.Now()
		if err := s.settle(ctx, t, t.Status, now); err != nil {
			return t, err
		}

		t.Status = domain.TradeStatusCompleted
		t.ResolvedAt = &now
		s.emit(ctx, domain.EventTradeReleased, t, actorID, nil)
		return t, nil
	})
}

// Cancel aborts an unverified trade. Only the taker may cancel, and only
// before the merchant verifies; escrow and inventory come back.
func (s *TradeService) Cancel(ctx context.Context, tradeID, actorID string) (domain.Trade, error) {
	return s.locked(ctx, tradeID, func(ctx context.Context, t domain.Trade) (domain.Trade, error) {
		if actorID != t.TakerID {
			return t, domain.ErrForbidden
		}
		if err := requireStatus(t, domain.TradeStatusWaitingVerification); err != nil {
			return t, err
		}

		now := s.clock.Now()
		if err := s.refund(ctx, t, t.Status, now); err != nil {
			return t, err
		}

		t.Status = domain.TradeStatusCancelled
		t.VerificationDeadline = nil
		t.PaymentDeadline = nil
		t.ResolvedAt = &now
		s.emit(ctx, domain.EventTradeCancelled, t, actorID, nil)
		return t, nil
	})
}

// Extend grants the buyer more payment time. Merchant-initiated because the
// merchant bears the cost of holding escrow longer; cumulative extensions
// are capped.
func (s *TradeService) Extend(ctx context.Context, tradeID, actorID string, minutes int) (domain.Trade, error) {
	return s.locked(ctx, tradeID, func(ctx context.Context, t domain.Trade) (domain.Trade, error) {
		if actorID != t.MakerID {
			return t, domain.ErrForbidden
		}
		if err := requireStatus(t, domain.TradeStatusPendingPayment); err != nil {
			return t, err
		}
		if minutes <= 0 {
			return t, fmt.Errorf("extension must be positive: %w", domain.ErrPreconditionFailed)
		}
		total := t.ExtendedMinutes + minutes
		if total > domain.MaxExtensionMinutes {
			return t, fmt.Errorf("cumulative extension %dm exceeds %dm: %w",
				total, domain.MaxExtensionMinutes, domain.ErrPreconditionFailed)
		}
		if t.PaymentDeadline == nil {
			return t, fmt.Errorf("no active payment deadline: %w", domain.ErrPreconditionFailed)
		}

		deadline := t.PaymentDeadline.Add(time.Duration(minutes) * time.Minute)
		upd := domain.TradeUpdate{
			Status:          domain.TradeStatusPendingPayment,
			PaymentDeadline: &deadline,
			ExtendedMinutes: total,
		}
		if err := s.trades.Transition(ctx, t.ID, t.Status, upd); err != nil {
			return t, err
		}

		t.PaymentDeadline = &deadline
		t.ExtendedMinutes = total
		s.emit(ctx, domain.EventTradeExtended, t, actorID, map[string]any{"minutes": minutes})
		return t, nil
	})
}

// Appeal escalates a disputed trade to arbitration. Either party may appeal
// once payment could have changed hands; the active deadline is cleared so
// the scheduler cannot cancel a trade mid-dispute.
func (s *TradeService) Appeal(ctx context.Context, tradeID, actorID string) (domain.Trade, error) {
	return s.locked(ctx, tradeID, func(ctx context.Context, t domain.Trade) (domain.Trade, error) {
		if !t.Participant(actorID) {
			return t, domain.ErrForbidden
		}
		if err := requireStatus(t, domain.TradeStatusPendingPayment, domain.TradeStatusPaid); err != nil {
			return t, err
		}

		upd := domain.TradeUpdate{
			Status:          domain.TradeStatusInAppeal,
			ExtendedMinutes: t.ExtendedMinutes,
		}
		if err := s.trades.Transition(ctx, t.ID, t.Status, upd); err != nil {
			return t, err
		}

		t.Status = upd.Status
		t.VerificationDeadline = nil
		t.PaymentDeadline = nil
		s.emit(ctx, domain.EventTradeAppealed, t, actorID, nil)
		return t, nil
	})
}

// Resolve applies an arbiter's decision to an appealed trade: RELEASE
// settles escrow to the buyer, REFUND returns escrow and inventory.
func (s *TradeService) Resolve(ctx context.Context, tradeID, arbiterID string, outcome domain.AppealOutcome) (domain.Trade, error) {
	return s.locked(ctx, tradeID, func(ctx context.Context, t domain.Trade) (domain.Trade, error) {
		if err := requireStatus(t, domain.TradeStatusInAppeal); err != nil {
			return t, err
		}

		now := s.clock.Now()
		switch outcome {
		case domain.AppealOutcomeRelease:
			if err := s.settle(ctx, t, t.Status, now); err != nil {
				return t, err
			}
			t.Status = domain.TradeStatusCompleted
		case domain.AppealOutcomeRefund:
			if err := s.refund(ctx, t, t.Status, now); err != nil {
				return t, err
			}
			t.Status = domain.TradeStatusCancelled
		default:
			return t, fmt.Errorf("unknown outcome %q: %w", outcome, domain.ErrPreconditionFailed)
		}

		t.VerificationDeadline = nil
		t.PaymentDeadline = nil
		t.ResolvedAt = &now
		s.emit(ctx, domain.EventTradeResolved, t, arbiterID, map[string]any{"outcome": string(outcome)})
		return t, nil
	})
}

// Expire cancels a trade whose active deadline passed. The scheduler is the
// only caller; a trade someone resolved first fails the conditional
// transition, so cancel and expire can never both apply.
func (s *TradeService) Expire(ctx context.Context, tradeID string) (domain.Trade, error) {
	return s.locked(ctx, tradeID, func(ctx context.Context, t domain.Trade) (domain.Trade, error) {
		if err := requireStatus(t, domain.TradeStatusWaitingVerification, domain.TradeStatusPendingPayment); err != nil {
			return t, err
		}

		now := s.clock.Now()
		deadline := t.VerificationDeadline
		if t.Status == domain.TradeStatusPendingPayment {
			deadline = t.PaymentDeadline
		}
		if deadline == nil || now.Before(*deadline) {
			return t, fmt.Errorf("deadline not passed: %w", domain.ErrPreconditionFailed)
		}

		if err := s.refund(ctx, t, t.Status, now); err != nil {
			return t, err
		}

		t.Status = domain.TradeStatusCancelled
		t.VerificationDeadline = nil
		t.PaymentDeadline = nil
		t.ResolvedAt = &now
		s.emit(ctx, domain.EventTradeCancelled, t, "", map[string]any{"reason": "expired"})
		return t, nil
	})
}

// settle moves the trade to COMPLETED and transfers escrow from the seller
// to the buyer in one transaction.
func (s *TradeService) settle(ctx context.Context, t domain.Trade, from domain.TradeStatus, now time.Time) error {
	amount := t.EscrowAmount()
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		upd := domain.TradeUpdate{
			Status:          domain.TradeStatusCompleted,
			ExtendedMinutes: t.ExtendedMinutes,
			ResolvedAt:      &now,
		}
		if err := s.trades.Transition(ctx, t.ID, from, upd); err != nil {
			return err
		}
		if err := s.users.Debit(ctx, t.SellerID(), amount); err != nil {
			return err
		}
		return s.users.Credit(ctx, t.BuyerID(), amount)
	})
}

// refund moves the trade to CANCELLED, returns escrow to the seller and
// puts the quantity back on the ad, all in one transaction.
func (s *TradeService) refund(ctx context.Context, t domain.Trade, from domain.TradeStatus, now time.Time) error {
	amount := t.EscrowAmount()
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		upd := domain.TradeUpdate{
			Status:          domain.TradeStatusCancelled,
			ExtendedMinutes: t.ExtendedMinutes,
			ResolvedAt:      &now,
		}
		if err := s.trades.Transition(ctx, t.ID, from, upd); err != nil {
			return err
		}
		if err := s.users.Release(ctx, t.SellerID(), amount); err != nil {
			return err
		}
		return s.ads.ReturnQuantity(ctx, t.AdID, t.Quantity)
	})
}

// locked runs fn under the trade's write lock with a fresh read of the
// trade, wrapping errors with the trade id.
func (s *TradeService) locked(
	ctx context.Context,
	tradeID string,
	fn func(ctx context.Context, t domain.Trade) (domain.Trade, error),
) (domain.Trade, error) {
	unlock, err := s.locks.Acquire(ctx, "trade:"+tradeID, s.cfg.LockTTL)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("trade_service: lock trade %q: %w", tradeID, err)
	}
	defer unlock()

	t, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("trade_service: trade %q: %w", tradeID, err)
	}

	out, err := fn(ctx, t)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("trade_service: trade %q: %w", tradeID, err)
	}
	return out, nil
}

// requireStatus maps a wrong-state call to TradeClosed for terminal trades
// and PreconditionFailed otherwise.
func requireStatus(t domain.Trade, allowed ...domain.TradeStatus) error {
	for _, st := range allowed {
		if t.Status == st {
			return nil
		}
	}
	if t.Status.Terminal() {
		return domain.ErrTradeClosed
	}
	return fmt.Errorf("status is %s: %w", t.Status, domain.ErrPreconditionFailed)
}

// emit publishes the lifecycle event and writes the matching audit row.
func (s *TradeService) emit(ctx context.Context, typ domain.EventType, t domain.Trade, actorID string, extra map[string]any) {
	publishEvent(ctx, s.bus, s.logger, domain.Event{
		Type:    typ,
		TradeID: t.ID,
		AdID:    t.AdID,
		ActorID: actorID,
		Status:  t.Status,
		At:      s.clock.Now(),
	})

	detail := map[string]any{
		"trade_id": t.ID,
		"status":   string(t.Status),
	}
	if actorID != "" {
		detail["actor_id"] = actorID
	}
	for k, v := range extra {
		detail[k] = v
	}
	auditLog(ctx, s.audit, s.logger, string(typ), detail)
}
