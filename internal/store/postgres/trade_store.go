package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vignex/escrow-engine/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL. All lifecycle
// writes go through Transition, a single conditional UPDATE keyed on the
// expected current status.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Create inserts a new trade record.
func (s *TradeStore) Create(ctx context.Context, t domain.Trade) error {
	const query = `
		INSERT INTO trades (
			id, ad_id, ad_side, maker_id, taker_id, quantity, unit_price,
			status, verification_deadline, payment_deadline,
			extended_minutes, created_at, resolved_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10,
			$11, $12, $13
		)`

	_, err := exec(ctx, s.pool, query,
		t.ID, t.AdID, string(t.AdSide), t.MakerID, t.TakerID, t.Quantity, t.UnitPrice,
		string(t.Status), t.VerificationDeadline, t.PaymentDeadline,
		t.ExtendedMinutes, t.CreatedAt, t.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create trade %s: %w", t.ID, err)
	}
	return nil
}

const tradeSelectCols = `id, ad_id, ad_side, maker_id, taker_id, quantity, unit_price,
	status, verification_deadline, payment_deadline,
	extended_minutes, created_at, resolved_at`

func scanTradeFromRow(scanner interface{ Scan(dest ...any) error }) (domain.Trade, error) {
	var t domain.Trade
	var side, status string

	err := scanner.Scan(
		&t.ID, &t.AdID, &side, &t.MakerID, &t.TakerID, &t.Quantity, &t.UnitPrice,
		&status, &t.VerificationDeadline, &t.PaymentDeadline,
		&t.ExtendedMinutes, &t.CreatedAt, &t.ResolvedAt,
	)
	if err != nil {
		return domain.Trade{}, err
	}

	t.AdSide = domain.AdSide(side)
	t.Status = domain.TradeStatus(status)
	return t, nil
}

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		t, err := scanTradeFromRow(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// GetByID retrieves a single trade by ID.
func (s *TradeStore) GetByID(ctx context.Context, id string) (domain.Trade, error) {
	row := queryRow(ctx, s.pool,
		`SELECT `+tradeSelectCols+` FROM trades WHERE id = $1`, id)

	t, err := scanTradeFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Trade{}, domain.ErrNotFound
		}
		return domain.Trade{}, fmt.Errorf("postgres: get trade %s: %w", id, err)
	}
	return t, nil
}

func (s *TradeStore) list(ctx context.Context, label, where string, opts domain.ListOpts, args ...any) ([]domain.Trade, error) {
	q := `SELECT ` + tradeSelectCols + ` FROM trades WHERE ` + where + ` ORDER BY created_at DESC`
	argIdx := len(args) + 1

	if opts.Limit > 0 {
		q += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		q += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := query(ctx, s.pool, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades %s: %w", label, err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades %s: %w", label, err)
	}
	return trades, nil
}

// ListByUser returns trades where the user is either party, newest first.
func (s *TradeStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Trade, error) {
	return s.list(ctx, "by user", "(maker_id = $1 OR taker_id = $1)", opts, userID)
}

// ListByAd returns all trades taken against an advertisement.
func (s *TradeStore) ListByAd(ctx context.Context, adID string, opts domain.ListOpts) ([]domain.Trade, error) {
	return s.list(ctx, "by ad", "ad_id = $1", opts, adID)
}

// ListByMakerStatus returns a merchant's trades in a given status, the
// pending-action feed for the merchant dashboard.
func (s *TradeStore) ListByMakerStatus(ctx context.Context, makerID string, status domain.TradeStatus, opts domain.ListOpts) ([]domain.Trade, error) {
	return s.list(ctx, "by maker status", "maker_id = $1 AND status = $2", opts, makerID, string(status))
}

// Transition moves the trade out of the expected status in one conditional
// UPDATE. When the row is no longer in from, zero rows match and the caller
// gets ErrPreconditionFailed (or ErrTradeClosed if the trade already
// reached a terminal state), so exactly one of two racing transitions wins.
func (s *TradeStore) Transition(ctx context.Context, id string, from domain.TradeStatus, upd domain.TradeUpdate) error {
	const query = `
		UPDATE trades
		SET status = $3,
		    verification_deadline = $4,
		    payment_deadline = $5,
		    extended_minutes = $6,
		    resolved_at = $7
		WHERE id = $1 AND status = $2`

	tag, err := exec(ctx, s.pool, query,
		id, string(from), string(upd.Status),
		upd.VerificationDeadline, upd.PaymentDeadline,
		upd.ExtendedMinutes, upd.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: transition trade %s %s->%s: %w", id, from, upd.Status, err)
	}
	if tag.RowsAffected() == 0 {
		t, err := s.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if t.Status.Terminal() {
			return domain.ErrTradeClosed
		}
		return domain.ErrPreconditionFailed
	}
	return nil
}

// ListExpired returns trades whose active deadline has passed, oldest
// deadline first. IN_APPEAL trades carry deadlines but are excluded; an
// appeal freezes the clock until an arbiter resolves it.
func (s *TradeStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Trade, error) {
	const q = `
		SELECT ` + tradeSelectCols + `
		FROM trades
		WHERE status IN ('WAITING_VERIFICATION', 'PENDING_PAYMENT')
		  AND COALESCE(verification_deadline, payment_deadline) <= $1
		ORDER BY COALESCE(verification_deadline, payment_deadline) ASC
		LIMIT $2`

	rows, err := query(ctx, s.pool, q, now, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list expired trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan expired trades: %w", err)
	}
	return trades, nil
}

// Compile-time interface check.
var _ domain.TradeStore = (*TradeStore)(nil)
