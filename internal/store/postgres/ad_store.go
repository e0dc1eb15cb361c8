package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vignex/escrow-engine/internal/domain"
)

// AdStore implements domain.AdStore using PostgreSQL. TakeQuantity and
// ReturnQuantity are single conditional UPDATEs; they are the only writers
// of remaining_quantity.
type AdStore struct {
	pool *pgxpool.Pool
}

// NewAdStore creates a new AdStore backed by the given connection pool.
func NewAdStore(pool *pgxpool.Pool) *AdStore {
	return &AdStore{pool: pool}
}

// Create inserts a new advertisement.
func (s *AdStore) Create(ctx context.Context, ad domain.Ad) error {
	const query = `
		INSERT INTO ads (
			id, owner_id, side, asset, fiat, price_mode, fixed_price, margin_bps,
			initial_quantity, remaining_quantity, min_order_value, max_order_value,
			payment_methods, payment_window_secs, verification_window_secs,
			status, terms, auto_reply, min_account_age_days, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12,
			$13, $14, $15,
			$16, $17, $18, $19, $20
		)`

	_, err := exec(ctx, s.pool, query,
		ad.ID, ad.OwnerID, string(ad.Side), ad.Asset, ad.Fiat,
		string(ad.PriceMode), ad.FixedPrice, ad.MarginBps,
		ad.InitialQuantity, ad.RemainingQuantity, ad.MinOrderValue, ad.MaxOrderValue,
		ad.PaymentMethods, int64(ad.PaymentWindow.Seconds()), int64(ad.VerificationWin.Seconds()),
		string(ad.Status), ad.Terms, ad.AutoReply, ad.MinAccountAgeDays, ad.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create ad %s: %w", ad.ID, err)
	}
	return nil
}

const adSelectCols = `id, owner_id, side, asset, fiat, price_mode, fixed_price, margin_bps,
	initial_quantity, remaining_quantity, min_order_value, max_order_value,
	payment_methods, payment_window_secs, verification_window_secs,
	status, terms, auto_reply, min_account_age_days, created_at`

func scanAdFromRow(scanner interface{ Scan(dest ...any) error }) (domain.Ad, error) {
	var a domain.Ad
	var side, priceMode, status string
	var payWinSecs, verWinSecs int64

	err := scanner.Scan(
		&a.ID, &a.OwnerID, &side, &a.Asset, &a.Fiat, &priceMode, &a.FixedPrice, &a.MarginBps,
		&a.InitialQuantity, &a.RemainingQuantity, &a.MinOrderValue, &a.MaxOrderValue,
		&a.PaymentMethods, &payWinSecs, &verWinSecs,
		&status, &a.Terms, &a.AutoReply, &a.MinAccountAgeDays, &a.CreatedAt,
	)
	if err != nil {
		return domain.Ad{}, err
	}

	a.Side = domain.AdSide(side)
	a.PriceMode = domain.PriceMode(priceMode)
	a.Status = domain.AdStatus(status)
	a.PaymentWindow = time.Duration(payWinSecs) * time.Second
	a.VerificationWin = time.Duration(verWinSecs) * time.Second
	return a, nil
}

func scanAdRows(rows pgx.Rows) ([]domain.Ad, error) {
	var ads []domain.Ad
	for rows.Next() {
		a, err := scanAdFromRow(rows)
		if err != nil {
			return nil, err
		}
		ads = append(ads, a)
	}
	return ads, rows.Err()
}

// GetByID retrieves a single ad by ID.
func (s *AdStore) GetByID(ctx context.Context, id string) (domain.Ad, error) {
	row := queryRow(ctx, s.pool,
		`SELECT `+adSelectCols+` FROM ads WHERE id = $1`, id)

	a, err := scanAdFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Ad{}, domain.ErrNotFound
		}
		return domain.Ad{}, fmt.Errorf("postgres: get ad %s: %w", id, err)
	}
	return a, nil
}

// ListOpen returns OPEN ads, optionally filtered by side, newest first.
func (s *AdStore) ListOpen(ctx context.Context, side domain.AdSide, opts domain.ListOpts) ([]domain.Ad, error) {
	q := `SELECT ` + adSelectCols + ` FROM ads WHERE status = 'OPEN'`
	args := []any{}
	argIdx := 1

	if side != "" {
		q += fmt.Sprintf(" AND side = $%d", argIdx)
		args = append(args, string(side))
		argIdx++
	}

	q += " ORDER BY created_at DESC"

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
		return nil, fmt.Errorf("postgres: list open ads: %w", err)
	}
	defer rows.Close()

	ads, err := scanAdRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open ads: %w", err)
	}
	return ads, nil
}

// ListByOwner returns all non-deleted ads posted by a merchant.
func (s *AdStore) ListByOwner(ctx context.Context, ownerID string) ([]domain.Ad, error) {
	rows, err := query(ctx, s.pool,
		`SELECT `+adSelectCols+` FROM ads
		 WHERE owner_id = $1 AND status <> 'DELETED'
		 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ads by owner: %w", err)
	}
	defer rows.Close()

	ads, err := scanAdRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan ads by owner: %w", err)
	}
	return ads, nil
}

// TakeQuantity atomically consumes qty from an OPEN ad. The status flip to
// EXHAUSTED happens in the same statement when the remainder reaches zero,
// so no second trade can slip in between decrement and flip.
func (s *AdStore) TakeQuantity(ctx context.Context, adID string, qty int64) error {
	const query = `
		UPDATE ads
		SET remaining_quantity = remaining_quantity - $2,
		    status = CASE WHEN remaining_quantity - $2 <= 0 THEN 'EXHAUSTED' ELSE status END
		WHERE id = $1 AND status = 'OPEN' AND remaining_quantity >= $2`

	tag, err := exec(ctx, s.pool, query, adID, qty)
	if err != nil {
		return fmt.Errorf("postgres: take %d from ad %s: %w", qty, adID, err)
	}
	if tag.RowsAffected() == 0 {
		return s.classifyTakeFailure(ctx, adID, qty)
	}
	return nil
}

// classifyTakeFailure distinguishes why the conditional take matched no row.
func (s *AdStore) classifyTakeFailure(ctx context.Context, adID string, qty int64) error {
	ad, err := s.GetByID(ctx, adID)
	if err != nil {
		return err
	}
	if ad.Status != domain.AdStatusOpen {
		return domain.ErrAdNotOpen
	}
	if ad.RemainingQuantity < qty {
		return domain.ErrInsufficientInventory
	}
	return domain.ErrPreconditionFailed
}

// ReturnQuantity restores qty on cancellation. An ad the inventory itself
// exhausted reopens; owner-paused or deleted ads keep their status.
func (s *AdStore) ReturnQuantity(ctx context.Context, adID string, qty int64) error {
	const query = `
		UPDATE ads
		SET remaining_quantity = remaining_quantity + $2,
		    status = CASE WHEN status = 'EXHAUSTED' THEN 'OPEN' ELSE status END
		WHERE id = $1 AND remaining_quantity + $2 <= initial_quantity`

	tag, err := exec(ctx, s.pool, query, adID, qty)
	if err != nil {
		return fmt.Errorf("postgres: return %d to ad %s: %w", qty, adID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetStatus writes the ad status. Any live ad can be deleted; pausing and
// reopening only apply to OPEN and PAUSED ads, never to EXHAUSTED or
// DELETED ones.
func (s *AdStore) SetStatus(ctx context.Context, adID string, status domain.AdStatus) error {
	const query = `
		UPDATE ads SET status = $2
		WHERE id = $1
		  AND status <> 'DELETED'
		  AND ($2 = 'DELETED' OR status IN ('OPEN', 'PAUSED'))`

	tag, err := exec(ctx, s.pool, query, adID, string(status))
	if err != nil {
		return fmt.Errorf("postgres: set ad %s status %s: %w", adID, status, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetByID(ctx, adID); err != nil {
			return err
		}
		return domain.ErrPreconditionFailed
	}
	return nil
}

// Compile-time interface check.
var _ domain.AdStore = (*AdStore)(nil)
