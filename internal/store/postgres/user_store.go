package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vignex/escrow-engine/internal/domain"
)

// UserStore implements domain.UserStore using PostgreSQL. Every balance
// mutation is a single conditional UPDATE so concurrent reservations on the
// same user cannot jointly overdraw.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new UserStore backed by the given connection pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// Create inserts a new user.
func (s *UserStore) Create(ctx context.Context, u domain.User) error {
	const query = `
		INSERT INTO users (id, display_name, balance, reserved_balance, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := exec(ctx, s.pool, query,
		u.ID, u.DisplayName, u.Balance, u.ReservedBalance, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create user %s: %w", u.ID, err)
	}
	return nil
}

// GetByID retrieves a single user by ID.
func (s *UserStore) GetByID(ctx context.Context, id string) (domain.User, error) {
	const query = `
		SELECT id, display_name, balance, reserved_balance, created_at
		FROM users WHERE id = $1`

	var u domain.User
	err := queryRow(ctx, s.pool, query, id).Scan(
		&u.ID, &u.DisplayName, &u.Balance, &u.ReservedBalance, &u.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("postgres: get user %s: %w", id, err)
	}
	return u, nil
}

// Reserve moves amount from balance to reserved_balance. The WHERE clause
// guards the available balance, so two concurrent reservations cannot both
// pass against funds that cover only one.
func (s *UserStore) Reserve(ctx context.Context, userID string, amount int64) error {
	const query = `
		UPDATE users
		SET balance = balance - $2, reserved_balance = reserved_balance + $2
		WHERE id = $1 AND balance >= $2`

	tag, err := exec(ctx, s.pool, query, userID, amount)
	if err != nil {
		return fmt.Errorf("postgres: reserve %d for user %s: %w", amount, userID, err)
	}
	if tag.RowsAffected() == 0 {
		if err := s.checkExists(ctx, userID); err != nil {
			return err
		}
		return domain.ErrInsufficientFunds
	}
	return nil
}

// Release moves amount back from reserved_balance to balance. A reserved
// balance below amount means the ledger bookkeeping is broken, not that the
// caller made a recoverable mistake.
func (s *UserStore) Release(ctx context.Context, userID string, amount int64) error {
	const query = `
		UPDATE users
		SET balance = balance + $2, reserved_balance = reserved_balance - $2
		WHERE id = $1 AND reserved_balance >= $2`

	tag, err := exec(ctx, s.pool, query, userID, amount)
	if err != nil {
		return fmt.Errorf("postgres: release %d for user %s: %w", amount, userID, err)
	}
	if tag.RowsAffected() == 0 {
		if err := s.checkExists(ctx, userID); err != nil {
			return err
		}
		return domain.ErrLedgerCorrupt
	}
	return nil
}

// Debit removes amount from reserved_balance on settlement.
func (s *UserStore) Debit(ctx context.Context, userID string, amount int64) error {
	const query = `
		UPDATE users
		SET reserved_balance = reserved_balance - $2
		WHERE id = $1 AND reserved_balance >= $2`

	tag, err := exec(ctx, s.pool, query, userID, amount)
	if err != nil {
		return fmt.Errorf("postgres: debit %d for user %s: %w", amount, userID, err)
	}
	if tag.RowsAffected() == 0 {
		if err := s.checkExists(ctx, userID); err != nil {
			return err
		}
		return domain.ErrLedgerCorrupt
	}
	return nil
}

// Credit adds amount to balance on settlement.
func (s *UserStore) Credit(ctx context.Context, userID string, amount int64) error {
	const query = `UPDATE users SET balance = balance + $2 WHERE id = $1`

	tag, err := exec(ctx, s.pool, query, userID, amount)
	if err != nil {
		return fmt.Errorf("postgres: credit %d for user %s: %w", amount, userID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *UserStore) checkExists(ctx context.Context, userID string) error {
	var exists bool
	err := queryRow(ctx, s.pool,
		"SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)", userID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("postgres: check user %s: %w", userID, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return nil
}

// Compile-time interface check.
var _ domain.UserStore = (*UserStore)(nil)
