package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// TxRunner executes fn inside a single storage transaction. Store methods
// called with the context passed to fn join that transaction, so a state
// transition and its balance/inventory side effects commit together or not
// at all.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// UserStore persists users and their balances. Reserve, Release and Settle
// are the only paths that mutate balances; each is a single atomic
// conditional update.
type UserStore interface {
	Create(ctx context.Context, u User) error
	GetByID(ctx context.Context, id string) (User, error)

	// Reserve moves amount from balance to reserved_balance, failing with
	// ErrInsufficientFunds when the available balance cannot cover it.
	Reserve(ctx context.Context, userID string, amount int64) error
	// Release moves amount back from reserved_balance to balance. A release
	// exceeding the reserved balance returns ErrLedgerCorrupt.
	Release(ctx context.Context, userID string, amount int64) error
	// Debit removes amount from reserved_balance (seller side of a
	// settlement); Credit adds amount to balance (buyer side).
	Debit(ctx context.Context, userID string, amount int64) error
	Credit(ctx context.Context, userID string, amount int64) error
}

// AdStore persists advertisements and owns the atomic inventory operations.
type AdStore interface {
	Create(ctx context.Context, ad Ad) error
	GetByID(ctx context.Context, id string) (Ad, error)
	ListOpen(ctx context.Context, side AdSide, opts ListOpts) ([]Ad, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Ad, error)

	// TakeQuantity atomically checks the ad is OPEN with at least qty
	// remaining, decrements, and flips the status to EXHAUSTED in the same
	// statement when the remainder hits zero. Returns ErrAdNotOpen or
	// ErrInsufficientInventory.
	TakeQuantity(ctx context.Context, adID string, qty int64) error
	// ReturnQuantity reverses a take on cancellation. An EXHAUSTED ad whose
	// owner never paused or deleted it reopens.
	ReturnQuantity(ctx context.Context, adID string, qty int64) error
	// SetStatus toggles between OPEN and PAUSED or soft-deletes. EXHAUSTED
	// ads cannot be reopened by the owner.
	SetStatus(ctx context.Context, adID string, status AdStatus) error
}

// TradeStore persists the append-mostly trade audit log. Only status,
// deadlines, extension minutes and resolved_at are mutable after creation.
type TradeStore interface {
	Create(ctx context.Context, t Trade) error
	GetByID(ctx context.Context, id string) (Trade, error)
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Trade, error)
	ListByAd(ctx context.Context, adID string, opts ListOpts) ([]Trade, error)
	ListByMakerStatus(ctx context.Context, makerID string, status TradeStatus, opts ListOpts) ([]Trade, error)

	// Transition conditionally moves the trade from its expected status,
	// writing the new status and deadline fields in one statement. It returns
	// ErrPreconditionFailed when the trade is no longer in from, so two
	// racing transitions cannot both succeed.
	Transition(ctx context.Context, id string, from TradeStatus, upd TradeUpdate) error

	// ListExpired returns non-terminal trades whose active deadline passed,
	// for the expiry scheduler to resolve. Appealed trades never match.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]Trade, error)
}

// TradeUpdate is the mutable slice of a trade written by Transition. Nil
// deadline pointers clear the corresponding column.
type TradeUpdate struct {
	Status               TradeStatus
	VerificationDeadline *time.Time
	PaymentDeadline      *time.Time
	ExtendedMinutes      int
	ResolvedAt           *time.Time
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log of every transition.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
