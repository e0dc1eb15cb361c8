package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrAdNotOpen             = errors.New("advertisement not open")
	ErrForbidden             = errors.New("caller not permitted")
	ErrPreconditionFailed    = errors.New("precondition failed")
	ErrTradeClosed           = errors.New("trade already resolved")
	ErrInvalidQuantity       = errors.New("invalid quantity")
	ErrRateLimited           = errors.New("rate limited")
	ErrLockHeld              = errors.New("lock already held")

	// ErrLedgerCorrupt marks an escrow release that exceeds a user's reserved
	// balance. It indicates a bookkeeping bug, never a recoverable caller error.
	ErrLedgerCorrupt = errors.New("ledger invariant violation")
)
