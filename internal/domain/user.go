package domain

import "time"

// User holds the balances the engine is allowed to move. Balance and
// ReservedBalance are fixed-point micro-units (value * 1e6) and never go
// negative; funds in ReservedBalance are escrowed in open trades.
type User struct {
	ID              string
	DisplayName     string
	Balance         int64
	ReservedBalance int64
	CreatedAt       time.Time
}

// AccountAgeDays returns the whole days since the user registered.
func (u User) AccountAgeDays(now time.Time) int {
	return int(now.Sub(u.CreatedAt).Hours() / 24)
}
