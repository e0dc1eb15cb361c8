package domain

import "time"

// AdSide indicates whether the merchant is buying or selling the asset.
type AdSide string

const (
	AdSideBuy  AdSide = "BUY"
	AdSideSell AdSide = "SELL"
)

// PriceMode selects between a fixed unit price and a floating margin applied
// to a reference price.
type PriceMode string

const (
	PriceModeFixed    PriceMode = "FIXED"
	PriceModeFloating PriceMode = "FLOATING"
)

// AdStatus tracks the advertisement lifecycle. EXHAUSTED is entered
// automatically when the remaining quantity reaches zero; DELETED is a soft
// state, the row is retained while trades reference it.
type AdStatus string

const (
	AdStatusOpen      AdStatus = "OPEN"
	AdStatusPaused    AdStatus = "PAUSED"
	AdStatusExhausted AdStatus = "EXHAUSTED"
	AdStatusDeleted   AdStatus = "DELETED"
)

// Ad is a merchant advertisement. Quantities are asset micro-units; prices
// are fiat micro-units per whole asset unit. RemainingQuantity is mutated
// only by the atomic take/return inventory operations.
type Ad struct {
	ID                string
	OwnerID           string
	Side              AdSide
	Asset             string
	Fiat              string
	PriceMode         PriceMode
	FixedPrice        int64 // set when PriceMode is FIXED
	MarginBps         int64 // basis points over reference price when FLOATING
	InitialQuantity   int64
	RemainingQuantity int64
	MinOrderValue     int64 // fiat micro-units
	MaxOrderValue     int64 // fiat micro-units
	PaymentMethods    []string
	PaymentWindow     time.Duration
	VerificationWin   time.Duration
	Status            AdStatus
	Terms             string
	AutoReply         string
	MinAccountAgeDays int
	CreatedAt         time.Time
}

// UnitPrice resolves the ad's unit price against a reference price. Fixed
// ads ignore the reference; floating ads apply the margin once, at trade
// creation, and the result is snapshotted onto the trade.
func (a Ad) UnitPrice(referencePrice int64) int64 {
	if a.PriceMode == PriceModeFixed {
		return a.FixedPrice
	}
	return referencePrice * a.MarginBps / 10000
}

// Notional converts an asset quantity at a unit price into a fiat amount.
// Both inputs are fixed-point micro-units.
func Notional(qty, unitPrice int64) int64 {
	return qty * unitPrice / 1e6
}
