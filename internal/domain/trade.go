package domain

import "time"

// TradeStatus tracks the trade lifecycle. COMPLETED and CANCELLED are
// terminal; a terminal trade has both deadlines cleared and is immutable.
type TradeStatus string

const (
	TradeStatusWaitingVerification TradeStatus = "WAITING_VERIFICATION"
	TradeStatusPendingPayment      TradeStatus = "PENDING_PAYMENT"
	TradeStatusPaid                TradeStatus = "PAID"
	TradeStatusInAppeal            TradeStatus = "IN_APPEAL"
	TradeStatusCompleted           TradeStatus = "COMPLETED"
	TradeStatusCancelled           TradeStatus = "CANCELLED"
)

// Terminal reports whether the status admits no further transitions.
func (s TradeStatus) Terminal() bool {
	return s == TradeStatusCompleted || s == TradeStatusCancelled
}

// AppealOutcome is the arbiter's decision on a disputed trade.
type AppealOutcome string

const (
	AppealOutcomeRelease AppealOutcome = "RELEASE" // settle to the buyer
	AppealOutcomeRefund  AppealOutcome = "REFUND"  // return escrow to the seller
)

// MaxExtensionMinutes bounds the cumulative merchant-granted payment window
// extension per trade.
const MaxExtensionMinutes = 60

// Trade is the authoritative record of one escrowed exchange. Quantity and
// UnitPrice are snapshotted from the ad at creation and never recalculated,
// even for floating-priced ads. At most one of VerificationDeadline and
// PaymentDeadline is active outside terminal and appeal states.
type Trade struct {
	ID                   string
	AdID                 string
	AdSide               AdSide
	MakerID              string
	TakerID              string
	Quantity             int64
	UnitPrice            int64
	Status               TradeStatus
	VerificationDeadline *time.Time
	PaymentDeadline      *time.Time
	ExtendedMinutes      int
	CreatedAt            time.Time
	ResolvedAt           *time.Time
}

// EscrowAmount is the fiat-equivalent notional held in the seller's reserved
// balance for the life of the trade.
func (t Trade) EscrowAmount() int64 {
	return Notional(t.Quantity, t.UnitPrice)
}

// BuyerID derives the buying party from the ad side: when the merchant
// sells, the taker buys; when the merchant buys, the maker buys.
func (t Trade) BuyerID() string {
	return BuyerOf(t.AdSide, t.MakerID, t.TakerID)
}

// SellerID derives the escrow-supplying party.
func (t Trade) SellerID() string {
	return SellerOf(t.AdSide, t.MakerID, t.TakerID)
}

// BuyerOf computes the buyer as a pure function of the ad side and the two
// participants, so read paths and the state machine cannot diverge.
func BuyerOf(side AdSide, makerID, takerID string) string {
	if side == AdSideSell {
		return takerID
	}
	return makerID
}

// SellerOf computes the seller as a pure function of the ad side and the two
// participants.
func SellerOf(side AdSide, makerID, takerID string) string {
	if side == AdSideSell {
		return makerID
	}
	return takerID
}

// Participant reports whether id is the maker or the taker.
func (t Trade) Participant(id string) bool {
	return id == t.MakerID || id == t.TakerID
}
