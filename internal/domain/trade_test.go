package domain

import (
	"testing"
	"time"
)

func TestNotional(t *testing.T) {
	tests := []struct {
		name      string
		qty       int64
		unitPrice int64
		want      int64
	}{
		{"whole units", 50_000_000, 2_000_000, 100_000_000},
		{"fractional quantity", 1_500_000, 90_000_000, 135_000_000},
		{"truncates toward zero", 1, 1, 0},
		{"zero quantity", 0, 2_000_000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Notional(tt.qty, tt.unitPrice); got != tt.want {
				t.Errorf("Notional(%d, %d) = %d, want %d", tt.qty, tt.unitPrice, got, tt.want)
			}
		})
	}
}

func TestAdUnitPrice(t *testing.T) {
	fixed := Ad{PriceMode: PriceModeFixed, FixedPrice: 92_000_000, MarginBps: 10_500}
	if got := fixed.UnitPrice(100_000_000); got != 92_000_000 {
		t.Errorf("fixed ad UnitPrice = %d, want the fixed price", got)
	}

	floating := Ad{PriceMode: PriceModeFloating, MarginBps: 10_200}
	if got := floating.UnitPrice(100_000_000); got != 102_000_000 {
		t.Errorf("floating ad UnitPrice = %d, want 102000000", got)
	}
	discount := Ad{PriceMode: PriceModeFloating, MarginBps: 9_900}
	if got := discount.UnitPrice(100_000_000); got != 99_000_000 {
		t.Errorf("below-market floating UnitPrice = %d, want 99000000", got)
	}
}

func TestBuyerSellerBySide(t *testing.T) {
	tests := []struct {
		side       AdSide
		wantBuyer  string
		wantSeller string
	}{
		{AdSideSell, "taker", "maker"},
		{AdSideBuy, "maker", "taker"},
	}
	for _, tt := range tests {
		t.Run(string(tt.side), func(t *testing.T) {
			tr := Trade{AdSide: tt.side, MakerID: "maker", TakerID: "taker"}
			if got := tr.BuyerID(); got != tt.wantBuyer {
				t.Errorf("BuyerID() = %q, want %q", got, tt.wantBuyer)
			}
			if got := tr.SellerID(); got != tt.wantSeller {
				t.Errorf("SellerID() = %q, want %q", got, tt.wantSeller)
			}
			if got := BuyerOf(tt.side, "maker", "taker"); got != tt.wantBuyer {
				t.Errorf("BuyerOf = %q, want %q", got, tt.wantBuyer)
			}
			if got := SellerOf(tt.side, "maker", "taker"); got != tt.wantSeller {
				t.Errorf("SellerOf = %q, want %q", got, tt.wantSeller)
			}
		})
	}
}

func TestTradeStatusTerminal(t *testing.T) {
	terminal := map[TradeStatus]bool{
		TradeStatusWaitingVerification: false,
		TradeStatusPendingPayment:      false,
		TradeStatusPaid:                false,
		TradeStatusInAppeal:            false,
		TradeStatusCompleted:           true,
		TradeStatusCancelled:           true,
	}
	for status, want := range terminal {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}

func TestTradeParticipant(t *testing.T) {
	tr := Trade{MakerID: "maker", TakerID: "taker"}
	if !tr.Participant("maker") || !tr.Participant("taker") {
		t.Error("maker and taker must both be participants")
	}
	if tr.Participant("arbiter") {
		t.Error("a third party must not be a participant")
	}
}

func TestEscrowAmount(t *testing.T) {
	tr := Trade{Quantity: 25_000_000, UnitPrice: 4_000_000}
	if got := tr.EscrowAmount(); got != 100_000_000 {
		t.Errorf("EscrowAmount() = %d, want 100000000", got)
	}
}

func TestAccountAgeDays(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	u := User{CreatedAt: now.AddDate(0, 0, -30)}
	if got := u.AccountAgeDays(now); got != 30 {
		t.Errorf("AccountAgeDays = %d, want 30", got)
	}
	fresh := User{CreatedAt: now.Add(-6 * time.Hour)}
	if got := fresh.AccountAgeDays(now); got != 0 {
		t.Errorf("AccountAgeDays for a six hour old account = %d, want 0", got)
	}
}
