package domain

import "time"

// EventType names a trade or advertisement lifecycle event published on the
// signal bus. The set is closed; consumers switch on it rather than on free
// strings.
type EventType string

const (
	EventTradeCreated   EventType = "trade_created"
	EventTradeVerified  EventType = "trade_verified"
	EventTradePaid      EventType = "trade_paid"
	EventTradeReleased  EventType = "trade_released"
	EventTradeCancelled EventType = "trade_cancelled"
	EventTradeExtended  EventType = "trade_extended"
	EventTradeAppealed  EventType = "trade_appealed"
	EventTradeResolved  EventType = "trade_resolved"
	EventAdPosted       EventType = "ad_posted"
	EventAdExhausted    EventType = "ad_exhausted"
)

// EventChannel is the signal bus channel all lifecycle events go out on.
const EventChannel = "trades"

// Event is the payload pushed to websocket clients and to the chat/
// notification collaborators. Delivery is best effort; the engine never
// waits on it.
type Event struct {
	Type      EventType   `json:"type"`
	TradeID   string      `json:"trade_id,omitempty"`
	AdID      string      `json:"ad_id,omitempty"`
	ActorID   string      `json:"actor_id,omitempty"`
	Status    TradeStatus `json:"status,omitempty"`
	AutoReply string      `json:"auto_reply,omitempty"`
	At        time.Time   `json:"at"`
}
