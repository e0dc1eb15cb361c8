package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/vignex/escrow-engine/internal/domain"
)

// Worker subscribes to the trades channel and turns lifecycle events into
// operator notifications. It runs alongside the WebSocket hub as an
// independent bus consumer.
type Worker struct {
	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewWorker creates a Worker.
func NewWorker(bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *Worker {
	return &Worker{
		bus:      bus,
		notifier: notifier,
		logger:   logger,
	}
}

// Run consumes events until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	events, err := w.bus.Subscribe(ctx, domain.EventChannel)
	if err != nil {
		return fmt.Errorf("notify: subscribe: %w", err)
	}
	w.logger.Info("notify worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-events:
			if !ok {
				return nil
			}
			w.handle(ctx, payload)
		}
	}
}

func (w *Worker) handle(ctx context.Context, payload []byte) {
	var evt domain.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		w.logger.Warn("notify: bad event payload", slog.String("error", err.Error()))
		return
	}

	title, message := format(evt)
	if err := w.notifier.Notify(ctx, string(evt.Type), title, message); err != nil {
		w.logger.Warn("notify: dispatch failed",
			slog.String("type", string(evt.Type)),
			slog.String("error", err.Error()),
		)
	}
}

// format renders an event as a short operator message.
func format(evt domain.Event) (title, message string) {
	switch evt.Type {
	case domain.EventTradeCreated:
		title = "Trade created"
	case domain.EventTradeVerified:
		title = "Trade verified"
	case domain.EventTradePaid:
		title = "Trade marked paid"
	case domain.EventTradeReleased:
		title = "Trade completed"
	case domain.EventTradeCancelled:
		title = "Trade cancelled"
	case domain.EventTradeExtended:
		title = "Payment window extended"
	case domain.EventTradeAppealed:
		title = "Trade appealed"
	case domain.EventTradeResolved:
		title = "Appeal resolved"
	case domain.EventAdPosted:
		title = "Ad posted"
	case domain.EventAdExhausted:
		title = "Ad exhausted"
	default:
		title = string(evt.Type)
	}

	switch {
	case evt.TradeID != "":
		message = fmt.Sprintf("trade %s (status %s)", evt.TradeID, evt.Status)
	case evt.AdID != "":
		message = fmt.Sprintf("ad %s", evt.AdID)
	default:
		message = string(evt.Type)
	}
	return title, message
}
