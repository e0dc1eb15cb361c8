// Package service implements the escrow engine's business operations on top
// of the domain store and cache interfaces.
package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/vignex/escrow-engine/internal/domain"
)

// publishEvent marshals and publishes a lifecycle event on the shared trades
// channel. Delivery is best effort; failures are logged and never propagate
// into the operation that produced the event.
func publishEvent(ctx context.Context, bus domain.SignalBus, logger *slog.Logger, evt domain.Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		logger.WarnContext(ctx, "event marshal failed",
			slog.String("type", string(evt.Type)),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := bus.Publish(ctx, domain.EventChannel, payload); err != nil {
		logger.WarnContext(ctx, "event publish failed",
			slog.String("type", string(evt.Type)),
			slog.String("trade_id", evt.TradeID),
			slog.String("error", err.Error()),
		)
	}
}

// auditLog appends an audit entry, logging rather than failing when the
// audit store is unavailable.
func auditLog(ctx context.Context, audit domain.AuditStore, logger *slog.Logger, event string, detail map[string]any) {
	if err := audit.Log(ctx, event, detail); err != nil {
		logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
