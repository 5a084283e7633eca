package services

import (
	"context"
	"log/slog"

	"github.com/dukex/parley/pkg/eventbus"
)

// publish sends event on the bus. A failed publish is logged and never fails the write that
// produced it.
func publish(ctx context.Context, logger *slog.Logger, publisher eventbus.EventPublisher, key string, event eventbus.Event) {
	if publisher == nil {
		return
	}

	err := publisher.Publish(ctx, key, event)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to publish event",
			"event_type", event.GetType(),
			"key", key,
			"error", err)
	}
}
