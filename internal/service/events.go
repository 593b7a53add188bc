package service

import (
	"context"

	"furniture-store/internal/model"

	"github.com/rs/zerolog"
)

// EventPublisher delivers domain events once the change behind them is committed.
type EventPublisher interface {
	Publish(ctx context.Context, event model.DomainEvent) error
}

// LogEventPublisher writes events to the request logger. Used when no broker is configured.
type LogEventPublisher struct{}

func (LogEventPublisher) Publish(ctx context.Context, event model.DomainEvent) error {
	zerolog.Ctx(ctx).Info().
		Str("event", string(event.Type)).
		Str("order_id", event.OrderID).
		Str("status", string(event.Status)).
		Msg("domain event")
	return nil
}

// publish never fails the calling operation; the change is already committed.
func publish(ctx context.Context, publisher EventPublisher, event model.DomainEvent) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, event); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).
			Str("event", string(event.Type)).
			Str("order_id", event.OrderID).
			Msg("failed to publish domain event")
	}
}
