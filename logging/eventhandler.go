package logging

import (
	"context"
	"log/slog"

	cqrs "github.com/kokimiza/ledgerstream"
)

func WithLoggingMiddleware(logger *slog.Logger, next cqrs.EventHandler) cqrs.EventHandler {
	return cqrs.NewEventHandlerFunc(func(ctx context.Context, event cqrs.Event) error {
		l := logger.With(
			"aggregate-id", cqrs.AggregateIDFromContext(ctx),
			"event-type", cqrs.EventTypeFromContext(ctx),
			"version", cqrs.VersionFromContext(ctx),
			"sequence", cqrs.SequenceFromContext(ctx),
		)

		l.DebugContext(ctx, "event processing started")

		err := next.Handle(ctx, event)

		if err != nil {
			l.ErrorContext(ctx, "error processing event", "error", err)
		} else {
			l.DebugContext(ctx, "event processed successfully")
		}

		return err
	})
}
