// Package logging provides slog-based middlewares for subscribers, event
// handlers and query handlers, plus a drainer for the asynchronous error
// channels exposed by the hub and the projection builder.
package logging

import (
	"context"
	"log/slog"

	cqrs "github.com/kokimiza/ledgerstream"
)

// WithSubscriberLogging wraps a hub subscriber so every delivered event is
// logged with its identifying fields.
func WithSubscriberLogging(logger *slog.Logger, name string, next cqrs.Subscriber) cqrs.Subscriber {
	return cqrs.SubscriberFunc(func(ctx context.Context, event *cqrs.StoredEvent) error {
		l := logger.With(
			"subscriber", name,
			"aggregate-id", event.AggregateID,
			"event-type", event.EventType,
			"version", event.Version,
			"sequence", event.GlobalSequence,
		)

		l.DebugContext(ctx, "event received")

		err := next.HandleEvent(ctx, event)

		if err != nil {
			l.ErrorContext(ctx, "error handling event", "error", err)
		} else {
			l.DebugContext(ctx, "event handled")
		}

		return err
	})
}

// LogErrors drains an asynchronous error channel into the logger until the
// channel closes or ctx is done. Run it in its own goroutine:
//
//	go logging.LogErrors(ctx, logger, hub.Errors())
func LogErrors(ctx context.Context, logger *slog.Logger, errs <-chan error) {
	for {
		select {
		case err, ok := <-errs:
			if !ok {
				return
			}
			logger.ErrorContext(ctx, "asynchronous failure", "error", err)
		case <-ctx.Done():
			return
		}
	}
}
