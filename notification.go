package ledgerstream

import "context"

// SubscriberConfig holds per-subscriber settings applied at Subscribe time.
type SubscriberConfig struct {
	// BufferSize overrides the hub's default channel capacity for this subscriber.
	BufferSize int
}

// SubscriberOption configures a single subscription.
type SubscriberOption func(cfg *SubscriberConfig)

// WithBufferSize sets the subscriber's channel capacity.
func WithBufferSize(n int) SubscriberOption {
	return func(cfg *SubscriberConfig) {
		cfg.BufferSize = n
	}
}

// Subscriber consumes committed events delivered by a NotificationHub.
type Subscriber interface {
	// HandleEvent processes one committed event. Errors are reported on the
	// hub's error channel and never affect the already-committed append.
	HandleEvent(ctx context.Context, event *StoredEvent) error
}

// SubscriberFunc adapts a plain function to the Subscriber interface.
type SubscriberFunc func(ctx context.Context, event *StoredEvent) error

func (f SubscriberFunc) HandleEvent(ctx context.Context, event *StoredEvent) error {
	return f(ctx, event)
}

// NotificationHub fans committed events out to registered subscribers after a
// successful append. Each subscriber owns a bounded channel drained by its own
// worker, so a slow subscriber exerts backpressure on Publish instead of
// silently dropping events.
//
// Delivery order is not guaranteed to match sequence order under concurrent
// appends; subscribers must rely on checkpoints, not arrival order, to
// determine replay state.
type NotificationHub interface {
	// Subscribe registers a named subscriber. Returns an error if the name is
	// already taken or the hub is closed. The subscription is removed when
	// ctx is cancelled.
	Subscribe(ctx context.Context, name string, sub Subscriber, options ...SubscriberOption) error

	// Publish delivers one committed event to every subscriber. It blocks
	// while a subscriber's channel is full, until ctx is done or the hub
	// closes. Handler failures are swallowed into the error channel.
	Publish(ctx context.Context, event *StoredEvent)

	// Errors returns a channel carrying asynchronous handler errors.
	Errors() <-chan error

	// Close stops accepting events and waits for all subscriber workers to
	// drain their channels before returning.
	Close() error
}
