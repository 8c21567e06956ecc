package fixtures

import (
	"context"
	"sync"

	es "github.com/kokimiza/ledgerstream"
)

// HubSpy is a configurable mock NotificationHub for testing.
// It tracks subscriptions and published events and allows injecting failures.
type HubSpy struct {
	mu sync.Mutex

	// Function overrides
	SubscribeFn func(ctx context.Context, name string, sub es.Subscriber, options ...es.SubscriberOption) error
	PublishFn   func(ctx context.Context, event *es.StoredEvent)

	// Call tracking
	SubscribeCalls int
	PublishCalls   int
	CloseCalls     int

	// Captured state
	Subscriptions []Subscription
	Published     []*es.StoredEvent

	// Error injection
	subscribeErr error
	errChan      chan error
}

// Subscription captures details of a Subscribe call.
type Subscription struct {
	Name       string
	Subscriber es.Subscriber
}

// NewHubSpy creates a new HubSpy.
func NewHubSpy() *HubSpy {
	return &HubSpy{
		errChan: make(chan error, 10),
	}
}

// FailOnSubscribe configures the hub to return an error on Subscribe.
func (h *HubSpy) FailOnSubscribe(err error) *HubSpy {
	h.subscribeErr = err
	return h
}

// Subscribe implements NotificationHub.Subscribe.
func (h *HubSpy) Subscribe(ctx context.Context, name string, sub es.Subscriber, options ...es.SubscriberOption) error {
	h.mu.Lock()
	h.SubscribeCalls++
	h.Subscriptions = append(h.Subscriptions, Subscription{Name: name, Subscriber: sub})
	h.mu.Unlock()

	if h.SubscribeFn != nil {
		return h.SubscribeFn(ctx, name, sub, options...)
	}
	return h.subscribeErr
}

// Publish implements NotificationHub.Publish. By default it delivers the
// event synchronously to every captured subscriber, which keeps tests
// deterministic.
func (h *HubSpy) Publish(ctx context.Context, event *es.StoredEvent) {
	h.mu.Lock()
	h.PublishCalls++
	h.Published = append(h.Published, event)
	subs := append([]Subscription(nil), h.Subscriptions...)
	h.mu.Unlock()

	if h.PublishFn != nil {
		h.PublishFn(ctx, event)
		return
	}

	for _, s := range subs {
		if err := s.Subscriber.HandleEvent(es.WithStoredEvent(ctx, event), event); err != nil {
			select {
			case h.errChan <- err:
			default:
			}
		}
	}
}

// Errors implements NotificationHub.Errors.
func (h *HubSpy) Errors() <-chan error {
	return h.errChan
}

// Close implements NotificationHub.Close.
func (h *HubSpy) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.CloseCalls++
	return nil
}
