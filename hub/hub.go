// Package hub provides the in-process notification hub that fans committed
// events out to subscribers over bounded channels.
package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	es "github.com/kokimiza/ledgerstream"
)

type subscriber struct {
	name    string
	handler es.Subscriber
	events  chan *es.StoredEvent
	cancel  context.CancelFunc
}

type notificationHub struct {
	mu         sync.RWMutex
	subs       map[string]*subscriber
	closed     bool
	errs       chan error
	wg         sync.WaitGroup
	bufferSize int
}

// New constructs a hub with the given default subscriber buffer size.
func New(bufferSize int) es.NotificationHub {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &notificationHub{
		subs:       make(map[string]*subscriber),
		errs:       make(chan error, 64),
		bufferSize: bufferSize,
	}
}

// Subscribe registers a named handler with its own delivery channel and worker.
func (h *notificationHub) Subscribe(ctx context.Context, name string, handler es.Subscriber, options ...es.SubscriberOption) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	cfg := &es.SubscriberConfig{BufferSize: h.bufferSize}
	for _, opt := range options {
		opt(cfg)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return es.ErrHubClosed
	}

	if _, exists := h.subs[name]; exists {
		return fmt.Errorf("subscriber with name %q already registered", name)
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	s := &subscriber{
		name:    name,
		handler: handler,
		events:  make(chan *es.StoredEvent, cfg.BufferSize),
		cancel:  cancel,
	}

	h.subs[name] = s

	h.wg.Add(1)
	go h.runSubscriber(workerCtx, s)

	// Automatically remove when the caller's ctx finishes. Also watch the
	// worker context so the goroutine is released on hub shutdown even for
	// background-context subscriptions.
	go func() {
		select {
		case <-ctx.Done():
			h.removeSubscriber(name)
		case <-workerCtx.Done():
		}
	}()

	return nil
}

func (h *notificationHub) Errors() <-chan error {
	return h.errs
}

// Publish delivers the event to every subscriber channel. A full channel
// blocks the caller until the subscriber drains or ctx is done; the committed
// append is never failed on account of delivery.
func (h *notificationHub) Publish(ctx context.Context, event *es.StoredEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}

	for _, s := range h.subs {
		select {
		case s.events <- event:
		case <-ctx.Done():
			h.reportError(fmt.Errorf("subscriber %q: delivery abandoned for sequence %d: %w",
				s.name, event.GlobalSequence, ctx.Err()))
		}
	}
}

// Close shuts down the hub and waits for all workers to drain their channels.
func (h *notificationHub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true

	cancels := make([]context.CancelFunc, 0, len(h.subs))
	for name, s := range h.subs {
		close(s.events)
		cancels = append(cancels, s.cancel)
		delete(h.subs, name)
	}
	h.mu.Unlock()

	// Wait until all workers finish their queued events, then release the
	// worker contexts and their watcher goroutines.
	h.wg.Wait()
	for _, cancel := range cancels {
		cancel()
	}

	close(h.errs)

	return nil
}

// runSubscriber processes events for a single handler. The channel close on
// hub shutdown lets queued events drain before the worker exits.
func (h *notificationHub) runSubscriber(ctx context.Context, s *subscriber) {
	defer h.wg.Done()

	for event := range s.events {
		select {
		case <-ctx.Done():
			return
		default:
		}

		eventCtx := es.WithStoredEvent(ctx, event)
		if err := s.handler.HandleEvent(eventCtx, event); err != nil {
			h.reportError(fmt.Errorf("subscriber %q: sequence %d: %w", s.name, event.GlobalSequence, err))
		}
	}
}

func (h *notificationHub) removeSubscriber(name string) {
	h.mu.Lock()
	s, ok := h.subs[name]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.subs, name)
	h.mu.Unlock()

	s.cancel()
	close(s.events)
}

func (h *notificationHub) reportError(err error) {
	select {
	case h.errs <- err:
	default:
		// Drop error if channel full
	}
}
