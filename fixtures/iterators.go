package fixtures

import (
	"context"
	"io"

	es "github.com/kokimiza/ledgerstream"
)

// EmptyIterator returns an iterator that yields no items.
func EmptyIterator() *es.Iterator[*es.StoredEvent] {
	return es.NewIteratorFunc(func(ctx context.Context) (*es.StoredEvent, error) {
		return nil, io.EOF
	})
}

// FailingIterator returns an iterator that fails with the given error.
func FailingIterator(err error) *es.Iterator[*es.StoredEvent] {
	return es.NewIteratorFunc(func(ctx context.Context) (*es.StoredEvent, error) {
		return nil, err
	})
}

// IteratorFromEvents creates an iterator over stored records built from events.
func IteratorFromEvents(events ...es.Event) *es.Iterator[*es.StoredEvent] {
	return es.NewSliceIterator(StoredEventsFromEvents(events...))
}

// FailAfterNIterator returns an iterator that yields n items, then fails.
func FailAfterNIterator(records []*es.StoredEvent, n int, err error) *es.Iterator[*es.StoredEvent] {
	idx := 0
	return es.NewIteratorFunc(func(ctx context.Context) (*es.StoredEvent, error) {
		if idx >= n {
			return nil, err
		}
		if idx >= len(records) {
			return nil, io.EOF
		}
		record := records[idx]
		idx++
		return record, nil
	})
}

// ContextAwareIterator returns an iterator that respects context cancellation.
func ContextAwareIterator(records []*es.StoredEvent) *es.Iterator[*es.StoredEvent] {
	idx := 0
	return es.NewIteratorFunc(func(ctx context.Context) (*es.StoredEvent, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if idx >= len(records) {
			return nil, io.EOF
		}
		record := records[idx]
		idx++
		return record, nil
	})
}
