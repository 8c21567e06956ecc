package ledgerstream

import (
	"context"
	"io"
)

// Iterator is a lazy iterator over items of type T. Iteration ends when the
// underlying producer returns io.EOF; any other error stops iteration and is
// reported by Err.
type Iterator[T any] struct {
	nextFunc func(ctx context.Context) (T, error)
	current  T
	err      error
}

// NewIteratorFunc creates an Iterator from a function that produces the next
// item. The function should return (zero, io.EOF) when the iterator is
// finished, or (zero, err) on error.
func NewIteratorFunc[T any](nextFunc func(ctx context.Context) (T, error)) *Iterator[T] {
	return &Iterator[T]{nextFunc: nextFunc}
}

// NewSliceIterator creates an Iterator that yields the items of a slice in order.
func NewSliceIterator[T any](items []T) *Iterator[T] {
	index := 0
	return NewIteratorFunc(func(ctx context.Context) (T, error) {
		var zero T
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		if index >= len(items) {
			return zero, io.EOF
		}
		item := items[index]
		index++
		return item, nil
	})
}

// Next advances the iterator. Returns false if the iterator is done or an error occurred.
func (it *Iterator[T]) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	it.current, it.err = it.nextFunc(ctx)
	return it.err == nil
}

// Value returns the current item.
func (it *Iterator[T]) Value() T {
	return it.current
}

// Err returns the last error encountered during iteration. A clean end of
// iteration reports io.EOF.
func (it *Iterator[T]) Err() error {
	if it.err == io.EOF {
		return nil
	}
	return it.err
}

// All consumes the iterator and returns the remaining items in a slice.
func (it *Iterator[T]) All(ctx context.Context) ([]T, error) {
	var results []T
	for it.Next(ctx) {
		results = append(results, it.Value())
	}
	return results, it.Err()
}
