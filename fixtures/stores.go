package fixtures

import (
	"context"
	"fmt"
	"sync"

	es "github.com/kokimiza/ledgerstream"
)

// ProjectionStoreSpy is a configurable in-memory ProjectionStore for testing.
// It tracks calls, serves values from a map and allows injecting failures.
type ProjectionStoreSpy struct {
	mu sync.Mutex

	// Function overrides
	GetFn         func(ctx context.Context, key string) ([]byte, error)
	UpdateBatchFn func(ctx context.Context, name string, version uint32, entries []es.ProjectionEntry, sequence uint64) error

	// Call tracking
	GetCalls         int
	UpdateCalls      int
	UpdateBatchCalls int
	DeleteCalls      int

	// State
	values      map[string][]byte
	checkpoints map[string]uint64

	// Error injection
	getErr        error
	updateErr     error
	updateNameErr map[string]error
}

// NewProjectionStoreSpy creates an empty spy store.
func NewProjectionStoreSpy() *ProjectionStoreSpy {
	return &ProjectionStoreSpy{
		values:      make(map[string][]byte),
		checkpoints: make(map[string]uint64),
	}
}

// WithValue pre-populates a key.
func (s *ProjectionStoreSpy) WithValue(key string, value []byte) *ProjectionStoreSpy {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return s
}

// FailOnGet configures Get to return an error.
func (s *ProjectionStoreSpy) FailOnGet(err error) *ProjectionStoreSpy {
	s.getErr = err
	return s
}

// FailOnUpdate configures Update and UpdateBatch to return an error.
func (s *ProjectionStoreSpy) FailOnUpdate(err error) *ProjectionStoreSpy {
	s.updateErr = err
	return s
}

// FailNextUpdateFor makes the next UpdateBatch for the named projection fail
// once with err; later calls for that name succeed again.
func (s *ProjectionStoreSpy) FailNextUpdateFor(name string, err error) *ProjectionStoreSpy {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateNameErr == nil {
		s.updateNameErr = make(map[string]error)
	}
	s.updateNameErr[name] = err
	return s
}

// Get implements ProjectionStore.Get.
func (s *ProjectionStoreSpy) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	s.GetCalls++
	s.mu.Unlock()

	if s.GetFn != nil {
		return s.GetFn(ctx, key)
	}
	if s.getErr != nil {
		return nil, s.getErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	if !ok {
		return nil, fmt.Errorf("key %q: %w", key, es.ErrKeyNotFound)
	}
	return append([]byte(nil), value...), nil
}

// Update implements ProjectionStore.Update.
func (s *ProjectionStoreSpy) Update(ctx context.Context, key string, value []byte, sequence uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpdateCalls++
	if s.updateErr != nil {
		return s.updateErr
	}
	s.values[key] = append([]byte(nil), value...)
	return nil
}

// UpdateBatch implements ProjectionStore.UpdateBatch.
func (s *ProjectionStoreSpy) UpdateBatch(ctx context.Context, name string, version uint32, entries []es.ProjectionEntry, sequence uint64) error {
	s.mu.Lock()
	s.UpdateBatchCalls++
	s.mu.Unlock()

	if s.UpdateBatchFn != nil {
		return s.UpdateBatchFn(ctx, name, version, entries, sequence)
	}
	if s.updateErr != nil {
		return s.updateErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.updateNameErr[name]; ok {
		delete(s.updateNameErr, name)
		return err
	}
	for _, entry := range entries {
		s.values[entry.Key] = append([]byte(nil), entry.Value...)
	}
	key := fmt.Sprintf("%s@v%d", name, version)
	if s.checkpoints[key] < sequence {
		s.checkpoints[key] = sequence
	}
	return nil
}

// Delete implements ProjectionStore.Delete.
func (s *ProjectionStoreSpy) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DeleteCalls++
	delete(s.values, key)
	return nil
}

// Position implements ProjectionStore.Position.
func (s *ProjectionStoreSpy) Position(ctx context.Context, name string, version uint32) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpoints[fmt.Sprintf("%s@v%d", name, version)], nil
}

// Close implements ProjectionStore.Close.
func (s *ProjectionStoreSpy) Close() error { return nil }

// Keys returns all stored keys, for assertions.
func (s *ProjectionStoreSpy) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.values))
	for key := range s.values {
		keys = append(keys, key)
	}
	return keys
}
