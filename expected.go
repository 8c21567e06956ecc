package ledgerstream

// ExpectedVersion expresses the optimistic-concurrency requirement an append
// makes about the aggregate's latest known version. It is evaluated at append
// time only and is not stored.
type ExpectedVersion interface {
	expectedVersion()
}

// Any appends without checking the aggregate's current version.
type Any struct{}

func (Any) expectedVersion() {}

// Exact requires the aggregate's latest version to equal the given value.
// A mismatch fails the append with a ConcurrencyConflictError and performs
// no write.
type Exact uint64

func (Exact) expectedVersion() {}
