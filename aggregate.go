package ledgerstream

// Aggregate is the interface implemented by write-side entities whose state
// changes are captured as events and appended to the log in one batch.
type Aggregate interface {

	// EntityID returns the unique identifier of the aggregate.
	EntityID() string

	// AggregateVersion returns the last committed version of the aggregate.
	AggregateVersion() uint64

	// SetAggregateVersion sets the version of the aggregate.
	SetAggregateVersion(version uint64)

	// UncommittedEvents returns all the events that are currently uncommitted.
	UncommittedEvents() []Event

	// ClearUncommittedEvents clears all uncommitted events from the aggregate.
	ClearUncommittedEvents()

	// Record adds a new event to the aggregate's uncommitted event list.
	Record(event Event)
}

// AggregateBase provides the bookkeeping half of an Aggregate; concrete
// aggregates embed it and add their own state transitions.
type AggregateBase struct {
	id     string
	v      uint64
	events []Event
}

// NewAggregateBase creates an aggregate base for the given identifier.
func NewAggregateBase(id string) *AggregateBase {
	return &AggregateBase{
		id:     id,
		events: make([]Event, 0),
	}
}

// EntityID implements the EntityID method of the Aggregate interface.
func (a *AggregateBase) EntityID() string {
	return a.id
}

// AggregateVersion implements the AggregateVersion method of the Aggregate interface.
func (a *AggregateBase) AggregateVersion() uint64 {
	return a.v
}

// SetAggregateVersion implements the SetAggregateVersion method of the Aggregate interface.
func (a *AggregateBase) SetAggregateVersion(v uint64) {
	a.v = v
}

// UncommittedEvents implements the UncommittedEvents method of the Aggregate interface.
func (a *AggregateBase) UncommittedEvents() []Event {
	return a.events
}

// ClearUncommittedEvents implements the ClearUncommittedEvents method of the Aggregate interface.
func (a *AggregateBase) ClearUncommittedEvents() {
	a.events = nil
}

// Record adds an event for later retrieval by UncommittedEvents.
func (a *AggregateBase) Record(event Event) {
	a.events = append(a.events, event)
}
