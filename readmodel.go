package ledgerstream

// ReadModel represents a query-side data model derived from the event log.
// Concrete read models are plain structs materialized by the projection
// builder and served from the projection store.
type ReadModel interface {
}
