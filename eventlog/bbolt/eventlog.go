// Package bbolt provides the durable, bbolt-backed event log. Events are
// stored under 8-byte big-endian sequence keys so ascending key order equals
// commit order; the sequence counter lives in the same database and advances
// inside the same write transaction as the events it numbers.
package bbolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	es "github.com/kokimiza/ledgerstream"
	bolt "go.etcd.io/bbolt"
)

const (
	eventsBucket     = "events"
	aggregatesBucket = "aggregates"
	metaBucket       = "meta"

	nextSequenceKey = "next_sequence"

	// streamPageSize bounds how many records one read transaction scans
	// before the lazy iterators reopen a fresh snapshot.
	streamPageSize = 200
)

// MaxMapSize caps the pre-sized memory map at 10 GiB so naive size doubling
// cannot grow the region without bound.
const MaxMapSize = 10 << 30

var _ es.EventLog = (*Log)(nil)

// Log is a bbolt-backed EventLog. Writes serialize through bbolt's single
// write transaction; reads run in snapshot-isolated read transactions that
// never block writers.
type Log struct {
	db  *bolt.DB
	hub es.NotificationHub
}

// Open opens (creating if necessary) the event log at opts.Path. If hub is
// non-nil, every committed event is published to it after the transaction
// commits.
func Open(opts Options, hub es.NotificationHub) (*Log, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, fmt.Errorf("event log path is required")
	}

	cleanPath := filepath.Clean(opts.Path)
	db, err := bolt.Open(cleanPath, 0o600, &bolt.Options{
		Timeout:         opts.OpenTimeout,
		InitialMmapSize: int(mapSize(cleanPath, opts.InitialMapSize)),
		NoSync:          opts.Durability == MaxPerformance,
		NoFreelistSync:  opts.Durability != MaxDurability,
	})
	if err != nil {
		return nil, fmt.Errorf("open event log db: %w", err)
	}

	log := &Log{db: db, hub: hub}
	if err := log.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return log, nil
}

// mapSize pre-sizes the memory map from the configured floor and the existing
// file, leaving headroom of half the current size, capped at MaxMapSize.
func mapSize(path string, configured int64) int64 {
	size := configured
	if info, err := os.Stat(path); err == nil {
		if grown := info.Size() + info.Size()/2; grown > size {
			size = grown
		}
	}
	if size > MaxMapSize {
		size = MaxMapSize
	}
	return size
}

// Close closes the underlying database. It is safe to call more than once.
func (l *Log) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// AppendBatch appends all events in one write transaction. Serialization
// happens before the transaction opens, so a bad event aborts the append
// without touching the log or the sequence counter.
func (l *Log) AppendBatch(ctx context.Context, aggregateID string, events []es.Event) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, es.ErrEmptyBatch
	}
	if strings.TrimSpace(aggregateID) == "" {
		return 0, fmt.Errorf("aggregate id is required")
	}

	payloads := make([][]byte, len(events))
	for i, ev := range events {
		if ev.AggregateID() != aggregateID {
			return 0, fmt.Errorf("event %d has aggregate %q: %w", i, ev.AggregateID(), es.ErrMixedAggregates)
		}
		payload, err := es.EncodeEvent(ev)
		if err != nil {
			return 0, err
		}
		payloads[i] = payload
	}

	var lastSeq uint64
	stored := make([]*es.StoredEvent, 0, len(events))

	err := l.db.Update(func(tx *bolt.Tx) error {
		eventsB := tx.Bucket([]byte(eventsBucket))
		aggB := tx.Bucket([]byte(aggregatesBucket))
		metaB := tx.Bucket([]byte(metaBucket))

		next := nextSequence(metaB)
		version := latestVersion(aggB, aggregateID)
		now := time.Now().UTC()

		for i, ev := range events {
			version++
			record := &es.StoredEvent{
				EventID:        uuid.New(),
				GlobalSequence: next,
				EventType:      ev.EventType(),
				AggregateID:    aggregateID,
				Version:        version,
				Timestamp:      now,
				Payload:        payloads[i],
			}

			value, err := encodeRecord(record)
			if err != nil {
				return err
			}
			if err := eventsB.Put(sequenceKey(next), value); err != nil {
				return err
			}

			stored = append(stored, record)
			lastSeq = next
			next++
		}

		if err := aggB.Put([]byte(aggregateID), versionValue(version)); err != nil {
			return err
		}
		return metaB.Put([]byte(nextSequenceKey), sequenceKey(next))
	})
	if err != nil {
		return 0, storageErr(err)
	}

	l.publish(ctx, stored)
	return lastSeq, nil
}

// AppendEvent appends one pre-serialized event, enforcing the expected
// version against the aggregate's latest known version inside the write
// transaction. A conflict performs no write.
func (l *Log) AppendEvent(ctx context.Context, eventType, aggregateID string, version uint64, expected es.ExpectedVersion, payload []byte) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if strings.TrimSpace(eventType) == "" {
		return 0, fmt.Errorf("event type is required")
	}
	if strings.TrimSpace(aggregateID) == "" {
		return 0, fmt.Errorf("aggregate id is required")
	}

	var stored *es.StoredEvent

	err := l.db.Update(func(tx *bolt.Tx) error {
		eventsB := tx.Bucket([]byte(eventsBucket))
		aggB := tx.Bucket([]byte(aggregatesBucket))
		metaB := tx.Bucket([]byte(metaBucket))

		actual := latestVersion(aggB, aggregateID)
		switch exp := expected.(type) {
		case es.Any:
			// No concurrency check.
		case es.Exact:
			if actual != uint64(exp) {
				return &es.ConcurrencyConflictError{
					AggregateID: aggregateID,
					Expected:    uint64(exp),
					Actual:      actual,
				}
			}
		default:
			return fmt.Errorf("%w: %T", es.ErrInvalidExpectedVersion, expected)
		}

		seq := nextSequence(metaB)
		stored = &es.StoredEvent{
			EventID:        uuid.New(),
			GlobalSequence: seq,
			EventType:      eventType,
			AggregateID:    aggregateID,
			Version:        version,
			Timestamp:      time.Now().UTC(),
			Payload:        payload,
		}

		value, err := encodeRecord(stored)
		if err != nil {
			return err
		}
		if err := eventsB.Put(sequenceKey(seq), value); err != nil {
			return err
		}
		if err := aggB.Put([]byte(aggregateID), versionValue(version)); err != nil {
			return err
		}
		return metaB.Put([]byte(nextSequenceKey), sequenceKey(seq+1))
	})
	if err != nil {
		return 0, storageErr(err)
	}

	l.publish(ctx, []*es.StoredEvent{stored})
	return stored.GlobalSequence, nil
}

// StreamEvents returns a lazy iterator over all events with sequence >= from.
func (l *Log) StreamEvents(ctx context.Context, from uint64) (*es.Iterator[*es.StoredEvent], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.stream(from, ""), nil
}

// StreamAggregateEvents returns a lazy iterator over one aggregate's events
// with sequence >= from. Non-matching records are discarded while scanning.
func (l *Log) StreamAggregateEvents(ctx context.Context, aggregateID string, from uint64) (*es.Iterator[*es.StoredEvent], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(aggregateID) == "" {
		return nil, fmt.Errorf("aggregate id is required")
	}
	return l.stream(from, aggregateID), nil
}

// Events eagerly loads all events for one aggregate, sorted by sequence.
func (l *Log) Events(ctx context.Context, aggregateID string) ([]*es.StoredEvent, error) {
	iter, err := l.StreamAggregateEvents(ctx, aggregateID, 0)
	if err != nil {
		return nil, err
	}
	return iter.All(ctx)
}

// AllEvents eagerly loads every event with sequence >= from, sorted by sequence.
func (l *Log) AllEvents(ctx context.Context, from uint64) ([]*es.StoredEvent, error) {
	iter, err := l.StreamEvents(ctx, from)
	if err != nil {
		return nil, err
	}
	return iter.All(ctx)
}

// LatestSequence returns the most recently committed sequence, or 0 when the
// log is empty.
func (l *Log) LatestSequence(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var latest uint64
	err := l.db.View(func(tx *bolt.Tx) error {
		metaB := tx.Bucket([]byte(metaBucket))
		latest = nextSequence(metaB) - 1
		return nil
	})
	if err != nil {
		return 0, storageErr(err)
	}
	return latest, nil
}

// StorageMetrics reports the database's storage footprint.
func (l *Log) StorageMetrics(ctx context.Context) (es.StorageMetrics, error) {
	if err := ctx.Err(); err != nil {
		return es.StorageMetrics{}, err
	}

	var metrics es.StorageMetrics
	err := l.db.View(func(tx *bolt.Tx) error {
		info := l.db.Info()
		stats := l.db.Stats()

		metrics.MapSize = tx.Size()
		metrics.PageSize = info.PageSize
		free := int64(stats.FreePageN+stats.PendingPageN) * int64(info.PageSize)
		metrics.UsedSize = metrics.MapSize - free
		metrics.Entries = tx.Bucket([]byte(eventsBucket)).Stats().KeyN
		if metrics.MapSize > 0 {
			metrics.UsagePercent = float64(metrics.UsedSize) / float64(metrics.MapSize) * 100
		}
		return nil
	})
	if err != nil {
		return es.StorageMetrics{}, storageErr(err)
	}
	return metrics, nil
}

// stream pages through the events bucket, reopening a fresh read snapshot
// every streamPageSize scanned records. The iterator is restartable: events
// committed between pages are picked up on the next refill.
func (l *Log) stream(from uint64, aggregateID string) *es.Iterator[*es.StoredEvent] {
	var page []*es.StoredEvent
	index := 0
	seek := from
	if seek == 0 {
		seek = 1
	}

	return es.NewIteratorFunc(func(ctx context.Context) (*es.StoredEvent, error) {
		for {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if index < len(page) {
				record := page[index]
				index++
				return record, nil
			}

			matched, next, scanned, err := l.loadPage(seek, aggregateID)
			if err != nil {
				return nil, err
			}
			if scanned == 0 {
				return nil, io.EOF
			}
			page = matched
			index = 0
			seek = next
		}
	})
}

// loadPage scans up to streamPageSize records starting at seek, returning the
// matching records, the next seek position, and how many records were scanned.
func (l *Log) loadPage(seek uint64, aggregateID string) ([]*es.StoredEvent, uint64, int, error) {
	var out []*es.StoredEvent
	next := seek
	scanned := 0

	err := l.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket([]byte(eventsBucket)).Cursor()
		for k, v := cursor.Seek(sequenceKey(seek)); k != nil && scanned < streamPageSize; k, v = cursor.Next() {
			scanned++
			record, err := decodeRecord(v)
			if err != nil {
				return err
			}
			next = record.GlobalSequence + 1
			if aggregateID != "" && record.AggregateID != aggregateID {
				continue
			}
			out = append(out, record)
		}
		return nil
	})
	if err != nil {
		return nil, 0, 0, storageErr(err)
	}
	return out, next, scanned, nil
}

func (l *Log) ensureBuckets() error {
	return l.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{eventsBucket, aggregatesBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

// publish fans committed events out to the hub. Delivery never affects the
// already-committed append.
func (l *Log) publish(ctx context.Context, events []*es.StoredEvent) {
	if l.hub == nil {
		return
	}
	for _, event := range events {
		l.hub.Publish(ctx, event)
	}
}

// storedEventRecord is the on-disk JSON encoding of a StoredEvent. The
// timestamp is an RFC 3339 string; the payload is the self-describing event
// encoding produced by the registry.
type storedEventRecord struct {
	EventID        uuid.UUID       `json:"event_id"`
	GlobalSequence uint64          `json:"global_sequence"`
	EventType      string          `json:"event_type"`
	AggregateID    string          `json:"aggregate_id"`
	Version        uint64          `json:"version"`
	Timestamp      string          `json:"timestamp"`
	Payload        json.RawMessage `json:"payload"`
}

func encodeRecord(event *es.StoredEvent) ([]byte, error) {
	record := storedEventRecord{
		EventID:        event.EventID,
		GlobalSequence: event.GlobalSequence,
		EventType:      event.EventType,
		AggregateID:    event.AggregateID,
		Version:        event.Version,
		Timestamp:      event.Timestamp.Format(time.RFC3339Nano),
		Payload:        event.Payload,
	}
	value, err := json.Marshal(record)
	if err != nil {
		return nil, &es.SerializationError{EventType: event.EventType, Err: err}
	}
	return value, nil
}

func decodeRecord(value []byte) (*es.StoredEvent, error) {
	var record storedEventRecord
	if err := json.Unmarshal(value, &record); err != nil {
		return nil, &es.DeserializationError{Err: err}
	}
	timestamp, err := time.Parse(time.RFC3339Nano, record.Timestamp)
	if err != nil {
		return nil, &es.DeserializationError{EventType: record.EventType, Err: err}
	}
	return &es.StoredEvent{
		EventID:        record.EventID,
		GlobalSequence: record.GlobalSequence,
		EventType:      record.EventType,
		AggregateID:    record.AggregateID,
		Version:        record.Version,
		Timestamp:      timestamp,
		Payload:        record.Payload,
	}, nil
}

// sequenceKey encodes a sequence as an 8-byte big-endian key so ascending key
// order equals sequence order.
func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func versionValue(version uint64) []byte {
	return sequenceKey(version)
}

// nextSequence reads the counter, defaulting to 1 for an empty log.
func nextSequence(metaB *bolt.Bucket) uint64 {
	value := metaB.Get([]byte(nextSequenceKey))
	if len(value) != 8 {
		return 1
	}
	return binary.BigEndian.Uint64(value)
}

// latestVersion reads an aggregate's latest known version, 0 if unseen.
func latestVersion(aggB *bolt.Bucket, aggregateID string) uint64 {
	value := aggB.Get([]byte(aggregateID))
	if len(value) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(value)
}

// storageErr wraps storage-engine failures while passing through the
// library's own typed errors unchanged.
func storageErr(err error) error {
	if err == nil {
		return nil
	}
	switch err.(type) {
	case *es.ConcurrencyConflictError, *es.SerializationError, *es.DeserializationError:
		return err
	}
	if err == es.ErrEmptyBatch || err == es.ErrMixedAggregates {
		return err
	}
	return es.WrapStorageError(err)
}
