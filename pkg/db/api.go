package db

import "errors"

// Store is the storage backend contract the engine is written against.
// A backend provides point reads, atomic write batches, consistent
// snapshots and bounded range iteration over opaque byte keys. Keys are
// compared bytewise; the engine encodes its ordering into the key bytes.
type Store interface {
	// Get returns the current value for key, or ErrNotFound.
	Get(key []byte) ([]byte, error)

	// NewBatch starts an atomic write batch. All operations in a batch
	// are applied together or not at all.
	NewBatch() Batch

	// NewSnapshot pins a consistent point-in-time view of the store.
	NewSnapshot() (Snapshot, error)

	// NewIterator iterates the current state over [start, end).
	NewIterator(start, end []byte) (Iterator, error)

	// Sizes reports approximate memory and disk usage in bytes.
	Sizes() (memory, disk uint64)

	Close() error
}

// Snapshot is a stable read view. Reads through a snapshot are unaffected
// by writes committed after its creation.
type Snapshot interface {
	Get(key []byte) ([]byte, error)
	NewIterator(start, end []byte) (Iterator, error)
	Close() error
}

// Batch represents an atomic batch of operations.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	// DeleteRange removes every key in [start, end).
	DeleteRange(start, end []byte) error
	// Commit applies the batch. When sync is set the batch is durable
	// before Commit returns.
	Commit(sync bool) error
	Close() error
}

// Iterator provides sequential access over a range of key-value pairs.
// Iterators must be closed after use.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() ([]byte, error)
	Valid() bool
	Close() error
}

var (
	// ErrNotFound is returned by Get when the key is absent.
	ErrNotFound = errors.New("db: key not found")
	// ErrClosed is returned by any operation on a closed store.
	ErrClosed = errors.New("db: store is closed")
)
