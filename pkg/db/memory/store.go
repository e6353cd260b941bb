// Package memory implements the storage backend contract on an in-memory
// B-tree. Snapshots are taken with the tree's copy-on-write Clone, so they
// cost O(1) and stay stable while the live tree moves on. Nothing is
// persisted; the backend exists for tests, tooling and ephemeral databases.
package memory

import (
	"bytes"
	"sync"

	"github.com/google/btree"

	"github.com/okapidb/okapi/pkg/db"
)

const treeDegree = 32

type kvItem struct {
	key   []byte
	value []byte
}

func itemLess(a, b kvItem) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// Store is an ordered in-memory db.Store.
type Store struct {
	mu     sync.RWMutex
	tree   *btree.BTreeG[kvItem]
	bytes  uint64
	closed bool
}

func NewStore() *Store {
	return &Store{tree: btree.NewG[kvItem](treeDegree, itemLess)}
}

func (s *Store) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, db.ErrClosed
	}
	item, ok := s.tree.Get(kvItem{key: key})
	if !ok {
		return nil, db.ErrNotFound
	}
	result := make([]byte, len(item.value))
	copy(result, item.value)
	return result, nil
}

func (s *Store) NewSnapshot() (db.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, db.ErrClosed
	}
	return &Snapshot{tree: s.tree.Clone()}, nil
}

func (s *Store) NewIterator(start, end []byte) (db.Iterator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, db.ErrClosed
	}
	// Iterate over a clone so a long scan never blocks writers.
	return newIterator(s.tree.Clone(), start, end), nil
}

// Sizes reports the accumulated key+value payload bytes as memory usage.
// There is no disk component.
func (s *Store) Sizes() (memory, disk uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bytes, 0
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.tree = btree.NewG[kvItem](treeDegree, itemLess)
	s.bytes = 0
	return nil
}

// Snapshot is a cloned tree; the live store never mutates its nodes.
type Snapshot struct {
	tree *btree.BTreeG[kvItem]
}

func (s *Snapshot) Get(key []byte) ([]byte, error) {
	item, ok := s.tree.Get(kvItem{key: key})
	if !ok {
		return nil, db.ErrNotFound
	}
	result := make([]byte, len(item.value))
	copy(result, item.value)
	return result, nil
}

func (s *Snapshot) NewIterator(start, end []byte) (db.Iterator, error) {
	return newIterator(s.tree, start, end), nil
}

func (s *Snapshot) Close() error {
	s.tree = nil
	return nil
}
