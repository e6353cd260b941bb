package pebble

import (
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"github.com/okapidb/okapi/pkg/db"
)

// Snapshot pins a consistent pebble read view.
type Snapshot struct {
	snap   *pebble.Snapshot
	closed atomic.Bool
}

func (s *Snapshot) Get(key []byte) ([]byte, error) {
	if s.closed.Load() {
		return nil, db.ErrClosed
	}
	value, closer, err := s.snap.Get(key)
	if err == pebble.ErrNotFound {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pebble snapshot get: %w", err)
	}
	defer closer.Close()

	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

func (s *Snapshot) NewIterator(start, end []byte) (db.Iterator, error) {
	if s.closed.Load() {
		return nil, db.ErrClosed
	}
	iter, err := s.snap.NewIter(&pebble.IterOptions{
		LowerBound: start,
		UpperBound: end,
	})
	if err != nil {
		return nil, fmt.Errorf("pebble snapshot iterator: %w", err)
	}
	return &Iterator{iter: iter}, nil
}

func (s *Snapshot) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.snap.Close()
}
