package pebble

import (
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"github.com/okapidb/okapi/pkg/db"
)

// Batch collects writes that are applied atomically on Commit.
type Batch struct {
	batch *pebble.Batch
	done  atomic.Bool
}

func (s *Store) NewBatch() db.Batch {
	return &Batch{batch: s.db.NewBatch()}
}

func (b *Batch) Put(key, value []byte) error {
	if b.done.Load() {
		return ErrBatchDone
	}
	return b.batch.Set(key, value, nil)
}

func (b *Batch) Delete(key []byte) error {
	if b.done.Load() {
		return ErrBatchDone
	}
	return b.batch.Delete(key, nil)
}

func (b *Batch) DeleteRange(start, end []byte) error {
	if b.done.Load() {
		return ErrBatchDone
	}
	return b.batch.DeleteRange(start, end, nil)
}

func (b *Batch) Commit(sync bool) error {
	if b.done.Load() {
		return ErrBatchDone
	}
	opts := pebble.NoSync
	if sync {
		opts = pebble.Sync
	}
	if err := b.batch.Commit(opts); err != nil {
		return err
	}
	b.done.Store(true)
	return nil
}

func (b *Batch) Close() error {
	if !b.done.CompareAndSwap(false, true) {
		return nil
	}
	return b.batch.Close()
}
