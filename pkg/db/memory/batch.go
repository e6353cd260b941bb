package memory

import (
	"bytes"
	"errors"
	"sync/atomic"

	"github.com/okapidb/okapi/pkg/db"
)

var (
	ErrBatchDone       = errors.New("memory: batch already committed or closed")
	ErrIteratorInvalid = errors.New("memory: iterator is not positioned on a valid entry")
)

type opKind uint8

const (
	opPut opKind = iota
	opDelete
	opDeleteRange
)

type batchOp struct {
	kind  opKind
	key   []byte // start key for opDeleteRange
	end   []byte
	value []byte
}

// Batch buffers operations and applies them under one tree lock on Commit.
type Batch struct {
	store *Store
	ops   []batchOp
	done  atomic.Bool
}

func (s *Store) NewBatch() db.Batch {
	return &Batch{store: s}
}

func (b *Batch) Put(key, value []byte) error {
	if b.done.Load() {
		return ErrBatchDone
	}
	b.ops = append(b.ops, batchOp{kind: opPut, key: cloneBytes(key), value: cloneBytes(value)})
	return nil
}

func (b *Batch) Delete(key []byte) error {
	if b.done.Load() {
		return ErrBatchDone
	}
	b.ops = append(b.ops, batchOp{kind: opDelete, key: cloneBytes(key)})
	return nil
}

func (b *Batch) DeleteRange(start, end []byte) error {
	if b.done.Load() {
		return ErrBatchDone
	}
	b.ops = append(b.ops, batchOp{kind: opDeleteRange, key: cloneBytes(start), end: cloneBytes(end)})
	return nil
}

// Commit applies the buffered operations atomically. sync is meaningless
// for a memory store and is ignored.
func (b *Batch) Commit(_ bool) error {
	if b.done.Load() {
		return ErrBatchDone
	}
	s := b.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return db.ErrClosed
	}
	for _, op := range b.ops {
		switch op.kind {
		case opPut:
			if prev, ok := s.tree.ReplaceOrInsert(kvItem{key: op.key, value: op.value}); ok {
				s.bytes -= uint64(len(prev.key) + len(prev.value))
			}
			s.bytes += uint64(len(op.key) + len(op.value))
		case opDelete:
			if prev, ok := s.tree.Delete(kvItem{key: op.key}); ok {
				s.bytes -= uint64(len(prev.key) + len(prev.value))
			}
		case opDeleteRange:
			var doomed []kvItem
			s.tree.AscendGreaterOrEqual(kvItem{key: op.key}, func(item kvItem) bool {
				if op.end != nil && bytes.Compare(item.key, op.end) >= 0 {
					return false
				}
				doomed = append(doomed, item)
				return true
			})
			for _, item := range doomed {
				s.tree.Delete(item)
				s.bytes -= uint64(len(item.key) + len(item.value))
			}
		}
	}
	b.done.Store(true)
	return nil
}

func (b *Batch) Close() error {
	b.done.Store(true)
	b.ops = nil
	return nil
}

func cloneBytes(in []byte) []byte {
	if in == nil {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}
