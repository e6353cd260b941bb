package memory

import (
	"bytes"

	"github.com/google/btree"
)

// Iterator walks [start, end) over a tree that is guaranteed not to change
// underneath it (a clone or a snapshot tree). Each step re-descends from the
// last key, so the iterator holds no tree-internal state.
type Iterator struct {
	tree    *btree.BTreeG[kvItem]
	end     []byte
	current kvItem
	started bool
	valid   bool
}

func newIterator(tree *btree.BTreeG[kvItem], start, end []byte) *Iterator {
	it := &Iterator{tree: tree, end: end}
	it.current = kvItem{key: start}
	return it
}

func (it *Iterator) Next() bool {
	pivot := it.current
	first := true
	it.valid = false
	it.tree.AscendGreaterOrEqual(pivot, func(item kvItem) bool {
		if it.started && first && bytes.Equal(item.key, pivot.key) {
			first = false
			return true // skip the entry we already returned
		}
		it.current = item
		it.valid = true
		return false
	})
	it.started = true
	if it.valid && it.end != nil && bytes.Compare(it.current.key, it.end) >= 0 {
		it.valid = false
	}
	return it.valid
}

func (it *Iterator) Key() []byte {
	result := make([]byte, len(it.current.key))
	copy(result, it.current.key)
	return result
}

func (it *Iterator) Value() ([]byte, error) {
	if !it.valid {
		return nil, ErrIteratorInvalid
	}
	result := make([]byte, len(it.current.value))
	copy(result, it.current.value)
	return result, nil
}

func (it *Iterator) Valid() bool {
	return it.valid
}

func (it *Iterator) Close() error {
	it.valid = false
	it.tree = nil
	return nil
}
