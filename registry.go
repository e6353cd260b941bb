package okapi

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/okapidb/okapi/pkg/db"
)

// registry is the in-memory index of named collections. Rows are persisted
// in the meta key-space and reloaded at open; ids are allocated once and
// never reused, so a dropped handle can be told apart from a live one.
type registry struct {
	mu     sync.RWMutex
	byName map[string]uint32
	byID   map[uint32]string
	nextID uint32
}

func loadRegistry(store db.Store) (*registry, error) {
	r := &registry{
		byName: make(map[string]uint32),
		byID:   make(map[uint32]string),
		nextID: 1,
	}

	it, err := store.NewIterator(collectionMetaKey(""), metaKey('c'+1, ""))
	if err != nil {
		return nil, fmt.Errorf("open registry iterator: %w", err)
	}
	defer it.Close()

	prefixLen := len(collectionMetaKey(""))
	for it.Next() {
		name := string(it.Key()[prefixLen:])
		row, err := it.Value()
		if err != nil {
			return nil, fmt.Errorf("read registry row: %w", err)
		}
		if len(row) < 4 {
			return nil, errCorruption("registry row for %q is %d bytes", name, len(row))
		}
		id := binary.BigEndian.Uint32(row)
		r.byName[name] = id
		r.byID[id] = name
		if id >= r.nextID {
			r.nextID = id + 1
		}
	}

	if row, err := store.Get(metaNextIDKey); err == nil && len(row) >= 4 {
		if id := binary.BigEndian.Uint32(row); id > r.nextID {
			r.nextID = id
		}
	}
	return r, nil
}

func (r *registry) lookup(name string) (uint32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	return id, ok
}

// valid reports whether a handle still refers to a live collection.
func (r *registry) valid(col Collection) bool {
	if col.id == 0 {
		return true
	}
	if col.id == metaSpaceID {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[col.id]
	return ok
}

// names returns the registered collection names, unordered.
func (r *registry) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	return out
}
