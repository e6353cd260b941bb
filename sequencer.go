package okapi

import "sync"

// writeKey addresses one entry across the engine: a collection id plus the
// key within it.
type writeKey struct {
	col uint32
	key Key
}

// stagedWrite is one entry of a transaction's write set.
type stagedWrite struct {
	value     []byte
	tombstone bool
}

// watchEntry records what a transaction observed for a watched key: the
// xxh3 fingerprint of the value (zero when absent) and its presence.
type watchEntry struct {
	fingerprint uint64
	present     bool
}

// resolvedWrite is a write task after strided resolution, ready for the
// backend.
type resolvedWrite struct {
	wk        writeKey
	value     []byte
	tombstone bool
}

// sequencer is the engine's single serialization point. Commit sequence
// assignment, watch-set validation and write application all happen under
// its mutex, which makes the order of successful commits total.
//
// lastWriter remembers, per entry, the sequence number of the last commit
// that wrote it; watch validation is a lookup. clearedAt and droppedAt
// cover bulk erasure, which cannot enumerate the keys it removes.
type sequencer struct {
	mu         sync.Mutex
	seq        uint64
	clearedAt  uint64
	lastWriter map[writeKey]uint64
	droppedAt  map[uint32]uint64
}

func newSequencer(seq uint64) *sequencer {
	return &sequencer{
		seq:        seq,
		lastWriter: make(map[writeKey]uint64),
		droppedAt:  make(map[uint32]uint64),
	}
}

// conflicting returns a watched key written after snapshot, if any.
// Caller holds mu.
func (s *sequencer) conflicting(watches map[writeKey]watchEntry, snapshot uint64) (writeKey, watchEntry, bool) {
	for wk, entry := range watches {
		if s.lastWriter[wk] > snapshot {
			return wk, entry, true
		}
		if s.clearedAt > snapshot || s.droppedAt[wk.col] > snapshot {
			return wk, entry, true
		}
	}
	return writeKey{}, watchEntry{}, false
}

// record marks writes as committed at seq. Caller holds mu.
func (s *sequencer) record(writes []resolvedWrite, seq uint64) {
	for _, w := range writes {
		s.lastWriter[w.wk] = seq
	}
}
