package okapi

import (
	"encoding/binary"
	"math"

	"github.com/okapidb/okapi/pkg/db"
)

// ReadResult is a batch read materialized into the arena as a tape: a
// packed array of little-endian u32 lengths followed by the concatenated
// payloads in batch order. Absent entries carry LenMissing and contribute
// no payload bytes. All views alias the arena and are invalidated by the
// next call that reuses it.
type ReadResult struct {
	arena   *Arena
	count   int
	tapeOff int
	tapeLen int
	offs    []int
}

// Count returns the number of tasks in the batch.
func (r *ReadResult) Count() int {
	return r.count
}

// Length returns the tape length field of entry i; LenMissing means the
// key was absent.
func (r *ReadResult) Length(i int) uint32 {
	return binary.LittleEndian.Uint32(r.arena.view(r.tapeOff+4*i, 4))
}

// Value returns a view of entry i's payload and whether the key was
// present. A present empty value is ([]byte{}, true).
func (r *ReadResult) Value(i int) ([]byte, bool) {
	length := r.Length(i)
	if length == LenMissing {
		return nil, false
	}
	return r.arena.view(r.offs[i], int(length)), true
}

// Tape returns the raw result tape.
func (r *ReadResult) Tape() []byte {
	return r.arena.view(r.tapeOff, r.tapeLen)
}

// Read resolves a strided batch of point lookups and materializes the
// result tape into the arena. With a transaction, reads go through its
// write set and snapshot and enter its watch set; without one, a single
// task reads the live state directly and a multi-task batch reads through
// a transient snapshot so the batch is internally consistent.
// ReadTransparent bypasses snapshots in both modes.
func (d *DB) Read(txn *Txn, tasks ReadTasks, opts Options, arena *Arena) (*ReadResult, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if err := tasks.validate(); err != nil {
		return nil, err
	}
	if arena == nil {
		arena = NewArena()
	}
	arena.Reset()
	metricReadTasks.Add(float64(tasks.Count))

	vals, found, err := d.gather(txn, tasks, opts)
	if err != nil {
		return nil, err
	}
	return buildTape(arena, vals, found)
}

// Contains probes a strided batch of keys for presence without
// materializing values. Inside a transaction the probes are watched like
// reads.
func (d *DB) Contains(txn *Txn, tasks ReadTasks, opts Options) ([]bool, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if err := tasks.validate(); err != nil {
		return nil, err
	}
	metricReadTasks.Add(float64(tasks.Count))

	_, found, err := d.gather(txn, tasks, opts)
	if err != nil {
		return nil, err
	}
	return found, nil
}

// gather resolves every task to its value. The single-task path issues one
// direct backend call; the multi-task path reads through one consistent
// view.
func (d *DB) gather(txn *Txn, tasks ReadTasks, opts Options) ([][]byte, []bool, error) {
	vals := make([][]byte, tasks.Count)
	found := make([]bool, tasks.Count)

	if txn != nil {
		txn.mu.Lock()
		defer txn.mu.Unlock()
		if err := txn.usableLocked(); err != nil {
			return nil, nil, err
		}
		for i := 0; i < tasks.Count; i++ {
			col, key := tasks.task(i)
			if err := d.checkHandle(col); err != nil {
				return nil, nil, err
			}
			v, ok, err := txn.getLocked(col, key, opts)
			if err != nil {
				return nil, nil, err
			}
			vals[i], found[i] = v, ok
		}
		return vals, found, nil
	}

	var snap db.Snapshot
	if tasks.Count > 1 && opts&ReadTransparent == 0 {
		s, err := d.store.NewSnapshot()
		if err != nil {
			return nil, nil, translate(err, "acquire read snapshot")
		}
		snap = s
		defer snap.Close()
	}
	for i := 0; i < tasks.Count; i++ {
		col, key := tasks.task(i)
		if err := d.checkHandle(col); err != nil {
			return nil, nil, err
		}
		pk := physicalKey(col, key)
		var raw []byte
		var err error
		if snap != nil {
			raw, err = snap.Get(pk)
		} else {
			raw, err = d.store.Get(pk)
		}
		if err != nil {
			if !isNotFound(err) {
				return nil, nil, translate(err, "read")
			}
			continue
		}
		vals[i], found[i] = raw, true
	}
	return vals, found, nil
}

func buildTape(arena *Arena, vals [][]byte, found []bool) (*ReadResult, error) {
	count := len(vals)
	total := 4 * count
	for i := range vals {
		if !found[i] {
			continue
		}
		if uint64(len(vals[i])) >= uint64(math.MaxUint32) {
			return nil, errUnsupported("value of %d bytes exceeds the tape length field", len(vals[i]))
		}
		total += len(vals[i])
	}

	tapeOff := arena.used
	buf, err := arena.alloc(total)
	if err != nil {
		return nil, err
	}

	offs := make([]int, count)
	payload := 4 * count
	for i := range vals {
		if !found[i] {
			binary.LittleEndian.PutUint32(buf[4*i:], LenMissing)
			offs[i] = -1
			continue
		}
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(len(vals[i])))
		copy(buf[payload:], vals[i])
		offs[i] = tapeOff + payload
		payload += len(vals[i])
	}
	return &ReadResult{arena: arena, count: count, tapeOff: tapeOff, tapeLen: total, offs: offs}, nil
}
