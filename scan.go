package okapi

import (
	"encoding/binary"

	"github.com/okapidb/okapi/pkg/db"
)

// ScanResult is a batch scan materialized into the arena: one region of
// little-endian u64 keys for all tasks, then one region of little-endian
// u32 value lengths, both segmented per task at the task's requested
// capacity. Slots past a task's found count keep the KeyUnknown and
// LenMissing sentinels. Values are not materialized; callers re-read the
// keys they care about.
type ScanResult struct {
	arena *Arena
	segs  []scanSegment
}

type scanSegment struct {
	keysOff  int
	lensOff  int
	capacity int
	count    int
}

// Tasks returns the number of scan tasks.
func (r *ScanResult) Tasks() int {
	return len(r.segs)
}

// Count returns how many entries task found.
func (r *ScanResult) Count(task int) int {
	return r.segs[task].count
}

// Key returns entry i of a task's key segment. Slots at or past
// Count(task) carry KeyUnknown.
func (r *ScanResult) Key(task, i int) Key {
	seg := r.segs[task]
	return Key(binary.LittleEndian.Uint64(r.arena.view(seg.keysOff+8*i, 8)))
}

// ValueLen returns the value length recorded for entry i of a task. Slots
// at or past Count(task) carry LenMissing.
func (r *ScanResult) ValueLen(task, i int) uint32 {
	seg := r.segs[task]
	return binary.LittleEndian.Uint32(r.arena.view(seg.lensOff+4*i, 4))
}

// Scan runs a strided batch of bounded range scans: each task walks its
// collection ascending from its minimum key for at most its requested
// number of entries. Inside a transaction the snapshot view is merged with
// the staged write set, so the scan observes the transaction's own
// mutations.
func (d *DB) Scan(txn *Txn, tasks ScanTasks, opts Options, arena *Arena) (*ScanResult, error) {
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
	metricScanTasks.Add(float64(tasks.Count))

	total := 0
	for i := 0; i < tasks.Count; i++ {
		_, _, length := tasks.task(i)
		if length == LenMissing {
			return nil, errArgs("scan length %d is the missing sentinel", length)
		}
		total += int(length)
	}

	tapeOff := arena.used
	buf, err := arena.alloc(12 * total)
	if err != nil {
		return nil, err
	}
	// KeyUnknown and LenMissing are both all-ones, so one fill seeds every
	// unwritten slot with its sentinel.
	for i := range buf {
		buf[i] = 0xFF
	}

	keysOff := tapeOff
	lensOff := tapeOff + 8*total
	segs := make([]scanSegment, tasks.Count)
	for i := 0; i < tasks.Count; i++ {
		col, minKey, length := tasks.task(i)
		if err := d.checkHandle(col); err != nil {
			return nil, err
		}
		segs[i] = scanSegment{keysOff: keysOff, lensOff: lensOff, capacity: int(length)}

		count, err := d.scanOne(txn, col, minKey, int(length), opts, arena, segs[i])
		if err != nil {
			return nil, err
		}
		segs[i].count = count
		keysOff += 8 * int(length)
		lensOff += 4 * int(length)
	}
	return &ScanResult{arena: arena, segs: segs}, nil
}

// scanOne walks one (collection, minKey, length) task and writes found
// keys and value lengths into the task's tape segment.
func (d *DB) scanOne(txn *Txn, col Collection, minKey Key, capacity int, opts Options, arena *Arena, seg scanSegment) (int, error) {
	start := physicalKey(col, minKey)
	end := collectionEnd(col)

	var staged []stagedKV
	var it db.Iterator
	var err error
	if txn != nil {
		txn.mu.Lock()
		if lerr := txn.usableLocked(); lerr != nil {
			txn.mu.Unlock()
			return 0, lerr
		}
		staged = txn.stagedRangeLocked(col, minKey)
		if opts&ReadTransparent != 0 {
			it, err = d.store.NewIterator(start, end)
		} else {
			it, err = txn.snap.NewIterator(start, end)
		}
		txn.mu.Unlock()
	} else {
		it, err = d.store.NewIterator(start, end)
	}
	if err != nil {
		return 0, translate(err, "open scan iterator")
	}
	defer it.Close()

	emit := func(n int, key Key, valueLen int) {
		binary.LittleEndian.PutUint64(arena.view(seg.keysOff+8*n, 8), uint64(key))
		binary.LittleEndian.PutUint32(arena.view(seg.lensOff+4*n, 4), uint32(valueLen))
	}

	n, si := 0, 0
	for n < capacity && it.Next() {
		_, backendKey := decodePhysicalKey(it.Key())

		for si < len(staged) && staged[si].key < backendKey && n < capacity {
			if !staged[si].tombstone {
				emit(n, staged[si].key, len(staged[si].value))
				n++
			}
			si++
		}
		if n >= capacity {
			break
		}
		if si < len(staged) && staged[si].key == backendKey {
			if !staged[si].tombstone {
				emit(n, staged[si].key, len(staged[si].value))
				n++
			}
			si++
			continue
		}

		value, err := it.Value()
		if err != nil {
			return 0, translate(err, "scan value")
		}
		emit(n, backendKey, len(value))
		n++
	}
	for si < len(staged) && n < capacity {
		if !staged[si].tombstone {
			emit(n, staged[si].key, len(staged[si].value))
			n++
		}
		si++
	}
	return n, nil
}
