package okapi

import (
	"sort"
	"sync"

	"github.com/zeebo/xxh3"

	"github.com/okapidb/okapi/pkg/db"
)

// TxnOptions configures Begin and Reset.
type TxnOptions struct {
	// Snapshot requests an explicit snapshot sequence. Zero means latest.
	// A sequence ahead of the last commit is invalid; the backends cannot
	// rewind to a sequence behind it.
	Snapshot uint64
	// DontWatch keeps every read of this transaction out of the watch
	// set, trading serializability for read-committed reads.
	DontWatch bool
}

// Txn is an in-flight transaction: a pinned snapshot, a write set and a
// watch set. Begin it through DB.Begin, feed it to Read/Write/Scan, and
// finish with Commit or Abort; Close releases its resources. A finished
// transaction can be revived with Reset. Methods are safe for concurrent
// use, though a transaction is normally driven by one goroutine.
type Txn struct {
	db        *DB
	mu        sync.Mutex
	snap      db.Snapshot
	snapSeq   uint64
	writes    map[writeKey]stagedWrite
	watches   map[writeKey]watchEntry
	dontWatch bool
	done      bool
	closed    bool
}

// Begin starts a transaction at the requested snapshot (latest by
// default).
func (d *DB) Begin(opts TxnOptions) (*Txn, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	t := &Txn{db: d}
	if err := t.beginLocked(opts); err != nil {
		return nil, err
	}
	d.liveTxns.Add(1)
	metricLiveTxns.Inc()
	return t, nil
}

func (t *Txn) beginLocked(opts TxnOptions) error {
	d := t.db
	s := d.seqr
	s.mu.Lock()
	snapSeq := s.seq
	if opts.Snapshot != 0 && opts.Snapshot != snapSeq {
		s.mu.Unlock()
		if opts.Snapshot > snapSeq {
			return errArgs("snapshot %d is ahead of the last commit %d", opts.Snapshot, snapSeq)
		}
		return errUnsupported("backend cannot pin historical snapshot %d (last commit %d)", opts.Snapshot, snapSeq)
	}
	snap, err := d.store.NewSnapshot()
	s.mu.Unlock()
	if err != nil {
		return translate(err, "acquire snapshot")
	}

	t.snap = snap
	t.snapSeq = snapSeq
	t.writes = make(map[writeKey]stagedWrite)
	t.watches = make(map[writeKey]watchEntry)
	t.dontWatch = opts.DontWatch
	t.done = false
	return nil
}

// Reset re-begins the transaction on a fresh snapshot, discarding its
// write and watch sets. It revives committed and aborted transactions.
func (t *Txn) Reset(opts TxnOptions) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errArgs("transaction is closed")
	}
	if t.snap != nil {
		_ = t.snap.Close()
		t.snap = nil
	}
	return t.beginLocked(opts)
}

// Snapshot returns the sequence number the transaction reads at.
func (t *Txn) Snapshot() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapSeq
}

// Commit validates the watch set and applies the write set atomically,
// returning the assigned commit sequence number. On conflict (and on any
// other failure) the transaction state is preserved so the caller may
// Reset and retry; on success the transaction is finished.
func (t *Txn) Commit(opts Options) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.usableLocked(); err != nil {
		return 0, err
	}

	writes := make([]resolvedWrite, 0, len(t.writes))
	for wk, sw := range t.writes {
		writes = append(writes, resolvedWrite{wk: wk, value: sw.value, tombstone: sw.tombstone})
	}
	// Deterministic application order; map iteration is not.
	sort.Slice(writes, func(i, j int) bool {
		if writes[i].wk.col != writes[j].wk.col {
			return writes[i].wk.col < writes[j].wk.col
		}
		return writes[i].wk.key < writes[j].wk.key
	})

	flush := opts&WriteFlush != 0 || t.db.cfg.SyncWrites
	seq, err := t.db.commit(writes, t.watches, t.snapSeq, flush)
	if err != nil {
		return 0, err
	}

	t.finishLocked()
	return seq, nil
}

// Abort discards the write and watch sets. The transaction may be revived
// with Reset.
func (t *Txn) Abort() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errArgs("transaction is closed")
	}
	t.finishLocked()
	return nil
}

// Close releases the transaction's snapshot and drops it from the live
// count. Closing twice is harmless.
func (t *Txn) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.finishLocked()
	t.closed = true
	t.db.liveTxns.Add(-1)
	metricLiveTxns.Dec()
	return nil
}

func (t *Txn) finishLocked() {
	if t.snap != nil {
		_ = t.snap.Close()
		t.snap = nil
	}
	t.writes = nil
	t.watches = nil
	t.done = true
}

func (t *Txn) usableLocked() error {
	if t.closed {
		return errArgs("transaction is closed")
	}
	if t.done {
		return errArgs("transaction already finished; Reset it first")
	}
	return nil
}

// getLocked reads one entry through the transaction: write set first, then
// the pinned snapshot (or the live state under ReadTransparent). Reads
// enter the watch set unless watching is suppressed.
func (t *Txn) getLocked(col Collection, key Key, opts Options) ([]byte, bool, error) {
	wk := writeKey{col: col.id, key: key}
	if sw, ok := t.writes[wk]; ok {
		return sw.value, !sw.tombstone, nil
	}

	pk := physicalKey(col, key)
	var raw []byte
	var err error
	if opts&ReadTransparent != 0 {
		raw, err = t.db.store.Get(pk)
	} else {
		raw, err = t.snap.Get(pk)
	}
	found := true
	if err != nil {
		if !isNotFound(err) {
			return nil, false, translate(err, "transactional read")
		}
		raw, found = nil, false
	}

	if !t.dontWatch && opts&TxnDontWatch == 0 {
		entry := watchEntry{present: found}
		if found {
			entry.fingerprint = xxh3.Hash(raw)
		}
		t.watches[wk] = entry
	}
	return raw, found, nil
}

// stageLocked stages one write, overwriting any prior staging for the same
// entry. The value is copied; nil stages a tombstone.
func (t *Txn) stageLocked(col Collection, key Key, value []byte, tombstone bool) {
	wk := writeKey{col: col.id, key: key}
	if tombstone {
		t.writes[wk] = stagedWrite{tombstone: true}
		return
	}
	staged := make([]byte, len(value))
	copy(staged, value)
	t.writes[wk] = stagedWrite{value: staged}
}

type stagedKV struct {
	key       Key
	value     []byte
	tombstone bool
}

// stagedRangeLocked returns the write-set entries of col at or after min,
// sorted ascending, for merging into scans.
func (t *Txn) stagedRangeLocked(col Collection, min Key) []stagedKV {
	var out []stagedKV
	for wk, sw := range t.writes {
		if wk.col != col.id || wk.key < min {
			continue
		}
		out = append(out, stagedKV{key: wk.key, value: sw.value, tombstone: sw.tombstone})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}
