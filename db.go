package okapi

import (
	"encoding/binary"
	"errors"
	"sync/atomic"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/okapidb/okapi/pkg/db"
	"github.com/okapidb/okapi/pkg/db/memory"
	pebbleback "github.com/okapidb/okapi/pkg/db/pebble"
	"github.com/okapidb/okapi/pkg/log"
)

const (
	versionMajor = 0
	versionMinor = 1
)

// DB is an open database. It is safe for concurrent use from any number of
// goroutines and must outlive every transaction, collection handle and
// arena-backed result derived from it.
type DB struct {
	instanceID uuid.UUID
	cfg        Config
	store      db.Store
	seqr       *sequencer
	reg        *registry
	liveTxns   atomic.Int64
	closed     atomic.Bool
}

// Open opens a database described by one opaque configuration string (YAML,
// see Config). The empty string opens an ephemeral in-memory database.
func Open(config string) (*DB, error) {
	cfg, err := parseConfig(config)
	if err != nil {
		return nil, err
	}
	if cfg.LogLevel != "" {
		level, err := log.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return nil, errArgs("parse log level %q: %v", cfg.LogLevel, err)
		}
		log.Engine = log.Engine.Level(level)
	}

	var store db.Store
	switch cfg.Backend {
	case "", "memory":
		store = memory.NewStore()
	case "pebble":
		store, err = pebbleback.NewStore(cfg.Path, pebbleback.Options{
			CacheSize:    cfg.CacheMB << 20,
			MemTableSize: uint64(cfg.MemTableMB) << 20,
		})
		if err != nil {
			return nil, translate(err, "open pebble backend")
		}
	}

	seq := uint64(0)
	if row, err := store.Get(metaSeqKey); err == nil && len(row) >= 8 {
		seq = binary.BigEndian.Uint64(row)
	} else if err != nil && !errors.Is(err, db.ErrNotFound) {
		_ = store.Close()
		return nil, translate(err, "read committed sequence")
	}

	reg, err := loadRegistry(store)
	if err != nil {
		_ = store.Close()
		return nil, translate(err, "load collection registry")
	}

	d := &DB{
		instanceID: uuid.New(),
		cfg:        cfg,
		store:      store,
		seqr:       newSequencer(seq),
		reg:        reg,
	}
	log.Engine.Info().
		Str("instance", d.instanceID.String()).
		Str("config", cfg.String()).
		Uint64("sequence", seq).
		Msg("database opened")
	return d, nil
}

// Close shuts the database down. Closing while transactions are live is a
// usage error and leaves the database open.
func (d *DB) Close() error {
	if d.closed.Load() {
		return nil
	}
	if n := d.liveTxns.Load(); n > 0 {
		return errArgs("close with %d live transactions", n)
	}
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := d.store.Close()
	log.Engine.Info().Str("instance", d.instanceID.String()).Msg("database closed")
	if err != nil {
		return translate(err, "close backend")
	}
	return nil
}

func (d *DB) checkOpen() error {
	if d.closed.Load() {
		return errArgs("database is closed")
	}
	return nil
}

// CollectionOpen returns the handle for a named collection, creating it on
// first use. The empty name is the default collection.
func (d *DB) CollectionOpen(name string) (Collection, error) {
	if err := d.checkOpen(); err != nil {
		return Collection{}, err
	}
	if name == "" {
		return DefaultCollection, nil
	}
	if !utf8.ValidString(name) {
		return Collection{}, errArgs("collection name is not valid UTF-8")
	}
	if id, ok := d.reg.lookup(name); ok {
		return Collection{id: id}, nil
	}

	r := d.reg
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byName[name]; ok {
		return Collection{id: id}, nil
	}
	id := r.nextID
	if id >= metaSpaceID {
		return Collection{}, errUnsupported("collection id space exhausted")
	}

	var row [4]byte
	binary.BigEndian.PutUint32(row[:], id)
	var next [4]byte
	binary.BigEndian.PutUint32(next[:], id+1)

	batch := d.store.NewBatch()
	defer batch.Close()
	if err := batch.Put(collectionMetaKey(name), row[:]); err != nil {
		return Collection{}, translate(err, "stage registry row")
	}
	if err := batch.Put(metaNextIDKey, next[:]); err != nil {
		return Collection{}, translate(err, "stage id allocator")
	}
	if err := batch.Commit(d.cfg.SyncWrites); err != nil {
		return Collection{}, translate(err, "persist collection")
	}

	r.byName[name] = id
	r.byID[id] = name
	r.nextID = id + 1
	log.Engine.Debug().Str("collection", name).Uint32("id", id).Msg("collection created")
	return Collection{id: id}, nil
}

// CollectionDrop removes a named collection and every entry in it. The
// handle becomes invalid; the default collection cannot be dropped.
func (d *DB) CollectionDrop(name string) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	if name == "" {
		return errArgs("the default collection cannot be dropped")
	}

	r := d.reg
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byName[name]
	if !ok {
		return errNotFound("collection %q is not registered", name)
	}
	col := Collection{id: id}

	// Dropping is a write: it owns a commit sequence so transactions
	// watching dropped entries fail validation.
	s := d.seqr
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.seq + 1

	var seqRow [8]byte
	binary.BigEndian.PutUint64(seqRow[:], next)

	batch := d.store.NewBatch()
	defer batch.Close()
	if err := batch.DeleteRange(physicalKey(col, 0), collectionEnd(col)); err != nil {
		return translate(err, "stage collection erase")
	}
	if err := batch.Delete(collectionMetaKey(name)); err != nil {
		return translate(err, "stage registry delete")
	}
	if err := batch.Put(metaSeqKey, seqRow[:]); err != nil {
		return translate(err, "stage sequence")
	}
	if err := batch.Commit(d.cfg.SyncWrites); err != nil {
		return translate(err, "drop collection")
	}

	s.seq = next
	s.droppedAt[id] = next
	delete(r.byName, name)
	delete(r.byID, id)
	log.Engine.Debug().Str("collection", name).Uint32("id", id).Msg("collection dropped")
	return nil
}

// Collections lists the registered collection names (the default
// collection is unnamed and not listed).
func (d *DB) Collections() ([]string, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	return d.reg.names(), nil
}

// Clear erases the data of every collection, keeping the registry. The
// clear takes the next commit sequence number, like any other write.
func (d *DB) Clear() error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	s := d.seqr
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.seq + 1

	var seqRow [8]byte
	binary.BigEndian.PutUint64(seqRow[:], next)
	var dataEnd [4]byte
	binary.BigEndian.PutUint32(dataEnd[:], metaSpaceID)

	batch := d.store.NewBatch()
	defer batch.Close()
	if err := batch.DeleteRange(physicalKey(DefaultCollection, 0), dataEnd[:]); err != nil {
		return translate(err, "stage clear")
	}
	if err := batch.Put(metaSeqKey, seqRow[:]); err != nil {
		return translate(err, "stage sequence")
	}
	if err := batch.Commit(d.cfg.SyncWrites); err != nil {
		return translate(err, "clear database")
	}

	s.seq = next
	s.clearedAt = next
	s.lastWriter = make(map[writeKey]uint64)
	return nil
}

// Status is advisory engine metadata.
type Status struct {
	VersionMajor       int
	VersionMinor       int
	InstanceID         string
	MemoryUsage        uint64
	DiskUsage          uint64
	ActiveTransactions int64
	CommittedSequence  uint64
}

func (d *DB) Status() (Status, error) {
	if err := d.checkOpen(); err != nil {
		return Status{}, err
	}
	memBytes, diskBytes := d.store.Sizes()
	d.seqr.mu.Lock()
	seq := d.seqr.seq
	d.seqr.mu.Unlock()
	return Status{
		VersionMajor:       versionMajor,
		VersionMinor:       versionMinor,
		InstanceID:         d.instanceID.String(),
		MemoryUsage:        memBytes,
		DiskUsage:          diskBytes,
		ActiveTransactions: d.liveTxns.Load(),
		CommittedSequence:  seq,
	}, nil
}

// checkHandle validates one task's collection handle.
func (d *DB) checkHandle(col Collection) error {
	if col.id == 0 {
		return nil
	}
	if !d.reg.valid(col) {
		return errNotFound("collection handle %d is not registered", col.id)
	}
	return nil
}

// commit is the serialization point shared by transactional commits and
// non-transactional batched writes. It validates watches (if any), applies
// writes as one backend batch together with the sequence bump, and only
// then publishes the new sequence number.
func (d *DB) commit(writes []resolvedWrite, watches map[writeKey]watchEntry, snapshot uint64, flush bool) (uint64, error) {
	s := d.seqr
	s.mu.Lock()
	defer s.mu.Unlock()

	if wk, entry, ok := s.conflicting(watches, snapshot); ok {
		metricConflicts.Inc()
		log.Engine.Debug().
			Uint32("collection", wk.col).
			Uint64("key", uint64(wk.key)).
			Uint64("fingerprint", entry.fingerprint).
			Uint64("snapshot", snapshot).
			Msg("commit conflict")
		return 0, errConflict("watched key %d in collection %d changed after snapshot %d", wk.key, wk.col, snapshot)
	}

	next := s.seq + 1
	if len(writes) > 0 {
		var seqRow [8]byte
		binary.BigEndian.PutUint64(seqRow[:], next)

		batch := d.store.NewBatch()
		defer batch.Close()
		for _, w := range writes {
			pk := physicalKey(Collection{id: w.wk.col}, w.wk.key)
			if w.tombstone {
				if err := batch.Delete(pk); err != nil {
					return 0, translate(err, "stage delete")
				}
			} else if err := batch.Put(pk, w.value); err != nil {
				return 0, translate(err, "stage put")
			}
		}
		if err := batch.Put(metaSeqKey, seqRow[:]); err != nil {
			return 0, translate(err, "stage sequence")
		}
		if err := batch.Commit(flush); err != nil {
			return 0, translate(err, "apply write batch")
		}
	}

	s.seq = next
	s.record(writes, next)
	metricCommits.Inc()
	log.Engine.Debug().Uint64("sequence", next).Int("writes", len(writes)).Msg("commit")
	return next, nil
}
