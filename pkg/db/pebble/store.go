package pebble

import (
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"github.com/okapidb/okapi/pkg/db"
)

// Store is a persistent db.Store backed by a pebble LSM tree. Snapshots,
// batches and range deletes map directly onto pebble primitives.
type Store struct {
	db     *pebble.DB
	closed atomic.Bool
}

// Options tunes the underlying LSM. Zero values pick the defaults below.
type Options struct {
	CacheSize    int64 // block cache size in bytes
	MemTableSize uint64
}

const (
	defaultCacheSize    = 64 * 1024 * 1024
	defaultMemTableSize = 32 * 1024 * 1024
)

// NewStore opens (or creates) a store at path.
func NewStore(path string, opts Options) (*Store, error) {
	if opts.CacheSize == 0 {
		opts.CacheSize = defaultCacheSize
	}
	if opts.MemTableSize == 0 {
		opts.MemTableSize = defaultMemTableSize
	}

	cache := pebble.NewCache(opts.CacheSize)
	defer cache.Unref()

	pdb, err := pebble.Open(path, &pebble.Options{
		Cache:        cache,
		MemTableSize: opts.MemTableSize,
	})
	if err != nil {
		return nil, fmt.Errorf("open pebble store: %w", err)
	}
	return &Store{db: pdb}, nil
}

func (s *Store) Get(key []byte) ([]byte, error) {
	if s.closed.Load() {
		return nil, db.ErrClosed
	}
	value, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pebble get: %w", err)
	}
	defer closer.Close()

	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

func (s *Store) NewSnapshot() (db.Snapshot, error) {
	if s.closed.Load() {
		return nil, db.ErrClosed
	}
	return &Snapshot{snap: s.db.NewSnapshot()}, nil
}

func (s *Store) NewIterator(start, end []byte) (db.Iterator, error) {
	if s.closed.Load() {
		return nil, db.ErrClosed
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: start,
		UpperBound: end,
	})
	if err != nil {
		return nil, fmt.Errorf("pebble iterator: %w", err)
	}
	return &Iterator{iter: iter}, nil
}

// Sizes reports the memtable plus block cache footprint and the on-disk
// space used by all levels.
func (s *Store) Sizes() (memory, disk uint64) {
	if s.closed.Load() {
		return 0, 0
	}
	m := s.db.Metrics()
	memory = m.MemTable.Size + uint64(m.BlockCache.Size)
	disk = m.DiskSpaceUsage()
	return memory, disk
}

func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}
