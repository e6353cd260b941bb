package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okapidb/okapi/pkg/db"
)

func TestStore(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T, store db.Store)
	}{
		{
			name: "basic_put_get",
			fn:   testBasicPutGet,
		},
		{
			name: "delete_operations",
			fn:   testDelete,
		},
		{
			name: "delete_range",
			fn:   testDeleteRange,
		},
		{
			name: "snapshot_isolation",
			fn:   testSnapshotIsolation,
		},
		{
			name: "iterator_bounds",
			fn:   testIteratorBounds,
		},
		{
			name: "concurrent_readers",
			fn:   testConcurrentReaders,
		},
		{
			name: "store_closure",
			fn:   testStoreClosure,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := NewStore()
			defer store.Close()

			tc.fn(t, store)
		})
	}
}

func put(t *testing.T, store db.Store, key, value []byte) {
	t.Helper()
	batch := store.NewBatch()
	defer batch.Close()
	require.NoError(t, batch.Put(key, value))
	require.NoError(t, batch.Commit(false))
}

func del(t *testing.T, store db.Store, key []byte) {
	t.Helper()
	batch := store.NewBatch()
	defer batch.Close()
	require.NoError(t, batch.Delete(key))
	require.NoError(t, batch.Commit(false))
}

func testBasicPutGet(t *testing.T, store db.Store) {
	key := []byte("test-key")
	value := []byte("test-value")

	put(t, store, key, value)

	retrieved, err := store.Get(key)
	require.NoError(t, err)
	assert.Equal(t, value, retrieved)

	_, err = store.Get([]byte("non-existent"))
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func testDelete(t *testing.T, store db.Store) {
	key := []byte("delete-test")
	put(t, store, key, []byte("to-be-deleted"))

	del(t, store, key)

	_, err := store.Get(key)
	assert.ErrorIs(t, err, db.ErrNotFound)

	del(t, store, []byte("non-existent"))
}

func testDeleteRange(t *testing.T, store db.Store) {
	for i := 0; i < 5; i++ {
		put(t, store, []byte(fmt.Sprintf("range-%d", i)), []byte{byte(i)})
	}
	put(t, store, []byte("survivor"), []byte("x"))

	batch := store.NewBatch()
	defer batch.Close()
	require.NoError(t, batch.DeleteRange([]byte("range-"), []byte("range-~")))
	require.NoError(t, batch.Commit(false))

	for i := 0; i < 5; i++ {
		_, err := store.Get([]byte(fmt.Sprintf("range-%d", i)))
		assert.ErrorIs(t, err, db.ErrNotFound)
	}
	_, err := store.Get([]byte("survivor"))
	assert.NoError(t, err)
}

func testSnapshotIsolation(t *testing.T, store db.Store) {
	key := []byte("snap-key")
	put(t, store, key, []byte("before"))

	snap, err := store.NewSnapshot()
	require.NoError(t, err)
	defer snap.Close()

	put(t, store, key, []byte("after"))
	put(t, store, []byte("snap-new"), []byte("x"))

	got, err := snap.Get(key)
	require.NoError(t, err)
	assert.Equal(t, []byte("before"), got)

	_, err = snap.Get([]byte("snap-new"))
	assert.ErrorIs(t, err, db.ErrNotFound)

	got, err = store.Get(key)
	require.NoError(t, err)
	assert.Equal(t, []byte("after"), got)
}

func testIteratorBounds(t *testing.T, store db.Store) {
	for _, k := range []string{"a", "b", "c", "d"} {
		put(t, store, []byte(k), []byte("v-"+k))
	}

	it, err := store.NewIterator([]byte("b"), []byte("d"))
	require.NoError(t, err)
	defer it.Close()

	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
		value, err := it.Value()
		require.NoError(t, err)
		assert.Equal(t, "v-"+string(it.Key()), string(value))
	}
	assert.Equal(t, []string{"b", "c"}, keys)
	assert.False(t, it.Valid())
}

func testConcurrentReaders(t *testing.T, store db.Store) {
	for i := 0; i < 64; i++ {
		put(t, store, []byte(fmt.Sprintf("key-%03d", i)), []byte{byte(i)})
	}

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 64; i++ {
				value, err := store.Get([]byte(fmt.Sprintf("key-%03d", i)))
				assert.NoError(t, err)
				assert.Equal(t, []byte{byte(i)}, value)
			}
		}()
	}
	for g := 0; g < 2; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 64; i++ {
				put(t, store, []byte(fmt.Sprintf("writer-%d-%03d", g, i)), []byte{byte(i)})
			}
		}(g)
	}
	wg.Wait()
}

func testStoreClosure(t *testing.T, store db.Store) {
	err := store.Close()
	require.NoError(t, err)

	_, err = store.Get([]byte("key"))
	assert.ErrorIs(t, err, db.ErrClosed)

	_, err = store.NewSnapshot()
	assert.ErrorIs(t, err, db.ErrClosed)

	_, err = store.NewIterator(nil, nil)
	assert.ErrorIs(t, err, db.ErrClosed)

	err = store.Close()
	assert.NoError(t, err)
}
