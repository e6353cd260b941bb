package okapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestSinglePutGet(t *testing.T) {
	d := openTestDB(t)

	require.NoError(t, d.Write(nil, SinglePut(DefaultCollection, 7, []byte("hi")), 0))

	res, err := d.Read(nil, SingleRead(DefaultCollection, 7), 0, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Length(0))
	value, ok := res.Value(0)
	assert.True(t, ok)
	assert.Equal(t, "hi", string(value))
}

func TestMissingKey(t *testing.T) {
	d := openTestDB(t)

	res, err := d.Read(nil, SingleRead(DefaultCollection, 42), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, LenMissing, res.Length(0))
	value, ok := res.Value(0)
	assert.False(t, ok)
	assert.Nil(t, value)
}

func TestDeleteMakesKeyMissing(t *testing.T) {
	d := openTestDB(t)

	require.NoError(t, d.Write(nil, SinglePut(DefaultCollection, 5, []byte("x")), 0))
	require.NoError(t, d.Write(nil, SingleDelete(DefaultCollection, 5), 0))

	res, err := d.Read(nil, SingleRead(DefaultCollection, 5), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, LenMissing, res.Length(0))
}

func TestZeroLengthValueIsNotMissing(t *testing.T) {
	d := openTestDB(t)

	require.NoError(t, d.Write(nil, SinglePut(DefaultCollection, 9, []byte{}), 0))

	res, err := d.Read(nil, SingleRead(DefaultCollection, 9), 0, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 0, res.Length(0))
	value, ok := res.Value(0)
	assert.True(t, ok)
	assert.Empty(t, value)
}

func TestBatchReadTape(t *testing.T) {
	d := openTestDB(t)

	require.NoError(t, d.Write(nil, WriteTasks{
		Count:  3,
		Keys:   Slice([]Key{1, 2, 3}),
		Values: Slice([][]byte{[]byte("one"), []byte("two"), []byte("three")}),
	}, 0))

	arena := NewArena()
	res, err := d.Read(nil, ReadTasks{
		Count: 4,
		Keys:  Slice([]Key{1, 99, 2, 3}),
	}, 0, arena)
	require.NoError(t, err)

	assert.EqualValues(t, 3, res.Length(0))
	assert.Equal(t, LenMissing, res.Length(1))
	assert.EqualValues(t, 3, res.Length(2))
	assert.EqualValues(t, 5, res.Length(3))

	v0, _ := res.Value(0)
	v2, _ := res.Value(2)
	v3, _ := res.Value(3)
	assert.Equal(t, "one", string(v0))
	assert.Equal(t, "two", string(v2))
	assert.Equal(t, "three", string(v3))

	// The tape is the packed length array followed by the payloads;
	// absent entries contribute no payload bytes.
	assert.Len(t, res.Tape(), 4*4+3+3+5)

	// Views alias the arena until it is reused.
	res2, err := d.Read(nil, SingleRead(DefaultCollection, 1), 0, arena)
	require.NoError(t, err)
	v, _ := res2.Value(0)
	assert.Equal(t, "one", string(v))
}

func TestCollections(t *testing.T) {
	d := openTestDB(t)

	people, err := d.CollectionOpen("people")
	require.NoError(t, err)
	places, err := d.CollectionOpen("places")
	require.NoError(t, err)
	assert.NotEqual(t, people, places)

	// Reopening returns the same stable handle.
	again, err := d.CollectionOpen("people")
	require.NoError(t, err)
	assert.Equal(t, people, again)

	// The empty name is the default collection.
	def, err := d.CollectionOpen("")
	require.NoError(t, err)
	assert.Equal(t, DefaultCollection, def)

	// Same key, disjoint key-spaces.
	require.NoError(t, d.Write(nil, SinglePut(people, 1, []byte("ada")), 0))
	require.NoError(t, d.Write(nil, SinglePut(places, 1, []byte("io")), 0))
	require.NoError(t, d.Write(nil, SinglePut(DefaultCollection, 1, []byte("root")), 0))

	res, err := d.Read(nil, ReadTasks{
		Count:       3,
		Collections: Slice([]Collection{people, places, DefaultCollection}),
		Keys:        Broadcast(Key(1)),
	}, 0, nil)
	require.NoError(t, err)
	v0, _ := res.Value(0)
	v1, _ := res.Value(1)
	v2, _ := res.Value(2)
	assert.Equal(t, "ada", string(v0))
	assert.Equal(t, "io", string(v1))
	assert.Equal(t, "root", string(v2))

	names, err := d.Collections()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"people", "places"}, names)
}

func TestCollectionDrop(t *testing.T) {
	d := openTestDB(t)

	tmp, err := d.CollectionOpen("tmp")
	require.NoError(t, err)
	require.NoError(t, d.Write(nil, SinglePut(tmp, 1, []byte("x")), 0))
	require.NoError(t, d.Write(nil, SinglePut(DefaultCollection, 1, []byte("keep")), 0))

	require.NoError(t, d.CollectionDrop("tmp"))

	// The handle is invalid afterwards.
	_, err = d.Read(nil, SingleRead(tmp, 1), 0, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	// Other collections are untouched.
	res, err := d.Read(nil, SingleRead(DefaultCollection, 1), 0, nil)
	require.NoError(t, err)
	v, _ := res.Value(0)
	assert.Equal(t, "keep", string(v))

	// Recreating the name allocates a fresh, empty collection.
	fresh, err := d.CollectionOpen("tmp")
	require.NoError(t, err)
	assert.NotEqual(t, tmp, fresh)
	res, err = d.Read(nil, SingleRead(fresh, 1), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, LenMissing, res.Length(0))

	assert.ErrorIs(t, d.CollectionDrop(""), ErrArgsInvalid)
	assert.ErrorIs(t, d.CollectionDrop("never-created"), ErrNotFound)
}

func TestContains(t *testing.T) {
	d := openTestDB(t)

	require.NoError(t, d.Write(nil, SinglePut(DefaultCollection, 1, []byte("x")), 0))
	require.NoError(t, d.Write(nil, SinglePut(DefaultCollection, 3, []byte{}), 0))

	found, err := d.Contains(nil, ReadTasks{Count: 3, Keys: Slice([]Key{1, 2, 3})}, 0)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, found)
}

func TestClear(t *testing.T) {
	d := openTestDB(t)

	col, err := d.CollectionOpen("kept-registration")
	require.NoError(t, err)
	require.NoError(t, d.Write(nil, SinglePut(col, 1, []byte("a")), 0))
	require.NoError(t, d.Write(nil, SinglePut(DefaultCollection, 1, []byte("b")), 0))

	require.NoError(t, d.Clear())

	for _, c := range []Collection{col, DefaultCollection} {
		res, err := d.Read(nil, SingleRead(c, 1), 0, nil)
		require.NoError(t, err)
		assert.Equal(t, LenMissing, res.Length(0))
	}

	// Registrations survive a clear.
	names, err := d.Collections()
	require.NoError(t, err)
	assert.Equal(t, []string{"kept-registration"}, names)
}

func TestStatus(t *testing.T) {
	d := openTestDB(t)

	require.NoError(t, d.Write(nil, SinglePut(DefaultCollection, 1, []byte("x")), 0))

	txn, err := d.Begin(TxnOptions{})
	require.NoError(t, err)

	status, err := d.Status()
	require.NoError(t, err)
	assert.Equal(t, versionMajor, status.VersionMajor)
	assert.Equal(t, versionMinor, status.VersionMinor)
	assert.NotEmpty(t, status.InstanceID)
	assert.EqualValues(t, 1, status.ActiveTransactions)
	assert.EqualValues(t, 1, status.CommittedSequence)
	assert.Greater(t, status.MemoryUsage, uint64(0))

	require.NoError(t, txn.Close())
}

func TestCloseWithLiveTransactionFails(t *testing.T) {
	d, err := Open("")
	require.NoError(t, err)

	txn, err := d.Begin(TxnOptions{})
	require.NoError(t, err)

	assert.ErrorIs(t, d.Close(), ErrArgsInvalid)

	require.NoError(t, txn.Close())
	require.NoError(t, d.Close())

	// Everything fails on a closed database.
	_, err = d.Read(nil, SingleRead(DefaultCollection, 1), 0, nil)
	assert.ErrorIs(t, err, ErrArgsInvalid)
}

func TestConfigParsing(t *testing.T) {
	_, err := Open("backend: warp-drive")
	assert.ErrorIs(t, err, ErrArgsInvalid)

	_, err = Open("backend: pebble")
	assert.ErrorIs(t, err, ErrArgsInvalid) // no path

	_, err = Open(":::")
	assert.ErrorIs(t, err, ErrArgsInvalid)

	d, err := Open("backend: memory\nsync_writes: true")
	require.NoError(t, err)
	require.NoError(t, d.Close())
}

func TestPebbleBackedDatabase(t *testing.T) {
	dir := t.TempDir()
	config := "backend: pebble\npath: " + dir + "\n"

	d, err := Open(config)
	require.NoError(t, err)
	col, err := d.CollectionOpen("persisted")
	require.NoError(t, err)
	require.NoError(t, d.Write(nil, SinglePut(col, 11, []byte("survives")), WriteFlush))

	seqBefore, err := d.Status()
	require.NoError(t, err)
	require.NoError(t, d.Close())

	// Reopen: data, registry and sequence all survive.
	d, err = Open(config)
	require.NoError(t, err)
	defer d.Close()

	col, err = d.CollectionOpen("persisted")
	require.NoError(t, err)
	res, err := d.Read(nil, SingleRead(col, 11), 0, nil)
	require.NoError(t, err)
	v, _ := res.Value(0)
	assert.Equal(t, "survives", string(v))

	status, err := d.Status()
	require.NoError(t, err)
	assert.Equal(t, seqBefore.CommittedSequence, status.CommittedSequence)
}
