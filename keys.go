package okapi

import (
	"encoding/binary"
	"math"
)

// Key is a collection-scoped 64-bit key. Keys are stored big-endian so the
// backend's bytewise order equals numeric order; scans rely on this.
type Key uint64

const (
	// KeyUnknown is the reserved key sentinel. Scan result slots that were
	// never written carry it.
	KeyUnknown Key = math.MaxUint64

	// LenMissing marks an absent entry in a result tape. A zero length is a
	// present, empty value; LenMissing is no value at all.
	LenMissing uint32 = math.MaxUint32
)

// Collection identifies a named disjoint key-space. The zero value is the
// default collection, which always exists and cannot be dropped.
type Collection struct {
	id uint32
}

// DefaultCollection is the collection every task falls back to when the
// batch carries no collections array.
var DefaultCollection = Collection{}

// metaSpaceID is the reserved physical prefix holding the collection
// registry and the persisted commit sequence. No user collection ever
// receives it.
const metaSpaceID uint32 = math.MaxUint32

const physicalKeySize = 4 + 8

// physicalKey maps (collection, key) onto the backend's flat key-space:
// a big-endian u32 collection id followed by the big-endian key.
func physicalKey(col Collection, key Key) []byte {
	var b [physicalKeySize]byte
	binary.BigEndian.PutUint32(b[:4], col.id)
	binary.BigEndian.PutUint64(b[4:], uint64(key))
	return b[:]
}

// collectionEnd returns the exclusive upper bound of a collection's
// physical range.
func collectionEnd(col Collection) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], col.id+1)
	return b[:]
}

func decodePhysicalKey(b []byte) (uint32, Key) {
	return binary.BigEndian.Uint32(b[:4]), Key(binary.BigEndian.Uint64(b[4:physicalKeySize]))
}

var (
	metaSeqKey    = metaKey('s', "")
	metaNextIDKey = metaKey('n', "")
)

func metaKey(tag byte, name string) []byte {
	b := make([]byte, 0, 4+1+len(name))
	b = binary.BigEndian.AppendUint32(b, metaSpaceID)
	b = append(b, tag)
	return append(b, name...)
}

func collectionMetaKey(name string) []byte {
	return metaKey('c', name)
}
