// Package graph layers an adjacency-list view on top of the engine's
// transactional KV path. Every vertex owns one KV entry whose value is its
// serialized neighborhood; edge upserts and gathers are ordinary
// transactional reads and writes, so concurrent graph mutations inherit
// the engine's serializability guarantees.
package graph

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/okapidb/okapi"
)

// AnonymousEdge is the reserved edge id for edges without an identity.
// Callers may not use it as a real edge id.
const AnonymousEdge okapi.Key = math.MaxUint64 - 1

// Edge is a directed edge between two vertices, optionally carrying an
// edge id.
type Edge struct {
	Source okapi.Key
	Target okapi.Key
	ID     okapi.Key
}

// Neighborship is one asymmetric slice of an edge as seen from a vertex:
// the vertex on the other side and the edge id. A vertex stores its
// outgoing and incoming neighborships in sorted, deduplicated order.
type Neighborship struct {
	Neighbor okapi.Key
	Edge     okapi.Key
}

func neighborshipLess(a, b Neighborship) bool {
	if a.Neighbor != b.Neighbor {
		return a.Neighbor < b.Neighbor
	}
	return a.Edge < b.Edge
}

// Role selects which side of a vertex's neighborhood an operation touches.
type Role uint8

const (
	RoleUnknown Role = iota
	RoleSource       // the vertex is the source: its outgoing edges
	RoleTarget       // the vertex is the target: its incoming edges
	RoleAny          // both sublists
)

// Invert swaps source with target and any with unknown. Traversal helpers
// use it to read the opposite side of a relation.
func (r Role) Invert() Role {
	switch r {
	case RoleSource:
		return RoleTarget
	case RoleTarget:
		return RoleSource
	case RoleAny:
		return RoleUnknown
	case RoleUnknown:
		return RoleAny
	}
	return RoleUnknown
}

func (r Role) String() string {
	switch r {
	case RoleSource:
		return "source"
	case RoleTarget:
		return "target"
	case RoleAny:
		return "any"
	}
	return "unknown"
}

// Blob layout, little-endian:
//
//	[ outDegree : u32 ][ inDegree : u32 ]
//	[ outgoing  : (neighbor u64, edge u64) × outDegree ]
//	[ incoming  : (neighbor u64, edge u64) × inDegree  ]
//
// Consumers tolerate trailing unknown bytes; a blob too short for its
// declared degrees, like one shorter than the header, reads as an empty
// vertex.
const (
	headerSize = 8
	entrySize  = 16
)

// Decode parses a vertex blob into its outgoing and incoming sublists.
// Parsing is total: malformed input degrades to an empty vertex.
func Decode(blob []byte) (outgoing, incoming []Neighborship) {
	if len(blob) < headerSize {
		return nil, nil
	}
	outDegree := int(binary.LittleEndian.Uint32(blob[0:4]))
	inDegree := int(binary.LittleEndian.Uint32(blob[4:8]))
	need := headerSize + (outDegree+inDegree)*entrySize
	if need < 0 || len(blob) < need {
		return nil, nil
	}
	return decodeList(blob[headerSize:], outDegree),
		decodeList(blob[headerSize+outDegree*entrySize:], inDegree)
}

func decodeList(b []byte, degree int) []Neighborship {
	if degree == 0 {
		return nil
	}
	out := make([]Neighborship, degree)
	for i := range out {
		out[i].Neighbor = okapi.Key(binary.LittleEndian.Uint64(b[i*entrySize:]))
		out[i].Edge = okapi.Key(binary.LittleEndian.Uint64(b[i*entrySize+8:]))
	}
	return out
}

// Encode serializes a vertex's sublists, normalizing each to sorted,
// deduplicated order first. Two vertices with the same neighborhoods
// encode to identical blobs.
func Encode(outgoing, incoming []Neighborship) []byte {
	outgoing = normalize(outgoing)
	incoming = normalize(incoming)

	blob := make([]byte, headerSize+(len(outgoing)+len(incoming))*entrySize)
	binary.LittleEndian.PutUint32(blob[0:4], uint32(len(outgoing)))
	binary.LittleEndian.PutUint32(blob[4:8], uint32(len(incoming)))
	encodeList(blob[headerSize:], outgoing)
	encodeList(blob[headerSize+len(outgoing)*entrySize:], incoming)
	return blob
}

func encodeList(b []byte, list []Neighborship) {
	for i, n := range list {
		binary.LittleEndian.PutUint64(b[i*entrySize:], uint64(n.Neighbor))
		binary.LittleEndian.PutUint64(b[i*entrySize+8:], uint64(n.Edge))
	}
}

// normalize returns a sorted copy with duplicates (structural equality on
// the whole pair) removed.
func normalize(list []Neighborship) []Neighborship {
	if len(list) == 0 {
		return nil
	}
	out := make([]Neighborship, len(list))
	copy(out, list)
	sort.Slice(out, func(i, j int) bool { return neighborshipLess(out[i], out[j]) })
	kept := out[:1]
	for _, n := range out[1:] {
		if n != kept[len(kept)-1] {
			kept = append(kept, n)
		}
	}
	return kept
}

// merge folds additions into a sorted, deduplicated sublist.
func merge(existing, additions []Neighborship) []Neighborship {
	if len(additions) == 0 {
		return existing
	}
	return normalize(append(existing, additions...))
}

// subtract removes every structural match of removals from a sorted
// sublist.
func subtract(existing, removals []Neighborship) []Neighborship {
	if len(existing) == 0 || len(removals) == 0 {
		return existing
	}
	doomed := make(map[Neighborship]struct{}, len(removals))
	for _, n := range removals {
		doomed[n] = struct{}{}
	}
	kept := existing[:0]
	for _, n := range existing {
		if _, ok := doomed[n]; !ok {
			kept = append(kept, n)
		}
	}
	return kept
}
