// Package okapi is a transactional key-value engine with named collections,
// serializable optimistic transactions and strided batch APIs.
//
// Keys are unsigned 64-bit integers; values are opaque byte blobs. Requests
// are expressed as structure-of-arrays batches whose arrays carry an element
// stride (stride zero broadcasts one element to every task). Read and scan
// results are materialized into a caller-owned Arena as length-prefixed
// tapes and returned as views that stay valid until the arena is reused.
//
// Transactions capture a snapshot at begin, stage writes locally and
// validate their watched reads at commit under a single serialization
// point, so every successful commit owns a unique, strictly increasing
// sequence number. The storage backend is pluggable; persistent (pebble)
// and in-memory (B-tree) backends ship in pkg/db.
//
// The graph subpackage layers an adjacency-list view on top of the same
// transactional path.
package okapi
