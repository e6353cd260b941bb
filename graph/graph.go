package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/okapidb/okapi"
	"github.com/okapidb/okapi/pkg/log"
)

// upsertRetries bounds the internal retry loop when a mutation runs in its
// own transaction and loses the serialization race.
const upsertRetries = 8

// Graph is an adjacency view over one collection. It owns a scratch arena
// reused across calls, so a Graph is not safe for concurrent use; create
// one per goroutine over the same collection instead.
type Graph struct {
	db    *okapi.DB
	col   okapi.Collection
	arena *okapi.Arena
}

func New(d *okapi.DB, col okapi.Collection) *Graph {
	return &Graph{db: d, col: col, arena: okapi.NewArena()}
}

// delta accumulates the neighborship additions or removals of one vertex.
type delta struct {
	out []Neighborship
	in  []Neighborship
}

// UpsertEdges inserts edges into the graph. Both endpoints of every edge
// are updated; sublists stay sorted and deduplicated, so upserting an
// existing edge is a no-op. With a nil transaction the upsert runs in its
// own transaction and retries a bounded number of times on conflict.
func (g *Graph) UpsertEdges(txn *okapi.Txn, edges []Edge) error {
	return g.mutate(txn, edges, false)
}

// RemoveEdges deletes exact (source, target, id) matches from both
// endpoints. Removing an absent edge is a no-op.
func (g *Graph) RemoveEdges(txn *okapi.Txn, edges []Edge) error {
	return g.mutate(txn, edges, true)
}

func (g *Graph) mutate(txn *okapi.Txn, edges []Edge, remove bool) error {
	if len(edges) == 0 {
		return nil
	}
	for _, e := range edges {
		if e.Source == okapi.KeyUnknown || e.Target == okapi.KeyUnknown {
			return fmt.Errorf("%w: edge endpoint is the reserved key", okapi.ErrArgsInvalid)
		}
	}
	if txn != nil {
		return g.applyEdges(txn, edges, remove)
	}

	var err error
	for attempt := 0; attempt < upsertRetries; attempt++ {
		t, berr := g.db.Begin(okapi.TxnOptions{})
		if berr != nil {
			return berr
		}
		err = g.applyEdges(t, edges, remove)
		if err == nil {
			_, err = t.Commit(0)
		}
		if cerr := t.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err == nil {
			return nil
		}
		if !errors.Is(err, okapi.ErrConflict) {
			return err
		}
		log.Graph.Debug().Int("attempt", attempt+1).Msg("edge mutation lost serialization race")
	}
	return err
}

// applyEdges groups edges by endpoint, reads every touched vertex in one
// batch, folds the deltas into the decoded sublists and stages the
// re-encoded blobs. Endpoints are processed in ascending vertex order so
// concurrent writers touching the same vertices conflict deterministically.
func (g *Graph) applyEdges(txn *okapi.Txn, edges []Edge, remove bool) error {
	pending := make(map[okapi.Key]*delta)
	touch := func(v okapi.Key) *delta {
		d := pending[v]
		if d == nil {
			d = &delta{}
			pending[v] = d
		}
		return d
	}
	for _, e := range edges {
		src := touch(e.Source)
		src.out = append(src.out, Neighborship{Neighbor: e.Target, Edge: e.ID})
		tgt := touch(e.Target)
		tgt.in = append(tgt.in, Neighborship{Neighbor: e.Source, Edge: e.ID})
	}

	vertices := make([]okapi.Key, 0, len(pending))
	for v := range pending {
		vertices = append(vertices, v)
	}
	sort.Slice(vertices, func(i, j int) bool { return vertices[i] < vertices[j] })

	res, err := g.db.Read(txn, okapi.ReadTasks{
		Count:       len(vertices),
		Collections: okapi.Broadcast(g.col),
		Keys:        okapi.Slice(vertices),
	}, 0, g.arena)
	if err != nil {
		return fmt.Errorf("read vertex blobs: %w", err)
	}

	values := make([][]byte, len(vertices))
	for i, v := range vertices {
		blob, _ := res.Value(i)
		outgoing, incoming := Decode(blob)
		d := pending[v]
		if remove {
			outgoing = subtract(outgoing, d.out)
			incoming = subtract(incoming, d.in)
		} else {
			outgoing = merge(outgoing, d.out)
			incoming = merge(incoming, d.in)
		}
		values[i] = Encode(outgoing, incoming)
	}

	return g.db.Write(txn, okapi.WriteTasks{
		Count:       len(vertices),
		Collections: okapi.Broadcast(g.col),
		Keys:        okapi.Slice(vertices),
		Values:      okapi.Slice(values),
	}, 0)
}

// Neighbors returns the requested sublist(s) of a vertex: outgoing for
// RoleSource, incoming for RoleTarget, both concatenated for RoleAny and
// nothing for RoleUnknown. An absent vertex has no neighbors.
func (g *Graph) Neighbors(txn *okapi.Txn, vertex okapi.Key, role Role) ([]Neighborship, error) {
	hood, err := g.Neighborhood(txn, vertex)
	if err != nil {
		return nil, err
	}
	switch role {
	case RoleSource:
		return hood.Outgoing, nil
	case RoleTarget:
		return hood.Incoming, nil
	case RoleAny:
		both := make([]Neighborship, 0, len(hood.Outgoing)+len(hood.Incoming))
		both = append(both, hood.Outgoing...)
		return append(both, hood.Incoming...), nil
	}
	return nil, nil
}

// Degree counts a vertex's neighborships in the requested role.
func (g *Graph) Degree(txn *okapi.Txn, vertex okapi.Key, role Role) (int, error) {
	hood, err := g.Neighborhood(txn, vertex)
	if err != nil {
		return 0, err
	}
	switch role {
	case RoleSource:
		return len(hood.Outgoing), nil
	case RoleTarget:
		return len(hood.Incoming), nil
	case RoleAny:
		return len(hood.Outgoing) + len(hood.Incoming), nil
	}
	return 0, nil
}

// Neighborhood reads and decodes a vertex's whole adjacency entry.
func (g *Graph) Neighborhood(txn *okapi.Txn, vertex okapi.Key) (Neighborhood, error) {
	res, err := g.db.Read(txn, okapi.SingleRead(g.col, vertex), 0, g.arena)
	if err != nil {
		return Neighborhood{}, fmt.Errorf("read vertex blob: %w", err)
	}
	blob, _ := res.Value(0)
	outgoing, incoming := Decode(blob)
	return Neighborhood{Center: vertex, Outgoing: outgoing, Incoming: incoming}, nil
}

// Neighborhood is a decoded vertex: who it points at and who points at it.
type Neighborhood struct {
	Center   okapi.Key
	Outgoing []Neighborship
	Incoming []Neighborship
}

// Size is the total number of neighborships.
func (n Neighborhood) Size() int {
	return len(n.Outgoing) + len(n.Incoming)
}

// OutgoingEdges materializes the outgoing sublist as full edges with the
// center as source.
func (n Neighborhood) OutgoingEdges() []Edge {
	edges := make([]Edge, len(n.Outgoing))
	for i, ship := range n.Outgoing {
		edges[i] = Edge{Source: n.Center, Target: ship.Neighbor, ID: ship.Edge}
	}
	return edges
}

// IncomingEdges materializes the incoming sublist as full edges with the
// center as target.
func (n Neighborhood) IncomingEdges() []Edge {
	edges := make([]Edge, len(n.Incoming))
	for i, ship := range n.Incoming {
		edges[i] = Edge{Source: ship.Neighbor, Target: n.Center, ID: ship.Edge}
	}
	return edges
}
