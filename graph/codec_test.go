package graph

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okapidb/okapi"
)

func TestRoleInvert(t *testing.T) {
	assert.Equal(t, RoleTarget, RoleSource.Invert())
	assert.Equal(t, RoleSource, RoleTarget.Invert())
	assert.Equal(t, RoleUnknown, RoleAny.Invert())
	assert.Equal(t, RoleAny, RoleUnknown.Invert())

	// Invert is an involution on all four variants.
	for _, r := range []Role{RoleUnknown, RoleSource, RoleTarget, RoleAny} {
		assert.Equal(t, r, r.Invert().Invert())
	}
}

func TestCodecRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	randomList := func(n int) []Neighborship {
		list := make([]Neighborship, n)
		for i := range list {
			// A narrow id range provokes duplicates.
			list[i] = Neighborship{
				Neighbor: okapi.Key(rng.Intn(16)),
				Edge:     okapi.Key(rng.Intn(8)),
			}
		}
		return list
	}

	sortDedup := func(list []Neighborship) []Neighborship {
		seen := make(map[Neighborship]struct{})
		var out []Neighborship
		for _, n := range list {
			if _, ok := seen[n]; !ok {
				seen[n] = struct{}{}
				out = append(out, n)
			}
		}
		sort.Slice(out, func(i, j int) bool { return neighborshipLess(out[i], out[j]) })
		return out
	}

	for trial := 0; trial < 200; trial++ {
		outgoing := randomList(rng.Intn(20))
		incoming := randomList(rng.Intn(20))

		gotOut, gotIn := Decode(Encode(outgoing, incoming))
		assert.Equal(t, sortDedup(outgoing), gotOut)
		assert.Equal(t, sortDedup(incoming), gotIn)
	}
}

func TestDecodeTotality(t *testing.T) {
	// Blobs shorter than the header are empty vertices.
	for _, blob := range [][]byte{nil, {}, {1}, {1, 2, 3, 4, 5, 6, 7}} {
		out, in := Decode(blob)
		assert.Empty(t, out)
		assert.Empty(t, in)
	}

	// A blob whose declared degrees exceed its payload is an empty vertex.
	truncated := Encode([]Neighborship{{Neighbor: 1, Edge: 2}}, nil)
	out, in := Decode(truncated[:len(truncated)-1])
	assert.Empty(t, out)
	assert.Empty(t, in)

	// Trailing unknown bytes are tolerated.
	extended := append(Encode([]Neighborship{{Neighbor: 1, Edge: 2}}, nil), 0xDE, 0xAD)
	out, in = Decode(extended)
	assert.Equal(t, []Neighborship{{Neighbor: 1, Edge: 2}}, out)
	assert.Empty(t, in)
}

func TestEncodeIsCanonical(t *testing.T) {
	a := Encode([]Neighborship{{3, 1}, {2, 9}, {3, 1}, {2, 4}}, nil)
	b := Encode([]Neighborship{{2, 4}, {3, 1}, {2, 9}}, nil)
	require.Equal(t, a, b)

	out, _ := Decode(a)
	assert.Equal(t, []Neighborship{{2, 4}, {2, 9}, {3, 1}}, out)
}

func TestEmptyVertexEncoding(t *testing.T) {
	blob := Encode(nil, nil)
	assert.Len(t, blob, headerSize)
	out, in := Decode(blob)
	assert.Empty(t, out)
	assert.Empty(t, in)
}
