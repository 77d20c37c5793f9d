package index

import (
	"testing"

	"github.com/i5heu/geomodel-db/pkg/dberrors"
	"github.com/i5heu/geomodel-db/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressRegistry_ResolveRegister(t *testing.T) {
	r := NewAddressRegistry[int]()

	if _, ok := r.Resolve(types.Shape, 7); ok {
		t.Fatalf("empty registry resolved an identity")
	}

	id := r.Next(types.Shape)
	assert.Equal(t, types.StoredID(1), id)
	r.Register(types.Shape, 7, id)

	got, ok := r.Resolve(types.Shape, 7)
	require.True(t, ok)
	assert.Equal(t, id, got)

	// the same identity under another kind is a different node
	_, ok = r.Resolve(types.Material, 7)
	assert.False(t, ok)

	assert.Equal(t, types.StoredID(2), r.Next(types.Shape))
	assert.Equal(t, types.StoredID(1), r.Next(types.Material))
	assert.Equal(t, 1, r.Count(types.Shape))
	assert.Equal(t, uint64(1), r.Hits(types.Shape))
}

func TestAddressRegistry_RegisterTwicePanics(t *testing.T) {
	r := NewAddressRegistry[string]()
	r.Register(types.LogVol, "a", 1)
	assert.Panics(t, func() { r.Register(types.LogVol, "a", 2) })
}

func TestAddressRegistry_RegisterAdvancesNext(t *testing.T) {
	r := NewAddressRegistry[string]()
	r.Register(types.PhysVol, "a", 5)
	r.Register(types.PhysVol, "b", 3)
	assert.Equal(t, types.StoredID(6), r.Next(types.PhysVol))
	assert.Equal(t, 2, r.Count(types.PhysVol))
}

func ref(k types.Kind, id types.StoredID) types.Ref { return types.Ref{Kind: k, ID: id} }

func TestChildPositions_AppendNumbersCopiesPerChild(t *testing.T) {
	c := NewChildPositions()
	world := ref(types.PhysVol, 1)
	other := ref(types.PhysVol, 9)

	assert.Equal(t, uint32(0), c.Append(world, ref(types.Transform, 1)))
	assert.Equal(t, uint32(0), c.Append(world, ref(types.PhysVol, 2)))
	assert.Equal(t, uint32(1), c.Append(world, ref(types.Transform, 1)))
	assert.Equal(t, uint32(1), c.Append(world, ref(types.PhysVol, 2)))
	assert.Equal(t, uint32(0), c.Append(world, ref(types.PhysVol, 3)))
	assert.Equal(t, uint32(0), c.Append(other, ref(types.PhysVol, 2)))

	children := c.ChildrenOf(world)
	require.Len(t, children, 5)
	for i, e := range children {
		assert.Equal(t, uint32(i), e.Position)
	}
	assert.Equal(t, ref(types.PhysVol, 3), children[4].Child)

	assert.Equal(t, 6, c.Len())
	assert.Equal(t, []types.Ref{world, other}, c.Parents())
	assert.Equal(t, []types.Ref{world, other}, c.ParentsOf(ref(types.PhysVol, 2)))
	assert.Len(t, c.Children(), 3)
	assert.Empty(t, c.ChildrenOf(ref(types.FullPhysVol, 1)))
}

func TestChildPositions_LoadRoundTrip(t *testing.T) {
	w := NewChildPositions()
	world := ref(types.PhysVol, 1)
	w.Append(world, ref(types.NameTag, 1))
	w.Append(world, ref(types.FullPhysVol, 1))
	w.Append(ref(types.FullPhysVol, 1), ref(types.PhysVol, 2))
	w.Append(world, ref(types.FullPhysVol, 2))

	rows := w.Rows()
	// storage order does not matter
	shuffled := []ChildEntry{rows[3], rows[2], rows[0], rows[1]}

	r := NewChildPositions()
	require.NoError(t, r.Load(shuffled))
	assert.Equal(t, w.ChildrenOf(world), r.ChildrenOf(world))
	assert.Equal(t, uint32(0), r.Append(world, ref(types.FullPhysVol, 3)))
	assert.Equal(t, uint32(1), r.Append(world, ref(types.FullPhysVol, 2)))
}

func TestChildPositions_LoadRejectsGaps(t *testing.T) {
	world := ref(types.PhysVol, 1)
	cases := map[string][]ChildEntry{
		"gap": {
			{Parent: world, Position: 0, Child: ref(types.PhysVol, 2)},
			{Parent: world, Position: 2, Child: ref(types.PhysVol, 3)},
			{Parent: ref(types.PhysVol, 5), Position: 0, Child: ref(types.PhysVol, 3)},
		},
		"duplicate": {
			{Parent: world, Position: 0, Child: ref(types.PhysVol, 2)},
			{Parent: world, Position: 0, Child: ref(types.PhysVol, 3)},
		},
		"not a container": {
			{Parent: ref(types.LogVol, 1), Position: 0, Child: ref(types.PhysVol, 2)},
		},
		"out of range": {
			{Parent: world, Position: 1 << 30, Child: ref(types.PhysVol, 2)},
		},
	}
	for name, entries := range cases {
		err := NewChildPositions().Load(entries)
		if assert.Error(t, err, name) {
			assert.True(t, dberrors.Is(err, dberrors.ErrCorruptGraph), name)
		}
	}
}
