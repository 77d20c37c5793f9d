package reader

import (
	"context"
	"math"
	"testing"

	"github.com/i5heu/geomodel-db/internal/testutil"
	"github.com/i5heu/geomodel-db/internal/testutil/fixtures"
	"github.com/i5heu/geomodel-db/pkg/dberrors"
	"github.com/i5heu/geomodel-db/pkg/geo"
	"github.com/i5heu/geomodel-db/pkg/index"
	"github.com/i5heu/geomodel-db/pkg/schema"
	"github.com/i5heu/geomodel-db/pkg/store"
	"github.com/i5heu/geomodel-db/pkg/trf"
	"github.com/i5heu/geomodel-db/pkg/types"
	"github.com/i5heu/geomodel-db/pkg/writer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	namesColumns = []string{"id", "name"}
	namesTypes   = []types.ColumnType{types.LongInteger, types.String}
)

func writeDetector(t *testing.T, b store.Backend) *fixtures.Detector {
	t.Helper()
	d := fixtures.NewDetector()
	w := writer.New(b, writer.WithGraphID("detector"))
	require.NoError(t, w.AddAuxiliaryTable("Names", namesColumns, namesTypes, []types.Row{
		{types.Long(1), types.Str("A")},
		{types.Long(3), types.Str("B")},
	}))
	require.NoError(t, w.PublishInt("Test", 1, types.FullPhysVol, d.Barrel))
	require.NoError(t, w.PublishInt("Test", 2, types.FullPhysVol, d.Endcap))
	require.NoError(t, w.PublishString("Alignment", "endcap", types.AlignableTransform, d.Align))
	_, err := w.Write(context.Background(), d.G)
	require.NoError(t, err)
	return d
}

func readBack(t *testing.T, b store.Backend) (*Session, *geo.Graph) {
	t.Helper()
	s := New(b)
	g, err := s.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, Ready, s.State())
	return s, g
}

func TestRead_RoundTrip(t *testing.T) {
	fixtures.ForEachBackend(t, func(t *testing.T, open testutil.OpenFunc) {
		b := open(t)
		d := writeDetector(t, b)
		s, g := readBack(t, b)

		require.NoError(t, geo.Compare(d.G, g))
		assert.Same(t, g, s.Graph())
		assert.Equal(t, "detector", s.Version().GraphID)
		assert.Equal(t, types.Ref{Kind: types.PhysVol, ID: 1}, s.Root())

		root, ok := s.NodeFor(s.Root())
		require.True(t, ok)
		assert.Equal(t, root, g.Root())
		ref, ok := s.RefFor(root)
		require.True(t, ok)
		assert.Equal(t, s.Root(), ref)

		barrel, ok := s.RefFor(g.Children(root)[1])
		require.True(t, ok)
		assert.Equal(t, types.FullPhysVol, barrel.Kind)
		assert.Equal(t, []types.Ref{s.Root()}, s.ParentsOf(barrel))
		assert.Empty(t, s.ParentsOf(s.Root()))

		again, err := s.Read(context.Background())
		require.NoError(t, err)
		assert.Same(t, g, again)
	})
}

func TestRead_OrderingAndSharing(t *testing.T) {
	b := fixtures.OpenSQLite(t)
	writeDetector(t, b)
	_, g := readBack(t, b)

	world := g.Children(g.Root())
	kinds := make([]types.Kind, len(world))
	for i, c := range world {
		kinds[i] = g.Kind(c)
	}
	assert.Equal(t, []types.Kind{
		types.NameTag, types.FullPhysVol, types.Transform, types.FullPhysVol,
		types.AlignableTransform, types.FullPhysVol, types.SerialTransformer,
	}, kinds)
	assert.Equal(t, world[1], world[3], "the barrel is one shared node")
	assert.NotEqual(t, world[1], world[5])

	barrel := g.Children(world[1])
	require.Len(t, barrel, 8)
	assert.Equal(t, types.SerialDenominator, g.Kind(barrel[0]))
	assert.Equal(t, types.SerialIdentifier, g.Kind(barrel[1]))
	for _, i := range []int{2, 4, 6} {
		assert.Equal(t, barrel[2], barrel[i], "step transform")
		assert.Equal(t, barrel[3], barrel[i+1], "module")
	}
	ring := g.SerialTransformer(world[6])
	require.NotNil(t, ring)
	assert.Equal(t, barrel[3], ring.Volume)
	assert.Equal(t, uint32(8), ring.Copies)

	module := g.Children(barrel[3])
	require.Len(t, module, 4)
	assert.Equal(t, "Sensor", g.Node(module[0]).Data.(*geo.NameTag).Name)
	assert.Equal(t, int32(42), g.Node(module[1]).Data.(*geo.IdentifierTag).Value)

	// both logical volumes made of air share one material node
	barrelLV := g.LogVol(g.Volume(world[1]).LogVol)
	worldLV := g.LogVol(g.Volume(g.Root()).LogVol)
	assert.Equal(t, worldLV.Material, barrelLV.Material)
	assert.Equal(t, g.Volume(world[1]).LogVol, g.Volume(world[5]).LogVol)
}

func TestRead_AbsolutePlacements(t *testing.T) {
	b := fixtures.OpenBadger(t)
	writeDetector(t, b)
	_, g := readBack(t, b)

	world := g.Children(g.Root())
	endcap := g.Volume(world[5])
	require.True(t, endcap.HasAbsolute)
	assert.True(t, endcap.Absolute.ApproxEqual(trf.Translate(0, 0, 3000), 1e-12))

	barrel := g.Children(world[1])
	sensor := g.Volume(g.Children(barrel[3])[3])
	require.True(t, sensor.HasAbsolute)
	want := trf.RotateZ(math.Pi / 8).Mul(trf.Translate(0, 0, 0.1))
	assert.True(t, sensor.Absolute.ApproxEqual(want, 1e-12), "got %s", sensor.Absolute)
}

func TestRead_AuxiliaryTables(t *testing.T) {
	fixtures.ForEachBackend(t, func(t *testing.T, open testutil.OpenFunc) {
		b := open(t)
		writeDetector(t, b)
		s, _ := readBack(t, b)

		names, ok := s.Aux().Table("Names")
		require.True(t, ok)
		assert.Equal(t, namesColumns, names.Columns)
		assert.Equal(t, namesTypes, names.Types)
		require.Equal(t, 2, names.Len())
		for i, want := range []struct {
			id   int64
			name string
		}{{1, "A"}, {3, "B"}} {
			id, ok, err := names.Long(i, 0)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, want.id, id)
			name, _, err := names.String(i, 1)
			require.NoError(t, err)
			assert.Equal(t, want.name, name)
		}
	})
}

func TestRead_PublishedNodes(t *testing.T) {
	ctx := context.Background()
	fixtures.ForEachBackend(t, func(t *testing.T, open testutil.OpenFunc) {
		b := open(t)
		writeDetector(t, b)
		s, g := readBack(t, b)
		world := g.Children(g.Root())

		vols, err := PublishedFullPhysVols[int64](ctx, s, "Test", true)
		require.NoError(t, err)
		assert.Equal(t, map[int64]geo.NodeID{1: world[1], 2: world[5]}, vols)

		aligns, err := PublishedAlignableTransforms[string](ctx, s, "Alignment", true)
		require.NoError(t, err)
		assert.Equal(t, map[string]geo.NodeID{"endcap": world[4]}, aligns)

		// same publisher, other key type
		lax, err := PublishedFullPhysVols[string](ctx, s, "Test", false)
		require.NoError(t, err)
		assert.Empty(t, lax)
		_, err = PublishedFullPhysVols[string](ctx, s, "Test", true)
		assert.True(t, dberrors.Is(err, dberrors.ErrMissingPublication), "got %v", err)

		lax, err = PublishedFullPhysVols[string](ctx, s, "Nobody", false)
		require.NoError(t, err)
		assert.Empty(t, lax)
	})
}

func TestRead_RewriteKeepsRowCounts(t *testing.T) {
	ctx := context.Background()
	fixtures.ForEachBackend(t, func(t *testing.T, open testutil.OpenFunc) {
		first := open(t)
		writeDetector(t, first)
		_, g := readBack(t, first)

		second := open(t)
		_, err := writer.New(second).Write(ctx, g)
		require.NoError(t, err)

		for _, def := range schema.All() {
			if def.Name == schema.AuxTables || def.Name == schema.DBVersion {
				continue
			}
			a, err := first.Scan(ctx, def.Name)
			require.NoError(t, err)
			c, err := second.Scan(ctx, def.Name)
			require.NoError(t, err)
			assert.Equal(t, len(a), len(c), def.Name)
		}

		_, again := readBack(t, second)
		assert.NoError(t, geo.Compare(g, again))
	})
}

func TestRead_EmptyStore(t *testing.T) {
	fixtures.ForEachBackend(t, func(t *testing.T, open testutil.OpenFunc) {
		s := New(open(t))
		g, err := s.Read(context.Background())
		assert.Nil(t, g)
		assert.True(t, dberrors.Is(err, dberrors.ErrMissingTable), "got %v", err)
		assert.Equal(t, Failed, s.State())

		_, err = s.Read(context.Background())
		assert.True(t, dberrors.Is(err, dberrors.ErrSessionFailed), "got %v", err)
		assert.True(t, dberrors.Is(err, dberrors.ErrMissingTable), "the first failure stays visible, got %v", err)

		_, err = PublishedFullPhysVols[int64](context.Background(), s, "Test", false)
		assert.True(t, dberrors.Is(err, dberrors.ErrSessionFailed), "got %v", err)
	})
}

func TestRead_NotReady(t *testing.T) {
	s := New(fixtures.OpenSQLite(t))
	assert.Equal(t, Unopened, s.State())
	assert.Nil(t, s.Graph())
	assert.Nil(t, s.Aux())
	_, ok := s.NodeFor(types.Ref{Kind: types.PhysVol, ID: 1})
	assert.False(t, ok)
	assert.Nil(t, s.ParentsOf(types.Ref{Kind: types.PhysVol, ID: 1}))
	_, err := PublishedAlignableTransforms[string](context.Background(), s, "Alignment", false)
	assert.Error(t, err)
}

func TestRead_CancelledContext(t *testing.T) {
	b := fixtures.OpenSQLite(t)
	writeDetector(t, b)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(b)
	_, err := s.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Failed, s.State())
}

// copyStore copies every committed table of src into dst, letting mutate rewrite rows.
func copyStore(t *testing.T, src, dst store.Backend, mutate func(table string, rows []types.Row) []types.Row) {
	t.Helper()
	ctx := context.Background()
	tables, err := src.Tables(ctx)
	require.NoError(t, err)

	defs := make([]types.TableDef, len(tables))
	data := make([][]types.Row, len(tables))
	for i, name := range tables {
		defs[i], err = src.Schema(ctx, name)
		require.NoError(t, err)
		rows, err := src.Scan(ctx, name)
		require.NoError(t, err)
		data[i] = mutate(name, rows)
	}

	tx, err := dst.Begin(ctx)
	require.NoError(t, err)
	for i, def := range defs {
		require.NoError(t, tx.CreateTable(ctx, def))
		if len(data[i]) > 0 {
			require.NoError(t, tx.Insert(ctx, def.Name, data[i]...))
		}
	}
	require.NoError(t, tx.Commit())
}

func TestRead_CorruptStores(t *testing.T) {
	src := fixtures.OpenSQLite(t)
	writeDetector(t, src)

	cases := []struct {
		name   string
		mutate func(table string, rows []types.Row) []types.Row
		kind   func(error) bool
	}{
		{
			name: "dangling logvol shape",
			mutate: func(table string, rows []types.Row) []types.Row {
				if table == types.LogVol.Table() {
					rows[0][2] = types.Long(999)
				}
				return rows
			},
		},
		{
			name: "missing child",
			mutate: func(table string, rows []types.Row) []types.Row {
				if table == schema.ChildPositions {
					rows[len(rows)-1][4] = types.Long(999)
				}
				return rows
			},
		},
		{
			name: "duplicate position",
			mutate: func(table string, rows []types.Row) []types.Row {
				if table == schema.ChildPositions {
					rows[1][3] = rows[0][3]
				}
				return rows
			},
		},
		{
			name: "wrong copy number",
			mutate: func(table string, rows []types.Row) []types.Row {
				if table == schema.ChildPositions {
					rows[0][6] = types.Int(5)
				}
				return rows
			},
		},
		{
			name: "lost function literal",
			mutate: func(table string, rows []types.Row) []types.Row {
				if table == schema.FunctionLiterals {
					return rows[:len(rows)-1]
				}
				return rows
			},
		},
		{
			name: "operand newer than shape",
			mutate: func(table string, rows []types.Row) []types.Row {
				if table == schema.ShapeOperands {
					rows[0][2] = types.Long(5)
				}
				return rows
			},
		},
		{
			name: "component of missing material",
			mutate: func(table string, rows []types.Row) []types.Row {
				if table == schema.MaterialComponents {
					rows[0][0] = types.Long(77)
				}
				return rows
			},
		},
		{
			name: "two roots",
			mutate: func(table string, rows []types.Row) []types.Row {
				if table == schema.RootVolume {
					return append(rows, types.Row{types.Long(2), types.Long(2), types.KindValue(types.PhysVol)})
				}
				return rows
			},
		},
		{
			name: "newer schema version",
			mutate: func(table string, rows []types.Row) []types.Row {
				if table == schema.DBVersion {
					rows[0][1] = types.Int(schema.Version + 1)
				}
				return rows
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dst := fixtures.OpenSQLite(t)
			copyStore(t, src, dst, tc.mutate)

			s := New(dst)
			g, err := s.Read(context.Background())
			assert.Nil(t, g)
			assert.Nil(t, s.Graph())
			assert.True(t, dberrors.Is(err, dberrors.ErrCorruptGraph), "got %v", err)
			assert.Equal(t, Failed, s.State())
		})
	}
}

func TestRead_DanglingChildOfUnplacedVolume(t *testing.T) {
	src := fixtures.OpenSQLite(t)
	writeDetector(t, src)

	loose := types.Ref{Kind: types.PhysVol, ID: 900}
	dst := fixtures.OpenSQLite(t)
	copyStore(t, src, dst, func(table string, rows []types.Row) []types.Row {
		switch table {
		case types.PhysVol.Table():
			return append(rows, schema.VolumeRecord{ID: loose.ID, LogVol: 1}.Row())
		case schema.ChildPositions:
			return append(rows, schema.ChildPositionRow(len(rows)+1, index.ChildEntry{
				Parent: loose,
				Child:  types.Ref{Kind: types.PhysVol, ID: 999},
			}))
		}
		return rows
	})

	s := New(dst)
	_, err := s.Read(context.Background())
	assert.True(t, dberrors.Is(err, dberrors.ErrCorruptGraph), "got %v", err)
	assert.ErrorContains(t, err, "child positions reference missing PhysVol:999")
}

func TestRead_MissingKindTable(t *testing.T) {
	src := fixtures.OpenBadger(t)
	writeDetector(t, src)

	ctx := context.Background()
	dst := fixtures.OpenBadger(t)
	tables, err := src.Tables(ctx)
	require.NoError(t, err)
	tx, err := dst.Begin(ctx)
	require.NoError(t, err)
	for _, name := range tables {
		if name == types.Shape.Table() {
			continue
		}
		def, err := src.Schema(ctx, name)
		require.NoError(t, err)
		require.NoError(t, tx.CreateTable(ctx, def))
	}
	require.NoError(t, tx.Commit())

	_, err = New(dst).Read(ctx)
	assert.True(t, dberrors.Is(err, dberrors.ErrMissingTable), "got %v", err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "dependencies resolved", DependenciesResolved.String())
	assert.Equal(t, "state(42)", State(42).String())
}

func TestRead_LayeredGraph(t *testing.T) {
	depth, width := testutil.Size(3, 6), testutil.Size(3, 12)
	fixtures.ForEachBackend(t, func(t *testing.T, open testutil.OpenFunc) {
		b := open(t)
		g := fixtures.NewLayered(depth, width)
		res, err := writer.New(b).Write(context.Background(), g)
		require.NoError(t, err)

		placements := 2*width + (depth-1)*width*2*width
		assert.Equal(t, placements+depth*width, res.Rows[schema.ChildPositions])
		assert.Equal(t, depth*width, res.Rows[types.FullPhysVol.Table()])
		assert.Equal(t, width+(depth-1)*width*width, res.Rows[types.Transform.Table()])

		_, got := readBack(t, b)
		require.NoError(t, geo.Compare(g, got))
	})
}

func TestRead_InterleavedRepeatedChildren(t *testing.T) {
	fixtures.ForEachBackend(t, func(t *testing.T, open testutil.OpenFunc) {
		b := open(t)
		g := geo.New()
		lv := g.NewLogVol("Cell", g.NewShape("Box", []float64{1, 1, 1}), g.NewMaterial("Vacuum", 0))
		root := g.NewRootVolume(lv)
		a, c := g.NewPhysVol(lv), g.NewFullPhysVol(lv)
		step := g.NewTransform(trf.Translate(1, 0, 0))
		for i := 0; i < 3; i++ {
			g.AddChild(root, step)
			g.AddChild(root, a)
			g.AddChild(root, c)
		}
		_, err := writer.New(b).Write(context.Background(), g)
		require.NoError(t, err)

		_, got := readBack(t, b)
		require.NoError(t, geo.Compare(g, got))
		assert.Len(t, got.Children(got.Root()), 9)
	})
}
