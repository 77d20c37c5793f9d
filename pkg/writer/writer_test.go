package writer

import (
	"context"
	"testing"
	"time"

	"github.com/i5heu/geomodel-db/internal/testutil"
	"github.com/i5heu/geomodel-db/internal/testutil/fixtures"
	"github.com/i5heu/geomodel-db/pkg/dberrors"
	"github.com/i5heu/geomodel-db/pkg/geo"
	"github.com/i5heu/geomodel-db/pkg/index"
	"github.com/i5heu/geomodel-db/pkg/metrics"
	"github.com/i5heu/geomodel-db/pkg/schema"
	"github.com/i5heu/geomodel-db/pkg/store"
	"github.com/i5heu/geomodel-db/pkg/trf"
	"github.com/i5heu/geomodel-db/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func childPositions(t *testing.T, b store.Backend) []index.ChildEntry {
	t.Helper()
	rows, err := b.Scan(context.Background(), schema.ChildPositions)
	require.NoError(t, err)
	out := make([]index.ChildEntry, len(rows))
	for i, r := range rows {
		out[i], err = schema.ParseChildPosition(r)
		require.NoError(t, err)
	}
	return out
}

func rowCount(t *testing.T, b store.Backend, table string) int {
	t.Helper()
	rows, err := b.Scan(context.Background(), table)
	require.NoError(t, err)
	return len(rows)
}

func assertEmpty(t *testing.T, b store.Backend) {
	t.Helper()
	tables, err := b.Tables(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tables, "the failed write left tables behind")
}

func TestWrite_Detector(t *testing.T) {
	ctx := context.Background()
	fixtures.ForEachBackend(t, func(t *testing.T, open testutil.OpenFunc) {
		b := open(t)
		d := fixtures.NewDetector()
		reg := prometheus.NewRegistry()
		m := metrics.New(reg)
		fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		w := New(b, WithMetrics(m), WithGraphID("sample"), WithClock(func() time.Time { return fixed }))
		res, err := w.Write(ctx, d.G)
		require.NoError(t, err)

		assert.Equal(t, "sample", res.GraphID)
		assert.Equal(t, types.Ref{Kind: types.PhysVol, ID: 1}, res.Root)
		want := map[types.Kind]int{
			types.Element: 3, types.Material: 2, types.Shape: 5, types.LogVol: 4,
			types.PhysVol: 2, types.FullPhysVol: 3, types.Transform: 3, types.AlignableTransform: 1,
			types.NameTag: 2, types.IdentifierTag: 1, types.SerialIdentifier: 1,
			types.SerialDenominator: 1, types.Function: 1, types.SerialTransformer: 1,
		}
		for k, n := range want {
			assert.Equal(t, n, res.Nodes[k], "nodes of %s", k)
			assert.Equal(t, n, rowCount(t, b, k.Table()), "rows of %s", k.Table())
			assert.Equal(t, n, res.Rows[k.Table()])
		}
		assert.Equal(t, 3, rowCount(t, b, schema.MaterialComponents))
		assert.Equal(t, 2, rowCount(t, b, schema.ShapeOperands))
		assert.Equal(t, 19, rowCount(t, b, schema.ChildPositions))
		assert.Equal(t, len(types.AllKinds), rowCount(t, b, schema.NodeKinds))
		assert.Equal(t, uint64(3), res.DedupHits[types.PhysVol])
		assert.Equal(t, float64(3), promtest.ToFloat64(m.DedupHits.WithLabelValues("PhysVol")))
		assert.Equal(t, float64(19), promtest.ToFloat64(m.RowsWritten.WithLabelValues(schema.ChildPositions)))

		rows, err := b.Scan(ctx, schema.DBVersion)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		version, err := schema.ParseVersion(rows[0])
		require.NoError(t, err)
		assert.Equal(t, int32(schema.Version), version.Version)
		assert.Equal(t, "sample", version.GraphID)
		assert.True(t, fixed.Equal(version.CreatedAt))

		rows, err = b.Scan(ctx, schema.RootVolume)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		root, err := schema.ParseRootVolume(rows[0])
		require.NoError(t, err)
		assert.Equal(t, res.Root, root)
	})
}

func TestWrite_ShapeOperandsPrecedeShape(t *testing.T) {
	ctx := context.Background()
	b := fixtures.OpenSQLite(t)
	d := fixtures.NewDetector()
	_, err := New(b).Write(ctx, d.G)
	require.NoError(t, err)

	rows, err := b.Scan(ctx, schema.ShapeOperands)
	require.NoError(t, err)
	for _, r := range rows {
		op, err := schema.ParseOperand(r)
		require.NoError(t, err)
		assert.Less(t, op.Operand, op.Shape)
	}
}

func TestWrite_DedupAndCopyNumbers(t *testing.T) {
	ctx := context.Background()
	fixtures.ForEachBackend(t, func(t *testing.T, open testutil.OpenFunc) {
		b := open(t)
		g := geo.New()
		mat := g.NewMaterial("Vacuum", 0)
		box := g.NewShape("Box", []float64{1, 1, 1})
		lv := g.NewLogVol("Cell", box, mat)
		root := g.NewRootVolume(lv)
		other := g.NewPhysVol(lv)
		cell := g.NewPhysVol(lv)
		tag := g.NewNameTag("cell")

		const n = 4
		g.AddChild(root, other)
		for i := 0; i < n; i++ {
			g.AddChild(root, tag)
			g.AddChild(root, cell)
			g.AddChild(other, cell)
		}

		_, err := New(b).Write(ctx, g)
		require.NoError(t, err)

		assert.Equal(t, 3, rowCount(t, b, types.PhysVol.Table()))
		assert.Equal(t, 1, rowCount(t, b, types.NameTag.Table()))
		assert.Equal(t, 1, rowCount(t, b, types.LogVol.Table()))

		cellRef := types.Ref{Kind: types.PhysVol, ID: 3}
		copiesUnder := map[types.Ref][]uint32{}
		positions := map[types.Ref][]uint32{}
		for _, e := range childPositions(t, b) {
			positions[e.Parent] = append(positions[e.Parent], e.Position)
			if e.Child == cellRef {
				copiesUnder[e.Parent] = append(copiesUnder[e.Parent], e.CopyNumber)
			}
		}
		rootRef := types.Ref{Kind: types.PhysVol, ID: 1}
		otherRef := types.Ref{Kind: types.PhysVol, ID: 2}
		assert.Equal(t, []uint32{0, 1, 2, 3}, copiesUnder[rootRef])
		assert.Equal(t, []uint32{0, 1, 2, 3}, copiesUnder[otherRef])
		assert.Equal(t, []uint32{0, 1, 2, 3, 4, 5, 6, 7, 8}, positions[rootRef])
		assert.Equal(t, []uint32{0, 1, 2, 3}, positions[otherRef])
	})
}

func TestWrite_CopyNumbersIgnoreSiblings(t *testing.T) {
	ctx := context.Background()
	fixtures.ForEachBackend(t, func(t *testing.T, open testutil.OpenFunc) {
		b := open(t)
		g := geo.New()
		lv := g.NewLogVol("Cell", g.NewShape("Box", []float64{1, 1, 1}), g.NewMaterial("Vacuum", 0))
		root := g.NewRootVolume(lv)
		a := g.NewPhysVol(lv)
		c := g.NewPhysVol(lv)
		g.AddChild(root, a)
		g.AddChild(root, c)
		g.AddChild(root, a)
		g.AddChild(root, c)
		g.AddChild(root, a)

		_, err := New(b).Write(ctx, g)
		require.NoError(t, err)

		copies := map[types.Ref][]uint32{}
		for _, e := range childPositions(t, b) {
			copies[e.Child] = append(copies[e.Child], e.CopyNumber)
		}
		assert.Equal(t, []uint32{0, 1, 2}, copies[types.Ref{Kind: types.PhysVol, ID: 2}])
		assert.Equal(t, []uint32{0, 1}, copies[types.Ref{Kind: types.PhysVol, ID: 3}])
	})
}

func TestWrite_Roots(t *testing.T) {
	ctx := context.Background()
	b := fixtures.OpenSQLite(t)

	g := geo.New()
	lv := g.NewLogVol("L", g.NewShape("Box", nil), g.NewMaterial("M", 1))
	g.NewPhysVol(lv)
	_, err := New(b).Write(ctx, g)
	assert.True(t, dberrors.Is(err, dberrors.ErrNoRoot), "got %v", err)

	g.NewRootVolume(lv)
	g.NewRootVolume(lv)
	_, err = New(b).Write(ctx, g)
	assert.True(t, dberrors.Is(err, dberrors.ErrMultipleRoots), "got %v", err)
	assertEmpty(t, b)
}

func TestWrite_RefusesNonEmptyStore(t *testing.T) {
	ctx := context.Background()
	b := fixtures.OpenBadger(t)
	_, err := New(b).Write(ctx, fixtures.NewDetector().G)
	require.NoError(t, err)

	_, err = New(b).Write(ctx, fixtures.NewDetector().G)
	assert.True(t, dberrors.Is(err, dberrors.ErrStoreNotEmpty), "got %v", err)
}

func TestWrite_WriterIsSingleUse(t *testing.T) {
	ctx := context.Background()
	w := New(fixtures.OpenSQLite(t))
	_, err := w.Write(ctx, fixtures.NewDetector().G)
	require.NoError(t, err)
	_, err = w.Write(ctx, fixtures.NewDetector().G)
	assert.Error(t, err)
}

func TestWrite_Cycle(t *testing.T) {
	ctx := context.Background()
	b := fixtures.OpenSQLite(t)
	g := geo.New()
	lv := g.NewLogVol("L", g.NewShape("Box", nil), g.NewMaterial("M", 1))
	root := g.NewRootVolume(lv)
	a := g.NewPhysVol(lv)
	c := g.NewPhysVol(lv)
	g.AddChild(root, a)
	g.AddChild(a, c)
	g.AddChild(c, a)

	_, err := New(b).Write(ctx, g)
	assert.True(t, dberrors.Is(err, dberrors.ErrCorruptGraph), "got %v", err)
	assertEmpty(t, b)
}

func TestWrite_ProducerErrorsAreFatal(t *testing.T) {
	g := geo.New()
	lv := g.NewLogVol("L", g.NewShape("Box", nil), g.NewMaterial("M", 1))
	root := g.NewRootVolume(lv)
	g.AddChild(root, lv)
	_, err := New(fixtures.OpenSQLite(t)).Write(context.Background(), g)
	assert.True(t, dberrors.Is(err, geo.ErrInvalidReference), "got %v", err)
}

func TestWrite_StickyAuxiliaryError(t *testing.T) {
	ctx := context.Background()
	fixtures.ForEachBackend(t, func(t *testing.T, open testutil.OpenFunc) {
		b := open(t)
		w := New(b)
		cols := []string{"id", "name"}
		ts := []types.ColumnType{types.LongInteger, types.String}
		require.NoError(t, w.AddAuxiliaryTable("Names", cols, ts, []types.Row{{types.Long(1), types.Str("A")}}))

		err := w.AppendAuxiliaryRows("Names", types.Row{types.Str("B"), types.Long(2)})
		assert.True(t, dberrors.Is(err, dberrors.ErrSchemaMismatch), "got %v", err)
		err = w.DefineAuxiliaryTable("Names", cols, []types.ColumnType{types.Integer, types.String})
		assert.True(t, dberrors.Is(err, dberrors.ErrDuplicateDefinition), "got %v", err)

		_, err = w.Write(ctx, fixtures.NewDetector().G)
		assert.True(t, dberrors.Is(err, dberrors.ErrSchemaMismatch), "the first recorded error wins, got %v", err)
		assertEmpty(t, b)
	})
}

func TestWrite_PublishersDifferingInCase(t *testing.T) {
	ctx := context.Background()
	fixtures.ForEachBackend(t, func(t *testing.T, open testutil.OpenFunc) {
		b := open(t)
		d := fixtures.NewDetector()
		w := New(b)
		require.NoError(t, w.PublishInt("Test", 1, types.FullPhysVol, d.Barrel))
		err := w.PublishInt("test", 2, types.FullPhysVol, d.Endcap)
		assert.True(t, dberrors.Is(err, dberrors.ErrDuplicateDefinition), "got %v", err)

		_, err = w.Write(ctx, d.G)
		assert.True(t, dberrors.Is(err, dberrors.ErrDuplicateDefinition), "got %v", err)
		assertEmpty(t, b)
	})
}

func TestWrite_AtomicOnLateAdapterFailure(t *testing.T) {
	ctx := context.Background()
	fixtures.ForEachBackend(t, func(t *testing.T, open testutil.OpenFunc) {
		counting := testutil.NewFaultyBackend(open(t))
		_, err := New(counting).Write(ctx, fixtures.NewDetector().G)
		require.NoError(t, err)
		total := counting.Inserts()
		require.Greater(t, total, int64(10))

		faulty := testutil.NewFaultyBackend(open(t))
		faulty.FailInsertAfter = total * 9 / 10
		_, err = New(faulty).Write(ctx, fixtures.NewDetector().G)
		assert.True(t, dberrors.Is(err, dberrors.ErrBackingStoreUnavailable), "got %v", err)
		assert.Equal(t, int64(1), faulty.Rollbacks)
		assertEmpty(t, faulty.Backend)

		failCommit := testutil.NewFaultyBackend(open(t))
		failCommit.FailCommit = true
		_, err = New(failCommit).Write(ctx, fixtures.NewDetector().G)
		assert.True(t, dberrors.Is(err, dberrors.ErrBackingStoreUnavailable), "got %v", err)
		assertEmpty(t, failCommit.Backend)
	})
}

func TestWrite_PublishedNodeOutsideGraph(t *testing.T) {
	ctx := context.Background()
	fixtures.ForEachBackend(t, func(t *testing.T, open testutil.OpenFunc) {
		b := open(t)
		d := fixtures.NewDetector()
		lv := d.G.NewLogVol("Stray", d.G.NewShape("Box", nil), d.Air)
		stray := d.G.NewFullPhysVol(lv)

		w := New(b)
		require.NoError(t, w.PublishInt("Test", 1, types.FullPhysVol, d.Barrel))
		require.NoError(t, w.PublishInt("Test", 2, types.FullPhysVol, stray))
		_, err := w.Write(ctx, d.G)
		assert.True(t, dberrors.Is(err, dberrors.ErrCorruptGraph), "got %v", err)
		assertEmpty(t, b)
	})
}

func TestWrite_PublishedKindMismatch(t *testing.T) {
	ctx := context.Background()
	b := fixtures.OpenSQLite(t)
	d := fixtures.NewDetector()
	w := New(b)
	require.NoError(t, w.PublishString("Test", "a", types.AlignableTransform, d.Barrel))
	_, err := w.Write(ctx, d.G)
	assert.True(t, dberrors.Is(err, dberrors.ErrSchemaMismatch), "got %v", err)
	assertEmpty(t, b)
}

func TestWrite_AlignmentDeltaIsNotStored(t *testing.T) {
	ctx := context.Background()
	b := fixtures.OpenSQLite(t)
	d := fixtures.NewDetector()
	delta := trf.Translate(0, 0.5, 0)
	d.G.SetAlignmentDelta(d.Align, &delta)
	_, err := New(b).Write(ctx, d.G)
	require.NoError(t, err)

	rows, err := b.Scan(ctx, types.AlignableTransform.Table())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	rec, err := schema.ParseTransform(types.AlignableTransform, rows[0])
	require.NoError(t, err)
	assert.True(t, rec.Transform.ApproxEqual(trf.Translate(0, 0, 3000), 0))
}
