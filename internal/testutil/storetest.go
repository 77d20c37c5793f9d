package testutil

import (
	"context"
	"math"
	"testing"

	"github.com/i5heu/geomodel-db/pkg/dberrors"
	"github.com/i5heu/geomodel-db/pkg/store"
	"github.com/i5heu/geomodel-db/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// OpenFunc opens a fresh, empty backend that is closed by the test's cleanup.
type OpenFunc func(t *testing.T) store.Backend

var calibration = types.TableDef{Name: "Calibration", Columns: []types.Column{
	{Name: "channel", Type: types.Integer},
	{Name: "serial", Type: types.LongInteger},
	{Name: "gain", Type: types.Float},
	{Name: "offset", Type: types.Double},
	{Name: "label", Type: types.String},
}}

func calibrationRows() []types.Row {
	return []types.Row{
		{types.Int(1), types.Long(10), types.Float32(0.5), types.Float64(0.1), types.Str("a")},
		{types.Int(math.MinInt32), types.Long(math.MaxInt64), types.Float32(-0.1), types.Float64(math.SmallestNonzeroFloat64), types.Str("Müller")},
		{types.Null(types.Integer), types.Null(types.LongInteger), types.Null(types.Float), types.Null(types.Double), types.Null(types.String)},
		{types.Int(0), types.Long(-1), types.Float32(3), types.Float64(-2), types.Str("")},
	}
}

// AssertRowsEqual compares rows cell by cell so NULLs of the same type compare equal.
func AssertRowsEqual(t *testing.T, want, got []types.Row) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		require.Len(t, got[i], len(want[i]), "row %d", i)
		for j := range want[i] {
			assert.True(t, want[i][j].Equal(got[i][j]), "row %d column %d: want %v (%s), got %v (%s)",
				i, j, want[i][j], want[i][j].Type, got[i][j], got[i][j].Type)
		}
	}
}

// RunBackendSuite checks the behavior every store adapter shares.
func RunBackendSuite(t *testing.T, open OpenFunc) {
	ctx := context.Background()

	t.Run("Empty", func(t *testing.T) {
		b := open(t)
		tables, err := b.Tables(ctx)
		require.NoError(t, err)
		assert.Empty(t, tables)

		ok, err := b.TableExists(ctx, "Calibration")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = b.Scan(ctx, "Calibration")
		assert.True(t, dberrors.Is(err, dberrors.ErrMissingTable), "got %v", err)
		_, err = b.Schema(ctx, "Calibration")
		assert.True(t, dberrors.Is(err, dberrors.ErrMissingTable), "got %v", err)
	})

	t.Run("CommitRoundTrip", func(t *testing.T) {
		b := open(t)
		tx, err := b.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.CreateTable(ctx, calibration))
		require.NoError(t, tx.CreateTable(ctx, types.TableDef{Name: "Empty", Columns: []types.Column{{Name: "id", Type: types.LongInteger}}}))
		rows := calibrationRows()
		require.NoError(t, tx.Insert(ctx, "Calibration", rows[:2]...))
		require.NoError(t, tx.Insert(ctx, "Calibration", rows[2:]...))
		require.NoError(t, tx.Commit())

		tables, err := b.Tables(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"Calibration", "Empty"}, tables)

		def, err := b.Schema(ctx, "Calibration")
		require.NoError(t, err)
		assert.True(t, calibration.SameShape(def), "schema changed: %v", def)

		got, err := b.Scan(ctx, "Calibration")
		require.NoError(t, err)
		AssertRowsEqual(t, rows, got)

		got, err = b.Scan(ctx, "Empty")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("InsertionOrder", func(t *testing.T) {
		b := open(t)
		def := types.TableDef{Name: "Seq", Columns: []types.Column{{Name: "v", Type: types.LongInteger}}}
		tx, err := b.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.CreateTable(ctx, def))
		var want []types.Row
		for i := 0; i < 300; i++ {
			// descending values so sorted storage would show up
			r := types.Row{types.Long(int64(1000 - i))}
			want = append(want, r)
			require.NoError(t, tx.Insert(ctx, "Seq", r))
		}
		require.NoError(t, tx.Commit())
		got, err := b.Scan(ctx, "Seq")
		require.NoError(t, err)
		AssertRowsEqual(t, want, got)
	})

	t.Run("Rollback", func(t *testing.T) {
		b := open(t)
		tx, err := b.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.CreateTable(ctx, calibration))
		require.NoError(t, tx.Insert(ctx, "Calibration", calibrationRows()...))
		require.NoError(t, tx.Rollback())
		// a second rollback is harmless
		require.NoError(t, tx.Rollback())

		tables, err := b.Tables(ctx)
		require.NoError(t, err)
		assert.Empty(t, tables)

		// the same table can be created again afterwards
		tx, err = b.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.CreateTable(ctx, calibration))
		require.NoError(t, tx.Insert(ctx, "Calibration", calibrationRows()[0]))
		require.NoError(t, tx.Commit())
		got, err := b.Scan(ctx, "Calibration")
		require.NoError(t, err)
		AssertRowsEqual(t, calibrationRows()[:1], got)
	})

	t.Run("TableNamesIgnoreCase", func(t *testing.T) {
		b := open(t)
		tx, err := b.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.CreateTable(ctx, calibration))
		lower := types.TableDef{Name: "calibration", Columns: calibration.Columns}
		err = tx.CreateTable(ctx, lower)
		assert.True(t, dberrors.Is(err, dberrors.ErrDuplicateDefinition), "got %v", err)
		require.NoError(t, tx.Commit())

		tx, err = b.Begin(ctx)
		require.NoError(t, err)
		err = tx.CreateTable(ctx, types.TableDef{Name: "CALIBRATION", Columns: calibration.Columns})
		assert.True(t, dberrors.Is(err, dberrors.ErrDuplicateDefinition), "got %v", err)
		require.NoError(t, tx.Rollback())

		tables, err := b.Tables(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"Calibration"}, tables)
	})

	t.Run("NonFiniteFloats", func(t *testing.T) {
		b := open(t)
		def := types.TableDef{Name: "Limits", Columns: []types.Column{
			{Name: "single", Type: types.Float},
			{Name: "double", Type: types.Double},
		}}
		nan := math.NaN()
		rows := []types.Row{
			{types.Float32(float32(nan)), types.Float64(nan)},
			{types.Float32(float32(math.Inf(1))), types.Float64(math.Inf(-1))},
			{types.Null(types.Float), types.Null(types.Double)},
		}
		tx, err := b.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.CreateTable(ctx, def))
		require.NoError(t, tx.Insert(ctx, "Limits", rows...))
		require.NoError(t, tx.Commit())

		got, err := b.Scan(ctx, "Limits")
		require.NoError(t, err)
		require.Len(t, got, 3)
		for j, v := range got[0] {
			require.False(t, v.IsNull(), "NaN in column %d came back as NULL", j)
			assert.True(t, math.IsNaN(v.AsDouble()), "column %d: got %v", j, v)
		}
		assert.Equal(t, types.Float, got[0][0].Type)
		assert.Equal(t, types.Double, got[0][1].Type)
		AssertRowsEqual(t, rows[1:], got[1:])
	})

	t.Run("Errors", func(t *testing.T) {
		b := open(t)
		tx, err := b.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.CreateTable(ctx, calibration))

		err = tx.Insert(ctx, "Nope", types.Row{types.Int(1)})
		assert.True(t, dberrors.Is(err, dberrors.ErrMissingTable), "got %v", err)

		err = tx.Insert(ctx, "Calibration", types.Row{types.Int(1)})
		assert.True(t, dberrors.Is(err, dberrors.ErrSchemaMismatch), "got %v", err)

		bad := calibrationRows()[0]
		bad[0] = types.Str("one")
		err = tx.Insert(ctx, "Calibration", bad)
		assert.True(t, dberrors.Is(err, dberrors.ErrSchemaMismatch), "got %v", err)

		err = tx.CreateTable(ctx, calibration)
		assert.True(t, dberrors.Is(err, dberrors.ErrDuplicateDefinition), "got %v", err)
		require.NoError(t, tx.Commit())
		assert.Error(t, tx.Commit())

		tx, err = b.Begin(ctx)
		require.NoError(t, err)
		err = tx.CreateTable(ctx, calibration)
		assert.True(t, dberrors.Is(err, dberrors.ErrDuplicateDefinition), "got %v", err)
		require.NoError(t, tx.Rollback())
	})
}
