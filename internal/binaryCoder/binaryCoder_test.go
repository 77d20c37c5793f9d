package binaryCoder

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/i5heu/geomodel-db/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allColumns = []types.ColumnType{types.Integer, types.LongInteger, types.Float, types.Double, types.String}

func TestRow_RoundTrip(t *testing.T) {
	row := types.Row{
		types.Int(math.MinInt32),
		types.Long(math.MaxInt64),
		types.Float32(-0.1),
		types.Float64(math.SmallestNonzeroFloat64),
		types.Str("Müller;\x00tail"),
	}
	data, err := RowToByte(row)
	require.NoError(t, err)

	back, err := ByteToRow(data, allColumns)
	require.NoError(t, err)
	assert.Equal(t, row, back)
}

func TestRow_Nulls(t *testing.T) {
	row := types.Row{types.Null(types.Integer), types.Long(0), types.Null(types.Float), types.Float64(0), types.Null(types.String)}
	data, err := RowToByte(row)
	require.NoError(t, err)

	back, err := ByteToRow(data, allColumns)
	require.NoError(t, err)
	for i := range row {
		assert.Equal(t, row[i].IsNull(), back[i].IsNull(), "column %d", i)
		assert.Equal(t, allColumns[i], back[i].Type)
	}
	// an empty string is a value, not NULL
	data, err = RowToByte(types.Row{types.Str("")})
	require.NoError(t, err)
	back, err = ByteToRow(data, []types.ColumnType{types.String})
	require.NoError(t, err)
	assert.False(t, back[0].IsNull())
}

func TestRow_TypeMismatch(t *testing.T) {
	data, err := RowToByte(types.Row{types.Str("x")})
	require.NoError(t, err)

	_, err = ByteToRow(data, []types.ColumnType{types.Double})
	assert.Error(t, err)
	_, err = ByteToRow(data, nil)
	assert.Error(t, err)

	data, err = RowToByte(types.Row{types.Long(1 << 40)})
	require.NoError(t, err)
	_, err = ByteToRow(data, []types.ColumnType{types.Integer})
	assert.Error(t, err)

	_, err = ByteToRow([]byte{0xff}, allColumns)
	assert.Error(t, err)
}

func TestTableDef_RoundTrip(t *testing.T) {
	def := types.TableDef{Name: "Calibration", Columns: []types.Column{
		{Name: "channel", Type: types.Integer},
		{Name: "gain", Type: types.Double},
		{Name: "label", Type: types.String},
	}}
	back, err := ByteToTableDef(TableDefToByte(def))
	require.NoError(t, err)
	assert.Equal(t, def, back)

	_, err = ByteToTableDef(nil)
	assert.Error(t, err)
}

func TestSeal(t *testing.T) {
	small := []byte("abc")
	sealed, err := Seal(small, 64)
	require.NoError(t, err)
	assert.Equal(t, envelopeRaw, sealed[0])

	big := []byte(strings.Repeat("0.125;", 2000))
	sealed, err = Seal(big, 64)
	require.NoError(t, err)
	assert.Equal(t, envelopeLzma, sealed[0])
	assert.Less(t, len(sealed), len(big))

	opened, err := Open(sealed)
	require.NoError(t, err)
	if !bytes.Equal(opened, big) {
		t.Fatalf("lzma round trip changed %d bytes of data", len(big))
	}

	sealed, err = Seal(big, 0)
	require.NoError(t, err)
	assert.Equal(t, envelopeRaw, sealed[0])

	_, err = Open([]byte{7, 1})
	assert.Error(t, err)
	_, err = Open(nil)
	assert.Error(t, err)
}
