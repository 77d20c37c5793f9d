package binaryCoder

import (
	"fmt"
	"math"

	"github.com/i5heu/geomodel-db/pkg/types"
	"google.golang.org/protobuf/encoding/protowire"
)

// RowToByte encodes a row as protobuf wire fields. Column i is field i+1; a NULL cell
// is an absent field. Integers are zigzag varints, floats fixed32, doubles fixed64.
func RowToByte(row types.Row) ([]byte, error) {
	var b []byte
	for i, v := range row {
		if v.IsNull() {
			continue
		}
		num := protowire.Number(i + 1)
		switch v.Type {
		case types.Integer, types.LongInteger:
			b = protowire.AppendTag(b, num, protowire.VarintType)
			b = protowire.AppendVarint(b, protowire.EncodeZigZag(v.AsLong()))
		case types.Float:
			b = protowire.AppendTag(b, num, protowire.Fixed32Type)
			b = protowire.AppendFixed32(b, math.Float32bits(v.AsFloat()))
		case types.Double:
			b = protowire.AppendTag(b, num, protowire.Fixed64Type)
			b = protowire.AppendFixed64(b, math.Float64bits(v.AsDouble()))
		case types.String:
			b = protowire.AppendTag(b, num, protowire.BytesType)
			b = protowire.AppendString(b, v.AsString())
		default:
			return nil, fmt.Errorf("column %d has unknown type %d", i, v.Type)
		}
	}
	return b, nil
}

// ByteToRow decodes a row written by RowToByte against the column types of its table.
func ByteToRow(data []byte, columns []types.ColumnType) (types.Row, error) {
	row := make(types.Row, len(columns))
	for i, t := range columns {
		row[i] = types.Null(t)
	}
	for len(data) > 0 {
		num, wt, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("Error decoding row tag: %w", protowire.ParseError(n))
		}
		data = data[n:]
		i := int(num) - 1
		if i < 0 || i >= len(columns) {
			return nil, fmt.Errorf("row field %d outside of %d columns", num, len(columns))
		}
		t := columns[i]
		switch {
		case wt == protowire.VarintType && (t == types.Integer || t == types.LongInteger):
			u, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return nil, fmt.Errorf("Error decoding column %d: %w", i, protowire.ParseError(m))
			}
			data = data[m:]
			x := protowire.DecodeZigZag(u)
			if t == types.Integer {
				if x < math.MinInt32 || x > math.MaxInt32 {
					return nil, fmt.Errorf("column %d: %d overflows int", i, x)
				}
				row[i] = types.Int(int32(x))
			} else {
				row[i] = types.Long(x)
			}
		case wt == protowire.Fixed32Type && t == types.Float:
			u, m := protowire.ConsumeFixed32(data)
			if m < 0 {
				return nil, fmt.Errorf("Error decoding column %d: %w", i, protowire.ParseError(m))
			}
			data = data[m:]
			row[i] = types.Float32(math.Float32frombits(u))
		case wt == protowire.Fixed64Type && t == types.Double:
			u, m := protowire.ConsumeFixed64(data)
			if m < 0 {
				return nil, fmt.Errorf("Error decoding column %d: %w", i, protowire.ParseError(m))
			}
			data = data[m:]
			row[i] = types.Float64(math.Float64frombits(u))
		case wt == protowire.BytesType && t == types.String:
			s, m := protowire.ConsumeString(data)
			if m < 0 {
				return nil, fmt.Errorf("Error decoding column %d: %w", i, protowire.ParseError(m))
			}
			data = data[m:]
			row[i] = types.Str(s)
		default:
			return nil, fmt.Errorf("column %d: wire type %d does not match %s", i, wt, t)
		}
	}
	return row, nil
}
