package binaryCoder

import (
	"fmt"

	"github.com/i5heu/geomodel-db/pkg/types"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	tableName   protowire.Number = 1
	tableColumn protowire.Number = 2
	columnName  protowire.Number = 1
	columnType  protowire.Number = 2
)

// TableDefToByte encodes a table definition: the name, then one nested message per column.
func TableDefToByte(def types.TableDef) []byte {
	var b []byte
	b = protowire.AppendTag(b, tableName, protowire.BytesType)
	b = protowire.AppendString(b, def.Name)
	for _, c := range def.Columns {
		var cb []byte
		cb = protowire.AppendTag(cb, columnName, protowire.BytesType)
		cb = protowire.AppendString(cb, c.Name)
		cb = protowire.AppendTag(cb, columnType, protowire.VarintType)
		cb = protowire.AppendVarint(cb, uint64(c.Type))

		b = protowire.AppendTag(b, tableColumn, protowire.BytesType)
		b = protowire.AppendBytes(b, cb)
	}
	return b
}

func ByteToTableDef(data []byte) (types.TableDef, error) {
	var def types.TableDef
	for len(data) > 0 {
		num, wt, n := protowire.ConsumeTag(data)
		if n < 0 {
			return def, fmt.Errorf("Error decoding table definition: %w", protowire.ParseError(n))
		}
		data = data[n:]
		if wt != protowire.BytesType {
			return def, fmt.Errorf("table definition field %d has wire type %d", num, wt)
		}
		v, m := protowire.ConsumeBytes(data)
		if m < 0 {
			return def, fmt.Errorf("Error decoding table definition: %w", protowire.ParseError(m))
		}
		data = data[m:]
		switch num {
		case tableName:
			def.Name = string(v)
		case tableColumn:
			c, err := byteToColumn(v)
			if err != nil {
				return def, err
			}
			def.Columns = append(def.Columns, c)
		default:
			return def, fmt.Errorf("unknown table definition field %d", num)
		}
	}
	if def.Name == "" {
		return def, fmt.Errorf("table definition without name")
	}
	return def, nil
}

func byteToColumn(data []byte) (types.Column, error) {
	var c types.Column
	for len(data) > 0 {
		num, wt, n := protowire.ConsumeTag(data)
		if n < 0 {
			return c, fmt.Errorf("Error decoding column: %w", protowire.ParseError(n))
		}
		data = data[n:]
		switch {
		case num == columnName && wt == protowire.BytesType:
			s, m := protowire.ConsumeString(data)
			if m < 0 {
				return c, fmt.Errorf("Error decoding column name: %w", protowire.ParseError(m))
			}
			data = data[m:]
			c.Name = s
		case num == columnType && wt == protowire.VarintType:
			u, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return c, fmt.Errorf("Error decoding column type: %w", protowire.ParseError(m))
			}
			data = data[m:]
			c.Type = types.ColumnType(u)
		default:
			return c, fmt.Errorf("unknown column field %d", num)
		}
	}
	if !c.Type.Valid() {
		return c, fmt.Errorf("column %q has unknown type %d", c.Name, c.Type)
	}
	return c, nil
}
