package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ColumnType is the declared type of a table column.
type ColumnType uint8

const (
	ColumnUnknown ColumnType = iota
	Integer                  // int32
	LongInteger              // int64
	Float                    // float32
	Double                   // float64
	String
)

var columnTypeNames = map[ColumnType]string{
	Integer:     "int",
	LongInteger: "long",
	Float:       "float",
	Double:      "double",
	String:      "string",
}

func (c ColumnType) String() string {
	if n, ok := columnTypeNames[c]; ok {
		return n
	}
	return "unknown"
}

func (c ColumnType) Valid() bool {
	_, ok := columnTypeNames[c]
	return ok
}

// ParseColumnType accepts the names produced by ColumnType.String plus a few common aliases.
func ParseColumnType(s string) (ColumnType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int", "integer", "int32":
		return Integer, nil
	case "long", "int64", "bigint":
		return LongInteger, nil
	case "float", "float32":
		return Float, nil
	case "double", "float64", "real":
		return Double, nil
	case "string", "text", "varchar":
		return String, nil
	}
	return ColumnUnknown, fmt.Errorf("unknown column type %q", s)
}

// Value is one typed table cell. A zero Value is an untyped NULL.
type Value struct {
	Type ColumnType
	Null bool

	i int64
	f float64
	s string
}

type Row []Value

func Int(v int32) Value { return Value{Type: Integer, i: int64(v)} }
func Long(v int64) Value { return Value{Type: LongInteger, i: v} }
func Float32(v float32) Value { return Value{Type: Float, f: float64(v)} }
func Float64(v float64) Value { return Value{Type: Double, f: v} }
func Str(v string) Value { return Value{Type: String, s: v} }
func Null(t ColumnType) Value { return Value{Type: t, Null: true} }
func ID(id StoredID) Value { return Long(int64(id)) }
func KindValue(k Kind) Value { return Int(int32(k)) }

func (v Value) IsNull() bool { return v.Null || v.Type == ColumnUnknown }

func (v Value) AsInt() int32 { return int32(v.i) }
func (v Value) AsLong() int64 { return v.i }
func (v Value) AsFloat() float32 { return float32(v.f) }
func (v Value) AsDouble() float64 {
	if v.Type == Integer || v.Type == LongInteger {
		return float64(v.i)
	}
	return v.f
}
func (v Value) AsString() string { return v.s }

// AsID interprets an integer cell as a stored id.
func (v Value) AsID() (StoredID, error) {
	if v.IsNull() {
		return 0, fmt.Errorf("null id")
	}
	if v.Type != Integer && v.Type != LongInteger {
		return 0, fmt.Errorf("id cell has type %s", v.Type)
	}
	if v.i < 0 || v.i > math.MaxUint32 {
		return 0, fmt.Errorf("id %d out of range", v.i)
	}
	return StoredID(v.i), nil
}

// Interface returns the Go value held by the cell: int32, int64, float32, float64, string or nil.
func (v Value) Interface() any {
	if v.IsNull() {
		return nil
	}
	switch v.Type {
	case Integer:
		return int32(v.i)
	case LongInteger:
		return v.i
	case Float:
		return float32(v.f)
	case Double:
		return v.f
	case String:
		return v.s
	}
	return nil
}

func (v Value) String() string {
	if v.IsNull() {
		return "NULL"
	}
	switch v.Type {
	case Integer, LongInteger:
		return strconv.FormatInt(v.i, 10)
	case Float:
		return strconv.FormatFloat(v.f, 'g', -1, 32)
	case Double:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case String:
		return v.s
	}
	return "?"
}

// Equal compares type, nullness and content.
func (v Value) Equal(o Value) bool {
	if v.IsNull() || o.IsNull() {
		return v.IsNull() == o.IsNull() && v.Type == o.Type
	}
	return v.Type == o.Type && v.i == o.i && v.f == o.f && v.s == o.s
}

// FromInterface converts a Go value into a cell of the given column type.
// Integer and floating point values are converted between widths; anything else fails.
func FromInterface(t ColumnType, x any) (Value, error) {
	if x == nil {
		return Null(t), nil
	}
	switch t {
	case Integer, LongInteger:
		var n int64
		switch c := x.(type) {
		case int:
			n = int64(c)
		case int32:
			n = int64(c)
		case int64:
			n = c
		case uint32:
			n = int64(c)
		case StoredID:
			n = int64(c)
		default:
			return Value{}, fmt.Errorf("cannot store %T in %s column", x, t)
		}
		if t == Integer {
			if n < math.MinInt32 || n > math.MaxInt32 {
				return Value{}, fmt.Errorf("value %d overflows %s column", n, t)
			}
			return Int(int32(n)), nil
		}
		return Long(n), nil
	case Float, Double:
		var f float64
		switch c := x.(type) {
		case float32:
			f = float64(c)
		case float64:
			f = c
		case int64:
			f = float64(c)
		default:
			return Value{}, fmt.Errorf("cannot store %T in %s column", x, t)
		}
		if t == Float {
			return Float32(float32(f)), nil
		}
		return Float64(f), nil
	case String:
		switch c := x.(type) {
		case string:
			return Str(c), nil
		case []byte:
			return Str(string(c)), nil
		}
		return Value{}, fmt.Errorf("cannot store %T in %s column", x, t)
	}
	return Value{}, fmt.Errorf("unknown column type %d", t)
}

// Column is a named, typed table column.
type Column struct {
	Name string
	Type ColumnType
}

// TableDef describes a backing table. Rows are kept in insertion order.
type TableDef struct {
	Name    string
	Columns []Column
}

func (d TableDef) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

func (d TableDef) ColumnTypes() []ColumnType {
	ts := make([]ColumnType, len(d.Columns))
	for i, c := range d.Columns {
		ts[i] = c.Type
	}
	return ts
}

// ColumnIndex returns the position of the named column or -1.
func (d TableDef) ColumnIndex(name string) int {
	for i, c := range d.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// SameShape reports whether both definitions have the same column names and types.
func (d TableDef) SameShape(o TableDef) bool {
	if len(d.Columns) != len(o.Columns) {
		return false
	}
	for i := range d.Columns {
		if d.Columns[i] != o.Columns[i] {
			return false
		}
	}
	return true
}

// CheckRow verifies arity and per-cell types. NULL cells are accepted in any column.
func (d TableDef) CheckRow(r Row) error {
	if len(r) != len(d.Columns) {
		return fmt.Errorf("row has %d cells, table %q has %d columns", len(r), d.Name, len(d.Columns))
	}
	for i, v := range r {
		if v.IsNull() {
			continue
		}
		if v.Type != d.Columns[i].Type {
			return fmt.Errorf("column %q expects %s, got %s", d.Columns[i].Name, d.Columns[i].Type, v.Type)
		}
	}
	return nil
}
