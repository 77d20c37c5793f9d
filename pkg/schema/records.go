package schema

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/i5heu/geomodel-db/pkg/dberrors"
	"github.com/i5heu/geomodel-db/pkg/index"
	"github.com/i5heu/geomodel-db/pkg/trf"
	"github.com/i5heu/geomodel-db/pkg/types"
)

type ElementRecord struct {
	ID     types.StoredID
	Name   string
	Symbol string
	Z, A   float64
}

type MaterialRecord struct {
	ID      types.StoredID
	Name    string
	Density float64
}

type ComponentRecord struct {
	Material types.StoredID
	Ordinal  int32
	Element  types.StoredID
	Fraction float64
}

type ShapeRecord struct {
	ID     types.StoredID
	Type   string
	Params []float64
}

type OperandRecord struct {
	Shape   types.StoredID
	Ordinal int32
	Operand types.StoredID
}

type LogVolRecord struct {
	ID       types.StoredID
	Name     string
	Shape    types.StoredID
	Material types.StoredID
}

// VolumeRecord is a row of PhysVols or FullPhysVols.
type VolumeRecord struct {
	ID     types.StoredID
	LogVol types.StoredID
}

// TransformRecord is a row of Transforms or AlignableTransforms.
type TransformRecord struct {
	ID        types.StoredID
	Transform trf.Transform3D
}

type NameTagRecord struct {
	ID   types.StoredID
	Name string
}

// IntRecord is a row of IdentifierTags or SerialIdentifiers.
type IntRecord struct {
	ID    types.StoredID
	Value int32
}

type SerialDenominatorRecord struct {
	ID   types.StoredID
	Base string
}

type FunctionRecord struct {
	ID     types.StoredID
	Tokens []string
}

type LiteralRecord struct {
	Function types.StoredID
	Ordinal  int32
	Value    float64
}

type SerialTransformerRecord struct {
	ID       types.StoredID
	Function types.StoredID
	Volume   types.Ref
	Copies   uint32
}

type VersionRecord struct {
	Version   int32
	GraphID   string
	CreatedAt time.Time
}

// FormatParams renders shape parameters so that ParseParams returns the exact same floats.
func FormatParams(ps []float64) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = strconv.FormatFloat(p, 'g', -1, 64)
	}
	return strings.Join(parts, ";")
}

func ParseParams(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ";")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("shape parameter %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (r ElementRecord) Row() types.Row {
	return types.Row{types.ID(r.ID), types.Str(r.Name), types.Str(r.Symbol), types.Float64(r.Z), types.Float64(r.A)}
}

func (r MaterialRecord) Row() types.Row {
	return types.Row{types.ID(r.ID), types.Str(r.Name), types.Float64(r.Density)}
}

func (r ComponentRecord) Row() types.Row {
	return types.Row{types.ID(r.Material), types.Int(r.Ordinal), types.ID(r.Element), types.Float64(r.Fraction)}
}

func (r ShapeRecord) Row() types.Row {
	return types.Row{types.ID(r.ID), types.Str(r.Type), types.Str(FormatParams(r.Params))}
}

func (r OperandRecord) Row() types.Row {
	return types.Row{types.ID(r.Shape), types.Int(r.Ordinal), types.ID(r.Operand)}
}

func (r LogVolRecord) Row() types.Row {
	return types.Row{types.ID(r.ID), types.Str(r.Name), types.ID(r.Shape), types.ID(r.Material)}
}

func (r VolumeRecord) Row() types.Row {
	return types.Row{types.ID(r.ID), types.ID(r.LogVol)}
}

func (r TransformRecord) Row() types.Row {
	row := make(types.Row, 0, 13)
	row = append(row, types.ID(r.ID))
	for _, e := range r.Transform.Elements() {
		row = append(row, types.Float64(e))
	}
	return row
}

func (r NameTagRecord) Row() types.Row {
	return types.Row{types.ID(r.ID), types.Str(r.Name)}
}

func (r IntRecord) Row() types.Row {
	return types.Row{types.ID(r.ID), types.Int(r.Value)}
}

func (r SerialDenominatorRecord) Row() types.Row {
	return types.Row{types.ID(r.ID), types.Str(r.Base)}
}

func (r FunctionRecord) Row() types.Row {
	return types.Row{types.ID(r.ID), types.Str(strings.Join(r.Tokens, " "))}
}

func (r LiteralRecord) Row() types.Row {
	return types.Row{types.ID(r.Function), types.Int(r.Ordinal), types.Float64(r.Value)}
}

func (r SerialTransformerRecord) Row() types.Row {
	return types.Row{
		types.ID(r.ID), types.ID(r.Function),
		types.ID(r.Volume.ID), types.KindValue(r.Volume.Kind), types.Long(int64(r.Copies)),
	}
}

func (r VersionRecord) Row() types.Row {
	return types.Row{types.Long(1), types.Int(r.Version), types.Str(r.GraphID), types.Str(r.CreatedAt.UTC().Format(time.RFC3339Nano))}
}

// ChildPositionRow renders one edge; seq is the 1-based row id.
func ChildPositionRow(seq int, e index.ChildEntry) types.Row {
	return types.Row{
		types.Long(int64(seq)),
		types.ID(e.Parent.ID), types.KindValue(e.Parent.Kind), types.Int(int32(e.Position)),
		types.ID(e.Child.ID), types.KindValue(e.Child.Kind), types.Int(int32(e.CopyNumber)),
	}
}

func RootVolumeRow(root types.Ref) types.Row {
	return types.Row{types.Long(1), types.ID(root.ID), types.KindValue(root.Kind)}
}

// NodeKindRows lists the persisted kind codes.
func NodeKindRows() []types.Row {
	rows := make([]types.Row, 0, len(types.AllKinds))
	for _, k := range types.AllKinds {
		rows = append(rows, types.Row{types.Int(int32(k)), types.Str(k.String()), types.Str(k.Table())})
	}
	return rows
}

// rowReader pulls typed, non-null cells out of a row, remembering the first failure.
type rowReader struct {
	table string
	row   types.Row
	i     int
	err   error
}

func newReader(table string, row types.Row, want int) *rowReader {
	r := &rowReader{table: table, row: row}
	if len(row) != want {
		r.err = dberrors.Corrupt("%s row has %d cells, want %d", table, len(row), want)
	}
	return r
}

func (r *rowReader) cell(t ...types.ColumnType) (types.Value, bool) {
	if r.err != nil {
		return types.Value{}, false
	}
	v := r.row[r.i]
	r.i++
	if v.IsNull() {
		r.err = dberrors.Corrupt("%s column %d is NULL", r.table, r.i-1)
		return v, false
	}
	for _, want := range t {
		if v.Type == want {
			return v, true
		}
	}
	r.err = dberrors.Corrupt("%s column %d has type %s", r.table, r.i-1, v.Type)
	return v, false
}

func (r *rowReader) id() types.StoredID {
	v, ok := r.cell(types.LongInteger, types.Integer)
	if !ok {
		return 0
	}
	id, err := v.AsID()
	if err != nil {
		r.err = dberrors.Corrupt("%s column %d: %s", r.table, r.i-1, err)
	}
	return id
}

func (r *rowReader) kind() types.Kind {
	v, ok := r.cell(types.Integer, types.LongInteger)
	if !ok {
		return types.KindUnknown
	}
	k, err := types.KindFromCode(v.AsLong())
	if err != nil {
		r.err = dberrors.Corrupt("%s column %d: %s", r.table, r.i-1, err)
	}
	return k
}

func (r *rowReader) i32() int32 {
	v, ok := r.cell(types.Integer)
	if !ok {
		return 0
	}
	return v.AsInt()
}

func (r *rowReader) u32() uint32 {
	v, ok := r.cell(types.LongInteger, types.Integer)
	if !ok {
		return 0
	}
	n := v.AsLong()
	if n < 0 || n > int64(^uint32(0)) {
		r.err = dberrors.Corrupt("%s column %d: %d out of range", r.table, r.i-1, n)
		return 0
	}
	return uint32(n)
}

func (r *rowReader) f64() float64 {
	v, ok := r.cell(types.Double, types.Float)
	if !ok {
		return 0
	}
	return v.AsDouble()
}

func (r *rowReader) str() string {
	v, ok := r.cell(types.String)
	if !ok {
		return ""
	}
	return v.AsString()
}

func ParseElement(row types.Row) (ElementRecord, error) {
	r := newReader(types.Element.Table(), row, 5)
	rec := ElementRecord{ID: r.id(), Name: r.str(), Symbol: r.str(), Z: r.f64(), A: r.f64()}
	return rec, r.err
}

func ParseMaterial(row types.Row) (MaterialRecord, error) {
	r := newReader(types.Material.Table(), row, 3)
	rec := MaterialRecord{ID: r.id(), Name: r.str(), Density: r.f64()}
	return rec, r.err
}

func ParseComponent(row types.Row) (ComponentRecord, error) {
	r := newReader(MaterialComponents, row, 4)
	rec := ComponentRecord{Material: r.id(), Ordinal: r.i32(), Element: r.id(), Fraction: r.f64()}
	return rec, r.err
}

func ParseShape(row types.Row) (ShapeRecord, error) {
	r := newReader(types.Shape.Table(), row, 3)
	rec := ShapeRecord{ID: r.id(), Type: r.str()}
	params := r.str()
	if r.err != nil {
		return rec, r.err
	}
	ps, err := ParseParams(params)
	if err != nil {
		return rec, dberrors.Corrupt("shape %d: %s", rec.ID, err)
	}
	rec.Params = ps
	return rec, nil
}

func ParseOperand(row types.Row) (OperandRecord, error) {
	r := newReader(ShapeOperands, row, 3)
	rec := OperandRecord{Shape: r.id(), Ordinal: r.i32(), Operand: r.id()}
	return rec, r.err
}

func ParseLogVol(row types.Row) (LogVolRecord, error) {
	r := newReader(types.LogVol.Table(), row, 4)
	rec := LogVolRecord{ID: r.id(), Name: r.str(), Shape: r.id(), Material: r.id()}
	return rec, r.err
}

func ParseVolume(k types.Kind, row types.Row) (VolumeRecord, error) {
	r := newReader(k.Table(), row, 2)
	rec := VolumeRecord{ID: r.id(), LogVol: r.id()}
	return rec, r.err
}

func ParseTransform(k types.Kind, row types.Row) (TransformRecord, error) {
	r := newReader(k.Table(), row, 13)
	rec := TransformRecord{ID: r.id()}
	var el [12]float64
	for i := range el {
		el[i] = r.f64()
	}
	rec.Transform = trf.FromElements(el)
	return rec, r.err
}

func ParseNameTag(row types.Row) (NameTagRecord, error) {
	r := newReader(types.NameTag.Table(), row, 2)
	rec := NameTagRecord{ID: r.id(), Name: r.str()}
	return rec, r.err
}

func ParseInt(k types.Kind, row types.Row) (IntRecord, error) {
	r := newReader(k.Table(), row, 2)
	rec := IntRecord{ID: r.id(), Value: r.i32()}
	return rec, r.err
}

func ParseSerialDenominator(row types.Row) (SerialDenominatorRecord, error) {
	r := newReader(types.SerialDenominator.Table(), row, 2)
	rec := SerialDenominatorRecord{ID: r.id(), Base: r.str()}
	return rec, r.err
}

func ParseFunction(row types.Row) (FunctionRecord, error) {
	r := newReader(types.Function.Table(), row, 2)
	rec := FunctionRecord{ID: r.id()}
	rec.Tokens = strings.Fields(r.str())
	return rec, r.err
}

func ParseLiteral(row types.Row) (LiteralRecord, error) {
	r := newReader(FunctionLiterals, row, 3)
	rec := LiteralRecord{Function: r.id(), Ordinal: r.i32(), Value: r.f64()}
	return rec, r.err
}

func ParseSerialTransformer(row types.Row) (SerialTransformerRecord, error) {
	r := newReader(types.SerialTransformer.Table(), row, 5)
	rec := SerialTransformerRecord{ID: r.id(), Function: r.id()}
	rec.Volume.ID = r.id()
	rec.Volume.Kind = r.kind()
	rec.Copies = r.u32()
	if r.err == nil && !rec.Volume.Kind.IsVolume() {
		return rec, dberrors.Corrupt("serial transformer %d places a %s", rec.ID, rec.Volume.Kind)
	}
	return rec, r.err
}

func ParseChildPosition(row types.Row) (index.ChildEntry, error) {
	r := newReader(ChildPositions, row, 7)
	r.id() // row id
	var e index.ChildEntry
	e.Parent.ID = r.id()
	e.Parent.Kind = r.kind()
	e.Position = r.u32()
	e.Child.ID = r.id()
	e.Child.Kind = r.kind()
	e.CopyNumber = r.u32()
	return e, r.err
}

func ParseRootVolume(row types.Row) (types.Ref, error) {
	r := newReader(RootVolume, row, 3)
	r.id()
	ref := types.Ref{ID: r.id(), Kind: r.kind()}
	if r.err == nil && !ref.Kind.IsVolume() {
		return ref, dberrors.Corrupt("root is a %s", ref.Kind)
	}
	return ref, r.err
}

func ParseVersion(row types.Row) (VersionRecord, error) {
	r := newReader(DBVersion, row, 4)
	r.id()
	rec := VersionRecord{Version: r.i32(), GraphID: r.str()}
	created := r.str()
	if r.err != nil {
		return rec, r.err
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return rec, dberrors.Corrupt("DBVersion createdAt %q: %s", created, err)
	}
	rec.CreatedAt = t
	return rec, nil
}

// ParseNodeKind checks one NodeKinds row against the kinds this build knows.
func ParseNodeKind(row types.Row) (types.Kind, error) {
	r := newReader(NodeKinds, row, 3)
	k := r.kind()
	name, table := r.str(), r.str()
	if r.err != nil {
		return k, r.err
	}
	if name != k.String() || table != k.Table() {
		return k, dberrors.Corrupt("NodeKinds maps code %d to %s/%s, want %s/%s", k, name, table, k, k.Table())
	}
	return k, nil
}
