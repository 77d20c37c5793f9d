// Package schema describes the tables a geometry graph is stored in, and converts
// between graph records and table rows.
package schema

import (
	"regexp"
	"strings"

	"github.com/i5heu/geomodel-db/pkg/types"
)

// Version is written to DBVersion by every writer.
const Version = 1

// Companion and metadata table names.
const (
	MaterialComponents = "MaterialComponents"
	ShapeOperands      = "ShapeOperands"
	FunctionLiterals   = "FunctionLiterals"
	ChildPositions     = "ChildPositions"
	RootVolume         = "RootVolume"
	NodeKinds          = "NodeKinds"
	DBVersion          = "DBVersion"
	AuxTables          = "AuxTables"

	// PublishedPrefix starts the name of every published-node table.
	PublishedPrefix = "Published_"
)

func col(name string, t types.ColumnType) types.Column {
	return types.Column{Name: name, Type: t}
}

var transformColumns = []types.Column{
	col("id", types.LongInteger),
	col("xx", types.Double), col("xy", types.Double), col("xz", types.Double),
	col("yx", types.Double), col("yy", types.Double), col("yz", types.Double),
	col("zx", types.Double), col("zy", types.Double), col("zz", types.Double),
	col("dx", types.Double), col("dy", types.Double), col("dz", types.Double),
}

var volumeColumns = []types.Column{col("id", types.LongInteger), col("logvolId", types.LongInteger)}

var kindTables = map[types.Kind][]types.Column{
	types.Element: {
		col("id", types.LongInteger), col("name", types.String), col("symbol", types.String),
		col("z", types.Double), col("a", types.Double),
	},
	types.Material: {col("id", types.LongInteger), col("name", types.String), col("density", types.Double)},
	types.Shape:    {col("id", types.LongInteger), col("type", types.String), col("parameters", types.String)},
	types.LogVol: {
		col("id", types.LongInteger), col("name", types.String),
		col("shapeId", types.LongInteger), col("materialId", types.LongInteger),
	},
	types.PhysVol:            volumeColumns,
	types.FullPhysVol:        volumeColumns,
	types.Transform:          transformColumns,
	types.AlignableTransform: transformColumns,
	types.NameTag:            {col("id", types.LongInteger), col("name", types.String)},
	types.IdentifierTag:      {col("id", types.LongInteger), col("identifier", types.Integer)},
	types.SerialIdentifier:   {col("id", types.LongInteger), col("baseId", types.Integer)},
	types.SerialDenominator:  {col("id", types.LongInteger), col("baseName", types.String)},
	types.Function:           {col("id", types.LongInteger), col("expression", types.String)},
	types.SerialTransformer: {
		col("id", types.LongInteger), col("functionId", types.LongInteger),
		col("volumeId", types.LongInteger), col("volumeKind", types.Integer), col("copies", types.LongInteger),
	},
}

var metaTables = []types.TableDef{
	{Name: MaterialComponents, Columns: []types.Column{
		col("materialId", types.LongInteger), col("ordinal", types.Integer),
		col("elementId", types.LongInteger), col("fraction", types.Double),
	}},
	{Name: ShapeOperands, Columns: []types.Column{
		col("shapeId", types.LongInteger), col("ordinal", types.Integer), col("operandId", types.LongInteger),
	}},
	{Name: FunctionLiterals, Columns: []types.Column{
		col("functionId", types.LongInteger), col("ordinal", types.Integer), col("value", types.Double),
	}},
	{Name: ChildPositions, Columns: []types.Column{
		col("id", types.LongInteger),
		col("parentId", types.LongInteger), col("parentKind", types.Integer), col("position", types.Integer),
		col("childId", types.LongInteger), col("childKind", types.Integer), col("copyNumber", types.Integer),
	}},
	{Name: RootVolume, Columns: []types.Column{
		col("id", types.LongInteger), col("volumeId", types.LongInteger), col("volumeKind", types.Integer),
	}},
	{Name: NodeKinds, Columns: []types.Column{
		col("id", types.Integer), col("kind", types.String), col("tableName", types.String),
	}},
	{Name: DBVersion, Columns: []types.Column{
		col("id", types.LongInteger), col("version", types.Integer),
		col("graphId", types.String), col("createdAt", types.String),
	}},
	{Name: AuxTables, Columns: []types.Column{
		col("name", types.String), col("columns", types.String), col("types", types.String),
	}},
}

// KindTable returns the definition of the attribute table of kind.
func KindTable(k types.Kind) types.TableDef {
	return types.TableDef{Name: k.Table(), Columns: kindTables[k]}
}

// Table returns the definition of any fixed table by name.
func Table(name string) (types.TableDef, bool) {
	for _, def := range All() {
		if def.Name == name {
			return def, true
		}
	}
	return types.TableDef{}, false
}

// All returns every fixed table: the kind tables in dependency order, then the
// companion and metadata tables.
func All() []types.TableDef {
	defs := make([]types.TableDef, 0, len(types.AllKinds)+len(metaTables))
	for _, k := range types.AllKinds {
		defs = append(defs, KindTable(k))
	}
	return append(defs, metaTables...)
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidName reports whether s can be used as a table or column name.
func ValidName(s string) bool {
	return len(s) <= 128 && identifier.MatchString(s)
}

// Reserved reports whether name belongs to the fixed schema or the published tables.
func Reserved(name string) bool {
	if strings.HasPrefix(strings.ToLower(name), strings.ToLower(PublishedPrefix)) {
		return true
	}
	for _, def := range All() {
		if strings.EqualFold(def.Name, name) {
			return true
		}
	}
	return false
}
