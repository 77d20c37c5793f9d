// Package auxtable stores user-defined tables next to a geometry graph. Every table has
// named, typed columns and an ordered list of rows. Definitions are recorded in the
// AuxTables catalog; rows go into one backing table per definition.
package auxtable

import (
	"context"
	"fmt"
	"strings"

	"github.com/i5heu/geomodel-db/pkg/dberrors"
	"github.com/i5heu/geomodel-db/pkg/logging"
	"github.com/i5heu/geomodel-db/pkg/schema"
	"github.com/i5heu/geomodel-db/pkg/store"
	"github.com/i5heu/geomodel-db/pkg/types"
	"github.com/sirupsen/logrus"
)

const listSeparator = ","

// Table is one auxiliary table. The zero Table (no columns, no rows) is returned for
// names that were never defined.
type Table struct {
	Name    string
	Columns []string
	Types   []types.ColumnType
	Rows    []types.Row
}

func (t *Table) Def() types.TableDef {
	def := types.TableDef{Name: t.Name, Columns: make([]types.Column, len(t.Columns))}
	for i := range t.Columns {
		def.Columns[i] = types.Column{Name: t.Columns[i], Type: t.Types[i]}
	}
	return def
}

func (t *Table) Len() int { return len(t.Rows) }

// Column returns the position of the named column or -1.
func (t *Table) Column(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

func (t *Table) cell(row, col int, want types.ColumnType) (types.Value, error) {
	if row < 0 || row >= len(t.Rows) {
		return types.Value{}, fmt.Errorf("%s: row %d out of range", t.Name, row)
	}
	if col < 0 || col >= len(t.Columns) {
		return types.Value{}, fmt.Errorf("%s: column %d out of range", t.Name, col)
	}
	if t.Types[col] != want {
		return types.Value{}, dberrors.ErrSchemaMismatch.New(t.Name,
			fmt.Sprintf("column %s is %s, not %s", t.Columns[col], t.Types[col], want))
	}
	return t.Rows[row][col], nil
}

// Int returns the cell as int32. ok is false for NULL.
func (t *Table) Int(row, col int) (v int32, ok bool, err error) {
	c, err := t.cell(row, col, types.Integer)
	if err != nil || c.IsNull() {
		return 0, false, err
	}
	return c.AsInt(), true, nil
}

func (t *Table) Long(row, col int) (v int64, ok bool, err error) {
	c, err := t.cell(row, col, types.LongInteger)
	if err != nil || c.IsNull() {
		return 0, false, err
	}
	return c.AsLong(), true, nil
}

func (t *Table) Float(row, col int) (v float32, ok bool, err error) {
	c, err := t.cell(row, col, types.Float)
	if err != nil || c.IsNull() {
		return 0, false, err
	}
	return c.AsFloat(), true, nil
}

func (t *Table) Double(row, col int) (v float64, ok bool, err error) {
	c, err := t.cell(row, col, types.Double)
	if err != nil || c.IsNull() {
		return 0, false, err
	}
	return c.AsDouble(), true, nil
}

func (t *Table) String(row, col int) (v string, ok bool, err error) {
	c, err := t.cell(row, col, types.String)
	if err != nil || c.IsNull() {
		return "", false, err
	}
	return c.AsString(), true, nil
}

// Set is an ordered collection of auxiliary tables.
type Set struct {
	log    *logrus.Logger
	order  []string
	tables map[string]*Table
}

func NewSet(log *logrus.Logger) *Set {
	return &Set{log: logging.OrDefault(log), tables: make(map[string]*Table)}
}

// Define declares a table. Redefining a name with the same columns and types is a
// no-op; any other redefinition is a DuplicateDefinition.
func (s *Set) Define(name string, columns []string, colTypes []types.ColumnType) error {
	if !schema.ValidName(name) || schema.Reserved(name) {
		return dberrors.ErrInvalidName.New(name)
	}
	if len(columns) == 0 || len(columns) != len(colTypes) {
		return dberrors.ErrSchemaMismatch.New(name,
			fmt.Sprintf("%d column names for %d column types", len(columns), len(colTypes)))
	}
	seen := make(map[string]bool, len(columns))
	for i, c := range columns {
		if !schema.ValidName(c) {
			return dberrors.ErrInvalidName.New(c)
		}
		if seen[strings.ToLower(c)] {
			return dberrors.ErrSchemaMismatch.New(name, fmt.Sprintf("column %s declared twice", c))
		}
		seen[strings.ToLower(c)] = true
		if !colTypes[i].Valid() {
			return dberrors.ErrSchemaMismatch.New(name, fmt.Sprintf("column %s has no valid type", c))
		}
	}

	t := &Table{
		Name:    name,
		Columns: append([]string(nil), columns...),
		Types:   append([]types.ColumnType(nil), colTypes...),
	}
	for _, existing := range s.order {
		if !strings.EqualFold(existing, name) {
			continue
		}
		old := s.tables[existing]
		if existing == name && old.Def().SameShape(t.Def()) {
			return nil
		}
		return dberrors.ErrDuplicateDefinition.New("auxiliary table", name)
	}
	s.order = append(s.order, name)
	s.tables[name] = t
	return nil
}

// AppendRows adds rows to a defined table. Either all rows are appended or none.
func (s *Set) AppendRows(name string, rows ...types.Row) error {
	t, ok := s.tables[name]
	if !ok {
		return dberrors.ErrMissingTable.New(name)
	}
	def := t.Def()
	for i, r := range rows {
		if err := def.CheckRow(r); err != nil {
			return dberrors.ErrSchemaMismatch.New(name, fmt.Sprintf("row %d: %s", len(t.Rows)+i, err))
		}
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, append(types.Row(nil), r...))
	}
	return nil
}

// Names lists the defined tables in definition order.
func (s *Set) Names() []string {
	return append([]string(nil), s.order...)
}

// Table returns the named table. Undefined names yield an empty table and false.
func (s *Set) Table(name string) (Table, bool) {
	t, ok := s.tables[name]
	if !ok {
		return Table{Name: name}, false
	}
	return *t, true
}

func (s *Set) Len() int { return len(s.order) }

// Flush writes the catalog rows and one table per definition. The AuxTables catalog
// itself must already exist in tx.
func (s *Set) Flush(ctx context.Context, tx store.Tx) (rows int, err error) {
	for _, name := range s.order {
		t := s.tables[name]
		typeNames := make([]string, len(t.Types))
		for i, ct := range t.Types {
			typeNames[i] = ct.String()
		}
		catalog := types.Row{
			types.Str(name),
			types.Str(strings.Join(t.Columns, listSeparator)),
			types.Str(strings.Join(typeNames, listSeparator)),
		}
		if err := tx.Insert(ctx, schema.AuxTables, catalog); err != nil {
			return rows, fmt.Errorf("cataloging auxiliary table %s: %w", name, err)
		}
		if err := tx.CreateTable(ctx, t.Def()); err != nil {
			return rows, fmt.Errorf("creating auxiliary table %s: %w", name, err)
		}
		if len(t.Rows) > 0 {
			if err := tx.Insert(ctx, name, t.Rows...); err != nil {
				return rows, fmt.Errorf("writing auxiliary table %s: %w", name, err)
			}
		}
		rows += len(t.Rows)
		s.log.WithFields(logrus.Fields{
			"table": name,
			"rows":  len(t.Rows),
		}).Debug("auxiliary table flushed")
	}
	return rows, nil
}

// Load reads every auxiliary table of a committed store. A store without an AuxTables
// catalog has no auxiliary tables.
func Load(ctx context.Context, backend store.Backend, log *logrus.Logger) (*Set, error) {
	s := NewSet(log)
	ok, err := backend.TableExists(ctx, schema.AuxTables)
	if err != nil || !ok {
		return s, err
	}
	catalog, err := backend.Scan(ctx, schema.AuxTables)
	if err != nil {
		return nil, err
	}
	for i, row := range catalog {
		if len(row) != 3 || row[0].IsNull() || row[1].IsNull() || row[2].IsNull() {
			return nil, dberrors.Corrupt("%s row %d is malformed", schema.AuxTables, i)
		}
		name := row[0].AsString()
		columns := strings.Split(row[1].AsString(), listSeparator)
		typeNames := strings.Split(row[2].AsString(), listSeparator)
		colTypes := make([]types.ColumnType, len(typeNames))
		for j, tn := range typeNames {
			if colTypes[j], err = types.ParseColumnType(tn); err != nil {
				return nil, dberrors.Corrupt("auxiliary table %s: %s", name, err)
			}
		}
		if err := s.Define(name, columns, colTypes); err != nil {
			return nil, dberrors.Corrupt("auxiliary table %s: %s", name, err)
		}
		t := s.tables[name]

		stored, err := backend.Schema(ctx, name)
		if dberrors.Is(err, dberrors.ErrMissingTable) {
			return nil, dberrors.Corrupt("auxiliary table %s is cataloged but missing", name)
		}
		if err != nil {
			return nil, err
		}
		if !stored.SameShape(t.Def()) {
			return nil, dberrors.Corrupt("auxiliary table %s does not match its catalog entry", name)
		}
		if t.Rows, err = backend.Scan(ctx, name); err != nil {
			return nil, err
		}
	}
	return s, nil
}
