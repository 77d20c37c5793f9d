// Package sqlStore is the SQLite store adapter. Every table is a plain SQLite table
// whose declared column types (INT32, INT64, FLOAT, DOUBLE, TEXT) carry the column
// types of the engine. Rows are read back in rowid order, which is insertion order.
package sqlStore

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"github.com/i5heu/geomodel-db/pkg/dberrors"
	"github.com/i5heu/geomodel-db/pkg/logging"
	"github.com/i5heu/geomodel-db/pkg/store"
	"github.com/i5heu/geomodel-db/pkg/types"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

var declaredTypes = map[types.ColumnType]string{
	types.Integer:     "INT32",
	types.LongInteger: "INT64",
	types.Float:       "FLOAT",
	types.Double:      "DOUBLE",
	types.String:      "TEXT",
}

func declaredToColumnType(decl string) (types.ColumnType, error) {
	decl = strings.ToUpper(strings.TrimSpace(decl))
	for t, d := range declaredTypes {
		if d == decl {
			return t, nil
		}
	}
	// tables created by other tools
	switch {
	case strings.Contains(decl, "INT"):
		return types.LongInteger, nil
	case strings.Contains(decl, "CHAR"), strings.Contains(decl, "TEXT"), strings.Contains(decl, "CLOB"):
		return types.String, nil
	case strings.Contains(decl, "REAL"), strings.Contains(decl, "FLOA"), strings.Contains(decl, "DOUB"):
		return types.Double, nil
	}
	return types.ColumnUnknown, fmt.Errorf("unsupported declared type %q", decl)
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

type Config struct {
	Path   string // ":memory:" for a private in-memory database
	Logger *logrus.Logger
}

type SQLStore struct {
	db           *sqlx.DB
	log          *logrus.Logger
	path         string
	writeCounter uint64
	readCounter  uint64
}

var _ store.Backend = (*SQLStore)(nil)

func NewSQLStore(config Config) (*SQLStore, error) {
	config.Logger = logging.OrDefault(config.Logger)
	if config.Path == "" {
		return nil, dberrors.Unavailable(fmt.Errorf("no path provided in configuration"), "sqlite")
	}
	dsn := config.Path
	if dsn != ":memory:" {
		dsn = "file:" + config.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, dberrors.Unavailable(err, "sqlite open")
	}
	// one session owns the store; a single connection also keeps :memory: databases alive
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, dberrors.Unavailable(err, "sqlite ping")
	}
	config.Logger.WithFields(logrus.Fields{"path": config.Path}).Debug("sqlite store opened")
	return &SQLStore{db: db, log: config.Logger, path: config.Path}, nil
}

// Counters returns the number of rows read and written since the store was opened.
func (s *SQLStore) Counters() (reads, writes uint64) {
	return atomic.LoadUint64(&s.readCounter), atomic.LoadUint64(&s.writeCounter)
}

func tableExists(ctx context.Context, q sqlx.QueryerContext, name string) (bool, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n, `SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// tableNameTaken is tableExists ignoring case, the way sqlite resolves table names.
func tableNameTaken(ctx context.Context, q sqlx.QueryerContext, name string) (bool, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n, `SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ? COLLATE NOCASE`, name)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLStore) TableExists(ctx context.Context, name string) (bool, error) {
	ok, err := tableExists(ctx, s.db, name)
	if err != nil {
		return false, dberrors.Unavailable(err, "sqlite query")
	}
	return ok, nil
}

func (s *SQLStore) Tables(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.SelectContext(ctx, &names,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, dberrors.Unavailable(err, "sqlite query")
	}
	return names, nil
}

type tableInfo struct {
	CID        int            `db:"cid"`
	Name       string         `db:"name"`
	Type       string         `db:"type"`
	NotNull    int            `db:"notnull"`
	Default    sql.NullString `db:"dflt_value"`
	PrimaryKey int            `db:"pk"`
}

func (s *SQLStore) Schema(ctx context.Context, name string) (types.TableDef, error) {
	ok, err := s.TableExists(ctx, name)
	if err != nil {
		return types.TableDef{}, err
	}
	if !ok {
		return types.TableDef{}, dberrors.ErrMissingTable.New(name)
	}
	var infos []tableInfo
	if err := s.db.SelectContext(ctx, &infos, "PRAGMA table_info("+quote(name)+")"); err != nil {
		return types.TableDef{}, dberrors.Unavailable(err, "sqlite table_info")
	}
	def := types.TableDef{Name: name}
	for _, info := range infos {
		t, err := declaredToColumnType(info.Type)
		if err != nil {
			return types.TableDef{}, dberrors.ErrSchemaMismatch.New(name, err.Error())
		}
		def.Columns = append(def.Columns, types.Column{Name: info.Name, Type: t})
	}
	return def, nil
}

func (s *SQLStore) Scan(ctx context.Context, name string) ([]types.Row, error) {
	def, err := s.Schema(ctx, name)
	if err != nil {
		return nil, err
	}
	cols := make([]string, len(def.Columns))
	for i, c := range def.Columns {
		cols[i] = quote(c.Name)
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid", strings.Join(cols, ", "), quote(name))
	rs, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, dberrors.Unavailable(err, "sqlite scan")
	}
	defer rs.Close()

	var rows []types.Row
	for rs.Next() {
		cells, err := rs.SliceScan()
		if err != nil {
			return nil, dberrors.Unavailable(err, "sqlite scan")
		}
		row := make(types.Row, len(cells))
		for i, c := range cells {
			v, err := fromDriver(def.Columns[i].Type, c)
			if err != nil {
				return nil, dberrors.ErrSchemaMismatch.New(name, fmt.Sprintf("column %s: %s", def.Columns[i].Name, err))
			}
			row[i] = v
		}
		rows = append(rows, row)
		atomic.AddUint64(&s.readCounter, 1)
	}
	if err := rs.Err(); err != nil {
		return nil, dberrors.Unavailable(err, "sqlite scan")
	}
	return rows, nil
}

// SQLite binds a NaN REAL as NULL. NaN cells are written as this text instead, which a
// REAL column keeps as TEXT since it does not parse as a number.
const nanText = "NaN"

func toDriver(v types.Value) any {
	if !v.IsNull() && (v.Type == types.Float || v.Type == types.Double) && math.IsNaN(v.AsDouble()) {
		return nanText
	}
	return v.Interface()
}

// fromDriver converts what the driver returned into a typed cell of column type t.
func fromDriver(t types.ColumnType, x any) (types.Value, error) {
	switch c := x.(type) {
	case nil:
		return types.Null(t), nil
	case float64:
		if t == types.Integer || t == types.LongInteger {
			return types.Value{}, fmt.Errorf("real value %g in integer column", c)
		}
		return types.FromInterface(t, c)
	case int64:
		if t == types.String {
			return types.Value{}, fmt.Errorf("integer value %d in text column", c)
		}
		return types.FromInterface(t, c)
	case string:
		if c == nanText && (t == types.Float || t == types.Double) {
			return types.FromInterface(t, math.NaN())
		}
	}
	return types.FromInterface(t, x)
}

func (s *SQLStore) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, dberrors.Unavailable(err, "sqlite begin")
	}
	return &sqlTx{s: s, tx: tx, defs: make(map[string]types.TableDef), stmts: make(map[string]*sqlx.Stmt)}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

type sqlTx struct {
	s     *SQLStore
	tx    *sqlx.Tx
	defs  map[string]types.TableDef
	stmts map[string]*sqlx.Stmt
	done  bool
}

func (t *sqlTx) CreateTable(ctx context.Context, def types.TableDef) error {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	exists, err := tableNameTaken(ctx, t.tx, def.Name)
	if err != nil {
		return dberrors.Unavailable(err, "sqlite query")
	}
	if exists {
		return dberrors.ErrDuplicateDefinition.New("table", def.Name)
	}
	cols := make([]string, len(def.Columns))
	for i, c := range def.Columns {
		decl, ok := declaredTypes[c.Type]
		if !ok {
			return dberrors.ErrSchemaMismatch.New(def.Name, fmt.Sprintf("column %s has unknown type", c.Name))
		}
		cols[i] = quote(c.Name) + " " + decl
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", quote(def.Name), strings.Join(cols, ", "))
	if _, err := t.tx.ExecContext(ctx, ddl); err != nil {
		return dberrors.Unavailable(err, "sqlite create table "+def.Name)
	}
	t.defs[def.Name] = def
	return nil
}

func (t *sqlTx) stmt(ctx context.Context, def types.TableDef) (*sqlx.Stmt, error) {
	if st, ok := t.stmts[def.Name]; ok {
		return st, nil
	}
	cols := make([]string, len(def.Columns))
	marks := make([]string, len(def.Columns))
	for i, c := range def.Columns {
		cols[i] = quote(c.Name)
		marks[i] = "?"
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quote(def.Name), strings.Join(cols, ", "), strings.Join(marks, ", "))
	st, err := t.tx.PreparexContext(ctx, query)
	if err != nil {
		return nil, err
	}
	t.stmts[def.Name] = st
	return st, nil
}

func (t *sqlTx) Insert(ctx context.Context, table string, rows ...types.Row) error {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	def, ok := t.defs[table]
	if !ok {
		return dberrors.ErrMissingTable.New(table)
	}
	st, err := t.stmt(ctx, def)
	if err != nil {
		return dberrors.Unavailable(err, "sqlite prepare "+table)
	}
	args := make([]any, len(def.Columns))
	for _, row := range rows {
		if err := def.CheckRow(row); err != nil {
			return dberrors.ErrSchemaMismatch.New(table, err.Error())
		}
		for i, v := range row {
			args[i] = toDriver(v)
		}
		if _, err := st.ExecContext(ctx, args...); err != nil {
			return dberrors.Unavailable(err, "sqlite insert "+table)
		}
		atomic.AddUint64(&t.s.writeCounter, 1)
	}
	return nil
}

func (t *sqlTx) closeStmts() {
	for name, st := range t.stmts {
		if err := st.Close(); err != nil {
			t.s.log.WithError(err).WithField("table", name).Debug("closing statement")
		}
	}
	clear(t.stmts)
}

func (t *sqlTx) Commit() error {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	t.done = true
	t.closeStmts()
	if err := t.tx.Commit(); err != nil {
		return dberrors.Unavailable(err, "sqlite commit")
	}
	t.s.log.WithFields(logrus.Fields{"tables": len(t.defs)}).Debug("sqlite transaction committed")
	return nil
}

func (t *sqlTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.closeStmts()
	if err := t.tx.Rollback(); err != nil {
		return dberrors.Unavailable(err, "sqlite rollback")
	}
	return nil
}
