// Package writer persists a geometry graph. A Writer traverses the graph once from its
// root, stores every reachable node exactly once, records the ordered child lists, and
// commits the node tables, the auxiliary tables and the published maps in a single
// transaction.
package writer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/i5heu/geomodel-db/pkg/auxtable"
	"github.com/i5heu/geomodel-db/pkg/dberrors"
	"github.com/i5heu/geomodel-db/pkg/geo"
	"github.com/i5heu/geomodel-db/pkg/logging"
	"github.com/i5heu/geomodel-db/pkg/metrics"
	"github.com/i5heu/geomodel-db/pkg/publish"
	"github.com/i5heu/geomodel-db/pkg/schema"
	"github.com/i5heu/geomodel-db/pkg/store"
	"github.com/i5heu/geomodel-db/pkg/types"
	"github.com/sirupsen/logrus"
)

// CommitResult describes a committed write.
type CommitResult struct {
	GraphID   string
	Root      types.Ref
	Rows      map[string]int // per table, including empty tables
	Nodes     map[types.Kind]int
	DedupHits map[types.Kind]uint64
	Duration  time.Duration
}

// TotalRows is the number of rows committed over all tables.
func (r CommitResult) TotalRows() int {
	n := 0
	for _, c := range r.Rows {
		n += c
	}
	return n
}

type Option func(*Writer)

func WithLogger(log *logrus.Logger) Option {
	return func(w *Writer) { w.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Writer) { w.metrics = m }
}

// WithClock replaces time.Now for the createdAt stamp and durations.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

// WithGraphID fixes the graph id instead of generating a random one.
func WithGraphID(id string) Option {
	return func(w *Writer) { w.graphID = id }
}

// Writer writes one graph. Auxiliary tables and publications are added before Write;
// their errors are returned at once and also remembered, so a later Write fails with
// the first of them before the store is touched.
type Writer struct {
	backend store.Backend
	log     *logrus.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	graphID string

	aux       *auxtable.Set
	published *publish.Registry
	err       error
	written   bool
}

func New(backend store.Backend, opts ...Option) *Writer {
	w := &Writer{
		backend:   backend,
		now:       time.Now,
		published: publish.NewRegistry(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = logging.OrDefault(w.log)
	if w.metrics == nil {
		w.metrics = metrics.New(nil)
	}
	w.aux = auxtable.NewSet(w.log)
	return w
}

// Err returns the first error recorded by an auxiliary table or publish call.
func (w *Writer) Err() error {
	return w.err
}

func (w *Writer) record(err error) error {
	if err != nil && w.err == nil {
		w.err = err
	}
	return err
}

// DefineAuxiliaryTable declares an auxiliary table without rows.
func (w *Writer) DefineAuxiliaryTable(name string, columns []string, colTypes []types.ColumnType) error {
	return w.record(w.aux.Define(name, columns, colTypes))
}

// AddAuxiliaryTable declares a table and appends rows to it.
func (w *Writer) AddAuxiliaryTable(name string, columns []string, colTypes []types.ColumnType, rows []types.Row) error {
	if err := w.DefineAuxiliaryTable(name, columns, colTypes); err != nil {
		return err
	}
	return w.AppendAuxiliaryRows(name, rows...)
}

func (w *Writer) AppendAuxiliaryRows(name string, rows ...types.Row) error {
	return w.record(w.aux.AppendRows(name, rows...))
}

// PublishString publishes a full physical volume or alignable transform under a string key.
func (w *Writer) PublishString(publisher, key string, targetKind types.Kind, target geo.NodeID) error {
	return w.record(w.published.PublishString(publisher, key, targetKind, target))
}

// PublishInt publishes a full physical volume or alignable transform under an integer key.
func (w *Writer) PublishInt(publisher string, key int64, targetKind types.Kind, target geo.NodeID) error {
	return w.record(w.published.PublishInt(publisher, key, targetKind, target))
}

// Write stores g. Either everything is committed or the store is left as it was.
func (w *Writer) Write(ctx context.Context, g *geo.Graph) (res CommitResult, err error) {
	start := w.now()
	defer func() {
		w.metrics.Duration.WithLabelValues("write", metrics.Status(err)).Observe(w.now().Sub(start).Seconds())
		if err != nil {
			w.metrics.Failures.WithLabelValues("write", dberrors.KindName(err)).Inc()
		}
	}()

	if w.written {
		return res, fmt.Errorf("writer already used")
	}
	w.written = true
	if w.err != nil {
		return res, w.err
	}
	if err := g.Err(); err != nil {
		return res, fmt.Errorf("graph was built with errors: %w", err)
	}
	roots := g.Roots()
	switch {
	case len(roots) == 0:
		return res, dberrors.ErrNoRoot.New()
	case len(roots) > 1:
		return res, dberrors.ErrMultipleRoots.New(len(roots))
	}

	notEmpty, err := w.backend.TableExists(ctx, schema.RootVolume)
	if err != nil {
		return res, err
	}
	if notEmpty {
		return res, dberrors.ErrStoreNotEmpty.New()
	}

	s := newSession(g)
	root, err := s.run(roots[0])
	if err != nil {
		return res, err
	}

	res = CommitResult{
		GraphID:   w.graphID,
		Root:      root,
		Rows:      make(map[string]int),
		Nodes:     make(map[types.Kind]int),
		DedupHits: make(map[types.Kind]uint64),
	}
	if res.GraphID == "" {
		res.GraphID = uuid.NewString()
	}
	for _, k := range types.AllKinds {
		res.Nodes[k] = s.registry.Count(k)
		res.DedupHits[k] = s.registry.Hits(k)
	}

	tx, err := w.backend.Begin(ctx)
	if err != nil {
		return res, err
	}
	if err := w.flush(ctx, tx, s, &res); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			w.log.WithError(rbErr).Error("rollback failed")
		}
		w.log.WithFields(logrus.Fields{
			"graph": res.GraphID,
		}).WithError(err).Warn("write rolled back")
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}

	res.Duration = w.now().Sub(start)
	for table, n := range res.Rows {
		w.metrics.RowsWritten.WithLabelValues(table).Add(float64(n))
	}
	for _, k := range types.AllKinds {
		w.metrics.NodesStored.WithLabelValues(k.String()).Add(float64(res.Nodes[k]))
		w.metrics.DedupHits.WithLabelValues(k.String()).Add(float64(res.DedupHits[k]))
	}
	w.log.WithFields(logrus.Fields{
		"graph":    res.GraphID,
		"root":     root.String(),
		"rows":     res.TotalRows(),
		"edges":    s.children.Len(),
		"duration": res.Duration,
	}).Info("geometry written")
	return res, nil
}

// flush creates the schema and writes every buffered row inside tx.
func (w *Writer) flush(ctx context.Context, tx store.Tx, s *session, res *CommitResult) error {
	for _, def := range schema.All() {
		if err := tx.CreateTable(ctx, def); err != nil {
			return fmt.Errorf("creating %s: %w", def.Name, err)
		}
		res.Rows[def.Name] = 0
	}

	insert := func(table string, rows []types.Row) error {
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Insert(ctx, table, rows...); err != nil {
			return fmt.Errorf("writing %s: %w", table, err)
		}
		res.Rows[table] += len(rows)
		w.log.WithFields(logrus.Fields{"table": table, "rows": len(rows)}).Debug("table written")
		return nil
	}

	for _, def := range schema.All() {
		if err := insert(def.Name, s.rows[def.Name]); err != nil {
			return err
		}
	}

	edges := s.children.Rows()
	positions := make([]types.Row, len(edges))
	for i, e := range edges {
		positions[i] = schema.ChildPositionRow(i+1, e)
	}
	if err := insert(schema.ChildPositions, positions); err != nil {
		return err
	}
	if err := insert(schema.RootVolume, []types.Row{schema.RootVolumeRow(res.Root)}); err != nil {
		return err
	}
	if err := insert(schema.NodeKinds, schema.NodeKindRows()); err != nil {
		return err
	}
	version := schema.VersionRecord{Version: schema.Version, GraphID: res.GraphID, CreatedAt: w.now()}
	if err := insert(schema.DBVersion, []types.Row{version.Row()}); err != nil {
		return err
	}

	if _, err := w.aux.Flush(ctx, tx); err != nil {
		return err
	}
	res.Rows[schema.AuxTables] += w.aux.Len()
	for _, name := range w.aux.Names() {
		t, _ := w.aux.Table(name)
		res.Rows[name] = t.Len()
	}

	if _, err := w.published.Flush(ctx, tx, s.ref, w.log); err != nil {
		return err
	}
	for _, p := range w.published.Publications() {
		res.Rows[p.TableName()] = w.published.Count(p)
	}
	return nil
}
