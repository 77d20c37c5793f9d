// Package reader rebuilds a geometry graph from a committed store. A Session loads the
// tables, materializes every stored node once, links the child lists from the root and
// only then exposes the graph, so a failed read never hands out a partial graph.
package reader

import (
	"context"
	"fmt"
	"time"

	"github.com/i5heu/geomodel-db/pkg/auxtable"
	"github.com/i5heu/geomodel-db/pkg/dberrors"
	"github.com/i5heu/geomodel-db/pkg/geo"
	"github.com/i5heu/geomodel-db/pkg/index"
	"github.com/i5heu/geomodel-db/pkg/logging"
	"github.com/i5heu/geomodel-db/pkg/metrics"
	"github.com/i5heu/geomodel-db/pkg/publish"
	"github.com/i5heu/geomodel-db/pkg/schema"
	"github.com/i5heu/geomodel-db/pkg/store"
	"github.com/i5heu/geomodel-db/pkg/types"
	"github.com/sirupsen/logrus"
)

// State is the progress of a Session.
type State uint8

const (
	Unopened State = iota
	TablesLoaded
	DependenciesResolved
	GraphLinked
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Unopened:
		return "unopened"
	case TablesLoaded:
		return "tables loaded"
	case DependenciesResolved:
		return "dependencies resolved"
	case GraphLinked:
		return "graph linked"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

type Option func(*Session)

func WithLogger(log *logrus.Logger) Option {
	return func(s *Session) { s.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// Session reads one graph. It is not safe for concurrent use.
type Session struct {
	backend store.Backend
	log     *logrus.Logger
	metrics *metrics.Metrics

	state State
	err   error

	rows     map[string][]types.Row
	root     types.Ref
	version  schema.VersionRecord
	graph    *geo.Graph
	nodes    map[types.Ref]geo.NodeID
	refs     map[geo.NodeID]types.Ref
	placed   map[types.Ref]types.Ref // serial transformer -> placed volume
	children *index.ChildPositions
	aux      *auxtable.Set
}

func New(backend store.Backend, opts ...Option) *Session {
	s := &Session{
		backend:  backend,
		rows:     make(map[string][]types.Row),
		nodes:    make(map[types.Ref]geo.NodeID),
		refs:     make(map[geo.NodeID]types.Ref),
		placed:   make(map[types.Ref]types.Ref),
		children: index.NewChildPositions(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logging.OrDefault(s.log)
	if s.metrics == nil {
		s.metrics = metrics.New(nil)
	}
	return s
}

func (s *Session) State() State {
	return s.state
}

// Err returns the error that failed the session, if any.
func (s *Session) Err() error {
	return s.err
}

func (s *Session) fail(err error) error {
	s.state = Failed
	s.err = err
	return err
}

// ready returns an error unless the graph has been read completely.
func (s *Session) ready() error {
	switch s.state {
	case Ready:
		return nil
	case Failed:
		return dberrors.ErrSessionFailed.Wrap(s.err)
	}
	return fmt.Errorf("reader: session is %s, not ready", s.state)
}

// Read runs the session to completion and returns the rebuilt graph. Calling it again on
// a ready session returns the same graph; on a failed session it returns the failure.
func (s *Session) Read(ctx context.Context) (g *geo.Graph, err error) {
	switch s.state {
	case Ready:
		return s.graph, nil
	case Failed:
		return nil, dberrors.ErrSessionFailed.Wrap(s.err)
	}

	start := time.Now()
	defer func() {
		s.metrics.Duration.WithLabelValues("read", metrics.Status(err)).Observe(time.Since(start).Seconds())
		if err != nil {
			s.metrics.Failures.WithLabelValues("read", dberrors.KindName(err)).Inc()
			s.log.WithError(err).WithField("state", s.state.String()).Warn("read failed")
		}
	}()

	steps := []struct {
		next State
		run  func(context.Context) error
	}{
		{TablesLoaded, s.loadTables},
		{DependenciesResolved, s.materialize},
		{GraphLinked, s.link},
		{Ready, s.finish},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, s.fail(err)
		}
		if err := step.run(ctx); err != nil {
			s.graph = nil
			return nil, s.fail(err)
		}
		s.state = step.next
	}

	s.rows = nil
	s.log.WithFields(logrus.Fields{
		"graph":    s.version.GraphID,
		"root":     s.root.String(),
		"nodes":    len(s.nodes),
		"edges":    s.children.Len(),
		"aux":      s.aux.Len(),
		"duration": time.Since(start),
	}).Info("geometry read")
	return s.graph, nil
}

// finish loads the auxiliary tables and places the full physical volumes.
func (s *Session) finish(ctx context.Context) error {
	aux, err := auxtable.Load(ctx, s.backend, s.log)
	if err != nil {
		return err
	}
	for _, name := range aux.Names() {
		t, _ := aux.Table(name)
		s.metrics.RowsRead.WithLabelValues(name).Add(float64(t.Len()))
	}
	s.aux = aux
	placed := s.graph.ComputeAbsolutePlacements()
	s.log.WithField("volumes", placed).Debug("absolute placements computed")
	return nil
}

// Graph returns the rebuilt graph, nil unless the session is ready.
func (s *Session) Graph() *geo.Graph {
	if s.state != Ready {
		return nil
	}
	return s.graph
}

// Aux returns the auxiliary tables, nil unless the session is ready.
func (s *Session) Aux() *auxtable.Set {
	if s.state != Ready {
		return nil
	}
	return s.aux
}

// Root is the stored reference of the root volume.
func (s *Session) Root() types.Ref {
	return s.root
}

func (s *Session) Version() schema.VersionRecord {
	return s.version
}

// NodeFor maps a stored reference to the node rebuilt for it.
func (s *Session) NodeFor(ref types.Ref) (geo.NodeID, bool) {
	if s.state != Ready {
		return 0, false
	}
	id, ok := s.nodes[ref]
	return id, ok
}

// RefFor maps a rebuilt node back to its stored reference.
func (s *Session) RefFor(id geo.NodeID) (types.Ref, bool) {
	if s.state != Ready {
		return types.Ref{}, false
	}
	ref, ok := s.refs[id]
	return ref, ok
}

// ParentsOf lists the stored parents holding ref as a child, in the order the edges were
// written.
func (s *Session) ParentsOf(ref types.Ref) []types.Ref {
	if s.state != Ready {
		return nil
	}
	return s.children.ParentsOf(ref)
}

// PublishedFullPhysVols returns the full physical volumes published by publisher under
// keys of type K. Without strict an unknown publisher yields an empty map.
func PublishedFullPhysVols[K publish.Key](ctx context.Context, s *Session, publisher string, strict bool) (map[K]geo.NodeID, error) {
	return published[K](ctx, s, publisher, types.FullPhysVol, strict)
}

// PublishedAlignableTransforms is PublishedFullPhysVols for alignable transforms.
func PublishedAlignableTransforms[K publish.Key](ctx context.Context, s *Session, publisher string, strict bool) (map[K]geo.NodeID, error) {
	return published[K](ctx, s, publisher, types.AlignableTransform, strict)
}

func published[K publish.Key](ctx context.Context, s *Session, publisher string, kind types.Kind, strict bool) (map[K]geo.NodeID, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	ids, err := publish.Lookup[K](ctx, s.backend, publisher, kind, strict)
	if err != nil {
		return nil, err
	}
	out := make(map[K]geo.NodeID, len(ids))
	for key, id := range ids {
		node, ok := s.nodes[types.Ref{Kind: kind, ID: id}]
		if !ok {
			return nil, dberrors.Corrupt("publisher %q maps %v to missing %s %d", publisher, key, kind, id)
		}
		out[key] = node
	}
	return out, nil
}
