// Package publish exposes selected full physical volumes and alignable transforms under
// application keys. Every (publisher, key kind, target kind) triple is stored in its own
// table named Published_<TargetTable>_<KeyKind>_<Publisher> with columns (key, targetId).
package publish

import (
	"context"
	"fmt"
	"strings"

	"github.com/i5heu/geomodel-db/pkg/dberrors"
	"github.com/i5heu/geomodel-db/pkg/geo"
	"github.com/i5heu/geomodel-db/pkg/schema"
	"github.com/i5heu/geomodel-db/pkg/store"
	"github.com/i5heu/geomodel-db/pkg/types"
	"github.com/sirupsen/logrus"
)

type KeyKind uint8

const (
	StringKey KeyKind = iota + 1
	IntKey
)

func (k KeyKind) String() string {
	switch k {
	case StringKey:
		return "String"
	case IntKey:
		return "Integer"
	}
	return "Unknown"
}

func (k KeyKind) columnType() types.ColumnType {
	if k == IntKey {
		return types.LongInteger
	}
	return types.String
}

func parseKeyKind(s string) (KeyKind, bool) {
	switch s {
	case "String":
		return StringKey, true
	case "Integer":
		return IntKey, true
	}
	return 0, false
}

// Targetable reports whether nodes of kind k can be published.
func Targetable(k types.Kind) bool {
	return k == types.FullPhysVol || k == types.AlignableTransform
}

// Publication identifies one published table.
type Publication struct {
	Publisher  string
	KeyKind    KeyKind
	TargetKind types.Kind
}

// TableName returns the backing table of the publication.
func (p Publication) TableName() string {
	return fmt.Sprintf("%s%s_%s_%s", schema.PublishedPrefix, p.TargetKind.Table(), p.KeyKind, p.Publisher)
}

func (p Publication) def() types.TableDef {
	return types.TableDef{Name: p.TableName(), Columns: []types.Column{
		{Name: "key", Type: p.KeyKind.columnType()},
		{Name: "targetId", Type: types.LongInteger},
	}}
}

// ParseTableName is the inverse of TableName.
func ParseTableName(name string) (Publication, bool) {
	rest, ok := strings.CutPrefix(name, schema.PublishedPrefix)
	if !ok {
		return Publication{}, false
	}
	parts := strings.SplitN(rest, "_", 3)
	if len(parts) != 3 || parts[2] == "" {
		return Publication{}, false
	}
	target, err := types.ParseKind(parts[0])
	if err != nil || !Targetable(target) {
		return Publication{}, false
	}
	kk, ok := parseKeyKind(parts[1])
	if !ok {
		return Publication{}, false
	}
	return Publication{Publisher: parts[2], KeyKind: kk, TargetKind: target}, true
}

type entry struct {
	key    types.Value
	target geo.NodeID
}

type publication struct {
	Publication
	entries []entry
	keys    map[types.Value]bool
}

// Registry collects published entries before a write.
type Registry struct {
	order []*publication
	byPub map[Publication]*publication
}

func NewRegistry() *Registry {
	return &Registry{byPub: make(map[Publication]*publication)}
}

// PublishString publishes target under a string key. targetKind declares what the
// target is; it is checked against the graph when the registry is flushed.
func (r *Registry) PublishString(publisher, key string, targetKind types.Kind, target geo.NodeID) error {
	return r.publish(publisher, StringKey, types.Str(key), targetKind, target)
}

func (r *Registry) PublishInt(publisher string, key int64, targetKind types.Kind, target geo.NodeID) error {
	return r.publish(publisher, IntKey, types.Long(key), targetKind, target)
}

func (r *Registry) publish(publisher string, kk KeyKind, key types.Value, targetKind types.Kind, target geo.NodeID) error {
	if !schema.ValidName(publisher) {
		return dberrors.ErrInvalidName.New(publisher)
	}
	if !Targetable(targetKind) {
		return dberrors.ErrSchemaMismatch.New("publisher "+publisher,
			fmt.Sprintf("%s nodes cannot be published", targetKind))
	}
	if target == 0 {
		return dberrors.ErrSchemaMismatch.New("publisher "+publisher, "published node is nil")
	}
	id := Publication{Publisher: publisher, KeyKind: kk, TargetKind: targetKind}
	p, ok := r.byPub[id]
	if !ok {
		// table names are case-insensitive in some backends
		for _, other := range r.order {
			if strings.EqualFold(other.TableName(), id.TableName()) {
				return dberrors.ErrDuplicateDefinition.New("publisher",
					fmt.Sprintf("%s clashes with %s", id.TableName(), other.TableName()))
			}
		}
		p = &publication{Publication: id, keys: make(map[types.Value]bool)}
		r.byPub[id] = p
		r.order = append(r.order, p)
	}
	if p.keys[key] {
		return dberrors.ErrDuplicateDefinition.New("published key", fmt.Sprintf("%s in %s", key, id.TableName()))
	}
	p.keys[key] = true
	p.entries = append(p.entries, entry{key: key, target: target})
	return nil
}

// Publications lists what was published, in first-publish order.
func (r *Registry) Publications() []Publication {
	out := make([]Publication, len(r.order))
	for i, p := range r.order {
		out[i] = p.Publication
	}
	return out
}

// Len returns the number of published entries.
func (r *Registry) Len() int {
	n := 0
	for _, p := range r.order {
		n += len(p.entries)
	}
	return n
}

// Count returns the number of entries of one publication.
func (r *Registry) Count(p Publication) int {
	if pub, ok := r.byPub[p]; ok {
		return len(pub.entries)
	}
	return 0
}

// Resolver maps a graph node to its stored reference.
type Resolver func(geo.NodeID) (types.Ref, bool)

// Flush creates one table per publication and writes its entries in publish order.
// A target that was never stored is a CorruptGraph error; a target whose kind is not the
// declared one is a SchemaMismatch.
func (r *Registry) Flush(ctx context.Context, tx store.Tx, resolve Resolver, log *logrus.Logger) (rows int, err error) {
	for _, p := range r.order {
		table := p.TableName()
		out := make([]types.Row, 0, len(p.entries))
		for _, e := range p.entries {
			ref, ok := resolve(e.target)
			if !ok {
				return rows, dberrors.Corrupt("%s key %s references a node that is not part of the written graph", table, e.key)
			}
			if ref.Kind != p.TargetKind {
				return rows, dberrors.ErrSchemaMismatch.New(table,
					fmt.Sprintf("key %s references a %s, not a %s", e.key, ref.Kind, p.TargetKind))
			}
			out = append(out, types.Row{e.key, types.ID(ref.ID)})
		}
		if err := tx.CreateTable(ctx, p.def()); err != nil {
			return rows, fmt.Errorf("creating %s: %w", table, err)
		}
		if err := tx.Insert(ctx, table, out...); err != nil {
			return rows, fmt.Errorf("writing %s: %w", table, err)
		}
		rows += len(out)
		if log != nil {
			log.WithFields(logrus.Fields{"table": table, "rows": len(out)}).Debug("publication flushed")
		}
	}
	return rows, nil
}

// Key is the key type of a published map.
type Key interface {
	string | int64
}

func keyKindOf[K Key]() KeyKind {
	var zero K
	if _, ok := any(zero).(string); ok {
		return StringKey
	}
	return IntKey
}

// Lookup reads one publication from a committed store. If the table does not exist the
// result is an empty map, or MissingPublication when strict is set.
func Lookup[K Key](ctx context.Context, backend store.Backend, publisher string, targetKind types.Kind, strict bool) (map[K]types.StoredID, error) {
	p := Publication{Publisher: publisher, KeyKind: keyKindOf[K](), TargetKind: targetKind}
	if !Targetable(targetKind) {
		return nil, dberrors.ErrSchemaMismatch.New("publisher "+publisher,
			fmt.Sprintf("%s nodes cannot be published", targetKind))
	}
	ok, err := backend.TableExists(ctx, p.TableName())
	if err != nil {
		return nil, err
	}
	if !ok {
		if strict {
			return nil, dberrors.ErrMissingPublication.New(publisher, p.KeyKind, targetKind)
		}
		return map[K]types.StoredID{}, nil
	}
	rows, err := backend.Scan(ctx, p.TableName())
	if err != nil {
		return nil, err
	}
	out := make(map[K]types.StoredID, len(rows))
	for i, row := range rows {
		if len(row) != 2 || row[0].IsNull() {
			return nil, dberrors.Corrupt("%s row %d is malformed", p.TableName(), i)
		}
		id, err := row[1].AsID()
		if err != nil || id == 0 {
			return nil, dberrors.Corrupt("%s row %d: bad target id", p.TableName(), i)
		}
		var key K
		switch p.KeyKind {
		case StringKey:
			if row[0].Type != types.String {
				return nil, dberrors.Corrupt("%s row %d: key is %s", p.TableName(), i, row[0].Type)
			}
			key = any(row[0].AsString()).(K)
		case IntKey:
			if row[0].Type != types.LongInteger && row[0].Type != types.Integer {
				return nil, dberrors.Corrupt("%s row %d: key is %s", p.TableName(), i, row[0].Type)
			}
			key = any(row[0].AsLong()).(K)
		}
		out[key] = id
	}
	return out, nil
}

// Publishers lists every publication of a committed store in table name order.
func Publishers(ctx context.Context, backend store.Backend) ([]Publication, error) {
	tables, err := backend.Tables(ctx)
	if err != nil {
		return nil, err
	}
	var out []Publication
	for _, name := range tables {
		if p, ok := ParseTableName(name); ok {
			out = append(out, p)
		}
	}
	return out, nil
}
