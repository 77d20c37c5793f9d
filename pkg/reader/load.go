package reader

import (
	"context"
	"sort"

	"github.com/i5heu/geomodel-db/pkg/dberrors"
	"github.com/i5heu/geomodel-db/pkg/geo"
	"github.com/i5heu/geomodel-db/pkg/schema"
	"github.com/i5heu/geomodel-db/pkg/types"
	"github.com/i5heu/geomodel-db/pkg/xf"
	"github.com/sirupsen/logrus"
)

// loadTables reads every fixed table. The root volume table decides whether the store
// holds a graph at all.
func (s *Session) loadTables(ctx context.Context) error {
	ok, err := s.backend.TableExists(ctx, schema.RootVolume)
	if err != nil {
		return err
	}
	if !ok {
		return dberrors.ErrMissingTable.New(schema.RootVolume)
	}

	for _, def := range schema.All() {
		if def.Name == schema.AuxTables {
			continue
		}
		stored, err := s.backend.Schema(ctx, def.Name)
		if err != nil {
			return err
		}
		if !stored.SameShape(def) {
			return dberrors.ErrSchemaMismatch.New(def.Name, "stored columns differ from the expected layout")
		}
		rows, err := s.backend.Scan(ctx, def.Name)
		if err != nil {
			return err
		}
		s.rows[def.Name] = rows
		s.metrics.RowsRead.WithLabelValues(def.Name).Add(float64(len(rows)))
		s.log.WithFields(logrus.Fields{"table": def.Name, "rows": len(rows)}).Debug("table loaded")
	}

	versions := s.rows[schema.DBVersion]
	if len(versions) != 1 {
		return dberrors.Corrupt("%s has %d rows, want 1", schema.DBVersion, len(versions))
	}
	if s.version, err = schema.ParseVersion(versions[0]); err != nil {
		return err
	}
	if s.version.Version > schema.Version {
		return dberrors.Corrupt("store has schema version %d, this build reads up to %d", s.version.Version, schema.Version)
	}

	for _, row := range s.rows[schema.NodeKinds] {
		if _, err := schema.ParseNodeKind(row); err != nil {
			return err
		}
	}

	roots := s.rows[schema.RootVolume]
	if len(roots) != 1 {
		return dberrors.Corrupt("%s has %d rows, want 1", schema.RootVolume, len(roots))
	}
	s.root, err = schema.ParseRootVolume(roots[0])
	return err
}

// ordinals groups the rows of a companion table by owner and ordinal.
type ordinals[T any] struct {
	table string
	m     map[types.StoredID]map[int32]T
}

func newOrdinals[T any](table string) *ordinals[T] {
	return &ordinals[T]{table: table, m: make(map[types.StoredID]map[int32]T)}
}

func (o *ordinals[T]) add(owner types.StoredID, ordinal int32, v T) error {
	byOrd, ok := o.m[owner]
	if !ok {
		byOrd = make(map[int32]T)
		o.m[owner] = byOrd
	}
	if _, dup := byOrd[ordinal]; dup {
		return dberrors.Corrupt("%s: owner %d has ordinal %d twice", o.table, owner, ordinal)
	}
	byOrd[ordinal] = v
	return nil
}

// take removes and returns the entries of owner ordered by ordinal. The ordinals must be
// 0..n-1.
func (o *ordinals[T]) take(owner types.StoredID) ([]T, error) {
	byOrd := o.m[owner]
	delete(o.m, owner)
	out := make([]T, len(byOrd))
	for i := range out {
		v, ok := byOrd[int32(i)]
		if !ok {
			return nil, dberrors.Corrupt("%s: owner %d misses ordinal %d", o.table, owner, i)
		}
		out[i] = v
	}
	return out, nil
}

// leftover fails if rows reference owners that were never materialized.
func (o *ordinals[T]) leftover() error {
	if len(o.m) == 0 {
		return nil
	}
	owners := make([]types.StoredID, 0, len(o.m))
	for owner := range o.m {
		owners = append(owners, owner)
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })
	return dberrors.Corrupt("%s references missing owner %d", o.table, owners[0])
}

func (s *Session) bind(ref types.Ref, id geo.NodeID) error {
	if ref.ID == 0 {
		return dberrors.Corrupt("%s row with id 0", ref.Kind.Table())
	}
	if _, dup := s.nodes[ref]; dup {
		return dberrors.Corrupt("%s holds id %d twice", ref.Kind.Table(), ref.ID)
	}
	if id == 0 {
		return dberrors.Corrupt("%s could not be rebuilt: %v", ref, s.graph.Err())
	}
	s.nodes[ref] = id
	s.refs[id] = ref
	return nil
}

func (s *Session) node(k types.Kind, id types.StoredID, what string) (geo.NodeID, error) {
	n, ok := s.nodes[types.Ref{Kind: k, ID: id}]
	if !ok {
		return 0, dberrors.Corrupt("%s references missing %s %d", what, k, id)
	}
	return n, nil
}

// materialize creates one node per stored row, in the order of types.AllKinds so that
// every reference points at a node that already exists.
func (s *Session) materialize(context.Context) error {
	s.graph = geo.New()

	components := newOrdinals[schema.ComponentRecord](schema.MaterialComponents)
	for _, row := range s.rows[schema.MaterialComponents] {
		c, err := schema.ParseComponent(row)
		if err != nil {
			return err
		}
		if err := components.add(c.Material, c.Ordinal, c); err != nil {
			return err
		}
	}
	operands := newOrdinals[types.StoredID](schema.ShapeOperands)
	for _, row := range s.rows[schema.ShapeOperands] {
		op, err := schema.ParseOperand(row)
		if err != nil {
			return err
		}
		if err := operands.add(op.Shape, op.Ordinal, op.Operand); err != nil {
			return err
		}
	}
	literals := newOrdinals[float64](schema.FunctionLiterals)
	for _, row := range s.rows[schema.FunctionLiterals] {
		l, err := schema.ParseLiteral(row)
		if err != nil {
			return err
		}
		if err := literals.add(l.Function, l.Ordinal, l.Value); err != nil {
			return err
		}
	}

	for _, k := range types.AllKinds {
		rows := s.rows[k.Table()]
		var err error
		switch k {
		case types.Element:
			err = s.elements(rows)
		case types.Material:
			err = s.materials(rows, components)
		case types.Shape:
			err = s.shapes(rows, operands)
		case types.LogVol:
			err = s.logVols(rows)
		case types.Transform, types.AlignableTransform:
			err = s.transforms(k, rows)
		case types.NameTag, types.IdentifierTag, types.SerialIdentifier, types.SerialDenominator:
			err = s.tags(k, rows)
		case types.Function:
			err = s.functions(rows, literals)
		case types.PhysVol, types.FullPhysVol:
			err = s.volumes(k, rows)
		case types.SerialTransformer:
			err = s.serialTransformers(rows)
		}
		if err != nil {
			return err
		}
	}

	for _, err := range []error{components.leftover(), operands.leftover(), literals.leftover()} {
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) elements(rows []types.Row) error {
	for _, row := range rows {
		e, err := schema.ParseElement(row)
		if err != nil {
			return err
		}
		ref := types.Ref{Kind: types.Element, ID: e.ID}
		if err := s.bind(ref, s.graph.NewElement(e.Name, e.Symbol, e.Z, e.A)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) materials(rows []types.Row, components *ordinals[schema.ComponentRecord]) error {
	for _, row := range rows {
		m, err := schema.ParseMaterial(row)
		if err != nil {
			return err
		}
		id := s.graph.NewMaterial(m.Name, m.Density)
		if err := s.bind(types.Ref{Kind: types.Material, ID: m.ID}, id); err != nil {
			return err
		}
		parts, err := components.take(m.ID)
		if err != nil {
			return err
		}
		for _, c := range parts {
			el, err := s.node(types.Element, c.Element, "material "+m.Name)
			if err != nil {
				return err
			}
			s.graph.AddComponent(id, el, c.Fraction)
		}
	}
	return nil
}

// shapes are created in ascending id order; an operand must have a smaller id than the
// shape using it.
func (s *Session) shapes(rows []types.Row, operands *ordinals[types.StoredID]) error {
	recs := make([]schema.ShapeRecord, len(rows))
	for i, row := range rows {
		var err error
		if recs[i], err = schema.ParseShape(row); err != nil {
			return err
		}
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })

	for _, sh := range recs {
		ops, err := operands.take(sh.ID)
		if err != nil {
			return err
		}
		nodes := make([]geo.NodeID, len(ops))
		for i, op := range ops {
			if op >= sh.ID {
				return dberrors.Corrupt("shape %d has operand %d, which is not older", sh.ID, op)
			}
			if nodes[i], err = s.node(types.Shape, op, "shape operand"); err != nil {
				return err
			}
		}
		if err := s.bind(types.Ref{Kind: types.Shape, ID: sh.ID}, s.graph.NewShape(sh.Type, sh.Params, nodes...)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) logVols(rows []types.Row) error {
	for _, row := range rows {
		lv, err := schema.ParseLogVol(row)
		if err != nil {
			return err
		}
		shape, err := s.node(types.Shape, lv.Shape, "logical volume "+lv.Name)
		if err != nil {
			return err
		}
		material, err := s.node(types.Material, lv.Material, "logical volume "+lv.Name)
		if err != nil {
			return err
		}
		if err := s.bind(types.Ref{Kind: types.LogVol, ID: lv.ID}, s.graph.NewLogVol(lv.Name, shape, material)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) transforms(k types.Kind, rows []types.Row) error {
	for _, row := range rows {
		t, err := schema.ParseTransform(k, row)
		if err != nil {
			return err
		}
		var id geo.NodeID
		if k == types.AlignableTransform {
			id = s.graph.NewAlignableTransform(t.Transform)
		} else {
			id = s.graph.NewTransform(t.Transform)
		}
		if err := s.bind(types.Ref{Kind: k, ID: t.ID}, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) tags(k types.Kind, rows []types.Row) error {
	for _, row := range rows {
		var (
			sid types.StoredID
			id  geo.NodeID
		)
		switch k {
		case types.NameTag:
			rec, err := schema.ParseNameTag(row)
			if err != nil {
				return err
			}
			sid, id = rec.ID, s.graph.NewNameTag(rec.Name)
		case types.IdentifierTag:
			rec, err := schema.ParseInt(k, row)
			if err != nil {
				return err
			}
			sid, id = rec.ID, s.graph.NewIdentifierTag(rec.Value)
		case types.SerialIdentifier:
			rec, err := schema.ParseInt(k, row)
			if err != nil {
				return err
			}
			sid, id = rec.ID, s.graph.NewSerialIdentifier(rec.Value)
		case types.SerialDenominator:
			rec, err := schema.ParseSerialDenominator(row)
			if err != nil {
				return err
			}
			sid, id = rec.ID, s.graph.NewSerialDenominator(rec.Base)
		}
		if err := s.bind(types.Ref{Kind: k, ID: sid}, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) functions(rows []types.Row, literals *ordinals[float64]) error {
	for _, row := range rows {
		fn, err := schema.ParseFunction(row)
		if err != nil {
			return err
		}
		lits, err := literals.take(fn.ID)
		if err != nil {
			return err
		}
		f, err := xf.Decode(fn.Tokens, lits)
		if err != nil {
			return dberrors.Corrupt("function %d: %s", fn.ID, err)
		}
		if err := s.bind(types.Ref{Kind: types.Function, ID: fn.ID}, s.graph.NewFunction(f)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) volumes(k types.Kind, rows []types.Row) error {
	for _, row := range rows {
		v, err := schema.ParseVolume(k, row)
		if err != nil {
			return err
		}
		lv, err := s.node(types.LogVol, v.LogVol, k.String())
		if err != nil {
			return err
		}
		var id geo.NodeID
		if k == types.FullPhysVol {
			id = s.graph.NewFullPhysVol(lv)
		} else {
			id = s.graph.NewPhysVol(lv)
		}
		if err := s.bind(types.Ref{Kind: k, ID: v.ID}, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) serialTransformers(rows []types.Row) error {
	for _, row := range rows {
		st, err := schema.ParseSerialTransformer(row)
		if err != nil {
			return err
		}
		fn, err := s.node(types.Function, st.Function, "serial transformer")
		if err != nil {
			return err
		}
		vol, err := s.node(st.Volume.Kind, st.Volume.ID, "serial transformer")
		if err != nil {
			return err
		}
		ref := types.Ref{Kind: types.SerialTransformer, ID: st.ID}
		if err := s.bind(ref, s.graph.NewSerialTransformer(fn, vol, st.Copies)); err != nil {
			return err
		}
		s.placed[ref] = st.Volume
	}
	return nil
}
