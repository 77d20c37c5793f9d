package writer

import (
	"github.com/i5heu/geomodel-db/pkg/dberrors"
	"github.com/i5heu/geomodel-db/pkg/geo"
	"github.com/i5heu/geomodel-db/pkg/index"
	"github.com/i5heu/geomodel-db/pkg/schema"
	"github.com/i5heu/geomodel-db/pkg/types"
	"github.com/i5heu/geomodel-db/pkg/xf"
)

// session is one depth-first pass over a graph. It only buffers rows; nothing touches
// the store until the pass has finished without error.
type session struct {
	g        *geo.Graph
	registry *index.AddressRegistry[geo.NodeID]
	children *index.ChildPositions
	refs     map[geo.NodeID]types.Ref
	rows     map[string][]types.Row

	ancestors []geo.NodeID
	onStack   map[geo.NodeID]bool
}

func newSession(g *geo.Graph) *session {
	return &session{
		g:        g,
		registry: index.NewAddressRegistry[geo.NodeID](),
		children: index.NewChildPositions(),
		refs:     make(map[geo.NodeID]types.Ref),
		rows:     make(map[string][]types.Row),
		onStack:  make(map[geo.NodeID]bool),
	}
}

func (s *session) emit(table string, row types.Row) {
	s.rows[table] = append(s.rows[table], row)
}

func (s *session) resolve(id geo.NodeID) (types.Ref, bool) {
	k := s.g.Kind(id)
	sid, ok := s.registry.Resolve(k, id)
	return types.Ref{Kind: k, ID: sid}, ok
}

func (s *session) assign(id geo.NodeID) types.Ref {
	k := s.g.Kind(id)
	ref := types.Ref{Kind: k, ID: s.registry.Next(k)}
	s.registry.Register(k, id, ref.ID)
	s.refs[id] = ref
	return ref
}

// ref returns the stored reference of a node that was written by this session.
func (s *session) ref(id geo.NodeID) (types.Ref, bool) {
	r, ok := s.refs[id]
	return r, ok
}

func (s *session) depth() int {
	return len(s.ancestors)
}

func (s *session) push(id geo.NodeID) {
	s.ancestors = append(s.ancestors, id)
	s.onStack[id] = true
}

func (s *session) pop() {
	id := s.ancestors[len(s.ancestors)-1]
	s.ancestors = s.ancestors[:len(s.ancestors)-1]
	delete(s.onStack, id)
}

func (s *session) expect(id geo.NodeID, what string, kinds ...types.Kind) error {
	k := s.g.Kind(id)
	for _, want := range kinds {
		if k == want {
			return nil
		}
	}
	return dberrors.Corrupt("%s references handle %d of kind %s", what, id, k)
}

// run stores the root and everything below it.
func (s *session) run(root geo.NodeID) (types.Ref, error) {
	ref, _, err := s.storeVolume(root)
	if err != nil {
		return ref, err
	}
	return ref, s.descend(root, ref)
}

// storeVolume emits the row of a volume the first time it is met. It does not visit the
// children; fresh reports whether the caller has to.
func (s *session) storeVolume(id geo.NodeID) (ref types.Ref, fresh bool, err error) {
	if err := s.expect(id, "volume", types.PhysVol, types.FullPhysVol); err != nil {
		return ref, false, err
	}
	if s.onStack[id] {
		return ref, false, dberrors.Corrupt("volume %d contains itself at depth %d", id, s.depth())
	}
	if ref, ok := s.resolve(id); ok {
		return ref, false, nil
	}
	v := s.g.Volume(id)
	logVol, err := s.logVol(v.LogVol)
	if err != nil {
		return ref, false, err
	}
	ref = s.assign(id)
	s.emit(ref.Kind.Table(), schema.VolumeRecord{ID: ref.ID, LogVol: logVol}.Row())
	return ref, true, nil
}

func (s *session) descend(id geo.NodeID, ref types.Ref) error {
	s.push(id)
	defer s.pop()
	for _, c := range s.g.Children(id) {
		if err := s.child(ref, c); err != nil {
			return err
		}
	}
	return nil
}

// child stores one entry of a volume's child list and records its position.
func (s *session) child(parent types.Ref, id geo.NodeID) error {
	switch k := s.g.Kind(id); k {
	case types.PhysVol, types.FullPhysVol:
		ref, fresh, err := s.storeVolume(id)
		if err != nil {
			return err
		}
		s.children.Append(parent, ref)
		if fresh {
			return s.descend(id, ref)
		}
		return nil
	case types.SerialTransformer:
		ref, seen := s.resolve(id)
		if !seen {
			ref = s.assign(id)
		}
		s.children.Append(parent, ref)
		if seen {
			return nil
		}
		return s.serialTransformer(id, ref)
	case types.Transform, types.AlignableTransform, types.NameTag, types.IdentifierTag,
		types.SerialIdentifier, types.SerialDenominator:
		s.children.Append(parent, s.leaf(id))
		return nil
	default:
		return dberrors.Corrupt("%s handle %d cannot be the child of %s", k, id, parent)
	}
}

func (s *session) leaf(id geo.NodeID) types.Ref {
	if ref, ok := s.resolve(id); ok {
		return ref
	}
	ref := s.assign(id)
	switch d := s.g.Node(id).Data.(type) {
	case *geo.Placement:
		s.emit(ref.Kind.Table(), schema.TransformRecord{ID: ref.ID, Transform: d.Transform}.Row())
	case *geo.NameTag:
		s.emit(ref.Kind.Table(), schema.NameTagRecord{ID: ref.ID, Name: d.Name}.Row())
	case *geo.IdentifierTag:
		s.emit(ref.Kind.Table(), schema.IntRecord{ID: ref.ID, Value: d.Value}.Row())
	case *geo.SerialIdentifier:
		s.emit(ref.Kind.Table(), schema.IntRecord{ID: ref.ID, Value: d.Base}.Row())
	case *geo.SerialDenominator:
		s.emit(ref.Kind.Table(), schema.SerialDenominatorRecord{ID: ref.ID, Base: d.Base}.Row())
	}
	return ref
}

// serialTransformer stores the function and the placed volume, then the record that
// ties them together. The placed volume is traversed with itself as parent.
func (s *session) serialTransformer(id geo.NodeID, ref types.Ref) error {
	st := s.g.SerialTransformer(id)
	fn, err := s.function(st.Function)
	if err != nil {
		return err
	}
	vol, fresh, err := s.storeVolume(st.Volume)
	if err != nil {
		return err
	}
	if fresh {
		if err := s.descend(st.Volume, vol); err != nil {
			return err
		}
	}
	s.emit(types.SerialTransformer.Table(), schema.SerialTransformerRecord{
		ID:       ref.ID,
		Function: fn,
		Volume:   vol,
		Copies:   st.Copies,
	}.Row())
	return nil
}

func (s *session) function(id geo.NodeID) (types.StoredID, error) {
	if err := s.expect(id, "serial transformer", types.Function); err != nil {
		return 0, err
	}
	if ref, ok := s.resolve(id); ok {
		return ref.ID, nil
	}
	tokens, literals := xf.Encode(s.g.Function(id).F)
	ref := s.assign(id)
	s.emit(types.Function.Table(), schema.FunctionRecord{ID: ref.ID, Tokens: tokens}.Row())
	for i, v := range literals {
		s.emit(schema.FunctionLiterals, schema.LiteralRecord{Function: ref.ID, Ordinal: int32(i), Value: v}.Row())
	}
	return ref.ID, nil
}

// Attribute nodes resolve what they reference before taking their own id, so a shape
// always has a larger id than its operands.

func (s *session) logVol(id geo.NodeID) (types.StoredID, error) {
	if err := s.expect(id, "physical volume", types.LogVol); err != nil {
		return 0, err
	}
	if ref, ok := s.resolve(id); ok {
		return ref.ID, nil
	}
	lv := s.g.LogVol(id)
	shape, err := s.shape(lv.Shape)
	if err != nil {
		return 0, err
	}
	material, err := s.material(lv.Material)
	if err != nil {
		return 0, err
	}
	ref := s.assign(id)
	s.emit(types.LogVol.Table(), schema.LogVolRecord{ID: ref.ID, Name: lv.Name, Shape: shape, Material: material}.Row())
	return ref.ID, nil
}

func (s *session) shape(id geo.NodeID) (types.StoredID, error) {
	if err := s.expect(id, "logical volume", types.Shape); err != nil {
		return 0, err
	}
	if ref, ok := s.resolve(id); ok {
		return ref.ID, nil
	}
	sh := s.g.Shape(id)
	operands := make([]types.StoredID, len(sh.Operands))
	for i, op := range sh.Operands {
		if op == id {
			return 0, dberrors.Corrupt("shape %d is its own operand", id)
		}
		var err error
		if operands[i], err = s.shape(op); err != nil {
			return 0, err
		}
	}
	ref := s.assign(id)
	s.emit(types.Shape.Table(), schema.ShapeRecord{ID: ref.ID, Type: sh.Type, Params: sh.Params}.Row())
	for i, op := range operands {
		s.emit(schema.ShapeOperands, schema.OperandRecord{Shape: ref.ID, Ordinal: int32(i), Operand: op}.Row())
	}
	return ref.ID, nil
}

func (s *session) material(id geo.NodeID) (types.StoredID, error) {
	if err := s.expect(id, "logical volume", types.Material); err != nil {
		return 0, err
	}
	if ref, ok := s.resolve(id); ok {
		return ref.ID, nil
	}
	m := s.g.Material(id)
	elements := make([]types.StoredID, len(m.Components))
	for i, c := range m.Components {
		var err error
		if elements[i], err = s.element(c.Element); err != nil {
			return 0, err
		}
	}
	ref := s.assign(id)
	s.emit(types.Material.Table(), schema.MaterialRecord{ID: ref.ID, Name: m.Name, Density: m.Density}.Row())
	for i, c := range m.Components {
		s.emit(schema.MaterialComponents, schema.ComponentRecord{
			Material: ref.ID, Ordinal: int32(i), Element: elements[i], Fraction: c.Fraction,
		}.Row())
	}
	return ref.ID, nil
}

func (s *session) element(id geo.NodeID) (types.StoredID, error) {
	if err := s.expect(id, "material", types.Element); err != nil {
		return 0, err
	}
	if ref, ok := s.resolve(id); ok {
		return ref.ID, nil
	}
	e := s.g.Element(id)
	ref := s.assign(id)
	s.emit(types.Element.Table(), schema.ElementRecord{ID: ref.ID, Name: e.Name, Symbol: e.Symbol, Z: e.Z, A: e.A}.Row())
	return ref.ID, nil
}
