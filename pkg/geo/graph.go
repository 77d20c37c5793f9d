package geo

import (
	"fmt"

	"github.com/i5heu/geomodel-db/pkg/trf"
	"github.com/i5heu/geomodel-db/pkg/types"
	"github.com/i5heu/geomodel-db/pkg/xf"
	"gopkg.in/src-d/go-errors.v1"
)

// ErrInvalidReference is recorded when a producer call references a handle of the wrong kind.
var ErrInvalidReference = errors.NewKind("invalid reference: %s")

// Graph is the arena. It is not safe for concurrent mutation.
//
// Producer calls never fail individually: a call with a bad handle records the first
// error (see Err) and returns the zero NodeID, so a detector description can be
// built without checking every call.
type Graph struct {
	nodes []Node
	roots []NodeID
	err   error
}

func New() *Graph {
	return &Graph{}
}

// Err returns the first producer error, if any.
func (g *Graph) Err() error {
	return g.err
}

func (g *Graph) fail(format string, args ...interface{}) NodeID {
	if g.err == nil {
		g.err = ErrInvalidReference.New(fmt.Sprintf(format, args...))
	}
	return 0
}

func (g *Graph) add(k types.Kind, d NodeData) NodeID {
	id := NodeID(len(g.nodes) + 1)
	g.nodes = append(g.nodes, Node{ID: id, Kind: k, Data: d})
	return id
}

// Node returns the arena slot for id, or nil for an unknown handle.
func (g *Graph) Node(id NodeID) *Node {
	if id == 0 || int(id) > len(g.nodes) {
		return nil
	}
	return &g.nodes[id-1]
}

func (g *Graph) Kind(id NodeID) types.Kind {
	if n := g.Node(id); n != nil {
		return n.Kind
	}
	return types.KindUnknown
}

// Len is the number of nodes in the arena, including unreachable ones.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Nodes returns all handles in creation order.
func (g *Graph) Nodes() []NodeID {
	ids := make([]NodeID, len(g.nodes))
	for i := range g.nodes {
		ids[i] = g.nodes[i].ID
	}
	return ids
}

func (g *Graph) expect(id NodeID, what string, kinds ...types.Kind) bool {
	k := g.Kind(id)
	for _, want := range kinds {
		if k == want {
			return true
		}
	}
	g.fail("%s: handle %d is %s, want %v", what, id, k, kinds)
	return false
}

func (g *Graph) NewElement(name, symbol string, z, a float64) NodeID {
	return g.add(types.Element, &Element{Name: name, Symbol: symbol, Z: z, A: a})
}

func (g *Graph) NewMaterial(name string, density float64) NodeID {
	return g.add(types.Material, &Material{Name: name, Density: density})
}

// AddComponent appends an element to a material's ordered composition.
func (g *Graph) AddComponent(material, element NodeID, fraction float64) {
	if !g.expect(material, "AddComponent", types.Material) || !g.expect(element, "AddComponent", types.Element) {
		return
	}
	m := g.Material(material)
	m.Components = append(m.Components, Component{Element: element, Fraction: fraction})
}

func (g *Graph) NewShape(shapeType string, params []float64, operands ...NodeID) NodeID {
	for _, op := range operands {
		if !g.expect(op, "NewShape operand", types.Shape) {
			return 0
		}
	}
	return g.add(types.Shape, &Shape{
		Type:     shapeType,
		Params:   append([]float64(nil), params...),
		Operands: append([]NodeID(nil), operands...),
	})
}

func (g *Graph) NewLogVol(name string, shape, material NodeID) NodeID {
	if !g.expect(shape, "NewLogVol shape", types.Shape) || !g.expect(material, "NewLogVol material", types.Material) {
		return 0
	}
	return g.add(types.LogVol, &LogVol{Name: name, Shape: shape, Material: material})
}

func (g *Graph) NewPhysVol(logVol NodeID) NodeID {
	if !g.expect(logVol, "NewPhysVol", types.LogVol) {
		return 0
	}
	return g.add(types.PhysVol, &Volume{LogVol: logVol})
}

func (g *Graph) NewFullPhysVol(logVol NodeID) NodeID {
	if !g.expect(logVol, "NewFullPhysVol", types.LogVol) {
		return 0
	}
	return g.add(types.FullPhysVol, &Volume{LogVol: logVol})
}

// NewRootVolume creates a PhysVol and marks it as the root.
func (g *Graph) NewRootVolume(logVol NodeID) NodeID {
	id := g.NewPhysVol(logVol)
	if id != 0 {
		g.MarkRoot(id)
	}
	return id
}

// MarkRoot marks a volume as a root. Writing requires exactly one root.
func (g *Graph) MarkRoot(id NodeID) {
	if !g.expect(id, "MarkRoot", types.PhysVol, types.FullPhysVol) {
		return
	}
	g.roots = append(g.roots, id)
}

func (g *Graph) Roots() []NodeID {
	return append([]NodeID(nil), g.roots...)
}

// Root returns the single root, or 0 when there is not exactly one.
func (g *Graph) Root() NodeID {
	if len(g.roots) != 1 {
		return 0
	}
	return g.roots[0]
}

func (g *Graph) NewTransform(t trf.Transform3D) NodeID {
	return g.add(types.Transform, &Placement{Transform: t})
}

func (g *Graph) NewAlignableTransform(t trf.Transform3D) NodeID {
	return g.add(types.AlignableTransform, &Placement{Transform: t})
}

// SetAlignmentDelta sets or clears the correction of an alignable transform.
func (g *Graph) SetAlignmentDelta(id NodeID, delta *trf.Transform3D) {
	if !g.expect(id, "SetAlignmentDelta", types.AlignableTransform) {
		return
	}
	g.Placement(id).Delta = delta
}

func (g *Graph) NewNameTag(name string) NodeID {
	return g.add(types.NameTag, &NameTag{Name: name})
}

func (g *Graph) NewIdentifierTag(value int32) NodeID {
	return g.add(types.IdentifierTag, &IdentifierTag{Value: value})
}

func (g *Graph) NewSerialIdentifier(base int32) NodeID {
	return g.add(types.SerialIdentifier, &SerialIdentifier{Base: base})
}

func (g *Graph) NewSerialDenominator(base string) NodeID {
	return g.add(types.SerialDenominator, &SerialDenominator{Base: base})
}

func (g *Graph) NewFunction(f xf.TransFunction) NodeID {
	if f == nil {
		return g.fail("NewFunction: nil function")
	}
	return g.add(types.Function, &Function{F: f})
}

func (g *Graph) NewSerialTransformer(function, volume NodeID, copies uint32) NodeID {
	if !g.expect(function, "NewSerialTransformer function", types.Function) ||
		!g.expect(volume, "NewSerialTransformer volume", types.PhysVol, types.FullPhysVol) {
		return 0
	}
	return g.add(types.SerialTransformer, &SerialTransformer{Function: function, Volume: volume, Copies: copies})
}

// AddChild appends child to the ordered child list of parent. The same child may be
// appended any number of times.
func (g *Graph) AddChild(parent, child NodeID) {
	if !g.expect(parent, "AddChild parent", types.PhysVol, types.FullPhysVol) {
		return
	}
	if !CanBeChild(g.Kind(child)) {
		g.fail("AddChild: %s cannot be a child", g.Kind(child))
		return
	}
	v := g.Volume(parent)
	v.Children = append(v.Children, child)
}

// Children returns the ordered child list of a volume, nil for any other node.
func (g *Graph) Children(id NodeID) []NodeID {
	if v := g.Volume(id); v != nil {
		return v.Children
	}
	return nil
}

func (g *Graph) Element(id NodeID) *Element {
	if n := g.Node(id); n != nil {
		e, _ := n.Data.(*Element)
		return e
	}
	return nil
}

func (g *Graph) Material(id NodeID) *Material {
	if n := g.Node(id); n != nil {
		m, _ := n.Data.(*Material)
		return m
	}
	return nil
}

func (g *Graph) Shape(id NodeID) *Shape {
	if n := g.Node(id); n != nil {
		s, _ := n.Data.(*Shape)
		return s
	}
	return nil
}

func (g *Graph) LogVol(id NodeID) *LogVol {
	if n := g.Node(id); n != nil {
		l, _ := n.Data.(*LogVol)
		return l
	}
	return nil
}

func (g *Graph) Volume(id NodeID) *Volume {
	if n := g.Node(id); n != nil {
		v, _ := n.Data.(*Volume)
		return v
	}
	return nil
}

func (g *Graph) Placement(id NodeID) *Placement {
	if n := g.Node(id); n != nil {
		p, _ := n.Data.(*Placement)
		return p
	}
	return nil
}

func (g *Graph) Function(id NodeID) *Function {
	if n := g.Node(id); n != nil {
		f, _ := n.Data.(*Function)
		return f
	}
	return nil
}

func (g *Graph) SerialTransformer(id NodeID) *SerialTransformer {
	if n := g.Node(id); n != nil {
		s, _ := n.Data.(*SerialTransformer)
		return s
	}
	return nil
}

// Reachable returns every node reachable from the root in depth-first pre-order,
// each node once. Attribute nodes follow the node that references them.
func (g *Graph) Reachable(root NodeID) []NodeID {
	seen := map[NodeID]bool{}
	var out []NodeID
	var visit func(NodeID)
	visit = func(id NodeID) {
		if id == 0 || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
		switch d := g.Node(id).Data.(type) {
		case *Material:
			for _, c := range d.Components {
				visit(c.Element)
			}
		case *Shape:
			for _, op := range d.Operands {
				visit(op)
			}
		case *LogVol:
			visit(d.Shape)
			visit(d.Material)
		case *Volume:
			visit(d.LogVol)
			for _, c := range d.Children {
				visit(c)
			}
		case *SerialTransformer:
			visit(d.Function)
			visit(d.Volume)
		}
	}
	visit(root)
	return out
}
