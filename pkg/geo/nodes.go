// Package geo is the in-memory detector geometry graph: an arena of nodes addressed by
// NodeID handles. Nodes are shared by handle, so the same shape, material, logical
// volume or physical volume can appear under any number of parents.
package geo

import (
	"github.com/i5heu/geomodel-db/pkg/trf"
	"github.com/i5heu/geomodel-db/pkg/types"
	"github.com/i5heu/geomodel-db/pkg/xf"
)

// NodeID is a handle into a Graph. The zero value addresses nothing.
type NodeID uint32

// Node is one arena slot. Data holds the kind-specific payload.
type Node struct {
	ID   NodeID
	Kind types.Kind
	Data NodeData
}

// NodeData is implemented by the payload types in this package only.
type NodeData interface {
	nodeData()
}

type Element struct {
	Name   string
	Symbol string
	Z      float64
	A      float64 // molar mass
}

type Component struct {
	Element  NodeID
	Fraction float64 // by mass
}

type Material struct {
	Name       string
	Density    float64
	Components []Component
}

// Shape carries its parameters without interpreting them. Boolean and shift shapes
// reference other shapes through Operands.
type Shape struct {
	Type     string
	Params   []float64
	Operands []NodeID
}

type LogVol struct {
	Name     string
	Shape    NodeID
	Material NodeID
}

// Volume is the payload of both PhysVol and FullPhysVol nodes.
type Volume struct {
	LogVol   NodeID
	Children []NodeID

	// Absolute placement, only maintained for FullPhysVol nodes.
	Absolute    trf.Transform3D
	HasAbsolute bool
}

// Placement is the payload of Transform and AlignableTransform nodes.
// Delta is the alignment correction of an alignable transform; it is never persisted.
type Placement struct {
	Transform trf.Transform3D
	Delta     *trf.Transform3D
}

// Effective returns the transform including the alignment correction, if any.
func (p *Placement) Effective() trf.Transform3D {
	if p.Delta == nil {
		return p.Transform
	}
	return p.Transform.Mul(*p.Delta)
}

type NameTag struct{ Name string }

type IdentifierTag struct{ Value int32 }

type SerialIdentifier struct{ Base int32 }

type SerialDenominator struct{ Base string }

type Function struct{ F xf.TransFunction }

// SerialTransformer places Copies copies of Volume, copy i at Function(i).
type SerialTransformer struct {
	Function NodeID
	Volume   NodeID
	Copies   uint32
}

func (*Element) nodeData() {}
func (*Material) nodeData() {}
func (*Shape) nodeData() {}
func (*LogVol) nodeData() {}
func (*Volume) nodeData() {}
func (*Placement) nodeData() {}
func (*NameTag) nodeData() {}
func (*IdentifierTag) nodeData() {}
func (*SerialIdentifier) nodeData() {}
func (*SerialDenominator) nodeData() {}
func (*Function) nodeData() {}
func (*SerialTransformer) nodeData() {}

// childKinds are the kinds a volume may hold in its child list.
var childKinds = map[types.Kind]bool{
	types.PhysVol:            true,
	types.FullPhysVol:        true,
	types.Transform:          true,
	types.AlignableTransform: true,
	types.NameTag:            true,
	types.IdentifierTag:      true,
	types.SerialIdentifier:   true,
	types.SerialDenominator:  true,
	types.SerialTransformer:  true,
}

// CanBeChild reports whether nodes of kind k may appear in a volume's child list.
func CanBeChild(k types.Kind) bool {
	return childKinds[k]
}
