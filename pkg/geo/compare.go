package geo

import (
	"fmt"
	"reflect"
)

// Compare checks that the graphs reachable from the roots of a and b are isomorphic:
// same kinds, same attributes, same child order, and the same sharing. Two handles
// shared in a must map to one shared handle in b and vice versa. Alignment deltas
// and cached absolute placements are ignored.
func Compare(a, b *Graph) error {
	ra, rb := a.Root(), b.Root()
	if ra == 0 || rb == 0 {
		return fmt.Errorf("compare: graphs need exactly one root (have %d and %d)", len(a.roots), len(b.roots))
	}
	c := &comparer{a: a, b: b, ab: map[NodeID]NodeID{}, ba: map[NodeID]NodeID{}}
	return c.node(ra, rb, "root")
}

type comparer struct {
	a, b   *Graph
	ab, ba map[NodeID]NodeID
}

func (c *comparer) node(x, y NodeID, path string) error {
	if mx, ok := c.ab[x]; ok {
		if mx != y {
			return fmt.Errorf("%s: sharing differs (a:%d already matched b:%d, now b:%d)", path, x, mx, y)
		}
		return nil
	}
	if my, ok := c.ba[y]; ok && my != x {
		return fmt.Errorf("%s: sharing differs (b:%d already matched a:%d, now a:%d)", path, y, my, x)
	}
	nx, ny := c.a.Node(x), c.b.Node(y)
	if nx == nil || ny == nil {
		return fmt.Errorf("%s: dangling handle", path)
	}
	if nx.Kind != ny.Kind {
		return fmt.Errorf("%s: kind %s != %s", path, nx.Kind, ny.Kind)
	}
	c.ab[x], c.ba[y] = y, x
	path = path + "/" + nx.Kind.String()

	switch dx := nx.Data.(type) {
	case *Element:
		if *dx != *ny.Data.(*Element) {
			return fmt.Errorf("%s: %+v != %+v", path, *dx, *ny.Data.(*Element))
		}
	case *Material:
		dy := ny.Data.(*Material)
		if dx.Name != dy.Name || dx.Density != dy.Density || len(dx.Components) != len(dy.Components) {
			return fmt.Errorf("%s: material %q differs", path, dx.Name)
		}
		for i := range dx.Components {
			if dx.Components[i].Fraction != dy.Components[i].Fraction {
				return fmt.Errorf("%s: component %d fraction differs", path, i)
			}
			if err := c.node(dx.Components[i].Element, dy.Components[i].Element, path); err != nil {
				return err
			}
		}
	case *Shape:
		dy := ny.Data.(*Shape)
		if dx.Type != dy.Type || !floatsEqual(dx.Params, dy.Params) || len(dx.Operands) != len(dy.Operands) {
			return fmt.Errorf("%s: shape %s differs", path, dx.Type)
		}
		for i := range dx.Operands {
			if err := c.node(dx.Operands[i], dy.Operands[i], path); err != nil {
				return err
			}
		}
	case *LogVol:
		dy := ny.Data.(*LogVol)
		if dx.Name != dy.Name {
			return fmt.Errorf("%s: name %q != %q", path, dx.Name, dy.Name)
		}
		if err := c.node(dx.Shape, dy.Shape, path); err != nil {
			return err
		}
		return c.node(dx.Material, dy.Material, path)
	case *Volume:
		dy := ny.Data.(*Volume)
		if err := c.node(dx.LogVol, dy.LogVol, path); err != nil {
			return err
		}
		if len(dx.Children) != len(dy.Children) {
			return fmt.Errorf("%s: %d children != %d", path, len(dx.Children), len(dy.Children))
		}
		for i := range dx.Children {
			if err := c.node(dx.Children[i], dy.Children[i], fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	case *Placement:
		if dx.Transform != ny.Data.(*Placement).Transform {
			return fmt.Errorf("%s: transform %s != %s", path, dx.Transform, ny.Data.(*Placement).Transform)
		}
	case *NameTag:
		if *dx != *ny.Data.(*NameTag) {
			return fmt.Errorf("%s: %q != %q", path, dx.Name, ny.Data.(*NameTag).Name)
		}
	case *IdentifierTag:
		if *dx != *ny.Data.(*IdentifierTag) {
			return fmt.Errorf("%s: identifier differs", path)
		}
	case *SerialIdentifier:
		if *dx != *ny.Data.(*SerialIdentifier) {
			return fmt.Errorf("%s: serial identifier differs", path)
		}
	case *SerialDenominator:
		if *dx != *ny.Data.(*SerialDenominator) {
			return fmt.Errorf("%s: serial denominator differs", path)
		}
	case *Function:
		if !reflect.DeepEqual(dx.F, ny.Data.(*Function).F) {
			return fmt.Errorf("%s: function differs", path)
		}
	case *SerialTransformer:
		dy := ny.Data.(*SerialTransformer)
		if dx.Copies != dy.Copies {
			return fmt.Errorf("%s: copies %d != %d", path, dx.Copies, dy.Copies)
		}
		if err := c.node(dx.Function, dy.Function, path); err != nil {
			return err
		}
		return c.node(dx.Volume, dy.Volume, path)
	}
	return nil
}

func floatsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
