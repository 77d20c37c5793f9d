package geo

import (
	"github.com/i5heu/geomodel-db/pkg/trf"
	"github.com/i5heu/geomodel-db/pkg/types"
)

// ComputeAbsolutePlacements walks the tree below the root and caches, on every
// FullPhysVol, the product of the transforms on its path. A transform child applies to
// the next volume child of the same parent. A FullPhysVol reached along several paths
// keeps the placement of the first one in depth-first order. Volumes placed only by a
// serial transformer get no absolute placement. It returns the number of volumes updated.
func (g *Graph) ComputeAbsolutePlacements() int {
	root := g.Root()
	if root == 0 {
		return 0
	}
	for _, id := range g.Nodes() {
		if g.Kind(id) == types.FullPhysVol {
			v := g.Volume(id)
			v.HasAbsolute = false
			v.Absolute = trf.Transform3D{}
		}
	}

	updated := 0
	onPath := map[NodeID]bool{}
	var walk func(id NodeID, abs trf.Transform3D)
	walk = func(id NodeID, abs trf.Transform3D) {
		if onPath[id] {
			return
		}
		v := g.Volume(id)
		if g.Kind(id) == types.FullPhysVol {
			if v.HasAbsolute {
				return
			}
			v.Absolute = abs
			v.HasAbsolute = true
			updated++
		}
		onPath[id] = true
		defer delete(onPath, id)

		pending := trf.Identity()
		for _, c := range v.Children {
			switch g.Kind(c) {
			case types.Transform, types.AlignableTransform:
				pending = pending.Mul(g.Placement(c).Effective())
			case types.PhysVol, types.FullPhysVol:
				walk(c, abs.Mul(pending))
				pending = trf.Identity()
			case types.SerialTransformer:
				pending = trf.Identity()
			}
		}
	}
	walk(root, trf.Identity())
	return updated
}
