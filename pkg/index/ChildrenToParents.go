package index

import "github.com/i5heu/geomodel-db/pkg/types"

// ParentsOf returns the distinct parents of child in the order the edges were appended.
func (c *ChildPositions) ParentsOf(child types.Ref) []types.Ref {
	c.lock.RLock()
	defer c.lock.RUnlock()

	seen := make(map[types.Ref]struct{})
	parents := make([]types.Ref, 0)
	for _, r := range c.rows {
		if r.Child != child {
			continue
		}
		if _, ok := seen[r.Parent]; ok {
			continue
		}
		seen[r.Parent] = struct{}{}
		parents = append(parents, r.Parent)
	}
	return parents
}

// Children returns the distinct child refs of every parent, used by readers to check that
// each referenced node exists.
func (c *ChildPositions) Children() []types.Ref {
	c.lock.RLock()
	defer c.lock.RUnlock()

	seen := make(map[types.Ref]struct{})
	children := make([]types.Ref, 0)
	for _, r := range c.rows {
		if _, ok := seen[r.Child]; ok {
			continue
		}
		seen[r.Child] = struct{}{}
		children = append(children, r.Child)
	}
	return children
}
