package index

import (
	"sync"

	"github.com/i5heu/geomodel-db/pkg/dberrors"
	"github.com/i5heu/geomodel-db/pkg/types"
)

// ChildEntry is one persisted parent/child edge.
type ChildEntry struct {
	Parent     types.Ref
	Position   uint32
	Child      types.Ref
	CopyNumber uint32
}

type copyKey struct {
	parent types.Ref
	child  types.Ref
}

// ChildPositions is the append-only child-position index. Positions are dense from 0 per
// parent. The copy number of an edge counts the earlier edges from the same parent to the
// same child.
type ChildPositions struct {
	lock     sync.RWMutex
	rows     []ChildEntry
	byParent map[types.Ref][]int
	copies   map[copyKey]uint32
	parents  []types.Ref
}

func NewChildPositions() *ChildPositions {
	return &ChildPositions{
		byParent: make(map[types.Ref][]int),
		copies:   make(map[copyKey]uint32),
	}
}

// Append records child as the next child of parent and returns its copy number.
func (c *ChildPositions) Append(parent, child types.Ref) uint32 {
	c.lock.Lock()
	defer c.lock.Unlock()

	idx, seen := c.byParent[parent]
	if !seen {
		c.parents = append(c.parents, parent)
	}
	key := copyKey{parent: parent, child: child}
	copyNumber := c.copies[key]
	c.copies[key] = copyNumber + 1

	c.rows = append(c.rows, ChildEntry{
		Parent:     parent,
		Position:   uint32(len(idx)),
		Child:      child,
		CopyNumber: copyNumber,
	})
	c.byParent[parent] = append(idx, len(c.rows)-1)
	return copyNumber
}

// ChildrenOf returns the children of parent ordered by position.
func (c *ChildPositions) ChildrenOf(parent types.Ref) []ChildEntry {
	c.lock.RLock()
	defer c.lock.RUnlock()
	idx := c.byParent[parent]
	out := make([]ChildEntry, len(idx))
	for i, r := range idx {
		out[i] = c.rows[r]
	}
	return out
}

// Rows returns every edge in global insertion order.
func (c *ChildPositions) Rows() []ChildEntry {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return append([]ChildEntry(nil), c.rows...)
}

// Parents returns every parent in the order it received its first child.
func (c *ChildPositions) Parents() []types.Ref {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return append([]types.Ref(nil), c.parents...)
}

func (c *ChildPositions) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.rows)
}

// Load rebuilds the index from persisted edges in any order. Each parent's positions
// must form the sequence 0..n-1 without gaps or duplicates.
func (c *ChildPositions) Load(entries []ChildEntry) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	clear(c.byParent)
	clear(c.copies)
	c.rows = c.rows[:0]
	c.parents = c.parents[:0]

	slots := make(map[types.Ref][]int)
	for _, e := range entries {
		if !e.Parent.Kind.IsContainer() {
			return dberrors.Corrupt("child position with parent %s, which is not a volume", e.Parent)
		}
		if int(e.Position) >= len(entries) {
			return dberrors.Corrupt("position %d under %s exceeds the %d stored edges", e.Position, e.Parent, len(entries))
		}
		s, seen := slots[e.Parent]
		if !seen {
			c.parents = append(c.parents, e.Parent)
		}
		for int(e.Position) >= len(s) {
			s = append(s, -1)
		}
		if s[e.Position] != -1 {
			return dberrors.Corrupt("duplicate position %d under %s", e.Position, e.Parent)
		}
		c.rows = append(c.rows, e)
		s[e.Position] = len(c.rows) - 1
		slots[e.Parent] = s
	}
	for _, p := range c.parents {
		for pos, r := range slots[p] {
			if r == -1 {
				return dberrors.Corrupt("missing position %d under %s", pos, p)
			}
		}
		c.byParent[p] = slots[p]
		for _, r := range slots[p] {
			c.copies[copyKey{parent: p, child: c.rows[r].Child}]++
		}
	}
	return nil
}
