package reader

import (
	"context"

	"github.com/i5heu/geomodel-db/pkg/dberrors"
	"github.com/i5heu/geomodel-db/pkg/geo"
	"github.com/i5heu/geomodel-db/pkg/index"
	"github.com/i5heu/geomodel-db/pkg/schema"
	"github.com/i5heu/geomodel-db/pkg/types"
)

// link rebuilds the child lists. Each container is expanded once, starting at the root
// and following volume children and the volumes placed by serial transformers.
func (s *Session) link(context.Context) error {
	rows := s.rows[schema.ChildPositions]
	entries := make([]index.ChildEntry, len(rows))
	for i, row := range rows {
		var err error
		if entries[i], err = schema.ParseChildPosition(row); err != nil {
			return err
		}
	}
	if err := s.children.Load(entries); err != nil {
		return err
	}
	for _, p := range s.children.Parents() {
		if _, ok := s.nodes[p]; !ok {
			return dberrors.Corrupt("child positions recorded for missing %s", p)
		}
	}
	// covers parents the walk from the root never reaches
	for _, c := range s.children.Children() {
		if _, ok := s.nodes[c]; !ok {
			return dberrors.Corrupt("child positions reference missing %s", c)
		}
	}

	rootNode, ok := s.nodes[s.root]
	if !ok {
		return dberrors.Corrupt("root %s was not stored", s.root)
	}

	l := &linker{s: s, expanded: make(map[types.Ref]bool), onStack: make(map[types.Ref]bool)}
	if err := l.expand(s.root); err != nil {
		return err
	}
	s.graph.MarkRoot(rootNode)
	if err := s.graph.Err(); err != nil {
		return dberrors.Corrupt("rebuilt graph is inconsistent: %s", err)
	}
	return nil
}

type linker struct {
	s        *Session
	expanded map[types.Ref]bool
	onStack  map[types.Ref]bool
}

func (l *linker) expand(parent types.Ref) error {
	if l.onStack[parent] {
		return dberrors.Corrupt("%s contains itself", parent)
	}
	if l.expanded[parent] {
		return nil
	}
	l.expanded[parent] = true
	l.onStack[parent] = true
	defer delete(l.onStack, parent)

	parentNode := l.s.nodes[parent]
	copies := make(map[types.Ref]uint32)
	for _, e := range l.s.children.ChildrenOf(parent) {
		if !geo.CanBeChild(e.Child.Kind) {
			return dberrors.Corrupt("%s at position %d under %s cannot be a child", e.Child, e.Position, parent)
		}
		if e.CopyNumber != copies[e.Child] {
			return dberrors.Corrupt("%s at position %d under %s has copy number %d, want %d",
				e.Child, e.Position, parent, e.CopyNumber, copies[e.Child])
		}
		copies[e.Child]++

		child, ok := l.s.nodes[e.Child]
		if !ok {
			return dberrors.Corrupt("%s at position %d under %s was not stored", e.Child, e.Position, parent)
		}
		l.s.graph.AddChild(parentNode, child)

		switch {
		case e.Child.Kind.IsVolume():
			if err := l.expand(e.Child); err != nil {
				return err
			}
		case e.Child.Kind == types.SerialTransformer:
			if err := l.expand(l.s.placed[e.Child]); err != nil {
				return err
			}
		}
	}
	return nil
}
