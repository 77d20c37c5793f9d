// Package index keeps the in-memory lookup structures of a write or read session:
// the address registry mapping node identities to stored ids, and the child-position
// index holding every parent/child edge in insertion order.
package index

import (
	"fmt"
	"sync"

	"github.com/i5heu/geomodel-db/pkg/types"
)

// AddressRegistry maps (kind, identity) to the StoredID a node received when it was
// first written. A miss means the node has not been stored yet.
type AddressRegistry[I comparable] struct {
	lock sync.RWMutex
	ids  map[types.Kind]map[I]types.StoredID
	next map[types.Kind]types.StoredID
	hits map[types.Kind]uint64
}

func NewAddressRegistry[I comparable]() *AddressRegistry[I] {
	return &AddressRegistry[I]{
		ids:  make(map[types.Kind]map[I]types.StoredID),
		next: make(map[types.Kind]types.StoredID),
		hits: make(map[types.Kind]uint64),
	}
}

// Resolve returns the stored id of identity under kind. Hits are counted per kind.
func (r *AddressRegistry[I]) Resolve(kind types.Kind, identity I) (types.StoredID, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	id, ok := r.ids[kind][identity]
	if ok {
		r.hits[kind]++
	}
	return id, ok
}

// Next hands out the next id of kind. Ids start at 1 and never repeat.
func (r *AddressRegistry[I]) Next(kind types.Kind) types.StoredID {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.next[kind]++
	return r.next[kind]
}

// Register binds identity to id. Binding an identity twice under one kind is a bug in
// the caller and panics.
func (r *AddressRegistry[I]) Register(kind types.Kind, identity I, id types.StoredID) {
	r.lock.Lock()
	defer r.lock.Unlock()
	m, ok := r.ids[kind]
	if !ok {
		m = make(map[I]types.StoredID)
		r.ids[kind] = m
	}
	if prev, dup := m[identity]; dup {
		panic(fmt.Sprintf("index: %v registered twice under %s (ids %d and %d)", identity, kind, prev, id))
	}
	m[identity] = id
	if id > r.next[kind] {
		r.next[kind] = id
	}
}

// Count is the number of identities registered under kind.
func (r *AddressRegistry[I]) Count(kind types.Kind) int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.ids[kind])
}

// Hits is the number of successful Resolve calls for kind.
func (r *AddressRegistry[I]) Hits(kind types.Kind) uint64 {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.hits[kind]
}
