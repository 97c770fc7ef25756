package ecs

import "fmt"

// Entity is an opaque handle to zero or more components. The generation
// counter guards against stale handles after an index is reused.
type Entity struct {
	Index      uint32
	Generation uint32
}

// Nil is the zero entity. It never refers to a live entity because the
// allocator hands out generations starting at 1.
var Nil = Entity{}

// IsNil reports whether the handle is the zero entity.
func (e Entity) IsNil() bool {
	return e.Generation == 0
}

// String renders a stable textual id used in events and logs.
func (e Entity) String() string {
	return fmt.Sprintf("e%d.%d", e.Index, e.Generation)
}

// Parse reverses String. It returns Nil for anything malformed, so stale or
// garbage wire ids resolve to a handle that is never alive.
func Parse(s string) Entity {
	var idx, gen uint32
	if _, err := fmt.Sscanf(s, "e%d.%d", &idx, &gen); err != nil {
		return Nil
	}
	return Entity{Index: idx, Generation: gen}
}

// Allocator hands out generational entity ids and recycles freed indices.
// It is not safe for concurrent use; all allocation happens on the
// single-writer outcome stage.
type Allocator struct {
	generations []uint32
	alive       []bool
	free        []uint32
	liveCount   int
}

// NewAllocator constructs an empty allocator.
func NewAllocator() *Allocator {
	return &Allocator{}
}

// Allocate returns a fresh entity. Freed indices are reused with a strictly
// greater generation.
func (a *Allocator) Allocate() Entity {
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		a.generations[idx]++
		a.alive[idx] = true
		a.liveCount++
		return Entity{Index: idx, Generation: a.generations[idx]}
	}
	idx := uint32(len(a.generations))
	a.generations = append(a.generations, 1)
	a.alive = append(a.alive, true)
	a.liveCount++
	return Entity{Index: idx, Generation: 1}
}

// Free releases the entity's index for reuse. Freeing a stale or nil handle
// is a no-op.
func (a *Allocator) Free(e Entity) {
	if !a.Alive(e) {
		return
	}
	a.alive[e.Index] = false
	a.free = append(a.free, e.Index)
	a.liveCount--
}

// Alive reports whether the handle refers to a currently allocated entity.
func (a *Allocator) Alive(e Entity) bool {
	if e.IsNil() || int(e.Index) >= len(a.generations) {
		return false
	}
	return a.alive[e.Index] && a.generations[e.Index] == e.Generation
}

// Len reports the number of live entities.
func (a *Allocator) Len() int {
	return a.liveCount
}

// Cap reports the highest index ever allocated plus one. Dense stores size
// their slices from this.
func (a *Allocator) Cap() int {
	return len(a.generations)
}
