// Package spatial provides the tick-local index over entity positions.
// The index is rebuilt once per tick and read-only afterwards; range queries
// cost O(log n + k).
package spatial

import (
	"math"
	"sort"

	"warlane/server/internal/ecs"
)

// Entry is one indexed entity in structure-of-arrays order.
type Entry struct {
	Key     uint32
	Entity  ecs.Entity
	X, Y    float64
	Faction uint8
}

// Index holds entries sorted by Morton key. Entries sharing a cell are
// contiguous, so a cell resolves to one binary-searched key range.
type Index struct {
	cellSize float64
	originX  float64
	originY  float64
	entries  []Entry
	scratch  []Entry
	workers  int
}

// NewIndex constructs an index for a map whose coordinates start at
// (originX, originY). cellSize trades query fan-out against candidate count.
func NewIndex(originX, originY, cellSize float64, workers int) *Index {
	if cellSize <= 0 {
		cellSize = 64
	}
	if workers < 1 {
		workers = 1
	}
	return &Index{
		cellSize: cellSize,
		originX:  originX,
		originY:  originY,
		workers:  workers,
	}
}

// Reset clears the index for this tick's rebuild, recycling storage.
func (idx *Index) Reset() {
	idx.entries = idx.entries[:0]
}

// Add stages an entity. Call only during the rebuild stage.
func (idx *Index) Add(e ecs.Entity, x, y float64, faction uint8) {
	cx, cy := idx.cell(x, y)
	idx.entries = append(idx.entries, Entry{
		Key:     MortonKey(cx, cy),
		Entity:  e,
		X:       x,
		Y:       y,
		Faction: faction,
	})
}

// Build sorts the staged entries. The index is read-only afterwards.
func (idx *Index) Build() {
	if cap(idx.scratch) < len(idx.entries) {
		idx.scratch = make([]Entry, len(idx.entries))
	}
	idx.entries = radixSort(idx.entries, idx.scratch[:len(idx.entries)], idx.workers)
}

// Len reports the number of indexed entities.
func (idx *Index) Len() int { return len(idx.entries) }

func (idx *Index) cell(x, y float64) (uint32, uint32) {
	cx := int64(math.Floor((x - idx.originX) / idx.cellSize))
	cy := int64(math.Floor((y - idx.originY) / idx.cellSize))
	if cx < 0 {
		cx = 0
	}
	if cy < 0 {
		cy = 0
	}
	if cx > 0xffff {
		cx = 0xffff
	}
	if cy > 0xffff {
		cy = 0xffff
	}
	return uint32(cx), uint32(cy)
}

// Query visits every entity within radius of (x, y). Iteration order is the
// Morton order of the containing cells, which is deterministic for a given
// build.
func (idx *Index) Query(x, y, radius float64, fn func(Entry)) {
	if radius < 0 {
		return
	}
	minCX, minCY := idx.cell(x-radius, y-radius)
	maxCX, maxCY := idx.cell(x+radius, y+radius)
	r2 := radius * radius

	for cy := minCY; cy <= maxCY; cy++ {
		for cx := minCX; cx <= maxCX; cx++ {
			key := MortonKey(cx, cy)
			lo := sort.Search(len(idx.entries), func(i int) bool { return idx.entries[i].Key >= key })
			for i := lo; i < len(idx.entries) && idx.entries[i].Key == key; i++ {
				entry := idx.entries[i]
				dx := entry.X - x
				dy := entry.Y - y
				if dx*dx+dy*dy <= r2 {
					fn(entry)
				}
			}
			if cx == 0xffff {
				break
			}
		}
		if cy == 0xffff {
			break
		}
	}
}

// Collect returns the entries within radius of (x, y).
func (idx *Index) Collect(x, y, radius float64) []Entry {
	var out []Entry
	idx.Query(x, y, radius, func(e Entry) { out = append(out, e) })
	return out
}
