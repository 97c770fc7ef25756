package spatial

import (
	"math/rand"
	"sort"
	"testing"

	"warlane/server/internal/ecs"
)

func TestRangeQueryMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	idx := NewIndex(0, 0, 64, 4)
	alloc := ecs.NewAllocator()

	type placed struct {
		e    ecs.Entity
		x, y float64
	}
	var all []placed
	for i := 0; i < 2500; i++ {
		e := alloc.Allocate()
		x := rng.Float64() * 4000
		y := rng.Float64() * 4000
		idx.Add(e, x, y, uint8(i%3))
		all = append(all, placed{e, x, y})
	}
	idx.Build()

	queries := []struct {
		x, y, r float64
	}{
		{2000, 2000, 300},
		{0, 0, 500},
		{4000, 4000, 150},
		{1234.5, 987.6, 777},
		{2000, 2000, 0},
	}
	for _, q := range queries {
		want := map[ecs.Entity]bool{}
		for _, p := range all {
			dx, dy := p.x-q.x, p.y-q.y
			if dx*dx+dy*dy <= q.r*q.r {
				want[p.e] = true
			}
		}
		got := map[ecs.Entity]bool{}
		idx.Query(q.x, q.y, q.r, func(e Entry) { got[e.Entity] = true })
		if len(got) != len(want) {
			t.Fatalf("query (%.0f,%.0f,r=%.0f): got %d entities, want %d", q.x, q.y, q.r, len(got), len(want))
		}
		for e := range want {
			if !got[e] {
				t.Fatalf("query (%.0f,%.0f,r=%.0f): missing entity %v", q.x, q.y, q.r, e)
			}
		}
	}
}

func TestRadixSortOrdersByKeyAndIsStable(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	entries := make([]Entry, 5000)
	for i := range entries {
		entries[i] = Entry{Key: uint32(rng.Intn(512)), X: float64(i)}
	}
	scratch := make([]Entry, len(entries))
	sorted := radixSort(append([]Entry(nil), entries...), scratch, 4)

	if !sort.SliceIsSorted(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key }) {
		t.Fatal("radix sort must order by key")
	}
	// Stability: equal keys keep insertion order (X carries the original
	// position).
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Key == sorted[i-1].Key && sorted[i].X < sorted[i-1].X {
			t.Fatal("radix sort must be stable")
		}
	}
}

func TestRadixSortSmallAndSingleWorker(t *testing.T) {
	entries := []Entry{{Key: 3}, {Key: 1}, {Key: 2}}
	sorted := radixSort(entries, make([]Entry, 3), 1)
	for i, want := range []uint32{1, 2, 3} {
		if sorted[i].Key != want {
			t.Fatalf("position %d: got key %d, want %d", i, sorted[i].Key, want)
		}
	}
}

func TestRebuildReplacesContents(t *testing.T) {
	idx := NewIndex(0, 0, 64, 1)
	alloc := ecs.NewAllocator()
	a := alloc.Allocate()
	idx.Add(a, 10, 10, 0)
	idx.Build()
	if idx.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", idx.Len())
	}

	idx.Reset()
	b := alloc.Allocate()
	idx.Add(b, 20, 20, 1)
	idx.Build()

	var seen []ecs.Entity
	idx.Query(15, 15, 100, func(e Entry) { seen = append(seen, e.Entity) })
	if len(seen) != 1 || seen[0] != b {
		t.Fatalf("rebuild must drop previous entries, saw %v", seen)
	}
}

func TestMortonKeyInterleaves(t *testing.T) {
	if MortonKey(0, 0) != 0 {
		t.Fatal("origin must map to key 0")
	}
	if MortonKey(1, 0) != 1 {
		t.Fatalf("expected 1, got %d", MortonKey(1, 0))
	}
	if MortonKey(0, 1) != 2 {
		t.Fatalf("expected 2, got %d", MortonKey(0, 1))
	}
	if MortonKey(0xffff, 0xffff) != 0xffffffff {
		t.Fatalf("expected full key, got %x", MortonKey(0xffff, 0xffff))
	}
}
