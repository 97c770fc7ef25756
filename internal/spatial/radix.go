package spatial

import "sync"

// radix sort over Entry.Key: LSD, four 8-bit passes. Each pass builds
// per-shard histograms in parallel, prefix-sums them into scatter offsets,
// then scatters in parallel. The sort is stable, so entries with equal keys
// keep their insertion order and rebuilds are reproducible.

const (
	radixBits    = 8
	radixBuckets = 1 << radixBits
	radixPasses  = 32 / radixBits

	// Below this size the setup cost dominates; fall back to one shard.
	parallelCutoff = 2048
)

func radixSort(entries []Entry, scratch []Entry, workers int) []Entry {
	n := len(entries)
	if n < 2 {
		return entries
	}
	if workers < 1 || n < parallelCutoff {
		workers = 1
	}

	src, dst := entries, scratch
	for pass := 0; pass < radixPasses; pass++ {
		shift := uint(pass * radixBits)

		shardSize := (n + workers - 1) / workers
		counts := make([][radixBuckets]int, workers)

		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			lo := w * shardSize
			hi := lo + shardSize
			if hi > n {
				hi = n
			}
			if lo >= hi {
				continue
			}
			wg.Add(1)
			go func(w, lo, hi int) {
				defer wg.Done()
				for i := lo; i < hi; i++ {
					counts[w][(src[i].Key>>shift)&(radixBuckets-1)]++
				}
			}(w, lo, hi)
		}
		wg.Wait()

		// Column-major prefix sum: bucket b of shard w scatters after every
		// lower bucket and after bucket b of every earlier shard.
		offsets := make([][radixBuckets]int, workers)
		total := 0
		for b := 0; b < radixBuckets; b++ {
			for w := 0; w < workers; w++ {
				offsets[w][b] = total
				total += counts[w][b]
			}
		}

		for w := 0; w < workers; w++ {
			lo := w * shardSize
			hi := lo + shardSize
			if hi > n {
				hi = n
			}
			if lo >= hi {
				continue
			}
			wg.Add(1)
			go func(w, lo, hi int) {
				defer wg.Done()
				off := offsets[w]
				for i := lo; i < hi; i++ {
					b := (src[i].Key >> shift) & (radixBuckets - 1)
					dst[off[b]] = src[i]
					off[b]++
				}
			}(w, lo, hi)
		}
		wg.Wait()

		src, dst = dst, src
	}
	return src
}
