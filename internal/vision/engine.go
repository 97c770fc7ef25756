package vision

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Observer is the input tuple a vision computation is a pure function of.
type Observer struct {
	Pos       Vec2
	Height    float64
	Radius    float64
	Precision int
}

// positionQuantum groups observer positions into cache buckets. A hero
// sliding less than a quantum keeps its cached region.
const positionQuantum = 8.0

// Fingerprint hashes the quantized observer inputs and the static-world
// epoch. Identical fingerprints serve identical cached results.
func Fingerprint(o Observer, epoch uint64) uint64 {
	var buf [48]byte
	binary.LittleEndian.PutUint64(buf[0:], uint64(int64(math.Floor(o.Pos.X/positionQuantum))))
	binary.LittleEndian.PutUint64(buf[8:], uint64(int64(math.Floor(o.Pos.Y/positionQuantum))))
	binary.LittleEndian.PutUint64(buf[16:], math.Float64bits(o.Height))
	binary.LittleEndian.PutUint64(buf[24:], math.Float64bits(o.Radius))
	binary.LittleEndian.PutUint64(buf[32:], uint64(o.Precision))
	binary.LittleEndian.PutUint64(buf[40:], epoch)
	return xxhash.Sum64(buf[:])
}

// Config tunes the engine outputs.
type Config struct {
	GridCellSize float64
	WithRaster   bool
}

// DefaultConfig matches the minimap contract.
func DefaultConfig() Config {
	return Config{GridCellSize: 25, WithRaster: true}
}

// Engine computes per-observer visible regions over a static obstacle set.
// Safe for concurrent Compute calls; the quadtree is read-only and the cache
// is lock-guarded.
type Engine struct {
	cfg   Config
	tree  *Quadtree
	epoch uint64

	mu    sync.Mutex
	cache map[uint64]*Result

	hits   uint64
	misses uint64
}

// NewEngine builds the quadtree over the static obstacles.
func NewEngine(bounds AABB, obstacles []Obstacle, cfg Config) *Engine {
	if cfg.GridCellSize <= 0 {
		cfg.GridCellSize = 25
	}
	return &Engine{
		cfg:   cfg,
		tree:  NewQuadtree(bounds, obstacles),
		epoch: 1,
		cache: make(map[uint64]*Result),
	}
}

// Epoch returns the static-world epoch baked into fingerprints.
func (e *Engine) Epoch() uint64 { return e.epoch }

// Invalidate bumps the epoch and clears the cache. Called only when the
// static obstacle set changes, never per tick.
func (e *Engine) Invalidate(bounds AABB, obstacles []Obstacle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tree = NewQuadtree(bounds, obstacles)
	e.epoch++
	e.cache = make(map[uint64]*Result)
}

// Stats reports cache accounting: hits, misses.
func (e *Engine) Stats() (uint64, uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hits, e.misses
}

// Compute returns the observer's visible region, from cache when the
// fingerprint matches.
func (e *Engine) Compute(o Observer) *Result {
	fp := Fingerprint(o, e.epoch)

	e.mu.Lock()
	if cached, ok := e.cache[fp]; ok {
		e.hits++
		e.mu.Unlock()
		return cached
	}
	e.misses++
	e.mu.Unlock()

	result := e.computeUncached(o, fp)

	e.mu.Lock()
	e.cache[fp] = result
	e.mu.Unlock()
	return result
}

func (e *Engine) computeUncached(o Observer, fp uint64) *Result {
	candidates := e.tree.QueryCircle(o.Pos, o.Radius)

	shadows := make([]Shadow, 0, len(candidates))
	for _, obstacle := range candidates {
		if s := castShadow(o.Pos, o.Height, o.Radius, obstacle); s != nil {
			shadows = append(shadows, *s)
		}
	}
	shadows = mergeShadows(shadows)

	result := &Result{
		Fingerprint: fp,
		Observer:    o.Pos,
		Radius:      o.Radius,
		Visible:     visiblePolygon(o.Pos, o.Radius, o.Precision, shadows),
		Shadows:     shadows,
	}
	if e.cfg.WithRaster {
		result.Raster = rasterize(o.Pos, o.Radius, e.cfg.GridCellSize, shadows)
	}
	return result
}
