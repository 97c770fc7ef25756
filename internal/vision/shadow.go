package vision

import (
	"math"
	"sort"
)

// ShadowKind tags the geometry an obstacle projects.
type ShadowKind string

const (
	ShadowSector    ShadowKind = "sector"
	ShadowTrapezoid ShadowKind = "trapezoid"
	ShadowPolygon   ShadowKind = "polygon"
)

// Shadow is the region one obstacle (or a merged run of obstacles) occludes.
// Angles are polar about the observer, normalized to [0, 2π); an interval
// wrapping zero is stored with Start > End.
type Shadow struct {
	Kind     ShadowKind `json:"kind"`
	Start    float64    `json:"start"`
	End      float64    `json:"end"`
	Near     float64    `json:"near"`
	Far      float64    `json:"far"`
	Vertices []Vec2     `json:"vertices,omitempty"`
}

func (s Shadow) wraps() bool { return s.Start > s.End }

// span returns the angular width of the shadow.
func (s Shadow) span() float64 {
	if s.wraps() {
		return 2*math.Pi - s.Start + s.End
	}
	return s.End - s.Start
}

// coversAngle reports whether the normalized angle falls inside the shadow.
func (s Shadow) coversAngle(a float64) bool {
	if s.wraps() {
		return a >= s.Start || a <= s.End
	}
	return a >= s.Start && a <= s.End
}

// castShadow computes the shadow one obstacle throws, or nil when the
// obstacle does not occlude this observer. Occlusion requires the obstacle to
// stand taller than the observer.
func castShadow(observer Vec2, observerHeight, radius float64, o *Obstacle) *Shadow {
	if o == nil || o.Height <= observerHeight {
		return nil
	}
	switch o.Kind {
	case ObstacleCircle:
		return castCircleShadow(observer, radius, o)
	case ObstacleRect:
		return castRectShadow(observer, radius, o)
	default:
		return castPolygonShadow(observer, radius, o)
	}
}

func castCircleShadow(observer Vec2, radius float64, o *Obstacle) *Shadow {
	to := o.Center.Sub(observer)
	d := to.Len()
	if d-o.Radius > radius {
		return nil
	}
	if d <= o.Radius {
		// Observer inside the occluder: everything beyond is dark.
		return &Shadow{Kind: ShadowSector, Start: 0, End: 2 * math.Pi, Near: 0, Far: radius}
	}
	center := normalizeAngle(to.Angle())
	half := math.Asin(o.Radius / d)
	near := math.Sqrt(d*d - o.Radius*o.Radius) // tangent-point distance
	return &Shadow{
		Kind:  ShadowSector,
		Start: normalizeAngle(center - half),
		End:   normalizeAngle(center + half),
		Near:  near,
		Far:   radius,
	}
}

func castRectShadow(observer Vec2, radius float64, o *Obstacle) *Shadow {
	corners := o.rectCorners()
	return silhouetteShadow(observer, radius, corners[:], ShadowTrapezoid)
}

func castPolygonShadow(observer Vec2, radius float64, o *Obstacle) *Shadow {
	if len(o.Points) < 3 {
		return nil
	}
	return silhouetteShadow(observer, radius, o.Points, ShadowPolygon)
}

// silhouetteShadow projects the two outermost visible vertices away from the
// observer to the vision radius, producing a trapezoid (rect) or general
// polygon shadow.
func silhouetteShadow(observer Vec2, radius float64, points []Vec2, kind ShadowKind) *Shadow {
	ref := normalizeAngle(points[0].Sub(observer).Angle())
	minOff, maxOff := 0.0, 0.0
	minIdx, maxIdx := 0, 0
	near := math.Inf(1)
	for i, p := range points {
		to := p.Sub(observer)
		near = math.Min(near, to.Len())
		// Offsets relative to the first vertex avoid wraparound artifacts
		// for silhouettes narrower than π.
		off := math.Remainder(to.Angle()-ref, 2*math.Pi)
		if off < minOff {
			minOff, minIdx = off, i
		}
		if off > maxOff {
			maxOff, maxIdx = off, i
		}
	}
	if near > radius {
		return nil
	}

	first := points[minIdx]
	last := points[maxIdx]
	firstDir := first.Sub(observer)
	lastDir := last.Sub(observer)
	if firstDir.Len() == 0 || lastDir.Len() == 0 {
		return nil
	}
	farFirst := observer.Add(firstDir.Scale(radius / firstDir.Len()))
	farLast := observer.Add(lastDir.Scale(radius / lastDir.Len()))

	return &Shadow{
		Kind:     kind,
		Start:    normalizeAngle(ref + minOff),
		End:      normalizeAngle(ref + maxOff),
		Near:     near,
		Far:      radius,
		Vertices: []Vec2{first, last, farLast, farFirst},
	}
}

// mergeShadows unions overlapping or adjacent sector shadows by angular
// interval. Trapezoid and polygon shadows keep their identity for the vector
// output. The operation is idempotent: merging a merged set again returns an
// equal set.
func mergeShadows(shadows []Shadow) []Shadow {
	var sectors, rest []Shadow
	for _, s := range shadows {
		if s.Kind == ShadowSector {
			sectors = append(sectors, s)
		} else {
			rest = append(rest, s)
		}
	}
	merged := mergeSectors(sectors)
	merged = append(merged, rest...)
	return merged
}

func mergeSectors(sectors []Shadow) []Shadow {
	if len(sectors) <= 1 {
		return sectors
	}

	// Split wrapping intervals so a plain sweep suffices, then re-join any
	// pair meeting at the 0/2π seam.
	split := make([]Shadow, 0, len(sectors)+1)
	for _, s := range sectors {
		if s.wraps() {
			split = append(split,
				Shadow{Kind: ShadowSector, Start: s.Start, End: 2 * math.Pi, Near: s.Near, Far: s.Far},
				Shadow{Kind: ShadowSector, Start: 0, End: s.End, Near: s.Near, Far: s.Far},
			)
		} else {
			split = append(split, s)
		}
	}
	sort.Slice(split, func(i, j int) bool {
		if split[i].Start != split[j].Start {
			return split[i].Start < split[j].Start
		}
		return split[i].End < split[j].End
	})

	merged := []Shadow{split[0]}
	for _, next := range split[1:] {
		last := &merged[len(merged)-1]
		if next.Start <= last.End {
			last.End = math.Max(last.End, next.End)
			last.Near = math.Min(last.Near, next.Near)
			last.Far = math.Max(last.Far, next.Far)
		} else {
			merged = append(merged, next)
		}
	}

	// Re-join across the seam.
	if len(merged) > 1 {
		first := merged[0]
		last := merged[len(merged)-1]
		if first.Start == 0 && last.End >= 2*math.Pi-1e-12 && !(first.Start == 0 && first.End >= 2*math.Pi-1e-12) {
			joined := Shadow{
				Kind:  ShadowSector,
				Start: last.Start,
				End:   first.End,
				Near:  math.Min(first.Near, last.Near),
				Far:   math.Max(first.Far, last.Far),
			}
			merged = append([]Shadow{joined}, merged[1:len(merged)-1]...)
		}
	}
	return merged
}
