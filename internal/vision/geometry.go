package vision

import "math"

// Vec2 is a point on the ground plane.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{v.X - o.X, v.Y - o.Y} }
func (v Vec2) Add(o Vec2) Vec2 { return Vec2{v.X + o.X, v.Y + o.Y} }
func (v Vec2) Scale(s float64) Vec2 {
	return Vec2{v.X * s, v.Y * s}
}

func (v Vec2) Len() float64 {
	return math.Hypot(v.X, v.Y)
}

func (v Vec2) Dist(o Vec2) float64 {
	return math.Hypot(v.X-o.X, v.Y-o.Y)
}

// Angle is the polar angle about the origin, in [-π, π].
func (v Vec2) Angle() float64 {
	return math.Atan2(v.Y, v.X)
}

// AABB is an axis-aligned bounding box.
type AABB struct {
	MinX, MinY, MaxX, MaxY float64
}

// Contains reports whether the point lies inside the box.
func (b AABB) Contains(p Vec2) bool {
	return p.X >= b.MinX && p.X <= b.MaxX && p.Y >= b.MinY && p.Y <= b.MaxY
}

// Intersects reports whether two boxes overlap.
func (b AABB) Intersects(o AABB) bool {
	return b.MinX <= o.MaxX && b.MaxX >= o.MinX && b.MinY <= o.MaxY && b.MaxY >= o.MinY
}

// IntersectsCircle reports whether the box touches the circle.
func (b AABB) IntersectsCircle(center Vec2, radius float64) bool {
	dx := math.Max(b.MinX-center.X, math.Max(0, center.X-b.MaxX))
	dy := math.Max(b.MinY-center.Y, math.Max(0, center.Y-b.MaxY))
	return dx*dx+dy*dy <= radius*radius
}

func (b AABB) quadrant(i int) AABB {
	midX := (b.MinX + b.MaxX) / 2
	midY := (b.MinY + b.MaxY) / 2
	switch i {
	case 0:
		return AABB{b.MinX, b.MinY, midX, midY}
	case 1:
		return AABB{midX, b.MinY, b.MaxX, midY}
	case 2:
		return AABB{b.MinX, midY, midX, b.MaxY}
	default:
		return AABB{midX, midY, b.MaxX, b.MaxY}
	}
}

// normalizeAngle wraps into [0, 2π).
func normalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}

// ObstacleKind distinguishes the shadow geometry an obstacle casts.
type ObstacleKind uint8

const (
	ObstacleCircle ObstacleKind = iota
	ObstacleRect
	ObstaclePolygon
)

// Obstacle is a static occluder. Immutable after load.
type Obstacle struct {
	ID      string
	Kind    ObstacleKind
	Center  Vec2
	Radius  float64 // circle
	HalfW   float64 // rect
	HalfH   float64 // rect
	Rotate  float64 // rect, radians
	Points  []Vec2  // polygon silhouette
	Height  float64
	Opacity float64
}

// Bounds returns the obstacle's bounding box.
func (o Obstacle) Bounds() AABB {
	switch o.Kind {
	case ObstacleCircle:
		return AABB{o.Center.X - o.Radius, o.Center.Y - o.Radius, o.Center.X + o.Radius, o.Center.Y + o.Radius}
	case ObstacleRect:
		corners := o.rectCorners()
		box := AABB{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
		for _, c := range corners {
			box.MinX = math.Min(box.MinX, c.X)
			box.MinY = math.Min(box.MinY, c.Y)
			box.MaxX = math.Max(box.MaxX, c.X)
			box.MaxY = math.Max(box.MaxY, c.Y)
		}
		return box
	default:
		box := AABB{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
		for _, p := range o.Points {
			box.MinX = math.Min(box.MinX, p.X)
			box.MinY = math.Min(box.MinY, p.Y)
			box.MaxX = math.Max(box.MaxX, p.X)
			box.MaxY = math.Max(box.MaxY, p.Y)
		}
		return box
	}
}

func (o Obstacle) rectCorners() [4]Vec2 {
	sin, cos := math.Sincos(o.Rotate)
	dx := Vec2{cos * o.HalfW, sin * o.HalfW}
	dy := Vec2{-sin * o.HalfH, cos * o.HalfH}
	return [4]Vec2{
		o.Center.Add(dx).Add(dy),
		o.Center.Add(dx).Sub(dy),
		o.Center.Sub(dx).Sub(dy),
		o.Center.Sub(dx).Add(dy),
	}
}
