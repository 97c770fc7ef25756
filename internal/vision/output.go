package vision

import "math"

// CellState labels one raster cell.
type CellState uint8

const (
	CellInvisible CellState = iota
	CellShadowed
	CellVisible
	CellPartial
)

func (s CellState) String() string {
	switch s {
	case CellInvisible:
		return "invisible"
	case CellShadowed:
		return "shadowed"
	case CellVisible:
		return "visible"
	default:
		return "partial"
	}
}

// Cell is one raster sample. Alpha is the visible fraction and is only
// meaningful for CellPartial.
type Cell struct {
	State CellState `json:"state"`
	Alpha float64   `json:"alpha,omitempty"`
}

// Raster is the minimap-friendly grid output. Cells are row-major over a
// Width×Width square centered on the observer.
type Raster struct {
	Origin   Vec2    `json:"origin"` // world position of cell (0,0)'s corner
	CellSize float64 `json:"cellSize"`
	Width    int     `json:"width"`
	Cells    []Cell  `json:"cells"`
}

// At returns the cell at grid coordinates (x, y).
func (r *Raster) At(x, y int) Cell {
	if x < 0 || y < 0 || x >= r.Width || y >= r.Width {
		return Cell{State: CellInvisible}
	}
	return r.Cells[y*r.Width+x]
}

// CellAtWorld maps a world point into the grid.
func (r *Raster) CellAtWorld(p Vec2) (int, int, bool) {
	x := int(math.Floor((p.X - r.Origin.X) / r.CellSize))
	y := int(math.Floor((p.Y - r.Origin.Y) / r.CellSize))
	if x < 0 || y < 0 || x >= r.Width || y >= r.Width {
		return 0, 0, false
	}
	return x, y, true
}

// Result is one observer's computed vision.
type Result struct {
	Fingerprint uint64   `json:"fingerprint"`
	Observer    Vec2     `json:"observer"`
	Radius      float64  `json:"radius"`
	Visible     []Vec2   `json:"visible"` // vertex loop of the visible polygon
	Shadows     []Shadow `json:"shadows"`
	Raster      *Raster  `json:"raster,omitempty"`
}

// CanSee reports whether a world point is visible to this observer.
func (res *Result) CanSee(p Vec2) bool {
	if res == nil {
		return false
	}
	to := p.Sub(res.Observer)
	d := to.Len()
	if d > res.Radius {
		return false
	}
	angle := normalizeAngle(to.Angle())
	for _, s := range res.Shadows {
		if s.coversAngle(angle) && d >= s.Near {
			return false
		}
	}
	return true
}

// visiblePolygon walks precision rays around the observer; each ray reaches
// the vision radius unless a shadow truncates it at its near edge.
func visiblePolygon(observer Vec2, radius float64, precision int, shadows []Shadow) []Vec2 {
	if precision <= 0 {
		precision = 360
	}
	points := make([]Vec2, 0, precision)
	step := 2 * math.Pi / float64(precision)
	for i := 0; i < precision; i++ {
		angle := float64(i) * step
		reach := radius
		for _, s := range shadows {
			if s.coversAngle(angle) && s.Near < reach {
				reach = s.Near
			}
		}
		points = append(points, Vec2{
			X: observer.X + math.Cos(angle)*reach,
			Y: observer.Y + math.Sin(angle)*reach,
		})
	}
	return points
}

// supersample grid: 3×3 sub-samples per cell decide Visible/Shadowed/Partial.
const supersampleAxis = 3

func rasterize(observer Vec2, radius, cellSize float64, shadows []Shadow) *Raster {
	if cellSize <= 0 {
		cellSize = 25
	}
	width := int(math.Ceil(2 * radius / cellSize))
	if width < 1 {
		width = 1
	}
	origin := Vec2{observer.X - radius, observer.Y - radius}
	raster := &Raster{
		Origin:   origin,
		CellSize: cellSize,
		Width:    width,
		Cells:    make([]Cell, width*width),
	}

	sub := cellSize / (supersampleAxis + 1)
	for y := 0; y < width; y++ {
		for x := 0; x < width; x++ {
			base := Vec2{origin.X + float64(x)*cellSize, origin.Y + float64(y)*cellSize}
			visible, shadowed, outside := 0, 0, 0
			for sy := 1; sy <= supersampleAxis; sy++ {
				for sx := 1; sx <= supersampleAxis; sx++ {
					p := Vec2{base.X + float64(sx)*sub, base.Y + float64(sy)*sub}
					switch classifyPoint(observer, radius, shadows, p) {
					case CellVisible:
						visible++
					case CellShadowed:
						shadowed++
					default:
						outside++
					}
				}
			}
			total := supersampleAxis * supersampleAxis
			cell := Cell{}
			switch {
			case visible == total:
				cell.State = CellVisible
			case shadowed == total:
				cell.State = CellShadowed
			case outside == total:
				cell.State = CellInvisible
			case visible == 0 && shadowed > 0:
				cell.State = CellShadowed
			case visible == 0:
				cell.State = CellInvisible
			default:
				cell.State = CellPartial
				cell.Alpha = float64(visible) / float64(total)
			}
			raster.Cells[y*width+x] = cell
		}
	}
	return raster
}

func classifyPoint(observer Vec2, radius float64, shadows []Shadow, p Vec2) CellState {
	to := p.Sub(observer)
	d := to.Len()
	if d > radius {
		return CellInvisible
	}
	angle := normalizeAngle(to.Angle())
	for _, s := range shadows {
		if s.coversAngle(angle) && d >= s.Near {
			return CellShadowed
		}
	}
	return CellVisible
}
