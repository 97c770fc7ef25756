package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"warlane/server/internal/outcome"
	"warlane/server/internal/vision"
	"warlane/server/internal/world"
)

// Wire shapes for the map file family.

type mapFile struct {
	Bounds      *boundsDef     `json:"Bounds,omitempty"`
	CheckPoints []checkpointDef `json:"CheckPoint"`
	Paths       []pathDef       `json:"Path"`
	Towers      []towerDef      `json:"Tower"`
	Bases       []baseDef       `json:"Base,omitempty"`
	Obstacles   []obstacleDef   `json:"Obstacle,omitempty"`
	Waves       []waveDef       `json:"CreepWave"`
}

type boundsDef struct {
	MinX float64 `json:"MinX"`
	MinY float64 `json:"MinY"`
	MaxX float64 `json:"MaxX"`
	MaxY float64 `json:"MaxY"`
}

type checkpointDef struct {
	Name  string  `json:"Name"`
	Class string  `json:"Class"`
	X     float64 `json:"X"`
	Y     float64 `json:"Y"`
}

type pathDef struct {
	Name        string   `json:"Name"`
	CheckPoints []string `json:"CheckPoints"`
}

type towerDef struct {
	Name    string  `json:"Name"`
	Faction string  `json:"Faction"`
	X       float64 `json:"X"`
	Y       float64 `json:"Y"`
}

type baseDef struct {
	Name    string  `json:"Name"`
	Faction string  `json:"Faction"`
	X       float64 `json:"X"`
	Y       float64 `json:"Y"`
}

type obstacleDef struct {
	Name    string    `json:"Name"`
	Kind    string    `json:"Kind"` // circle | rect | polygon
	X       float64   `json:"X"`
	Y       float64   `json:"Y"`
	Radius  float64   `json:"Radius,omitempty"`
	Width   float64   `json:"Width,omitempty"`
	Height  float64   `json:"Height,omitempty"`
	Rotate  float64   `json:"Rotate,omitempty"`
	Points  [][2]float64 `json:"Points,omitempty"`
	Tall    float64   `json:"TallHeight"`
	Opacity float64   `json:"Opacity,omitempty"`
}

type waveDef struct {
	StartTime float64       `json:"StartTime"`
	Detail    []waveDetail  `json:"Detail"`
}

type waveDetail struct {
	Path   string      `json:"Path"`
	Creeps []waveCreep `json:"Creeps"`
}

type waveCreep struct {
	Time  float64 `json:"Time"`
	Creep string  `json:"Creep"`
}

// LoadMap reads, strips, decodes and validates a map file into the static
// world. Every referenced name must resolve and wave timings must be
// monotonically non-decreasing.
func LoadMap(path string, archetypes world.ArchetypeSet) (*world.StaticWorld, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("map: %w", err)
	}
	return ParseMap(raw, archetypes)
}

// ParseMap is LoadMap over in-memory bytes.
func ParseMap(raw []byte, archetypes world.ArchetypeSet) (*world.StaticWorld, error) {
	decoder := json.NewDecoder(bytes.NewReader(StripComments(raw)))
	decoder.DisallowUnknownFields()
	var file mapFile
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("map: %w", err)
	}

	checkpoints := make(map[string]world.Checkpoint, len(file.CheckPoints))
	for _, cp := range file.CheckPoints {
		class := world.CheckpointClass(cp.Class)
		switch class {
		case world.CheckpointStart, world.CheckpointMiddle, world.CheckpointEnd:
		default:
			return nil, fmt.Errorf("map: checkpoint %q has unknown class %q", cp.Name, cp.Class)
		}
		if _, dup := checkpoints[cp.Name]; dup {
			return nil, fmt.Errorf("map: duplicate checkpoint %q", cp.Name)
		}
		checkpoints[cp.Name] = world.Checkpoint{
			Name:  cp.Name,
			Class: class,
			Pos:   outcome.Vec2{X: cp.X, Y: cp.Y},
		}
	}

	static := &world.StaticWorld{Paths: make(map[string]*world.Path, len(file.Paths))}

	for _, p := range file.Paths {
		if len(p.CheckPoints) < 2 {
			return nil, fmt.Errorf("map: path %q needs at least two checkpoints", p.Name)
		}
		wp := &world.Path{Name: p.Name}
		for i, name := range p.CheckPoints {
			cp, ok := checkpoints[name]
			if !ok {
				return nil, fmt.Errorf("map: path %q references unknown checkpoint %q", p.Name, name)
			}
			if i == 0 && cp.Class != world.CheckpointStart {
				return nil, fmt.Errorf("map: path %q must begin at a Start checkpoint", p.Name)
			}
			if i == len(p.CheckPoints)-1 && cp.Class != world.CheckpointEnd {
				return nil, fmt.Errorf("map: path %q must finish at an End checkpoint", p.Name)
			}
			wp.Points = append(wp.Points, cp)
		}
		if _, dup := static.Paths[p.Name]; dup {
			return nil, fmt.Errorf("map: duplicate path %q", p.Name)
		}
		static.Paths[p.Name] = wp
	}

	for _, tower := range file.Towers {
		if _, ok := archetypes[tower.Name]; !ok {
			return nil, fmt.Errorf("map: tower site references unknown archetype %q", tower.Name)
		}
		static.Towers = append(static.Towers, world.TowerSite{
			Archetype: tower.Name,
			Faction:   tower.Faction,
			Pos:       outcome.Vec2{X: tower.X, Y: tower.Y},
		})
	}
	for _, base := range file.Bases {
		if _, ok := archetypes[base.Name]; !ok {
			return nil, fmt.Errorf("map: base site references unknown archetype %q", base.Name)
		}
		static.Bases = append(static.Bases, world.BaseSite{
			Archetype: base.Name,
			Faction:   base.Faction,
			Pos:       outcome.Vec2{X: base.X, Y: base.Y},
		})
	}

	for i, o := range file.Obstacles {
		obstacle := vision.Obstacle{
			ID:      o.Name,
			Center:  vision.Vec2{X: o.X, Y: o.Y},
			Height:  o.Tall,
			Opacity: o.Opacity,
		}
		switch o.Kind {
		case "circle":
			if o.Radius <= 0 {
				return nil, fmt.Errorf("map: circular obstacle %d needs a positive radius", i)
			}
			obstacle.Kind = vision.ObstacleCircle
			obstacle.Radius = o.Radius
		case "rect":
			if o.Width <= 0 || o.Height <= 0 {
				return nil, fmt.Errorf("map: rect obstacle %d needs positive extents", i)
			}
			obstacle.Kind = vision.ObstacleRect
			obstacle.HalfW = o.Width / 2
			obstacle.HalfH = o.Height / 2
			obstacle.Rotate = o.Rotate
		case "polygon":
			if len(o.Points) < 3 {
				return nil, fmt.Errorf("map: polygon obstacle %d needs at least three points", i)
			}
			obstacle.Kind = vision.ObstaclePolygon
			for _, p := range o.Points {
				obstacle.Points = append(obstacle.Points, vision.Vec2{X: p[0], Y: p[1]})
			}
		default:
			return nil, fmt.Errorf("map: obstacle %d has unknown kind %q", i, o.Kind)
		}
		static.Obstacles = append(static.Obstacles, obstacle)
	}

	lastStart := 0.0
	for i, wave := range file.Waves {
		if wave.StartTime < lastStart {
			return nil, fmt.Errorf("map: wave %d start time regresses", i)
		}
		lastStart = wave.StartTime
		converted := world.Wave{StartTime: wave.StartTime}
		for _, detail := range wave.Detail {
			if _, ok := static.Paths[detail.Path]; !ok {
				return nil, fmt.Errorf("map: wave %d references unknown path %q", i, detail.Path)
			}
			wp := world.WavePath{Path: detail.Path}
			lastTime := 0.0
			for _, creep := range detail.Creeps {
				if creep.Time < lastTime {
					return nil, fmt.Errorf("map: wave %d path %q has non-monotonic spawn times", i, detail.Path)
				}
				lastTime = creep.Time
				if _, ok := archetypes[creep.Creep]; !ok {
					return nil, fmt.Errorf("map: wave %d references unknown creep %q", i, creep.Creep)
				}
				wp.Creeps = append(wp.Creeps, world.WaveSpawn{Time: creep.Time, Creep: creep.Creep})
			}
			converted.Paths = append(converted.Paths, wp)
		}
		static.Waves = append(static.Waves, converted)
	}

	static.Bounds = deriveBounds(file.Bounds, static)
	return static, nil
}

// deriveBounds uses the declared bounds or grows a box around everything
// placed on the map, with margin for vision queries at the edges.
func deriveBounds(declared *boundsDef, static *world.StaticWorld) vision.AABB {
	if declared != nil {
		return vision.AABB{MinX: declared.MinX, MinY: declared.MinY, MaxX: declared.MaxX, MaxY: declared.MaxY}
	}
	const margin = 2000.0
	box := vision.AABB{MinX: -margin, MinY: -margin, MaxX: margin, MaxY: margin}
	grow := func(x, y float64) {
		if x-margin < box.MinX {
			box.MinX = x - margin
		}
		if y-margin < box.MinY {
			box.MinY = y - margin
		}
		if x+margin > box.MaxX {
			box.MaxX = x + margin
		}
		if y+margin > box.MaxY {
			box.MaxY = y + margin
		}
	}
	for _, p := range static.Paths {
		for _, cp := range p.Points {
			grow(cp.Pos.X, cp.Pos.Y)
		}
	}
	for _, t := range static.Towers {
		grow(t.Pos.X, t.Pos.Y)
	}
	for _, b := range static.Bases {
		grow(b.Pos.X, b.Pos.Y)
	}
	for _, o := range static.Obstacles {
		bounds := o.Bounds()
		grow(bounds.MinX, bounds.MinY)
		grow(bounds.MaxX, bounds.MaxY)
	}
	return box
}
