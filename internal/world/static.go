package world

import (
	"warlane/server/internal/outcome"
	"warlane/server/internal/vision"
)

// CheckpointClass orders a path: exactly one Start, any number of middle
// checkpoints, one End.
type CheckpointClass string

const (
	CheckpointStart  CheckpointClass = "Start"
	CheckpointMiddle CheckpointClass = "CheckPoint"
	CheckpointEnd    CheckpointClass = "End"
)

// Checkpoint is one waypoint on a creep path.
type Checkpoint struct {
	Name  string
	Class CheckpointClass
	Pos   outcome.Vec2
}

// Path is the ordered waypoint sequence creeps follow from Start to End.
type Path struct {
	Name   string
	Points []Checkpoint
}

// Start returns the spawn position of the path.
func (p *Path) Start() outcome.Vec2 {
	if p == nil || len(p.Points) == 0 {
		return outcome.Vec2{}
	}
	return p.Points[0].Pos
}

// Waypoint returns the i-th waypoint position and whether it exists.
func (p *Path) Waypoint(i int) (outcome.Vec2, bool) {
	if p == nil || i < 0 || i >= len(p.Points) {
		return outcome.Vec2{}, false
	}
	return p.Points[i].Pos, true
}

// Terminal reports whether the i-th waypoint is the last one.
func (p *Path) Terminal(i int) bool {
	return p != nil && i == len(p.Points)-1
}

// WaveSpawn schedules one creep relative to its wave start.
type WaveSpawn struct {
	Time  float64 // seconds after wave start
	Creep string  // archetype name
}

// WavePath binds a spawn list to the path the creeps will walk.
type WavePath struct {
	Path   string
	Creeps []WaveSpawn
}

// Wave is one scheduled creep wave.
type Wave struct {
	StartTime float64 // seconds after match start
	Paths     []WavePath
}

// TowerSite is a pre-placed tower on the map.
type TowerSite struct {
	Archetype string
	Faction   string
	Pos       outcome.Vec2
}

// BaseSite is the terminal structure creeps damage on arrival.
type BaseSite struct {
	Archetype string
	Faction   string
	Pos       outcome.Vec2
}

// StaticWorld is immutable after load: geometry, schedules and sites.
type StaticWorld struct {
	Bounds    vision.AABB
	Paths     map[string]*Path
	Obstacles []vision.Obstacle
	Towers    []TowerSite
	Bases     []BaseSite
	Waves     []Wave
}

// Path resolves a path by name.
func (s *StaticWorld) Path(name string) *Path {
	if s == nil {
		return nil
	}
	return s.Paths[name]
}
