package world

import (
	"hash/fnv"
	"math/rand"
	"time"

	"warlane/server/internal/ability"
	"warlane/server/internal/ecs"
	"warlane/server/internal/outcome"
	"warlane/server/internal/spatial"
	"warlane/server/internal/telemetry"
	"warlane/server/internal/vision"
	"warlane/server/logging"
)

// DefaultSeed matches a fresh world booted without configuration.
const DefaultSeed = "skirmish"

// RNGFactory produces deterministic RNG substreams for world subsystems.
type RNGFactory func(rootSeed, label string) *rand.Rand

// DeterministicSeedValue folds a root seed and a subsystem label into a
// 64-bit seed.
func DeterministicSeedValue(rootSeed, label string) int64 {
	hasher := fnv.New64a()
	hasher.Write([]byte(rootSeed))
	hasher.Write([]byte{0})
	hasher.Write([]byte(label))
	sum := hasher.Sum64()
	if sum == 0 {
		sum = 1
	}
	return int64(sum)
}

// NewDeterministicRNG is the default RNGFactory.
func NewDeterministicRNG(rootSeed, label string) *rand.Rand {
	return rand.New(rand.NewSource(DeterministicSeedValue(rootSeed, label)))
}

// TickClock is the world time resource.
type TickClock struct {
	Tick    uint64
	Delta   float64 // seconds, true elapsed ΔT for this tick
	Elapsed float64 // seconds since match start
	Started time.Time
}

// DamagePacket is a raw, pre-mitigation damage intent staged by the attack
// systems and resolved by the damage stage.
type DamagePacket struct {
	Target ecs.Entity
	Source ecs.Entity
	Amount float64
	Type   outcome.DamageType
	// Multiplier carries the pre-mitigation attack-proc bonus. Zero means
	// no bonus. The structure multiplier is not stored here; the damage
	// stage applies it on top for tower targets.
	Multiplier float64
	Pos        outcome.Vec2
}

// Applied is one processed outcome recorded for egress and replay.
type Applied struct {
	outcome.Outcome
	HPAfter float64
	Levels  int // levels gained, GainXP only
	Tick    uint64
}

// Deps bundles the runtime dependencies a World needs.
type Deps struct {
	Publisher logging.Publisher
	Metrics   *telemetry.Counters
	Logger    telemetry.Logger
	RNG       RNGFactory
}

// Config selects the world seed and spatial tuning.
type Config struct {
	Seed            string
	SpatialCellSize float64
	SpatialWorkers  int
	VisionGrid      float64
}

func (cfg Config) normalized() Config {
	if cfg.Seed == "" {
		cfg.Seed = DefaultSeed
	}
	if cfg.SpatialCellSize <= 0 {
		cfg.SpatialCellSize = 64
	}
	if cfg.SpatialWorkers < 1 {
		cfg.SpatialWorkers = 1
	}
	if cfg.VisionGrid <= 0 {
		cfg.VisionGrid = 25
	}
	return cfg
}

// World owns the component stores, the shared resources and the static data.
// Systems borrow pieces of it according to their declared access sets; entity
// creation and destruction happen exclusively in ProcessOutcomes.
type World struct {
	alloc    *ecs.Allocator
	storages []ecs.Storage

	Positions  *ecs.Dense[Position]
	Velocities *ecs.Dense[Velocity]
	Factions   *ecs.Dense[Faction]
	Combat     *ecs.Dense[CombatStats]
	Attacks    *ecs.Dense[Attack]
	Mobilities *ecs.Dense[Mobility]

	Heroes      *ecs.Sparse[Hero]
	Creeps      *ecs.Sparse[Creep]
	Towers      *ecs.Sparse[Tower]
	Projectiles *ecs.Sparse[Projectile]
	Skills      *ecs.Sparse[Skill]
	Books       *ecs.Sparse[AbilityBook]
	Visions     *ecs.Sparse[Vision]
	DeathMarks  *ecs.Sparse[DeathMark]
	Lifetimes   *ecs.Sparse[Lifetime]
	Stops       *ecs.Sparse[Stop]

	Clock     TickClock
	Static    *StaticWorld
	Archetypes ArchetypeSet
	Abilities  *ability.Registry
	Generators *ability.Generators
	Modifiers  *ModifierSet

	Index         *spatial.Index
	VisionEngine  *vision.Engine
	VisionResults map[ecs.Entity]*vision.Result

	SkillRequests []ability.Request
	DamageQueue   []DamagePacket
	Outcomes      *outcome.Queue
	Applied       []Applied
	Rejections    []SkillRejection
	Casts         []SkillCast

	WaveState WaveState

	players          map[string]ecs.Entity
	playerArchetypes map[string]string
	bases            map[FactionID]ecs.Entity
	respawns         []pendingRespawn
	pendingLevel     map[string]pendingRespawn

	config    Config
	seed      string
	rngByName map[string]*rand.Rand
	rngFactory RNGFactory

	publisher logging.Publisher
	metrics   *telemetry.Counters
	logger    telemetry.Logger
}

// SkillCast journals one successful cast for the egress batch.
type SkillCast struct {
	PlayerID  string
	Slot      string
	AbilityID string
	Toggled   bool
	Tick      uint64
}

// SkillRejection is the typed, non-error cast refusal routed to the caster.
type SkillRejection struct {
	PlayerID  string
	Slot      string
	AbilityID string
	Reason    string
	Tick      uint64
}

// WaveState tracks the spawn schedule cursor across ticks.
type WaveState struct {
	Wave    int
	Cursors []int // per wave-path index into its creep list
}

type pendingRespawn struct {
	playerID  string
	archetype string
	level     int
	xp        int
	due       float64 // Clock.Elapsed deadline
}

// New constructs a world over validated static data and registries.
func New(cfg Config, static *StaticWorld, archetypes ArchetypeSet, abilities *ability.Registry, deps Deps) *World {
	cfg = cfg.normalized()
	if static == nil {
		static = &StaticWorld{Paths: map[string]*Path{}}
	}
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	if deps.RNG == nil {
		deps.RNG = NewDeterministicRNG
	}
	if deps.Logger == nil {
		deps.Logger = telemetry.LoggerFunc(nil)
	}

	w := &World{
		alloc: ecs.NewAllocator(),

		Positions:  ecs.NewDense[Position](),
		Velocities: ecs.NewDense[Velocity](),
		Factions:   ecs.NewDense[Faction](),
		Combat:     ecs.NewDense[CombatStats](),
		Attacks:    ecs.NewDense[Attack](),
		Mobilities: ecs.NewDense[Mobility](),

		Heroes:      ecs.NewSparse[Hero](),
		Creeps:      ecs.NewSparse[Creep](),
		Towers:      ecs.NewSparse[Tower](),
		Projectiles: ecs.NewSparse[Projectile](),
		Skills:      ecs.NewSparse[Skill](),
		Books:       ecs.NewSparse[AbilityBook](),
		Visions:     ecs.NewSparse[Vision](),
		DeathMarks:  ecs.NewSparse[DeathMark](),
		Lifetimes:   ecs.NewSparse[Lifetime](),
		Stops:       ecs.NewSparse[Stop](),

		Static:     static,
		Archetypes: archetypes,
		Abilities:  abilities,
		Generators: ability.NewGenerators(),
		Modifiers:  NewModifierSet(),

		Index: spatial.NewIndex(static.Bounds.MinX, static.Bounds.MinY, cfg.SpatialCellSize, cfg.SpatialWorkers),
		VisionEngine: vision.NewEngine(static.Bounds, static.Obstacles, vision.Config{
			GridCellSize: cfg.VisionGrid,
			WithRaster:   true,
		}),
		VisionResults: make(map[ecs.Entity]*vision.Result),

		Outcomes: outcome.NewQueue(),

		players:          make(map[string]ecs.Entity),
		playerArchetypes: make(map[string]string),
		bases:            make(map[FactionID]ecs.Entity),
		pendingLevel:     make(map[string]pendingRespawn),
		config:     cfg,
		seed:       cfg.Seed,
		rngByName:  make(map[string]*rand.Rand),
		rngFactory: deps.RNG,

		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
	}
	w.storages = []ecs.Storage{
		w.Positions, w.Velocities, w.Factions, w.Combat, w.Attacks, w.Mobilities,
		w.Heroes, w.Creeps, w.Towers, w.Projectiles, w.Skills, w.Books,
		w.Visions, w.DeathMarks, w.Lifetimes, w.Stops,
	}
	w.Clock = TickClock{Started: time.Now()}
	return w
}

// Seed returns the world's deterministic root seed.
func (w *World) Seed() string { return w.seed }

// RNG returns the named deterministic substream, creating it on first use.
func (w *World) RNG(label string) *rand.Rand {
	if rng, ok := w.rngByName[label]; ok {
		return rng
	}
	rng := w.rngFactory(w.seed, label)
	w.rngByName[label] = rng
	return rng
}

// Publisher exposes the event pipeline to systems.
func (w *World) Publisher() logging.Publisher { return w.publisher }

// Metrics exposes the telemetry counters; may be nil.
func (w *World) Metrics() *telemetry.Counters { return w.metrics }

// Logger exposes the fallback logger.
func (w *World) Logger() telemetry.Logger { return w.logger }

// Alive reports whether an entity handle is current.
func (w *World) Alive(e ecs.Entity) bool { return w.alloc.Alive(e) }

// LiveCount reports the number of live entities.
func (w *World) LiveCount() int { return w.alloc.Len() }

// Player resolves a player id to its hero entity.
func (w *World) Player(playerID string) (ecs.Entity, bool) {
	e, ok := w.players[playerID]
	return e, ok
}

// Base returns the base entity of a faction, if one stands.
func (w *World) Base(f FactionID) (ecs.Entity, bool) {
	e, ok := w.bases[f]
	if !ok || !w.Alive(e) {
		return ecs.Nil, false
	}
	return e, true
}

// EnemyBase returns the base the given faction's creeps march on.
func (w *World) EnemyBase(f FactionID) (ecs.Entity, bool) {
	switch f {
	case FactionRadiant:
		return w.Base(FactionDire)
	case FactionDire:
		return w.Base(FactionRadiant)
	default:
		return ecs.Nil, false
	}
}

// EffectiveAttackRange folds modifiers into the base attack range.
func (w *World) EffectiveAttackRange(e ecs.Entity, atk *Attack) float64 {
	return atk.Range + w.Modifiers.Add(e, outcome.AttrAttackRange)
}

// EffectiveAttackDamage folds flat bonuses and damage multipliers.
func (w *World) EffectiveAttackDamage(e ecs.Entity, atk *Attack) float64 {
	return (atk.Damage + w.Modifiers.Add(e, outcome.AttrAttackDamage)) * w.Modifiers.Mul(e, outcome.AttrDamageMultiplier)
}

// EffectiveCadence folds cadence multipliers; never below zero.
func (w *World) EffectiveCadence(e ecs.Entity, atk *Attack) float64 {
	cadence := atk.Cadence * w.Modifiers.Mul(e, outcome.AttrCadenceMultiplier)
	if cadence < 0 {
		cadence = 0
	}
	return cadence
}

// EffectiveMoveSpeed folds move-speed modifiers; zero while stopped.
func (w *World) EffectiveMoveSpeed(e ecs.Entity) float64 {
	if stop := w.Stops.Mut(e); stop != nil && stop.Remaining > 0 {
		return 0
	}
	base := 0.0
	if mob, ok := w.Mobilities.Get(e); ok {
		base = mob.Speed
	}
	speed := base*w.Modifiers.Mul(e, outcome.AttrMoveMultiplier) + w.Modifiers.Add(e, outcome.AttrMoveSpeed)
	if speed < 0 {
		speed = 0
	}
	return speed
}

// EntityRef labels an entity for the event pipeline.
func (w *World) EntityRef(e ecs.Entity) logging.EntityRef {
	kind := logging.EntityKindUnknown
	switch {
	case w.Heroes.Has(e):
		kind = logging.EntityKindHero
	case w.Creeps.Has(e):
		kind = logging.EntityKindCreep
	case w.Towers.Has(e) || w.isBase(e):
		kind = logging.EntityKindTower
	case w.Projectiles.Has(e):
		kind = logging.EntityKindProjectile
	case w.Skills.Has(e):
		kind = logging.EntityKindSkill
	}
	return logging.EntityRef{ID: e.String(), Kind: kind}
}

// RebuildIndex refreshes the spatial index from current positions. The
// nearby system calls this every tick; bootstrap calls it once so the first
// tick's attackers see the initial placement.
func (w *World) RebuildIndex() {
	w.Index.Reset()
	w.Positions.Each(func(e ecs.Entity, pos *Position) {
		if !w.Alive(e) || w.Projectiles.Has(e) {
			return
		}
		faction, ok := w.Factions.Get(e)
		if !ok {
			return
		}
		w.Index.Add(e, pos.X, pos.Y, uint8(faction.ID))
	})
	w.Index.Build()
}

// ArchetypeOf resolves the template an entity was stamped from, or nil.
func (w *World) ArchetypeOf(e ecs.Entity) *Archetype {
	if creep, ok := w.Creeps.Get(e); ok {
		return w.Archetypes[creep.Archetype]
	}
	if tower, ok := w.Towers.Get(e); ok {
		return w.Archetypes[tower.Archetype]
	}
	if w.Heroes.Has(e) {
		if faction, ok := w.Factions.Get(e); ok && faction.Owner != "" {
			return w.Archetypes[w.playerArchetypes[faction.Owner]]
		}
	}
	return nil
}

func (w *World) isBase(e ecs.Entity) bool {
	for _, base := range w.bases {
		if base == e {
			return true
		}
	}
	return false
}
