package world

import (
	"context"
	"math"
	"testing"

	"warlane/server/internal/ability"
	"warlane/server/internal/ecs"
	"warlane/server/internal/outcome"
	"warlane/server/logging"
)

func testArchetypes(t *testing.T) ArchetypeSet {
	t.Helper()
	set, err := BuildArchetypes([]Archetype{
		{
			Name: "cp1", Kind: "creep", Faction: "dire",
			Stats:     CombatStats{HP: 6, MaxHP: 6},
			MoveSpeed: 0,
			Bounty:    25,
		},
		{
			Name: "guard_tower", Kind: "tower", Faction: "radiant",
			Stats:    CombatStats{HP: 500, MaxHP: 500, Armor: 5},
			Attack:   &Attack{Damage: 3, Range: 300, Cadence: 0.5},
			Capacity: 1,
		},
		{
			Name: "saika", Kind: "hero", Faction: "radiant",
			Stats:     CombatStats{HP: 600, MaxHP: 600, MP: 300, MaxMP: 300, Armor: 2},
			Attack:    &Attack{Damage: 50, Range: 600, Cadence: 1, ProjectileSpeed: 0},
			MoveSpeed: 300,
			Respawn:   &RespawnSpec{Delay: 5, At: outcome.Vec2{X: -100, Y: -100}, HPFraction: 0.5},
		},
		{
			Name: "saika_rifleman", Kind: "summon", Faction: "radiant",
			Stats:    CombatStats{HP: 120, MaxHP: 120},
			Duration: 20,
		},
	})
	if err != nil {
		t.Fatalf("BuildArchetypes: %v", err)
	}
	return set
}

func newTestWorld(t *testing.T) *World {
	t.Helper()
	reg, err := ability.BuildRegistry(nil)
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}
	return New(Config{Seed: "test"}, &StaticWorld{Paths: map[string]*Path{}}, testArchetypes(t), reg, Deps{})
}

func spawnCreep(t *testing.T, w *World) ecs.Entity {
	t.Helper()
	w.Outcomes.Push(outcome.Outcome{Kind: outcome.KindSpawn, Archetype: "cp1", Pos: outcome.Vec2{X: 200}})
	if err := w.ProcessOutcomes(); err != nil {
		t.Fatalf("ProcessOutcomes: %v", err)
	}
	var creep ecs.Entity
	w.Creeps.Each(func(e ecs.Entity, _ *Creep) { creep = e })
	if creep.IsNil() {
		t.Fatal("expected a spawned creep")
	}
	return creep
}

func TestDamageClampsAndEmitsDeathOnce(t *testing.T) {
	w := newTestWorld(t)
	creep := spawnCreep(t, w)

	w.Outcomes.Push(outcome.Outcome{
		Kind: outcome.KindDamage, Target: creep,
		Amount: 10, DamageType: outcome.DamagePure,
	})
	if err := w.ProcessOutcomes(); err != nil {
		t.Fatalf("ProcessOutcomes: %v", err)
	}

	if w.Alive(creep) {
		t.Fatal("lethal damage must cascade through Death into Despawn within the tick")
	}
	deaths := 0
	for _, applied := range w.Applied {
		if applied.Kind == outcome.KindDeath {
			deaths++
		}
	}
	if deaths != 1 {
		t.Fatalf("expected exactly one death, got %d", deaths)
	}
}

func TestDespawnedEntityAbsentFromAllStores(t *testing.T) {
	w := newTestWorld(t)
	creep := spawnCreep(t, w)

	w.Outcomes.Push(outcome.Outcome{Kind: outcome.KindDespawn, Target: creep, Reason: outcome.DespawnExpired})
	if err := w.ProcessOutcomes(); err != nil {
		t.Fatalf("ProcessOutcomes: %v", err)
	}

	if w.Positions.Has(creep) || w.Combat.Has(creep) || w.Creeps.Has(creep) || w.Factions.Has(creep) {
		t.Fatal("despawned entity must leave every component store")
	}

	// Reuse bumps the generation.
	w.Outcomes.Push(outcome.Outcome{Kind: outcome.KindSpawn, Archetype: "cp1", Pos: outcome.Vec2{}})
	if err := w.ProcessOutcomes(); err != nil {
		t.Fatalf("ProcessOutcomes: %v", err)
	}
	var reused ecs.Entity
	w.Creeps.Each(func(e ecs.Entity, _ *Creep) { reused = e })
	if reused.Index == creep.Index && reused.Generation <= creep.Generation {
		t.Fatalf("reused index must carry a higher generation: old %v new %v", creep, reused)
	}
}

func TestPhysicalMitigationFormula(t *testing.T) {
	stats := &CombatStats{Armor: 10}
	got := Mitigate(100, outcome.DamagePhysical, stats)
	want := 100 * (1 - 10*0.06/(1+10*0.06))
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("got %.4f, want %.4f", got, want)
	}

	stats = &CombatStats{MagicResist: 40}
	if got := Mitigate(100, outcome.DamageMagical, stats); math.Abs(got-60) > 1e-9 {
		t.Fatalf("magical: got %.4f, want 60", got)
	}

	stats = &CombatStats{MagicResist: 250}
	if got := Mitigate(100, outcome.DamageMagical, stats); math.Abs(got-1) > 1e-9 {
		t.Fatalf("magic resist must clamp below 1, got %.4f", got)
	}

	stats = &CombatStats{Armor: 50, MagicResist: 50}
	if got := Mitigate(100, outcome.DamagePure, stats); got != 100 {
		t.Fatalf("pure damage must pass unmitigated, got %.4f", got)
	}
}

func TestHealAtFullHPIsIdempotent(t *testing.T) {
	w := newTestWorld(t)
	creep := spawnCreep(t, w)
	before := len(w.Applied)

	w.Outcomes.Push(outcome.Outcome{Kind: outcome.KindHeal, Target: creep, Amount: 50})
	if err := w.ProcessOutcomes(); err != nil {
		t.Fatalf("ProcessOutcomes: %v", err)
	}

	stats, _ := w.Combat.Get(creep)
	if stats.HP != stats.MaxHP {
		t.Fatalf("hp must stay at max, got %.1f", stats.HP)
	}
	if len(w.Applied) != before {
		t.Fatal("healing a full pool must not record a state change")
	}
}

func TestHealClampsToMax(t *testing.T) {
	w := newTestWorld(t)
	creep := spawnCreep(t, w)
	w.Combat.Mut(creep).HP = 2

	w.Outcomes.Push(outcome.Outcome{Kind: outcome.KindHeal, Target: creep, Amount: 50})
	if err := w.ProcessOutcomes(); err != nil {
		t.Fatalf("ProcessOutcomes: %v", err)
	}
	stats, _ := w.Combat.Get(creep)
	if stats.HP != stats.MaxHP {
		t.Fatalf("expected clamp to %.1f, got %.1f", stats.MaxHP, stats.HP)
	}
}

func TestCascadeOverflowDropsAndContinues(t *testing.T) {
	reg, err := ability.BuildRegistry(nil)
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}
	var w *World
	// The publisher re-enqueues a fresh damage record on every damaged
	// event, building an unbounded cascade chain.
	chain := logging.PublisherFunc(func(_ context.Context, event logging.Event) {
		if event.Type != logging.EventDamaged {
			return
		}
		var tower ecs.Entity
		w.Towers.Each(func(e ecs.Entity, _ *Tower) { tower = e })
		if !tower.IsNil() {
			w.Outcomes.Push(outcome.Outcome{
				Kind: outcome.KindDamage, Target: tower,
				Amount: 1, DamageType: outcome.DamagePure,
			})
		}
	})
	w = New(Config{Seed: "test"}, &StaticWorld{Paths: map[string]*Path{}}, testArchetypes(t), reg, Deps{Publisher: chain})

	w.Outcomes.Push(outcome.Outcome{Kind: outcome.KindSpawn, Archetype: "guard_tower", Pos: outcome.Vec2{}})
	if err := w.ProcessOutcomes(); err != nil {
		t.Fatalf("ProcessOutcomes: %v", err)
	}
	var tower ecs.Entity
	w.Towers.Each(func(e ecs.Entity, _ *Tower) { tower = e })

	w.Outcomes.Push(outcome.Outcome{
		Kind: outcome.KindDamage, Target: tower,
		Amount: 1, DamageType: outcome.DamagePure,
	})
	if err := w.ProcessOutcomes(); err != nil {
		t.Fatalf("ProcessOutcomes: %v", err)
	}

	if w.Outcomes.Len() != 0 {
		t.Fatal("overflow must drop the remaining records")
	}
	stats, _ := w.Combat.Get(tower)
	damageTaken := stats.MaxHP - stats.HP
	if damageTaken != float64(maxCascades) {
		t.Fatalf("expected exactly %d cascades applied, got %.0f", maxCascades, damageTaken)
	}
}

func TestDeathPaysBountyToKillerHero(t *testing.T) {
	w := newTestWorld(t)
	w.RegisterPlayer("p1", "saika", outcome.Vec2{}, FactionRadiant)
	if err := w.ProcessOutcomes(); err != nil {
		t.Fatalf("ProcessOutcomes: %v", err)
	}
	hero, ok := w.Player("p1")
	if !ok {
		t.Fatal("expected registered player hero")
	}
	creep := spawnCreep(t, w)

	w.Outcomes.Push(outcome.Outcome{
		Kind: outcome.KindDamage, Target: creep, Source: hero,
		Amount: 100, DamageType: outcome.DamagePure,
	})
	if err := w.ProcessOutcomes(); err != nil {
		t.Fatalf("ProcessOutcomes: %v", err)
	}

	h, _ := w.Heroes.Get(hero)
	if h.XP != 25 {
		t.Fatalf("expected 25 bounty xp, got %d", h.XP)
	}
}

func TestHeroRespawnSchedulesAndRestoresLevel(t *testing.T) {
	w := newTestWorld(t)
	w.RegisterPlayer("p1", "saika", outcome.Vec2{}, FactionRadiant)
	if err := w.ProcessOutcomes(); err != nil {
		t.Fatalf("ProcessOutcomes: %v", err)
	}
	hero, _ := w.Player("p1")

	// Level the hero to 2, then kill it.
	w.Outcomes.Push(outcome.Outcome{Kind: outcome.KindGainXP, Target: hero, XP: 120})
	w.Outcomes.Push(outcome.Outcome{Kind: outcome.KindDamage, Target: hero, Amount: 10_000, DamageType: outcome.DamagePure})
	if err := w.ProcessOutcomes(); err != nil {
		t.Fatalf("ProcessOutcomes: %v", err)
	}
	if w.Alive(hero) {
		t.Fatal("dead hero must despawn while awaiting respawn")
	}
	if _, ok := w.Player("p1"); ok {
		t.Fatal("player binding must clear on despawn")
	}

	// Before the delay nothing happens.
	w.Clock.Elapsed = 4.9
	if err := w.ProcessOutcomes(); err != nil {
		t.Fatalf("ProcessOutcomes: %v", err)
	}
	if _, ok := w.Player("p1"); ok {
		t.Fatal("respawn must wait out the archetype delay")
	}

	w.Clock.Elapsed = 5.1
	if err := w.ProcessOutcomes(); err != nil {
		t.Fatalf("ProcessOutcomes: %v", err)
	}
	respawned, ok := w.Player("p1")
	if !ok {
		t.Fatal("hero must respawn after the delay")
	}
	h, _ := w.Heroes.Get(respawned)
	if h.Level != 2 {
		t.Fatalf("respawn must restore level 2, got %d", h.Level)
	}
	stats, _ := w.Combat.Get(respawned)
	if math.Abs(stats.HP-0.5*stats.MaxHP) > 1e-9 {
		t.Fatalf("respawn hp fraction: got %.1f of %.1f", stats.HP, stats.MaxHP)
	}
	pos, _ := w.Positions.Get(respawned)
	if pos.X != -100 || pos.Y != -100 {
		t.Fatalf("respawn location: got (%.0f, %.0f)", pos.X, pos.Y)
	}
}

func TestAttributeModifierExpires(t *testing.T) {
	w := newTestWorld(t)
	creep := spawnCreep(t, w)

	w.Outcomes.Push(outcome.Outcome{
		Kind: outcome.KindAttributeModifier, Target: creep,
		Attribute: outcome.AttrMoveSpeed, Delta: 50, Duration: 1.0, ModifierKey: "haste",
	})
	if err := w.ProcessOutcomes(); err != nil {
		t.Fatalf("ProcessOutcomes: %v", err)
	}
	if got := w.Modifiers.Add(creep, outcome.AttrMoveSpeed); got != 50 {
		t.Fatalf("expected +50 move speed, got %.1f", got)
	}

	w.Modifiers.Tick(0.5)
	if got := w.Modifiers.Add(creep, outcome.AttrMoveSpeed); got != 50 {
		t.Fatalf("modifier expired early, got %.1f", got)
	}
	w.Modifiers.Tick(0.6)
	if got := w.Modifiers.Add(creep, outcome.AttrMoveSpeed); got != 0 {
		t.Fatalf("modifier must expire, got %.1f", got)
	}
}

func TestSummonSpawnCarriesLifetime(t *testing.T) {
	w := newTestWorld(t)
	w.Outcomes.Push(outcome.Outcome{
		Kind: outcome.KindSpawn, Archetype: "saika_rifleman",
		Pos: outcome.Vec2{X: 10}, Faction: "radiant", Duration: 12,
	})
	if err := w.ProcessOutcomes(); err != nil {
		t.Fatalf("ProcessOutcomes: %v", err)
	}
	found := false
	w.Lifetimes.Each(func(_ ecs.Entity, l *Lifetime) {
		found = true
		if l.Remaining != 12 {
			t.Fatalf("expected lifetime 12, got %.1f", l.Remaining)
		}
	})
	if !found {
		t.Fatal("summon must carry a lifetime")
	}
}

func TestUnknownArchetypeSpawnFails(t *testing.T) {
	w := newTestWorld(t)
	w.Outcomes.Push(outcome.Outcome{Kind: outcome.KindSpawn, Archetype: "nope"})
	if err := w.ProcessOutcomes(); err == nil {
		t.Fatal("spawning an unknown archetype must surface an error")
	}
}
