package net

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warlane/server/internal/ability"
	"warlane/server/internal/ecs"
	"warlane/server/internal/outcome"
	"warlane/server/internal/vision"
	"warlane/server/internal/world"
)

func buildWorld(t *testing.T) *world.World {
	t.Helper()
	abilities, err := ability.BuildRegistry(nil)
	require.NoError(t, err)
	archetypes, err := world.BuildArchetypes([]world.Archetype{
		{
			Name: "scout", Kind: "hero", Faction: "radiant",
			Stats:        world.CombatStats{HP: 600, MaxHP: 600},
			VisionRadius: 1000, VisionHeight: 5, VisionPrecision: 360,
		},
		{
			Name: "cp1", Kind: "creep", Faction: "dire",
			Stats: world.CombatStats{HP: 50, MaxHP: 50},
		},
	})
	require.NoError(t, err)
	static := &world.StaticWorld{
		Bounds: vision.AABB{MinX: -5000, MinY: -5000, MaxX: 5000, MaxY: 5000},
		Paths:  map[string]*world.Path{},
		Obstacles: []vision.Obstacle{{
			Kind: vision.ObstacleCircle, Center: vision.Vec2{X: 300, Y: 0},
			Radius: 50, Height: 20,
		}},
	}
	return world.New(world.Config{Seed: "net"}, static, archetypes, abilities, world.Deps{})
}

func TestBuildBatchesFiltersByVision(t *testing.T) {
	w := buildWorld(t)
	w.RegisterPlayer("p1", "scout", outcome.Vec2{}, world.FactionRadiant)
	require.NoError(t, w.ProcessOutcomes())
	hero, ok := w.Player("p1")
	require.True(t, ok)
	w.Applied = w.Applied[:0] // discard the bootstrap spawn record

	// Compute the hero's vision directly (the vision system does this in a
	// full tick).
	pos, _ := w.Positions.Get(hero)
	v := w.Visions.Mut(hero)
	require.NotNil(t, v)
	w.VisionResults[hero] = w.VisionEngine.Compute(vision.Observer{
		Pos:       vision.Vec2{X: pos.X, Y: pos.Y},
		Height:    v.Height,
		Radius:    v.Radius,
		Precision: v.Precision,
	})

	// One damage event inside vision, one in the obstacle's shadow.
	visible := world.Applied{Outcome: outcome.Outcome{
		Kind: outcome.KindDamage, Target: ecs.Entity{Index: 40, Generation: 1},
		Pos: outcome.Vec2{X: 0, Y: 400}, Amount: 10,
	}, HPAfter: 40, Tick: 1}
	hidden := world.Applied{Outcome: outcome.Outcome{
		Kind: outcome.KindDamage, Target: ecs.Entity{Index: 41, Generation: 1},
		Pos: outcome.Vec2{X: 600, Y: 0}, Amount: 10,
	}, HPAfter: 40, Tick: 1}
	w.Applied = append(w.Applied, visible, hidden)

	batches, spectator := BuildBatches(w, []string{"p1"})

	assert.Len(t, spectator.Events, 2, "spectator sees everything")

	batch := batches["p1"]
	require.NotNil(t, batch.Vision, "player batch must carry a vision update")
	damaged := 0
	for _, event := range batch.Events {
		if event.Type == "damaged" {
			damaged++
			assert.Equal(t, 400.0, event.Y, "only the visible event may pass")
		}
	}
	assert.Equal(t, 1, damaged)
}

func TestBuildBatchesAlwaysIncludesOwnEventsAndRejections(t *testing.T) {
	w := buildWorld(t)
	w.RegisterPlayer("p1", "scout", outcome.Vec2{}, world.FactionRadiant)
	require.NoError(t, w.ProcessOutcomes())
	hero, _ := w.Player("p1")
	w.Applied = w.Applied[:0]

	// An event far outside vision but targeting the player's own hero.
	w.Applied = append(w.Applied, world.Applied{Outcome: outcome.Outcome{
		Kind: outcome.KindDamage, Target: hero,
		Pos: outcome.Vec2{X: 9000, Y: 9000}, Amount: 25,
	}, HPAfter: 575, Tick: 1})
	w.Rejections = append(w.Rejections, world.SkillRejection{
		PlayerID: "p1", Slot: "Q", AbilityID: "sniper_mode", Reason: "on_cooldown",
	})

	batches, _ := BuildBatches(w, []string{"p1"})
	batch := batches["p1"]

	types := map[string]int{}
	for _, event := range batch.Events {
		types[event.Type]++
	}
	assert.Equal(t, 1, types["damaged"], "own damage must bypass the vision filter")
	assert.Equal(t, 1, types["skill_rejected"])
}
