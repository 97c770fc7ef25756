package systems

import (
	"context"
	"math"

	"warlane/server/internal/ability"
	"warlane/server/internal/ecs"
	"warlane/server/internal/outcome"
	"warlane/server/internal/sim"
	"warlane/server/internal/world"
	"warlane/server/logging"
)

// Player drains the command queue, validates each command against the
// sender's hero, and turns them into velocity writes, skill requests and
// skill upgrades. It is the only system writing hero Velocity.
type Player struct{}

func (Player) Name() string { return "player" }

func (Player) Access() sim.Access {
	return sim.Access{
		Read: []world.ComponentKey{
			world.KeyPosition, world.KeyFaction, world.KeyAbilityBook,
			world.KeyAttack, world.KeyMobility, world.KeyStop,
			world.KeyDeathMark, world.KeyCommandQueue,
		},
		Write: []world.ComponentKey{
			world.KeyVelocity, world.KeySkill, world.KeySkillRequests,
		},
	}
}

func (Player) Run(ctx *sim.Ctx) {
	w := ctx.World
	for _, cmd := range ctx.Commands {
		if cmd.Type == sim.CommandJoin {
			runJoin(w, cmd)
			continue
		}
		hero, ok := w.Player(cmd.PlayerID)
		if !ok || !w.Alive(hero) || w.DeathMarks.Has(hero) {
			rejectCommand(w, cmd, "unknown_or_dead_player")
			continue
		}
		switch cmd.Type {
		case sim.CommandMove:
			runMove(w, hero, cmd)
		case sim.CommandAttack:
			runAttackOrder(w, hero, cmd)
		case sim.CommandCast:
			stageCast(w, hero, cmd)
		case sim.CommandUpgrade:
			runUpgrade(w, hero, cmd)
		case sim.CommandPing:
			// Latency probe; answered by the transport layer.
		default:
			rejectCommand(w, cmd, "unknown_action")
		}
	}
}

// runJoin spawns a hero for a first-seen player through the outcome stage.
// Duplicate joins are dropped.
func runJoin(w *world.World, cmd sim.Command) {
	if cmd.Join == nil || cmd.Join.Archetype == "" {
		rejectCommand(w, cmd, "missing_join_payload")
		return
	}
	if w.PlayerKnown(cmd.PlayerID) {
		return
	}
	arch, ok := w.Archetypes[cmd.Join.Archetype]
	if !ok || arch.Kind != "hero" {
		rejectCommand(w, cmd, "unknown_hero_archetype")
		return
	}
	spawnAt := outcome.Vec2{}
	if arch.Respawn != nil {
		spawnAt = arch.Respawn.At
	}
	w.RegisterPlayer(cmd.PlayerID, arch.Name, spawnAt, world.ParseFaction(arch.Faction))
	w.Metrics().RecordCommand(true)
}

func rejectCommand(w *world.World, cmd sim.Command, reason string) {
	w.Metrics().RecordCommand(false)
	w.Publisher().Publish(context.Background(), logging.Event{
		Type:     logging.EventCommandRejected,
		Tick:     w.Clock.Tick,
		Actor:    logging.EntityRef{ID: cmd.PlayerID, Kind: logging.EntityKindHero},
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetwork,
		Payload:  map[string]any{"action": string(cmd.Type), "reason": reason},
		TraceID:  cmd.TraceID,
	})
}

func runMove(w *world.World, hero ecs.Entity, cmd sim.Command) {
	if cmd.Move == nil {
		rejectCommand(w, cmd, "missing_move_payload")
		return
	}
	vel := w.Velocities.Mut(hero)
	if vel == nil {
		return
	}
	length := math.Hypot(cmd.Move.DX, cmd.Move.DY)
	if length == 0 {
		vel.X, vel.Y = 0, 0
		return
	}
	speed := w.EffectiveMoveSpeed(hero)
	vel.X = cmd.Move.DX / length * speed
	vel.Y = cmd.Move.DY / length * speed
}

// runAttackOrder walks the hero toward the target; the hero system opens
// fire once the target is inside effective attack range.
func runAttackOrder(w *world.World, hero ecs.Entity, cmd sim.Command) {
	if cmd.Attack == nil {
		rejectCommand(w, cmd, "missing_attack_payload")
		return
	}
	target := ecs.Parse(cmd.Attack.TargetID)
	if !w.Alive(target) {
		rejectCommand(w, cmd, "unknown_target")
		return
	}
	heroPos, ok := w.Positions.Get(hero)
	if !ok {
		return
	}
	targetPos, ok := w.Positions.Get(target)
	if !ok {
		return
	}
	vel := w.Velocities.Mut(hero)
	if vel == nil {
		return
	}
	dx := targetPos.X - heroPos.X
	dy := targetPos.Y - heroPos.Y
	dist := math.Hypot(dx, dy)
	atk, hasAttack := w.Attacks.Get(hero)
	if hasAttack && dist <= w.EffectiveAttackRange(hero, &atk) {
		vel.X, vel.Y = 0, 0
		return
	}
	if dist == 0 {
		return
	}
	speed := w.EffectiveMoveSpeed(hero)
	vel.X = dx / dist * speed
	vel.Y = dy / dist * speed
}

func stageCast(w *world.World, hero ecs.Entity, cmd sim.Command) {
	if cmd.Cast == nil {
		rejectCommand(w, cmd, "missing_cast_payload")
		return
	}
	book, ok := w.Books.Get(hero)
	if !ok {
		rejectCommand(w, cmd, "no_ability_book")
		return
	}
	skillEnt, ok := book.Slots[cmd.Cast.Slot]
	if !ok {
		rejectCommand(w, cmd, "empty_slot")
		return
	}
	skill, ok := w.Skills.Get(skillEnt)
	if !ok {
		rejectCommand(w, cmd, "empty_slot")
		return
	}
	req := ability.Request{
		Caster:    hero,
		PlayerID:  cmd.PlayerID,
		Slot:      cmd.Cast.Slot,
		AbilityID: skill.AbilityID,
		Level:     skill.Level,
	}
	if cmd.Cast.TargetID != "" {
		req.TargetEntity = ecs.Parse(cmd.Cast.TargetID)
	}
	req.TargetPoint = cmd.Cast.Point
	req.TargetDir = cmd.Cast.Dir
	w.SkillRequests = append(w.SkillRequests, req)
	w.Metrics().RecordCommand(true)
}

func runUpgrade(w *world.World, hero ecs.Entity, cmd sim.Command) {
	if cmd.Upgrade == nil {
		rejectCommand(w, cmd, "missing_upgrade_payload")
		return
	}
	book, ok := w.Books.Get(hero)
	if !ok {
		rejectCommand(w, cmd, "no_ability_book")
		return
	}
	skillEnt, ok := book.Slots[cmd.Upgrade.Slot]
	if !ok {
		rejectCommand(w, cmd, "empty_slot")
		return
	}
	skill := w.Skills.Mut(skillEnt)
	if skill == nil {
		rejectCommand(w, cmd, "empty_slot")
		return
	}
	cfg := w.Abilities.Get(skill.AbilityID)
	if cfg == nil {
		rejectCommand(w, cmd, "unknown_ability")
		return
	}
	if skill.Level >= cfg.MaxLevel {
		rejectCommand(w, cmd, "max_level")
		return
	}
	skill.Level++
	w.Metrics().RecordCommand(true)
}
