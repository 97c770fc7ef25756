package world

import (
	"fmt"

	"warlane/server/internal/ability"
	"warlane/server/internal/ecs"
	"warlane/server/internal/outcome"
)

// PlayerKnown reports whether the player already has a hero: live, pending
// spawn, or awaiting respawn.
func (w *World) PlayerKnown(playerID string) bool {
	if _, ok := w.players[playerID]; ok {
		return true
	}
	_, ok := w.playerArchetypes[playerID]
	return ok
}

// RegisterPlayer stages a hero spawn for the player. The entity exists once
// the outcome stage of the current tick has run.
func (w *World) RegisterPlayer(playerID, archetype string, pos outcome.Vec2, faction FactionID) {
	w.playerArchetypes[playerID] = archetype
	w.Outcomes.Push(outcome.Outcome{
		Kind:        outcome.KindSpawn,
		Archetype:   archetype,
		Pos:         pos,
		Faction:     faction.String(),
		OwnerPlayer: playerID,
	})
}

// Bootstrap seeds the static sites (bases and towers) through the outcome
// stage so even initial placement follows the single-writer path.
func (w *World) Bootstrap() error {
	for _, base := range w.Static.Bases {
		w.Outcomes.Push(outcome.Outcome{
			Kind:      outcome.KindSpawn,
			Archetype: base.Archetype,
			Pos:       base.Pos,
			Faction:   base.Faction,
		})
	}
	for _, site := range w.Static.Towers {
		w.Outcomes.Push(outcome.Outcome{
			Kind:      outcome.KindSpawn,
			Archetype: site.Archetype,
			Pos:       site.Pos,
			Faction:   site.Faction,
		})
	}
	if err := w.ProcessOutcomes(); err != nil {
		return err
	}
	w.RebuildIndex()
	return nil
}

// spawnFromArchetype stamps an entity from its template. Called only from
// the outcome stage.
func (w *World) spawnFromArchetype(o outcome.Outcome) (ecs.Entity, error) {
	arch, ok := w.Archetypes[o.Archetype]
	if !ok {
		return ecs.Nil, fmt.Errorf("spawn: unknown archetype %q", o.Archetype)
	}

	e := w.alloc.Allocate()
	w.Positions.Set(e, Position{X: o.Pos.X, Y: o.Pos.Y})
	w.Velocities.Set(e, Velocity{})

	factionName := o.Faction
	if factionName == "" {
		factionName = arch.Faction
	}
	w.Factions.Set(e, Faction{ID: ParseFaction(factionName), Owner: o.OwnerPlayer})
	w.Combat.Set(e, arch.Stats)
	if arch.Attack != nil {
		w.Attacks.Set(e, *arch.Attack)
	}
	if arch.MoveSpeed > 0 {
		w.Mobilities.Set(e, Mobility{Speed: arch.MoveSpeed})
	}
	if arch.VisionRadius > 0 {
		precision := arch.VisionPrecision
		if precision <= 0 {
			precision = 360
		}
		w.Visions.Set(e, Vision{
			Radius:    arch.VisionRadius,
			Height:    arch.VisionHeight,
			Precision: precision,
		})
	}

	switch arch.Kind {
	case "hero":
		w.Heroes.Set(e, Hero{
			Level:           1,
			Strength:        arch.Stats.MaxHP / hpPerStrength, // base attributes derive from template pools
			Agility:         arch.Stats.Armor / armorPerAgility,
			Intellect:       arch.Stats.MaxMP / mpPerIntellect,
			Primary:         AttrStrength,
			StrengthGrowth:  2.4,
			AgilityGrowth:   1.8,
			IntellectGrowth: 1.9,
		})
		w.learnAbilities(e, arch)
		if o.OwnerPlayer != "" {
			w.players[o.OwnerPlayer] = e
			w.playerArchetypes[o.OwnerPlayer] = arch.Name
			w.restoreProgressionAfterRespawn(e, arch, o.OwnerPlayer)
		}
	case "creep":
		w.Creeps.Set(e, Creep{
			Archetype: arch.Name,
			PathID:    o.Path,
			Waypoint:  1, // waypoint 0 is the spawn checkpoint itself
			Bounty:    arch.Bounty,
		})
	case "tower":
		w.Towers.Set(e, Tower{
			Archetype: arch.Name,
			BuildCost: arch.BuildCost,
			Capacity:  arch.Capacity,
		})
	case "base":
		w.bases[ParseFaction(factionName)] = e
	case "summon":
		duration := o.Duration
		if duration <= 0 {
			duration = arch.Duration
		}
		if duration > 0 {
			w.Lifetimes.Set(e, Lifetime{Remaining: duration})
		}
	}

	if w.metrics != nil {
		w.metrics.StoreEntitiesLive(w.alloc.Len())
	}
	return e, nil
}

// learnAbilities creates one skill entity per slotted ability. Abilities
// start unlearned; the upgrade command raises their level.
func (w *World) learnAbilities(hero ecs.Entity, arch *Archetype) {
	if len(arch.Abilities) == 0 {
		return
	}
	book := AbilityBook{Slots: make(map[string]ecs.Entity, len(arch.Abilities))}
	for i, abilityID := range arch.Abilities {
		if i >= len(SlotOrder) {
			break
		}
		cfg := w.Abilities.Get(abilityID)
		if cfg == nil {
			continue
		}
		skillEnt := w.alloc.Allocate()
		level := 0
		if cfg.Behavior == ability.BehaviorPassive {
			// Passives come online with the hero; they are never cast.
			level = 1
		}
		w.Skills.Set(skillEnt, Skill{
			AbilityID: abilityID,
			Level:     level,
			Charges:   cfg.MaxCharges,
			Owner:     hero,
		})
		book.Slots[SlotOrder[i]] = skillEnt
	}
	w.Books.Set(hero, book)
}

// restoreProgressionAfterRespawn replays the level a hero held at death and
// applies the archetype's respawn hp fraction.
func (w *World) restoreProgressionAfterRespawn(e ecs.Entity, arch *Archetype, playerID string) {
	pending, ok := w.pendingLevel[playerID]
	if !ok {
		return
	}
	delete(w.pendingLevel, playerID)
	if arch.Respawn == nil {
		return
	}
	hero := w.Heroes.Mut(e)
	stats := w.Combat.Mut(e)
	if hero == nil || stats == nil {
		return
	}
	if levels := pending.level - hero.Level; levels > 0 {
		hero.Level = pending.level
		hero.Strength += hero.StrengthGrowth * float64(levels)
		hero.Agility += hero.AgilityGrowth * float64(levels)
		hero.Intellect += hero.IntellectGrowth * float64(levels)
		recomputeDerived(hero, stats, w.Attacks.Mut(e), levels)
	}
	hero.XP = pending.xp
	stats.HP = arch.Respawn.HPFraction * stats.MaxHP
	stats.MP = stats.MaxMP
}

// despawn removes every component, frees the id, and tears down satellite
// state (modifiers, vision results, skill entities, player binding).
func (w *World) despawn(e ecs.Entity) {
	if !w.alloc.Alive(e) {
		return
	}
	if book, ok := w.Books.Get(e); ok {
		for _, skillEnt := range book.Slots {
			w.despawn(skillEnt)
		}
	}
	if faction, ok := w.Factions.Get(e); ok && faction.Owner != "" {
		if bound, ok := w.players[faction.Owner]; ok && bound == e {
			delete(w.players, faction.Owner)
		}
	}
	for id, base := range w.bases {
		if base == e {
			delete(w.bases, id)
		}
	}
	for _, storage := range w.storages {
		storage.Discard(e)
	}
	w.Modifiers.Drop(e)
	delete(w.VisionResults, e)
	w.alloc.Free(e)
	if w.metrics != nil {
		w.metrics.StoreEntitiesLive(w.alloc.Len())
	}
}
