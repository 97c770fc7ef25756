package ability

import "warlane/server/internal/outcome"

// Generator produces the effect list for one successful cast. toggledOn is
// the toggle state after the flip; non-toggles always receive true.
// Generators never mutate world state.
type Generator func(cfg *Config, level LevelData, req Request, toggledOn bool) []Effect

// Generators resolves an ability id to its effect generator; abilities
// without a dedicated branch fall back to the config-driven generic.
type Generators struct {
	byID map[string]Generator
}

// NewGenerators registers the built-in hero-kit branches.
func NewGenerators() *Generators {
	g := &Generators{byID: make(map[string]Generator)}
	g.Register("sniper_mode", sniperMode)
	g.Register("saika_reinforcements", saikaReinforcements)
	g.Register("three_stage_technique", threeStageTechnique)
	g.Register("flame_blade", flameBlade)
	g.Register("fire_dash", fireDash)
	g.Register("flame_assault", flameAssault)
	g.Register("matchlock_gun", matchlockGun)
	return g
}

// Register installs or replaces a generator branch.
func (g *Generators) Register(id string, gen Generator) {
	g.byID[id] = gen
}

// For resolves the generator for an ability.
func (g *Generators) For(id string) Generator {
	if g != nil {
		if gen, ok := g.byID[id]; ok {
			return gen
		}
	}
	return Generic
}

// Generic derives effects from the level row alone: damage against the
// target or point, and healing. Modifier properties in the row are not
// turned into effects. It keeps new config-only abilities working without
// code changes.
func Generic(cfg *Config, level LevelData, req Request, _ bool) []Effect {
	var effects []Effect
	if level.Damage > 0 {
		effect := Effect{
			Kind:       EffectDamage,
			Target:     req.TargetEntity,
			Amount:     level.Damage,
			DamageType: outcome.DamageMagical,
		}
		if req.TargetPoint != nil {
			effect.Kind = EffectAreaEffect
			effect.Point = req.TargetPoint
			effect.Radius = level.Prop("radius", 150)
		}
		effects = append(effects, effect)
	}
	if heal := level.Prop("heal", 0); heal > 0 {
		effects = append(effects, Effect{Kind: EffectHeal, Target: req.Caster, Amount: heal})
	}
	return effects
}

// sniperMode is a toggle: a flat attack-range bonus plus move and attack
// speed multipliers while enabled. Toggling off removes the keyed modifiers.
func sniperMode(cfg *Config, level LevelData, req Request, on bool) []Effect {
	mods := []Effect{
		{
			Kind:        EffectStatusModifier,
			Target:      req.Caster,
			Attribute:   outcome.AttrAttackRange,
			Delta:       level.Prop("range_bonus", 0),
			ModifierKey: cfg.ID + ":range",
		},
		{
			Kind:        EffectStatusModifier,
			Target:      req.Caster,
			Attribute:   outcome.AttrMoveMultiplier,
			Delta:       level.Prop("move_multiplier", 1),
			ModifierKey: cfg.ID + ":move",
		},
		{
			Kind:        EffectStatusModifier,
			Target:      req.Caster,
			Attribute:   outcome.AttrCadenceMultiplier,
			Delta:       level.Prop("cadence_multiplier", 1),
			ModifierKey: cfg.ID + ":cadence",
		},
	}
	if !on {
		for i := range mods {
			mods[i].Remove = true
			mods[i].Delta = 0
		}
	}
	return mods
}

// saikaReinforcements summons rifle troops beside the caster for a duration.
func saikaReinforcements(cfg *Config, level LevelData, req Request, _ bool) []Effect {
	count := int(level.Prop("count", 2))
	return []Effect{{
		Kind:      EffectSummon,
		Target:    req.Caster,
		Archetype: "saika_rifleman",
		Count:     count,
		Duration:  level.Duration,
	}}
}

// threeStageTechnique is charge-based burst damage on a single target.
func threeStageTechnique(cfg *Config, level LevelData, req Request, _ bool) []Effect {
	return []Effect{{
		Kind:       EffectDamage,
		Target:     req.TargetEntity,
		Amount:     level.Damage,
		DamageType: outcome.DamagePhysical,
	}}
}

// flameBlade buffs the caster's attack damage for a duration.
func flameBlade(cfg *Config, level LevelData, req Request, _ bool) []Effect {
	return []Effect{{
		Kind:        EffectBuff,
		Target:      req.Caster,
		Attribute:   outcome.AttrAttackDamage,
		Delta:       level.Prop("damage_bonus", 0),
		Duration:    level.Duration,
		ModifierKey: cfg.ID,
	}}
}

// fireDash teleports the caster toward the target point and burns the
// arrival area.
func fireDash(cfg *Config, level LevelData, req Request, _ bool) []Effect {
	if req.TargetPoint == nil {
		return nil
	}
	effects := []Effect{{
		Kind:   EffectTeleport,
		Target: req.Caster,
		Point:  req.TargetPoint,
	}}
	if level.Damage > 0 {
		effects = append(effects, Effect{
			Kind:       EffectAreaEffect,
			Point:      req.TargetPoint,
			Amount:     level.Damage,
			DamageType: outcome.DamageMagical,
			Radius:     level.Prop("radius", 200),
		})
	}
	return effects
}

// flameAssault hurls a projectile at the target point.
func flameAssault(cfg *Config, level LevelData, req Request, _ bool) []Effect {
	if req.TargetPoint == nil {
		return nil
	}
	return []Effect{{
		Kind:       EffectProjectile,
		Point:      req.TargetPoint,
		Amount:     level.Damage,
		DamageType: outcome.DamageMagical,
		Speed:      level.Prop("projectile_speed", 900),
	}}
}

// matchlockGun snipes a single unit with a slow, hard-hitting projectile.
func matchlockGun(cfg *Config, level LevelData, req Request, _ bool) []Effect {
	if req.TargetEntity.IsNil() {
		return nil
	}
	return []Effect{{
		Kind:       EffectProjectile,
		Target:     req.TargetEntity,
		Amount:     level.Damage,
		DamageType: outcome.DamagePhysical,
		Speed:      level.Prop("projectile_speed", 1200),
	}}
}
