package ability

import (
	"warlane/server/internal/ecs"
	"warlane/server/internal/outcome"
)

// EffectKind enumerates the closed set of effect variants a generator may
// return. Each maps 1:1 onto an outcome variant.
type EffectKind string

const (
	EffectDamage         EffectKind = "Damage"
	EffectHeal           EffectKind = "Heal"
	EffectSummon         EffectKind = "Summon"
	EffectAreaEffect     EffectKind = "AreaEffect"
	EffectStatusModifier EffectKind = "StatusModifier"
	EffectProjectile     EffectKind = "Projectile"
	EffectTeleport       EffectKind = "Teleport"
	EffectBuff           EffectKind = "Buff"
)

// Effect is one typed effect value. Only the fields its Kind names are
// meaningful.
type Effect struct {
	Kind EffectKind

	// Target defaults to the caster when nil targeting applies.
	Target ecs.Entity
	Point  *outcome.Vec2

	Amount     float64
	DamageType outcome.DamageType

	// Summon
	Archetype string
	Count     int

	// AreaEffect
	Radius float64

	// StatusModifier / Buff
	Attribute   outcome.Attribute
	Delta       float64
	ModifierKey string
	Remove      bool

	// Projectile
	Speed float64

	Duration float64
}

// Request is a runtime cast intent, already resolved to entities by the
// player system.
type Request struct {
	Caster       ecs.Entity
	PlayerID     string
	Slot         string
	AbilityID    string
	Level        int
	TargetEntity ecs.Entity
	TargetPoint  *outcome.Vec2
	TargetDir    *outcome.Vec2
}

// RejectReason is the typed, non-error cast refusal surfaced to the caster.
type RejectReason string

const (
	RejectUnknownAbility RejectReason = "unknown_ability"
	RejectNotLearned     RejectReason = "not_learned"
	RejectOnCooldown     RejectReason = "on_cooldown"
	RejectNoCharges      RejectReason = "no_charges"
	RejectNoMana         RejectReason = "insufficient_mp"
	RejectBadTarget      RejectReason = "bad_target"
	RejectOutOfRange     RejectReason = "out_of_range"
	RejectPassive        RejectReason = "passive_ability"
)

// CastState is the per-skill runtime the validator inspects, extracted from
// the Skill component by the skill system.
type CastState struct {
	Level           int
	CooldownResidue float64
	Charges         int
	Toggled         bool
	MP              float64
	// DistanceToTarget is the caster→target range, already computed for
	// unit and point targets; ignored otherwise.
	DistanceToTarget float64
}

// Validate applies the cast gate. It returns the empty reason on success.
// Range checks are boundary-inclusive.
func Validate(cfg *Config, req Request, state CastState) RejectReason {
	if cfg == nil {
		return RejectUnknownAbility
	}
	if cfg.Behavior == BehaviorPassive {
		return RejectPassive
	}
	if state.Level < 1 {
		return RejectNotLearned
	}
	level := cfg.Level(state.Level)

	// Toggling off is always legal: no cost, no cooldown gate.
	if cfg.Behavior == BehaviorToggle && state.Toggled {
		return ""
	}

	if cfg.MaxCharges > 0 {
		if state.Charges < 1 {
			return RejectNoCharges
		}
	} else if state.CooldownResidue > 0 {
		return RejectOnCooldown
	}
	if state.MP < level.Cost {
		return RejectNoMana
	}

	switch cfg.TargetKind {
	case TargetUnit:
		if req.TargetEntity.IsNil() {
			return RejectBadTarget
		}
	case TargetPoint:
		if req.TargetPoint == nil {
			return RejectBadTarget
		}
	case TargetDirection:
		if req.TargetDir == nil {
			return RejectBadTarget
		}
	case TargetNone:
		// nothing required
	}

	if level.Range > 0 && (cfg.TargetKind == TargetUnit || cfg.TargetKind == TargetPoint) {
		if state.DistanceToTarget > level.Range {
			return RejectOutOfRange
		}
	}
	return ""
}
