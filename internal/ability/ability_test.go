package ability

import (
	"testing"

	"warlane/server/internal/ecs"
	"warlane/server/internal/outcome"
)

func sniperConfig() Config {
	return Config{
		ID:         "sniper_mode",
		Behavior:   BehaviorToggle,
		TargetKind: TargetNone,
		MaxLevel:   1,
		Levels: []LevelData{{
			Cooldown: 0,
			Cost:     0,
			Properties: map[string]float64{
				"range_bonus":        350,
				"move_multiplier":    0.3,
				"cadence_multiplier": 0.7,
			},
		}},
	}
}

func TestBuildRegistryRejectsDuplicatesAndBadRows(t *testing.T) {
	valid := sniperConfig()
	if _, err := BuildRegistry([]Config{valid, valid}); err == nil {
		t.Fatal("duplicate ids must be rejected")
	}

	bad := sniperConfig()
	bad.MaxLevel = 3
	if _, err := BuildRegistry([]Config{bad}); err == nil {
		t.Fatal("max_level beyond per-level rows must be rejected")
	}

	charged := sniperConfig()
	charged.MaxCharges = 2
	if _, err := BuildRegistry([]Config{charged}); err == nil {
		t.Fatal("toggled abilities may not hold charges")
	}
}

func TestValidateGates(t *testing.T) {
	caster := ecs.Entity{Index: 1, Generation: 1}
	target := ecs.Entity{Index: 2, Generation: 1}
	cfg := &Config{
		ID:         "matchlock_gun",
		Behavior:   BehaviorActive,
		TargetKind: TargetUnit,
		MaxLevel:   2,
		Levels: []LevelData{
			{Cooldown: 8, Cost: 50, Range: 700, Damage: 120},
			{Cooldown: 7, Cost: 60, Range: 750, Damage: 190},
		},
	}
	req := Request{Caster: caster, AbilityID: cfg.ID, TargetEntity: target}

	cases := []struct {
		name  string
		state CastState
		want  RejectReason
	}{
		{"not learned", CastState{Level: 0, MP: 100}, RejectNotLearned},
		{"on cooldown", CastState{Level: 1, CooldownResidue: 1.5, MP: 100}, RejectOnCooldown},
		{"no mana", CastState{Level: 1, MP: 10}, RejectNoMana},
		{"out of range", CastState{Level: 1, MP: 100, DistanceToTarget: 700.01}, RejectOutOfRange},
		{"range boundary inclusive", CastState{Level: 1, MP: 100, DistanceToTarget: 700}, ""},
		{"ok", CastState{Level: 1, MP: 100, DistanceToTarget: 300}, ""},
	}
	for _, tc := range cases {
		if got := Validate(cfg, req, tc.state); got != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}

	missingTarget := Request{Caster: caster, AbilityID: cfg.ID}
	if got := Validate(cfg, missingTarget, CastState{Level: 1, MP: 100}); got != RejectBadTarget {
		t.Fatalf("unit-target cast without target: got %q", got)
	}
}

func TestValidateRejectsPassiveCasts(t *testing.T) {
	cfg := &Config{
		ID:         "rain_iron_cannon",
		Behavior:   BehaviorPassive,
		TargetKind: TargetPassive,
		MaxLevel:   1,
		Levels:     []LevelData{{Properties: map[string]float64{"proc_chance": 0.45}}},
	}
	if got := Validate(cfg, Request{}, CastState{Level: 1}); got != RejectPassive {
		t.Fatalf("expected passive rejection, got %q", got)
	}
}

func TestToggleOffBypassesCostAndCooldown(t *testing.T) {
	cfg := sniperConfig()
	state := CastState{Level: 1, Toggled: true, CooldownResidue: 3, MP: 0}
	if got := Validate(&cfg, Request{}, state); got != "" {
		t.Fatalf("toggling off must always be legal, got %q", got)
	}
}

func TestSniperModeGeneratorFlipsModifiers(t *testing.T) {
	cfg := sniperConfig()
	gens := NewGenerators()
	req := Request{Caster: ecs.Entity{Index: 1, Generation: 1}}

	on := gens.For(cfg.ID)(&cfg, cfg.Level(1), req, true)
	if len(on) != 3 {
		t.Fatalf("expected 3 modifiers, got %d", len(on))
	}
	byAttr := map[outcome.Attribute]Effect{}
	for _, e := range on {
		if e.Kind != EffectStatusModifier || e.Remove {
			t.Fatalf("toggle-on must apply modifiers, got %+v", e)
		}
		byAttr[e.Attribute] = e
	}
	if byAttr[outcome.AttrAttackRange].Delta != 350 {
		t.Fatalf("expected +350 range, got %+v", byAttr[outcome.AttrAttackRange])
	}
	if byAttr[outcome.AttrMoveMultiplier].Delta != 0.3 {
		t.Fatalf("expected 0.3 move multiplier, got %+v", byAttr[outcome.AttrMoveMultiplier])
	}

	off := gens.For(cfg.ID)(&cfg, cfg.Level(1), req, false)
	for _, e := range off {
		if !e.Remove {
			t.Fatalf("toggle-off must remove modifiers, got %+v", e)
		}
	}
}

func TestGenericGeneratorCoversConfigOnlyAbilities(t *testing.T) {
	cfg := &Config{
		ID:         "frost_bolt",
		Behavior:   BehaviorActive,
		TargetKind: TargetUnit,
		MaxLevel:   1,
		Levels:     []LevelData{{Cooldown: 4, Cost: 40, Range: 600, Damage: 90}},
	}
	gens := NewGenerators()
	target := ecs.Entity{Index: 9, Generation: 1}
	effects := gens.For(cfg.ID)(cfg, cfg.Level(1), Request{TargetEntity: target}, true)
	if len(effects) != 1 || effects[0].Kind != EffectDamage || effects[0].Amount != 90 {
		t.Fatalf("unexpected generic effects %+v", effects)
	}
}

func TestZeroHealEffectIsStillEmittedByExplicitConfig(t *testing.T) {
	// A generator returning Heal(self, 0) must survive to the outcome queue
	// untouched; the cascade bound is enforced downstream.
	cfg := &Config{
		ID:         "hollow_prayer",
		Behavior:   BehaviorActive,
		TargetKind: TargetNone,
		MaxLevel:   1,
		Levels:     []LevelData{{}},
	}
	gens := NewGenerators()
	gens.Register("hollow_prayer", func(_ *Config, _ LevelData, req Request, _ bool) []Effect {
		return []Effect{{Kind: EffectHeal, Target: req.Caster, Amount: 0}}
	})
	effects := gens.For(cfg.ID)(cfg, cfg.Level(1), Request{Caster: ecs.Entity{Index: 1, Generation: 1}}, true)
	if len(effects) != 1 || effects[0].Kind != EffectHeal || effects[0].Amount != 0 {
		t.Fatalf("expected one zero heal, got %+v", effects)
	}
}
