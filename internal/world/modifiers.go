package world

import (
	"warlane/server/internal/ecs"
	"warlane/server/internal/outcome"
)

// Modifier is a timed (or toggled-indefinite) attribute shift. Remaining <= 0
// means the modifier stays until removed by key.
type Modifier struct {
	Attribute outcome.Attribute
	Delta     float64
	Remaining float64
	Key       string
	Timed     bool
}

// ModifierSet tracks per-entity modifiers. Multiplier attributes compose by
// product, everything else by sum.
type ModifierSet struct {
	byEntity map[ecs.Entity][]Modifier
}

// NewModifierSet constructs an empty set.
func NewModifierSet() *ModifierSet {
	return &ModifierSet{byEntity: make(map[ecs.Entity][]Modifier)}
}

func isMultiplier(attr outcome.Attribute) bool {
	switch attr {
	case outcome.AttrMoveMultiplier, outcome.AttrCadenceMultiplier, outcome.AttrDamageMultiplier:
		return true
	}
	return false
}

// Apply attaches a modifier. A keyed modifier replaces any existing modifier
// with the same key, so re-toggling never stacks.
func (m *ModifierSet) Apply(e ecs.Entity, mod Modifier) {
	if mod.Key != "" {
		m.RemoveKey(e, mod.Key)
	}
	m.byEntity[e] = append(m.byEntity[e], mod)
}

// RemoveKey drops every modifier with the given key.
func (m *ModifierSet) RemoveKey(e ecs.Entity, key string) {
	mods := m.byEntity[e]
	kept := mods[:0]
	for _, mod := range mods {
		if mod.Key != key {
			kept = append(kept, mod)
		}
	}
	if len(kept) == 0 {
		delete(m.byEntity, e)
	} else {
		m.byEntity[e] = kept
	}
}

// Drop discards every modifier on the entity (despawn path).
func (m *ModifierSet) Drop(e ecs.Entity) {
	delete(m.byEntity, e)
}

// Tick advances timed modifiers and expires the ones that ran out.
func (m *ModifierSet) Tick(dt float64) {
	for e, mods := range m.byEntity {
		kept := mods[:0]
		for _, mod := range mods {
			if mod.Timed {
				mod.Remaining -= dt
				if mod.Remaining <= 0 {
					continue
				}
			}
			kept = append(kept, mod)
		}
		if len(kept) == 0 {
			delete(m.byEntity, e)
		} else {
			m.byEntity[e] = kept
		}
	}
}

// Add sums the additive deltas for an attribute.
func (m *ModifierSet) Add(e ecs.Entity, attr outcome.Attribute) float64 {
	sum := 0.0
	for _, mod := range m.byEntity[e] {
		if mod.Attribute == attr && !isMultiplier(attr) {
			sum += mod.Delta
		}
	}
	return sum
}

// Mul multiplies the multiplier deltas for an attribute; 1 when none apply.
func (m *ModifierSet) Mul(e ecs.Entity, attr outcome.Attribute) float64 {
	product := 1.0
	for _, mod := range m.byEntity[e] {
		if mod.Attribute == attr && isMultiplier(attr) {
			product *= mod.Delta
		}
	}
	return product
}

// Count reports how many modifiers the entity carries.
func (m *ModifierSet) Count(e ecs.Entity) int {
	return len(m.byEntity[e])
}
