package world

// Attribute-derived stat coefficients. Strength feeds hit points, intellect
// feeds mana; the primary attribute feeds attack damage.
const (
	hpPerStrength     = 20.0
	hpRegenPerStr     = 0.1
	mpPerIntellect    = 12.0
	mpRegenPerInt     = 0.05
	damagePerPrimary  = 1.0
	armorPerAgility   = 0.16
	maxHeroLevel      = 25
)

// xpToNext is the experience required to climb from the given level to the
// next one.
func xpToNext(level int) int {
	return 100 * level
}

// primaryValue reads the hero's primary attribute.
func primaryValue(h *Hero) float64 {
	switch h.Primary {
	case AttrStrength:
		return h.Strength
	case AttrAgility:
		return h.Agility
	default:
		return h.Intellect
	}
}

// grantXP accumulates experience and applies any level-ups: attribute growth
// first, then a derived-stat recomputation. Gaining a level also restores the
// pools by the amount their maxima grew. Returns the number of levels gained.
func grantXP(h *Hero, stats *CombatStats, attack *Attack, amount int) int {
	if amount <= 0 {
		return 0
	}
	h.XP += amount
	levels := 0
	for h.Level < maxHeroLevel && h.XP >= xpToNext(h.Level) {
		h.XP -= xpToNext(h.Level)
		h.Level++
		levels++
		h.Strength += h.StrengthGrowth
		h.Agility += h.AgilityGrowth
		h.Intellect += h.IntellectGrowth
	}
	if levels > 0 {
		recomputeDerived(h, stats, attack, levels)
	}
	return levels
}

// recomputeDerived folds attribute growth into combat stats.
func recomputeDerived(h *Hero, stats *CombatStats, attack *Attack, levels int) {
	grownHP := h.StrengthGrowth * hpPerStrength * float64(levels)
	grownMP := h.IntellectGrowth * mpPerIntellect * float64(levels)

	stats.MaxHP += grownHP
	stats.HP += grownHP
	if stats.HP > stats.MaxHP {
		stats.HP = stats.MaxHP
	}
	stats.MaxMP += grownMP
	stats.MP += grownMP
	if stats.MP > stats.MaxMP {
		stats.MP = stats.MaxMP
	}
	stats.HPRegen += h.StrengthGrowth * hpRegenPerStr * float64(levels)
	stats.MPRegen += h.IntellectGrowth * mpRegenPerInt * float64(levels)
	stats.Armor += h.AgilityGrowth * armorPerAgility * float64(levels)

	if attack != nil {
		var primaryGrowth float64
		switch h.Primary {
		case AttrStrength:
			primaryGrowth = h.StrengthGrowth
		case AttrAgility:
			primaryGrowth = h.AgilityGrowth
		default:
			primaryGrowth = h.IntellectGrowth
		}
		attack.Damage += primaryGrowth * damagePerPrimary * float64(levels)
	}
}
