package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"warlane/server/internal/ability"
	"warlane/server/internal/outcome"
	"warlane/server/internal/world"
)

type entityFile struct {
	Entities []entityDef `json:"Entity"`
}

type entityDef struct {
	Name    string  `json:"Name"`
	Kind    string  `json:"Kind"`
	Faction string  `json:"Faction,omitempty"`

	HP          float64 `json:"HP"`
	MP          float64 `json:"MP,omitempty"`
	Armor       float64 `json:"Armor,omitempty"`
	MagicResist float64 `json:"MagicResist,omitempty"`
	HPRegen     float64 `json:"HPRegen,omitempty"`
	MPRegen     float64 `json:"MPRegen,omitempty"`

	Attack *attackDef `json:"Attack,omitempty"`

	MoveSpeed float64 `json:"MoveSpeed,omitempty"`
	Bounty    int     `json:"Bounty,omitempty"`

	VisionRadius    float64 `json:"VisionRadius,omitempty"`
	VisionHeight    float64 `json:"VisionHeight,omitempty"`
	VisionPrecision int     `json:"VisionPrecision,omitempty"`

	Abilities []string `json:"Abilities,omitempty"`

	Respawn *respawnDef `json:"Respawn,omitempty"`

	ProjectilePolicy string `json:"ProjectilePolicy,omitempty"`

	Capacity  int     `json:"Capacity,omitempty"`
	BuildCost int     `json:"BuildCost,omitempty"`
	Duration  float64 `json:"Duration,omitempty"`
}

type attackDef struct {
	Damage          float64 `json:"Damage"`
	Range           float64 `json:"Range"`
	Cadence         float64 `json:"Cadence"`
	ProjectileSpeed float64 `json:"ProjectileSpeed,omitempty"`
}

type respawnDef struct {
	Delay      float64 `json:"Delay"`
	X          float64 `json:"X"`
	Y          float64 `json:"Y"`
	HPFraction float64 `json:"HPFraction"`
}

// LoadEntities reads an entity archetype file and validates every ability
// reference against the registry.
func LoadEntities(path string, abilities *ability.Registry) (world.ArchetypeSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("entities: %w", err)
	}
	return ParseEntities(raw, abilities)
}

// ParseEntities is LoadEntities over in-memory bytes.
func ParseEntities(raw []byte, abilities *ability.Registry) (world.ArchetypeSet, error) {
	decoder := json.NewDecoder(bytes.NewReader(StripComments(raw)))
	decoder.DisallowUnknownFields()
	var file entityFile
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("entities: %w", err)
	}

	list := make([]world.Archetype, 0, len(file.Entities))
	for _, def := range file.Entities {
		if def.HP <= 0 {
			return nil, fmt.Errorf("entities: %q must have positive HP", def.Name)
		}
		for _, id := range def.Abilities {
			if abilities.Get(id) == nil {
				return nil, fmt.Errorf("entities: %q slots unknown ability %q", def.Name, id)
			}
		}
		arch := world.Archetype{
			Name:    def.Name,
			Kind:    def.Kind,
			Faction: def.Faction,
			Stats: world.CombatStats{
				HP: def.HP, MaxHP: def.HP,
				MP: def.MP, MaxMP: def.MP,
				Armor: def.Armor, MagicResist: def.MagicResist,
				HPRegen: def.HPRegen, MPRegen: def.MPRegen,
			},
			MoveSpeed:        def.MoveSpeed,
			Bounty:           def.Bounty,
			VisionRadius:     def.VisionRadius,
			VisionHeight:     def.VisionHeight,
			VisionPrecision:  def.VisionPrecision,
			Abilities:        def.Abilities,
			ProjectilePolicy: world.TargetLossPolicy(def.ProjectilePolicy),
			Capacity:         def.Capacity,
			BuildCost:        def.BuildCost,
			Duration:         def.Duration,
		}
		if def.Attack != nil {
			arch.Attack = &world.Attack{
				Damage:          def.Attack.Damage,
				Range:           def.Attack.Range,
				Cadence:         def.Attack.Cadence,
				ProjectileSpeed: def.Attack.ProjectileSpeed,
			}
		}
		if def.Respawn != nil {
			arch.Respawn = &world.RespawnSpec{
				Delay:      def.Respawn.Delay,
				At:         outcome.Vec2{X: def.Respawn.X, Y: def.Respawn.Y},
				HPFraction: def.Respawn.HPFraction,
			}
		}
		list = append(list, arch)
	}
	return world.BuildArchetypes(list)
}

type abilityFile struct {
	Abilities []ability.Config `json:"Ability"`
}

// LoadAbilities reads an ability configuration file.
func LoadAbilities(path string) (*ability.Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("abilities: %w", err)
	}
	return ParseAbilities(raw)
}

// ParseAbilities is LoadAbilities over in-memory bytes.
func ParseAbilities(raw []byte) (*ability.Registry, error) {
	decoder := json.NewDecoder(bytes.NewReader(StripComments(raw)))
	decoder.DisallowUnknownFields()
	var file abilityFile
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("abilities: %w", err)
	}
	return ability.BuildRegistry(file.Abilities)
}
