package config

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warlane/server/internal/ability"
	"warlane/server/internal/world"
)

func TestStripCommentsPreservesStringsAndLines(t *testing.T) {
	src := []byte(`{
  // leading comment
  "url": "http://example.com", /* inline
  block */ "note": "a /* not a comment */ b",
  "slash": "tail \" // still string"
}`)
	stripped := StripComments(src)

	assert.Equal(t, strings.Count(string(src), "\n"), strings.Count(string(stripped), "\n"),
		"line count must survive stripping")
	assert.Contains(t, string(stripped), "http://example.com")
	assert.Contains(t, string(stripped), "a /* not a comment */ b")
	assert.Contains(t, string(stripped), `tail \" // still string`)
	assert.NotContains(t, string(stripped), "leading comment")
	assert.NotContains(t, string(stripped), "block */ \"note\"")
}

const abilityJSONC = `{
  // hero kit
  "Ability": [
    {
      "id": "sniper_mode",
      "behavior": "Toggle",
      "target_kind": "NoTarget",
      "max_level": 1,
      "per_level": [
        {"cooldown": 0, "cost": 0, "range": 0,
         "properties": {"range_bonus": 350, "move_multiplier": 0.3}}
      ]
    },
    {
      "id": "matchlock_gun",
      "behavior": "Active",
      "target_kind": "TargetUnit",
      "max_level": 2,
      "per_level": [
        {"cooldown": 8, "cost": 50, "range": 700, "damage": 120},
        {"cooldown": 7, "cost": 60, "range": 750, "damage": 190}
      ]
    }
  ]
}`

func TestParseAbilitiesRoundTrip(t *testing.T) {
	reg, err := ParseAbilities([]byte(abilityJSONC))
	require.NoError(t, err)
	require.Equal(t, 2, reg.Len())

	sniper := reg.Get("sniper_mode")
	require.NotNil(t, sniper)
	assert.Equal(t, ability.BehaviorToggle, sniper.Behavior)
	assert.Equal(t, 350.0, sniper.Level(1).Prop("range_bonus", 0))

	// Round-trip: serialize the configs back out and reparse; the registry
	// must be equal in memory.
	reparsed, err := ParseAbilities(mustMarshalAbilities(t, reg))
	require.NoError(t, err)
	for _, id := range reg.IDs() {
		assert.True(t, reflect.DeepEqual(reg.Get(id), reparsed.Get(id)), "ability %s must round-trip", id)
	}
}

func mustMarshalAbilities(t *testing.T, reg *ability.Registry) []byte {
	t.Helper()
	var sb strings.Builder
	sb.WriteString(`{"Ability": [`)
	for i, id := range reg.IDs() {
		if i > 0 {
			sb.WriteString(",")
		}
		raw, err := json.Marshal(reg.Get(id))
		require.NoError(t, err)
		sb.Write(raw)
	}
	sb.WriteString("]}")
	return []byte(sb.String())
}

const mapJSONC = `{
  /* two-lane test map */
  "CheckPoint": [
    {"Name": "r_start", "Class": "Start", "X": -1000, "Y": 0},
    {"Name": "mid", "Class": "CheckPoint", "X": 0, "Y": 0},
    {"Name": "r_end", "Class": "End", "X": 1000, "Y": 0}
  ],
  "Path": [
    {"Name": "p1", "CheckPoints": ["r_start", "mid", "r_end"]}
  ],
  "Tower": [
    {"Name": "guard_tower", "Faction": "radiant", "X": 500, "Y": 50}
  ],
  "Obstacle": [
    {"Name": "oak", "Kind": "circle", "X": 300, "Y": 0, "Radius": 50, "TallHeight": 20}
  ],
  "CreepWave": [
    {"StartTime": 1, "Detail": [
      {"Path": "p1", "Creeps": [
        {"Time": 0, "Creep": "cp1"},
        {"Time": 2, "Creep": "cp1"}
      ]}
    ]}
  ]
}`

func mapArchetypes(t *testing.T) world.ArchetypeSet {
	t.Helper()
	set, err := world.BuildArchetypes([]world.Archetype{
		{Name: "cp1", Kind: "creep", Stats: world.CombatStats{HP: 6, MaxHP: 6}},
		{Name: "guard_tower", Kind: "tower", Stats: world.CombatStats{HP: 500, MaxHP: 500}},
	})
	require.NoError(t, err)
	return set
}

func TestParseMapResolvesReferences(t *testing.T) {
	static, err := ParseMap([]byte(mapJSONC), mapArchetypes(t))
	require.NoError(t, err)

	path := static.Path("p1")
	require.NotNil(t, path)
	assert.Len(t, path.Points, 3)
	assert.Equal(t, -1000.0, path.Start().X)
	assert.Len(t, static.Towers, 1)
	assert.Len(t, static.Obstacles, 1)
	assert.Len(t, static.Waves, 1)
	assert.True(t, static.Bounds.MinX < -1000 && static.Bounds.MaxX > 1000)
}

func TestParseMapRejectsBadReferences(t *testing.T) {
	bad := strings.Replace(mapJSONC, `"Creep": "cp1"}`, `"Creep": "nope"}`, 1)
	_, err := ParseMap([]byte(bad), mapArchetypes(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown creep")

	bad = strings.Replace(mapJSONC, `{"Time": 2, "Creep": "cp1"}`, `{"Time": -1, "Creep": "cp1"}`, 1)
	_, err = ParseMap([]byte(bad), mapArchetypes(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-monotonic")
}

const entityJSONC = `{
  "Entity": [
    {
      "Name": "saika", "Kind": "hero", "Faction": "radiant",
      "HP": 600, "MP": 300, "Armor": 2,
      "Attack": {"Damage": 50, "Range": 600, "Cadence": 1, "ProjectileSpeed": 900},
      "MoveSpeed": 300,
      "Abilities": ["sniper_mode"],
      "ProjectilePolicy": "last-point",
      "Respawn": {"Delay": 5, "X": -100, "Y": -100, "HPFraction": 0.5}
    },
    {
      "Name": "cp1", "Kind": "creep", "Faction": "dire",
      "HP": 6, "MoveSpeed": 100, "Bounty": 25
    }
  ]
}`

func TestParseEntitiesValidatesAbilityRefs(t *testing.T) {
	reg, err := ParseAbilities([]byte(abilityJSONC))
	require.NoError(t, err)

	set, err := ParseEntities([]byte(entityJSONC), reg)
	require.NoError(t, err)
	hero := set["saika"]
	require.NotNil(t, hero)
	assert.Equal(t, world.TargetLossLastPoint, hero.ProjectilePolicy)
	require.NotNil(t, hero.Respawn)
	assert.Equal(t, 5.0, hero.Respawn.Delay)

	bad := strings.Replace(entityJSONC, `"sniper_mode"`, `"missing_ability"`, 1)
	_, err = ParseEntities([]byte(bad), reg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown ability")
}

func TestParseEntitiesRequiresProjectilePolicyForRanged(t *testing.T) {
	reg, err := ParseAbilities([]byte(abilityJSONC))
	require.NoError(t, err)
	bad := strings.Replace(entityJSONC, `"ProjectilePolicy": "last-point",`, ``, 1)
	_, err = ParseEntities([]byte(bad), reg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target-loss policy")
}

func TestServerConfigDefaults(t *testing.T) {
	cfg, err := ParseServer(`
[server]
map = "maps/two_lane.json"
abilities = "data/abilities.json"
entities = "data/entities.json"
broker_host = "broker.local"
`)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.TickRate)
	assert.Equal(t, 10_000, cfg.MaxPlayers)
	assert.Equal(t, 1883, cfg.BrokerPort)
	assert.Equal(t, "tcp://broker.local:1883", cfg.BrokerURL())
	assert.Equal(t, []string{"console"}, cfg.LogSinks)
}
