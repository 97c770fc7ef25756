package sim

import (
	"time"

	"warlane/server/internal/outcome"
)

// CommandType enumerates the supported player commands.
type CommandType string

const (
	CommandMove    CommandType = "move"
	CommandAttack  CommandType = "attack"
	CommandCast    CommandType = "cast"
	CommandUpgrade CommandType = "upgrade"
	CommandPing    CommandType = "ping"
	// CommandJoin is synthesized by the ingress adapter the first time a
	// player id appears on the wire; it is not part of the client schema.
	CommandJoin CommandType = "join"
)

// Command represents a validated intent captured for processing on the next
// tick. Commands are stamped with broker receive time and processed in FIFO
// arrival order.
type Command struct {
	PlayerID string
	Type     CommandType
	IssuedAt time.Time
	TraceID  string

	Move    *MoveCommand
	Attack  *AttackCommand
	Cast    *CastCommand
	Upgrade *UpgradeCommand
	Join    *JoinCommand
}

// JoinCommand spawns a hero for a newly seen player.
type JoinCommand struct {
	Archetype string
}

// MoveCommand carries the desired movement direction (unit-ish vector; the
// player system normalizes and scales by effective move speed).
type MoveCommand struct {
	DX float64
	DY float64
}

// AttackCommand orders the hero to attack a unit.
type AttackCommand struct {
	TargetID string
}

// CastCommand requests an ability cast from a slot.
type CastCommand struct {
	Slot     string
	TargetID string
	Point    *outcome.Vec2
	Dir      *outcome.Vec2
}

// UpgradeCommand levels the ability in a slot.
type UpgradeCommand struct {
	Slot string
}
