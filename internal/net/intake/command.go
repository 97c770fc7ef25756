// Package intake decodes and validates inbound wire commands before they
// reach the simulation. Bad input is discarded here with a typed error; it
// never affects the tick.
package intake

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"warlane/server/internal/outcome"
	"warlane/server/internal/sim"
)

// ErrBadCommand wraps every intake failure for per-client error events.
var ErrBadCommand = errors.New("bad command")

// wireCommand is the §-schema envelope every inbound message carries.
type wireCommand struct {
	PlayerID string          `json:"player_id"`
	Action   string          `json:"action"`
	Data     json.RawMessage `json:"data"`
}

type moveData struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

type attackData struct {
	Target string `json:"target"`
}

type castData struct {
	Slot   string          `json:"slot"`
	Target json.RawMessage `json:"target"`
}

type upgradeData struct {
	Slot string `json:"slot"`
}

type pointTarget struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

type dirTarget struct {
	DX *float64 `json:"dx"`
	DY *float64 `json:"dy"`
}

var validSlots = map[string]bool{"Q": true, "W": true, "E": true, "R": true, "T": true}

// Decode parses a raw broker payload into a simulation command. The
// fallbackPlayer (from the topic segment) wins over the body when the body
// omits or contradicts it.
func Decode(raw []byte, fallbackPlayer string, receivedAt time.Time) (sim.Command, error) {
	var wire wireCommand
	if err := json.Unmarshal(raw, &wire); err != nil {
		return sim.Command{}, fmt.Errorf("%w: %v", ErrBadCommand, err)
	}
	playerID := fallbackPlayer
	if playerID == "" {
		playerID = wire.PlayerID
	}
	if strings.TrimSpace(playerID) == "" {
		return sim.Command{}, fmt.Errorf("%w: missing player id", ErrBadCommand)
	}

	cmd := sim.Command{
		PlayerID: playerID,
		IssuedAt: receivedAt,
	}
	switch wire.Action {
	case "move":
		var data moveData
		if err := json.Unmarshal(wire.Data, &data); err != nil {
			return sim.Command{}, fmt.Errorf("%w: move payload: %v", ErrBadCommand, err)
		}
		cmd.Type = sim.CommandMove
		cmd.Move = &sim.MoveCommand{DX: data.DX, DY: data.DY}
	case "attack":
		var data attackData
		if err := json.Unmarshal(wire.Data, &data); err != nil {
			return sim.Command{}, fmt.Errorf("%w: attack payload: %v", ErrBadCommand, err)
		}
		if data.Target == "" {
			return sim.Command{}, fmt.Errorf("%w: attack needs a target", ErrBadCommand)
		}
		cmd.Type = sim.CommandAttack
		cmd.Attack = &sim.AttackCommand{TargetID: data.Target}
	case "cast":
		cast, err := decodeCast(wire.Data)
		if err != nil {
			return sim.Command{}, err
		}
		cmd.Type = sim.CommandCast
		cmd.Cast = cast
	case "upgrade":
		var data upgradeData
		if err := json.Unmarshal(wire.Data, &data); err != nil {
			return sim.Command{}, fmt.Errorf("%w: upgrade payload: %v", ErrBadCommand, err)
		}
		if !validSlots[data.Slot] {
			return sim.Command{}, fmt.Errorf("%w: unknown slot %q", ErrBadCommand, data.Slot)
		}
		cmd.Type = sim.CommandUpgrade
		cmd.Upgrade = &sim.UpgradeCommand{Slot: data.Slot}
	case "ping":
		cmd.Type = sim.CommandPing
	default:
		return sim.Command{}, fmt.Errorf("%w: unknown action %q", ErrBadCommand, wire.Action)
	}
	return cmd, nil
}

// decodeCast resolves the polymorphic cast target: a unit-id string, a
// {x,y} point, a {dx,dy} direction, or null.
func decodeCast(raw json.RawMessage) (*sim.CastCommand, error) {
	var data castData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%w: cast payload: %v", ErrBadCommand, err)
	}
	if !validSlots[data.Slot] {
		return nil, fmt.Errorf("%w: unknown slot %q", ErrBadCommand, data.Slot)
	}
	cast := &sim.CastCommand{Slot: data.Slot}
	if len(data.Target) == 0 || string(data.Target) == "null" {
		return cast, nil
	}

	var unit string
	if err := json.Unmarshal(data.Target, &unit); err == nil {
		cast.TargetID = unit
		return cast, nil
	}
	var point pointTarget
	if err := json.Unmarshal(data.Target, &point); err == nil && point.X != nil && point.Y != nil {
		cast.Point = &outcome.Vec2{X: *point.X, Y: *point.Y}
		return cast, nil
	}
	var dir dirTarget
	if err := json.Unmarshal(data.Target, &dir); err == nil && dir.DX != nil && dir.DY != nil {
		cast.Dir = &outcome.Vec2{X: *dir.DX, Y: *dir.DY}
		return cast, nil
	}
	return nil, fmt.Errorf("%w: cast target must be a unit id, {x,y}, {dx,dy} or null", ErrBadCommand)
}
