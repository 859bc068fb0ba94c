package world

import (
	"errors"
	"fmt"
	"time"

	"botgrid/internal/spatial"
)

// CommandType identifies a world mutation.
type CommandType uint8

const (
	CmdSpawn CommandType = iota
	CmdDespawn
	CmdMove
	CmdDamage
	CmdUse
)

func (t CommandType) String() string {
	switch t {
	case CmdSpawn:
		return "spawn"
	case CmdDespawn:
		return "despawn"
	case CmdMove:
		return "move"
	case CmdDamage:
		return "damage"
	case CmdUse:
		return "use"
	}
	return "unknown"
}

// Command is a mutation requested from outside the tick goroutine. Commands
// are queued and applied in submission order at the start of the next tick.
type Command struct {
	Type   CommandType
	GUID   spatial.GUID
	Source spatial.GUID // attacker for damage, user for use
	Pos    spatial.Position
	Amount uint32
	Spawn  SpawnRequest
}

// SpawnRequest describes a new entity. Fields that do not apply to Kind are
// ignored; zero values get sensible defaults.
type SpawnRequest struct {
	Kind       spatial.Kind       `json:"kind"`
	Name       string             `json:"name"`
	Pos        spatial.Position   `json:"pos"`
	Level      uint8              `json:"level"`
	Health     uint32             `json:"health"`
	Team       spatial.Team       `json:"team"`
	Hostile    bool               `json:"hostile"`
	IsBot      bool               `json:"isBot"`
	ObjectType spatial.ObjectType `json:"objectType"`
	SpellID    uint32             `json:"spellId"`
	Radius     float64            `json:"radius"`
	Duration   time.Duration      `json:"duration"`
}

// Validate rejects requests that can never produce a valid entity.
func (r SpawnRequest) Validate() error {
	if _, ok := spatial.ParseKind(r.Kind.String()); !ok {
		return fmt.Errorf("%w: unknown kind %d", ErrBadCommand, r.Kind)
	}
	if !r.Pos.Valid() {
		return fmt.Errorf("%w: position is not finite", ErrBadCommand)
	}
	if r.Radius < 0 || r.Duration < 0 {
		return fmt.Errorf("%w: negative radius or duration", ErrBadCommand)
	}
	return nil
}

// Errors returned by Submit and the Manager.
var (
	ErrMapNotLoaded = errors.New("world: map not loaded")
	ErrMapLoaded    = errors.New("world: map already loaded")
	ErrQueueFull    = errors.New("world: command queue full")
	ErrBadCommand   = errors.New("world: invalid command")
	ErrRunning      = errors.New("world: tick loop is running")
)

// MoveCommand relocates an entity.
func MoveCommand(guid spatial.GUID, pos spatial.Position) Command {
	return Command{Type: CmdMove, GUID: guid, Pos: pos}
}

// DamageCommand removes health from a creature or player.
func DamageCommand(target, attacker spatial.GUID, amount uint32) Command {
	return Command{Type: CmdDamage, GUID: target, Source: attacker, Amount: amount}
}

// UseCommand interacts with a static object (loot a chest, gather a herb).
func UseCommand(obj, user spatial.GUID) Command {
	return Command{Type: CmdUse, GUID: obj, Source: user}
}

// DespawnCommand removes an entity of any kind.
func DespawnCommand(guid spatial.GUID) Command {
	return Command{Type: CmdDespawn, GUID: guid}
}
