package spatial

import (
	"fmt"
	"time"
)

// GUID is a simulation-wide entity identifier.
type GUID uint64

// EmptyGUID is the "no entity" sentinel. A snapshot never carries it.
const EmptyGUID GUID = 0

// Kind names one tracked entity category.
type Kind uint8

const (
	KindCreature Kind = iota // mobile agent
	KindPlayer               // player agent
	KindObject               // static object
	KindTrigger              // trigger volume
	KindEffect               // transient effect
	kindCount
)

var kindNames = [kindCount]string{"creature", "player", "object", "trigger", "effect"}

func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return "unknown"
}

// MarshalText encodes k by name.
func (k Kind) MarshalText() ([]byte, error) {
	if k >= kindCount {
		return nil, fmt.Errorf("spatial: unknown kind %d", k)
	}
	return []byte(k.String()), nil
}

// UnmarshalText accepts any name ParseKind does.
func (k *Kind) UnmarshalText(b []byte) error {
	v, ok := ParseKind(string(b))
	if !ok {
		return fmt.Errorf("spatial: unknown kind %q", b)
	}
	*k = v
	return nil
}

// ParseKind maps a plural or singular name to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "creature", "creatures":
		return KindCreature, true
	case "player", "players":
		return KindPlayer, true
	case "object", "objects":
		return KindObject, true
	case "trigger", "triggers":
		return KindTrigger, true
	case "effect", "effects":
		return KindEffect, true
	}
	return 0, false
}

// Team is the faction side of a player or creature.
type Team uint8

const (
	TeamNeutral Team = iota
	TeamAlliance
	TeamHorde
	TeamMonster
)

// CreatureRank classifies creature difficulty.
type CreatureRank uint8

const (
	RankNormal CreatureRank = iota
	RankElite
	RankRare
	RankRareElite
	RankBoss
)

// PowerType is the secondary resource a player spends.
type PowerType uint8

const (
	PowerMana PowerType = iota
	PowerRage
	PowerEnergy
	PowerFocus
)

// ObjectType classifies static objects.
type ObjectType uint8

const (
	ObjectGeneric ObjectType = iota
	ObjectDoor
	ObjectChest
	ObjectHerb
	ObjectVein
	ObjectMailbox
	ObjectTrap
)

// ObjectState is the interaction state of a static object.
type ObjectState uint8

const (
	ObjectReady ObjectState = iota
	ObjectActive
	ObjectLooted
)

// CreatureSnapshot is an immutable copy of a mobile agent.
type CreatureSnapshot struct {
	GUID       GUID          `json:"guid"`
	Entry      uint32        `json:"entry"`
	Name       string        `json:"name"`
	Pos        Position      `json:"pos"`
	Level      uint8         `json:"level"`
	Health     uint32        `json:"health"`
	MaxHealth  uint32        `json:"maxHealth"`
	Team       Team          `json:"team"`
	Rank       CreatureRank  `json:"rank"`
	NPCFlags   uint32        `json:"npcFlags"`
	Alive      bool          `json:"alive"`
	InCombat   bool          `json:"inCombat"`
	Hostile    bool          `json:"hostile"` // aggressive towards players by default
	Spawned    bool          `json:"spawned"`
	Target     GUID          `json:"target"`
	RespawnIn  time.Duration `json:"respawnIn"`
	Generation uint64        `json:"generation"` // populate pass this copy belongs to
}

func (s CreatureSnapshot) ID() GUID           { return s.GUID }
func (s CreatureSnapshot) Location() Position { return s.Pos }

// HealthPct returns current health as a percentage of max health.
func (s CreatureSnapshot) HealthPct() float64 {
	return pct(s.Health, s.MaxHealth)
}

// PlayerSnapshot is an immutable copy of a player agent (human or bot).
type PlayerSnapshot struct {
	GUID       GUID      `json:"guid"`
	Name       string    `json:"name"`
	Pos        Position  `json:"pos"`
	Level      uint8     `json:"level"`
	Class      uint8     `json:"class"`
	Race       uint8     `json:"race"`
	Team       Team      `json:"team"`
	Health     uint32    `json:"health"`
	MaxHealth  uint32    `json:"maxHealth"`
	PowerType  PowerType `json:"powerType"`
	Power      uint32    `json:"power"`
	MaxPower   uint32    `json:"maxPower"`
	Alive      bool      `json:"alive"`
	InCombat   bool      `json:"inCombat"`
	IsBot      bool      `json:"isBot"`
	Spawned    bool      `json:"spawned"`
	GuildID    uint32    `json:"guildId"`
	GroupID    uint32    `json:"groupId"`
	Target     GUID      `json:"target"`
	Generation uint64    `json:"generation"`
}

func (s PlayerSnapshot) ID() GUID           { return s.GUID }
func (s PlayerSnapshot) Location() Position { return s.Pos }

// HealthPct returns current health as a percentage of max health.
func (s PlayerSnapshot) HealthPct() float64 {
	return pct(s.Health, s.MaxHealth)
}

// PowerPct returns current power as a percentage of max power.
func (s PlayerSnapshot) PowerPct() float64 {
	return pct(s.Power, s.MaxPower)
}

// ObjectSnapshot is an immutable copy of a static world object.
type ObjectSnapshot struct {
	GUID       GUID          `json:"guid"`
	Entry      uint32        `json:"entry"`
	Name       string        `json:"name"`
	Pos        Position      `json:"pos"`
	Type       ObjectType    `json:"type"`
	State      ObjectState   `json:"state"`
	Flags      uint32        `json:"flags"`
	Usable     bool          `json:"usable"`
	Spawned    bool          `json:"spawned"`
	RespawnIn  time.Duration `json:"respawnIn"`
	Generation uint64        `json:"generation"`
}

func (s ObjectSnapshot) ID() GUID           { return s.GUID }
func (s ObjectSnapshot) Location() Position { return s.Pos }

// TriggerSnapshot is an immutable copy of a trigger volume (area trigger).
type TriggerSnapshot struct {
	GUID       GUID          `json:"guid"`
	SpellID    uint32        `json:"spellId"`
	Caster     GUID          `json:"caster"`
	CasterTeam Team          `json:"casterTeam"`
	Pos        Position      `json:"pos"`
	Radius     float64       `json:"radius"`
	Duration   time.Duration `json:"duration"`
	Remaining  time.Duration `json:"remaining"`
	Hostile    bool          `json:"hostile"`
	Spawned    bool          `json:"spawned"`
	Generation uint64        `json:"generation"`
}

func (s TriggerSnapshot) ID() GUID           { return s.GUID }
func (s TriggerSnapshot) Location() Position { return s.Pos }

// RemainingFraction returns the share of the lifetime still left, 0..1.
// Permanent triggers (zero duration) report 1.
func (s TriggerSnapshot) RemainingFraction() float64 {
	return fraction(s.Remaining, s.Duration)
}

// Covers reports whether p lies inside the trigger volume.
func (s TriggerSnapshot) Covers(p Position) bool {
	return s.Pos.DistSq(p) <= s.Radius*s.Radius
}

// EffectSnapshot is an immutable copy of a transient spell effect
// (dynamic object).
type EffectSnapshot struct {
	GUID       GUID          `json:"guid"`
	SpellID    uint32        `json:"spellId"`
	Caster     GUID          `json:"caster"`
	CasterTeam Team          `json:"casterTeam"`
	Pos        Position      `json:"pos"`
	Radius     float64       `json:"radius"`
	Duration   time.Duration `json:"duration"`
	Remaining  time.Duration `json:"remaining"`
	Harmful    bool          `json:"harmful"`
	Spawned    bool          `json:"spawned"`
	Generation uint64        `json:"generation"`
}

func (s EffectSnapshot) ID() GUID           { return s.GUID }
func (s EffectSnapshot) Location() Position { return s.Pos }

// RemainingFraction returns the share of the lifetime still left, 0..1.
func (s EffectSnapshot) RemainingFraction() float64 {
	return fraction(s.Remaining, s.Duration)
}

// Covers reports whether p lies inside the effect radius.
func (s EffectSnapshot) Covers(p Position) bool {
	return s.Pos.DistSq(p) <= s.Radius*s.Radius
}

// snapshotValue is the common read surface the query engine filters on.
type snapshotValue interface {
	ID() GUID
	Location() Position
}

func pct(cur, max uint32) float64 {
	if max == 0 {
		return 0
	}
	return float64(cur) * 100 / float64(max)
}

func fraction(remaining, total time.Duration) float64 {
	if total <= 0 {
		return 1
	}
	if remaining <= 0 {
		return 0
	}
	if remaining >= total {
		return 1
	}
	return float64(remaining) / float64(total)
}
