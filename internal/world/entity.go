package world

import (
	"time"

	"botgrid/internal/spatial"
)

// Live entity state. These structs are owned by the world's tick goroutine
// and are never handed out; readers only ever see spatial snapshots.

type creature struct {
	guid      spatial.GUID
	entry     uint32
	name      string
	pos       spatial.Position
	home      spatial.Position
	dest      spatial.Position
	leash     float64
	speed     float64
	level     uint8
	health    uint32
	maxHealth uint32
	team      spatial.Team
	rank      spatial.CreatureRank
	npcFlags  uint32
	hostile   bool
	alive     bool
	inCombat  bool
	target    spatial.GUID

	combatFor    time.Duration
	respawnDelay time.Duration
	respawnIn    time.Duration
}

func (c *creature) snapshot() spatial.CreatureSnapshot {
	return spatial.CreatureSnapshot{
		GUID:      c.guid,
		Entry:     c.entry,
		Name:      c.name,
		Pos:       c.pos,
		Level:     c.level,
		Health:    c.health,
		MaxHealth: c.maxHealth,
		Team:      c.team,
		Rank:      c.rank,
		NPCFlags:  c.npcFlags,
		Alive:     c.alive,
		InCombat:  c.inCombat,
		Hostile:   c.hostile,
		Spawned:   true,
		Target:    c.target,
		RespawnIn: c.respawnIn,
	}
}

// damage applies amount and reports whether the creature died.
func (c *creature) damage(amount uint32, attacker spatial.GUID) bool {
	if !c.alive {
		return false
	}
	c.inCombat = true
	c.combatFor = 0
	c.target = attacker
	if amount >= c.health {
		c.health = 0
		c.alive = false
		c.inCombat = false
		c.target = spatial.EmptyGUID
		c.respawnIn = c.respawnDelay
		return true
	}
	c.health -= amount
	return false
}

func (c *creature) respawn() {
	c.pos = c.home
	c.dest = c.home
	c.health = c.maxHealth
	c.alive = true
	c.inCombat = false
	c.target = spatial.EmptyGUID
	c.respawnIn = 0
}

type player struct {
	guid      spatial.GUID
	name      string
	pos       spatial.Position
	home      spatial.Position
	level     uint8
	class     uint8
	race      uint8
	team      spatial.Team
	health    uint32
	maxHealth uint32
	powerType spatial.PowerType
	power     uint32
	maxPower  uint32
	alive     bool
	inCombat  bool
	isBot     bool
	guildID   uint32
	groupID   uint32
	target    spatial.GUID

	combatFor time.Duration // time since the last hit; combat drops after combatTimeout
	reviveIn  time.Duration
}

func (p *player) snapshot() spatial.PlayerSnapshot {
	return spatial.PlayerSnapshot{
		GUID:      p.guid,
		Name:      p.name,
		Pos:       p.pos,
		Level:     p.level,
		Class:     p.class,
		Race:      p.race,
		Team:      p.team,
		Health:    p.health,
		MaxHealth: p.maxHealth,
		PowerType: p.powerType,
		Power:     p.power,
		MaxPower:  p.maxPower,
		Alive:     p.alive,
		InCombat:  p.inCombat,
		IsBot:     p.isBot,
		Spawned:   true,
		GuildID:   p.guildID,
		GroupID:   p.groupID,
		Target:    p.target,
	}
}

func (p *player) damage(amount uint32, attacker spatial.GUID) bool {
	if !p.alive {
		return false
	}
	p.inCombat = true
	p.combatFor = 0
	if amount >= p.health {
		p.health = 0
		p.alive = false
		p.inCombat = false
		p.reviveIn = playerReviveDelay
		return true
	}
	p.health -= amount
	return false
}

type object struct {
	guid         spatial.GUID
	entry        uint32
	name         string
	pos          spatial.Position
	kind         spatial.ObjectType
	state        spatial.ObjectState
	flags        uint32
	respawnDelay time.Duration
	respawnIn    time.Duration
}

func (o *object) usable() bool {
	return o.state == spatial.ObjectReady && o.kind != spatial.ObjectTrap
}

func (o *object) snapshot() spatial.ObjectSnapshot {
	return spatial.ObjectSnapshot{
		GUID:      o.guid,
		Entry:     o.entry,
		Name:      o.name,
		Pos:       o.pos,
		Type:      o.kind,
		State:     o.state,
		Flags:     o.flags,
		Usable:    o.usable(),
		Spawned:   true,
		RespawnIn: o.respawnIn,
	}
}

// area is the shared state of triggers and effects: a radius around a
// point with an optional lifetime.
type area struct {
	guid       spatial.GUID
	spellID    uint32
	caster     spatial.GUID
	casterTeam spatial.Team
	pos        spatial.Position
	radius     float64
	duration   time.Duration // zero means permanent
	remaining  time.Duration
	hostile    bool
}

// advance counts down the lifetime and reports whether it has expired.
func (a *area) advance(dt time.Duration) bool {
	if a.duration <= 0 {
		return false
	}
	a.remaining -= dt
	return a.remaining <= 0
}

func (a *area) triggerSnapshot() spatial.TriggerSnapshot {
	return spatial.TriggerSnapshot{
		GUID:       a.guid,
		SpellID:    a.spellID,
		Caster:     a.caster,
		CasterTeam: a.casterTeam,
		Pos:        a.pos,
		Radius:     a.radius,
		Duration:   a.duration,
		Remaining:  max(a.remaining, 0),
		Hostile:    a.hostile,
		Spawned:    true,
	}
}

func (a *area) effectSnapshot() spatial.EffectSnapshot {
	return spatial.EffectSnapshot{
		GUID:       a.guid,
		SpellID:    a.spellID,
		Caster:     a.caster,
		CasterTeam: a.casterTeam,
		Pos:        a.pos,
		Radius:     a.radius,
		Duration:   a.duration,
		Remaining:  max(a.remaining, 0),
		Harmful:    a.hostile,
		Spawned:    true,
	}
}
