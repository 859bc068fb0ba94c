package world

import (
	"fmt"
	"math"
	"time"

	"botgrid/internal/spatial"
)

var (
	creatureNames = []string{"Wolf", "Boar", "Kobold Miner", "Murloc Raider", "Defias Bandit", "Forest Spider", "Young Stag", "Rabbit"}
	playerNames   = []string{"Arthas", "Jaina", "Thrall", "Sylvanas", "Varian", "Garrosh", "Tyrande", "Rexxar"}
	objectNames   = []string{"Crate", "Door", "Battered Chest", "Peacebloom", "Copper Vein", "Mailbox", "Hunter Trap"}
)

// Creature rank weights out of 100: normal, elite, rare, rare elite, boss.
var rankWeights = [...]int{85, 10, 3, 1, 1}

func (w *World) randomPos() spatial.Position {
	b := w.bounds
	return spatial.Position{
		X:           b.MinX + w.rng.Float64()*(b.MaxX-b.MinX),
		Y:           b.MinY + w.rng.Float64()*(b.MaxY-b.MinY),
		Orientation: w.rng.Float64() * 2 * math.Pi,
	}
}

func (w *World) randomRank() spatial.CreatureRank {
	roll := w.rng.Intn(100)
	for i, weight := range rankWeights {
		if roll < weight {
			return spatial.CreatureRank(i)
		}
		roll -= weight
	}
	return spatial.RankNormal
}

func (w *World) randomCreature(hostileRatio float64) *creature {
	pos := w.randomPos()
	level := uint8(1 + w.rng.Intn(60))
	rank := w.randomRank()
	hp := 40 + uint32(level)*25
	if rank >= spatial.RankElite {
		hp *= 3
	}
	hostile := w.rng.Float64() < hostileRatio
	idx := w.rng.Intn(len(creatureNames))
	return &creature{
		entry:        uint32(1000 + idx),
		name:         creatureNames[idx],
		pos:          pos,
		home:         pos,
		dest:         pos,
		leash:        10 + w.rng.Float64()*30,
		speed:        2 + w.rng.Float64()*5,
		level:        level,
		health:       hp,
		maxHealth:    hp,
		team:         teamFor(hostile, spatial.TeamNeutral),
		rank:         rank,
		hostile:      hostile,
		alive:        true,
		respawnDelay: time.Duration(30+w.rng.Intn(90)) * time.Second,
	}
}

func (w *World) randomPlayer() *player {
	pos := w.randomPos()
	level := uint8(1 + w.rng.Intn(60))
	hp := 60 + uint32(level)*30
	class := uint8(1 + w.rng.Intn(9))
	power := spatial.PowerMana
	switch class {
	case 1:
		power = spatial.PowerRage
	case 4:
		power = spatial.PowerEnergy
	case 3:
		power = spatial.PowerFocus
	}
	team := spatial.TeamAlliance
	if w.rng.Intn(2) == 0 {
		team = spatial.TeamHorde
	}
	idx := w.rng.Intn(len(playerNames))
	return &player{
		name:      fmt.Sprintf("%s%d", playerNames[idx], w.rng.Intn(1000)),
		pos:       pos,
		home:      pos,
		level:     level,
		class:     class,
		race:      uint8(1 + w.rng.Intn(8)),
		team:      team,
		health:    hp,
		maxHealth: hp,
		powerType: power,
		power:     100,
		maxPower:  100,
		alive:     true,
	}
}

func (w *World) randomObject() *object {
	kind := spatial.ObjectType(w.rng.Intn(len(objectNames)))
	return &object{
		entry:        uint32(2000 + int(kind)),
		name:         objectNames[kind],
		pos:          w.randomPos(),
		kind:         kind,
		state:        spatial.ObjectReady,
		respawnDelay: time.Duration(60+w.rng.Intn(240)) * time.Second,
	}
}

// randomLifetime returns an effect duration between 5 and 30 seconds.
func (w *World) randomLifetime() time.Duration {
	return time.Duration(5+w.rng.Intn(26)) * time.Second
}

func (w *World) randomArea(hostileRatio float64, lifetime time.Duration) *area {
	hostile := w.rng.Float64() < hostileRatio
	return &area{
		spellID:    uint32(10_000 + w.rng.Intn(5000)),
		casterTeam: teamFor(hostile, spatial.TeamNeutral),
		pos:        w.randomPos(),
		radius:     3 + w.rng.Float64()*12,
		duration:   lifetime,
		remaining:  lifetime,
		hostile:    hostile,
	}
}

func teamFor(hostile bool, team spatial.Team) spatial.Team {
	if team != spatial.TeamNeutral {
		return team
	}
	if hostile {
		return spatial.TeamMonster
	}
	return spatial.TeamNeutral
}

func (w *World) addCreature(c *creature) spatial.GUID {
	c.guid = w.allocGUID()
	w.creatures[c.guid] = c
	return c.guid
}

func (w *World) addPlayer(p *player) spatial.GUID {
	p.guid = w.allocGUID()
	w.players[p.guid] = p
	return p.guid
}

func (w *World) addObject(o *object) spatial.GUID {
	o.guid = w.allocGUID()
	w.objects[o.guid] = o
	return o.guid
}

func (w *World) addTrigger(a *area) spatial.GUID {
	a.guid = w.allocGUID()
	w.triggers[a.guid] = a
	return a.guid
}

func (w *World) addEffect(a *area) spatial.GUID {
	a.guid = w.allocGUID()
	w.effects[a.guid] = a
	return a.guid
}
