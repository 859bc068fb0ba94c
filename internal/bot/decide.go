// Package bot contains the cache readers: simulated agents that look at the
// world exclusively through spatial snapshots and decide what to do next.
package bot

import (
	"math"

	"botgrid/internal/spatial"
	"botgrid/internal/world"
)

// Action is what a bot chose to do on one think step.
type Action uint8

const (
	ActionIdle   Action = iota
	ActionEscape        // step out of a hostile trigger or harmful effect
	ActionFlee          // low health with hostiles around
	ActionAttack
	ActionLoot
	actionCount
)

var actionNames = [actionCount]string{"idle", "escape", "flee", "attack", "loot"}

func (a Action) String() string {
	if a < actionCount {
		return actionNames[a]
	}
	return "unknown"
}

const (
	fleeHealthPct = 30.0
	stepDistance  = 4.0 // world units moved per decision
	interactRange = 5.0
	baseDamage    = 12
)

// Decision is the outcome of one think step.
type Decision struct {
	Bot        spatial.GUID
	Action     Action
	Target     spatial.GUID
	From       spatial.Position
	Dest       spatial.Position
	InRange    bool   // target is close enough to hit or use
	Damage     uint32 // damage dealt when attacking in range
	Generation uint64 // buffer generation the decision was based on
}

// Decide picks an action for self given what it can see. It only reads the
// snapshots it is handed.
func Decide(self spatial.PlayerSnapshot, seen spatial.Nearby) Decision {
	d := Decision{
		Bot:        self.GUID,
		Action:     ActionIdle,
		From:       self.Pos,
		Dest:       self.Pos,
		Generation: seen.Generation,
	}
	if !self.Alive {
		return d
	}

	if hazard, radius, ok := standingIn(self.Pos, seen); ok {
		d.Action = ActionEscape
		d.Dest = awayFrom(self.Pos, hazard, radius+1-math.Sqrt(self.Pos.DistSq(hazard)))
		return d
	}

	threat, threatOK := nearestHostile(self.Pos, seen.Creatures)
	if threatOK && self.HealthPct() < fleeHealthPct {
		d.Action = ActionFlee
		d.Target = threat.GUID
		d.Dest = awayFrom(self.Pos, threat.Pos, stepDistance)
		return d
	}
	if threatOK {
		d.Action = ActionAttack
		d.Target = threat.GUID
		d.Dest, d.InRange = approach(self.Pos, threat.Pos)
		if d.InRange {
			d.Damage = baseDamage + uint32(self.Level)
		}
		return d
	}

	if obj, ok := nearestUsable(self.Pos, seen.Objects); ok {
		d.Action = ActionLoot
		d.Target = obj.GUID
		d.Dest, d.InRange = approach(self.Pos, obj.Pos)
		return d
	}
	return d
}

// Commands translates a decision into world mutations issued as the bot.
func (d Decision) Commands() []world.Command {
	var cmds []world.Command
	if d.Dest != d.From {
		cmds = append(cmds, world.MoveCommand(d.Bot, d.Dest))
	}
	if !d.InRange {
		return cmds
	}
	switch d.Action {
	case ActionAttack:
		cmds = append(cmds, world.DamageCommand(d.Target, d.Bot, d.Damage))
	case ActionLoot:
		cmds = append(cmds, world.UseCommand(d.Target, d.Bot))
	}
	return cmds
}

// standingIn returns the centre and radius of a hazard covering p.
func standingIn(p spatial.Position, seen spatial.Nearby) (spatial.Position, float64, bool) {
	for _, t := range seen.Triggers {
		if t.Hostile && t.Covers(p) {
			return t.Pos, t.Radius, true
		}
	}
	for _, e := range seen.Effects {
		if e.Harmful && e.Covers(p) {
			return e.Pos, e.Radius, true
		}
	}
	return spatial.Position{}, 0, false
}

func nearestHostile(p spatial.Position, creatures []spatial.CreatureSnapshot) (spatial.CreatureSnapshot, bool) {
	var best spatial.CreatureSnapshot
	bestDist := math.Inf(1)
	for _, c := range creatures {
		if !c.Hostile || !c.Alive {
			continue
		}
		if d := c.Pos.DistSq(p); d < bestDist || (d == bestDist && c.GUID < best.GUID) {
			best, bestDist = c, d
		}
	}
	return best, !math.IsInf(bestDist, 1)
}

func nearestUsable(p spatial.Position, objects []spatial.ObjectSnapshot) (spatial.ObjectSnapshot, bool) {
	var best spatial.ObjectSnapshot
	bestDist := math.Inf(1)
	for _, o := range objects {
		if !o.Usable {
			continue
		}
		if d := o.Pos.DistSq(p); d < bestDist || (d == bestDist && o.GUID < best.GUID) {
			best, bestDist = o, d
		}
	}
	return best, !math.IsInf(bestDist, 1)
}

// approach steps from toward target and reports whether target is already
// within interactRange.
func approach(from, target spatial.Position) (spatial.Position, bool) {
	dist := math.Sqrt(from.DistSq(target))
	if dist <= interactRange {
		return from, true
	}
	step := math.Min(stepDistance, dist-interactRange)
	dest := from
	dest.X += (target.X - from.X) / dist * step
	dest.Y += (target.Y - from.Y) / dist * step
	return dest, false
}

// awayFrom moves p by step directly away from threat. When p sits exactly on
// the threat it moves along +X.
func awayFrom(p, threat spatial.Position, step float64) spatial.Position {
	dx, dy := p.X-threat.X, p.Y-threat.Y
	dist := math.Hypot(dx, dy)
	if dist == 0 {
		dx, dy, dist = 1, 0, 1
	}
	out := p
	out.X += dx / dist * step
	out.Y += dy / dist * step
	return out
}
