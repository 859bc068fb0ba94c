package bot

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botgrid/internal/spatial"
	"botgrid/internal/world"
)

func me(health uint32) spatial.PlayerSnapshot {
	return spatial.PlayerSnapshot{
		GUID: 1, Pos: spatial.Position{X: 0, Y: 0}, Level: 10,
		Health: health, MaxHealth: 100, Alive: true, Spawned: true,
	}
}

func hostile(guid spatial.GUID, x, y float64) spatial.CreatureSnapshot {
	return spatial.CreatureSnapshot{GUID: guid, Pos: spatial.Position{X: x, Y: y}, Hostile: true, Alive: true, Spawned: true}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name    string
		self    spatial.PlayerSnapshot
		seen    spatial.Nearby
		action  Action
		target  spatial.GUID
		inRange bool
	}{
		{
			name:   "nothing around",
			self:   me(100),
			action: ActionIdle,
		},
		{
			name:   "dead bots do nothing",
			self:   spatial.PlayerSnapshot{GUID: 1},
			seen:   spatial.Nearby{Creatures: []spatial.CreatureSnapshot{hostile(2, 1, 0)}},
			action: ActionIdle,
		},
		{
			name: "attack nearest hostile",
			self: me(100),
			seen: spatial.Nearby{Creatures: []spatial.CreatureSnapshot{
				hostile(2, 30, 0),
				hostile(3, 10, 0),
				{GUID: 4, Pos: spatial.Position{X: 1}, Alive: true},                 // friendly
				{GUID: 5, Pos: spatial.Position{X: 2}, Hostile: true, Alive: false}, // corpse
			}},
			action: ActionAttack,
			target: 3,
		},
		{
			name:    "hostile in melee range",
			self:    me(100),
			seen:    spatial.Nearby{Creatures: []spatial.CreatureSnapshot{hostile(2, 3, 4)}},
			action:  ActionAttack,
			target:  2,
			inRange: true,
		},
		{
			name:   "flee when hurt",
			self:   me(29),
			seen:   spatial.Nearby{Creatures: []spatial.CreatureSnapshot{hostile(2, 10, 0)}},
			action: ActionFlee,
			target: 2,
		},
		{
			name: "loot when no threats",
			self: me(20),
			seen: spatial.Nearby{Objects: []spatial.ObjectSnapshot{
				{GUID: 7, Pos: spatial.Position{X: 50}, Usable: true},
				{GUID: 8, Pos: spatial.Position{X: 5}, Usable: false},
			}},
			action: ActionLoot,
			target: 7,
		},
		{
			name: "escape hostile trigger before anything else",
			self: me(100),
			seen: spatial.Nearby{
				Creatures: []spatial.CreatureSnapshot{hostile(2, 3, 0)},
				Triggers:  []spatial.TriggerSnapshot{{GUID: 9, Pos: spatial.Position{X: 2}, Radius: 5, Hostile: true}},
			},
			action: ActionEscape,
		},
		{
			name: "friendly trigger is harmless",
			self: me(100),
			seen: spatial.Nearby{
				Triggers: []spatial.TriggerSnapshot{{GUID: 9, Radius: 5}},
			},
			action: ActionIdle,
		},
		{
			name: "escape harmful effect",
			self: me(100),
			seen: spatial.Nearby{
				Effects: []spatial.EffectSnapshot{{GUID: 9, Pos: spatial.Position{Y: -1}, Radius: 3, Harmful: true}},
			},
			action: ActionEscape,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.self, tt.seen)
			assert.Equal(t, tt.action, d.Action, "got %s", d.Action)
			assert.Equal(t, tt.target, d.Target)
			assert.Equal(t, tt.inRange, d.InRange)
		})
	}
}

func TestDecide_EscapeLeavesTheHazard(t *testing.T) {
	hazard := spatial.TriggerSnapshot{Pos: spatial.Position{X: 2, Y: 0}, Radius: 5, Hostile: true}
	d := Decide(me(100), spatial.Nearby{Triggers: []spatial.TriggerSnapshot{hazard}})
	require.Equal(t, ActionEscape, d.Action)
	assert.False(t, hazard.Covers(d.Dest))
	assert.InDelta(t, 6, math.Sqrt(d.Dest.DistSq(hazard.Pos)), 1e-9)
}

func TestDecide_FleeMovesAway(t *testing.T) {
	d := Decide(me(10), spatial.Nearby{Creatures: []spatial.CreatureSnapshot{hostile(2, 10, 0)}})
	require.Equal(t, ActionFlee, d.Action)
	assert.Less(t, d.Dest.X, 0.0)
	assert.InDelta(t, stepDistance, math.Sqrt(d.Dest.DistSq(d.From)), 1e-9)
}

func TestDecide_ApproachStopsAtInteractRange(t *testing.T) {
	d := Decide(me(100), spatial.Nearby{Creatures: []spatial.CreatureSnapshot{hostile(2, 7, 0)}})
	require.Equal(t, ActionAttack, d.Action)
	assert.False(t, d.InRange)
	assert.InDelta(t, 2, d.Dest.X, 1e-9, "steps only as far as melee range")
}

func TestDecision_Commands(t *testing.T) {
	attack := Decide(me(100), spatial.Nearby{Creatures: []spatial.CreatureSnapshot{hostile(2, 1, 0)}})
	cmds := attack.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, world.CmdDamage, cmds[0].Type)
	assert.Equal(t, spatial.GUID(2), cmds[0].GUID)
	assert.Equal(t, spatial.GUID(1), cmds[0].Source)
	assert.Equal(t, uint32(baseDamage+10), cmds[0].Amount)

	chase := Decide(me(100), spatial.Nearby{Creatures: []spatial.CreatureSnapshot{hostile(2, 50, 0)}})
	cmds = chase.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, world.CmdMove, cmds[0].Type)
	assert.Equal(t, spatial.GUID(1), cmds[0].GUID)

	loot := Decide(me(100), spatial.Nearby{Objects: []spatial.ObjectSnapshot{{GUID: 7, Pos: spatial.Position{X: 1}, Usable: true}}})
	cmds = loot.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, world.CmdUse, cmds[0].Type)

	assert.Empty(t, Decide(me(100), spatial.Nearby{}).Commands())
}
