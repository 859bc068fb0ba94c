package spatial

import (
	"context"
	"log/slog"
	"time"
)

// builder runs one populate pass: it walks the source and bins every valid
// snapshot into a brand-new cell table.
type builder struct {
	source   EntitySource
	area     Bounds
	cellSize float64
	logger   *slog.Logger
}

// build produces a complete table for the given generation. It never fails:
// an absent or unloaded source simply yields an empty table.
func (b *builder) build(generation uint64, sizeHint int) *cellTable {
	t := newCellTable(generation, sizeHint)
	if b.source == nil || !b.source.Loaded() {
		return t
	}

	b.source.VisitCreatures(b.area, func(s CreatureSnapshot) {
		if !b.admit(t, KindCreature, s.GUID, s.Pos, s.Spawned) {
			return
		}
		s.Generation = generation
		c := t.cellAt(CellFor(s.Pos, b.cellSize))
		c.Creatures = append(c.Creatures, s)
		t.population[KindCreature]++
	})
	b.source.VisitPlayers(b.area, func(s PlayerSnapshot) {
		if !b.admit(t, KindPlayer, s.GUID, s.Pos, s.Spawned) {
			return
		}
		s.Generation = generation
		c := t.cellAt(CellFor(s.Pos, b.cellSize))
		c.Players = append(c.Players, s)
		t.population[KindPlayer]++
	})
	b.source.VisitObjects(b.area, func(s ObjectSnapshot) {
		if !b.admit(t, KindObject, s.GUID, s.Pos, s.Spawned) {
			return
		}
		s.Generation = generation
		c := t.cellAt(CellFor(s.Pos, b.cellSize))
		c.Objects = append(c.Objects, s)
		t.population[KindObject]++
	})
	b.source.VisitTriggers(b.area, func(s TriggerSnapshot) {
		if !b.admit(t, KindTrigger, s.GUID, s.Pos, s.Spawned) {
			return
		}
		s.Generation = generation
		c := t.cellAt(CellFor(s.Pos, b.cellSize))
		c.Triggers = append(c.Triggers, s)
		t.population[KindTrigger]++
	})
	b.source.VisitEffects(b.area, func(s EffectSnapshot) {
		if !b.admit(t, KindEffect, s.GUID, s.Pos, s.Spawned) {
			return
		}
		s.Generation = generation
		c := t.cellAt(CellFor(s.Pos, b.cellSize))
		c.Effects = append(c.Effects, s)
		t.population[KindEffect]++
	})

	t.seal(time.Now())
	return t
}

// admit applies the validity checks shared by every kind. Rejected entities
// are transiently invalid in a live simulation and are only logged at debug.
func (b *builder) admit(t *cellTable, kind Kind, guid GUID, pos Position, spawned bool) bool {
	var reason string
	switch {
	case guid == EmptyGUID:
		reason = "empty guid"
	case !spawned:
		reason = "not spawned"
	case !pos.Valid():
		reason = "invalid position"
	case !b.area.Contains(pos):
		reason = "outside area"
	default:
		return true
	}
	t.skipped++
	if !b.logger.Enabled(context.Background(), slog.LevelDebug) {
		return false
	}
	b.logger.Debug("populate skipped entity",
		slog.String("kind", kind.String()),
		slog.Uint64("guid", uint64(guid)),
		slog.String("reason", reason))
	return false
}
