package spatial

import "math"

// Nearby groups the results of every kind taken from one buffer generation.
type Nearby struct {
	Generation uint64             `json:"generation"`
	Creatures  []CreatureSnapshot `json:"creatures"`
	Players    []PlayerSnapshot   `json:"players"`
	Objects    []ObjectSnapshot   `json:"objects"`
	Triggers   []TriggerSnapshot  `json:"triggers"`
	Effects    []EffectSnapshot   `json:"effects"`
}

// Len returns the total number of snapshots.
func (n Nearby) Len() int {
	return len(n.Creatures) + len(n.Players) + len(n.Objects) + len(n.Triggers) + len(n.Effects)
}

// QueryCreatures returns copies of every creature within radius of center.
// The radius is capped at Options.MaxTrackedRadius, so entities beyond that
// distance are never returned even when a larger radius is asked for. The
// other Query methods cap the same way.
func (c *Cache) QueryCreatures(center Position, radius float64) []CreatureSnapshot {
	out, _ := query(c, center, radius, pickCreatures)
	return out
}

// QueryPlayers returns copies of every player within radius of center.
func (c *Cache) QueryPlayers(center Position, radius float64) []PlayerSnapshot {
	out, _ := query(c, center, radius, pickPlayers)
	return out
}

// QueryObjects returns copies of every static object within radius of center.
func (c *Cache) QueryObjects(center Position, radius float64) []ObjectSnapshot {
	out, _ := query(c, center, radius, pickObjects)
	return out
}

// QueryTriggers returns copies of every trigger volume within radius of center.
func (c *Cache) QueryTriggers(center Position, radius float64) []TriggerSnapshot {
	out, _ := query(c, center, radius, pickTriggers)
	return out
}

// QueryEffects returns copies of every transient effect within radius of center.
func (c *Cache) QueryEffects(center Position, radius float64) []EffectSnapshot {
	out, _ := query(c, center, radius, pickEffects)
	return out
}

// QueryNearby returns every kind within radius of center, all read from the
// same buffer generation. The radius is capped as in QueryCreatures.
func (c *Cache) QueryNearby(center Position, radius float64) Nearby {
	c.queries.Add(1)
	t := c.readTable()
	n := Nearby{Generation: t.generation}

	keys, rSq, ok := c.plan(center, radius)
	if !ok {
		return n
	}
	n.Creatures = collect(t, keys, center, rSq, pickCreatures)
	n.Players = collect(t, keys, center, rSq, pickPlayers)
	n.Objects = collect(t, keys, center, rSq, pickObjects)
	n.Triggers = collect(t, keys, center, rSq, pickTriggers)
	n.Effects = collect(t, keys, center, rSq, pickEffects)
	return n
}

func pickCreatures(c *Cell) []CreatureSnapshot { return c.Creatures }
func pickPlayers(c *Cell) []PlayerSnapshot     { return c.Players }
func pickObjects(c *Cell) []ObjectSnapshot     { return c.Objects }
func pickTriggers(c *Cell) []TriggerSnapshot   { return c.Triggers }
func pickEffects(c *Cell) []EffectSnapshot     { return c.Effects }

// query runs a single-kind lookup and also reports the generation it read.
func query[T snapshotValue](c *Cache, center Position, radius float64, pick func(*Cell) []T) ([]T, uint64) {
	c.queries.Add(1)
	t := c.readTable()
	keys, rSq, ok := c.plan(center, radius)
	if !ok {
		return nil, t.generation
	}
	return collect(t, keys, center, rSq, pick), t.generation
}

// plan validates the request, clamps the radius and enumerates candidate
// cells. A negative or NaN radius, or a non-finite centre, yields nothing.
func (c *Cache) plan(center Position, radius float64) ([]CellKey, float64, bool) {
	if math.IsNaN(radius) || radius < 0 || !center.Valid() {
		return nil, 0, false
	}
	if radius > c.opts.MaxTrackedRadius {
		radius = c.opts.MaxTrackedRadius
	}
	span := int(2*math.Ceil(radius/c.opts.CellSize)) + 2
	keys := CellsInRadius(make([]CellKey, 0, span*span), center, radius, c.opts.CellSize)
	return keys, radius * radius, true
}

// collect filters one kind out of the candidate cells of t by exact planar
// distance. The returned slice is freshly allocated and holds copies.
func collect[T snapshotValue](t *cellTable, keys []CellKey, center Position, rSq float64, pick func(*Cell) []T) []T {
	var out []T
	for _, key := range keys {
		cell, ok := t.cells[key]
		if !ok {
			continue
		}
		for _, s := range pick(cell) {
			if s.Location().DistSq(center) <= rSq {
				out = append(out, s)
			}
		}
	}
	return out
}
