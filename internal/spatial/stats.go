package spatial

import "time"

// Stats is a point-in-time view of a cache's counters. Population and
// memory figures describe the active buffer.
type Stats struct {
	Name         string `json:"name"`
	ActiveBuffer string `json:"activeBuffer"`
	Generation   uint64 `json:"generation"`

	QueriesServed uint64 `json:"queriesServed"`
	UpdateCalls   uint64 `json:"updateCalls"`
	Updates       uint64 `json:"updates"` // populate passes performed
	Swaps         uint64 `json:"swaps"`
	Throttled     uint64 `json:"throttled"`
	Coalesced     uint64 `json:"coalesced"`
	Skipped       uint64 `json:"skippedEntities"`

	LastPopulate time.Duration `json:"lastPopulateNs"`
	LastUpdate   time.Time     `json:"lastUpdate"`

	MemoryBytes        int64 `json:"memoryBytes"`
	PeakMemoryBytes    int64 `json:"peakMemoryBytes"`
	DenseBaselineBytes int64 `json:"denseBaselineBytes"`

	ActiveCells int `json:"activeCells"`
	Population  int `json:"population"`
	Creatures   int `json:"creatures"`
	Players     int `json:"players"`
	Objects     int `json:"objects"`
	Triggers    int `json:"triggers"`
	Effects     int `json:"effects"`
}

// Stats returns the current statistics. Safe to call from any goroutine.
func (c *Cache) Stats() Stats {
	idx := c.active.Load()
	buf := c.buffers[idx]
	t := buf.load()

	s := Stats{
		Name:               c.opts.Name,
		ActiveBuffer:       buf.Name(),
		Generation:         t.generation,
		QueriesServed:      c.queries.Load(),
		UpdateCalls:        c.updateCalls.Load(),
		Updates:            c.populates.Load(),
		Swaps:              c.swaps.Load(),
		Throttled:          c.throttled.Load(),
		Coalesced:          c.coalesced.Load(),
		Skipped:            c.skipped.Load(),
		LastPopulate:       time.Duration(c.lastPopulateNs.Load()),
		MemoryBytes:        t.memBytes,
		PeakMemoryBytes:    c.peakMem.Load(),
		DenseBaselineBytes: t.denseBytes,
		ActiveCells:        len(t.cells),
		Population:         t.total(),
		Creatures:          t.population[KindCreature],
		Players:            t.population[KindPlayer],
		Objects:            t.population[KindObject],
		Triggers:           t.population[KindTrigger],
		Effects:            t.population[KindEffect],
	}
	if ns := c.lastUpdateNs.Load(); ns != 0 {
		s.LastUpdate = time.Unix(0, ns)
	}
	return s
}
