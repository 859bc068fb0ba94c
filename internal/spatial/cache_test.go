package spatial

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsMisconfiguration(t *testing.T) {
	cases := map[string]func(*Options){
		"zero cell size":     func(o *Options) { o.CellSize = 0 },
		"negative cell size": func(o *Options) { o.CellSize = -64 },
		"NaN cell size":      func(o *Options) { o.CellSize = math.NaN() },
		"infinite cell size": func(o *Options) { o.CellSize = math.Inf(1) },
		"negative interval":  func(o *Options) { o.RefreshInterval = -time.Millisecond },
		"zero max radius":    func(o *Options) { o.MaxTrackedRadius = 0 },
		"inverted area":      func(o *Options) { o.Area = Bounds{MinX: 10, MaxX: -10, MinY: 0, MaxY: 1} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			opts := testOptions(64)
			mutate(&opts)
			c, err := New(&fakeSource{}, opts)
			assert.Nil(t, c)
			assert.ErrorIs(t, err, ErrInvalidOptions)
		})
	}
}

func TestNew_StartsEmpty(t *testing.T) {
	c := newTestCache(t, &fakeSource{}, 64)
	assert.Empty(t, c.QueryCreatures(Position{}, 1000))
	assert.Equal(t, uint64(0), c.Stats().Generation)
}

// One entity at (100,100), cell size 64.
func TestExampleScenario(t *testing.T) {
	src := &fakeSource{}
	src.addCreature(1, 100, 100)
	c := newTestCache(t, src, 64)
	require.True(t, c.Refresh())

	found := c.QueryCreatures(Position{X: 105, Y: 105}, 10)
	require.Len(t, found, 1)
	assert.Equal(t, GUID(1), found[0].GUID)

	assert.Empty(t, c.QueryCreatures(Position{X: 500, Y: 500}, 10))

	src.removeCreature(1)
	require.True(t, c.Refresh())
	assert.Empty(t, c.QueryCreatures(Position{X: 105, Y: 105}, 10))
}

func TestQuery_CoverageMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	src := &fakeSource{}
	var next GUID = 1
	randPos := func() Position {
		return Position{X: rng.Float64()*3000 - 1500, Y: rng.Float64()*3000 - 1500}
	}
	for i := 0; i < 400; i++ {
		src.creatures = append(src.creatures, CreatureSnapshot{GUID: next, Pos: randPos(), Spawned: true})
		next++
		src.players = append(src.players, PlayerSnapshot{GUID: next, Pos: randPos(), Spawned: true})
		next++
		src.objects = append(src.objects, ObjectSnapshot{GUID: next, Pos: randPos(), Spawned: true})
		next++
		src.triggers = append(src.triggers, TriggerSnapshot{GUID: next, Pos: randPos(), Spawned: true})
		next++
		src.effects = append(src.effects, EffectSnapshot{GUID: next, Pos: randPos(), Spawned: true})
		next++
	}

	c := newTestCache(t, src, 66)
	require.True(t, c.Refresh())

	for i := 0; i < 200; i++ {
		center := randPos()
		radius := rng.Float64() * 400

		assert.Equal(t, bruteForce(src.creatures, center, radius), guidsOf(c.QueryCreatures(center, radius)))
		assert.Equal(t, bruteForce(src.players, center, radius), guidsOf(c.QueryPlayers(center, radius)))
		assert.Equal(t, bruteForce(src.objects, center, radius), guidsOf(c.QueryObjects(center, radius)))
		assert.Equal(t, bruteForce(src.triggers, center, radius), guidsOf(c.QueryTriggers(center, radius)))
		assert.Equal(t, bruteForce(src.effects, center, radius), guidsOf(c.QueryEffects(center, radius)))
	}
}

func bruteForce[T snapshotValue](items []T, center Position, radius float64) map[GUID]bool {
	out := make(map[GUID]bool)
	for _, s := range items {
		p := s.Location()
		dx, dy := p.X-center.X, p.Y-center.Y
		if dx*dx+dy*dy <= radius*radius {
			out[s.ID()] = true
		}
	}
	return out
}

func TestQuery_CellBoundaryEntities(t *testing.T) {
	src := &fakeSource{}
	// Entities sitting exactly on cell edges, on both sides of the origin.
	src.addCreature(1, 64, 0)
	src.addCreature(2, 0, 64)
	src.addCreature(3, -64, 0)
	src.addCreature(4, 0, -64)
	src.addCreature(5, 128, 128)
	c := newTestCache(t, src, 64)
	require.True(t, c.Refresh())

	// Exactly at distance r from the centre, across a boundary.
	got := guidsOf(c.QueryCreatures(Position{X: 0, Y: 0}, 64))
	assert.Equal(t, map[GUID]bool{1: true, 2: true, 3: true, 4: true}, got)

	got = guidsOf(c.QueryCreatures(Position{X: 63.5, Y: 63.5}, 0.5))
	assert.Empty(t, got)

	got = guidsOf(c.QueryCreatures(Position{X: 127.9, Y: 127.9}, 0.2))
	assert.Equal(t, map[GUID]bool{5: true}, got)

	got = guidsOf(c.QueryCreatures(Position{X: -63.99, Y: 0}, 0.02))
	assert.Equal(t, map[GUID]bool{3: true}, got)
}

func TestUpdate_StalenessBound(t *testing.T) {
	src := &fakeSource{}
	c := newTestCache(t, src, 64)
	require.True(t, c.Refresh())

	src.addCreature(7, 10, 10)
	assert.Empty(t, c.QueryCreatures(Position{X: 10, Y: 10}, 5), "visible before publish")

	require.True(t, c.Refresh())
	assert.Len(t, c.QueryCreatures(Position{X: 10, Y: 10}, 5), 1)
}

func TestQuery_Idempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	src := &fakeSource{}
	for i := 1; i <= 200; i++ {
		src.addCreature(GUID(i), rng.Float64()*500, rng.Float64()*500)
	}
	c := newTestCache(t, src, 64)
	require.True(t, c.Refresh())

	center := Position{X: 250, Y: 250}
	first, gen1 := query(c, center, 120, pickCreatures)
	second, gen2 := query(c, center, 120, pickCreatures)
	assert.Equal(t, gen1, gen2)
	assert.Equal(t, first, second)
	assert.NotEmpty(t, first)
}

func TestQuery_ResultsAreOwnedCopies(t *testing.T) {
	src := &fakeSource{}
	src.addCreature(1, 10, 10)
	c := newTestCache(t, src, 64)
	require.True(t, c.Refresh())

	held := c.QueryCreatures(Position{X: 10, Y: 10}, 5)
	require.Len(t, held, 1)
	held[0].Health = 1
	held[0].Pos.X = 9999

	again := c.QueryCreatures(Position{X: 10, Y: 10}, 5)
	require.Len(t, again, 1)
	assert.Equal(t, uint32(100), again[0].Health)

	// Later generations do not disturb what a caller already holds.
	src.removeCreature(1)
	src.addCreature(2, 10, 10)
	c.Refresh()
	c.Refresh()
	assert.Equal(t, GUID(1), held[0].GUID)
	assert.Equal(t, uint32(1), held[0].Health)
}

func TestQuery_InvalidInputReturnsEmpty(t *testing.T) {
	src := &fakeSource{}
	src.addCreature(1, 0, 0)
	c := newTestCache(t, src, 64)
	require.True(t, c.Refresh())

	assert.Empty(t, c.QueryCreatures(Position{}, -1))
	assert.Empty(t, c.QueryCreatures(Position{}, math.NaN()))
	assert.Empty(t, c.QueryCreatures(Position{X: math.NaN()}, 10))
	assert.Len(t, c.QueryCreatures(Position{}, 0), 1)
}

func TestQuery_FindsEntitiesBeyondCellRange(t *testing.T) {
	src := &fakeSource{}
	src.addCreature(1, 1e12, 0)
	src.addCreature(2, -1e12, 0)
	src.addCreature(3, 0, 1e12)
	c := newTestCache(t, src, 64)
	require.True(t, c.Refresh())
	require.Equal(t, 3, c.Stats().Population)

	assert.Equal(t, map[GUID]bool{1: true}, guidsOf(c.QueryCreatures(Position{X: 1e12}, 10)))
	assert.Equal(t, map[GUID]bool{2: true}, guidsOf(c.QueryCreatures(Position{X: -1e12}, 10)))
	assert.Equal(t, map[GUID]bool{3: true}, guidsOf(c.QueryCreatures(Position{Y: 1e12}, 10)))
	assert.Empty(t, c.QueryCreatures(Position{X: 1e12 + 1000}, 10))
}

func TestQuery_RadiusClampedToMaxTracked(t *testing.T) {
	src := &fakeSource{}
	src.addCreature(1, 50, 0)
	src.addCreature(2, 150, 0)
	opts := testOptions(64)
	opts.MaxTrackedRadius = 100
	c, err := New(src, opts)
	require.NoError(t, err)
	require.True(t, c.Refresh())

	assert.Equal(t, map[GUID]bool{1: true}, guidsOf(c.QueryCreatures(Position{}, 1e6)))
}

func TestQueryNearby_SingleGeneration(t *testing.T) {
	src := &fakeSource{}
	src.addCreature(1, 0, 0)
	src.players = append(src.players, PlayerSnapshot{GUID: 2, Pos: Position{X: 1}, Spawned: true})
	src.objects = append(src.objects, ObjectSnapshot{GUID: 3, Pos: Position{X: 2}, Spawned: true})
	src.triggers = append(src.triggers, TriggerSnapshot{GUID: 4, Pos: Position{X: 3}, Spawned: true})
	src.effects = append(src.effects, EffectSnapshot{GUID: 5, Pos: Position{X: 4}, Spawned: true})
	c := newTestCache(t, src, 64)
	require.True(t, c.Refresh())
	require.True(t, c.Refresh())

	n := c.QueryNearby(Position{}, 10)
	assert.Equal(t, uint64(2), n.Generation)
	assert.Equal(t, 5, n.Len())
	assert.Equal(t, n.Generation, n.Creatures[0].Generation)
	assert.Equal(t, n.Generation, n.Players[0].Generation)
	assert.Equal(t, n.Generation, n.Objects[0].Generation)
	assert.Equal(t, n.Generation, n.Triggers[0].Generation)
	assert.Equal(t, n.Generation, n.Effects[0].Generation)
}

func TestPopulate_SkipsInvalidEntities(t *testing.T) {
	src := &fakeSource{}
	src.addCreature(1, 10, 10)
	src.creatures = append(src.creatures,
		CreatureSnapshot{GUID: EmptyGUID, Pos: Position{X: 10, Y: 10}, Spawned: true},
		CreatureSnapshot{GUID: 2, Pos: Position{X: math.NaN(), Y: 10}, Spawned: true},
		CreatureSnapshot{GUID: 3, Pos: Position{X: 10, Y: math.Inf(-1)}, Spawned: true},
		CreatureSnapshot{GUID: 4, Pos: Position{X: 10, Y: 10}, Spawned: false},
	)
	c := newTestCache(t, src, 64)
	require.True(t, c.Refresh())

	got := c.QueryCreatures(Position{X: 10, Y: 10}, 50)
	assert.Equal(t, map[GUID]bool{1: true}, guidsOf(got))

	s := c.Stats()
	assert.Equal(t, 1, s.Population)
	assert.Equal(t, uint64(4), s.Skipped)
}

func TestPopulate_AreaRestrictsEntities(t *testing.T) {
	src := &fakeSource{}
	src.addCreature(1, 10, 10)
	src.addCreature(2, 500, 500)
	opts := testOptions(64)
	opts.Area = Bounds{MinX: 0, MinY: 0, MaxX: 100, MaxY: 100}
	c, err := New(src, opts)
	require.NoError(t, err)
	require.True(t, c.Refresh())

	assert.Equal(t, map[GUID]bool{1: true}, guidsOf(c.QueryCreatures(Position{}, 1000)))
}

func TestUpdate_UnloadedSourcePublishesEmpty(t *testing.T) {
	src := &fakeSource{}
	src.addCreature(1, 0, 0)
	c := newTestCache(t, src, 64)
	require.True(t, c.Refresh())
	require.Len(t, c.QueryCreatures(Position{}, 10), 1)

	src.unloaded = true
	require.True(t, c.Refresh())
	assert.Empty(t, c.QueryCreatures(Position{}, 10))
	assert.Equal(t, uint64(2), c.Stats().Swaps)
}

func TestUpdate_NilSource(t *testing.T) {
	c, err := New(nil, testOptions(64))
	require.NoError(t, err)
	assert.True(t, c.Refresh())
	assert.Empty(t, c.QueryNearby(Position{}, 100).Creatures)
}

func TestUpdate_Throttled(t *testing.T) {
	src := &fakeSource{}
	opts := testOptions(64)
	opts.RefreshInterval = 100 * time.Millisecond
	c, err := New(src, opts)
	require.NoError(t, err)

	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	assert.True(t, c.Update(), "first update always runs")
	assert.False(t, c.Update())
	now = now.Add(99 * time.Millisecond)
	assert.False(t, c.Update())
	now = now.Add(time.Millisecond)
	assert.True(t, c.Update())
	assert.True(t, c.Refresh(), "refresh ignores the throttle")

	s := c.Stats()
	assert.Equal(t, uint64(5), s.UpdateCalls)
	assert.Equal(t, uint64(2), s.Throttled)
	assert.Equal(t, uint64(3), s.Swaps)
	assert.Equal(t, 3, src.visits)
}

func TestUpdate_CoalescesConcurrentCaller(t *testing.T) {
	src := &fakeSource{}
	c := newTestCache(t, src, 64)

	// Simulate a populate pass already in flight.
	c.updateMu.Lock()
	assert.False(t, c.Update())
	assert.False(t, c.Refresh())
	c.updateMu.Unlock()

	s := c.Stats()
	assert.Equal(t, uint64(2), s.Coalesced)
	assert.Equal(t, uint64(0), s.Swaps)
	assert.Equal(t, 0, src.visits)
}

func TestUpdate_AlternatesBuffers(t *testing.T) {
	c := newTestCache(t, &fakeSource{}, 64)
	assert.Equal(t, "A", c.Stats().ActiveBuffer)
	c.Refresh()
	assert.Equal(t, "B", c.Stats().ActiveBuffer)
	c.Refresh()
	assert.Equal(t, "A", c.Stats().ActiveBuffer)
}

func TestClose_ReleasesBuffers(t *testing.T) {
	src := &fakeSource{}
	src.addCreature(1, 0, 0)
	c := newTestCache(t, src, 64)
	require.True(t, c.Refresh())

	c.Close()
	assert.True(t, c.Closed())
	assert.Empty(t, c.QueryCreatures(Position{}, 10))
	assert.False(t, c.Refresh())
	assert.Equal(t, 0, c.Stats().ActiveCells)

	c.Close() // idempotent
}

func TestStats_TracksPopulation(t *testing.T) {
	src := &fakeSource{}
	src.addCreature(1, 0, 0)
	src.addCreature(2, 1000, 1000)
	src.players = append(src.players, PlayerSnapshot{GUID: 3, Name: "Bot", Pos: Position{X: 5}, Spawned: true})
	c := newTestCache(t, src, 64)
	require.True(t, c.Refresh())

	c.QueryCreatures(Position{}, 10)
	c.QueryNearby(Position{}, 10)

	s := c.Stats()
	assert.Equal(t, "test", s.Name)
	assert.Equal(t, 3, s.Population)
	assert.Equal(t, 2, s.Creatures)
	assert.Equal(t, 1, s.Players)
	assert.Equal(t, 2, s.ActiveCells)
	assert.Equal(t, uint64(2), s.QueriesServed)
	assert.Equal(t, uint64(1), s.Updates)
	assert.Positive(t, s.MemoryBytes)
	assert.GreaterOrEqual(t, s.PeakMemoryBytes, s.MemoryBytes)
	assert.Greater(t, s.DenseBaselineBytes, s.MemoryBytes)
	assert.False(t, s.LastUpdate.IsZero())
}

func TestActiveCells_ReportsOccupancy(t *testing.T) {
	src := &fakeSource{}
	src.addCreature(1, 1, 1)
	src.addCreature(2, 2, 2)
	src.effects = append(src.effects, EffectSnapshot{GUID: 3, Pos: Position{X: -1, Y: -1}, Spawned: true})
	c := newTestCache(t, src, 64)
	require.True(t, c.Refresh())

	cells := c.ActiveCells()
	require.Len(t, cells, 2)
	byKey := map[CellKey]CellOccupancy{}
	for _, o := range cells {
		byKey[o.Key] = o
	}
	assert.Equal(t, 2, byKey[PackCellKey(0, 0)].Counts[KindCreature])
	assert.Equal(t, 1, byKey[PackCellKey(-1, -1)].Counts[KindEffect])
	assert.Equal(t, 1, byKey[PackCellKey(-1, -1)].Total())
}

func TestSnapshot_DerivedFields(t *testing.T) {
	c := CreatureSnapshot{Health: 25, MaxHealth: 200}
	assert.InDelta(t, 12.5, c.HealthPct(), 1e-9)
	assert.Zero(t, CreatureSnapshot{}.HealthPct())

	p := PlayerSnapshot{Health: 50, MaxHealth: 100, Power: 30, MaxPower: 120}
	assert.InDelta(t, 50, p.HealthPct(), 1e-9)
	assert.InDelta(t, 25, p.PowerPct(), 1e-9)

	tr := TriggerSnapshot{Pos: Position{X: 10}, Radius: 5, Duration: 10 * time.Second, Remaining: 2500 * time.Millisecond}
	assert.InDelta(t, 0.25, tr.RemainingFraction(), 1e-9)
	assert.True(t, tr.Covers(Position{X: 15}))
	assert.False(t, tr.Covers(Position{X: 15.1}))
	assert.Equal(t, 1.0, TriggerSnapshot{}.RemainingFraction())

	e := EffectSnapshot{Radius: 3, Duration: time.Second, Remaining: -time.Second}
	assert.Zero(t, e.RemainingFraction())
	assert.True(t, e.Covers(Position{Y: 3}))
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("effects")
	assert.True(t, ok)
	assert.Equal(t, KindEffect, k)
	assert.Equal(t, "effect", k.String())

	_, ok = ParseKind("dragons")
	assert.False(t, ok)
}
