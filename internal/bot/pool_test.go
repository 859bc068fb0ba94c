package bot

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botgrid/internal/spatial"
)

// staticSource serves a fixed set of entities.
type staticSource struct {
	players   []spatial.PlayerSnapshot
	creatures []spatial.CreatureSnapshot
}

func (s *staticSource) Loaded() bool { return true }

func (s *staticSource) VisitCreatures(_ spatial.Bounds, fn func(spatial.CreatureSnapshot)) {
	for _, c := range s.creatures {
		fn(c)
	}
}

func (s *staticSource) VisitPlayers(_ spatial.Bounds, fn func(spatial.PlayerSnapshot)) {
	for _, p := range s.players {
		fn(p)
	}
}

func (s *staticSource) VisitObjects(spatial.Bounds, func(spatial.ObjectSnapshot))   {}
func (s *staticSource) VisitTriggers(spatial.Bounds, func(spatial.TriggerSnapshot)) {}
func (s *staticSource) VisitEffects(spatial.Bounds, func(spatial.EffectSnapshot))   {}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCache(t *testing.T, src spatial.EntitySource) *spatial.Cache {
	t.Helper()
	opts := spatial.DefaultOptions()
	opts.Logger = quietLogger()
	c, err := spatial.New(src, opts)
	require.NoError(t, err)
	require.True(t, c.Refresh())
	return c
}

func TestBot_Think(t *testing.T) {
	src := &staticSource{
		players:   []spatial.PlayerSnapshot{{GUID: 1, Pos: spatial.Position{X: 11, Y: 0}, Health: 100, MaxHealth: 100, Alive: true, Spawned: true}},
		creatures: []spatial.CreatureSnapshot{hostile(2, 30, 0)},
	}
	c := newTestCache(t, src)

	// The bot starts from a stale position and learns its real one.
	b := NewBot(1, spatial.Position{X: 10, Y: 0}, 60)
	d, ok := b.Think(c)
	require.True(t, ok)
	assert.Equal(t, spatial.Position{X: 11, Y: 0}, b.Position())
	assert.Equal(t, ActionAttack, d.Action)
	assert.Equal(t, spatial.GUID(2), d.Target)
	assert.Equal(t, uint64(1), d.Generation)
}

func TestBot_ThinkMissesWhenInvisible(t *testing.T) {
	c := newTestCache(t, &staticSource{})
	b := NewBot(1, spatial.Position{}, 60)
	d, ok := b.Think(c)
	assert.False(t, ok)
	assert.Equal(t, ActionIdle, d.Action)
}

func TestPool_RunEmpty(t *testing.T) {
	p := NewPool(newTestCache(t, &staticSource{}), Config{Logger: quietLogger()})
	assert.ErrorIs(t, p.Run(context.Background()), ErrNoBots)
}

func TestPool_RunUntilCancelled(t *testing.T) {
	src := &staticSource{creatures: []spatial.CreatureSnapshot{hostile(100, 0, 0)}}
	for i := 1; i <= 20; i++ {
		src.players = append(src.players, spatial.PlayerSnapshot{
			GUID: spatial.GUID(i), Pos: spatial.Position{X: float64(i)}, Health: 100, MaxHealth: 100, Alive: true, Spawned: true,
		})
	}
	c := newTestCache(t, src)

	var decisions atomic.Int64
	p := NewPool(c, Config{
		QueriesPerSecond: 200,
		Logger:           quietLogger(),
		OnDecision:       func(Decision) { decisions.Add(1) },
	})
	for i := 1; i <= 20; i++ {
		p.Add(NewBot(spatial.GUID(i), spatial.Position{X: float64(i)}, 60))
	}
	p.Add(NewBot(999, spatial.Position{}, 60)) // never published

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	require.NoError(t, p.Run(ctx))

	s := p.Stats()
	assert.Equal(t, 21, s.Bots)
	assert.Positive(t, s.Misses)
	assert.Equal(t, s.Thinks, s.Misses+uint64(decisions.Load()))
	assert.Equal(t, uint64(decisions.Load()), s.ByAction["attack"])
	assert.Zero(t, s.ByAction["flee"])
}

func TestPool_StepAfterCacheClosed(t *testing.T) {
	src := &staticSource{players: []spatial.PlayerSnapshot{{GUID: 1, Alive: true, Spawned: true, MaxHealth: 1, Health: 1}}}
	c := newTestCache(t, src)
	p := NewPool(c, Config{Logger: quietLogger()})
	b := NewBot(1, spatial.Position{}, 60)

	_, ok := p.Step(b)
	require.True(t, ok)

	c.Close()
	_, ok = p.Step(b)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), p.Stats().Misses)
}
