package spatial

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeSource is an in-memory EntitySource. Tests mutate it only from the
// goroutine that calls Update/Refresh.
type fakeSource struct {
	unloaded  bool
	creatures []CreatureSnapshot
	players   []PlayerSnapshot
	objects   []ObjectSnapshot
	triggers  []TriggerSnapshot
	effects   []EffectSnapshot
	visits    int
}

func (f *fakeSource) Loaded() bool { return !f.unloaded }

func (f *fakeSource) VisitCreatures(area Bounds, fn func(CreatureSnapshot)) {
	f.visits++
	for _, s := range f.creatures {
		fn(s)
	}
}

func (f *fakeSource) VisitPlayers(area Bounds, fn func(PlayerSnapshot)) {
	for _, s := range f.players {
		fn(s)
	}
}

func (f *fakeSource) VisitObjects(area Bounds, fn func(ObjectSnapshot)) {
	for _, s := range f.objects {
		fn(s)
	}
}

func (f *fakeSource) VisitTriggers(area Bounds, fn func(TriggerSnapshot)) {
	for _, s := range f.triggers {
		fn(s)
	}
}

func (f *fakeSource) VisitEffects(area Bounds, fn func(EffectSnapshot)) {
	for _, s := range f.effects {
		fn(s)
	}
}

func (f *fakeSource) addCreature(guid GUID, x, y float64) {
	f.creatures = append(f.creatures, CreatureSnapshot{
		GUID: guid, Pos: Position{X: x, Y: y}, Spawned: true, Alive: true,
		Health: 100, MaxHealth: 100,
	})
}

func (f *fakeSource) removeCreature(guid GUID) {
	for i, s := range f.creatures {
		if s.GUID == guid {
			f.creatures = append(f.creatures[:i], f.creatures[i+1:]...)
			return
		}
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions(cellSize float64) Options {
	opts := DefaultOptions()
	opts.Name = "test"
	opts.CellSize = cellSize
	opts.RefreshInterval = 0
	opts.MaxTrackedRadius = 10_000
	opts.Logger = quietLogger()
	return opts
}

func newTestCache(t testing.TB, src EntitySource, cellSize float64) *Cache {
	t.Helper()
	c, err := New(src, testOptions(cellSize))
	require.NoError(t, err)
	return c
}

func guidsOf[T snapshotValue](items []T) map[GUID]bool {
	out := make(map[GUID]bool, len(items))
	for _, s := range items {
		out[s.ID()] = true
	}
	return out
}
