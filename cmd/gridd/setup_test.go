package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botgrid/internal/bot"
	"botgrid/internal/config"
	"botgrid/internal/spatial"
	"botgrid/internal/world"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func smallConfig() config.AppConfig {
	cfg := config.Default()
	cfg.Grid.RefreshInterval = 0
	cfg.Grid.MaxTrackedRadius = 1000
	cfg.World.TickRate = 100
	cfg.World.Seed = 7
	cfg.World.Maps = []config.MapConfig{{
		ID: 5, Name: "Arena",
		MinX: -200, MinY: -200, MaxX: 200, MaxY: 200,
		Population: config.PopulationConfig{Creatures: 150, Objects: 40, HostileRatio: 1},
	}}
	cfg.Bots.Count = 8
	cfg.Bots.QueriesPerSecond = 100
	return cfg
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", slog.Int("n", 1))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.EqualValues(t, 1, line["n"])

	buf.Reset()
	newLogger(config.LogConfig{Level: "info", Format: "text"}, &buf).Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestWorldConfig(t *testing.T) {
	cfg := smallConfig()
	cfg.Grid.CellSize = 40
	cfg.Grid.MaxTrackedRadius = 90

	wc := worldConfig(cfg, cfg.World.Maps[0], quietLogger())
	assert.Equal(t, uint32(5), wc.MapID)
	assert.Equal(t, "Arena", wc.Name)
	assert.Equal(t, spatial.Bounds{MinX: -200, MinY: -200, MaxX: 200, MaxY: 200}, wc.Bounds)
	assert.Equal(t, 40.0, wc.Cache.CellSize)
	assert.Equal(t, 90.0, wc.Cache.MaxTrackedRadius)
	assert.Zero(t, wc.Cache.RefreshInterval)
	assert.Equal(t, int64(7), wc.Seed)

	pop := population(cfg.World.Maps[0].Population)
	assert.Equal(t, world.Population{Creatures: 150, Objects: 40, HostileRatio: 1}, pop)
}

func TestLoadMaps(t *testing.T) {
	cfg := smallConfig()
	cfg.World.Maps = append(cfg.World.Maps, config.MapConfig{ID: 6, Name: "Pit", MinX: 0, MinY: 0, MaxX: 10, MaxY: 10})

	mgr := world.NewManager(quietLogger())
	t.Cleanup(mgr.Close)
	require.NoError(t, loadMaps(mgr, cfg, quietLogger()))
	assert.Len(t, mgr.Maps(), 2)

	// Loading the same maps again fails on the first duplicate.
	err := loadMaps(mgr, cfg, quietLogger())
	assert.ErrorIs(t, err, world.ErrMapLoaded)
}

func TestSpawnBots(t *testing.T) {
	cfg := smallConfig()
	mgr := world.NewManager(quietLogger())
	t.Cleanup(mgr.Close)
	w, err := mgr.Load(worldConfig(cfg, cfg.World.Maps[0], quietLogger()), world.Population{})
	require.NoError(t, err)

	pool := bot.NewPool(w.Cache(), bot.Config{Logger: quietLogger()})
	require.NoError(t, spawnBots(context.Background(), w, pool, 10, 60, 1))
	assert.Equal(t, 10, pool.Stats().Bots)

	require.Eventually(t, func() bool {
		players := w.Cache().QueryPlayers(spatial.Position{}, 1e6)
		return len(players) == 10
	}, 2*time.Second, 10*time.Millisecond)
	for _, p := range w.Cache().QueryPlayers(spatial.Position{}, 1e6) {
		assert.True(t, p.IsBot)
	}
}

func TestSetupBots(t *testing.T) {
	cfg := smallConfig()

	t.Run("no bots", func(t *testing.T) {
		mgr := world.NewManager(quietLogger())
		t.Cleanup(mgr.Close)
		noBots := cfg
		noBots.Bots.Count = 0
		pool, err := setupBots(context.Background(), mgr, noBots, quietLogger())
		require.NoError(t, err)
		assert.Nil(t, pool)
	})

	t.Run("bot map not loaded", func(t *testing.T) {
		mgr := world.NewManager(quietLogger())
		t.Cleanup(mgr.Close)
		pool, err := setupBots(context.Background(), mgr, cfg, quietLogger())
		assert.ErrorIs(t, err, world.ErrMapNotLoaded)
		assert.Nil(t, pool)
	})

	t.Run("spawns into the bot map", func(t *testing.T) {
		mgr := world.NewManager(quietLogger())
		t.Cleanup(mgr.Close)
		require.NoError(t, loadMaps(mgr, cfg, quietLogger()))
		pool, err := setupBots(context.Background(), mgr, cfg, quietLogger())
		require.NoError(t, err)
		require.NotNil(t, pool)
		assert.Equal(t, cfg.Bots.Count, pool.Stats().Bots)
	})
}

func TestBench(t *testing.T) {
	if testing.Short() {
		t.Skip("runs a live world")
	}
	cfg := smallConfig()

	res, err := bench(context.Background(), cfg, 300*time.Millisecond, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "Arena", res.Map)
	assert.Equal(t, 8, res.Pool.Bots)
	assert.Positive(t, res.Pool.Thinks)
	assert.Positive(t, res.Cache.QueriesServed)
	assert.Positive(t, res.World.Ticks)

	var out bytes.Buffer
	printBench(&out, res)
	assert.Contains(t, out.String(), "map Arena: 8 bots")
	assert.Contains(t, out.String(), "thinks")
	assert.Contains(t, out.String(), "attack")
}

func TestBench_NoBots(t *testing.T) {
	cfg := smallConfig()
	cfg.Bots.Count = 0
	_, err := bench(context.Background(), cfg, time.Millisecond, quietLogger())
	assert.ErrorIs(t, err, bot.ErrNoBots)
}

func TestRootCommand(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["bench"])
	assert.NotNil(t, benchCmd.Flags().Lookup("duration"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
}
