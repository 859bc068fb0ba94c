package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"botgrid/internal/bot"
	"botgrid/internal/config"
	"botgrid/internal/spatial"
	"botgrid/internal/world"
)

// newLogger builds the process logger from the log section.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// worldConfig translates one configured map into a world.Config.
func worldConfig(app config.AppConfig, m config.MapConfig, logger *slog.Logger) world.Config {
	opts := spatial.DefaultOptions()
	opts.CellSize = app.Grid.CellSize
	opts.RefreshInterval = app.Grid.RefreshInterval
	opts.MaxTrackedRadius = app.Grid.MaxTrackedRadius

	return world.Config{
		MapID:     m.ID,
		Name:      m.Name,
		Bounds:    spatial.Bounds{MinX: m.MinX, MinY: m.MinY, MaxX: m.MaxX, MaxY: m.MaxY},
		TickRate:  app.World.TickRate,
		Seed:      app.World.Seed,
		QueueSize: app.World.QueueSize,
		Cache:     opts,
		Logger:    logger,
	}
}

func population(p config.PopulationConfig) world.Population {
	return world.Population{
		Creatures:    p.Creatures,
		Players:      p.Players,
		Objects:      p.Objects,
		Triggers:     p.Triggers,
		Effects:      p.Effects,
		HostileRatio: p.HostileRatio,
	}
}

// loadMaps loads every configured map. On failure the maps already loaded
// stay in mgr for the caller to close.
func loadMaps(mgr *world.Manager, app config.AppConfig, logger *slog.Logger) error {
	for _, m := range app.World.Maps {
		if _, err := mgr.Load(worldConfig(app, m, logger), population(m.Population)); err != nil {
			return fmt.Errorf("load map %d (%s): %w", m.ID, m.Name, err)
		}
	}
	return nil
}

// spawnBots creates n bot-controlled players at random spots on w and adds
// a reader for each to pool. A full command queue is retried after a tick.
func spawnBots(ctx context.Context, w *world.World, pool *bot.Pool, n int, sight float64, seed int64) error {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	b := w.Bounds()

	for i := 0; i < n; i++ {
		pos := spatial.Position{
			X: b.MinX + rng.Float64()*(b.MaxX-b.MinX),
			Y: b.MinY + rng.Float64()*(b.MaxY-b.MinY),
		}
		req := world.SpawnRequest{
			Kind:  spatial.KindPlayer,
			Name:  fmt.Sprintf("Bot%04d", i+1),
			Pos:   pos,
			IsBot: true,
		}
		for {
			guid, err := w.Spawn(req)
			if err == nil {
				pool.Add(bot.NewBot(guid, pos, sight))
				break
			}
			if !errors.Is(err, world.ErrQueueFull) {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(50 * time.Millisecond):
			}
		}
	}
	return nil
}

// forwardDecisions returns a bot.Config.OnDecision that submits each
// decision's commands to w. A full queue drops the rest of the decision.
func forwardDecisions(w *world.World, logger *slog.Logger, record func(bot.Decision)) func(bot.Decision) {
	return func(d bot.Decision) {
		if record != nil {
			record(d)
		}
		for _, cmd := range d.Commands() {
			if err := w.Submit(cmd); err != nil {
				if !errors.Is(err, world.ErrQueueFull) && !errors.Is(err, world.ErrMapNotLoaded) {
					logger.Warn("⚠️ bot command rejected",
						slog.Uint64("bot", uint64(d.Bot)),
						slog.String("command", cmd.Type.String()),
						slog.Any("error", err))
				}
				return
			}
		}
	}
}
