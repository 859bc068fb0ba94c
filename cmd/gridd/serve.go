package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"botgrid/internal/api"
	"botgrid/internal/bot"
	"botgrid/internal/config"
	"botgrid/internal/world"
)

const statsLogInterval = 30 * time.Second

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	logger.Info("🎮 ================================")
	logger.Info("🎮  BOTGRID - SPATIAL SNAPSHOT CACHE")
	logger.Info("🎮 ================================")
	logger.Info("🎮 Config",
		slog.Float64("cell_size", cfg.Grid.CellSize),
		slog.Duration("refresh", cfg.Grid.RefreshInterval),
		slog.Int("tick_rate", cfg.World.TickRate),
		slog.Int("maps", len(cfg.World.Maps)),
		slog.Int("bots", cfg.Bots.Count))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mgr := world.NewManager(logger)
	defer mgr.Close()
	if err := loadMaps(mgr, cfg, logger); err != nil {
		return err
	}
	prometheus.MustRegister(api.NewCacheCollector(mgr))

	// Bot setup returns directly on error, so it runs before the group starts.
	pool, err := setupBots(ctx, mgr, cfg, logger)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	server := api.NewServer(api.ServerConfig{
		Addr: ":" + strconv.Itoa(cfg.Server.Port),
		Router: api.RouterConfig{
			Maps: mgr,
			RateLimitConfig: &api.RateLimitConfig{
				RequestsPerSecond: cfg.Server.RateLimit,
				Burst:             cfg.Server.RateBurst,
			},
			CORSOrigins: cfg.Server.AllowedOrigins,
			AdminToken:  cfg.Server.AdminToken,
			Logger:      logger,
		},
		MaxWSPerIP: cfg.Server.MaxWSPerIP,
	})
	if cfg.Server.AdminToken == "" {
		logger.Warn("⚠️ ADMIN_TOKEN not set, entity routes are open")
	}
	g.Go(func() error { return server.Run(ctx) })

	if cfg.Observability.Enabled {
		debug := api.NewDebugServer(api.DebugConfig{
			Addr:          cfg.Observability.Addr,
			BasicAuthUser: cfg.Observability.User,
			BasicAuthPass: cfg.Observability.Password,
			Logger:        logger,
		})
		g.Go(func() error {
			logger.Info("📊 Debug server starting", slog.String("addr", debug.Addr))
			if err := debug.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return debug.Shutdown(shutdownCtx)
		})
	} else {
		logger.Info("📊 Debug server disabled")
	}

	if pool != nil {
		g.Go(func() error { return pool.Run(ctx) })
	}

	g.Go(func() error {
		logStats(ctx, mgr, logger, statsLogInterval)
		return nil
	})

	err = g.Wait()
	logger.Info("👋 Shutting down")
	return err
}

// setupBots spawns the configured bots into the bot map and returns their
// pool, or nil when no bots are configured.
func setupBots(ctx context.Context, mgr *world.Manager, cfg config.AppConfig, logger *slog.Logger) (*bot.Pool, error) {
	if cfg.Bots.Count <= 0 {
		return nil, nil
	}
	m, _ := cfg.BotMap()
	w, err := mgr.Get(m.ID)
	if err != nil {
		return nil, fmt.Errorf("bot map %d: %w", m.ID, err)
	}
	pool := bot.NewPool(w.Cache(), bot.Config{
		QueriesPerSecond: cfg.Bots.QueriesPerSecond,
		Logger:           logger,
		OnDecision: forwardDecisions(w, logger, func(d bot.Decision) {
			api.RecordDecision(d.Action.String())
		}),
	})
	if err := spawnBots(ctx, w, pool, cfg.Bots.Count, cfg.Bots.SightRadius, cfg.World.Seed); err != nil {
		return nil, err
	}
	return pool, nil
}

// logStats periodically logs a humanized summary of every cache.
func logStats(ctx context.Context, mgr *world.Manager, logger *slog.Logger, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, w := range mgr.Maps() {
			s := w.Cache().Stats()
			logger.Info("📊 Cache",
				slog.String("map", s.Name),
				slog.Uint64("generation", s.Generation),
				slog.String("queries", humanize.Comma(int64(s.QueriesServed))),
				slog.Int("population", s.Population),
				slog.Int("cells", s.ActiveCells),
				slog.String("memory", humanize.IBytes(uint64(s.MemoryBytes))),
				slog.String("dense_baseline", humanize.IBytes(uint64(s.DenseBaselineBytes))),
				slog.Duration("last_populate", s.LastPopulate))
		}
	}
}
