package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"botgrid/internal/bot"
	"botgrid/internal/config"
	"botgrid/internal/spatial"
	"botgrid/internal/world"
)

var benchOpts = struct {
	duration  time.Duration
	creatures int
	bots      int
	qps       float64
}{
	duration: 10 * time.Second,
}

// benchResult is what one bench run measured.
type benchResult struct {
	Map     string
	Elapsed time.Duration
	Pool    bot.Stats
	Cache   spatial.Stats
	World   world.Stats
}

func runBench(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	applyBenchOverrides(&cfg)

	res, err := bench(cmd.Context(), cfg, benchOpts.duration, logger)
	if err != nil {
		return err
	}
	printBench(cmd.OutOrStdout(), res)
	return nil
}

func applyBenchOverrides(cfg *config.AppConfig) {
	if benchOpts.bots > 0 {
		cfg.Bots.Count = benchOpts.bots
	}
	if benchOpts.qps > 0 {
		cfg.Bots.QueriesPerSecond = benchOpts.qps
	}
	m, ok := cfg.BotMap()
	if benchOpts.creatures <= 0 || !ok {
		return
	}
	for i := range cfg.World.Maps {
		if cfg.World.Maps[i].ID == m.ID {
			cfg.World.Maps[i].Population.Creatures = benchOpts.creatures
		}
	}
}

// bench loads the bot map alone, runs the bots for d and collects the
// counters.
func bench(ctx context.Context, cfg config.AppConfig, d time.Duration, logger *slog.Logger) (benchResult, error) {
	m, ok := cfg.BotMap()
	if !ok {
		return benchResult{}, errors.New("bench: no map configured")
	}
	if cfg.Bots.Count <= 0 {
		return benchResult{}, bot.ErrNoBots
	}

	mgr := world.NewManager(logger)
	defer mgr.Close()
	w, err := mgr.Load(worldConfig(cfg, m, logger), population(m.Population))
	if err != nil {
		return benchResult{}, err
	}

	pool := bot.NewPool(w.Cache(), bot.Config{
		QueriesPerSecond: cfg.Bots.QueriesPerSecond,
		Logger:           logger,
		OnDecision:       forwardDecisions(w, logger, nil),
	})
	if err := spawnBots(ctx, w, pool, cfg.Bots.Count, cfg.Bots.SightRadius, cfg.World.Seed); err != nil {
		return benchResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	start := time.Now()
	if err := pool.Run(ctx); err != nil {
		return benchResult{}, err
	}

	return benchResult{
		Map:     m.Name,
		Elapsed: time.Since(start),
		Pool:    pool.Stats(),
		Cache:   w.Cache().Stats(),
		World:   w.Stats(),
	}, nil
}

func printBench(out io.Writer, r benchResult) {
	secs := r.Elapsed.Seconds()
	if secs <= 0 {
		secs = 1
	}
	c := r.Cache

	fmt.Fprintf(out, "map %s: %d bots for %s\n", r.Map, r.Pool.Bots, r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "  thinks        %s (%s/s, %s misses)\n",
		humanize.Comma(int64(r.Pool.Thinks)),
		humanize.CommafWithDigits(float64(r.Pool.Thinks)/secs, 1),
		humanize.Comma(int64(r.Pool.Misses)))
	fmt.Fprintf(out, "  queries       %s\n", humanize.Comma(int64(c.QueriesServed)))
	fmt.Fprintf(out, "  swaps         %s (throttled %s, coalesced %s)\n",
		humanize.Comma(int64(c.Swaps)), humanize.Comma(int64(c.Throttled)), humanize.Comma(int64(c.Coalesced)))
	fmt.Fprintf(out, "  ticks         %s (commands %s applied, %s rejected)\n",
		humanize.Comma(int64(r.World.Ticks)),
		humanize.Comma(int64(r.World.CommandsApplied)),
		humanize.Comma(int64(r.World.CommandsRejected)))
	fmt.Fprintf(out, "  population    %s in %s cells\n", humanize.Comma(int64(c.Population)), humanize.Comma(int64(c.ActiveCells)))
	fmt.Fprintf(out, "  last populate %s\n", c.LastPopulate)
	fmt.Fprintf(out, "  memory        %s (peak %s, dense grid %s)\n",
		humanize.IBytes(uint64(c.MemoryBytes)), humanize.IBytes(uint64(c.PeakMemoryBytes)), humanize.IBytes(uint64(c.DenseBaselineBytes)))
	for a := bot.ActionIdle; a <= bot.ActionLoot; a++ {
		fmt.Fprintf(out, "  %-13s %s\n", a.String(), humanize.Comma(int64(r.Pool.ByAction[a.String()])))
	}
}
