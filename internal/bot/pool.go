package bot

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"botgrid/internal/spatial"
)

// Bot is one reader. Its position is whatever the cache last reported for
// its own player GUID.
type Bot struct {
	GUID  spatial.GUID
	pos   spatial.Position
	sight float64
}

// NewBot creates a bot for an existing player entity.
func NewBot(guid spatial.GUID, pos spatial.Position, sight float64) *Bot {
	return &Bot{GUID: guid, pos: pos, sight: sight}
}

// Position returns the last position the bot saw itself at.
func (b *Bot) Position() spatial.Position { return b.pos }

// Think performs one query and decision. It reports false when the bot
// cannot see itself (not yet published, despawned, or the cache is closed).
func (b *Bot) Think(c *spatial.Cache) (Decision, bool) {
	seen := c.QueryNearby(b.pos, b.sight)
	for _, p := range seen.Players {
		if p.GUID == b.GUID {
			b.pos = p.Pos
			return Decide(p, seen), true
		}
	}
	return Decision{Bot: b.GUID, Generation: seen.Generation}, false
}

// Config controls a Pool.
type Config struct {
	QueriesPerSecond float64 // per bot
	Logger           *slog.Logger

	// OnDecision receives every decision. It is called concurrently from
	// the bot goroutines.
	OnDecision func(Decision)
}

// Stats summarises pool activity.
type Stats struct {
	Bots     int               `json:"bots"`
	Thinks   uint64            `json:"thinks"`
	Misses   uint64            `json:"misses"` // thinks where the bot could not see itself
	ByAction map[string]uint64 `json:"byAction"`
}

// ErrNoBots is returned by Run on an empty pool.
var ErrNoBots = errors.New("bot: pool has no bots")

// Pool runs a set of bots against one cache, each on its own goroutine.
type Pool struct {
	cache  *spatial.Cache
	cfg    Config
	logger *slog.Logger

	mu   sync.Mutex
	bots []*Bot

	thinks  atomic.Uint64
	misses  atomic.Uint64
	actions [actionCount]atomic.Uint64
}

// NewPool creates an empty pool reading from cache.
func NewPool(cache *spatial.Cache, cfg Config) *Pool {
	if cfg.QueriesPerSecond <= 0 {
		cfg.QueriesPerSecond = 10
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{cache: cache, cfg: cfg, logger: logger}
}

// Add registers a bot. Bots added after Run has started are not run.
func (p *Pool) Add(b *Bot) {
	p.mu.Lock()
	p.bots = append(p.bots, b)
	p.mu.Unlock()
}

// Run starts every bot and blocks until ctx is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	p.mu.Lock()
	bots := append([]*Bot(nil), p.bots...)
	p.mu.Unlock()
	if len(bots) == 0 {
		return ErrNoBots
	}

	p.logger.Info("🤖 Bot pool started",
		slog.Int("bots", len(bots)),
		slog.Float64("qps_per_bot", p.cfg.QueriesPerSecond))

	g, ctx := errgroup.WithContext(ctx)
	for _, b := range bots {
		b := b
		g.Go(func() error {
			return p.loop(ctx, b)
		})
	}
	err := g.Wait()

	p.logger.Info("🤖 Bot pool stopped", slog.Uint64("thinks", p.thinks.Load()))
	return err
}

func (p *Pool) loop(ctx context.Context, b *Bot) error {
	limiter := rate.NewLimiter(rate.Limit(p.cfg.QueriesPerSecond), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			// Wait also fails early when the next token lies past the deadline.
			<-ctx.Done()
			return nil
		}
		p.Step(b)
	}
}

// Step runs a single think for b and records the outcome.
func (p *Pool) Step(b *Bot) (Decision, bool) {
	p.thinks.Add(1)
	d, ok := b.Think(p.cache)
	if !ok {
		p.misses.Add(1)
		return d, false
	}
	p.actions[d.Action].Add(1)
	if p.cfg.OnDecision != nil {
		p.cfg.OnDecision(d)
	}
	return d, true
}

// Stats returns the pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	n := len(p.bots)
	p.mu.Unlock()

	s := Stats{
		Bots:     n,
		Thinks:   p.thinks.Load(),
		Misses:   p.misses.Load(),
		ByAction: make(map[string]uint64, actionCount),
	}
	for a := Action(0); a < actionCount; a++ {
		s.ByAction[a.String()] = p.actions[a].Load()
	}
	return s
}
