// Package world is the authoritative simulation of one or more map regions.
// Each World owns mutable entity state that only its tick goroutine touches,
// and publishes that state to readers through a spatial.Cache.
package world

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"botgrid/internal/spatial"
)

const (
	defaultTickRate   = 20
	defaultQueueSize  = 4096
	combatTimeout     = 5 * time.Second
	playerReviveDelay = 10 * time.Second
	wanderChance      = 0.02 // per tick, for an idle creature at its destination
	regenPerSecond    = 0.02 // fraction of max health/power
)

// Config configures one World.
type Config struct {
	MapID     uint32
	Name      string
	Bounds    spatial.Bounds
	TickRate  int
	Seed      int64 // 0 picks a time-based seed
	QueueSize int

	// Cache options for the region. Name and Logger are filled in by New.
	Cache spatial.Options

	Logger *slog.Logger
}

// Population is the initial entity mix created by Populate. Effects that
// expire are replaced over time so the count stays roughly stable.
type Population struct {
	Creatures    int
	Players      int
	Objects      int
	Triggers     int
	Effects      int
	HostileRatio float64
}

// Stats is a snapshot of a world's counters.
type Stats struct {
	MapID            uint32         `json:"mapId"`
	Name             string         `json:"name"`
	Bounds           spatial.Bounds `json:"bounds"`
	Running          bool           `json:"running"`
	Loaded           bool           `json:"loaded"`
	Ticks            uint64         `json:"ticks"`
	CommandsApplied  uint64         `json:"commandsApplied"`
	CommandsRejected uint64         `json:"commandsRejected"`
	QueueDepth       int            `json:"queueDepth"`
}

// World is one simulated map region. It implements spatial.EntitySource.
type World struct {
	id       uint32
	name     string
	bounds   spatial.Bounds
	tickRate int
	dt       time.Duration
	logger   *slog.Logger
	cache    *spatial.Cache
	queue    *Queue[Command]

	nextGUID atomic.Uint64
	loaded   atomic.Bool

	// Tick-goroutine state. Only tick, and Populate before Start, touch it.
	creatures map[spatial.GUID]*creature
	players   map[spatial.GUID]*player
	objects   map[spatial.GUID]*object
	triggers  map[spatial.GUID]*area
	effects   map[spatial.GUID]*area
	rng       *rand.Rand
	rngSeed   int64
	cmdBuf    []Command
	pop       Population

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	done     chan struct{}

	ticks    atomic.Uint64
	applied  atomic.Uint64
	rejected atomic.Uint64
}

// New creates a loaded, stopped world with an empty cache.
func New(cfg Config) (*World, error) {
	b := cfg.Bounds
	if b.IsZero() || !(b.MaxX > b.MinX) || !(b.MaxY > b.MinY) {
		return nil, fmt.Errorf("world %q: invalid bounds %+v", cfg.Name, b)
	}
	if cfg.TickRate <= 0 {
		cfg.TickRate = defaultTickRate
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.Uint64("map", uint64(cfg.MapID)))

	w := &World{
		id:        cfg.MapID,
		name:      cfg.Name,
		bounds:    b,
		tickRate:  cfg.TickRate,
		dt:        time.Second / time.Duration(cfg.TickRate),
		logger:    logger,
		queue:     NewQueue[Command](cfg.QueueSize),
		creatures: make(map[spatial.GUID]*creature),
		players:   make(map[spatial.GUID]*player),
		objects:   make(map[spatial.GUID]*object),
		triggers:  make(map[spatial.GUID]*area),
		effects:   make(map[spatial.GUID]*area),
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		rngSeed:   cfg.Seed,
		cmdBuf:    make([]Command, 256),
	}

	opts := cfg.Cache
	opts.Name = cfg.Name
	opts.Logger = logger
	cache, err := spatial.New(w, opts)
	if err != nil {
		return nil, fmt.Errorf("world %q: %w", cfg.Name, err)
	}
	w.cache = cache
	w.loaded.Store(true)
	return w, nil
}

// ID returns the map ID.
func (w *World) ID() uint32 { return w.id }

// Name returns the map name.
func (w *World) Name() string { return w.name }

// Bounds returns the playable area.
func (w *World) Bounds() spatial.Bounds { return w.bounds }

// Cache returns the region's snapshot cache.
func (w *World) Cache() *spatial.Cache { return w.cache }

// Start begins the tick loop.
func (w *World) Start() {
	w.mu.Lock()
	if w.running || !w.loaded.Load() {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.stopChan = make(chan struct{})
	w.done = make(chan struct{})
	stop, done := w.stopChan, w.done
	w.mu.Unlock()

	ticker := time.NewTicker(w.dt)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.tick()
			case <-stop:
				return
			}
		}
	}()

	w.logger.Info("🎮 World started",
		slog.String("name", w.name),
		slog.Int("tps", w.tickRate),
		slog.Int64("seed", w.rngSeed))
}

// Stop halts the tick loop and waits for the current tick to finish.
func (w *World) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopChan)
	done := w.done
	w.mu.Unlock()

	<-done
	w.logger.Info("🛑 World stopped", slog.Uint64("ticks", w.ticks.Load()))
}

// Running reports whether the tick loop is active.
func (w *World) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Close stops the world, publishes an empty buffer and releases the cache.
func (w *World) Close() {
	w.Stop()
	w.loaded.Store(false)
	w.cache.Refresh()
	w.cache.Close()
}

// Stats returns the world's counters.
func (w *World) Stats() Stats {
	return Stats{
		MapID:            w.id,
		Name:             w.name,
		Bounds:           w.bounds,
		Running:          w.Running(),
		Loaded:           w.loaded.Load(),
		Ticks:            w.ticks.Load(),
		CommandsApplied:  w.applied.Load(),
		CommandsRejected: w.rejected.Load(),
		QueueDepth:       w.queue.Len(),
	}
}

// Submit queues a command for the next tick. Safe from any goroutine.
func (w *World) Submit(cmd Command) error {
	if !w.loaded.Load() {
		return ErrMapNotLoaded
	}
	if cmd.Type == CmdSpawn {
		if err := cmd.Spawn.Validate(); err != nil {
			return err
		}
		if cmd.GUID == spatial.EmptyGUID {
			cmd.GUID = w.allocGUID()
		}
	} else if cmd.GUID == spatial.EmptyGUID {
		return fmt.Errorf("%w: %s without a target", ErrBadCommand, cmd.Type)
	}
	if !w.queue.TryPush(cmd) {
		return ErrQueueFull
	}
	return nil
}

// Spawn queues a new entity and returns the GUID it will carry.
func (w *World) Spawn(req SpawnRequest) (spatial.GUID, error) {
	if err := req.Validate(); err != nil {
		return spatial.EmptyGUID, err
	}
	guid := w.allocGUID()
	if err := w.Submit(Command{Type: CmdSpawn, GUID: guid, Spawn: req}); err != nil {
		return spatial.EmptyGUID, err
	}
	return guid, nil
}

func (w *World) allocGUID() spatial.GUID {
	return spatial.GUID(w.nextGUID.Add(1))
}

// Populate creates the initial entities and publishes the first buffer.
// It must be called before Start.
func (w *World) Populate(p Population) error {
	if w.Running() {
		return ErrRunning
	}
	w.pop = p
	for i := 0; i < p.Creatures; i++ {
		w.addCreature(w.randomCreature(p.HostileRatio))
	}
	for i := 0; i < p.Players; i++ {
		w.addPlayer(w.randomPlayer())
	}
	for i := 0; i < p.Objects; i++ {
		w.addObject(w.randomObject())
	}
	for i := 0; i < p.Triggers; i++ {
		w.addTrigger(w.randomArea(p.HostileRatio, 0))
	}
	for i := 0; i < p.Effects; i++ {
		w.addEffect(w.randomArea(p.HostileRatio, w.randomLifetime()))
	}
	w.cache.Refresh()

	w.logger.Info("🌍 World populated",
		slog.String("name", w.name),
		slog.Int("creatures", p.Creatures),
		slog.Int("players", p.Players),
		slog.Int("objects", p.Objects),
		slog.Int("triggers", p.Triggers),
		slog.Int("effects", p.Effects))
	return nil
}

// tick is called tickRate times per second on the world goroutine.
func (w *World) tick() {
	w.ticks.Add(1)

	n := w.queue.DrainTo(w.cmdBuf)
	for i := 0; i < n; i++ {
		cmd := w.cmdBuf[i]
		w.cmdBuf[i] = Command{}
		if err := w.apply(cmd); err != nil {
			w.rejected.Add(1)
			w.logger.Debug("command rejected",
				slog.String("type", cmd.Type.String()),
				slog.Uint64("guid", uint64(cmd.GUID)),
				slog.Any("err", err))
			continue
		}
		w.applied.Add(1)
	}

	w.advance(w.dt)
	w.cache.Update()
}

// ErrNoEntity is returned when a command targets a GUID the world does not
// hold (never spawned, despawned, or the wrong kind for the command).
var ErrNoEntity = errors.New("world: no such entity")

func (w *World) apply(cmd Command) error {
	switch cmd.Type {
	case CmdSpawn:
		return w.spawn(cmd.GUID, cmd.Spawn)

	case CmdDespawn:
		switch {
		case w.creatures[cmd.GUID] != nil:
			delete(w.creatures, cmd.GUID)
		case w.players[cmd.GUID] != nil:
			delete(w.players, cmd.GUID)
		case w.objects[cmd.GUID] != nil:
			delete(w.objects, cmd.GUID)
		case w.triggers[cmd.GUID] != nil:
			delete(w.triggers, cmd.GUID)
		case w.effects[cmd.GUID] != nil:
			delete(w.effects, cmd.GUID)
		default:
			return ErrNoEntity
		}
		return nil

	case CmdMove:
		if !cmd.Pos.Valid() {
			return fmt.Errorf("%w: position is not finite", ErrBadCommand)
		}
		pos := w.clampPos(cmd.Pos)
		if c := w.creatures[cmd.GUID]; c != nil {
			c.pos, c.dest = pos, pos
			return nil
		}
		if p := w.players[cmd.GUID]; p != nil {
			p.pos = pos
			return nil
		}
		return ErrNoEntity

	case CmdDamage:
		if c := w.creatures[cmd.GUID]; c != nil {
			if c.damage(cmd.Amount, cmd.Source) {
				w.logger.Debug("creature killed",
					slog.Uint64("guid", uint64(c.guid)),
					slog.Uint64("killer", uint64(cmd.Source)))
			}
			return nil
		}
		if p := w.players[cmd.GUID]; p != nil {
			p.damage(cmd.Amount, cmd.Source)
			return nil
		}
		return ErrNoEntity

	case CmdUse:
		o := w.objects[cmd.GUID]
		if o == nil {
			return ErrNoEntity
		}
		if !o.usable() {
			return fmt.Errorf("%w: object %d is not usable", ErrBadCommand, o.guid)
		}
		o.state = spatial.ObjectLooted
		o.respawnIn = o.respawnDelay
		return nil
	}
	return fmt.Errorf("%w: unknown type %d", ErrBadCommand, cmd.Type)
}

func (w *World) spawn(guid spatial.GUID, req SpawnRequest) error {
	if w.exists(guid) {
		return fmt.Errorf("%w: guid %d already spawned", ErrBadCommand, guid)
	}
	pos := w.clampPos(req.Pos)
	switch req.Kind {
	case spatial.KindCreature:
		c := w.randomCreature(0)
		c.guid, c.pos, c.home, c.dest = guid, pos, pos, pos
		c.hostile = req.Hostile
		c.team = teamFor(req.Hostile, req.Team)
		if req.Name != "" {
			c.name = req.Name
		}
		if req.Level > 0 {
			c.level = req.Level
		}
		if req.Health > 0 {
			c.health, c.maxHealth = req.Health, req.Health
		}
		w.creatures[guid] = c

	case spatial.KindPlayer:
		p := w.randomPlayer()
		p.guid, p.pos, p.home = guid, pos, pos
		p.isBot = req.IsBot
		if req.Team != spatial.TeamNeutral {
			p.team = req.Team
		}
		if req.Name != "" {
			p.name = req.Name
		}
		if req.Level > 0 {
			p.level = req.Level
		}
		if req.Health > 0 {
			p.health, p.maxHealth = req.Health, req.Health
		}
		w.players[guid] = p

	case spatial.KindObject:
		o := w.randomObject()
		o.guid, o.pos, o.kind = guid, pos, req.ObjectType
		o.entry = 2000 + uint32(req.ObjectType)
		if req.Name != "" {
			o.name = req.Name
		} else {
			o.name = objectNames[req.ObjectType%spatial.ObjectType(len(objectNames))]
		}
		w.objects[guid] = o

	case spatial.KindTrigger, spatial.KindEffect:
		a := &area{
			guid:       guid,
			spellID:    req.SpellID,
			casterTeam: req.Team,
			pos:        pos,
			radius:     req.Radius,
			duration:   req.Duration,
			remaining:  req.Duration,
			hostile:    req.Hostile,
		}
		if a.radius == 0 {
			a.radius = 5
		}
		if req.Kind == spatial.KindTrigger {
			w.triggers[guid] = a
		} else {
			w.effects[guid] = a
		}

	default:
		return fmt.Errorf("%w: unknown kind %d", ErrBadCommand, req.Kind)
	}
	return nil
}

func (w *World) exists(guid spatial.GUID) bool {
	return w.creatures[guid] != nil || w.players[guid] != nil || w.objects[guid] != nil ||
		w.triggers[guid] != nil || w.effects[guid] != nil
}

// advance runs one simulation step of length dt.
func (w *World) advance(dt time.Duration) {
	secs := dt.Seconds()

	for _, c := range w.creatures {
		if !c.alive {
			c.respawnIn -= dt
			if c.respawnIn <= 0 {
				c.respawn()
			}
			continue
		}
		if c.inCombat {
			c.combatFor += dt
			if c.combatFor >= combatTimeout {
				c.inCombat = false
				c.target = spatial.EmptyGUID
				c.dest = c.home
			}
			continue
		}
		w.wander(c, secs)
	}

	for _, p := range w.players {
		if !p.alive {
			p.reviveIn -= dt
			if p.reviveIn <= 0 {
				p.alive = true
				p.pos = p.home
				p.health = p.maxHealth
				p.power = p.maxPower
			}
			continue
		}
		if p.inCombat {
			p.combatFor += dt
			if p.combatFor >= combatTimeout {
				p.inCombat = false
			}
			continue
		}
		p.health = regen(p.health, p.maxHealth, secs)
		p.power = regen(p.power, p.maxPower, secs)
	}

	for _, o := range w.objects {
		if o.state != spatial.ObjectLooted {
			continue
		}
		o.respawnIn -= dt
		if o.respawnIn <= 0 {
			o.state = spatial.ObjectReady
			o.respawnIn = 0
		}
	}

	for guid, t := range w.triggers {
		if t.advance(dt) {
			delete(w.triggers, guid)
		}
	}
	for guid, e := range w.effects {
		if e.advance(dt) {
			delete(w.effects, guid)
		}
	}
	// Keep ambient effects topped up.
	if len(w.effects) < w.pop.Effects && w.rng.Float64() < 0.5 {
		w.addEffect(w.randomArea(w.pop.HostileRatio, w.randomLifetime()))
	}
}

func (w *World) wander(c *creature, secs float64) {
	dx, dy := c.dest.X-c.pos.X, c.dest.Y-c.pos.Y
	dist := math.Hypot(dx, dy)
	if dist < 0.5 {
		if w.rng.Float64() < wanderChance {
			angle := w.rng.Float64() * 2 * math.Pi
			r := w.rng.Float64() * c.leash
			c.dest = w.clampPos(spatial.Position{
				X: c.home.X + math.Cos(angle)*r,
				Y: c.home.Y + math.Sin(angle)*r,
			})
		}
		return
	}
	step := c.speed * secs
	if step >= dist {
		c.pos.X, c.pos.Y = c.dest.X, c.dest.Y
	} else {
		c.pos.X += dx / dist * step
		c.pos.Y += dy / dist * step
	}
	c.pos.Orientation = math.Atan2(dy, dx)
}

func regen(cur, limit uint32, secs float64) uint32 {
	if cur >= limit {
		return limit
	}
	amt := uint32(float64(limit) * regenPerSecond * secs)
	if amt == 0 {
		amt = 1
	}
	return min(cur+amt, limit)
}

func (w *World) clampPos(p spatial.Position) spatial.Position {
	p.X = math.Max(w.bounds.MinX, math.Min(w.bounds.MaxX, p.X))
	p.Y = math.Max(w.bounds.MinY, math.Min(w.bounds.MaxY, p.Y))
	return p
}

// =============================================================================
// spatial.EntitySource
// =============================================================================

// Loaded reports whether the world can supply entities.
func (w *World) Loaded() bool { return w.loaded.Load() }

func (w *World) VisitCreatures(within spatial.Bounds, fn func(spatial.CreatureSnapshot)) {
	for _, c := range w.creatures {
		if within.Contains(c.pos) {
			fn(c.snapshot())
		}
	}
}

func (w *World) VisitPlayers(within spatial.Bounds, fn func(spatial.PlayerSnapshot)) {
	for _, p := range w.players {
		if within.Contains(p.pos) {
			fn(p.snapshot())
		}
	}
}

func (w *World) VisitObjects(within spatial.Bounds, fn func(spatial.ObjectSnapshot)) {
	for _, o := range w.objects {
		if within.Contains(o.pos) {
			fn(o.snapshot())
		}
	}
}

func (w *World) VisitTriggers(within spatial.Bounds, fn func(spatial.TriggerSnapshot)) {
	for _, t := range w.triggers {
		if within.Contains(t.pos) {
			fn(t.triggerSnapshot())
		}
	}
}

func (w *World) VisitEffects(within spatial.Bounds, fn func(spatial.EffectSnapshot)) {
	for _, e := range w.effects {
		if within.Contains(e.pos) {
			fn(e.effectSnapshot())
		}
	}
}
