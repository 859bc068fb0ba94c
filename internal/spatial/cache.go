package spatial

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Defaults for Options.
const (
	DefaultCellSize         = 66.0
	DefaultRefreshInterval  = 100 * time.Millisecond
	DefaultMaxTrackedRadius = 200.0
)

// ErrInvalidOptions is wrapped by every construction-time rejection.
var ErrInvalidOptions = errors.New("spatial: invalid cache options")

// Options configures a Cache. They are fixed for the cache's lifetime.
type Options struct {
	// Name labels the cache in logs and statistics (typically the map name).
	Name string

	// CellSize is the edge length of one grid square in world units.
	CellSize float64

	// RefreshInterval is the minimum time between two published buffers.
	// Update calls arriving sooner are no-ops. Zero disables throttling.
	RefreshInterval time.Duration

	// MaxTrackedRadius caps the radius any query may ask for.
	MaxTrackedRadius float64

	// Area optionally restricts the populate pass to a sub-area of the
	// region. The zero value covers the whole region.
	Area Bounds

	Logger *slog.Logger
}

// DefaultOptions returns options suited to a typical map region.
func DefaultOptions() Options {
	return Options{
		CellSize:         DefaultCellSize,
		RefreshInterval:  DefaultRefreshInterval,
		MaxTrackedRadius: DefaultMaxTrackedRadius,
	}
}

func (o Options) validate() error {
	switch {
	case !(o.CellSize > 0) || math.IsInf(o.CellSize, 0):
		return fmt.Errorf("%w: cell size must be a positive finite number, got %v", ErrInvalidOptions, o.CellSize)
	case o.RefreshInterval < 0:
		return fmt.Errorf("%w: refresh interval must not be negative, got %v", ErrInvalidOptions, o.RefreshInterval)
	case !(o.MaxTrackedRadius > 0):
		return fmt.Errorf("%w: max tracked radius must be positive, got %v", ErrInvalidOptions, o.MaxTrackedRadius)
	case !o.Area.IsZero() && (o.Area.MinX > o.Area.MaxX || o.Area.MinY > o.Area.MaxY):
		return fmt.Errorf("%w: area is inverted: %+v", ErrInvalidOptions, o.Area)
	}
	return nil
}

// Cache is the double-buffered spatial snapshot cache of one region.
//
// Exactly one goroutine (the region's update loop) should call Update; any
// number of goroutines may call the Query methods, Stats and ActiveCells at
// the same time. Readers never take a lock and never wait for the writer.
type Cache struct {
	opts    Options
	logger  *slog.Logger
	builder builder
	now     func() time.Time

	buffers [2]*GridBuffer
	active  atomic.Uint32 // index of the read buffer

	// updateMu serialises populate+publish. Readers never touch it.
	updateMu   sync.Mutex
	lastSwap   time.Time // guarded by updateMu
	generation uint64    // guarded by updateMu
	closed     atomic.Bool

	queries        atomic.Uint64
	updateCalls    atomic.Uint64
	populates      atomic.Uint64
	swaps          atomic.Uint64
	throttled      atomic.Uint64
	coalesced      atomic.Uint64
	skipped        atomic.Uint64
	lastPopulateNs atomic.Int64
	lastUpdateNs   atomic.Int64
	peakMem        atomic.Int64
}

// New constructs a cache over source. Misconfiguration is rejected here
// because nothing later can recover from it.
func New(source EntitySource, opts Options) (*Cache, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("cache", opts.Name))

	c := &Cache{
		opts:   opts,
		logger: logger,
		builder: builder{
			source:   source,
			area:     opts.Area,
			cellSize: opts.CellSize,
			logger:   logger,
		},
		now:     time.Now,
		buffers: [2]*GridBuffer{newGridBuffer("A"), newGridBuffer("B")},
	}

	logger.Info("spatial cache created",
		slog.Float64("cell_size", opts.CellSize),
		slog.Duration("refresh_interval", opts.RefreshInterval),
		slog.Float64("max_radius", opts.MaxTrackedRadius))
	return c, nil
}

// Options returns the construction options.
func (c *Cache) Options() Options {
	return c.opts
}

// Update rebuilds the inactive buffer from the source and publishes it,
// unless the refresh interval has not yet elapsed since the last swap or
// another Update is already running. It reports whether a new buffer was
// published.
func (c *Cache) Update() bool {
	return c.update(false)
}

// Refresh is Update without the throttle check.
func (c *Cache) Refresh() bool {
	return c.update(true)
}

func (c *Cache) update(force bool) bool {
	c.updateCalls.Add(1)

	// A concurrent caller is already producing a fresher buffer.
	if !c.updateMu.TryLock() {
		c.coalesced.Add(1)
		return false
	}
	defer c.updateMu.Unlock()

	if c.closed.Load() {
		return false
	}

	now := c.now()
	if !force && !c.lastSwap.IsZero() && now.Sub(c.lastSwap) < c.opts.RefreshInterval {
		c.throttled.Add(1)
		return false
	}

	c.populateAndPublish(now)
	return true
}

// populateAndPublish must be called with updateMu held.
func (c *Cache) populateAndPublish(now time.Time) {
	start := time.Now()

	readIdx := c.active.Load()
	writeIdx := 1 - readIdx
	prev := c.buffers[readIdx].load()

	c.generation++
	t := c.builder.build(c.generation, len(prev.cells))
	c.buffers[writeIdx].replace(t)

	// Publish. Everything written while building t happens-before any
	// reader that observes the new index.
	c.active.Store(writeIdx)
	c.lastSwap = now

	elapsed := time.Since(start)
	c.populates.Add(1)
	c.swaps.Add(1)
	c.skipped.Add(uint64(t.skipped))
	c.lastPopulateNs.Store(int64(elapsed))
	c.lastUpdateNs.Store(now.UnixNano())
	for {
		peak := c.peakMem.Load()
		if t.memBytes <= peak || c.peakMem.CompareAndSwap(peak, t.memBytes) {
			break
		}
	}

	c.logger.Debug("spatial buffer published",
		slog.String("buffer", c.buffers[writeIdx].Name()),
		slog.Uint64("generation", t.generation),
		slog.Int("entities", t.total()),
		slog.Int("cells", len(t.cells)),
		slog.Int("skipped", t.skipped),
		slog.Duration("took", elapsed))
}

// Close releases both buffers. Queries after Close return nothing and
// Update becomes a no-op. Close waits for an in-flight populate pass.
func (c *Cache) Close() {
	c.updateMu.Lock()
	defer c.updateMu.Unlock()
	if c.closed.Swap(true) {
		return
	}
	c.generation++
	for _, b := range c.buffers {
		b.replace(newCellTable(c.generation, 0))
	}
	c.logger.Info("spatial cache closed", slog.Uint64("swaps", c.swaps.Load()))
}

// Closed reports whether Close has been called.
func (c *Cache) Closed() bool {
	return c.closed.Load()
}

// readTable returns the table of the currently active buffer. The index and
// the table pointer are each loaded exactly once.
func (c *Cache) readTable() *cellTable {
	return c.buffers[c.active.Load()].load()
}

// CellOccupancy describes one populated cell of the active buffer.
type CellOccupancy struct {
	Key    CellKey
	X, Y   int32
	Counts [kindCount]int
}

// Total returns the snapshot count of every kind in the cell.
func (o CellOccupancy) Total() int {
	n := 0
	for _, v := range o.Counts {
		n += v
	}
	return n
}

// ActiveCells lists the populated cells of the active buffer, in no
// particular order.
func (c *Cache) ActiveCells() []CellOccupancy {
	t := c.readTable()
	out := make([]CellOccupancy, 0, len(t.cells))
	for key, cell := range t.cells {
		x, y := key.Coords()
		out = append(out, CellOccupancy{
			Key: key,
			X:   x,
			Y:   y,
			Counts: [kindCount]int{
				len(cell.Creatures),
				len(cell.Players),
				len(cell.Objects),
				len(cell.Triggers),
				len(cell.Effects),
			},
		})
	}
	return out
}
