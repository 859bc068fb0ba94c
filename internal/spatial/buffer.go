package spatial

import (
	"sync/atomic"
	"time"
	"unsafe"
)

// Cell holds every snapshot whose cached position fell inside one grid
// square during a populate pass. Cells are only created for populated
// squares and are never edited after their table is published.
type Cell struct {
	Creatures []CreatureSnapshot
	Players   []PlayerSnapshot
	Objects   []ObjectSnapshot
	Triggers  []TriggerSnapshot
	Effects   []EffectSnapshot
}

// Len returns the number of snapshots of every kind in the cell.
func (c *Cell) Len() int {
	return len(c.Creatures) + len(c.Players) + len(c.Objects) + len(c.Triggers) + len(c.Effects)
}

// Fixed per-item costs used by the memory estimate.
var (
	cellOverhead    = int64(unsafe.Sizeof(Cell{})) + int64(unsafe.Sizeof(CellKey(0))) + int64(unsafe.Sizeof(&Cell{})) + mapEntryOverhead
	creatureSize    = int64(unsafe.Sizeof(CreatureSnapshot{}))
	playerSize      = int64(unsafe.Sizeof(PlayerSnapshot{}))
	objectSize      = int64(unsafe.Sizeof(ObjectSnapshot{}))
	triggerSize     = int64(unsafe.Sizeof(TriggerSnapshot{}))
	effectSize      = int64(unsafe.Sizeof(EffectSnapshot{}))
	sliceHeaderSize = int64(unsafe.Sizeof([]uint32(nil)))
)

// mapEntryOverhead approximates the runtime's per-entry bookkeeping
// (tophash byte, bucket/group slack).
const mapEntryOverhead = 8

// memSize estimates the bytes a cell occupies, counting backing capacity.
func (c *Cell) memSize() int64 {
	n := cellOverhead
	n += int64(cap(c.Creatures)) * creatureSize
	n += int64(cap(c.Players)) * playerSize
	n += int64(cap(c.Objects)) * objectSize
	n += int64(cap(c.Triggers)) * triggerSize
	n += int64(cap(c.Effects)) * effectSize
	for i := range c.Creatures {
		n += int64(len(c.Creatures[i].Name))
	}
	for i := range c.Players {
		n += int64(len(c.Players[i].Name))
	}
	for i := range c.Objects {
		n += int64(len(c.Objects[i].Name))
	}
	return n
}

// cellTable is one immutable generation of grid contents. A table is built
// privately by the populate pass and never written after being stored in a
// GridBuffer.
type cellTable struct {
	cells      map[CellKey]*Cell
	generation uint64
	builtAt    time.Time
	population [kindCount]int
	skipped    int
	memBytes   int64
	denseBytes int64 // footprint a dense grid over the same cell span would need
	minX, minY int32
	maxX, maxY int32
}

func newCellTable(generation uint64, sizeHint int) *cellTable {
	return &cellTable{
		cells:      make(map[CellKey]*Cell, sizeHint),
		generation: generation,
	}
}

// cellAt returns the cell for key, creating it on first use.
func (t *cellTable) cellAt(key CellKey) *Cell {
	if c, ok := t.cells[key]; ok {
		return c
	}
	c := &Cell{}
	t.cells[key] = c

	x, y := key.Coords()
	if len(t.cells) == 1 {
		t.minX, t.maxX, t.minY, t.maxY = x, x, y, y
	} else {
		t.minX = min(t.minX, x)
		t.maxX = max(t.maxX, x)
		t.minY = min(t.minY, y)
		t.maxY = max(t.maxY, y)
	}
	return c
}

// total returns the number of snapshots across every kind.
func (t *cellTable) total() int {
	n := 0
	for _, p := range t.population {
		n += p
	}
	return n
}

// seal computes the memory estimates once the table is complete.
func (t *cellTable) seal(builtAt time.Time) {
	t.builtAt = builtAt
	var mem int64
	for _, c := range t.cells {
		mem += c.memSize()
	}
	t.memBytes = mem
	if len(t.cells) > 0 {
		cols := int64(t.maxX) - int64(t.minX) + 1
		rows := int64(t.maxY) - int64(t.minY) + 1
		t.denseBytes = DenseFootprint(cols, rows) + (mem - int64(len(t.cells))*cellOverhead)
	}
}

// GridBuffer is one of the two buffers a Cache owns. Its contents are a
// whole cell table swapped in by the populate pass; readers load the table
// pointer once and keep using it for the rest of their query.
type GridBuffer struct {
	name  string
	table atomic.Pointer[cellTable]
}

func newGridBuffer(name string) *GridBuffer {
	b := &GridBuffer{name: name}
	b.table.Store(newCellTable(0, 0))
	return b
}

// Name returns "A" or "B".
func (b *GridBuffer) Name() string {
	return b.name
}

func (b *GridBuffer) load() *cellTable {
	return b.table.Load()
}

// replace installs a freshly built table, dropping the previous cells.
func (b *GridBuffer) replace(t *cellTable) {
	b.table.Store(t)
}
