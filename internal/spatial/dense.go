package spatial

import (
	"math"
	"unsafe"
)

// DenseGrid is a fixed-size, row-major grid over a bounded area. It
// preallocates one slot slice per cell whether or not anything lives there,
// which makes it the baseline the sparse buffers are measured against.
//
// Memory layout: cells are stored in row-major order (cells[row*cols+col]).
type DenseGrid struct {
	area        Bounds
	cellSize    float64
	invCellSize float64
	cols, rows  int
	cells       [][]uint32 // cells[row*cols+col] = list of entity indices
	scratch     []uint32   // reusable buffer for query results
}

// NewDenseGrid creates a grid covering area.
// maxEntities is used to preallocate cell capacity.
func NewDenseGrid(area Bounds, cellSize float64, maxEntities int) *DenseGrid {
	cols := int(math.Ceil((area.MaxX - area.MinX) / cellSize))
	rows := int(math.Ceil((area.MaxY - area.MinY) / cellSize))

	// Ensure at least 1x1 grid
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}

	cells := make([][]uint32, cols*rows)
	avgPerCell := maxEntities / len(cells)
	if avgPerCell < 4 {
		avgPerCell = 4
	}
	for i := range cells {
		cells[i] = make([]uint32, 0, avgPerCell)
	}

	return &DenseGrid{
		area:        area,
		cellSize:    cellSize,
		invCellSize: 1.0 / cellSize,
		cols:        cols,
		rows:        rows,
		cells:       cells,
		scratch:     make([]uint32, 0, 64),
	}
}

// Clear resets all cells without deallocating underlying memory.
func (g *DenseGrid) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
}

// Insert adds an entity index at pos. Positions outside the area are clamped
// to the border cells.
func (g *DenseGrid) Insert(entityID uint32, pos Position) {
	idx := g.cellIndex(pos.X, pos.Y)
	g.cells[idx] = append(g.cells[idx], entityID)
}

func (g *DenseGrid) colRow(x, y float64) (int, int) {
	col := int((x - g.area.MinX) * g.invCellSize)
	row := int((y - g.area.MinY) * g.invCellSize)
	if col < 0 {
		col = 0
	}
	if col >= g.cols {
		col = g.cols - 1
	}
	if row < 0 {
		row = 0
	}
	if row >= g.rows {
		row = g.rows - 1
	}
	return col, row
}

func (g *DenseGrid) cellIndex(x, y float64) int {
	col, row := g.colRow(x, y)
	return row*g.cols + col
}

// QueryRadius returns all entity indices potentially within radius of center.
//
// The returned slice is reused on subsequent calls and may include entities
// outside the radius; the caller performs the exact distance check.
func (g *DenseGrid) QueryRadius(center Position, radius float64) []uint32 {
	g.scratch = g.scratch[:0]

	minCol, minRow := g.colRow(center.X-radius, center.Y-radius)
	maxCol, maxRow := g.colRow(center.X+radius, center.Y+radius)

	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			g.scratch = append(g.scratch, g.cells[row*g.cols+col]...)
		}
	}
	return g.scratch
}

// MemoryEstimate returns the bytes held by the cell table and slot capacity.
func (g *DenseGrid) MemoryEstimate() int64 {
	n := DenseFootprint(int64(g.cols), int64(g.rows))
	for _, c := range g.cells {
		n += int64(cap(c)) * int64(unsafe.Sizeof(uint32(0)))
	}
	return n
}

// Dimensions returns the grid dimensions.
func (g *DenseGrid) Dimensions() (cols, rows int, cellSize float64) {
	return g.cols, g.rows, g.cellSize
}

// DenseFootprint is the fixed cost of a dense grid with one slot list per
// tracked kind in every one of cols*rows cells, before any entity is stored.
func DenseFootprint(cols, rows int64) int64 {
	return cols * rows * sliceHeaderSize * int64(kindCount)
}
