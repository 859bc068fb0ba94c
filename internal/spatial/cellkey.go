// Package spatial provides the shared spatial snapshot cache used by bots to
// answer "what is near position P within radius R" without touching live
// world state.
//
// A Cache owns two sparse grid buffers. The world's tick goroutine rebuilds
// the inactive one from authoritative entity data and publishes it with a
// single atomic store; any number of reader goroutines query the active one
// without locks and receive owned copies of immutable snapshot values.
package spatial

import "math"

// CellKey identifies one grid cell. The signed cell coordinates are packed
// into a single integer: x in the high 32 bits, y in the low 32 bits.
type CellKey uint64

// PackCellKey builds a key from signed cell coordinates.
func PackCellKey(x, y int32) CellKey {
	return CellKey(uint64(uint32(x))<<32 | uint64(uint32(y)))
}

// Coords unpacks the signed cell coordinates.
func (k CellKey) Coords() (x, y int32) {
	return int32(uint32(uint64(k) >> 32)), int32(uint32(uint64(k)))
}

// Position is a world-space location. Only X and Y take part in cell
// addressing and distance checks; Z and Orientation are carried for consumers.
type Position struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Z           float64 `json:"z"`
	Orientation float64 `json:"orientation"`
}

// Valid reports whether the planar coordinates are finite.
func (p Position) Valid() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// DistSq returns the squared planar distance to q.
func (p Position) DistSq(q Position) float64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	return dx*dx + dy*dy
}

// Bounds is an axis-aligned planar rectangle. The zero value means "no
// restriction" wherever a sub-area is optional.
type Bounds struct {
	MinX float64 `json:"minX"`
	MinY float64 `json:"minY"`
	MaxX float64 `json:"maxX"`
	MaxY float64 `json:"maxY"`
}

// IsZero reports whether b is the unrestricted zero value.
func (b Bounds) IsZero() bool {
	return b == Bounds{}
}

// Contains reports whether p lies inside b (inclusive). A zero Bounds
// contains every position.
func (b Bounds) Contains(p Position) bool {
	if b.IsZero() {
		return true
	}
	return p.X >= b.MinX && p.X <= b.MaxX && p.Y >= b.MinY && p.Y <= b.MaxY
}

// cellCoord floor-divides a world coordinate, saturating at the int32 range.
func cellCoord(v, invCellSize float64) int32 {
	c := math.Floor(v * invCellSize)
	if c < math.MinInt32 {
		return math.MinInt32
	}
	if c > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(c)
}

// CellFor returns the key of the cell that owns pos.
func CellFor(pos Position, cellSize float64) CellKey {
	inv := 1.0 / cellSize
	return PackCellKey(cellCoord(pos.X, inv), cellCoord(pos.Y, inv))
}

// CellsInRadius appends to dst every cell key whose square intersects the
// circle of the given radius around center, and returns the extended slice.
//
// The candidate range per axis is [floor((c-r)/s), floor((c+r)/s)], which is
// never wider than ceil(r/s) cells around the centre cell. Corner cells whose
// closest point lies outside the circle are skipped. The result may contain
// cells holding nothing within range; it never omits a cell that does,
// including the saturated cells at the edge of the int32 range.
func CellsInRadius(dst []CellKey, center Position, radius, cellSize float64) []CellKey {
	if radius < 0 || math.IsNaN(radius) || !center.Valid() {
		return dst
	}
	inv := 1.0 / cellSize
	minX := cellCoord(center.X-radius, inv)
	maxX := cellCoord(center.X+radius, inv)
	minY := cellCoord(center.Y-radius, inv)
	maxY := cellCoord(center.Y+radius, inv)

	// Slack absorbs rounding in x*cellSize so boundary cells are never pruned.
	reach := radius + cellSize*1e-9
	reachSq := reach * reach

	for x := int64(minX); x <= int64(maxX); x++ {
		lowX, highX := cellSpan(x, cellSize)
		dx := clamp(center.X, lowX, highX) - center.X
		for y := int64(minY); y <= int64(maxY); y++ {
			lowY, highY := cellSpan(y, cellSize)
			dy := clamp(center.Y, lowY, highY) - center.Y
			if dx*dx+dy*dy > reachSq {
				continue
			}
			dst = append(dst, PackCellKey(int32(x), int32(y)))
		}
	}
	return dst
}

// cellSpan returns the world extent of cell coordinate c along one axis. The
// saturated edge cells of the int32 range also own everything beyond them.
func cellSpan(c int64, cellSize float64) (lo, hi float64) {
	lo = float64(c) * cellSize
	hi = lo + cellSize
	if c == math.MinInt32 {
		lo = math.Inf(-1)
	}
	if c == math.MaxInt32 {
		hi = math.Inf(1)
	}
	return lo, hi
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
