package api

import (
	"math"

	"github.com/fogleman/gg"

	"botgrid/internal/spatial"
)

const maxGridPixels = 2048

// renderOccupancy draws one square per cell spanning the populated extent of
// the active buffer, brighter for busier cells. North is up. Extents wider
// than maxGridPixels cells are binned into blocks first.
func renderOccupancy(cells []spatial.CellOccupancy, cellPixels int) *gg.Context {
	if len(cells) == 0 {
		dc := gg.NewContext(cellPixels, cellPixels)
		dc.SetRGB(0.05, 0.05, 0.08)
		dc.Clear()
		return dc
	}

	minX, maxX := int64(cells[0].X), int64(cells[0].X)
	minY, maxY := int64(cells[0].Y), int64(cells[0].Y)
	for _, c := range cells {
		minX, maxX = min(minX, int64(c.X)), max(maxX, int64(c.X))
		minY, maxY = min(minY, int64(c.Y)), max(maxY, int64(c.Y))
	}
	span := max(maxX-minX, maxY-minY) + 1
	stride := (span + maxGridPixels - 1) / maxGridPixels

	type block struct{ col, row int64 }
	heat := make(map[block]int, len(cells))
	busiest := 0
	for _, c := range cells {
		b := block{(int64(c.X) - minX) / stride, (maxY - int64(c.Y)) / stride}
		heat[b] += c.Total()
		busiest = max(busiest, heat[b])
	}
	cols := int((maxX-minX)/stride) + 1
	rows := int((maxY-minY)/stride) + 1

	px := cellPixels
	if max(cols, rows)*px > maxGridPixels {
		px = max(1, maxGridPixels/max(cols, rows))
	}

	dc := gg.NewContext(cols*px, rows*px)
	dc.SetRGB(0.05, 0.05, 0.08)
	dc.Clear()
	for b, n := range heat {
		t := math.Sqrt(float64(n) / float64(max(busiest, 1)))
		dc.SetRGB(t, 0.25+0.5*t, 1-t)
		dc.DrawRectangle(float64(int(b.col)*px), float64(int(b.row)*px), float64(px), float64(px))
		dc.Fill()
	}
	return dc
}
