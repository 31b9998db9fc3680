package raster

import (
	"errors"
	"fmt"
	"math"
)

// ErrEmptyWindow is returned when bounds do not overlap the raster grid.
var ErrEmptyWindow = errors.New("raster: bounds do not intersect the raster")

// snap is the distance in pixels under which a fractional pixel edge is
// treated as lying on the grid line.
const snap = 1e-6

// Bounds is an axis-aligned box in model coordinates.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

func (b Bounds) Array() [4]float64 {
	return [4]float64{b.MinX, b.MinY, b.MaxX, b.MaxY}
}

// Window is a pixel rectangle of a raster.
type Window struct {
	ColOff, RowOff int
	Width, Height  int
}

func (w Window) Empty() bool {
	return w.Width <= 0 || w.Height <= 0
}

func (w Window) String() string {
	return fmt.Sprintf("Window(col_off=%d, row_off=%d, width=%d, height=%d)", w.ColOff, w.RowOff, w.Width, w.Height)
}

// WindowFromBounds returns the pixel window of a width x height grid with
// transform t covering b, widened to whole pixels and clipped to the grid.
func WindowFromBounds(b Bounds, t Affine, width, height int) (Window, error) {
	inv, err := t.Invert()
	if err != nil {
		return Window{}, err
	}

	minCol, minRow := math.Inf(1), math.Inf(1)
	maxCol, maxRow := math.Inf(-1), math.Inf(-1)
	for _, corner := range [4][2]float64{
		{b.MinX, b.MinY}, {b.MinX, b.MaxY}, {b.MaxX, b.MinY}, {b.MaxX, b.MaxY},
	} {
		col, row := inv.Apply(corner[0], corner[1])
		minCol, maxCol = math.Min(minCol, col), math.Max(maxCol, col)
		minRow, maxRow = math.Min(minRow, row), math.Max(maxRow, row)
	}

	col0 := clamp(floorSnap(minCol), 0, width)
	col1 := clamp(ceilSnap(maxCol), 0, width)
	row0 := clamp(floorSnap(minRow), 0, height)
	row1 := clamp(ceilSnap(maxRow), 0, height)

	win := Window{ColOff: col0, RowOff: row0, Width: col1 - col0, Height: row1 - row0}
	if win.Empty() {
		return Window{}, ErrEmptyWindow
	}
	return win, nil
}

func floorSnap(v float64) int {
	if r := math.Round(v); math.Abs(v-r) < snap {
		return int(r)
	}
	return int(math.Floor(v))
}

func ceilSnap(v float64) int {
	if r := math.Round(v); math.Abs(v-r) < snap {
		return int(r)
	}
	return int(math.Ceil(v))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// extent returns the model-space bounding box of a width x height grid.
func extent(t Affine, width, height int) Bounds {
	b := Bounds{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
	for _, corner := range [4][2]float64{
		{0, 0}, {float64(width), 0}, {0, float64(height)}, {float64(width), float64(height)},
	} {
		x, y := t.Apply(corner[0], corner[1])
		b.MinX, b.MaxX = math.Min(b.MinX, x), math.Max(b.MaxX, x)
		b.MinY, b.MaxY = math.Min(b.MinY, y), math.Max(b.MaxY, y)
	}
	return b
}
