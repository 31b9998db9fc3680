package raster

import (
	"errors"
	"math"
)

// Affine maps pixel space to model space:
//
//	x = C + A*col + B*row
//	y = F + D*col + E*row
type Affine struct {
	A, B, C float64
	D, E, F float64
}

// Identity is the transform GDAL assumes for rasters without georeferencing.
var Identity = Affine{A: 1, E: 1}

var errSingularTransform = errors.New("raster: transform is not invertible")

// Apply returns the model coordinates of pixel position (col, row).
func (t Affine) Apply(col, row float64) (x, y float64) {
	return t.C + t.A*col + t.B*row, t.F + t.D*col + t.E*row
}

func (t Affine) Invert() (Affine, error) {
	det := t.A*t.E - t.B*t.D
	if det == 0 || math.IsNaN(det) {
		return Affine{}, errSingularTransform
	}
	ia, ib := t.E/det, -t.B/det
	id, ie := -t.D/det, t.A/det
	return Affine{
		A: ia, B: ib, C: -(ia*t.C + ib*t.F),
		D: id, E: ie, F: -(id*t.C + ie*t.F),
	}, nil
}

// Offset returns the transform of a grid whose origin is pixel (col, row) of t.
func (t Affine) Offset(col, row float64) Affine {
	x, y := t.Apply(col, row)
	out := t
	out.C, out.F = x, y
	return out
}

// Rectilinear reports whether the transform has no rotation or shear terms.
func (t Affine) Rectilinear() bool {
	return t.B == 0 && t.D == 0
}

// GDAL returns the transform in GDAL geotransform order.
func (t Affine) GDAL() [6]float64 {
	return [6]float64{t.C, t.A, t.B, t.F, t.D, t.E}
}

func fromGDAL(gt [6]float64) Affine {
	return Affine{A: gt[1], B: gt[2], C: gt[0], D: gt[4], E: gt[5], F: gt[3]}
}
