package raster

import (
	"errors"
	"fmt"
	"io"

	"github.com/airbusgeo/godal"
)

var (
	ErrNotTIFF     = errors.New("raster: not a readable GeoTIFF")
	ErrUnsupported = errors.New("raster: unsupported raster layout")
	// ErrTooLarge is returned by Read when a window holds more values than
	// the dataset's limit.
	ErrTooLarge = errors.New("raster: window exceeds the read limit")
)

// DefaultMaxValues bounds width x height x bands of a single Read.
const DefaultMaxValues = 64 << 20

// Dataset is an opened GeoTIFF. Pixel data is read lazily through Read.
type Dataset struct {
	Width, Height int
	Bands         int
	DataType      DataType
	Transform     Affine
	CRS           CRS
	NoData        *float64
	// MaxValues caps the values one Read may allocate; zero means DefaultMaxValues.
	MaxValues int64

	ds      *godal.Dataset
	release func()
}

// Open opens a GeoTIFF served by r, which holds size bytes.
func Open(r io.ReaderAt, size int64) (*Dataset, error) {
	if err := setup(); err != nil {
		return nil, err
	}
	key := readers.add(r, size)
	ds, err := open(vsiPrefix + key)
	if err != nil {
		readers.remove(key)
		return nil, err
	}
	ds.release = func() { readers.remove(key) }
	return ds, nil
}

// OpenFile opens the GeoTIFF at path.
func OpenFile(path string) (*Dataset, error) {
	if err := setup(); err != nil {
		return nil, err
	}
	return open(path)
}

func open(name string) (*Dataset, error) {
	gds, err := godal.Open(name, godal.RasterOnly(), godal.Drivers("GTiff"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotTIFF, err)
	}
	ds, err := describe(gds)
	if err != nil {
		gds.Close()
		return nil, err
	}
	return ds, nil
}

func describe(gds *godal.Dataset) (*Dataset, error) {
	st := gds.Structure()
	if st.NBands == 0 {
		return nil, fmt.Errorf("%w: no bands", ErrUnsupported)
	}
	dt, err := dataTypeOf(st.DataType)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{
		Width:     st.SizeX,
		Height:    st.SizeY,
		Bands:     st.NBands,
		DataType:  dt,
		Transform: Identity,
		CRS:       crsFromWKT(gds.Projection()),
		ds:        gds,
	}
	// GDAL applies the PixelIsPoint half-pixel shift when building the geotransform.
	if gt, err := gds.GeoTransform(); err == nil {
		ds.Transform = fromGDAL(gt)
	}
	if nd, ok := gds.Bands()[0].NoData(); ok {
		ds.NoData = &nd
	}
	return ds, nil
}

// Close releases the GDAL handle and any registered reader.
func (ds *Dataset) Close() error {
	var err error
	if ds.ds != nil {
		err = ds.ds.Close()
		ds.ds = nil
	}
	if ds.release != nil {
		ds.release()
		ds.release = nil
	}
	return err
}

// Bounds returns the model-space extent of the full raster.
func (ds *Dataset) Bounds() Bounds {
	return extent(ds.Transform, ds.Width, ds.Height)
}

// WindowTransform returns the affine transform valid for win.
func (ds *Dataset) WindowTransform(win Window) Affine {
	return ds.Transform.Offset(float64(win.ColOff), float64(win.RowOff))
}

// Read returns all bands of the pixels inside win.
func (ds *Dataset) Read(win Window) (*Block, error) {
	if win.Empty() || win.ColOff < 0 || win.RowOff < 0 ||
		win.ColOff+win.Width > ds.Width || win.RowOff+win.Height > ds.Height {
		return nil, fmt.Errorf("raster: %s outside %dx%d raster", win, ds.Width, ds.Height)
	}
	limit := ds.MaxValues
	if limit <= 0 {
		limit = DefaultMaxValues
	}
	if n := int64(win.Width) * int64(win.Height) * int64(ds.Bands); n > limit {
		return nil, fmt.Errorf("%w: %s of %d bands holds %d values, limit %d", ErrTooLarge, win, ds.Bands, n, limit)
	}
	if ds.ds == nil {
		return nil, errors.New("raster: dataset is closed")
	}

	out := NewBlock(ds.Bands, win.Height, win.Width)
	for i, band := range ds.ds.Bands() {
		if err := band.Read(win.ColOff, win.RowOff, out.Band(i), win.Width, win.Height); err != nil {
			return nil, fmt.Errorf("raster: read band %d of %s: %w", i+1, win, err)
		}
	}
	return out, nil
}
