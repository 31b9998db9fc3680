package raster

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/airbusgeo/godal"
)

// Compression names a GeoTIFF COMPRESS creation option.
type Compression string

const (
	CompressionNone    Compression = "NONE"
	CompressionLZW     Compression = "LZW"
	CompressionDeflate Compression = "DEFLATE"
)

// WriteOptions controls the on-disk layout of written GeoTIFFs.
type WriteOptions struct {
	Compression Compression
	// TileSize writes tiles of that edge (a multiple of 16); zero writes strips.
	TileSize int
	// BandInterleaved stores each band in its own plane.
	BandInterleaved bool
	BigTIFF         bool
	// Extra holds further GTiff creation options such as "ENDIANNESS=BIG".
	Extra []string
}

// DefaultWriteOptions writes LZW-compressed strips.
var DefaultWriteOptions = WriteOptions{Compression: CompressionLZW}

func (o WriteOptions) creationOptions() []string {
	opts := []string{"COMPRESS=" + string(o.Compression)}
	if o.Compression == "" {
		opts[0] = "COMPRESS=" + string(CompressionNone)
	}
	if o.TileSize > 0 {
		size := strconv.Itoa(o.TileSize)
		opts = append(opts, "TILED=YES", "BLOCKXSIZE="+size, "BLOCKYSIZE="+size)
	}
	if o.BandInterleaved {
		opts = append(opts, "INTERLEAVE=BAND")
	}
	if o.BigTIFF {
		opts = append(opts, "BIGTIFF=YES")
	}
	return append(opts, o.Extra...)
}

// WriteFile writes img to path using DefaultWriteOptions.
func WriteFile(path string, img *Image) error {
	return WriteFileWithOptions(path, img, DefaultWriteOptions)
}

// WriteFileWithOptions writes img to path as a GeoTIFF.
func WriteFileWithOptions(path string, img *Image, opts WriteOptions) error {
	if err := setup(); err != nil {
		return err
	}
	b := img.Block
	if b == nil || b.Bands <= 0 || b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("raster: empty image")
	}
	if len(b.Data) != b.Bands*b.Height*b.Width {
		return fmt.Errorf("raster: block holds %d values, want %d", len(b.Data), b.Bands*b.Height*b.Width)
	}
	dt, err := img.DataType.gdal()
	if err != nil {
		return err
	}

	ds, err := godal.Create(godal.GTiff, path, b.Bands, dt, b.Width, b.Height, godal.CreationOption(opts.creationOptions()...))
	if err != nil {
		return fmt.Errorf("raster: create %s: %w", path, err)
	}
	if err := fill(ds, img); err != nil {
		ds.Close()
		return err
	}
	if err := ds.Close(); err != nil {
		return fmt.Errorf("raster: flush %s: %w", path, err)
	}
	return nil
}

func fill(ds *godal.Dataset, img *Image) error {
	if err := ds.SetGeoTransform(img.Transform.GDAL()); err != nil {
		return fmt.Errorf("raster: set geotransform: %w", err)
	}
	if img.CRS.EPSG > 0 {
		sr, err := godal.NewSpatialRefFromEPSG(img.CRS.EPSG)
		if err != nil {
			return fmt.Errorf("raster: spatial ref %s: %w", img.CRS, err)
		}
		defer sr.Close()
		if err := ds.SetSpatialRef(sr); err != nil {
			return fmt.Errorf("raster: set spatial ref: %w", err)
		}
	}
	b := img.Block
	for i, band := range ds.Bands() {
		if img.NoData != nil {
			if err := band.SetNoData(*img.NoData); err != nil {
				return fmt.Errorf("raster: set nodata: %w", err)
			}
		}
		if err := band.Write(0, 0, b.Band(i), b.Width, b.Height); err != nil {
			return fmt.Errorf("raster: write band %d: %w", i+1, err)
		}
	}
	return nil
}

// Write encodes img with DefaultWriteOptions and copies the file to w.
func Write(w io.Writer, img *Image) error {
	f, err := os.CreateTemp("", "raster-*.tif")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	defer os.Remove(name)

	if err := WriteFile(name, img); err != nil {
		return err
	}
	f, err = os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
