package raster

import (
	"fmt"

	"github.com/airbusgeo/godal"
)

// DataType is the numeric type of a band's samples.
type DataType int

const (
	Uint8 DataType = iota + 1
	Uint16
	Int16
	Uint32
	Int32
	Float32
	Float64
)

// Size returns the byte size of one sample.
func (d DataType) Size() int {
	switch d {
	case Uint8:
		return 1
	case Uint16, Int16:
		return 2
	case Uint32, Int32, Float32:
		return 4
	case Float64:
		return 8
	}
	return 0
}

func (d DataType) String() string {
	switch d {
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Int16:
		return "int16"
	case Uint32:
		return "uint32"
	case Int32:
		return "int32"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	}
	return fmt.Sprintf("DataType(%d)", int(d))
}

var gdalTypes = map[DataType]godal.DataType{
	Uint8:   godal.Byte,
	Uint16:  godal.UInt16,
	Int16:   godal.Int16,
	Uint32:  godal.UInt32,
	Int32:   godal.Int32,
	Float32: godal.Float32,
	Float64: godal.Float64,
}

func (d DataType) gdal() (godal.DataType, error) {
	if t, ok := gdalTypes[d]; ok {
		return t, nil
	}
	return godal.Unknown, fmt.Errorf("%w: data type %s", ErrUnsupported, d)
}

func dataTypeOf(t godal.DataType) (DataType, error) {
	for d, g := range gdalTypes {
		if g == t {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: gdal data type %v", ErrUnsupported, t)
}

// Block holds pixel values in (band, row, col) order.
type Block struct {
	Bands, Height, Width int
	Data                 []float64
}

func NewBlock(bands, height, width int) *Block {
	return &Block{Bands: bands, Height: height, Width: width, Data: make([]float64, bands*height*width)}
}

func (b *Block) index(band, row, col int) int {
	return (band*b.Height+row)*b.Width + col
}

func (b *Block) At(band, row, col int) float64 {
	return b.Data[b.index(band, row, col)]
}

func (b *Block) Set(band, row, col int, v float64) {
	b.Data[b.index(band, row, col)] = v
}

// Band returns the samples of one band as a row-major slice of b.Data.
func (b *Block) Band(band int) []float64 {
	n := b.Height * b.Width
	return b.Data[band*n : (band+1)*n]
}

// Image is a block together with its georeferencing, ready to be written.
type Image struct {
	Block     *Block
	DataType  DataType
	Transform Affine
	CRS       CRS
	NoData    *float64
}
