package raster

import (
	"bytes"
	"encoding/binary"
	"math"
	"sort"
)

// fixture describes a hand-assembled uncompressed uint16 GeoTIFF.
type fixture struct {
	order         binary.ByteOrder
	width, height int
	bands         int
	planar        bool
	rowsPerStrip  int
	samples       []uint16 // (band, row, col) order; nil writes no pixel data
	scale         [3]float64
	tiepoint      [6]float64
	epsg          int
	pixelIsPoint  bool
}

type ifdEntry struct {
	tag, typ uint16
	count    uint32
	data     []byte
}

const (
	tiffShort  = 3
	tiffLong   = 4
	tiffDouble = 12
)

func (f fixture) shorts(tag uint16, v ...uint16) ifdEntry {
	b := make([]byte, 2*len(v))
	for i, x := range v {
		f.order.PutUint16(b[2*i:], x)
	}
	return ifdEntry{tag, tiffShort, uint32(len(v)), b}
}

func (f fixture) longs(tag uint16, v ...uint32) ifdEntry {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		f.order.PutUint32(b[4*i:], x)
	}
	return ifdEntry{tag, tiffLong, uint32(len(v)), b}
}

func (f fixture) doubles(tag uint16, v ...float64) ifdEntry {
	b := make([]byte, 8*len(v))
	for i, x := range v {
		f.order.PutUint64(b[8*i:], math.Float64bits(x))
	}
	return ifdEntry{tag, tiffDouble, uint32(len(v)), b}
}

// bytes lays the file out as header, strips, out-of-line values, IFD.
func (f fixture) bytes() []byte {
	rps := f.rowsPerStrip
	if rps <= 0 {
		rps = f.height
	}
	stripsDown := (f.height + rps - 1) / rps
	planes, spp := 1, f.bands
	if f.planar {
		planes, spp = f.bands, 1
	}

	var buf bytes.Buffer
	buf.Write(make([]byte, 8))

	var offsets, counts []uint32
	for plane := 0; plane < planes; plane++ {
		for s := 0; s < stripsDown; s++ {
			row0, row1 := s*rps, min((s+1)*rps, f.height)
			size := (row1 - row0) * f.width * spp * 2
			if f.samples == nil {
				offsets = append(offsets, 8)
				counts = append(counts, uint32(size))
				continue
			}
			offsets = append(offsets, uint32(buf.Len()))
			counts = append(counts, uint32(size))
			for row := row0; row < row1; row++ {
				for col := 0; col < f.width; col++ {
					for k := 0; k < spp; k++ {
						band := plane + k
						v := f.samples[(band*f.height+row)*f.width+col]
						var b [2]byte
						f.order.PutUint16(b[:], v)
						buf.Write(b[:])
					}
				}
			}
		}
	}

	planar := uint16(1)
	if f.planar {
		planar = 2
	}
	bits := make([]uint16, f.bands)
	formats := make([]uint16, f.bands)
	for i := range bits {
		bits[i], formats[i] = 16, 1
	}
	modelType, rasterType := uint16(1), uint16(1)
	if f.pixelIsPoint {
		rasterType = 2
	}
	entries := []ifdEntry{
		f.longs(256, uint32(f.width)),
		f.longs(257, uint32(f.height)),
		f.shorts(258, bits...),
		f.shorts(259, 1),
		f.shorts(262, 1),
		f.longs(273, offsets...),
		f.shorts(277, uint16(f.bands)),
		f.longs(278, uint32(rps)),
		f.longs(279, counts...),
		f.shorts(284, planar),
		f.shorts(339, formats...),
		f.doubles(33550, f.scale[:]...),
		f.doubles(33922, f.tiepoint[:]...),
		f.shorts(34735,
			1, 1, 0, 3,
			1024, 0, 1, modelType,
			1025, 0, 1, rasterType,
			3072, 0, 1, uint16(f.epsg),
		),
	}
	if f.bands > 1 {
		entries = append(entries, f.shorts(338, make([]uint16, f.bands-1)...))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	values := make([]uint32, len(entries))
	for i, e := range entries {
		if len(e.data) > 4 {
			if buf.Len()%2 == 1 {
				buf.WriteByte(0)
			}
			values[i] = uint32(buf.Len())
			buf.Write(e.data)
		}
	}
	if buf.Len()%2 == 1 {
		buf.WriteByte(0)
	}
	ifd := uint32(buf.Len())

	var n [2]byte
	f.order.PutUint16(n[:], uint16(len(entries)))
	buf.Write(n[:])
	for i, e := range entries {
		var raw [12]byte
		f.order.PutUint16(raw[0:], e.tag)
		f.order.PutUint16(raw[2:], e.typ)
		f.order.PutUint32(raw[4:], e.count)
		if len(e.data) > 4 {
			f.order.PutUint32(raw[8:], values[i])
		} else {
			copy(raw[8:], e.data)
		}
		buf.Write(raw[:])
	}
	buf.Write(make([]byte, 4))

	out := buf.Bytes()
	if f.order == binary.ByteOrder(binary.BigEndian) {
		copy(out, "MM")
	} else {
		copy(out, "II")
	}
	f.order.PutUint16(out[2:], 42)
	f.order.PutUint32(out[4:], ifd)
	return out
}
