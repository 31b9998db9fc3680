package raster

import (
	"fmt"
	"strconv"
	"strings"
)

// CRS identifies a raster's coordinate reference system.
type CRS struct {
	EPSG       int
	Geographic bool
	Citation   string
}

func (c CRS) IsZero() bool {
	return c.EPSG == 0 && c.Citation == ""
}

func (c CRS) String() string {
	if c.EPSG > 0 {
		return fmt.Sprintf("EPSG:%d", c.EPSG)
	}
	return c.Citation
}

// ParseEPSG extracts an EPSG code from names such as "EPSG:32633",
// "urn:ogc:def:crs:EPSG::4326" or "urn:ogc:def:crs:OGC:1.3:CRS84".
func ParseEPSG(name string) (int, bool) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	if strings.HasSuffix(upper, "CRS84") {
		return 4326, true
	}
	idx := strings.LastIndex(upper, "EPSG")
	if idx < 0 {
		return 0, false
	}
	rest := upper[idx+len("EPSG"):]
	if i := strings.LastIndex(rest, ":"); i >= 0 {
		rest = rest[i+1:]
	}
	code, err := strconv.Atoi(rest)
	if err != nil || code <= 0 {
		return 0, false
	}
	return code, true
}

// crsFromWKT reads the root EPSG authority, the name and the geographic flag
// from a WKT1 or WKT2 definition.
func crsFromWKT(wkt string) CRS {
	wkt = strings.TrimSpace(wkt)
	if wkt == "" {
		return CRS{}
	}
	var c CRS
	open := strings.IndexByte(wkt, '[')
	if open < 0 {
		return CRS{}
	}
	switch strings.ToUpper(wkt[:open]) {
	case "GEOGCS", "GEOGCRS", "GEODCRS":
		c.Geographic = true
	}
	if q := strings.IndexByte(wkt[open:], '"'); q >= 0 {
		rest := wkt[open+q+1:]
		if end := strings.IndexByte(rest, '"'); end >= 0 {
			c.Citation = rest[:end]
		}
	}

	depth, inQuote := 0, false
	for i := 0; i < len(wkt); i++ {
		switch ch := wkt[i]; {
		case ch == '"':
			inQuote = !inQuote
		case inQuote:
		case ch == '[' || ch == '(':
			depth++
		case ch == ']' || ch == ')':
			depth--
		case depth == 1 && (ch == 'A' || ch == 'I'):
			if code, ok := rootAuthority(wkt[i:]); ok {
				c.EPSG = code
			}
		}
	}
	return c
}

// rootAuthority parses AUTHORITY["EPSG","32633"] or ID["EPSG",32633] at the
// start of s.
func rootAuthority(s string) (int, bool) {
	var body string
	switch {
	case strings.HasPrefix(s, "AUTHORITY["):
		body = s[len("AUTHORITY["):]
	case strings.HasPrefix(s, "ID["):
		body = s[len("ID["):]
	default:
		return 0, false
	}
	end := strings.IndexByte(body, ']')
	if end < 0 {
		return 0, false
	}
	parts := strings.Split(body[:end], ",")
	if len(parts) < 2 || !strings.EqualFold(strings.Trim(parts[0], `" `), "EPSG") {
		return 0, false
	}
	code, err := strconv.Atoi(strings.Trim(parts[1], `" `))
	if err != nil || code <= 0 {
		return 0, false
	}
	return code, true
}
