// Package geo parses the region of interest submitted with a classification request.
package geo

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var (
	ErrNoFeatures = errors.New("geojson: feature collection has no features")
	ErrNoGeometry = errors.New("geojson: feature has no geometry")
)

// ROI is the first geometry of a GeoJSON document and its bounding box. Its
// coordinates are taken to be in the raster's CRS; nothing is reprojected.
type ROI struct {
	Geometry orb.Geometry
	Bound    orb.Bound
	// CRSName is the legacy "crs" member of the document, if present.
	CRSName string
}

type header struct {
	Type string `json:"type"`
	CRS  *struct {
		Properties struct {
			Name string `json:"name"`
		} `json:"properties"`
	} `json:"crs"`
}

// ParseROI accepts a FeatureCollection, a Feature or a bare geometry.
func ParseROI(doc string) (*ROI, error) {
	data := []byte(doc)

	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("geojson: %w", err)
	}

	var geom orb.Geometry
	switch h.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("geojson: %w", err)
		}
		if len(fc.Features) == 0 {
			return nil, ErrNoFeatures
		}
		geom = fc.Features[0].Geometry
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("geojson: %w", err)
		}
		geom = f.Geometry
	case "":
		return nil, errors.New("geojson: missing type member")
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("geojson: %w", err)
		}
		geom = g.Geometry()
	}
	if geom == nil {
		return nil, ErrNoGeometry
	}

	roi := &ROI{Geometry: geom, Bound: geom.Bound()}
	if h.CRS != nil {
		roi.CRSName = h.CRS.Properties.Name
	}
	return roi, nil
}

// Bounds returns minx, miny, maxx, maxy.
func (r *ROI) Bounds() [4]float64 {
	return [4]float64{r.Bound.Min.X(), r.Bound.Min.Y(), r.Bound.Max.X(), r.Bound.Max.Y()}
}
