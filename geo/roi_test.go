package geo

import (
	"errors"
	"testing"
)

const square = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {}, "geometry": {"type": "Polygon", "coordinates": [[[10, 20], [40, 20], [40, 50], [10, 50], [10, 20]]]}},
    {"type": "Feature", "properties": {}, "geometry": {"type": "Point", "coordinates": [1000, 1000]}}
  ]
}`

func TestParseROIUsesFirstFeature(t *testing.T) {
	roi, err := ParseROI(square)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := roi.Bounds(); got != [4]float64{10, 20, 40, 50} {
		t.Fatalf("unexpected bounds %v", got)
	}
	if roi.CRSName != "" {
		t.Fatalf("expected no crs, got %q", roi.CRSName)
	}
}

func TestParseROIAcceptsFeatureAndGeometry(t *testing.T) {
	docs := []string{
		`{"type": "Feature", "properties": null, "geometry": {"type": "LineString", "coordinates": [[0, 0], [3, 4]]}}`,
		`{"type": "LineString", "coordinates": [[0, 0], [3, 4]]}`,
	}
	for _, doc := range docs {
		roi, err := ParseROI(doc)
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", doc, err)
		}
		if got := roi.Bounds(); got != [4]float64{0, 0, 3, 4} {
			t.Fatalf("unexpected bounds %v", got)
		}
	}
}

func TestParseROIReadsLegacyCRS(t *testing.T) {
	doc := `{"type": "FeatureCollection",
	  "crs": {"type": "name", "properties": {"name": "urn:ogc:def:crs:EPSG::32633"}},
	  "features": [{"type": "Feature", "properties": {}, "geometry": {"type": "Point", "coordinates": [1, 2]}}]}`
	roi, err := ParseROI(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if roi.CRSName != "urn:ogc:def:crs:EPSG::32633" {
		t.Fatalf("unexpected crs %q", roi.CRSName)
	}
}

func TestParseROIErrors(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want error
	}{
		{"empty features", `{"type": "FeatureCollection", "features": []}`, ErrNoFeatures},
		{"null geometry", `{"type": "FeatureCollection", "features": [{"type": "Feature", "properties": {}, "geometry": null}]}`, ErrNoGeometry},
		{"not json", `polygon please`, nil},
		{"no type", `{"features": []}`, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseROI(tc.doc)
			if err == nil {
				t.Fatal("expected error")
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
