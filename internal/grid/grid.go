// Package grid expands a city bounding box into the lattice of search
// points the radar stage fans out over.
package grid

import "fmt"

// Step sizes approximate a half-mile search cell, matching the 805 m
// radar-search radius.
const (
	LatStep = 0.007233
	LngStep = 0.0083175

	radiusMeters = 805
)

// Bounds is the grid-bounds message body: the south-west and north-east
// corners of the area to sweep.
type Bounds struct {
	StartLat float64 `json:"start_lat"`
	StartLng float64 `json:"start_lng"`
	EndLat   float64 `json:"end_lat"`
	EndLng   float64 `json:"end_lng"`
}

// Point is one search cell's center.
type Point struct {
	Lat float64
	Lng float64
}

// Cells steps across the bounds at the fixed increments, longitude within
// latitude, west to east then north, until both bounds are exceeded.
func (b Bounds) Cells() []Point {
	var pts []Point
	for lat := b.StartLat; lat < b.EndLat; lat += LatStep {
		for lng := b.StartLng; lng < b.EndLng; lng += LngStep {
			pts = append(pts, Point{Lat: lat, Lng: lng})
		}
	}
	return pts
}

// SearchURL builds the restaurant radar-search request for one cell.
func SearchURL(p Point, apiKey string) string {
	return fmt.Sprintf(
		"https://maps.googleapis.com/maps/api/place/radarsearch/json?location=%v,%v&radius=%d&types=restaurant&key=%s",
		p.Lat, p.Lng, radiusMeters, apiKey)
}
