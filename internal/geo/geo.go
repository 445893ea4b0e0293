// Package geo holds the canonical coordinate type and great-circle math.
// Everything here is pure; no component downstream re-parses coordinate
// fields.
package geo

import (
	"fmt"
	"math"
)

const earthRadiusM = 6371000.0

type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Distance returns the haversine great-circle distance between a and b
// in meters.
func Distance(a, b Point) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dlat := radians(b.Lat - a.Lat)
	dlon := radians(b.Lon - a.Lon)

	h := math.Pow(math.Sin(dlat/2), 2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dlon/2), 2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusM * c
}

// CellKey buckets a point into a ~1km grid cell. Route summaries are
// aggregated per destination cell for the historical speed factor.
func CellKey(p Point) string {
	return fmt.Sprintf("%.2f:%.2f", p.Lat, p.Lon)
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
