// Package geo provides the geospatial primitives used by zone correlation
// and hotspot detection: point-in-polygon containment, great-circle
// distance, and a polygon approximation of a circle.
//
// All functions are pure and deterministic; they hold no state and are safe
// for concurrent use. Coordinates follow the GeoJSON convention of
// [longitude, latitude] in decimal degrees.
package geo

import "math"

// earthRadiusKm is the fixed Earth radius used for all distance math.
const earthRadiusKm = 6371.0

// Point is a geographic coordinate pair.
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Valid reports whether the point lies within the WGS84 coordinate bounds.
func (p Point) Valid() bool {
	return p.Lon >= -180 && p.Lon <= 180 && p.Lat >= -90 && p.Lat <= 90
}

// PointInPolygon reports whether p lies inside the polygon described by
// ring using the even-odd ray-casting test. The ring is treated as
// non-closed internally: consecutive vertex pairs are iterated including
// the wrap-around edge from the last vertex back to the first, so both
// closed ([a..a]) and open ([a..z]) rings are accepted.
//
// Degenerate input (fewer than 3 vertices) returns false and never panics.
func PointInPolygon(p Point, ring []Point) bool {
	if len(ring) < 3 {
		return false
	}
	inside := false
	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		xi, yi := ring[i].Lon, ring[i].Lat
		xj, yj := ring[j].Lon, ring[j].Lat

		intersect := ((yi > p.Lat) != (yj > p.Lat)) &&
			(p.Lon < (xj-xi)*(p.Lat-yi)/(yj-yi)+xi)
		if intersect {
			inside = !inside
		}
	}
	return inside
}

// HaversineKm returns the great-circle distance between a and b in
// kilometers, using a spherical Earth of radius 6371 km.
func HaversineKm(a, b Point) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// Circle approximates a geographic circle around center with the given
// radius as a closed polygon ring of n vertices (n+1 points, first ==
// last). n values below 3 are raised to 32.
func Circle(center Point, radiusKm float64, n int) []Point {
	if n < 3 {
		n = 32
	}
	ring := make([]Point, 0, n+1)
	for i := 0; i < n; i++ {
		angle := (float64(i) / float64(n)) * 2 * math.Pi
		dx := radiusKm / 111.32 * math.Cos(angle)
		dy := radiusKm / (111.32 * math.Cos(toRad(center.Lat))) * math.Sin(angle)
		ring = append(ring, Point{Lon: center.Lon + dx, Lat: center.Lat + dy})
	}
	ring = append(ring, ring[0])
	return ring
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
