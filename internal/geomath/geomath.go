// Package geomath holds the pure spatial primitives used by the geofence
// engine. No state, no errors: garbage in, garbage out.
package geomath

import (
	"math"

	"github.com/BearBump/FieldSync/internal/models"
)

const earthRadiusMeters = 6371000.0

// HaversineMeters returns the great-circle distance between two points.
func HaversineMeters(a, b models.LatLng) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// CircleContains reports whether p lies inside (or exactly on) the circle.
func CircleContains(center models.LatLng, radiusMeters float64, p models.LatLng) bool {
	return HaversineMeters(center, p) <= radiusMeters
}

// PolygonContains runs a ray cast against the polygon edges. The last
// vertex is implicitly connected to the first; callers must not pre-close
// the ring.
func PolygonContains(vertices []models.LatLng, p models.LatLng) bool {
	if len(vertices) < 3 {
		return false
	}
	inside := false
	j := len(vertices) - 1
	for i := 0; i < len(vertices); i++ {
		vi, vj := vertices[i], vertices[j]
		if (vi.Lat > p.Lat) != (vj.Lat > p.Lat) {
			x := (vj.Lng-vi.Lng)*(p.Lat-vi.Lat)/(vj.Lat-vi.Lat) + vi.Lng
			if p.Lng < x {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// Contains dispatches on the shape kind. Unknown kinds contain nothing.
func Contains(shape models.GeofenceShape, p models.LatLng) bool {
	switch shape.Kind {
	case models.ShapeCircle:
		return CircleContains(shape.Center, shape.RadiusMeters, p)
	case models.ShapePolygon:
		return PolygonContains(shape.Vertices, p)
	}
	return false
}

// DistanceToBoundary returns the distance in meters from p to the nearest
// point of the shape boundary, regardless of which side p is on. Cadence
// policy keys off this value.
func DistanceToBoundary(shape models.GeofenceShape, p models.LatLng) float64 {
	switch shape.Kind {
	case models.ShapeCircle:
		return math.Abs(HaversineMeters(shape.Center, p) - shape.RadiusMeters)
	case models.ShapePolygon:
		min := math.Inf(1)
		j := len(shape.Vertices) - 1
		for i := 0; i < len(shape.Vertices); i++ {
			if d := distanceToSegment(p, shape.Vertices[j], shape.Vertices[i]); d < min {
				min = d
			}
			j = i
		}
		return min
	}
	return math.Inf(1)
}

// distanceToSegment projects the points onto a local tangent plane
// (equirectangular, метров хватает на масштабах геозоны) and measures the
// point-to-segment distance there.
func distanceToSegment(p, a, b models.LatLng) float64 {
	refLat := p.Lat * math.Pi / 180
	toXY := func(q models.LatLng) (float64, float64) {
		x := (q.Lng - p.Lng) * math.Pi / 180 * math.Cos(refLat) * earthRadiusMeters
		y := (q.Lat - p.Lat) * math.Pi / 180 * earthRadiusMeters
		return x, y
	}
	ax, ay := toXY(a)
	bx, by := toXY(b)

	abx, aby := bx-ax, by-ay
	lenSq := abx*abx + aby*aby
	if lenSq == 0 {
		return math.Hypot(ax, ay)
	}
	// p is the local origin; clamp the projection onto [a,b].
	t := (-ax*abx - ay*aby) / lenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	cx, cy := ax+t*abx, ay+t*aby
	return math.Hypot(cx, cy)
}
