package geomath

import (
	"math"
	"math/rand"
	"testing"

	"github.com/BearBump/FieldSync/internal/models"
	"github.com/stretchr/testify/require"
)

// pointAt смещает точку от origin на dist метров по азимуту bearing (рад).
func pointAt(origin models.LatLng, dist, bearing float64) models.LatLng {
	dLat := dist * math.Cos(bearing) / earthRadiusMeters * 180 / math.Pi
	dLng := dist * math.Sin(bearing) / (earthRadiusMeters * math.Cos(origin.Lat*math.Pi/180)) * 180 / math.Pi
	return models.LatLng{Lat: origin.Lat + dLat, Lng: origin.Lng + dLng}
}

func TestHaversineMeters_KnownDistance(t *testing.T) {
	moscow := models.LatLng{Lat: 55.7558, Lng: 37.6173}
	spb := models.LatLng{Lat: 59.9311, Lng: 30.3609}

	d := HaversineMeters(moscow, spb)
	require.InDelta(t, 634000, d, 5000)

	require.Zero(t, HaversineMeters(moscow, moscow))
}

func TestCircleContains_BoundarySampling(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	center := models.LatLng{Lat: 51.5074, Lng: -0.1278}
	const radius = 500.0
	const eps = 5.0 // запас на неточность проекции в pointAt

	for i := 0; i < 2000; i++ {
		bearing := r.Float64() * 2 * math.Pi

		inside := pointAt(center, (radius-eps)*r.Float64(), bearing)
		require.True(t, CircleContains(center, radius, inside),
			"point %d at bearing %f should be inside", i, bearing)

		outside := pointAt(center, radius+eps+r.Float64()*radius, bearing)
		require.False(t, CircleContains(center, radius, outside),
			"point %d at bearing %f should be outside", i, bearing)
	}
}

// windingNumber — эталонная реализация для сверки с ray casting.
func windingNumber(vertices []models.LatLng, p models.LatLng) bool {
	wn := 0
	isLeft := func(a, b models.LatLng) float64 {
		return (b.Lng-a.Lng)*(p.Lat-a.Lat) - (p.Lng-a.Lng)*(b.Lat-a.Lat)
	}
	j := len(vertices) - 1
	for i := 0; i < len(vertices); i++ {
		a, b := vertices[j], vertices[i]
		if a.Lat <= p.Lat {
			if b.Lat > p.Lat && isLeft(a, b) > 0 {
				wn++
			}
		} else {
			if b.Lat <= p.Lat && isLeft(a, b) < 0 {
				wn--
			}
		}
		j = i
	}
	return wn != 0
}

func TestPolygonContains_AgreesWithWindingNumber(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	// Выпуклый полигон вокруг точки.
	center := models.LatLng{Lat: 48.8566, Lng: 2.3522}
	verts := make([]models.LatLng, 0, 6)
	for i := 0; i < 6; i++ {
		bearing := float64(i) / 6 * 2 * math.Pi
		verts = append(verts, pointAt(center, 800+r.Float64()*400, bearing))
	}

	for i := 0; i < 10000; i++ {
		p := models.LatLng{
			Lat: center.Lat + (r.Float64()-0.5)*0.05,
			Lng: center.Lng + (r.Float64()-0.5)*0.05,
		}
		require.Equal(t, windingNumber(verts, p), PolygonContains(verts, p),
			"disagreement at point %d: %+v", i, p)
	}
}

func TestPolygonContains_Degenerate(t *testing.T) {
	p := models.LatLng{Lat: 1, Lng: 1}
	require.False(t, PolygonContains(nil, p))
	require.False(t, PolygonContains([]models.LatLng{{Lat: 0, Lng: 0}, {Lat: 2, Lng: 2}}, p))
}

func TestContains_UnknownShapeKind(t *testing.T) {
	require.False(t, Contains(models.GeofenceShape{Kind: "BLOB"}, models.LatLng{}))
}

func TestDistanceToBoundary_Circle(t *testing.T) {
	center := models.LatLng{Lat: 51.5, Lng: 0}
	shape := models.GeofenceShape{Kind: models.ShapeCircle, Center: center, RadiusMeters: 500}

	require.InDelta(t, 500, DistanceToBoundary(shape, center), 1)

	near := pointAt(center, 450, 0)
	require.InDelta(t, 50, DistanceToBoundary(shape, near), 2)

	far := pointAt(center, 1500, math.Pi/3)
	require.InDelta(t, 1000, DistanceToBoundary(shape, far), 5)
}

func TestDistanceToBoundary_Polygon(t *testing.T) {
	// Квадрат ~2км x 2км.
	center := models.LatLng{Lat: 51.5, Lng: 0}
	verts := []models.LatLng{
		pointAt(center, 1414, math.Pi/4),
		pointAt(center, 1414, 3*math.Pi/4),
		pointAt(center, 1414, 5*math.Pi/4),
		pointAt(center, 1414, 7*math.Pi/4),
	}
	shape := models.GeofenceShape{Kind: models.ShapePolygon, Vertices: verts}

	// Центр квадрата до ближайшей стороны ~1000м.
	require.InDelta(t, 1000, DistanceToBoundary(shape, center), 15)

	// Точка снаружи, в 500м за серединой восточной стороны.
	outside := pointAt(center, 1500, math.Pi/2)
	require.InDelta(t, 500, DistanceToBoundary(shape, outside), 15)
}
