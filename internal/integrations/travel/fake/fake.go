// Package fake estimates travel time straight from the haversine distance
// at an average field-vehicle speed. Good enough offline.
package fake

import (
	"context"
	"time"

	"github.com/BearBump/FieldSync/internal/geomath"
	"github.com/BearBump/FieldSync/internal/integrations/travel"
	"github.com/BearBump/FieldSync/internal/models"
)

const avgSpeedMPS = 30.0 * 1000 / 3600 // 30 км/ч по плохим дорогам

type FakeProvider struct{}

var _ travel.Provider = (*FakeProvider)(nil)

func New() *FakeProvider { return &FakeProvider{} }

func (f *FakeProvider) TravelTime(_ context.Context, from, to models.LatLng) (time.Duration, error) {
	meters := geomath.HaversineMeters(from, to)
	return time.Duration(meters / avgSpeedMPS * float64(time.Second)), nil
}
