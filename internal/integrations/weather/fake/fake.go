// Package fake is a deterministic offline weather stub: no API key needed,
// same point always gives the same report. Roughly a fifth of locations get
// an impact flag.
package fake

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/BearBump/FieldSync/internal/integrations/weather"
	"github.com/BearBump/FieldSync/internal/models"
)

type FakeProvider struct{}

var _ weather.Provider = (*FakeProvider)(nil)

func New() *FakeProvider { return &FakeProvider{} }

func (f *FakeProvider) CurrentAt(_ context.Context, loc models.LatLng) (weather.Report, error) {
	h := fnv.New32a()
	_, _ = fmt.Fprintf(h, "%.4f|%.4f", loc.Lat, loc.Lng)
	v := h.Sum32()

	rep := weather.Report{
		Summary:     "clear sky",
		TempC:       5 + float64(v%20),
		WindSpeedMS: float64(v % 12),
	}
	if v%5 == 0 {
		rep.Summary = "heavy rain"
		rep.Impact = true
	}
	return rep, nil
}
