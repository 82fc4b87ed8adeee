package weather

import (
	"context"

	"github.com/BearBump/FieldSync/internal/models"
)

// Report is the normalized weather picture at a fault site. Impact is the
// single bit the priority scoring consumes; the rest is for display.
type Report struct {
	Summary     string  `json:"summary"`
	TempC       float64 `json:"tempC"`
	WindSpeedMS float64 `json:"windSpeedMs"`
	Impact      bool    `json:"impact"`
}

type Provider interface {
	CurrentAt(ctx context.Context, loc models.LatLng) (Report, error)
}
