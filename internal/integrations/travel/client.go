package travel

import (
	"context"
	"time"

	"github.com/BearBump/FieldSync/internal/models"
)

// Provider estimates door-to-door travel time. Position-dependent by
// nature, so the enrichment layer never caches its output.
type Provider interface {
	TravelTime(ctx context.Context, from, to models.LatLng) (time.Duration, error)
}
