// Package enrichment derives per-fault attributes that are moderately
// expensive to compute: weather impact, travel time, composite priority.
// Weather and priority live in a TTL cache; travel time is recomputed
// fresh on every read that supplies a location.
package enrichment

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/BearBump/FieldSync/internal/cache"
	"github.com/BearBump/FieldSync/internal/integrations/travel"
	"github.com/BearBump/FieldSync/internal/integrations/weather"
	"github.com/BearBump/FieldSync/internal/models"
)

const DefaultTTL = time.Hour

type Service struct {
	cache   cache.BytesCache
	ttl     time.Duration
	weather weather.Provider
	travel  travel.Provider

	group singleflight.Group

	hits        atomic.Int64
	misses      atomic.Int64
	computeErrs atomic.Int64

	now func() time.Time
}

func New(c cache.BytesCache, ttl time.Duration, w weather.Provider, t travel.Provider) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		cache:   c,
		ttl:     ttl,
		weather: w,
		travel:  t,
		now:     time.Now,
	}
}

// Get returns the cached entry only while it is younger than the TTL.
// Expired or malformed entries are a miss, never an error.
func (s *Service) Get(ctx context.Context, entityID string) (*models.EnrichmentEntry, bool) {
	b, ok, err := s.cache.Get(ctx, entryKey(entityID))
	if err != nil {
		slog.Warn("enrichment cache get", "entity_id", entityID, "error", err.Error())
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var e models.EnrichmentEntry
	if err := json.Unmarshal(b, &e); err != nil {
		slog.Warn("enrichment: corrupt cache entry, resetting", "entity_id", entityID)
		_ = s.cache.Delete(ctx, entryKey(entityID))
		return nil, false
	}
	if s.now().UTC().Sub(e.ComputedAt) >= s.ttl {
		return nil, false
	}
	return &e, true
}

// Put unconditionally overwrites the entry, stamping ComputedAt = now.
func (s *Service) Put(ctx context.Context, entry models.EnrichmentEntry) error {
	entry.ComputedAt = s.now().UTC()
	b, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "marshal enrichment entry")
	}
	return errors.Wrap(s.cache.Set(ctx, entryKey(entry.EntityID), b, s.ttl), "cache enrichment entry")
}

// Enrich merges the fault snapshot with its enrichment entry, computing on
// a cache miss. Concurrent misses for the same fault are coalesced. When
// location is non-nil, travel time is recomputed fresh even on a hit —
// a stale travel estimate is worse than none.
func (s *Service) Enrich(ctx context.Context, fault models.Fault, location *models.LatLng) (models.EnrichedFault, error) {
	entry, hit := s.Get(ctx, fault.ID)
	if hit {
		s.hits.Add(1)
		if location != nil {
			tt, err := s.travel.TravelTime(ctx, *location, fault.Location)
			if err != nil {
				// считаем транзиентным: отдаём закешированную оценку
				slog.Warn("travel time recompute", "fault_id", fault.ID, "error", err.Error())
			} else {
				entry.TravelTimeMinutes = tt.Minutes()
			}
		}
		return models.EnrichedFault{Fault: fault, Enrichment: entry}, nil
	}
	s.misses.Add(1)

	v, err, _ := s.group.Do(fault.ID, func() (any, error) {
		return s.compute(ctx, fault, location)
	})
	if err != nil {
		s.computeErrs.Add(1)
		return models.EnrichedFault{Fault: fault}, err
	}
	e := v.(models.EnrichmentEntry)
	return models.EnrichedFault{Fault: fault, Enrichment: &e}, nil
}

func (s *Service) compute(ctx context.Context, fault models.Fault, location *models.LatLng) (models.EnrichmentEntry, error) {
	rep, err := s.weather.CurrentAt(ctx, fault.Location)
	if err != nil {
		return models.EnrichmentEntry{}, errors.Wrap(err, "weather lookup")
	}

	var travelTime time.Duration
	if location != nil {
		travelTime, err = s.travel.TravelTime(ctx, *location, fault.Location)
		if err != nil {
			return models.EnrichmentEntry{}, errors.Wrap(err, "travel time")
		}
	}

	now := s.now().UTC()
	score := PriorityScore(ScoreInput{
		Severity:      fault.Severity,
		WeatherImpact: rep.Impact,
		ETA:           fault.ETA,
		TravelTime:    travelTime,
		Now:           now,
	})

	entry := models.EnrichmentEntry{
		EntityID:          fault.ID,
		ComputedAt:        now,
		WeatherSummary:    rep.Summary,
		WeatherImpact:     rep.Impact,
		TravelTimeMinutes: travelTime.Minutes(),
		PriorityColor:     PriorityColor(score),
	}
	if err := s.Put(ctx, entry); err != nil {
		// кэш не обязателен для корректности
		slog.Warn("cache enrichment entry", "fault_id", fault.ID, "error", err.Error())
	}
	return entry, nil
}

// RefreshStale recomputes entries older than the TTL for the given faults.
// Hits are left alone. Called by the coordinator after a reconnect.
func (s *Service) RefreshStale(ctx context.Context, faults []*models.Fault, location *models.LatLng) {
	for _, f := range faults {
		if _, hit := s.Get(ctx, f.ID); hit {
			continue
		}
		if _, err := s.Enrich(ctx, *f, location); err != nil {
			slog.Warn("refresh enrichment", "fault_id", f.ID, "error", err.Error())
		}
	}
}

type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	ComputeErrs int64 `json:"computeErrs"`
}

func (s *Service) Stats() Stats {
	return Stats{
		Hits:        s.hits.Load(),
		Misses:      s.misses.Load(),
		ComputeErrs: s.computeErrs.Load(),
	}
}

func entryKey(entityID string) string {
	return "enrich:" + entityID
}
