package enrichment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	cachemocks "github.com/BearBump/FieldSync/internal/cache/mocks"
	"github.com/BearBump/FieldSync/internal/integrations/weather"
	"github.com/BearBump/FieldSync/internal/models"
)

// memCache — BytesCache на map, TTL не трогаем (возраст проверяет сервис).
type memCache struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newMemCache() *memCache { return &memCache{m: make(map[string][]byte)} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.m[key]
	return b, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
	return nil
}

type countingWeather struct {
	mu     sync.Mutex
	calls  int
	report weather.Report
	err    error
}

func (w *countingWeather) CurrentAt(context.Context, models.LatLng) (weather.Report, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	return w.report, w.err
}

type countingTravel struct {
	mu    sync.Mutex
	calls int
	dur   time.Duration
	err   error
}

func (tr *countingTravel) TravelTime(context.Context, models.LatLng, models.LatLng) (time.Duration, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.calls++
	return tr.dur, tr.err
}

func testFault() models.Fault {
	return models.Fault{
		ID:       "f-1",
		Severity: models.SeverityCritical,
		Location: models.LatLng{Lat: 51.5, Lng: 0},
	}
}

func TestService_WeatherCachedTravelAlwaysFresh(t *testing.T) {
	w := &countingWeather{report: weather.Report{Summary: "heavy rain", Impact: true}}
	tr := &countingTravel{dur: 45 * time.Minute}
	s := New(newMemCache(), time.Hour, w, tr)

	ctx := context.Background()
	loc := &models.LatLng{Lat: 51.49, Lng: 0.01}

	e1, err := s.Enrich(ctx, testFault(), loc)
	require.NoError(t, err)
	require.NotNil(t, e1.Enrichment)
	require.True(t, e1.Enrichment.WeatherImpact)
	require.InDelta(t, 45, e1.Enrichment.TravelTimeMinutes, 0.01)

	tr.dur = 10 * time.Minute // позиция изменилась

	e2, err := s.Enrich(ctx, testFault(), loc)
	require.NoError(t, err)
	require.Equal(t, 1, w.calls, "weather must come from cache inside TTL")
	require.Equal(t, 2, tr.calls, "travel time recomputed on every read")
	require.InDelta(t, 10, e2.Enrichment.TravelTimeMinutes, 0.01)
	// погода и приоритет — из кэша
	require.Equal(t, "heavy rain", e2.Enrichment.WeatherSummary)
	require.Equal(t, e1.Enrichment.PriorityColor, e2.Enrichment.PriorityColor)

	st := s.Stats()
	require.Equal(t, int64(1), st.Hits)
	require.Equal(t, int64(1), st.Misses)
}

func TestService_TTLExpiryRecomputes(t *testing.T) {
	w := &countingWeather{}
	tr := &countingTravel{}
	s := New(newMemCache(), time.Hour, w, tr)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	ctx := context.Background()
	_, err := s.Enrich(ctx, testFault(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, w.calls)

	s.now = func() time.Time { return base.Add(59 * time.Minute) }
	_, err = s.Enrich(ctx, testFault(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, w.calls)

	s.now = func() time.Time { return base.Add(61 * time.Minute) }
	_, err = s.Enrich(ctx, testFault(), nil)
	require.NoError(t, err)
	require.Equal(t, 2, w.calls, "expired entry must be recomputed")
}

func TestService_NoLocationSkipsTravel(t *testing.T) {
	w := &countingWeather{}
	tr := &countingTravel{dur: time.Hour}
	s := New(newMemCache(), time.Hour, w, tr)

	e, err := s.Enrich(context.Background(), testFault(), nil)
	require.NoError(t, err)
	require.Zero(t, tr.calls)
	require.Zero(t, e.Enrichment.TravelTimeMinutes)
}

func TestService_ComputeErrorNotCached(t *testing.T) {
	w := &countingWeather{err: errors.New("api down")}
	tr := &countingTravel{}
	c := newMemCache()
	s := New(c, time.Hour, w, tr)

	_, err := s.Enrich(context.Background(), testFault(), nil)
	require.Error(t, err)
	require.Empty(t, c.m)

	// после восстановления провайдера — считается заново
	w.err = nil
	e, err := s.Enrich(context.Background(), testFault(), nil)
	require.NoError(t, err)
	require.NotNil(t, e.Enrichment)
	require.Equal(t, int64(1), s.Stats().ComputeErrs)
}

func TestService_CorruptEntryIsMissAndReset(t *testing.T) {
	c := newMemCache()
	c.m["enrich:f-1"] = []byte("{oops")
	w := &countingWeather{}
	s := New(c, time.Hour, w, &countingTravel{})

	_, err := s.Enrich(context.Background(), testFault(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, w.calls)
}

func TestService_CacheGetErrorTreatedAsMiss(t *testing.T) {
	mc := &cachemocks.MockBytesCache{}
	mc.On("Get", mock.Anything, "enrich:f-1").
		Return([]byte(nil), false, errors.New("redis down")).Twice()
	mc.On("Set", mock.Anything, "enrich:f-1", mock.Anything, time.Hour).
		Return(nil).Once()

	s := New(mc, time.Hour, &countingWeather{}, &countingTravel{})

	e, err := s.Enrich(context.Background(), testFault(), nil)
	require.NoError(t, err)
	require.NotNil(t, e.Enrichment)

	_, hit := s.Get(context.Background(), "f-1")
	require.False(t, hit)
	mc.AssertExpectations(t)
}

func TestService_RefreshStaleOnlyRecomputesExpired(t *testing.T) {
	w := &countingWeather{}
	s := New(newMemCache(), time.Hour, w, &countingTravel{})

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	f1 := testFault()
	f2 := testFault()
	f2.ID = "f-2"

	_, err := s.Enrich(context.Background(), f1, nil)
	require.NoError(t, err)
	require.Equal(t, 1, w.calls)

	// f1 свежий, f2 ни разу не считался
	s.RefreshStale(context.Background(), []*models.Fault{&f1, &f2}, nil)
	require.Equal(t, 2, w.calls)
}
