package opqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/BearBump/FieldSync/internal/models"
	"github.com/BearBump/FieldSync/internal/netwatch"
	"github.com/BearBump/FieldSync/internal/remote"
	"github.com/BearBump/FieldSync/internal/remote/fake"
	"github.com/BearBump/FieldSync/internal/storage/kvstore"
)

func newStore(t *testing.T) *kvstore.Store {
	t.Helper()
	s, err := kvstore.New(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newQueue(t *testing.T, store *kvstore.Store, client remote.Client, obs netwatch.Observer) *Queue {
	t.Helper()
	q, err := New(context.Background(), store, client, obs)
	require.NoError(t, err)

	// детерминированные id в порядке создания
	n := 0
	q.newID = func() string {
		n++
		return fmt.Sprintf("op-%03d", n)
	}
	return q
}

func TestQueue_OfflineEnqueueThenDrainInOrder(t *testing.T) {
	store := newStore(t)
	client := fake.New()
	obs := netwatch.NewManual(netwatch.State{}) // offline
	q := newQueue(t, store, client, obs)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := q.Enqueue(ctx, models.OpStatusUpdate, fmt.Sprintf("f-%d", i), json.RawMessage(`{"action":"ack"}`))
		require.NoError(t, err)
	}
	require.Equal(t, 5, q.Len())
	require.Empty(t, client.Deliveries())

	obs.Set(netwatch.State{Connected: true, Reachable: true})
	require.NoError(t, q.Flush(ctx))

	ds := client.Deliveries()
	require.Len(t, ds, 5)
	for i, d := range ds {
		require.Equal(t, fmt.Sprintf("op-%03d", i+1), d.Key)
		require.Equal(t, fmt.Sprintf("f-%d", i), d.TargetID)
	}
	require.Zero(t, q.Len())

	// повторный flush пустой очереди — no-op
	require.NoError(t, q.Flush(ctx))
	require.Len(t, client.Deliveries(), 5)

	st := q.Stats()
	require.Equal(t, int64(5), st.TotalEnqueued)
	require.Equal(t, int64(5), st.TotalDelivered)
}

func TestQueue_RejectedOpIsDequeuedRestContinues(t *testing.T) {
	store := newStore(t)
	client := fake.New()
	q := newQueue(t, store, client, nil)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, models.OpStatusUpdate, "f-1", json.RawMessage(`{}`))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, models.OpAssignment, "f-2", json.RawMessage(`{}`))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, models.OpTeamAssignment, "f-3", json.RawMessage(`{}`))
	require.NoError(t, err)

	client.FailWith("op-002", &remote.Rejection{StatusCode: 422, Reason: "validation failed"})

	require.NoError(t, q.Flush(ctx))

	// отвергнутая выпала, остальные доставлены по порядку
	ds := client.Deliveries()
	require.Len(t, ds, 2)
	require.Equal(t, "op-001", ds[0].Key)
	require.Equal(t, "op-003", ds[1].Key)
	require.Zero(t, q.Len())

	log, err := q.RejectedLog(ctx)
	require.NoError(t, err)
	require.Len(t, log, 1)
	require.Equal(t, "op-002", log[0].ID)
	require.Equal(t, 422, log[0].StatusCode)
	require.Contains(t, log[0].Reason, "validation failed")

	require.Equal(t, int64(1), q.Stats().TotalRejected)
}

func TestQueue_TransientFailureFailFastKeepsOrder(t *testing.T) {
	store := newStore(t)
	client := fake.New()
	q := newQueue(t, store, client, nil)
	ctx := context.Background()

	op1, err := q.Enqueue(ctx, models.OpStatusUpdate, "f-1", json.RawMessage(`{}`))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, models.OpStatusUpdate, "f-2", json.RawMessage(`{}`))
	require.NoError(t, err)

	client.FailWith(op1.ID, errors.New("network unreachable"))

	require.NoError(t, q.Flush(ctx))

	// fail-fast: вторая даже не попробована
	require.Empty(t, client.Deliveries())
	require.Equal(t, 2, q.Len())
	require.Equal(t, uint32(1), q.Pending()[0].Attempts)

	// attempts сохранён durable
	b, ok, err := store.Get(ctx, opKey(op1.Seq))
	require.NoError(t, err)
	require.True(t, ok)
	var persisted models.QueuedOperation
	require.NoError(t, json.Unmarshal(b, &persisted))
	require.Equal(t, uint32(1), persisted.Attempts)

	// сеть починилась — следующий flush доставляет обе по порядку
	client.ClearFailure(op1.ID)
	require.NoError(t, q.Flush(ctx))
	ds := client.Deliveries()
	require.Len(t, ds, 2)
	require.Equal(t, op1.ID, ds[0].Key)
	require.Zero(t, q.Len())
}

func TestQueue_RehydratesAfterRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.db")
	ctx := context.Background()

	store, err := kvstore.New(path)
	require.NoError(t, err)
	q := newQueue(t, store, fake.New(), nil)

	_, err = q.Enqueue(ctx, models.OpStatusUpdate, "f-1", json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, models.OpAssignment, "f-2", json.RawMessage(`{"a":2}`))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// "рестарт процесса"
	store2, err := kvstore.New(path)
	require.NoError(t, err)
	defer store2.Close()

	client := fake.New()
	q2, err := New(ctx, store2, client, nil)
	require.NoError(t, err)
	require.Equal(t, 2, q2.Len())

	require.NoError(t, q2.Flush(ctx))
	ds := client.Deliveries()
	require.Len(t, ds, 2)
	require.Equal(t, "op-001", ds[0].Key)
	require.Equal(t, "op-002", ds[1].Key)
}

func TestQueue_CorruptPersistedOpDroppedOnRehydrate(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, opKey(1), []byte("{broken")))
	goodOp := models.QueuedOperation{ID: "op-ok", Seq: 2, Kind: models.OpStatusUpdate, TargetID: "f-1"}
	b, _ := json.Marshal(goodOp)
	require.NoError(t, store.Set(ctx, opKey(2), b))

	q, err := New(ctx, store, fake.New(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, q.Len())
	require.Equal(t, "op-ok", q.Pending()[0].ID)

	// битый ключ сброшен
	_, ok, err := store.Get(ctx, opKey(1))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestQueue_ClearDropsEverything(t *testing.T) {
	store := newStore(t)
	q := newQueue(t, store, fake.New(), nil)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, models.OpStatusUpdate, "f-1", nil)
	require.NoError(t, err)
	require.NoError(t, q.Clear(ctx))
	require.Zero(t, q.Len())

	pairs, err := store.ListPrefix(ctx, "op:")
	require.NoError(t, err)
	require.Empty(t, pairs)
}

func TestQueue_EnqueueGeofenceEventPayload(t *testing.T) {
	store := newStore(t)
	client := fake.New()
	q := newQueue(t, store, client, nil)
	ctx := context.Background()

	ev := models.GeofenceEvent{
		ID:           "ev-1",
		AssignmentID: "a-1",
		Kind:         models.GeofenceEnter,
		Timestamp:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Coordinates:  models.LatLng{Lat: 51.5, Lng: 0},
	}
	require.NoError(t, q.EnqueueGeofenceEvent(ctx, ev))
	require.NoError(t, q.Flush(ctx))

	ds := client.Deliveries()
	require.Len(t, ds, 1)
	require.Equal(t, "geofence-events", ds[0].Endpoint)

	var got models.GeofenceEvent
	require.NoError(t, json.Unmarshal(ds[0].Payload, &got))
	require.Equal(t, ev.ID, got.ID)
	require.Equal(t, ev.Kind, got.Kind)
}

// blockingClient держит первую доставку, пока её не отпустят.
type blockingClient struct {
	mu       sync.Mutex
	inFlight int
	maxSeen  int
	gate     chan struct{}
}

func (c *blockingClient) enter() {
	c.mu.Lock()
	c.inFlight++
	if c.inFlight > c.maxSeen {
		c.maxSeen = c.inFlight
	}
	c.mu.Unlock()
	<-c.gate
	c.mu.Lock()
	c.inFlight--
	c.mu.Unlock()
}

func (c *blockingClient) SubmitAction(context.Context, string, string, json.RawMessage) error {
	c.enter()
	return nil
}
func (c *blockingClient) AssignFault(context.Context, string, string, json.RawMessage) error {
	c.enter()
	return nil
}
func (c *blockingClient) AssignTeam(context.Context, string, string, json.RawMessage) error {
	c.enter()
	return nil
}
func (c *blockingClient) PostGeofenceEvent(context.Context, string, json.RawMessage) error {
	c.enter()
	return nil
}
func (c *blockingClient) ListFaults(context.Context) ([]*models.Fault, error) { return nil, nil }

func TestQueue_FlushIsSingleFlight(t *testing.T) {
	store := newStore(t)
	client := &blockingClient{gate: make(chan struct{})}
	q := newQueue(t, store, client, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(ctx, models.OpStatusUpdate, "f", nil)
		require.NoError(t, err)
	}

	done := make(chan struct{})
	go func() {
		_ = q.Flush(ctx)
		close(done)
	}()

	// дождаться входа первой доставки
	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.inFlight == 1
	}, time.Second, 5*time.Millisecond)

	// конкурентный вызов — no-op, не вторая параллельная доставка
	require.NoError(t, q.Flush(ctx))

	close(client.gate)
	<-done

	client.mu.Lock()
	require.Equal(t, 1, client.maxSeen)
	client.mu.Unlock()
	require.Zero(t, q.Len())
}
