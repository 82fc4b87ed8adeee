// Package fake is an in-memory remote API used in tests and when the agent
// runs without a backend (demo mode). It records deliveries in arrival
// order and can be programmed to fail per idempotency key.
package fake

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/BearBump/FieldSync/internal/models"
	"github.com/BearBump/FieldSync/internal/remote"
)

type Delivery struct {
	Endpoint string
	Key      string
	TargetID string
	Payload  json.RawMessage
}

type FakeClient struct {
	mu sync.Mutex

	deliveries []Delivery
	seenKeys   map[string]struct{}
	failures   map[string]error
	faults     []*models.Fault
	listErr    error
}

var _ remote.Client = (*FakeClient)(nil)

func New() *FakeClient {
	return &FakeClient{
		seenKeys: make(map[string]struct{}),
		failures: make(map[string]error),
	}
}

// FailWith makes every call carrying this idempotency key return err until
// ClearFailure is called.
func (f *FakeClient) FailWith(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[key] = err
}

func (f *FakeClient) ClearFailure(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.failures, key)
}

func (f *FakeClient) SetFaults(faults []*models.Fault, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = faults
	f.listErr = err
}

func (f *FakeClient) Deliveries() []Delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Delivery, len(f.deliveries))
	copy(out, f.deliveries)
	return out
}

func (f *FakeClient) deliver(endpoint, key, targetID string, payload json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.failures[key]; ok {
		return err
	}
	// Идемпотентность: повторная доставка того же ключа — no-op.
	if _, ok := f.seenKeys[key]; ok {
		return nil
	}
	f.seenKeys[key] = struct{}{}
	f.deliveries = append(f.deliveries, Delivery{
		Endpoint: endpoint, Key: key, TargetID: targetID, Payload: payload,
	})
	return nil
}

func (f *FakeClient) SubmitAction(_ context.Context, key, faultID string, payload json.RawMessage) error {
	return f.deliver("action", key, faultID, payload)
}

func (f *FakeClient) AssignFault(_ context.Context, key, faultID string, payload json.RawMessage) error {
	return f.deliver("assign", key, faultID, payload)
}

func (f *FakeClient) AssignTeam(_ context.Context, key, faultID string, payload json.RawMessage) error {
	return f.deliver("assign-team", key, faultID, payload)
}

func (f *FakeClient) PostGeofenceEvent(_ context.Context, key string, payload json.RawMessage) error {
	return f.deliver("geofence-events", key, "", payload)
}

func (f *FakeClient) ListFaults(_ context.Context) ([]*models.Fault, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.faults == nil {
		now := time.Now().UTC()
		return []*models.Fault{
			{ID: "demo-1", Title: "transformer overheating", Severity: models.SeverityCritical, Status: "OPEN", ReportedAt: now, UpdatedAt: now},
		}, nil
	}
	out := make([]*models.Fault, len(f.faults))
	copy(out, f.faults)
	return out, nil
}
