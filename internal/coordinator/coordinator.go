// Package coordinator orchestrates the sync cycle: on reconnect it drains
// the operation queue first (local intent wins the race against refetch),
// then pulls the authoritative fault list, then refreshes stale enrichment.
package coordinator

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/BearBump/FieldSync/internal/models"
	"github.com/BearBump/FieldSync/internal/netwatch"
	"github.com/BearBump/FieldSync/internal/remote"
)

const faultsKey = "faults:index"

type Queue interface {
	Flush(ctx context.Context) error
}

type Enricher interface {
	RefreshStale(ctx context.Context, faults []*models.Fault, location *models.LatLng)
}

type Storage interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

type Coordinator struct {
	observer netwatch.Observer
	client   remote.Client
	queue    Queue
	enricher Enricher
	store    Storage

	interval  time.Duration
	triggerCh chan struct{}

	mu     sync.Mutex
	faults []*models.Fault

	totalCycles  atomic.Int64
	lastSyncNano atomic.Int64
	lastErrorMu  sync.Mutex
	lastError    string
}

func New(ctx context.Context, observer netwatch.Observer, client remote.Client, queue Queue, enricher Enricher, store Storage, interval time.Duration) *Coordinator {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	c := &Coordinator{
		observer:  observer,
		client:    client,
		queue:     queue,
		enricher:  enricher,
		store:     store,
		interval:  interval,
		triggerCh: make(chan struct{}, 1),
	}
	c.rehydrate(ctx)

	if observer != nil {
		observer.OnChange(func(s netwatch.State) {
			if s.Online() {
				slog.Info("connectivity restored, scheduling sync")
				c.Sync()
			}
		})
	}
	return c
}

// rehydrate loads the last persisted fault snapshot so the agent serves
// data from the previous run while offline.
func (c *Coordinator) rehydrate(ctx context.Context) {
	b, ok, err := c.store.Get(ctx, faultsKey)
	if err != nil || !ok {
		return
	}
	var faults []*models.Fault
	if err := json.Unmarshal(b, &faults); err != nil {
		slog.Warn("coordinator: corrupt fault snapshot, resetting")
		_ = c.store.Remove(ctx, faultsKey)
		return
	}
	c.mu.Lock()
	c.faults = faults
	c.mu.Unlock()
	slog.Info("fault snapshot rehydrated", "count", len(faults))
}

// Sync requests a sync cycle (best-effort, coalesced).
func (c *Coordinator) Sync() {
	select {
	case c.triggerCh <- struct{}{}:
	default:
	}
}

func (c *Coordinator) Run(ctx context.Context) error {
	t := time.NewTicker(c.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			c.runOnce(ctx)
		case <-c.triggerCh:
			c.runOnce(ctx)
		}
	}
}

func (c *Coordinator) runOnce(ctx context.Context) {
	if c.observer != nil && !c.observer.Current().Online() {
		return
	}
	c.totalCycles.Add(1)

	// Сначала очередь: локальные мутации должны дойти до сервера до того,
	// как мы затянем его состояние обратно.
	if err := c.queue.Flush(ctx); err != nil {
		c.setLastError(err.Error())
		slog.Warn("sync: queue flush", "error", err.Error())
		// продолжаем: refetch всё равно полезен
	}

	faults, err := c.client.ListFaults(ctx)
	if err != nil {
		c.setLastError(err.Error())
		slog.Warn("sync: list faults", "error", err.Error())
		return
	}

	if err := c.persist(ctx, faults); err != nil {
		c.setLastError(err.Error())
		slog.Error("sync: persist fault snapshot", "error", err.Error())
		return
	}

	c.mu.Lock()
	c.faults = faults
	c.mu.Unlock()

	c.enricher.RefreshStale(ctx, faults, nil)

	c.lastSyncNano.Store(time.Now().UTC().UnixNano())
	slog.Info("sync cycle complete", "faults", len(faults))
}

func (c *Coordinator) persist(ctx context.Context, faults []*models.Fault) error {
	b, err := json.Marshal(faults)
	if err != nil {
		return errors.Wrap(err, "marshal fault snapshot")
	}
	return c.store.Set(ctx, faultsKey, b)
}

// Faults returns the last-synced fault list (possibly from a previous run).
func (c *Coordinator) Faults() []*models.Fault {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*models.Fault, len(c.faults))
	copy(out, c.faults)
	return out
}

func (c *Coordinator) Fault(id string) (*models.Fault, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.faults {
		if f.ID == id {
			cp := *f
			return &cp, true
		}
	}
	return nil, false
}

type Stats struct {
	TotalCycles int64      `json:"totalCycles"`
	LastSyncAt  *time.Time `json:"lastSyncAt,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
	Faults      int        `json:"faults"`
}

func (c *Coordinator) Stats() Stats {
	st := Stats{
		TotalCycles: c.totalCycles.Load(),
	}
	if n := c.lastSyncNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastSyncAt = &t
	}
	c.lastErrorMu.Lock()
	st.LastError = c.lastError
	c.lastErrorMu.Unlock()
	c.mu.Lock()
	st.Faults = len(c.faults)
	c.mu.Unlock()
	return st
}

func (c *Coordinator) setLastError(s string) {
	c.lastErrorMu.Lock()
	c.lastError = s
	c.lastErrorMu.Unlock()
}
