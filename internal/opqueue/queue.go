// Package opqueue is the durable FIFO of pending mutations. Every accepted
// operation survives a crash right after Enqueue returns and is delivered
// to the remote API exactly-once-effective: at-least-once redelivery plus
// the operation id as idempotency key.
package opqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/BearBump/FieldSync/internal/models"
	"github.com/BearBump/FieldSync/internal/netwatch"
	"github.com/BearBump/FieldSync/internal/remote"
	"github.com/BearBump/FieldSync/internal/storage/kvstore"
)

const (
	opPrefix       = "op:"
	rejectedLogKey = "rejected:log"
	rejectedLogMax = 50
)

// Storage is the slice of the durable store the queue owns. Only the queue
// writes under its prefixes.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	ListPrefix(ctx context.Context, prefix string) ([]kvstore.Pair, error)
	RemovePrefix(ctx context.Context, prefix string) error
}

type Queue struct {
	store    Storage
	client   remote.Client
	observer netwatch.Observer

	mu   sync.Mutex // защищает ops и seq
	ops  []*models.QueuedOperation
	seq  uint64

	flushMu   sync.Mutex // сериализует Flush; TryLock коалесцирует конкурентов
	triggerCh chan struct{}

	// applied, если задан, вызывается после подтверждённой доставки.
	applied func(op models.QueuedOperation)

	totalEnqueued  atomic.Int64
	totalDelivered atomic.Int64
	totalRejected  atomic.Int64
	totalTransient atomic.Int64
	flushing       atomic.Bool
	lastFlushNano  atomic.Int64
	lastErrorMu    sync.Mutex
	lastError      string

	now   func() time.Time
	newID func() string
}

// New rehydrates the queue from the durable store. Malformed persisted
// operations are dropped and their keys reset (lossy recovery, logged).
func New(ctx context.Context, store Storage, client remote.Client, observer netwatch.Observer) (*Queue, error) {
	q := &Queue{
		store:     store,
		client:    client,
		observer:  observer,
		triggerCh: make(chan struct{}, 1),
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}

	pairs, err := store.ListPrefix(ctx, opPrefix)
	if err != nil {
		return nil, errors.Wrap(err, "rehydrate queue")
	}
	for _, p := range pairs {
		var op models.QueuedOperation
		if err := json.Unmarshal(p.Value, &op); err != nil || op.ID == "" {
			slog.Warn("opqueue: corrupt persisted operation, dropping", "key", p.Key)
			_ = store.Remove(ctx, p.Key)
			continue
		}
		q.ops = append(q.ops, &op)
		if op.Seq > q.seq {
			q.seq = op.Seq
		}
	}
	if n := len(q.ops); n > 0 {
		slog.Info("opqueue rehydrated", "pending", n)
	}
	return q, nil
}

// SetAppliedHook registers a post-delivery callback (telemetry publish).
// Must be called before Run.
func (q *Queue) SetAppliedHook(fn func(op models.QueuedOperation)) {
	q.applied = fn
}

// Enqueue persists a new operation and returns once it is durable, not
// once it is delivered. If the observer reports online, a flush is
// triggered immediately.
func (q *Queue) Enqueue(ctx context.Context, kind, targetID string, payload json.RawMessage) (*models.QueuedOperation, error) {
	op := &models.QueuedOperation{
		ID:        q.newID(),
		Kind:      kind,
		TargetID:  targetID,
		Payload:   payload,
		CreatedAt: q.now().UTC(),
	}

	q.mu.Lock()
	q.seq++
	op.Seq = q.seq
	q.mu.Unlock()

	b, err := json.Marshal(op)
	if err != nil {
		return nil, errors.Wrap(err, "marshal operation")
	}
	if err := q.store.Set(ctx, opKey(op.Seq), b); err != nil {
		return nil, errors.Wrap(err, "persist operation")
	}

	q.mu.Lock()
	q.ops = append(q.ops, op)
	q.mu.Unlock()
	q.totalEnqueued.Add(1)

	slog.Info("operation enqueued", "op_id", op.ID, "kind", kind, "target_id", targetID)

	if q.observer != nil && q.observer.Current().Online() {
		q.Trigger()
	}
	return op, nil
}

// EnqueueGeofenceEvent adapts the queue to the geofence engine: the event
// is the payload, its id is the idempotency key.
func (q *Queue) EnqueueGeofenceEvent(ctx context.Context, ev models.GeofenceEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal geofence event")
	}
	_, err = q.Enqueue(ctx, models.OpGeofenceEvent, ev.AssignmentID, b)
	return err
}

// Trigger requests a flush (best-effort, coalesced).
func (q *Queue) Trigger() {
	select {
	case q.triggerCh <- struct{}{}:
	default:
	}
}

// Run flushes on triggers and on a coarse safety-net ticker until ctx ends.
// Wire observer.OnChange(func(s) { if s.Online() { q.Trigger() } }) outside.
func (q *Queue) Run(ctx context.Context, safetyInterval time.Duration) error {
	if safetyInterval <= 0 {
		safetyInterval = time.Minute
	}
	t := time.NewTicker(safetyInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			q.flushIfOnline(ctx)
		case <-q.triggerCh:
			q.flushIfOnline(ctx)
		}
	}
}

func (q *Queue) flushIfOnline(ctx context.Context) {
	if q.observer != nil && !q.observer.Current().Online() {
		return
	}
	if err := q.Flush(ctx); err != nil {
		slog.Warn("queue flush", "error", err.Error())
	}
}

// Flush attempts delivery of every queued operation, one at a time, in
// FIFO order, waiting for each outcome before starting the next. This
// serialization is what keeps a later mutation from overtaking an earlier
// one for the same target. A re-entrant call while a flush is in progress
// is a no-op.
//
// Transient failure: attempts++ and the run stops (fail-fast, order kept).
// Rejection (4xx): the operation is dequeued with the reason recorded and
// the run continues — a permanently-invalid operation must not wedge the
// queue for everything behind it.
func (q *Queue) Flush(ctx context.Context) error {
	if !q.flushMu.TryLock() {
		return nil
	}
	defer q.flushMu.Unlock()

	q.flushing.Store(true)
	defer q.flushing.Store(false)
	q.lastFlushNano.Store(q.now().UTC().UnixNano())

	for {
		q.mu.Lock()
		if len(q.ops) == 0 {
			q.mu.Unlock()
			return nil
		}
		op := q.ops[0]
		q.mu.Unlock()

		err := q.dispatch(ctx, op)
		switch {
		case err == nil:
			if rmErr := q.store.Remove(ctx, opKey(op.Seq)); rmErr != nil {
				// Не смогли стереть подтверждённую операцию: оставляем в
				// очереди, повторная доставка безопасна по ключу идемпотентности.
				q.setLastError(rmErr.Error())
				return errors.Wrap(rmErr, "remove delivered operation")
			}
			q.popHead(op.ID)
			q.totalDelivered.Add(1)
			slog.Info("operation delivered", "op_id", op.ID, "kind", op.Kind)
			if q.applied != nil {
				q.applied(*op)
			}

		default:
			if rej, ok := remote.AsRejection(err); ok {
				q.recordRejection(ctx, op, rej)
				_ = q.store.Remove(ctx, opKey(op.Seq))
				q.popHead(op.ID)
				q.totalRejected.Add(1)
				continue
			}

			// Транзиентная ошибка: инкрементируем attempts и выходим.
			q.totalTransient.Add(1)
			q.setLastError(err.Error())
			q.mu.Lock()
			op.Attempts++
			q.mu.Unlock()
			if b, mErr := json.Marshal(op); mErr == nil {
				_ = q.store.Set(ctx, opKey(op.Seq), b)
			}
			slog.Warn("operation delivery failed, will retry",
				"op_id", op.ID, "kind", op.Kind, "attempts", op.Attempts, "error", err.Error())
			return nil
		}
	}
}

func (q *Queue) dispatch(ctx context.Context, op *models.QueuedOperation) error {
	switch op.Kind {
	case models.OpStatusUpdate:
		return q.client.SubmitAction(ctx, op.ID, op.TargetID, op.Payload)
	case models.OpAssignment:
		return q.client.AssignFault(ctx, op.ID, op.TargetID, op.Payload)
	case models.OpTeamAssignment:
		return q.client.AssignTeam(ctx, op.ID, op.TargetID, op.Payload)
	case models.OpGeofenceEvent:
		return q.client.PostGeofenceEvent(ctx, op.ID, op.Payload)
	default:
		// Неизвестный вид — терминально, чтобы не заклинить очередь.
		return &remote.Rejection{StatusCode: 0, Reason: fmt.Sprintf("unknown operation kind %q", op.Kind)}
	}
}

// popHead removes the head if it still matches id.
func (q *Queue) popHead(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ops) > 0 && q.ops[0].ID == id {
		q.ops = q.ops[1:]
	}
}

// Clear unconditionally empties the queue. Only for explicit user-initiated
// session reset; dropping mutations on error paths is a correctness bug.
func (q *Queue) Clear(ctx context.Context) error {
	if err := q.store.RemovePrefix(ctx, opPrefix); err != nil {
		return errors.Wrap(err, "clear queue")
	}
	q.mu.Lock()
	n := len(q.ops)
	q.ops = nil
	q.mu.Unlock()
	slog.Info("queue cleared", "dropped", n)
	return nil
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Pending returns a snapshot of queued operations in FIFO order.
func (q *Queue) Pending() []models.QueuedOperation {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.QueuedOperation, 0, len(q.ops))
	for _, op := range q.ops {
		out = append(out, *op)
	}
	return out
}

func (q *Queue) setLastError(s string) {
	q.lastErrorMu.Lock()
	q.lastError = s
	q.lastErrorMu.Unlock()
}

func opKey(seq uint64) string {
	return fmt.Sprintf("%s%020d", opPrefix, seq)
}
