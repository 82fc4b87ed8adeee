package geofence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/BearBump/FieldSync/internal/geomath"
	"github.com/BearBump/FieldSync/internal/models"
)

// ErrPermissionDenied: tracking stays disabled until permission is granted
// and tracking is restarted explicitly. We never spin a retry loop on it.
var ErrPermissionDenied = errors.New("location permission denied")

// Enqueuer is the slice of the operation queue the engine needs: a detected
// transition must be durable before OnLocationUpdate returns.
type Enqueuer interface {
	EnqueueGeofenceEvent(ctx context.Context, ev models.GeofenceEvent) error
}

// Engine turns the raw location stream into a clean inside/outside signal
// for the tracked assignment and self-tunes the sampling cadence.
//
// All state transitions happen under mu: the host platform promises
// single-threaded delivery per subscription, but we do not rely on it.
type Engine struct {
	mu sync.Mutex

	source  Source
	queue   Enqueuer
	planner *CadencePlanner

	assignment *models.TrackedAssignment
	session    *models.GeofenceSession
	armed      bool
	cadence    SubscribeOptions

	samples     uint64
	transitions uint64
	lastError   string

	now   func() time.Time
	newID func() string
}

func New(source Source, queue Enqueuer, planner *CadencePlanner) *Engine {
	if planner == nil {
		planner = NewCadencePlanner(DefaultCadenceConfig())
	}
	return &Engine{
		source:  source,
		queue:   queue,
		planner: planner,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
}

// SetTrackedAssignment replaces the active assignment. nil stops tracking
// and releases the sampling subscription. A new assignment always starts a
// fresh session; the old session's timestamps are transient and discarded.
// Already-enqueued events for the old assignment stay queued.
func (e *Engine) SetTrackedAssignment(a *models.TrackedAssignment) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Старую подписку гасим в любом случае: либо стоп, либо ре-арм ниже.
	if e.armed {
		e.source.Unsubscribe()
		e.armed = false
	}
	e.assignment = nil
	e.session = nil

	if a == nil {
		slog.Info("geofence tracking stopped")
		return nil
	}
	if err := a.Shape.Validate(); err != nil {
		return errors.Wrap(err, "tracked assignment shape")
	}
	if !e.source.PermissionGranted() {
		e.lastError = ErrPermissionDenied.Error()
		return ErrPermissionDenied
	}

	e.assignment = a
	e.session = &models.GeofenceSession{
		AssignmentID: a.ID,
		State:        models.SessionUnknown,
	}

	opts := e.planner.Initial()
	if err := e.source.Subscribe(opts); err != nil {
		e.assignment = nil
		e.session = nil
		return errors.Wrap(err, "subscribe location source")
	}
	e.armed = true
	e.cadence = opts

	slog.Info("geofence tracking started", "assignment_id", a.ID, "shape", a.Shape.Kind)
	return nil
}

// OnLocationUpdate consumes one fix. A containment flip updates the session,
// emits a GeofenceEvent and pushes it into the queue synchronously — there
// is no window between detection and durability.
func (e *Engine) OnLocationUpdate(ctx context.Context, p models.LatLng) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.assignment == nil || e.session == nil {
		return
	}
	e.samples++

	inside := geomath.Contains(e.assignment.Shape, p)
	now := e.now().UTC()

	switch {
	case e.session.State == models.SessionUnknown:
		// Первый фикс только инициализирует состояние, без события.
		e.session.State = stateOf(inside)
		e.session.IsInside = inside
	case inside && e.session.State == models.SessionOutside:
		e.session.State = models.SessionInside
		e.session.IsInside = true
		e.session.EnteredAt = &now
		e.transitions++
		e.emit(ctx, models.GeofenceEnter, now, p)
	case !inside && e.session.State == models.SessionInside:
		e.session.State = models.SessionOutside
		e.session.IsInside = false
		e.session.ExitedAt = &now
		e.transitions++
		e.emit(ctx, models.GeofenceExit, now, p)
	}

	e.adjustCadence(p)
}

// emit runs under mu.
func (e *Engine) emit(ctx context.Context, kind string, at time.Time, p models.LatLng) {
	ev := models.GeofenceEvent{
		ID:           e.newID(),
		AssignmentID: e.assignment.ID,
		Kind:         kind,
		Timestamp:    at,
		Coordinates:  p,
	}
	if err := e.queue.EnqueueGeofenceEvent(ctx, ev); err != nil {
		// Переход уже случился; терять его молча нельзя, но и падать тоже.
		e.lastError = err.Error()
		slog.Error("enqueue geofence event", "assignment_id", ev.AssignmentID, "kind", kind, "error", err.Error())
		return
	}
	slog.Info("geofence event", "assignment_id", ev.AssignmentID, "kind", kind)
}

// adjustCadence re-arms the subscription when the policy band changes.
// Runs under mu. Re-arm is idempotent: identical parameters are a no-op.
func (e *Engine) adjustCadence(p models.LatLng) {
	dist := geomath.DistanceToBoundary(e.assignment.Shape, p)
	opts := e.planner.Plan(dist)
	if opts == e.cadence {
		return
	}
	if err := e.source.Subscribe(opts); err != nil {
		e.lastError = err.Error()
		slog.Error("re-arm location subscription", "error", err.Error())
		return
	}
	e.cadence = opts
	slog.Debug("cadence adjusted", "distance_m", dist, "accuracy", opts.Accuracy, "interval", opts.Interval.String())
}

// Session returns a snapshot of the current session, or nil when idle.
func (e *Engine) Session() *models.GeofenceSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	cp := *e.session
	return &cp
}

// Cadence returns the currently armed sampling parameters.
func (e *Engine) Cadence() SubscribeOptions {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cadence
}

type Stats struct {
	Tracking     bool   `json:"tracking"`
	AssignmentID string `json:"assignmentId,omitempty"`
	Samples      uint64 `json:"samples"`
	Transitions  uint64 `json:"transitions"`
	Accuracy     string `json:"accuracy,omitempty"`
	IntervalMS   int64  `json:"intervalMs,omitempty"`
	LastError    string `json:"lastError,omitempty"`
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := Stats{
		Tracking:    e.assignment != nil,
		Samples:     e.samples,
		Transitions: e.transitions,
		LastError:   e.lastError,
	}
	if e.assignment != nil {
		st.AssignmentID = e.assignment.ID
		st.Accuracy = string(e.cadence.Accuracy)
		st.IntervalMS = e.cadence.Interval.Milliseconds()
	}
	return st
}

func stateOf(inside bool) string {
	if inside {
		return models.SessionInside
	}
	return models.SessionOutside
}
