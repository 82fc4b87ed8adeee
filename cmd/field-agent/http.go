package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/BearBump/FieldSync/internal/geofence"
	"github.com/BearBump/FieldSync/internal/models"
	"github.com/BearBump/FieldSync/internal/netwatch"
)

func runHTTPServer(ctx context.Context, addr string, a *app, onListen func(addr string)) error {
	if addr == "" {
		addr = ":8080"
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	if onListen != nil {
		onListen(lis.Addr().String())
	}

	srv := &http.Server{Handler: newRouter(a)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	return srv.Serve(lis)
}

func newRouter(a *app) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Get("/stats", a.handleStats)
	r.Get("/network", a.handleGetNetwork)
	r.Post("/network", a.handleSetNetwork)
	r.Post("/sync", a.handleSync)

	r.Get("/session", a.handleGetSession)
	r.Put("/tracking", a.handlePutTracking)
	r.Delete("/tracking", a.handleDeleteTracking)
	r.Post("/location", a.handlePostLocation)

	r.Get("/queue", a.handleGetQueue)
	r.Delete("/queue", a.handleClearQueue)
	r.Get("/queue/rejected", a.handleRejectedLog)

	r.Get("/faults", a.handleListFaults)
	r.Get("/faults/{id}", a.handleGetFault)
	r.Post("/faults/{id}/action", a.handleFaultAction)
	r.Patch("/faults/{id}/assign", a.handleAssignFault)
	r.Patch("/faults/{id}/assign-team", a.handleAssignTeam)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (a *app) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"queue":      a.queue.Stats(),
		"geofence":   a.engine.Stats(),
		"enrichment": a.enricher.Stats(),
		"sync":       a.coord.Stats(),
		"network":    a.observer.Current(),
	})
}

func (a *app) handleGetNetwork(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.observer.Current())
}

// handleSetNetwork accepts connectivity transitions from the device shell.
// Only available in manual mode; with an active probe the shell's opinion
// would be immediately overwritten.
func (a *app) handleSetNetwork(w http.ResponseWriter, r *http.Request) {
	m, ok := a.observer.(*netwatch.Manual)
	if !ok {
		writeError(w, http.StatusConflict, "network state is probe-managed")
		return
	}
	var st netwatch.State
	if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
		writeError(w, http.StatusBadRequest, "invalid network state")
		return
	}
	m.Set(st)
	writeJSON(w, http.StatusOK, a.observer.Current())
}

func (a *app) handleSync(w http.ResponseWriter, r *http.Request) {
	a.coord.Sync()
	writeJSON(w, http.StatusAccepted, map[string]bool{"scheduled": true})
}

func (a *app) handleGetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"session": a.engine.Session(),
		"cadence": cadenceDTO(a.engine.Cadence()),
	})
}

func (a *app) handlePutTracking(w http.ResponseWriter, r *http.Request) {
	var ta models.TrackedAssignment
	if err := json.NewDecoder(r.Body).Decode(&ta); err != nil {
		writeError(w, http.StatusBadRequest, "invalid tracked assignment")
		return
	}
	if ta.ID == "" {
		writeError(w, http.StatusBadRequest, "assignment id is required")
		return
	}
	if ta.CreatedAt.IsZero() {
		ta.CreatedAt = time.Now().UTC()
	}
	if err := a.engine.SetTrackedAssignment(&ta); err != nil {
		status := http.StatusBadRequest
		if err == geofence.ErrPermissionDenied {
			status = http.StatusForbidden
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": a.engine.Session(),
		"cadence": cadenceDTO(a.engine.Cadence()),
	})
}

func (a *app) handleDeleteTracking(w http.ResponseWriter, r *http.Request) {
	_ = a.engine.SetTrackedAssignment(nil)
	w.WriteHeader(http.StatusNoContent)
}

// handlePostLocation feeds one GPS fix to the engine and returns the
// cadence the shell should sample at until the next fix.
func (a *app) handlePostLocation(w http.ResponseWriter, r *http.Request) {
	var p models.LatLng
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid location")
		return
	}
	a.engine.OnLocationUpdate(r.Context(), p)
	writeJSON(w, http.StatusOK, map[string]any{
		"session": a.engine.Session(),
		"cadence": cadenceDTO(a.engine.Cadence()),
	})
}

func (a *app) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"pending": a.queue.Pending(),
		"length":  a.queue.Len(),
	})
}

func (a *app) handleClearQueue(w http.ResponseWriter, r *http.Request) {
	if err := a.queue.Clear(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *app) handleRejectedLog(w http.ResponseWriter, r *http.Request) {
	log, err := a.queue.RejectedLog(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rejected": log})
}

// handleListFaults serves the last-synced snapshot with whatever enrichment
// is cached. Travel time is position-dependent, so the list view does not
// compute it; the detail view does when the shell supplies coordinates.
func (a *app) handleListFaults(w http.ResponseWriter, r *http.Request) {
	faults := a.coord.Faults()
	out := make([]models.EnrichedFault, 0, len(faults))
	for _, f := range faults {
		ef := models.EnrichedFault{Fault: *f}
		if entry, ok := a.enricher.Get(r.Context(), f.ID); ok {
			ef.Enrichment = entry
		}
		out = append(out, ef)
	}
	writeJSON(w, http.StatusOK, map[string]any{"faults": out})
}

func (a *app) handleGetFault(w http.ResponseWriter, r *http.Request) {
	f, ok := a.coord.Fault(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "fault not found")
		return
	}

	var loc *models.LatLng
	if latS, lngS := r.URL.Query().Get("lat"), r.URL.Query().Get("lng"); latS != "" && lngS != "" {
		lat, latErr := strconv.ParseFloat(latS, 64)
		lng, lngErr := strconv.ParseFloat(lngS, 64)
		if latErr != nil || lngErr != nil {
			writeError(w, http.StatusBadRequest, "invalid coordinates")
			return
		}
		loc = &models.LatLng{Lat: lat, Lng: lng}
	}

	ef, err := a.enricher.Enrich(r.Context(), *f, loc)
	if err != nil {
		// Обогащение не смогли посчитать — отдаём голый fault.
		writeJSON(w, http.StatusOK, models.EnrichedFault{Fault: *f})
		return
	}
	writeJSON(w, http.StatusOK, ef)
}

func (a *app) enqueueOp(w http.ResponseWriter, r *http.Request, kind string) {
	id := chi.URLParam(r, "id")
	var payload json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	op, err := a.queue.Enqueue(r.Context(), kind, id, payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// 202: операция надёжно записана, доставка — когда появится сеть.
	writeJSON(w, http.StatusAccepted, op)
}

func (a *app) handleFaultAction(w http.ResponseWriter, r *http.Request) {
	a.enqueueOp(w, r, models.OpStatusUpdate)
}

func (a *app) handleAssignFault(w http.ResponseWriter, r *http.Request) {
	a.enqueueOp(w, r, models.OpAssignment)
}

func (a *app) handleAssignTeam(w http.ResponseWriter, r *http.Request) {
	a.enqueueOp(w, r, models.OpTeamAssignment)
}

type cadenceView struct {
	Accuracy        geofence.Accuracy `json:"accuracy"`
	IntervalSeconds float64           `json:"intervalSeconds"`
	DistanceMeters  float64           `json:"distanceMeters"`
}

func cadenceDTO(opts geofence.SubscribeOptions) cadenceView {
	return cadenceView{
		Accuracy:        opts.Accuracy,
		IntervalSeconds: opts.Interval.Seconds(),
		DistanceMeters:  opts.DistanceMeters,
	}
}
