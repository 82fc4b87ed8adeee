package opqueue

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/BearBump/FieldSync/internal/models"
	"github.com/BearBump/FieldSync/internal/remote"
)

// recordRejection appends the refusal to the bounded rejected log so the
// UI layer can surface it. Log write failures are logged and swallowed:
// the queue must keep draining.
func (q *Queue) recordRejection(ctx context.Context, op *models.QueuedOperation, rej *remote.Rejection) {
	slog.Error("operation rejected by server",
		"op_id", op.ID, "kind", op.Kind, "target_id", op.TargetID,
		"status", rej.StatusCode, "reason", rej.Reason)

	log, err := q.RejectedLog(ctx)
	if err != nil {
		slog.Warn("read rejected log", "error", err.Error())
		log = nil
	}
	log = append(log, models.RejectedOperation{
		ID:         op.ID,
		Kind:       op.Kind,
		TargetID:   op.TargetID,
		StatusCode: rej.StatusCode,
		Reason:     rej.Reason,
		RejectedAt: q.now().UTC(),
	})
	if len(log) > rejectedLogMax {
		log = log[len(log)-rejectedLogMax:]
	}

	b, err := json.Marshal(log)
	if err != nil {
		slog.Warn("marshal rejected log", "error", err.Error())
		return
	}
	if err := q.store.Set(ctx, rejectedLogKey, b); err != nil {
		slog.Warn("persist rejected log", "error", err.Error())
	}
}

// RejectedLog returns the recorded terminal refusals, oldest first.
// A corrupt log is reset rather than treated as fatal.
func (q *Queue) RejectedLog(ctx context.Context) ([]models.RejectedOperation, error) {
	b, ok, err := q.store.Get(ctx, rejectedLogKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var log []models.RejectedOperation
	if err := json.Unmarshal(b, &log); err != nil {
		slog.Warn("opqueue: corrupt rejected log, resetting")
		_ = q.store.Remove(ctx, rejectedLogKey)
		return nil, nil
	}
	return log, nil
}
