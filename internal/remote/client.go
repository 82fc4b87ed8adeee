package remote

import (
	"context"
	"encoding/json"

	"github.com/BearBump/FieldSync/internal/models"
)

// Client is the remote field-ops API as consumed by the sync core. Every
// mutating call carries the operation id as its idempotency key, so the
// server ignores redelivery after first success.
type Client interface {
	SubmitAction(ctx context.Context, idempotencyKey, faultID string, payload json.RawMessage) error
	AssignFault(ctx context.Context, idempotencyKey, faultID string, payload json.RawMessage) error
	AssignTeam(ctx context.Context, idempotencyKey, faultID string, payload json.RawMessage) error
	PostGeofenceEvent(ctx context.Context, idempotencyKey string, payload json.RawMessage) error

	ListFaults(ctx context.Context) ([]*models.Fault, error)
}

// TokenSource supplies the bearer credential. Auth lifecycle lives outside
// the sync core.
type TokenSource interface {
	Token() (string, error)
}

type StaticToken string

func (t StaticToken) Token() (string, error) { return string(t), nil }
