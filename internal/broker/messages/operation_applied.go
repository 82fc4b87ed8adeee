package messages

import (
	"encoding/json"
	"time"
)

// OperationApplied is published to the telemetry topic after the remote API
// confirms a queued operation. Pure observability: the sync core never
// depends on this being delivered.
type OperationApplied struct {
	OperationID string          `json:"operation_id"`
	Kind        string          `json:"kind"`
	TargetID    string          `json:"target_id,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	Attempts    uint32          `json:"attempts"`
	AppliedAt   time.Time       `json:"applied_at"`
}
