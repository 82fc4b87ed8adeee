package models

import (
	"encoding/json"
	"time"
)

// Operation kinds carried by the durable queue.
const (
	OpStatusUpdate   = "STATUS_UPDATE"
	OpAssignment     = "ASSIGNMENT"
	OpTeamAssignment = "TEAM_ASSIGNMENT"
	OpGeofenceEvent  = "GEOFENCE_EVENT"
)

// QueuedOperation is a pending mutation. ID is client-generated and doubles
// as the idempotency key: the server treats redelivery of the same ID as a
// no-op after first success.
type QueuedOperation struct {
	ID        string          `json:"id"`
	Seq       uint64          `json:"seq"`
	Kind      string          `json:"kind"`
	TargetID  string          `json:"targetId"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
	Attempts  uint32          `json:"attempts"`
}

// RejectedOperation is the record kept when the server terminally refuses
// an operation (4xx). Дальше такую операцию не ретраим.
type RejectedOperation struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	TargetID   string    `json:"targetId"`
	StatusCode int       `json:"statusCode"`
	Reason     string    `json:"reason"`
	RejectedAt time.Time `json:"rejectedAt"`
}
