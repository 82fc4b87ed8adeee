package models

import (
	"time"

	"github.com/pkg/errors"
)

const (
	ShapeCircle  = "CIRCLE"
	ShapePolygon = "POLYGON"
)

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// GeofenceShape — круг или полигон. Для полигона последняя вершина
// неявно соединяется с первой (не замыкаем список сами).
type GeofenceShape struct {
	Kind         string   `json:"kind"`
	Center       LatLng   `json:"center,omitempty"`
	RadiusMeters float64  `json:"radiusMeters,omitempty"`
	Vertices     []LatLng `json:"vertices,omitempty"`
}

func (s GeofenceShape) Validate() error {
	switch s.Kind {
	case ShapeCircle:
		if s.RadiusMeters <= 0 {
			return errors.New("circle radius must be positive")
		}
	case ShapePolygon:
		if len(s.Vertices) < 3 {
			return errors.New("polygon requires at least 3 vertices")
		}
	default:
		return errors.Errorf("unknown shape kind: %q", s.Kind)
	}
	return nil
}

type TrackedAssignment struct {
	ID        string        `json:"id"`
	Shape     GeofenceShape `json:"shape"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Session containment states.
const (
	SessionUnknown = "UNKNOWN"
	SessionInside  = "INSIDE"
	SessionOutside = "OUTSIDE"
)

// GeofenceSession is transient per-assignment state. It is never persisted;
// a new tracked assignment always starts from a fresh session.
type GeofenceSession struct {
	AssignmentID string     `json:"assignmentId"`
	State        string     `json:"state"`
	IsInside     bool       `json:"isInside"`
	EnteredAt    *time.Time `json:"enteredAt,omitempty"`
	ExitedAt     *time.Time `json:"exitedAt,omitempty"`
}

const (
	GeofenceEnter = "ENTER"
	GeofenceExit  = "EXIT"
)

// GeofenceEvent is immutable after creation except for the Synced flag,
// which the queue owns.
type GeofenceEvent struct {
	ID           string    `json:"id"`
	AssignmentID string    `json:"assignmentId"`
	Kind         string    `json:"kind"`
	Timestamp    time.Time `json:"timestamp"`
	Coordinates  LatLng    `json:"coordinates"`
	Synced       bool      `json:"synced"`
}
