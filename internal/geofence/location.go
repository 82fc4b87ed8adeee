package geofence

import "time"

type Accuracy string

const (
	AccuracyLow      Accuracy = "LOW"
	AccuracyBalanced Accuracy = "BALANCED"
	AccuracyHigh     Accuracy = "HIGH"
)

type SubscribeOptions struct {
	Accuracy       Accuracy      `json:"accuracy"`
	Interval       time.Duration `json:"interval"`
	DistanceMeters float64       `json:"distanceMeters"`
}

// Source is the platform location subsystem. Delivery of points happens
// outside this interface (the host calls Engine.OnLocationUpdate); Source
// only controls the sampling resource.
//
// Subscribe re-arms an existing subscription with new parameters; it must
// never leave two subscriptions running.
type Source interface {
	Subscribe(opts SubscribeOptions) error
	Unsubscribe()
	PermissionGranted() bool
}
