package geofence

import "time"

type CadenceConfig struct {
	FarDistanceMeters  float64 // default: 500
	NearDistanceMeters float64 // default: 100

	FarInterval  time.Duration // default: 60s
	MidInterval  time.Duration // default: 15s
	NearInterval time.Duration // default: 3s
}

func DefaultCadenceConfig() CadenceConfig {
	return CadenceConfig{
		FarDistanceMeters:  500,
		NearDistanceMeters: 100,
		FarInterval:        60 * time.Second,
		MidInterval:        15 * time.Second,
		NearInterval:       3 * time.Second,
	}
}

// CadencePlanner picks sampling parameters from the distance to the
// geofence boundary: far away we sample rarely and cheaply, close to the
// boundary we want fast, accurate fixes.
type CadencePlanner struct {
	cfg CadenceConfig
}

func NewCadencePlanner(cfg CadenceConfig) *CadencePlanner {
	def := DefaultCadenceConfig()
	if cfg.FarDistanceMeters <= 0 {
		cfg.FarDistanceMeters = def.FarDistanceMeters
	}
	if cfg.NearDistanceMeters <= 0 {
		cfg.NearDistanceMeters = def.NearDistanceMeters
	}
	if cfg.NearDistanceMeters > cfg.FarDistanceMeters {
		cfg.NearDistanceMeters = cfg.FarDistanceMeters
	}
	if cfg.FarInterval <= 0 {
		cfg.FarInterval = def.FarInterval
	}
	if cfg.MidInterval <= 0 {
		cfg.MidInterval = def.MidInterval
	}
	if cfg.NearInterval <= 0 {
		cfg.NearInterval = def.NearInterval
	}
	return &CadencePlanner{cfg: cfg}
}

func (p *CadencePlanner) Plan(distanceToBoundary float64) SubscribeOptions {
	switch {
	case distanceToBoundary >= p.cfg.FarDistanceMeters:
		return SubscribeOptions{Accuracy: AccuracyLow, Interval: p.cfg.FarInterval, DistanceMeters: 50}
	case distanceToBoundary >= p.cfg.NearDistanceMeters:
		return SubscribeOptions{Accuracy: AccuracyBalanced, Interval: p.cfg.MidInterval, DistanceMeters: 20}
	default:
		return SubscribeOptions{Accuracy: AccuracyHigh, Interval: p.cfg.NearInterval, DistanceMeters: 5}
	}
}

// Initial is the cadence used between arming a session and the first fix.
func (p *CadencePlanner) Initial() SubscribeOptions {
	return SubscribeOptions{Accuracy: AccuracyBalanced, Interval: p.cfg.MidInterval, DistanceMeters: 20}
}
