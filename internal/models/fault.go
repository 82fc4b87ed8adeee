package models

import "time"

// Fault severities (нормализованные, можно расширять).
const (
	SeverityCritical = "CRITICAL"
	SeverityModerate = "MODERATE"
	SeverityLow      = "LOW"
)

const (
	PriorityRed   = "RED"
	PriorityAmber = "AMBER"
	PriorityGreen = "GREEN"
)

// Fault is the authoritative field incident as last fetched from the
// remote API. The agent serves this snapshot while offline.
type Fault struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Severity   string     `json:"severity"`
	Status     string     `json:"status"`
	Location   LatLng     `json:"location"`
	AssigneeID string     `json:"assigneeId,omitempty"`
	TeamID     string     `json:"teamId,omitempty"`
	ETA        *time.Time `json:"eta,omitempty"`
	ReportedAt time.Time  `json:"reportedAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// EnrichmentEntry holds derived per-fault attributes. Weather and priority
// obey the cache TTL; travel time is position-dependent and is recomputed
// fresh on every enriched read that supplies a location.
type EnrichmentEntry struct {
	EntityID          string    `json:"entityId"`
	ComputedAt        time.Time `json:"computedAt"`
	WeatherSummary    string    `json:"weatherSummary"`
	WeatherImpact     bool      `json:"weatherImpact"`
	TravelTimeMinutes float64   `json:"travelTimeMinutes"`
	PriorityColor     string    `json:"priorityColor"`
}

// EnrichedFault is a fault snapshot merged with its enrichment entry.
type EnrichedFault struct {
	Fault
	Enrichment *EnrichmentEntry `json:"enrichment,omitempty"`
}
