package enrichment

import (
	"time"

	"github.com/BearBump/FieldSync/internal/models"
)

type ScoreInput struct {
	Severity      string
	WeatherImpact bool
	ETA           *time.Time
	TravelTime    time.Duration
	Now           time.Time
}

// PriorityScore is the composite urgency score. The table is deliberately
// dumb and additive so dispatchers can reason about it.
func PriorityScore(in ScoreInput) int {
	score := 1
	switch in.Severity {
	case models.SeverityCritical:
		score = 3
	case models.SeverityModerate:
		score = 2
	}

	if in.WeatherImpact {
		score++
	}

	if in.ETA != nil {
		remaining := in.ETA.Sub(in.Now)
		switch {
		case remaining < time.Hour:
			score += 2
		case remaining < 3*time.Hour:
			score++
		}
	}

	if in.TravelTime > 30*time.Minute {
		score++
	}
	return score
}

func PriorityColor(score int) string {
	switch {
	case score >= 5:
		return models.PriorityRed
	case score >= 3:
		return models.PriorityAmber
	default:
		return models.PriorityGreen
	}
}
