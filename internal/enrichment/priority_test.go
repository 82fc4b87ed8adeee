package enrichment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BearBump/FieldSync/internal/models"
)

func TestPriorityScore_Vectors(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in30 := now.Add(30 * time.Minute)
	in2h := now.Add(2 * time.Hour)
	in5h := now.Add(5 * time.Hour)

	cases := []struct {
		name  string
		in    ScoreInput
		score int
		color string
	}{
		{
			name: "critical weather eta30 travel45",
			in: ScoreInput{
				Severity:      models.SeverityCritical,
				WeatherImpact: true,
				ETA:           &in30,
				TravelTime:    45 * time.Minute,
				Now:           now,
			},
			score: 7, // 3+1+2+1
			color: models.PriorityRed,
		},
		{
			name:  "low nothing travel10",
			in:    ScoreInput{Severity: models.SeverityLow, TravelTime: 10 * time.Minute, Now: now},
			score: 1,
			color: models.PriorityGreen,
		},
		{
			name:  "moderate eta2h",
			in:    ScoreInput{Severity: models.SeverityModerate, ETA: &in2h, Now: now},
			score: 3, // 2+1
			color: models.PriorityAmber,
		},
		{
			name:  "critical far eta",
			in:    ScoreInput{Severity: models.SeverityCritical, ETA: &in5h, Now: now},
			score: 3,
			color: models.PriorityAmber,
		},
		{
			name: "amber to red via travel",
			in: ScoreInput{
				Severity:   models.SeverityCritical,
				ETA:        &in30,
				TravelTime: 31 * time.Minute,
				Now:        now,
			},
			score: 6, // 3+2+1
			color: models.PriorityRed,
		},
		{
			name:  "unknown severity counts as base 1",
			in:    ScoreInput{Severity: "WHATEVER", Now: now},
			score: 1,
			color: models.PriorityGreen,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := PriorityScore(tc.in)
			require.Equal(t, tc.score, got)
			require.Equal(t, tc.color, PriorityColor(got))
		})
	}
}

func TestPriorityColor_Bands(t *testing.T) {
	require.Equal(t, models.PriorityGreen, PriorityColor(1))
	require.Equal(t, models.PriorityGreen, PriorityColor(2))
	require.Equal(t, models.PriorityAmber, PriorityColor(3))
	require.Equal(t, models.PriorityAmber, PriorityColor(4))
	require.Equal(t, models.PriorityRed, PriorityColor(5))
	require.Equal(t, models.PriorityRed, PriorityColor(9))
}
