package summary_test

import (
	"testing"
	"time"

	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/models"
	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/summary"

	"github.com/stretchr/testify/require"
)

func TestCompose_MergesAllSections(t *testing.T) {
	now := time.Now()

	features := map[string]models.FeatureVector{
		"heart_rate": {Metric: "heart_rate", CurrentValue: 110, RiskScore: 0.5, SampleCount: 8},
	}
	forecasts := map[string]*models.ForecastResult{
		"heart_rate": {
			Metric: "heart_rate",
			Model:  "trend",
			Points: []models.ForecastPoint{
				{Timestamp: now.Add(time.Hour), Estimate: 112, Lower: 108, Upper: 116},
				{Timestamp: now.Add(24 * time.Hour), Estimate: 118, Lower: 110, Upper: 126},
			},
		},
	}
	alerts := []models.Alert{
		{EventID: "e1", Metric: "heart_rate", Severity: models.SeverityWarning},
	}

	s := summary.Compose("s1", features, forecasts, alerts, now)

	require.Equal(t, "s1", s.SubjectID)
	require.Equal(t, now, s.GeneratedAt)
	require.Equal(t, 110.0, s.Features["heart_rate"].CurrentValue)
	require.Len(t, s.Alerts, 1)

	// 预测摘要取预测期末点
	hl := s.Forecasts["heart_rate"]
	require.Equal(t, "trend", hl.Model)
	require.Equal(t, 118.0, hl.Estimate)
	require.Equal(t, now.Add(24*time.Hour), hl.Timestamp)
}

func TestCompose_EmptyInputsYieldEmptyContainers(t *testing.T) {
	s := summary.Compose("s1", nil, nil, nil, time.Now())

	require.NotNil(t, s.Features)
	require.NotNil(t, s.Forecasts)
	require.NotNil(t, s.Alerts)
	require.Empty(t, s.Features)
	require.Empty(t, s.Forecasts)
	require.Empty(t, s.Alerts)
}

func TestCompose_ForecastWithoutPointsSkipped(t *testing.T) {
	forecasts := map[string]*models.ForecastResult{
		"temperature": {Metric: "temperature", Model: "trend"},
	}

	s := summary.Compose("s1", nil, forecasts, nil, time.Now())
	require.NotContains(t, s.Forecasts, "temperature")
}
