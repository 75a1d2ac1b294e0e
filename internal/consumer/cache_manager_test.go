package consumer_test

import (
	"context"
	"testing"
	"time"

	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/config"
	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/consumer"
	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/models"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func cacheConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Cache.SummaryKeyPrefix = "health:subject:"
	cfg.Cache.SummarySuffix = ":summary"
	cfg.Cache.AlertKeyPrefix = "health:subject:"
	cfg.Cache.AlertSuffix = ":alerts"
	cfg.Cache.TTL = time.Minute
	return cfg
}

func TestCacheManager_SummaryRoundtrip(t *testing.T) {
	cm := consumer.NewCacheManager(cacheConfig(), newFakeKVStore(), zap.NewNop())
	ctx := context.Background()

	s := &models.HealthSummary{
		SubjectID:   "s1",
		GeneratedAt: time.Now().UTC(),
		Features: map[string]models.FeatureVector{
			"heart_rate": {Metric: "heart_rate", CurrentValue: 110, RiskScore: 0.5, SampleCount: 8},
		},
		Forecasts: map[string]models.ForecastHighlight{},
		Alerts:    []models.Alert{},
	}

	require.NoError(t, cm.UpdateSummary(ctx, s))

	got, err := cm.GetSummary(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "s1", got.SubjectID)
	require.Equal(t, 110.0, got.Features["heart_rate"].CurrentValue)
}

func TestCacheManager_SummaryMiss(t *testing.T) {
	cm := consumer.NewCacheManager(cacheConfig(), newFakeKVStore(), zap.NewNop())

	_, err := cm.GetSummary(context.Background(), "unknown")
	require.ErrorIs(t, err, consumer.ErrCacheMiss)
}

func TestCacheManager_AlertsRoundtrip(t *testing.T) {
	cm := consumer.NewCacheManager(cacheConfig(), newFakeKVStore(), zap.NewNop())
	ctx := context.Background()

	alerts := []models.Alert{
		{EventID: "e1", SubjectID: "s1", Metric: "heart_rate", Severity: models.SeverityCritical},
		{EventID: "e2", SubjectID: "s1", Metric: "temperature", Severity: models.SeverityWarning},
	}
	require.NoError(t, cm.UpdateAlerts(ctx, "s1", alerts))

	got, err := cm.GetAlerts(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "e1", got[0].EventID)
}

func TestCacheManager_ExpiredEntryMisses(t *testing.T) {
	cfg := cacheConfig()
	cfg.Cache.TTL = time.Millisecond
	cm := consumer.NewCacheManager(cfg, newFakeKVStore(), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, cm.UpdateAlerts(ctx, "s1", []models.Alert{{EventID: "e1"}}))
	time.Sleep(5 * time.Millisecond)

	_, err := cm.GetAlerts(ctx, "s1")
	require.ErrorIs(t, err, consumer.ErrCacheMiss)
}
