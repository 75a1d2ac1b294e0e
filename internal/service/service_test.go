package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/config"
	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/models"
	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/service"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func pipelineConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Rules = config.DefaultRules()
	cfg.Pipeline.EvalInterval = 30 * time.Second
	cfg.Pipeline.Workers = 2
	cfg.Pipeline.Windows = []config.WindowConfig{
		{Duration: time.Hour, MinSamples: 3},
		{Duration: 24 * time.Hour, MinSamples: 10},
	}
	cfg.Pipeline.TailSize = 10
	cfg.Pipeline.HistoryMaxAge = 7 * 24 * time.Hour
	cfg.Pipeline.HistoryMaxCount = 5000
	cfg.Forecast.HorizonSteps = 24
	cfg.Forecast.Spacing = time.Hour
	cfg.Forecast.Confidence = 0.95
	cfg.Forecast.MinSamples = 5
	cfg.Forecast.Alpha = 0.5
	cfg.Forecast.Beta = 0.3
	cfg.Forecast.Timeout = 5 * time.Second
	cfg.Forecast.CacheTTL = time.Minute
	cfg.Forecast.FallbackSigma = 0.1
	cfg.Alerts.Cooldown = 10 * time.Minute
	cfg.Alerts.ElevatedThreshold = 0.33
	cfg.Alerts.CriticalThreshold = 0.66
	return cfg
}

// ingestSeries 注入等间隔（5 分钟）的 heart_rate 序列，最后一条在 now
func ingestSeries(s *service.PipelineService, subjectID string, now time.Time, values ...float64) {
	start := now.Add(-time.Duration(len(values)-1) * 5 * time.Minute)
	for i, v := range values {
		s.Ingest(models.Reading{
			SubjectID: subjectID,
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Metrics:   map[string]float64{"heart_rate": v},
		})
	}
}

func TestEvaluateSubject_NormalReadingsNoAlerts(t *testing.T) {
	s := service.NewCoreService(pipelineConfig(), zap.NewNop())
	now := time.Now()
	ingestSeries(s, "s1", now, 72, 74, 73, 75, 74, 73)

	summary := s.EvaluateSubject(context.Background(), "s1", now)

	require.Equal(t, "s1", summary.SubjectID)
	require.Empty(t, summary.Alerts)

	fv := summary.Features["heart_rate"]
	require.Equal(t, 73.0, fv.CurrentValue)
	require.Equal(t, models.RiskNormal, fv.RiskCategory)

	// 预测摘要存在且来自趋势模型（历史充足）
	hl, ok := summary.Forecasts["heart_rate"]
	require.True(t, ok)
	require.Equal(t, "trend", hl.Model)
}

func TestEvaluateSubject_HighReadingTriggersAlert(t *testing.T) {
	s := service.NewCoreService(pipelineConfig(), zap.NewNop())
	now := time.Now()
	ingestSeries(s, "s1", now, 108, 109, 110, 111, 112, 113)

	summary := s.EvaluateSubject(context.Background(), "s1", now)

	require.NotEmpty(t, summary.Alerts)
	var found bool
	for _, a := range summary.Alerts {
		if a.Condition == models.ConditionThresholdHigh {
			found = true
			require.Equal(t, models.SeverityWarning, a.Severity)
		}
	}
	require.True(t, found)
}

func TestEvaluateSubject_AlertDeduplicatedAcrossCycles(t *testing.T) {
	s := service.NewCoreService(pipelineConfig(), zap.NewNop())
	now := time.Now()
	ingestSeries(s, "s1", now, 110, 110, 110, 110, 110, 110)

	first := s.EvaluateSubject(context.Background(), "s1", now)
	second := s.EvaluateSubject(context.Background(), "s1", now.Add(30*time.Second))

	require.Len(t, first.Alerts, 1)
	require.Len(t, second.Alerts, 1)
	require.Equal(t, first.Alerts[0].EventID, second.Alerts[0].EventID)
	require.True(t, second.Alerts[0].LastTriggeredAt.After(first.Alerts[0].LastTriggeredAt))
}

func TestEvaluateSubject_NoConfiguredWindows(t *testing.T) {
	// 调用方自建配置可能不含任何窗口：退化为兜底主窗口而不是 panic
	cfg := pipelineConfig()
	cfg.Pipeline.Windows = nil
	s := service.NewCoreService(cfg, zap.NewNop())
	now := time.Now()
	ingestSeries(s, "s1", now, 72, 74, 73, 75, 74, 73)

	summary := s.EvaluateSubject(context.Background(), "s1", now)
	require.Equal(t, "s1", summary.SubjectID)

	fv := summary.Features["heart_rate"]
	require.Equal(t, 73.0, fv.CurrentValue)

	stats, err := s.GetAggregates(context.Background(), "s1", time.Hour)
	require.NoError(t, err)
	require.Equal(t, 6, stats["heart_rate"].Count)
}

func TestGetHealthSummary_EmptySubject(t *testing.T) {
	s := service.NewCoreService(pipelineConfig(), zap.NewNop())

	summary, err := s.GetHealthSummary(context.Background(), "unknown")
	require.NoError(t, err)
	require.Equal(t, "unknown", summary.SubjectID)
	require.Empty(t, summary.Features)
	require.Empty(t, summary.Forecasts)
	require.Empty(t, summary.Alerts)
}

func TestGetHealthSummary_EvaluatesOnDemand(t *testing.T) {
	s := service.NewCoreService(pipelineConfig(), zap.NewNop())
	now := time.Now()
	ingestSeries(s, "s1", now, 72, 74, 73, 75)

	summary, err := s.GetHealthSummary(context.Background(), "s1")
	require.NoError(t, err)
	require.Contains(t, summary.Features, "heart_rate")
}

func TestGetForecast_CoIndexedArrays(t *testing.T) {
	s := service.NewCoreService(pipelineConfig(), zap.NewNop())
	now := time.Now()
	ingestSeries(s, "s1", now, 70, 72, 74, 76, 78, 80)

	result, err := s.GetForecast(context.Background(), "s1", 12)
	require.NoError(t, err)
	require.Equal(t, "s1", result.SubjectID)
	require.Equal(t, 12, result.HorizonHours)

	mf, ok := result.Forecasts["heart_rate"]
	require.True(t, ok)
	require.Len(t, mf.Timestamps, 12)
	require.Len(t, mf.ForecastValues, 12)
	require.Len(t, mf.LowerBound, 12)
	require.Len(t, mf.UpperBound, 12)

	for i := range mf.ForecastValues {
		require.LessOrEqual(t, mf.LowerBound[i], mf.ForecastValues[i])
		require.LessOrEqual(t, mf.ForecastValues[i], mf.UpperBound[i])
	}
}

func TestGetForecast_EmptySubject(t *testing.T) {
	s := service.NewCoreService(pipelineConfig(), zap.NewNop())

	result, err := s.GetForecast(context.Background(), "unknown", 24)
	require.NoError(t, err)
	require.Empty(t, result.Forecasts)
}

func TestGetActiveAlerts_SortedBySeverity(t *testing.T) {
	s := service.NewCoreService(pipelineConfig(), zap.NewNop())
	now := time.Now()

	// heart_rate 130：超出临界边界 120 → critical
	// temperature 38.5：越出正常范围但未达 39 → warning
	start := now.Add(-25 * time.Minute)
	for i := 0; i < 6; i++ {
		s.Ingest(models.Reading{
			SubjectID: "s1",
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Metrics:   map[string]float64{"heart_rate": 130, "temperature": 38.5},
		})
	}
	s.EvaluateSubject(context.Background(), "s1", now)

	alerts, err := s.GetActiveAlerts(context.Background(), "s1")
	require.NoError(t, err)
	require.NotEmpty(t, alerts)
	require.Equal(t, models.SeverityCritical, alerts[0].Severity)
	for i := 1; i < len(alerts); i++ {
		require.GreaterOrEqual(t,
			models.SeverityRank(alerts[i-1].Severity),
			models.SeverityRank(alerts[i].Severity),
		)
	}
}

func TestRunCycle_EvaluatesAllSubjects(t *testing.T) {
	s := service.NewCoreService(pipelineConfig(), zap.NewNop())
	now := time.Now()
	ingestSeries(s, "s1", now, 72, 74, 73, 75)
	ingestSeries(s, "s2", now, 110, 110, 110, 110)

	s.RunCycle(context.Background())

	healthy, err := s.GetHealthSummary(context.Background(), "s1")
	require.NoError(t, err)
	require.Empty(t, healthy.Alerts)

	elevated, err := s.GetHealthSummary(context.Background(), "s2")
	require.NoError(t, err)
	require.NotEmpty(t, elevated.Alerts)
}

func TestGetAggregates_WindowedStats(t *testing.T) {
	s := service.NewCoreService(pipelineConfig(), zap.NewNop())
	now := time.Now()
	ingestSeries(s, "s1", now, 70, 72, 74)

	stats, err := s.GetAggregates(context.Background(), "s1", time.Hour)
	require.NoError(t, err)

	hr := stats["heart_rate"]
	require.Equal(t, 3, hr.Count)
	require.InDelta(t, 72.0, hr.Mean, 1e-9)
}
