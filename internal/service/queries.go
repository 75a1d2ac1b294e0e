package service

import (
	"context"
	"time"

	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/consumer"
	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/forecast"
	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/models"
)

// 同步查询接口：与传输层无关，HTTP/gRPC 协作方直接调用
// 无历史数据的对象返回显式空结构而不是错误

// GetHealthSummary 查询对象的最新健康摘要
// 若本周期尚未评估过该对象，则同步执行一次评估
func (s *PipelineService) GetHealthSummary(ctx context.Context, subjectID string) (*models.HealthSummary, error) {
	s.mu.RLock()
	cached, ok := s.summaries[subjectID]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	if s.store.Count(subjectID) == 0 {
		// 无数据对象：空摘要，是否 404 由传输层协作方决定
		return &models.HealthSummary{
			SubjectID:   subjectID,
			GeneratedAt: time.Now(),
			Features:    map[string]models.FeatureVector{},
			Forecasts:   map[string]models.ForecastHighlight{},
			Alerts:      []models.Alert{},
		}, nil
	}

	return s.EvaluateSubject(ctx, subjectID, time.Now()), nil
}

// GetForecast 查询对象未来 horizonHours 小时的各指标预测
func (s *PipelineService) GetForecast(ctx context.Context, subjectID string, horizonHours int) (*models.ForecastQueryResult, error) {
	if horizonHours <= 0 {
		horizonHours = s.cfg.Forecast.HorizonSteps
	}

	horizon := forecast.Horizon{
		Steps:      horizonHours,
		Spacing:    s.cfg.Forecast.Spacing,
		Confidence: s.cfg.Forecast.Confidence,
	}

	result := &models.ForecastQueryResult{
		SubjectID:    subjectID,
		HorizonHours: horizonHours,
		Forecasts:    make(map[string]models.MetricForecast),
		GeneratedAt:  time.Now(),
	}

	readings := s.store.Since(subjectID, time.Now().Add(-s.maxWindow()))
	if len(readings) == 0 {
		return result, nil
	}

	forecasts := s.forecaster.ForecastAll(ctx, subjectID, metricHistories(readings), horizon)
	for metric, fr := range forecasts {
		mf := models.MetricForecast{
			Timestamps:     make([]time.Time, 0, len(fr.Points)),
			ForecastValues: make([]float64, 0, len(fr.Points)),
			LowerBound:     make([]float64, 0, len(fr.Points)),
			UpperBound:     make([]float64, 0, len(fr.Points)),
		}
		for _, p := range fr.Points {
			mf.Timestamps = append(mf.Timestamps, p.Timestamp)
			mf.ForecastValues = append(mf.ForecastValues, p.Estimate)
			mf.LowerBound = append(mf.LowerBound, p.Lower)
			mf.UpperBound = append(mf.UpperBound, p.Upper)
		}
		result.Forecasts[metric] = mf
	}

	return result, nil
}

// GetActiveAlerts 查询对象当前活跃报警（severity 降序，同级按 last_triggered_at 降序）
func (s *PipelineService) GetActiveAlerts(ctx context.Context, subjectID string) ([]models.Alert, error) {
	return s.registry.ActiveForSubject(subjectID), nil
}

// GetAggregates 查询对象在指定窗口下的各指标聚合统计
func (s *PipelineService) GetAggregates(ctx context.Context, subjectID string, window time.Duration) (map[string]models.AggregateStats, error) {
	for _, w := range s.cfg.Pipeline.Windows {
		if w.Duration == window {
			now := time.Now()
			readings := s.store.Since(subjectID, now.Add(-window))
			return s.aggregator.AggregateMetrics(subjectID, s.configuredMetrics(), readings, now, w), nil
		}
	}
	// 未配置的窗口按默认最小样本数计算
	now := time.Now()
	readings := s.store.Since(subjectID, now.Add(-window))
	w := s.primaryWindow()
	w.Duration = window
	return s.aggregator.AggregateMetrics(subjectID, s.configuredMetrics(), readings, now, w), nil
}

// ConsumerMetrics 查询摄入消费者的监控指标快照（未启用消费者时返回零值）
func (s *PipelineService) ConsumerMetrics() consumer.Metrics {
	if s.streamConsumer == nil {
		return consumer.Metrics{}
	}
	return s.streamConsumer.Metrics()
}
