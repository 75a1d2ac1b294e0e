// Package alerts 基于规则表的报警评估与去重
//
// 规则编码为数据（指标 → 正常范围 / 临界边界 / ε / 不利方向），由统一的
// 评估器查表执行：新增指标或调整阈值只改配置，不改代码路径。
// 两类规则按指标独立触发：
// - 阈值规则：当前值越出正常范围（越出临界边界升级为 critical）
// - 趋势规则：不利方向的持续趋势 + 风险分类 ≥ elevated（预测期末点估计
//   越过临界边界时升级为 critical）
package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/config"
	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/models"

	"go.uber.org/zap"
)

// EventSink 报警事件落地接口（由 repository 层实现，可为 nil）
type EventSink interface {
	RecordTriggered(ctx context.Context, alert *models.Alert) error
	UpdateLastTriggered(ctx context.Context, alert *models.Alert) error
	RecordRetired(ctx context.Context, alert *models.Alert) error
}

// Engine 报警引擎
type Engine struct {
	cfg      *config.Config
	registry *Registry
	sink     EventSink
	logger   *zap.Logger
}

// NewEngine 创建报警引擎
// sink 为 nil 时报警只保存在注册表中，不落库
func NewEngine(cfg *config.Config, registry *Registry, sink EventSink, logger *zap.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		registry: registry,
		sink:     sink,
		logger:   logger,
	}
}

// Evaluate 评估单个对象的最新特征向量（及可选预测结果），
// 同步注册表状态并返回当前活跃报警（按展示顺序排序）
func (e *Engine) Evaluate(ctx context.Context, subjectID string, features map[string]models.FeatureVector, forecasts map[string]*models.ForecastResult, now time.Time) []models.Alert {
	var candidates []Candidate

	for metric, fv := range features {
		rule, ok := e.cfg.RuleFor(metric)
		if !ok {
			continue
		}
		if fv.SampleCount == 0 {
			// 窗口内无样本的占位向量，无可评估的当前值
			continue
		}

		if c, fired := e.thresholdRule(fv, rule); fired {
			candidates = append(candidates, c)
		}
		if c, fired := e.trendRule(fv, rule, forecasts[metric]); fired {
			candidates = append(candidates, c)
		}
	}

	result := e.registry.Sync(subjectID, now, candidates)
	e.persist(ctx, subjectID, result)

	return e.registry.ActiveForSubject(subjectID)
}

// thresholdRule 阈值规则：当前值越出正常范围
// 越出临界边界为 critical，否则 warning
func (e *Engine) thresholdRule(fv models.FeatureVector, rule config.MetricRule) (Candidate, bool) {
	v := fv.CurrentValue

	switch {
	case v > rule.NormalMax:
		severity := models.SeverityWarning
		if v >= rule.CriticalMax {
			severity = models.SeverityCritical
		}
		return Candidate{
			Metric:    fv.Metric,
			Condition: models.ConditionThresholdHigh,
			Severity:  severity,
			Message: fmt.Sprintf("%s %.1f above normal range [%.1f, %.1f]",
				fv.Metric, v, rule.NormalMin, rule.NormalMax),
			Value: v,
		}, true
	case v < rule.NormalMin:
		severity := models.SeverityWarning
		if v <= rule.CriticalMin {
			severity = models.SeverityCritical
		}
		return Candidate{
			Metric:    fv.Metric,
			Condition: models.ConditionThresholdLow,
			Severity:  severity,
			Message: fmt.Sprintf("%s %.1f below normal range [%.1f, %.1f]",
				fv.Metric, v, rule.NormalMin, rule.NormalMax),
			Value: v,
		}, true
	}
	return Candidate{}, false
}

// trendRule 趋势规则：不利方向的持续趋势 + 风险分类 ≥ elevated
// 预测期末点估计越过临界边界时升级为 critical
func (e *Engine) trendRule(fv models.FeatureVector, rule config.MetricRule, forecast *models.ForecastResult) (Candidate, bool) {
	if !adverseTrend(fv.Trend, rule.AdverseDirection) {
		return Candidate{}, false
	}
	if fv.RiskCategory == models.RiskNormal {
		return Candidate{}, false
	}

	severity := models.SeverityWarning
	if end := forecast.HorizonEnd(); end != nil {
		if end.Estimate >= rule.CriticalMax || end.Estimate <= rule.CriticalMin {
			severity = models.SeverityCritical
		}
	}

	return Candidate{
		Metric:    fv.Metric,
		Condition: models.ConditionAdverseTrend,
		Severity:  severity,
		Message: fmt.Sprintf("%s trending %s at %.2f/hour with %s risk",
			fv.Metric, fv.Trend, fv.RateOfChange, fv.RiskCategory),
		Value: fv.CurrentValue,
	}, true
}

// adverseTrend 判断趋势方向对该指标是否不利
func adverseTrend(trend, adverseDirection string) bool {
	if trend == models.TrendStable {
		return false
	}
	switch adverseDirection {
	case config.AdverseBoth:
		return true
	case config.AdverseIncreasing:
		return trend == models.TrendIncreasing
	case config.AdverseDecreasing:
		return trend == models.TrendDecreasing
	}
	return false
}

// persist 落地本周期的报警变更（失败只记日志，不中断评估）
func (e *Engine) persist(ctx context.Context, subjectID string, result SyncResult) {
	if e.sink == nil {
		return
	}

	for i := range result.New {
		a := result.New[i]
		if err := e.sink.RecordTriggered(ctx, &a); err != nil {
			e.logger.Error("Failed to record alert event",
				zap.String("event_id", a.EventID),
				zap.String("subject_id", subjectID),
				zap.Error(err),
			)
		} else {
			e.logger.Info("Alert triggered",
				zap.String("event_id", a.EventID),
				zap.String("subject_id", subjectID),
				zap.String("metric", a.Metric),
				zap.String("condition", a.Condition),
				zap.String("severity", a.Severity),
			)
		}
	}

	for i := range result.Updated {
		a := result.Updated[i]
		if err := e.sink.UpdateLastTriggered(ctx, &a); err != nil {
			e.logger.Error("Failed to update alert event",
				zap.String("event_id", a.EventID),
				zap.String("subject_id", subjectID),
				zap.Error(err),
			)
		}
	}

	for i := range result.Retired {
		a := result.Retired[i]
		if err := e.sink.RecordRetired(ctx, &a); err != nil {
			e.logger.Error("Failed to record alert retirement",
				zap.String("event_id", a.EventID),
				zap.String("subject_id", subjectID),
				zap.Error(err),
			)
		} else {
			e.logger.Info("Alert retired",
				zap.String("event_id", a.EventID),
				zap.String("subject_id", subjectID),
				zap.String("metric", a.Metric),
				zap.String("condition", a.Condition),
			)
		}
	}
}
