// Package features 从聚合统计与原始读数尾部派生特征向量
//
// 派生规则：
// - 趋势：值对经过时间的简单线性回归，按斜率符号与指标级 ε 分类，
//   趋势只能来自该拟合，不允许独立设置
// - 变化率：同一拟合的斜率（每小时变化量）
// - 风险分数：当前值相对正常范围的归一化偏离，裁剪到 [0,1]
// - 风险分类：按可配置阈值划分 normal / elevated / critical
// - 样本不足时：趋势强制 stable，风险退化为最新单点读数，并标记低置信度
package features

import (
	"math"
	"sort"

	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/config"
	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/models"

	"go.uber.org/zap"
)

// Engineer 特征工程器
type Engineer struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewEngineer 创建特征工程器
func NewEngineer(cfg *config.Config, logger *zap.Logger) *Engineer {
	return &Engineer{
		cfg:    cfg,
		logger: logger,
	}
}

// Features 为单个对象生成各指标的特征向量
// stats: 主窗口的聚合统计（决定低置信度标记）
// tail: 最近 K 条原始读数（升序），用于趋势拟合
func (e *Engineer) Features(stats map[string]models.AggregateStats, tail []models.Reading) map[string]models.FeatureVector {
	out := make(map[string]models.FeatureVector, len(stats))

	for metric, st := range stats {
		rule, ok := e.cfg.RuleFor(metric)
		if !ok {
			// 未配置规则的指标无法评估风险，跳过
			e.logger.Debug("No rule configured for metric, skipping features",
				zap.String("metric", metric),
			)
			continue
		}
		if st.Count == 0 {
			// 窗口内无样本，返回空向量占位（低置信度、无当前值）
			out[metric] = models.FeatureVector{
				Metric:        metric,
				Trend:         models.TrendStable,
				RiskCategory:  models.RiskNormal,
				LowConfidence: true,
			}
			continue
		}

		fv := models.FeatureVector{
			Metric:       metric,
			CurrentValue: st.Latest,
			Trend:        models.TrendStable,
			SampleCount:  st.Count,
		}

		if st.Insufficient {
			// 样本不足：趋势强制 stable，风险仅基于最新单点
			fv.LowConfidence = true
		} else {
			slope, fitOK := fitSlope(tail, metric, e.cfg.Pipeline.MinTrendSamples)
			if fitOK {
				fv.RateOfChange = slope
				fv.Trend = classifyTrend(slope, rule.TrendEpsilon)
			}
		}

		fv.RiskScore = RiskScore(st.Latest, rule)
		fv.RiskCategory = e.riskCategory(fv.RiskScore)
		out[metric] = fv
	}

	return out
}

// classifyTrend 按斜率与 ε 分类趋势
// 斜率严格大于 +ε 为 increasing，严格小于 -ε 为 decreasing，否则 stable
// （斜率恰为 0 时恒为 stable）
func classifyTrend(slope, epsilon float64) string {
	switch {
	case slope > epsilon:
		return models.TrendIncreasing
	case slope < -epsilon:
		return models.TrendDecreasing
	default:
		return models.TrendStable
	}
}

// RiskScore 计算当前值相对正常范围的归一化偏离，裁剪到 [0,1]
// 正常范围内为 0；达到或超出临界边界为 1
func RiskScore(value float64, rule config.MetricRule) float64 {
	var deviation, span float64
	switch {
	case value > rule.NormalMax:
		deviation = value - rule.NormalMax
		span = rule.CriticalMax - rule.NormalMax
	case value < rule.NormalMin:
		deviation = rule.NormalMin - value
		span = rule.NormalMin - rule.CriticalMin
	default:
		return 0
	}

	if span <= 0 {
		// 临界边界与正常边界重合：任何越界都视为满分风险
		return 1
	}

	score := deviation / span
	if score > 1 {
		return 1
	}
	return score
}

// riskCategory 按配置阈值划分风险分类
func (e *Engineer) riskCategory(score float64) string {
	switch {
	case score < e.cfg.Alerts.ElevatedThreshold:
		return models.RiskNormal
	case score < e.cfg.Alerts.CriticalThreshold:
		return models.RiskElevated
	default:
		return models.RiskCritical
	}
}

// fitSlope 对读数尾部中某指标做值-时间线性回归，返回每小时斜率
// 有效样本少于 minSamples（至少 2）或拟合结果非有限值时返回 false
func fitSlope(tail []models.Reading, metric string, minSamples int) (float64, bool) {
	type point struct {
		hours float64
		value float64
	}

	var pts []point
	var t0 int64
	for _, r := range tail {
		v, ok := r.Metrics[metric]
		if !ok {
			continue
		}
		if len(pts) == 0 {
			t0 = r.Timestamp.UnixNano()
		}
		hours := float64(r.Timestamp.UnixNano()-t0) / float64(3600*1e9)
		pts = append(pts, point{hours: hours, value: v})
	}
	if minSamples < 2 {
		minSamples = 2
	}
	if len(pts) < minSamples {
		return 0, false
	}

	sort.Slice(pts, func(i, j int) bool { return pts[i].hours < pts[j].hours })

	// 最小二乘：slope = Σ(x-x̄)(y-ȳ) / Σ(x-x̄)²
	var sumX, sumY float64
	for _, p := range pts {
		sumX += p.hours
		sumY += p.value
	}
	n := float64(len(pts))
	meanX := sumX / n
	meanY := sumY / n

	var num, den float64
	for _, p := range pts {
		dx := p.hours - meanX
		num += dx * (p.value - meanY)
		den += dx * dx
	}
	if den == 0 {
		// 全部样本同一时刻，无法拟合
		return 0, false
	}

	slope := num / den
	if math.IsNaN(slope) || math.IsInf(slope, 0) {
		return 0, false
	}
	return slope, true
}
