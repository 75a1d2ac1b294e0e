// Package aggregator 计算每个 (对象, 指标, 窗口) 的滚动统计
//
// 窗口语义：
// - 只统计时间戳落在 [now - window, now] 内的读数，窗口外的读数被忽略而非删除
// - 缺失指标按排除处理（不插补）
// - 窗口内样本数为 0 时返回 Insufficient 标记，而不是数值 0
// - 多个窗口（如 1h / 24h）独立计算，互不影响
package aggregator

import (
	"math"
	"time"

	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/config"
	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/models"

	"go.uber.org/zap"
)

// Aggregator 滚动统计聚合器
type Aggregator struct {
	logger *zap.Logger
}

// NewAggregator 创建聚合器
func NewAggregator(logger *zap.Logger) *Aggregator {
	return &Aggregator{
		logger: logger,
	}
}

// Aggregate 计算单个对象在指定窗口内的各指标统计
// readings 必须按时间戳升序排列（由历史存储保证）
// 返回 metric → AggregateStats；窗口内无任何样本的指标不出现在结果中，
// 调用方需要对已配置指标补齐 Insufficient 条目时使用 AggregateMetrics
func (a *Aggregator) Aggregate(subjectID string, readings []models.Reading, now time.Time, w config.WindowConfig) map[string]models.AggregateStats {
	cutoff := now.Add(-w.Duration)

	// 按指标收集窗口内的值
	values := make(map[string][]float64)
	latest := make(map[string]float64)
	latestAt := make(map[string]time.Time)

	for _, r := range readings {
		if r.Timestamp.Before(cutoff) || r.Timestamp.After(now) {
			continue
		}
		for metric, v := range r.Metrics {
			values[metric] = append(values[metric], v)
			// readings 升序，后出现的即为最新
			latest[metric] = v
			latestAt[metric] = r.Timestamp
		}
	}

	stats := make(map[string]models.AggregateStats, len(values))
	for metric, vs := range values {
		stats[metric] = a.compute(subjectID, metric, w, vs, latest[metric], latestAt[metric])
	}

	return stats
}

// AggregateMetrics 同 Aggregate，但为 metrics 中每个指标保证返回一个条目，
// 窗口内无样本的指标返回 Count=0 / Insufficient=true 的标记结果
func (a *Aggregator) AggregateMetrics(subjectID string, metrics []string, readings []models.Reading, now time.Time, w config.WindowConfig) map[string]models.AggregateStats {
	stats := a.Aggregate(subjectID, readings, now, w)

	for _, metric := range metrics {
		if _, ok := stats[metric]; !ok {
			stats[metric] = models.AggregateStats{
				SubjectID:    subjectID,
				Metric:       metric,
				Window:       w.Duration,
				Count:        0,
				Insufficient: true,
			}
		}
	}

	return stats
}

// compute 计算单个指标的统计值
func (a *Aggregator) compute(subjectID, metric string, w config.WindowConfig, vs []float64, latest float64, latestAt time.Time) models.AggregateStats {
	n := len(vs)

	var sum float64
	min := vs[0]
	max := vs[0]
	for _, v := range vs {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	mean := sum / float64(n)

	// 样本标准差（n-1），单样本时为 0
	var std float64
	if n > 1 {
		var ss float64
		for _, v := range vs {
			d := v - mean
			ss += d * d
		}
		std = math.Sqrt(ss / float64(n-1))
	}

	return models.AggregateStats{
		SubjectID:    subjectID,
		Metric:       metric,
		Window:       w.Duration,
		Count:        n,
		Mean:         mean,
		StdDev:       std,
		Min:          min,
		Max:          max,
		Latest:       latest,
		LatestAt:     latestAt,
		Insufficient: n < w.MinSamples,
	}
}
