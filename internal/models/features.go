package models

import (
	"time"
)

// 趋势方向（由线性拟合斜率符号唯一确定）
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// 风险分类（由 risk_score 阈值划分，阈值可配置）
const (
	RiskNormal   = "normal"
	RiskElevated = "elevated"
	RiskCritical = "critical"
)

// AggregateStats 单个 (对象, 指标, 窗口) 的滚动统计
type AggregateStats struct {
	SubjectID string        `json:"subject_id"`
	Metric    string        `json:"metric"`
	Window    time.Duration `json:"window"`
	Count     int           `json:"count"`
	Mean      float64       `json:"mean"`
	StdDev    float64       `json:"std_dev"`
	Min       float64       `json:"min"`
	Max       float64       `json:"max"`
	Latest    float64       `json:"latest"`
	LatestAt  time.Time     `json:"latest_at"`

	// Insufficient 表示窗口内样本数低于最小阈值，统计值不可信
	// Count == 0 时其余数值字段无意义
	Insufficient bool `json:"insufficient"`
}

// FeatureVector 单个 (对象, 指标) 的特征向量
type FeatureVector struct {
	Metric       string  `json:"metric"`
	CurrentValue float64 `json:"current_value"`
	Trend        string  `json:"trend"`
	RateOfChange float64 `json:"rate_of_change"` // 每小时变化量
	RiskScore    float64 `json:"risk_score"`     // [0,1]
	RiskCategory string  `json:"risk_category"`

	// LowConfidence 表示窗口样本不足，趋势被强制为 stable，
	// risk_score 仅基于最新单点读数
	LowConfidence bool `json:"low_confidence"`

	// SampleCount 窗口内样本数；为 0 时 CurrentValue 无意义，
	// 下游（报警引擎）不得基于该向量触发
	SampleCount int `json:"sample_count"`
}
