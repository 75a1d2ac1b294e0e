package models

import (
	"time"
)

// ForecastPoint 单个预测点（lower <= estimate <= upper）
type ForecastPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Estimate  float64   `json:"estimate"`
	Lower     float64   `json:"lower"`
	Upper     float64   `json:"upper"`
}

// ForecastResult 单个 (对象, 指标) 的预测结果
// Points 按时间戳严格递增排列
type ForecastResult struct {
	SubjectID   string          `json:"subject_id"`
	Metric      string          `json:"metric"`
	Model       string          `json:"model"` // 使用的模型名称（trend / carry_forward）
	Confidence  float64         `json:"confidence"`
	Points      []ForecastPoint `json:"points"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// HorizonEnd 返回预测期末点（无预测点时返回 nil）
func (r *ForecastResult) HorizonEnd() *ForecastPoint {
	if r == nil || len(r.Points) == 0 {
		return nil
	}
	return &r.Points[len(r.Points)-1]
}

// MetricForecast 预测查询响应中单个指标的结果（数组同下标对齐、等长）
type MetricForecast struct {
	Timestamps     []time.Time `json:"timestamps"`
	ForecastValues []float64   `json:"forecast_values"`
	LowerBound     []float64   `json:"lower_bound"`
	UpperBound     []float64   `json:"upper_bound"`
}

// ForecastQueryResult 预测查询响应（API 层协议形状）
type ForecastQueryResult struct {
	SubjectID    string                    `json:"subject_id"`
	HorizonHours int                       `json:"horizon_hours"`
	Forecasts    map[string]MetricForecast `json:"forecasts"`
	GeneratedAt  time.Time                 `json:"generated_at"`
}
