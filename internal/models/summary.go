package models

import (
	"time"
)

// ForecastHighlight 预测摘要（预测期末点估计）
type ForecastHighlight struct {
	Metric    string    `json:"metric"`
	Model     string    `json:"model"`
	Timestamp time.Time `json:"timestamp"`
	Estimate  float64   `json:"estimate"`
	Lower     float64   `json:"lower"`
	Upper     float64   `json:"upper"`
}

// HealthSummary 单个对象的健康摘要（特征 + 预测摘要 + 活跃报警的纯合并）
type HealthSummary struct {
	SubjectID   string                       `json:"subject_id"`
	GeneratedAt time.Time                    `json:"generated_at"`
	Features    map[string]FeatureVector     `json:"features"`
	Forecasts   map[string]ForecastHighlight `json:"forecasts"`
	Alerts      []Alert                      `json:"alerts"`
}
