package models

import (
	"time"
)

// 报警级别（排序：critical > warning > info）
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// 报警状态
const (
	AlertStatusActive  = "active"
	AlertStatusRetired = "retired"
)

// 触发条件标识（(subject, metric, condition) 构成去重键）
const (
	ConditionThresholdHigh = "threshold_high"
	ConditionThresholdLow  = "threshold_low"
	ConditionAdverseTrend  = "adverse_trend"
)

// Alert 报警记录
// (SubjectID, Metric, Condition) 在活跃报警中唯一；
// 重复触发仅更新 LastTriggeredAt，不产生新记录
type Alert struct {
	EventID          string    `json:"event_id"`
	SubjectID        string    `json:"subject_id"`
	Metric           string    `json:"metric"`
	Severity         string    `json:"severity"`
	Message          string    `json:"message"`
	Condition        string    `json:"condition"`
	Status           string    `json:"status"`
	FirstTriggeredAt time.Time `json:"first_triggered_at"`
	LastTriggeredAt  time.Time `json:"last_triggered_at"`

	// TriggerValue 触发时的指标值快照
	TriggerValue float64 `json:"trigger_value"`
}

// SeverityRank 返回级别排序值（越大越严重），用于展示排序
func SeverityRank(severity string) int {
	switch severity {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}
