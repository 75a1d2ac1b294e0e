package models

import (
	"time"
)

// 支持的生命体征指标名称（与规则表及 health_readings 的 JSONB 键一致）
const (
	MetricHeartRate        = "heart_rate"
	MetricRespiratoryRate  = "respiratory_rate"
	MetricTemperature      = "temperature"
	MetricOxygenSaturation = "oxygen_saturation"
	MetricSystolic         = "systolic"
	MetricDiastolic        = "diastolic"
)

// Reading 单条时间戳读数（一个监护对象在某时刻的一组指标值）
// Metrics 中缺失的指标表示该时刻未测量，不做插补
type Reading struct {
	SubjectID string             `json:"subject_id"`
	Timestamp time.Time          `json:"timestamp"`
	Metrics   map[string]float64 `json:"metrics"`
}

// ReadingMessage 摄入边界的原始消息格式（字段可为 null/缺失）
// 由消费者校验后转换为 Reading，非法值在进入核心前被拒绝
type ReadingMessage struct {
	SubjectID string              `json:"subject_id"`
	Timestamp int64               `json:"timestamp"` // Unix 秒
	Metrics   map[string]*float64 `json:"metrics"`
}
