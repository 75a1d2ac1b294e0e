// Package forecast 提供按指标的短期预测（点估计 + 置信区间）
//
// 模型是可插拔策略：fit(history) → state，predict(state, horizon) → 预测点序列。
// 两个内置变体：
// - trend: 趋势感知的指数平滑外推（历史样本充足时使用），区间宽度随预测距离
//   按历史残差扩大
// - carry_forward: 兜底模型（历史不足或拟合失败时使用），点估计为最后观测值，
//   区间按保守默认方差线性扩大
// 置信水平只影响区间宽度，不影响点估计
package forecast

import (
	"errors"
	"time"
)

// Sample 历史样本点
type Sample struct {
	Timestamp time.Time
	Value     float64
}

// Horizon 预测范围（点数 + 间隔 + 置信水平）
type Horizon struct {
	Steps      int
	Spacing    time.Duration
	Confidence float64
}

// 预测错误分类（均在本包内部恢复，不向调用方传播为失败）
var (
	// ErrNoHistory 无任何历史数据，无法给出预测
	ErrNoHistory = errors.New("no history for metric")
	// ErrInsufficientHistory 历史样本数低于模型要求
	ErrInsufficientHistory = errors.New("insufficient history for model")
	// ErrModelFit 数值拟合产生了无效结果（NaN/Inf）
	ErrModelFit = errors.New("model fit produced invalid result")
)

// State 模型拟合产物，传回同一模型的 Predict
type State interface{}

// Model 预测模型策略接口
type Model interface {
	// Name 模型名称（写入 ForecastResult.Model）
	Name() string
	// Fit 用历史样本拟合模型状态；history 按时间戳升序
	Fit(history []Sample) (State, error)
	// Predict 从 start 之后按 horizon 生成预测点，时间戳严格递增
	Predict(state State, start time.Time, horizon Horizon) ([]Point, error)
}

// Point 单个预测点
type Point struct {
	Timestamp time.Time
	Estimate  float64
	Lower     float64
	Upper     float64
}

// zScore 置信水平对应的正态分位数（常用水平查表，其余取最近档位）
func zScore(confidence float64) float64 {
	switch {
	case confidence >= 0.99:
		return 2.576
	case confidence >= 0.95:
		return 1.960
	case confidence >= 0.90:
		return 1.645
	case confidence >= 0.80:
		return 1.282
	default:
		return 1.0
	}
}
