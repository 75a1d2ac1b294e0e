package forecast

import (
	"time"
)

// CarryForwardModel 兜底预测模型
// 点估计恒为最后观测值，区间宽度按保守默认标准差随步数线性扩大
// 用于历史不足或趋势模型拟合失败的情况
type CarryForwardModel struct {
	Sigma float64 // 保守默认标准差（调用方按指标正常范围折算）
}

// NewCarryForward 创建兜底模型
func NewCarryForward(sigma float64) *CarryForwardModel {
	if sigma < 0 {
		sigma = 0
	}
	return &CarryForwardModel{Sigma: sigma}
}

// carryState 兜底模型状态
type carryState struct {
	last   float64
	lastAt time.Time
}

// Name 模型名称
func (m *CarryForwardModel) Name() string {
	return "carry_forward"
}

// Fit 取最后观测值作为状态；无历史时返回 ErrNoHistory
func (m *CarryForwardModel) Fit(history []Sample) (State, error) {
	if len(history) == 0 {
		return nil, ErrNoHistory
	}
	last := history[len(history)-1]
	return &carryState{
		last:   last.Value,
		lastAt: last.Timestamp,
	}, nil
}

// Predict 生成预测点（估计值恒定，区间线性扩大）
func (m *CarryForwardModel) Predict(state State, start time.Time, horizon Horizon) ([]Point, error) {
	st, ok := state.(*carryState)
	if !ok {
		return nil, ErrModelFit
	}
	if horizon.Steps <= 0 || horizon.Spacing <= 0 {
		return nil, ErrModelFit
	}

	z := zScore(horizon.Confidence)
	points := make([]Point, 0, horizon.Steps)

	for i := 1; i <= horizon.Steps; i++ {
		ts := start.Add(time.Duration(i) * horizon.Spacing)
		width := z * m.Sigma * float64(i)

		points = append(points, Point{
			Timestamp: ts,
			Estimate:  st.last,
			Lower:     st.last - width,
			Upper:     st.last + width,
		})
	}

	return points, nil
}
