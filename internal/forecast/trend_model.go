package forecast

import (
	"math"
	"time"
)

// TrendModel 趋势感知的指数平滑外推模型（Holt 双参数平滑）
// 对样本序列做水平+趋势平滑，残差标准差决定区间宽度；
// 区间随预测步数按 √h 扩大，仅常数序列（零方差）允许收缩为点估计
type TrendModel struct {
	Alpha      float64 // 水平平滑系数 (0,1]
	Beta       float64 // 趋势平滑系数 (0,1]
	MinSamples int     // 最小历史样本数
}

// residFloorFrac 残差标准差下限占历史样本标准差的比例
// 严格线性的历史会被 Holt 完全跟踪（残差为 0），但外推不确定性仍然存在，
// 非常数序列的区间宽度不允许塌缩为零
const residFloorFrac = 0.25

// NewTrendModel 创建趋势模型
func NewTrendModel(alpha, beta float64, minSamples int) *TrendModel {
	return &TrendModel{
		Alpha:      alpha,
		Beta:       beta,
		MinSamples: minSamples,
	}
}

// trendState 趋势模型拟合状态
type trendState struct {
	level      float64   // 末端水平
	slopePerHr float64   // 每小时趋势
	residStd   float64   // 一步预测残差标准差
	lastAt     time.Time // 最后观测时刻
}

// Name 模型名称
func (m *TrendModel) Name() string {
	return "trend"
}

// Fit 拟合模型状态
// 样本不足返回 ErrInsufficientHistory；数值发散返回 ErrModelFit
func (m *TrendModel) Fit(history []Sample) (State, error) {
	if len(history) < m.MinSamples || len(history) < 2 {
		return nil, ErrInsufficientHistory
	}

	// Holt 平滑在样本序列上进行
	level := history[0].Value
	trend := history[1].Value - history[0].Value

	var residuals []float64
	for i := 1; i < len(history); i++ {
		predicted := level + trend
		actual := history[i].Value
		residuals = append(residuals, actual-predicted)

		newLevel := m.Alpha*actual + (1-m.Alpha)*(level+trend)
		trend = m.Beta*(newLevel-level) + (1-m.Beta)*trend
		level = newLevel
	}

	// 残差标准差
	var ss float64
	for _, r := range residuals {
		ss += r * r
	}
	residStd := math.Sqrt(ss / float64(len(residuals)))

	// 残差下限：只有零方差的常数序列允许零宽区间
	if sd := sampleStd(history); residStd < residFloorFrac*sd {
		residStd = residFloorFrac * sd
	}

	// 把按样本步的趋势折算为每小时趋势（按平均采样间隔）
	first := history[0].Timestamp
	last := history[len(history)-1].Timestamp
	elapsedHours := last.Sub(first).Hours()
	if elapsedHours <= 0 {
		return nil, ErrModelFit
	}
	stepHours := elapsedHours / float64(len(history)-1)
	slopePerHr := trend / stepHours

	if !isFinite(level) || !isFinite(slopePerHr) || !isFinite(residStd) {
		return nil, ErrModelFit
	}

	return &trendState{
		level:      level,
		slopePerHr: slopePerHr,
		residStd:   residStd,
		lastAt:     last,
	}, nil
}

// Predict 生成预测点
func (m *TrendModel) Predict(state State, start time.Time, horizon Horizon) ([]Point, error) {
	st, ok := state.(*trendState)
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
		hoursAhead := ts.Sub(st.lastAt).Hours()

		estimate := st.level + st.slopePerHr*hoursAhead
		width := z * st.residStd * math.Sqrt(float64(i))

		if !isFinite(estimate) || !isFinite(width) {
			return nil, ErrModelFit
		}

		points = append(points, Point{
			Timestamp: ts,
			Estimate:  estimate,
			Lower:     estimate - width,
			Upper:     estimate + width,
		})
	}

	return points, nil
}

// sampleStd 历史值的样本标准差（n-1），调用方保证至少 2 个样本
func sampleStd(history []Sample) float64 {
	var sum float64
	for _, s := range history {
		sum += s.Value
	}
	mean := sum / float64(len(history))

	var ss float64
	for _, s := range history {
		d := s.Value - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(history)-1))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
