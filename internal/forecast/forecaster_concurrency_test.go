package forecast

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/config"
	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/models"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stallModel 可控耗时的测试模型：Fit 阻塞在 block 上直到被放行（为 nil 时立即返回）
type stallModel struct {
	fits  int32
	block chan struct{}
}

func (m *stallModel) Name() string { return "stall" }

func (m *stallModel) Fit(history []Sample) (State, error) {
	atomic.AddInt32(&m.fits, 1)
	if m.block != nil {
		<-m.block
	}
	return history[len(history)-1].Value, nil
}

func (m *stallModel) Predict(state State, start time.Time, horizon Horizon) ([]Point, error) {
	last, _ := state.(float64)
	points := make([]Point, 0, horizon.Steps)
	for i := 1; i <= horizon.Steps; i++ {
		points = append(points, Point{
			Timestamp: start.Add(time.Duration(i) * horizon.Spacing),
			Estimate:  last,
			Lower:     last - 1,
			Upper:     last + 1,
		})
	}
	return points, nil
}

func stallConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Rules = config.DefaultRules()
	cfg.Forecast.HorizonSteps = 4
	cfg.Forecast.Spacing = time.Hour
	cfg.Forecast.Confidence = 0.95
	cfg.Forecast.MinSamples = 2
	cfg.Forecast.Timeout = 5 * time.Second
	cfg.Forecast.CacheTTL = time.Minute
	cfg.Forecast.FallbackSigma = 0.1
	return cfg
}

func stallHistory() []Sample {
	now := time.Now()
	return []Sample{
		{Timestamp: now.Add(-2 * time.Hour), Value: 74},
		{Timestamp: now.Add(-time.Hour), Value: 75},
		{Timestamp: now, Value: 76},
	}
}

func TestForecast_ConcurrentCallsCoalesce(t *testing.T) {
	f := NewForecaster(stallConfig(), zap.NewNop())
	release := make(chan struct{})
	m := &stallModel{block: release}
	f.trend = m

	history := stallHistory()
	horizon := Horizon{Steps: 4, Spacing: time.Hour, Confidence: 0.95}

	const callers = 8
	var wg sync.WaitGroup
	begin := make(chan struct{})
	results := make([]*models.ForecastResult, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-begin
			results[i], errs[i] = f.Forecast(context.Background(), "s1", "heart_rate", history, horizon)
		}(i)
	}
	close(begin)
	// 拟合被阻塞期间全部调用方进入合并窗口
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	// 同一键的并发计算只拟合一次
	require.EqualValues(t, 1, atomic.LoadInt32(&m.fits))
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
		require.Equal(t, "stall", results[i].Model)
	}
}

func TestForecast_TimeoutServesStaleCache(t *testing.T) {
	cfg := stallConfig()
	cfg.Forecast.Timeout = 20 * time.Millisecond
	cfg.Forecast.CacheTTL = 0 // 任何缓存都视为过期
	f := NewForecaster(cfg, zap.NewNop())

	release := make(chan struct{})
	defer close(release)
	f.trend = &stallModel{block: release}

	horizon := Horizon{Steps: 4, Spacing: time.Hour, Confidence: 0.95}
	stale := &models.ForecastResult{
		SubjectID:   "s1",
		Metric:      "heart_rate",
		Model:       "trend",
		Confidence:  0.95,
		GeneratedAt: time.Now().Add(-time.Hour),
	}
	f.store(cacheKey("s1", "heart_rate", horizon), stale)

	// 计算超时：返回上次缓存结果而不是阻塞调用方
	got, err := f.Forecast(context.Background(), "s1", "heart_rate", stallHistory(), horizon)
	require.NoError(t, err)
	require.Equal(t, stale.GeneratedAt, got.GeneratedAt)
	require.Equal(t, "trend", got.Model)
}

func TestForecast_TimeoutFallsBackWithoutCache(t *testing.T) {
	cfg := stallConfig()
	cfg.Forecast.Timeout = 20 * time.Millisecond
	f := NewForecaster(cfg, zap.NewNop())

	release := make(chan struct{})
	defer close(release)
	f.trend = &stallModel{block: release}

	// 计算超时且无缓存：同步退化为兜底模型
	got, err := f.Forecast(context.Background(), "s1", "heart_rate", stallHistory(),
		Horizon{Steps: 4, Spacing: time.Hour, Confidence: 0.95})
	require.NoError(t, err)
	require.Equal(t, "carry_forward", got.Model)
	require.Len(t, got.Points, 4)
	require.Equal(t, 76.0, got.Points[0].Estimate)
}
