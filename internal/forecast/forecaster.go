package forecast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/config"
	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Forecaster 按 (对象, 指标, 范围) 管理预测计算
//
// - 同一键的并发计算合并为一次（single-flight）
// - 结果缓存带 TTL，计算超时时返回上次缓存（无缓存则同步计算兜底模型）
// - 各指标独立，单个指标失败不影响其他指标
type Forecaster struct {
	cfg    *config.Config
	logger *zap.Logger
	trend  Model

	mu    sync.RWMutex
	cache map[string]cacheEntry
	group singleflight.Group
}

type cacheEntry struct {
	result   *models.ForecastResult
	storedAt time.Time
}

// NewForecaster 创建预测器
func NewForecaster(cfg *config.Config, logger *zap.Logger) *Forecaster {
	return &Forecaster{
		cfg:    cfg,
		logger: logger,
		trend:  NewTrendModel(cfg.Forecast.Alpha, cfg.Forecast.Beta, cfg.Forecast.MinSamples),
		cache:  make(map[string]cacheEntry),
	}
}

// DefaultHorizon 配置中的默认预测范围
func (f *Forecaster) DefaultHorizon() Horizon {
	return Horizon{
		Steps:      f.cfg.Forecast.HorizonSteps,
		Spacing:    f.cfg.Forecast.Spacing,
		Confidence: f.cfg.Forecast.Confidence,
	}
}

// Forecast 返回单个指标的预测结果
// 空历史返回 ErrNoHistory（调用方据此返回空结构，不算失败）；
// 计算超时返回上次缓存结果，无缓存时退化为同步兜底计算
func (f *Forecaster) Forecast(ctx context.Context, subjectID, metric string, history []Sample, horizon Horizon) (*models.ForecastResult, error) {
	if len(history) == 0 {
		return nil, ErrNoHistory
	}

	key := cacheKey(subjectID, metric, horizon)

	// 新鲜缓存直接返回
	if cached, ok := f.lookup(key, true); ok {
		return cached, nil
	}

	// single-flight：同一键只计算一次
	ch := f.group.DoChan(key, func() (interface{}, error) {
		result := f.compute(subjectID, metric, history, horizon)
		f.store(key, result)
		return result, nil
	})

	timeout := f.cfg.Forecast.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.Err != nil {
			// compute 不返回错误，这里仅为防御
			return nil, res.Err
		}
		return res.Val.(*models.ForecastResult), nil
	case <-timer.C:
	case <-ctx.Done():
	}

	// 超时/取消：返回上次缓存（即使已过期），否则同步计算兜底模型
	f.logger.Warn("Forecast computation timed out, serving cached or fallback result",
		zap.String("subject_id", subjectID),
		zap.String("metric", metric),
	)
	if cached, ok := f.lookup(key, false); ok {
		return cached, nil
	}
	return f.fallbackForecast(subjectID, metric, history, horizon), nil
}

// ForecastAll 并发预测多个指标
// 单个指标失败（如空历史）不会阻塞其他指标，对应指标在结果中缺失
func (f *Forecaster) ForecastAll(ctx context.Context, subjectID string, histories map[string][]Sample, horizon Horizon) map[string]*models.ForecastResult {
	var mu sync.Mutex
	var wg sync.WaitGroup
	results := make(map[string]*models.ForecastResult, len(histories))

	for metric, history := range histories {
		if len(history) == 0 {
			continue
		}
		wg.Add(1)
		go func(metric string, history []Sample) {
			defer wg.Done()
			result, err := f.Forecast(ctx, subjectID, metric, history, horizon)
			if err != nil {
				f.logger.Warn("Forecast failed for metric",
					zap.String("subject_id", subjectID),
					zap.String("metric", metric),
					zap.Error(err),
				)
				return
			}
			mu.Lock()
			results[metric] = result
			mu.Unlock()
		}(metric, history)
	}

	wg.Wait()
	return results
}

// compute 执行预测计算：优先趋势模型，失败则兜底
// 拟合失败（含 NaN/Inf）在此恢复为兜底模型，不向上传播
func (f *Forecaster) compute(subjectID, metric string, history []Sample, horizon Horizon) *models.ForecastResult {
	start := history[len(history)-1].Timestamp

	state, err := f.trend.Fit(history)
	if err == nil {
		points, perr := f.trend.Predict(state, start, horizon)
		if perr == nil && validPoints(points) {
			return f.buildResult(subjectID, metric, f.trend.Name(), horizon, points)
		}
		err = perr
		if err == nil {
			err = ErrModelFit
		}
	}

	if err != ErrInsufficientHistory {
		f.logger.Info("Trend model unavailable, using carry-forward fallback",
			zap.String("subject_id", subjectID),
			zap.String("metric", metric),
			zap.Error(err),
		)
	}

	return f.fallbackForecast(subjectID, metric, history, horizon)
}

// fallbackForecast 兜底预测（carry-forward，对非空历史总是成功）
func (f *Forecaster) fallbackForecast(subjectID, metric string, history []Sample, horizon Horizon) *models.ForecastResult {
	fallback := NewCarryForward(f.fallbackSigma(metric, history))

	state, err := fallback.Fit(history)
	if err != nil {
		return nil
	}
	start := history[len(history)-1].Timestamp
	points, err := fallback.Predict(state, start, horizon)
	if err != nil {
		return nil
	}
	return f.buildResult(subjectID, metric, fallback.Name(), horizon, points)
}

// fallbackSigma 兜底模型的保守标准差（指标正常范围宽度的配置占比）
func (f *Forecaster) fallbackSigma(metric string, history []Sample) float64 {
	frac := f.cfg.Forecast.FallbackSigma
	if rule, ok := f.cfg.RuleFor(metric); ok {
		return frac * (rule.NormalMax - rule.NormalMin)
	}
	// 未配置规则：按最后观测值的占比取保守值
	last := history[len(history)-1].Value
	if last < 0 {
		last = -last
	}
	if last == 0 {
		return frac
	}
	return frac * last
}

func (f *Forecaster) buildResult(subjectID, metric, model string, horizon Horizon, points []Point) *models.ForecastResult {
	out := make([]models.ForecastPoint, len(points))
	for i, p := range points {
		out[i] = models.ForecastPoint{
			Timestamp: p.Timestamp,
			Estimate:  p.Estimate,
			Lower:     p.Lower,
			Upper:     p.Upper,
		}
	}
	return &models.ForecastResult{
		SubjectID:   subjectID,
		Metric:      metric,
		Model:       model,
		Confidence:  horizon.Confidence,
		Points:      out,
		GeneratedAt: time.Now(),
	}
}

// validPoints 校验预测点不变量：有限值且 lower <= estimate <= upper
func validPoints(points []Point) bool {
	for _, p := range points {
		if !isFinite(p.Estimate) || !isFinite(p.Lower) || !isFinite(p.Upper) {
			return false
		}
		if p.Lower > p.Estimate || p.Estimate > p.Upper {
			return false
		}
	}
	return len(points) > 0
}

func (f *Forecaster) lookup(key string, freshOnly bool) (*models.ForecastResult, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	entry, ok := f.cache[key]
	if !ok {
		return nil, false
	}
	if freshOnly && time.Since(entry.storedAt) > f.cfg.Forecast.CacheTTL {
		return nil, false
	}
	return entry.result, true
}

func (f *Forecaster) store(key string, result *models.ForecastResult) {
	if result == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache[key] = cacheEntry{result: result, storedAt: time.Now()}
}

func cacheKey(subjectID, metric string, h Horizon) string {
	return fmt.Sprintf("%s|%s|%d|%s|%.2f", subjectID, metric, h.Steps, h.Spacing, h.Confidence)
}
