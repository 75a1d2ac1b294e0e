// Package service 组装评估管线并提供同步查询接口
//
// 每个评估周期按对象独立执行：
// Aggregator → Feature Engineer → {Forecaster, Alert Engine} → Summary，
// 对象之间无共享可变状态，由 worker 池并行处理；
// 同一对象内 Aggregator/Feature Engineer 先于 Forecaster/Alert Engine 完成
package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/aggregator"
	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/alerts"
	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/config"
	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/consumer"
	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/features"
	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/forecast"
	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/history"
	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/models"
	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/repository"
	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/summary"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	_ "github.com/lib/pq"
)

// PipelineService 健康数据评估管线服务
type PipelineService struct {
	cfg    *config.Config
	logger *zap.Logger

	db          *sql.DB
	redisClient *redis.Client

	// 核心管线组件
	store      *history.Store
	aggregator *aggregator.Aggregator
	engineer   *features.Engineer
	forecaster *forecast.Forecaster
	registry   *alerts.Registry
	engine     *alerts.Engine

	// 协作方适配
	cache          *consumer.CacheManager
	streamConsumer *consumer.StreamConsumer
	mqttConsumer   *consumer.MQTTConsumer
	readingsRepo   *repository.ReadingsRepository

	// 每个对象的最新摘要
	mu        sync.RWMutex
	summaries map[string]*models.HealthSummary
}

// NewPipelineService 创建完整管线服务（连接 PostgreSQL 与 Redis）
func NewPipelineService(cfg *config.Config, logger *zap.Logger) (*PipelineService, error) {
	// 1. 连接数据库
	db, err := sql.Open("postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// 2. 连接 Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. 创建 Repository 层
	readingsRepo := repository.NewReadingsRepository(db, logger)
	alertEventsRepo := repository.NewAlertEventsRepository(db, logger)

	s := newCore(cfg, logger, alertEventsRepo)
	s.db = db
	s.redisClient = redisClient
	s.readingsRepo = readingsRepo

	// 4. 创建 Consumer 层
	s.cache = consumer.NewCacheManager(cfg, consumer.NewRedisKVStore(redisClient), logger)
	s.streamConsumer = consumer.NewStreamConsumer(cfg, redisClient, s.store, readingsRepo, logger)

	if cfg.MQTT.Broker != "" {
		mqttConsumer, err := consumer.NewMQTTConsumer(cfg, redisClient, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create MQTT consumer: %w", err)
		}
		s.mqttConsumer = mqttConsumer
	}

	return s, nil
}

// NewCoreService 创建仅含内存核心的管线服务（无外部依赖，查询接口可直接调用）
// 用于单元测试与嵌入式场景
func NewCoreService(cfg *config.Config, logger *zap.Logger) *PipelineService {
	return newCore(cfg, logger, nil)
}

func newCore(cfg *config.Config, logger *zap.Logger, sink alerts.EventSink) *PipelineService {
	store := history.NewStore(cfg.Pipeline.HistoryMaxAge, cfg.Pipeline.HistoryMaxCount)
	registry := alerts.NewRegistry(cfg.Alerts.Cooldown)

	return &PipelineService{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		aggregator: aggregator.NewAggregator(logger),
		engineer:   features.NewEngineer(cfg, logger),
		forecaster: forecast.NewForecaster(cfg, logger),
		registry:   registry,
		engine:     alerts.NewEngine(cfg, registry, sink, logger),
		summaries:  make(map[string]*models.HealthSummary),
	}
}

// Ingest 直接注入一条已校验读数（测试与嵌入式场景；常规路径走 Streams 消费者）
func (s *PipelineService) Ingest(r models.Reading) {
	s.store.Add(r)
}

// Start 启动服务（阻塞直到上下文取消）
func (s *PipelineService) Start(ctx context.Context) error {
	// 回填内存历史
	if s.readingsRepo != nil {
		if err := s.backfill(ctx); err != nil {
			s.logger.Warn("History backfill failed, starting with empty history", zap.Error(err))
		}
	}

	errChan := make(chan error, 2)

	if s.streamConsumer != nil {
		go func() {
			if err := s.streamConsumer.Start(ctx); err != nil {
				errChan <- fmt.Errorf("stream consumer: %w", err)
			}
		}()
	}

	if s.mqttConsumer != nil {
		go func() {
			if err := s.mqttConsumer.Start(ctx); err != nil {
				errChan <- fmt.Errorf("mqtt consumer: %w", err)
			}
		}()
	}

	s.logger.Info("Pipeline service started",
		zap.Duration("eval_interval", s.cfg.Pipeline.EvalInterval),
		zap.Int("workers", s.cfg.Pipeline.Workers),
	)

	ticker := time.NewTicker(s.cfg.Pipeline.EvalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Pipeline service stopping")
			return nil
		case err := <-errChan:
			return err
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// Stop 释放外部连接
func (s *PipelineService) Stop() {
	if s.mqttConsumer != nil {
		s.mqttConsumer.Stop()
	}
	if s.redisClient != nil {
		s.redisClient.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

// backfill 从数据库回填内存历史
func (s *PipelineService) backfill(ctx context.Context) error {
	since := time.Now().Add(-s.cfg.Pipeline.HistoryMaxAge)

	subjects, err := s.readingsRepo.Subjects(ctx, since)
	if err != nil {
		return err
	}

	var total int
	for _, id := range subjects {
		readings, err := s.readingsRepo.RecentReadings(ctx, id, since)
		if err != nil {
			s.logger.Error("Failed to backfill subject history",
				zap.String("subject_id", id),
				zap.Error(err),
			)
			continue
		}
		for _, r := range readings {
			s.store.Add(r)
		}
		total += len(readings)
	}

	s.logger.Info("History backfill completed",
		zap.Int("subjects", len(subjects)),
		zap.Int("readings", total),
	)
	return nil
}

// RunCycle 对当前全部对象执行一个评估周期（worker 池并行）
func (s *PipelineService) RunCycle(ctx context.Context) {
	subjects := s.store.Subjects()
	if len(subjects) == 0 {
		return
	}

	workers := s.cfg.Pipeline.Workers
	if workers <= 0 {
		workers = 1
	}

	jobs := make(chan string)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				s.EvaluateSubject(ctx, id, time.Now())
			}
		}()
	}

	for _, id := range subjects {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		case jobs <- id:
		}
	}
	close(jobs)
	wg.Wait()
}

// EvaluateSubject 对单个对象执行一个评估周期
// 阶段顺序：聚合/特征必须完成后才进入预测与报警评估
func (s *PipelineService) EvaluateSubject(ctx context.Context, subjectID string, now time.Time) *models.HealthSummary {
	maxWindow := s.maxWindow()
	readings := s.store.Since(subjectID, now.Add(-maxWindow))

	// 1. 聚合：各窗口独立计算，主窗口（第一个配置窗口）驱动特征
	primary := s.primaryWindow()
	stats := s.aggregator.AggregateMetrics(subjectID, s.configuredMetrics(), readings, now, primary)

	// 2. 特征工程
	tail := s.store.Tail(subjectID, s.cfg.Pipeline.TailSize)
	featureVectors := s.engineer.Features(stats, tail)

	// 3. 预测（各指标独立，缓存 + single-flight + 超时兜底）
	histories := metricHistories(readings)
	forecasts := s.forecaster.ForecastAll(ctx, subjectID, histories, s.forecaster.DefaultHorizon())

	// 4. 报警评估（含去重与退休）
	activeAlerts := s.engine.Evaluate(ctx, subjectID, featureVectors, forecasts, now)

	// 5. 摘要合并
	healthSummary := summary.Compose(subjectID, featureVectors, forecasts, activeAlerts, now)

	s.mu.Lock()
	s.summaries[subjectID] = healthSummary
	s.mu.Unlock()

	// 6. 写展示缓存（失败只记日志）
	if s.cache != nil {
		if err := s.cache.UpdateSummary(ctx, healthSummary); err != nil {
			s.logger.Error("Failed to update summary cache",
				zap.String("subject_id", subjectID),
				zap.Error(err),
			)
		}
		if err := s.cache.UpdateAlerts(ctx, subjectID, activeAlerts); err != nil {
			s.logger.Error("Failed to update alert cache",
				zap.String("subject_id", subjectID),
				zap.Error(err),
			)
		}
	}

	return healthSummary
}

// primaryWindow 主统计窗口（第一个配置窗口；未配置窗口时使用 1h/5 兜底）
func (s *PipelineService) primaryWindow() config.WindowConfig {
	if len(s.cfg.Pipeline.Windows) > 0 {
		return s.cfg.Pipeline.Windows[0]
	}
	return config.WindowConfig{Duration: time.Hour, MinSamples: 5}
}

// maxWindow 最长统计窗口时长
func (s *PipelineService) maxWindow() time.Duration {
	max := time.Duration(0)
	for _, w := range s.cfg.Pipeline.Windows {
		if w.Duration > max {
			max = w.Duration
		}
	}
	if max == 0 {
		max = 24 * time.Hour
	}
	return max
}

// configuredMetrics 规则表中配置的全部指标名
func (s *PipelineService) configuredMetrics() []string {
	out := make([]string, 0, len(s.cfg.Rules))
	for _, r := range s.cfg.Rules {
		out = append(out, r.Metric)
	}
	return out
}

// metricHistories 把读数序列拆分为各指标的历史样本
func metricHistories(readings []models.Reading) map[string][]forecast.Sample {
	out := make(map[string][]forecast.Sample)
	for _, r := range readings {
		for metric, v := range r.Metrics {
			out[metric] = append(out[metric], forecast.Sample{
				Timestamp: r.Timestamp,
				Value:     v,
			})
		}
	}
	return out
}
