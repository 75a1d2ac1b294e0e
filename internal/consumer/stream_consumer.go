package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/config"
	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/history"
	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Metrics 消费者监控指标
type Metrics struct {
	mu sync.RWMutex

	// 消息处理统计
	MessagesProcessed int64 // 处理的消息总数
	MessagesSucceeded int64 // 成功处理的消息数
	MessagesFailed    int64 // 处理失败的消息数
	MessagesRejected  int64 // 校验拒绝的消息数（非法读数）

	// 性能指标
	TotalProcessingTime time.Duration
	LastProcessTime     time.Time

	StartTime time.Time
}

// GetSnapshot 获取指标快照（线程安全）
func (m *Metrics) GetSnapshot() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Metrics{
		MessagesProcessed:   m.MessagesProcessed,
		MessagesSucceeded:   m.MessagesSucceeded,
		MessagesFailed:      m.MessagesFailed,
		MessagesRejected:    m.MessagesRejected,
		TotalProcessingTime: m.TotalProcessingTime,
		LastProcessTime:     m.LastProcessTime,
		StartTime:           m.StartTime,
	}
}

func (m *Metrics) incrementProcessed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesProcessed++
}

func (m *Metrics) incrementSucceeded(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesSucceeded++
	m.TotalProcessingTime += duration
	m.LastProcessTime = time.Now()
}

func (m *Metrics) incrementFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesFailed++
}

func (m *Metrics) incrementRejected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesRejected++
}

// ReadingSink 已接受读数的可选落地接口（由 repository 层实现，可为 nil）
type ReadingSink interface {
	InsertReading(ctx context.Context, r *models.Reading) error
}

// StreamConsumer Redis Streams 读数消费者
// 消费摄入流，校验后写入内存历史，并可选落地
type StreamConsumer struct {
	cfg         *config.Config
	redisClient *redis.Client
	store       *history.Store
	sink        ReadingSink
	logger      *zap.Logger
	metrics     *Metrics
}

// NewStreamConsumer 创建 Streams 消费者
func NewStreamConsumer(
	cfg *config.Config,
	redisClient *redis.Client,
	store *history.Store,
	sink ReadingSink,
	logger *zap.Logger,
) *StreamConsumer {
	return &StreamConsumer{
		cfg:         cfg,
		redisClient: redisClient,
		store:       store,
		sink:        sink,
		logger:      logger,
		metrics:     &Metrics{StartTime: time.Now()},
	}
}

// Metrics 返回监控指标
func (c *StreamConsumer) Metrics() Metrics {
	return c.metrics.GetSnapshot()
}

// Start 启动消费循环（阻塞直到上下文取消）
func (c *StreamConsumer) Start(ctx context.Context) error {
	stream := c.cfg.Ingest.Stream
	group := c.cfg.Ingest.ConsumerGroup

	if err := CreateConsumerGroup(ctx, c.redisClient, stream, group); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("Stream consumer started",
		zap.String("stream", stream),
		zap.String("group", group),
		zap.String("consumer", c.cfg.Ingest.ConsumerName),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Stream consumer stopped")
			return nil
		default:
		}

		messages, err := ReadFromStream(ctx, c.redisClient, stream, group, c.cfg.Ingest.ConsumerName, c.cfg.Ingest.BatchSize)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			c.logger.Error("Failed to read from stream", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range messages {
			c.handleMessage(ctx, msg)
			c.redisClient.XAck(ctx, stream, group, msg.ID)
		}
	}
}

// handleMessage 处理单条流消息
func (c *StreamConsumer) handleMessage(ctx context.Context, msg StreamMessage) {
	started := time.Now()
	c.metrics.incrementProcessed()

	raw, ok := msg.Values["data"].(string)
	if !ok {
		c.metrics.incrementFailed()
		c.logger.Error("Stream message missing data field",
			zap.String("message_id", msg.ID),
		)
		return
	}

	var rm models.ReadingMessage
	if err := json.Unmarshal([]byte(raw), &rm); err != nil {
		c.metrics.incrementFailed()
		c.logger.Error("Failed to unmarshal reading message",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		return
	}

	reading, err := ValidateMessage(&rm, c.cfg)
	if err != nil {
		// 非法读数在边界拒绝，不进入核心
		c.metrics.incrementRejected()
		c.logger.Warn("Rejected invalid reading",
			zap.String("message_id", msg.ID),
			zap.String("subject_id", rm.SubjectID),
			zap.Error(err),
		)
		return
	}

	c.store.Add(*reading)

	if c.sink != nil {
		if err := c.sink.InsertReading(ctx, reading); err != nil {
			// 落地失败不影响内存管线，只记日志
			c.logger.Error("Failed to persist reading",
				zap.String("subject_id", reading.SubjectID),
				zap.Error(err),
			)
		}
	}

	c.metrics.incrementSucceeded(time.Since(started))
}
