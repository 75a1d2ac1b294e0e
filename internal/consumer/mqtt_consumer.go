package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/config"
	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// MQTTConsumer MQTT 读数采集器
// 订阅设备生命体征主题，校验后发布到 Redis Streams 摄入流
// （与 Streams 消费者解耦：采集与评估可独立伸缩）
type MQTTConsumer struct {
	cfg         *config.Config
	client      mqtt.Client
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewMQTTConsumer 创建 MQTT 采集器并连接 Broker
func NewMQTTConsumer(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) (*MQTTConsumer, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT.Broker)
	opts.SetClientID(cfg.MQTT.ClientID)

	if cfg.MQTT.Username != "" {
		opts.SetUsername(cfg.MQTT.Username)
	}
	if cfg.MQTT.Password != "" {
		opts.SetPassword(cfg.MQTT.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &MQTTConsumer{
		cfg:         cfg,
		client:      client,
		redisClient: redisClient,
		logger:      logger,
	}, nil
}

// Start 订阅主题并等待上下文取消
func (c *MQTTConsumer) Start(ctx context.Context) error {
	topic := c.cfg.MQTT.Topic
	if topic == "" {
		return fmt.Errorf("MQTT topic not configured")
	}

	handler := func(client mqtt.Client, msg mqtt.Message) {
		if err := c.handleMessage(ctx, msg.Topic(), msg.Payload()); err != nil {
			c.logger.Error("Failed to handle MQTT message",
				zap.String("topic", msg.Topic()),
				zap.Error(err),
			)
		}
	}

	if token := c.client.Subscribe(topic, c.cfg.MQTT.QoS, handler); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}

	c.logger.Info("MQTT consumer started",
		zap.String("topic", topic),
		zap.String("stream", c.cfg.Ingest.Stream),
	)

	<-ctx.Done()
	return nil
}

// Stop 取消订阅并断开连接
func (c *MQTTConsumer) Stop() {
	if c.cfg.MQTT.Topic != "" {
		if token := c.client.Unsubscribe(c.cfg.MQTT.Topic); token.Wait() && token.Error() != nil {
			c.logger.Error("Failed to unsubscribe", zap.Error(token.Error()))
		}
	}
	c.client.Disconnect(250)
	c.logger.Info("MQTT consumer stopped")
}

// handleMessage 处理 MQTT 消息
// 消息格式：单条或数组的 ReadingMessage JSON
func (c *MQTTConsumer) handleMessage(ctx context.Context, topic string, payload []byte) error {
	var messages []models.ReadingMessage
	if err := json.Unmarshal(payload, &messages); err != nil {
		// 回退单条格式
		var single models.ReadingMessage
		if err := json.Unmarshal(payload, &single); err != nil {
			return fmt.Errorf("failed to unmarshal reading payload: %w", err)
		}
		messages = []models.ReadingMessage{single}
	}

	for i := range messages {
		reading, err := ValidateMessage(&messages[i], c.cfg)
		if err != nil {
			// 非法读数在边界拒绝
			c.logger.Warn("Rejected invalid reading from MQTT",
				zap.String("topic", topic),
				zap.String("subject_id", messages[i].SubjectID),
				zap.Error(err),
			)
			continue
		}

		msg := models.ReadingMessage{
			SubjectID: reading.SubjectID,
			Timestamp: reading.Timestamp.Unix(),
			Metrics:   make(map[string]*float64, len(reading.Metrics)),
		}
		for name, v := range reading.Metrics {
			value := v
			msg.Metrics[name] = &value
		}

		if _, err := PublishJSONToStream(ctx, c.redisClient, c.cfg.Ingest.Stream, msg); err != nil {
			return fmt.Errorf("failed to publish reading to stream: %w", err)
		}
	}

	return nil
}
