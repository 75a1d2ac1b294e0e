package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/config"
	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/models"

	"go.uber.org/zap"
)

// CacheManager 展示层缓存管理器
// 每个评估周期把最新的健康摘要与活跃报警写入 KV（带 TTL），
// 供 API 协作方在管线重算期间读取
type CacheManager struct {
	cfg    *config.Config
	kv     KVStore
	logger *zap.Logger
}

// NewCacheManager 创建缓存管理器
func NewCacheManager(cfg *config.Config, kv KVStore, logger *zap.Logger) *CacheManager {
	return &CacheManager{
		cfg:    cfg,
		kv:     kv,
		logger: logger,
	}
}

// UpdateSummary 写入对象的最新健康摘要
func (c *CacheManager) UpdateSummary(ctx context.Context, s *models.HealthSummary) error {
	key := c.summaryKey(s.SubjectID)

	jsonData, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	if err := c.kv.Set(ctx, key, string(jsonData), c.cfg.Cache.TTL); err != nil {
		return fmt.Errorf("failed to set summary cache: %w", err)
	}
	return nil
}

// GetSummary 读取对象的健康摘要缓存
// 缓存不存在时返回 ErrCacheMiss
func (c *CacheManager) GetSummary(ctx context.Context, subjectID string) (*models.HealthSummary, error) {
	key := c.summaryKey(subjectID)

	val, err := c.kv.Get(ctx, key)
	if err != nil {
		if err == ErrCacheMiss {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get summary cache: %w", err)
	}

	var s models.HealthSummary
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
	}
	return &s, nil
}

// UpdateAlerts 写入对象的活跃报警列表
func (c *CacheManager) UpdateAlerts(ctx context.Context, subjectID string, alerts []models.Alert) error {
	key := c.alertKey(subjectID)

	jsonData, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("failed to marshal alerts: %w", err)
	}

	if err := c.kv.Set(ctx, key, string(jsonData), c.cfg.Cache.TTL); err != nil {
		return fmt.Errorf("failed to set alert cache: %w", err)
	}
	return nil
}

// GetAlerts 读取对象的活跃报警缓存
func (c *CacheManager) GetAlerts(ctx context.Context, subjectID string) ([]models.Alert, error) {
	key := c.alertKey(subjectID)

	val, err := c.kv.Get(ctx, key)
	if err != nil {
		if err == ErrCacheMiss {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get alert cache: %w", err)
	}

	var alerts []models.Alert
	if err := json.Unmarshal([]byte(val), &alerts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal alerts: %w", err)
	}
	return alerts, nil
}

func (c *CacheManager) summaryKey(subjectID string) string {
	return fmt.Sprintf("%s%s%s", c.cfg.Cache.SummaryKeyPrefix, subjectID, c.cfg.Cache.SummarySuffix)
}

func (c *CacheManager) alertKey(subjectID string) string {
	return fmt.Sprintf("%s%s%s", c.cfg.Cache.AlertKeyPrefix, subjectID, c.cfg.Cache.AlertSuffix)
}
