package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/models"

	"go.uber.org/zap"
)

// AlertEventsRepository 报警事件仓库（对应 alert_events 表）
// 报警注册表的跨周期状态在内存中，本仓库只做事件留痕与查询
type AlertEventsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertEventsRepository 创建报警事件仓库
func NewAlertEventsRepository(db *sql.DB, logger *zap.Logger) *AlertEventsRepository {
	return &AlertEventsRepository{
		db:     db,
		logger: logger,
	}
}

// RecordTriggered 写入新触发的报警事件
func (r *AlertEventsRepository) RecordTriggered(ctx context.Context, alert *models.Alert) error {
	if alert.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if alert.SubjectID == "" {
		return fmt.Errorf("subject_id is required")
	}

	triggerData, err := json.Marshal(map[string]interface{}{
		"metric":    alert.Metric,
		"condition": alert.Condition,
		"value":     alert.TriggerValue,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal trigger data: %w", err)
	}

	query := `
		INSERT INTO alert_events (
			event_id,
			subject_id,
			metric,
			condition,
			severity,
			message,
			status,
			trigger_data,
			first_triggered_at,
			last_triggered_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.db.ExecContext(ctx, query,
		alert.EventID,
		alert.SubjectID,
		alert.Metric,
		alert.Condition,
		alert.Severity,
		alert.Message,
		models.AlertStatusActive,
		string(triggerData),
		alert.FirstTriggeredAt,
		alert.LastTriggeredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert event: %w", err)
	}

	return nil
}

// UpdateLastTriggered 更新报警的最近触发时间与级别（去重路径）
func (r *AlertEventsRepository) UpdateLastTriggered(ctx context.Context, alert *models.Alert) error {
	if alert.EventID == "" {
		return fmt.Errorf("event_id is required")
	}

	query := `
		UPDATE alert_events
		SET last_triggered_at = $2,
		    severity = $3,
		    message = $4,
		    status = $5
		WHERE event_id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		alert.EventID,
		alert.LastTriggeredAt,
		alert.Severity,
		alert.Message,
		models.AlertStatusActive,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert event: %w", err)
	}

	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return fmt.Errorf("alert event not found: %s", alert.EventID)
	}

	return nil
}

// RecordRetired 标记报警为退休状态
func (r *AlertEventsRepository) RecordRetired(ctx context.Context, alert *models.Alert) error {
	if alert.EventID == "" {
		return fmt.Errorf("event_id is required")
	}

	query := `
		UPDATE alert_events
		SET status = $2
		WHERE event_id = $1
	`

	_, err := r.db.ExecContext(ctx, query, alert.EventID, models.AlertStatusRetired)
	if err != nil {
		return fmt.Errorf("failed to retire alert event: %w", err)
	}

	return nil
}

// ListEvents 查询对象在时间段内的报警事件（按触发时间降序）
func (r *AlertEventsRepository) ListEvents(ctx context.Context, subjectID string, since time.Time, limit int) ([]models.Alert, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("subject_id is required")
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT
			event_id,
			subject_id,
			metric,
			condition,
			severity,
			message,
			status,
			first_triggered_at,
			last_triggered_at
		FROM alert_events
		WHERE subject_id = $1 AND last_triggered_at >= $2
		ORDER BY last_triggered_at DESC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, subjectID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert events: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var a models.Alert
		if err := rows.Scan(
			&a.EventID,
			&a.SubjectID,
			&a.Metric,
			&a.Condition,
			&a.Severity,
			&a.Message,
			&a.Status,
			&a.FirstTriggeredAt,
			&a.LastTriggeredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert event: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alert events: %w", err)
	}

	return alerts, nil
}
