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

// ReadingsRepository 读数仓库（对应 health_readings 表，指标值为 JSONB）
// 用于启动时回填内存历史，以及已接受读数的留痕
type ReadingsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewReadingsRepository 创建读数仓库
func NewReadingsRepository(db *sql.DB, logger *zap.Logger) *ReadingsRepository {
	return &ReadingsRepository{
		db:     db,
		logger: logger,
	}
}

// InsertReading 写入一条已校验的读数
// 相同 (subject_id, ts) 的重复写入覆盖旧值（保留最近摄入的值）
func (r *ReadingsRepository) InsertReading(ctx context.Context, reading *models.Reading) error {
	if reading.SubjectID == "" {
		return fmt.Errorf("subject_id is required")
	}

	metrics, err := json.Marshal(reading.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	query := `
		INSERT INTO health_readings (subject_id, ts, metrics)
		VALUES ($1, $2, $3)
		ON CONFLICT (subject_id, ts) DO UPDATE SET metrics = EXCLUDED.metrics
	`

	if _, err := r.db.ExecContext(ctx, query, reading.SubjectID, reading.Timestamp, string(metrics)); err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}

	return nil
}

// RecentReadings 查询对象 since 之后的读数（升序）
func (r *ReadingsRepository) RecentReadings(ctx context.Context, subjectID string, since time.Time) ([]models.Reading, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("subject_id is required")
	}

	query := `
		SELECT subject_id, ts, metrics
		FROM health_readings
		WHERE subject_id = $1 AND ts >= $2
		ORDER BY ts ASC
	`

	rows, err := r.db.QueryContext(ctx, query, subjectID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	return scanReadings(rows)
}

// Subjects 查询 since 之后有读数的全部对象 ID
func (r *ReadingsRepository) Subjects(ctx context.Context, since time.Time) ([]string, error) {
	query := `
		SELECT DISTINCT subject_id
		FROM health_readings
		WHERE ts >= $1
		ORDER BY subject_id
	`

	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query subjects: %w", err)
	}
	defer rows.Close()

	var subjects []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan subject_id: %w", err)
		}
		subjects = append(subjects, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subjects: %w", err)
	}

	return subjects, nil
}

func scanReadings(rows *sql.Rows) ([]models.Reading, error) {
	var readings []models.Reading
	for rows.Next() {
		var reading models.Reading
		var metrics string
		if err := rows.Scan(&reading.SubjectID, &reading.Timestamp, &metrics); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		if err := json.Unmarshal([]byte(metrics), &reading.Metrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
		}
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate readings: %w", err)
	}
	return readings, nil
}
