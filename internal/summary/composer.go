// Package summary 将特征向量、预测摘要与活跃报警合并为单个对象的健康摘要
// 纯合并：不做任何新计算，除分配外无副作用
package summary

import (
	"time"

	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/models"
)

// Compose 合并单个对象的健康摘要
// forecasts 中每个指标取预测期末点作为摘要；输入为空时对应字段为空容器
func Compose(subjectID string, features map[string]models.FeatureVector, forecasts map[string]*models.ForecastResult, alerts []models.Alert, now time.Time) *models.HealthSummary {
	s := &models.HealthSummary{
		SubjectID:   subjectID,
		GeneratedAt: now,
		Features:    make(map[string]models.FeatureVector, len(features)),
		Forecasts:   make(map[string]models.ForecastHighlight, len(forecasts)),
		Alerts:      make([]models.Alert, 0, len(alerts)),
	}

	for metric, fv := range features {
		s.Features[metric] = fv
	}

	for metric, fr := range forecasts {
		end := fr.HorizonEnd()
		if end == nil {
			continue
		}
		s.Forecasts[metric] = models.ForecastHighlight{
			Metric:    metric,
			Model:     fr.Model,
			Timestamp: end.Timestamp,
			Estimate:  end.Estimate,
			Lower:     end.Lower,
			Upper:     end.Upper,
		}
	}

	s.Alerts = append(s.Alerts, alerts...)
	return s
}
