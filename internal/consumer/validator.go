package consumer

import (
	"errors"
	"fmt"
	"time"

	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/config"
	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/models"
)

// ErrInvalidReading 摄入边界校验失败（读数在进入核心前被拒绝）
var ErrInvalidReading = errors.New("invalid reading")

// ValidateMessage 校验一条原始读数消息并转换为 Reading
//
// 拒绝条件：
// - subject_id 为空或时间戳非法（零值 / 超前当前时间过多）
// - 指标值超出规则表中的有效域（如 heart_rate 1000）
// null 指标按缺失处理（不插补）；未配置规则的指标原样保留，
// 由下游选择忽略
func ValidateMessage(msg *models.ReadingMessage, cfg *config.Config) (*models.Reading, error) {
	if msg.SubjectID == "" {
		return nil, fmt.Errorf("%w: missing subject_id", ErrInvalidReading)
	}
	if msg.Timestamp <= 0 {
		return nil, fmt.Errorf("%w: missing timestamp", ErrInvalidReading)
	}

	ts := time.Unix(msg.Timestamp, 0).UTC()
	if ts.After(time.Now().Add(5 * time.Minute)) {
		return nil, fmt.Errorf("%w: timestamp in the future: %s", ErrInvalidReading, ts)
	}

	metrics := make(map[string]float64, len(msg.Metrics))
	for name, v := range msg.Metrics {
		if v == nil {
			// 缺失值：排除，不插补
			continue
		}
		if rule, ok := cfg.RuleFor(name); ok {
			if *v < rule.ValidMin || *v > rule.ValidMax {
				return nil, fmt.Errorf("%w: %s=%v outside valid domain [%v, %v]",
					ErrInvalidReading, name, *v, rule.ValidMin, rule.ValidMax)
			}
		}
		metrics[name] = *v
	}

	if len(metrics) == 0 {
		return nil, fmt.Errorf("%w: no metric values", ErrInvalidReading)
	}

	return &models.Reading{
		SubjectID: msg.SubjectID,
		Timestamp: ts,
		Metrics:   metrics,
	}, nil
}
