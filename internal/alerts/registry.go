package alerts

import (
	"sort"
	"sync"
	"time"

	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/models"

	"github.com/google/uuid"
)

// Registry 跨评估周期的报警状态注册表
//
// 活跃报警按 (subject, metric, condition) 唯一；重复触发只更新
// last_triggered_at。条件在一个完整评估周期内不再成立时报警退休：
// 退休报警在冷却窗口内保留（不强制删除），窗口内再次触发会恢复原报警
// 而不是产生新报警
type Registry struct {
	mu       sync.Mutex
	cooldown time.Duration
	active   map[string]*models.Alert
	retired  map[string]retiredEntry
}

type retiredEntry struct {
	alert     models.Alert
	retiredAt time.Time
}

// Candidate 单次评估得出的触发条件
type Candidate struct {
	Metric    string
	Condition string
	Severity  string
	Message   string
	Value     float64
}

// SyncResult 一次同步的变更集
type SyncResult struct {
	New     []models.Alert // 本周期新建的报警（需要落库）
	Updated []models.Alert // 去重后仅更新触发时间的报警
	Retired []models.Alert // 本周期退休的报警
}

// NewRegistry 创建注册表
func NewRegistry(cooldown time.Duration) *Registry {
	return &Registry{
		cooldown: cooldown,
		active:   make(map[string]*models.Alert),
		retired:  make(map[string]retiredEntry),
	}
}

// Sync 用本周期的触发条件同步单个对象的报警状态
func (r *Registry) Sync(subjectID string, now time.Time, candidates []Candidate) SyncResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result SyncResult
	triggered := make(map[string]bool, len(candidates))

	for _, c := range candidates {
		key := alertKey(subjectID, c.Metric, c.Condition)
		triggered[key] = true

		if a, ok := r.active[key]; ok {
			// 已活跃：去重，仅更新触发时间与严重级别
			a.LastTriggeredAt = now
			a.Severity = c.Severity
			a.Message = c.Message
			a.TriggerValue = c.Value
			result.Updated = append(result.Updated, *a)
			continue
		}

		if re, ok := r.retired[key]; ok && now.Sub(re.retiredAt) <= r.cooldown {
			// 冷却窗口内重新触发：恢复原报警，不产生新记录
			a := re.alert
			a.Status = models.AlertStatusActive
			a.LastTriggeredAt = now
			a.Severity = c.Severity
			a.Message = c.Message
			a.TriggerValue = c.Value
			delete(r.retired, key)
			r.active[key] = &a
			result.Updated = append(result.Updated, a)
			continue
		}

		// 新报警
		a := &models.Alert{
			EventID:          uuid.New().String(),
			SubjectID:        subjectID,
			Metric:           c.Metric,
			Severity:         c.Severity,
			Message:          c.Message,
			Condition:        c.Condition,
			Status:           models.AlertStatusActive,
			FirstTriggeredAt: now,
			LastTriggeredAt:  now,
			TriggerValue:     c.Value,
		}
		r.active[key] = a
		result.New = append(result.New, *a)
	}

	// 条件不再成立的活跃报警：退休（保留在冷却窗口内用于去重）
	for key, a := range r.active {
		if a.SubjectID != subjectID || triggered[key] {
			continue
		}
		a.Status = models.AlertStatusRetired
		r.retired[key] = retiredEntry{alert: *a, retiredAt: now}
		delete(r.active, key)
		result.Retired = append(result.Retired, *a)
	}

	// 清理冷却窗口外的退休记录
	for key, re := range r.retired {
		if now.Sub(re.retiredAt) > r.cooldown {
			delete(r.retired, key)
		}
	}

	return result
}

// ActiveForSubject 返回对象当前活跃的报警
// 排序：严重级别降序，同级按 last_triggered_at 降序
func (r *Registry) ActiveForSubject(subjectID string) []models.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Alert
	for _, a := range r.active {
		if a.SubjectID == subjectID {
			out = append(out, *a)
		}
	}
	SortAlerts(out)
	return out
}

// ActiveCount 当前活跃报警总数（监控用）
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// SortAlerts 按展示顺序排序（critical > warning > info，同级最近触发在前）
func SortAlerts(alerts []models.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		ri, rj := models.SeverityRank(alerts[i].Severity), models.SeverityRank(alerts[j].Severity)
		if ri != rj {
			return ri > rj
		}
		return alerts[i].LastTriggeredAt.After(alerts[j].LastTriggeredAt)
	})
}

func alertKey(subjectID, metric, condition string) string {
	return subjectID + "|" + metric + "|" + condition
}
