// Package history 维护每个对象的内存读数历史（按时间戳升序）
//
// - 相同时间戳的重复读数保留最近摄入的值
// - 超过保留时长或条数上限的旧读数被淘汰
// - 各对象之间无共享可变状态，读写由互斥锁保护
package history

import (
	"sort"
	"sync"
	"time"

	"github.com/arshad-godhrawala/healthcare-data-pipeline/internal/models"
)

// Store 内存读数历史存储
type Store struct {
	mu        sync.RWMutex
	bySubject map[string][]models.Reading
	maxAge    time.Duration
	maxCount  int
}

// NewStore 创建历史存储
func NewStore(maxAge time.Duration, maxCount int) *Store {
	return &Store{
		bySubject: make(map[string][]models.Reading),
		maxAge:    maxAge,
		maxCount:  maxCount,
	}
}

// Add 追加一条读数，保持升序并按时间戳去重（后摄入覆盖先摄入）
func (s *Store) Add(r models.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()

	readings := s.bySubject[r.SubjectID]

	// 常见情况：追加到末尾
	n := len(readings)
	switch {
	case n == 0 || readings[n-1].Timestamp.Before(r.Timestamp):
		readings = append(readings, r)
	case readings[n-1].Timestamp.Equal(r.Timestamp):
		readings[n-1] = r
	default:
		// 乱序到达：按时间戳插入或覆盖
		i := sort.Search(n, func(i int) bool {
			return !readings[i].Timestamp.Before(r.Timestamp)
		})
		if i < n && readings[i].Timestamp.Equal(r.Timestamp) {
			readings[i] = r
		} else {
			readings = append(readings, models.Reading{})
			copy(readings[i+1:], readings[i:])
			readings[i] = r
		}
	}

	s.bySubject[r.SubjectID] = s.prune(readings, r.Timestamp)
}

// prune 淘汰超过保留时长/条数上限的旧读数
func (s *Store) prune(readings []models.Reading, now time.Time) []models.Reading {
	if s.maxAge > 0 {
		cutoff := now.Add(-s.maxAge)
		i := sort.Search(len(readings), func(i int) bool {
			return !readings[i].Timestamp.Before(cutoff)
		})
		if i > 0 {
			readings = readings[i:]
		}
	}
	if s.maxCount > 0 && len(readings) > s.maxCount {
		readings = readings[len(readings)-s.maxCount:]
	}
	return readings
}

// Since 返回对象 since 之后（含）的读数副本（升序）
func (s *Store) Since(subjectID string, since time.Time) []models.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	readings := s.bySubject[subjectID]
	i := sort.Search(len(readings), func(i int) bool {
		return !readings[i].Timestamp.Before(since)
	})

	out := make([]models.Reading, len(readings)-i)
	copy(out, readings[i:])
	return out
}

// Tail 返回对象最近 k 条读数副本（升序）
func (s *Store) Tail(subjectID string, k int) []models.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	readings := s.bySubject[subjectID]
	if k <= 0 || len(readings) == 0 {
		return nil
	}
	if k > len(readings) {
		k = len(readings)
	}

	out := make([]models.Reading, k)
	copy(out, readings[len(readings)-k:])
	return out
}

// All 返回对象全部历史读数副本（升序）
func (s *Store) All(subjectID string) []models.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	readings := s.bySubject[subjectID]
	out := make([]models.Reading, len(readings))
	copy(out, readings)
	return out
}

// Subjects 返回当前有历史数据的全部对象 ID
func (s *Store) Subjects() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.bySubject))
	for id := range s.bySubject {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Count 对象的历史读数条数
func (s *Store) Count(subjectID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bySubject[subjectID])
}
