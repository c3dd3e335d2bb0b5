// Package feedback 提供建议实施后的效果追踪与模式先验
package feedback

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/youpai/youpai/pkg/audit"
	"github.com/youpai/youpai/pkg/errors"
	"github.com/youpai/youpai/pkg/model"
)

// 实际覆盖达到预期的这一比例即计为成功
const successThreshold = 0.80

// Tracker 效果追踪器
// 记录仅追加不可修改，聚合统计作为后续会话的模式先验
type Tracker struct {
	mu      sync.RWMutex
	records []*model.PerformanceRecord
	sink    audit.Sink
}

// NewTracker 创建效果追踪器
func NewTracker(sink audit.Sink) *Tracker {
	if sink == nil {
		sink = audit.NewLogSink()
	}
	return &Tracker{sink: sink}
}

// Record 追加一条效果记录
func (t *Tracker) Record(r *model.PerformanceRecord, actor string) error {
	if r.SuggestionID == uuid.Nil {
		return errors.InvalidInput("suggestion_id", "不能为空")
	}
	if r.Pattern == "" {
		return errors.InvalidInput("pattern", "不能为空")
	}
	if r.UserAcceptance < 0 || r.UserAcceptance > 1 {
		return errors.InvalidInput("user_acceptance", "必须在0-1之间")
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now()
	}

	t.mu.Lock()
	t.records = append(t.records, r)
	t.mu.Unlock()

	t.sink.Record(audit.Event{
		Type:     audit.EventFeedbackRecorded,
		ActorID:  actor,
		Action:   "记录实施效果",
		EntityID: r.SuggestionID.String(),
		After: map[string]interface{}{
			"pattern":         string(r.Pattern),
			"coverage_ratio":  r.CoverageAchievement(),
			"user_acceptance": r.UserAcceptance,
		},
	})
	return nil
}

// Records 返回全部记录的副本，按记录时间升序
func (t *Tracker) Records() []*model.PerformanceRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*model.PerformanceRecord, len(t.records))
	copy(out, t.records)
	return out
}

// Stats 按模式聚合效果统计
func (t *Tracker) Stats() []*model.PatternStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	type agg struct {
		records       int
		successes     int
		coverageRatio float64
		costRatio     float64
		acceptance    float64
	}
	byPattern := make(map[model.PatternType]*agg)
	for _, r := range t.records {
		a := byPattern[r.Pattern]
		if a == nil {
			a = &agg{}
			byPattern[r.Pattern] = a
		}
		a.records++
		ratio := r.CoverageAchievement()
		a.coverageRatio += ratio
		if ratio >= successThreshold {
			a.successes++
		}
		if r.ProjectedCost > 0 {
			a.costRatio += r.ActualCost / r.ProjectedCost
		}
		a.acceptance += r.UserAcceptance
	}

	patterns := make([]model.PatternType, 0, len(byPattern))
	for p := range byPattern {
		patterns = append(patterns, p)
	}
	sort.Slice(patterns, func(i, j int) bool { return patterns[i] < patterns[j] })

	stats := make([]*model.PatternStats, 0, len(patterns))
	for _, p := range patterns {
		a := byPattern[p]
		n := float64(a.records)
		stats = append(stats, &model.PatternStats{
			Pattern:          p,
			Records:          a.records,
			SuccessRate:      float64(a.successes) / n,
			AvgCoverageRatio: a.coverageRatio / n,
			AvgCostRatio:     a.costRatio / n,
			AvgAcceptance:    a.acceptance / n,
		})
	}
	return stats
}

// Priors 返回各模式的成功率先验，供候选生成排序策略使用
func (t *Tracker) Priors() map[model.PatternType]float64 {
	priors := make(map[model.PatternType]float64)
	for _, s := range t.Stats() {
		priors[s.Pattern] = s.SuccessRate
	}
	return priors
}
