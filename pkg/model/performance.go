package model

import (
	"time"

	"github.com/google/uuid"
)

// PerformanceRecord 建议的预期与实际效果对照（仅追加，不可修改）
type PerformanceRecord struct {
	ID                    uuid.UUID   `json:"id"`
	SuggestionID          uuid.UUID   `json:"suggestion_id"`
	SessionID             uuid.UUID   `json:"session_id"`
	Pattern               PatternType `json:"pattern"`
	ProjectedCoverage     float64     `json:"projected_coverage"`
	ActualCoverage        float64     `json:"actual_coverage"`
	ProjectedCost         float64     `json:"projected_cost"`
	ActualCost            float64     `json:"actual_cost"`
	ProjectedServiceLevel float64     `json:"projected_service_level"`
	ActualServiceLevel    float64     `json:"actual_service_level"`
	UserAcceptance        float64     `json:"user_acceptance"` // 0-1
	RecordedAt            time.Time   `json:"recorded_at"`
}

// CoverageAchievement 返回覆盖达成率（实际/预期）
func (r *PerformanceRecord) CoverageAchievement() float64 {
	if r.ProjectedCoverage == 0 {
		return 0
	}
	return r.ActualCoverage / r.ProjectedCoverage
}

// PatternStats 按模式聚合的效果统计，可作为后续会话的先验
type PatternStats struct {
	Pattern          PatternType `json:"pattern"`
	Records          int         `json:"records"`
	SuccessRate      float64     `json:"success_rate"` // 实际覆盖达到预期80%以上的比例
	AvgCoverageRatio float64     `json:"avg_coverage_ratio"`
	AvgCostRatio     float64     `json:"avg_cost_ratio"`
	AvgAcceptance    float64     `json:"avg_acceptance"`
}
