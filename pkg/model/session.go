package model

import (
	"time"

	"github.com/google/uuid"
)

// Stage 优化会话流水线阶段
type Stage string

const (
	StageAnalyzingCoverage     Stage = "analyzing_coverage"
	StageIdentifyingGaps       Stage = "identifying_gaps"
	StageGeneratingVariants    Stage = "generating_variants"
	StageValidatingConstraints Stage = "validating_constraints"
	StageRankingSuggestions    Stage = "ranking_suggestions"
)

// StageOrder 阶段顺序，不可跳过或回退
var StageOrder = []Stage{
	StageAnalyzingCoverage,
	StageIdentifyingGaps,
	StageGeneratingVariants,
	StageValidatingConstraints,
	StageRankingSuggestions,
}

// StageWeights 各阶段占总进度的百分比份额
var StageWeights = map[Stage]int{
	StageAnalyzingCoverage:     10,
	StageIdentifyingGaps:       20,
	StageGeneratingVariants:    30,
	StageValidatingConstraints: 25,
	StageRankingSuggestions:    15,
}

// Index 返回阶段在顺序中的下标，未知阶段返回 -1
func (s Stage) Index() int {
	for i, st := range StageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// CanBeCancelled 检查该阶段是否允许取消
// 排名阶段的最终提交步骤不可取消，其余阶段均可
func (s Stage) CanBeCancelled() bool {
	return s != StageRankingSuggestions
}

// SessionStatus 会话状态
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionCancelled SessionStatus = "cancelled"
	SessionTimeout   SessionStatus = "timeout"
)

// Terminal 检查状态是否为终态
func (s SessionStatus) Terminal() bool {
	return s != SessionRunning
}

// SessionSummary 会话结果摘要
type SessionSummary struct {
	GapsFound           int              `json:"gaps_found"`
	GapsAddressed       int              `json:"gaps_addressed"`
	UncoveredGapIDs     []string         `json:"uncovered_gap_ids,omitempty"` // 因候选上限被放弃的缺口
	CandidatesGenerated int              `json:"candidates_generated"`
	CandidatesExcluded  int              `json:"candidates_excluded"`
	Suggestions         int              `json:"suggestions"`
	BestScore           float64          `json:"best_score"`
	RiskCounts          map[RiskTier]int `json:"risk_counts,omitempty"`
}

// OptimizationSession 优化会话
// 由编排器独占持有，仅通过阶段转换修改
type OptimizationSession struct {
	ID         uuid.UUID       `json:"id"`
	Requester  string          `json:"requester"` // 调用方身份，仅用于审计归属
	Period     TimeRange       `json:"period"`
	Scope      Scope           `json:"scope"`
	Stage      Stage           `json:"stage"`
	Progress   int             `json:"progress"` // 0-100，单调非减
	Status     SessionStatus   `json:"status"`
	TimeBudget time.Duration   `json:"time_budget"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Summary    *SessionSummary `json:"summary,omitempty"`
	Error      string          `json:"error,omitempty"`
}
