package model

import (
	"github.com/google/uuid"
)

// Verdict 单条约束评估结论
type Verdict string

const (
	VerdictPassed  Verdict = "passed"
	VerdictFailed  Verdict = "failed"
	VerdictWarning Verdict = "warning"
)

// OverallResult 候选的合规总评
type OverallResult string

const (
	ResultFullyCompliant  OverallResult = "fully_compliant"
	ResultMinorIssues     OverallResult = "minor_issues"
	ResultMajorViolations OverallResult = "major_violations"
)

// ConstraintVerdict 候选对单条约束的评估结论
type ConstraintVerdict struct {
	ConstraintID   uuid.UUID          `json:"constraint_id"`
	ConstraintName string             `json:"constraint_name"`
	Priority       ConstraintPriority `json:"priority"`
	Policy         ViolationPolicy    `json:"policy"`
	Verdict        Verdict            `json:"verdict"`
	Explanation    string             `json:"explanation,omitempty"` // 面向用户的违反说明
}

// ValidationResult 候选的约束验证结果
type ValidationResult struct {
	CandidateSeq int                 `json:"candidate_seq"`
	Overall      OverallResult       `json:"overall_result"`
	Verdicts     []ConstraintVerdict `json:"verdicts"`
	Excluded     bool                `json:"excluded"` // 是否被排除出评分与排名
}

// Violations 返回全部未通过的结论
func (r *ValidationResult) Violations() []ConstraintVerdict {
	var out []ConstraintVerdict
	for _, v := range r.Verdicts {
		if v.Verdict != VerdictPassed {
			out = append(out, v)
		}
	}
	return out
}

// ScoreBreakdown 多准则评分明细
type ScoreBreakdown struct {
	Coverage       float64 `json:"coverage"`
	Cost           float64 `json:"cost"`
	Compliance     float64 `json:"compliance"`
	Implementation float64 `json:"implementation"`
	Total          float64 `json:"total"`
}

// RiskTier 实施风险分级
type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// SuggestionStatus 建议状态
type SuggestionStatus string

const (
	SuggestionPending   SuggestionStatus = "pending"
	SuggestionPreviewed SuggestionStatus = "previewed"
	SuggestionApplied   SuggestionStatus = "applied"
	SuggestionRejected  SuggestionStatus = "rejected"
	SuggestionModified  SuggestionStatus = "modified"
)

// Suggestion 经过验证与评分的排班建议
// 创建后除状态流转外不可变
type Suggestion struct {
	ID           uuid.UUID         `json:"id"`
	SessionID    uuid.UUID         `json:"session_id"`
	CandidateSeq int               `json:"candidate_seq"`
	CandidateID  string            `json:"candidate_id"`
	Pattern      PatternType       `json:"pattern"`
	Changes      []ScheduleChange  `json:"changes"`
	Operators    []uuid.UUID       `json:"operators"`
	GapIDs       []string          `json:"gap_ids"`
	DeltaCost    float64           `json:"delta_cost"`
	Validation   *ValidationResult `json:"validation"`
	Score        ScoreBreakdown    `json:"score"`
	Rank         int               `json:"rank"`
	Risk         RiskTier          `json:"risk_assessment"`
	Status       SuggestionStatus  `json:"status"`
}

// CanTransition 检查建议状态流转是否合法
// applied 仅可经回滚转入 rejected，rejected 为终态
func CanTransition(from, next SuggestionStatus) bool {
	switch from {
	case SuggestionPending:
		return next == SuggestionPreviewed || next == SuggestionApplied ||
			next == SuggestionRejected || next == SuggestionModified
	case SuggestionPreviewed:
		return next == SuggestionApplied || next == SuggestionRejected || next == SuggestionModified
	case SuggestionModified:
		return next == SuggestionApplied || next == SuggestionRejected
	case SuggestionApplied:
		return next == SuggestionRejected
	default:
		return false
	}
}

// CanTransitionTo 检查建议状态流转是否合法
func (s *Suggestion) CanTransitionTo(next SuggestionStatus) bool {
	return CanTransition(s.Status, next)
}
