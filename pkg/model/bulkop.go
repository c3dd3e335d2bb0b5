package model

import (
	"time"

	"github.com/google/uuid"
)

// ImplementationMode 批量应用模式
type ImplementationMode string

const (
	ModeImmediateFull ImplementationMode = "immediate_full" // 全量原子应用
	ModePhased        ImplementationMode = "phased"         // 按优先级分阶段应用
	ModePilotProgram  ImplementationMode = "pilot_program"  // 先行试点
)

// BulkStatus 批量操作状态
type BulkStatus string

const (
	BulkPending    BulkStatus = "pending"
	BulkInProgress BulkStatus = "in_progress"
	BulkCompleted  BulkStatus = "completed"
	BulkFailed     BulkStatus = "failed"
	BulkCancelled  BulkStatus = "cancelled"
)

// ConflictVerdict 冲突检测结论
type ConflictVerdict string

const (
	NoConflicts    ConflictVerdict = "no_conflicts"
	ConflictsFound ConflictVerdict = "conflicts_found"
)

// OperatorConflict 两条建议对同一操作员的时段冲突
type OperatorConflict struct {
	OperatorID  uuid.UUID `json:"operator_id"`
	SuggestionA uuid.UUID `json:"suggestion_a"`
	SuggestionB uuid.UUID `json:"suggestion_b"`
	Overlap     TimeRange `json:"overlap"`
}

// CombinedImpact 所选建议的合并影响分析
type CombinedImpact struct {
	SuggestionIDs       []uuid.UUID        `json:"suggestion_ids"`
	CoverageImprovement float64            `json:"coverage_improvement"` // 合并的缺口严重度消解量
	CostImpact          float64            `json:"cost_impact"`          // 合并的成本增量
	HoursDelta          float64            `json:"hours_delta"`
	OperatorsAffected   int                `json:"operators_affected"`
	HoursSpread         float64            `json:"hours_spread"` // 操作员间新增工时的最大差值
	Conflicts           []OperatorConflict `json:"conflicts,omitempty"`
	ConflictResult      ConflictVerdict    `json:"conflict_detection_result"`
}

// RollbackPlan 回滚计划：提交前快照 + 逆向增量
// 任何提交前必须先生成，不是可选项
type RollbackPlan struct {
	Snapshot       []*ScheduledShift `json:"snapshot"`
	ReverseChanges []ScheduleChange  `json:"reverse_changes"`
	CapturedAt     time.Time         `json:"captured_at"`
}

// BulkOperation 批量操作
type BulkOperation struct {
	ID            uuid.UUID          `json:"id"`
	SessionID     uuid.UUID          `json:"session_id"`
	SuggestionIDs []uuid.UUID        `json:"suggestion_ids"`
	Mode          ImplementationMode `json:"mode"`
	Status        BulkStatus         `json:"status"`
	Impact        *CombinedImpact    `json:"impact,omitempty"`
	Rollback      *RollbackPlan      `json:"rollback_plan,omitempty"`
	Applied       []uuid.UUID        `json:"applied_suggestion_ids,omitempty"` // 已提交的建议（分阶段模式下可能为部分）
	PilotUnit     string             `json:"pilot_unit,omitempty"`
	Promoted      bool               `json:"promoted,omitempty"` // 试点是否已推广
	Error         string             `json:"error,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	FinishedAt    *time.Time         `json:"finished_at,omitempty"`
}
