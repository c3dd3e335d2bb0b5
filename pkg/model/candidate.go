package model

import (
	"fmt"

	"github.com/google/uuid"
)

// PatternType 排班变更模式类型
type PatternType string

const (
	PatternShiftExtension    PatternType = "shift_extension"    // 延长既有班次
	PatternOvertimeExtension PatternType = "overtime_extension" // 加班延长
	PatternSplitShift        PatternType = "split_shift"        // 两头班
	PatternExtraShift        PatternType = "extra_shift"        // 增派班次
)

// ChangeOp 排班变更操作
type ChangeOp string

const (
	ChangeAdd    ChangeOp = "add"
	ChangeRemove ChangeOp = "remove"
	ChangeModify ChangeOp = "modify"
)

// ScheduleChange 单条排班变更（候选/建议的最小增量单元）
type ScheduleChange struct {
	Op         ChangeOp   `json:"op"`
	OperatorID uuid.UUID  `json:"operator_id"`
	Unit       string     `json:"unit,omitempty"`
	ShiftID    *uuid.UUID `json:"shift_id,omitempty"` // modify/remove 时指向既有班次
	From       *TimeRange `json:"from,omitempty"`     // 变更前时段
	To         *TimeRange `json:"to,omitempty"`       // 变更后时段
	SkillTags  []string   `json:"skill_tags,omitempty"`
	Overtime   bool       `json:"overtime,omitempty"` // 是否属于加班时段
}

// ResultingPeriod 返回变更生效后的时段；remove 返回零值
func (c ScheduleChange) ResultingPeriod() TimeRange {
	if c.Op == ChangeRemove || c.To == nil {
		return TimeRange{}
	}
	return *c.To
}

// AddedHours 返回变更新增的工时（remove 为负）
func (c ScheduleChange) AddedHours() float64 {
	switch c.Op {
	case ChangeAdd:
		if c.To != nil {
			return c.To.Hours()
		}
	case ChangeRemove:
		if c.From != nil {
			return -c.From.Hours()
		}
	case ChangeModify:
		var h float64
		if c.To != nil {
			h += c.To.Hours()
		}
		if c.From != nil {
			h -= c.From.Hours()
		}
		return h
	}
	return 0
}

// Candidate 候选方案（会话级临时对象，未经验证与评分）
type Candidate struct {
	Seq             int              `json:"seq"` // 会话内确定性序号，排序与并列裁决依据
	Pattern         PatternType      `json:"pattern"`
	Changes         []ScheduleChange `json:"changes"`
	Operators       []uuid.UUID      `json:"operators"`
	GapIDs          []string         `json:"gap_ids"`
	DeltaCost       float64          `json:"delta_cost"`       // 相对基线的成本增量
	SeverityCovered float64          `json:"severity_covered"` // 消解的缺口严重度权重之和
}

// ID 返回候选的确定性标识
func (c *Candidate) ID() string {
	return fmt.Sprintf("cand-%04d", c.Seq)
}

// DeltaHours 返回候选新增的总工时
func (c *Candidate) DeltaHours() float64 {
	var total float64
	for _, ch := range c.Changes {
		total += ch.AddedHours()
	}
	return total
}

// CoversGap 检查候选是否消解某个缺口
func (c *Candidate) CoversGap(gapID string) bool {
	for _, id := range c.GapIDs {
		if id == gapID {
			return true
		}
	}
	return false
}
