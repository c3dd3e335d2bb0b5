package model

import (
	"time"

	"github.com/google/uuid"
)

// ConstraintType 约束来源类型
type ConstraintType string

const (
	ConstraintLaborLaw       ConstraintType = "labor_law"       // 劳动法规
	ConstraintUnionAgreement ConstraintType = "union_agreement" // 工会协议
	ConstraintBusinessRule   ConstraintType = "business_rule"   // 业务规则
	ConstraintPreference     ConstraintType = "preference"      // 偏好
)

// ConstraintPriority 约束优先级
type ConstraintPriority string

const (
	PriorityCritical ConstraintPriority = "critical"
	PriorityHigh     ConstraintPriority = "high"
	PriorityMedium   ConstraintPriority = "medium"
	PriorityLow      ConstraintPriority = "low"
)

// Order 返回优先级排序值，数值小的先评估
func (p ConstraintPriority) Order() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// ViolationPolicy 违反处理策略
type ViolationPolicy string

const (
	PolicyReject ViolationPolicy = "reject" // 直接拒绝候选
	PolicyWarn   ViolationPolicy = "warn"   // 记录警告，扣减合规得分
	PolicyAdjust ViolationPolicy = "adjust" // 记录并要求调整，扣减更多得分
	PolicyIgnore ViolationPolicy = "ignore" // 仅记录
)

// PredicateKind 约束谓词类型（带类型的变体，替代源数据中的无类型JSON规则）
type PredicateKind string

const (
	PredicateMinRestHours       PredicateKind = "min_rest_hours"        // 班次间最小休息时间
	PredicateMaxHoursPerDay     PredicateKind = "max_hours_per_day"     // 每日最大工时
	PredicateMaxHoursPerWeek    PredicateKind = "max_hours_per_week"    // 每周最大工时
	PredicateMaxConsecutiveDays PredicateKind = "max_consecutive_days"  // 最大连续工作天数
	PredicateNoOverlap          PredicateKind = "no_overlap"            // 同一操作员班次不得重叠
	PredicateSkillRequired      PredicateKind = "skill_required"        // 缺口技能必须匹配
	PredicateMaxOvertimeHours   PredicateKind = "max_overtime_hours"    // 每周最大加班时数
	PredicateTimeWindow         PredicateKind = "time_window"           // 变更须落在业务时间窗口内
	PredicateMaxCostIncrease    PredicateKind = "max_cost_increase_pct" // 成本增幅上限（百分比）
	PredicatePreferredTimeOff   PredicateKind = "preferred_time_off"    // 偏好休息时段
)

// PredicateParams 谓词参数（按 Kind 取用对应字段）
type PredicateParams struct {
	Hours      float64     `json:"hours,omitempty"`       // 时数类谓词
	Days       int         `json:"days,omitempty"`        // 天数类谓词
	Skills     []string    `json:"skills,omitempty"`      // 技能类谓词
	Window     *TimeRange  `json:"window,omitempty"`      // 时间窗口谓词
	Percent    float64     `json:"percent,omitempty"`     // 百分比谓词
	TimeOff    []TimeRange `json:"time_off,omitempty"`    // 偏好休息时段
	DailyStart string      `json:"daily_start,omitempty"` // HH:MM，每日窗口起点
	DailyEnd   string      `json:"daily_end,omitempty"`   // HH:MM，每日窗口终点
}

// Predicate 可机器评估的约束谓词
type Predicate struct {
	Kind   PredicateKind   `json:"kind"`
	Params PredicateParams `json:"params"`
}

// ConstraintScope 约束作用范围，空字段表示不限
type ConstraintScope struct {
	Units     []string    `json:"units,omitempty"`
	Operators []uuid.UUID `json:"operators,omitempty"`
	Window    *TimeRange  `json:"window,omitempty"`
}

// Constraint 验证规则（长生命周期，按生效/失效日期版本化，对引擎只读）
type Constraint struct {
	ID          uuid.UUID          `json:"id"`
	Name        string             `json:"name"`
	Type        ConstraintType     `json:"type"`
	Priority    ConstraintPriority `json:"priority"`
	Mandatory   bool               `json:"mandatory"`
	Policy      ViolationPolicy    `json:"violation_policy"`
	Predicate   Predicate          `json:"predicate"`
	Scope       ConstraintScope    `json:"scope"`
	Description string             `json:"description,omitempty"`
	EffectiveAt *time.Time         `json:"effective_at,omitempty"`
	ExpiresAt   *time.Time         `json:"expires_at,omitempty"`
}

// ActiveAt 检查约束在某时间点是否生效
func (c *Constraint) ActiveAt(t time.Time) bool {
	if c.EffectiveAt != nil && t.Before(*c.EffectiveAt) {
		return false
	}
	if c.ExpiresAt != nil && !t.Before(*c.ExpiresAt) {
		return false
	}
	return true
}

// AppliesTo 检查约束范围是否命中给定操作员、单元和时间范围
func (c *Constraint) AppliesTo(operatorID uuid.UUID, unit string, period TimeRange) bool {
	if len(c.Scope.Operators) > 0 {
		found := false
		for _, id := range c.Scope.Operators {
			if id == operatorID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(c.Scope.Units) > 0 && unit != "" {
		found := false
		for _, u := range c.Scope.Units {
			if u == unit {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if c.Scope.Window != nil && !c.Scope.Window.Overlaps(period) {
		return false
	}
	return true
}

// IsBlocking 检查约束失败时是否应排除候选
func (c *Constraint) IsBlocking() bool {
	return c.Priority == PriorityCritical && c.Mandatory && c.Policy == PolicyReject
}
