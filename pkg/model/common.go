// Package model 定义优化引擎的核心数据模型
package model

import (
	"time"

	"github.com/google/uuid"
)

// BusinessContext 业务场景类型
type BusinessContext string

const (
	ContextContactCenter  BusinessContext = "contact_center"  // 7×24联络中心
	ContextSeasonalRetail BusinessContext = "seasonal_retail" // 季节性零售
	ContextGeneral        BusinessContext = "general"         // 通用
)

// BaseModel 基础模型（包含通用字段）
type BaseModel struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"-" db:"deleted_at"`
}

// NewBaseModel 创建新的基础模型
func NewBaseModel() BaseModel {
	now := time.Now()
	return BaseModel{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// JSONMap 用于存储 JSONB 数据
type JSONMap map[string]interface{}

// TimeRange 时间范围
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration 返回时间范围的持续时间
func (tr TimeRange) Duration() time.Duration {
	return tr.End.Sub(tr.Start)
}

// Hours 返回时间范围的小时数
func (tr TimeRange) Hours() float64 {
	return tr.Duration().Hours()
}

// Overlaps 检查两个时间范围是否重叠
func (tr TimeRange) Overlaps(other TimeRange) bool {
	return tr.Start.Before(other.End) && other.Start.Before(tr.End)
}

// Contains 检查时间范围是否包含某个时间点
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && t.Before(tr.End)
}

// Intersect 返回两个时间范围的交集，不相交时返回零值
func (tr TimeRange) Intersect(other TimeRange) TimeRange {
	if !tr.Overlaps(other) {
		return TimeRange{}
	}
	result := tr
	if other.Start.After(result.Start) {
		result.Start = other.Start
	}
	if other.End.Before(result.End) {
		result.End = other.End
	}
	return result
}

// IsZero 检查时间范围是否为零值
func (tr TimeRange) IsZero() bool {
	return tr.Start.IsZero() && tr.End.IsZero()
}

// Scope 优化范围（服务/部门/团队单元）
type Scope struct {
	ServiceID  string   `json:"service_id"`
	Department string   `json:"department,omitempty"`
	Units      []string `json:"units,omitempty"` // 站点/团队单元，试点应用以此为边界
}

// Matches 检查某个单元是否属于该范围
func (s Scope) Matches(unit string) bool {
	if len(s.Units) == 0 {
		return true
	}
	for _, u := range s.Units {
		if u == unit {
			return true
		}
	}
	return false
}

// Operator 可排班的操作员
type Operator struct {
	ID           uuid.UUID   `json:"id"`
	Name         string      `json:"name"`
	Unit         string      `json:"unit,omitempty"` // 所属站点/团队
	SkillTags    []string    `json:"skill_tags,omitempty"`
	HourlyCost   float64     `json:"hourly_cost"`
	MaxWeekHours float64     `json:"max_week_hours,omitempty"`
	Availability []TimeRange `json:"availability,omitempty"` // 空表示全时段可用
}

// HasSkill 检查操作员是否具备某项技能
func (o *Operator) HasSkill(skill string) bool {
	if skill == "" {
		return true
	}
	return contains(o.SkillTags, skill)
}

// AvailableDuring 检查操作员在某时间范围内是否可用
func (o *Operator) AvailableDuring(tr TimeRange) bool {
	if len(o.Availability) == 0 {
		return true
	}
	for _, a := range o.Availability {
		if !tr.Start.Before(a.Start) && !tr.End.After(a.End) {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// ScheduledShift 当前排班中的一个班次
type ScheduledShift struct {
	ID           uuid.UUID `json:"id"`
	OperatorID   uuid.UUID `json:"operator_id"`
	OperatorName string    `json:"operator_name,omitempty"`
	Unit         string    `json:"unit,omitempty"`
	Period       TimeRange `json:"period"`
	SkillTags    []string  `json:"skill_tags,omitempty"`
}

// Hours 返回班次时长（小时）
func (s *ScheduledShift) Hours() float64 {
	return s.Period.Hours()
}

// ForecastPoint 预测时间序列中的一个区间点
type ForecastPoint struct {
	Interval   TimeRange `json:"interval"`
	Required   int       `json:"required"`   // 需求人数
	Confidence float64   `json:"confidence"` // 置信度 0-1
}

// ScheduleSnapshot 当前排班快照
type ScheduleSnapshot struct {
	Shifts    []*ScheduledShift `json:"shifts"`
	Operators []*Operator       `json:"operators"`
}

// HeadcountAt 返回某时间范围内完整覆盖该区间的在岗人数
func (s *ScheduleSnapshot) HeadcountAt(interval TimeRange) int {
	count := 0
	for _, shift := range s.Shifts {
		if !interval.Start.Before(shift.Period.Start) && !interval.End.After(shift.Period.End) {
			count++
		}
	}
	return count
}

// OperatorByID 根据ID查找操作员
func (s *ScheduleSnapshot) OperatorByID(id uuid.UUID) *Operator {
	for _, op := range s.Operators {
		if op.ID == id {
			return op
		}
	}
	return nil
}

// ShiftsOf 返回某操作员的全部班次
func (s *ScheduleSnapshot) ShiftsOf(operatorID uuid.UUID) []*ScheduledShift {
	var result []*ScheduledShift
	for _, shift := range s.Shifts {
		if shift.OperatorID == operatorID {
			result = append(result, shift)
		}
	}
	return result
}

// TotalCost 返回快照内全部班次的人力成本
func (s *ScheduleSnapshot) TotalCost() float64 {
	var total float64
	for _, shift := range s.Shifts {
		op := s.OperatorByID(shift.OperatorID)
		if op == nil {
			continue
		}
		total += shift.Hours() * op.HourlyCost
	}
	return total
}
