// Package catalog 提供约束目录与目标目录的加载和校验
package catalog

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/youpai/youpai/pkg/errors"
	"github.com/youpai/youpai/pkg/model"
)

// ConstraintCatalog 约束目录（对优化引擎只读）
type ConstraintCatalog struct {
	constraints []*model.Constraint
}

// NewConstraintCatalog 创建约束目录，加载时校验每条定义
func NewConstraintCatalog(constraints []*model.Constraint) (*ConstraintCatalog, error) {
	for _, c := range constraints {
		if err := validateConstraint(c); err != nil {
			return nil, err
		}
	}
	sorted := make([]*model.Constraint, len(constraints))
	copy(sorted, constraints)

	// 评估顺序固定：critical 在前，同优先级按ID升序保证确定性
	sort.Slice(sorted, func(i, j int) bool {
		oi, oj := sorted[i].Priority.Order(), sorted[j].Priority.Order()
		if oi != oj {
			return oi < oj
		}
		return sorted[i].ID.String() < sorted[j].ID.String()
	})

	return &ConstraintCatalog{constraints: sorted}, nil
}

// validateConstraint 校验单条约束定义
func validateConstraint(c *model.Constraint) error {
	if c.ID == uuid.Nil {
		return errors.New(errors.CodeConstraintInvalid, "约束缺少ID")
	}
	if c.Name == "" {
		return errors.New(errors.CodeConstraintInvalid, "约束缺少名称").WithField("id", c.ID.String())
	}
	switch c.Type {
	case model.ConstraintLaborLaw, model.ConstraintUnionAgreement,
		model.ConstraintBusinessRule, model.ConstraintPreference:
	default:
		return errors.New(errors.CodeConstraintInvalid, "未知约束类型").
			WithField("id", c.ID.String()).WithField("type", string(c.Type))
	}
	if c.Priority.Order() > 3 {
		return errors.New(errors.CodeConstraintInvalid, "未知约束优先级").
			WithField("id", c.ID.String()).WithField("priority", string(c.Priority))
	}
	switch c.Policy {
	case model.PolicyReject, model.PolicyWarn, model.PolicyAdjust, model.PolicyIgnore:
	default:
		return errors.New(errors.CodeConstraintInvalid, "未知违反处理策略").
			WithField("id", c.ID.String()).WithField("policy", string(c.Policy))
	}
	if c.Predicate.Kind == "" {
		return errors.New(errors.CodeConstraintInvalid, "约束缺少谓词").WithField("id", c.ID.String())
	}
	if c.EffectiveAt != nil && c.ExpiresAt != nil && !c.ExpiresAt.After(*c.EffectiveAt) {
		return errors.New(errors.CodeConstraintInvalid, "约束失效时间早于生效时间").WithField("id", c.ID.String())
	}
	return nil
}

// ActiveAt 返回在某时间点生效的全部约束，保持评估顺序
func (cc *ConstraintCatalog) ActiveAt(t time.Time) []*model.Constraint {
	var result []*model.Constraint
	for _, c := range cc.constraints {
		if c.ActiveAt(t) {
			result = append(result, c)
		}
	}
	return result
}

// All 返回全部约束
func (cc *ConstraintCatalog) All() []*model.Constraint {
	result := make([]*model.Constraint, len(cc.constraints))
	copy(result, cc.constraints)
	return result
}

// Count 返回约束数量
func (cc *ConstraintCatalog) Count() int {
	return len(cc.constraints)
}

// ByID 根据ID查找约束
func (cc *ConstraintCatalog) ByID(id uuid.UUID) *model.Constraint {
	for _, c := range cc.constraints {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// DefaultConstraints 返回内置约束集（劳动法规 + 常见业务规则）
func DefaultConstraints() []*model.Constraint {
	return []*model.Constraint{
		{
			ID:        uuid.MustParse("00000000-0000-0000-0000-000000000001"),
			Name:      "班次间11小时休息",
			Type:      model.ConstraintLaborLaw,
			Priority:  model.PriorityCritical,
			Mandatory: true,
			Policy:    model.PolicyReject,
			Predicate: model.Predicate{
				Kind:   model.PredicateMinRestHours,
				Params: model.PredicateParams{Hours: 11},
			},
			Description: "任意两个班次之间必须保证至少11小时休息",
		},
		{
			ID:        uuid.MustParse("00000000-0000-0000-0000-000000000002"),
			Name:      "每日最大工时",
			Type:      model.ConstraintLaborLaw,
			Priority:  model.PriorityCritical,
			Mandatory: true,
			Policy:    model.PolicyReject,
			Predicate: model.Predicate{
				Kind:   model.PredicateMaxHoursPerDay,
				Params: model.PredicateParams{Hours: 10},
			},
			Description: "单个操作员每日工时不得超过10小时",
		},
		{
			ID:        uuid.MustParse("00000000-0000-0000-0000-000000000003"),
			Name:      "班次不得重叠",
			Type:      model.ConstraintBusinessRule,
			Priority:  model.PriorityCritical,
			Mandatory: true,
			Policy:    model.PolicyReject,
			Predicate: model.Predicate{
				Kind: model.PredicateNoOverlap,
			},
			Description: "同一操作员的班次时间不得互相重叠",
		},
		{
			ID:        uuid.MustParse("00000000-0000-0000-0000-000000000004"),
			Name:      "每周最大加班时数",
			Type:      model.ConstraintUnionAgreement,
			Priority:  model.PriorityHigh,
			Mandatory: false,
			Policy:    model.PolicyWarn,
			Predicate: model.Predicate{
				Kind:   model.PredicateMaxOvertimeHours,
				Params: model.PredicateParams{Hours: 8},
			},
			Description: "每周加班时数超过8小时需提示",
		},
		{
			ID:        uuid.MustParse("00000000-0000-0000-0000-000000000005"),
			Name:      "缺口技能匹配",
			Type:      model.ConstraintBusinessRule,
			Priority:  model.PriorityHigh,
			Mandatory: false,
			Policy:    model.PolicyAdjust,
			Predicate: model.Predicate{
				Kind: model.PredicateSkillRequired,
			},
			Description: "变更指派的操作员应具备缺口要求的技能",
		},
		{
			ID:        uuid.MustParse("00000000-0000-0000-0000-000000000006"),
			Name:      "偏好休息时段",
			Type:      model.ConstraintPreference,
			Priority:  model.PriorityLow,
			Mandatory: false,
			Policy:    model.PolicyWarn,
			Predicate: model.Predicate{
				Kind: model.PredicatePreferredTimeOff,
			},
			Description: "尽量避开操作员的偏好休息时段",
		},
	}
}
