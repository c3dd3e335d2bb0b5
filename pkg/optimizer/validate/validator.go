// Package validate 提供候选方案的约束验证
package validate

import (
	"time"

	"github.com/youpai/youpai/pkg/catalog"
	"github.com/youpai/youpai/pkg/logger"
	"github.com/youpai/youpai/pkg/model"
)

// Validator 约束验证器
type Validator struct {
	catalog *catalog.ConstraintCatalog
	logger  *logger.OptimizerLogger
}

// NewValidator 创建约束验证器
func NewValidator(cat *catalog.ConstraintCatalog) *Validator {
	return &Validator{
		catalog: cat,
		logger:  logger.NewOptimizerLogger(),
	}
}

// Validate 对单个候选评估全部命中的活跃约束
// 评估顺序 critical 优先；critical+mandatory+reject 失败即短路，
// 候选标记 major_violations 并排除出评分。谓词无法评估时按失败保守处理。
func (v *Validator) Validate(c *model.Candidate, snapshot *model.ScheduleSnapshot, gaps map[string]*model.CoverageGap, at time.Time) *model.ValidationResult {
	result := &model.ValidationResult{
		CandidateSeq: c.Seq,
		Overall:      model.ResultFullyCompliant,
	}

	view := buildScheduleView(c, snapshot)

	for _, constraint := range v.catalog.ActiveAt(at) {
		if !constraintApplies(constraint, c) {
			continue
		}

		passed, explanation, err := evaluatePredicate(constraint, c, view, snapshot, gaps)
		if err != nil {
			// 谓词无法评估：按重大违规保守处理，会话继续
			v.logger.ConstraintViolation(constraint.Name, err.Error())
			result.Verdicts = append(result.Verdicts, model.ConstraintVerdict{
				ConstraintID:   constraint.ID,
				ConstraintName: constraint.Name,
				Priority:       constraint.Priority,
				Policy:         constraint.Policy,
				Verdict:        model.VerdictFailed,
				Explanation:    "约束无法评估，按违规处理: " + err.Error(),
			})
			result.Overall = model.ResultMajorViolations
			result.Excluded = true
			return result
		}

		if passed {
			result.Verdicts = append(result.Verdicts, model.ConstraintVerdict{
				ConstraintID:   constraint.ID,
				ConstraintName: constraint.Name,
				Priority:       constraint.Priority,
				Policy:         constraint.Policy,
				Verdict:        model.VerdictPassed,
			})
			continue
		}

		verdict := model.ConstraintVerdict{
			ConstraintID:   constraint.ID,
			ConstraintName: constraint.Name,
			Priority:       constraint.Priority,
			Policy:         constraint.Policy,
			Verdict:        verdictFor(constraint.Policy),
			Explanation:    explanation,
		}
		result.Verdicts = append(result.Verdicts, verdict)
		v.logger.ConstraintViolation(constraint.Name, explanation)

		if constraint.IsBlocking() {
			result.Overall = model.ResultMajorViolations
			result.Excluded = true
			return result // 短路后续评估
		}
		if result.Overall == model.ResultFullyCompliant {
			result.Overall = model.ResultMinorIssues
		}
	}

	return result
}

// ValidateAll 批量验证候选，顺序与输入一致
func (v *Validator) ValidateAll(candidates []*model.Candidate, snapshot *model.ScheduleSnapshot, gaps []*model.CoverageGap, at time.Time) []*model.ValidationResult {
	gapIndex := make(map[string]*model.CoverageGap, len(gaps))
	for _, g := range gaps {
		gapIndex[g.ID] = g
	}

	results := make([]*model.ValidationResult, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, v.Validate(c, snapshot, gapIndex, at))
	}
	return results
}

// verdictFor 按违反策略映射结论：warn/ignore 记警告，其余记失败
func verdictFor(policy model.ViolationPolicy) model.Verdict {
	switch policy {
	case model.PolicyWarn, model.PolicyIgnore:
		return model.VerdictWarning
	default:
		return model.VerdictFailed
	}
}

// constraintApplies 检查约束范围是否命中候选的任一变更
func constraintApplies(constraint *model.Constraint, c *model.Candidate) bool {
	for _, ch := range c.Changes {
		period := ch.ResultingPeriod()
		if period.IsZero() && ch.From != nil {
			period = *ch.From
		}
		if constraint.AppliesTo(ch.OperatorID, ch.Unit, period) {
			return true
		}
	}
	return false
}
