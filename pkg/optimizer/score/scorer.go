// Package score 按加权目标计算候选得分
package score

import (
	"math"

	"github.com/youpai/youpai/pkg/catalog"
	"github.com/youpai/youpai/pkg/model"
)

// 非阻断性违规的合规扣减比例（占合规满分）
const (
	warnDeduction   = 0.15
	adjustDeduction = 0.25
)

// Scorer 多准则评分器，全部子得分确定性计算
type Scorer struct {
	goals *catalog.GoalCatalog
}

// NewScorer 创建评分器
func NewScorer(goals *catalog.GoalCatalog) *Scorer {
	return &Scorer{goals: goals}
}

// Score 计算单个候选的评分明细
// totalSeverity 为本次会话全部缺口的严重度权重之和，baselineCost 为当前排班总成本
func (s *Scorer) Score(c *model.Candidate, validation *model.ValidationResult, totalSeverity, baselineCost float64) model.ScoreBreakdown {
	breakdown := model.ScoreBreakdown{
		Coverage:       s.coverageScore(c, totalSeverity),
		Cost:           s.costScore(c, baselineCost),
		Compliance:     s.complianceScore(validation),
		Implementation: s.implementationScore(c),
	}
	breakdown.Total = clamp(breakdown.Coverage+breakdown.Cost+breakdown.Compliance+breakdown.Implementation, 0, 100)
	return breakdown
}

// coverageScore 按已消解缺口严重度占比计分
func (s *Scorer) coverageScore(c *model.Candidate, totalSeverity float64) float64 {
	max := s.goals.Weight(model.GoalCoverage)
	if totalSeverity <= 0 {
		return 0
	}
	ratio := c.SeverityCovered / totalSeverity
	return clamp(ratio*max, 0, max)
}

// costScore 按成本增量相对基线的比例计分，增量越小得分越高
// 增量达到基线的 costCeilingRatio 时得0分
func (s *Scorer) costScore(c *model.Candidate, baselineCost float64) float64 {
	const costCeilingRatio = 0.20
	max := s.goals.Weight(model.GoalCost)
	if baselineCost <= 0 {
		return 0
	}
	if c.DeltaCost <= 0 {
		return max
	}
	ratio := c.DeltaCost / (baselineCost * costCeilingRatio)
	return clamp((1-ratio)*max, 0, max)
}

// complianceScore 从满分起按非阻断性违规线性扣减
// warn 扣 15%，adjust 扣 25%，ignore 不扣，下限为0
func (s *Scorer) complianceScore(validation *model.ValidationResult) float64 {
	max := s.goals.Weight(model.GoalCompliance)
	if validation == nil {
		return max
	}
	score := max
	for _, v := range validation.Verdicts {
		if v.Verdict == model.VerdictPassed || v.Policy == model.PolicyIgnore {
			continue
		}
		switch v.Policy {
		case model.PolicyWarn:
			score -= max * warnDeduction
		case model.PolicyAdjust:
			score -= max * adjustDeduction
		}
	}
	return clamp(score, 0, max)
}

// implementationScore 按受影响人数与变更幅度的反比计分
// 人越少、改动越小越容易落地
func (s *Scorer) implementationScore(c *model.Candidate) float64 {
	max := s.goals.Weight(model.GoalImplementation)
	operators := float64(len(c.Operators))
	hours := math.Abs(c.DeltaHours())
	complexity := 1 + (operators-1)*0.5 + hours*0.1
	return clamp(max/complexity, 0, max)
}

// RiskTier 按合规与简易度子得分分级实施风险
func (s *Scorer) RiskTier(breakdown model.ScoreBreakdown) model.RiskTier {
	complianceMax := s.goals.Weight(model.GoalCompliance)
	implementMax := s.goals.Weight(model.GoalImplementation)
	if complianceMax <= 0 || implementMax <= 0 {
		return model.RiskMedium
	}
	complianceRatio := breakdown.Compliance / complianceMax
	implementRatio := breakdown.Implementation / implementMax

	switch {
	case complianceRatio < 0.60:
		return model.RiskHigh
	case complianceRatio >= 0.90 && implementRatio >= 0.70:
		return model.RiskLow
	default:
		return model.RiskMedium
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
