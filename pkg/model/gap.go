package model

import "fmt"

// GapSeverity 覆盖缺口严重程度
type GapSeverity string

const (
	SeverityCritical GapSeverity = "critical"
	SeverityHigh     GapSeverity = "high"
	SeverityMedium   GapSeverity = "medium"
	SeverityLow      GapSeverity = "low"
)

// Weight 返回严重程度的数值权重，用于候选预筛选的贪心排序
func (s GapSeverity) Weight() float64 {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// CoverageGap 覆盖缺口（由缺口分析产出后不可变）
type CoverageGap struct {
	ID        string      `json:"id"` // 会话内确定性编号，如 gap-0001
	Interval  TimeRange   `json:"interval"`
	Required  int         `json:"required"`
	Scheduled int         `json:"scheduled"`
	Deficit   int         `json:"deficit"`
	Severity  GapSeverity `json:"severity"`
	SkillTags []string    `json:"skill_tags,omitempty"`
}

// DeficitHours 返回缺口的人时数
func (g *CoverageGap) DeficitHours() float64 {
	return float64(g.Deficit) * g.Interval.Hours()
}

// GapID 生成确定性缺口编号
func GapID(seq int) string {
	return fmt.Sprintf("gap-%04d", seq)
}

// SeverityForDeficit 根据缺口比例推导严重程度
// 比例 = deficit/required：>40% 为 critical，>15% 为 high，>5% 为 medium，其余为 low
func SeverityForDeficit(deficit, required int) GapSeverity {
	if required <= 0 || deficit <= 0 {
		return SeverityLow
	}
	ratio := float64(deficit) / float64(required)
	switch {
	case ratio > 0.40:
		return SeverityCritical
	case ratio > 0.15:
		return SeverityHigh
	case ratio > 0.05:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
