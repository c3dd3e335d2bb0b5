package model

// GoalType 优化目标类型
type GoalType string

const (
	GoalCoverage       GoalType = "coverage_optimization"     // 缺口覆盖
	GoalCost           GoalType = "cost_efficiency"           // 成本效率
	GoalCompliance     GoalType = "compliance_preferences"    // 合规与偏好
	GoalImplementation GoalType = "implementation_simplicity" // 实施简易度
)

// MeasurementMethod 目标度量方式
type MeasurementMethod string

const (
	MeasureGapReduction    MeasurementMethod = "gap_reduction_ratio"    // 已消解缺口严重度占比
	MeasureCostDelta       MeasurementMethod = "cost_delta_ratio"       // 成本变化比例
	MeasureViolationDeduct MeasurementMethod = "violation_deduction"    // 按违规记录线性扣减
	MeasureOperatorInverse MeasurementMethod = "operator_delta_inverse" // 受影响人数与变更幅度的反比
)

// GoalThresholds 目标阈值（得分占满分的比例）
type GoalThresholds struct {
	Minimum     float64 `json:"minimum"`     // 最低改进
	Target      float64 `json:"target"`      // 目标改进
	Exceptional float64 `json:"exceptional"` // 卓越改进
}

// Goal 加权优化目标
type Goal struct {
	Type       GoalType          `json:"type"`
	Weight     int               `json:"weight"` // 0-100，同批目标权重之和必须为100
	Method     MeasurementMethod `json:"measurement_method"`
	Thresholds GoalThresholds    `json:"thresholds"`
}

// DefaultGoals 返回默认目标配置（权重 40/30/20/10）
func DefaultGoals() []Goal {
	return []Goal{
		{Type: GoalCoverage, Weight: 40, Method: MeasureGapReduction,
			Thresholds: GoalThresholds{Minimum: 0.3, Target: 0.7, Exceptional: 0.9}},
		{Type: GoalCost, Weight: 30, Method: MeasureCostDelta,
			Thresholds: GoalThresholds{Minimum: 0.1, Target: 0.5, Exceptional: 0.8}},
		{Type: GoalCompliance, Weight: 20, Method: MeasureViolationDeduct,
			Thresholds: GoalThresholds{Minimum: 0.6, Target: 0.9, Exceptional: 1.0}},
		{Type: GoalImplementation, Weight: 10, Method: MeasureOperatorInverse,
			Thresholds: GoalThresholds{Minimum: 0.4, Target: 0.7, Exceptional: 0.9}},
	}
}
