// Package pattern 提供候选排班变更方案的生成
package pattern

import (
	"sort"

	"github.com/google/uuid"

	"github.com/youpai/youpai/pkg/model"
	"github.com/youpai/youpai/pkg/optimizer/gap"
)

// Strategy 模式策略接口
// 每种模式独立实现，可插拔替换（如后续接入遗传算法生成器）
type Strategy interface {
	// Type 返回模式类型
	Type() model.PatternType

	// Complexity 返回模式复杂度等级 (1-5)，高于配置等级的模式不启用
	Complexity() int

	// Generate 针对一个缺口聚簇生成候选，不负责赋序号
	Generate(cluster *gap.Cluster, snapshot *model.ScheduleSnapshot, scope model.Scope) []*model.Candidate
}

// Library 业务场景模式库：场景决定可用的模式集合
type Library struct {
	patterns map[model.BusinessContext][]model.PatternType
}

// DefaultLibrary 返回内置模式库
func DefaultLibrary() *Library {
	return &Library{
		patterns: map[model.BusinessContext][]model.PatternType{
			// 7×24联络中心：全模式可用
			model.ContextContactCenter: {
				model.PatternShiftExtension,
				model.PatternOvertimeExtension,
				model.PatternSplitShift,
				model.PatternExtraShift,
			},
			// 季节性零售：以增派和延长为主，不做两头班
			model.ContextSeasonalRetail: {
				model.PatternShiftExtension,
				model.PatternExtraShift,
				model.PatternOvertimeExtension,
			},
			model.ContextGeneral: {
				model.PatternShiftExtension,
				model.PatternExtraShift,
			},
		},
	}
}

// Allows 检查某场景下是否允许某模式
func (l *Library) Allows(ctx model.BusinessContext, t model.PatternType) bool {
	allowed, ok := l.patterns[ctx]
	if !ok {
		allowed = l.patterns[model.ContextGeneral]
	}
	for _, p := range allowed {
		if p == t {
			return true
		}
	}
	return false
}

// Config 生成器配置
type Config struct {
	CandidateCap        int                   // 每会话候选上限
	ComplexityLevel     int                   // 模式复杂度等级 1-5
	Context             model.BusinessContext // 业务场景
	CostCoverageBalance float64               // 0=纯覆盖优先，1=强成本归一
	MaxExtensionHours   float64               // 单次班次延长上限
}

// DefaultConfig 默认生成器配置
func DefaultConfig() Config {
	return Config{
		CandidateCap:        200,
		ComplexityLevel:     3,
		Context:             model.ContextGeneral,
		CostCoverageBalance: 0.5,
		MaxExtensionHours:   4,
	}
}

// Result 生成结果
type Result struct {
	Candidates      []*model.Candidate
	UncoveredGapIDs []string // 最终无任何候选消解的缺口，须在会话摘要中标记
	Generated       int      // 预筛选前的候选总数
}

// Generator 候选生成器
type Generator struct {
	cfg        Config
	library    *Library
	strategies []Strategy
	priors     map[model.PatternType]float64 // 来自效果追踪的模式先验
}

// NewGenerator 创建候选生成器
func NewGenerator(cfg Config, library *Library, priors map[model.PatternType]float64) *Generator {
	if library == nil {
		library = DefaultLibrary()
	}
	if cfg.CandidateCap <= 0 {
		cfg.CandidateCap = DefaultConfig().CandidateCap
	}
	if cfg.MaxExtensionHours <= 0 {
		cfg.MaxExtensionHours = DefaultConfig().MaxExtensionHours
	}

	g := &Generator{cfg: cfg, library: library, priors: priors}
	g.strategies = []Strategy{
		&shiftExtension{maxHours: cfg.MaxExtensionHours},
		&overtimeExtension{maxHours: cfg.MaxExtensionHours},
		&splitShift{},
		&extraShift{},
	}
	return g
}

// Strategies 返回当前启用的策略，按先验成功率降序（并列按内置顺序）
func (g *Generator) Strategies() []Strategy {
	var enabled []Strategy
	for _, s := range g.strategies {
		if s.Complexity() > g.cfg.ComplexityLevel {
			continue
		}
		if !g.library.Allows(g.cfg.Context, s.Type()) {
			continue
		}
		enabled = append(enabled, s)
	}
	sort.SliceStable(enabled, func(i, j int) bool {
		return g.priors[enabled[i].Type()] > g.priors[enabled[j].Type()]
	})
	return enabled
}

// GenerateCluster 针对单个聚簇生成候选并赋确定性序号
// nextSeq 为本会话下一个候选序号，返回更新后的值
func (g *Generator) GenerateCluster(cluster *gap.Cluster, snapshot *model.ScheduleSnapshot, scope model.Scope, nextSeq int) ([]*model.Candidate, int) {
	var candidates []*model.Candidate
	for _, s := range g.Strategies() {
		for _, c := range s.Generate(cluster, snapshot, scope) {
			c.Seq = nextSeq
			nextSeq++
			candidates = append(candidates, c)
		}
	}
	return candidates, nextSeq
}

// Finalize 执行候选上限的贪心预筛选并标记未覆盖缺口
// 保留单位成本消解严重度最大的候选；放弃的缺口绝不静默丢弃
func (g *Generator) Finalize(candidates []*model.Candidate, allGaps []*model.CoverageGap) *Result {
	result := &Result{Generated: len(candidates)}

	kept := candidates
	if len(candidates) > g.cfg.CandidateCap {
		ranked := make([]*model.Candidate, len(candidates))
		copy(ranked, candidates)
		sort.SliceStable(ranked, func(i, j int) bool {
			vi, vj := g.greedyValue(ranked[i]), g.greedyValue(ranked[j])
			if vi != vj {
				return vi > vj
			}
			return ranked[i].Seq < ranked[j].Seq
		})
		kept = ranked[:g.cfg.CandidateCap]
		sort.Slice(kept, func(i, j int) bool { return kept[i].Seq < kept[j].Seq })
	}
	result.Candidates = kept

	covered := make(map[string]bool)
	for _, c := range kept {
		for _, id := range c.GapIDs {
			covered[id] = true
		}
	}
	for _, gp := range allGaps {
		if !covered[gp.ID] {
			result.UncoveredGapIDs = append(result.UncoveredGapIDs, gp.ID)
		}
	}

	return result
}

// greedyValue 预筛选的贪心价值：单位成本消解的缺口严重度
// cost_coverage_balance 越大，成本在排序中的权重越高
func (g *Generator) greedyValue(c *model.Candidate) float64 {
	cost := c.DeltaCost
	if cost < 0 {
		cost = 0
	}
	return c.SeverityCovered / (1 + g.cfg.CostCoverageBalance*cost)
}

// sortedOperators 返回范围内按ID升序的操作员，保证生成顺序确定
func sortedOperators(snapshot *model.ScheduleSnapshot, scope model.Scope) []*model.Operator {
	var ops []*model.Operator
	for _, op := range snapshot.Operators {
		if scope.Matches(op.Unit) {
			ops = append(ops, op)
		}
	}
	sort.Slice(ops, func(i, j int) bool {
		return ops[i].ID.String() < ops[j].ID.String()
	})
	return ops
}

// operatorCost 计算某操作员承担一段工时的成本
func operatorCost(op *model.Operator, hours float64, overtime bool) float64 {
	rate := op.HourlyCost
	if overtime {
		rate *= 1.5
	}
	return rate * hours
}

// severityCovered 计算一组操作员对聚簇缺口的严重度消解量
// 每个缺口最多按其缺员人数计入
func severityCovered(cluster *gap.Cluster, headcount int) float64 {
	var total float64
	for _, g := range cluster.Gaps {
		n := headcount
		if n > g.Deficit {
			n = g.Deficit
		}
		total += g.Severity.Weight() * float64(n)
	}
	return total
}

// gapIDs 返回聚簇内全部缺口编号
func gapIDs(cluster *gap.Cluster) []string {
	ids := make([]string, 0, len(cluster.Gaps))
	for _, g := range cluster.Gaps {
		ids = append(ids, g.ID)
	}
	return ids
}

// maxDeficit 返回聚簇内最大缺员人数
func maxDeficit(cluster *gap.Cluster) int {
	max := 0
	for _, g := range cluster.Gaps {
		if g.Deficit > max {
			max = g.Deficit
		}
	}
	return max
}

// hasShiftOnDay 检查操作员当天是否已有班次
func hasShiftOnDay(snapshot *model.ScheduleSnapshot, opID uuid.UUID, interval model.TimeRange) bool {
	y, m, d := interval.Start.Date()
	for _, shift := range snapshot.ShiftsOf(opID) {
		sy, sm, sd := shift.Period.Start.Date()
		if sy == y && sm == m && sd == d {
			return true
		}
	}
	return false
}
