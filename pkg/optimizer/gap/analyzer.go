// Package gap 提供预测与排班的覆盖缺口分析
package gap

import (
	"sort"

	"github.com/youpai/youpai/pkg/model"
)

// Analyzer 缺口分析器
// 纯函数式：相同输入必然产出相同缺口列表，支持回放与回归测试
type Analyzer struct{}

// NewAnalyzer 创建缺口分析器
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze 逐区间比较预测需求与当前排班，产出有序的覆盖缺口列表
// 缺口 = max(0, required - scheduled)，按区间起点排序并赋确定性编号
func (a *Analyzer) Analyze(forecast []*model.ForecastPoint, snapshot *model.ScheduleSnapshot) []*model.CoverageGap {
	if len(forecast) == 0 {
		return nil
	}

	points := make([]*model.ForecastPoint, len(forecast))
	copy(points, forecast)
	sort.Slice(points, func(i, j int) bool {
		return points[i].Interval.Start.Before(points[j].Interval.Start)
	})

	var gaps []*model.CoverageGap
	seq := 1
	for _, p := range points {
		scheduled := 0
		if snapshot != nil {
			scheduled = snapshot.HeadcountAt(p.Interval)
		}
		deficit := p.Required - scheduled
		if deficit <= 0 {
			continue
		}

		gaps = append(gaps, &model.CoverageGap{
			ID:        model.GapID(seq),
			Interval:  p.Interval,
			Required:  p.Required,
			Scheduled: scheduled,
			Deficit:   deficit,
			Severity:  model.SeverityForDeficit(deficit, p.Required),
			SkillTags: skillsRequiredAt(p.Interval, snapshot),
		})
		seq++
	}

	return gaps
}

// skillsRequiredAt 汇总区间内已排班班次的技能标签，作为缺口的技能要求
func skillsRequiredAt(interval model.TimeRange, snapshot *model.ScheduleSnapshot) []string {
	if snapshot == nil {
		return nil
	}
	seen := make(map[string]bool)
	var skills []string
	for _, shift := range snapshot.Shifts {
		if !shift.Period.Overlaps(interval) {
			continue
		}
		for _, s := range shift.SkillTags {
			if !seen[s] {
				seen[s] = true
				skills = append(skills, s)
			}
		}
	}
	sort.Strings(skills)
	return skills
}

// Cluster 相邻缺口聚簇，用于模式生成的并行单元划分
type Cluster struct {
	Gaps     []*model.CoverageGap
	Interval model.TimeRange // 聚簇覆盖的整体时段
}

// TotalSeverity 返回聚簇内缺口严重度权重之和
func (c *Cluster) TotalSeverity() float64 {
	var total float64
	for _, g := range c.Gaps {
		total += g.Severity.Weight() * float64(g.Deficit)
	}
	return total
}

// ClusterGaps 将时间上相邻（间隔不大于区间长度）的缺口聚为一簇
// 输入已按区间起点有序，输出聚簇顺序与输入一致
func ClusterGaps(gaps []*model.CoverageGap) []*Cluster {
	if len(gaps) == 0 {
		return nil
	}

	var clusters []*Cluster
	current := &Cluster{
		Gaps:     []*model.CoverageGap{gaps[0]},
		Interval: gaps[0].Interval,
	}

	for _, g := range gaps[1:] {
		gapLen := g.Interval.Duration()
		if !g.Interval.Start.After(current.Interval.End.Add(gapLen)) {
			current.Gaps = append(current.Gaps, g)
			if g.Interval.End.After(current.Interval.End) {
				current.Interval.End = g.Interval.End
			}
			continue
		}
		clusters = append(clusters, current)
		current = &Cluster{Gaps: []*model.CoverageGap{g}, Interval: g.Interval}
	}
	clusters = append(clusters, current)

	return clusters
}

// SeveritySummary 按严重程度统计缺口数量
func SeveritySummary(gaps []*model.CoverageGap) map[model.GapSeverity]int {
	summary := make(map[model.GapSeverity]int)
	for _, g := range gaps {
		summary[g.Severity]++
	}
	return summary
}
