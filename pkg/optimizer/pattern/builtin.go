package pattern

import (
	"time"

	"github.com/google/uuid"

	"github.com/youpai/youpai/pkg/model"
	"github.com/youpai/youpai/pkg/optimizer/gap"
)

// 班次与缺口之间允许的最大衔接间隔
const adjacencyTolerance = 30 * time.Minute

// shiftExtension 延长既有班次以覆盖紧随其后的缺口
// 仅处理标准工时内的延长，超出部分由 overtimeExtension 负责
type shiftExtension struct {
	maxHours float64
}

func (s *shiftExtension) Type() model.PatternType { return model.PatternShiftExtension }
func (s *shiftExtension) Complexity() int         { return 1 }

func (s *shiftExtension) Generate(cluster *gap.Cluster, snapshot *model.ScheduleSnapshot, scope model.Scope) []*model.Candidate {
	return extendShifts(cluster, snapshot, scope, s.maxHours, false)
}

// overtimeExtension 以加班形式延长已满标准工时的班次
type overtimeExtension struct {
	maxHours float64
}

func (s *overtimeExtension) Type() model.PatternType { return model.PatternOvertimeExtension }
func (s *overtimeExtension) Complexity() int         { return 2 }

func (s *overtimeExtension) Generate(cluster *gap.Cluster, snapshot *model.ScheduleSnapshot, scope model.Scope) []*model.Candidate {
	return extendShifts(cluster, snapshot, scope, s.maxHours, true)
}

// extendShifts 延长衔接缺口的班次
// overtime=false 只延长不足8小时的班次，overtime=true 只延长已满8小时的班次
func extendShifts(cluster *gap.Cluster, snapshot *model.ScheduleSnapshot, scope model.Scope, maxHours float64, overtime bool) []*model.Candidate {
	interval := cluster.Interval
	pattern := model.PatternShiftExtension
	if overtime {
		pattern = model.PatternOvertimeExtension
	}

	type extension struct {
		op     *model.Operator
		change model.ScheduleChange
		cost   float64
	}
	var extensions []extension

	for _, op := range sortedOperators(snapshot, scope) {
		for _, shift := range snapshot.ShiftsOf(op.ID) {
			if !adjacentBefore(shift.Period.End, interval.Start) {
				continue
			}
			isOvertimeShift := shift.Hours() >= 8
			if isOvertimeShift != overtime {
				continue
			}

			newEnd := interval.End
			if limit := shift.Period.End.Add(time.Duration(maxHours * float64(time.Hour))); newEnd.After(limit) {
				newEnd = limit
			}
			if !newEnd.After(shift.Period.End) {
				continue
			}
			extended := model.TimeRange{Start: shift.Period.Start, End: newEnd}
			if !op.AvailableDuring(model.TimeRange{Start: shift.Period.End, End: newEnd}) {
				continue
			}

			from := shift.Period
			shiftID := shift.ID
			extensions = append(extensions, extension{
				op: op,
				change: model.ScheduleChange{
					Op:         model.ChangeModify,
					OperatorID: op.ID,
					Unit:       op.Unit,
					ShiftID:    &shiftID,
					From:       &from,
					To:         &extended,
					SkillTags:  op.SkillTags,
					Overtime:   overtime,
				},
				cost: operatorCost(op, newEnd.Sub(shift.Period.End).Hours(), overtime),
			})
			break // 每个操作员只延长一个班次
		}
	}

	var candidates []*model.Candidate
	needed := maxDeficit(cluster)

	// 单操作员候选
	for _, ext := range extensions {
		candidates = append(candidates, &model.Candidate{
			Pattern:         pattern,
			Changes:         []model.ScheduleChange{ext.change},
			Operators:       []uuid.UUID{ext.op.ID},
			GapIDs:          gapIDs(cluster),
			DeltaCost:       ext.cost,
			SeverityCovered: severityCovered(cluster, 1),
		})
	}

	// 缺员大于1时，再给出合并候选（前 needed 个操作员同时延长）
	if needed > 1 && len(extensions) > 1 {
		n := needed
		if n > len(extensions) {
			n = len(extensions)
		}
		combined := &model.Candidate{
			Pattern: pattern,
			GapIDs:  gapIDs(cluster),
		}
		for _, ext := range extensions[:n] {
			combined.Changes = append(combined.Changes, ext.change)
			combined.Operators = append(combined.Operators, ext.op.ID)
			combined.DeltaCost += ext.cost
		}
		combined.SeverityCovered = severityCovered(cluster, n)
		candidates = append(candidates, combined)
	}

	return candidates
}

// splitShift 两头班：当天已有早段班次的操作员再排一段覆盖缺口
type splitShift struct{}

func (s *splitShift) Type() model.PatternType { return model.PatternSplitShift }
func (s *splitShift) Complexity() int         { return 4 }

func (s *splitShift) Generate(cluster *gap.Cluster, snapshot *model.ScheduleSnapshot, scope model.Scope) []*model.Candidate {
	interval := cluster.Interval
	var candidates []*model.Candidate

	for _, op := range sortedOperators(snapshot, scope) {
		if !op.AvailableDuring(interval) {
			continue
		}
		if !hasEarlierShiftWithBreak(snapshot, op, interval) {
			continue
		}

		segment := interval
		candidates = append(candidates, &model.Candidate{
			Pattern: model.PatternSplitShift,
			Changes: []model.ScheduleChange{{
				Op:         model.ChangeAdd,
				OperatorID: op.ID,
				Unit:       op.Unit,
				To:         &segment,
				SkillTags:  op.SkillTags,
			}},
			Operators:       []uuid.UUID{op.ID},
			GapIDs:          gapIDs(cluster),
			DeltaCost:       operatorCost(op, segment.Hours(), false),
			SeverityCovered: severityCovered(cluster, 1),
		})
	}

	return candidates
}

// hasEarlierShiftWithBreak 检查操作员当天是否有结束于缺口前至少2小时的班次
func hasEarlierShiftWithBreak(snapshot *model.ScheduleSnapshot, op *model.Operator, interval model.TimeRange) bool {
	y, m, d := interval.Start.Date()
	for _, shift := range snapshot.ShiftsOf(op.ID) {
		sy, sm, sd := shift.Period.Start.Date()
		if sy != y || sm != m || sd != d {
			continue
		}
		if !shift.Period.End.After(interval.Start.Add(-2 * time.Hour)) {
			return true
		}
	}
	return false
}

// extraShift 增派班次：当天无班且在缺口时段可用的操作员新排一班
type extraShift struct{}

func (s *extraShift) Type() model.PatternType { return model.PatternExtraShift }
func (s *extraShift) Complexity() int         { return 1 }

func (s *extraShift) Generate(cluster *gap.Cluster, snapshot *model.ScheduleSnapshot, scope model.Scope) []*model.Candidate {
	interval := cluster.Interval
	needed := maxDeficit(cluster)

	type assignable struct {
		op     *model.Operator
		change model.ScheduleChange
		cost   float64
	}
	var pool []assignable

	for _, op := range sortedOperators(snapshot, scope) {
		if hasShiftOnDay(snapshot, op.ID, interval) {
			continue
		}
		if !op.AvailableDuring(interval) {
			continue
		}
		segment := interval
		pool = append(pool, assignable{
			op: op,
			change: model.ScheduleChange{
				Op:         model.ChangeAdd,
				OperatorID: op.ID,
				Unit:       op.Unit,
				To:         &segment,
				SkillTags:  op.SkillTags,
			},
			cost: operatorCost(op, segment.Hours(), false),
		})
	}

	var candidates []*model.Candidate
	for _, a := range pool {
		candidates = append(candidates, &model.Candidate{
			Pattern:         model.PatternExtraShift,
			Changes:         []model.ScheduleChange{a.change},
			Operators:       []uuid.UUID{a.op.ID},
			GapIDs:          gapIDs(cluster),
			DeltaCost:       a.cost,
			SeverityCovered: severityCovered(cluster, 1),
		})
	}

	if needed > 1 && len(pool) > 1 {
		n := needed
		if n > len(pool) {
			n = len(pool)
		}
		combined := &model.Candidate{
			Pattern: model.PatternExtraShift,
			GapIDs:  gapIDs(cluster),
		}
		for _, a := range pool[:n] {
			combined.Changes = append(combined.Changes, a.change)
			combined.Operators = append(combined.Operators, a.op.ID)
			combined.DeltaCost += a.cost
		}
		combined.SeverityCovered = severityCovered(cluster, n)
		candidates = append(candidates, combined)
	}

	return candidates
}

// adjacentBefore 检查班次结束时间是否衔接缺口起点
func adjacentBefore(end, gapStart time.Time) bool {
	if end.After(gapStart) {
		return false
	}
	return gapStart.Sub(end) <= adjacencyTolerance
}
