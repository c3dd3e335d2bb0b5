package validate

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/youpai/youpai/pkg/model"
)

// scheduleView 应用候选变更后的操作员时段视图
type scheduleView map[uuid.UUID][]model.TimeRange

// buildScheduleView 合并既有班次与候选变更，得到每个受影响操作员的结果时段
func buildScheduleView(c *model.Candidate, snapshot *model.ScheduleSnapshot) scheduleView {
	view := make(scheduleView)

	modified := make(map[uuid.UUID]bool)
	removed := make(map[uuid.UUID]bool)
	for _, ch := range c.Changes {
		if ch.ShiftID != nil {
			switch ch.Op {
			case model.ChangeModify:
				modified[*ch.ShiftID] = true
			case model.ChangeRemove:
				removed[*ch.ShiftID] = true
			}
		}
	}

	for _, op := range c.Operators {
		for _, shift := range snapshot.ShiftsOf(op) {
			if modified[shift.ID] || removed[shift.ID] {
				continue
			}
			view[op] = append(view[op], shift.Period)
		}
	}
	for _, ch := range c.Changes {
		if ch.Op == model.ChangeRemove || ch.To == nil {
			continue
		}
		view[ch.OperatorID] = append(view[ch.OperatorID], *ch.To)
	}
	for op := range view {
		periods := view[op]
		sort.Slice(periods, func(i, j int) bool {
			return periods[i].Start.Before(periods[j].Start)
		})
	}
	return view
}

// evaluatePredicate 评估单个约束谓词
// 返回 (是否通过, 违反说明, 评估错误)；错误由调用方按违规保守处理
func evaluatePredicate(constraint *model.Constraint, c *model.Candidate, view scheduleView, snapshot *model.ScheduleSnapshot, gaps map[string]*model.CoverageGap) (bool, string, error) {
	p := constraint.Predicate
	switch p.Kind {
	case model.PredicateMinRestHours:
		return evalMinRest(view, snapshot, p.Params.Hours)
	case model.PredicateMaxHoursPerDay:
		return evalMaxHoursPerDay(view, snapshot, p.Params.Hours)
	case model.PredicateMaxHoursPerWeek:
		return evalMaxHoursPerWeek(view, snapshot, p.Params.Hours)
	case model.PredicateMaxConsecutiveDays:
		return evalMaxConsecutiveDays(view, p.Params.Days)
	case model.PredicateNoOverlap:
		return evalNoOverlap(view, snapshot)
	case model.PredicateSkillRequired:
		return evalSkillRequired(c, snapshot, gaps)
	case model.PredicateMaxOvertimeHours:
		return evalMaxOvertime(c, p.Params.Hours)
	case model.PredicateTimeWindow:
		return evalTimeWindow(c, p.Params)
	case model.PredicateMaxCostIncrease:
		return evalMaxCostIncrease(c, snapshot, p.Params.Percent)
	case model.PredicatePreferredTimeOff:
		return evalPreferredTimeOff(c, snapshot, p.Params.TimeOff)
	default:
		return false, "", fmt.Errorf("未知的谓词类型: %s", p.Kind)
	}
}

// evalMinRest 检查任意相邻两段工作之间的休息时间不低于下限
func evalMinRest(view scheduleView, snapshot *model.ScheduleSnapshot, hours float64) (bool, string, error) {
	if hours <= 0 {
		return false, "", fmt.Errorf("min_rest_hours 缺少有效的 hours 参数")
	}
	for op, periods := range view {
		for i := 1; i < len(periods); i++ {
			rest := periods[i].Start.Sub(periods[i-1].End).Hours()
			if rest < 0 {
				// 重叠交由 no_overlap 裁决
				continue
			}
			if rest < hours {
				return false, fmt.Sprintf("操作员 %s 班次间休息仅 %.1f 小时，低于要求的 %.0f 小时",
					operatorName(snapshot, op), rest, hours), nil
			}
		}
	}
	return true, "", nil
}

// evalMaxHoursPerDay 检查每个自然日的总工时
func evalMaxHoursPerDay(view scheduleView, snapshot *model.ScheduleSnapshot, hours float64) (bool, string, error) {
	if hours <= 0 {
		return false, "", fmt.Errorf("max_hours_per_day 缺少有效的 hours 参数")
	}
	for op, periods := range view {
		daily := make(map[string]float64)
		for _, p := range periods {
			daily[dayKey(p.Start)] += p.Hours()
		}
		for day, total := range daily {
			if total > hours {
				return false, fmt.Sprintf("操作员 %s 在 %s 总工时 %.1f 小时，超过上限 %.0f 小时",
					operatorName(snapshot, op), day, total, hours), nil
			}
		}
	}
	return true, "", nil
}

// evalMaxHoursPerWeek 检查每个 ISO 周的总工时
func evalMaxHoursPerWeek(view scheduleView, snapshot *model.ScheduleSnapshot, hours float64) (bool, string, error) {
	if hours <= 0 {
		return false, "", fmt.Errorf("max_hours_per_week 缺少有效的 hours 参数")
	}
	for op, periods := range view {
		weekly := make(map[string]float64)
		for _, p := range periods {
			weekly[weekKey(p.Start)] += p.Hours()
		}
		limit := hours
		if o := snapshot.OperatorByID(op); o != nil && o.MaxWeekHours > 0 && o.MaxWeekHours < limit {
			limit = o.MaxWeekHours
		}
		for week, total := range weekly {
			if total > limit {
				return false, fmt.Sprintf("操作员 %s 在 %s 周总工时 %.1f 小时，超过上限 %.0f 小时",
					operatorName(snapshot, op), week, total, limit), nil
			}
		}
	}
	return true, "", nil
}

// evalMaxConsecutiveDays 检查连续工作天数
func evalMaxConsecutiveDays(view scheduleView, days int) (bool, string, error) {
	if days <= 0 {
		return false, "", fmt.Errorf("max_consecutive_days 缺少有效的 days 参数")
	}
	for _, periods := range view {
		seen := make(map[string]bool)
		var dates []time.Time
		for _, p := range periods {
			key := dayKey(p.Start)
			if !seen[key] {
				seen[key] = true
				dates = append(dates, truncateDay(p.Start))
			}
		}
		sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
		run := 1
		for i := 1; i < len(dates); i++ {
			if dates[i].Sub(dates[i-1]) == 24*time.Hour {
				run++
				if run > days {
					return false, fmt.Sprintf("连续工作天数达到 %d 天，超过上限 %d 天", run, days), nil
				}
			} else {
				run = 1
			}
		}
	}
	return true, "", nil
}

// evalNoOverlap 检查同一操作员的结果时段两两不重叠
func evalNoOverlap(view scheduleView, snapshot *model.ScheduleSnapshot) (bool, string, error) {
	for op, periods := range view {
		for i := 1; i < len(periods); i++ {
			if periods[i-1].Overlaps(periods[i]) {
				return false, fmt.Sprintf("操作员 %s 的班次时段重叠: %s 与 %s",
					operatorName(snapshot, op),
					periods[i-1].Start.Format(time.RFC3339),
					periods[i].Start.Format(time.RFC3339)), nil
			}
		}
	}
	return true, "", nil
}

// evalSkillRequired 检查每条变更的操作员具备其消解缺口要求的技能
func evalSkillRequired(c *model.Candidate, snapshot *model.ScheduleSnapshot, gaps map[string]*model.CoverageGap) (bool, string, error) {
	for _, gapID := range c.GapIDs {
		gap, ok := gaps[gapID]
		if !ok {
			return false, "", fmt.Errorf("候选引用的缺口 %s 不存在", gapID)
		}
		if len(gap.SkillTags) == 0 {
			continue
		}
		for _, ch := range c.Changes {
			period := ch.ResultingPeriod()
			if period.IsZero() || !period.Overlaps(gap.Interval) {
				continue
			}
			op := snapshot.OperatorByID(ch.OperatorID)
			if op == nil {
				return false, "", fmt.Errorf("候选引用的操作员 %s 不存在", ch.OperatorID)
			}
			for _, skill := range gap.SkillTags {
				if !op.HasSkill(skill) {
					return false, fmt.Sprintf("操作员 %s 缺少缺口 %s 要求的技能 %s",
						op.Name, gapID, skill), nil
				}
			}
		}
	}
	return true, "", nil
}

// evalMaxOvertime 检查候选新增的加班时数
func evalMaxOvertime(c *model.Candidate, hours float64) (bool, string, error) {
	if hours <= 0 {
		return false, "", fmt.Errorf("max_overtime_hours 缺少有效的 hours 参数")
	}
	perOperator := make(map[uuid.UUID]float64)
	for _, ch := range c.Changes {
		if !ch.Overtime {
			continue
		}
		perOperator[ch.OperatorID] += ch.AddedHours()
	}
	for op, total := range perOperator {
		if total > hours {
			return false, fmt.Sprintf("操作员 %s 新增加班 %.1f 小时，超过上限 %.0f 小时",
				op, total, hours), nil
		}
	}
	return true, "", nil
}

// evalTimeWindow 检查全部变更落在允许的时间窗口内
func evalTimeWindow(c *model.Candidate, params model.PredicateParams) (bool, string, error) {
	if params.Window == nil && (params.DailyStart == "" || params.DailyEnd == "") {
		return false, "", fmt.Errorf("time_window 缺少 window 或 daily_start/daily_end 参数")
	}
	for _, ch := range c.Changes {
		period := ch.ResultingPeriod()
		if period.IsZero() {
			continue
		}
		if params.Window != nil {
			if period.Start.Before(params.Window.Start) || period.End.After(params.Window.End) {
				return false, fmt.Sprintf("变更时段 %s-%s 超出允许窗口",
					period.Start.Format("15:04"), period.End.Format("15:04")), nil
			}
			continue
		}
		ok, err := withinDailyWindow(period, params.DailyStart, params.DailyEnd)
		if err != nil {
			return false, "", err
		}
		if !ok {
			return false, fmt.Sprintf("变更时段 %s-%s 超出每日窗口 %s-%s",
				period.Start.Format("15:04"), period.End.Format("15:04"),
				params.DailyStart, params.DailyEnd), nil
		}
	}
	return true, "", nil
}

// evalMaxCostIncrease 检查成本增幅不超过基线的指定百分比
func evalMaxCostIncrease(c *model.Candidate, snapshot *model.ScheduleSnapshot, percent float64) (bool, string, error) {
	if percent <= 0 {
		return false, "", fmt.Errorf("max_cost_increase_pct 缺少有效的 percent 参数")
	}
	baseline := snapshot.TotalCost()
	if baseline <= 0 {
		return false, "", fmt.Errorf("基线成本为零，无法计算增幅")
	}
	increase := c.DeltaCost / baseline * 100
	if increase > percent {
		return false, fmt.Sprintf("成本增幅 %.1f%% 超过上限 %.0f%%", increase, percent), nil
	}
	return true, "", nil
}

// evalPreferredTimeOff 检查变更是否侵占偏好休息时段
func evalPreferredTimeOff(c *model.Candidate, snapshot *model.ScheduleSnapshot, timeOff []model.TimeRange) (bool, string, error) {
	if len(timeOff) == 0 {
		return true, "", nil
	}
	for _, ch := range c.Changes {
		period := ch.ResultingPeriod()
		if period.IsZero() {
			continue
		}
		for _, off := range timeOff {
			if period.Overlaps(off) {
				return false, fmt.Sprintf("操作员 %s 的变更侵占了偏好休息时段 %s",
					operatorName(snapshot, ch.OperatorID), off.Start.Format(time.RFC3339)), nil
			}
		}
	}
	return true, "", nil
}

// withinDailyWindow 检查时段落在每日 HH:MM 窗口内（不支持跨午夜窗口）
func withinDailyWindow(period model.TimeRange, startHM, endHM string) (bool, error) {
	start, err := time.Parse("15:04", startHM)
	if err != nil {
		return false, fmt.Errorf("daily_start 格式无效: %s", startHM)
	}
	end, err := time.Parse("15:04", endHM)
	if err != nil {
		return false, fmt.Errorf("daily_end 格式无效: %s", endHM)
	}
	if dayKey(period.Start) != dayKey(period.End) && !isMidnight(period.End) {
		return false, nil
	}
	pStart := minutesOfDay(period.Start)
	pEnd := minutesOfDay(period.End)
	if pEnd == 0 {
		pEnd = 24 * 60
	}
	wStart := start.Hour()*60 + start.Minute()
	wEnd := end.Hour()*60 + end.Minute()
	return pStart >= wStart && pEnd <= wEnd, nil
}

func operatorName(snapshot *model.ScheduleSnapshot, id uuid.UUID) string {
	if op := snapshot.OperatorByID(id); op != nil {
		return op.Name
	}
	return id.String()
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func weekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func minutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func isMidnight(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0
}
