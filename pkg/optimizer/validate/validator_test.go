package validate

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/youpai/youpai/pkg/catalog"
	"github.com/youpai/youpai/pkg/model"
)

func interval(day, startHour, endHour int) model.TimeRange {
	base := time.Date(2026, 3, day, 0, 0, 0, 0, time.UTC)
	return model.TimeRange{
		Start: base.Add(time.Duration(startHour) * time.Hour),
		End:   base.Add(time.Duration(endHour) * time.Hour),
	}
}

func mustCatalog(t *testing.T, constraints []*model.Constraint) *catalog.ConstraintCatalog {
	t.Helper()
	cat, err := catalog.NewConstraintCatalog(constraints)
	if err != nil {
		t.Fatalf("约束目录加载失败: %v", err)
	}
	return cat
}

func restConstraint() *model.Constraint {
	return &model.Constraint{
		ID: uuid.New(), Name: "班次间11小时休息", Type: model.ConstraintLaborLaw,
		Priority: model.PriorityCritical, Mandatory: true, Policy: model.PolicyReject,
		Predicate: model.Predicate{Kind: model.PredicateMinRestHours, Params: model.PredicateParams{Hours: 11}},
	}
}

func addChange(op *model.Operator, period model.TimeRange) model.ScheduleChange {
	p := period
	return model.ScheduleChange{Op: model.ChangeAdd, OperatorID: op.ID, Unit: op.Unit, To: &p}
}

func TestValidator_MinRest_Blocking(t *testing.T) {
	op := &model.Operator{ID: uuid.New(), Name: "张三"}
	snapshot := &model.ScheduleSnapshot{
		Operators: []*model.Operator{op},
		Shifts: []*model.ScheduledShift{
			{ID: uuid.New(), OperatorID: op.ID, Period: interval(2, 8, 16)},
		},
	}
	// 16点下班后20点再上班，只有4小时休息
	c := &model.Candidate{
		Seq:       1,
		Pattern:   model.PatternExtraShift,
		Changes:   []model.ScheduleChange{addChange(op, interval(2, 20, 23))},
		Operators: []uuid.UUID{op.ID},
	}

	v := NewValidator(mustCatalog(t, []*model.Constraint{restConstraint()}))
	result := v.Validate(c, snapshot, nil, interval(2, 0, 1).Start)

	if result.Overall != model.ResultMajorViolations {
		t.Errorf("Overall = %v, expected major_violations", result.Overall)
	}
	if !result.Excluded {
		t.Error("阻断性约束失败的候选应被排除")
	}
	if len(result.Verdicts) != 1 || result.Verdicts[0].Verdict != model.VerdictFailed {
		t.Errorf("Verdicts = %+v, expected 单条 failed", result.Verdicts)
	}
	if result.Verdicts[0].Explanation == "" {
		t.Error("违反说明不应为空")
	}
}

func TestValidator_MinRest_Passes(t *testing.T) {
	op := &model.Operator{ID: uuid.New(), Name: "张三"}
	snapshot := &model.ScheduleSnapshot{
		Operators: []*model.Operator{op},
		Shifts: []*model.ScheduledShift{
			{ID: uuid.New(), OperatorID: op.ID, Period: interval(2, 8, 12)},
		},
	}
	// 次日9点上班，休息21小时
	c := &model.Candidate{
		Seq:       1,
		Changes:   []model.ScheduleChange{addChange(op, interval(3, 9, 13))},
		Operators: []uuid.UUID{op.ID},
	}

	v := NewValidator(mustCatalog(t, []*model.Constraint{restConstraint()}))
	result := v.Validate(c, snapshot, nil, interval(2, 0, 1).Start)

	if result.Overall != model.ResultFullyCompliant || result.Excluded {
		t.Errorf("应完全合规: overall=%v excluded=%v", result.Overall, result.Excluded)
	}
}

func TestValidator_EvalError_FailsClosed(t *testing.T) {
	// 基线成本为零时 max_cost_increase_pct 无法评估，按重大违规保守处理
	op := &model.Operator{ID: uuid.New(), Name: "张三"}
	snapshot := &model.ScheduleSnapshot{Operators: []*model.Operator{op}}
	c := &model.Candidate{
		Seq:       1,
		Changes:   []model.ScheduleChange{addChange(op, interval(2, 8, 12))},
		Operators: []uuid.UUID{op.ID},
		DeltaCost: 100,
	}

	costCap := &model.Constraint{
		ID: uuid.New(), Name: "成本增幅上限", Type: model.ConstraintBusinessRule,
		Priority: model.PriorityMedium, Policy: model.PolicyWarn,
		Predicate: model.Predicate{Kind: model.PredicateMaxCostIncrease, Params: model.PredicateParams{Percent: 10}},
	}

	v := NewValidator(mustCatalog(t, []*model.Constraint{costCap}))
	result := v.Validate(c, snapshot, nil, interval(2, 0, 1).Start)

	if result.Overall != model.ResultMajorViolations || !result.Excluded {
		t.Errorf("评估失败应按重大违规排除: overall=%v excluded=%v", result.Overall, result.Excluded)
	}
	if result.Verdicts[0].Verdict != model.VerdictFailed {
		t.Errorf("结论 = %v, expected failed", result.Verdicts[0].Verdict)
	}
}

func TestValidator_WarnPolicy_MinorIssues(t *testing.T) {
	op := &model.Operator{ID: uuid.New(), Name: "张三"}
	snapshot := &model.ScheduleSnapshot{Operators: []*model.Operator{op}}

	// 加班4小时的变更，上限2小时，warn 策略只记警告不排除
	overtime := interval(2, 18, 22)
	c := &model.Candidate{
		Seq: 1,
		Changes: []model.ScheduleChange{{
			Op: model.ChangeAdd, OperatorID: op.ID, To: &overtime, Overtime: true,
		}},
		Operators: []uuid.UUID{op.ID},
	}

	warnOT := &model.Constraint{
		ID: uuid.New(), Name: "加班上限", Type: model.ConstraintUnionAgreement,
		Priority: model.PriorityHigh, Policy: model.PolicyWarn,
		Predicate: model.Predicate{Kind: model.PredicateMaxOvertimeHours, Params: model.PredicateParams{Hours: 2}},
	}

	v := NewValidator(mustCatalog(t, []*model.Constraint{warnOT}))
	result := v.Validate(c, snapshot, nil, interval(2, 0, 1).Start)

	if result.Overall != model.ResultMinorIssues {
		t.Errorf("Overall = %v, expected minor_issues", result.Overall)
	}
	if result.Excluded {
		t.Error("warn 策略失败不应排除候选")
	}
	if result.Verdicts[0].Verdict != model.VerdictWarning {
		t.Errorf("结论 = %v, expected warning", result.Verdicts[0].Verdict)
	}
}

func TestValidator_ShortCircuit(t *testing.T) {
	op := &model.Operator{ID: uuid.New(), Name: "张三"}
	snapshot := &model.ScheduleSnapshot{
		Operators: []*model.Operator{op},
		Shifts: []*model.ScheduledShift{
			{ID: uuid.New(), OperatorID: op.ID, Period: interval(2, 8, 16)},
		},
	}
	c := &model.Candidate{
		Seq:       1,
		Changes:   []model.ScheduleChange{addChange(op, interval(2, 18, 22))},
		Operators: []uuid.UUID{op.ID},
	}

	// critical 失败后 low 优先级的约束不再评估
	lowPref := &model.Constraint{
		ID: uuid.New(), Name: "偏好休息", Type: model.ConstraintPreference,
		Priority: model.PriorityLow, Policy: model.PolicyWarn,
		Predicate: model.Predicate{
			Kind:   model.PredicatePreferredTimeOff,
			Params: model.PredicateParams{TimeOff: []model.TimeRange{interval(2, 18, 22)}},
		},
	}

	v := NewValidator(mustCatalog(t, []*model.Constraint{restConstraint(), lowPref}))
	result := v.Validate(c, snapshot, nil, interval(2, 0, 1).Start)

	if !result.Excluded {
		t.Fatal("候选应被排除")
	}
	if len(result.Verdicts) != 1 {
		t.Errorf("短路后结论数 = %d, expected 1", len(result.Verdicts))
	}
}

func TestValidator_SkillRequired(t *testing.T) {
	skilled := &model.Operator{ID: uuid.New(), Name: "熟手", SkillTags: []string{"voice"}}
	unskilled := &model.Operator{ID: uuid.New(), Name: "新手"}
	snapshot := &model.ScheduleSnapshot{Operators: []*model.Operator{skilled, unskilled}}

	gapIndex := map[string]*model.CoverageGap{
		"gap-0001": {ID: "gap-0001", Interval: interval(2, 10, 14), SkillTags: []string{"voice"}},
	}
	skillRule := &model.Constraint{
		ID: uuid.New(), Name: "技能匹配", Type: model.ConstraintBusinessRule,
		Priority: model.PriorityHigh, Policy: model.PolicyAdjust,
		Predicate: model.Predicate{Kind: model.PredicateSkillRequired},
	}
	v := NewValidator(mustCatalog(t, []*model.Constraint{skillRule}))

	pass := &model.Candidate{
		Seq: 1, GapIDs: []string{"gap-0001"},
		Changes:   []model.ScheduleChange{addChange(skilled, interval(2, 10, 14))},
		Operators: []uuid.UUID{skilled.ID},
	}
	if r := v.Validate(pass, snapshot, gapIndex, interval(2, 0, 1).Start); r.Overall != model.ResultFullyCompliant {
		t.Errorf("具备技能的候选应合规: %+v", r.Verdicts)
	}

	fail := &model.Candidate{
		Seq: 2, GapIDs: []string{"gap-0001"},
		Changes:   []model.ScheduleChange{addChange(unskilled, interval(2, 10, 14))},
		Operators: []uuid.UUID{unskilled.ID},
	}
	r := v.Validate(fail, snapshot, gapIndex, interval(2, 0, 1).Start)
	if r.Overall != model.ResultMinorIssues || r.Excluded {
		t.Errorf("adjust 策略失败应记 minor_issues 且不排除: overall=%v excluded=%v", r.Overall, r.Excluded)
	}
}

func TestValidator_NoOverlap(t *testing.T) {
	op := &model.Operator{ID: uuid.New(), Name: "张三"}
	snapshot := &model.ScheduleSnapshot{
		Operators: []*model.Operator{op},
		Shifts: []*model.ScheduledShift{
			{ID: uuid.New(), OperatorID: op.ID, Period: interval(2, 8, 16)},
		},
	}
	// 新增时段与既有班次重叠
	c := &model.Candidate{
		Seq:       1,
		Changes:   []model.ScheduleChange{addChange(op, interval(2, 14, 18))},
		Operators: []uuid.UUID{op.ID},
	}

	overlap := &model.Constraint{
		ID: uuid.New(), Name: "班次不得重叠", Type: model.ConstraintBusinessRule,
		Priority: model.PriorityCritical, Mandatory: true, Policy: model.PolicyReject,
		Predicate: model.Predicate{Kind: model.PredicateNoOverlap},
	}

	v := NewValidator(mustCatalog(t, []*model.Constraint{overlap}))
	result := v.Validate(c, snapshot, nil, interval(2, 0, 1).Start)
	if !result.Excluded {
		t.Error("重叠班次的候选应被排除")
	}
}

func TestValidator_ModifiedShiftNotDoubleCounted(t *testing.T) {
	// modify 变更后旧时段不再参与评估，延长班次不应自我重叠
	op := &model.Operator{ID: uuid.New(), Name: "张三"}
	shiftID := uuid.New()
	from := interval(2, 8, 14)
	to := interval(2, 8, 16)
	snapshot := &model.ScheduleSnapshot{
		Operators: []*model.Operator{op},
		Shifts: []*model.ScheduledShift{
			{ID: shiftID, OperatorID: op.ID, Period: from},
		},
	}
	c := &model.Candidate{
		Seq: 1,
		Changes: []model.ScheduleChange{{
			Op: model.ChangeModify, OperatorID: op.ID, ShiftID: &shiftID, From: &from, To: &to,
		}},
		Operators: []uuid.UUID{op.ID},
	}

	overlap := &model.Constraint{
		ID: uuid.New(), Name: "班次不得重叠", Type: model.ConstraintBusinessRule,
		Priority: model.PriorityCritical, Mandatory: true, Policy: model.PolicyReject,
		Predicate: model.Predicate{Kind: model.PredicateNoOverlap},
	}

	v := NewValidator(mustCatalog(t, []*model.Constraint{overlap}))
	result := v.Validate(c, snapshot, nil, interval(2, 0, 1).Start)
	if result.Excluded {
		t.Errorf("延长自身班次不应判为重叠: %+v", result.Verdicts)
	}
}

func TestValidator_ExpiredConstraintSkipped(t *testing.T) {
	op := &model.Operator{ID: uuid.New(), Name: "张三"}
	snapshot := &model.ScheduleSnapshot{
		Operators: []*model.Operator{op},
		Shifts: []*model.ScheduledShift{
			{ID: uuid.New(), OperatorID: op.ID, Period: interval(2, 8, 16)},
		},
	}
	c := &model.Candidate{
		Seq:       1,
		Changes:   []model.ScheduleChange{addChange(op, interval(2, 18, 22))},
		Operators: []uuid.UUID{op.ID},
	}

	expiry := interval(1, 0, 1).Start
	expired := restConstraint()
	expired.ExpiresAt = &expiry

	v := NewValidator(mustCatalog(t, []*model.Constraint{expired}))
	result := v.Validate(c, snapshot, nil, interval(2, 0, 1).Start)
	if len(result.Verdicts) != 0 || result.Overall != model.ResultFullyCompliant {
		t.Errorf("已失效约束不应评估: %+v", result)
	}
}

func TestValidator_ValidateAll(t *testing.T) {
	op := &model.Operator{ID: uuid.New(), Name: "张三"}
	snapshot := &model.ScheduleSnapshot{Operators: []*model.Operator{op}}
	candidates := []*model.Candidate{
		{Seq: 1, Changes: []model.ScheduleChange{addChange(op, interval(2, 8, 12))}, Operators: []uuid.UUID{op.ID}},
		{Seq: 2, Changes: []model.ScheduleChange{addChange(op, interval(2, 13, 17))}, Operators: []uuid.UUID{op.ID}},
	}

	v := NewValidator(mustCatalog(t, catalog.DefaultConstraints()))
	results := v.ValidateAll(candidates, snapshot,
		[]*model.CoverageGap{{ID: "gap-0001", Interval: interval(2, 8, 12)}}, interval(2, 0, 1).Start)

	if len(results) != 2 {
		t.Fatalf("结果数 = %d, expected 2", len(results))
	}
	if results[0].CandidateSeq != 1 || results[1].CandidateSeq != 2 {
		t.Error("结果顺序应与输入一致")
	}
}
