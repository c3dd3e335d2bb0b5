package scenario

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/youpai/youpai/pkg/audit"
	"github.com/youpai/youpai/pkg/bulk"
	"github.com/youpai/youpai/pkg/model"
	"github.com/youpai/youpai/pkg/optimizer/pattern"
	"github.com/youpai/youpai/pkg/optimizer/session"
)

var (
	clerkZhaoLiu = uuid.MustParse("00000000-0000-0000-0000-000000000011") // 门店A
	clerkQianQi  = uuid.MustParse("00000000-0000-0000-0000-000000000012") // 门店B
)

// retailOperators 两家门店各一名当天空闲的店员
func retailOperators() []*model.Operator {
	return []*model.Operator{
		{ID: clerkZhaoLiu, Name: "赵六", Unit: "store-a", HourlyCost: 30},
		{ID: clerkQianQi, Name: "钱七", Unit: "store-b", HourlyCost: 35},
	}
}

// retailInputs 零售旺季场景：周一促销高峰 10-16 点需要 2 人，当前无人排班
func retailInputs() session.Inputs {
	return session.Inputs{
		Forecast: []*model.ForecastPoint{
			{Interval: span(2, 10, 16), Required: 2, Confidence: 0.9},
		},
		Snapshot: &model.ScheduleSnapshot{Operators: retailOperators()},
	}
}

func retailConfig() session.Config {
	return session.Config{
		TimeBudget: 10 * time.Second,
		TopN:       10,
		Pattern: pattern.Config{
			CandidateCap:        100,
			ComplexityLevel:     3,
			Context:             model.ContextSeasonalRetail,
			CostCoverageBalance: 0.5,
		},
	}
}

// TestRetail_PeakCoverage 测试旺季高峰缺口的候选生成与排名
//
// 缺员 2 人且两名店员都空闲，应产出两条单人增派加一条双人合并增派，
// 合并增派消解的严重度最高，排在首位。
func TestRetail_PeakCoverage(t *testing.T) {
	m := newManager(t)
	suggestions, sess := runSession(t, m, span(2, 0, 24), retailInputs(), retailConfig())

	if sess.Summary.GapsFound != 1 {
		t.Errorf("GapsFound = %d, expected 1", sess.Summary.GapsFound)
	}
	if sess.Summary.GapsAddressed != 1 {
		t.Errorf("GapsAddressed = %d, expected 1", sess.Summary.GapsAddressed)
	}
	if sess.Summary.CandidatesGenerated != 3 {
		t.Errorf("CandidatesGenerated = %d, expected 3", sess.Summary.CandidatesGenerated)
	}
	if len(suggestions) != 3 {
		t.Fatalf("建议数 = %d, expected 3", len(suggestions))
	}

	// 双人合并增派覆盖全部缺员，应排在首位
	first := suggestions[0]
	if first.Pattern != model.PatternExtraShift {
		t.Errorf("首位建议模式 = %v, expected extra_shift", first.Pattern)
	}
	if len(first.Operators) != 2 {
		t.Fatalf("首位建议操作员数 = %d, expected 2", len(first.Operators))
	}
	if first.Operators[0] != clerkZhaoLiu || first.Operators[1] != clerkQianQi {
		t.Errorf("首位建议操作员 = %v, expected [赵六, 钱七]", first.Operators)
	}
	// 6小时×30 + 6小时×35
	if first.DeltaCost != 390 {
		t.Errorf("首位建议成本增量 = %v, expected 390", first.DeltaCost)
	}
	if first.Score.Coverage <= suggestions[1].Score.Coverage {
		t.Errorf("合并增派的覆盖分 %v 应高于单人增派的 %v",
			first.Score.Coverage, suggestions[1].Score.Coverage)
	}

	for i, s := range suggestions {
		if s.Validation == nil || s.Validation.Overall != model.ResultFullyCompliant {
			t.Errorf("建议 %d 应完全合规", i)
		}
	}
}

// TestRetail_PilotThenPromote 测试先在门店A试点、验证后推广到全部门店
func TestRetail_PilotThenPromote(t *testing.T) {
	m := newManager(t)
	suggestions, sess := runSession(t, m, span(2, 0, 24), retailInputs(), retailConfig())
	if len(suggestions) == 0 {
		t.Fatal("应产出建议")
	}
	combined := suggestions[0]
	if len(combined.Operators) != 2 {
		t.Fatalf("首位建议应为双人合并增派，实际操作员数 = %d", len(combined.Operators))
	}

	store := bulk.NewMemoryStore(&model.ScheduleSnapshot{Operators: retailOperators()})
	coordinator := bulk.NewCoordinator(store, audit.NewMemorySink())

	// 1. 门店A试点
	t.Log("在门店A试点应用...")
	op, err := coordinator.Apply(sess.ID, []*model.Suggestion{combined}, model.ModePilotProgram, "store-a", "scenario-test")
	if err != nil {
		t.Fatalf("试点应用失败: %v", err)
	}
	if op.Status != model.BulkInProgress {
		t.Errorf("试点操作状态 = %v, expected in_progress", op.Status)
	}

	snapshot, err := store.Snapshot()
	if err != nil {
		t.Fatalf("读取快照失败: %v", err)
	}
	if len(snapshot.Shifts) != 1 {
		t.Fatalf("试点阶段班次数 = %d, expected 1", len(snapshot.Shifts))
	}
	if snapshot.Shifts[0].Unit != "store-a" {
		t.Errorf("试点班次门店 = %v, expected store-a", snapshot.Shifts[0].Unit)
	}

	// 2. 推广到全部门店
	t.Log("推广试点...")
	if err := coordinator.Promote(op.ID, []*model.Suggestion{combined}, "scenario-test"); err != nil {
		t.Fatalf("试点推广失败: %v", err)
	}

	promoted, err := coordinator.Operation(op.ID)
	if err != nil {
		t.Fatalf("操作查询失败: %v", err)
	}
	if promoted.Status != model.BulkCompleted {
		t.Errorf("推广后操作状态 = %v, expected completed", promoted.Status)
	}
	if !promoted.Promoted {
		t.Error("操作应标记为已推广")
	}
	if combined.Status != model.SuggestionApplied {
		t.Errorf("推广后建议状态 = %v, expected applied", combined.Status)
	}

	snapshot, err = store.Snapshot()
	if err != nil {
		t.Fatalf("读取快照失败: %v", err)
	}
	if len(snapshot.Shifts) != 2 {
		t.Errorf("推广后班次数 = %d, expected 2", len(snapshot.Shifts))
	}

	// 3. 推广不可重复
	if err := coordinator.Promote(op.ID, []*model.Suggestion{combined}, "scenario-test"); err == nil {
		t.Error("重复推广应被拒绝")
	}
}
