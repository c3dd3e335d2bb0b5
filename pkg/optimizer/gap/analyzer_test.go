package gap

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/youpai/youpai/pkg/model"
)

func interval(day, startHour, endHour int) model.TimeRange {
	base := time.Date(2026, 3, day, 0, 0, 0, 0, time.UTC)
	return model.TimeRange{
		Start: base.Add(time.Duration(startHour) * time.Hour),
		End:   base.Add(time.Duration(endHour) * time.Hour),
	}
}

func point(day, startHour, endHour, required int) *model.ForecastPoint {
	return &model.ForecastPoint{Interval: interval(day, startHour, endHour), Required: required, Confidence: 0.9}
}

func TestAnalyzer_Analyze(t *testing.T) {
	op := &model.Operator{ID: uuid.New(), Name: "张三", SkillTags: []string{"voice"}}
	snapshot := &model.ScheduleSnapshot{
		Operators: []*model.Operator{op},
		Shifts: []*model.ScheduledShift{
			{ID: uuid.New(), OperatorID: op.ID, Period: interval(2, 8, 16), SkillTags: []string{"voice"}},
		},
	}
	forecast := []*model.ForecastPoint{
		point(2, 8, 10, 1),  // 已满足，无缺口
		point(2, 10, 12, 3), // 缺2人
		point(2, 14, 16, 2), // 缺1人
	}

	analyzer := NewAnalyzer()
	gaps := analyzer.Analyze(forecast, snapshot)

	if len(gaps) != 2 {
		t.Fatalf("缺口数 = %d, expected 2", len(gaps))
	}
	if gaps[0].ID != "gap-0001" || gaps[1].ID != "gap-0002" {
		t.Errorf("缺口编号 = %s, %s, expected gap-0001, gap-0002", gaps[0].ID, gaps[1].ID)
	}
	if gaps[0].Deficit != 2 || gaps[0].Scheduled != 1 {
		t.Errorf("gap-0001 deficit = %d, scheduled = %d, expected 2, 1", gaps[0].Deficit, gaps[0].Scheduled)
	}
	// 2/3 > 40% 为 critical
	if gaps[0].Severity != model.SeverityCritical {
		t.Errorf("gap-0001 severity = %v, expected critical", gaps[0].Severity)
	}
	// 1/2 > 40% 为 critical
	if gaps[1].Severity != model.SeverityCritical {
		t.Errorf("gap-0002 severity = %v, expected critical", gaps[1].Severity)
	}
	// 缺口技能来自区间内既有班次
	if len(gaps[0].SkillTags) != 1 || gaps[0].SkillTags[0] != "voice" {
		t.Errorf("gap-0001 skills = %v, expected [voice]", gaps[0].SkillTags)
	}
}

func TestAnalyzer_Analyze_Deterministic(t *testing.T) {
	// 乱序输入产出与有序输入完全一致的编号与顺序
	snapshot := &model.ScheduleSnapshot{}
	ordered := []*model.ForecastPoint{
		point(2, 8, 10, 2),
		point(2, 10, 12, 3),
		point(2, 12, 14, 1),
	}
	shuffled := []*model.ForecastPoint{ordered[2], ordered[0], ordered[1]}

	analyzer := NewAnalyzer()
	a := analyzer.Analyze(ordered, snapshot)
	b := analyzer.Analyze(shuffled, snapshot)

	if len(a) != len(b) {
		t.Fatalf("缺口数不一致: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID || !a[i].Interval.Start.Equal(b[i].Interval.Start) || a[i].Deficit != b[i].Deficit {
			t.Errorf("第 %d 个缺口不一致: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestAnalyzer_Analyze_Empty(t *testing.T) {
	analyzer := NewAnalyzer()
	if gaps := analyzer.Analyze(nil, &model.ScheduleSnapshot{}); gaps != nil {
		t.Errorf("空预测应返回 nil, got %v", gaps)
	}
	// 快照为 nil 时全部需求都是缺口
	gaps := analyzer.Analyze([]*model.ForecastPoint{point(2, 8, 10, 2)}, nil)
	if len(gaps) != 1 || gaps[0].Deficit != 2 {
		t.Errorf("nil 快照下缺口 = %v, expected deficit 2", gaps)
	}
}

func TestClusterGaps(t *testing.T) {
	gaps := []*model.CoverageGap{
		{ID: "gap-0001", Interval: interval(2, 8, 10), Deficit: 1, Severity: model.SeverityHigh},
		{ID: "gap-0002", Interval: interval(2, 10, 12), Deficit: 2, Severity: model.SeverityCritical},
		// 与前一缺口相隔超过区间长度，另起一簇
		{ID: "gap-0003", Interval: interval(2, 18, 20), Deficit: 1, Severity: model.SeverityLow},
	}

	clusters := ClusterGaps(gaps)
	if len(clusters) != 2 {
		t.Fatalf("聚簇数 = %d, expected 2", len(clusters))
	}
	if len(clusters[0].Gaps) != 2 {
		t.Errorf("第一簇缺口数 = %d, expected 2", len(clusters[0].Gaps))
	}
	if !clusters[0].Interval.End.Equal(interval(2, 10, 12).End) {
		t.Errorf("第一簇覆盖终点 = %v, expected 12点", clusters[0].Interval.End)
	}
	if clusters[1].Gaps[0].ID != "gap-0003" {
		t.Errorf("第二簇缺口 = %s, expected gap-0003", clusters[1].Gaps[0].ID)
	}

	// 严重度合计 = 权重 × 缺员人数
	want := model.SeverityHigh.Weight()*1 + model.SeverityCritical.Weight()*2
	if got := clusters[0].TotalSeverity(); got != want {
		t.Errorf("TotalSeverity() = %v, expected %v", got, want)
	}
}

func TestClusterGaps_Empty(t *testing.T) {
	if clusters := ClusterGaps(nil); clusters != nil {
		t.Errorf("空输入应返回 nil, got %v", clusters)
	}
}

func TestSeveritySummary(t *testing.T) {
	gaps := []*model.CoverageGap{
		{Severity: model.SeverityCritical},
		{Severity: model.SeverityCritical},
		{Severity: model.SeverityLow},
	}
	summary := SeveritySummary(gaps)
	if summary[model.SeverityCritical] != 2 || summary[model.SeverityLow] != 1 {
		t.Errorf("SeveritySummary() = %v", summary)
	}
}
