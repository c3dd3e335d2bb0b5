package session

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/youpai/youpai/pkg/audit"
	"github.com/youpai/youpai/pkg/catalog"
	"github.com/youpai/youpai/pkg/errors"
	"github.com/youpai/youpai/pkg/model"
	"github.com/youpai/youpai/pkg/optimizer/pattern"
)

func interval(day, startHour, endHour int) model.TimeRange {
	base := time.Date(2026, 3, day, 0, 0, 0, 0, time.UTC)
	return model.TimeRange{
		Start: base.Add(time.Duration(startHour) * time.Hour),
		End:   base.Add(time.Duration(endHour) * time.Hour),
	}
}

func newManager(t *testing.T, sink audit.Sink) *Manager {
	t.Helper()
	constraints, err := catalog.NewConstraintCatalog(catalog.DefaultConstraints())
	if err != nil {
		t.Fatalf("约束目录加载失败: %v", err)
	}
	goals, err := catalog.NewGoalCatalog(nil)
	if err != nil {
		t.Fatalf("目标目录加载失败: %v", err)
	}
	return NewManager(constraints, goals, nil, sink)
}

func testInputs() Inputs {
	ops := []*model.Operator{
		{ID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), Name: "张三", Unit: "site-a", HourlyCost: 40},
		{ID: uuid.MustParse("00000000-0000-0000-0000-000000000002"), Name: "李四", Unit: "site-a", HourlyCost: 45},
		{ID: uuid.MustParse("00000000-0000-0000-0000-000000000003"), Name: "王五", Unit: "site-a", HourlyCost: 50},
	}
	shifts := []*model.ScheduledShift{
		{ID: uuid.New(), OperatorID: ops[0].ID, Unit: "site-a", Period: interval(2, 8, 16)},
	}
	return Inputs{
		Forecast: []*model.ForecastPoint{
			{Interval: interval(2, 10, 12), Required: 3, Confidence: 0.9},
			{Interval: interval(2, 18, 20), Required: 2, Confidence: 0.8},
		},
		Snapshot: &model.ScheduleSnapshot{Operators: ops, Shifts: shifts},
	}
}

func testConfig() Config {
	return Config{
		TimeBudget: 30 * time.Second,
		TopN:       10,
		Pattern: pattern.Config{
			CandidateCap:    100,
			ComplexityLevel: 3,
			Context:         model.ContextGeneral,
		},
	}
}

func TestClampBudget(t *testing.T) {
	tests := []struct {
		in       time.Duration
		expected time.Duration
	}{
		{0, MinBudgetSeconds * time.Second},
		{2 * time.Second, MinBudgetSeconds * time.Second},
		{30 * time.Second, 30 * time.Second},
		{5 * time.Minute, MaxBudgetSeconds * time.Second},
	}

	for _, tt := range tests {
		if result := clampBudget(tt.in); result != tt.expected {
			t.Errorf("clampBudget(%v) = %v, expected %v", tt.in, result, tt.expected)
		}
	}
}

func TestManager_Start_Validation(t *testing.T) {
	m := newManager(t, audit.NewMemorySink())
	inputs := testInputs()

	tests := []struct {
		name   string
		period model.TimeRange
		inputs Inputs
	}{
		{"零值时段", model.TimeRange{}, inputs},
		{"起止颠倒", model.TimeRange{Start: interval(2, 12, 13).Start, End: interval(2, 8, 9).Start}, inputs},
		{"没有操作员", interval(2, 0, 24), Inputs{Forecast: inputs.Forecast, Snapshot: &model.ScheduleSnapshot{}}},
		{"缺少预测", interval(2, 0, 24), Inputs{Snapshot: inputs.Snapshot}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Start("tester", tt.period, model.Scope{}, tt.inputs, testConfig())
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, errors.CodeInvalidScope) {
				t.Errorf("错误码 = %v, expected INVALID_SCOPE", errors.GetCode(err))
			}
		})
	}
}

func TestManager_Start_ScopeWithoutOperators(t *testing.T) {
	// 范围单元与任何操作员都不匹配时必须立即拒绝，而不是空跑一个会话
	m := newManager(t, audit.NewMemorySink())

	scope := model.Scope{ServiceID: "svc", Units: []string{"no-such-unit"}}
	_, err := m.Start("tester", interval(2, 0, 24), scope, testInputs(), testConfig())
	if err == nil {
		t.Fatal("无匹配操作员的范围应被拒绝")
	}
	if !errors.Is(err, errors.CodeInvalidScope) {
		t.Errorf("错误码 = %v, expected INVALID_SCOPE", errors.GetCode(err))
	}

	// 部分匹配即可启动
	scope.Units = []string{"no-such-unit", "site-a"}
	if _, err := m.Start("tester", interval(2, 0, 24), scope, testInputs(), testConfig()); err != nil {
		t.Errorf("部分单元匹配时应允许启动: %v", err)
	}
}

func TestManager_RunPanicFails(t *testing.T) {
	// 阶段内部异常转为 failed 终态并携带结构化错误，不得击穿进程
	m := newManager(t, audit.NewMemorySink())
	inputs := testInputs()
	inputs.Forecast = append(inputs.Forecast, nil)

	id, err := m.Start("tester", interval(2, 0, 24), model.Scope{}, inputs, testConfig())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	var st *Status
	for {
		st, err = m.Poll(id)
		if err != nil {
			t.Fatalf("Poll() error = %v", err)
		}
		if st.Status.Terminal() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("会话未在期限内结束, stage=%s", st.Stage)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if st.Status != model.SessionFailed {
		t.Fatalf("status = %v, expected failed", st.Status)
	}
	if st.Error == "" {
		t.Error("失败会话应携带错误说明")
	}
	if _, err := m.Suggestions(id); !errors.Is(err, errors.CodeSessionNotDone) {
		t.Errorf("失败会话取建议应被拒绝, got %v", err)
	}
}

func TestManager_RunCompletes(t *testing.T) {
	sink := audit.NewMemorySink()
	m := newManager(t, sink)
	inputs := testInputs()

	h := &handle{
		session: &model.OptimizationSession{
			ID: uuid.New(), Period: interval(2, 0, 24), Stage: model.StageAnalyzingCoverage,
			Status: model.SessionRunning, TimeBudget: 30 * time.Second, StartedAt: time.Now(),
		},
		inputs: inputs,
		cfg:    testConfig(),
	}
	m.sessions[h.session.ID] = h
	m.run(h)

	if h.session.Status != model.SessionCompleted {
		t.Fatalf("status = %v, expected completed (error: %s)", h.session.Status, h.session.Error)
	}
	if h.session.Progress != 100 {
		t.Errorf("Progress = %d, expected 100", h.session.Progress)
	}
	if h.session.Stage != model.StageRankingSuggestions {
		t.Errorf("终态阶段 = %v, expected ranking_suggestions", h.session.Stage)
	}
	if h.session.FinishedAt == nil {
		t.Error("FinishedAt 不应为空")
	}

	if h.session.Summary == nil {
		t.Fatal("应产出会话摘要")
	}
	if h.session.Summary.GapsFound != 2 {
		t.Errorf("GapsFound = %d, expected 2", h.session.Summary.GapsFound)
	}
	if len(h.suggestions) == 0 {
		t.Fatal("应产出至少一条建议")
	}
	for i, s := range h.suggestions {
		if s.Rank != i+1 {
			t.Errorf("建议 %d 的 Rank = %d", i, s.Rank)
		}
		if s.Score.Total < 0 || s.Score.Total > 100 {
			t.Errorf("建议 %d 的总分 = %v, 超出 [0,100]", i, s.Score.Total)
		}
	}

	// 审计应记录会话结束事件
	var finished bool
	for _, e := range sink.Events() {
		if e.Type == audit.EventSessionFinished {
			finished = true
		}
	}
	if !finished {
		t.Error("缺少 session_finished 审计事件")
	}
}

func TestManager_RunDeterministic(t *testing.T) {
	// 相同输入两次会话产出完全一致的建议顺序与得分
	m := newManager(t, audit.NewMemorySink())
	inputs := testInputs()

	runOnce := func() []*model.Suggestion {
		h := &handle{
			session: &model.OptimizationSession{
				ID: uuid.New(), Period: interval(2, 0, 24), Stage: model.StageAnalyzingCoverage,
				Status: model.SessionRunning, TimeBudget: 30 * time.Second, StartedAt: time.Now(),
			},
			inputs: inputs,
			cfg:    testConfig(),
		}
		m.sessions[h.session.ID] = h
		m.run(h)
		return h.suggestions
	}

	a := runOnce()
	b := runOnce()
	if len(a) != len(b) {
		t.Fatalf("两次会话建议数不一致: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].CandidateSeq != b[i].CandidateSeq || a[i].Score.Total != b[i].Score.Total ||
			a[i].Pattern != b[i].Pattern {
			t.Errorf("第 %d 条建议不一致: seq %d/%d score %v/%v",
				i, a[i].CandidateSeq, b[i].CandidateSeq, a[i].Score.Total, b[i].Score.Total)
		}
	}
}

func TestManager_RunNoGaps(t *testing.T) {
	// 预测均已满足：会话直接完成，空建议列表是合法结果
	m := newManager(t, audit.NewMemorySink())
	inputs := testInputs()
	inputs.Forecast = []*model.ForecastPoint{
		{Interval: interval(2, 9, 10), Required: 1},
	}

	h := &handle{
		session: &model.OptimizationSession{
			ID: uuid.New(), Period: interval(2, 0, 24), Stage: model.StageAnalyzingCoverage,
			Status: model.SessionRunning, TimeBudget: 30 * time.Second, StartedAt: time.Now(),
		},
		inputs: inputs,
		cfg:    testConfig(),
	}
	m.sessions[h.session.ID] = h
	m.run(h)

	if h.session.Status != model.SessionCompleted {
		t.Fatalf("status = %v, expected completed", h.session.Status)
	}
	if len(h.suggestions) != 0 {
		t.Errorf("无缺口时建议数 = %d, expected 0", len(h.suggestions))
	}
	if h.session.Summary.GapsFound != 0 {
		t.Errorf("GapsFound = %d, expected 0", h.session.Summary.GapsFound)
	}
}

func TestManager_RunBudgetExpired(t *testing.T) {
	// 预算在启动前已耗尽：以 timeout 终结并保留已得出的部分结果
	m := newManager(t, audit.NewMemorySink())

	h := &handle{
		session: &model.OptimizationSession{
			ID: uuid.New(), Period: interval(2, 0, 24), Stage: model.StageAnalyzingCoverage,
			Status: model.SessionRunning, TimeBudget: 5 * time.Second,
			StartedAt: time.Now().Add(-time.Minute),
		},
		inputs: testInputs(),
		cfg:    testConfig(),
	}
	m.sessions[h.session.ID] = h
	m.run(h)

	if h.session.Status != model.SessionTimeout {
		t.Fatalf("status = %v, expected timeout", h.session.Status)
	}
	if h.session.Error == "" {
		t.Error("超时会话应携带错误说明")
	}
	if h.session.Progress == 100 {
		t.Error("超时会话进度不应为 100")
	}
}

func TestManager_PollAndSuggestions(t *testing.T) {
	m := newManager(t, audit.NewMemorySink())

	id, err := m.Start("tester", interval(2, 0, 24), model.Scope{}, testInputs(), testConfig())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// 轮询至终态
	deadline := time.Now().Add(3 * time.Second)
	var st *Status
	for {
		st, err = m.Poll(id)
		if err != nil {
			t.Fatalf("Poll() error = %v", err)
		}
		if st.Status.Terminal() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("会话 %s 未在期限内结束, stage=%s progress=%d", id, st.Stage, st.Progress)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if st.Status != model.SessionCompleted {
		t.Fatalf("终态 = %v, expected completed", st.Status)
	}

	suggestions, err := m.Suggestions(id)
	if err != nil {
		t.Fatalf("Suggestions() error = %v", err)
	}
	if len(suggestions) == 0 {
		t.Fatal("应产出建议")
	}

	gaps, err := m.Gaps(id)
	if err != nil || len(gaps) == 0 {
		t.Fatalf("Gaps() = %v, %v", gaps, err)
	}
}

func TestManager_Poll_NotFound(t *testing.T) {
	m := newManager(t, audit.NewMemorySink())
	if _, err := m.Poll(uuid.New()); !errors.Is(err, errors.CodeSessionNotFound) {
		t.Errorf("错误码 = %v, expected SESSION_NOT_FOUND", errors.GetCode(err))
	}
}

func TestManager_Progress_Monotonic(t *testing.T) {
	m := newManager(t, audit.NewMemorySink())
	h := &handle{
		session: &model.OptimizationSession{
			ID: uuid.New(), Stage: model.StageAnalyzingCoverage,
			Status: model.SessionRunning, Progress: 50,
		},
	}

	// 回退到更小的进度被忽略
	h.setProgress(30)
	if h.session.Progress != 50 {
		t.Errorf("进度回退被接受: %d", h.session.Progress)
	}
	h.setProgress(70)
	if h.session.Progress != 70 {
		t.Errorf("进度未推进: %d", h.session.Progress)
	}
	h.setProgress(150)
	if h.session.Progress != 100 {
		t.Errorf("进度上限 = %d, expected 100", h.session.Progress)
	}

	// 阶段推进不会把进度拉低
	h.session.Progress = 80
	h.setStage(model.StageGeneratingVariants, m.logger)
	if h.session.Progress != 80 {
		t.Errorf("setStage 拉低了进度: %d", h.session.Progress)
	}
}

func TestStageProgress(t *testing.T) {
	// 生成阶段起点为前两阶段份额之和 30
	if p := stageProgress(model.StageGeneratingVariants, 0, 4); p != 30 {
		t.Errorf("stageProgress(0/4) = %d, expected 30", p)
	}
	if p := stageProgress(model.StageGeneratingVariants, 2, 4); p != 45 {
		t.Errorf("stageProgress(2/4) = %d, expected 45", p)
	}
	if p := stageProgress(model.StageGeneratingVariants, 4, 4); p != 60 {
		t.Errorf("stageProgress(4/4) = %d, expected 60", p)
	}
}

func TestHandle_Checkpoint(t *testing.T) {
	h := &handle{session: &model.OptimizationSession{Status: model.SessionRunning}}

	future := time.Now().Add(time.Hour)
	if r := h.checkpoint(future); r != checkpointOK {
		t.Errorf("checkpoint = %v, expected OK", r)
	}

	past := time.Now().Add(-time.Second)
	if r := h.checkpoint(past); r != checkpointBudgetExpired {
		t.Errorf("checkpoint = %v, expected budgetExpired", r)
	}

	h.cancelled = true
	if r := h.checkpoint(future); r != checkpointCancelled {
		t.Errorf("checkpoint = %v, expected cancelled", r)
	}
}

func TestManager_Cancel(t *testing.T) {
	m := newManager(t, audit.NewMemorySink())

	// 运行中可取消
	running := &handle{
		session: &model.OptimizationSession{
			ID: uuid.New(), Stage: model.StageGeneratingVariants, Status: model.SessionRunning,
		},
	}
	m.sessions[running.session.ID] = running
	if err := m.Cancel(running.session.ID, "tester"); err != nil {
		t.Errorf("运行中取消失败: %v", err)
	}
	if !running.cancelled {
		t.Error("取消标记未置位")
	}

	// 排名提交阶段不可取消
	ranking := &handle{
		session: &model.OptimizationSession{
			ID: uuid.New(), Stage: model.StageRankingSuggestions, Status: model.SessionRunning,
		},
	}
	m.sessions[ranking.session.ID] = ranking
	if err := m.Cancel(ranking.session.ID, "tester"); !errors.Is(err, errors.CodeCancelNotAllowed) {
		t.Errorf("排名阶段取消应被拒绝, got %v", err)
	}

	// 终态不可取消
	done := &handle{
		session: &model.OptimizationSession{
			ID: uuid.New(), Stage: model.StageRankingSuggestions, Status: model.SessionCompleted,
		},
	}
	m.sessions[done.session.ID] = done
	if err := m.Cancel(done.session.ID, "tester"); !errors.Is(err, errors.CodeCancelNotAllowed) {
		t.Errorf("终态取消应被拒绝, got %v", err)
	}
}

func TestManager_Suggestions_NotDone(t *testing.T) {
	m := newManager(t, audit.NewMemorySink())

	running := &handle{
		session: &model.OptimizationSession{
			ID: uuid.New(), Stage: model.StageGeneratingVariants, Status: model.SessionRunning,
		},
	}
	m.sessions[running.session.ID] = running
	if _, err := m.Suggestions(running.session.ID); !errors.Is(err, errors.CodeSessionNotDone) {
		t.Errorf("运行中取建议应被拒绝, got %v", err)
	}

	cancelled := &handle{
		session: &model.OptimizationSession{
			ID: uuid.New(), Status: model.SessionCancelled,
		},
	}
	m.sessions[cancelled.session.ID] = cancelled
	if _, err := m.Suggestions(cancelled.session.ID); !errors.Is(err, errors.CodeSessionNotDone) {
		t.Errorf("已取消会话取建议应被拒绝, got %v", err)
	}

	// timeout 终态允许取部分结果
	timeout := &handle{
		session: &model.OptimizationSession{
			ID: uuid.New(), Status: model.SessionTimeout,
		},
		suggestions: []*model.Suggestion{{ID: uuid.New()}},
	}
	m.sessions[timeout.session.ID] = timeout
	if got, err := m.Suggestions(timeout.session.ID); err != nil || len(got) != 1 {
		t.Errorf("timeout 会话应返回部分建议: %v, %v", got, err)
	}
}

func TestManager_TransitionSuggestion(t *testing.T) {
	m := newManager(t, audit.NewMemorySink())
	suggestion := &model.Suggestion{ID: uuid.New(), Status: model.SuggestionPending}
	h := &handle{
		session:     &model.OptimizationSession{ID: uuid.New(), Status: model.SessionCompleted},
		suggestions: []*model.Suggestion{suggestion},
	}
	m.sessions[h.session.ID] = h

	if err := m.TransitionSuggestion(h.session.ID, suggestion.ID, model.SuggestionPreviewed, "tester"); err != nil {
		t.Fatalf("合法流转失败: %v", err)
	}
	if suggestion.Status != model.SuggestionPreviewed {
		t.Errorf("状态 = %v, expected previewed", suggestion.Status)
	}

	// previewed 不能回到 pending
	err := m.TransitionSuggestion(h.session.ID, suggestion.ID, model.SuggestionPending, "tester")
	if !errors.Is(err, errors.CodeSuggestionState) {
		t.Errorf("非法流转应被拒绝, got %v", err)
	}

	if err := m.TransitionSuggestion(h.session.ID, uuid.New(), model.SuggestionApplied, "tester"); !errors.Is(err, errors.CodeNotFound) {
		t.Errorf("未知建议应返回 NOT_FOUND, got %v", err)
	}
}
