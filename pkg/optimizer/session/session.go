// Package session 提供优化会话的编排与生命周期管理
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/youpai/youpai/pkg/audit"
	"github.com/youpai/youpai/pkg/catalog"
	"github.com/youpai/youpai/pkg/errors"
	"github.com/youpai/youpai/pkg/logger"
	"github.com/youpai/youpai/pkg/model"
	"github.com/youpai/youpai/pkg/optimizer/gap"
	"github.com/youpai/youpai/pkg/optimizer/pattern"
	"github.com/youpai/youpai/pkg/optimizer/rank"
	"github.com/youpai/youpai/pkg/optimizer/score"
	"github.com/youpai/youpai/pkg/optimizer/validate"
)

// 时间预算边界（秒）
const (
	MinBudgetSeconds = 5
	MaxBudgetSeconds = 60
)

// Inputs 会话输入：预测序列与当前排班快照
type Inputs struct {
	Forecast []*model.ForecastPoint
	Snapshot *model.ScheduleSnapshot
}

// Config 会话配置
type Config struct {
	TimeBudget time.Duration  // 处理时间预算，限定在 5-60 秒
	Pattern    pattern.Config // 候选生成配置
	TopN       int            // 返回建议数上限，0 表示不限
}

// Status 轮询返回的会话状态
type Status struct {
	SessionID uuid.UUID           `json:"session_id"`
	Stage     model.Stage         `json:"stage"`
	Progress  int                 `json:"progress"`
	Status    model.SessionStatus `json:"status"`
	ETA       *time.Time          `json:"eta,omitempty"` // 预计完成时间，仅运行中给出
	Error     string              `json:"error,omitempty"`
}

// handle 会话句柄，编排器独占持有
type handle struct {
	mu          sync.Mutex
	session     *model.OptimizationSession
	inputs      Inputs
	cfg         Config
	gaps        []*model.CoverageGap
	suggestions []*model.Suggestion
	cancelled   bool
}

// Manager 会话管理器
// 会话状态仅由流水线 goroutine 经句柄互斥量修改
type Manager struct {
	mu          sync.RWMutex
	sessions    map[uuid.UUID]*handle
	constraints *catalog.ConstraintCatalog
	goals       *catalog.GoalCatalog
	priors      func() map[model.PatternType]float64
	sink        audit.Sink
	logger      *logger.OptimizerLogger
}

// NewManager 创建会话管理器
// priors 提供来自效果追踪的模式先验，可为 nil
func NewManager(constraints *catalog.ConstraintCatalog, goals *catalog.GoalCatalog, priors func() map[model.PatternType]float64, sink audit.Sink) *Manager {
	if sink == nil {
		sink = audit.NewLogSink()
	}
	return &Manager{
		sessions:    make(map[uuid.UUID]*handle),
		constraints: constraints,
		goals:       goals,
		priors:      priors,
		sink:        sink,
		logger:      logger.NewOptimizerLogger(),
	}
}

// Start 校验输入并启动优化会话，立即返回会话编号
func (m *Manager) Start(requester string, period model.TimeRange, scope model.Scope, inputs Inputs, cfg Config) (uuid.UUID, error) {
	if period.IsZero() || !period.End.After(period.Start) {
		return uuid.Nil, errors.InvalidScope("优化时段为空或起止颠倒")
	}
	if inputs.Snapshot == nil || len(inputs.Snapshot.Operators) == 0 {
		return uuid.Nil, errors.InvalidScope("范围内没有可排班的操作员")
	}
	staffable := 0
	for _, op := range inputs.Snapshot.Operators {
		if scope.Matches(op.Unit) {
			staffable++
		}
	}
	if staffable == 0 {
		return uuid.Nil, errors.InvalidScope("指定单元内没有可排班的操作员")
	}
	if len(inputs.Forecast) == 0 {
		return uuid.Nil, errors.InvalidScope("缺少预测数据")
	}

	cfg.TimeBudget = clampBudget(cfg.TimeBudget)

	now := time.Now()
	s := &model.OptimizationSession{
		ID:         uuid.New(),
		Requester:  requester,
		Period:     period,
		Scope:      scope,
		Stage:      model.StageAnalyzingCoverage,
		Progress:   0,
		Status:     model.SessionRunning,
		TimeBudget: cfg.TimeBudget,
		StartedAt:  now,
	}

	h := &handle{session: s, inputs: inputs, cfg: cfg}
	m.mu.Lock()
	m.sessions[s.ID] = h
	m.mu.Unlock()

	m.logger.SessionStarted(s.ID.String(), len(inputs.Forecast), int(cfg.TimeBudget.Seconds()))
	m.sink.Record(audit.Event{
		Type:     audit.EventSessionStarted,
		ActorID:  requester,
		Action:   "启动优化会话",
		EntityID: s.ID.String(),
		After:    map[string]interface{}{"period": period, "scope": scope, "budget_seconds": cfg.TimeBudget.Seconds()},
	})

	go m.run(h)
	return s.ID, nil
}

// Poll 返回会话当前阶段、进度与预计完成时间
func (m *Manager) Poll(id uuid.UUID) (*Status, error) {
	h, err := m.handle(id)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	st := &Status{
		SessionID: h.session.ID,
		Stage:     h.session.Stage,
		Progress:  h.session.Progress,
		Status:    h.session.Status,
		Error:     h.session.Error,
	}
	if h.session.Status == model.SessionRunning {
		eta := h.session.StartedAt.Add(h.session.TimeBudget)
		st.ETA = &eta
	}
	return st, nil
}

// Session 返回会话的完整快照副本
func (m *Manager) Session(id uuid.UUID) (*model.OptimizationSession, error) {
	h, err := m.handle(id)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	copied := *h.session
	return &copied, nil
}

// Cancel 请求取消会话，排名阶段不可取消
func (m *Manager) Cancel(id uuid.UUID, actor string) error {
	h, err := m.handle(id)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.session.Status.Terminal() {
		return errors.New(errors.CodeCancelNotAllowed, "会话已结束，无法取消")
	}
	if !h.session.Stage.CanBeCancelled() {
		return errors.New(errors.CodeCancelNotAllowed, "排名提交阶段不可取消").
			WithField("stage", string(h.session.Stage))
	}
	h.cancelled = true
	m.sink.Record(audit.Event{
		Type:     audit.EventSessionCancelled,
		ActorID:  actor,
		Action:   "取消优化会话",
		EntityID: id.String(),
		Before:   map[string]interface{}{"stage": h.session.Stage, "progress": h.session.Progress},
	})
	return nil
}

// Suggestions 返回会话产出的建议，仅终态 completed/timeout 可取
func (m *Manager) Suggestions(id uuid.UUID) ([]*model.Suggestion, error) {
	h, err := m.handle(id)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.session.Status {
	case model.SessionCompleted, model.SessionTimeout:
		// 返回副本：状态流转只经 TransitionSuggestion 在句柄锁内进行，
		// 调用方持有的对象不会被并发修改
		out := make([]*model.Suggestion, 0, len(h.suggestions))
		for _, s := range h.suggestions {
			copied := *s
			out = append(out, &copied)
		}
		return out, nil
	case model.SessionRunning:
		return nil, errors.New(errors.CodeSessionNotDone, "会话尚未结束")
	default:
		return nil, errors.New(errors.CodeSessionNotDone, "会话未产出建议").
			WithField("status", string(h.session.Status))
	}
}

// Suggestion 按编号查找建议
func (m *Manager) Suggestion(sessionID, suggestionID uuid.UUID) (*model.Suggestion, error) {
	suggestions, err := m.Suggestions(sessionID)
	if err != nil {
		return nil, err
	}
	for _, s := range suggestions {
		if s.ID == suggestionID {
			return s, nil
		}
	}
	return nil, errors.NotFound("建议", suggestionID.String())
}

// Gaps 返回会话分析出的覆盖缺口
func (m *Manager) Gaps(id uuid.UUID) ([]*model.CoverageGap, error) {
	h, err := m.handle(id)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*model.CoverageGap, len(h.gaps))
	copy(out, h.gaps)
	return out, nil
}

// Snapshot 返回会话启动时的排班快照，批量应用前用于同步排班存储基线
func (m *Manager) Snapshot(id uuid.UUID) (*model.ScheduleSnapshot, error) {
	h, err := m.handle(id)
	if err != nil {
		return nil, err
	}
	return h.inputs.Snapshot, nil
}

// SuggestionStatus 在句柄锁内读取建议的当前状态
func (m *Manager) SuggestionStatus(sessionID, suggestionID uuid.UUID) (model.SuggestionStatus, error) {
	h, err := m.handle(sessionID)
	if err != nil {
		return "", err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.suggestions {
		if s.ID == suggestionID {
			return s.Status, nil
		}
	}
	return "", errors.NotFound("建议", suggestionID.String())
}

// TransitionSuggestion 执行建议状态流转
func (m *Manager) TransitionSuggestion(sessionID, suggestionID uuid.UUID, next model.SuggestionStatus, actor string) error {
	h, err := m.handle(sessionID)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, s := range h.suggestions {
		if s.ID != suggestionID {
			continue
		}
		if !s.CanTransitionTo(next) {
			return errors.New(errors.CodeSuggestionState, "建议状态流转不合法").
				WithField("from", string(s.Status)).WithField("to", string(next))
		}
		before := s.Status
		s.Status = next
		m.sink.Record(audit.Event{
			Type:     audit.EventSuggestionStatus,
			ActorID:  actor,
			Action:   "建议状态变更",
			EntityID: suggestionID.String(),
			Before:   map[string]interface{}{"status": string(before)},
			After:    map[string]interface{}{"status": string(next)},
		})
		return nil
	}
	return errors.NotFound("建议", suggestionID.String())
}

func (m *Manager) handle(id uuid.UUID) (*handle, error) {
	m.mu.RLock()
	h, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, errors.ErrSessionNotFound
	}
	return h, nil
}

func clampBudget(d time.Duration) time.Duration {
	if d < MinBudgetSeconds*time.Second {
		return MinBudgetSeconds * time.Second
	}
	if d > MaxBudgetSeconds*time.Second {
		return MaxBudgetSeconds * time.Second
	}
	return d
}

// sessionPriors 取当前模式先验
func (m *Manager) sessionPriors() map[model.PatternType]float64 {
	if m.priors == nil {
		return nil
	}
	return m.priors()
}

// checkpointResult 流水线检查点结果
type checkpointResult int

const (
	checkpointOK checkpointResult = iota
	checkpointCancelled
	checkpointBudgetExpired
)

// checkpoint 在阶段边界与聚簇之间检查取消请求与墙钟预算
func (h *handle) checkpoint(deadline time.Time) checkpointResult {
	h.mu.Lock()
	cancelled := h.cancelled
	h.mu.Unlock()
	if cancelled {
		return checkpointCancelled
	}
	if time.Now().After(deadline) {
		return checkpointBudgetExpired
	}
	return checkpointOK
}

// setStage 推进阶段并设置进度下限，进度保持单调非减
func (h *handle) setStage(stage model.Stage, logger *logger.OptimizerLogger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	from := h.session.Stage
	h.session.Stage = stage
	base := 0
	for _, s := range model.StageOrder {
		if s == stage {
			break
		}
		base += model.StageWeights[s]
	}
	if base > h.session.Progress {
		h.session.Progress = base
	}
	logger.StageTransition(h.session.ID.String(), string(from), string(stage), h.session.Progress)
}

// setProgress 更新进度，仅允许增长
func (h *handle) setProgress(p int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p > 100 {
		p = 100
	}
	if p > h.session.Progress {
		h.session.Progress = p
	}
}

// stageProgress 计算某阶段内完成比例对应的总进度
func stageProgress(stage model.Stage, done, total int) int {
	base := 0
	for _, s := range model.StageOrder {
		if s == stage {
			break
		}
		base += model.StageWeights[s]
	}
	if total <= 0 {
		return base + model.StageWeights[stage]
	}
	return base + model.StageWeights[stage]*done/total
}

// finish 落终态并记录摘要
func (m *Manager) finish(h *handle, status model.SessionStatus, errMsg string) {
	h.mu.Lock()
	now := time.Now()
	h.session.Status = status
	h.session.FinishedAt = &now
	h.session.Error = errMsg
	if status == model.SessionCompleted {
		h.session.Progress = 100
	}
	id := h.session.ID
	duration := now.Sub(h.session.StartedAt)
	count := len(h.suggestions)
	best := 0.0
	if count > 0 {
		best = h.suggestions[0].Score.Total
	}
	h.mu.Unlock()

	m.logger.SessionFinished(id.String(), string(status), duration, count, best)
	m.sink.Record(audit.Event{
		Type:     audit.EventSessionFinished,
		ActorID:  "system",
		Action:   "优化会话结束",
		EntityID: id.String(),
		After: map[string]interface{}{
			"status":      string(status),
			"suggestions": count,
			"best_score":  best,
			"duration_ms": duration.Milliseconds(),
		},
	})
}

// run 执行优化流水线
// 阶段顺序固定，取消与预算仅在检查点生效；预算耗尽时对已生成候选
// 做一次有界的验证评分排名，以 timeout 状态返回部分结果
func (m *Manager) run(h *handle) {
	defer func() {
		if r := recover(); r != nil {
			m.finish(h, model.SessionFailed, fmt.Sprintf("阶段执行异常: %v", r))
		}
	}()

	deadline := h.session.StartedAt.Add(h.session.TimeBudget)
	snapshot := h.inputs.Snapshot
	evalAt := h.session.Period.Start

	// 阶段1：覆盖分析
	h.setStage(model.StageAnalyzingCoverage, m.logger)
	analyzer := gap.NewAnalyzer()

	if r := h.checkpoint(deadline); r != checkpointOK {
		m.abort(h, r, nil, nil, nil)
		return
	}

	// 阶段2：缺口识别
	h.setStage(model.StageIdentifyingGaps, m.logger)
	gaps := analyzer.Analyze(h.inputs.Forecast, snapshot)
	clusters := gap.ClusterGaps(gaps)

	h.mu.Lock()
	h.gaps = gaps
	h.session.Summary = &model.SessionSummary{GapsFound: len(gaps)}
	h.mu.Unlock()

	if len(gaps) == 0 {
		// 无缺口即完成，空建议列表是合法结果
		h.setStage(model.StageRankingSuggestions, m.logger)
		m.finish(h, model.SessionCompleted, "")
		return
	}

	if r := h.checkpoint(deadline); r != checkpointOK {
		m.abort(h, r, gaps, nil, nil)
		return
	}

	// 阶段3：候选生成，聚簇之间设检查点
	h.setStage(model.StageGeneratingVariants, m.logger)
	generator := pattern.NewGenerator(h.cfg.Pattern, pattern.DefaultLibrary(), m.sessionPriors())

	var candidates []*model.Candidate
	nextSeq := 1
	interrupted := false
	for i, cluster := range clusters {
		if r := h.checkpoint(deadline); r != checkpointOK {
			if r == checkpointCancelled {
				m.abort(h, r, gaps, nil, nil)
				return
			}
			interrupted = true
			break
		}
		var generated []*model.Candidate
		generated, nextSeq = generator.GenerateCluster(cluster, snapshot, h.session.Scope, nextSeq)
		candidates = append(candidates, generated...)
		h.setProgress(stageProgress(model.StageGeneratingVariants, i+1, len(clusters)))
	}

	result := generator.Finalize(candidates, gaps)

	// 阶段4：约束验证
	h.setStage(model.StageValidatingConstraints, m.logger)
	validator := validate.NewValidator(m.constraints)
	validations := validator.ValidateAll(result.Candidates, snapshot, gaps, evalAt)

	if !interrupted {
		if r := h.checkpoint(deadline); r != checkpointOK {
			if r == checkpointCancelled {
				m.abort(h, r, gaps, nil, nil)
				return
			}
			interrupted = true
		}
	}

	// 阶段5：评分与排名，不可取消
	h.setStage(model.StageRankingSuggestions, m.logger)
	scorer := score.NewScorer(m.goals)
	ranker := rank.NewRanker(scorer, h.cfg.TopN)
	suggestions := ranker.Rank(h.session.ID, result.Candidates, validations, totalSeverity(gaps), snapshot.TotalCost())

	excluded := 0
	for _, v := range validations {
		if v.Excluded {
			excluded++
		}
	}

	h.mu.Lock()
	h.suggestions = suggestions
	h.session.Summary = buildSummary(gaps, result, excluded, suggestions)
	h.mu.Unlock()

	if interrupted {
		// 预算耗尽：已完成的有界收尾产出部分结果
		m.finish(h, model.SessionTimeout, errors.ErrBudgetExceeded.Message)
		return
	}
	m.finish(h, model.SessionCompleted, "")
}

// abort 处理检查点中断
// 取消直接落 cancelled；预算耗尽且已有缺口数据时仍给出摘要
func (m *Manager) abort(h *handle, r checkpointResult, gaps []*model.CoverageGap, _ []*model.Candidate, _ []*model.Suggestion) {
	if gaps != nil {
		h.mu.Lock()
		h.gaps = gaps
		if h.session.Summary == nil {
			h.session.Summary = &model.SessionSummary{GapsFound: len(gaps)}
		}
		h.mu.Unlock()
	}
	if r == checkpointCancelled {
		m.finish(h, model.SessionCancelled, "")
		return
	}
	m.finish(h, model.SessionTimeout, errors.ErrBudgetExceeded.Message)
}

// totalSeverity 返回全部缺口的严重度权重之和
func totalSeverity(gaps []*model.CoverageGap) float64 {
	var total float64
	for _, g := range gaps {
		total += g.Severity.Weight() * float64(g.Deficit)
	}
	return total
}

// buildSummary 汇总会话结果
func buildSummary(gaps []*model.CoverageGap, result *pattern.Result, excluded int, suggestions []*model.Suggestion) *model.SessionSummary {
	summary := &model.SessionSummary{
		GapsFound:           len(gaps),
		GapsAddressed:       len(gaps) - len(result.UncoveredGapIDs),
		UncoveredGapIDs:     result.UncoveredGapIDs,
		CandidatesGenerated: result.Generated,
		CandidatesExcluded:  excluded,
		Suggestions:         len(suggestions),
		RiskCounts:          make(map[model.RiskTier]int),
	}
	for _, s := range suggestions {
		summary.RiskCounts[s.Risk]++
		if s.Score.Total > summary.BestScore {
			summary.BestScore = s.Score.Total
		}
	}
	return summary
}
