// Package bulk 提供建议的批量应用、回滚与试点推广
package bulk

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/youpai/youpai/pkg/audit"
	"github.com/youpai/youpai/pkg/errors"
	"github.com/youpai/youpai/pkg/logger"
	"github.com/youpai/youpai/pkg/model"
)

// SuggestionGuard 建议状态的并发安全读写入口
// 会话管理器实现该接口，读写都在会话句柄锁内串行化
type SuggestionGuard interface {
	SuggestionStatus(sessionID, suggestionID uuid.UUID) (model.SuggestionStatus, error)
	TransitionSuggestion(sessionID, suggestionID uuid.UUID, next model.SuggestionStatus, actor string) error
}

// Coordinator 批量应用协调器
// 所有提交路径共享同一把操作员日期锁，提交前必须生成回滚计划
type Coordinator struct {
	mu     sync.RWMutex
	store  ScheduleStore
	guard  SuggestionGuard
	locks  *lockManager
	ops    map[uuid.UUID]*model.BulkOperation
	sink   audit.Sink
	logger *logger.OptimizerLogger
}

// NewCoordinator 创建批量应用协调器
func NewCoordinator(store ScheduleStore, sink audit.Sink) *Coordinator {
	if sink == nil {
		sink = audit.NewLogSink()
	}
	return &Coordinator{
		store:  store,
		locks:  newLockManager(),
		ops:    make(map[uuid.UUID]*model.BulkOperation),
		sink:   sink,
		logger: logger.NewOptimizerLogger(),
	}
}

// BindGuard 注入建议状态守卫，须在服务开始处理请求前完成
// 绑定后所有建议状态的读写都经守卫串行化；未绑定时直接操作传入对象
func (c *Coordinator) BindGuard(guard SuggestionGuard) {
	c.guard = guard
}

// SyncBaseline 将会话输入的排班基线合并进排班存储
// 批量应用前调用，保证 modify/remove 变更引用的班次存在
func (c *Coordinator) SyncBaseline(snapshot *model.ScheduleSnapshot) error {
	return c.store.SyncBaseline(snapshot)
}

// suggestionStatus 读取建议当前状态
func (c *Coordinator) suggestionStatus(sessionID uuid.UUID, s *model.Suggestion) (model.SuggestionStatus, error) {
	if c.guard == nil {
		return s.Status, nil
	}
	return c.guard.SuggestionStatus(sessionID, s.ID)
}

// markSuggestion 执行建议状态流转
func (c *Coordinator) markSuggestion(sessionID uuid.UUID, s *model.Suggestion, next model.SuggestionStatus, actor string) error {
	if c.guard == nil {
		s.Status = next
		return nil
	}
	return c.guard.TransitionSuggestion(sessionID, s.ID, next, actor)
}

// Evaluate 计算所选建议的合并影响并做冲突检测
// 存在同一操作员的时段冲突时结论为 conflicts_found，后续应用会被拒绝
func (c *Coordinator) Evaluate(suggestions []*model.Suggestion) (*model.CombinedImpact, error) {
	if len(suggestions) == 0 {
		return nil, errors.InvalidInput("suggestion_ids", "至少选择一条建议")
	}

	impact := &model.CombinedImpact{ConflictResult: model.NoConflicts}
	operatorHours := make(map[uuid.UUID]float64)

	for _, s := range suggestions {
		impact.SuggestionIDs = append(impact.SuggestionIDs, s.ID)
		impact.CoverageImprovement += s.Score.Coverage
		for _, ch := range s.Changes {
			hours := ch.AddedHours()
			impact.HoursDelta += hours
			operatorHours[ch.OperatorID] += hours
		}
		impact.CostImpact += s.DeltaCost
	}
	impact.OperatorsAffected = len(operatorHours)
	impact.HoursSpread = hoursSpread(operatorHours)

	impact.Conflicts = detectConflicts(suggestions)
	if len(impact.Conflicts) > 0 {
		impact.ConflictResult = model.ConflictsFound
	}
	return impact, nil
}

// Apply 按指定模式批量应用建议
// immediate_full 全量原子提交；phased 分阶段带检查点，部分失败如实上报；
// pilot_program 仅应用试点单元内的变更，其余待显式推广
func (c *Coordinator) Apply(sessionID uuid.UUID, suggestions []*model.Suggestion, mode model.ImplementationMode, pilotUnit string, actor string) (*model.BulkOperation, error) {
	impact, err := c.Evaluate(suggestions)
	if err != nil {
		return nil, err
	}
	if impact.ConflictResult == model.ConflictsFound {
		return nil, errors.ConflictsFound(len(impact.Conflicts))
	}
	if mode == model.ModePilotProgram && pilotUnit == "" {
		return nil, errors.InvalidInput("pilot_unit", "试点模式必须指定试点单元")
	}
	for _, s := range suggestions {
		status, err := c.suggestionStatus(sessionID, s)
		if err != nil {
			return nil, err
		}
		if !model.CanTransition(status, model.SuggestionApplied) {
			return nil, errors.New(errors.CodeSuggestionState, "建议状态不允许应用").
				WithField("suggestion_id", s.ID.String()).WithField("status", string(status))
		}
	}

	op := &model.BulkOperation{
		ID:            uuid.New(),
		SessionID:     sessionID,
		SuggestionIDs: impact.SuggestionIDs,
		Mode:          mode,
		Status:        model.BulkInProgress,
		Impact:        impact,
		PilotUnit:     pilotUnit,
		CreatedAt:     time.Now(),
	}

	allChanges := collectChanges(suggestions, mode, pilotUnit)
	keys := lockKeys(allChanges)
	if !c.locks.acquire(keys) {
		return nil, errors.New(errors.CodeConflictsFound, "涉及的操作员时段正在被另一批量操作修改")
	}
	defer c.locks.release(keys)

	// 回滚计划先于任何提交生成
	plan, err := c.buildRollbackPlan(suggestions, allChanges)
	if err != nil {
		op.Status = model.BulkFailed
		op.Error = err.Error()
		c.remember(op)
		return op, errors.Wrap(err, errors.CodeCommitFailed, "回滚计划生成失败")
	}
	op.Rollback = plan

	switch mode {
	case model.ModeImmediateFull:
		err = c.applyImmediate(op, suggestions, actor)
	case model.ModePhased:
		err = c.applyPhased(op, suggestions, actor)
	case model.ModePilotProgram:
		err = c.applyPilot(op, suggestions, pilotUnit)
	default:
		err = errors.InvalidInput("mode", "未知的应用模式: "+string(mode))
	}

	now := time.Now()
	op.FinishedAt = &now
	c.remember(op)

	c.logger.BulkApply(op.ID.String(), string(mode), len(suggestions))
	c.sink.Record(audit.Event{
		Type:     audit.EventBulkApplied,
		ActorID:  actor,
		Action:   "批量应用建议",
		EntityID: op.ID.String(),
		After: map[string]interface{}{
			"mode":    string(mode),
			"status":  string(op.Status),
			"applied": len(op.Applied),
		},
	})
	return op, err
}

// applyImmediate 全量原子提交，失败即整体回滚
func (c *Coordinator) applyImmediate(op *model.BulkOperation, suggestions []*model.Suggestion, actor string) error {
	var changes []model.ScheduleChange
	for _, s := range suggestions {
		changes = append(changes, s.Changes...)
	}
	if err := c.store.ApplyChanges(changes); err != nil {
		op.Status = model.BulkFailed
		op.Error = err.Error()
		if rbErr := c.restore(op.Rollback, suggestions); rbErr != nil {
			op.Error += "; 回滚失败: " + rbErr.Error()
			return errors.Wrap(rbErr, errors.CodeRollbackFailed, "应用失败且回滚失败")
		}
		return errors.Wrap(err, errors.CodeCommitFailed, "全量应用失败，已回滚")
	}
	for _, s := range suggestions {
		if err := c.markSuggestion(op.SessionID, s, model.SuggestionApplied, actor); err != nil {
			op.Error = err.Error()
			continue
		}
		op.Applied = append(op.Applied, s.ID)
	}
	op.Status = model.BulkCompleted
	return nil
}

// applyPhased 按建议排名分阶段提交，单条失败不影响已提交部分，如实上报
func (c *Coordinator) applyPhased(op *model.BulkOperation, suggestions []*model.Suggestion, actor string) error {
	ordered := make([]*model.Suggestion, len(suggestions))
	copy(ordered, suggestions)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Rank < ordered[j].Rank })

	var firstErr error
	for _, s := range ordered {
		if err := c.store.ApplyChanges(s.Changes); err != nil {
			firstErr = errors.Wrap(err, errors.CodeCommitFailed,
				"分阶段应用在建议 "+s.ID.String()+" 处失败")
			break
		}
		if err := c.markSuggestion(op.SessionID, s, model.SuggestionApplied, actor); err != nil {
			firstErr = err
			break
		}
		op.Applied = append(op.Applied, s.ID)
	}

	if firstErr != nil {
		if len(op.Applied) > 0 {
			op.Status = model.BulkCompleted // 部分成功，已提交部分保持生效
			op.Error = firstErr.Error()
		} else {
			op.Status = model.BulkFailed
			op.Error = firstErr.Error()
		}
		return firstErr
	}
	op.Status = model.BulkCompleted
	return nil
}

// applyPilot 仅提交试点单元内的变更，剩余变更待 Promote
func (c *Coordinator) applyPilot(op *model.BulkOperation, suggestions []*model.Suggestion, pilotUnit string) error {
	var pilot []model.ScheduleChange
	for _, s := range suggestions {
		for _, ch := range s.Changes {
			if ch.Unit == pilotUnit {
				pilot = append(pilot, ch)
			}
		}
	}
	if len(pilot) == 0 {
		op.Status = model.BulkFailed
		op.Error = "试点单元内没有任何变更"
		return errors.InvalidInput("pilot_unit", "试点单元内没有任何变更: "+pilotUnit)
	}
	if err := c.store.ApplyChanges(pilot); err != nil {
		op.Status = model.BulkFailed
		op.Error = err.Error()
		return errors.Wrap(err, errors.CodeCommitFailed, "试点应用失败")
	}
	for _, s := range suggestions {
		op.Applied = append(op.Applied, s.ID)
	}
	op.Status = model.BulkInProgress // 待推广
	return nil
}

// Promote 将试点操作推广到全范围
func (c *Coordinator) Promote(opID uuid.UUID, suggestions []*model.Suggestion, actor string) error {
	op, err := c.Operation(opID)
	if err != nil {
		return err
	}
	if op.Mode != model.ModePilotProgram {
		return errors.New(errors.CodeNotPilotStage, "仅试点模式的操作可推广")
	}
	if op.Promoted {
		return errors.New(errors.CodeNotPilotStage, "试点已推广，不可重复操作")
	}
	if op.Status != model.BulkInProgress {
		return errors.New(errors.CodeNotPilotStage, "试点操作不在待推广状态").
			WithField("status", string(op.Status))
	}

	var rest []model.ScheduleChange
	for _, s := range suggestions {
		for _, ch := range s.Changes {
			if ch.Unit != op.PilotUnit {
				rest = append(rest, ch)
			}
		}
	}
	keys := lockKeys(rest)
	if !c.locks.acquire(keys) {
		return errors.New(errors.CodeConflictsFound, "涉及的操作员时段正在被另一批量操作修改")
	}
	defer c.locks.release(keys)

	if len(rest) > 0 {
		if err := c.store.ApplyChanges(rest); err != nil {
			return errors.Wrap(err, errors.CodeCommitFailed, "试点推广失败")
		}
	}
	for _, s := range suggestions {
		if err := c.markSuggestion(op.SessionID, s, model.SuggestionApplied, actor); err != nil {
			return err
		}
	}

	c.mu.Lock()
	op.Promoted = true
	op.Status = model.BulkCompleted
	now := time.Now()
	op.FinishedAt = &now
	c.mu.Unlock()

	c.sink.Record(audit.Event{
		Type:     audit.EventPilotPromoted,
		ActorID:  actor,
		Action:   "试点推广",
		EntityID: opID.String(),
		After:    map[string]interface{}{"pilot_unit": op.PilotUnit, "changes": len(rest)},
	})
	return nil
}

// RollbackOperation 按回滚计划撤销一次批量操作
func (c *Coordinator) RollbackOperation(opID uuid.UUID, suggestions []*model.Suggestion, actor string) error {
	op, err := c.Operation(opID)
	if err != nil {
		return err
	}
	if op.Rollback == nil {
		return errors.New(errors.CodeRollbackFailed, "操作没有回滚计划")
	}
	if op.Status != model.BulkCompleted && op.Status != model.BulkInProgress {
		return errors.New(errors.CodeRollbackFailed, "操作状态不允许回滚").
			WithField("status", string(op.Status))
	}

	if err := c.restore(op.Rollback, suggestions); err != nil {
		return errors.Wrap(err, errors.CodeRollbackFailed, "回滚失败")
	}
	for _, s := range suggestions {
		status, err := c.suggestionStatus(op.SessionID, s)
		if err != nil {
			return err
		}
		if status != model.SuggestionApplied {
			continue
		}
		if err := c.markSuggestion(op.SessionID, s, model.SuggestionRejected, actor); err != nil {
			return err
		}
	}

	c.mu.Lock()
	op.Status = model.BulkCancelled
	now := time.Now()
	op.FinishedAt = &now
	c.mu.Unlock()

	c.sink.Record(audit.Event{
		Type:     audit.EventBulkRolledBack,
		ActorID:  actor,
		Action:   "回滚批量操作",
		EntityID: opID.String(),
		Before:   map[string]interface{}{"applied": len(op.Applied)},
	})
	return nil
}

// Operation 按编号查找批量操作
func (c *Coordinator) Operation(id uuid.UUID) (*model.BulkOperation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	op, ok := c.ops[id]
	if !ok {
		return nil, errors.NotFound("批量操作", id.String())
	}
	return op, nil
}

// buildRollbackPlan 生成提交前快照与逆向增量
func (c *Coordinator) buildRollbackPlan(suggestions []*model.Suggestion, changes []model.ScheduleChange) (*model.RollbackPlan, error) {
	snapshot, err := c.store.Snapshot()
	if err != nil {
		return nil, err
	}

	affected := make(map[uuid.UUID]bool)
	for _, s := range suggestions {
		for _, opID := range s.Operators {
			affected[opID] = true
		}
	}
	var shifts []*model.ScheduledShift
	for _, shift := range snapshot.Shifts {
		if affected[shift.OperatorID] {
			shifts = append(shifts, shift)
		}
	}

	reverse := make([]model.ScheduleChange, 0, len(changes))
	for i := len(changes) - 1; i >= 0; i-- {
		ch := changes[i]
		switch ch.Op {
		case model.ChangeAdd:
			reverse = append(reverse, model.ScheduleChange{
				Op: model.ChangeRemove, OperatorID: ch.OperatorID, Unit: ch.Unit, From: ch.To,
			})
		case model.ChangeRemove:
			reverse = append(reverse, model.ScheduleChange{
				Op: model.ChangeAdd, OperatorID: ch.OperatorID, Unit: ch.Unit, To: ch.From, SkillTags: ch.SkillTags,
			})
		case model.ChangeModify:
			reverse = append(reverse, model.ScheduleChange{
				Op: model.ChangeModify, OperatorID: ch.OperatorID, Unit: ch.Unit,
				ShiftID: ch.ShiftID, From: ch.To, To: ch.From,
			})
		}
	}

	return &model.RollbackPlan{
		Snapshot:       shifts,
		ReverseChanges: reverse,
		CapturedAt:     time.Now(),
	}, nil
}

// restore 以快照恢复受影响操作员的班次
func (c *Coordinator) restore(plan *model.RollbackPlan, suggestions []*model.Suggestion) error {
	var operators []uuid.UUID
	seen := make(map[uuid.UUID]bool)
	for _, s := range suggestions {
		for _, opID := range s.Operators {
			if !seen[opID] {
				seen[opID] = true
				operators = append(operators, opID)
			}
		}
	}
	return c.store.RestoreShifts(operators, plan.Snapshot)
}

func (c *Coordinator) remember(op *model.BulkOperation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops[op.ID] = op
}

// collectChanges 汇总将被提交的变更（试点模式只计试点单元）
func collectChanges(suggestions []*model.Suggestion, mode model.ImplementationMode, pilotUnit string) []model.ScheduleChange {
	var out []model.ScheduleChange
	for _, s := range suggestions {
		for _, ch := range s.Changes {
			if mode == model.ModePilotProgram && ch.Unit != pilotUnit {
				continue
			}
			out = append(out, ch)
		}
	}
	return out
}

// detectConflicts 检测不同建议之间同一操作员的时段重叠
func detectConflicts(suggestions []*model.Suggestion) []model.OperatorConflict {
	type span struct {
		suggestion uuid.UUID
		period     model.TimeRange
	}
	byOperator := make(map[uuid.UUID][]span)
	for _, s := range suggestions {
		for _, ch := range s.Changes {
			period := ch.ResultingPeriod()
			if period.IsZero() {
				continue
			}
			byOperator[ch.OperatorID] = append(byOperator[ch.OperatorID], span{s.ID, period})
		}
	}

	operators := make([]uuid.UUID, 0, len(byOperator))
	for op := range byOperator {
		operators = append(operators, op)
	}
	sort.Slice(operators, func(i, j int) bool { return operators[i].String() < operators[j].String() })

	var conflicts []model.OperatorConflict
	for _, op := range operators {
		spans := byOperator[op]
		for i := 0; i < len(spans); i++ {
			for j := i + 1; j < len(spans); j++ {
				if spans[i].suggestion == spans[j].suggestion {
					continue // 同一建议内的重叠由约束验证裁决
				}
				if spans[i].period.Overlaps(spans[j].period) {
					conflicts = append(conflicts, model.OperatorConflict{
						OperatorID:  op,
						SuggestionA: spans[i].suggestion,
						SuggestionB: spans[j].suggestion,
						Overlap:     spans[i].period.Intersect(spans[j].period),
					})
				}
			}
		}
	}
	return conflicts
}

// hoursSpread 返回操作员间新增工时的最大差值，用于负担均衡展示
func hoursSpread(operatorHours map[uuid.UUID]float64) float64 {
	if len(operatorHours) == 0 {
		return 0
	}
	first := true
	var min, max float64
	for _, h := range operatorHours {
		if first {
			min, max = h, h
			first = false
			continue
		}
		if h < min {
			min = h
		}
		if h > max {
			max = h
		}
	}
	return max - min
}
