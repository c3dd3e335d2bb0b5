package bulk

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/youpai/youpai/pkg/errors"
	"github.com/youpai/youpai/pkg/model"
)

// ScheduleStore 排班存储抽象
// 提交与回滚以变更列表为单位，实现方保证单次调用的原子性
type ScheduleStore interface {
	// Snapshot 返回当前排班快照
	Snapshot() (*model.ScheduleSnapshot, error)

	// SyncBaseline 将会话输入的排班基线合并进存储
	SyncBaseline(snapshot *model.ScheduleSnapshot) error

	// ApplyChanges 原子应用一组变更
	ApplyChanges(changes []model.ScheduleChange) error

	// RestoreShifts 以快照整体恢复指定操作员的班次
	RestoreShifts(operators []uuid.UUID, shifts []*model.ScheduledShift) error
}

// MemoryStore 内存排班存储，测试与单机部署用
type MemoryStore struct {
	mu        sync.RWMutex
	shifts    map[uuid.UUID]*model.ScheduledShift
	removed   map[uuid.UUID]bool // 本地删除过的班次，基线同步不得复活
	operators []*model.Operator
}

// NewMemoryStore 从快照初始化内存存储
func NewMemoryStore(snapshot *model.ScheduleSnapshot) *MemoryStore {
	s := &MemoryStore{
		shifts:    make(map[uuid.UUID]*model.ScheduledShift),
		removed:   make(map[uuid.UUID]bool),
		operators: snapshot.Operators,
	}
	for _, shift := range snapshot.Shifts {
		copied := *shift
		s.shifts[shift.ID] = &copied
	}
	return s
}

// SyncBaseline 合并基线快照：只补充存储中不存在的班次与操作员，
// 已有班次以本地状态为准，删除过的班次不会被重新带入
func (s *MemoryStore) SyncBaseline(snapshot *model.ScheduleSnapshot) error {
	if snapshot == nil {
		return errors.InvalidInput("snapshot", "基线快照为空")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	known := make(map[uuid.UUID]bool, len(s.operators))
	for _, op := range s.operators {
		known[op.ID] = true
	}
	for _, op := range snapshot.Operators {
		if !known[op.ID] {
			s.operators = append(s.operators, op)
			known[op.ID] = true
		}
	}

	for _, shift := range snapshot.Shifts {
		if s.removed[shift.ID] {
			continue
		}
		if _, ok := s.shifts[shift.ID]; ok {
			continue
		}
		copied := *shift
		s.shifts[shift.ID] = &copied
	}
	return nil
}

// Snapshot 返回当前排班快照
func (s *MemoryStore) Snapshot() (*model.ScheduleSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shifts := make([]*model.ScheduledShift, 0, len(s.shifts))
	for _, shift := range s.shifts {
		copied := *shift
		shifts = append(shifts, &copied)
	}
	sort.Slice(shifts, func(i, j int) bool {
		if !shifts[i].Period.Start.Equal(shifts[j].Period.Start) {
			return shifts[i].Period.Start.Before(shifts[j].Period.Start)
		}
		return shifts[i].ID.String() < shifts[j].ID.String()
	})
	return &model.ScheduleSnapshot{Shifts: shifts, Operators: s.operators}, nil
}

// ApplyChanges 原子应用一组变更，任一变更无效则全部不生效
func (s *MemoryStore) ApplyChanges(changes []model.ScheduleChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 先整体校验再落盘
	for _, ch := range changes {
		switch ch.Op {
		case model.ChangeModify, model.ChangeRemove:
			if ch.ShiftID == nil {
				return errors.New(errors.CodeCommitFailed, "modify/remove 变更缺少班次编号")
			}
			if _, ok := s.shifts[*ch.ShiftID]; !ok {
				return errors.NotFound("班次", ch.ShiftID.String())
			}
		case model.ChangeAdd:
			if ch.To == nil {
				return errors.New(errors.CodeCommitFailed, "add 变更缺少时段")
			}
		}
	}

	for _, ch := range changes {
		switch ch.Op {
		case model.ChangeAdd:
			shift := &model.ScheduledShift{
				ID:         uuid.New(),
				OperatorID: ch.OperatorID,
				Unit:       ch.Unit,
				Period:     *ch.To,
				SkillTags:  ch.SkillTags,
			}
			s.shifts[shift.ID] = shift
		case model.ChangeModify:
			s.shifts[*ch.ShiftID].Period = *ch.To
		case model.ChangeRemove:
			delete(s.shifts, *ch.ShiftID)
			s.removed[*ch.ShiftID] = true
		}
	}
	return nil
}

// RestoreShifts 删除指定操作员的全部班次后按快照恢复
func (s *MemoryStore) RestoreShifts(operators []uuid.UUID, shifts []*model.ScheduledShift) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	affected := make(map[uuid.UUID]bool, len(operators))
	for _, op := range operators {
		affected[op] = true
	}
	for id, shift := range s.shifts {
		if affected[shift.OperatorID] {
			delete(s.shifts, id)
		}
	}
	for _, shift := range shifts {
		if !affected[shift.OperatorID] {
			continue
		}
		copied := *shift
		s.shifts[shift.ID] = &copied
		delete(s.removed, shift.ID)
	}
	return nil
}
