package bulk

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/youpai/youpai/pkg/model"
)

// lockManager 操作员×日期粒度的悲观锁
// 多键按字典序统一加锁，杜绝两次批量应用之间的死锁
type lockManager struct {
	mu    sync.Mutex
	locks map[string]bool
}

func newLockManager() *lockManager {
	return &lockManager{locks: make(map[string]bool)}
}

// lockKeys 收集一组变更涉及的全部操作员日期键，去重并排序
func lockKeys(changes []model.ScheduleChange) []string {
	seen := make(map[string]bool)
	var keys []string
	add := func(op uuid.UUID, tr *model.TimeRange) {
		if tr == nil {
			return
		}
		for d := truncateDay(tr.Start); d.Before(tr.End); d = d.Add(24 * time.Hour) {
			key := fmt.Sprintf("%s/%s", op, d.Format("2006-01-02"))
			if !seen[key] {
				seen[key] = true
				keys = append(keys, key)
			}
		}
	}
	for _, ch := range changes {
		add(ch.OperatorID, ch.From)
		add(ch.OperatorID, ch.To)
	}
	sort.Strings(keys)
	return keys
}

// acquire 一次性获取全部键，任一已被占用则全部不获取
func (lm *lockManager) acquire(keys []string) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	for _, k := range keys {
		if lm.locks[k] {
			return false
		}
	}
	for _, k := range keys {
		lm.locks[k] = true
	}
	return true
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// release 释放已持有的键
func (lm *lockManager) release(keys []string) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	for _, k := range keys {
		delete(lm.locks, k)
	}
}
