// Package audit 提供排班变更与会话生命周期的审计记录
package audit

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/youpai/youpai/pkg/logger"
)

// EventType 审计事件类型
type EventType string

const (
	EventSessionStarted   EventType = "session_started"
	EventSessionFinished  EventType = "session_finished"
	EventSessionCancelled EventType = "session_cancelled"
	EventSuggestionStatus EventType = "suggestion_status_changed"
	EventBulkApplied      EventType = "bulk_applied"
	EventBulkRolledBack   EventType = "bulk_rolled_back"
	EventPilotPromoted    EventType = "pilot_promoted"
	EventFeedbackRecorded EventType = "feedback_recorded"
)

// Event 审计事件，记录操作前后状态以支持追溯
type Event struct {
	Type     EventType              `json:"event_type"`
	ActorID  string                 `json:"actor_id"` // 调用方身份，系统动作为 "system"
	Action   string                 `json:"action"`
	EntityID string                 `json:"entity_id"`
	Before   map[string]interface{} `json:"before,omitempty"`
	After    map[string]interface{} `json:"after,omitempty"`
	At       time.Time              `json:"at"`
}

// Sink 审计事件接收器
type Sink interface {
	Record(e Event)
}

// LogSink 基于结构化日志的审计接收器
type LogSink struct {
	base *zerolog.Logger
}

// NewLogSink 创建日志审计接收器
func NewLogSink() *LogSink {
	l := logger.Get().With().Str("component", "audit").Logger()
	return &LogSink{base: &l}
}

// Record 记录审计事件
func (s *LogSink) Record(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	ev := s.base.Info().
		Str("event_type", string(e.Type)).
		Str("actor_id", e.ActorID).
		Str("action", e.Action).
		Str("entity_id", e.EntityID).
		Time("at", e.At)
	if e.Before != nil {
		ev = ev.Interface("before", e.Before)
	}
	if e.After != nil {
		ev = ev.Interface("after", e.After)
	}
	ev.Msg("审计事件")
}

// MemorySink 内存审计接收器，测试与回放用
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink 创建内存审计接收器
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Record 记录审计事件
func (s *MemorySink) Record(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

// Events 返回已记录事件的副本
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
