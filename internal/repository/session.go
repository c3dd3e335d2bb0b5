package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/youpai/youpai/pkg/model"
)

// SessionRepositoryInterface 优化会话仓储接口
type SessionRepositoryInterface interface {
	Create(ctx context.Context, session *model.OptimizationSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.OptimizationSession, error)
	UpdateState(ctx context.Context, session *model.OptimizationSession) error
	List(ctx context.Context, filter ListFilter) ([]*model.OptimizationSession, int, error)
}

// SessionRepository 优化会话仓储实现
type SessionRepository struct {
	db DB
}

// NewSessionRepository 创建会话仓储
func NewSessionRepository(db DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create 持久化新会话
func (r *SessionRepository) Create(ctx context.Context, session *model.OptimizationSession) error {
	scopeJSON, _ := json.Marshal(session.Scope)

	query := `
		INSERT INTO optimization_sessions (
			id, requester, period_start, period_end, scope, stage, progress,
			status, time_budget_ms, started_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		session.ID, session.Requester, session.Period.Start, session.Period.End,
		scopeJSON, string(session.Stage), session.Progress,
		string(session.Status), session.TimeBudget.Milliseconds(),
		session.StartedAt, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("创建优化会话失败: %w", err)
	}
	return nil
}

// GetByID 根据ID获取会话
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.OptimizationSession, error) {
	query := `
		SELECT id, requester, period_start, period_end, scope, stage, progress,
			status, time_budget_ms, started_at, finished_at, summary, error_message
		FROM optimization_sessions
		WHERE id = $1
	`
	return scanSession(r.db.QueryRowContext(ctx, query, id))
}

// UpdateState 更新会话阶段、进度与终态信息
func (r *SessionRepository) UpdateState(ctx context.Context, session *model.OptimizationSession) error {
	var summaryJSON []byte
	if session.Summary != nil {
		summaryJSON, _ = json.Marshal(session.Summary)
	}

	query := `
		UPDATE optimization_sessions
		SET stage = $2, progress = $3, status = $4, finished_at = $5,
			summary = $6, error_message = $7, updated_at = $8
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		session.ID, string(session.Stage), session.Progress, string(session.Status),
		session.FinishedAt, summaryJSON, session.Error, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("更新优化会话失败: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List 按过滤器列出会话
func (r *SessionRepository) List(ctx context.Context, filter ListFilter) ([]*model.OptimizationSession, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	idx := 1

	if filter.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, filter.Status)
		idx++
	}
	if filter.StartDate != "" {
		where += fmt.Sprintf(" AND started_at >= $%d", idx)
		args = append(args, filter.StartDate)
		idx++
	}
	if filter.EndDate != "" {
		where += fmt.Sprintf(" AND started_at <= $%d", idx)
		args = append(args, filter.EndDate)
		idx++
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM optimization_sessions " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("统计优化会话失败: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, requester, period_start, period_end, scope, stage, progress,
			status, time_budget_ms, started_at, finished_at, summary, error_message
		FROM optimization_sessions %s
		ORDER BY started_at DESC
		LIMIT $%d OFFSET $%d
	`, where, idx, idx+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("查询优化会话失败: %w", err)
	}
	defer rows.Close()

	var sessions []*model.OptimizationSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		sessions = append(sessions, s)
	}
	return sessions, total, rows.Err()
}

// scanSession 从行扫描会话
func scanSession(row Scanner) (*model.OptimizationSession, error) {
	var (
		s            model.OptimizationSession
		stage        string
		status       string
		budgetMs     int64
		scopeJSON    []byte
		summaryJSON  []byte
		finishedAt   sql.NullTime
		errorMessage sql.NullString
	)
	err := row.Scan(
		&s.ID, &s.Requester, &s.Period.Start, &s.Period.End, &scopeJSON,
		&stage, &s.Progress, &status, &budgetMs, &s.StartedAt,
		&finishedAt, &summaryJSON, &errorMessage,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("扫描优化会话失败: %w", err)
	}

	s.Stage = model.Stage(stage)
	s.Status = model.SessionStatus(status)
	s.TimeBudget = time.Duration(budgetMs) * time.Millisecond
	if finishedAt.Valid {
		s.FinishedAt = &finishedAt.Time
	}
	if errorMessage.Valid {
		s.Error = errorMessage.String
	}
	if len(scopeJSON) > 0 {
		if err := json.Unmarshal(scopeJSON, &s.Scope); err != nil {
			return nil, fmt.Errorf("解析会话范围失败: %w", err)
		}
	}
	if len(summaryJSON) > 0 {
		s.Summary = &model.SessionSummary{}
		if err := json.Unmarshal(summaryJSON, s.Summary); err != nil {
			return nil, fmt.Errorf("解析会话摘要失败: %w", err)
		}
	}
	return &s, nil
}
