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

// SuggestionRepositoryInterface 建议仓储接口
type SuggestionRepositoryInterface interface {
	CreateBatch(ctx context.Context, suggestions []*model.Suggestion) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Suggestion, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*model.Suggestion, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.SuggestionStatus) error
}

// SuggestionRepository 建议仓储实现
type SuggestionRepository struct {
	db DB
}

// NewSuggestionRepository 创建建议仓储
func NewSuggestionRepository(db DB) *SuggestionRepository {
	return &SuggestionRepository{db: db}
}

// CreateBatch 批量持久化会话产出的建议
func (r *SuggestionRepository) CreateBatch(ctx context.Context, suggestions []*model.Suggestion) error {
	query := `
		INSERT INTO suggestions (
			id, session_id, candidate_seq, candidate_id, pattern, changes,
			operators, gap_ids, delta_cost, validation, score, rank,
			risk_assessment, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	now := time.Now()
	for _, s := range suggestions {
		changesJSON, _ := json.Marshal(s.Changes)
		operatorsJSON, _ := json.Marshal(s.Operators)
		gapsJSON, _ := json.Marshal(s.GapIDs)
		validationJSON, _ := json.Marshal(s.Validation)
		scoreJSON, _ := json.Marshal(s.Score)

		_, err := r.db.ExecContext(ctx, query,
			s.ID, s.SessionID, s.CandidateSeq, s.CandidateID, string(s.Pattern),
			changesJSON, operatorsJSON, gapsJSON, s.DeltaCost,
			validationJSON, scoreJSON, s.Rank, string(s.Risk), string(s.Status), now,
		)
		if err != nil {
			return fmt.Errorf("持久化建议 %s 失败: %w", s.ID, err)
		}
	}
	return nil
}

// GetByID 根据ID获取建议
func (r *SuggestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Suggestion, error) {
	query := selectSuggestion + " WHERE id = $1"
	return scanSuggestion(r.db.QueryRowContext(ctx, query, id))
}

// ListBySession 列出会话的全部建议，按排名升序
func (r *SuggestionRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*model.Suggestion, error) {
	query := selectSuggestion + " WHERE session_id = $1 ORDER BY rank ASC"
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("查询建议失败: %w", err)
	}
	defer rows.Close()

	var suggestions []*model.Suggestion
	for rows.Next() {
		s, err := scanSuggestion(rows)
		if err != nil {
			return nil, err
		}
		suggestions = append(suggestions, s)
	}
	return suggestions, rows.Err()
}

// UpdateStatus 更新建议状态
func (r *SuggestionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.SuggestionStatus) error {
	query := `UPDATE suggestions SET status = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, string(status), time.Now())
	if err != nil {
		return fmt.Errorf("更新建议状态失败: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const selectSuggestion = `
	SELECT id, session_id, candidate_seq, candidate_id, pattern, changes,
		operators, gap_ids, delta_cost, validation, score, rank,
		risk_assessment, status
	FROM suggestions
`

// scanSuggestion 从行扫描建议
func scanSuggestion(row Scanner) (*model.Suggestion, error) {
	var (
		s              model.Suggestion
		pattern        string
		risk           string
		status         string
		changesJSON    []byte
		operatorsJSON  []byte
		gapsJSON       []byte
		validationJSON []byte
		scoreJSON      []byte
	)
	err := row.Scan(
		&s.ID, &s.SessionID, &s.CandidateSeq, &s.CandidateID, &pattern,
		&changesJSON, &operatorsJSON, &gapsJSON, &s.DeltaCost,
		&validationJSON, &scoreJSON, &s.Rank, &risk, &status,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("扫描建议失败: %w", err)
	}

	s.Pattern = model.PatternType(pattern)
	s.Risk = model.RiskTier(risk)
	s.Status = model.SuggestionStatus(status)
	if err := json.Unmarshal(changesJSON, &s.Changes); err != nil {
		return nil, fmt.Errorf("解析建议变更失败: %w", err)
	}
	if err := json.Unmarshal(operatorsJSON, &s.Operators); err != nil {
		return nil, fmt.Errorf("解析建议操作员失败: %w", err)
	}
	if err := json.Unmarshal(gapsJSON, &s.GapIDs); err != nil {
		return nil, fmt.Errorf("解析建议缺口失败: %w", err)
	}
	if len(validationJSON) > 0 {
		s.Validation = &model.ValidationResult{}
		if err := json.Unmarshal(validationJSON, s.Validation); err != nil {
			return nil, fmt.Errorf("解析建议验证结果失败: %w", err)
		}
	}
	if err := json.Unmarshal(scoreJSON, &s.Score); err != nil {
		return nil, fmt.Errorf("解析建议评分失败: %w", err)
	}
	return &s, nil
}
