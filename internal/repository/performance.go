package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/youpai/youpai/pkg/model"
)

// PerformanceRepositoryInterface 效果记录仓储接口（仅追加）
type PerformanceRepositoryInterface interface {
	Create(ctx context.Context, record *model.PerformanceRecord) error
	ListByPattern(ctx context.Context, pattern model.PatternType) ([]*model.PerformanceRecord, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*model.PerformanceRecord, error)
}

// PerformanceRepository 效果记录仓储实现
type PerformanceRepository struct {
	db DB
}

// NewPerformanceRepository 创建效果记录仓储
func NewPerformanceRepository(db DB) *PerformanceRepository {
	return &PerformanceRepository{db: db}
}

// Create 追加一条效果记录，表无更新与删除路径
func (r *PerformanceRepository) Create(ctx context.Context, record *model.PerformanceRecord) error {
	query := `
		INSERT INTO performance_records (
			id, suggestion_id, session_id, pattern,
			projected_coverage, actual_coverage, projected_cost, actual_cost,
			projected_service_level, actual_service_level, user_acceptance, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.ExecContext(ctx, query,
		record.ID, record.SuggestionID, record.SessionID, string(record.Pattern),
		record.ProjectedCoverage, record.ActualCoverage, record.ProjectedCost, record.ActualCost,
		record.ProjectedServiceLevel, record.ActualServiceLevel, record.UserAcceptance, record.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("追加效果记录失败: %w", err)
	}
	return nil
}

// ListByPattern 列出某模式的全部效果记录
func (r *PerformanceRepository) ListByPattern(ctx context.Context, pattern model.PatternType) ([]*model.PerformanceRecord, error) {
	query := selectPerformance + " WHERE pattern = $1 ORDER BY recorded_at ASC"
	return r.list(ctx, query, string(pattern))
}

// ListBySession 列出某会话的全部效果记录
func (r *PerformanceRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*model.PerformanceRecord, error) {
	query := selectPerformance + " WHERE session_id = $1 ORDER BY recorded_at ASC"
	return r.list(ctx, query, sessionID)
}

const selectPerformance = `
	SELECT id, suggestion_id, session_id, pattern,
		projected_coverage, actual_coverage, projected_cost, actual_cost,
		projected_service_level, actual_service_level, user_acceptance, recorded_at
	FROM performance_records
`

func (r *PerformanceRepository) list(ctx context.Context, query string, arg interface{}) ([]*model.PerformanceRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("查询效果记录失败: %w", err)
	}
	defer rows.Close()

	var records []*model.PerformanceRecord
	for rows.Next() {
		var (
			rec     model.PerformanceRecord
			pattern string
		)
		err := rows.Scan(
			&rec.ID, &rec.SuggestionID, &rec.SessionID, &pattern,
			&rec.ProjectedCoverage, &rec.ActualCoverage, &rec.ProjectedCost, &rec.ActualCost,
			&rec.ProjectedServiceLevel, &rec.ActualServiceLevel, &rec.UserAcceptance, &rec.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("扫描效果记录失败: %w", err)
		}
		rec.Pattern = model.PatternType(pattern)
		records = append(records, &rec)
	}
	return records, rows.Err()
}
