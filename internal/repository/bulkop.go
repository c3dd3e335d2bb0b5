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

// BulkOpRepositoryInterface 批量操作仓储接口
type BulkOpRepositoryInterface interface {
	Create(ctx context.Context, op *model.BulkOperation) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.BulkOperation, error)
	Update(ctx context.Context, op *model.BulkOperation) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*model.BulkOperation, error)
}

// BulkOpRepository 批量操作仓储实现
type BulkOpRepository struct {
	db DB
}

// NewBulkOpRepository 创建批量操作仓储
func NewBulkOpRepository(db DB) *BulkOpRepository {
	return &BulkOpRepository{db: db}
}

// Create 持久化批量操作，含完整回滚计划
func (r *BulkOpRepository) Create(ctx context.Context, op *model.BulkOperation) error {
	suggestionsJSON, _ := json.Marshal(op.SuggestionIDs)
	impactJSON, _ := json.Marshal(op.Impact)
	rollbackJSON, _ := json.Marshal(op.Rollback)
	appliedJSON, _ := json.Marshal(op.Applied)

	query := `
		INSERT INTO bulk_operations (
			id, session_id, suggestion_ids, mode, status, impact,
			rollback_plan, applied, pilot_unit, promoted, error_message,
			created_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.ExecContext(ctx, query,
		op.ID, op.SessionID, suggestionsJSON, string(op.Mode), string(op.Status),
		impactJSON, rollbackJSON, appliedJSON, op.PilotUnit, op.Promoted,
		op.Error, op.CreatedAt, op.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("创建批量操作失败: %w", err)
	}
	return nil
}

// GetByID 根据ID获取批量操作
func (r *BulkOpRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.BulkOperation, error) {
	query := selectBulkOp + " WHERE id = $1"
	return scanBulkOp(r.db.QueryRowContext(ctx, query, id))
}

// Update 更新批量操作状态
func (r *BulkOpRepository) Update(ctx context.Context, op *model.BulkOperation) error {
	appliedJSON, _ := json.Marshal(op.Applied)

	query := `
		UPDATE bulk_operations
		SET status = $2, applied = $3, promoted = $4, error_message = $5,
			finished_at = $6, updated_at = $7
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		op.ID, string(op.Status), appliedJSON, op.Promoted, op.Error,
		op.FinishedAt, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("更新批量操作失败: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListBySession 列出会话的全部批量操作
func (r *BulkOpRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*model.BulkOperation, error) {
	query := selectBulkOp + " WHERE session_id = $1 ORDER BY created_at DESC"
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("查询批量操作失败: %w", err)
	}
	defer rows.Close()

	var ops []*model.BulkOperation
	for rows.Next() {
		op, err := scanBulkOp(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

const selectBulkOp = `
	SELECT id, session_id, suggestion_ids, mode, status, impact,
		rollback_plan, applied, pilot_unit, promoted, error_message,
		created_at, finished_at
	FROM bulk_operations
`

// scanBulkOp 从行扫描批量操作
func scanBulkOp(row Scanner) (*model.BulkOperation, error) {
	var (
		op              model.BulkOperation
		mode            string
		status          string
		suggestionsJSON []byte
		impactJSON      []byte
		rollbackJSON    []byte
		appliedJSON     []byte
		errorMessage    sql.NullString
		finishedAt      sql.NullTime
	)
	err := row.Scan(
		&op.ID, &op.SessionID, &suggestionsJSON, &mode, &status,
		&impactJSON, &rollbackJSON, &appliedJSON, &op.PilotUnit, &op.Promoted,
		&errorMessage, &op.CreatedAt, &finishedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("扫描批量操作失败: %w", err)
	}

	op.Mode = model.ImplementationMode(mode)
	op.Status = model.BulkStatus(status)
	if errorMessage.Valid {
		op.Error = errorMessage.String
	}
	if finishedAt.Valid {
		op.FinishedAt = &finishedAt.Time
	}
	if err := json.Unmarshal(suggestionsJSON, &op.SuggestionIDs); err != nil {
		return nil, fmt.Errorf("解析批量操作建议列表失败: %w", err)
	}
	if len(impactJSON) > 0 {
		op.Impact = &model.CombinedImpact{}
		if err := json.Unmarshal(impactJSON, op.Impact); err != nil {
			return nil, fmt.Errorf("解析合并影响失败: %w", err)
		}
	}
	if len(rollbackJSON) > 0 {
		op.Rollback = &model.RollbackPlan{}
		if err := json.Unmarshal(rollbackJSON, op.Rollback); err != nil {
			return nil, fmt.Errorf("解析回滚计划失败: %w", err)
		}
	}
	if len(appliedJSON) > 0 {
		if err := json.Unmarshal(appliedJSON, &op.Applied); err != nil {
			return nil, fmt.Errorf("解析已应用建议失败: %w", err)
		}
	}
	return &op, nil
}
