package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/youpai/youpai/internal/metrics"
	"github.com/youpai/youpai/pkg/bulk"
	"github.com/youpai/youpai/pkg/errors"
	"github.com/youpai/youpai/pkg/model"
	"github.com/youpai/youpai/pkg/optimizer/session"
)

// BulkHandler 批量应用处理器
type BulkHandler struct {
	manager     *session.Manager
	coordinator *bulk.Coordinator
}

// NewBulkHandler 创建批量应用处理器
func NewBulkHandler(manager *session.Manager, coordinator *bulk.Coordinator) *BulkHandler {
	return &BulkHandler{manager: manager, coordinator: coordinator}
}

// SelectionRequest 建议选择请求
type SelectionRequest struct {
	SessionID     string   `json:"session_id"`
	SuggestionIDs []string `json:"suggestion_ids"`
	Mode          string   `json:"mode,omitempty"`
	PilotUnit     string   `json:"pilot_unit,omitempty"`
	Requester     string   `json:"requester,omitempty"`
}

// PreviewResponse 预览响应
type PreviewResponse struct {
	Success bool                  `json:"success"`
	Impact  *model.CombinedImpact `json:"impact"`
}

// Preview 计算所选建议的合并影响
func (h *BulkHandler) Preview(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	req, suggestions, err := h.resolveSelection(r)
	if err != nil {
		respondError(w, err)
		return
	}

	impact, err := h.coordinator.Evaluate(suggestions)
	if err != nil {
		respondError(w, err)
		return
	}

	// 预览使建议进入 previewed 状态，已流转过的建议保持原状
	sessionID, _ := parseUUID("session_id", req.SessionID)
	for _, s := range suggestions {
		if err := h.manager.TransitionSuggestion(sessionID, s.ID, model.SuggestionPreviewed, actorOf(req)); err != nil {
			if !errors.Is(err, errors.CodeSuggestionState) {
				respondError(w, err)
				return
			}
		}
	}

	respondJSON(w, http.StatusOK, PreviewResponse{Success: true, Impact: impact})
}

// ApplyResponse 应用响应
type ApplyResponse struct {
	Success   bool                 `json:"success"`
	Operation *model.BulkOperation `json:"operation"`
}

// Apply 按指定模式批量应用建议
func (h *BulkHandler) Apply(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	req, suggestions, err := h.resolveSelection(r)
	if err != nil {
		respondError(w, err)
		return
	}
	sessionID, err := parseUUID("session_id", req.SessionID)
	if err != nil {
		respondError(w, err)
		return
	}

	mode := model.ImplementationMode(req.Mode)
	if mode == "" {
		mode = model.ModeImmediateFull
	}

	// 提交前把会话基线同步进排班存储，modify/remove 变更引用的班次必须在场
	snapshot, err := h.manager.Snapshot(sessionID)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := h.coordinator.SyncBaseline(snapshot); err != nil {
		respondError(w, err)
		return
	}

	op, err := h.coordinator.Apply(sessionID, suggestions, mode, req.PilotUnit, actorOf(req))
	if op != nil {
		metrics.RecordBulkApply(string(mode), string(op.Status))
	}
	if err != nil {
		if op != nil && len(op.Applied) > 0 {
			// 分阶段部分成功：如实上报已提交部分
			respondJSON(w, http.StatusOK, map[string]interface{}{
				"success":   false,
				"partial":   true,
				"operation": op,
				"error":     err.Error(),
			})
			return
		}
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ApplyResponse{Success: true, Operation: op})
}

// OperationRequest 既有操作请求
type OperationRequest struct {
	OperationID string `json:"operation_id"`
	SessionID   string `json:"session_id"`
	Requester   string `json:"requester,omitempty"`
}

// Promote 推广试点操作
func (h *BulkHandler) Promote(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	req, op, suggestions, err := h.resolveOperation(r)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := h.coordinator.Promote(op.ID, suggestions, req.Requester); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ApplyResponse{Success: true, Operation: op})
}

// Rollback 回滚批量操作
func (h *BulkHandler) Rollback(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	req, op, suggestions, err := h.resolveOperation(r)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := h.coordinator.RollbackOperation(op.ID, suggestions, req.Requester); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ApplyResponse{Success: true, Operation: op})
}

// Operation 查询批量操作
func (h *BulkHandler) Operation(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	id, err := queryUUID(r, "operation_id")
	if err != nil {
		respondError(w, err)
		return
	}
	op, err := h.coordinator.Operation(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ApplyResponse{Success: true, Operation: op})
}

// resolveSelection 解析选择请求并取回建议对象
func (h *BulkHandler) resolveSelection(r *http.Request) (*SelectionRequest, []*model.Suggestion, error) {
	var req SelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeInvalidInput, "解析请求失败")
	}
	sessionID, err := parseUUID("session_id", req.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if len(req.SuggestionIDs) == 0 {
		return nil, nil, errors.InvalidInput("suggestion_ids", "至少选择一条建议")
	}

	// 重复选择同一建议按一条处理，避免变更被提交两次
	suggestions := make([]*model.Suggestion, 0, len(req.SuggestionIDs))
	seen := make(map[uuid.UUID]bool, len(req.SuggestionIDs))
	for _, raw := range req.SuggestionIDs {
		id, err := parseUUID("suggestion_id", raw)
		if err != nil {
			return nil, nil, err
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		s, err := h.manager.Suggestion(sessionID, id)
		if err != nil {
			return nil, nil, err
		}
		suggestions = append(suggestions, s)
	}
	return &req, suggestions, nil
}

// resolveOperation 解析既有操作请求并取回关联建议
func (h *BulkHandler) resolveOperation(r *http.Request) (*OperationRequest, *model.BulkOperation, []*model.Suggestion, error) {
	var req OperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, nil, nil, errors.Wrap(err, errors.CodeInvalidInput, "解析请求失败")
	}
	opID, err := parseUUID("operation_id", req.OperationID)
	if err != nil {
		return nil, nil, nil, err
	}
	sessionID, err := parseUUID("session_id", req.SessionID)
	if err != nil {
		return nil, nil, nil, err
	}
	if req.Requester == "" {
		req.Requester = "anonymous"
	}

	op, err := h.coordinator.Operation(opID)
	if err != nil {
		return nil, nil, nil, err
	}

	suggestions := make([]*model.Suggestion, 0, len(op.SuggestionIDs))
	for _, id := range op.SuggestionIDs {
		s, err := h.manager.Suggestion(sessionID, id)
		if err != nil {
			return nil, nil, nil, err
		}
		suggestions = append(suggestions, s)
	}
	return &req, op, suggestions, nil
}

func actorOf(req *SelectionRequest) string {
	if req.Requester == "" {
		return "anonymous"
	}
	return req.Requester
}
