package handler

import (
	"encoding/json"
	"net/http"

	"github.com/youpai/youpai/pkg/errors"
	"github.com/youpai/youpai/pkg/feedback"
	"github.com/youpai/youpai/pkg/model"
)

// FeedbackHandler 效果追踪处理器
type FeedbackHandler struct {
	tracker *feedback.Tracker
}

// NewFeedbackHandler 创建效果追踪处理器
func NewFeedbackHandler(tracker *feedback.Tracker) *FeedbackHandler {
	return &FeedbackHandler{tracker: tracker}
}

// RecordRequest 效果记录请求
type RecordRequest struct {
	SuggestionID          string  `json:"suggestion_id"`
	SessionID             string  `json:"session_id"`
	Pattern               string  `json:"pattern"`
	ProjectedCoverage     float64 `json:"projected_coverage"`
	ActualCoverage        float64 `json:"actual_coverage"`
	ProjectedCost         float64 `json:"projected_cost"`
	ActualCost            float64 `json:"actual_cost"`
	ProjectedServiceLevel float64 `json:"projected_service_level"`
	ActualServiceLevel    float64 `json:"actual_service_level"`
	UserAcceptance        float64 `json:"user_acceptance"`
	Requester             string  `json:"requester,omitempty"`
}

// Record 追加一条效果记录
func (h *FeedbackHandler) Record(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req RecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "解析请求失败"))
		return
	}
	suggestionID, err := parseUUID("suggestion_id", req.SuggestionID)
	if err != nil {
		respondError(w, err)
		return
	}
	sessionID, err := parseUUID("session_id", req.SessionID)
	if err != nil {
		respondError(w, err)
		return
	}

	actor := req.Requester
	if actor == "" {
		actor = "anonymous"
	}
	record := &model.PerformanceRecord{
		SuggestionID:          suggestionID,
		SessionID:             sessionID,
		Pattern:               model.PatternType(req.Pattern),
		ProjectedCoverage:     req.ProjectedCoverage,
		ActualCoverage:        req.ActualCoverage,
		ProjectedCost:         req.ProjectedCost,
		ActualCost:            req.ActualCost,
		ProjectedServiceLevel: req.ProjectedServiceLevel,
		ActualServiceLevel:    req.ActualServiceLevel,
		UserAcceptance:        req.UserAcceptance,
	}
	if err := h.tracker.Record(record, actor); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"success":   true,
		"record_id": record.ID.String(),
	})
}

// StatsResponse 模式效果统计响应
type StatsResponse struct {
	Success bool                  `json:"success"`
	Stats   []*model.PatternStats `json:"stats"`
}

// Stats 返回按模式聚合的效果统计
func (h *FeedbackHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	respondJSON(w, http.StatusOK, StatsResponse{Success: true, Stats: h.tracker.Stats()})
}
