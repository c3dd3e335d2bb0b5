package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/youpai/youpai/internal/config"
	"github.com/youpai/youpai/pkg/errors"
	"github.com/youpai/youpai/pkg/model"
	"github.com/youpai/youpai/pkg/optimizer/pattern"
	"github.com/youpai/youpai/pkg/optimizer/session"
)

// OptimizeHandler 优化会话处理器
type OptimizeHandler struct {
	manager *session.Manager
	cfg     *config.OptimizerConfig
}

// NewOptimizeHandler 创建优化会话处理器
func NewOptimizeHandler(manager *session.Manager, cfg *config.OptimizerConfig) *OptimizeHandler {
	return &OptimizeHandler{manager: manager, cfg: cfg}
}

// OperatorInput 操作员输入
type OperatorInput struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Unit         string   `json:"unit,omitempty"`
	SkillTags    []string `json:"skill_tags,omitempty"`
	HourlyCost   float64  `json:"hourly_cost"`
	MaxWeekHours float64  `json:"max_week_hours,omitempty"`
}

// ShiftInput 班次输入
type ShiftInput struct {
	ID         string    `json:"id"`
	OperatorID string    `json:"operator_id"`
	Unit       string    `json:"unit,omitempty"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	SkillTags  []string  `json:"skill_tags,omitempty"`
}

// ForecastInput 预测区间输入
type ForecastInput struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Required   int       `json:"required"`
	Confidence float64   `json:"confidence,omitempty"`
}

// StartRequest 启动优化会话请求
type StartRequest struct {
	Requester     string          `json:"requester,omitempty"`
	PeriodStart   time.Time       `json:"period_start"`
	PeriodEnd     time.Time       `json:"period_end"`
	Scope         model.Scope     `json:"scope"`
	Forecast      []ForecastInput `json:"forecast"`
	Operators     []OperatorInput `json:"operators"`
	Shifts        []ShiftInput    `json:"shifts"`
	BudgetSeconds int             `json:"budget_seconds,omitempty"`
	Context       string          `json:"business_context,omitempty"`
}

// StartResponse 启动优化会话响应
type StartResponse struct {
	Success   bool      `json:"success"`
	SessionID string    `json:"session_id"`
	ETA       time.Time `json:"eta"`
}

// Start 启动优化会话
func (h *OptimizeHandler) Start(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "解析请求失败"))
		return
	}

	snapshot, err := buildSnapshot(req.Operators, req.Shifts)
	if err != nil {
		respondError(w, err)
		return
	}

	forecast := make([]*model.ForecastPoint, 0, len(req.Forecast))
	for _, f := range req.Forecast {
		forecast = append(forecast, &model.ForecastPoint{
			Interval:   model.TimeRange{Start: f.Start, End: f.End},
			Required:   f.Required,
			Confidence: f.Confidence,
		})
	}

	cfg := h.sessionConfig(req)
	requester := req.Requester
	if requester == "" {
		requester = "anonymous"
	}

	sessionID, err := h.manager.Start(requester,
		model.TimeRange{Start: req.PeriodStart, End: req.PeriodEnd},
		req.Scope,
		session.Inputs{Forecast: forecast, Snapshot: snapshot},
		cfg,
	)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, StartResponse{
		Success:   true,
		SessionID: sessionID.String(),
		ETA:       time.Now().Add(cfg.TimeBudget),
	})
}

// Status 轮询会话状态
func (h *OptimizeHandler) Status(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	id, err := queryUUID(r, "session_id")
	if err != nil {
		respondError(w, err)
		return
	}

	status, err := h.manager.Poll(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// CancelRequest 取消会话请求
type CancelRequest struct {
	SessionID string `json:"session_id"`
	Requester string `json:"requester,omitempty"`
}

// Cancel 取消会话
func (h *OptimizeHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "解析请求失败"))
		return
	}
	id, err := parseUUID("session_id", req.SessionID)
	if err != nil {
		respondError(w, err)
		return
	}

	actor := req.Requester
	if actor == "" {
		actor = "anonymous"
	}
	if err := h.manager.Cancel(id, actor); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// SuggestionsResponse 建议列表响应
type SuggestionsResponse struct {
	Success     bool                       `json:"success"`
	Session     *model.OptimizationSession `json:"session"`
	Suggestions []*model.Suggestion        `json:"suggestions"`
}

// Suggestions 获取会话产出的建议
func (h *OptimizeHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	id, err := queryUUID(r, "session_id")
	if err != nil {
		respondError(w, err)
		return
	}

	suggestions, err := h.manager.Suggestions(id)
	if err != nil {
		respondError(w, err)
		return
	}
	sess, err := h.manager.Session(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, SuggestionsResponse{
		Success:     true,
		Session:     sess,
		Suggestions: suggestions,
	})
}

// GapsResponse 缺口列表响应
type GapsResponse struct {
	Success bool                 `json:"success"`
	Gaps    []*model.CoverageGap `json:"gaps"`
}

// Gaps 获取会话分析出的覆盖缺口
func (h *OptimizeHandler) Gaps(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	id, err := queryUUID(r, "session_id")
	if err != nil {
		respondError(w, err)
		return
	}

	gaps, err := h.manager.Gaps(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, GapsResponse{Success: true, Gaps: gaps})
}

// sessionConfig 合并全局配置与请求级覆盖
func (h *OptimizeHandler) sessionConfig(req StartRequest) session.Config {
	budget := h.cfg.TimeBudget()
	if req.BudgetSeconds > 0 {
		budget = time.Duration(req.BudgetSeconds) * time.Second
	}
	context := model.BusinessContext(h.cfg.BusinessContext)
	if req.Context != "" {
		context = model.BusinessContext(req.Context)
	}
	return session.Config{
		TimeBudget: budget,
		TopN:       h.cfg.TopN,
		Pattern: pattern.Config{
			CandidateCap:        h.cfg.CandidateCap,
			ComplexityLevel:     h.cfg.PatternComplexityLevel,
			Context:             context,
			CostCoverageBalance: h.cfg.CostCoverageBalance,
		},
	}
}

// buildSnapshot 从输入构建排班快照
func buildSnapshot(operators []OperatorInput, shifts []ShiftInput) (*model.ScheduleSnapshot, error) {
	snapshot := &model.ScheduleSnapshot{}

	for _, o := range operators {
		id, err := parseUUID("operator.id", o.ID)
		if err != nil {
			return nil, err
		}
		snapshot.Operators = append(snapshot.Operators, &model.Operator{
			ID:           id,
			Name:         o.Name,
			Unit:         o.Unit,
			SkillTags:    o.SkillTags,
			HourlyCost:   o.HourlyCost,
			MaxWeekHours: o.MaxWeekHours,
		})
	}

	for _, s := range shifts {
		shiftID, err := parseUUID("shift.id", s.ID)
		if err != nil {
			return nil, err
		}
		operatorID, err := parseUUID("shift.operator_id", s.OperatorID)
		if err != nil {
			return nil, err
		}
		if !s.End.After(s.Start) {
			return nil, errors.InvalidInput("shift", "班次起止颠倒: "+s.ID)
		}
		snapshot.Shifts = append(snapshot.Shifts, &model.ScheduledShift{
			ID:         shiftID,
			OperatorID: operatorID,
			Unit:       s.Unit,
			Period:     model.TimeRange{Start: s.Start, End: s.End},
			SkillTags:  s.SkillTags,
		})
	}
	return snapshot, nil
}
