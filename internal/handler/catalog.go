package handler

import (
	"net/http"

	"github.com/youpai/youpai/pkg/catalog"
	"github.com/youpai/youpai/pkg/model"
)

// CatalogHandler 约束与模式目录处理器
type CatalogHandler struct {
	constraints *catalog.ConstraintCatalog
	goals       *catalog.GoalCatalog
}

// NewCatalogHandler 创建目录处理器
func NewCatalogHandler(constraints *catalog.ConstraintCatalog, goals *catalog.GoalCatalog) *CatalogHandler {
	return &CatalogHandler{constraints: constraints, goals: goals}
}

// ConstraintsResponse 约束目录响应
type ConstraintsResponse struct {
	Success     bool                `json:"success"`
	Constraints []*model.Constraint `json:"constraints"`
}

// Constraints 返回全部约束定义，按评估顺序排列
func (h *CatalogHandler) Constraints(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	respondJSON(w, http.StatusOK, ConstraintsResponse{
		Success:     true,
		Constraints: h.constraints.All(),
	})
}

// GoalsResponse 目标目录响应
type GoalsResponse struct {
	Success bool         `json:"success"`
	Goals   []model.Goal `json:"goals"`
}

// Goals 返回当前加权目标配置
func (h *CatalogHandler) Goals(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	respondJSON(w, http.StatusOK, GoalsResponse{Success: true, Goals: h.goals.Goals()})
}

// PatternsResponse 模式库响应
type PatternsResponse struct {
	Success  bool                                          `json:"success"`
	Patterns map[model.BusinessContext][]model.PatternType `json:"patterns"`
}

// Patterns 返回各业务场景可用的模式集合
func (h *CatalogHandler) Patterns(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	respondJSON(w, http.StatusOK, PatternsResponse{
		Success: true,
		Patterns: map[model.BusinessContext][]model.PatternType{
			model.ContextContactCenter: {
				model.PatternShiftExtension, model.PatternOvertimeExtension,
				model.PatternSplitShift, model.PatternExtraShift,
			},
			model.ContextSeasonalRetail: {
				model.PatternShiftExtension, model.PatternExtraShift, model.PatternOvertimeExtension,
			},
			model.ContextGeneral: {
				model.PatternShiftExtension, model.PatternExtraShift,
			},
		},
	})
}
