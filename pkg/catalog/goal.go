package catalog

import (
	"github.com/youpai/youpai/pkg/errors"
	"github.com/youpai/youpai/pkg/model"
)

// GoalCatalog 优化目标目录
// 加载时校验权重之和必须恰好为100，违反视为配置错误，禁止启动会话
type GoalCatalog struct {
	goals   []model.Goal
	weights map[model.GoalType]int
}

// NewGoalCatalog 创建目标目录并校验权重
func NewGoalCatalog(goals []model.Goal) (*GoalCatalog, error) {
	if len(goals) == 0 {
		goals = model.DefaultGoals()
	}

	sum := 0
	weights := make(map[model.GoalType]int, len(goals))
	for _, g := range goals {
		if g.Weight < 0 || g.Weight > 100 {
			return nil, errors.New(errors.CodeGoalWeightsInvalid, "目标权重必须在0-100之间").
				WithField("goal", string(g.Type)).WithField("weight", g.Weight)
		}
		if _, dup := weights[g.Type]; dup {
			return nil, errors.New(errors.CodeGoalWeightsInvalid, "目标类型重复").
				WithField("goal", string(g.Type))
		}
		weights[g.Type] = g.Weight
		sum += g.Weight
	}
	if sum != 100 {
		return nil, errors.GoalWeightsInvalid(sum)
	}

	copied := make([]model.Goal, len(goals))
	copy(copied, goals)
	return &GoalCatalog{goals: copied, weights: weights}, nil
}

// Goals 返回全部目标
func (gc *GoalCatalog) Goals() []model.Goal {
	result := make([]model.Goal, len(gc.goals))
	copy(result, gc.goals)
	return result
}

// Weight 返回某目标类型的权重，未配置返回0
func (gc *GoalCatalog) Weight(t model.GoalType) float64 {
	return float64(gc.weights[t])
}

// Goal 返回某目标类型的完整定义
func (gc *GoalCatalog) Goal(t model.GoalType) (model.Goal, bool) {
	for _, g := range gc.goals {
		if g.Type == t {
			return g, true
		}
	}
	return model.Goal{}, false
}
