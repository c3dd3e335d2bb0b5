// Package rank 对已评分候选排序并产出最终建议
package rank

import (
	"sort"

	"github.com/google/uuid"

	"github.com/youpai/youpai/pkg/model"
	"github.com/youpai/youpai/pkg/optimizer/score"
)

// Ranker 建议排名器
type Ranker struct {
	scorer *score.Scorer
	topN   int
}

// NewRanker 创建排名器；topN 为返回建议数上限，0 表示不限
func NewRanker(scorer *score.Scorer, topN int) *Ranker {
	return &Ranker{scorer: scorer, topN: topN}
}

// scored 参与排名的候选及其评分
type scored struct {
	candidate  *model.Candidate
	validation *model.ValidationResult
	breakdown  model.ScoreBreakdown
}

// Rank 生成最终建议列表
// 排序规则：总分降序，同分按候选序号升序裁决；重复提案仅保留序号最小者
func (r *Ranker) Rank(sessionID uuid.UUID, candidates []*model.Candidate, validations []*model.ValidationResult, totalSeverity, baselineCost float64) []*model.Suggestion {
	byCandidate := make(map[int]*model.ValidationResult, len(validations))
	for _, v := range validations {
		byCandidate[v.CandidateSeq] = v
	}

	var pool []scored
	seen := make(map[string]bool)
	for _, c := range candidates {
		v := byCandidate[c.Seq]
		if v == nil || v.Excluded {
			continue
		}
		key := dedupKey(c)
		if seen[key] {
			continue // 候选已按序号升序排列，保留的即最小序号
		}
		seen[key] = true
		pool = append(pool, scored{
			candidate:  c,
			validation: v,
			breakdown:  r.scorer.Score(c, v, totalSeverity, baselineCost),
		})
	}

	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].breakdown.Total != pool[j].breakdown.Total {
			return pool[i].breakdown.Total > pool[j].breakdown.Total
		}
		return pool[i].candidate.Seq < pool[j].candidate.Seq
	})

	if r.topN > 0 && len(pool) > r.topN {
		pool = pool[:r.topN]
	}

	suggestions := make([]*model.Suggestion, 0, len(pool))
	for i, s := range pool {
		suggestions = append(suggestions, &model.Suggestion{
			ID:           uuid.New(),
			SessionID:    sessionID,
			CandidateSeq: s.candidate.Seq,
			CandidateID:  s.candidate.ID(),
			Pattern:      s.candidate.Pattern,
			Changes:      s.candidate.Changes,
			Operators:    s.candidate.Operators,
			GapIDs:       s.candidate.GapIDs,
			DeltaCost:    s.candidate.DeltaCost,
			Validation:   s.validation,
			Score:        s.breakdown,
			Rank:         i + 1,
			Risk:         r.scorer.RiskTier(s.breakdown),
			Status:       model.SuggestionPending,
		})
	}
	return suggestions
}

// dedupKey 以模式+缺口+操作员标识重复提案
func dedupKey(c *model.Candidate) string {
	key := string(c.Pattern)
	for _, g := range c.GapIDs {
		key += "|" + g
	}
	for _, op := range c.Operators {
		key += "|" + op.String()
	}
	return key
}
