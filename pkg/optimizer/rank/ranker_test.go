package rank

import (
	"testing"

	"github.com/google/uuid"

	"github.com/youpai/youpai/pkg/catalog"
	"github.com/youpai/youpai/pkg/model"
	"github.com/youpai/youpai/pkg/optimizer/score"
)

func newScorer(t *testing.T) *score.Scorer {
	t.Helper()
	goals, err := catalog.NewGoalCatalog(nil)
	if err != nil {
		t.Fatalf("目标目录加载失败: %v", err)
	}
	return score.NewScorer(goals)
}

func candidate(seq int, severity float64, ops ...uuid.UUID) *model.Candidate {
	return &model.Candidate{
		Seq:             seq,
		Pattern:         model.PatternExtraShift,
		Operators:       ops,
		GapIDs:          []string{"gap-0001"},
		SeverityCovered: severity,
	}
}

func compliantResults(seqs ...int) []*model.ValidationResult {
	var out []*model.ValidationResult
	for _, s := range seqs {
		out = append(out, &model.ValidationResult{CandidateSeq: s, Overall: model.ResultFullyCompliant})
	}
	return out
}

func TestRanker_SortOrder(t *testing.T) {
	opA, opB, opC := uuid.New(), uuid.New(), uuid.New()
	candidates := []*model.Candidate{
		candidate(1, 2, opA), // 低覆盖
		candidate(2, 8, opB), // 高覆盖
		candidate(3, 5, opC), // 中覆盖
	}

	r := NewRanker(newScorer(t), 0)
	suggestions := r.Rank(uuid.New(), candidates, compliantResults(1, 2, 3), 10, 1000)

	if len(suggestions) != 3 {
		t.Fatalf("建议数 = %d, expected 3", len(suggestions))
	}
	if suggestions[0].CandidateSeq != 2 || suggestions[1].CandidateSeq != 3 || suggestions[2].CandidateSeq != 1 {
		t.Errorf("排序 = %d, %d, %d, expected 2, 3, 1",
			suggestions[0].CandidateSeq, suggestions[1].CandidateSeq, suggestions[2].CandidateSeq)
	}
	for i, s := range suggestions {
		if s.Rank != i+1 {
			t.Errorf("第 %d 条建议 Rank = %d, expected %d", i, s.Rank, i+1)
		}
		if s.Status != model.SuggestionPending {
			t.Errorf("初始状态 = %v, expected pending", s.Status)
		}
	}
	// 总分非升序
	for i := 1; i < len(suggestions); i++ {
		if suggestions[i].Score.Total > suggestions[i-1].Score.Total {
			t.Errorf("总分未按降序: %v > %v", suggestions[i].Score.Total, suggestions[i-1].Score.Total)
		}
	}
}

func TestRanker_TieBreakBySeq(t *testing.T) {
	opA, opB := uuid.New(), uuid.New()
	// 两个候选得分完全相同（覆盖不同缺口避免被去重）
	a := candidate(1, 5, opA)
	b := candidate(2, 5, opB)
	b.GapIDs = []string{"gap-0002"}

	r := NewRanker(newScorer(t), 0)
	suggestions := r.Rank(uuid.New(), []*model.Candidate{a, b}, compliantResults(1, 2), 10, 1000)

	if len(suggestions) != 2 {
		t.Fatalf("建议数 = %d, expected 2", len(suggestions))
	}
	if suggestions[0].CandidateSeq != 1 {
		t.Errorf("同分应按序号升序裁决, 首位 = %d, expected 1", suggestions[0].CandidateSeq)
	}
}

func TestRanker_Dedup(t *testing.T) {
	op := uuid.New()
	// 模式、缺口、操作员完全相同的重复提案，仅保留序号最小者
	a := candidate(1, 5, op)
	b := candidate(4, 5, op)

	r := NewRanker(newScorer(t), 0)
	suggestions := r.Rank(uuid.New(), []*model.Candidate{a, b}, compliantResults(1, 4), 10, 1000)

	if len(suggestions) != 1 {
		t.Fatalf("去重后建议数 = %d, expected 1", len(suggestions))
	}
	if suggestions[0].CandidateSeq != 1 {
		t.Errorf("保留的候选序号 = %d, expected 1", suggestions[0].CandidateSeq)
	}
}

func TestRanker_ExcludedSkipped(t *testing.T) {
	opA, opB := uuid.New(), uuid.New()
	a := candidate(1, 8, opA)
	b := candidate(2, 5, opB)
	b.GapIDs = []string{"gap-0002"}

	validations := []*model.ValidationResult{
		{CandidateSeq: 1, Overall: model.ResultMajorViolations, Excluded: true},
		{CandidateSeq: 2, Overall: model.ResultFullyCompliant},
	}

	r := NewRanker(newScorer(t), 0)
	suggestions := r.Rank(uuid.New(), []*model.Candidate{a, b}, validations, 10, 1000)

	if len(suggestions) != 1 || suggestions[0].CandidateSeq != 2 {
		t.Errorf("被排除的候选不应进入排名: %+v", suggestions)
	}
}

func TestRanker_TopN(t *testing.T) {
	var candidates []*model.Candidate
	var seqs []int
	for i := 1; i <= 5; i++ {
		c := candidate(i, float64(i), uuid.New())
		c.GapIDs = []string{model.GapID(i)}
		candidates = append(candidates, c)
		seqs = append(seqs, i)
	}

	r := NewRanker(newScorer(t), 2)
	suggestions := r.Rank(uuid.New(), candidates, compliantResults(seqs...), 15, 1000)

	if len(suggestions) != 2 {
		t.Fatalf("topN 截断后建议数 = %d, expected 2", len(suggestions))
	}
	if suggestions[0].CandidateSeq != 5 {
		t.Errorf("首位建议 = %d, expected 覆盖最高的 5", suggestions[0].CandidateSeq)
	}
}

func TestRanker_CarriesCandidateFields(t *testing.T) {
	op := uuid.New()
	c := candidate(3, 5, op)
	c.DeltaCost = 240

	sessionID := uuid.New()
	r := NewRanker(newScorer(t), 0)
	suggestions := r.Rank(sessionID, []*model.Candidate{c}, compliantResults(3), 10, 1000)

	s := suggestions[0]
	if s.SessionID != sessionID {
		t.Errorf("SessionID = %v, expected %v", s.SessionID, sessionID)
	}
	if s.CandidateID != "cand-0003" {
		t.Errorf("CandidateID = %s, expected cand-0003", s.CandidateID)
	}
	if s.DeltaCost != 240 {
		t.Errorf("DeltaCost = %v, expected 240", s.DeltaCost)
	}
	if s.Risk == "" {
		t.Error("建议应带风险分级")
	}
}
