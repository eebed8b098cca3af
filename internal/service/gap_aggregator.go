package service

import (
	"edu_gap_analytics/internal/model"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// GapAggregator 对同一学生多条记录检出的差距做去重合并、排序和趋势计算
type GapAggregator struct{}

func NewGapAggregator() *GapAggregator {
	return &GapAggregator{}
}

// Aggregate 按 (student_id, concept_id) 去重：severity 取最大值，confidence 取均值，
// 证据列表拼接。结果按 severity 降序稳定排序（同分保持原顺序）
func (a *GapAggregator) Aggregate(gaps []model.LearningGap) []model.LearningGap {
	type group struct {
		first      model.LearningGap
		severities []float64
		confidence []float64
		evidence   []model.GapEvidence
	}

	groups := make(map[string]*group)
	order := make([]string, 0, len(gaps))

	for _, gap := range gaps {
		key := gap.StudentID + "\x00" + gap.ConceptID
		g, ok := groups[key]
		if !ok {
			g = &group{first: gap}
			groups[key] = g
			order = append(order, key)
		}
		g.severities = append(g.severities, gap.GapSeverity)
		g.confidence = append(g.confidence, gap.ConfidenceScore)
		g.evidence = append(g.evidence, gap.SupportingEvidence...)
	}

	merged := make([]model.LearningGap, 0, len(order))
	for _, key := range order {
		g := groups[key]
		out := g.first
		out.GapSeverity = maxOf(g.severities)
		out.ConfidenceScore = stat.Mean(g.confidence, nil)
		out.SupportingEvidence = g.evidence
		merged = append(merged, out)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].GapSeverity > merged[j].GapSeverity
	})

	return merged
}

// ApplyTrend 对照上一次分析就地更新 improvement_trend：
// trend = clamp((prev − curr)/prev, −1, 1)；prev ≤ 0 或概念是新出现的取 0
func (a *GapAggregator) ApplyTrend(currentGaps []model.LearningGap, previous *model.GapAnalysis) {
	if previous == nil {
		for i := range currentGaps {
			currentGaps[i].ImprovementTrend = 0.0
		}
		return
	}

	previousSeverity := make(map[string]float64, len(previous.IdentifiedGaps))
	for _, gap := range previous.IdentifiedGaps {
		previousSeverity[gap.ConceptID] = gap.GapSeverity
	}

	for i := range currentGaps {
		prev, existed := previousSeverity[currentGaps[i].ConceptID]
		if !existed || prev <= 0 {
			currentGaps[i].ImprovementTrend = 0.0
			continue
		}
		trend := (prev - currentGaps[i].GapSeverity) / prev
		currentGaps[i].ImprovementTrend = math.Max(-1.0, math.Min(1.0, trend))
	}
}

func maxOf(values []float64) float64 {
	max := values[0]
	for _, v := range values[1:] {
		if v > max {
			max = v
		}
	}
	return max
}
