package service

import (
	"edu_gap_analytics/internal/model"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateDeduplicates(t *testing.T) {
	a := NewGapAggregator()

	gaps := []model.LearningGap{
		{
			StudentID: "stu-1", ConceptID: "loops",
			GapSeverity: 0.4, ConfidenceScore: 0.2,
			SupportingEvidence: []model.GapEvidence{{SubmissionID: "s1", EvidenceType: "incorrect_responses", Weight: 1.0}},
		},
		{
			StudentID: "stu-1", ConceptID: "loops",
			GapSeverity: 0.8, ConfidenceScore: 0.6,
			SupportingEvidence: []model.GapEvidence{{SubmissionID: "s2", EvidenceType: "incorrect_responses", Weight: 1.0}},
		},
	}

	merged := a.Aggregate(gaps)
	require.Len(t, merged, 1)

	assert.Equal(t, 0.8, merged[0].GapSeverity)
	assert.InDelta(t, 0.4, merged[0].ConfidenceScore, 1e-9)
	assert.Len(t, merged[0].SupportingEvidence, 2)
}

func TestAggregateDistinctStudentsKeptApart(t *testing.T) {
	a := NewGapAggregator()

	merged := a.Aggregate([]model.LearningGap{
		{StudentID: "stu-1", ConceptID: "loops", GapSeverity: 0.5},
		{StudentID: "stu-2", ConceptID: "loops", GapSeverity: 0.5},
	})
	assert.Len(t, merged, 2)
}

func TestAggregateSortsBySeverityDesc(t *testing.T) {
	a := NewGapAggregator()

	merged := a.Aggregate([]model.LearningGap{
		{StudentID: "stu-1", ConceptID: "variables", GapSeverity: 0.5},
		{StudentID: "stu-1", ConceptID: "loops", GapSeverity: 0.9},
		{StudentID: "stu-1", ConceptID: "recursion", GapSeverity: 0.9},
		{StudentID: "stu-1", ConceptID: "pointers", GapSeverity: 0.7},
	})
	require.Len(t, merged, 4)

	assert.Equal(t, "loops", merged[0].ConceptID)
	assert.Equal(t, "recursion", merged[1].ConceptID) // 同分保持原顺序
	assert.Equal(t, "pointers", merged[2].ConceptID)
	assert.Equal(t, "variables", merged[3].ConceptID)
}

func TestAggregateEmpty(t *testing.T) {
	a := NewGapAggregator()
	assert.Empty(t, a.Aggregate(nil))
}

func TestApplyTrendNoPrevious(t *testing.T) {
	a := NewGapAggregator()

	gaps := []model.LearningGap{{ConceptID: "loops", GapSeverity: 0.5, ImprovementTrend: 0.7}}
	a.ApplyTrend(gaps, nil)
	assert.Equal(t, 0.0, gaps[0].ImprovementTrend)
}

func TestApplyTrend(t *testing.T) {
	a := NewGapAggregator()

	previous := &model.GapAnalysis{
		IdentifiedGaps: []model.LearningGap{
			{ConceptID: "loops", GapSeverity: 0.8},
			{ConceptID: "recursion", GapSeverity: 0.4},
			{ConceptID: "zeroed", GapSeverity: 0.0},
		},
	}

	gaps := []model.LearningGap{
		{ConceptID: "loops", GapSeverity: 0.4},     // 改善一半
		{ConceptID: "recursion", GapSeverity: 0.5}, // 恶化
		{ConceptID: "zeroed", GapSeverity: 0.3},    // 上次严重度为 0
		{ConceptID: "pointers", GapSeverity: 0.6},  // 新出现
	}

	a.ApplyTrend(gaps, previous)

	assert.InDelta(t, 0.5, gaps[0].ImprovementTrend, 1e-9)
	assert.InDelta(t, -0.25, gaps[1].ImprovementTrend, 1e-9)
	assert.Equal(t, 0.0, gaps[2].ImprovementTrend)
	assert.Equal(t, 0.0, gaps[3].ImprovementTrend)
}

func TestApplyTrendClamped(t *testing.T) {
	a := NewGapAggregator()

	previous := &model.GapAnalysis{
		IdentifiedGaps: []model.LearningGap{{ConceptID: "loops", GapSeverity: 0.1}},
	}
	gaps := []model.LearningGap{{ConceptID: "loops", GapSeverity: 1.0}}

	a.ApplyTrend(gaps, previous)
	assert.Equal(t, -1.0, gaps[0].ImprovementTrend)
}
