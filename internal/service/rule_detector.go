package service

import (
	"edu_gap_analytics/internal/model"
	"math"
	"time"
)

const (
	// ruleMinAttempts 概念累计作答少于该次数时不给结论
	ruleMinAttempts = 3
	// ruleAccuracyThreshold 正确率低于该值判定为差距
	ruleAccuracyThreshold = 0.6
)

// RuleBasedGapDetector 模型未训练时的兜底检测：按概念聚合正确率。
// 不依赖任何已训练模型
type RuleBasedGapDetector struct{}

func NewRuleBasedGapDetector() *RuleBasedGapDetector {
	return &RuleBasedGapDetector{}
}

// Detect 对记录集内每个概念累计 (correct, total)，达到最小作答数且正确率低于阈值时产出差距：
// severity = 1 − accuracy，confidence = min(total/10, 1)
func (d *RuleBasedGapDetector) Detect(studentID string, records []model.PerformanceRecord) []model.LearningGap {
	type conceptPerf struct {
		correct int
		total   int
	}

	performance := make(map[string]*conceptPerf)
	order := make([]string, 0)

	for _, record := range records {
		for _, response := range record.QuestionResponses {
			for _, conceptID := range response.ConceptTags {
				perf, ok := performance[conceptID]
				if !ok {
					perf = &conceptPerf{}
					performance[conceptID] = perf
					order = append(order, conceptID)
				}
				perf.total++
				if response.Correct {
					perf.correct++
				}
			}
		}
	}

	// map 遍历无序，按首次出现顺序输出保证确定性
	var gaps []model.LearningGap
	now := time.Now()
	for _, conceptID := range order {
		perf := performance[conceptID]
		if perf.total < ruleMinAttempts {
			continue
		}
		accuracy := float64(perf.correct) / float64(perf.total)
		if accuracy >= ruleAccuracyThreshold {
			continue
		}

		gaps = append(gaps, model.LearningGap{
			GapID:              model.GenerateUUID(),
			StudentID:          studentID,
			ConceptID:          conceptID,
			GapSeverity:        1.0 - accuracy,
			ConfidenceScore:    math.Min(float64(perf.total)/10.0, 1.0),
			IdentifiedAt:       now,
			LastUpdated:        now,
			SupportingEvidence: []model.GapEvidence{},
			ImprovementTrend:   0.0,
		})
	}

	return gaps
}
