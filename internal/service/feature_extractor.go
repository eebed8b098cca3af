package service

import (
	"edu_gap_analytics/internal/model"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// FeatureCount 特征向量长度，训练和推理必须一致
const FeatureCount = 10

// FeatureExtractor 将一条成绩记录（加上该学生的概念评估）转成定长特征向量。
// 纯函数，不访问存储。特征顺序固定：
//
//	0: 归一化得分 score/max_score（max_score ≤ 0 时取 0）
//	1: 题目正确率 correct/len(responses)（无作答取 0）
//	2: 题目数量
//	3: 代码复杂度（缺失取 0）
//	4: 测试覆盖率（缺失取 0）
//	5: 执行耗时（缺失取 0）
//	6: 提交距今天数，封顶 365（无时间戳取 0）
//	7: 概念掌握度均值（无评估取 0.5 的中性先验）
//	8: 概念掌握度标准差（无评估或只有一条取 0）
//	9: 概念评估条数
type FeatureExtractor struct {
	now func() time.Time
}

func NewFeatureExtractor() *FeatureExtractor {
	return &FeatureExtractor{now: time.Now}
}

// Extract 提取失败（记录畸形）返回 ok=false，调用方跳过该记录继续批处理
func (e *FeatureExtractor) Extract(record *model.PerformanceRecord, assessments []model.ConceptAssessment) ([]float64, bool) {
	if record == nil {
		return nil, false
	}
	if !isFinite(record.Score) || !isFinite(record.MaxScore) {
		return nil, false
	}

	features := make([]float64, 0, FeatureCount)

	normalizedScore := 0.0
	if record.MaxScore > 0 {
		normalizedScore = record.Score / record.MaxScore
	}
	features = append(features, normalizedScore)

	if len(record.QuestionResponses) > 0 {
		correct := 0
		for _, response := range record.QuestionResponses {
			if response.Correct {
				correct++
			}
		}
		features = append(features, float64(correct)/float64(len(record.QuestionResponses)))
		features = append(features, float64(len(record.QuestionResponses)))
	} else {
		features = append(features, 0.0, 0.0)
	}

	if m := record.CodeMetrics; m != nil {
		features = append(features, derefOrZero(m.Complexity))
		features = append(features, derefOrZero(m.TestCoverage))
		features = append(features, derefOrZero(m.ExecutionTimeMs))
	} else {
		features = append(features, 0.0, 0.0, 0.0)
	}

	if !record.Timestamp.IsZero() {
		daysAgo := e.now().Sub(record.Timestamp).Hours() / 24
		if daysAgo < 0 {
			daysAgo = 0
		}
		features = append(features, math.Min(math.Floor(daysAgo), 365))
	} else {
		features = append(features, 0.0)
	}

	if len(assessments) > 0 {
		mastery := make([]float64, len(assessments))
		for i, a := range assessments {
			mastery[i] = a.MasteryLevel
		}
		features = append(features, stat.Mean(mastery, nil))
		features = append(features, populationStdDev(mastery))
		features = append(features, float64(len(assessments)))
	} else {
		// 无评估时用 0.5 作为中性先验
		features = append(features, 0.5, 0.0, 0.0)
	}

	for _, f := range features {
		if !isFinite(f) {
			return nil, false
		}
	}

	return features, true
}

func derefOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// populationStdDev 总体标准差（除以 n，不是 n-1）
func populationStdDev(samples []float64) float64 {
	n := len(samples)
	if n < 2 {
		return 0
	}
	mean := stat.Mean(samples, nil)
	var sum float64
	for _, s := range samples {
		d := s - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(n))
}
