package service

import (
	"edu_gap_analytics/internal/model"
	"math"

	"gonum.org/v1/gonum/stat"
)

// ConfidenceEstimator 基于历史准确率样本做正态近似的 95% 置信区间估计
type ConfidenceEstimator struct{}

func NewConfidenceEstimator() *ConfidenceEstimator {
	return &ConfidenceEstimator{}
}

// Estimate 样本少于 3 条时返回固定的最大不确定区间 {0, 1, 0.5}；
// 否则 mean ± 1.96·σ/√n，边界裁剪到 [0,1]，置信水平 min(n/10, 1)
func (e *ConfidenceEstimator) Estimate(samples []float64) model.ConfidenceInterval {
	if len(samples) < 3 {
		return model.ConfidenceInterval{
			LowerBound:      0.0,
			UpperBound:      1.0,
			ConfidenceLevel: 0.5,
		}
	}

	mean := stat.Mean(samples, nil)
	std := populationStdDev(samples)
	n := float64(len(samples))

	marginOfError := 1.96 * (std / math.Sqrt(n))

	return model.ConfidenceInterval{
		LowerBound:      math.Max(0.0, mean-marginOfError),
		UpperBound:      math.Min(1.0, mean+marginOfError),
		ConfidenceLevel: math.Min(n/10.0, 1.0),
	}
}
