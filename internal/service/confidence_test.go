package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTooFewSamples(t *testing.T) {
	e := NewConfidenceEstimator()

	for _, samples := range [][]float64{nil, {0.9}, {0.1, 0.9}} {
		interval := e.Estimate(samples)
		assert.Equal(t, 0.0, interval.LowerBound)
		assert.Equal(t, 1.0, interval.UpperBound)
		assert.Equal(t, 0.5, interval.ConfidenceLevel)
	}
}

func TestEstimateConstantSamples(t *testing.T) {
	e := NewConfidenceEstimator()

	interval := e.Estimate([]float64{0.8, 0.8, 0.8, 0.8, 0.8})
	assert.InDelta(t, 0.8, interval.LowerBound, 1e-9)
	assert.InDelta(t, 0.8, interval.UpperBound, 1e-9)
	assert.InDelta(t, 0.5, interval.ConfidenceLevel, 1e-9)
}

func TestEstimateBoundsClamped(t *testing.T) {
	e := NewConfidenceEstimator()

	// mean 0.8，σ 0.4：上界本应超过 1，必须裁剪
	interval := e.Estimate([]float64{1, 1, 1, 1, 0})
	assert.Equal(t, 1.0, interval.UpperBound)
	assert.Greater(t, interval.LowerBound, 0.0)
	assert.LessOrEqual(t, interval.LowerBound, interval.UpperBound)
}

func TestEstimateConfidenceLevel(t *testing.T) {
	e := NewConfidenceEstimator()

	five := e.Estimate([]float64{0.5, 0.6, 0.7, 0.5, 0.6})
	assert.InDelta(t, 0.5, five.ConfidenceLevel, 1e-9)

	ten := e.Estimate(make([]float64, 10))
	assert.Equal(t, 1.0, ten.ConfidenceLevel)

	twenty := e.Estimate(make([]float64, 20))
	assert.Equal(t, 1.0, twenty.ConfidenceLevel)
}
