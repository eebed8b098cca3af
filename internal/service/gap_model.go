package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	// minTrainSamples 训练要求的最小样本数（调用方同样把关）
	minTrainSamples = 50
	// minPositiveSamples 正样本少于该数时跳过回归器训练
	minPositiveSamples = 10
	// neutralSeverity 回归器未训练时的中性严重度
	neutralSeverity = 0.5
	// trainSeed 训练集划分的固定随机种子，保证可复现
	trainSeed = 42
)

var errInsufficientSamples = errors.New("insufficient training samples")

// TrainingResult 一次训练的评估结果
type TrainingResult struct {
	ClassifierAccuracy float64  `json:"classifierAccuracy"`
	RegressorScore     *float64 `json:"regressorScore,omitempty"` // 正样本不足时为空
	SampleCount        int      `json:"sampleCount"`
	PositiveSamples    int      `json:"positiveSamples"`
}

// standardScaler 按特征维度做零均值单位方差标准化
type standardScaler struct {
	Means  []float64 `json:"means"`
	Stds   []float64 `json:"stds"`
	Fitted bool      `json:"fitted"`
}

func (s *standardScaler) fit(samples [][]float64) {
	dims := len(samples[0])
	s.Means = make([]float64, dims)
	s.Stds = make([]float64, dims)

	column := make([]float64, len(samples))
	for d := 0; d < dims; d++ {
		for i, sample := range samples {
			column[i] = sample[d]
		}
		s.Means[d] = stat.Mean(column, nil)
		std := populationStdDev(column)
		if std == 0 {
			std = 1 // 常量特征不缩放
		}
		s.Stds[d] = std
	}
	s.Fitted = true
}

func (s *standardScaler) transform(features []float64) []float64 {
	scaled := make([]float64, len(features))
	for i, f := range features {
		scaled[i] = (f - s.Means[i]) / s.Stds[i]
	}
	return scaled
}

// logisticClassifier 梯度下降训练的逻辑回归二分类器
type logisticClassifier struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
	Trained bool      `json:"trained"`
}

func (c *logisticClassifier) fit(samples [][]float64, labels []int) {
	dims := len(samples[0])
	c.Weights = make([]float64, dims)
	c.Bias = 0

	const (
		epochs       = 500
		learningRate = 0.1
	)

	grad := make([]float64, dims)
	for epoch := 0; epoch < epochs; epoch++ {
		for i := range grad {
			grad[i] = 0
		}
		var biasGrad float64
		for i, sample := range samples {
			p := sigmoid(floats.Dot(c.Weights, sample) + c.Bias)
			err := p - float64(labels[i])
			for d, f := range sample {
				grad[d] += err * f
			}
			biasGrad += err
		}
		n := float64(len(samples))
		for d := range c.Weights {
			c.Weights[d] -= learningRate * grad[d] / n
		}
		c.Bias -= learningRate * biasGrad / n
	}
	c.Trained = true
}

func (c *logisticClassifier) predictProba(features []float64) float64 {
	return sigmoid(floats.Dot(c.Weights, features) + c.Bias)
}

// linearRegressor 带 L2 正则的线性回归，只用正样本训练
type linearRegressor struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
	Trained bool      `json:"trained"`
}

func (r *linearRegressor) fit(samples [][]float64, targets []float64) {
	dims := len(samples[0])
	r.Weights = make([]float64, dims)
	r.Bias = 0

	const (
		epochs       = 500
		learningRate = 0.05
		l2           = 1e-4
	)

	grad := make([]float64, dims)
	for epoch := 0; epoch < epochs; epoch++ {
		for i := range grad {
			grad[i] = 0
		}
		var biasGrad float64
		for i, sample := range samples {
			pred := floats.Dot(r.Weights, sample) + r.Bias
			err := pred - targets[i]
			for d, f := range sample {
				grad[d] += err * f
			}
			biasGrad += err
		}
		n := float64(len(samples))
		for d := range r.Weights {
			r.Weights[d] -= learningRate * (grad[d]/n + l2*r.Weights[d])
		}
		r.Bias -= learningRate * biasGrad / n
	}
	r.Trained = true
}

func (r *linearRegressor) predict(features []float64) float64 {
	return floats.Dot(r.Weights, features) + r.Bias
}

// GapModel 差距检测模型：二分类器（有/无差距）+ 条件回归器（严重度，只在正样本上训练）
// + 特征标准化器。训练完成后实例视为不可变，重训产生新实例整体替换
type GapModel struct {
	scaler     standardScaler
	classifier logisticClassifier
	regressor  linearRegressor
	trained    bool
}

func NewGapModel() *GapModel {
	return &GapModel{}
}

func (m *GapModel) IsTrained() bool {
	return m.trained
}

// Train 固定种子打乱后 80/20 划分，训练集拟合标准化器和分类器，留出集算准确率。
// 回归器只在正样本上训练；正样本少于 minPositiveSamples 时跳过，不算错误
func (m *GapModel) Train(features [][]float64, gapLabels []int, severityLabels []float64) (*TrainingResult, error) {
	n := len(features)
	if n < minTrainSamples {
		return nil, fmt.Errorf("%w: have %d, need %d", errInsufficientSamples, n, minTrainSamples)
	}
	if len(gapLabels) != n || len(severityLabels) != n {
		return nil, errors.New("feature/label length mismatch")
	}

	indices := rand.New(rand.NewSource(trainSeed)).Perm(n)
	splitAt := n - n/5

	trainX := make([][]float64, 0, splitAt)
	trainY := make([]int, 0, splitAt)
	trainSeverity := make([]float64, 0, splitAt)
	testX := make([][]float64, 0, n-splitAt)
	testY := make([]int, 0, n-splitAt)
	testSeverity := make([]float64, 0, n-splitAt)

	for i, idx := range indices {
		if i < splitAt {
			trainX = append(trainX, features[idx])
			trainY = append(trainY, gapLabels[idx])
			trainSeverity = append(trainSeverity, severityLabels[idx])
		} else {
			testX = append(testX, features[idx])
			testY = append(testY, gapLabels[idx])
			testSeverity = append(testSeverity, severityLabels[idx])
		}
	}

	m.scaler.fit(trainX)
	trainScaled := make([][]float64, len(trainX))
	for i, sample := range trainX {
		trainScaled[i] = m.scaler.transform(sample)
	}
	testScaled := make([][]float64, len(testX))
	for i, sample := range testX {
		testScaled[i] = m.scaler.transform(sample)
	}

	m.classifier.fit(trainScaled, trainY)

	correct := 0
	for i, sample := range testScaled {
		predicted := 0
		if m.classifier.predictProba(sample) > 0.5 {
			predicted = 1
		}
		if predicted == testY[i] {
			correct++
		}
	}
	accuracy := 0.0
	if len(testScaled) > 0 {
		accuracy = float64(correct) / float64(len(testScaled))
	}

	result := &TrainingResult{
		ClassifierAccuracy: accuracy,
		SampleCount:        n,
	}

	var positiveX [][]float64
	var positiveSeverity []float64
	for i, label := range trainY {
		if label == 1 {
			positiveX = append(positiveX, trainScaled[i])
			positiveSeverity = append(positiveSeverity, trainSeverity[i])
		}
	}
	result.PositiveSamples = len(positiveX)

	if len(positiveX) >= minPositiveSamples {
		m.regressor.fit(positiveX, positiveSeverity)

		var estimates, observed []float64
		for i, label := range testY {
			if label == 1 {
				estimates = append(estimates, m.regressor.predict(testScaled[i]))
				observed = append(observed, testSeverity[i])
			}
		}
		if len(observed) > 1 {
			r2 := stat.RSquaredFrom(estimates, observed, nil)
			result.RegressorScore = &r2
		}
	}

	m.trained = true
	return result, nil
}

// Predict 返回 (差距概率, 严重度)，两者都裁剪到 [0,1]。
// 回归器未训练时严重度取固定的中性值 0.5，绝不复用概率
func (m *GapModel) Predict(features []float64) (float64, float64) {
	if !m.trained || !m.scaler.Fitted {
		return 0.0, neutralSeverity
	}

	scaled := m.scaler.transform(features)
	probability := clamp01(m.classifier.predictProba(scaled))

	severity := neutralSeverity
	if m.regressor.Trained {
		severity = clamp01(m.regressor.predict(scaled))
	}

	return probability, severity
}

// Save 三个产物独立写入：分类器、回归器、标准化器
func (m *GapModel) Save(ctx context.Context, store ArtifactStore, path string) error {
	artifacts := map[string]interface{}{
		path + "_classifier.json": &m.classifier,
		path + "_regressor.json":  &m.regressor,
		path + "_scaler.json":     &m.scaler,
	}
	for name, artifact := range artifacts {
		data, err := json.Marshal(artifact)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", name, err)
		}
		if err := store.Save(ctx, name, data); err != nil {
			return fmt.Errorf("save %s: %w", name, err)
		}
	}
	return nil
}

// Load 任一产物缺失时返回 (false, nil)，模型保持未训练状态
func (m *GapModel) Load(ctx context.Context, store ArtifactStore, path string) (bool, error) {
	artifacts := []struct {
		name   string
		target interface{}
	}{
		{path + "_classifier.json", &m.classifier},
		{path + "_regressor.json", &m.regressor},
		{path + "_scaler.json", &m.scaler},
	}
	for _, a := range artifacts {
		data, ok, err := store.Load(ctx, a.name)
		if err != nil {
			return false, fmt.Errorf("load %s: %w", a.name, err)
		}
		if !ok {
			return false, nil
		}
		if err := json.Unmarshal(data, a.target); err != nil {
			return false, fmt.Errorf("unmarshal %s: %w", a.name, err)
		}
	}

	m.trained = m.classifier.Trained && m.scaler.Fitted
	return m.trained, nil
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func clamp01(v float64) float64 {
	return math.Max(0.0, math.Min(1.0, v))
}
