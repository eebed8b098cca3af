package service

import (
	"context"
	"edu_gap_analytics/internal/model"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDetectionService(perf *fakePerformanceStore, assess *fakeAssessmentStore, artifacts ArtifactStore) *GapDetectionService {
	if assess == nil {
		assess = &fakeAssessmentStore{}
	}
	if artifacts == nil {
		artifacts = newMemArtifactStore()
	}
	return NewGapDetectionService(perf, assess, artifacts, testAnalysisConfig())
}

// studentHistory 十天内 6 条记录、3 个概念，loops 正确率 0.25，其余达标
func studentHistory(studentID string) []model.PerformanceRecord {
	now := time.Now()
	records := []model.PerformanceRecord{
		{
			SubmissionID: "sub-1", StudentID: studentID, Score: 1, MaxScore: 3,
			QuestionResponses: []model.QuestionResponse{
				{Correct: false, ConceptTags: []string{"loops"}},
				{Correct: false, ConceptTags: []string{"loops"}},
				{Correct: true, ConceptTags: []string{"functions"}},
			},
		},
		{
			SubmissionID: "sub-2", StudentID: studentID, Score: 2, MaxScore: 3,
			QuestionResponses: []model.QuestionResponse{
				{Correct: false, ConceptTags: []string{"loops"}},
				{Correct: true, ConceptTags: []string{"functions"}},
				{Correct: true, ConceptTags: []string{"variables"}},
			},
		},
		{
			SubmissionID: "sub-3", StudentID: studentID, Score: 2, MaxScore: 2,
			QuestionResponses: []model.QuestionResponse{
				{Correct: true, ConceptTags: []string{"loops"}},
				{Correct: true, ConceptTags: []string{"variables"}},
			},
		},
		{
			SubmissionID: "sub-4", StudentID: studentID, Score: 1, MaxScore: 1,
			QuestionResponses: []model.QuestionResponse{
				{Correct: true, ConceptTags: []string{"functions"}},
			},
		},
		{
			SubmissionID: "sub-5", StudentID: studentID, Score: 1, MaxScore: 1,
			QuestionResponses: []model.QuestionResponse{
				{Correct: true, ConceptTags: []string{"variables"}},
			},
		},
		{
			SubmissionID: "sub-6", StudentID: studentID, Score: 0, MaxScore: 1,
			QuestionResponses: []model.QuestionResponse{
				{Correct: false, ConceptTags: []string{"variables"}},
			},
		},
	}
	for i := range records {
		records[i].SubmissionType = model.SubmissionQuiz
		records[i].Timestamp = now.AddDate(0, 0, -(i + 1))
	}
	return records
}

func TestDetectUntrainedFallsBackToRules(t *testing.T) {
	perf := &fakePerformanceStore{records: studentHistory("stu-1")}
	s := newDetectionService(perf, nil, nil)
	require.False(t, s.IsTrained())

	gaps, err := s.DetectLearningGaps("stu-1")
	require.NoError(t, err)

	// loops 4 答 1 对是唯一达标且低于阈值的概念
	require.Len(t, gaps, 1)
	assert.Equal(t, "loops", gaps[0].ConceptID)
	assert.InDelta(t, 0.75, gaps[0].GapSeverity, 1e-9)
	assert.InDelta(t, 0.4, gaps[0].ConfidenceScore, 1e-9)
}

func TestDetectNoData(t *testing.T) {
	s := newDetectionService(&fakePerformanceStore{}, nil, nil)

	gaps, err := s.DetectLearningGaps("stu-unknown")
	require.NoError(t, err)
	assert.Empty(t, gaps)
}

func TestDetectWithTrainedModel(t *testing.T) {
	now := time.Now()
	perf := &fakePerformanceStore{
		records: []model.PerformanceRecord{{
			SubmissionID:   "sub-low",
			StudentID:      "stu-1",
			SubmissionType: model.SubmissionQuiz,
			Score:          1, MaxScore: 4,
			Timestamp: now.AddDate(0, 0, -2),
			QuestionResponses: []model.QuestionResponse{
				{Correct: false, ConceptTags: []string{"recursion"}},
				{Correct: false, ConceptTags: []string{"recursion"}},
				{Correct: false, ConceptTags: []string{"pointers"}},
				{Correct: true, ConceptTags: []string{"loops"}},
			},
		}},
	}
	s := newDetectionService(perf, nil, nil)

	trained := NewGapModel()
	features, labels, severities := syntheticTrainingData(100, 50)
	_, err := trained.Train(features, labels, severities)
	require.NoError(t, err)
	s.swapModel(trained)
	require.True(t, s.IsTrained())

	gaps, err := s.DetectLearningGaps("stu-1")
	require.NoError(t, err)
	require.Len(t, gaps, 2)

	concepts := []string{gaps[0].ConceptID, gaps[1].ConceptID}
	assert.Contains(t, concepts, "recursion")
	assert.Contains(t, concepts, "pointers")
	// recursion 错 2 题，严重度和置信度都应高于 pointers
	assert.Equal(t, "recursion", gaps[0].ConceptID)
	assert.Greater(t, gaps[0].GapSeverity, gaps[1].GapSeverity)
	assert.InDelta(t, 0.4, gaps[0].ConfidenceScore, 1e-9)
	assert.InDelta(t, 0.2, gaps[1].ConfidenceScore, 1e-9)

	for _, gap := range gaps {
		require.Len(t, gap.SupportingEvidence, 1)
		assert.Equal(t, "sub-low", gap.SupportingEvidence[0].SubmissionID)
		assert.Equal(t, "incorrect_responses", gap.SupportingEvidence[0].EvidenceType)
		assert.Equal(t, 1.0, gap.SupportingEvidence[0].Weight)
	}
}

func TestDetectTrainedHighPerformerNoGaps(t *testing.T) {
	now := time.Now()
	perf := &fakePerformanceStore{
		records: []model.PerformanceRecord{{
			SubmissionID:   "sub-high",
			StudentID:      "stu-1",
			SubmissionType: model.SubmissionQuiz,
			Score:          4, MaxScore: 4,
			Timestamp: now.AddDate(0, 0, -1),
			QuestionResponses: []model.QuestionResponse{
				{Correct: true, ConceptTags: []string{"loops"}},
				{Correct: true, ConceptTags: []string{"recursion"}},
				{Correct: true, ConceptTags: []string{"pointers"}},
				{Correct: true, ConceptTags: []string{"functions"}},
			},
		}},
	}
	s := newDetectionService(perf, nil, nil)

	trained := NewGapModel()
	features, labels, severities := syntheticTrainingData(100, 50)
	_, err := trained.Train(features, labels, severities)
	require.NoError(t, err)
	s.swapModel(trained)

	gaps, err := s.DetectLearningGaps("stu-1")
	require.NoError(t, err)
	assert.Empty(t, gaps)
}

func TestConfidenceIntervalFromRecords(t *testing.T) {
	perf := &fakePerformanceStore{
		records: []model.PerformanceRecord{
			quizRecord("stu-1",
				model.QuestionResponse{Correct: true, ConceptTags: []string{"loops"}},
				model.QuestionResponse{Correct: true, ConceptTags: []string{"loops"}},
			),
			quizRecord("stu-1",
				model.QuestionResponse{Correct: true, ConceptTags: []string{"loops"}},
				model.QuestionResponse{Correct: false, ConceptTags: []string{"loops"}},
			),
			quizRecord("stu-1",
				model.QuestionResponse{Correct: false, ConceptTags: []string{"loops"}},
			),
		},
	}
	s := newDetectionService(perf, nil, nil)

	interval, err := s.ConfidenceInterval("stu-1", "loops")
	require.NoError(t, err)

	// 三条记录的概念内正确率样本 {1, 0.5, 0}
	assert.InDelta(t, 0.03802, interval.LowerBound, 1e-4)
	assert.InDelta(t, 0.96198, interval.UpperBound, 1e-4)
	assert.InDelta(t, 0.3, interval.ConfidenceLevel, 1e-9)
}

func TestConfidenceIntervalInsufficientData(t *testing.T) {
	perf := &fakePerformanceStore{
		records: []model.PerformanceRecord{
			quizRecord("stu-1", model.QuestionResponse{Correct: false, ConceptTags: []string{"loops"}}),
		},
	}
	s := newDetectionService(perf, nil, nil)

	interval, err := s.ConfidenceInterval("stu-1", "loops")
	require.NoError(t, err)
	assert.Equal(t, 0.0, interval.LowerBound)
	assert.Equal(t, 1.0, interval.UpperBound)
	assert.Equal(t, 0.5, interval.ConfidenceLevel)
}

// trainingJoined 生成可分的关联训练行：正例低分且带已知差距
func trainingJoined(n, positives int) []model.JoinedPerformance {
	now := time.Now()
	joined := make([]model.JoinedPerformance, n)
	for i := 0; i < n; i++ {
		score := 8.5 + float64(i%10)/10.0
		record := model.PerformanceRecord{
			SubmissionID:   model.GenerateUUID(),
			StudentID:      "stu-train",
			SubmissionType: model.SubmissionQuiz,
			MaxScore:       10,
			Timestamp:      now.AddDate(0, 0, -(i % 30)),
		}
		var gaps []model.LearningGap
		if i < positives {
			score = 1.0 + float64(i%10)/10.0
			gaps = []model.LearningGap{{GapSeverity: 0.8}}
		}
		record.Score = score
		joined[i] = model.JoinedPerformance{Record: record, Gaps: gaps}
	}
	return joined
}

func TestTrainIfReadyInsufficientRecords(t *testing.T) {
	perf := &fakePerformanceStore{useCounts: true, allCount: 50}
	s := newDetectionService(perf, nil, nil)

	trained, result, err := s.TrainIfReady(context.Background())
	require.NoError(t, err)
	assert.False(t, trained)
	assert.Nil(t, result)
	assert.False(t, s.IsTrained())
}

func TestTrainIfReadyInsufficientSamples(t *testing.T) {
	perf := &fakePerformanceStore{
		useCounts: true,
		allCount:  150,
		joined:    trainingJoined(20, 10),
	}
	s := newDetectionService(perf, nil, nil)

	trained, result, err := s.TrainIfReady(context.Background())
	require.NoError(t, err)
	assert.False(t, trained)
	assert.Nil(t, result)
}

func TestTrainIfReadyTrainsAndPersists(t *testing.T) {
	artifacts := newMemArtifactStore()
	perf := &fakePerformanceStore{
		useCounts: true,
		allCount:  150,
		joined:    trainingJoined(60, 30),
	}
	s := newDetectionService(perf, nil, artifacts)

	trained, result, err := s.TrainIfReady(context.Background())
	require.NoError(t, err)
	require.True(t, trained)
	require.NotNil(t, result)

	assert.Equal(t, 60, result.SampleCount)
	assert.True(t, s.IsTrained())

	// 三个模型产物都已持久化
	for _, name := range []string{"_classifier.json", "_regressor.json", "_scaler.json"} {
		_, ok, err := artifacts.Load(context.Background(), "models/gap_detection"+name)
		require.NoError(t, err)
		assert.True(t, ok, name)
	}
}

func TestInitializeModelsLoadsStoredArtifacts(t *testing.T) {
	artifacts := newMemArtifactStore()
	ctx := context.Background()

	pretrained := NewGapModel()
	features, labels, severities := syntheticTrainingData(80, 40)
	_, err := pretrained.Train(features, labels, severities)
	require.NoError(t, err)
	require.NoError(t, pretrained.Save(ctx, artifacts, "models/gap_detection"))

	s := newDetectionService(&fakePerformanceStore{}, nil, artifacts)
	require.NoError(t, s.InitializeModels(ctx))
	assert.True(t, s.IsTrained())
}

func TestInitializeModelsNoArtifactsNoData(t *testing.T) {
	s := newDetectionService(&fakePerformanceStore{}, nil, nil)

	require.NoError(t, s.InitializeModels(context.Background()))
	assert.False(t, s.IsTrained())
}
