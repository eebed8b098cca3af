package service

import (
	"context"
	"edu_gap_analytics/internal/model"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type coordinatorFixture struct {
	coordinator *AnalysisCoordinator
	perf        *fakePerformanceStore
	gaps        *fakeGapStore
	analyses    *fakeAnalysisStore
	runs        *fakeTrainingRunStore
}

func newCoordinatorFixture(perf *fakePerformanceStore) *coordinatorFixture {
	gaps := &fakeGapStore{}
	analyses := &fakeAnalysisStore{}
	runs := &fakeTrainingRunStore{}
	detection := newDetectionService(perf, nil, nil)

	coordinator := NewAnalysisCoordinator(detection, perf, gaps, analyses, runs, nil, testAnalysisConfig())
	return &coordinatorFixture{
		coordinator: coordinator,
		perf:        perf,
		gaps:        gaps,
		analyses:    analyses,
		runs:        runs,
	}
}

func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestCheckDataSufficiencyGate(t *testing.T) {
	cases := []struct {
		recent, total, concepts int64
		want                    bool
	}{
		{3, 5, 2, true},
		{2, 5, 2, false},
		{3, 4, 2, false},
		{3, 5, 1, false},
		{2, 4, 2, false},
		{2, 5, 1, false},
		{3, 4, 1, false},
		{2, 4, 1, false},
	}

	for _, tc := range cases {
		name := fmt.Sprintf("recent=%d_total=%d_concepts=%d", tc.recent, tc.total, tc.concepts)
		t.Run(name, func(t *testing.T) {
			perf := &fakePerformanceStore{
				useCounts:    true,
				recentCount:  tc.recent,
				totalCount:   tc.total,
				conceptCount: tc.concepts,
			}
			f := newCoordinatorFixture(perf)

			sufficiency, err := f.coordinator.CheckDataSufficiency("stu-1")
			require.NoError(t, err)
			assert.Equal(t, tc.want, sufficiency.Sufficient)
			if tc.want {
				assert.Empty(t, sufficiency.Recommendations)
			} else {
				assert.NotEmpty(t, sufficiency.Recommendations)
			}
		})
	}
}

func TestGatedAnalysisInsufficientDataPlaceholder(t *testing.T) {
	perf := &fakePerformanceStore{
		useCounts:    true,
		recentCount:  1,
		totalCount:   2,
		conceptCount: 1,
	}
	f := newCoordinatorFixture(perf)

	analysis, err := f.coordinator.runAnalysis("stu-1", true)
	require.NoError(t, err)
	require.NotNil(t, analysis)

	assert.True(t, analysis.InsufficientData)
	assert.Zero(t, analysis.TotalGaps)
	assert.Empty(t, analysis.IdentifiedGaps)
	require.NotNil(t, analysis.DataSufficiency)
	assert.False(t, analysis.DataSufficiency.Sufficient)
	assert.Len(t, analysis.DataSufficiency.Recommendations, 3)

	// 占位结果必须落盘
	assert.Equal(t, 1, f.analyses.createdCount())
	assert.Equal(t, 0, f.gaps.upsertCount())
}

func TestUrgentAnalysisBypassesGate(t *testing.T) {
	// 数据量不足以通过闸门，但仍有可供规则检测的记录
	perf := &fakePerformanceStore{records: studentHistory("stu-1")}
	perf.useCounts = true
	perf.recentCount = 1
	perf.totalCount = 2
	perf.conceptCount = 1

	f := newCoordinatorFixture(perf)

	analysis, err := f.coordinator.TriggerUrgentAnalysis(context.Background(), "stu-1", "teacher_request")
	require.NoError(t, err)
	require.NotNil(t, analysis)

	// 紧急通道跳过闸门：真实结果而不是占位
	assert.False(t, analysis.InsufficientData)
	require.Equal(t, 1, analysis.TotalGaps)
	assert.Equal(t, "loops", analysis.IdentifiedGaps[0].ConceptID)
	assert.Contains(t, analysis.ConfidenceIntervals, "loops")

	assert.Equal(t, 1, f.analyses.createdCount())
	assert.Equal(t, 1, f.gaps.upsertCount())
}

func TestRunAnalysisAppliesTrend(t *testing.T) {
	perf := &fakePerformanceStore{records: studentHistory("stu-1")}
	f := newCoordinatorFixture(perf)
	f.analyses.latest = &model.GapAnalysis{
		StudentID: "stu-1",
		IdentifiedGaps: []model.LearningGap{
			{ConceptID: "loops", GapSeverity: 0.8},
		},
	}

	analysis, err := f.coordinator.runAnalysis("stu-1", true)
	require.NoError(t, err)
	require.Equal(t, 1, analysis.TotalGaps)

	// 上次 0.8，本次 0.75
	assert.InDelta(t, (0.8-0.75)/0.8, analysis.IdentifiedGaps[0].ImprovementTrend, 1e-9)
	assert.InDelta(t, 0.75, analysis.AverageSeverity, 1e-9)
}

func TestStartStopIdempotent(t *testing.T) {
	f := newCoordinatorFixture(&fakePerformanceStore{})

	assert.False(t, f.coordinator.GetQueueStatus().IsRunning)

	f.coordinator.Start()
	f.coordinator.Start() // 重复启动是 no-op
	assert.True(t, f.coordinator.GetQueueStatus().IsRunning)

	f.coordinator.Stop()
	assert.False(t, f.coordinator.GetQueueStatus().IsRunning)
	f.coordinator.Stop() // 重复停止不会死锁
}

func TestQueuedAnalysisProcessed(t *testing.T) {
	perf := &fakePerformanceStore{records: studentHistory("stu-1")}
	f := newCoordinatorFixture(perf)

	f.coordinator.Start()
	defer f.coordinator.Stop()

	f.coordinator.TriggerGapAnalysis("stu-1", map[string]interface{}{"submissionId": "sub-1"})

	waitFor(t, 5*time.Second, func() bool {
		return f.analyses.createdCount() == 1
	})

	analysis := f.analyses.lastCreated()
	require.NotNil(t, analysis)
	assert.Equal(t, "stu-1", analysis.StudentID)
	assert.Equal(t, 1, analysis.TotalGaps)
	assert.Equal(t, 1, f.gaps.upsertCount())

	waitFor(t, time.Second, func() bool {
		return f.coordinator.GetQueueStatus().QueueSize == 0
	})
}

func TestQueueFIFOOrder(t *testing.T) {
	perf := &fakePerformanceStore{
		records: append(studentHistory("stu-a"), studentHistory("stu-b")...),
	}
	f := newCoordinatorFixture(perf)

	f.coordinator.TriggerGapAnalysis("stu-a", nil)
	f.coordinator.TriggerGapAnalysis("stu-b", nil)
	assert.Equal(t, 2, f.coordinator.GetQueueStatus().QueueSize)

	f.coordinator.Start()
	defer f.coordinator.Stop()

	waitFor(t, 5*time.Second, func() bool {
		return f.analyses.createdCount() == 2
	})

	f.analyses.mu.Lock()
	defer f.analyses.mu.Unlock()
	assert.Equal(t, "stu-a", f.analyses.created[0].StudentID)
	assert.Equal(t, "stu-b", f.analyses.created[1].StudentID)
}

func TestRetrainRecordsTrainingRun(t *testing.T) {
	perf := &fakePerformanceStore{
		useCounts: true,
		allCount:  150,
		joined:    trainingJoined(60, 30),
	}
	f := newCoordinatorFixture(perf)

	trained, err := f.coordinator.RetrainModels(context.Background())
	require.NoError(t, err)
	require.True(t, trained)

	run, err := f.runs.Latest(modelTypeGapDetection)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.True(t, run.Success)
	assert.Equal(t, 60, run.SampleCount)
	assert.NotEmpty(t, run.Version)
}

func TestRetrainSkippedOnInsufficientData(t *testing.T) {
	perf := &fakePerformanceStore{useCounts: true, allCount: 10}
	f := newCoordinatorFixture(perf)

	trained, err := f.coordinator.RetrainModels(context.Background())
	require.NoError(t, err)
	assert.False(t, trained)

	run, err := f.runs.Latest(modelTypeGapDetection)
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestGetAnalysisHistoryWithoutRedis(t *testing.T) {
	f := newCoordinatorFixture(&fakePerformanceStore{})

	for i := 0; i < 3; i++ {
		require.NoError(t, f.analyses.Create(&model.GapAnalysis{StudentID: "stu-1"}))
	}

	history, err := f.coordinator.GetAnalysisHistory("stu-1", 2)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	// limit ≤ 0 回落到默认条数
	history, err = f.coordinator.GetAnalysisHistory("stu-1", 0)
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestGetSystemStatus(t *testing.T) {
	f := newCoordinatorFixture(&fakePerformanceStore{})
	f.gaps.total = 7
	require.NoError(t, f.analyses.Create(&model.GapAnalysis{StudentID: "stu-1"}))

	status, err := f.coordinator.GetSystemStatus()
	require.NoError(t, err)

	assert.Equal(t, int64(1), status.RecentAnalyses24h)
	assert.Equal(t, int64(7), status.TotalActiveGaps)
	assert.False(t, status.SystemHealthy)

	f.coordinator.Start()
	defer f.coordinator.Stop()

	status, err = f.coordinator.GetSystemStatus()
	require.NoError(t, err)
	assert.True(t, status.SystemHealthy)
}
