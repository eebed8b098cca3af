package service

import (
	"context"
	"edu_gap_analytics/internal/config"
	"edu_gap_analytics/internal/model"
	"edu_gap_analytics/pkg/logger"
	"os"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	logger.Log = zap.NewNop()
	os.Exit(m.Run())
}

func testAnalysisConfig() *config.AnalysisConfig {
	return &config.AnalysisConfig{
		GapProbabilityThreshold: 0.6,
		AnalysisWindowDays:      90,
		RuleWindowDays:          30,
		MinRecentSubmissions:    3,
		MinTotalSubmissions:     5,
		MinUniqueConcepts:       2,
		MinTrainingRecords:      100,
		MinTrainingSamples:      50,
		MinRetrainNewRecords:    50,
		RetrainIntervalHours:    24,
		QueuePollTimeoutSec:     1,
		HistoryCacheTTLSec:      300,
		ModelPath:               "models/gap_detection",
	}
}

// fakePerformanceStore 默认从 records 计算各类数量；useCounts 置位后改用显式字段，
// 便于单独驱动充分性闸门的每个分支
type fakePerformanceStore struct {
	records []model.PerformanceRecord
	joined  []model.JoinedPerformance

	useCounts    bool
	recentCount  int64
	totalCount   int64
	conceptCount int64
	allCount     int64
	sinceCount   int64
}

func (f *fakePerformanceStore) FindByStudentSince(studentID string, since time.Time) ([]model.PerformanceRecord, error) {
	var out []model.PerformanceRecord
	for _, r := range f.records {
		if r.StudentID == studentID && r.Timestamp.After(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakePerformanceStore) FindByStudentConcept(studentID, conceptID string) ([]model.PerformanceRecord, error) {
	var out []model.PerformanceRecord
	for _, r := range f.records {
		if r.StudentID != studentID {
			continue
		}
		for _, resp := range r.QuestionResponses {
			if containsConcept(resp.ConceptTags, conceptID) {
				out = append(out, r)
				break
			}
		}
	}
	return out, nil
}

func (f *fakePerformanceStore) CountByStudent(studentID string) (int64, error) {
	if f.useCounts {
		return f.totalCount, nil
	}
	var n int64
	for _, r := range f.records {
		if r.StudentID == studentID {
			n++
		}
	}
	return n, nil
}

func (f *fakePerformanceStore) CountByStudentSince(studentID string, since time.Time) (int64, error) {
	if f.useCounts {
		return f.recentCount, nil
	}
	var n int64
	for _, r := range f.records {
		if r.StudentID == studentID && r.Timestamp.After(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakePerformanceStore) CountSince(since time.Time) (int64, error) {
	if f.useCounts {
		return f.sinceCount, nil
	}
	var n int64
	for _, r := range f.records {
		if r.Timestamp.After(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakePerformanceStore) CountAll() (int64, error) {
	if f.useCounts {
		return f.allCount, nil
	}
	return int64(len(f.records)), nil
}

func (f *fakePerformanceStore) DistinctConceptCount(studentID string) (int64, error) {
	if f.useCounts {
		return f.conceptCount, nil
	}
	seen := make(map[string]struct{})
	for _, r := range f.records {
		if r.StudentID != studentID {
			continue
		}
		for _, resp := range r.QuestionResponses {
			for _, tag := range resp.ConceptTags {
				seen[tag] = struct{}{}
			}
		}
	}
	return int64(len(seen)), nil
}

func (f *fakePerformanceStore) ListJoined(limit int) ([]model.JoinedPerformance, error) {
	return f.joined, nil
}

type fakeAssessmentStore struct {
	assessments []model.ConceptAssessment
}

func (f *fakeAssessmentStore) ListByStudent(studentID string) ([]model.ConceptAssessment, error) {
	var out []model.ConceptAssessment
	for _, a := range f.assessments {
		if a.StudentID == studentID {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeGapStore struct {
	mu      sync.Mutex
	upserts []model.LearningGap
	total   int64
}

func (f *fakeGapStore) UpsertByStudentConcept(gap *model.LearningGap) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, *gap)
	return nil
}

func (f *fakeGapStore) CountAll() (int64, error) {
	return f.total, nil
}

func (f *fakeGapStore) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts)
}

type fakeAnalysisStore struct {
	mu      sync.Mutex
	created []model.GapAnalysis
	latest  *model.GapAnalysis
}

func (f *fakeAnalysisStore) Create(analysis *model.GapAnalysis) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, *analysis)
	return nil
}

func (f *fakeAnalysisStore) LatestByStudent(studentID string) (*model.GapAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, nil
}

func (f *fakeAnalysisStore) HistoryByStudent(studentID string, limit int) ([]model.GapAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.GapAnalysis
	for i := len(f.created) - 1; i >= 0 && len(out) < limit; i-- {
		if f.created[i].StudentID == studentID {
			out = append(out, f.created[i])
		}
	}
	return out, nil
}

func (f *fakeAnalysisStore) CountSince(since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.created)), nil
}

func (f *fakeAnalysisStore) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *fakeAnalysisStore) lastCreated() *model.GapAnalysis {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	out := f.created[len(f.created)-1]
	return &out
}

type fakeTrainingRunStore struct {
	mu   sync.Mutex
	runs []model.TrainingRun
}

func (f *fakeTrainingRunStore) Create(run *model.TrainingRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, *run)
	return nil
}

func (f *fakeTrainingRunStore) Latest(modelType string) (*model.TrainingRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.runs) - 1; i >= 0; i-- {
		if f.runs[i].ModelType == modelType {
			out := f.runs[i]
			return &out, nil
		}
	}
	return nil, nil
}

// memArtifactStore 内存版模型产物存储
type memArtifactStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemArtifactStore() *memArtifactStore {
	return &memArtifactStore{objects: make(map[string][]byte)}
}

func (s *memArtifactStore) Save(ctx context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[name] = data
	return nil
}

func (s *memArtifactStore) Load(ctx context.Context, name string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[name]
	return data, ok, nil
}
