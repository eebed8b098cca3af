package service

import (
	"edu_gap_analytics/internal/model"
	"time"
)

// 消费方接口，由 repository 包的 gorm 实现满足，便于用假实现测试管线

type performanceStore interface {
	FindByStudentSince(studentID string, since time.Time) ([]model.PerformanceRecord, error)
	FindByStudentConcept(studentID, conceptID string) ([]model.PerformanceRecord, error)
	CountByStudent(studentID string) (int64, error)
	CountByStudentSince(studentID string, since time.Time) (int64, error)
	CountSince(since time.Time) (int64, error)
	CountAll() (int64, error)
	DistinctConceptCount(studentID string) (int64, error)
	ListJoined(limit int) ([]model.JoinedPerformance, error)
}

type assessmentStore interface {
	ListByStudent(studentID string) ([]model.ConceptAssessment, error)
}

type gapStore interface {
	UpsertByStudentConcept(gap *model.LearningGap) error
	CountAll() (int64, error)
}

type analysisStore interface {
	Create(analysis *model.GapAnalysis) error
	LatestByStudent(studentID string) (*model.GapAnalysis, error)
	HistoryByStudent(studentID string, limit int) ([]model.GapAnalysis, error)
	CountSince(since time.Time) (int64, error)
}

type trainingRunStore interface {
	Create(run *model.TrainingRun) error
	Latest(modelType string) (*model.TrainingRun, error)
}
