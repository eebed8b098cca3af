package repository

import (
	"edu_gap_analytics/internal/model"
	"errors"
	"time"

	"gorm.io/gorm"
)

type AnalysisRepository struct {
	DB *gorm.DB
}

func NewAnalysisRepository(db *gorm.DB) *AnalysisRepository {
	return &AnalysisRepository{DB: db}
}

func (r *AnalysisRepository) Create(analysis *model.GapAnalysis) error {
	return r.DB.Create(analysis).Error
}

// LatestByStudent 返回该学生最近一次分析；时间相同按插入顺序（id 倒序）取最新。
// 无历史记录时返回 (nil, nil)
func (r *AnalysisRepository) LatestByStudent(studentID string) (*model.GapAnalysis, error) {
	var analysis model.GapAnalysis
	err := r.DB.Where("student_id = ?", studentID).
		Order("analysis_timestamp desc, id desc").
		First(&analysis).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &analysis, nil
}

func (r *AnalysisRepository) HistoryByStudent(studentID string, limit int) ([]model.GapAnalysis, error) {
	if limit <= 0 {
		limit = 10
	}
	var analyses []model.GapAnalysis
	err := r.DB.Where("student_id = ?", studentID).
		Order("analysis_timestamp desc, id desc").
		Limit(limit).
		Find(&analyses).Error
	return analyses, err
}

func (r *AnalysisRepository) CountSince(since time.Time) (int64, error) {
	var count int64
	err := r.DB.Model(&model.GapAnalysis{}).
		Where("analysis_timestamp >= ?", since).
		Count(&count).Error
	return count, err
}
