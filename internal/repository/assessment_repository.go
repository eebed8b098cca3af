package repository

import (
	"edu_gap_analytics/internal/model"

	"gorm.io/gorm"
)

type AssessmentRepository struct {
	DB *gorm.DB
}

func NewAssessmentRepository(db *gorm.DB) *AssessmentRepository {
	return &AssessmentRepository{DB: db}
}

func (r *AssessmentRepository) Create(assessment *model.ConceptAssessment) error {
	return r.DB.Create(assessment).Error
}

func (r *AssessmentRepository) ListByStudent(studentID string) ([]model.ConceptAssessment, error) {
	var assessments []model.ConceptAssessment
	err := r.DB.Where("student_id = ?", studentID).
		Order("assessed_at asc").
		Find(&assessments).Error
	return assessments, err
}

func (r *AssessmentRepository) LatestByStudentConcept(studentID, conceptID string) (*model.ConceptAssessment, error) {
	var assessment model.ConceptAssessment
	err := r.DB.Where("student_id = ? AND concept_id = ?", studentID, conceptID).
		Order("assessed_at desc").
		First(&assessment).Error
	if err != nil {
		return nil, err
	}
	return &assessment, nil
}
