package repository

import (
	"edu_gap_analytics/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GapRepository struct {
	DB *gorm.DB
}

func NewGapRepository(db *gorm.DB) *GapRepository {
	return &GapRepository{DB: db}
}

// UpsertByStudentConcept 以 (student_id, concept_id) 为键写入，重复则覆盖差距字段
func (r *GapRepository) UpsertByStudentConcept(gap *model.LearningGap) error {
	return r.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "student_id"}, {Name: "concept_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"gap_severity",
			"confidence_score",
			"last_updated",
			"supporting_evidence",
			"improvement_trend",
		}),
	}).Create(gap).Error
}

// ListByStudent 按严重度倒序返回学生当前差距。
// includeResolved=false 时过滤掉严重度 ≤ 0.1 的近似已解决差距
func (r *GapRepository) ListByStudent(studentID string, severityThreshold float64, includeResolved bool) ([]model.LearningGap, error) {
	query := r.DB.Where("student_id = ?", studentID)
	if !includeResolved {
		query = query.Where("gap_severity > ?", 0.1)
	}
	if severityThreshold > 0 {
		query = query.Where("gap_severity >= ?", severityThreshold)
	}

	var gaps []model.LearningGap
	err := query.Order("gap_severity desc").Find(&gaps).Error
	return gaps, err
}

func (r *GapRepository) ListByConcept(conceptID string, severityThreshold float64) ([]model.LearningGap, error) {
	var gaps []model.LearningGap
	err := r.DB.Where("concept_id = ? AND gap_severity >= ?", conceptID, severityThreshold).
		Order("gap_severity desc").
		Find(&gaps).Error
	return gaps, err
}

func (r *GapRepository) CountAll() (int64, error) {
	var count int64
	err := r.DB.Model(&model.LearningGap{}).Count(&count).Error
	return count, err
}
