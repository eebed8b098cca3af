package repository

import (
	"edu_gap_analytics/internal/model"
	"time"

	"gorm.io/gorm"
)

type PerformanceRepository struct {
	DB *gorm.DB
}

func NewPerformanceRepository(db *gorm.DB) *PerformanceRepository {
	return &PerformanceRepository{DB: db}
}

func (r *PerformanceRepository) Create(record *model.PerformanceRecord) error {
	return r.DB.Create(record).Error
}

func (r *PerformanceRepository) FindBySubmissionID(submissionID string) (*model.PerformanceRecord, error) {
	var record model.PerformanceRecord
	err := r.DB.Where("submission_id = ?", submissionID).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *PerformanceRepository) FindByStudentSince(studentID string, since time.Time) ([]model.PerformanceRecord, error) {
	var records []model.PerformanceRecord
	err := r.DB.Where("student_id = ? AND timestamp >= ?", studentID, since).
		Order("timestamp asc").
		Find(&records).Error
	return records, err
}

func (r *PerformanceRepository) FindByStudent(studentID string, limit int) ([]model.PerformanceRecord, error) {
	var records []model.PerformanceRecord
	query := r.DB.Where("student_id = ?", studentID).Order("timestamp desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&records).Error
	return records, err
}

func (r *PerformanceRepository) CountByStudent(studentID string) (int64, error) {
	var count int64
	err := r.DB.Model(&model.PerformanceRecord{}).
		Where("student_id = ?", studentID).
		Count(&count).Error
	return count, err
}

func (r *PerformanceRepository) CountByStudentSince(studentID string, since time.Time) (int64, error) {
	var count int64
	err := r.DB.Model(&model.PerformanceRecord{}).
		Where("student_id = ? AND timestamp >= ?", studentID, since).
		Count(&count).Error
	return count, err
}

func (r *PerformanceRepository) CountSince(since time.Time) (int64, error) {
	var count int64
	err := r.DB.Model(&model.PerformanceRecord{}).
		Where("timestamp >= ?", since).
		Count(&count).Error
	return count, err
}

func (r *PerformanceRepository) CountAll() (int64, error) {
	var count int64
	err := r.DB.Model(&model.PerformanceRecord{}).Count(&count).Error
	return count, err
}

// DistinctConceptCount 统计学生作答覆盖过多少个不同概念。
// concept_tags 存在 JSON 列里，跨库可移植的做法是取回行在 Go 里数
func (r *PerformanceRepository) DistinctConceptCount(studentID string) (int64, error) {
	var records []model.PerformanceRecord
	err := r.DB.Select("question_responses").
		Where("student_id = ?", studentID).
		Find(&records).Error
	if err != nil {
		return 0, err
	}

	concepts := make(map[string]struct{})
	for _, record := range records {
		for _, response := range record.QuestionResponses {
			for _, tag := range response.ConceptTags {
				concepts[tag] = struct{}{}
			}
		}
	}
	return int64(len(concepts)), nil
}

// FindByStudentConcept 返回学生在某概念上有作答的全部记录，置信区间计算用
func (r *PerformanceRepository) FindByStudentConcept(studentID, conceptID string) ([]model.PerformanceRecord, error) {
	records, err := r.FindByStudent(studentID, 0)
	if err != nil {
		return nil, err
	}

	var matched []model.PerformanceRecord
	for _, record := range records {
		for _, response := range record.QuestionResponses {
			if containsTag(response.ConceptTags, conceptID) {
				matched = append(matched, record)
				break
			}
		}
	}
	return matched, nil
}

// ListJoined 训练数据准备：成绩记录关联同一学生的概念评估与已知差距
func (r *PerformanceRepository) ListJoined(limit int) ([]model.JoinedPerformance, error) {
	var records []model.PerformanceRecord
	query := r.DB.Order("timestamp asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	studentSet := make(map[string]struct{}, len(records))
	studentIDs := make([]string, 0, len(records))
	for _, record := range records {
		if _, seen := studentSet[record.StudentID]; !seen {
			studentSet[record.StudentID] = struct{}{}
			studentIDs = append(studentIDs, record.StudentID)
		}
	}

	var assessments []model.ConceptAssessment
	if err := r.DB.Where("student_id IN ?", studentIDs).Find(&assessments).Error; err != nil {
		return nil, err
	}
	assessmentsByStudent := make(map[string][]model.ConceptAssessment)
	for _, a := range assessments {
		assessmentsByStudent[a.StudentID] = append(assessmentsByStudent[a.StudentID], a)
	}

	var gaps []model.LearningGap
	if err := r.DB.Where("student_id IN ?", studentIDs).Find(&gaps).Error; err != nil {
		return nil, err
	}
	gapsByStudent := make(map[string][]model.LearningGap)
	for _, g := range gaps {
		gapsByStudent[g.StudentID] = append(gapsByStudent[g.StudentID], g)
	}

	joined := make([]model.JoinedPerformance, 0, len(records))
	for _, record := range records {
		joined = append(joined, model.JoinedPerformance{
			Record:      record,
			Assessments: assessmentsByStudent[record.StudentID],
			Gaps:        gapsByStudent[record.StudentID],
		})
	}
	return joined, nil
}

func (r *PerformanceRepository) Stats(studentID string) (*model.PerformanceStats, error) {
	stats := &model.PerformanceStats{StudentID: studentID}

	if err := r.DB.Model(&model.PerformanceRecord{}).
		Where("student_id = ?", studentID).
		Count(&stats.TotalSubmissions).Error; err != nil {
		return nil, err
	}

	if err := r.DB.Model(&model.PerformanceRecord{}).
		Where("student_id = ? AND submission_type = ?", studentID, model.SubmissionQuiz).
		Count(&stats.QuizSubmissions).Error; err != nil {
		return nil, err
	}

	if err := r.DB.Model(&model.PerformanceRecord{}).
		Where("student_id = ? AND submission_type = ?", studentID, model.SubmissionCode).
		Count(&stats.CodeSubmissions).Error; err != nil {
		return nil, err
	}

	var avg struct {
		Average float64
	}
	err := r.DB.Model(&model.PerformanceRecord{}).
		Select("COALESCE(AVG(score / NULLIF(max_score, 0)), 0) as average").
		Where("student_id = ?", studentID).
		Scan(&avg).Error
	if err != nil {
		return nil, err
	}
	stats.AverageScore = avg.Average

	return stats, nil
}

func containsTag(tags []string, target string) bool {
	for _, t := range tags {
		if t == target {
			return true
		}
	}
	return false
}
