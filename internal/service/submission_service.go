package service

import (
	"edu_gap_analytics/internal/model"
	"edu_gap_analytics/internal/repository"
	"edu_gap_analytics/pkg/logger"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SubmissionService 成绩数据入口：校验、落库、再异步触发差距分析。
// 触发是 fire-and-forget，分析失败不影响提交本身
type SubmissionService struct {
	PerformanceRepo *repository.PerformanceRepository
	AssessmentRepo  *repository.AssessmentRepository
	Coordinator     *AnalysisCoordinator
}

func NewSubmissionService(performanceRepo *repository.PerformanceRepository, assessmentRepo *repository.AssessmentRepository, coordinator *AnalysisCoordinator) *SubmissionService {
	return &SubmissionService{
		PerformanceRepo: performanceRepo,
		AssessmentRepo:  assessmentRepo,
		Coordinator:     coordinator,
	}
}

// SubmitQuiz 记录一次测验提交。得分按答对题数计算，满分为题目总数
func (s *SubmissionService) SubmitQuiz(req *model.QuizSubmissionRequest) (*model.SubmissionResponse, error) {
	score := 0.0
	for _, response := range req.QuestionResponses {
		if response.Correct {
			score++
		}
	}

	record := &model.PerformanceRecord{
		SubmissionID:      req.SubmissionID,
		StudentID:         req.StudentID,
		SubmissionType:    model.SubmissionQuiz,
		CourseID:          req.CourseID,
		AssignmentID:      req.AssignmentID,
		Score:             score,
		MaxScore:          float64(len(req.QuestionResponses)),
		Timestamp:         time.Now(),
		QuestionResponses: req.QuestionResponses,
	}

	return s.persistAndTrigger(record)
}

// SubmitCode 记录一次代码提交。概念标签以合成题目作答的形式保存，
// 使特征提取对两种提交类型有统一的标签来源
func (s *SubmissionService) SubmitCode(req *model.CodeSubmissionRequest) (*model.SubmissionResponse, error) {
	record := &model.PerformanceRecord{
		SubmissionID:   req.SubmissionID,
		StudentID:      req.StudentID,
		SubmissionType: model.SubmissionCode,
		CourseID:       req.CourseID,
		AssignmentID:   req.AssignmentID,
		Score:          req.Score,
		MaxScore:       req.MaxScore,
		Timestamp:      time.Now(),
		CodeMetrics:    req.CodeMetrics,
	}

	if len(req.ConceptTags) > 0 {
		correct := req.MaxScore > 0 && req.Score/req.MaxScore >= 0.6
		record.QuestionResponses = []model.QuestionResponse{{
			QuestionID:  req.AssignmentID,
			Correct:     correct,
			ConceptTags: req.ConceptTags,
		}}
	}

	return s.persistAndTrigger(record)
}

func (s *SubmissionService) persistAndTrigger(record *model.PerformanceRecord) (*model.SubmissionResponse, error) {
	// 客户端带 submissionId 时按幂等键处理，重放返回已有记录
	if record.SubmissionID != "" {
		existing, err := s.PerformanceRepo.FindBySubmissionID(record.SubmissionID)
		if err == nil {
			return &model.SubmissionResponse{
				SubmissionID:     existing.SubmissionID,
				StudentID:        existing.StudentID,
				SubmissionType:   existing.SubmissionType,
				Score:            existing.Score,
				MaxScore:         existing.MaxScore,
				Timestamp:        existing.Timestamp,
				ProcessingStatus: "duplicate",
			}, nil
		}
	} else {
		record.SubmissionID = uuid.New().String()
	}

	if err := s.PerformanceRepo.Create(record); err != nil {
		return nil, err
	}

	s.Coordinator.TriggerGapAnalysis(record.StudentID, map[string]interface{}{
		"submissionId":   record.SubmissionID,
		"submissionType": string(record.SubmissionType),
	})

	logger.Log.Info("Recorded submission",
		zap.String("submissionId", record.SubmissionID),
		zap.String("studentId", record.StudentID),
		zap.String("type", string(record.SubmissionType)))

	return &model.SubmissionResponse{
		SubmissionID:     record.SubmissionID,
		StudentID:        record.StudentID,
		SubmissionType:   record.SubmissionType,
		Score:            record.Score,
		MaxScore:         record.MaxScore,
		Timestamp:        record.Timestamp,
		ProcessingStatus: "queued",
	}, nil
}

// GetStudentPerformance 按时间窗口返回某学生的成绩记录，窗口为 0 时返回最近 days 默认 30 天
func (s *SubmissionService) GetStudentPerformance(studentID string, days int) ([]model.PerformanceRecord, error) {
	if days <= 0 {
		days = 30
	}
	since := time.Now().AddDate(0, 0, -days)
	return s.PerformanceRepo.FindByStudentSince(studentID, since)
}

// GetPerformanceStats 按提交类型聚合的成绩统计
func (s *SubmissionService) GetPerformanceStats(studentID string) (*model.PerformanceStats, error) {
	return s.PerformanceRepo.Stats(studentID)
}

// RecordAssessment 录入一条概念掌握度评估，供特征提取关联
func (s *SubmissionService) RecordAssessment(req *model.AssessmentRequest) (*model.ConceptAssessment, error) {
	assessment := &model.ConceptAssessment{
		StudentID:    req.StudentID,
		ConceptID:    req.ConceptID,
		MasteryLevel: req.MasteryLevel,
		AssessedAt:   time.Now(),
	}
	if err := s.AssessmentRepo.Create(assessment); err != nil {
		return nil, err
	}

	logger.Log.Info("Recorded concept assessment",
		zap.String("studentId", req.StudentID),
		zap.String("conceptId", req.ConceptID),
		zap.Float64("masteryLevel", req.MasteryLevel))
	return assessment, nil
}

// GetConceptMastery 返回学生对某概念的最新掌握度评估
func (s *SubmissionService) GetConceptMastery(studentID, conceptID string) (*model.ConceptAssessment, error) {
	return s.AssessmentRepo.LatestByStudentConcept(studentID, conceptID)
}
