package model

import (
	"time"
)

type SubmissionType string

const (
	SubmissionQuiz SubmissionType = "quiz"
	SubmissionCode SubmissionType = "code"
)

// QuestionResponse 单题作答记录
type QuestionResponse struct {
	QuestionID   string   `json:"questionId"`
	Response     string   `json:"response"`
	Correct      bool     `json:"correct"`
	ConceptTags  []string `json:"conceptTags"`
	TimeSpentSec int      `json:"timeSpentSec,omitempty"`
}

// CodeMetrics 代码提交的分析指标。缺失的指标用指针表达，确保 0 和 “未测量” 可区分
type CodeMetrics struct {
	Complexity      *float64 `json:"complexity,omitempty"`
	TestCoverage    *float64 `json:"testCoverage,omitempty"`
	ExecutionTimeMs *float64 `json:"executionTimeMs,omitempty"`
	MemoryBytes     int64    `json:"memoryBytes,omitempty"`
	SyntaxErrors    int      `json:"syntaxErrors"`
	RuntimeErrors   int      `json:"runtimeErrors"`
	PassedTests     int      `json:"passedTests"`
	TotalTests      int      `json:"totalTests"`
}

// PerformanceRecord 一次提交的成绩记录，分析管线只读
// swagger:model
type PerformanceRecord struct {
	BaseModel
	SubmissionID      string             `gorm:"size:36;uniqueIndex;not null" json:"submissionId"`
	StudentID         string             `gorm:"size:64;index;not null" json:"studentId"`
	SubmissionType    SubmissionType     `gorm:"type:enum('quiz','code');not null" json:"submissionType"`
	CourseID          string             `gorm:"size:64" json:"courseId"`
	AssignmentID      string             `gorm:"size:64" json:"assignmentId"`
	Score             float64            `json:"score"`
	MaxScore          float64            `json:"maxScore"`
	Timestamp         time.Time          `gorm:"index" json:"timestamp"`
	QuestionResponses []QuestionResponse `gorm:"type:json;serializer:json" json:"questionResponses,omitempty"`
	CodeMetrics       *CodeMetrics       `gorm:"type:json;serializer:json" json:"codeMetrics,omitempty"`
	Processed         bool               `gorm:"default:false" json:"processed"`
}

func (PerformanceRecord) TableName() string {
	return "performance_records"
}

// QuizSubmissionRequest 测验提交请求。SubmissionID 可选，客户端传入时作为幂等键
type QuizSubmissionRequest struct {
	SubmissionID      string             `json:"submissionId,omitempty"`
	StudentID         string             `json:"studentId" binding:"required"`
	CourseID          string             `json:"courseId" binding:"required"`
	AssignmentID      string             `json:"assignmentId" binding:"required"`
	QuestionResponses []QuestionResponse `json:"questionResponses" binding:"required,min=1"`
	TotalTimeSpentSec int                `json:"totalTimeSpentSec,omitempty"`
}

// CodeSubmissionRequest 代码提交请求
type CodeSubmissionRequest struct {
	SubmissionID string       `json:"submissionId,omitempty"`
	StudentID    string       `json:"studentId" binding:"required"`
	CourseID     string       `json:"courseId" binding:"required"`
	AssignmentID string       `json:"assignmentId" binding:"required"`
	Score        float64      `json:"score"`
	MaxScore     float64      `json:"maxScore" binding:"required"`
	ConceptTags  []string     `json:"conceptTags,omitempty"`
	CodeMetrics  *CodeMetrics `json:"codeMetrics,omitempty"`
}

// SubmissionResponse 提交成功的响应
type SubmissionResponse struct {
	SubmissionID     string         `json:"submissionId"`
	StudentID        string         `json:"studentId"`
	SubmissionType   SubmissionType `json:"submissionType"`
	Score            float64        `json:"score"`
	MaxScore         float64        `json:"maxScore"`
	Timestamp        time.Time      `json:"timestamp"`
	ProcessingStatus string         `json:"processingStatus"`
}

// PerformanceStats 某学生按提交类型聚合的成绩统计
type PerformanceStats struct {
	StudentID        string  `json:"studentId"`
	TotalSubmissions int64   `json:"totalSubmissions"`
	QuizSubmissions  int64   `json:"quizSubmissions"`
	CodeSubmissions  int64   `json:"codeSubmissions"`
	AverageScore     float64 `json:"averageScore"`
}
