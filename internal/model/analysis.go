package model

import "time"

// ConfidenceInterval 某学生某概念准确率估计的置信区间
type ConfidenceInterval struct {
	LowerBound      float64 `json:"lowerBound"`
	UpperBound      float64 `json:"upperBound"`
	ConfidenceLevel float64 `json:"confidenceLevel"`
}

// DataSufficiency 数据充分性检查的结果和补数据建议
type DataSufficiency struct {
	Sufficient        bool     `json:"sufficient"`
	RecentSubmissions int64    `json:"recentSubmissions"`
	TotalSubmissions  int64    `json:"totalSubmissions"`
	UniqueConcepts    int64    `json:"uniqueConcepts"`
	Recommendations   []string `json:"recommendations,omitempty"`
}

// GapAnalysis 一次差距分析的完整结果。写入后不再修改，只会被更新的分析取代
// swagger:model
type GapAnalysis struct {
	BaseModel
	StudentID                string                        `gorm:"size:64;index;not null" json:"studentId"`
	AnalysisTimestamp        time.Time                     `gorm:"index" json:"analysisTimestamp"`
	IdentifiedGaps           []LearningGap                 `gorm:"type:json;serializer:json" json:"identifiedGaps"`
	TotalGaps                int                           `json:"totalGaps"`
	AverageSeverity          float64                       `json:"averageSeverity"`
	ConfidenceIntervals      map[string]ConfidenceInterval `gorm:"type:json;serializer:json" json:"confidenceIntervals"`
	RecommendationsGenerated bool                          `gorm:"default:false" json:"recommendationsGenerated"`
	InsufficientData         bool                          `gorm:"default:false" json:"insufficientData"`
	DataSufficiency          *DataSufficiency              `gorm:"type:json;serializer:json" json:"dataSufficiency,omitempty"`
}

func (GapAnalysis) TableName() string {
	return "gap_analyses"
}

type RequestType string

const (
	RequestGapAnalysis RequestType = "gap_analysis"
	RequestModelRetrain RequestType = "model_retrain"
)

// AnalysisRequest 队列中的分析请求，只存在于队列和处理过程中。
// Priority 仅作标记，出队顺序始终是 FIFO
type AnalysisRequest struct {
	Type           RequestType
	StudentID      string
	SubmissionData map[string]interface{}
	Timestamp      time.Time
	Priority       string
}

// QueueStatus 处理队列的运行状态
type QueueStatus struct {
	QueueSize   int  `json:"queueSize"`
	IsRunning   bool `json:"isRunning"`
	ActiveTasks int  `json:"activeTasks"`
}

// SystemStatus 差距分析子系统的整体状态
type SystemStatus struct {
	QueueStatus       QueueStatus `json:"queueStatus"`
	RecentAnalyses24h int64       `json:"recentAnalyses24h"`
	TotalActiveGaps   int64       `json:"totalActiveGaps"`
	SystemHealthy     bool        `json:"systemHealthy"`
}
