package model

import "time"

// GapEvidence 支撑某个学习差距的证据条目
type GapEvidence struct {
	SubmissionID string  `json:"submissionId"`
	EvidenceType string  `json:"evidenceType"`
	Weight       float64 `json:"weight"`
}

// LearningGap 学生在某概念上的学习差距。聚合后每个 (student_id, concept_id) 只保留一条
// swagger:model
type LearningGap struct {
	BaseModel
	GapID              string        `gorm:"size:36;uniqueIndex;not null" json:"gapId"`
	StudentID          string        `gorm:"size:64;not null;uniqueIndex:idx_student_concept" json:"studentId"`
	ConceptID          string        `gorm:"size:64;not null;uniqueIndex:idx_student_concept" json:"conceptId"`
	GapSeverity        float64       `json:"gapSeverity"`     // [0,1]
	ConfidenceScore    float64       `json:"confidenceScore"` // [0,1]
	IdentifiedAt       time.Time     `json:"identifiedAt"`
	LastUpdated        time.Time     `json:"lastUpdated"`
	SupportingEvidence []GapEvidence `gorm:"type:json;serializer:json" json:"supportingEvidence"`
	ImprovementTrend   float64       `json:"improvementTrend"` // [-1,1]，正值表示差距在收窄
}

func (LearningGap) TableName() string {
	return "learning_gaps"
}

// ConceptGapStudent 某概念下存在差距的学生视图
type ConceptGapStudent struct {
	StudentID        string    `json:"studentId"`
	GapSeverity      float64   `json:"gapSeverity"`
	ConfidenceScore  float64   `json:"confidenceScore"`
	IdentifiedAt     time.Time `json:"identifiedAt"`
	ImprovementTrend float64   `json:"improvementTrend"`
}
