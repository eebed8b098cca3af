package model

import "time"

// Concept 知识点（概念）库，首次迁移时写入默认的 CS 概念
// swagger:model
type Concept struct {
	BaseModel
	ConceptID   string   `gorm:"size:64;uniqueIndex;not null" json:"conceptId"`
	Name        string   `gorm:"size:100;not null" json:"name"`
	Description string   `gorm:"size:255" json:"description"`
	Difficulty  int      `gorm:"default:1" json:"difficulty"`
	Keywords    []string `gorm:"type:json;serializer:json" json:"keywords"`
	Enabled     bool     `gorm:"default:true" json:"enabled"`
}

func (Concept) TableName() string {
	return "concepts"
}

// ConceptAssessment 学生对某概念的掌握度评估，特征提取时按学生关联
// swagger:model
type ConceptAssessment struct {
	BaseModel
	StudentID    string    `gorm:"size:64;index;not null" json:"studentId"`
	ConceptID    string    `gorm:"size:64;index;not null" json:"conceptId"`
	MasteryLevel float64   `json:"masteryLevel"` // [0,1]
	AssessedAt   time.Time `gorm:"index" json:"assessedAt"`
}

func (ConceptAssessment) TableName() string {
	return "concept_assessments"
}

// AssessmentRequest 录入掌握度评估的请求
type AssessmentRequest struct {
	StudentID    string  `json:"studentId" binding:"required"`
	ConceptID    string  `json:"conceptId" binding:"required"`
	MasteryLevel float64 `json:"masteryLevel" binding:"min=0,max=1"`
}
