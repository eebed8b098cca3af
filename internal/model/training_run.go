package model

import "time"

// TrainingRun 一次模型训练的元数据，重训节流读取最新一条
// swagger:model
type TrainingRun struct {
	BaseModel
	ModelType          string    `gorm:"size:64;index;not null" json:"modelType"`
	Version            string    `gorm:"size:36;not null" json:"version"`
	LastTrained        time.Time `gorm:"index" json:"lastTrained"`
	Success            bool      `json:"success"`
	ClassifierAccuracy float64   `json:"classifierAccuracy"`
	RegressorScore     *float64  `json:"regressorScore,omitempty"` // 正样本不足时未训练回归器，为空
	SampleCount        int       `json:"sampleCount"`
	PositiveSamples    int       `json:"positiveSamples"`
}

func (TrainingRun) TableName() string {
	return "training_runs"
}

// JoinedPerformance 训练数据准备用的关联行：成绩记录 + 该学生的概念评估和已知差距
type JoinedPerformance struct {
	Record      PerformanceRecord
	Assessments []ConceptAssessment
	Gaps        []LearningGap
}
