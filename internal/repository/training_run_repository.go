package repository

import (
	"edu_gap_analytics/internal/model"
	"errors"

	"gorm.io/gorm"
)

type TrainingRunRepository struct {
	DB *gorm.DB
}

func NewTrainingRunRepository(db *gorm.DB) *TrainingRunRepository {
	return &TrainingRunRepository{DB: db}
}

func (r *TrainingRunRepository) Create(run *model.TrainingRun) error {
	return r.DB.Create(run).Error
}

// Latest 返回某模型类型最近一次训练；从未训练过时返回 (nil, nil)
func (r *TrainingRunRepository) Latest(modelType string) (*model.TrainingRun, error) {
	var run model.TrainingRun
	err := r.DB.Where("model_type = ?", modelType).
		Order("last_trained desc, id desc").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}
