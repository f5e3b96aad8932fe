package repository

import (
	"context"

	"gorm.io/gorm"

	"threshold-engine/internal/entity"
)

type ScoreRepository interface {
	CreateBatch(ctx context.Context, scores []entity.Score) error
	GetByRunID(ctx context.Context, runID int64) ([]entity.Score, error)
	GetHistory(ctx context.Context, symbol string, limit int) ([]entity.Score, error)
}

type scoreRepository struct {
	db *gorm.DB
}

func NewScoreRepository(db *gorm.DB) ScoreRepository {
	return &scoreRepository{db: db}
}

func (r *scoreRepository) CreateBatch(ctx context.Context, scores []entity.Score) error {
	if len(scores) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(scores, 100).Error
}

func (r *scoreRepository) GetByRunID(ctx context.Context, runID int64) ([]entity.Score, error) {
	var scores []entity.Score
	if err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("final_score desc").
		Find(&scores).Error; err != nil {
		return nil, err
	}
	return scores, nil
}

func (r *scoreRepository) GetHistory(ctx context.Context, symbol string, limit int) ([]entity.Score, error) {
	var scores []entity.Score
	if err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("created_at desc").
		Limit(limit).
		Find(&scores).Error; err != nil {
		return nil, err
	}
	return scores, nil
}
