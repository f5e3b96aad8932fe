package repository

import (
	"context"

	"gorm.io/gorm"

	"threshold-engine/internal/entity"
)

type SignalRepository interface {
	CreateBatch(ctx context.Context, signals []entity.Signal) error
	GetByRunID(ctx context.Context, runID int64) ([]entity.Signal, error)
}

type signalRepository struct {
	db *gorm.DB
}

func NewSignalRepository(db *gorm.DB) SignalRepository {
	return &signalRepository{db: db}
}

func (r *signalRepository) CreateBatch(ctx context.Context, signals []entity.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(signals, 100).Error
}

func (r *signalRepository) GetByRunID(ctx context.Context, runID int64) ([]entity.Signal, error) {
	var signals []entity.Signal
	if err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("symbol asc, id asc").
		Find(&signals).Error; err != nil {
		return nil, err
	}
	return signals, nil
}
