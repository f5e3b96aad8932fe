package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"threshold-engine/internal/entity"
)

type ScoringRunRepository interface {
	Create(ctx context.Context, run *entity.ScoringRun) error
	Finalize(ctx context.Context, runID int64, status string, scored, failed int, runErr string) error
	GetLatest(ctx context.Context) (*entity.ScoringRun, error)
	GetByID(ctx context.Context, runID int64) (*entity.ScoringRun, error)
}

type scoringRunRepository struct {
	db *gorm.DB
}

func NewScoringRunRepository(db *gorm.DB) ScoringRunRepository {
	return &scoringRunRepository{db: db}
}

func (r *scoringRunRepository) Create(ctx context.Context, run *entity.ScoringRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *scoringRunRepository) Finalize(ctx context.Context, runID int64, status string, scored, failed int, runErr string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&entity.ScoringRun{}).
		Where("id = ?", runID).
		Updates(map[string]interface{}{
			"status":       status,
			"scored_count": scored,
			"failed_count": failed,
			"error":        runErr,
			"finished_at":  &now,
		}).Error
}

func (r *scoringRunRepository) GetLatest(ctx context.Context) (*entity.ScoringRun, error) {
	var run entity.ScoringRun
	if err := r.db.WithContext(ctx).Order("as_of desc").First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *scoringRunRepository) GetByID(ctx context.Context, runID int64) (*entity.ScoringRun, error) {
	var run entity.ScoringRun
	if err := r.db.WithContext(ctx).Where("id = ?", runID).First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}
