package repository

import (
	"context"

	"gorm.io/gorm"

	"threshold-engine/internal/entity"
)

type DrawdownRepository interface {
	GetAll(ctx context.Context) (map[string]entity.DrawdownClassification, error)
}

type drawdownRepository struct {
	db *gorm.DB
}

func NewDrawdownRepository(db *gorm.DB) DrawdownRepository {
	return &drawdownRepository{db: db}
}

func (r *drawdownRepository) GetAll(ctx context.Context) (map[string]entity.DrawdownClassification, error) {
	var rows []entity.DrawdownClassification
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]entity.DrawdownClassification, len(rows))
	for _, row := range rows {
		out[row.Symbol] = row
	}
	return out, nil
}
