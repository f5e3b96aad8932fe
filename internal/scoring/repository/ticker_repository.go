package repository

import (
	"context"

	"gorm.io/gorm"

	"threshold-engine/internal/entity"
)

type TickerRepository interface {
	GetActive(ctx context.Context) ([]entity.Ticker, error)
	GetBySymbol(ctx context.Context, symbol string) (*entity.Ticker, error)
	Upsert(ctx context.Context, ticker *entity.Ticker) error
}

type tickerRepository struct {
	db *gorm.DB
}

func NewTickerRepository(db *gorm.DB) TickerRepository {
	return &tickerRepository{db: db}
}

func (r *tickerRepository) GetActive(ctx context.Context) ([]entity.Ticker, error) {
	var tickers []entity.Ticker
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("symbol asc").Find(&tickers).Error; err != nil {
		return nil, err
	}
	return tickers, nil
}

func (r *tickerRepository) GetBySymbol(ctx context.Context, symbol string) (*entity.Ticker, error) {
	var ticker entity.Ticker
	if err := r.db.WithContext(ctx).Where("symbol = ?", symbol).First(&ticker).Error; err != nil {
		return nil, err
	}
	return &ticker, nil
}

func (r *tickerRepository) Upsert(ctx context.Context, ticker *entity.Ticker) error {
	return r.db.WithContext(ctx).Save(ticker).Error
}
