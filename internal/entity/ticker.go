package entity

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Ticker struct {
	ID              int64          `json:"id"`
	Symbol          string         `json:"symbol" gorm:"uniqueIndex"`
	Name            string         `json:"name"`
	Sector          string         `json:"sector"`
	DefenseCategory string         `json:"defense_category"`
	IsGold          bool           `json:"is_gold"`
	IsCrypto        bool           `json:"is_crypto"`
	IsDefensive     bool           `json:"is_defensive"`
	IsActive        bool           `json:"is_active"`
	BrokenThesis    bool           `json:"broken_thesis"`
	GraceEndsAt     *time.Time     `json:"grace_ends_at"`
	Grades          datatypes.JSON `json:"grades" gorm:"type:jsonb"`
	PrevQuantRating *float64       `json:"prev_quant_rating"`
	PrevQuantDate   *time.Time     `json:"prev_quant_date"`
	RevisionDelta4W *float64       `json:"revision_delta_4w"`
	Fundamentals    datatypes.JSON `json:"fundamentals" gorm:"type:jsonb"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `json:"deleted_at"`
}

func (Ticker) TableName() string {
	return "tickers"
}
