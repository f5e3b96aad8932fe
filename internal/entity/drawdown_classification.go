package entity

import (
	"time"
)

type DrawdownClassification struct {
	ID              int64     `json:"id"`
	Symbol          string    `json:"symbol" gorm:"uniqueIndex"`
	Classification  string    `json:"classification"`
	DownsideCapture float64   `json:"downside_capture"`
	PctFromHigh     float64   `json:"pct_from_high"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (DrawdownClassification) TableName() string {
	return "drawdown_classifications"
}
