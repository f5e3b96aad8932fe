package entity

import (
	"time"

	"gorm.io/datatypes"
)

type Signal struct {
	ID        int64          `json:"id"`
	RunID     int64          `json:"run_id"`
	Symbol    string         `json:"symbol"`
	Type      string         `json:"type"`
	Severity  string         `json:"severity"`
	Criterion string         `json:"criterion"`
	Message   string         `json:"message"`
	Metadata  datatypes.JSON `json:"metadata" gorm:"type:jsonb"`
	CreatedAt time.Time      `json:"created_at"`
}

func (Signal) TableName() string {
	return "signals"
}
