package entity

import (
	"time"

	"gorm.io/datatypes"
)

type Score struct {
	ID           int64          `json:"id"`
	RunID        int64          `json:"run_id"`
	Symbol       string         `json:"symbol"`
	RawScore     float64        `json:"raw_score"`
	FinalScore   float64        `json:"final_score"`
	SignalLabel  string         `json:"signal_label"`
	NetAction    string         `json:"net_action"`
	SubScores    datatypes.JSON `json:"sub_scores" gorm:"type:jsonb"`
	Modifiers    datatypes.JSON `json:"modifiers" gorm:"type:jsonb"`
	Technicals   datatypes.JSON `json:"technicals" gorm:"type:jsonb"`
	DataWarnings datatypes.JSON `json:"data_warnings" gorm:"type:jsonb"`
	FKCapApplied bool           `json:"fk_cap_applied"`
	CreatedAt    time.Time      `json:"created_at"`
}

func (Score) TableName() string {
	return "scores"
}
