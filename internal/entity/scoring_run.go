package entity

import (
	"time"

	"gorm.io/datatypes"
)

// Scoring run lifecycle states.
const (
	RunStatusRunning   = "RUNNING"
	RunStatusCompleted = "COMPLETED"
	RunStatusFailed    = "FAILED"
)

type ScoringRun struct {
	ID          int64          `json:"id"`
	AsOf        time.Time      `json:"as_of"`
	Status      string         `json:"status"`
	VIXLevel    float64        `json:"vix_level"`
	VIXRegime   string         `json:"vix_regime"`
	MarketData  datatypes.JSON `json:"market_data" gorm:"type:jsonb"`
	TickerCount int            `json:"ticker_count"`
	ScoredCount int            `json:"scored_count"`
	FailedCount int            `json:"failed_count"`
	Error       string         `json:"error"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	FinishedAt  *time.Time     `json:"finished_at"`
}

func (ScoringRun) TableName() string {
	return "scoring_runs"
}
