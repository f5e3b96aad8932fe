package dto

import (
	"encoding/json"
	"time"
)

// StreamDataScoringRun is the payload published to the scoring run stream.
type StreamDataScoringRun struct {
	RunID     int64  `json:"run_id"`
	Trigger   string `json:"trigger"`
	RequestAt string `json:"request_at"`
}

// RunResponse is the API shape of one scoring run.
type RunResponse struct {
	ID          int64      `json:"id"`
	AsOf        time.Time  `json:"as_of"`
	Status      string     `json:"status"`
	VIXLevel    float64    `json:"vix_level"`
	VIXRegime   string     `json:"vix_regime"`
	TickerCount int        `json:"ticker_count"`
	ScoredCount int        `json:"scored_count"`
	FailedCount int        `json:"failed_count"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// ScoreResponse is the API shape of one scored ticker.
type ScoreResponse struct {
	Symbol       string          `json:"symbol"`
	RawScore     float64         `json:"raw_score"`
	FinalScore   float64         `json:"final_score"`
	SignalLabel  string          `json:"signal_label"`
	NetAction    string          `json:"net_action"`
	FKCapApplied bool            `json:"fk_cap_applied"`
	SubScores    json.RawMessage `json:"sub_scores,omitempty"`
	Modifiers    json.RawMessage `json:"modifiers,omitempty"`
	Technicals   json.RawMessage `json:"technicals,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// SignalResponse is the API shape of one signal event.
type SignalResponse struct {
	Symbol    string          `json:"symbol"`
	Type      string          `json:"type"`
	Severity  string          `json:"severity"`
	Criterion string          `json:"criterion"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// ErrorResponse is the API error envelope.
type ErrorResponse struct {
	Message string `json:"message"`
}
