package subscore

import (
	"fmt"

	"threshold-engine/internal/engine/model"
	"threshold-engine/internal/engine/technical"
)

// MQParams holds the component weights for momentum quality.
type MQParams struct {
	Trend            float64 `mapstructure:"trend"`
	VolAdjMomentum   float64 `mapstructure:"vol_adj_momentum"`
	MomentumGrade    float64 `mapstructure:"momentum_grade"`
	RelativeStrength float64 `mapstructure:"relative_strength"`
}

// DefaultMQParams returns the standard momentum quality weights.
func DefaultMQParams() MQParams {
	return MQParams{
		Trend:            0.30,
		VolAdjMomentum:   0.25,
		MomentumGrade:    0.25,
		RelativeStrength: 0.20,
	}
}

// MQResult carries the momentum quality score and its intermediates.
type MQResult struct {
	Score float64

	TrendScore    float64
	VolAdjMom     float64
	RawMomentum   float64
	MomentumScore float64
	RSVsBenchmark float64
	RSAvailable   bool

	Missing []string
}

// MomentumQuality blends trend regime, volatility-adjusted 12-1 momentum,
// the momentum letter grade and relative strength versus the benchmark.
// Unavailable components have their weight redistributed across the rest.
func MomentumQuality(closes, benchmark []float64, momentumGrade model.Grade, p MQParams) (MQResult, error) {
	trend, err := technical.TrendScore(closes)
	if err != nil {
		return MQResult{}, err
	}

	res := MQResult{TrendScore: trend.Score}

	volAdj, raw := technical.VolAdjustedMomentum(closes)
	momOK := len(closes) >= 60
	res.VolAdjMom = volAdj
	res.RawMomentum = raw
	res.MomentumScore = technical.Clamp01((volAdj + 0.5) / 2.5)

	gradeNorm, gradeOK := GradeNorm(momentumGrade)

	rs, rsOK := technical.RelativeStrength(closes, benchmark)
	res.RSVsBenchmark = rs
	res.RSAvailable = rsOK
	rsScore := technical.Clamp01((rs - 0.3) / 1.4)

	value, missing, ok := blend([]component{
		{name: "mq.trend", value: trend.Score, weight: p.Trend, ok: true},
		{name: "mq.vol_adj_momentum", value: res.MomentumScore, weight: p.VolAdjMomentum, ok: momOK},
		{name: "mq.momentum_grade", value: gradeNorm, weight: p.MomentumGrade, ok: gradeOK},
		{name: "mq.relative_strength", value: rsScore, weight: p.RelativeStrength, ok: rsOK},
	})
	if !ok {
		return MQResult{}, fmt.Errorf("%w: no momentum quality components available", model.ErrInsufficientData)
	}
	res.Score = value * 100
	res.Missing = missing
	return res, nil
}
