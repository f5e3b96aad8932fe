package subscore

import (
	"fmt"

	"threshold-engine/internal/engine/model"
	"threshold-engine/internal/engine/technical"
)

// TOParams holds the component weights and indicator windows for technical
// oversold.
type TOParams struct {
	RSI         float64 `mapstructure:"rsi"`
	SMADistance float64 `mapstructure:"sma_distance"`
	Bollinger   float64 `mapstructure:"bollinger"`
	MACD        float64 `mapstructure:"macd"`

	RSIPeriod       int     `mapstructure:"rsi_period"`
	SMAPeriod       int     `mapstructure:"sma_period"`
	BollingerPeriod int     `mapstructure:"bollinger_period"`
	BollingerMult   float64 `mapstructure:"bollinger_mult"`
	MACDFast        int     `mapstructure:"macd_fast"`
	MACDSlow        int     `mapstructure:"macd_slow"`
	MACDSignal      int     `mapstructure:"macd_signal"`
}

// DefaultTOParams returns the standard technical oversold configuration.
func DefaultTOParams() TOParams {
	return TOParams{
		RSI:         0.35,
		SMADistance: 0.25,
		Bollinger:   0.25,
		MACD:        0.15,

		RSIPeriod:       14,
		SMAPeriod:       200,
		BollingerPeriod: 20,
		BollingerMult:   2,
		MACDFast:        12,
		MACDSlow:        26,
		MACDSignal:      9,
	}
}

// TOResult carries the technical oversold score plus the raw indicator state
// surfaced to modifiers and signals.
type TOResult struct {
	Score float64

	RSI          float64
	RSIAvailable bool

	MACD          technical.MACDState
	MACDAvailable bool

	Bollinger   technical.BollingerState
	BollingerOK bool

	PctFromSMA      float64
	SMAAvailable    bool

	Missing []string
}

// TechnicalOversold blends RSI depth, distance below the long moving
// average, Bollinger position and MACD confirmation into an oversold score.
// Deeper oversold conditions score higher.
func TechnicalOversold(closes []float64, p TOParams) (TOResult, error) {
	res := TOResult{}

	rsi, err := technical.RSIValue(closes, p.RSIPeriod)
	if err == nil {
		res.RSI = rsi
		res.RSIAvailable = true
	}
	rsiScore := technical.Clamp01((70 - rsi) / 40.0)

	smaScore := 0.0
	if len(closes) >= p.SMAPeriod {
		sma, serr := technical.SMA(closes, p.SMAPeriod)
		if serr == nil && sma != 0 {
			res.PctFromSMA = (closes[len(closes)-1] - sma) / sma
			res.SMAAvailable = true
			smaScore = technical.Clamp01((0.10 - res.PctFromSMA) / 0.30)
		}
	}

	bbScore := 0.0
	bb, err := technical.Bollinger(closes, p.BollingerPeriod, p.BollingerMult)
	if err == nil {
		res.Bollinger = bb
		res.BollingerOK = true
		bbScore = technical.Clamp01(1.0 - bb.PctB)
	}

	macdScore := 0.0
	macd, err := technical.MACD(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)
	if err == nil {
		res.MACD = macd
		res.MACDAvailable = true
		switch {
		case macd.Crossover == technical.CrossoverBullish && macd.BelowZero:
			macdScore = 1.0
		case macd.Crossover == technical.CrossoverBullish:
			macdScore = 0.7
		case macd.HistRising && macd.BelowZero:
			macdScore = 0.6
		case macd.HistRising:
			macdScore = 0.3
		}
	}

	value, missing, ok := blend([]component{
		{name: "to.rsi", value: rsiScore, weight: p.RSI, ok: res.RSIAvailable},
		{name: "to.sma_distance", value: smaScore, weight: p.SMADistance, ok: res.SMAAvailable},
		{name: "to.bollinger", value: bbScore, weight: p.Bollinger, ok: res.BollingerOK},
		{name: "to.macd", value: macdScore, weight: p.MACD, ok: res.MACDAvailable},
	})
	if !ok {
		return TOResult{}, fmt.Errorf("%w: no technical oversold components available", model.ErrInsufficientData)
	}
	res.Score = value * 100
	res.Missing = missing
	return res, nil
}
