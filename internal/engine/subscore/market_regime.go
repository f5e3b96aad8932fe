package subscore

import (
	"math"

	"threshold-engine/internal/engine/model"
)

// MRParams holds the component weights for market regime plus the optional
// sentiment overlay.
type MRParams struct {
	VIX            float64 `mapstructure:"vix"`
	BenchmarkTrend float64 `mapstructure:"benchmark_trend"`
	Breadth        float64 `mapstructure:"breadth"`

	SentimentEnabled   bool    `mapstructure:"sentiment_enabled"`
	SentimentReduction float64 `mapstructure:"sentiment_reduction"`
}

// DefaultMRParams returns the standard market regime weights.
func DefaultMRParams() MRParams {
	return MRParams{
		VIX:            0.50,
		BenchmarkTrend: 0.30,
		Breadth:        0.20,

		SentimentReduction: 0.15,
	}
}

// MRResult carries the market regime score and its intermediates.
type MRResult struct {
	Score            float64
	VIXScore         float64
	SentimentApplied bool
	Missing          []string
}

// MarketRegime scores the dip-buying environment. VIX is contrarian: higher
// volatility scores higher. The shared context is run-level, so the result
// is identical for every ticker in a run.
func MarketRegime(ctx *model.MarketContext, p MRParams) (MRResult, error) {
	res := MRResult{VIXScore: vixContrarianScore(ctx.VIXLevel)}

	trendScore := 0.4
	if ctx.BenchmarkAbove200d {
		trendScore = 1.0
	}

	breadthOK := ctx.BreadthPct != nil
	breadthScore := 0.0
	if breadthOK {
		breadthScore = breadthScoreOf(*ctx.BreadthPct)
	}

	value, missing, _ := blend([]component{
		{name: "mr.vix", value: res.VIXScore, weight: p.VIX, ok: true},
		{name: "mr.benchmark_trend", value: trendScore, weight: p.BenchmarkTrend, ok: true},
		{name: "mr.breadth", value: breadthScore, weight: p.Breadth, ok: breadthOK},
	})

	if p.SentimentEnabled && ctx.SentimentOverheated {
		value *= 1 - p.SentimentReduction
		res.SentimentApplied = true
	}

	res.Score = value * 100
	res.Missing = missing
	return res, nil
}

func vixContrarianScore(vix float64) float64 {
	switch {
	case vix < 14:
		return 0.2
	case vix < 20:
		return 0.2 + (vix-14)*(0.3/6)
	case vix < 28:
		return 0.5 + (vix-20)*(0.25/8)
	default:
		return math.Min(1.0, 0.75+(vix-28)*(0.25/12))
	}
}

func breadthScoreOf(breadth float64) float64 {
	switch {
	case breadth > 0.70:
		return 1.0
	case breadth > 0.50:
		return 0.5 + (breadth-0.50)*2.5
	case breadth > 0.30:
		return 0.2 + (breadth-0.30)*1.5
	default:
		return 0.1
	}
}
