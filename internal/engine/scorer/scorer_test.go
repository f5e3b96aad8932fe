package scorer

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threshold-engine/internal/engine/model"
	"threshold-engine/internal/engine/signalboard"
)

func eventTypesOf(events []signalboard.Event) []signalboard.EventType {
	out := make([]signalboard.EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func floatPtr(v float64) *float64 { return &v }

func makeSeries(closes []float64) model.PriceSeries {
	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	out := make(model.PriceSeries, len(closes))
	for i, c := range closes {
		out[i] = model.Bar{
			Date:   start.AddDate(0, 0, i),
			Open:   c,
			High:   c * 1.01,
			Low:    c * 0.99,
			Close:  c,
			Volume: 1_000_000,
		}
	}
	return out
}

func linearCloses(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func fullTicker() *model.EnrichedTicker {
	return &model.EnrichedTicker{
		Symbol:          "ACME",
		Sector:          "Industrials",
		DefenseCategory: model.DefenseModerate,
		Grades: model.FundamentalGrades{
			QuantRating:   floatPtr(4.2),
			Valuation:     "B",
			Profitability: "A-",
			Growth:        "B+",
			Momentum:      "B",
			Revisions:     "B-",
		},
		RevisionDelta4W: floatPtr(0.05),
		Fundamentals: &model.SectorFundamentals{
			FCFYieldPctl:           floatPtr(0.6),
			GrossProfitabilityPctl: floatPtr(0.7),
			EVToEBITDAPctl:         floatPtr(0.4),
		},
		Prices: makeSeries(linearCloses(100, 0.3, 300)),
	}
}

func normalContext() *model.MarketContext {
	return &model.MarketContext{
		AsOf:               time.Date(2026, 8, 28, 16, 0, 0, 0, time.UTC),
		VIXLevel:           18,
		BenchmarkAbove200d: true,
		BenchmarkPrices:    makeSeries(linearCloses(400, 0.5, 300)),
		BreadthPct:         floatPtr(0.6),
	}
}

func TestScore_MissingRequiredInputs(t *testing.T) {
	_, err := Score(nil, normalContext(), DefaultParams())
	assert.True(t, errors.Is(err, model.ErrMissingRequiredInput))

	tk := fullTicker()
	tk.Symbol = ""
	_, err = Score(tk, normalContext(), DefaultParams())
	assert.True(t, errors.Is(err, model.ErrMissingRequiredInput))
}

func TestScore_InsufficientBars(t *testing.T) {
	tk := fullTicker()
	tk.Prices = makeSeries(linearCloses(100, 0.3, 40))

	_, err := Score(tk, normalContext(), DefaultParams())
	assert.True(t, errors.Is(err, model.ErrInsufficientData))
}

func TestScore_UnorderedSeriesRejected(t *testing.T) {
	tk := fullTicker()
	tk.Prices[10].Date = tk.Prices[5].Date

	_, err := Score(tk, normalContext(), DefaultParams())
	assert.True(t, errors.Is(err, model.ErrInvariantViolation))
}

func TestScore_FullInputs(t *testing.T) {
	res, err := Score(fullTicker(), normalContext(), DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, "ACME", res.Symbol)
	assert.GreaterOrEqual(t, res.Composite.FinalScore, 0.0)
	assert.LessOrEqual(t, res.Composite.FinalScore, 100.0)
	assert.NotEmpty(t, res.Composite.SignalLabel)
	assert.NotEmpty(t, res.NetAction)
	assert.NotContains(t, res.DataWarnings, "mq_unavailable")
	assert.NotContains(t, res.DataWarnings, "fq_unavailable")
	assert.NotContains(t, res.DataWarnings, "to_unavailable")
	assert.NotContains(t, res.DataWarnings, "mr_unavailable")
	assert.NotContains(t, res.DataWarnings, "vc_unavailable")
	assert.InDelta(t, 1.0, res.SubScores.Fields.TrendScore, 1e-9)
}

func TestScore_MissingFundamentalsBestEffort(t *testing.T) {
	tk := fullTicker()
	tk.Grades = model.FundamentalGrades{}
	tk.Fundamentals = nil
	tk.RevisionDelta4W = nil

	res, err := Score(tk, normalContext(), DefaultParams())
	require.NoError(t, err)
	assert.Contains(t, res.DataWarnings, "fq_unavailable")
	assert.Contains(t, res.DataWarnings, "vc_unavailable")
	assert.GreaterOrEqual(t, res.Composite.FinalScore, 0.0)
	assert.LessOrEqual(t, res.Composite.FinalScore, 100.0)
}

func TestScore_Idempotent(t *testing.T) {
	first, err := Score(fullTicker(), normalContext(), DefaultParams())
	require.NoError(t, err)
	second, err := Score(fullTicker(), normalContext(), DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestScore_FallingKnifeCapsCyclical(t *testing.T) {
	tk := fullTicker()
	tk.DefenseCategory = model.DefenseCyclical
	tk.Prices = makeSeries(linearCloses(500, -1, 300))

	res, err := Score(tk, normalContext(), DefaultParams())
	require.NoError(t, err)
	assert.InDelta(t, 0.1, res.SubScores.Fields.TrendScore, 1e-9)
	if res.Composite.FKCapApplied {
		assert.LessOrEqual(t, res.Composite.FinalScore, DefaultParams().Composite.FreefallCaps.Cyclical)
		assert.Greater(t, res.Composite.FKOriginalDCS, res.Composite.FinalScore)
	} else {
		assert.LessOrEqual(t, res.Composite.FinalScore, DefaultParams().Composite.FreefallCaps.Cyclical)
	}
}

func TestScore_TrendOverlayLiftsMQ(t *testing.T) {
	base, err := Score(fullTicker(), normalContext(), DefaultParams())
	require.NoError(t, err)

	p := DefaultParams()
	p.TrendFollowing.Enabled = true
	tk := fullTicker()
	tk.TrendOverlay = floatPtr(1.0)

	lifted, err := Score(tk, normalContext(), p)
	require.NoError(t, err)
	assert.Greater(t, lifted.SubScores.MomentumQuality, base.SubScores.MomentumQuality)
}

func TestScore_DrawdownClassCarried(t *testing.T) {
	tk := fullTicker()
	tk.Drawdown = &model.DrawdownInfo{PctFromHigh: -0.22, Class: model.DrawdownSevere}

	res, err := Score(tk, normalContext(), DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, model.DrawdownSevere, res.Composite.DrawdownClass)
}

func TestParams_Validate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())

	p := DefaultParams()
	p.MinBars = 0
	err := p.Validate()
	require.Error(t, err)
	var cfgErr *model.ConfigError
	assert.ErrorAs(t, err, &cfgErr)

	p = DefaultParams()
	p.Composite.Weights.MQ = 0.9
	assert.Error(t, p.Validate())
}

func TestScore_PriceAccelerationSurfaced(t *testing.T) {
	res, err := Score(fullTicker(), normalContext(), DefaultParams())
	require.NoError(t, err)

	closes := linearCloses(100, 0.3, 300)
	wantRet := closes[299]/closes[259] - 1

	assert.True(t, res.SubScores.Fields.AccelAvailable)
	assert.InDelta(t, wantRet, res.SubScores.Fields.Ret8W, 1e-9)
	assert.NotContains(t, res.DataWarnings, "price_acceleration_unavailable")

	// A steady rising series pins RSI near 100, so the board flags the
	// overbought side of the deployment check.
	assert.Contains(t, eventTypesOf(res.Events), signalboard.EventParabolicMove)
}

func TestScore_CryptoExemptionSkipsSellSignals(t *testing.T) {
	tk := fullTicker()
	tk.BrokenThesis = true
	res, err := Score(tk, normalContext(), DefaultParams())
	require.NoError(t, err)
	assert.Contains(t, eventTypesOf(res.Events), signalboard.EventSellSignal)

	exempt := fullTicker()
	exempt.BrokenThesis = true
	exempt.IsCrypto = true
	res, err = Score(exempt, normalContext(), DefaultParams())
	require.NoError(t, err)
	assert.NotContains(t, eventTypesOf(res.Events), signalboard.EventSellSignal)
	assert.Contains(t, eventTypesOf(res.Events), signalboard.EventSellExemption)
}
