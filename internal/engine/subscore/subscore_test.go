package subscore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threshold-engine/internal/engine/model"
)

func floatPtr(v float64) *float64 { return &v }

func linearSeries(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func TestGradeNorm(t *testing.T) {
	v, ok := GradeNorm("A+")
	require.True(t, ok)
	assert.InDelta(t, 1.0, v, 1e-9)

	v, ok = GradeNorm("F")
	require.True(t, ok)
	assert.InDelta(t, 0.0, v, 1e-9)

	v, ok = GradeNorm("B")
	require.True(t, ok)
	assert.InDelta(t, 8.0/12.0, v, 1e-9)

	v, ok = GradeNorm("b+")
	require.True(t, ok)
	assert.InDelta(t, 9.0/12.0, v, 1e-9)

	_, ok = GradeNorm("")
	assert.False(t, ok)

	_, ok = GradeNorm("Z")
	assert.False(t, ok)

	_, ok = GradeNorm("N/A")
	assert.False(t, ok)
}

func TestMomentumQuality_FullInputs(t *testing.T) {
	closes := linearSeries(100, 0.5, 300)
	benchmark := linearSeries(400, 1, 300)

	res, err := MomentumQuality(closes, benchmark, "A", DefaultMQParams())
	require.NoError(t, err)
	assert.Empty(t, res.Missing)
	assert.InDelta(t, 1.0, res.TrendScore, 1e-9)
	assert.Greater(t, res.VolAdjMom, 0.0)
	assert.GreaterOrEqual(t, res.Score, 0.0)
	assert.LessOrEqual(t, res.Score, 100.0)
}

func TestMomentumQuality_NoBenchmarkRedistributes(t *testing.T) {
	closes := linearSeries(100, 0.5, 300)

	res, err := MomentumQuality(closes, nil, "A", DefaultMQParams())
	require.NoError(t, err)
	assert.Contains(t, res.Missing, "mq.relative_strength")
	assert.False(t, res.RSAvailable)
	assert.GreaterOrEqual(t, res.Score, 0.0)
	assert.LessOrEqual(t, res.Score, 100.0)
}

func TestMomentumQuality_DowntrendScoresLow(t *testing.T) {
	closes := linearSeries(400, -1, 300)

	res, err := MomentumQuality(closes, nil, "", DefaultMQParams())
	require.NoError(t, err)
	assert.InDelta(t, 0.1, res.TrendScore, 1e-9)
	assert.Less(t, res.Score, 30.0)
}

func TestFundamentalQuality_FullInputs(t *testing.T) {
	grades := model.FundamentalGrades{
		QuantRating:   floatPtr(4.5),
		Profitability: "B+",
		Revisions:     "B",
		Growth:        "A-",
	}
	fund := &model.SectorFundamentals{
		FCFYieldPctl:           floatPtr(0.7),
		GrossProfitabilityPctl: floatPtr(0.8),
	}

	res, err := FundamentalQuality(grades, fund, floatPtr(0.0), DefaultFQParams())
	require.NoError(t, err)
	assert.Empty(t, res.Missing)
	// quant .9*.30 + prof (.75*.6+.8*.4)*.22 + fcf .7*.13
	// + revmom .5*.15 + rev (8/12)*.10 + growth (10/12)*.10
	assert.InDelta(t, 75.54, res.Score, 0.05)
}

func TestFundamentalQuality_QuantOnlyRedistributes(t *testing.T) {
	grades := model.FundamentalGrades{QuantRating: floatPtr(4.0)}

	res, err := FundamentalQuality(grades, nil, nil, DefaultFQParams())
	require.NoError(t, err)
	assert.InDelta(t, 80.0, res.Score, 1e-6)
	assert.Len(t, res.Missing, 5)
}

func TestFundamentalQuality_NothingAvailable(t *testing.T) {
	_, err := FundamentalQuality(model.FundamentalGrades{}, nil, nil, DefaultFQParams())
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrMissingRequiredInput))
}

func TestFundamentalQuality_QuantCappedAtFive(t *testing.T) {
	grades := model.FundamentalGrades{QuantRating: floatPtr(6.0)}

	res, err := FundamentalQuality(grades, nil, nil, DefaultFQParams())
	require.NoError(t, err)
	assert.InDelta(t, 100.0, res.Score, 1e-6)
}

func TestTechnicalOversold_DeepDecline(t *testing.T) {
	closes := linearSeries(500, -1, 300)

	res, err := TechnicalOversold(closes, DefaultTOParams())
	require.NoError(t, err)
	assert.True(t, res.RSIAvailable)
	assert.True(t, res.SMAAvailable)
	assert.True(t, res.BollingerOK)
	assert.True(t, res.MACDAvailable)
	assert.Less(t, res.RSI, 30.0)
	assert.Less(t, res.PctFromSMA, 0.0)
	assert.Greater(t, res.Score, 60.0)
}

func TestTechnicalOversold_ShortSeriesRedistributes(t *testing.T) {
	closes := []float64{
		100, 101, 99, 102, 98, 103, 97, 104, 96, 105,
		95, 104, 94, 103, 93, 102, 92, 101, 91, 100,
		90, 99, 89, 98, 88, 97, 87, 96, 86, 95,
		85, 94, 84, 93, 83, 92, 82, 91, 81, 90,
	}

	res, err := TechnicalOversold(closes, DefaultTOParams())
	require.NoError(t, err)
	assert.False(t, res.SMAAvailable)
	assert.Contains(t, res.Missing, "to.sma_distance")
	assert.GreaterOrEqual(t, res.Score, 0.0)
	assert.LessOrEqual(t, res.Score, 100.0)
}

func TestTechnicalOversold_TooShort(t *testing.T) {
	_, err := TechnicalOversold([]float64{100, 101}, DefaultTOParams())
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInsufficientData))
}

func TestMarketRegime_PanicEnvironment(t *testing.T) {
	ctx := &model.MarketContext{
		VIXLevel:           30,
		BenchmarkAbove200d: true,
		BreadthPct:         floatPtr(0.8),
	}

	res, err := MarketRegime(ctx, DefaultMRParams())
	require.NoError(t, err)
	assert.Empty(t, res.Missing)
	// vix (.75 + 2*.25/12)*.50 + trend 1.0*.30 + breadth 1.0*.20
	assert.InDelta(t, 89.58, res.Score, 0.05)
}

func TestMarketRegime_NoBreadthRedistributes(t *testing.T) {
	ctx := &model.MarketContext{
		VIXLevel:           30,
		BenchmarkAbove200d: true,
	}

	res, err := MarketRegime(ctx, DefaultMRParams())
	require.NoError(t, err)
	assert.Contains(t, res.Missing, "mr.breadth")
	// vix .79167*(.50/.80) + trend 1.0*(.30/.80)
	assert.InDelta(t, 86.98, res.Score, 0.05)
}

func TestMarketRegime_ComplacentScoresLow(t *testing.T) {
	ctx := &model.MarketContext{VIXLevel: 12, BenchmarkAbove200d: false}

	res, err := MarketRegime(ctx, DefaultMRParams())
	require.NoError(t, err)
	assert.InDelta(t, 0.2, res.VIXScore, 1e-9)
	assert.Less(t, res.Score, 40.0)
}

func TestMarketRegime_SentimentReduction(t *testing.T) {
	ctx := &model.MarketContext{
		VIXLevel:            30,
		BenchmarkAbove200d:  true,
		BreadthPct:          floatPtr(0.8),
		SentimentOverheated: true,
	}

	p := DefaultMRParams()
	p.SentimentEnabled = true
	res, err := MarketRegime(ctx, p)
	require.NoError(t, err)
	assert.True(t, res.SentimentApplied)
	assert.InDelta(t, 89.58*0.85, res.Score, 0.05)
}

func TestValuationContext_Blend(t *testing.T) {
	grades := model.FundamentalGrades{Valuation: "B"}
	fund := &model.SectorFundamentals{EVToEBITDAPctl: floatPtr(0.2)}

	res, err := ValuationContext(grades, fund, DefaultVCParams())
	require.NoError(t, err)
	// (8/12)*.65 + (1-.2)*.35
	assert.InDelta(t, 71.33, res.Score, 0.05)
}

func TestValuationContext_GradeOnly(t *testing.T) {
	res, err := ValuationContext(model.FundamentalGrades{Valuation: "B"}, nil, DefaultVCParams())
	require.NoError(t, err)
	assert.InDelta(t, 100*8.0/12.0, res.Score, 0.05)
	assert.Contains(t, res.Missing, "vc.ev_to_ebitda")
}

func TestValuationContext_NothingAvailable(t *testing.T) {
	_, err := ValuationContext(model.FundamentalGrades{}, nil, DefaultVCParams())
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrMissingRequiredInput))
}
