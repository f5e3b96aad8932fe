package service

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"threshold-engine/internal/engine/model"
	"threshold-engine/internal/engine/scorer"
	"threshold-engine/internal/engine/signalboard"
	"threshold-engine/internal/entity"
)

func makeSeries(t *testing.T, closes []float64) model.PriceSeries {
	t.Helper()
	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	prices := make(model.PriceSeries, len(closes))
	for i, c := range closes {
		prices[i] = model.Bar{Date: start.AddDate(0, 0, i), Close: c, Volume: 1_000_000}
	}
	return prices
}

func TestBuildEnrichedTicker(t *testing.T) {
	grades, err := json.Marshal(map[string]interface{}{
		"quant_rating":  4.2,
		"valuation":     "B",
		"profitability": "A-",
	})
	require.NoError(t, err)
	fundamentals, err := json.Marshal(map[string]interface{}{
		"fcf_yield_pctl": 0.6,
	})
	require.NoError(t, err)

	row := entity.Ticker{
		Symbol:          "ACME",
		Name:            "Acme Corp",
		Sector:          "Industrials",
		DefenseCategory: "CYCLICAL",
		BrokenThesis:    true,
		Grades:          datatypes.JSON(grades),
		Fundamentals:    datatypes.JSON(fundamentals),
	}
	prices := makeSeries(t, []float64{100, 101, 102})
	dd := &entity.DrawdownClassification{Symbol: "ACME", Classification: "CORRECTION", PctFromHigh: -0.15}

	tk := buildEnrichedTicker(row, prices, dd)

	assert.Equal(t, "ACME", tk.Symbol)
	assert.Equal(t, model.DefenseCyclical, tk.DefenseCategory)
	assert.True(t, tk.BrokenThesis)
	require.NotNil(t, tk.Grades.QuantRating)
	assert.InDelta(t, 4.2, *tk.Grades.QuantRating, 1e-9)
	assert.Equal(t, model.Grade("B"), tk.Grades.Valuation)
	assert.Equal(t, model.Grade("A-"), tk.Grades.Profitability)
	require.NotNil(t, tk.Fundamentals)
	require.NotNil(t, tk.Fundamentals.FCFYieldPctl)
	assert.InDelta(t, 0.6, *tk.Fundamentals.FCFYieldPctl, 1e-9)
	assert.Nil(t, tk.Fundamentals.EVToEBITDAPctl)
	require.NotNil(t, tk.Drawdown)
	assert.Equal(t, model.DrawdownCorrection, tk.Drawdown.Class)
	assert.Len(t, tk.Prices, 3)
}

func TestBuildEnrichedTickerDefaults(t *testing.T) {
	row := entity.Ticker{Symbol: "XYZ"}
	tk := buildEnrichedTicker(row, nil, nil)

	assert.Equal(t, model.DefenseModerate, tk.DefenseCategory)
	assert.Nil(t, tk.Grades.QuantRating)
	assert.Nil(t, tk.Fundamentals)
	assert.Nil(t, tk.Drawdown)
}

func TestToScoreEntity(t *testing.T) {
	res := &scorer.Result{
		Symbol: "ACME",
		SubScores: model.SubScoreSet{
			MomentumQuality:    90,
			FundamentalQuality: 80,
			TechnicalOversold:  70,
			MacroRegime:        60,
			ValueConfirmation:  50,
		},
		Composite: model.CompositeResult{
			RawScore:    75,
			FinalScore:  77,
			SignalLabel: model.SignalHighConviction,
			Modifiers:   []model.AppliedModifier{{Name: "obv_divergence", Delta: 2}},
		},
		NetAction:    signalboard.ActionMonitor,
		DataWarnings: []string{"vc_unavailable"},
	}
	at := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

	row := toScoreEntity(42, res, at)

	assert.Equal(t, int64(42), row.RunID)
	assert.Equal(t, "ACME", row.Symbol)
	assert.Equal(t, 77.0, row.FinalScore)
	assert.Equal(t, model.SignalHighConviction, row.SignalLabel)
	assert.Equal(t, signalboard.ActionMonitor, row.NetAction)

	var subScores map[string]float64
	require.NoError(t, json.Unmarshal(row.SubScores, &subScores))
	assert.Equal(t, 90.0, subScores["momentum_quality"])
	assert.Equal(t, 50.0, subScores["value_confirmation"])

	var warnings []string
	require.NoError(t, json.Unmarshal(row.DataWarnings, &warnings))
	assert.Equal(t, []string{"vc_unavailable"}, warnings)
}

func TestToSignalEntities(t *testing.T) {
	res := &scorer.Result{
		Symbol: "ACME",
		Events: []signalboard.Event{
			{
				Type:      signalboard.EventSellSignal,
				Severity:  signalboard.SeverityWarning,
				Criterion: signalboard.CriterionBrokenThesis,
				Message:   "thesis broken",
				Metadata:  map[string]interface{}{"source": "manual"},
			},
			{
				Type:     signalboard.EventSellReview,
				Severity: signalboard.SeverityCritical,
				Message:  "2 sell criteria met",
			},
		},
	}
	at := time.Now().UTC()

	rows := toSignalEntities(7, res, at)

	require.Len(t, rows, 2)
	assert.Equal(t, int64(7), rows[0].RunID)
	assert.Equal(t, "ACME", rows[0].Symbol)
	assert.Equal(t, string(signalboard.EventSellSignal), rows[0].Type)
	assert.Equal(t, string(signalboard.SeverityCritical), rows[1].Severity)
}

func TestSellCriteriaOf(t *testing.T) {
	events := []signalboard.Event{
		{Type: signalboard.EventSellSignal, Criterion: signalboard.CriterionQuantDrop},
		{Type: signalboard.EventBuyDip},
		{Type: signalboard.EventSellSignal, Criterion: signalboard.CriterionWeakRS},
	}

	assert.Equal(t, []string{signalboard.CriterionQuantDrop, signalboard.CriterionWeakRS}, sellCriteriaOf(events))
	assert.True(t, hasEvent(events, signalboard.EventBuyDip))
	assert.False(t, hasEvent(events, signalboard.EventSellReview))
}

func TestComputeBreadth(t *testing.T) {
	above := make([]float64, 210)
	for i := range above {
		above[i] = 100 + float64(i)*0.1
	}
	below := make([]float64, 210)
	for i := range below {
		below[i] = 200 - float64(i)*0.1
	}
	short := []float64{100, 101}

	series := map[string]model.PriceSeries{
		"UP":    makeSeries(t, above),
		"DOWN":  makeSeries(t, below),
		"SHORT": makeSeries(t, short),
	}

	breadth := computeBreadth(series)
	require.NotNil(t, breadth)
	assert.InDelta(t, 0.5, *breadth, 1e-9)
}

func TestComputeBreadthNoEligible(t *testing.T) {
	series := map[string]model.PriceSeries{
		"SHORT": makeSeries(t, []float64{100, 101}),
	}
	assert.Nil(t, computeBreadth(series))
}
