package signalboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threshold-engine/internal/engine/model"
)

func floatPtr(v float64) *float64 { return &v }

func baseInputs() Inputs {
	return Inputs{
		Ticker: &model.EnrichedTicker{
			Symbol:          "TEST",
			DefenseCategory: model.DefenseModerate,
			Grades:          model.FundamentalGrades{QuantRating: floatPtr(3.5)},
		},
		Context: &model.MarketContext{
			AsOf:      time.Date(2026, 8, 28, 16, 0, 0, 0, time.UTC),
			VIXRegime: model.VIXRegimeNormal,
		},
		SubScores: model.SubScoreSet{
			Fields: model.SubScoreFields{
				RSI14:         55,
				RSIAvailable:  true,
				VolAdjMom:     0.5,
				RSVsBenchmark: 1.1,
			},
		},
		Composite: model.CompositeResult{FinalScore: 55, SignalLabel: model.SignalWatch},
	}
}

func eventTypes(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func TestEvaluate_CleanTickerNoEvents(t *testing.T) {
	events := Evaluate(baseInputs(), DefaultParams())
	assert.Empty(t, events)
}

func TestSellReview_RequiresTwoCriteria(t *testing.T) {
	in := baseInputs()
	in.Ticker.BrokenThesis = true

	events := Evaluate(in, DefaultParams())
	assert.Contains(t, eventTypes(events), EventSellSignal)
	assert.NotContains(t, eventTypes(events), EventSellReview)

	in.SubScores.Fields.VolAdjMom = -0.2
	events = Evaluate(in, DefaultParams())
	assert.Contains(t, eventTypes(events), EventSellReview)
}

func TestSellCriteria_AllSix(t *testing.T) {
	in := baseInputs()
	in.Ticker.Grades.QuantRating = floatPtr(2.0)
	in.Ticker.PrevQuantRating = floatPtr(3.5)
	in.Ticker.BrokenThesis = true
	in.Ticker.RevisionDelta4W = floatPtr(-0.25)
	in.SubScores.Fields.VolAdjMom = -0.3
	in.SubScores.Fields.DaysBelowSMA200 = 12
	in.SubScores.Fields.RSVsBenchmark = 0.5

	met := EvaluateSellCriteria(in, DefaultParams())
	require.Len(t, met, 6)
	names := make([]string, len(met))
	for i, c := range met {
		names[i] = c.Name
	}
	assert.Equal(t, []string{
		CriterionQuantDrop,
		CriterionNegativeMomentum,
		CriterionSMABreach,
		CriterionBrokenThesis,
		CriterionWeakRS,
		CriterionRevisionDecline,
	}, names)
}

func TestSellCriteria_QuantDropBoundary(t *testing.T) {
	in := baseInputs()
	in.Ticker.Grades.QuantRating = floatPtr(3.0)
	in.Ticker.PrevQuantRating = floatPtr(4.0)

	// Exactly -1.0 does not fire; it must be strictly below.
	met := EvaluateSellCriteria(in, DefaultParams())
	assert.Empty(t, met)

	in.Ticker.Grades.QuantRating = floatPtr(2.9)
	met = EvaluateSellCriteria(in, DefaultParams())
	require.Len(t, met, 1)
	assert.Equal(t, CriterionQuantDrop, met[0].Name)
}

func TestSMABreachWarning_Window(t *testing.T) {
	in := baseInputs()
	in.SubScores.Fields.DaysBelowSMA200 = 8

	events := Evaluate(in, DefaultParams())
	assert.Contains(t, eventTypes(events), EventSMABreachWarning)
	assert.NotContains(t, eventTypes(events), EventSellSignal)

	in.SubScores.Fields.DaysBelowSMA200 = 10
	events = Evaluate(in, DefaultParams())
	assert.NotContains(t, eventTypes(events), EventSMABreachWarning)
	assert.Contains(t, eventTypes(events), EventSellSignal)
}

func TestGraceExpiry(t *testing.T) {
	in := baseInputs()

	expired := in.Context.AsOf.Add(-24 * time.Hour)
	in.Ticker.GraceEndsAt = &expired
	events := Evaluate(in, DefaultParams())
	require.Len(t, events, 1)
	assert.Equal(t, EventGraceExpiry, events[0].Type)
	assert.Equal(t, SeverityWarning, events[0].Severity)

	upcoming := in.Context.AsOf.Add(7 * 24 * time.Hour)
	in.Ticker.GraceEndsAt = &upcoming
	events = Evaluate(in, DefaultParams())
	require.Len(t, events, 1)
	assert.Equal(t, SeverityInfo, events[0].Severity)

	far := in.Context.AsOf.Add(90 * 24 * time.Hour)
	in.Ticker.GraceEndsAt = &far
	events = Evaluate(in, DefaultParams())
	assert.Empty(t, events)
}

func TestBuyDip_SuppressedByFallingKnife(t *testing.T) {
	in := baseInputs()
	in.Composite.FinalScore = 68

	events := Evaluate(in, DefaultParams())
	assert.Contains(t, eventTypes(events), EventBuyDip)

	in.Composite.FKCapApplied = true
	events = Evaluate(in, DefaultParams())
	assert.NotContains(t, eventTypes(events), EventBuyDip)
	assert.Contains(t, eventTypes(events), EventFallingKnife)
}

func TestReversalConfirmed(t *testing.T) {
	in := baseInputs()
	in.Composite.FinalScore = 66
	in.SubScores.Fields.BollingerBreach = true

	events := Evaluate(in, DefaultParams())
	assert.Contains(t, eventTypes(events), EventReversalConfirmed)

	in.Composite.FinalScore = 64
	events = Evaluate(in, DefaultParams())
	assert.NotContains(t, eventTypes(events), EventReversalConfirmed)
}

func TestBottomTurning(t *testing.T) {
	in := baseInputs()
	in.SubScores.Fields.RSI14 = 28
	in.SubScores.Fields.MACDHistRising = true
	in.SubScores.Fields.MACDBelowZero = true

	events := Evaluate(in, DefaultParams())
	assert.Contains(t, eventTypes(events), EventBottomTurning)

	in.Ticker.Grades.QuantRating = floatPtr(2.0)
	events = Evaluate(in, DefaultParams())
	assert.NotContains(t, eventTypes(events), EventBottomTurning)
}

func TestDefensiveHold_OnlyInStressWithOneSell(t *testing.T) {
	in := baseInputs()
	in.Ticker.DefenseCategory = model.DefenseHedge
	in.Ticker.BrokenThesis = true
	in.Context.VIXRegime = model.VIXRegimeFear

	events := Evaluate(in, DefaultParams())
	assert.Contains(t, eventTypes(events), EventDefensiveHold)

	in.Context.VIXRegime = model.VIXRegimeNormal
	events = Evaluate(in, DefaultParams())
	assert.NotContains(t, eventTypes(events), EventDefensiveHold)

	in.Context.VIXRegime = model.VIXRegimePanic
	in.SubScores.Fields.VolAdjMom = -0.1 // second criterion
	events = Evaluate(in, DefaultParams())
	assert.NotContains(t, eventTypes(events), EventDefensiveHold)
}

func TestAmplifierTrim(t *testing.T) {
	in := baseInputs()
	in.Ticker.DefenseCategory = model.DefenseAmplifier
	in.Ticker.BrokenThesis = true
	in.Context.VIXRegime = model.VIXRegimePanic

	events := Evaluate(in, DefaultParams())
	assert.Contains(t, eventTypes(events), EventAmplifierTrim)
}

func TestQuantFreshness(t *testing.T) {
	in := baseInputs()
	in.Ticker.Grades.QuantRating = floatPtr(4.5)
	in.SubScores.Fields.RSI14 = 25

	events := Evaluate(in, DefaultParams())
	assert.Contains(t, eventTypes(events), EventQuantFreshness)
}

func TestConcentration(t *testing.T) {
	in := baseInputs()
	in.Ticker.Concentration = &model.ConcentrationInfo{WeightPct: 12, CapPct: 10}

	events := Evaluate(in, DefaultParams())
	require.Len(t, events, 1)
	assert.Equal(t, EventConcentration, events[0].Type)
	assert.Equal(t, SeverityInfo, events[0].Severity)
}

func TestResolve_EmptyIsMonitor(t *testing.T) {
	assert.Equal(t, ActionMonitor, Resolve(nil))
	assert.Equal(t, ActionMonitor, Resolve([]Event{}))
}

func TestResolve_Precedence(t *testing.T) {
	sell := Event{Type: EventSellSignal, Severity: SeverityWarning}
	review := Event{Type: EventSellReview, Severity: SeverityCritical}
	hold := Event{Type: EventDefensiveHold, Severity: SeverityWarning}
	trim := Event{Type: EventAmplifierTrim, Severity: SeverityWarning}
	buy := Event{Type: EventBuyDip, Severity: SeverityInfo}
	watchlist := Event{Type: EventBottomTurning, Severity: SeverityInfo}
	warning := Event{Type: EventFallingKnife, Severity: SeverityWarning}
	info := Event{Type: EventConcentration, Severity: SeverityInfo}

	assert.Equal(t, ActionReview, Resolve([]Event{review, buy}))
	assert.Equal(t, ActionReview, Resolve([]Event{sell, sell, buy}))
	assert.Equal(t, ActionHold, Resolve([]Event{sell, hold}))
	assert.Equal(t, ActionWatch, Resolve([]Event{sell}))
	assert.Equal(t, ActionTrim, Resolve([]Event{trim, buy}))
	assert.Equal(t, ActionBuy, Resolve([]Event{buy, watchlist}))
	assert.Equal(t, ActionWatchlist, Resolve([]Event{watchlist}))
	assert.Equal(t, ActionWatch, Resolve([]Event{warning}))
	assert.Equal(t, ActionMonitor, Resolve([]Event{info}))
}

func TestResolve_Deterministic(t *testing.T) {
	in := baseInputs()
	in.Ticker.BrokenThesis = true
	in.SubScores.Fields.VolAdjMom = -0.2

	first := Evaluate(in, DefaultParams())
	second := Evaluate(in, DefaultParams())
	assert.Equal(t, first, second)
	assert.Equal(t, Resolve(first), Resolve(second))
}

func TestSellExemption_CashLikeAlwaysHeld(t *testing.T) {
	in := baseInputs()
	in.Ticker.IsDefensive = true
	in.Ticker.BrokenThesis = true
	in.SubScores.Fields.VolAdjMom = -0.2

	events := Evaluate(in, DefaultParams())
	assert.Contains(t, eventTypes(events), EventSellExemption)
	assert.NotContains(t, eventTypes(events), EventSellSignal)
	assert.NotContains(t, eventTypes(events), EventSellReview)
	assert.Equal(t, ActionMonitor, Resolve(events))
}

func TestSellExemption_CryptoCycle(t *testing.T) {
	in := baseInputs()
	in.Ticker.IsCrypto = true
	in.Ticker.BrokenThesis = true

	events := Evaluate(in, DefaultParams())
	assert.Contains(t, eventTypes(events), EventSellExemption)
	assert.NotContains(t, eventTypes(events), EventSellSignal)

	p := DefaultParams()
	p.CryptoExemptUntil = "2030-01-01"
	events = Evaluate(in, p)
	assert.Contains(t, eventTypes(events), EventSellExemption)
}

func TestSellExemption_CryptoExpiryRestoresSellScoring(t *testing.T) {
	in := baseInputs()
	in.Ticker.IsCrypto = true
	in.Ticker.BrokenThesis = true

	// AsOf in baseInputs is 2026-08-28, past this expiry.
	p := DefaultParams()
	p.CryptoExemptUntil = "2026-01-01"

	ex := CheckSellExemption(in.Ticker, in.Context.AsOf, p)
	assert.False(t, ex.Exempt)
	assert.True(t, ex.Expired)
	assert.Equal(t, "crypto_cycle", ex.Kind)

	events := Evaluate(in, p)
	assert.NotContains(t, eventTypes(events), EventSellExemption)
	assert.Contains(t, eventTypes(events), EventSellSignal)
}

func TestParabolicMove_BothTriggersBlock(t *testing.T) {
	in := baseInputs()
	in.SubScores.Fields.AccelAvailable = true
	in.SubScores.Fields.RSI14 = 85
	in.SubScores.Fields.Ret8W = 0.35

	events := Evaluate(in, DefaultParams())
	require.Contains(t, eventTypes(events), EventParabolicMove)
	for _, e := range events {
		if e.Type != EventParabolicMove {
			continue
		}
		assert.Equal(t, SeverityWarning, e.Severity)
		assert.Equal(t, "FAIL", e.Metadata["sizing"])
	}
}

func TestParabolicMove_SingleTriggerWaits(t *testing.T) {
	in := baseInputs()
	in.SubScores.Fields.AccelAvailable = true
	in.SubScores.Fields.RSI14 = 85
	in.SubScores.Fields.Ret8W = 0.10

	events := Evaluate(in, DefaultParams())
	require.Contains(t, eventTypes(events), EventParabolicMove)
	for _, e := range events {
		if e.Type != EventParabolicMove {
			continue
		}
		assert.Equal(t, SeverityInfo, e.Severity)
		assert.Equal(t, "WAIT", e.Metadata["sizing"])
	}

	in.SubScores.Fields.RSI14 = 55
	in.SubScores.Fields.Ret8W = 0.35
	events = Evaluate(in, DefaultParams())
	require.Contains(t, eventTypes(events), EventParabolicMove)

	in.SubScores.Fields.Ret8W = 0.10
	events = Evaluate(in, DefaultParams())
	assert.NotContains(t, eventTypes(events), EventParabolicMove)
}

func TestParabolicMove_GoldReducedSizeNotBlocked(t *testing.T) {
	in := baseInputs()
	in.Ticker.IsGold = true
	in.SubScores.Fields.AccelAvailable = true
	in.SubScores.Fields.RSI14 = 85
	in.SubScores.Fields.Ret8W = 0.50

	events := Evaluate(in, DefaultParams())
	require.Contains(t, eventTypes(events), EventParabolicMove)
	for _, e := range events {
		if e.Type != EventParabolicMove {
			continue
		}
		assert.Equal(t, SeverityInfo, e.Severity)
		assert.Equal(t, "THREE_QUARTER", e.Metadata["sizing"])
	}

	// An extended 8-week run alone never flags gold.
	in.SubScores.Fields.RSI14 = 60
	events = Evaluate(in, DefaultParams())
	assert.NotContains(t, eventTypes(events), EventParabolicMove)
}
