package model

import (
	"fmt"
	"time"
)

// Bar is one daily OHLCV observation.
type Bar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// PriceSeries is a chronologically ordered slice of daily bars, oldest first.
type PriceSeries []Bar

// Validate checks that the series is strictly increasing by date.
func (p PriceSeries) Validate() error {
	for i := 1; i < len(p); i++ {
		if !p[i].Date.After(p[i-1].Date) {
			return fmt.Errorf("%w: bar %d date %s not after %s",
				ErrInvariantViolation, i, p[i].Date.Format("2006-01-02"), p[i-1].Date.Format("2006-01-02"))
		}
	}
	return nil
}

// Closes returns the close prices in order.
func (p PriceSeries) Closes() []float64 {
	out := make([]float64, len(p))
	for i, b := range p {
		out[i] = b.Close
	}
	return out
}

// Volumes returns the volumes in order.
func (p PriceSeries) Volumes() []float64 {
	out := make([]float64, len(p))
	for i, b := range p {
		out[i] = b.Volume
	}
	return out
}

// LastClose returns the most recent close, or 0 for an empty series.
func (p PriceSeries) LastClose() float64 {
	if len(p) == 0 {
		return 0
	}
	return p[len(p)-1].Close
}

// VIXRegime labels the volatility environment.
type VIXRegime string

const (
	VIXRegimeComplacent VIXRegime = "COMPLACENT"
	VIXRegimeNormal     VIXRegime = "NORMAL"
	VIXRegimeFear       VIXRegime = "FEAR"
	VIXRegimePanic      VIXRegime = "PANIC"
)

// DefenseCategory groups tickers by how they behave in drawdowns.
type DefenseCategory string

const (
	DefenseHedge     DefenseCategory = "HEDGE"
	DefenseDefensive DefenseCategory = "DEFENSIVE"
	DefenseModerate  DefenseCategory = "MODERATE"
	DefenseCyclical  DefenseCategory = "CYCLICAL"
	DefenseAmplifier DefenseCategory = "AMPLIFIER"
)

// CreditRisk labels the high-yield credit backdrop.
type CreditRisk string

const (
	CreditRiskLow      CreditRisk = "LOW"
	CreditRiskElevated CreditRisk = "ELEVATED"
	CreditRiskHigh     CreditRisk = "HIGH"
)

// MarketContext is the shared macro snapshot for one scoring run. AsOf is the
// run's reference time so results stay reproducible.
type MarketContext struct {
	AsOf time.Time

	VIXLevel      float64
	VIXPercentile *float64
	VIXRegime     VIXRegime

	BenchmarkClose       float64
	BenchmarkAbove200d   bool
	BenchmarkPctFrom200d float64
	BenchmarkPrices      PriceSeries

	BreadthPct       *float64
	YieldCurveSpread *float64
	CreditRisk       CreditRisk

	SentimentIndex      *float64
	SentimentOverheated bool

	BearMarket bool
}

// Grade is a letter fundamental grade (A+ through F). The empty string means
// no grade is available.
type Grade string

// FundamentalGrades carries the per-factor letter grades plus the quant score.
type FundamentalGrades struct {
	QuantRating   *float64
	Valuation     Grade
	Profitability Grade
	Growth        Grade
	Momentum      Grade
	Revisions     Grade
}

// SectorFundamentals holds sector-relative percentiles, each in [0,1].
type SectorFundamentals struct {
	FCFYieldPctl          *float64
	GrossProfitabilityPctl *float64
	EVToEBITDAPctl        *float64
}

// DrawdownClass labels the depth of an instrument's drawdown from its high.
type DrawdownClass string

const (
	DrawdownNone     DrawdownClass = "NONE"
	DrawdownPullback DrawdownClass = "PULLBACK"
	DrawdownCorrection DrawdownClass = "CORRECTION"
	DrawdownSevere   DrawdownClass = "SEVERE"
)

// DrawdownInfo describes the current decline from the trailing high.
type DrawdownInfo struct {
	PctFromHigh float64
	Class       DrawdownClass
}

// ConcentrationInfo flags a position that exceeds its portfolio weight cap.
type ConcentrationInfo struct {
	WeightPct float64
	CapPct    float64
}

// EnrichedTicker is the full per-instrument snapshot fed to the scorer.
type EnrichedTicker struct {
	Symbol string
	Name   string
	Sector string

	DefenseCategory DefenseCategory
	IsGold          bool
	IsCrypto        bool
	IsDefensive     bool

	BrokenThesis bool
	GraceEndsAt  *time.Time

	Grades          FundamentalGrades
	PrevQuantRating *float64
	PrevQuantDate   *time.Time
	RevisionDelta4W *float64

	Prices       PriceSeries
	Fundamentals *SectorFundamentals
	Drawdown     *DrawdownInfo

	TrendOverlay  *float64
	Concentration *ConcentrationInfo
}

// SubScoreFields carries the intermediate technical state that sub-score
// calculators surface for modifiers, signals and persistence.
type SubScoreFields struct {
	RSI14          float64
	RSIAvailable   bool
	MACDCrossover  string
	MACDHistRising bool
	MACDBelowZero  bool
	MACDAvailable  bool

	TrendScore   float64
	VolAdjMom    float64
	MomentumScore float64
	RSVsBenchmark float64

	OBVDivergence    string
	OBVDivStrength   float64
	OBVAvailable     bool
	AccelScore       float64
	Ret8W            float64
	AccelAvailable   bool
	RSIBullishDiv    bool
	BollingerPctB    float64
	BollingerBreach  bool
	BollingerOK      bool
	PctFromSMA200    float64
	SMA200Available  bool
	DaysBelowSMA200  int
}

// SubScoreSet holds the five sub-scores, each on [0,100], plus auxiliary
// fields and any degraded-input warnings gathered while computing them.
type SubScoreSet struct {
	MomentumQuality  float64
	FundamentalQuality float64
	TechnicalOversold  float64
	MacroRegime        float64
	ValueConfirmation  float64

	Fields   SubScoreFields
	Warnings []string
}

// AppliedModifier records one composite adjustment and its signed delta.
type AppliedModifier struct {
	Name  string
	Delta float64
}

// Signal labels for the final composite score.
const (
	SignalStrongBuyDip   = "STRONG_BUY_DIP"
	SignalHighConviction = "HIGH_CONVICTION"
	SignalBuyDip         = "BUY_DIP"
	SignalWatch          = "WATCH"
	SignalWeakAvoid      = "WEAK_AVOID"
)

// CompositeResult is the outcome of composing sub-scores into a final DCS.
type CompositeResult struct {
	RawScore    float64
	FinalScore  float64
	SignalLabel string

	Modifiers []AppliedModifier

	FKCapApplied  bool
	FKOriginalDCS float64
	DrawdownClass DrawdownClass
}
