// Package signalboard evaluates the rule factories that turn a scored
// ticker into typed signal events, and resolves those events into a single
// net action.
package signalboard

import (
	"fmt"
	"time"

	"threshold-engine/internal/engine/model"
)

// EventType is the semantic category of a signal event.
type EventType string

const (
	EventBuyDip            EventType = "BUY_DIP"
	EventSellSignal        EventType = "SELL_SIGNAL"
	EventSellReview        EventType = "SELL_REVIEW"
	EventSMABreachWarning  EventType = "SMA_BREACH_WARNING"
	EventGraceExpiry       EventType = "GRACE_EXPIRY"
	EventReversalConfirmed EventType = "REVERSAL_CONFIRMED"
	EventBottomTurning     EventType = "BOTTOM_TURNING"
	EventFallingKnife      EventType = "FALLING_KNIFE_WARNING"
	EventDefensiveHold     EventType = "DEFENSIVE_HOLD"
	EventAmplifierTrim     EventType = "AMPLIFIER_TRIM"
	EventQuantFreshness    EventType = "QUANT_FRESHNESS"
	EventConcentration     EventType = "CONCENTRATION"
	EventParabolicMove     EventType = "PARABOLIC_MOVE"
	EventSellExemption     EventType = "SELL_EXEMPTION"
)

// Severity levels, critical high.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is one typed observation about a ticker in a run.
type Event struct {
	Type      EventType
	Severity  Severity
	Criterion string
	Message   string
	Metadata  map[string]interface{}
}

// Net actions returned by Resolve.
const (
	ActionMonitor   = "MONITOR"
	ActionReview    = "REVIEW"
	ActionHold      = "HOLD"
	ActionWatch     = "WATCH"
	ActionTrim      = "TRIM"
	ActionBuy       = "BUY"
	ActionWatchlist = "WATCHLIST"
)

// Sell criterion names echoed in event metadata.
const (
	CriterionQuantDrop        = "quant_drop"
	CriterionNegativeMomentum = "negative_momentum"
	CriterionSMABreach        = "sma_breach"
	CriterionBrokenThesis     = "broken_thesis"
	CriterionWeakRS           = "weak_relative_strength"
	CriterionRevisionDecline  = "revision_decline"
)

// Params configure the rule factories.
type Params struct {
	SellReviewMinCriteria int     `mapstructure:"sell_review_min_criteria"`
	QuantDropDelta        float64 `mapstructure:"quant_drop_delta"`
	SMABreachDays         int     `mapstructure:"sma_breach_days"`
	SMABreachWarnDays     int     `mapstructure:"sma_breach_warn_days"`
	WeakRSMax             float64 `mapstructure:"weak_rs_max"`
	RevisionDeclineDelta  float64 `mapstructure:"revision_decline_delta"`

	BuyDipMinScore      float64 `mapstructure:"buy_dip_min_score"`
	ReversalMinScore    float64 `mapstructure:"reversal_min_score"`
	BottomTurningRSIMax float64 `mapstructure:"bottom_turning_rsi_max"`
	BottomTurningQuant  float64 `mapstructure:"bottom_turning_quant"`
	FreshnessQuantMin   float64 `mapstructure:"freshness_quant_min"`
	FreshnessRSIMax     float64 `mapstructure:"freshness_rsi_max"`

	ParabolicRSIMin   float64 `mapstructure:"parabolic_rsi_min"`
	ParabolicRet8WMin float64 `mapstructure:"parabolic_ret_8w_min"`

	// CryptoExemptUntil bounds the crypto-cycle sell exemption, ISO date
	// (2006-01-02). Empty means no expiry.
	CryptoExemptUntil string `mapstructure:"crypto_exempt_until"`

	GraceExpiryWarnWithin time.Duration `mapstructure:"grace_expiry_warn_within"`
}

// DefaultParams returns the calibrated factory thresholds.
func DefaultParams() Params {
	return Params{
		SellReviewMinCriteria: 2,
		QuantDropDelta:        -1.0,
		SMABreachDays:         10,
		SMABreachWarnDays:     7,
		WeakRSMax:             0.7,
		RevisionDeclineDelta:  -3.0 / 13.0,

		BuyDipMinScore:      65,
		ReversalMinScore:    65,
		BottomTurningRSIMax: 30,
		BottomTurningQuant:  3,
		FreshnessQuantMin:   4,
		FreshnessRSIMax:     30,

		ParabolicRSIMin:   80,
		ParabolicRet8WMin: 0.30,

		GraceExpiryWarnWithin: 14 * 24 * time.Hour,
	}
}

// Inputs bundle everything the factories read for one ticker.
type Inputs struct {
	Ticker    *model.EnrichedTicker
	Context   *model.MarketContext
	SubScores model.SubScoreSet
	Composite model.CompositeResult
}

// Evaluate runs every factory over the inputs and returns the collected
// events. Factories are independent; the order of the returned slice is the
// fixed factory order, which keeps runs reproducible.
func Evaluate(in Inputs, p Params) []Event {
	var events []Event

	var met []MetCriterion
	if ex := CheckSellExemption(in.Ticker, in.Context.AsOf, p); ex.Exempt {
		events = append(events, Event{
			Type:      EventSellExemption,
			Severity:  SeverityInfo,
			Criterion: "sell_exemption",
			Message:   ex.Reason,
			Metadata:  map[string]interface{}{"kind": ex.Kind},
		})
	} else {
		met = EvaluateSellCriteria(in, p)
		for _, c := range met {
			events = append(events, c.event())
		}
		if len(met) >= p.SellReviewMinCriteria {
			names := make([]string, len(met))
			for i, c := range met {
				names[i] = c.Name
			}
			events = append(events, Event{
				Type:      EventSellReview,
				Severity:  SeverityCritical,
				Criterion: "sell_review",
				Message:   fmt.Sprintf("%d of 6 sell criteria met", len(met)),
				Metadata:  map[string]interface{}{"criteria": names},
			})
		}
		if e, ok := smaBreachWarning(in, p); ok {
			events = append(events, e)
		}
	}
	if e, ok := graceExpiry(in, p); ok {
		events = append(events, e)
	}
	if e, ok := buyDip(in, p); ok {
		events = append(events, e)
	}
	if e, ok := reversalConfirmed(in, p); ok {
		events = append(events, e)
	}
	if e, ok := bottomTurning(in, p); ok {
		events = append(events, e)
	}
	if e, ok := fallingKnifeWarning(in); ok {
		events = append(events, e)
	}
	if e, ok := defensiveHold(in, len(met)); ok {
		events = append(events, e)
	}
	if e, ok := amplifierTrim(in, len(met)); ok {
		events = append(events, e)
	}
	if e, ok := parabolicMove(in, p); ok {
		events = append(events, e)
	}
	if e, ok := quantFreshness(in, p); ok {
		events = append(events, e)
	}
	if e, ok := concentration(in); ok {
		events = append(events, e)
	}

	return events
}

// MetCriterion is one satisfied sell criterion.
type MetCriterion struct {
	Name    string
	Message string
}

func (c MetCriterion) event() Event {
	return Event{
		Type:      EventSellSignal,
		Severity:  SeverityWarning,
		Criterion: c.Name,
		Message:   c.Message,
		Metadata:  map[string]interface{}{"criterion": c.Name},
	}
}

// SellExemption reports whether a ticker sits outside the sell ladder and why.
type SellExemption struct {
	Exempt  bool
	Kind    string
	Reason  string
	Expired bool
}

// CheckSellExemption decides whether the ticker skips sell-criteria
// evaluation. Cash-like defensive positions are always exempt. Crypto-cycle
// positions are exempt until the configured expiry date; past it the
// exemption lapses and normal sell scoring resumes.
func CheckSellExemption(tk *model.EnrichedTicker, asOf time.Time, p Params) SellExemption {
	if tk.IsDefensive {
		return SellExemption{
			Exempt: true,
			Kind:   "cash_like",
			Reason: fmt.Sprintf("%s is a cash-like defensive position, always hold", tk.Symbol),
		}
	}
	if tk.IsCrypto {
		if p.CryptoExemptUntil != "" {
			if expiry, err := time.Parse("2006-01-02", p.CryptoExemptUntil); err == nil && asOf.After(expiry) {
				return SellExemption{
					Kind:    "crypto_cycle",
					Reason:  fmt.Sprintf("crypto-cycle exemption expired %s", p.CryptoExemptUntil),
					Expired: true,
				}
			}
		}
		return SellExemption{
			Exempt: true,
			Kind:   "crypto_cycle",
			Reason: fmt.Sprintf("%s held through the crypto halving cycle", tk.Symbol),
		}
	}
	return SellExemption{Kind: "none"}
}

// EvaluateSellCriteria checks the six sell criteria and returns those met,
// in fixed order.
func EvaluateSellCriteria(in Inputs, p Params) []MetCriterion {
	var met []MetCriterion
	tk := in.Ticker
	f := in.SubScores.Fields

	if tk.Grades.QuantRating != nil && tk.PrevQuantRating != nil {
		delta := *tk.Grades.QuantRating - *tk.PrevQuantRating
		if delta < p.QuantDropDelta {
			met = append(met, MetCriterion{
				Name:    CriterionQuantDrop,
				Message: fmt.Sprintf("quant rating dropped %+.2f over the comparison window", delta),
			})
		}
	}

	if f.VolAdjMom < 0 {
		met = append(met, MetCriterion{
			Name:    CriterionNegativeMomentum,
			Message: fmt.Sprintf("vol-adjusted momentum negative (%.3f)", f.VolAdjMom),
		})
	}

	if f.DaysBelowSMA200 >= p.SMABreachDays {
		met = append(met, MetCriterion{
			Name:    CriterionSMABreach,
			Message: fmt.Sprintf("%d consecutive days >3%% below the 200d SMA", f.DaysBelowSMA200),
		})
	}

	if tk.BrokenThesis {
		met = append(met, MetCriterion{
			Name:    CriterionBrokenThesis,
			Message: "thesis flagged broken",
		})
	}

	if f.RSVsBenchmark != 0 && f.RSVsBenchmark < p.WeakRSMax {
		met = append(met, MetCriterion{
			Name:    CriterionWeakRS,
			Message: fmt.Sprintf("relative strength vs benchmark %.2f below %.2f", f.RSVsBenchmark, p.WeakRSMax),
		})
	}

	if tk.RevisionDelta4W != nil && *tk.RevisionDelta4W <= p.RevisionDeclineDelta {
		met = append(met, MetCriterion{
			Name:    CriterionRevisionDecline,
			Message: fmt.Sprintf("revisions grade declined %.3f over 4 weeks", *tk.RevisionDelta4W),
		})
	}

	return met
}

func smaBreachWarning(in Inputs, p Params) (Event, bool) {
	days := in.SubScores.Fields.DaysBelowSMA200
	if days < p.SMABreachWarnDays || days >= p.SMABreachDays {
		return Event{}, false
	}
	return Event{
		Type:      EventSMABreachWarning,
		Severity:  SeverityWarning,
		Criterion: CriterionSMABreach,
		Message:   fmt.Sprintf("%d consecutive days >3%% below the 200d SMA (sell at %d)", days, p.SMABreachDays),
		Metadata:  map[string]interface{}{"days_below": days},
	}, true
}

func graceExpiry(in Inputs, p Params) (Event, bool) {
	ends := in.Ticker.GraceEndsAt
	if ends == nil {
		return Event{}, false
	}
	asOf := in.Context.AsOf
	if !ends.After(asOf) {
		return Event{
			Type:      EventGraceExpiry,
			Severity:  SeverityWarning,
			Criterion: "grace_expiry",
			Message:   fmt.Sprintf("grace period expired %s", ends.Format("2006-01-02")),
			Metadata:  map[string]interface{}{"ends_at": ends.Format(time.RFC3339)},
		}, true
	}
	if ends.Sub(asOf) <= p.GraceExpiryWarnWithin {
		return Event{
			Type:      EventGraceExpiry,
			Severity:  SeverityInfo,
			Criterion: "grace_expiry",
			Message:   fmt.Sprintf("grace period ends %s", ends.Format("2006-01-02")),
			Metadata:  map[string]interface{}{"ends_at": ends.Format(time.RFC3339)},
		}, true
	}
	return Event{}, false
}

func buyDip(in Inputs, p Params) (Event, bool) {
	if in.Composite.FinalScore < p.BuyDipMinScore || in.Composite.FKCapApplied {
		return Event{}, false
	}
	return Event{
		Type:      EventBuyDip,
		Severity:  SeverityInfo,
		Criterion: "buy_dip",
		Message:   fmt.Sprintf("score %.1f at or above the buy threshold", in.Composite.FinalScore),
		Metadata:  map[string]interface{}{"score": in.Composite.FinalScore},
	}, true
}

func reversalConfirmed(in Inputs, p Params) (Event, bool) {
	f := in.SubScores.Fields
	if in.Composite.FinalScore < p.ReversalMinScore || !f.BollingerBreach {
		return Event{}, false
	}
	return Event{
		Type:      EventReversalConfirmed,
		Severity:  SeverityInfo,
		Criterion: "reversal_confirmed",
		Message:   "buy-level score with a Bollinger lower-band breach",
		Metadata:  map[string]interface{}{"bb_pct_b": f.BollingerPctB},
	}, true
}

func bottomTurning(in Inputs, p Params) (Event, bool) {
	f := in.SubScores.Fields
	quant := 0.0
	if in.Ticker.Grades.QuantRating != nil {
		quant = *in.Ticker.Grades.QuantRating
	}
	if !f.MACDHistRising || !f.MACDBelowZero || !f.RSIAvailable ||
		f.RSI14 >= p.BottomTurningRSIMax || quant < p.BottomTurningQuant {
		return Event{}, false
	}
	return Event{
		Type:      EventBottomTurning,
		Severity:  SeverityInfo,
		Criterion: "bottom_turning",
		Message:   "MACD histogram rising below zero with deeply oversold RSI and a solid quant rating",
		Metadata:  map[string]interface{}{"rsi": f.RSI14, "quant": quant},
	}, true
}

func fallingKnifeWarning(in Inputs) (Event, bool) {
	if !in.Composite.FKCapApplied {
		return Event{}, false
	}
	return Event{
		Type:      EventFallingKnife,
		Severity:  SeverityWarning,
		Criterion: "falling_knife",
		Message: fmt.Sprintf("score capped at %.1f from %.1f in a bearish trend regime",
			in.Composite.FinalScore, in.Composite.FKOriginalDCS),
		Metadata: map[string]interface{}{"original_score": in.Composite.FKOriginalDCS},
	}, true
}

func defensiveHold(in Inputs, sellCount int) (Event, bool) {
	cat := in.Ticker.DefenseCategory
	if cat != model.DefenseHedge && cat != model.DefenseDefensive {
		return Event{}, false
	}
	if sellCount != 1 || !fearOrPanic(in.Context.VIXRegime) {
		return Event{}, false
	}
	return Event{
		Type:      EventDefensiveHold,
		Severity:  SeverityWarning,
		Criterion: "defensive_hold",
		Message:   fmt.Sprintf("%s asset provides drawdown insurance despite one sell criterion", cat),
		Metadata:  map[string]interface{}{"category": string(cat)},
	}, true
}

func amplifierTrim(in Inputs, sellCount int) (Event, bool) {
	if in.Ticker.DefenseCategory != model.DefenseAmplifier {
		return Event{}, false
	}
	if sellCount < 1 || !fearOrPanic(in.Context.VIXRegime) {
		return Event{}, false
	}
	return Event{
		Type:      EventAmplifierTrim,
		Severity:  SeverityWarning,
		Criterion: "amplifier_trim",
		Message:   "amplifier asset with active sell criteria in a stressed regime, priority trim candidate",
		Metadata:  map[string]interface{}{"sell_criteria": sellCount},
	}, true
}

// parabolicMove flags overextended price action before capital is deployed
// against a buy-level score. Gold positions ride regime-driven moves: an
// overbought RSI only trims their deployment size, and the 8-week return
// check does not apply to them at all.
func parabolicMove(in Inputs, p Params) (Event, bool) {
	f := in.SubScores.Fields
	if !f.RSIAvailable || !f.AccelAvailable {
		return Event{}, false
	}
	rsiHot := f.RSI14 > p.ParabolicRSIMin
	retHot := f.Ret8W > p.ParabolicRet8WMin

	if in.Ticker.IsGold {
		if !rsiHot {
			return Event{}, false
		}
		return Event{
			Type:      EventParabolicMove,
			Severity:  SeverityInfo,
			Criterion: "parabolic_move",
			Message:   fmt.Sprintf("gold RSI %.0f overbought, deploy at reduced size", f.RSI14),
			Metadata:  map[string]interface{}{"rsi": f.RSI14, "ret_8w": f.Ret8W, "sizing": "THREE_QUARTER"},
		}, true
	}

	switch {
	case rsiHot && retHot:
		return Event{
			Type:      EventParabolicMove,
			Severity:  SeverityWarning,
			Criterion: "parabolic_move",
			Message: fmt.Sprintf("parabolic: RSI %.0f with %.1f%% 8-week return, do not deploy",
				f.RSI14, f.Ret8W*100),
			Metadata: map[string]interface{}{"rsi": f.RSI14, "ret_8w": f.Ret8W, "sizing": "FAIL"},
		}, true
	case rsiHot:
		return Event{
			Type:      EventParabolicMove,
			Severity:  SeverityInfo,
			Criterion: "parabolic_move",
			Message:   fmt.Sprintf("RSI %.0f overbought, wait for a pullback before deploying", f.RSI14),
			Metadata:  map[string]interface{}{"rsi": f.RSI14, "ret_8w": f.Ret8W, "sizing": "WAIT"},
		}, true
	case retHot:
		return Event{
			Type:      EventParabolicMove,
			Severity:  SeverityInfo,
			Criterion: "parabolic_move",
			Message:   fmt.Sprintf("%.1f%% 8-week return, wait for consolidation before deploying", f.Ret8W*100),
			Metadata:  map[string]interface{}{"rsi": f.RSI14, "ret_8w": f.Ret8W, "sizing": "WAIT"},
		}, true
	}
	return Event{}, false
}

func quantFreshness(in Inputs, p Params) (Event, bool) {
	f := in.SubScores.Fields
	if in.Ticker.Grades.QuantRating == nil || *in.Ticker.Grades.QuantRating < p.FreshnessQuantMin {
		return Event{}, false
	}
	if !f.RSIAvailable || f.RSI14 >= p.FreshnessRSIMax {
		return Event{}, false
	}
	return Event{
		Type:      EventQuantFreshness,
		Severity:  SeverityInfo,
		Criterion: "quant_freshness",
		Message:   "deeply oversold with a high quant rating, verify the rating is current",
		Metadata:  map[string]interface{}{"rsi": f.RSI14, "quant": *in.Ticker.Grades.QuantRating},
	}, true
}

func concentration(in Inputs) (Event, bool) {
	c := in.Ticker.Concentration
	if c == nil || c.WeightPct <= c.CapPct {
		return Event{}, false
	}
	return Event{
		Type:      EventConcentration,
		Severity:  SeverityInfo,
		Criterion: "concentration",
		Message:   fmt.Sprintf("position weight %.1f%% exceeds the %.1f%% cap", c.WeightPct, c.CapPct),
		Metadata:  map[string]interface{}{"weight_pct": c.WeightPct, "cap_pct": c.CapPct},
	}, true
}

func fearOrPanic(r model.VIXRegime) bool {
	return r == model.VIXRegimeFear || r == model.VIXRegimePanic
}

// Resolve reduces the event list to exactly one net action. The reduction is
// total and deterministic: any non-empty list maps to one action, an empty
// list maps to MONITOR. Sell-side events outrank buy-side events, and ties
// fall to the more conservative action.
func Resolve(events []Event) string {
	if len(events) == 0 {
		return ActionMonitor
	}

	var sells, holds, trims, warnings int
	var hasReview, hasBuy, hasWatchlist bool
	for _, e := range events {
		switch e.Type {
		case EventSellReview:
			hasReview = true
		case EventSellSignal:
			sells++
		case EventDefensiveHold:
			holds++
		case EventAmplifierTrim:
			trims++
		case EventBuyDip, EventReversalConfirmed:
			hasBuy = true
		case EventBottomTurning:
			hasWatchlist = true
		default:
			if e.Severity == SeverityWarning || e.Severity == SeverityCritical {
				warnings++
			}
		}
	}

	switch {
	case hasReview || sells >= 2:
		return ActionReview
	case sells == 1 && holds > 0:
		return ActionHold
	case sells == 1:
		return ActionWatch
	case trims > 0:
		return ActionTrim
	case hasBuy:
		return ActionBuy
	case hasWatchlist:
		return ActionWatchlist
	case warnings > 0:
		return ActionWatch
	default:
		return ActionMonitor
	}
}
