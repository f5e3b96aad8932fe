// Package composite turns the five sub-scores into the final dip composite
// score: weighted composition, the ordered post-composition modifiers, and
// the score and VIX classifiers.
package composite

import (
	"math"

	"threshold-engine/internal/engine/model"
)

// Modifier names recorded on the composite result.
const (
	ModifierOBVBoost      = "obv_divergence_boost"
	ModifierRSIDivergence = "rsi_divergence_boost"
	ModifierFallingKnife  = "falling_knife_cap"
	ModifierDrawdown      = "drawdown_defense"
)

// Weights are the composite sub-score weights. They must sum to 1.
type Weights struct {
	MQ float64 `mapstructure:"mq"`
	FQ float64 `mapstructure:"fq"`
	TO float64 `mapstructure:"to"`
	MR float64 `mapstructure:"mr"`
	VC float64 `mapstructure:"vc"`
}

// DefaultWeights returns the standard composite weights.
func DefaultWeights() Weights {
	return Weights{MQ: 0.30, FQ: 0.25, TO: 0.20, MR: 0.15, VC: 0.10}
}

// Validate checks that every weight is non-negative and the sum is 1.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{"mq": w.MQ, "fq": w.FQ, "to": w.TO, "mr": w.MR, "vc": w.VC} {
		if v < 0 {
			return model.NewConfigError("weights."+name, "must be non-negative, got %v", v)
		}
	}
	sum := w.MQ + w.FQ + w.TO + w.MR + w.VC
	if math.Abs(sum-1.0) > 1e-6 {
		return model.NewConfigError("weights", "must sum to 1.0, got %v", sum)
	}
	return nil
}

// Thresholds are the classification boundaries, strictly descending.
type Thresholds struct {
	StrongBuyDip   float64 `mapstructure:"strong_buy_dip"`
	HighConviction float64 `mapstructure:"high_conviction"`
	BuyDip         float64 `mapstructure:"buy_dip"`
	Watch          float64 `mapstructure:"watch"`
}

// DefaultThresholds returns the standard classification boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{StrongBuyDip: 80, HighConviction: 70, BuyDip: 65, Watch: 50}
}

// Validate checks that the boundaries descend.
func (t Thresholds) Validate() error {
	if !(t.StrongBuyDip > t.HighConviction && t.HighConviction > t.BuyDip && t.BuyDip > t.Watch) {
		return model.NewConfigError("thresholds", "must be strictly descending, got %v > %v > %v > %v",
			t.StrongBuyDip, t.HighConviction, t.BuyDip, t.Watch)
	}
	return nil
}

// CategoryValues maps each defense category to a numeric value, used for the
// falling-knife caps and the drawdown defense deltas.
type CategoryValues struct {
	Hedge     float64 `mapstructure:"hedge"`
	Defensive float64 `mapstructure:"defensive"`
	Moderate  float64 `mapstructure:"moderate"`
	Cyclical  float64 `mapstructure:"cyclical"`
	Amplifier float64 `mapstructure:"amplifier"`
}

// For returns the value for the category; fallback covers unknown categories.
func (c CategoryValues) For(cat model.DefenseCategory, fallback float64) float64 {
	switch cat {
	case model.DefenseHedge:
		return c.Hedge
	case model.DefenseDefensive:
		return c.Defensive
	case model.DefenseModerate:
		return c.Moderate
	case model.DefenseCyclical:
		return c.Cyclical
	case model.DefenseAmplifier:
		return c.Amplifier
	default:
		return fallback
	}
}

// Params configures composition, modifiers and classification.
type Params struct {
	Weights    Weights    `mapstructure:"weights"`
	Thresholds Thresholds `mapstructure:"thresholds"`

	OBVBoost              float64 `mapstructure:"obv_boost"`
	RSIDivergenceBoost    float64 `mapstructure:"rsi_divergence_boost"`
	RSIDivergenceMinScore float64 `mapstructure:"rsi_divergence_min_score"`

	FreefallTrendMax  float64        `mapstructure:"freefall_trend_max"`
	DowntrendTrendMax float64        `mapstructure:"downtrend_trend_max"`
	FreefallCaps      CategoryValues `mapstructure:"freefall_caps"`
	DowntrendCaps     CategoryValues `mapstructure:"downtrend_caps"`

	DrawdownDeltas CategoryValues `mapstructure:"drawdown_deltas"`
}

// DefaultParams returns the standard composite configuration.
func DefaultParams() Params {
	return Params{
		Weights:    DefaultWeights(),
		Thresholds: DefaultThresholds(),

		OBVBoost:              2,
		RSIDivergenceBoost:    3,
		RSIDivergenceMinScore: 60,

		FreefallTrendMax:  0.1,
		DowntrendTrendMax: 0.4,
		FreefallCaps:      CategoryValues{Hedge: 50, Defensive: 45, Moderate: 30, Cyclical: 20, Amplifier: 15},
		DowntrendCaps:     CategoryValues{Hedge: 70, Defensive: 60, Moderate: 50, Cyclical: 40, Amplifier: 30},

		DrawdownDeltas: CategoryValues{Hedge: 5, Defensive: 3, Moderate: 0, Cyclical: -3, Amplifier: -5},
	}
}

// Validate checks the parameter set before any scoring happens.
func (p Params) Validate() error {
	if err := p.Weights.Validate(); err != nil {
		return err
	}
	if err := p.Thresholds.Validate(); err != nil {
		return err
	}
	if p.FreefallTrendMax >= p.DowntrendTrendMax {
		return model.NewConfigError("falling_knife", "freefall_trend_max %v must be below downtrend_trend_max %v",
			p.FreefallTrendMax, p.DowntrendTrendMax)
	}
	for _, cap := range []float64{p.FreefallCaps.Moderate, p.FreefallCaps.Cyclical, p.FreefallCaps.Amplifier} {
		if cap >= p.Thresholds.BuyDip {
			return model.NewConfigError("freefall_caps", "cap %v must stay below the buy threshold %v",
				cap, p.Thresholds.BuyDip)
		}
	}
	return nil
}

// ModifierInputs are the per-ticker facts the modifiers key off.
type ModifierInputs struct {
	OBVBullishDivergence bool
	RSIBullishDivergence bool
	TrendScore           float64
	DefenseCategory      model.DefenseCategory
	VIXRegime            model.VIXRegime
}

// Compose computes the raw weighted score from the five sub-scores.
func Compose(sub model.SubScoreSet, w Weights) float64 {
	return sub.MomentumQuality*w.MQ +
		sub.FundamentalQuality*w.FQ +
		sub.TechnicalOversold*w.TO +
		sub.MacroRegime*w.MR +
		sub.ValueConfirmation*w.VC
}

// Apply runs the ordered post-composition modifiers over the raw score and
// classifies the clamped result. Order: OBV boost, RSI divergence boost,
// falling-knife cap, drawdown defense delta.
func Apply(raw float64, in ModifierInputs, p Params) model.CompositeResult {
	res := model.CompositeResult{RawScore: raw}
	score := Clamp(raw)

	if in.OBVBullishDivergence && p.OBVBoost != 0 {
		score += p.OBVBoost
		res.Modifiers = append(res.Modifiers, model.AppliedModifier{Name: ModifierOBVBoost, Delta: p.OBVBoost})
	}

	if in.RSIBullishDivergence && score >= p.RSIDivergenceMinScore && p.RSIDivergenceBoost != 0 {
		score += p.RSIDivergenceBoost
		res.Modifiers = append(res.Modifiers, model.AppliedModifier{Name: ModifierRSIDivergence, Delta: p.RSIDivergenceBoost})
	}

	if capped, cap, ok := fallingKnifeCap(score, in, p); ok {
		res.FKCapApplied = true
		res.FKOriginalDCS = score
		res.Modifiers = append(res.Modifiers, model.AppliedModifier{Name: ModifierFallingKnife, Delta: cap - score})
		score = capped
	}

	if delta, ok := drawdownDelta(in, p); ok {
		score += delta
		res.Modifiers = append(res.Modifiers, model.AppliedModifier{Name: ModifierDrawdown, Delta: delta})
	}

	res.FinalScore = Clamp(score)
	res.SignalLabel = ClassifyScore(res.FinalScore, p.Thresholds)
	return res
}

// fallingKnifeCap caps scores in bearish trend regimes. Hedges and
// defensives hold counter-cyclical value in a decline and are exempt.
func fallingKnifeCap(score float64, in ModifierInputs, p Params) (float64, float64, bool) {
	if in.DefenseCategory == model.DefenseHedge || in.DefenseCategory == model.DefenseDefensive {
		return score, 0, false
	}

	var cap float64
	switch {
	case in.TrendScore <= p.FreefallTrendMax:
		cap = p.FreefallCaps.For(in.DefenseCategory, 30)
	case in.TrendScore <= p.DowntrendTrendMax:
		cap = p.DowntrendCaps.For(in.DefenseCategory, 50)
	default:
		return score, 0, false
	}

	if score <= cap {
		return score, 0, false
	}
	return cap, cap, true
}

// drawdownDelta shifts the score by the defense category delta, active only
// in FEAR and PANIC regimes.
func drawdownDelta(in ModifierInputs, p Params) (float64, bool) {
	if in.VIXRegime != model.VIXRegimeFear && in.VIXRegime != model.VIXRegimePanic {
		return 0, false
	}
	if in.DefenseCategory == "" {
		return 0, false
	}
	delta := p.DrawdownDeltas.For(in.DefenseCategory, 0)
	if delta == 0 {
		return 0, false
	}
	return delta, true
}

// ClassifyScore maps a final score to its signal label.
func ClassifyScore(score float64, t Thresholds) string {
	switch {
	case score >= t.StrongBuyDip:
		return model.SignalStrongBuyDip
	case score >= t.HighConviction:
		return model.SignalHighConviction
	case score >= t.BuyDip:
		return model.SignalBuyDip
	case score >= t.Watch:
		return model.SignalWatch
	default:
		return model.SignalWeakAvoid
	}
}

// ClassifyVIX maps a VIX level to its regime.
func ClassifyVIX(vix float64) model.VIXRegime {
	switch {
	case vix < 14:
		return model.VIXRegimeComplacent
	case vix < 20:
		return model.VIXRegimeNormal
	case vix < 28:
		return model.VIXRegimeFear
	default:
		return model.VIXRegimePanic
	}
}

// Clamp bounds a score to [0,100].
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
