// Package scorer orchestrates the per-ticker scoring pipeline: sub-scores,
// composition, modifiers, and the signal board. Scoring is pure over its
// inputs so distinct tickers can run on independent workers.
package scorer

import (
	"fmt"

	"threshold-engine/internal/engine/advanced"
	"threshold-engine/internal/engine/composite"
	"threshold-engine/internal/engine/model"
	"threshold-engine/internal/engine/signalboard"
	"threshold-engine/internal/engine/subscore"
	"threshold-engine/internal/engine/technical"
)

// Params bundles every knob of the scoring pipeline.
type Params struct {
	MinBars int `mapstructure:"min_bars"`

	MQ subscore.MQParams `mapstructure:"mq_weights"`
	FQ subscore.FQParams `mapstructure:"fq_weights"`
	TO subscore.TOParams `mapstructure:"to_weights"`
	MR subscore.MRParams `mapstructure:"mr_weights"`
	VC subscore.VCParams `mapstructure:"vc_weights"`

	Composite composite.Params   `mapstructure:"composite"`
	Signals   signalboard.Params `mapstructure:"signals"`

	TrendFollowing advanced.TrendFollowerParams `mapstructure:"trend_following"`

	OBVLookback           int     `mapstructure:"obv_lookback"`
	RSIDivergenceLookback int     `mapstructure:"rsi_divergence_lookback"`
	SMABreachThreshold    float64 `mapstructure:"sma_breach_threshold"`
}

// DefaultParams returns the calibrated pipeline configuration.
func DefaultParams() Params {
	return Params{
		MinBars: 50,

		MQ: subscore.DefaultMQParams(),
		FQ: subscore.DefaultFQParams(),
		TO: subscore.DefaultTOParams(),
		MR: subscore.DefaultMRParams(),
		VC: subscore.DefaultVCParams(),

		Composite: composite.DefaultParams(),
		Signals:   signalboard.DefaultParams(),

		TrendFollowing: advanced.DefaultTrendFollowerParams(),

		OBVLookback:           20,
		RSIDivergenceLookback: 40,
		SMABreachThreshold:    -0.03,
	}
}

// Validate checks the parameter set. Invalid parameters abort a run before
// any ticker is scored.
func (p Params) Validate() error {
	if p.MinBars <= 0 {
		return model.NewConfigError("min_bars", "must be positive, got %d", p.MinBars)
	}
	return p.Composite.Validate()
}

// Result is the full outcome of scoring one ticker in one run.
type Result struct {
	Symbol    string
	SubScores model.SubScoreSet
	Composite model.CompositeResult
	Events    []signalboard.Event
	NetAction string

	// DataWarnings names optional inputs that were unavailable; scoring
	// proceeded best-effort without them.
	DataWarnings []string
}

// Score runs the full pipeline for one ticker against the run's market
// context. It fails fast on missing required inputs and otherwise proceeds
// best-effort, recording degraded inputs as warnings.
func Score(tk *model.EnrichedTicker, ctx *model.MarketContext, p Params) (*Result, error) {
	if tk == nil || ctx == nil {
		return nil, fmt.Errorf("%w: ticker and market context are required", model.ErrMissingRequiredInput)
	}
	if tk.Symbol == "" {
		return nil, fmt.Errorf("%w: ticker symbol", model.ErrMissingRequiredInput)
	}
	if err := tk.Prices.Validate(); err != nil {
		return nil, err
	}
	if len(tk.Prices) < p.MinBars {
		return nil, fmt.Errorf("%w: %s has %d bars, need %d",
			model.ErrInsufficientData, tk.Symbol, len(tk.Prices), p.MinBars)
	}

	closes := tk.Prices.Closes()
	volumes := tk.Prices.Volumes()
	benchmark := ctx.BenchmarkPrices.Closes()

	res := &Result{Symbol: tk.Symbol}
	sub := model.SubScoreSet{}
	available := map[string]bool{}

	// MQ
	mq, err := subscore.MomentumQuality(closes, benchmark, tk.Grades.Momentum, p.MQ)
	if err != nil {
		res.DataWarnings = append(res.DataWarnings, "mq_unavailable")
	} else {
		available["MQ"] = true
		sub.MomentumQuality = mq.Score
		sub.Fields.TrendScore = mq.TrendScore
		sub.Fields.VolAdjMom = mq.VolAdjMom
		sub.Fields.MomentumScore = mq.MomentumScore
		if mq.RSAvailable {
			sub.Fields.RSVsBenchmark = mq.RSVsBenchmark
		}
		res.DataWarnings = append(res.DataWarnings, mq.Missing...)
	}

	if p.TrendFollowing.Enabled && available["MQ"] {
		if sig, ok := trendOverlay(tk, closes, p.TrendFollowing); ok {
			sub.MomentumQuality = advanced.BlendIntoMQ(sub.MomentumQuality, sig, p.TrendFollowing.MQBlendWeight)
		}
	}

	// FQ
	fq, err := subscore.FundamentalQuality(tk.Grades, tk.Fundamentals, tk.RevisionDelta4W, p.FQ)
	if err != nil {
		res.DataWarnings = append(res.DataWarnings, "fq_unavailable")
	} else {
		available["FQ"] = true
		sub.FundamentalQuality = fq.Score
		res.DataWarnings = append(res.DataWarnings, fq.Missing...)
	}

	// TO
	to, err := subscore.TechnicalOversold(closes, p.TO)
	if err != nil {
		res.DataWarnings = append(res.DataWarnings, "to_unavailable")
	} else {
		available["TO"] = true
		sub.TechnicalOversold = to.Score
		sub.Fields.RSI14 = to.RSI
		sub.Fields.RSIAvailable = to.RSIAvailable
		sub.Fields.MACDCrossover = to.MACD.Crossover
		sub.Fields.MACDHistRising = to.MACD.HistRising
		sub.Fields.MACDBelowZero = to.MACD.BelowZero
		sub.Fields.MACDAvailable = to.MACDAvailable
		sub.Fields.BollingerPctB = to.Bollinger.PctB
		sub.Fields.BollingerBreach = to.Bollinger.LowerBreach
		sub.Fields.BollingerOK = to.BollingerOK
		sub.Fields.PctFromSMA200 = to.PctFromSMA
		sub.Fields.SMA200Available = to.SMAAvailable
		res.DataWarnings = append(res.DataWarnings, to.Missing...)
	}

	// MR
	mr, err := subscore.MarketRegime(ctx, p.MR)
	if err != nil {
		res.DataWarnings = append(res.DataWarnings, "mr_unavailable")
	} else {
		available["MR"] = true
		sub.MacroRegime = mr.Score
		res.DataWarnings = append(res.DataWarnings, mr.Missing...)
	}

	// VC
	vc, err := subscore.ValuationContext(tk.Grades, tk.Fundamentals, p.VC)
	if err != nil {
		res.DataWarnings = append(res.DataWarnings, "vc_unavailable")
	} else {
		available["VC"] = true
		sub.ValueConfirmation = vc.Score
		res.DataWarnings = append(res.DataWarnings, vc.Missing...)
	}

	if len(available) == 0 {
		return nil, fmt.Errorf("%w: %s produced no sub-scores", model.ErrInsufficientData, tk.Symbol)
	}

	// Divergence and breach state feeding the modifiers and the board.
	if obv, oerr := technical.OBVDivergenceScan(closes, volumes, p.OBVLookback); oerr == nil {
		sub.Fields.OBVDivergence = obv.Divergence
		sub.Fields.OBVDivStrength = obv.Strength
		sub.Fields.OBVAvailable = true
	} else {
		res.DataWarnings = append(res.DataWarnings, "obv_unavailable")
	}

	if accel, ret8w, aerr := technical.PriceAcceleration(closes); aerr == nil {
		sub.Fields.AccelScore = accel
		sub.Fields.Ret8W = ret8w
		sub.Fields.AccelAvailable = true
	} else {
		res.DataWarnings = append(res.DataWarnings, "price_acceleration_unavailable")
	}

	if div, derr := technical.RSIBullishDivergence(closes, p.TO.RSIPeriod, p.RSIDivergenceLookback); derr == nil {
		sub.Fields.RSIBullishDiv = div.Detected
	} else {
		res.DataWarnings = append(res.DataWarnings, "rsi_divergence_unavailable")
	}

	if days, _, serr := technical.ConsecutiveDaysBelowSMA(closes, p.TO.SMAPeriod, p.SMABreachThreshold); serr == nil {
		sub.Fields.DaysBelowSMA200 = days
	}

	sub.Warnings = res.DataWarnings

	raw := composite.Compose(sub, redistributedWeights(p.Composite.Weights, available))

	regime := ctx.VIXRegime
	if regime == "" {
		regime = composite.ClassifyVIX(ctx.VIXLevel)
	}

	comp := composite.Apply(raw, composite.ModifierInputs{
		OBVBullishDivergence: sub.Fields.OBVDivergence == technical.DivergenceBullish,
		RSIBullishDivergence: sub.Fields.RSIBullishDiv,
		TrendScore:           sub.Fields.TrendScore,
		DefenseCategory:      tk.DefenseCategory,
		VIXRegime:            regime,
	}, p.Composite)

	if tk.Drawdown != nil {
		comp.DrawdownClass = tk.Drawdown.Class
	}

	if comp.FinalScore < 0 || comp.FinalScore > 100 {
		return nil, fmt.Errorf("%w: %s final score %v outside [0,100]",
			model.ErrInvariantViolation, tk.Symbol, comp.FinalScore)
	}

	boardCtx := *ctx
	boardCtx.VIXRegime = regime
	events := signalboard.Evaluate(signalboard.Inputs{
		Ticker:    tk,
		Context:   &boardCtx,
		SubScores: sub,
		Composite: comp,
	}, p.Signals)

	res.SubScores = sub
	res.Composite = comp
	res.Events = events
	res.NetAction = signalboard.Resolve(events)
	return res, nil
}

// trendOverlay prefers an externally supplied trend signal; otherwise it
// computes one from the price series.
func trendOverlay(tk *model.EnrichedTicker, closes []float64, p advanced.TrendFollowerParams) (advanced.TrendSignal, bool) {
	if tk.TrendOverlay != nil {
		return advanced.TrendSignal{Signal: *tk.TrendOverlay}, true
	}
	tf := advanced.NewTrendFollower(p.Window, p.VolWindow)
	return tf.ComputeSignal(closes)
}

// redistributedWeights rescales the composite weights so the weights of the
// available sub-scores sum to 1; missing sub-scores get zero weight.
func redistributedWeights(w composite.Weights, available map[string]bool) composite.Weights {
	total := 0.0
	if available["MQ"] {
		total += w.MQ
	}
	if available["FQ"] {
		total += w.FQ
	}
	if available["TO"] {
		total += w.TO
	}
	if available["MR"] {
		total += w.MR
	}
	if available["VC"] {
		total += w.VC
	}
	if total == 0 {
		return composite.Weights{}
	}

	out := composite.Weights{}
	if available["MQ"] {
		out.MQ = w.MQ / total
	}
	if available["FQ"] {
		out.FQ = w.FQ / total
	}
	if available["TO"] {
		out.TO = w.TO / total
	}
	if available["MR"] {
		out.MR = w.MR / total
	}
	if available["VC"] {
		out.VC = w.VC / total
	}
	return out
}
