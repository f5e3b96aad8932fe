// Package advanced holds the optional signal overlays that sit on top of
// the core calculators. All overlays are disabled by default.
package advanced

import (
	"math"
)

// Trend regimes classified from the continuous signal.
const (
	RegimeStrongUp   = "STRONG_UP"
	RegimeUp         = "UP"
	RegimeFlat       = "FLAT"
	RegimeDown       = "DOWN"
	RegimeStrongDown = "STRONG_DOWN"
)

// TrendSignal is a continuous trend reading in [-1,1] with its diagnostics.
type TrendSignal struct {
	Signal    float64
	TStat     float64
	VolScaled float64
	Vol       float64
	Regime    string
}

// TrendFollowerParams configure the continuous trend follower and its blend
// into the momentum quality sub-score.
type TrendFollowerParams struct {
	Enabled       bool    `mapstructure:"enabled"`
	Window        int     `mapstructure:"window"`
	VolWindow     int     `mapstructure:"vol_window"`
	MQBlendWeight float64 `mapstructure:"mq_blend_weight"`
}

// DefaultTrendFollowerParams returns the standard overlay configuration,
// disabled.
func DefaultTrendFollowerParams() TrendFollowerParams {
	return TrendFollowerParams{
		Window:        252,
		VolWindow:     60,
		MQBlendWeight: 0.20,
	}
}

// TrendFollower computes a continuous trend signal by regressing price on
// time over a rolling window and normalizing the slope t-statistic.
type TrendFollower struct {
	window    int
	volWindow int
}

// NewTrendFollower builds a follower with the given lookback windows.
func NewTrendFollower(window, volWindow int) *TrendFollower {
	return &TrendFollower{window: window, volWindow: volWindow}
}

// ComputeSignal regresses the trailing window of closes on time and maps the
// slope t-statistic into [-1,1] via t/2 clamped. Returns false when the
// series is shorter than the window.
func (tf *TrendFollower) ComputeSignal(closes []float64) (TrendSignal, bool) {
	if len(closes) < tf.window {
		return TrendSignal{}, false
	}
	y := closes[len(closes)-tf.window:]
	n := float64(len(y))

	xMean := (n - 1) / 2
	yMean := 0.0
	for _, v := range y {
		yMean += v
	}
	yMean /= n

	var ssXX, ssXY float64
	for i, v := range y {
		dx := float64(i) - xMean
		ssXX += dx * dx
		ssXY += dx * (v - yMean)
	}
	if ssXX < 1e-12 {
		return TrendSignal{Regime: RegimeFlat}, true
	}

	beta1 := ssXY / ssXX
	beta0 := yMean - beta1*xMean

	var sse float64
	for i, v := range y {
		r := v - (beta0 + beta1*float64(i))
		sse += r * r
	}
	s2 := 1e-12
	if len(y) > 2 {
		s2 = sse / (n - 2)
	}
	seBeta1 := math.Sqrt(math.Max(s2/ssXX, 1e-20))

	tStat := 0.0
	if seBeta1 > 1e-12 {
		tStat = beta1 / seBeta1
	}
	signal := math.Max(-1, math.Min(1, tStat/2))

	vol := tf.closeToCloseVol(closes)
	volScaled := signal
	if vol > 0 {
		volScaled = signal / math.Max(vol, 0.05)
	}

	return TrendSignal{
		Signal:    signal,
		TStat:     tStat,
		VolScaled: volScaled,
		Vol:       vol,
		Regime:    classifyRegime(signal),
	}, true
}

// closeToCloseVol is the annualized log-return volatility over the vol
// window.
func (tf *TrendFollower) closeToCloseVol(closes []float64) float64 {
	if len(closes) < tf.volWindow+1 {
		return 0
	}
	window := closes[len(closes)-tf.volWindow:]
	prev := closes[len(closes)-tf.volWindow-1:]

	rets := make([]float64, 0, len(window))
	for i, c := range window {
		if prev[i] > 0 && c > 0 {
			rets = append(rets, math.Log(c/prev[i]))
		}
	}
	if len(rets) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	var sq float64
	for _, r := range rets {
		d := r - mean
		sq += d * d
	}
	return math.Sqrt(sq/float64(len(rets)-1)) * math.Sqrt(252)
}

// BlendIntoMQ mixes the trend signal into a momentum quality score on
// [0,100]. The signal is mapped from [-1,1] to [0,100] before blending.
func BlendIntoMQ(mq float64, sig TrendSignal, weight float64) float64 {
	trendNorm := (sig.Signal + 1) / 2 * 100
	return (1-weight)*mq + weight*trendNorm
}

func classifyRegime(signal float64) string {
	switch {
	case signal >= 0.6:
		return RegimeStrongUp
	case signal >= 0.2:
		return RegimeUp
	case signal <= -0.6:
		return RegimeStrongDown
	case signal <= -0.2:
		return RegimeDown
	default:
		return RegimeFlat
	}
}
