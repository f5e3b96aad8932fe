package technical

import (
	"fmt"
	"math"

	"threshold-engine/internal/engine/model"
)

// TrendState classifies the 50d/200d SMA regime of the last close.
type TrendState struct {
	Score  float64
	SMA50  float64
	SMA200 float64
}

// TrendScore classifies trend regime from the 50d and 200d SMAs:
// 1.0 uptrend pullback, 0.5 uptrend with a broken 200d, 0.4 recovery
// attempt, 0.1 downtrend below both averages. When the series is shorter
// than an SMA window the current price stands in for that average.
func TrendScore(closes []float64) (TrendState, error) {
	if len(closes) == 0 {
		return TrendState{}, fmt.Errorf("%w: trend score needs at least 1 close", model.ErrInsufficientData)
	}
	current := closes[len(closes)-1]

	sma50 := current
	if len(closes) >= 50 {
		sma50, _ = SMA(closes, 50)
	}
	sma200 := current
	if len(closes) >= 200 {
		sma200, _ = SMA(closes, 200)
	}

	st := TrendState{SMA50: sma50, SMA200: sma200}
	switch {
	case sma50 > sma200 && current > sma200:
		st.Score = 1.0
	case sma50 > sma200:
		st.Score = 0.5
	case current > sma200:
		st.Score = 0.4
	default:
		st.Score = 0.1
	}
	return st, nil
}

// VolAdjustedMomentum computes the 12-1 month return divided by annualized
// realized volatility, floored at 5% vol. Shorter histories fall back to a
// since-inception return; below 60 bars the raw return is used unadjusted.
// Returns (volAdjusted, raw).
func VolAdjustedMomentum(closes []float64) (float64, float64) {
	n := len(closes)

	raw := 0.0
	switch {
	case n >= 252:
		raw = closes[n-21]/closes[n-252] - 1.0
	case n >= 60:
		raw = closes[n-21]/closes[0] - 1.0
	default:
		return 0, 0
	}

	returns := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		if closes[i-1] != 0 {
			returns = append(returns, closes[i]/closes[i-1]-1.0)
		}
	}
	if len(returns) > 252 {
		returns = returns[len(returns)-252:]
	}

	vol := sampleStd(returns) * math.Sqrt(252)
	return raw / math.Max(vol, 0.05), raw
}

// RelativeStrength returns the ratio of the instrument's 12-1 return over the
// benchmark's. The boolean is false when either series is shorter than a
// year. A flat benchmark return yields a neutral ratio of 1.
func RelativeStrength(closes, benchmark []float64) (float64, bool) {
	if len(closes) < 252 || len(benchmark) < 252 {
		return 0, false
	}
	n, bn := len(closes), len(benchmark)
	tickerRet := closes[n-21]/closes[n-252] - 1.0
	benchRet := benchmark[bn-21]/benchmark[bn-252] - 1.0
	if benchRet == 0 {
		return 1.0, true
	}
	return tickerRet / benchRet, true
}

func sampleStd(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	m := mean(values)
	var sq float64
	for _, v := range values {
		d := v - m
		sq += d * d
	}
	return math.Sqrt(sq / float64(n-1))
}
