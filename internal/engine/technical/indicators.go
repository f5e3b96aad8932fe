// Package technical implements the pure indicator math used by the scoring
// engine. Functions take chronologically ordered slices (oldest first) and
// perform no I/O.
package technical

import (
	"fmt"
	"math"

	"threshold-engine/internal/engine/model"
)

// Crossover states reported by MACD.
const (
	CrossoverBullish = "bullish"
	CrossoverBearish = "bearish"
	CrossoverNeutral = "neutral"
)

// Trend states reported by OBV divergence.
const (
	TrendRising  = "rising"
	TrendFalling = "falling"
	TrendFlat    = "flat"
)

// Divergence states reported by OBV divergence.
const (
	DivergenceBullish = "bullish"
	DivergenceBearish = "bearish"
	DivergenceNone    = "none"
)

// RSISeries computes Wilder RSI over the close series. The first period
// deltas seed a simple average, then Wilder smoothing takes over. The result
// has len(closes)-period entries, aligned so the last entry corresponds to
// the last close.
func RSISeries(closes []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, model.NewConfigError("rsi.period", "must be positive, got %d", period)
	}
	if len(closes) < period+1 {
		return nil, fmt.Errorf("%w: rsi needs %d closes, got %d", model.ErrInsufficientData, period+1, len(closes))
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss += -delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	out := make([]float64, 0, len(closes)-period)
	out = append(out, rsiFromAverages(avgGain, avgLoss))

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out = append(out, rsiFromAverages(avgGain, avgLoss))
	}
	return out, nil
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// RSIValue returns the most recent Wilder RSI value.
func RSIValue(closes []float64, period int) (float64, error) {
	series, err := RSISeries(closes, period)
	if err != nil {
		return 0, err
	}
	return series[len(series)-1], nil
}

// EMASeries computes an exponential moving average with alpha = 2/(span+1),
// seeded from the first value. Result has the same length as the input.
func EMASeries(values []float64, span int) []float64 {
	if len(values) == 0 {
		return nil
	}
	alpha := 2.0 / (float64(span) + 1.0)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// SMA returns the simple moving average of the trailing period values.
func SMA(values []float64, period int) (float64, error) {
	if len(values) < period {
		return 0, fmt.Errorf("%w: sma needs %d values, got %d", model.ErrInsufficientData, period, len(values))
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period), nil
}

// StdDev returns the sample standard deviation of the trailing period values.
func StdDev(values []float64, period int) (float64, error) {
	if len(values) < period || period < 2 {
		return 0, fmt.Errorf("%w: stddev needs %d values, got %d", model.ErrInsufficientData, period, len(values))
	}
	window := values[len(values)-period:]
	mean := 0.0
	for _, v := range window {
		mean += v
	}
	mean /= float64(period)
	var sq float64
	for _, v := range window {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(period-1)), nil
}

// MACDState is the current MACD reading and its signal flags.
type MACDState struct {
	MACD       float64
	Signal     float64
	Histogram  float64
	Crossover  string
	HistRising bool
	BelowZero  bool
}

// MACD computes the MACD line, signal line and histogram, plus the crossover
// state between the last two bars. Needs at least slow+signalSpan closes.
func MACD(closes []float64, fast, slow, signalSpan int) (MACDState, error) {
	if len(closes) < slow+signalSpan {
		return MACDState{}, fmt.Errorf("%w: macd needs %d closes, got %d",
			model.ErrInsufficientData, slow+signalSpan, len(closes))
	}

	emaFast := EMASeries(closes, fast)
	emaSlow := EMASeries(closes, slow)
	macdLine := make([]float64, len(closes))
	for i := range closes {
		macdLine[i] = emaFast[i] - emaSlow[i]
	}
	signalLine := EMASeries(macdLine, signalSpan)

	last := len(closes) - 1
	histNow := macdLine[last] - signalLine[last]
	histPrev := macdLine[last-1] - signalLine[last-1]

	crossover := CrossoverNeutral
	if histPrev <= 0 && histNow > 0 {
		crossover = CrossoverBullish
	} else if histPrev >= 0 && histNow < 0 {
		crossover = CrossoverBearish
	}

	return MACDState{
		MACD:       macdLine[last],
		Signal:     signalLine[last],
		Histogram:  histNow,
		Crossover:  crossover,
		HistRising: histNow > histPrev,
		BelowZero:  macdLine[last] < 0,
	}, nil
}

// OBVDivergence describes the relationship between the price trend and the
// On-Balance Volume trend over the lookback window.
type OBVDivergence struct {
	OBVTrend   string
	PriceTrend string
	Divergence string
	Strength   float64
}

// OBVDivergenceScan computes On-Balance Volume and compares its regression
// slope against the price slope over the lookback window. A bullish
// divergence is price falling while OBV rises. Needs lookback+5 bars.
func OBVDivergenceScan(closes, volumes []float64, lookback int) (OBVDivergence, error) {
	n := len(closes)
	if len(volumes) < n {
		n = len(volumes)
	}
	if n < lookback+5 {
		return OBVDivergence{}, fmt.Errorf("%w: obv divergence needs %d bars, got %d",
			model.ErrInsufficientData, lookback+5, n)
	}

	obv := make([]float64, n)
	for i := 1; i < n; i++ {
		switch {
		case closes[i] > closes[i-1]:
			obv[i] = obv[i-1] + volumes[i]
		case closes[i] < closes[i-1]:
			obv[i] = obv[i-1] - volumes[i]
		default:
			obv[i] = obv[i-1]
		}
	}

	recentClose := closes[n-lookback : n]
	recentOBV := obv[n-lookback : n]

	priceNorm := RegressionSlope(recentClose) / (mean(recentClose) + 1e-10)
	obvNorm := RegressionSlope(recentOBV) / (math.Abs(mean(recentOBV)) + 1e-10)

	res := OBVDivergence{
		PriceTrend: classifyTrend(priceNorm),
		OBVTrend:   classifyTrend(obvNorm),
		Divergence: DivergenceNone,
	}
	if res.PriceTrend == TrendFalling && res.OBVTrend == TrendRising {
		res.Divergence = DivergenceBullish
		res.Strength = math.Min(1.0, math.Abs(obvNorm)*100)
	} else if res.PriceTrend == TrendRising && res.OBVTrend == TrendFalling {
		res.Divergence = DivergenceBearish
		res.Strength = math.Min(1.0, math.Abs(obvNorm)*100)
	}
	return res, nil
}

func classifyTrend(normSlope float64) string {
	switch {
	case normSlope > 0.001:
		return TrendRising
	case normSlope < -0.001:
		return TrendFalling
	default:
		return TrendFlat
	}
}

// RegressionSlope returns the least-squares slope of values against their
// indices 0..n-1.
func RegressionSlope(values []float64) float64 {
	n := float64(len(values))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// BollingerState is the current Bollinger Band reading (20d, 2 sigma).
type BollingerState struct {
	PctB        float64
	Lower       float64
	Upper       float64
	LowerBreach bool
}

// Bollinger computes the band position of the last close. When the rolling
// standard deviation is zero the position is reported as the 0.5 midpoint.
func Bollinger(closes []float64, period int, mult float64) (BollingerState, error) {
	if len(closes) < period {
		return BollingerState{}, fmt.Errorf("%w: bollinger needs %d closes, got %d",
			model.ErrInsufficientData, period, len(closes))
	}
	current := closes[len(closes)-1]
	ma, err := SMA(closes, period)
	if err != nil {
		return BollingerState{}, err
	}
	sd, err := StdDev(closes, period)
	if err != nil {
		return BollingerState{}, err
	}
	if sd <= 0 {
		return BollingerState{PctB: 0.5, Lower: ma, Upper: ma}, nil
	}
	lower := ma - mult*sd
	upper := ma + mult*sd
	return BollingerState{
		PctB:        (current - lower) / (upper - lower),
		Lower:       lower,
		Upper:       upper,
		LowerBreach: current < lower,
	}, nil
}

// RSIDivergenceState reports an RSI bullish divergence over two half-windows.
type RSIDivergenceState struct {
	Detected       bool
	PriceLowRecent float64
	RSILowRecent   float64
}

// RSIBullishDivergence detects price making a lower low across the two
// halves of the lookback window while RSI makes a higher low.
func RSIBullishDivergence(closes []float64, rsiPeriod, lookback int) (RSIDivergenceState, error) {
	if len(closes) < lookback+rsiPeriod+1 {
		return RSIDivergenceState{}, fmt.Errorf("%w: rsi divergence needs %d closes, got %d",
			model.ErrInsufficientData, lookback+rsiPeriod+1, len(closes))
	}
	rsi, err := RSISeries(closes, rsiPeriod)
	if err != nil {
		return RSIDivergenceState{}, err
	}
	if len(rsi) < lookback {
		return RSIDivergenceState{}, fmt.Errorf("%w: rsi divergence needs %d rsi values, got %d",
			model.ErrInsufficientData, lookback, len(rsi))
	}

	half := lookback / 2
	priceLow1 := minOf(closes[len(closes)-lookback : len(closes)-half])
	priceLow2 := minOf(closes[len(closes)-half:])
	rsiLow1 := minOf(rsi[len(rsi)-lookback : len(rsi)-half])
	rsiLow2 := minOf(rsi[len(rsi)-half:])

	return RSIDivergenceState{
		Detected:       priceLow2 < priceLow1 && rsiLow2 > rsiLow1,
		PriceLowRecent: priceLow2,
		RSILowRecent:   rsiLow2,
	}, nil
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// ConsecutiveDaysBelowSMA counts trading days, ending at the last bar, where
// the close sits more than |threshold| below the trailing SMA. Returns the
// streak length and the current percent distance from the SMA.
func ConsecutiveDaysBelowSMA(closes []float64, smaPeriod int, threshold float64) (int, float64, error) {
	if len(closes) < smaPeriod {
		return 0, 0, fmt.Errorf("%w: sma breach needs %d closes, got %d",
			model.ErrInsufficientData, smaPeriod, len(closes))
	}

	count := 0
	currentPct := 0.0
	for i := len(closes) - 1; i >= smaPeriod-1; i-- {
		ma, err := SMA(closes[:i+1], smaPeriod)
		if err != nil || ma == 0 {
			break
		}
		pct := (closes[i] - ma) / ma
		if i == len(closes)-1 {
			currentPct = pct
		}
		if pct < threshold {
			count++
		} else {
			break
		}
	}
	return count, currentPct, nil
}

// PriceAcceleration scores the 8-week return plus week-over-week return
// acceleration. Returns the blended score in [0,1] and the raw 8-week return.
func PriceAcceleration(closes []float64) (float64, float64, error) {
	n := len(closes)
	if n < 41 {
		return 0, 0, fmt.Errorf("%w: price acceleration needs 41 closes, got %d",
			model.ErrInsufficientData, n)
	}

	ret8w := closes[n-1]/closes[n-41] - 1.0

	var weekly []float64
	for i := 7; i >= 0; i-- {
		endIdx := n - 1 - i*5
		startIdx := n - 1 - (i+1)*5
		if startIdx < 0 {
			continue
		}
		weekly = append(weekly, closes[endIdx]/closes[startIdx]-1.0)
	}

	accel := 0.0
	if len(weekly) >= 4 {
		firstHalf := mean(weekly[:4])
		secondHalf := firstHalf
		if len(weekly) > 4 {
			secondHalf = mean(weekly[4:])
		}
		accel = secondHalf - firstHalf
	}

	var retScore float64
	switch {
	case ret8w < 0.15:
		retScore = 0.0
	case ret8w < 0.30:
		retScore = (ret8w - 0.15) / 0.15 * 0.5
	case ret8w < 0.50:
		retScore = 0.5 + (ret8w-0.30)/0.20*0.3
	default:
		retScore = math.Min(1.0, 0.8+(ret8w-0.50)/0.30*0.2)
	}
	accelScore := Clamp01(accel / 0.03)

	return retScore*0.60 + accelScore*0.40, ret8w, nil
}

// Clamp01 clamps v to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
