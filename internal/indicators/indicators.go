// Package indicators provides slice-based technical indicator kernels used
// by the trading strategies. Every function returns a slice aligned to the
// input length, with math.NaN() marking rows that lack enough history for
// the indicator to be defined.
package indicators

import "math"

// SMA computes a simple moving average over the trailing period. Rows before
// index period-1 are NaN.
func SMA(x []float64, period int) []float64 {
	if period <= 0 {
		return nil
	}
	out := make([]float64, len(x))
	var sum float64
	for i := range x {
		sum += x[i]
		if i >= period {
			sum -= x[i-period]
		}
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(period)
	}
	return out
}

// RollingMean computes a trailing mean over at most window values, emitting a
// value as soon as minPeriods observations are available. With minPeriods=1
// the first row is already defined (the value itself).
func RollingMean(x []float64, window, minPeriods int) []float64 {
	if window <= 0 {
		return nil
	}
	if minPeriods < 1 {
		minPeriods = 1
	}
	out := make([]float64, len(x))
	var sum float64
	for i := range x {
		sum += x[i]
		if i >= window {
			sum -= x[i-window]
		}
		n := i + 1
		if n > window {
			n = window
		}
		if n < minPeriods {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(n)
	}
	return out
}

// EMA computes an exponential moving average seeded with the SMA of the
// first period values. Leading NaNs in the input are skipped, so EMA can be
// chained on the output of another indicator.
func EMA(x []float64, period int) []float64 {
	if period <= 0 {
		return nil
	}
	out := make([]float64, len(x))
	for i := range out {
		out[i] = math.NaN()
	}

	first := firstValid(x)
	if first < 0 || first+period > len(x) {
		return out
	}

	// Seed with the SMA of the first full window.
	var sum float64
	for i := first; i < first+period; i++ {
		sum += x[i]
	}
	seed := first + period - 1
	out[seed] = sum / float64(period)

	k := 2.0 / (float64(period) + 1.0)
	for i := seed + 1; i < len(x); i++ {
		out[i] = x[i]*k + out[i-1]*(1.0-k)
	}
	return out
}

// RSI computes the relative strength index with Wilder's smoothing. The
// first period rows are NaN. With zero average losses RSI is 100; a fully
// flat window (no gains either) reads as neutral 50.
func RSI(x []float64, period int) []float64 {
	out := make([]float64, len(x))
	for i := range out {
		out[i] = math.NaN()
	}
	if period <= 0 || len(x) <= period {
		return out
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := x[i] - x[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(x); i++ {
		d := x[i] - x[i-1]
		var g, l float64
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACD computes the MACD line (fast EMA minus slow EMA) and its signal line
// (EMA of the MACD line). Rows where either side is undefined are NaN.
func MACD(x []float64, fast, slow, signal int) (macdLine, signalLine []float64) {
	emaFast := EMA(x, fast)
	emaSlow := EMA(x, slow)

	macdLine = make([]float64, len(x))
	for i := range x {
		macdLine[i] = emaFast[i] - emaSlow[i] // NaN propagates
	}
	signalLine = EMA(macdLine, signal)
	return macdLine, signalLine
}

// Valid reports whether v is a defined indicator value.
func Valid(v float64) bool {
	return !math.IsNaN(v)
}

func firstValid(x []float64) int {
	for i, v := range x {
		if !math.IsNaN(v) {
			return i
		}
	}
	return -1
}
