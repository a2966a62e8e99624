// Package indicators computes technical indicators over a candle series.
//
// Series functions return one value per input with NaN during warm-up.
// Smoothing follows the usual charting conventions: EMAs are seeded with the
// first observation (no SMA seed), RSI uses Wilder smoothing (alpha = 1/n) and
// Bollinger bands use the population standard deviation.
package indicators

import "math"

// SMA is the simple moving average over n values.
func SMA(values []float64, n int) []float64 {
	out := nanSlice(len(values))
	if n <= 0 {
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		if i >= n {
			sum -= values[i-n]
		}
		if i >= n-1 {
			out[i] = sum / float64(n)
		}
	}
	return out
}

// EMA is the exponential moving average with span n. Leading NaNs are
// skipped; the first n observations after them are warm-up.
func EMA(values []float64, n int) []float64 {
	return ewm(values, 2/(float64(n)+1), n)
}

// ewm is an exponentially weighted mean seeded with the first non-NaN value.
func ewm(values []float64, alpha float64, minPeriods int) []float64 {
	out := nanSlice(len(values))
	if minPeriods <= 0 {
		return out
	}
	var (
		avg  float64
		seen int
	)
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if seen == 0 {
			avg = v
		} else {
			avg = (1-alpha)*avg + alpha*v
		}
		seen++
		if seen >= minPeriods {
			out[i] = avg
		}
	}
	return out
}

// RSI is the relative strength index over n periods, 0..100.
func RSI(values []float64, n int) []float64 {
	if len(values) == 0 || n <= 0 {
		return nanSlice(len(values))
	}
	up := make([]float64, len(values))
	down := make([]float64, len(values))
	for i := 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		if d > 0 {
			up[i] = d
		} else {
			down[i] = -d
		}
	}
	alpha := 1 / float64(n)
	avgUp := ewm(up, alpha, n)
	avgDown := ewm(down, alpha, n)

	out := nanSlice(len(values))
	for i := range values {
		switch {
		case math.IsNaN(avgUp[i]) || math.IsNaN(avgDown[i]):
		case avgDown[i] == 0:
			out[i] = 100
		default:
			out[i] = 100 - 100/(1+avgUp[i]/avgDown[i])
		}
	}
	return out
}

// MACD returns the MACD line, its signal line and the histogram.
func MACD(values []float64, fast, slow, signal int) (line, sig, hist []float64) {
	f := EMA(values, fast)
	s := EMA(values, slow)
	line = make([]float64, len(values))
	for i := range values {
		line[i] = f[i] - s[i]
	}
	sig = EMA(line, signal)
	hist = make([]float64, len(values))
	for i := range values {
		hist[i] = line[i] - sig[i]
	}
	return line, sig, hist
}

// Bollinger returns bands k standard deviations around the n-period SMA.
func Bollinger(values []float64, n int, k float64) (upper, middle, lower []float64) {
	middle = SMA(values, n)
	upper = nanSlice(len(values))
	lower = nanSlice(len(values))
	for i := range values {
		if math.IsNaN(middle[i]) {
			continue
		}
		var sq float64
		for _, v := range values[i-n+1 : i+1] {
			d := v - middle[i]
			sq += d * d
		}
		sd := math.Sqrt(sq / float64(n))
		upper[i] = middle[i] + k*sd
		lower[i] = middle[i] - k*sd
	}
	return upper, middle, lower
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
