// Package indicator is the Indicator Kernel (spec §4.1): pure numerical
// functions over candle sequences, free of I/O, deterministic, aligned to
// the input candle index. Ported from the original Rust indicator_math
// crate (indicator_math/src/lib.rs, indicators.rs) into the teacher's
// plain-function Go idiom.
package indicator

import (
	"math"

	"github.com/marketrelay/marketrelay/internal/candle"
)

// MAType selects which moving-average family a period is computed with
// (spec §6.3: "values in {EMA, HMA, EHMA}"; WMA and SMA are kept as the
// kernel's internal building blocks for HMA/EHMA and Bollinger).
type MAType string

const (
	EMAType  MAType = "EMA"
	WMAType  MAType = "WMA"
	HMAType  MAType = "HMA"
	EHMAType MAType = "EHMA"
	SMAType  MAType = "SMA"
)

func closes(candles []candle.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMAValues computes the simple moving average over prices, NaN before
// the window fills.
func SMAValues(prices []float64, period int) []float64 {
	out := nanSlice(len(prices))
	if period <= 0 || len(prices) < period {
		return out
	}
	for i := period - 1; i < len(prices); i++ {
		var sum float64
		for _, p := range prices[i-period+1 : i+1] {
			sum += p
		}
		out[i] = sum / float64(period)
	}
	return out
}

// SMA computes the simple moving average of candle closes.
func SMA(candles []candle.Candle, period int) []float64 {
	return SMAValues(closes(candles), period)
}

// EMAValues computes the exponential moving average: seeded by a simple
// average at index period-1, then the standard recurrence
// EMA[i] = close[i]*k + EMA[i-1]*(1-k), k = 2/(period+1) (spec §4.1, law 1
// in spec §8).
func EMAValues(prices []float64, period int) []float64 {
	out := nanSlice(len(prices))
	if period <= 0 || len(prices) == 0 {
		return out
	}
	k := 2.0 / (float64(period) + 1.0)
	var prev float64
	for i := 0; i < len(prices); i++ {
		switch {
		case i < period-1:
			// buildup phase, left NaN
		case i == period-1:
			var sum float64
			for _, p := range prices[0:period] {
				sum += p
			}
			prev = sum / float64(period)
			out[i] = prev
		default:
			prev = prices[i]*k + prev*(1-k)
			out[i] = prev
		}
	}
	return out
}

// EMA computes the exponential moving average of candle closes.
func EMA(candles []candle.Candle, period int) []float64 {
	return EMAValues(closes(candles), period)
}

// WMAValues computes the linearly-weighted moving average with weights
// period, period-1, ..., 1.
func WMAValues(prices []float64, period int) []float64 {
	out := nanSlice(len(prices))
	if period <= 0 || len(prices) < period {
		return out
	}
	denom := float64(period*(period+1)) / 2.0
	for i := period - 1; i < len(prices); i++ {
		var sum float64
		for j := 0; j < period; j++ {
			sum += prices[i-j] * float64(period-j)
		}
		out[i] = sum / denom
	}
	return out
}

// WMA computes the weighted moving average of candle closes.
func WMA(candles []candle.Candle, period int) []float64 {
	return WMAValues(closes(candles), period)
}

func isqrtRound(period int) int {
	return int(math.Round(math.Sqrt(float64(period))))
}

// HMAValues computes the Hull moving average: WMA(sqrt(period)) applied
// to 2*WMA(period/2) - WMA(period).
func HMAValues(prices []float64, period int) []float64 {
	if period < 2 {
		return nanSlice(len(prices))
	}
	half := period / 2
	w1 := WMAValues(prices, half)
	w2 := WMAValues(prices, period)
	diff := make([]float64, len(prices))
	for i := range diff {
		diff[i] = 2*w1[i] - w2[i]
	}
	return WMAValues(diff, isqrtRound(period))
}

// HMA computes the Hull moving average of candle closes.
func HMA(candles []candle.Candle, period int) []float64 {
	return HMAValues(closes(candles), period)
}

// EHMAValues substitutes EMA for WMA in the Hull construction: EMA of
// (2*EMA(period/2) - EMA(period)) over sqrt(period).
func EHMAValues(prices []float64, period int) []float64 {
	emaFull := EMAValues(prices, period)
	emaHalf := EMAValues(prices, period/2)
	raw := make([]float64, len(prices))
	for i := range raw {
		if math.IsNaN(emaFull[i]) || math.IsNaN(emaHalf[i]) {
			raw[i] = math.NaN()
		} else {
			raw[i] = 2*emaHalf[i] - emaFull[i]
		}
	}
	// Smooth only the defined part of raw so its leading NaNs do not poison
	// the final EMA's seed.
	out := nanSlice(len(prices))
	first := 0
	for first < len(raw) && math.IsNaN(raw[first]) {
		first++
	}
	copy(out[first:], EMAValues(raw[first:], isqrtRound(period)))
	return out
}

// EHMA computes the exponential Hull moving average of candle closes.
func EHMA(candles []candle.Candle, period int) []float64 {
	return EHMAValues(closes(candles), period)
}

// Calculate dispatches to the selected moving-average family.
func Calculate(candles []candle.Candle, period int, t MAType) []float64 {
	switch t {
	case EMAType:
		return EMA(candles, period)
	case WMAType:
		return WMA(candles, period)
	case HMAType:
		return HMA(candles, period)
	case EHMAType:
		return EHMA(candles, period)
	case SMAType:
		return SMA(candles, period)
	default:
		return nanSlice(len(candles))
	}
}
