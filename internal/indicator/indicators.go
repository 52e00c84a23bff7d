package indicator

import (
	"math"

	"github.com/marketrelay/marketrelay/internal/candle"
)

func trueRange(cur, prev candle.Candle, hasPrev bool) float64 {
	if !hasPrev {
		return cur.High - cur.Low
	}
	hl := cur.High - cur.Low
	hc := math.Abs(cur.High - prev.Close)
	lc := math.Abs(cur.Low - prev.Close)
	return math.Max(hl, math.Max(hc, lc))
}

// RSI computes the Relative Strength Index with Wilder smoothing. Values
// before the window fills are NaN (spec §4.1).
func RSI(candles []candle.Candle, period int) []float64 {
	out := nanSlice(len(candles))
	if period <= 0 || len(candles) < period+1 {
		return out
	}

	gains := make([]float64, len(candles)-1)
	losses := make([]float64, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			gains[i-1] = change
		}
		if change < 0 {
			losses[i-1] = -change
		}
	}

	var avgGain, avgLoss float64
	for _, g := range gains[:period] {
		avgGain += g
	}
	for _, l := range losses[:period] {
		avgLoss += l
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	rsiFrom := func(gain, loss float64) float64 {
		var rs float64
		if loss == 0 {
			return 100
		}
		rs = gain / loss
		return 100 - (100 / (1 + rs))
	}
	out[period] = rsiFrom(avgGain, avgLoss)

	for i := period; i < len(gains); i++ {
		avgGain = ((avgGain * (float64(period) - 1)) + gains[i]) / float64(period)
		avgLoss = ((avgLoss * (float64(period) - 1)) + losses[i]) / float64(period)
		out[i+1] = rsiFrom(avgGain, avgLoss)
	}
	return out
}

// ATR computes the Average True Range: a simple average during the
// build-up phase (index < period), Wilder's smoothing afterward.
func ATR(candles []candle.Candle, period int) []float64 {
	if len(candles) == 0 || period <= 0 {
		return nil
	}
	out := make([]float64, len(candles))
	var cur float64
	for i := range candles {
		var tr float64
		if i > 0 {
			tr = trueRange(candles[i], candles[i-1], true)
		} else {
			tr = trueRange(candles[i], candle.Candle{}, false)
		}
		if i < period {
			cur = ((cur * float64(i)) + tr) / float64(i+1)
		} else {
			cur = ((cur * (float64(period) - 1)) + tr) / float64(period)
		}
		out[i] = cur
	}
	return out
}

// BollingerBands holds the upper, middle (SMA), and lower bands.
type BollingerBands struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Bollinger computes population-variance Bollinger Bands with the given
// standard-deviation multiplier (spec default: 2.0).
func Bollinger(candles []candle.Candle, period int, multiplier float64) BollingerBands {
	n := len(candles)
	bb := BollingerBands{Upper: nanSlice(n), Middle: nanSlice(n), Lower: nanSlice(n)}
	if n < period || period <= 0 {
		return bb
	}
	closes := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
	}
	for i := period - 1; i < n; i++ {
		start := i - period + 1
		avg, std := MeanAndPopStdDev(closes[start : i+1])
		bb.Upper[i] = avg + multiplier*std
		bb.Middle[i] = avg
		bb.Lower[i] = avg - multiplier*std
	}
	return bb
}

// ChoppinessIndex computes the Choppiness Index (0-100): high values mark a
// ranging market, low values a trending one.
func ChoppinessIndex(candles []candle.Candle, period int) []float64 {
	n := len(candles)
	out := nanSlice(n)
	if n < period || period <= 0 {
		return out
	}
	atrVals := ATR(candles, period)
	logPeriod := math.Log10(float64(period))
	for i := period - 1; i < n; i++ {
		start := i - period + 1
		highest, lowest := math.Inf(-1), math.Inf(1)
		for _, c := range candles[start : i+1] {
			if c.High > highest {
				highest = c.High
			}
			if c.Low < lowest {
				lowest = c.Low
			}
		}
		var sumATR float64
		for _, v := range atrVals[start : i+1] {
			sumATR += v
		}
		rng := highest - lowest
		if rng > 0 {
			out[i] = 100 * math.Log10(sumATR/rng) / logPeriod
		} else {
			out[i] = 0
		}
	}
	return out
}

// ADXResult holds the ADX line and its directional-movement components.
type ADXResult struct {
	ADX     []float64
	PlusDI  []float64
	MinusDI []float64
}

// ADX computes the Average Directional Index with Wilder-smoothed +DM/-DM/TR
// sums. Needs at least 2*period candles to produce any value; below that,
// every output is 0 (matching the original implementation's short-buffer
// fallback, not NaN).
func ADX(candles []candle.Candle, period int) ADXResult {
	n := len(candles)
	if n < period*2 || period <= 0 {
		return ADXResult{ADX: make([]float64, n), PlusDI: make([]float64, n), MinusDI: make([]float64, n)}
	}

	adxOut := nanSlice(n)
	plusOut := nanSlice(n)
	minusOut := nanSlice(n)

	var trSum, pdmSum, mdmSum float64
	var dxValues []float64

	for i := 1; i < n; i++ {
		upMove := candles[i].High - candles[i-1].High
		downMove := candles[i-1].Low - candles[i].Low

		var pdm, mdm float64
		if upMove > downMove && upMove > 0 {
			pdm = upMove
		}
		if downMove > upMove && downMove > 0 {
			mdm = downMove
		}
		tr := trueRange(candles[i], candles[i-1], true)

		if i <= period {
			trSum += tr
			pdmSum += pdm
			mdmSum += mdm
		} else {
			trSum = trSum - (trSum / float64(period)) + tr
			pdmSum = pdmSum - (pdmSum / float64(period)) + pdm
			mdmSum = mdmSum - (mdmSum / float64(period)) + mdm
		}

		if i >= period {
			var diPlus, diMinus float64
			if trSum != 0 {
				diPlus = (pdmSum / trSum) * 100
				diMinus = (mdmSum / trSum) * 100
			}
			plusOut[i] = diPlus
			minusOut[i] = diMinus

			var dx float64
			if diPlus+diMinus != 0 {
				dx = (math.Abs(diPlus-diMinus) / (diPlus + diMinus)) * 100
			}
			dxValues = append(dxValues, dx)
		}
	}

	var adxVal float64
	for j, dx := range dxValues {
		if j < period {
			adxVal += dx / float64(period)
		} else {
			adxVal = ((adxVal * (float64(period) - 1)) + dx) / float64(period)
		}
		if j >= period {
			candleIdx := period + j
			if candleIdx < n {
				adxOut[candleIdx] = adxVal
			}
		}
	}

	return ADXResult{ADX: adxOut, PlusDI: plusOut, MinusDI: minusOut}
}
