package analysis

import (
	"fmt"
	"math"

	"github.com/marketrelay/marketrelay/internal/candle"
	"github.com/marketrelay/marketrelay/internal/indicator"
	"github.com/marketrelay/marketrelay/internal/utils/numeric"
)

// BBPosition classifies where a close sits inside the Bollinger band.
type BBPosition string

const (
	NearUpper BBPosition = "NearUpper"
	Middle    BBPosition = "Middle"
	NearLower BBPosition = "NearLower"
	Unknown   BBPosition = "Unknown"
)

// FullAnalysis is the per-candle record emitted by Generate (spec §3.1,
// §4.2). Optional numeric fields are nil before their indicator's window
// fills; optional string/int fields are nil when the underlying condition
// has no value yet (e.g. before any EMA cross has occurred).
type FullAnalysis struct {
	Index      int     `json:"index"`
	CandleTime int64   `json:"candleTime"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`

	Color     candle.Color `json:"color"`
	NextColor *string      `json:"nextColor,omitempty"`
	PipSize   float64      `json:"pipSize"`

	EMAShortValue     *float64 `json:"emaShortValue,omitempty"`
	EMAShortDirection string   `json:"emaShortDirection"`
	EMAShortTurnType  string   `json:"emaShortTurnType"`

	EMAMediumValue     *float64 `json:"emaMediumValue,omitempty"`
	EMAMediumDirection string   `json:"emaMediumDirection"`

	EMALongValue     *float64 `json:"emaLongValue,omitempty"`
	EMALongDirection string   `json:"emaLongDirection"`

	EMAAbove     *string `json:"emaAbove,omitempty"`
	EMALongAbove *string `json:"emaLongAbove,omitempty"`

	MACD12 *float64 `json:"macd12,omitempty"`
	MACD23 *float64 `json:"macd23,omitempty"`

	PreviousEMAShortValue  *float64 `json:"previousEmaShortValue,omitempty"`
	PreviousEMAMediumValue *float64 `json:"previousEmaMediumValue,omitempty"`
	PreviousEMALongValue   *float64 `json:"previousEmaLongValue,omitempty"`
	PreviousMACD12         *float64 `json:"previousMacd12,omitempty"`
	PreviousMACD23         *float64 `json:"previousMacd23,omitempty"`

	EMAConvergenceType     *string `json:"emaConvergenceType,omitempty"`
	EMALongConvergenceType *string `json:"emaLongConvergenceType,omitempty"`

	ChoppyIndicator *float64 `json:"choppyIndicator,omitempty"`
	ADXValue        *float64 `json:"adxValue,omitempty"`
	RSIValue        *float64 `json:"rsiValue,omitempty"`

	BBUpper    *float64   `json:"bbUpper,omitempty"`
	BBMiddle   *float64   `json:"bbMiddle,omitempty"`
	BBLower    *float64   `json:"bbLower,omitempty"`
	BBPosition BBPosition `json:"bbPosition"`

	ATR             *float64 `json:"atr,omitempty"`
	IsAbnormalCandle bool    `json:"isAbnormalCandle"`
	IsAbnormalATR    bool    `json:"isAbnormalAtr"`

	UpperWick        float64 `json:"upperWick"`
	UpperWickPercent float64 `json:"upperWickPercent"`
	Body             float64 `json:"body"`
	BodyPercent      float64 `json:"bodyPercent"`
	LowerWick        float64 `json:"lowerWick"`
	LowerWickPercent float64 `json:"lowerWickPercent"`

	EMACutPosition     *string `json:"emaCutPosition,omitempty"`
	EMACutLongType     *string `json:"emaCutLongType,omitempty"`
	CandlesSinceEMACut *int    `json:"candlesSinceEmaCut,omitempty"`

	UpConMediumEMA   int `json:"upConMediumEma"`
	DownConMediumEMA int `json:"downConMediumEma"`
	UpConLongEMA     int `json:"upConLongEma"`
	DownConLongEMA   int `json:"downConLongEma"`

	StatusDesc string  `json:"statusDesc"`
	StatusCode *uint32 `json:"statusCode,omitempty"`
}

func fval(values []float64, i int) *float64 {
	if i < 0 || i >= len(values) {
		return nil
	}
	v := values[i]
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func directionOf(prev, curr *float64, flatThreshold float64) string {
	if prev == nil || curr == nil {
		return "Flat"
	}
	diff := *prev - *curr
	switch {
	case math.Abs(diff) <= flatThreshold:
		return "Flat"
	case *prev < *curr:
		return "Up"
	default:
		return "Down"
	}
}

// macdConvergence applies the 'N' narrow override ahead of the
// divergence/convergence comparison: a current |macd23| at or below
// macdNarrow always reports "N", regardless of its trend relative to the
// previous value.
func macdConvergence(prevMACD, currMACD *float64, macdNarrow float64) *string {
	if prevMACD == nil || currMACD == nil {
		return nil
	}
	var s string
	switch {
	case *currMACD <= macdNarrow:
		s = "N"
	case *currMACD > *prevMACD:
		s = "D"
	case *currMACD < *prevMACD:
		s = "C"
	default:
		return nil
	}
	return &s
}

func abs(v *float64) *float64 {
	if v == nil {
		return nil
	}
	d := math.Abs(*v)
	return &d
}

func sub(a, b *float64) *float64 {
	if a == nil || b == nil {
		return nil
	}
	d := *a - *b
	return &d
}

func strPtr(s string) *string { return &s }

// assembleStatusDesc builds the "{emaLongAbove}-{emaMediumDir}{emaLongDir}-{color}-{convergence}"
// StatusDesc string (spec §4.2), taking the first character of each
// component and '-' for anything missing.
func assembleStatusDesc(emaLongAbove, emaMediumDir, emaLongDir string, color candle.Color, convergence *string) string {
	firstOr := func(s string) string {
		if s == "" {
			return "-"
		}
		return s[:1]
	}
	convergenceChar := "-"
	if convergence != nil && *convergence != "" {
		convergenceChar = *convergence
	}
	return fmt.Sprintf("%s-%s%s-%s-%s",
		firstOr(emaLongAbove), firstOr(emaMediumDir), firstOr(emaLongDir), firstOr(string(color)), convergenceChar)
}

func emaCutPosition(c candle.Candle, emaValue *float64) *string {
	if emaValue == nil {
		return nil
	}
	v := *emaValue
	bodyTop := math.Max(c.Open, c.Close)
	bodyBottom := math.Min(c.Open, c.Close)

	switch {
	case v > c.High:
		return strPtr("1")
	case v >= bodyTop && v <= c.High:
		return strPtr("2")
	case v >= bodyBottom && v < bodyTop:
		bodyRange := bodyTop - bodyBottom
		if bodyRange <= 0 {
			return strPtr("B2")
		}
		pos := (v - bodyBottom) / bodyRange
		switch {
		case pos >= 0.66:
			return strPtr("B1")
		case pos >= 0.33:
			return strPtr("B2")
		default:
			return strPtr("B3")
		}
	case v >= c.Low && v < bodyBottom:
		return strPtr("3")
	case v < c.Low:
		return strPtr("4")
	default:
		return nil
	}
}

func round(v *float64, places int) *float64 {
	if v == nil {
		return nil
	}
	r := numeric.RoundFloat(*v, places)
	return &r
}

// Generate runs the Analysis Generator over the full candle window and
// returns one FullAnalysis per candle, oldest first (spec §4.2). The
// classifier still needs to fill in StatusCode from the StatusDesc lookup
// table; Generate only assembles StatusDesc.
func Generate(candles []candle.Candle, opt Options) []FullAnalysis {
	if len(candles) == 0 {
		return nil
	}

	ema1 := indicator.Calculate(candles, opt.EMAShortPeriod, opt.EMAShortType)
	ema2 := indicator.Calculate(candles, opt.EMAMediumPeriod, opt.EMAMediumType)
	ema3 := indicator.Calculate(candles, opt.EMALongPeriod, opt.EMALongType)
	atrVals := indicator.ATR(candles, opt.ATRPeriod)
	ciVals := indicator.ChoppinessIndex(candles, opt.CIPeriod)
	adxResult := indicator.ADX(candles, opt.ADXPeriod)
	rsiVals := indicator.RSI(candles, opt.RSIPeriod)
	bb := indicator.Bollinger(candles, opt.BBPeriod, 2.0)

	out := make([]FullAnalysis, len(candles))

	var lastEMACutIndex *int
	var upConMedium, downConMedium, upConLong, downConLong int

	for i, c := range candles {
		var prevCandle *candle.Candle
		if i > 0 {
			prevCandle = &candles[i-1]
		}

		color := c.Color()

		emaShort := fval(ema1, i)
		emaMedium := fval(ema2, i)
		emaLong := fval(ema3, i)

		var prevEMAShort, prevEMAMedium, prevEMALong *float64
		if i > 0 {
			prevEMAShort = fval(ema1, i-1)
			prevEMAMedium = fval(ema2, i-1)
			prevEMALong = fval(ema3, i-1)
		}

		emaShortDir := directionOf(prevEMAShort, emaShort, opt.FlatThreshold)
		emaMediumDir := directionOf(prevEMAMedium, emaMedium, opt.FlatThreshold)
		emaLongDir := directionOf(prevEMALong, emaLong, opt.FlatThreshold)

		switch emaMediumDir {
		case "Up":
			upConMedium++
			downConMedium = 0
		case "Down":
			downConMedium++
			upConMedium = 0
		}
		switch emaLongDir {
		case "Up":
			upConLong++
			downConLong = 0
		case "Down":
			downConLong++
			upConLong = 0
		}

		emaShortTurnType := "-"
		if i >= 2 {
			v2, v1, v0 := fval(ema1, i-2), prevEMAShort, emaShort
			if v2 != nil && v1 != nil && v0 != nil {
				prevDiff := *v1 - *v2
				currDiff := *v0 - *v1
				dir := func(d float64) string {
					switch {
					case d > 0.0001:
						return "Up"
					case d < -0.0001:
						return "Down"
					default:
						return "Flat"
					}
				}
				prevDir, currDir := dir(prevDiff), dir(currDiff)
				switch {
				case currDir == "Up" && prevDir == "Down":
					emaShortTurnType = "TurnUp"
				case currDir == "Down" && prevDir == "Up":
					emaShortTurnType = "TurnDown"
				}
			}
		}

		var emaAbove, emaLongAbove *string
		if emaShort != nil && emaMedium != nil {
			if *emaShort > *emaMedium {
				emaAbove = strPtr("ShortAbove")
			} else {
				emaAbove = strPtr("MediumAbove")
			}
		}
		if emaMedium != nil && emaLong != nil {
			if *emaMedium > *emaLong {
				emaLongAbove = strPtr("MediumAbove")
			} else {
				emaLongAbove = strPtr("LongAbove")
			}
		}

		macd12 := abs(sub(emaShort, emaMedium))
		macd23 := abs(sub(emaMedium, emaLong))
		prevMACD12 := abs(sub(prevEMAShort, prevEMAMedium))
		prevMACD23 := abs(sub(prevEMAMedium, prevEMALong))

		var emaConvergenceType *string
		if macd12 != nil && prevMACD12 != nil {
			switch {
			case *macd12 > *prevMACD12:
				emaConvergenceType = strPtr("divergence")
			case *macd12 < *prevMACD12:
				emaConvergenceType = strPtr("convergence")
			default:
				emaConvergenceType = strPtr("neutral")
			}
		}
		emaLongConvergenceType := macdConvergence(prevMACD23, macd23, opt.MACDNarrow)

		var emaCutLongType *string
		if i > 0 && emaLong != nil && emaMedium != nil && prevEMALong != nil && prevEMAMedium != nil {
			currMediumAbove := *emaMedium > *emaLong
			prevMediumAbove := *prevEMAMedium > *prevEMALong
			if currMediumAbove != prevMediumAbove {
				if currMediumAbove {
					emaCutLongType = strPtr("UpTrend")
				} else {
					emaCutLongType = strPtr("DownTrend")
				}
			}
		}
		if emaCutLongType != nil {
			idx := i
			lastEMACutIndex = &idx
		}
		var candlesSinceCut *int
		if lastEMACutIndex != nil {
			d := i - *lastEMACutIndex
			candlesSinceCut = &d
		}

		ciValue := fval(ciVals, i)
		adxValue := fval(adxResult.ADX, i)
		rsiValue := fval(rsiVals, i)

		bbUpper := fval(bb.Upper, i)
		bbMiddle := fval(bb.Middle, i)
		bbLower := fval(bb.Lower, i)

		bbPosition := Unknown
		if bbUpper != nil && bbLower != nil {
			bbRange := *bbUpper - *bbLower
			upperZone := *bbUpper - bbRange*0.33
			lowerZone := *bbLower + bbRange*0.33
			switch {
			case c.Close >= upperZone:
				bbPosition = NearUpper
			case c.Close <= lowerZone:
				bbPosition = NearLower
			default:
				bbPosition = Middle
			}
		}

		atrValue := fval(atrVals, i)

		var isAbnormalCandle bool
		if atrValue != nil && prevCandle != nil {
			hl := c.High - c.Low
			hc := math.Abs(c.High - prevCandle.Close)
			lc := math.Abs(c.Low - prevCandle.Close)
			tr := math.Max(hl, math.Max(hc, lc))
			isAbnormalCandle = tr > (*atrValue * opt.ATRMultiplier)
		}

		var isAbnormalATR bool
		if atrValue != nil && *atrValue > 0 {
			bodySize := math.Abs(c.Close - c.Open)
			fullCandleSize := c.High - c.Low
			isAbnormalATR = bodySize > *atrValue*opt.ATRMultiplier ||
				fullCandleSize > *atrValue*opt.ATRMultiplier*1.5
		}

		bodyTop := math.Max(c.Open, c.Close)
		bodyBottom := math.Min(c.Open, c.Close)
		upperWick := c.High - bodyTop
		body := math.Abs(c.Close - c.Open)
		lowerWick := bodyBottom - c.Low
		fullCandleSize := c.High - c.Low

		var bodyPct, upperWickPct, lowerWickPct float64
		if fullCandleSize > 0 {
			bodyPct = (body / fullCandleSize) * 100
			upperWickPct = (upperWick / fullCandleSize) * 100
			lowerWickPct = (lowerWick / fullCandleSize) * 100
		}

		cutPosition := emaCutPosition(c, emaShort)

		emaLongAboveStr := "-"
		if emaLongAbove != nil {
			emaLongAboveStr = *emaLongAbove
		}
		statusDesc := assembleStatusDesc(emaLongAboveStr, emaMediumDir, emaLongDir, color, emaLongConvergenceType)

		out[i] = FullAnalysis{
			Index:      i,
			CandleTime: c.Time,
			Open:       c.Open,
			High:       c.High,
			Low:        c.Low,
			Close:      c.Close,

			Color:   color,
			PipSize: body,

			EMAShortValue:     round(emaShort, 5),
			EMAShortDirection: emaShortDir,
			EMAShortTurnType:  emaShortTurnType,

			EMAMediumValue:     round(emaMedium, 5),
			EMAMediumDirection: emaMediumDir,

			EMALongValue:     round(emaLong, 5),
			EMALongDirection: emaLongDir,

			EMAAbove:     emaAbove,
			EMALongAbove: emaLongAbove,

			MACD12: round(macd12, 5),
			MACD23: round(macd23, 5),

			PreviousEMAShortValue:  round(prevEMAShort, 5),
			PreviousEMAMediumValue: round(prevEMAMedium, 5),
			PreviousEMALongValue:   round(prevEMALong, 5),
			PreviousMACD12:         round(prevMACD12, 5),
			PreviousMACD23:         round(prevMACD23, 5),

			EMAConvergenceType:     emaConvergenceType,
			EMALongConvergenceType: emaLongConvergenceType,

			ChoppyIndicator: round(ciValue, 2),
			ADXValue:        round(adxValue, 2),
			RSIValue:        round(rsiValue, 2),

			BBUpper:    round(bbUpper, 5),
			BBMiddle:   round(bbMiddle, 5),
			BBLower:    round(bbLower, 5),
			BBPosition: bbPosition,

			ATR:              round(atrValue, 5),
			IsAbnormalCandle: isAbnormalCandle,
			IsAbnormalATR:    isAbnormalATR,

			UpperWick:        upperWick,
			UpperWickPercent: upperWickPct,
			Body:             body,
			BodyPercent:      bodyPct,
			LowerWick:        lowerWick,
			LowerWickPercent: lowerWickPct,

			EMACutPosition:     cutPosition,
			EMACutLongType:     emaCutLongType,
			CandlesSinceEMACut: candlesSinceCut,

			UpConMediumEMA:   upConMedium,
			DownConMediumEMA: downConMedium,
			UpConLongEMA:     upConLong,
			DownConLongEMA:   downConLong,

			StatusDesc: statusDesc,
		}
	}

	for i := 0; i < len(out)-1; i++ {
		nc := string(out[i+1].Color)
		out[i].NextColor = &nc
	}

	return out
}
