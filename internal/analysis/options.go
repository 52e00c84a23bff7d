// Package analysis implements the Analysis Generator (spec §4.2): it turns
// a candle window plus indicator state into one FullAnalysis record per
// candle, culminating in the StatusDesc string the Status Classifier keys
// off of. Ported from analysis_generator.rs's AnalysisGenerator/FullAnalysis
// into the teacher's plain-struct, plain-function style.
package analysis

import "github.com/marketrelay/marketrelay/internal/indicator"

// Options configures every indicator period and classification threshold
// the generator needs (spec §6.3 indicator config).
type Options struct {
	EMAShortPeriod  int
	EMAShortType    indicator.MAType
	EMAMediumPeriod int
	EMAMediumType   indicator.MAType
	EMALongPeriod   int
	EMALongType     indicator.MAType
	ATRPeriod       int
	ATRMultiplier   float64
	BBPeriod        int
	CIPeriod        int
	ADXPeriod       int
	RSIPeriod       int
	FlatThreshold   float64
	MACDNarrow      float64
}

// DefaultOptions mirrors the original implementation's defaults.
func DefaultOptions() Options {
	return Options{
		EMAShortPeriod:  20,
		EMAShortType:    indicator.EMAType,
		EMAMediumPeriod: 50,
		EMAMediumType:   indicator.EMAType,
		EMALongPeriod:   200,
		EMALongType:     indicator.EMAType,
		ATRPeriod:       14,
		ATRMultiplier:   2.0,
		BBPeriod:        20,
		CIPeriod:        14,
		ADXPeriod:       14,
		RSIPeriod:       14,
		FlatThreshold:   0.2,
		MACDNarrow:      0.15,
	}
}
