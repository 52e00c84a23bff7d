package analysis

import (
	"testing"

	"github.com/marketrelay/marketrelay/internal/candle"
)

func sampleCandles() []candle.Candle {
	raw := [][4]float64{
		{100, 105, 99, 104},
		{104, 108, 103, 107},
		{107, 110, 106, 105},
		{105, 107, 102, 103},
		{103, 106, 101, 105},
		{105, 109, 104, 108},
		{108, 112, 107, 111},
		{111, 115, 110, 114},
		{114, 116, 112, 113},
		{113, 115, 111, 112},
	}
	out := make([]candle.Candle, len(raw))
	for i, r := range raw {
		out[i] = candle.Candle{Time: int64(i + 1), Open: r[0], High: r[1], Low: r[2], Close: r[3]}
	}
	return out
}

func TestGenerateProducesOneRecordPerCandle(t *testing.T) {
	opt := DefaultOptions()
	opt.EMAShortPeriod = 3
	opt.EMAMediumPeriod = 5
	opt.EMALongPeriod = 7
	opt.ATRPeriod = 3
	opt.BBPeriod = 5
	opt.CIPeriod = 3
	opt.ADXPeriod = 3
	opt.RSIPeriod = 5

	out := Generate(sampleCandles(), opt)
	if len(out) != 10 {
		t.Fatalf("expected 10 records, got %d", len(out))
	}
	switch out[0].Color {
	case candle.Green, candle.Red, candle.Equal:
	default:
		t.Fatalf("unexpected color %v", out[0].Color)
	}
}

func TestEMADirectionFlatThreshold(t *testing.T) {
	// spec §8 scenario 1: closes [100, 100.1, 100.25], period=2,
	// flatThreshold=0.2. The EMA1 values are NaN, 100.05, ~100.1833, so the
	// last step's |Δ| ~0.133 is within the threshold and every direction is
	// Flat; the test checks the first defined EMA value at index 1.
	closes := [][4]float64{{100, 100, 100, 100}, {100.1, 100.1, 100.1, 100.1}, {100.25, 100.25, 100.25, 100.25}}
	cs := make([]candle.Candle, len(closes))
	for i, r := range closes {
		cs[i] = candle.Candle{Time: int64(i + 1), Open: r[0], High: r[1], Low: r[2], Close: r[3]}
	}
	opt := DefaultOptions()
	opt.EMAShortPeriod = 2
	opt.EMAMediumPeriod = 2
	opt.EMALongPeriod = 2
	opt.FlatThreshold = 0.2

	out := Generate(cs, opt)
	if out[1].EMAShortDirection != "Flat" {
		t.Fatalf("expected Flat at index 1, got %s", out[1].EMAShortDirection)
	}
}

func TestStatusDescAssembly(t *testing.T) {
	// spec §8 scenario 6: emaLongAbove=MediumAbove, emaMediumDirection=Up,
	// emaLongDirection=Up, color=Green, emaLongConvergenceType='D' ->
	// statusDesc = "M-UU-G-D".
	desc := assembleStatusDesc("MediumAbove", "Up", "Up", candle.Green, strPtr("D"))
	if desc != "M-UU-G-D" {
		t.Fatalf("expected M-UU-G-D, got %s", desc)
	}
}
