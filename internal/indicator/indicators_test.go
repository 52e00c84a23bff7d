package indicator

import (
	"math"
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
		{112, 114, 109, 110},
		{110, 113, 108, 111},
		{111, 115, 110, 114},
		{114, 118, 113, 117},
		{117, 120, 116, 119},
	}
	out := make([]candle.Candle, len(raw))
	for i, r := range raw {
		out[i] = candle.Candle{Time: int64(i + 1), Open: r[0], High: r[1], Low: r[2], Close: r[3]}
	}
	return out
}

func TestEMABuildup(t *testing.T) {
	c := sampleCandles()
	vals := EMA(c, 5)
	for i := 0; i < 4; i++ {
		if !math.IsNaN(vals[i]) {
			t.Fatalf("expected NaN at index %d before window fills, got %v", i, vals[i])
		}
	}
	if math.IsNaN(vals[4]) {
		t.Fatalf("expected seeded value at index 4")
	}
}

func TestRSI(t *testing.T) {
	vals := RSI(sampleCandles(), 5)
	if math.IsNaN(vals[6]) {
		t.Fatalf("expected RSI value at index 6")
	}
	if vals[6] < 0 || vals[6] > 100 {
		t.Fatalf("RSI out of range: %v", vals[6])
	}
}

func TestATR(t *testing.T) {
	vals := ATR(sampleCandles(), 5)
	if math.IsNaN(vals[4]) {
		t.Fatalf("expected ATR value at index 4")
	}
}

func TestBollinger(t *testing.T) {
	bb := Bollinger(sampleCandles(), 5, 2.0)
	if math.IsNaN(bb.Middle[4]) {
		t.Fatalf("expected middle band at index 4")
	}
	if !(bb.Upper[4] > bb.Middle[4]) {
		t.Fatalf("upper band must exceed middle")
	}
	if !(bb.Lower[4] < bb.Middle[4]) {
		t.Fatalf("lower band must be below middle")
	}
}

func TestChoppinessIndex(t *testing.T) {
	vals := ChoppinessIndex(sampleCandles(), 5)
	if math.IsNaN(vals[4]) {
		t.Fatalf("expected CI value at index 4")
	}
}

func TestADXShortBuffer(t *testing.T) {
	c := sampleCandles()[:9] // fewer than 2*period candles
	result := ADX(c, 5)
	if len(result.ADX) != len(c) {
		t.Fatalf("ADX needs 2*period points before producing values; length must still match input")
	}
}

func TestHMAAndEHMAProduceValues(t *testing.T) {
	c := sampleCandles()
	hma := HMA(c, 6)
	ehma := EHMA(c, 6)
	foundHMA, foundEHMA := false, false
	for _, v := range hma {
		if !math.IsNaN(v) {
			foundHMA = true
		}
	}
	for _, v := range ehma {
		if !math.IsNaN(v) {
			foundEHMA = true
		}
	}
	if !foundHMA {
		t.Fatalf("HMA never produced a value")
	}
	if !foundEHMA {
		t.Fatalf("EHMA never produced a value")
	}
}
