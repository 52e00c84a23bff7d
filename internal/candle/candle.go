// Package candle defines the OHLC bar type shared by every downstream
// component (spec §3.1 Candle) and the bounded per-asset buffer that owns
// it (spec §4.5: "bounded candle buffer, length cap 200, discard oldest").
package candle

import (
	"fmt"

	"github.com/marketrelay/marketrelay/internal/apperr"
	"github.com/marketrelay/marketrelay/internal/utils/seqs"
)

const Granularity = int64(60) // one-minute bars, per spec §4.4 fetchHistory default

// Candle is one minute-aligned OHLC bar. Time is epoch seconds, rounded
// down to the minute boundary.
type Candle struct {
	Time  int64
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// AlignTime truncates an epoch-second timestamp to its minute boundary.
func AlignTime(epoch int64) int64 {
	return epoch - (epoch % Granularity)
}

// Color classifies the candle body direction (spec §4.2): Green when
// close>open, Red when close<open, Equal otherwise.
type Color string

const (
	Green Color = "Green"
	Red   Color = "Red"
	Equal Color = "Equal"
)

func (c Candle) Color() Color {
	switch {
	case c.Close > c.Open:
		return Green
	case c.Close < c.Open:
		return Red
	default:
		return Equal
	}
}

// MaxBufferLen is the bounded ring size from spec §3.1 / §4.5.
const MaxBufferLen = 200

// Buffer is the strictly-increasing-in-time, at-most-one-candle-per-minute
// ring owned exclusively by one Per-Asset Worker (spec §3.2, §3.3).
type Buffer struct {
	ring *seqs.RingBuffer[Candle]
}

func NewBuffer() *Buffer {
	return &Buffer{ring: seqs.NewRingBuffer[Candle](MaxBufferLen)}
}

// Ingest appends c, or merges it into the last buffered candle when both
// share the same aligned minute (spec §4.5 step 1). Returns closed=true
// when a new candle was appended (i.e. a prior candle just closed). An
// arrival older than the last buffered candle is an internal invariant
// violation (spec §7 "Internal invariant violation") the worker must
// surface and exit on, reported via a non-nil err rather than folded into
// the closed signal.
func (b *Buffer) Ingest(c Candle) (closed bool, err error) {
	c.Time = AlignTime(c.Time)
	last, ok := b.ring.Last()
	if ok && last.Time == c.Time {
		merged := last
		if c.High > merged.High {
			merged.High = c.High
		}
		if c.Low < merged.Low {
			merged.Low = c.Low
		}
		merged.Close = c.Close
		b.ring.ReplaceLast(merged)
		return false, nil
	}
	if ok && c.Time < last.Time {
		return false, apperr.New(apperr.Invariant, "candle.buffer.ingest",
			fmt.Errorf("out-of-order candle at %d, last buffered is %d", c.Time, last.Time))
	}
	b.ring.Push(c)
	return ok, nil // first candle in the buffer doesn't "close" a prior one
}

// Snapshot returns the current window, oldest first.
func (b *Buffer) Snapshot() []Candle {
	return b.ring.Snapshot()
}

func (b *Buffer) Len() int {
	return b.ring.Len()
}
