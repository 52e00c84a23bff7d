package worker

import (
	"context"
	"testing"

	"github.com/marketrelay/marketrelay/internal/analysis"
	"github.com/marketrelay/marketrelay/internal/candle"
	"github.com/marketrelay/marketrelay/internal/classifier"
	"github.com/marketrelay/marketrelay/internal/contract"
)

type fakeLot struct {
	requested int
	opened    []contract.Contract
}

func (f *fakeLot) RequestStake(context.Context, string) (float64, bool) {
	f.requested++
	return 1, false
}
func (f *fakeLot) ReportOpened(_ string, c contract.Contract) { f.opened = append(f.opened, c) }

type fakePublisher struct {
	messages []string
}

func (f *fakePublisher) Publish(_ string, msgType string, _ any) {
	f.messages = append(f.messages, msgType)
}

type fakeLifecycle struct{ tracked int }

func (f *fakeLifecycle) Track(context.Context, contract.Contract, <-chan contract.Update) {
	f.tracked++
}

func sampleCandles(n int) []candle.Candle {
	out := make([]candle.Candle, n)
	price := 100.0
	for i := 0; i < n; i++ {
		out[i] = candle.Candle{
			Time:  int64(i * 60),
			Open:  price,
			High:  price + 1,
			Low:   price - 1,
			Close: price + 0.5,
		}
		price += 0.5
	}
	return out
}

func TestProcessTickDoesNotTradeWhenModeIdle(t *testing.T) {
	lot := &fakeLot{}
	pub := &fakePublisher{}
	w := New("R_100", nil, analysis.DefaultOptions(), classifier.LoadCodeTable(), classifier.Table{}, lot, pub, &fakeLifecycle{}, nil)

	for _, c := range sampleCandles(5) {
		if _, err := w.buffer.Ingest(c); err != nil {
			t.Fatalf("unexpected ingest error: %v", err)
		}
	}
	w.processTick(context.Background(), true)

	if lot.requested != 0 {
		t.Fatalf("expected no stake request while mode is idle, got %d", lot.requested)
	}
	found := false
	for _, m := range pub.messages {
		if m == "analysis_data" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected an analysis_data broadcast regardless of trade mode")
	}
}

func TestProcessTickSkipsTradeDecisionOnNonClosedCandle(t *testing.T) {
	lot := &fakeLot{}
	pub := &fakePublisher{}
	w := New("R_100", nil, analysis.DefaultOptions(), classifier.LoadCodeTable(), classifier.Table{}, lot, pub, &fakeLifecycle{}, nil)
	mode := ModeFix
	w.mode.Store(&mode)

	for _, c := range sampleCandles(3) {
		if _, err := w.buffer.Ingest(c); err != nil {
			t.Fatalf("unexpected ingest error: %v", err)
		}
	}
	w.processTick(context.Background(), false)

	if lot.requested != 0 {
		t.Fatalf("expected no stake request on a non-closed candle, got %d", lot.requested)
	}
}

func TestHandleCommandUpdateModeAndStop(t *testing.T) {
	w := New("R_100", nil, analysis.DefaultOptions(), classifier.LoadCodeTable(), classifier.Table{}, &fakeLot{}, &fakePublisher{}, &fakeLifecycle{}, nil)

	if stop := w.handleCommand(Command{Type: UpdateMode, TradeMode: "martingale"}); stop {
		t.Fatal("UPDATE_MODE should not request a stop")
	}
	if m := *w.mode.Load(); m != ModeMartingale {
		t.Fatalf("mode = %v, want martingale", m)
	}

	if stop := w.handleCommand(Command{Type: StopStreams}); !stop {
		t.Fatal("STOP_STREAMS should request a stop")
	}
}
