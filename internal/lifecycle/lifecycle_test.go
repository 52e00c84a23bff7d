package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/marketrelay/marketrelay/internal/contract"
)

type fakeLot struct {
	mu      sync.Mutex
	asset   string
	profit  float64
	results int
}

func (f *fakeLot) OnResult(asset string, profit float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asset = asset
	f.profit = profit
	f.results++
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []ResolvedTrade
}

func (f *fakePublisher) Publish(_ string, _ string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, payload.(ResolvedTrade))
}

func (f *fakePublisher) last() (ResolvedTrade, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return ResolvedTrade{}, false
	}
	return f.messages[len(f.messages)-1], true
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestTrackResolvesWinOnTerminalUpdate(t *testing.T) {
	lot := &fakeLot{}
	pub := &fakePublisher{}
	m := New(lot, pub, nil)

	c := contract.Contract{
		ContractID: "c1",
		Asset:      "R_100",
		DateExpiry: time.Now().Add(time.Hour).Unix(),
	}
	updates := make(chan contract.Update, 4)
	updates <- contract.Update{ContractID: "c1", Profit: -2}
	updates <- contract.Update{ContractID: "c1", Profit: 5}
	updates <- contract.Update{ContractID: "c1", Profit: 3, IsSold: true}

	m.Track(context.Background(), c, updates)

	msg, ok := pub.last()
	if !ok {
		t.Fatal("expected a trade_result broadcast")
	}
	if msg.Result != contract.Win {
		t.Errorf("result = %v, want win", msg.Result)
	}
	if msg.MinProfit != -2 {
		t.Errorf("minProfit = %v, want -2", msg.MinProfit)
	}
	if msg.MaxProfit != 5 {
		t.Errorf("maxProfit = %v, want 5", msg.MaxProfit)
	}
	if msg.TimedOut {
		t.Error("expected TimedOut=false on a terminal update")
	}
	if lot.results != 1 || lot.profit != 3 {
		t.Errorf("lot notified with profit=%v count=%d, want 3/1", lot.profit, lot.results)
	}
	if m.Open() != 0 {
		t.Errorf("Open() = %d, want 0 after resolution", m.Open())
	}
}

func TestTrackResolvesLossOnTerminalUpdate(t *testing.T) {
	lot := &fakeLot{}
	pub := &fakePublisher{}
	m := New(lot, pub, nil)

	c := contract.Contract{
		ContractID: "c2",
		Asset:      "R_100",
		DateExpiry: time.Now().Add(time.Hour).Unix(),
	}
	updates := make(chan contract.Update, 2)
	updates <- contract.Update{ContractID: "c2", Profit: -4, IsExpired: true}

	m.Track(context.Background(), c, updates)

	msg, _ := pub.last()
	if msg.Result != contract.Loss {
		t.Errorf("result = %v, want loss", msg.Result)
	}
}

func TestTrackResolvesViaTimeoutWhenNoTerminalUpdateArrives(t *testing.T) {
	lot := &fakeLot{}
	pub := &fakePublisher{}
	m := New(lot, pub, nil)

	c := contract.Contract{
		ContractID: "c3",
		Asset:      "R_100",
		DateExpiry: time.Now().Add(-timeoutGrace + 50*time.Millisecond).Unix(),
	}
	updates := make(chan contract.Update)

	done := make(chan struct{})
	go func() {
		m.Track(context.Background(), c, updates)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Track did not resolve via timeout in time")
	}

	msg, ok := pub.last()
	if !ok {
		t.Fatal("expected a trade_result broadcast on timeout")
	}
	if !msg.TimedOut {
		t.Error("expected TimedOut=true")
	}
	waitFor(t, func() bool { return lot.results == 1 })
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls int
	last  contract.Result
}

func (f *fakeRecorder) RecordContract(_ contract.Contract, result contract.Result, _, _ float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = result
}

type fakeMetricsSink struct {
	mu    sync.Mutex
	calls int
	wins  int
}

func (f *fakeMetricsSink) ObserveResult(_ string, win bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if win {
		f.wins++
	}
}

func TestTrackNotifiesRecorderAndMetricsOnResolve(t *testing.T) {
	lot := &fakeLot{}
	pub := &fakePublisher{}
	rec := &fakeRecorder{}
	met := &fakeMetricsSink{}
	m := New(lot, pub, nil)
	m.SetRecorder(rec)
	m.SetMetrics(met)

	c := contract.Contract{
		ContractID: "c5",
		Asset:      "R_100",
		DateExpiry: time.Now().Add(time.Hour).Unix(),
	}
	updates := make(chan contract.Update, 1)
	updates <- contract.Update{ContractID: "c5", Profit: 2, IsSold: true}

	m.Track(context.Background(), c, updates)

	if rec.calls != 1 || rec.last != contract.Win {
		t.Errorf("recorder calls=%d last=%v, want 1/win", rec.calls, rec.last)
	}
	if met.calls != 1 || met.wins != 1 {
		t.Errorf("metrics calls=%d wins=%d, want 1/1", met.calls, met.wins)
	}
}

func TestTrackTimeoutWithPositiveLastSeenProfitIsStillALoss(t *testing.T) {
	lot := &fakeLot{}
	pub := &fakePublisher{}
	m := New(lot, pub, nil)

	c := contract.Contract{
		ContractID: "c4",
		Asset:      "R_100",
		DateExpiry: time.Now().Add(-timeoutGrace + 50*time.Millisecond).Unix(),
	}
	updates := make(chan contract.Update, 1)
	updates <- contract.Update{ContractID: "c4", Profit: 4}

	done := make(chan struct{})
	go func() {
		m.Track(context.Background(), c, updates)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Track did not resolve via timeout in time")
	}

	msg, ok := pub.last()
	if !ok {
		t.Fatal("expected a trade_result broadcast on timeout")
	}
	if !msg.TimedOut {
		t.Error("expected TimedOut=true")
	}
	if msg.Result != contract.Loss {
		t.Errorf("result = %v, want loss even though last-seen profit was positive", msg.Result)
	}
	waitFor(t, func() bool { return lot.results == 1 })
}
