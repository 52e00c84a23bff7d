package relay

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/marketrelay/marketrelay/internal/utils/slogx"
)

func newTestLogger() *slogx.AsyncSlog {
	return slogx.NewAsyncSlog(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHubPublishDeliversToSubscriber(t *testing.T) {
	h := NewHub(nil)
	_, out, unsubscribe := h.Subscribe()
	defer unsubscribe()

	h.Publish("R_100", "analysis_data", map[string]any{"close": 1.2345})

	select {
	case raw := <-out:
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("unmarshal broadcast: %v", err)
		}
		if msg.Type != "analysis_data" || msg.Asset != "R_100" {
			t.Errorf("got %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}

func TestHubDropsSlowSubscriberOnOverflow(t *testing.T) {
	h := NewHub(nil)
	id, out, unsubscribe := h.Subscribe()
	defer unsubscribe()

	for i := 0; i < mailboxSize+10; i++ {
		h.Publish("R_100", "analysis_data", i)
	}

	if h.Len() != 0 {
		t.Fatalf("expected overflowed subscriber %s to be removed, hub still has %d", id, h.Len())
	}
	for range out {
		// drain whatever was buffered before the mailbox was closed
	}
}

type stubController struct {
	started  *StartDerivConfig
	modeSeen string
}

func (s *stubController) StartDeriv(cfg StartDerivConfig) error     { s.started = &cfg; return nil }
func (s *stubController) StartAutoTrade(StartAutoTradeConfig) error { return nil }
func (s *stubController) UpdateMode(tradeMode string) error         { s.modeSeen = tradeMode; return nil }
func (s *stubController) UpdateParams(UpdateParamsConfig) error     { return nil }
func (s *stubController) StopStreams() error                        { return nil }
func (s *stubController) StopAutoTrade() error                      { return nil }
func (s *stubController) Sell(string) error                         { return nil }
func (s *stubController) SyncStatus() error                         { return nil }

func TestDemuxRoutesStartDeriv(t *testing.T) {
	ctrl := &stubController{}
	d := NewDemux(ctrl, newTestLogger())

	d.Dispatch([]byte(`{"command":"START_DERIV","asset":"R_100","trade_mode":"fix"}`))

	if ctrl.started == nil || ctrl.started.Asset != "R_100" {
		t.Fatalf("expected StartDeriv to be called with asset R_100, got %+v", ctrl.started)
	}
}

func TestDemuxIgnoresUnknownCommand(t *testing.T) {
	ctrl := &stubController{}
	d := NewDemux(ctrl, newTestLogger())

	d.Dispatch([]byte(`{"command":"DOES_NOT_EXIST"}`))

	if ctrl.started != nil || ctrl.modeSeen != "" {
		t.Fatal("unknown command should not touch the controller")
	}
}
