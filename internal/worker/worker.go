// Package worker implements the Per-Asset Worker (spec §4.5): it owns one
// Upstream Session and a rolling candle buffer, drives the Indicator
// Kernel/Analysis Generator/Status Classifier pipeline incrementally, and
// issues trade commands on closed-candle boundaries. Grounded on the
// teacher's internal/trading/strategies/trend.go goroutine layout
// (atomic.Pointer published state, channel mailbox, one goroutine per
// concern) generalized from a spot-trading strategy to the candle/status
// pipeline this spec describes.
package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/marketrelay/marketrelay/internal/analysis"
	"github.com/marketrelay/marketrelay/internal/candle"
	"github.com/marketrelay/marketrelay/internal/classifier"
	"github.com/marketrelay/marketrelay/internal/contract"
	"github.com/marketrelay/marketrelay/internal/upstream"
	"github.com/marketrelay/marketrelay/internal/utils/slogx"
)

// CommandType enumerates the mailbox commands from spec §4.5/§6.1.
type CommandType string

const (
	UpdateMode   CommandType = "UPDATE_MODE"
	UpdateParams CommandType = "UPDATE_PARAMS"
	StopStreams  CommandType = "STOP_STREAMS"
	Sell         CommandType = "SELL"
)

// Command is one worker-mailbox entry; fields beyond Type are used by the
// matching CommandType only.
type Command struct {
	Type       CommandType
	TradeMode  string // idle, fix, martingale
	ContractID string
}

// TradeMode selects whether the worker requests a stake at all, and under
// which Lot Coordinator policy.
type TradeMode string

const (
	ModeIdle       TradeMode = "idle"
	ModeFix        TradeMode = "fix"
	ModeMartingale TradeMode = "martingale"
)

// LotClient is the worker's view of the Lot Coordinator (spec §4.7):
// request a stake, honoring Denied when the lot has stopped.
type LotClient interface {
	RequestStake(ctx context.Context, asset string) (amount float64, denied bool)
	ReportOpened(asset string, c contract.Contract)
}

// Publisher fans a broadcast-channel message out to subscribers (spec
// §4.8); the worker only ever produces messages, never reads them back.
type Publisher interface {
	Publish(asset string, msgType string, payload any)
}

// LifecycleTracker is the worker's view of the Trade Lifecycle Manager
// (spec §4.6): hand off a freshly opened contract plus its poll-update
// stream and let the manager own min/max-profit tracking and resolution.
type LifecycleTracker interface {
	Track(ctx context.Context, c contract.Contract, updates <-chan contract.Update)
}

// Metrics is the worker's optional Prometheus hook (spec §4.11).
type Metrics interface {
	ObserveAnalysisLatency(d time.Duration)
}

const historyWindow = candle.MaxBufferLen

// Worker drives one asset's end-to-end pipeline from upstream candle to
// trade decision (spec §4.5).
type Worker struct {
	asset   string
	session *upstream.Session
	buffer  *candle.Buffer
	opts    analysis.Options
	codes   map[string]uint32
	signals classifier.Table
	lot       LotClient
	pub       Publisher
	lifecycle LifecycleTracker
	logger    *slogx.AsyncSlog

	commands chan Command
	rest     *upstream.RESTFallback
	metrics  Metrics

	mode       atomic.Pointer[TradeMode]
	lastStatus atomic.Pointer[uint32]
}

// SetRESTFallback wires an HTTP catch-up path used when the websocket
// candles_history request fails or times out (spec §4.4 / §7).
func (w *Worker) SetRESTFallback(r *upstream.RESTFallback) {
	w.rest = r
}

// SetMetrics wires the Prometheus sink (spec §4.11); nil (the default)
// disables it.
func (w *Worker) SetMetrics(m Metrics) {
	w.metrics = m
}

func New(asset string, session *upstream.Session, opts analysis.Options, codes map[string]uint32, signals classifier.Table, lot LotClient, pub Publisher, lifecycle LifecycleTracker, logger *slogx.AsyncSlog) *Worker {
	w := &Worker{
		asset:     asset,
		session:   session,
		buffer:    candle.NewBuffer(),
		opts:      opts,
		codes:     codes,
		signals:   signals,
		lot:       lot,
		pub:       pub,
		lifecycle: lifecycle,
		logger:    logger,
		commands:  make(chan Command, 32),
	}
	idle := ModeIdle
	w.mode.Store(&idle)
	return w
}

// Commands returns the worker's command mailbox (spec §4.5: "Receives
// commands on its own mailbox").
func (w *Worker) Commands() chan<- Command {
	return w.commands
}

// Run connects the session, seeds the candle buffer from history, and
// drives the pipeline until ctx is cancelled, STOP_STREAMS is received, or
// an internal invariant violation forces an exit (spec §7).
func (w *Worker) Run(ctx context.Context, apiToken string) error {
	if err := w.session.Connect(ctx); err != nil {
		return err
	}
	if _, err := w.session.Authorize(ctx, apiToken); err != nil {
		return err
	}

	history, err := w.session.FetchHistory(ctx, w.asset, candle.Granularity, historyWindow)
	if err != nil {
		if w.rest == nil {
			return err
		}
		history, err = w.rest.FetchCandles(w.asset, candle.Granularity, historyWindow)
		if err != nil {
			return err
		}
	}
	for _, c := range history {
		if _, err := w.buffer.Ingest(c); err != nil {
			return err
		}
	}

	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()
	candles, err := w.session.SubscribeCandles(streamCtx, w.asset)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case cmd, ok := <-w.commands:
			if !ok {
				return nil
			}
			if w.handleCommand(cmd) {
				cancelStream()
				return nil
			}

		case c, ok := <-candles:
			if !ok {
				return nil
			}
			closed, err := w.buffer.Ingest(c)
			if err != nil {
				w.logger.Error("worker: invariant violation, exiting", "asset", w.asset, "error", err)
				w.pub.Publish(w.asset, "worker_fatal", map[string]any{"error": err.Error()})
				return err
			}
			w.processTick(ctx, closed)
		}
	}
}

func (w *Worker) handleCommand(cmd Command) (stop bool) {
	switch cmd.Type {
	case UpdateMode:
		m := TradeMode(cmd.TradeMode)
		w.mode.Store(&m)
	case StopStreams:
		return true
	case Sell:
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if _, err := w.session.Sell(ctx, cmd.ContractID); err != nil {
				w.pub.Publish(w.asset, "trade_error", map[string]any{"error": err.Error()})
			}
		}()
	case UpdateParams:
		// Lot parameters live in the coordinator; the worker has nothing
		// of its own to adjust beyond trade mode.
	}
	return false
}

// processTick runs steps 2-6 of spec §4.5 for the most recent candle in
// the buffer. closed indicates the PRIOR candle just finished (a new
// minute boundary opened); the trade-decision step only fires then.
func (w *Worker) processTick(ctx context.Context, closed bool) {
	snapshot := w.buffer.Snapshot()
	if len(snapshot) == 0 {
		return
	}

	start := time.Now()
	records := analysis.Generate(snapshot, w.opts)
	if w.metrics != nil {
		w.metrics.ObserveAnalysisLatency(time.Since(start))
	}
	latest := records[len(records)-1]

	var statusCode *uint32
	if code, ok := classifier.Lookup(w.codes, latest.StatusDesc); ok {
		latest.StatusCode = &code
		statusCode = &code
	}
	w.lastStatus.Store(statusCode)

	w.pub.Publish(w.asset, "analysis_data", latest)

	if !closed {
		return
	}

	mode := ModeIdle
	if m := w.mode.Load(); m != nil {
		mode = *m
	}
	if mode == ModeIdle {
		return
	}

	action := w.signals.Decide(statusCode, latest.RSIValue, latest.IsAbnormalCandle)
	if action == classifier.Idle {
		return
	}

	amount, denied := w.lot.RequestStake(ctx, w.asset)
	if denied {
		return
	}

	tradeType := contract.Call
	if action == classifier.Put {
		tradeType = contract.Put
	}
	opened, err := w.session.Buy(ctx, w.asset, tradeType, amount, 60)
	if err != nil {
		w.pub.Publish(w.asset, "trade_error", map[string]any{"error": err.Error()})
		return
	}
	w.lot.ReportOpened(w.asset, opened)
	w.pub.Publish(w.asset, "trade_opened", opened)

	updates, err := w.session.PollContract(ctx, opened.ContractID)
	if err != nil {
		w.pub.Publish(w.asset, "trade_error", map[string]any{"error": err.Error()})
		return
	}
	go w.lifecycle.Track(context.Background(), opened, updates)
}
