// Command relay runs the market-analysis and auto-trading relay server:
// it wires the Upstream Session, Per-Asset Workers, Trade Lifecycle
// Manager, Lot Coordinator, and Relay Core together, then serves the
// client-facing broadcast/command WebSocket and a Prometheus /metrics
// endpoint until terminated. Wiring style and signal handling follow the
// teacher's top-level main.go (context + signal.NotifyContext,
// construct-then-block).
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/marketrelay/marketrelay/internal/alert"
	"github.com/marketrelay/marketrelay/internal/analysis"
	"github.com/marketrelay/marketrelay/internal/classifier"
	"github.com/marketrelay/marketrelay/internal/config"
	"github.com/marketrelay/marketrelay/internal/contract"
	"github.com/marketrelay/marketrelay/internal/lifecycle"
	"github.com/marketrelay/marketrelay/internal/lot"
	"github.com/marketrelay/marketrelay/internal/metrics"
	"github.com/marketrelay/marketrelay/internal/relay"
	"github.com/marketrelay/marketrelay/internal/store"
	"github.com/marketrelay/marketrelay/internal/upstream"
	"github.com/marketrelay/marketrelay/internal/utils/slogx"
	"github.com/marketrelay/marketrelay/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	envPath := flag.String("env", ".env", "path to .env broker/telegram secrets")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings, err := config.Load(*configPath, *envPath)
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}

	handlerOpts := &slog.HandlerOptions{Level: logLevel(settings.Logging.Level)}
	var baseHandler slog.Handler
	if settings.Logging.Format == "text" {
		baseHandler = slog.NewTextHandler(os.Stdout, handlerOpts)
	} else {
		baseHandler = slog.NewJSONHandler(os.Stdout, handlerOpts)
	}
	logger := slogx.NewAsyncSlog(ctx, slog.New(baseHandler))

	opts, err := config.LoadIndicatorConfig(settings.Relay.IndicatorConfig)
	if err != nil {
		logger.Error("indicator config load failed", "error", err)
		os.Exit(1)
	}
	signalTable, err := config.LoadSignalTable(settings.Relay.SignalTable)
	if err != nil {
		logger.Error("signal table load failed", "error", err)
		os.Exit(1)
	}
	codeTable, err := config.LoadCodeTable(settings.Relay.CodeTable)
	if err != nil {
		logger.Error("code table load failed", "error", err)
		os.Exit(1)
	}

	reg := metrics.NewRegistry()

	var auditStore *store.Store
	if settings.Storage.PostgresDSN != "" {
		auditStore, err = store.Open(settings.Storage.PostgresDSN, logger)
		if err != nil {
			logger.Warn("audit store disabled: connect failed", "error", err)
		}
	}

	var alertSink *alert.Sink
	if settings.Telegram.Enabled {
		alertSink, err = alert.NewSink(settings.Telegram.BotToken, settings.Telegram.ChatID, logger)
		if err != nil {
			logger.Warn("telegram alert sink disabled: init failed", "error", err)
		}
	}

	hub := relay.NewHub(logger)

	app := &relayApp{
		ctx:         ctx,
		settings:    settings,
		opts:        opts,
		signalTable: signalTable,
		codeTable:   codeTable,
		hub:         hub,
		logger:      logger,
		metrics:     reg,
		store:       auditStore,
		alert:       alertSink,
		lotc: &lotClient{
			Coordinator:   lot.New(),
			contractAsset: make(map[string]string),
		},
		workers: make(map[string]*runningWorker),
	}
	app.lifecycleMgr = lifecycle.New(app.lotc, hub, logger)
	if auditStore != nil {
		app.lifecycleMgr.SetRecorder(auditStore)
	}
	app.lifecycleMgr.SetMetrics(reg)

	if alertSink != nil {
		go alertSink.Run(ctx, hub)
	}
	go runMetricsGauges(ctx, app)

	demux := relay.NewDemux(app, logger)
	srv := relay.NewServer(hub, demux, logger)

	mux := http.NewServeMux()
	mux.Handle("/ws", srv)
	mux.Handle("/metrics", metrics.Handler())

	go func() {
		if err := http.ListenAndServe(settings.Relay.ListenAddr, mux); err != nil {
			logger.Error("relay http server exited", "error", err)
		}
	}()

	logger.Info("relay started", "listenAddr", settings.Relay.ListenAddr)
	<-ctx.Done()
	logger.Info("relay shutting down")
}

// runMetricsGauges periodically refreshes the open-contracts and
// grandProfit gauges (spec §4.11), which otherwise have no single call
// site to update from.
func runMetricsGauges(ctx context.Context, a *relayApp) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.metrics.OpenContracts.Set(float64(a.lifecycleMgr.Open()))
			a.metrics.LotProfit.WithLabelValues("*").Set(a.lotc.Snapshot().GrandProfit)
		}
	}
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// lotClient adapts *lot.Coordinator into worker.LotClient, additionally
// recording which asset opened each contract id so a SELL command (which
// only carries a contract_id) can be routed to the right worker.
type lotClient struct {
	*lot.Coordinator
	mu            sync.Mutex
	contractAsset map[string]string
}

func (l *lotClient) ReportOpened(asset string, c contract.Contract) {
	l.Coordinator.ReportOpened(asset, c)
	l.mu.Lock()
	l.contractAsset[c.ContractID] = asset
	l.mu.Unlock()
}

func (l *lotClient) assetFor(contractID string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.contractAsset[contractID]
	return a, ok
}

type runningWorker struct {
	w      *worker.Worker
	cancel context.CancelFunc
}

// relayApp implements relay.Controller: it owns the lifetime of every
// Per-Asset Worker and the single Lot Coordinator, per spec §2 AppState
// ("command-channel registry (worker handles), coordinator handle").
type relayApp struct {
	ctx context.Context

	settings    *config.Settings
	opts        analysis.Options
	signalTable classifier.Table
	codeTable   map[string]uint32

	hub    *relay.Hub
	logger *slogx.AsyncSlog

	metrics *metrics.Registry
	store   *store.Store
	alert   *alert.Sink

	lotc         *lotClient
	lifecycleMgr *lifecycle.Manager

	mu      sync.Mutex
	workers map[string]*runningWorker
	token   string
}

func (a *relayApp) spawnWorker(asset, apiToken string) {
	a.mu.Lock()
	if _, exists := a.workers[asset]; exists {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	session := upstream.NewSession(a.settings.Upstream.URL, upstream.WithLogger(a.logger))
	w := worker.New(asset, session, a.opts, a.codeTable, a.signalTable, a.lotc, a.hub, a.lifecycleMgr, a.logger)
	if a.settings.Upstream.RestURL != "" {
		w.SetRESTFallback(upstream.NewRESTFallback(a.settings.Upstream.RestURL))
	}
	w.SetMetrics(a.metrics)

	workerCtx, cancel := context.WithCancel(a.ctx)
	a.mu.Lock()
	a.workers[asset] = &runningWorker{w: w, cancel: cancel}
	a.mu.Unlock()

	go func() {
		if err := w.Run(workerCtx, apiToken); err != nil {
			a.logger.Error("worker exited", "asset", asset, "error", err)
			a.hub.Publish(asset, "upstream_fatal", map[string]any{"error": err.Error()})
		}
		a.mu.Lock()
		delete(a.workers, asset)
		a.mu.Unlock()
	}()
}

func (a *relayApp) StartDeriv(cfg relay.StartDerivConfig) error {
	a.lotc.Start(lot.Config{
		Policy:       policyFor(cfg.MoneyMode),
		InitialStake: cfg.InitialStake,
		Ladder:       martingaleLadder,
		TargetProfit: cfg.TargetProfit,
		TargetWin:    cfg.TargetWin,
	})
	a.spawnWorker(cfg.Asset, cfg.APIToken)
	a.sendMode(cfg.Asset, cfg.TradeMode)
	return nil
}

func (a *relayApp) StartAutoTrade(cfg relay.StartAutoTradeConfig) error {
	a.lotc.Start(lot.Config{
		Policy:       policyFor(cfg.MoneyMode),
		InitialStake: cfg.InitialStake,
		Ladder:       martingaleLadder,
		TargetProfit: cfg.TargetProfit,
		TargetWin:    cfg.TargetWin,
	})
	for _, asset := range cfg.Assets {
		a.spawnWorker(asset, cfg.APIToken)
		a.sendMode(asset, "martingale")
	}
	return nil
}

func (a *relayApp) sendMode(asset, tradeMode string) {
	a.mu.Lock()
	rw, ok := a.workers[asset]
	a.mu.Unlock()
	if !ok {
		return
	}
	rw.w.Commands() <- worker.Command{Type: worker.UpdateMode, TradeMode: tradeMode}
}

func (a *relayApp) UpdateMode(tradeMode string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, rw := range a.workers {
		rw.w.Commands() <- worker.Command{Type: worker.UpdateMode, TradeMode: tradeMode}
	}
	return nil
}

func (a *relayApp) UpdateParams(cfg relay.UpdateParamsConfig) error {
	a.lotc.UpdateTargets(cfg.TargetProfit, cfg.TargetWin)
	return nil
}

func (a *relayApp) StopStreams() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, rw := range a.workers {
		rw.w.Commands() <- worker.Command{Type: worker.StopStreams}
	}
	return nil
}

func (a *relayApp) StopAutoTrade() error {
	a.lotc.Stop()
	if a.store != nil {
		a.store.RecordLotStop("*", a.lotc.Snapshot())
	}
	return nil
}

func (a *relayApp) Sell(contractID string) error {
	asset, ok := a.lotc.assetFor(contractID)
	if !ok {
		return nil
	}
	a.mu.Lock()
	rw, exists := a.workers[asset]
	a.mu.Unlock()
	if !exists {
		return nil
	}
	rw.w.Commands() <- worker.Command{Type: worker.Sell, ContractID: contractID}
	return nil
}

func (a *relayApp) SyncStatus() error {
	snap := a.lotc.Snapshot()
	a.hub.Publish("", "lot_status", snap)
	return nil
}

func policyFor(moneyMode string) lot.Policy {
	if moneyMode == "martingale" {
		return lot.Martingale
	}
	return lot.Fixed
}

// martingaleLadder is the default stake ladder (spec §8 scenario 3).
var martingaleLadder = []float64{1, 2, 6, 8, 16, 54, 162}
