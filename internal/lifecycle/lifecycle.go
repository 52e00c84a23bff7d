// Package lifecycle implements the Trade Lifecycle Manager (spec §4.6): for
// each open contract it tracks monotonic min/max floating profit from
// streamed updates, resolves win/loss on a terminal update or a
// dateExpiry+30s timeout, and reports the resolution to the Lot
// Coordinator and the broadcast hub. Grounded on the teacher's
// internal/trading/order.go (per-order mutex-guarded record, functional
// options, Clone-before-handoff) generalized from a spot order's
// fill-tracking to a binary contract's profit-tracking.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/marketrelay/marketrelay/internal/contract"
	"github.com/marketrelay/marketrelay/internal/utils/slogx"
)

// LotNotifier is the Lot Coordinator's inbound side (spec §4.7
// "onResult"): the manager reports every resolved contract's profit so the
// coordinator can update grandProfit/win-loss counters and the martingale
// step.
type LotNotifier interface {
	OnResult(asset string, profit float64)
}

// Publisher fans the trade_result broadcast out to subscribers (spec
// §4.8); defined independently of the worker package's identical
// interface so neither package need import the other.
type Publisher interface {
	Publish(asset string, msgType string, payload any)
}

// ContractRecorder is the manager's audit hook (spec §4.10): every
// resolved contract is handed off for a best-effort persisted record.
type ContractRecorder interface {
	RecordContract(c contract.Contract, result contract.Result, minProfit, maxProfit float64)
}

// MetricsSink is the manager's Prometheus hook (spec §4.11).
type MetricsSink interface {
	ObserveResult(asset string, win bool)
}

// ResolvedTrade is the trade_result payload (spec §3.1 / §6.2).
type ResolvedTrade struct {
	ContractID string          `json:"contractId"`
	Asset      string          `json:"asset"`
	Result     contract.Result `json:"result"`
	Profit     float64         `json:"profit"`
	MinProfit  float64         `json:"minProfit"`
	MaxProfit  float64         `json:"maxProfit"`
	TimedOut   bool            `json:"timedOut"`
}

// timeoutGrace is the spec §4.6 "dateExpiry+30s" resolution fallback for a
// contract whose terminal update never arrives.
const timeoutGrace = 30 * time.Second

// record is one open contract's mutable tracking state, guarded by its own
// mutex so updates from the polling goroutine never race a concurrent
// timeout resolution.
type record struct {
	mu sync.Mutex

	contract.Contract
	minProfit float64
	maxProfit float64
	resolved  bool
}

// Manager owns every currently-open contract's lifecycle tracking.
type Manager struct {
	mu   sync.Mutex
	open map[string]*record

	lot      LotNotifier
	pub      Publisher
	recorder ContractRecorder
	metrics  MetricsSink
	logger   *slogx.AsyncSlog
}

func New(lot LotNotifier, pub Publisher, logger *slogx.AsyncSlog) *Manager {
	return &Manager{
		open:   make(map[string]*record),
		lot:    lot,
		pub:    pub,
		logger: logger,
	}
}

// SetRecorder wires the audit store's write path (spec §4.10); nil
// (the default) disables auditing.
func (m *Manager) SetRecorder(r ContractRecorder) {
	m.recorder = r
}

// SetMetrics wires the Prometheus sink (spec §4.11); nil (the default)
// disables it.
func (m *Manager) SetMetrics(s MetricsSink) {
	m.metrics = s
}

// Track registers a newly opened contract and arms its expiry timeout
// (spec §4.6 step 1: "on buy ack, begin tracking"). updates is the
// upstream's per-contract poll stream (upstream.Session.PollContract);
// Track consumes it until resolution or ctx cancellation.
func (m *Manager) Track(ctx context.Context, c contract.Contract, updates <-chan contract.Update) {
	r := &record{
		Contract:  c,
		minProfit: 0,
		maxProfit: 0,
	}
	m.mu.Lock()
	m.open[c.ContractID] = r
	m.mu.Unlock()

	deadline := time.Unix(c.DateExpiry, 0).Add(timeoutGrace)
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-timer.C:
			m.resolveTimeout(r)
			return

		case u, ok := <-updates:
			if !ok {
				return
			}
			if done := m.applyUpdate(r, u); done {
				return
			}
		}
	}
}

// applyUpdate folds one streamed update into r's monotonic min/max profit
// (spec §4.6 step 2) and resolves on a terminal update (step 3).
func (m *Manager) applyUpdate(r *record, u contract.Update) (resolved bool) {
	r.mu.Lock()
	r.CurrentSpot = u.CurrentSpot
	r.Profit = u.Profit
	if u.Profit < r.minProfit {
		r.minProfit = u.Profit
	}
	if u.Profit > r.maxProfit {
		r.maxProfit = u.Profit
	}
	terminal := u.IsSold || u.IsExpired
	already := r.resolved
	if terminal && !already {
		r.resolved = true
	}
	snapshot, minP, maxP := r.Contract, r.minProfit, r.maxProfit
	r.mu.Unlock()

	if !terminal || already {
		return false
	}
	m.finish(snapshot, minP, maxP, false)
	return true
}

// resolveTimeout closes out a contract whose terminal update never arrived
// within dateExpiry+30s, reporting a loss at the last observed profit
// (spec §4.6 step 4).
func (m *Manager) resolveTimeout(r *record) {
	r.mu.Lock()
	already := r.resolved
	r.resolved = true
	snapshot, minP, maxP := r.Contract, r.minProfit, r.maxProfit
	r.mu.Unlock()
	if already {
		return
	}
	m.logger.Warn("lifecycle: contract timed out awaiting terminal update", "contractId", r.ContractID, "asset", r.Asset)
	m.finish(snapshot, minP, maxP, true)
}

func (m *Manager) finish(c contract.Contract, minProfit, maxProfit float64, timedOut bool) {
	m.mu.Lock()
	delete(m.open, c.ContractID)
	m.mu.Unlock()

	// A timeout means the terminal update never arrived: report a loss at
	// the last-seen profit regardless of its sign (spec §4.6).
	result := contract.Loss
	if !timedOut && c.Profit >= 0 {
		result = contract.Win
	}

	m.pub.Publish(c.Asset, "trade_result", ResolvedTrade{
		ContractID: c.ContractID,
		Asset:      c.Asset,
		Result:     result,
		Profit:     c.Profit,
		MinProfit:  minProfit,
		MaxProfit:  maxProfit,
		TimedOut:   timedOut,
	})
	m.lot.OnResult(c.Asset, c.Profit)

	if m.recorder != nil {
		m.recorder.RecordContract(c, result, minProfit, maxProfit)
	}
	if m.metrics != nil {
		m.metrics.ObserveResult(c.Asset, result == contract.Win)
	}
}

// Open reports how many contracts are currently being tracked.
func (m *Manager) Open() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}
