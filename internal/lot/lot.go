// Package lot implements the Lot Coordinator (spec §4.7): the single owner
// of LotState, serializing stake requests against the stop condition and
// stepping the martingale ladder on each resolved result. Grounded on the
// teacher's internal/trading/strategies/trend.go martingale bookkeeping
// (martngaleSteps array, min(len-1, losses) capped indexing) generalized
// from a per-side loss counter into one global win/loss ladder position.
package lot

import (
	"context"
	"sync"

	"github.com/marketrelay/marketrelay/internal/contract"
)

// Policy selects how requestStake sizes the next trade.
type Policy string

const (
	Fixed      Policy = "fixed"
	Martingale Policy = "martingale"
)

// Config configures a lot run (spec §4.7 "start(config)").
type Config struct {
	Policy       Policy
	InitialStake float64
	Ladder       []float64 // multipliers indexed by martingale step; ignored for Fixed
	TargetProfit float64
	TargetWin    int
}

// Coordinator is the single-owner actor for LotState; every field access
// goes through mu so a stop-condition check is never interleaved with a
// concurrent stake request or result report (spec §4.7 "atomic check").
type Coordinator struct {
	mu sync.Mutex

	cfg    Config
	active bool

	grandProfit    float64
	winCount       int
	lossCount      int
	martingaleStep int
	currentStake   float64
}

func New() *Coordinator {
	return &Coordinator{}
}

// Start arms the lot under cfg, resetting all counters (spec §4.7
// "start(config)"). A Fixed policy with an empty ladder trades
// InitialStake unconditionally.
func (c *Coordinator) Start(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
	c.active = true
	c.grandProfit = 0
	c.winCount = 0
	c.lossCount = 0
	c.martingaleStep = 0
	c.currentStake = cfg.InitialStake
}

// Stop disarms the lot; subsequent RequestStake calls are denied until the
// next Start (spec §4.7 "stop()").
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
}

// UpdateTargets adjusts the stop-condition thresholds in place (spec
// §6.1 UPDATE_PARAMS: "target_profit, target_win"), leaving grandProfit,
// win/loss counts, and the martingale step untouched.
func (c *Coordinator) UpdateTargets(targetProfit float64, targetWin int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.TargetProfit = targetProfit
	c.cfg.TargetWin = targetWin
}

// RequestStake returns the next stake amount, or denied=true if the lot is
// inactive or the stop condition already holds (spec §4.7
// "requestStake() → (amount | Denied)"; spec §8 law 7/8: grandProfit ≥
// targetProfit OR winCount ≥ targetWin stops the lot).
func (c *Coordinator) RequestStake(_ context.Context, _ string) (amount float64, denied bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active || c.stopConditionLocked() {
		c.active = false
		return 0, true
	}
	return c.stakeLocked(), false
}

// ReportOpened is a no-op hook for callers that want to correlate a stake
// request with the contract it funded; the coordinator itself only needs
// the eventual profit from OnResult.
func (c *Coordinator) ReportOpened(string, contract.Contract) {}

// OnResult folds one resolved contract's profit into grandProfit and
// win/loss counters, then steps the martingale ladder: reset to 0 on win,
// increment capped at len(ladder)-1 on loss (spec §4.7 "onResult(profit)",
// spec §8 law 8).
func (c *Coordinator) OnResult(_ string, profit float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.grandProfit += profit
	if profit >= 0 {
		c.winCount++
		c.martingaleStep = 0
	} else {
		c.lossCount++
		if c.cfg.Policy == Martingale && len(c.cfg.Ladder) > 0 {
			if c.martingaleStep < len(c.cfg.Ladder)-1 {
				c.martingaleStep++
			}
		}
	}
	c.currentStake = c.stakeLocked()

	if c.active && c.stopConditionLocked() {
		c.active = false
	}
}

func (c *Coordinator) stopConditionLocked() bool {
	if c.cfg.TargetProfit > 0 && c.grandProfit >= c.cfg.TargetProfit {
		return true
	}
	if c.cfg.TargetWin > 0 && c.winCount >= c.cfg.TargetWin {
		return true
	}
	return false
}

// stakeLocked computes initialStake · ladder[min(martingaleStep,
// len(ladder)-1)] for Martingale, or a flat InitialStake for Fixed (spec
// §4.7 exact formula).
func (c *Coordinator) stakeLocked() float64 {
	if c.cfg.Policy != Martingale || len(c.cfg.Ladder) == 0 {
		return c.cfg.InitialStake
	}
	step := c.martingaleStep
	if step > len(c.cfg.Ladder)-1 {
		step = len(c.cfg.Ladder) - 1
	}
	return c.cfg.InitialStake * c.cfg.Ladder[step]
}

// Snapshot is a read-only copy of LotState for status reporting (spec
// §6.2 lot_status broadcasts).
type Snapshot struct {
	Active         bool
	GrandProfit    float64
	WinCount       int
	LossCount      int
	MartingaleStep int
	CurrentStake   float64
}

func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Active:         c.active,
		GrandProfit:    c.grandProfit,
		WinCount:       c.winCount,
		LossCount:      c.lossCount,
		MartingaleStep: c.martingaleStep,
		CurrentStake:   c.currentStake,
	}
}
