// Package store is the Audit Store (SPEC_FULL §4.10): a write-only
// Postgres mirror of resolved contracts and lot-stop events, for offline
// review only — never read back by the relay itself, which matches the
// spec's "no persistence of per-trade state across restarts" Non-goal.
// Grounded on gromovart's trading_session repository (sqlx.DB,
// NamedExec inserts, wrapped errors), generalized from one session table
// to contracts/lots audit rows.
package store

import (
	"fmt"

	_ "github.com/lib/pq"
	"github.com/jmoiron/sqlx"

	"github.com/marketrelay/marketrelay/internal/contract"
	"github.com/marketrelay/marketrelay/internal/lot"
	"github.com/marketrelay/marketrelay/internal/utils/slogx"
)

// Store writes audit rows to Postgres. A write failure is logged and
// dropped; it never blocks the Lot Coordinator or Trade Lifecycle
// Manager (spec §4.10).
type Store struct {
	db     *sqlx.DB
	logger *slogx.AsyncSlog
}

func Open(dsn string, logger *slogx.AsyncSlog) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

type contractRow struct {
	ContractID string          `db:"contract_id"`
	Asset      string          `db:"asset"`
	TradeType  string          `db:"trade_type"`
	Stake      float64         `db:"stake"`
	Result     contract.Result `db:"result"`
	Profit     float64         `db:"profit"`
	MinProfit  float64         `db:"min_profit"`
	MaxProfit  float64         `db:"max_profit"`
	DateStart  int64           `db:"date_start"`
	DateExpiry int64           `db:"date_expiry"`
}

// RecordContract inserts one resolved contract (spec §4.10 "on each
// resolved contract ... writes one row to the contracts table").
func (s *Store) RecordContract(c contract.Contract, result contract.Result, minProfit, maxProfit float64) {
	row := contractRow{
		ContractID: c.ContractID,
		Asset:      c.Asset,
		TradeType:  string(c.TradeType),
		Stake:      c.Stake,
		Result:     result,
		Profit:     c.Profit,
		MinProfit:  minProfit,
		MaxProfit:  maxProfit,
		DateStart:  c.DateStart,
		DateExpiry: c.DateExpiry,
	}
	query := `
		INSERT INTO contracts (contract_id, asset, trade_type, stake, result, profit, min_profit, max_profit, date_start, date_expiry)
		VALUES (:contract_id, :asset, :trade_type, :stake, :result, :profit, :min_profit, :max_profit, :date_start, :date_expiry)
	`
	if _, err := s.db.NamedExec(query, row); err != nil {
		s.logger.Warn("store: failed to record contract", "contractId", c.ContractID, "error", err)
	}
}

type lotRow struct {
	Asset          string  `db:"asset"`
	GrandProfit    float64 `db:"grand_profit"`
	WinCount       int     `db:"win_count"`
	LossCount      int     `db:"loss_count"`
	MartingaleStep int     `db:"martingale_step"`
}

// RecordLotStop inserts one lot-stop summary row (spec §4.10).
func (s *Store) RecordLotStop(asset string, snap lot.Snapshot) {
	row := lotRow{
		Asset:          asset,
		GrandProfit:    snap.GrandProfit,
		WinCount:       snap.WinCount,
		LossCount:      snap.LossCount,
		MartingaleStep: snap.MartingaleStep,
	}
	query := `
		INSERT INTO lots (asset, grand_profit, win_count, loss_count, martingale_step)
		VALUES (:asset, :grand_profit, :win_count, :loss_count, :martingale_step)
	`
	if _, err := s.db.NamedExec(query, row); err != nil {
		s.logger.Warn("store: failed to record lot stop", "asset", asset, "error", err)
	}
}

func (s *Store) Close() error {
	return s.db.Close()
}
