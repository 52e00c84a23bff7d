package relay

import (
	"encoding/json"

	"github.com/marketrelay/marketrelay/internal/utils/slogx"
)

// StartDerivConfig is the START_DERIV command payload (spec §6.1).
type StartDerivConfig struct {
	Asset        string  `json:"asset"`
	TradeMode    string  `json:"trade_mode"`
	MoneyMode    string  `json:"money_mode"`
	InitialStake float64 `json:"initial_stake"`
	APIToken     string  `json:"api_token"`
	AppID        string  `json:"app_id"`
	Duration     int     `json:"duration"`
	DurationUnit string  `json:"duration_unit"`
	TargetProfit float64 `json:"target_profit"`
	TargetWin    int     `json:"target_win"`
}

// StartAutoTradeConfig is the START_AUTO_TRADE command payload.
type StartAutoTradeConfig struct {
	Assets       []string `json:"assets"`
	APIToken     string   `json:"api_token"`
	InitialStake float64  `json:"initial_stake"`
	TargetProfit float64  `json:"target_profit"`
	TargetWin    int      `json:"target_win"`
	MoneyMode    string   `json:"money_mode"`
}

// UpdateParamsConfig is the UPDATE_PARAMS command payload.
type UpdateParamsConfig struct {
	MoneyMode    string  `json:"money_mode"`
	Duration     int     `json:"duration"`
	DurationUnit string  `json:"duration_unit"`
	TargetProfit float64 `json:"target_profit"`
	TargetWin    int     `json:"target_win"`
}

// Controller is main.go's wiring surface: it owns worker/session
// construction and the Lot Coordinator, and satisfies every command the
// demultiplexer decodes (spec §6.1).
type Controller interface {
	StartDeriv(cfg StartDerivConfig) error
	StartAutoTrade(cfg StartAutoTradeConfig) error
	UpdateMode(tradeMode string) error
	UpdateParams(cfg UpdateParamsConfig) error
	StopStreams() error
	StopAutoTrade() error
	Sell(contractID string) error
	SyncStatus() error
}

type envelope struct {
	Command string `json:"command"`
}

// Demux decodes one inbound command message and dispatches it to the
// Controller (spec §4.8 "decodes incoming JSON, dispatches to the
// targeted worker or the coordinator"). Malformed or unknown commands are
// logged and ignored (spec §7 "Command error").
type Demux struct {
	controller Controller
	logger     *slogx.AsyncSlog
}

func NewDemux(controller Controller, logger *slogx.AsyncSlog) *Demux {
	return &Demux{controller: controller, logger: logger}
}

func (d *Demux) Dispatch(raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		d.logger.Warn("relay: malformed command", "error", err)
		return
	}

	var err error
	switch env.Command {
	case "START_DERIV":
		var cfg StartDerivConfig
		if err = json.Unmarshal(raw, &cfg); err == nil {
			err = d.controller.StartDeriv(cfg)
		}
	case "START_AUTO_TRADE":
		var cfg StartAutoTradeConfig
		if err = json.Unmarshal(raw, &cfg); err == nil {
			err = d.controller.StartAutoTrade(cfg)
		}
	case "UPDATE_MODE":
		var body struct {
			TradeMode string `json:"trade_mode"`
		}
		if err = json.Unmarshal(raw, &body); err == nil {
			err = d.controller.UpdateMode(body.TradeMode)
		}
	case "UPDATE_PARAMS":
		var cfg UpdateParamsConfig
		if err = json.Unmarshal(raw, &cfg); err == nil {
			err = d.controller.UpdateParams(cfg)
		}
	case "STOP_STREAMS":
		err = d.controller.StopStreams()
	case "STOP_AUTO_TRADE":
		err = d.controller.StopAutoTrade()
	case "SELL":
		var body struct {
			ContractID string `json:"contract_id"`
		}
		if err = json.Unmarshal(raw, &body); err == nil {
			err = d.controller.Sell(body.ContractID)
		}
	case "SYNC_STATUS":
		err = d.controller.SyncStatus()
	default:
		d.logger.Warn("relay: unknown command", "command", env.Command)
		return
	}

	if err != nil {
		d.logger.Warn("relay: command failed", "command", env.Command, "error", err)
	}
}
