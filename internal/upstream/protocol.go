package upstream

import "github.com/marketrelay/marketrelay/internal/candle"

// envelope is the outbound request shape: every request carries a req_id
// for reply correlation (spec §6.4).
type envelope map[string]any

func withReqID(body map[string]any, reqID int64) envelope {
	e := make(envelope, len(body)+1)
	for k, v := range body {
		e[k] = v
	}
	e["req_id"] = reqID
	return e
}

// rawMessage is the minimal shape every inbound message is first parsed
// into, enough to route it: a reply correlates on req_id, a subscription
// push carries the subscription's id.
type rawMessage struct {
	MsgType string `json:"msg_type"`
	ReqID   int64  `json:"req_id"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Authorize *struct {
		Balance float64 `json:"balance"`
	} `json:"authorize"`
	CandlesHistory *struct {
		Candles []ohlcPoint `json:"candles"`
	} `json:"candles_history"`
	OHLC           *ohlcPoint `json:"ohlc"`
	Subscription   *struct {
		ID string `json:"id"`
	} `json:"subscription"`
	Buy *struct {
		ContractID string  `json:"contract_id"`
		BuyPrice   float64 `json:"buy_price"`
		Payout     float64 `json:"payout"`
	} `json:"buy"`
	Sell *struct {
		ContractID string  `json:"contract_id"`
		SoldFor    float64 `json:"sold_for"`
	} `json:"sell"`
	ProposalOpenContract *contractPush `json:"proposal_open_contract"`
}

// ohlcPoint is the upstream's candle shape, shared by history replies and
// live ohlc pushes (spec §4.4 "the upstream emits two candle shapes").
type ohlcPoint struct {
	Epoch int64   `json:"epoch"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

func (p ohlcPoint) toCandle() candle.Candle {
	return candle.Candle{
		Time:  candle.AlignTime(p.Epoch),
		Open:  p.Open,
		High:  p.High,
		Low:   p.Low,
		Close: p.Close,
	}
}

// contractPush is one proposal_open_contract streamed update.
type contractPush struct {
	ContractID  string  `json:"contract_id"`
	EntrySpot   float64 `json:"entry_spot"`
	CurrentSpot float64 `json:"current_spot"`
	Profit      float64 `json:"profit"`
	Payout      float64 `json:"payout"`
	BuyPrice    float64 `json:"buy_price"`
	DateStart   int64   `json:"date_start"`
	DateExpiry  int64   `json:"date_expiry"`
	IsSold      bool    `json:"is_sold"`
	IsExpired   bool    `json:"is_expired"`
}
