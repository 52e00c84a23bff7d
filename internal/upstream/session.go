package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marketrelay/marketrelay/internal/apperr"
	"github.com/marketrelay/marketrelay/internal/candle"
	"github.com/marketrelay/marketrelay/internal/contract"
	"github.com/marketrelay/marketrelay/internal/utils/slogx"
)

// State is the Upstream Session's connection lifecycle (spec §4.4):
// Idle -> Connecting -> Authenticated -> Streaming -> Closing -> Closed.
type State int32

const (
	Idle State = iota
	Connecting
	Authenticated
	Streaming
	Closing
	Closed
)

const (
	authorizeTimeout = 10 * time.Second
	historyTimeout   = 10 * time.Second
)

type pendingReply struct {
	ch chan rawMessage
}

// Session is one per-asset connection to the broker (spec §4.4 contract).
// It owns a single websocket and demultiplexes replies by req_id and
// pushes by subscription id.
type Session struct {
	url    string
	logger *slogx.AsyncSlog

	state atomic.Int32
	nextReqID atomic.Int64

	c *conn

	mu       sync.Mutex
	pending  map[int64]*pendingReply
	subs     map[string]chan any // subscription id -> typed push channel

	cancel context.CancelFunc
}

// Option configures a Session, following the teacher's functional-options
// pattern (internal/broker/bybit/client.go).
type Option func(*Session)

func WithLogger(l *slogx.AsyncSlog) Option {
	return func(s *Session) { s.logger = l }
}

func NewSession(url string, opts ...Option) *Session {
	s := &Session{
		url:     url,
		pending: make(map[int64]*pendingReply),
		subs:    make(map[string]chan any),
	}
	s.state.Store(int32(Idle))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Connect opens the websocket and starts the reconnecting pump plus the
// inbound demultiplexer. Fails with a TransientUpstream error (wrapped as
// UpstreamConnectError's equivalent) on initial handshake failure.
func (s *Session) Connect(ctx context.Context) error {
	s.state.Store(int32(Connecting))
	s.c = newConn(s.url)
	if err := s.c.dial(); err != nil {
		return apperr.New(apperr.TransientUpstream, "upstream.connect", err)
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.c.run(runCtx)
	go s.demux(runCtx)
	go s.watchFatal(runCtx)
	return nil
}

func (s *Session) watchFatal(ctx context.Context) {
	select {
	case <-ctx.Done():
	case err := <-s.c.fatalCh:
		s.logger.Error("upstream session fatal", "err", err)
		s.state.Store(int32(Closed))
	}
}

func (s *Session) demux(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-s.c.inbound:
			if !ok {
				return
			}
			var msg rawMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				s.logger.Warn("upstream parse failure", "err", err)
				continue
			}
			s.route(msg)
		}
	}
}

func (s *Session) route(msg rawMessage) {
	if msg.ReqID != 0 {
		s.mu.Lock()
		p, ok := s.pending[msg.ReqID]
		if ok {
			delete(s.pending, msg.ReqID)
		}
		s.mu.Unlock()
		if ok {
			p.ch <- msg
			return
		}
	}

	if msg.OHLC != nil && msg.Subscription != nil {
		s.mu.Lock()
		ch, ok := s.subs[msg.Subscription.ID]
		s.mu.Unlock()
		if ok {
			ch <- msg.OHLC.toCandle()
		}
		return
	}

	if msg.ProposalOpenContract != nil && msg.Subscription != nil {
		s.mu.Lock()
		ch, ok := s.subs[msg.Subscription.ID]
		s.mu.Unlock()
		if ok {
			ch <- toContractUpdate(msg.ProposalOpenContract)
		}
	}
}

func toContractUpdate(p *contractPush) contract.Update {
	return contract.Update{
		ContractID:  p.ContractID,
		CurrentSpot: p.CurrentSpot,
		Profit:      p.Profit,
		IsSold:      p.IsSold,
		IsExpired:   p.IsExpired,
	}
}

// request sends body with a fresh req_id and blocks for the matching reply
// or ctx/timeout expiry.
func (s *Session) request(ctx context.Context, body map[string]any, timeout time.Duration) (rawMessage, error) {
	reqID := s.nextReqID.Add(1)
	data, err := json.Marshal(withReqID(body, reqID))
	if err != nil {
		return rawMessage{}, apperr.New(apperr.Command, "upstream.request", err)
	}

	p := &pendingReply{ch: make(chan rawMessage, 1)}
	s.mu.Lock()
	s.pending[reqID] = p
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, reqID)
		s.mu.Unlock()
	}()

	if err := s.c.send(data); err != nil {
		return rawMessage{}, apperr.New(apperr.TransientUpstream, "upstream.request", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return rawMessage{}, apperr.New(apperr.TransientUpstream, "upstream.request", ctx.Err())
	case <-timer.C:
		return rawMessage{}, apperr.New(apperr.TransientUpstream, "upstream.request",
			fmt.Errorf("timed out waiting for req_id %d", reqID))
	case reply := <-p.ch:
		if reply.Error != nil {
			return reply, apperr.New(apperr.FatalUpstream, "upstream.request",
				fmt.Errorf("%s: %s", reply.Error.Code, reply.Error.Message))
		}
		return reply, nil
	}
}

// Authorize sends the authorize envelope and awaits the account balance.
// A negative response is a fatal, non-retried error (spec §4.4, §7).
func (s *Session) Authorize(ctx context.Context, token string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, authorizeTimeout)
	defer cancel()
	reply, err := s.request(ctx, map[string]any{"authorize": token}, authorizeTimeout)
	if err != nil {
		return 0, err
	}
	if reply.Authorize == nil {
		return 0, apperr.New(apperr.FatalUpstream, "upstream.authorize", fmt.Errorf("missing authorize payload"))
	}
	s.state.Store(int32(Authenticated))
	return reply.Authorize.Balance, nil
}

// FetchHistory requests the last count candles for asset at the given
// granularity (default 60s) and returns them sorted ascending by time.
func (s *Session) FetchHistory(ctx context.Context, asset string, granularity int64, count int) ([]candle.Candle, error) {
	ctx, cancel := context.WithTimeout(ctx, historyTimeout)
	defer cancel()
	reply, err := s.request(ctx, map[string]any{
		"ticks_history": asset,
		"style":         "candles",
		"granularity":   granularity,
		"count":         count,
	}, historyTimeout)
	if err != nil {
		return nil, err
	}
	if reply.CandlesHistory == nil {
		return nil, apperr.New(apperr.FatalUpstream, "upstream.fetchHistory", fmt.Errorf("missing candles_history payload"))
	}

	out := make([]candle.Candle, len(reply.CandlesHistory.Candles))
	for i, p := range reply.CandlesHistory.Candles {
		out[i] = p.toCandle()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

// SubscribeCandles subscribes to live minute-boundary OHLC pushes for
// asset; the returned channel is closed when ctx is cancelled.
func (s *Session) SubscribeCandles(ctx context.Context, asset string) (<-chan candle.Candle, error) {
	reply, err := s.request(ctx, map[string]any{
		"ticks_history": asset,
		"style":         "candles",
		"granularity":   candle.Granularity,
		"subscribe":     1,
	}, historyTimeout)
	if err != nil {
		return nil, err
	}
	if reply.Subscription == nil {
		return nil, apperr.New(apperr.FatalUpstream, "upstream.subscribeCandles", fmt.Errorf("missing subscription id"))
	}

	raw := make(chan any, 64)
	s.mu.Lock()
	s.subs[reply.Subscription.ID] = raw
	s.mu.Unlock()
	s.state.Store(int32(Streaming))

	out := make(chan candle.Candle, 64)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				s.mu.Lock()
				delete(s.subs, reply.Subscription.ID)
				s.mu.Unlock()
				return
			case v, ok := <-raw:
				if !ok {
					return
				}
				if c, ok := v.(candle.Candle); ok {
					select {
					case out <- c:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out, nil
}

// Buy sends one buy request carrying the contract parameters inline and
// returns the opened contract; no separate proposal request is sent.
func (s *Session) Buy(ctx context.Context, asset string, tradeType contract.TradeType, stake float64, durationSeconds int) (contract.Contract, error) {
	contractType := "CALL"
	if tradeType == contract.Put {
		contractType = "PUT"
	}
	reply, err := s.request(ctx, map[string]any{
		"buy":   1,
		"price": stake,
		"parameters": map[string]any{
			"amount":        stake,
			"basis":         "stake",
			"contract_type": contractType,
			"currency":      "USD",
			"duration":      durationSeconds,
			"duration_unit": "s",
			"symbol":        asset,
		},
	}, historyTimeout)
	if err != nil {
		return contract.Contract{}, err
	}
	if reply.Buy == nil {
		return contract.Contract{}, apperr.New(apperr.Trade, "upstream.buy", fmt.Errorf("buy rejected"))
	}
	now := time.Now().Unix()
	return contract.Contract{
		ContractID: reply.Buy.ContractID,
		Asset:      asset,
		TradeType:  tradeType,
		Stake:      stake,
		Payout:     reply.Buy.Payout,
		EntrySpot:  reply.Buy.BuyPrice,
		DateStart:  now,
		DateExpiry: now + int64(durationSeconds),
	}, nil
}

// Sell forces an early sell of an open contract.
func (s *Session) Sell(ctx context.Context, contractID string) (contract.SellAck, error) {
	reply, err := s.request(ctx, map[string]any{"sell": contractID}, historyTimeout)
	if err != nil {
		return contract.SellAck{}, err
	}
	if reply.Sell == nil {
		return contract.SellAck{}, apperr.New(apperr.Trade, "upstream.sell", fmt.Errorf("sell on unknown contract"))
	}
	return contract.SellAck{ContractID: reply.Sell.ContractID, SoldFor: reply.Sell.SoldFor}, nil
}

// PollContract subscribes to updates for an open contract; the channel
// yields updates until a terminal one (IsSold or IsExpired) or ctx
// cancellation.
func (s *Session) PollContract(ctx context.Context, contractID string) (<-chan contract.Update, error) {
	reply, err := s.request(ctx, map[string]any{
		"proposal_open_contract": 1,
		"contract_id":            contractID,
		"subscribe":              1,
	}, historyTimeout)
	if err != nil {
		return nil, err
	}
	if reply.Subscription == nil {
		return nil, apperr.New(apperr.FatalUpstream, "upstream.pollContract", fmt.Errorf("missing subscription id"))
	}

	raw := make(chan any, 16)
	s.mu.Lock()
	s.subs[reply.Subscription.ID] = raw
	s.mu.Unlock()

	out := make(chan contract.Update, 16)
	go func() {
		defer close(out)
		defer func() {
			s.mu.Lock()
			delete(s.subs, reply.Subscription.ID)
			s.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-raw:
				if !ok {
					return
				}
				u, ok := v.(contract.Update)
				if !ok {
					continue
				}
				select {
				case out <- u:
				case <-ctx.Done():
					return
				}
				if u.IsSold || u.IsExpired {
					return
				}
			}
		}
	}()
	return out, nil
}

// Close tears the session down; in-flight subscriptions observe a closed
// channel.
func (s *Session) Close() {
	s.state.Store(int32(Closing))
	if s.cancel != nil {
		s.cancel()
	}
	if s.c != nil {
		s.c.close()
	}
	s.state.Store(int32(Closed))
}
