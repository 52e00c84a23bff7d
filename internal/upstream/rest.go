package upstream

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/nikita55612/httpx"

	"github.com/marketrelay/marketrelay/internal/apperr"
	"github.com/marketrelay/marketrelay/internal/candle"
)

// RESTFallback fetches candle history over plain HTTP when a Session's
// websocket candles_history request times out or the socket is still
// reconnecting (spec §4.4 "fetchHistory" / §7 transient-upstream
// recovery). Grounded on the teacher's internal/broker/bybit.Client
// REST pattern (signed query string, httpx.RequestBuilder, a single
// callAPI chokepoint) generalized to the broker's unauthenticated
// public candle-history endpoint.
type RESTFallback struct {
	baseURL string
	timeout time.Duration
}

type RESTOption func(*RESTFallback)

func WithRESTTimeout(d time.Duration) RESTOption {
	return func(r *RESTFallback) { r.timeout = d }
}

func NewRESTFallback(baseURL string, opts ...RESTOption) *RESTFallback {
	r := &RESTFallback{baseURL: baseURL, timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type restCandle struct {
	Epoch int64   `json:"epoch"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

type restHistoryResponse struct {
	Candles []restCandle `json:"candles"`
}

// FetchCandles requests the last count candles for asset at granularity,
// the REST equivalent of Session.FetchHistory (spec §4.4), for use as a
// catch-up path while the streaming connection is unavailable.
func (r *RESTFallback) FetchCandles(asset string, granularity int64, count int) ([]candle.Candle, error) {
	query := make(url.Values)
	query.Set("asset", asset)
	query.Set("granularity", strconv.FormatInt(granularity, 10))
	query.Set("count", strconv.Itoa(count))
	path := fmt.Sprintf("%s/history?%s", r.baseURL, query.Encode())

	req := httpx.Get(path).WithTimeout(r.timeout)
	res, err := req.Build().Do()
	if err != nil {
		return nil, apperr.New(apperr.TransientUpstream, "upstream.rest.fetchCandles", err)
	}
	defer res.Close()

	var body restHistoryResponse
	if err := res.UnmarshalBody(&body); err != nil {
		return nil, apperr.New(apperr.TransientUpstream, "upstream.rest.fetchCandles", err)
	}

	candles := make([]candle.Candle, 0, len(body.Candles))
	for _, c := range body.Candles {
		candles = append(candles, candle.Candle{
			Time:  candle.AlignTime(c.Epoch),
			Open:  c.Open,
			High:  c.High,
			Low:   c.Low,
			Close: c.Close,
		})
	}
	return candles, nil
}
