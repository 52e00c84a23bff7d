// Package upstream is the Upstream Session (spec §4.4): a per-asset
// connection to the broker handling authorize, history fetch, candle
// streaming, buy/sell, and contract polling over a single websocket.
// Grounded on the teacher's internal/ws/mod.go reconnect pump, generalized
// from a bybit-specific public-stream client into a general req_id
// correlated session, and on internal/broker/bybit/client.go's functional
// options and error-wrapping idiom.
package upstream

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/marketrelay/marketrelay/internal/apperr"
)

// backoffSchedule is the reconnection backoff from spec §5: "1s, 2s, 4s;
// after 3 consecutive failures, worker emits upstream_fatal and exits."
var backoffSchedule = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// conn is a single reconnecting websocket pump. It attempts the backoff
// schedule on disconnect; exhausting it reports a FatalUpstream error on
// fatalCh and stops for good.
type conn struct {
	url    string
	dialer websocket.Dialer
	header http.Header

	mu      sync.Mutex
	ws      *websocket.Conn
	closed  bool
	inbound chan []byte
	fatalCh chan error

	writeWait    time.Duration
	pongWait     time.Duration
	pingInterval time.Duration
}

func newConn(url string) *conn {
	return &conn{
		url:          url,
		dialer:       websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		header:       make(http.Header),
		inbound:      make(chan []byte, 256),
		fatalCh:      make(chan error, 1),
		writeWait:    15 * time.Second,
		pongWait:     30 * time.Second,
		pingInterval: 27 * time.Second,
	}
}

// dial performs the initial connection; callers drive reconnection via run.
func (c *conn) dial() error {
	ws, _, err := c.dialer.Dial(c.url, c.header)
	if err != nil {
		return apperr.New(apperr.TransientUpstream, "upstream.dial", err)
	}
	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
	return nil
}

// run starts the read/write pumps and, on pump exit, retries the backoff
// schedule before giving up and reporting fatal.
func (c *conn) run(ctx context.Context) {
	for {
		if err := c.pumpOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			if !c.reconnect(ctx) {
				c.fatalCh <- apperr.New(apperr.FatalUpstream, "upstream.reconnect",
					fmt.Errorf("exhausted reconnect attempts: %w", err))
				return
			}
			continue
		}
		return
	}
}

func (c *conn) reconnect(ctx context.Context) bool {
	for _, backoff := range backoffSchedule {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		if err := c.dial(); err == nil {
			return true
		}
	}
	return false
}

// pumpOnce runs read and write pumps against the current connection until
// either fails, then returns the failure.
func (c *conn) pumpOnce(ctx context.Context) error {
	pumpCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 2)

	go func() {
		errCh <- c.readPump(pumpCtx)
	}()
	go func() {
		errCh <- c.writePump(pumpCtx)
	}()

	// The first pump to stop decides the result; cancelling pumpCtx stops
	// the write pump, and the read pump ends at its next read error.
	return <-errCh
}

func (c *conn) readPump(ctx context.Context) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()

	ws.SetReadDeadline(time.Now().Add(c.pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(c.pongWait))
		return nil
	})
	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c.inbound <- msg:
		}
	}
}

func (c *conn) writePump(ctx context.Context) error {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.writeMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

func (c *conn) writeMessage(msgType int, data []byte) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(c.writeWait))
	return ws.WriteMessage(msgType, data)
}

func (c *conn) send(data []byte) error {
	return c.writeMessage(websocket.TextMessage, data)
}

func (c *conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.ws != nil {
		c.ws.Close()
	}
}
