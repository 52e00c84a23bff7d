package relay

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/marketrelay/marketrelay/internal/utils/slogx"
)

// upgrader accepts the inbound client-facing relay socket (SPEC_FULL
// §1 ambient stack: gorilla/websocket "for both the outbound broker
// connection ... AND the inbound client-facing relay socket").
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

const (
	clientWriteWait = 10 * time.Second
	clientPongWait  = 30 * time.Second
)

// Server exposes the broadcast bus and command demultiplexer over a
// plain HTTP+WebSocket handler (spec §6 "a JSON command channel" /
// "a JSON broadcast channel").
type Server struct {
	bus    Bus
	demux  *Demux
	logger *slogx.AsyncSlog
}

func NewServer(bus Bus, demux *Demux, logger *slogx.AsyncSlog) *Server {
	return &Server{bus: bus, demux: demux, logger: logger}
}

func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		srv.logger.Warn("relay: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	_, out, unsubscribe := srv.bus.Subscribe()
	defer unsubscribe()

	readDone := make(chan struct{})
	go srv.readLoop(conn, readDone)

	for {
		select {
		case <-readDone:
			return
		case raw, ok := <-out:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		}
	}
}

func (srv *Server) readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadDeadline(time.Now().Add(clientPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(clientPongWait))
		return nil
	})
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		srv.demux.Dispatch(msg)
	}
}
