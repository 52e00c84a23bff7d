// Package relay implements the Relay Core (spec §4.8): a
// multi-producer/multi-subscriber broadcast hub with bounded per-client
// mailboxes, plus the command demultiplexer that routes inbound JSON
// commands to workers or the Lot Coordinator. Grounded on the teacher's
// internal/pkg/cdl/sync.go CandleSync (uuid-keyed subscriber map guarded
// by RWMutex, non-blocking select-default send to a bounded mailbox)
// generalized from one symbol's candle fan-out to the whole relay's
// typed broadcast messages.
package relay

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/marketrelay/marketrelay/internal/utils/slogx"
)

// Message is one broadcast envelope (spec §6.2): Type discriminates the
// payload shape, Asset ("symbol" on the wire) is empty for asset-agnostic
// messages like lot_status.
type Message struct {
	Type  string `json:"type"`
	Asset string `json:"symbol,omitempty"`
	Data  any    `json:"data,omitempty"`
}

const mailboxSize = 64

// Bus is the broadcast fan-out contract shared by Hub (in-process) and
// RedisBus (multi-process, spec SPEC_FULL domain-stack wiring): register a
// subscriber, publish an already-marshaled message to all of them.
type Bus interface {
	Subscribe() (id string, out <-chan []byte, unsubscribe func())
	PublishRaw(raw []byte)
}

type client struct {
	ch   chan []byte
	done chan struct{}
}

// Hub is the in-process broadcast bus. It implements Bus so
// internal/relay/redisbus.go can be swapped in for multi-process fan-out
// without changing callers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*client
	logger      *slogx.AsyncSlog
}

func NewHub(logger *slogx.AsyncSlog) *Hub {
	return &Hub{
		subscribers: make(map[string]*client),
		logger:      logger,
	}
}

// Subscribe registers a new client mailbox and returns its read side plus
// an unsubscribe func the caller must invoke on disconnect (spec §4.8
// "accepts client connections each with a send-side mailbox").
func (h *Hub) Subscribe() (id string, out <-chan []byte, unsubscribe func()) {
	id = uuid.NewString()
	c := &client{
		ch:   make(chan []byte, mailboxSize),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.subscribers[id] = c
	h.mu.Unlock()
	return id, c.ch, func() { h.remove(id) }
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	c, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	h.mu.Unlock()
	if ok {
		close(c.ch)
	}
}

// Publish fans msg out to every subscriber without blocking (spec §4.8,
// §5 "Slow subscribers are dropped (bounded mailbox; on overflow, close
// that subscriber's connection, never block upstream)"). It satisfies
// both worker.Publisher and lifecycle.Publisher structurally.
func (h *Hub) Publish(asset string, msgType string, payload any) {
	raw, err := json.Marshal(Message{Type: msgType, Asset: asset, Data: payload})
	if err != nil {
		h.logger.Error("relay: failed to marshal broadcast message", "type", msgType, "error", err)
		return
	}
	h.PublishRaw(raw)
}

// PublishRaw fans an already-marshaled message out to every subscriber,
// dropping any whose mailbox is full (spec §4.8/§5).
func (h *Hub) PublishRaw(raw []byte) {
	h.mu.RLock()
	overflowed := make([]string, 0)
	for id, c := range h.subscribers {
		select {
		case c.ch <- raw:
		default:
			overflowed = append(overflowed, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range overflowed {
		h.logger.Warn("relay: subscriber mailbox full, dropping connection", "subscriberId", id)
		h.remove(id)
	}
}

// Len reports the current subscriber count, mainly for tests/metrics.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
