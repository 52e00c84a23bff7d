package relay

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"

	"github.com/marketrelay/marketrelay/internal/utils/slogx"
)

// RedisBus implements Bus over a Redis pub/sub channel, letting several
// relay processes share one broadcast stream (SPEC_FULL domain-stack
// wiring, grounded on gromovart's go-redis usage). Local subscribers are
// still bounded per-client mailboxes exactly as in Hub; Redis only
// replaces the single-process fan-out with a shared channel every relay
// instance both publishes to and reads from.
type RedisBus struct {
	*Hub
	rdb     *redis.Client
	channel string
	logger  *slogx.AsyncSlog
}

func NewRedisBus(ctx context.Context, rdb *redis.Client, channel string, logger *slogx.AsyncSlog) *RedisBus {
	b := &RedisBus{
		Hub:     NewHub(logger),
		rdb:     rdb,
		channel: channel,
		logger:  logger,
	}
	go b.consume(ctx)
	return b
}

// PublishRaw publishes to Redis instead of fanning out locally; consume
// delivers the message back to this process's own subscribers (and every
// other relay process's) via the Redis round-trip, keeping publish order
// identical across the fleet.
func (b *RedisBus) PublishRaw(raw []byte) {
	if err := b.rdb.Publish(context.Background(), b.channel, raw).Err(); err != nil {
		b.logger.Error("relay: redis publish failed, falling back to local fan-out", "error", err)
		b.Hub.PublishRaw(raw)
	}
}

// Publish marshals one broadcast message and sends it through
// RedisBus.PublishRaw; the embedded Hub.Publish would fan out locally only.
func (b *RedisBus) Publish(asset string, msgType string, payload any) {
	raw, err := json.Marshal(Message{Type: msgType, Asset: asset, Data: payload})
	if err != nil {
		b.logger.Error("relay: failed to marshal broadcast message", "type", msgType, "error", err)
		return
	}
	b.PublishRaw(raw)
}

func (b *RedisBus) consume(ctx context.Context) {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.Hub.PublishRaw([]byte(msg.Payload))
		}
	}
}

