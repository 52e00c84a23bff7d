// Package alert is the Alert Sink (SPEC_FULL §4.9): it watches the
// broadcast bus for upstream_fatal, trade_error, and any lot_status whose
// Active field is false, and forwards a one-line summary to an
// ops Telegram chat. Grounded on rewired-gh-poly_oracle's
// internal/telegram/client.go (bot handle, chat id, linear-backoff retry,
// MarkdownV2 escaping), generalized from market-odds alerts to relay
// operational events. Best-effort: a send failure is logged and dropped,
// never propagated to the relay (spec §4.9).
package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/marketrelay/marketrelay/internal/utils/slogx"
)

// bus is the subset of relay.Bus the sink needs to watch the broadcast feed;
// defined locally so this package need not import internal/relay.
type bus interface {
	Subscribe() (id string, out <-chan []byte, unsubscribe func())
}

// envelope mirrors relay.Message's wire shape for decoding.
type envelope struct {
	Type  string `json:"type"`
	Asset string `json:"symbol,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// Sink sends best-effort operational notices to a Telegram chat.
type Sink struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	logger         *slogx.AsyncSlog
}

func NewSink(botToken, chatID string, logger *slogx.AsyncSlog) (*Sink, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("alert: create telegram bot: %w", err)
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("alert: invalid chat id %q: %w", chatID, err)
	}
	return &Sink{
		bot:            bot,
		chatID:         id,
		maxRetries:     3,
		retryDelayBase: time.Second,
		logger:         logger,
	}, nil
}

// Run subscribes to b and watches every broadcast until ctx is canceled,
// handing upstream_fatal, trade_error, and lot_status messages to
// OnBroadcast (spec §4.9 "subscribes to the broadcast bus"). Blocks; call
// in its own goroutine.
func (s *Sink) Run(ctx context.Context, b bus) {
	_, out, unsubscribe := b.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-out:
			if !ok {
				return
			}
			var msg envelope
			if err := json.Unmarshal(raw, &msg); err != nil {
				s.logger.Warn("alert: failed to decode broadcast message", "error", err)
				continue
			}
			s.OnBroadcast(msg.Type, msg.Asset, msg.Data)
		}
	}
}

// OnBroadcast inspects one relay broadcast message and, if it matches an
// alert-worthy event, sends it. Called from Run's subscriber loop; never
// blocks its caller beyond the configured retry budget, and never returns
// an error the relay must react to.
func (s *Sink) OnBroadcast(msgType, asset string, payload any) {
	var text string
	switch msgType {
	case "upstream_fatal":
		text = fmt.Sprintf("🔴 *upstream\\_fatal* on `%s`: %s", escapeMarkdownV2(asset), escapeMarkdownV2(fmt.Sprint(payload)))
	case "trade_error":
		text = fmt.Sprintf("⚠️ *trade\\_error* on `%s`: %s", escapeMarkdownV2(asset), escapeMarkdownV2(fmt.Sprint(payload)))
	case "lot_status":
		if m, ok := payload.(map[string]any); ok {
			if active, ok := m["Active"].(bool); ok && !active {
				text = fmt.Sprintf("⏹ lot stopped on `%s`", escapeMarkdownV2(asset))
			}
		}
	}
	if text == "" {
		return
	}
	if err := s.send(text); err != nil {
		s.logger.Warn("alert: telegram send failed, dropping", "error", err)
	}
}

func (s *Sink) send(text string) error {
	msg := tgbotapi.NewMessage(s.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < s.maxRetries; i++ {
		if _, err := s.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(s.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("alert: failed after %d retries: %w", s.maxRetries, lastErr)
}

func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
