// Package slogx generalizes the teacher's TradingBot.log(level, msg, args)
// wrapper method into a standalone, non-blocking type shared by every
// goroutine in this tree (one per asset, one per contract, one per lot
// run) so a slow log sink never stalls a trade decision.
package slogx

import (
	"context"
	"log/slog"
)

type record struct {
	level slog.Level
	msg   string
	args  []any
}

// AsyncSlog dispatches log records to an underlying *slog.Logger on a
// dedicated goroutine so callers never block on I/O.
type AsyncSlog struct {
	logger *slog.Logger
	ch     chan record
}

// NewAsyncSlog starts the dispatch goroutine, which runs until ctx is
// cancelled.
func NewAsyncSlog(ctx context.Context, logger *slog.Logger) *AsyncSlog {
	a := &AsyncSlog{
		logger: logger,
		ch:     make(chan record, 256),
	}
	go a.run(ctx)
	return a
}

func (a *AsyncSlog) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-a.ch:
			a.logger.Log(context.Background(), r.level, r.msg, r.args...)
		}
	}
}

// Log enqueues a record, dropping it if the dispatch channel is full
// rather than blocking the caller — a slow logger must never stall a
// per-asset worker or the lot coordinator.
func (a *AsyncSlog) Log(level slog.Level, msg string, args ...any) {
	if a == nil {
		return
	}
	select {
	case a.ch <- record{level: level, msg: msg, args: args}:
	default:
	}
}

func (a *AsyncSlog) Info(msg string, args ...any)  { a.Log(slog.LevelInfo, msg, args...) }
func (a *AsyncSlog) Warn(msg string, args ...any)  { a.Log(slog.LevelWarn, msg, args...) }
func (a *AsyncSlog) Error(msg string, args ...any) { a.Log(slog.LevelError, msg, args...) }
func (a *AsyncSlog) Debug(msg string, args ...any) { a.Log(slog.LevelDebug, msg, args...) }
