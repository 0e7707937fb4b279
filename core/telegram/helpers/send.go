package helpers

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/paperbot/core/logger"
	"github.com/m3rciful/paperbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var dispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher routes helper sends through d. With nil they run inline.
func SetDispatcher(d *sender.Dispatcher) {
	dispatcher.Store(d)
}

// deliver queues run on the dispatcher. A full or closed queue degrades to
// an inline send rather than dropping the message.
func deliver(c tele.Context, action string, run func(context.Context) error) error {
	ctx := BuildContext(c)
	d := dispatcher.Load()
	if d == nil {
		return run(ctx)
	}
	err := d.Enqueue(ctx, action, "sendMessage", run)
	if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
		logger.Warn(ctx, "tg.sender", "queue.fallback",
			slog.String("action", action),
			slog.String("err", err.Error()),
		)
		return run(ctx)
	}
	return err
}

// SendText sends text without a parse mode.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	args := make([]interface{}, 0, 1)
	if len(opts) > 0 && opts[0] != nil {
		args = append(args, opts[0])
	}
	return deliver(c, "send.text", func(context.Context) error {
		return c.Send(text, args...)
	})
}

// SendMDV2 sends MarkdownV2 text with an optional keyboard.
func SendMDV2(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdownV2}
	if len(markup) > 0 {
		opts.ReplyMarkup = markup[0]
	}
	return SendText(c, text, opts)
}
