package router

import (
	"log/slog"

	tg "github.com/m3rciful/paperbot/core/telegram"
	"github.com/m3rciful/paperbot/core/telegram/callbacks"

	tele "gopkg.in/telebot.v4"
)

// CallbackOptions customises fallback behaviour for callbacks.
type CallbackOptions struct {
	NotFound tele.HandlerFunc
}

// CallbackRoute dispatches every inline button press by its registry key.
// A matched press is acknowledged before its handler runs so the client
// spinner stops even when the handler answers with a new message. Unmatched
// presses are left to the not-found handler, which owns the single answer a
// callback query accepts.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	handler := func(c tele.Context) error {
		if c.Callback() == nil {
			return nil
		}
		key := callbacks.CallbackKey(c)
		name := "callback." + handlerName(key)

		if h, ok := reg.GetCallback(key); ok && h != nil {
			_ = c.Respond()
			return run(c, name, h, slog.String("cb_key", key))
		}
		fallback := reg.CallbackNotFound()
		if fallback == nil {
			fallback = opts.NotFound
		}
		return run(c, name, fallback, slog.String("cb_key", key), slog.String("reason", "not_found"))
	}
	return tg.Route{Endpoint: tele.OnCallback, Handler: wrap(handler)}
}
