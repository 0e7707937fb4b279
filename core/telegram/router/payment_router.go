package router

import (
	"log/slog"

	tg "github.com/m3rciful/paperbot/core/telegram"

	tele "gopkg.in/telebot.v4"
)

// PaymentOptions binds handlers for payment updates. Nil handlers are skipped.
type PaymentOptions struct {
	OnPayment  tele.HandlerFunc
	OnCheckout tele.HandlerFunc
}

// PaymentRoutes routes successful-payment messages and pre-checkout queries.
// Telegram cancels a checkout that is not answered within ten seconds, so
// OnCheckout should answer before doing anything slow.
func PaymentRoutes(opts PaymentOptions) []tg.Route {
	var routes []tg.Route
	if opts.OnPayment != nil {
		h := func(c tele.Context) error {
			var extras []slog.Attr
			if msg := c.Message(); msg != nil && msg.Payment != nil {
				extras = append(extras,
					slog.String("currency", msg.Payment.Currency),
					slog.Int("amount", msg.Payment.Total),
				)
			}
			return run(c, "payment", opts.OnPayment, extras...)
		}
		routes = append(routes, tg.Route{Endpoint: tele.OnPayment, Handler: wrap(h)})
	}
	if opts.OnCheckout != nil {
		h := func(c tele.Context) error {
			var extras []slog.Attr
			if q := c.PreCheckoutQuery(); q != nil {
				extras = append(extras,
					slog.String("currency", q.Currency),
					slog.Int("amount", q.Total),
				)
			}
			return run(c, "checkout", opts.OnCheckout, extras...)
		}
		routes = append(routes, tg.Route{Endpoint: tele.OnCheckout, Handler: wrap(h)})
	}
	return routes
}
