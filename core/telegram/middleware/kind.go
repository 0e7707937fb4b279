package middleware

import (
	coreconfig "github.com/m3rciful/paperbot/core/config"

	tele "gopkg.in/telebot.v4"
)

// Update kinds that carry money. They bypass throttling.
const (
	KindPayment  = "payment"
	KindCheckout = "checkout"
	KindShipping = "shipping"
	KindOther    = "other"
)

// UpdateKind names the part of u a handler will act on.
func UpdateKind(u tele.Update) string {
	switch {
	case u.PreCheckoutQuery != nil:
		return KindCheckout
	case u.ShippingQuery != nil:
		return KindShipping
	case u.Message != nil && u.Message.Payment != nil:
		return KindPayment
	case u.Callback != nil:
		return coreconfig.UpdateCallback
	case u.Message != nil:
		return coreconfig.UpdateMessage
	case u.Query != nil:
		return coreconfig.UpdateInlineQuery
	}
	return KindOther
}

func isPaymentKind(kind string) bool {
	return kind == KindPayment || kind == KindCheckout || kind == KindShipping
}
