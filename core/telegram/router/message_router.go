package router

import (
	tg "github.com/m3rciful/paperbot/core/telegram"

	tele "gopkg.in/telebot.v4"
)

// TextOptions controls fallback behaviour for text and document updates.
type TextOptions struct {
	UnknownText     tele.HandlerFunc
	UnknownDocument tele.HandlerFunc
}

// Fallbacks answers updates that no route claims.
type Fallbacks interface {
	UnknownText(c tele.Context) error
	UnknownDocument(c tele.Context) error
	UnknownCallback(c tele.Context) error
}

// FallbackOptions builds text and callback options answered by fb.
func FallbackOptions(fb Fallbacks) (TextOptions, CallbackOptions) {
	if fb == nil {
		return TextOptions{}, CallbackOptions{}
	}
	return TextOptions{UnknownText: fb.UnknownText, UnknownDocument: fb.UnknownDocument},
		CallbackOptions{NotFound: fb.UnknownCallback}
}

// TextRoutes routes plain text. Text matching a registered command or alias
// runs that command, then the registry text fallback gets a chance, then
// UnknownText. Admin-only commands are reachable through CommandRoutes only.
func TextRoutes(reg *tg.Registry, opts TextOptions) []tg.Route {
	text := func(c tele.Context) error {
		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(c.Text()); ok && cmd.Handler != nil && !cmd.AdminOnly {
				return run(c, handlerName(key), cmd.Handler)
			}
			if fb := reg.TextFallback(); fb != nil {
				return run(c, "fallback", fb)
			}
		}
		return run(c, "unknown_text", opts.UnknownText)
	}
	document := func(c tele.Context) error {
		return run(c, "unexpected_document", opts.UnknownDocument)
	}
	return []tg.Route{
		{Endpoint: tele.OnText, Handler: wrap(text)},
		{Endpoint: tele.OnDocument, Handler: wrap(document)},
	}
}
