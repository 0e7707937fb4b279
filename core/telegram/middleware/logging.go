package middleware

import (
	"log/slog"

	"github.com/m3rciful/paperbot/core/logger"
	"github.com/m3rciful/paperbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/paperbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// LoggerMiddleware builds the update context and writes one sampled
// update.received line. It runs once per update even when applied both
// globally and per route.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if _, seen := tghelpers.ContextFrom(c); seen {
			return next(c)
		}
		ctx := tghelpers.BuildContext(c)
		if logger.ShouldSampleDebug() {
			logger.LogEvent(ctx, logger.Component("tg"), slog.LevelDebug, "update.received", receiptAttrs(c)...)
		}
		return next(c)
	}
}

func receiptAttrs(c tele.Context) []slog.Attr {
	upd := c.Update()
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("rid", tghelpers.RID(c)),
		slog.Int("update_id", upd.ID),
		slog.String("kind", UpdateKind(upd)),
	}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.Int64("chat_id", chat.ID), slog.String("chat_type", string(chat.Type)))
	}
	if user := c.Sender(); user != nil {
		attrs = append(attrs, slog.Int64("user_id", user.ID))
		if user.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
		}
		if user.LanguageCode != "" {
			attrs = append(attrs, slog.String("lang", user.LanguageCode))
		}
	}
	switch {
	case upd.Callback != nil:
		key, payload := callbacks.ParseCallbackData(upd.Callback)
		if key != "" {
			attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(key, 128)))
		}
		if payload != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(payload, 256)))
		}
	case upd.Message != nil:
		if t := c.Text(); t != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
		}
	}
	return attrs
}
