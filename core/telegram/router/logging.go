package router

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/m3rciful/paperbot/core/logger"
	tghelpers "github.com/m3rciful/paperbot/core/telegram/helpers"
	"github.com/m3rciful/paperbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// wrap applies the per-route middleware every router shares.
func wrap(h tele.HandlerFunc) tele.HandlerFunc {
	return middleware.RecoverMiddleware(middleware.LoggerMiddleware(h))
}

// run executes h under name and writes one handler.handled line.
func run(c tele.Context, name string, h tele.HandlerFunc, extras ...slog.Attr) error {
	start := time.Now()
	tghelpers.WithHandler(c, name)
	var err error
	if h != nil {
		err = h(c)
	}
	status := "ok"
	if h == nil {
		status = "skip"
	} else if err != nil {
		status = "fail"
	}
	summarize(c, name, status, time.Since(start), err, extras...)
	return err
}

func summarize(c tele.Context, name, status string, took time.Duration, err error, extras ...slog.Attr) {
	ctx := tghelpers.WithHandler(c, name)
	msgs, kb := middleware.GetCounters(c)
	outcome := "ok"
	if err != nil {
		outcome = "fail"
	}
	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("handler", name),
		slog.String("outcome", outcome),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
		slog.Duration("duration", took),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", errorCode(err)),
		)
	}
	logger.LogEvent(ctx, logger.Component("tg"), slog.LevelInfo, "handler.handled", append(attrs, extras...)...)
}

// handlerName turns a command or callback key into a log-friendly name.
func handlerName(key string) string {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if key == "" {
		return "unknown"
	}
	return strings.ToLower(strings.ReplaceAll(key, " ", "_"))
}

// errorCode prefers an explicit Code() from the error chain and falls back
// to the concrete type name.
func errorCode(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		if code := strings.TrimSpace(coded.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Name() == "" {
		return "UNKNOWN_ERROR"
	}
	return strings.ToUpper(t.Name())
}
