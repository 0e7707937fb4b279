package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/m3rciful/paperbot/core/logger"
	tghelpers "github.com/m3rciful/paperbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RecoverMiddleware turns a handler panic into an error so the update is
// reported as failed instead of taking the poller down.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.Error(tghelpers.BuildContext(c), "tg", "tg.panic",
				slog.Any("err", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("handler panic: %v", r)
		}()
		return next(c)
	}
}
