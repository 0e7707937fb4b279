package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/paperbot/core/logger"
	tghelpers "github.com/m3rciful/paperbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	Interval  time.Duration
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
}

const pruneEvery = 256

type limiter struct {
	interval time.Duration
	now      func() time.Time

	mu    sync.Mutex
	last  map[int64]time.Time
	calls int
}

// allow records a hit for user and reports whether it is outside the interval.
func (l *limiter) allow(user int64) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.calls++; l.calls%pruneEvery == 0 {
		for id, ts := range l.last {
			if now.Sub(ts) >= l.interval {
				delete(l.last, id)
			}
		}
	}
	if ts, ok := l.last[user]; ok && now.Sub(ts) < l.interval {
		return false
	}
	l.last[user] = now
	return true
}

// RateLimitMiddleware drops updates arriving from one user faster than
// opts.Interval. Payment, checkout and shipping updates always pass.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	l := &limiter{interval: opts.Interval, now: time.Now, last: make(map[int64]time.Time)}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}
			kind := UpdateKind(c.Update())
			if _, skip := opts.Exclude[kind]; skip || isPaymentKind(kind) {
				return next(c)
			}
			if l.allow(user.ID) {
				return next(c)
			}
			logger.Warn(tghelpers.BuildContext(c), "tg", "tg.rate_limit",
				slog.Int64("user_id", user.ID),
				slog.String("kind", kind),
			)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}
