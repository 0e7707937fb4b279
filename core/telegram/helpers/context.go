package helpers

import (
	"context"

	"github.com/m3rciful/paperbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// Keys under which per-update state lives in tele.Context.
const (
	ctxKey = "paperbot.ctx"
	ridKey = "paperbot.rid"
)

// StoreContext attaches ctx to c for handlers further down the chain.
func StoreContext(c tele.Context, ctx context.Context) {
	if c == nil || ctx == nil {
		return
	}
	c.Set(ctxKey, ctx)
}

// ContextFrom returns the context stored on c, if any.
func ContextFrom(c tele.Context) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	ctx, ok := c.Get(ctxKey).(context.Context)
	return ctx, ok && ctx != nil
}

// RID returns the request id of the update behind c.
func RID(c tele.Context) string {
	rid, _ := c.Get(ridKey).(string)
	return rid
}

// BuildContext returns the update context for c, creating and caching it
// on first use. It carries the rid plus update, user and chat ids.
func BuildContext(c tele.Context) context.Context {
	if ctx, ok := ContextFrom(c); ok {
		return ctx
	}
	var chatID, userID int64
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		userID = user.ID
	}
	updateID := c.Update().ID

	rid := RID(c)
	if rid == "" {
		rid = logger.BuildRID(updateID, chatID, userID)
		c.Set(ridKey, rid)
	}
	ctx := logger.WithUpdateMeta(logger.WithRID(context.Background(), rid), updateID, userID, chatID)
	ctx = logger.WithLogger(ctx, logger.Component("tg"))
	StoreContext(c, ctx)
	return ctx
}

// WithHandler tags the stored context with the handler name.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler != "" {
		ctx = logger.WithHandler(ctx, handler)
		StoreContext(c, ctx)
	}
	return ctx
}
