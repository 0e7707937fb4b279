package router

import (
	"context"
	"log/slog"
	"sort"

	"github.com/m3rciful/paperbot/core/logger"
	tg "github.com/m3rciful/paperbot/core/telegram"
	"github.com/m3rciful/paperbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandRouteOptions configures how commands are wrapped and exposed.
type CommandRouteOptions struct {
	AdminID       int64
	OnAdminReject tele.HandlerFunc
}

// CommandRoutes returns one route per command name and alias, in name order.
// Admin-only commands are gated before the handler runs.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}
	admin := middleware.AdminOnlyMiddleware(middleware.AdminOptions{
		AdminID:  opts.AdminID,
		OnReject: opts.OnAdminReject,
	})

	cmds := reg.Commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)

	var routes []tg.Route
	for _, name := range names {
		def := cmds[name]
		label, inner := handlerName(name), def.Handler
		h := wrap(func(c tele.Context) error { return run(c, label, inner) })
		if def.AdminOnly {
			h = admin(h)
		}
		routes = append(routes, tg.Route{Endpoint: name, Handler: h})
		for _, alias := range def.Aliases {
			routes = append(routes, tg.Route{Endpoint: alias, Handler: h})
		}
	}

	logger.Info(context.Background(), "tg.wire", "complete",
		slog.Int("commands", len(names)),
		slog.Int("routes", len(routes)),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)
	return routes
}
