package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	coreconfig "github.com/m3rciful/paperbot/core/config"
	"github.com/m3rciful/paperbot/core/logger"
	tghelpers "github.com/m3rciful/paperbot/core/telegram/helpers"
	"github.com/m3rciful/paperbot/core/telegram/netutil"
	tgsender "github.com/m3rciful/paperbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// Middleware is a named global middleware installed with bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route binds a handler to any endpoint tele.Bot.Handle accepts.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	DispatcherOptions tgsender.Options
	// Dispatcher overrides DispatcherOptions when set.
	Dispatcher *tgsender.Dispatcher

	Middlewares []Middleware
	Routes      []Route

	DisableWebhookCleanup bool
	// DisableHelperDispatcher keeps the helpers package sending inline.
	DisableHelperDispatcher bool

	OnStart func(ctx context.Context, rt Runtime) error
	// OnStop runs after polling stops with a context that is never
	// cancelled.
	OnStop func(ctx context.Context, rt Runtime) error
}

// Runtime is what lifecycle hooks get to work with.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// RunTelegram builds the bot, installs middleware and routes, and polls
// until ctx is cancelled. Cancellation is a clean stop and returns nil.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if opts.Config == nil {
		return errors.New("telegram: nil config provided")
	}
	cfg := opts.Config
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}

	started := time.Now()
	poller := BuildPoller(cfg)
	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Telegram.Token,
		Poller:  poller,
		Client:  BuildHTTPClient(longPollTimeout(cfg)),
		OnError: reportError,
	})
	if err != nil {
		return fmt.Errorf("telegram: bot initialization failed: %w", netutil.RedactError(err))
	}

	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = tgsender.NewDispatcher(opts.DispatcherOptions)
	}
	if !opts.DisableHelperDispatcher {
		tghelpers.SetDispatcher(dispatcher)
	}
	defer func() {
		dispatcher.Close()
		if !opts.DisableHelperDispatcher {
			tghelpers.SetDispatcher(nil)
		}
	}()

	logMode(ctx, poller, time.Since(started))
	if _, isWebhook := poller.(*tele.Webhook); !isWebhook && !opts.DisableWebhookCleanup {
		// a webhook left over from a previous deployment blocks getUpdates
		if err := bot.RemoveWebhook(); err != nil {
			logger.Warn(ctx, "tg", "webhook.delete", slog.String("status", "fail"), slog.String("err", netutil.Redact(err.Error())))
		}
	}
	install(bot, opts)

	rt := Runtime{Bot: bot, Dispatcher: dispatcher, Registry: opts.Registry}
	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}

	runErr := poll(ctx, bot)
	if opts.OnStop != nil {
		if err := opts.OnStop(context.WithoutCancel(ctx), rt); err != nil {
			return err
		}
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func install(bot *tele.Bot, opts RunOptions) {
	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	for _, r := range opts.Routes {
		if r.Endpoint != nil && r.Handler != nil {
			bot.Handle(r.Endpoint, r.Handler)
		}
	}
	SetupCommands(bot, opts.Registry)
}

// poll runs bot until ctx is done or the poller exits on its own.
func poll(ctx context.Context, bot *tele.Bot) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		bot.Start()
	}()
	select {
	case <-ctx.Done():
		bot.Stop()
		<-done
		return ctx.Err()
	case <-done:
		return nil
	}
}

func reportError(err error, c tele.Context) {
	ctx := context.Background()
	if c != nil {
		ctx = tghelpers.BuildContext(c)
	}
	logger.Debug(ctx, "tg", "handler.error",
		slog.String("err", netutil.Redact(err.Error())),
		slog.String("err_class", netutil.Classify(err)),
	)
}

func logMode(ctx context.Context, poller tele.Poller, took time.Duration) {
	switch p := poller.(type) {
	case *tele.Webhook:
		logger.Info(ctx, "tg", "mode",
			slog.String("mode", coreconfig.RunModeWebhook),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
			slog.Duration("duration", took),
		)
	case *tele.LongPoller:
		logger.Info(ctx, "tg", "mode",
			slog.String("mode", coreconfig.RunModeLongpoll),
			slog.Duration("poll_timeout", p.Timeout),
			slog.Duration("duration", took),
		)
	}
}
