// Package bot wires the storefront controller into the core Telegram runtime.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/paperbot/core/logger"
	coretelegram "github.com/m3rciful/paperbot/core/telegram"
	"github.com/m3rciful/paperbot/core/telegram/router"
	tgsender "github.com/m3rciful/paperbot/core/telegram/sender"
	"github.com/m3rciful/paperbot/storefront/api"
	"github.com/m3rciful/paperbot/storefront/app"
	"github.com/m3rciful/paperbot/storefront/bridge"
	"github.com/m3rciful/paperbot/storefront/config"
	"github.com/m3rciful/paperbot/storefront/delivery"
	"github.com/m3rciful/paperbot/storefront/initdata"

	tele "gopkg.in/telebot.v4"
)

const component = "app"

// App is the assembled paperbot.
type App struct {
	cfg        *config.AppConfig
	db         *sqlx.DB
	sink       delivery.Sink
	dispatcher *tgsender.Dispatcher
	platform   *bridge.Platform
	ctrl       *app.Controller
	sessions   *app.Sessions
	registry   *coretelegram.Registry
}

// New builds the app from configuration. db may be nil unless the postgres
// delivery sink is selected.
func New(ctx context.Context, cfg *config.AppConfig, db *sqlx.DB) (*App, error) {
	if cfg == nil {
		return nil, errors.New("bot: nil config")
	}
	client, err := api.New(api.Options{
		BaseURL: cfg.Storefront.APIBaseURL,
		Timeout: cfg.RequestTimeout(),
	})
	if err != nil {
		return nil, err
	}
	signer, err := initdata.NewSigner(cfg.Telegram.Token)
	if err != nil {
		return nil, err
	}
	sink, err := delivery.New(ctx, cfg.Delivery, db)
	if err != nil {
		return nil, fmt.Errorf("bot: delivery sink: %w", err)
	}

	dispatcher := tgsender.NewDispatcher(cfg.Dispatcher.Options())
	platform := bridge.NewPlatform(bridge.Options{
		Signer:         signer,
		Sink:           sink,
		Dispatcher:     dispatcher,
		Greeting:       cfg.Storefront.Greeting,
		PopupTTL:       cfg.PopupTTL(),
		AcceptCheckout: cfg.Payments.AutoAcceptCheckout,
	})
	sessions := app.NewSessions()
	ctrl, err := app.New(app.Options{
		API:          client,
		Hosts:        platform,
		Sessions:     sessions,
		TopUpAmounts: cfg.Storefront.TopUpAmounts,
	})
	if err != nil {
		dispatcher.Close()
		_ = sink.Close()
		return nil, err
	}
	platform.OnEvent(bridge.EventPaymentCompleted, ctrl.PaymentCompleted)

	a := &App{
		cfg:        cfg,
		db:         db,
		sink:       sink,
		dispatcher: dispatcher,
		platform:   platform,
		ctrl:       ctrl,
		sessions:   sessions,
		registry:   coretelegram.NewRegistry(),
	}
	a.registerCommands()
	a.registerCallbacks()
	a.registry.SetTextFallback(a.handleNavText)
	a.registry.SetCallbackNotFound(a.UnknownCallback)

	logger.Info(ctx, component, "app.built",
		slog.String("api_base_url", cfg.Storefront.APIBaseURL),
		slog.String("delivery_sink", sink.Name()),
		slog.Bool("database", db != nil),
	)
	return a, nil
}

// Registry exposes the command and callback registry.
func (a *App) Registry() *coretelegram.Registry { return a.registry }

// TelegramRunOptions builds the runtime options for the core Telegram runner.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	core := a.cfg.CoreConfig()
	if core == nil {
		return coretelegram.RunOptions{}, errors.New("bot: missing core config")
	}

	routes := router.CommandRoutes(a.registry, router.CommandRouteOptions{
		AdminID:       core.Telegram.AdminID,
		OnAdminReject: a.rejectAdmin,
	})
	textOpts, callbackOpts := router.FallbackOptions(a)
	routes = append(routes, router.CallbackRoute(a.registry, callbackOpts))
	routes = append(routes, router.TextRoutes(a.registry, textOpts)...)
	routes = append(routes, router.PaymentRoutes(router.PaymentOptions{
		OnPayment:  a.platform.HandlePayment,
		OnCheckout: a.platform.HandleCheckout,
	})...)

	return coretelegram.RunOptions{
		Config:      core,
		Registry:    a.registry,
		Dispatcher:  a.dispatcher,
		Middlewares: coretelegram.DefaultMiddlewares(core, nil),
		Routes:      routes,
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			if rt.Bot == nil {
				return errors.New("bot: runtime has no bot")
			}
			a.platform.Attach(rt.Bot)
			return nil
		},
		OnStop: func(ctx context.Context, rt coretelegram.Runtime) error {
			// queued deliveries still need the sink
			a.dispatcher.Close()
			return a.Close()
		},
	}, nil
}

// Close releases the delivery sink and the database.
func (a *App) Close() error {
	var errs []error
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sink: %w", err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close db: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) rejectAdmin(c tele.Context) error {
	return c.Send("This command is for administrators only.")
}
