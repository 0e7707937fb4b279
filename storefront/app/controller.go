// Package app holds the storefront action handlers: every user action is
// forwarded to the storefront API and the outcome reflected into the host.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/m3rciful/paperbot/core/logger"
	"github.com/m3rciful/paperbot/storefront"
	"github.com/m3rciful/paperbot/storefront/api"
	"github.com/m3rciful/paperbot/storefront/bridge"
	"github.com/m3rciful/paperbot/storefront/initdata"
	"github.com/m3rciful/paperbot/storefront/nav"
	"github.com/m3rciful/paperbot/storefront/view"
)

const component = "storefront"

// User-facing messages.
const (
	MsgLoginRequired      = "Please log in to purchase papers"
	MsgPurchaseFailed     = "Failed to purchase paper"
	MsgPurchaseStarsTitle = "Purchase Stars"
	MsgNeedStars          = "You need %d stars to purchase this paper."
	MsgConfirmInvoice     = "Purchase %d stars for %d XTR?"
	MsgInvoiceFailed      = "Failed to create payment invoice"
	MsgOpenInvoiceFailed  = "Failed to open payment window"
	MsgPurchased          = "Paper purchased successfully!"
	MsgPaymentCompleted   = "Payment completed successfully!"
	MsgPaperSent          = "Paper sent to your Telegram chat!"
	MsgRequestFailed      = "Failed to request paper"
	MsgSendRequestFailed  = "Failed to send paper request"
	MsgLoadUserFailed     = "Failed to load user data"
	MsgLoadDepartments    = "Failed to load departments"
	MsgLoadSemesters      = "Failed to load semesters"
	MsgLoadYears          = "Failed to load years"
	MsgLoadPapers         = "Failed to load papers"
	MsgLoadHistory        = "Failed to load purchase history"
	MsgLoadProfile        = "Failed to load profile"
)

var (
	// ErrNotLoggedIn is returned when an action needs a session user.
	ErrNotLoggedIn = errors.New("app: no session user")
	// ErrInFlight is returned when the same action is already running.
	ErrInFlight = errors.New("app: action already in flight")
	// ErrStale is returned for presses on an outdated keyboard.
	ErrStale = errors.New("app: stale keyboard")
	// ErrSuperseded is returned when a newer transition was committed while
	// a listing was loading. It wraps ErrStale.
	ErrSuperseded = fmt.Errorf("%w: superseded by a newer transition", ErrStale)
	// ErrRejected is returned when the backend declines an action.
	ErrRejected = errors.New("app: rejected by backend")
	// ErrInvalidAmount is returned for non-positive top-up amounts.
	ErrInvalidAmount = errors.New("app: invalid star amount")
)

// API is the storefront backend.
type API interface {
	GetUser(ctx context.Context, initData string) (storefront.User, error)
	ListDepartments(ctx context.Context) ([]string, error)
	ListSemesters(ctx context.Context, department string) ([]string, error)
	ListYears(ctx context.Context, department, semester string) ([]string, error)
	ListPapers(ctx context.Context, department, semester, year string) ([]storefront.Paper, error)
	Purchase(ctx context.Context, initData string, paperID int64) (storefront.PurchaseResult, error)
	CreateInvoice(ctx context.Context, initData string, amount int) (storefront.Invoice, error)
	GetPurchaseHistory(ctx context.Context, initData string) ([]storefront.PurchaseRecord, error)
	GetProfile(ctx context.Context, initData string) (storefront.ProfileStats, error)
	RequestPaper(ctx context.Context, initData string, paperID int64) (storefront.RequestResult, error)
}

// HostProvider resolves the host of a user outside an update, e.g. for
// platform events.
type HostProvider interface {
	HostForChat(chatID int64, user initdata.User) bridge.Host
}

// Options configures a Controller.
type Options struct {
	API          API
	Hosts        HostProvider
	Sessions     *Sessions
	TopUpAmounts []int
}

// Controller implements the storefront actions.
type Controller struct {
	api      API
	hosts    HostProvider
	sessions *Sessions
	topUps   []int
	loads    singleflight.Group
}

// New builds a controller.
func New(opts Options) (*Controller, error) {
	if opts.API == nil {
		return nil, errors.New("app: API is required")
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = NewSessions()
	}
	return &Controller{
		api:      opts.API,
		hosts:    opts.Hosts,
		sessions: sessions,
		topUps:   append([]int(nil), opts.TopUpAmounts...),
	}, nil
}

// Session returns the session served by host.
func (c *Controller) Session(h bridge.Host) *Session {
	return c.sessions.Get(h.User().ID)
}

// Start opens the storefront: expands the host, loads the user and shows the
// department list.
func (c *Controller) Start(ctx context.Context, h bridge.Host) error {
	if err := h.Expand(ctx); err != nil {
		logger.Warn(ctx, component, "host.expand_failed", slog.String("err", err.Error()))
	}
	if _, err := c.LoadUser(ctx, h); err != nil {
		logger.Warn(ctx, component, "start.user_missing", slog.String("err", err.Error()))
	}
	return c.EnterCatalog(ctx, h)
}

// LoadUser reloads the session user. Concurrent reloads for one user share a
// single backend call.
func (c *Controller) LoadUser(ctx context.Context, h bridge.Host) (storefront.User, error) {
	uid := h.User().ID
	v, err, shared := c.loads.Do(strconv.FormatInt(uid, 10), func() (any, error) {
		raw, err := h.InitData()
		if err != nil {
			return storefront.User{}, err
		}
		return c.api.GetUser(ctx, raw)
	})
	if err != nil {
		c.fail(ctx, h, "user.load", err, MsgLoadUserFailed)
		return storefront.User{}, err
	}
	u := v.(storefront.User)
	c.sessions.Get(uid).Update(func(m Model) Model {
		m.User = &u
		return m
	})
	logger.Debug(ctx, component, "user.loaded",
		slog.Int64("user_id", u.ID),
		slog.Int("stars", u.Stars),
		slog.Bool("shared", shared),
	)
	return u, nil
}

// Rerender draws the current screen again.
func (c *Controller) Rerender(ctx context.Context, h bridge.Host) error {
	return c.render(ctx, h, c.Session(h).Model())
}

func (c *Controller) render(ctx context.Context, h bridge.Host, m Model) error {
	if err := h.Render(ctx, c.screen(m)); err != nil {
		logger.Warn(ctx, component, "render.failed",
			slog.String("tab", string(m.Nav.Tab)),
			slog.String("panel", m.Nav.Panel.String()),
			slog.String("err", err.Error()),
		)
		return err
	}
	return nil
}

func (c *Controller) screen(m Model) view.Screen {
	switch m.Nav.Tab {
	case nav.TabWallet:
		return view.Wallet(m.User, c.topUps)
	case nav.TabHistory:
		return view.History(m.History)
	case nav.TabProfile:
		return view.Profile(m.User, m.Profile)
	}
	sel := m.Nav.Selection
	switch m.Nav.Panel {
	case nav.PanelSemesters:
		return view.Semesters(m.Nav.Gen, sel, m.Semesters)
	case nav.PanelYears:
		return view.Years(m.Nav.Gen, sel, m.Years)
	case nav.PanelPapers:
		return view.Papers(m.Nav.Gen, sel, m.Papers)
	default:
		return view.Departments(m.Nav.Gen, m.Departments)
	}
}

func (c *Controller) showError(ctx context.Context, h bridge.Host, msg string) {
	c.popup(ctx, h, bridge.Popup{
		Title:   "Error",
		Message: msg,
		Buttons: []bridge.PopupButton{{ID: bridge.ButtonOK, Text: "OK"}},
	}, nil)
}

func (c *Controller) showSuccess(ctx context.Context, h bridge.Host, msg string) {
	c.popup(ctx, h, bridge.Popup{
		Title:   "Success",
		Message: msg,
		Buttons: []bridge.PopupButton{{ID: bridge.ButtonOK, Text: "OK"}},
	}, nil)
}

func (c *Controller) popup(ctx context.Context, h bridge.Host, p bridge.Popup, cb bridge.PopupCallback) {
	if err := h.ShowPopup(ctx, p, cb); err != nil {
		logger.Warn(ctx, component, "popup.failed",
			slog.String("title", p.Title),
			slog.String("err", err.Error()),
		)
	}
}

// fail logs err and shows the backend message when there is one, else
// fallback.
func (c *Controller) fail(ctx context.Context, h bridge.Host, op string, err error, fallback string) {
	msg := api.UserMessage(err)
	if msg == "" {
		msg = fallback
	}
	attrs := []slog.Attr{
		slog.String("op", op),
		slog.String("err", err.Error()),
		slog.String("err_code", errorCode(err)),
	}
	logger.Warn(ctx, component, "action.failed", attrs...)
	c.showError(ctx, h, msg)
}

func errorCode(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	switch {
	case errors.Is(err, ErrNotLoggedIn):
		return "guard_violation"
	case errors.Is(err, ErrRejected):
		return "api_failure"
	}
	return "unknown"
}
