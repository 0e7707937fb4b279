package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/m3rciful/paperbot/core/buildinfo"
	coretelegram "github.com/m3rciful/paperbot/core/telegram"
	"github.com/m3rciful/paperbot/core/telegram/callbacks"
	"github.com/m3rciful/paperbot/core/telegram/format"
	tghelpers "github.com/m3rciful/paperbot/core/telegram/helpers"
	"github.com/m3rciful/paperbot/storefront/app"
	"github.com/m3rciful/paperbot/storefront/bridge"
	"github.com/m3rciful/paperbot/storefront/nav"
	"github.com/m3rciful/paperbot/storefront/view"

	tele "gopkg.in/telebot.v4"
)

const helpText = `*Question paper store*

Browse papers by department, semester and year, then tap a paper to buy it with stars\.

/papers \- browse the catalog
/wallet \- balance and top\-ups
/history \- your papers, tap one to get it again
/profile \- purchase statistics`

func (a *App) registerCommands() {
	cmds := map[string]coretelegram.Command{
		"/start":   {Handler: a.handleStart, Description: "Open the store"},
		"/papers":  {Handler: a.tabHandler(nav.TabCatalog), Description: "Browse question papers", Aliases: []string{"/catalog"}},
		"/wallet":  {Handler: a.tabHandler(nav.TabWallet), Description: "Balance and top-ups"},
		"/history": {Handler: a.tabHandler(nav.TabHistory), Description: "Purchased papers"},
		"/profile": {Handler: a.tabHandler(nav.TabProfile), Description: "Purchase statistics"},
		"/help":    {Handler: a.handleHelp, Description: "How the store works"},
		"/diag":    {Handler: a.handleDiag, Description: "Runtime diagnostics", AdminOnly: true, Hidden: true},
	}
	for name, cmd := range cmds {
		if err := a.registry.RegisterCommand(name, cmd); err != nil {
			panic(fmt.Sprintf("bot: register command %q: %v", name, err))
		}
	}
}

func (a *App) registerCallbacks() {
	handlers := map[string]tele.HandlerFunc{
		view.ActionDepartment: a.itemHandler(a.ctrl.SelectDepartment),
		view.ActionSemester:   a.itemHandler(a.ctrl.SelectSemester),
		view.ActionYear:       a.itemHandler(a.ctrl.SelectYear),
		view.ActionBack:       a.handleBack,
		view.ActionTab:        a.handleTab,
		view.ActionPaper:      a.handlePaper,
		view.ActionTopUp:      a.handleTopUp,
		view.ActionGetPaper:   a.handleGetPaper,
		bridge.PopupUnique:    a.platform.HandlePopup,
	}
	for key, h := range handlers {
		if err := a.registry.RegisterCallback(key, h); err != nil {
			panic(fmt.Sprintf("bot: register callback %q: %v", key, err))
		}
	}
}

func (a *App) handleStart(c tele.Context) error {
	return settle(a.ctrl.Start(tghelpers.BuildContext(c), a.platform.HostFor(c)))
}

func (a *App) handleHelp(c tele.Context) error {
	return tghelpers.SendMDV2(c, helpText)
}

func (a *App) handleDiag(c tele.Context) error {
	st := a.dispatcher.Stats()
	text := fmt.Sprintf("*Diagnostics*\n\nversion: `%s`\ncommit: `%s`\nsessions: %d\nopen popups: %d\ndelivery sink: %s\nqueue: %d queued, %d sent, %d retried, %d failed, %d rejected",
		format.MD(buildinfo.Version),
		format.MD(buildinfo.Commit),
		a.sessions.Len(),
		a.platform.PendingPopups(),
		format.MD(a.sink.Name()),
		st.Queued, st.Succeeded, st.Retried, st.Failed, st.Rejected,
	)
	return tghelpers.SendMDV2(c, text)
}

func (a *App) tabHandler(t nav.Tab) tele.HandlerFunc {
	return func(c tele.Context) error {
		return settle(a.ctrl.SwitchTab(tghelpers.BuildContext(c), a.platform.HostFor(c), t))
	}
}

type selectFunc func(ctx context.Context, h bridge.Host, gen uint64, idx int) error

func (a *App) itemHandler(sel selectFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		gen, idx, err := view.ParseItemPayload(callbacks.CallbackPayload(c))
		if err != nil {
			return err
		}
		return settle(sel(tghelpers.BuildContext(c), a.platform.HostFor(c), gen, idx))
	}
}

func (a *App) handleBack(c tele.Context) error {
	gen, err := strconv.ParseUint(strings.TrimSpace(callbacks.CallbackPayload(c)), 10, 64)
	if err != nil {
		return fmt.Errorf("bot: back payload: %w", err)
	}
	return settle(a.ctrl.Back(tghelpers.BuildContext(c), a.platform.HostFor(c), gen))
}

func (a *App) handleTab(c tele.Context) error {
	t, ok := nav.ParseTab(callbacks.CallbackPayload(c))
	if !ok {
		return fmt.Errorf("bot: unknown tab %q", callbacks.CallbackPayload(c))
	}
	return settle(a.ctrl.SwitchTab(tghelpers.BuildContext(c), a.platform.HostFor(c), t))
}

func (a *App) handlePaper(c tele.Context) error {
	id, err := callbacks.PayloadInt64(c)
	if err != nil {
		return err
	}
	_, err = a.ctrl.Purchase(tghelpers.BuildContext(c), a.platform.HostFor(c), id)
	return settle(err)
}

func (a *App) handleTopUp(c tele.Context) error {
	amount, err := callbacks.PayloadInt(c)
	if err != nil {
		return err
	}
	return settle(a.ctrl.StartTopUp(tghelpers.BuildContext(c), a.platform.HostFor(c), amount))
}

func (a *App) handleGetPaper(c tele.Context) error {
	id, err := callbacks.PayloadInt64(c)
	if err != nil {
		return err
	}
	return settle(a.ctrl.RequestPaper(tghelpers.BuildContext(c), a.platform.HostFor(c), id))
}

// handleNavText maps reply-keyboard labels onto tabs.
func (a *App) handleNavText(c tele.Context) error {
	t, ok := view.TabByLabel(c.Text())
	if !ok {
		return a.UnknownText(c)
	}
	return settle(a.ctrl.SwitchTab(tghelpers.BuildContext(c), a.platform.HostFor(c), t))
}

// settle drops outcomes that are not handler failures: stale keyboards and
// duplicate presses.
func settle(err error) error {
	if errors.Is(err, app.ErrStale) || errors.Is(err, app.ErrInFlight) {
		return nil
	}
	return err
}
