package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/paperbot/storefront"
	"github.com/m3rciful/paperbot/storefront/api"
	"github.com/m3rciful/paperbot/storefront/bridge"
	"github.com/m3rciful/paperbot/storefront/initdata"
	"github.com/m3rciful/paperbot/storefront/nav"
	"github.com/m3rciful/paperbot/storefront/view"
)

type fakeAPI struct {
	mu    sync.Mutex
	calls map[string]int
	args  map[string][]any

	user       storefront.User
	userErr    error
	depts      []string
	sems       []string
	years      []string
	papers     []storefront.Paper
	papersErr  error
	purchase   storefront.PurchaseResult
	purchErr   error
	invoice    storefront.Invoice
	invoiceErr error
	history    []storefront.PurchaseRecord
	profile    storefront.ProfileStats
	request    storefront.RequestResult
	requestErr error

	duringSemesters func()
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		calls:   map[string]int{},
		args:    map[string][]any{},
		user:    storefront.User{ID: 42, FirstName: "Ada", Stars: 10},
		depts:   []string{"CS", "EE"},
		sems:    []string{"1", "3"},
		years:   []string{"2022", "2023"},
		papers:  []storefront.Paper{{ID: 7, Name: "Algorithms", Price: 15}},
		invoice: storefront.Invoice{URL: "https://t.me/$inv"},
		history: []storefront.PurchaseRecord{{PaperID: 7, PaperName: "Algorithms"}},
		profile: storefront.ProfileStats{TotalPapers: 1, TotalSpent: 15},
		request: storefront.RequestResult{Success: true},
	}
}

func (f *fakeAPI) record(op string, args ...any) {
	f.mu.Lock()
	f.calls[op]++
	f.args[op] = args
	f.mu.Unlock()
}

func (f *fakeAPI) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeAPI) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeAPI) GetUser(_ context.Context, initData string) (storefront.User, error) {
	f.record("user", initData)
	return f.user, f.userErr
}

func (f *fakeAPI) ListDepartments(context.Context) ([]string, error) {
	f.record("departments")
	return f.depts, nil
}

func (f *fakeAPI) ListSemesters(_ context.Context, d string) ([]string, error) {
	f.record("semesters", d)
	if f.duringSemesters != nil {
		f.duringSemesters()
	}
	return f.sems, nil
}

func (f *fakeAPI) ListYears(_ context.Context, d, s string) ([]string, error) {
	f.record("years", d, s)
	return f.years, nil
}

func (f *fakeAPI) ListPapers(_ context.Context, d, s, y string) ([]storefront.Paper, error) {
	f.record("papers", d, s, y)
	if f.papersErr != nil {
		return nil, f.papersErr
	}
	return f.papers, nil
}

func (f *fakeAPI) Purchase(_ context.Context, _ string, id int64) (storefront.PurchaseResult, error) {
	f.record("purchase", id)
	return f.purchase, f.purchErr
}

func (f *fakeAPI) CreateInvoice(_ context.Context, _ string, amount int) (storefront.Invoice, error) {
	f.record("invoice", amount)
	return f.invoice, f.invoiceErr
}

func (f *fakeAPI) GetPurchaseHistory(context.Context, string) ([]storefront.PurchaseRecord, error) {
	f.record("history")
	return f.history, nil
}

func (f *fakeAPI) GetProfile(context.Context, string) (storefront.ProfileStats, error) {
	f.record("profile")
	return f.profile, nil
}

func (f *fakeAPI) RequestPaper(_ context.Context, _ string, id int64) (storefront.RequestResult, error) {
	f.record("request", id)
	return f.request, f.requestErr
}

type shownPopup struct {
	popup bridge.Popup
	cb    bridge.PopupCallback
}

type fakeHost struct {
	user     initdata.User
	popups   []shownPopup
	screens  []view.Screen
	invoices []string
	data     [][]byte
	expanded int

	invoiceErr error
	dataErr    error
}

func newFakeHost() *fakeHost {
	return &fakeHost{user: initdata.User{ID: 42, FirstName: "Ada"}}
}

func (h *fakeHost) Expand(context.Context) error { h.expanded++; return nil }

func (h *fakeHost) ShowPopup(_ context.Context, p bridge.Popup, cb bridge.PopupCallback) error {
	h.popups = append(h.popups, shownPopup{popup: p, cb: cb})
	return nil
}

func (h *fakeHost) OpenInvoice(_ context.Context, url string, _ int) error {
	if h.invoiceErr != nil {
		return &bridge.HostError{Op: "open_invoice", Err: h.invoiceErr}
	}
	h.invoices = append(h.invoices, url)
	return nil
}

func (h *fakeHost) SendData(_ context.Context, data []byte) error {
	if h.dataErr != nil {
		return &bridge.HostError{Op: "send_data", Err: h.dataErr}
	}
	h.data = append(h.data, data)
	return nil
}

func (h *fakeHost) InitData() (string, error) { return "signed", nil }

func (h *fakeHost) Render(_ context.Context, s view.Screen) error {
	h.screens = append(h.screens, s)
	return nil
}

func (h *fakeHost) User() initdata.User { return h.user }

func (h *fakeHost) lastPopup(t *testing.T) shownPopup {
	t.Helper()
	require.NotEmpty(t, h.popups)
	return h.popups[len(h.popups)-1]
}

type hostsFunc func(int64, initdata.User) bridge.Host

func (f hostsFunc) HostForChat(chatID int64, u initdata.User) bridge.Host { return f(chatID, u) }

func newController(t *testing.T, a *fakeAPI, h *fakeHost) *Controller {
	t.Helper()
	c, err := New(Options{
		API:          a,
		Hosts:        hostsFunc(func(int64, initdata.User) bridge.Host { return h }),
		TopUpAmounts: []int{50, 100},
	})
	require.NoError(t, err)
	return c
}

func drillToYears(t *testing.T, c *Controller, h *fakeHost, dept int) Model {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, c.EnterCatalog(ctx, h))
	m := c.Session(h).Model()
	require.NoError(t, c.SelectDepartment(ctx, h, m.Nav.Gen, dept))
	m = c.Session(h).Model()
	require.NoError(t, c.SelectSemester(ctx, h, m.Nav.Gen, 1))
	return c.Session(h).Model()
}

func TestNewRequiresAPI(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestStartLoadsUserAndDepartments(t *testing.T) {
	a, h := newFakeAPI(), newFakeHost()
	c := newController(t, a, h)

	require.NoError(t, c.Start(context.Background(), h))
	assert.Equal(t, 1, h.expanded)
	assert.Equal(t, 1, a.count("user"))
	assert.Equal(t, []any{"signed"}, a.args["user"])
	m := c.Session(h).Model()
	require.True(t, m.LoggedIn())
	assert.Equal(t, 10, m.User.Stars)
	assert.Equal(t, []string{"CS", "EE"}, m.Departments)
	require.Len(t, h.screens, 1)
	assert.Equal(t, view.ActionDepartment, h.screens[0].Rows[0][0].Action)
}

func TestStartWithoutUserStillShowsCatalog(t *testing.T) {
	a, h := newFakeAPI(), newFakeHost()
	a.userErr = &api.NetworkError{Op: "get_user", Err: errors.New("refused")}
	c := newController(t, a, h)

	require.NoError(t, c.Start(context.Background(), h))
	assert.False(t, c.Session(h).Model().LoggedIn())
	assert.Equal(t, MsgLoadUserFailed, h.lastPopup(t).popup.Message)
	assert.Len(t, h.screens, 1)
}

func TestOnePanelVisibleThroughDrillDown(t *testing.T) {
	a, h := newFakeAPI(), newFakeHost()
	c := newController(t, a, h)
	ctx := context.Background()

	visible := func() int {
		n := 0
		st := c.Session(h).Model().Nav
		for _, p := range []nav.Panel{nav.PanelDepartments, nav.PanelSemesters, nav.PanelYears, nav.PanelPapers} {
			if st.Visible(p) {
				n++
			}
		}
		return n
	}

	require.NoError(t, c.EnterCatalog(ctx, h))
	assert.Equal(t, 1, visible())
	m := drillToYears(t, c, h, 0)
	assert.Equal(t, 1, visible())
	require.NoError(t, c.SelectYear(ctx, h, m.Nav.Gen, 1))
	assert.Equal(t, 1, visible())
	assert.Equal(t, nav.PanelPapers, c.Session(h).Model().Nav.Panel)
	require.NoError(t, c.Back(ctx, h, c.Session(h).Model().Nav.Gen))
	assert.Equal(t, 1, visible())
	require.NoError(t, c.Session(h).Model().Nav.Validate())
}

func TestReselectingDepartmentClearsSemesterAndYear(t *testing.T) {
	a, h := newFakeAPI(), newFakeHost()
	c := newController(t, a, h)
	ctx := context.Background()

	m := drillToYears(t, c, h, 0)
	require.NoError(t, c.SelectYear(ctx, h, m.Nav.Gen, 1))
	assert.Equal(t, []any{"CS", "3", "2023"}, a.args["papers"])

	require.NoError(t, c.EnterCatalog(ctx, h))
	m = c.Session(h).Model()
	require.NoError(t, c.SelectDepartment(ctx, h, m.Nav.Gen, 1))
	m = c.Session(h).Model()
	assert.Equal(t, nav.Selection{Department: "EE"}, m.Nav.Selection)
	assert.Nil(t, m.Years)
	assert.Nil(t, m.Papers)

	require.NoError(t, c.SelectSemester(ctx, h, m.Nav.Gen, 0))
	assert.Equal(t, []any{"EE", "1"}, a.args["years"])
}

func TestFailedPapersLoadKeepsYearsPanel(t *testing.T) {
	a, h := newFakeAPI(), newFakeHost()
	a.papersErr = &api.APIError{Op: "list_papers", Status: 500}
	c := newController(t, a, h)

	before := drillToYears(t, c, h, 0)
	screens := len(h.screens)
	err := c.SelectYear(context.Background(), h, before.Nav.Gen, 0)
	require.Error(t, err)

	after := c.Session(h).Model()
	assert.Equal(t, before.Nav, after.Nav)
	assert.Equal(t, nav.PanelYears, after.Nav.Panel)
	assert.Len(t, h.screens, screens)
	assert.Equal(t, "Error", h.lastPopup(t).popup.Title)
	assert.Equal(t, MsgLoadPapers, h.lastPopup(t).popup.Message)
}

func TestStaleKeyboardIsRedrawn(t *testing.T) {
	a, h := newFakeAPI(), newFakeHost()
	c := newController(t, a, h)
	ctx := context.Background()

	require.NoError(t, c.EnterCatalog(ctx, h))
	old := c.Session(h).Model().Nav.Gen
	require.NoError(t, c.SelectDepartment(ctx, h, old, 0))
	calls := a.total()
	screens := len(h.screens)

	err := c.SelectDepartment(ctx, h, old, 1)
	assert.ErrorIs(t, err, ErrStale)
	assert.Equal(t, calls, a.total())
	assert.Len(t, h.screens, screens+1)
	assert.Equal(t, "CS", c.Session(h).Model().Nav.Selection.Department)

	err = c.SelectSemester(ctx, h, c.Session(h).Model().Nav.Gen, 9)
	assert.ErrorIs(t, err, ErrStale)
}

func TestLoadFinishingAfterTabSwitchIsDropped(t *testing.T) {
	a, h := newFakeAPI(), newFakeHost()
	c := newController(t, a, h)
	ctx := context.Background()

	require.NoError(t, c.EnterCatalog(ctx, h))
	start := c.Session(h).Model().Nav.Gen
	a.duringSemesters = func() {
		c.Session(h).Update(func(m Model) Model {
			m.Nav = m.Nav.SwitchTab(nav.TabWallet)
			return m
		})
	}

	err := c.SelectDepartment(ctx, h, start, 0)
	assert.ErrorIs(t, err, ErrSuperseded)
	assert.ErrorIs(t, err, ErrStale)

	m := c.Session(h).Model()
	assert.Equal(t, nav.TabWallet, m.Nav.Tab)
	assert.Equal(t, start+1, m.Nav.Gen)
	assert.Empty(t, m.Nav.Selection.Department)
	assert.Nil(t, m.Semesters)
}

func TestBackClearsOnlyExitedLevel(t *testing.T) {
	a, h := newFakeAPI(), newFakeHost()
	c := newController(t, a, h)
	ctx := context.Background()

	m := drillToYears(t, c, h, 0)
	require.NoError(t, c.SelectYear(ctx, h, m.Nav.Gen, 0))
	calls := a.total()

	require.NoError(t, c.Back(ctx, h, c.Session(h).Model().Nav.Gen))
	m = c.Session(h).Model()
	assert.Equal(t, nav.Selection{Department: "CS", Semester: "3"}, m.Nav.Selection)
	assert.Equal(t, []string{"2022", "2023"}, m.Years)

	require.NoError(t, c.Back(ctx, h, m.Nav.Gen))
	m = c.Session(h).Model()
	assert.Equal(t, nav.Selection{Department: "CS"}, m.Nav.Selection)
	assert.Nil(t, m.Years)
	assert.Equal(t, calls, a.total())
}

func TestPurchaseWithoutUserMakesNoCall(t *testing.T) {
	a, h := newFakeAPI(), newFakeHost()
	c := newController(t, a, h)

	stage, err := c.Purchase(context.Background(), h, 7)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	assert.Equal(t, StageFailed, stage)
	assert.Zero(t, a.total())
	assert.Equal(t, MsgLoginRequired, h.lastPopup(t).popup.Message)
}

func TestPurchaseCompletedRefreshesUserAndHistory(t *testing.T) {
	a, h := newFakeAPI(), newFakeHost()
	c := newController(t, a, h)
	ctx := context.Background()
	_, err := c.LoadUser(ctx, h)
	require.NoError(t, err)

	a.purchase = storefront.PurchaseResult{Outcome: storefront.PurchaseCompleted}
	a.user.Stars = 0
	stage, err := c.Purchase(ctx, h, 7)
	require.NoError(t, err)
	assert.Equal(t, StageCompleted, stage)
	assert.Equal(t, 2, a.count("user"))
	assert.Equal(t, 1, a.count("history"))
	m := c.Session(h).Model()
	assert.Equal(t, 0, m.User.Stars)
	assert.Len(t, m.History, 1)
	assert.Equal(t, MsgPurchased, h.popups[0].popup.Message)
	assert.Equal(t, "Success", h.popups[0].popup.Title)
}

func TestPurchaseNeedsPaymentRequestsExactStars(t *testing.T) {
	a, h := newFakeAPI(), newFakeHost()
	c := newController(t, a, h)
	ctx := context.Background()
	_, err := c.LoadUser(ctx, h)
	require.NoError(t, err)

	a.purchase = storefront.PurchaseResult{Outcome: storefront.PurchaseNeedsPayment, RequiredStars: 5}
	stage, err := c.Purchase(ctx, h, 7)
	require.NoError(t, err)
	assert.Equal(t, StageNeedsPayment, stage)

	prompt := h.lastPopup(t)
	assert.Equal(t, MsgPurchaseStarsTitle, prompt.popup.Title)
	assert.Equal(t, "You need 5 stars to purchase this paper.", prompt.popup.Message)
	require.Len(t, prompt.popup.Buttons, 2)
	assert.Equal(t, bridge.ButtonBuy, prompt.popup.Buttons[0].ID)
	assert.Equal(t, bridge.ButtonCancel, prompt.popup.Buttons[1].ID)

	prompt.cb(ctx, bridge.ButtonBuy)
	assert.Equal(t, []any{5}, a.args["invoice"])

	confirm := h.lastPopup(t)
	assert.Equal(t, "Purchase 5 stars for 5 XTR?", confirm.popup.Message)
	confirm.cb(ctx, bridge.ButtonPay)
	assert.Equal(t, []string{"https://t.me/$inv"}, h.invoices)

	inv, ok := c.Session(h).TakePending()
	require.True(t, ok)
	assert.Equal(t, 5, inv.Amount)
	assert.NotEmpty(t, inv.ID)
}

func TestPurchaseNeedsPaymentCancel(t *testing.T) {
	a, h := newFakeAPI(), newFakeHost()
	c := newController(t, a, h)
	ctx := context.Background()
	_, err := c.LoadUser(ctx, h)
	require.NoError(t, err)

	a.purchase = storefront.PurchaseResult{Outcome: storefront.PurchaseNeedsPayment, RequiredStars: 5}
	_, err = c.Purchase(ctx, h, 7)
	require.NoError(t, err)
	h.lastPopup(t).cb(ctx, bridge.ButtonCancel)
	assert.Zero(t, a.count("invoice"))
}

func TestInvoiceOpenFailure(t *testing.T) {
	a, h := newFakeAPI(), newFakeHost()
	h.invoiceErr = errors.New("closed")
	c := newController(t, a, h)
	ctx := context.Background()
	_, err := c.LoadUser(ctx, h)
	require.NoError(t, err)

	require.NoError(t, c.StartTopUp(ctx, h, 50))
	h.lastPopup(t).cb(ctx, bridge.ButtonPay)
	assert.Equal(t, MsgOpenInvoiceFailed, h.lastPopup(t).popup.Message)
	assert.Equal(t, 1, a.count("invoice"))
	_, ok := c.Session(h).TakePending()
	assert.False(t, ok)
}

func TestInvoiceCreateFailure(t *testing.T) {
	a, h := newFakeAPI(), newFakeHost()
	a.invoiceErr = &api.APIError{Op: "create_invoice", Status: 502}
	c := newController(t, a, h)
	ctx := context.Background()
	_, err := c.LoadUser(ctx, h)
	require.NoError(t, err)

	assert.Error(t, c.StartTopUp(ctx, h, 50))
	assert.Equal(t, MsgInvoiceFailed, h.lastPopup(t).popup.Message)
}

func TestTopUpGuards(t *testing.T) {
	a, h := newFakeAPI(), newFakeHost()
	c := newController(t, a, h)
	ctx := context.Background()

	assert.ErrorIs(t, c.StartTopUp(ctx, h, 50), ErrNotLoggedIn)
	_, err := c.LoadUser(ctx, h)
	require.NoError(t, err)
	assert.ErrorIs(t, c.StartTopUp(ctx, h, 0), ErrInvalidAmount)
	assert.Zero(t, a.count("invoice"))
}

func TestPurchaseRejectedShowsBackendMessage(t *testing.T) {
	a, h := newFakeAPI(), newFakeHost()
	c := newController(t, a, h)
	ctx := context.Background()
	_, err := c.LoadUser(ctx, h)
	require.NoError(t, err)

	a.purchase = storefront.PurchaseResult{Outcome: storefront.PurchaseRejected, Message: "Already purchased"}
	stage, err := c.Purchase(ctx, h, 7)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, StageFailed, stage)
	assert.Equal(t, "Already purchased", h.lastPopup(t).popup.Message)

	a.purchase = storefront.PurchaseResult{}
	_, err = c.Purchase(ctx, h, 7)
	assert.Error(t, err)
	assert.Equal(t, MsgPurchaseFailed, h.lastPopup(t).popup.Message)

	a.purchErr = &api.APIError{Op: "purchase", Status: 400, Message: "Paper not found"}
	_, err = c.Purchase(ctx, h, 7)
	assert.Error(t, err)
	assert.Equal(t, "Paper not found", h.lastPopup(t).popup.Message)
}

func TestPurchaseInFlightGuard(t *testing.T) {
	a, h := newFakeAPI(), newFakeHost()
	c := newController(t, a, h)
	ctx := context.Background()
	_, err := c.LoadUser(ctx, h)
	require.NoError(t, err)

	sess := c.Session(h)
	require.True(t, sess.Begin("purchase:7"))
	stage, err := c.Purchase(ctx, h, 7)
	assert.ErrorIs(t, err, ErrInFlight)
	assert.Equal(t, StagePurchasing, stage)
	assert.Zero(t, a.count("purchase"))

	sess.End("purchase:7")
	a.purchase = storefront.PurchaseResult{Outcome: storefront.PurchaseCompleted}
	_, err = c.Purchase(ctx, h, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, a.count("purchase"))
}

func TestPaymentCompletedReloadsUser(t *testing.T) {
	a, h := newFakeAPI(), newFakeHost()
	c := newController(t, a, h)
	ctx := context.Background()
	c.Session(h).SetPending(PendingInvoice{ID: "inv-1", Amount: 50})

	a.user.Stars = 60
	c.PaymentCompleted(ctx, bridge.Event{Type: bridge.EventPaymentCompleted, User: h.user, ChatID: 42, Currency: "XTR", Amount: 50})
	assert.Equal(t, 1, a.count("user"))
	assert.Equal(t, 60, c.Session(h).Model().User.Stars)
	assert.Equal(t, MsgPaymentCompleted, h.lastPopup(t).popup.Message)
	_, ok := c.Session(h).TakePending()
	assert.False(t, ok)

	// no pending invoice: still handled
	c.PaymentCompleted(ctx, bridge.Event{Type: bridge.EventPaymentCompleted, User: h.user, ChatID: 42})
	assert.Equal(t, 2, a.count("user"))
}

func TestPaymentCompletedWithFailedReload(t *testing.T) {
	a, h := newFakeAPI(), newFakeHost()
	a.userErr = &api.NetworkError{Op: "get_user", Err: errors.New("timeout")}
	c := newController(t, a, h)

	c.PaymentCompleted(context.Background(), bridge.Event{User: h.user, ChatID: 42, Amount: 5})
	require.Len(t, h.popups, 2)
	assert.Equal(t, MsgLoadUserFailed, h.popups[0].popup.Message)
	assert.Equal(t, MsgPaymentCompleted, h.popups[1].popup.Message)
}

func TestRequestPaperDispatchesOnce(t *testing.T) {
	a, h := newFakeAPI(), newFakeHost()
	c := newController(t, a, h)

	require.NoError(t, c.RequestPaper(context.Background(), h, 7))
	require.Len(t, h.data, 1)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(h.data[0], &payload))
	assert.Equal(t, map[string]any{"action": "send_paper", "paper_id": float64(7)}, payload)
	assert.Equal(t, MsgPaperSent, h.lastPopup(t).popup.Message)
	assert.Equal(t, "Success", h.lastPopup(t).popup.Title)
}

func TestRequestPaperFailures(t *testing.T) {
	a, h := newFakeAPI(), newFakeHost()
	c := newController(t, a, h)
	ctx := context.Background()

	a.request = storefront.RequestResult{Success: false, Message: "Not purchased"}
	assert.ErrorIs(t, c.RequestPaper(ctx, h, 7), ErrRejected)
	assert.Equal(t, "Not purchased", h.lastPopup(t).popup.Message)

	a.request = storefront.RequestResult{}
	assert.Error(t, c.RequestPaper(ctx, h, 7))
	assert.Equal(t, MsgRequestFailed, h.lastPopup(t).popup.Message)

	a.requestErr = &api.NetworkError{Op: "request_paper", Err: errors.New("reset")}
	assert.Error(t, c.RequestPaper(ctx, h, 7))
	assert.Equal(t, MsgRequestFailed, h.lastPopup(t).popup.Message)
	assert.Empty(t, h.data)

	a.requestErr = nil
	a.request = storefront.RequestResult{Success: true}
	h.dataErr = errors.New("sink down")
	assert.Error(t, c.RequestPaper(ctx, h, 7))
	assert.Equal(t, MsgSendRequestFailed, h.lastPopup(t).popup.Message)
}

func TestSwitchTabs(t *testing.T) {
	a, h := newFakeAPI(), newFakeHost()
	c := newController(t, a, h)
	ctx := context.Background()

	m := drillToYears(t, c, h, 0)

	require.NoError(t, c.SwitchTab(ctx, h, nav.TabProfile))
	assert.Zero(t, a.count("profile"))
	assert.Contains(t, h.screens[len(h.screens)-1].Text, "Not logged in")

	require.NoError(t, c.SwitchTab(ctx, h, nav.TabWallet))
	assert.Equal(t, nav.TabWallet, c.Session(h).Model().Nav.Tab)

	require.NoError(t, c.SwitchTab(ctx, h, nav.TabHistory))
	assert.Equal(t, 1, a.count("history"))
	assert.Len(t, c.Session(h).Model().History, 1)
	assert.Equal(t, m.Nav.Selection, c.Session(h).Model().Nav.Selection)

	_, err := c.LoadUser(ctx, h)
	require.NoError(t, err)
	require.NoError(t, c.SwitchTab(ctx, h, nav.TabProfile))
	assert.Equal(t, 1, a.count("profile"))
	require.NotNil(t, c.Session(h).Model().Profile)

	departments := a.count("departments")
	require.NoError(t, c.SwitchTab(ctx, h, nav.TabCatalog))
	assert.Equal(t, departments+1, a.count("departments"))
	assert.Equal(t, nav.Selection{}, c.Session(h).Model().Nav.Selection)

	assert.Error(t, c.SwitchTab(ctx, h, nav.Tab("bogus")))
}

func TestPurchaseStageString(t *testing.T) {
	assert.Equal(t, "needs_payment", StageNeedsPayment.String())
	assert.Equal(t, "stage(9)", PurchaseStage(9).String())
}
