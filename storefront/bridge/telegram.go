package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/paperbot/core/logger"
	"github.com/m3rciful/paperbot/core/telegram/callbacks"
	"github.com/m3rciful/paperbot/core/telegram/format"
	tghelpers "github.com/m3rciful/paperbot/core/telegram/helpers"
	"github.com/m3rciful/paperbot/core/telegram/keyboard"
	"github.com/m3rciful/paperbot/core/telegram/sender"
	"github.com/m3rciful/paperbot/storefront/delivery"
	"github.com/m3rciful/paperbot/storefront/initdata"
	"github.com/m3rciful/paperbot/storefront/view"
)

// PopupUnique is the callback key of popup buttons.
const PopupUnique = "popup"

const (
	component       = "tg.bridge"
	defaultPopupTTL = 15 * time.Minute
)

// ErrNotAttached is returned when the platform has no bot yet.
var ErrNotAttached = errors.New("bridge: platform is not attached to a bot")

// Messenger is the subset of tele.Bot the platform sends through.
type Messenger interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
	Delete(msg tele.Editable) error
}

// Options configures a Platform.
type Options struct {
	Signer     *initdata.Signer
	Sink       delivery.Sink
	Dispatcher *sender.Dispatcher
	// Greeting is sent with the navigation keyboard on Expand.
	Greeting string
	PopupTTL time.Duration
	// AcceptCheckout answers pre-checkout queries positively.
	AcceptCheckout bool
}

type popupEntry struct {
	userID  int64
	cb      PopupCallback
	created time.Time
}

// Platform hosts storefront sessions inside Telegram chats.
type Platform struct {
	opts Options

	mu        sync.Mutex
	messenger Messenger
	popups    map[string]popupEntry
	screens   map[int64]tele.StoredMessage
	handlers  map[EventType][]EventHandler
	now       func() time.Time
}

// NewPlatform builds a platform; Attach must be called before hosts can send.
func NewPlatform(opts Options) *Platform {
	if opts.PopupTTL <= 0 {
		opts.PopupTTL = defaultPopupTTL
	}
	if opts.Greeting == "" {
		opts.Greeting = "📚 Question paper store"
	}
	return &Platform{
		opts:     opts,
		popups:   make(map[string]popupEntry),
		screens:  make(map[int64]tele.StoredMessage),
		handlers: make(map[EventType][]EventHandler),
		now:      time.Now,
	}
}

// Attach binds the platform to the bot it sends through.
func (p *Platform) Attach(m Messenger) {
	p.mu.Lock()
	p.messenger = m
	p.mu.Unlock()
}

func (p *Platform) bot() (Messenger, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.messenger == nil {
		return nil, ErrNotAttached
	}
	return p.messenger, nil
}

// OnEvent registers h for events of type t.
func (p *Platform) OnEvent(t EventType, h EventHandler) {
	if h == nil {
		return
	}
	p.mu.Lock()
	p.handlers[t] = append(p.handlers[t], h)
	p.mu.Unlock()
}

// Emit delivers ev to its registered handlers.
func (p *Platform) Emit(ctx context.Context, ev Event) {
	p.mu.Lock()
	hs := append([]EventHandler(nil), p.handlers[ev.Type]...)
	p.mu.Unlock()
	if len(hs) == 0 {
		logger.Debug(ctx, component, "event.unhandled", slog.String("type", string(ev.Type)))
		return
	}
	for _, h := range hs {
		h(ctx, ev)
	}
}

// HostFor returns the host serving the sender of c.
func (p *Platform) HostFor(c tele.Context) Host {
	var chatID int64
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	return p.HostForChat(chatID, UserFrom(c.Sender()))
}

// HostForChat returns the host for a user in a chat.
func (p *Platform) HostForChat(chatID int64, user initdata.User) Host {
	if chatID == 0 {
		chatID = user.ID
	}
	return &chatHost{p: p, chatID: chatID, user: user}
}

// UserFrom converts a Telegram user to its WebApp form.
func UserFrom(u *tele.User) initdata.User {
	if u == nil {
		return initdata.User{}
	}
	return initdata.User{
		ID:           u.ID,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Username:     u.Username,
		LanguageCode: u.LanguageCode,
		IsPremium:    u.IsPremium,
	}
}

// HandlePopup is the callback handler for popup buttons.
func (p *Platform) HandlePopup(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	var userID int64
	if u := c.Sender(); u != nil {
		userID = u.ID
	}
	var msg tele.Editable
	if cb := c.Callback(); cb != nil && cb.Message != nil {
		msg = cb.Message
	}
	p.ResolvePopup(ctx, userID, callbacks.CallbackPayload(c), msg)
	return nil
}

// ResolvePopup runs the callback of the popup named in payload
// ("<popup id>|<button id>") and removes the popup message. It reports
// whether a live popup was found.
func (p *Platform) ResolvePopup(ctx context.Context, userID int64, payload string, msg tele.Editable) bool {
	popupID, buttonID, ok := strings.Cut(payload, "|")
	if !ok || popupID == "" {
		logger.Warn(ctx, component, "popup.malformed", slog.String("payload", logger.SanitizeLimit(payload, 64)))
		return false
	}

	p.mu.Lock()
	entry, found := p.popups[popupID]
	if found && entry.userID == userID {
		delete(p.popups, popupID)
	}
	messenger := p.messenger
	p.mu.Unlock()

	if msg != nil && messenger != nil {
		if err := messenger.Delete(msg); err != nil {
			logger.Debug(ctx, component, "popup.delete_failed", slog.String("err", err.Error()))
		}
	}
	if !found || entry.userID != userID {
		logger.Info(ctx, component, "popup.stale", slog.String("popup_id", popupID))
		return false
	}

	logger.Debug(ctx, component, "popup.closed",
		slog.String("popup_id", popupID),
		slog.String("button", buttonID),
	)
	if entry.cb != nil {
		entry.cb(ctx, buttonID)
	}
	return true
}

// HandlePayment turns a successful-payment message into an event.
func (p *Platform) HandlePayment(c tele.Context) error {
	msg := c.Message()
	if msg == nil || msg.Payment == nil {
		return nil
	}
	var chatID int64
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	pay := msg.Payment
	p.Emit(tghelpers.BuildContext(c), Event{
		Type:     EventPaymentCompleted,
		User:     UserFrom(c.Sender()),
		ChatID:   chatID,
		Currency: pay.Currency,
		Amount:   pay.Total,
		Payload:  pay.Payload,
		ChargeID: pay.TelegramChargeID,
	})
	return nil
}

// HandleCheckout answers pre-checkout queries.
func (p *Platform) HandleCheckout(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	q := c.PreCheckoutQuery()
	if q == nil {
		return nil
	}
	attrs := []slog.Attr{
		slog.String("currency", q.Currency),
		slog.Int("amount", q.Total),
		slog.Bool("accepted", p.opts.AcceptCheckout),
	}
	logger.Info(ctx, component, "checkout.query", attrs...)
	if p.opts.AcceptCheckout {
		return c.Accept()
	}
	return c.Accept("Payments are temporarily unavailable")
}

func (p *Platform) registerPopup(userID int64, cb PopupCallback) string {
	id := uuid.NewString()
	now := p.now()
	p.mu.Lock()
	for k, e := range p.popups {
		if now.Sub(e.created) > p.opts.PopupTTL {
			delete(p.popups, k)
		}
	}
	p.popups[id] = popupEntry{userID: userID, cb: cb, created: now}
	p.mu.Unlock()
	return id
}

func (p *Platform) dropPopup(id string) {
	p.mu.Lock()
	delete(p.popups, id)
	p.mu.Unlock()
}

// PendingPopups reports how many popups are awaiting a press.
func (p *Platform) PendingPopups() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.popups)
}

func (p *Platform) screen(chatID int64) (tele.StoredMessage, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.screens[chatID]
	return m, ok
}

func (p *Platform) setScreen(chatID int64, msg *tele.Message) {
	if msg == nil {
		return
	}
	p.mu.Lock()
	p.screens[chatID] = tele.StoredMessage{MessageID: strconv.Itoa(msg.ID), ChatID: chatID}
	p.mu.Unlock()
}

type chatHost struct {
	p      *Platform
	chatID int64
	user   initdata.User
}

func (h *chatHost) User() initdata.User { return h.user }

func (h *chatHost) recipient() tele.Recipient { return tele.ChatID(h.chatID) }

func (h *chatHost) Expand(ctx context.Context) error {
	m, err := h.p.bot()
	if err != nil {
		return &HostError{Op: "expand", Err: err}
	}
	markup := keyboard.ReplyButtons(view.NavLabels()...)
	if _, err := m.Send(h.recipient(), h.p.opts.Greeting, markup); err != nil {
		return &HostError{Op: "expand", Err: err}
	}
	return nil
}

func (h *chatHost) ShowPopup(ctx context.Context, pop Popup, cb PopupCallback) error {
	m, err := h.p.bot()
	if err != nil {
		return &HostError{Op: "show_popup", Err: err}
	}
	buttons := pop.Buttons
	if len(buttons) == 0 {
		buttons = []PopupButton{{ID: ButtonOK, Text: "OK"}}
	}
	id := h.p.registerPopup(h.user.ID, cb)

	row := make([]keyboard.InlineBtn, 0, len(buttons))
	for _, b := range buttons {
		row = append(row, keyboard.InlineBtn{Text: b.Text, Unique: PopupUnique, Data: id + "|" + b.ID})
	}
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdownV2, ReplyMarkup: keyboard.InlineRow(row...)}
	if _, err := m.Send(h.recipient(), popupText(pop), opts); err != nil {
		h.p.dropPopup(id)
		return &HostError{Op: "show_popup", Err: err}
	}
	logger.Debug(ctx, component, "popup.shown",
		slog.String("popup_id", id),
		slog.String("title", pop.Title),
	)
	return nil
}

func popupText(pop Popup) string {
	if pop.Title == "" {
		return format.MD(pop.Message)
	}
	return "*" + format.MD(pop.Title) + "*\n\n" + format.MD(pop.Message)
}

func (h *chatHost) OpenInvoice(ctx context.Context, url string, amount int) error {
	m, err := h.p.bot()
	if err != nil {
		return &HostError{Op: "open_invoice", Err: err}
	}
	if strings.TrimSpace(url) == "" {
		return &HostError{Op: "open_invoice", Err: errors.New("empty invoice url")}
	}
	text := fmt.Sprintf("⭐ *Top up %d stars*\n\nTap the button below to pay\\.", amount)
	markup := keyboard.InlineRow(keyboard.InlineBtn{Text: fmt.Sprintf("Pay %d ⭐", amount), URL: url})
	if _, err := m.Send(h.recipient(), text, &tele.SendOptions{ParseMode: tele.ModeMarkdownV2, ReplyMarkup: markup}); err != nil {
		return &HostError{Op: "open_invoice", Err: err}
	}
	logger.Info(ctx, component, "invoice.opened", slog.Int("amount", amount))
	return nil
}

func (h *chatHost) SendData(ctx context.Context, data []byte) error {
	sink := h.p.opts.Sink
	if sink == nil {
		return &HostError{Op: "send_data", Err: errors.New("no delivery sink configured")}
	}
	env, err := delivery.NewEnvelope(h.user.ID, h.chatID, data)
	if err != nil {
		return &HostError{Op: "send_data", Err: err}
	}
	run := func(ctx context.Context) error { return sink.Deliver(ctx, env) }

	disp := h.p.opts.Dispatcher
	if disp == nil {
		if err := run(ctx); err != nil {
			return &HostError{Op: "send_data", Err: err}
		}
		return nil
	}
	if err := disp.Enqueue(ctx, "delivery."+env.Kind, sink.Name(), run); err != nil {
		return &HostError{Op: "send_data", Err: err}
	}
	logger.Debug(ctx, component, "data.enqueued",
		slog.String("envelope_id", env.ID),
		slog.String("sink", sink.Name()),
	)
	return nil
}

func (h *chatHost) InitData() (string, error) {
	if h.p.opts.Signer == nil {
		return "", &HostError{Op: "init_data", Err: errors.New("no signer configured")}
	}
	if h.user.ID == 0 {
		return "", nil
	}
	raw, err := h.p.opts.Signer.Sign(initdata.Data{User: h.user, ChatType: "private"})
	if err != nil {
		return "", &HostError{Op: "init_data", Err: err}
	}
	return raw, nil
}

func (h *chatHost) Render(ctx context.Context, s view.Screen) error {
	m, err := h.p.bot()
	if err != nil {
		return &HostError{Op: "render", Err: err}
	}
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdownV2, ReplyMarkup: screenMarkup(s)}

	if stored, ok := h.p.screen(h.chatID); ok {
		_, err := m.Edit(stored, s.Text, opts)
		if err == nil || isNotModified(err) {
			return nil
		}
		logger.Debug(ctx, component, "render.edit_failed", slog.String("err", err.Error()))
	}
	msg, err := m.Send(h.recipient(), s.Text, opts)
	if err != nil {
		return &HostError{Op: "render", Err: err}
	}
	h.p.setScreen(h.chatID, msg)
	return nil
}

func screenMarkup(s view.Screen) *tele.ReplyMarkup {
	rows := make([][]keyboard.InlineBtn, 0, len(s.Rows))
	for _, r := range s.Rows {
		row := make([]keyboard.InlineBtn, 0, len(r))
		for _, b := range r {
			row = append(row, keyboard.InlineBtn{Text: b.Text, Unique: b.Action, Data: b.Payload, URL: b.URL})
		}
		rows = append(rows, row)
	}
	return keyboard.InlineButtonsRows(rows...)
}

func isNotModified(err error) bool {
	if errors.Is(err, tele.ErrSameMessageContent) {
		return true
	}
	return strings.Contains(err.Error(), "message is not modified")
}
