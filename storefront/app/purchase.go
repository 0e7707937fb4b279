package app

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/paperbot/core/logger"
	"github.com/m3rciful/paperbot/storefront"
	"github.com/m3rciful/paperbot/storefront/bridge"
)

// PurchaseStage is the state reached by a purchase attempt.
type PurchaseStage int

const (
	StageIdle PurchaseStage = iota
	StagePurchasing
	StageCompleted
	StageNeedsPayment
	StageFailed
)

func (s PurchaseStage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StagePurchasing:
		return "purchasing"
	case StageCompleted:
		return "completed"
	case StageNeedsPayment:
		return "needs_payment"
	case StageFailed:
		return "failed"
	}
	return "stage(" + strconv.Itoa(int(s)) + ")"
}

// Purchase buys a paper. A short balance ends in StageNeedsPayment with a
// prompt offering the invoice flow for exactly the missing stars.
func (c *Controller) Purchase(ctx context.Context, h bridge.Host, paperID int64) (PurchaseStage, error) {
	sess := c.Session(h)
	if !sess.Model().LoggedIn() {
		c.fail(ctx, h, "purchase", ErrNotLoggedIn, MsgLoginRequired)
		return StageFailed, ErrNotLoggedIn
	}
	key := "purchase:" + strconv.FormatInt(paperID, 10)
	if !sess.Begin(key) {
		logger.Debug(ctx, component, "purchase.in_flight", slog.Int64("paper_id", paperID))
		return StagePurchasing, ErrInFlight
	}
	defer sess.End(key)

	raw, err := h.InitData()
	if err != nil {
		c.fail(ctx, h, "purchase", err, MsgPurchaseFailed)
		return StageFailed, err
	}
	res, err := c.api.Purchase(ctx, raw, paperID)
	if err != nil {
		c.fail(ctx, h, "purchase", err, MsgPurchaseFailed)
		return StageFailed, err
	}
	logger.Info(ctx, component, "purchase.result",
		slog.Int64("paper_id", paperID),
		slog.String("outcome", res.Outcome.String()),
		slog.Int("required_stars", res.RequiredStars),
	)

	switch res.Outcome {
	case storefront.PurchaseCompleted:
		c.showSuccess(ctx, h, MsgPurchased)
		c.refreshAfterPurchase(ctx, h)
		return StageCompleted, nil
	case storefront.PurchaseNeedsPayment:
		amount := res.RequiredStars
		c.popup(ctx, h, bridge.Popup{
			Title:   MsgPurchaseStarsTitle,
			Message: fmt.Sprintf(MsgNeedStars, amount),
			Buttons: []bridge.PopupButton{
				{ID: bridge.ButtonBuy, Text: "Buy Stars"},
				{ID: bridge.ButtonCancel, Text: "Cancel"},
			},
		}, func(ctx context.Context, button string) {
			if button != bridge.ButtonBuy {
				return
			}
			_ = c.startInvoice(ctx, h, amount)
		})
		return StageNeedsPayment, nil
	default:
		msg := res.Message
		if msg == "" {
			msg = MsgPurchaseFailed
		}
		err := fmt.Errorf("%w: purchase of paper %d: %s", ErrRejected, paperID, msg)
		logger.Warn(ctx, component, "action.failed",
			slog.String("op", "purchase"),
			slog.String("err", err.Error()),
			slog.String("err_code", errorCode(err)),
		)
		c.showError(ctx, h, msg)
		return StageFailed, err
	}
}

// refreshAfterPurchase reloads the user and the purchase history.
func (c *Controller) refreshAfterPurchase(ctx context.Context, h bridge.Host) {
	_, _ = c.LoadUser(ctx, h)
	records, err := c.history(ctx, h)
	if err != nil {
		c.fail(ctx, h, "purchase.history", err, MsgLoadHistory)
	} else {
		c.Session(h).Update(func(m Model) Model {
			m.History = records
			return m
		})
	}
	_ = c.Rerender(ctx, h)
}

// StartTopUp runs the invoice flow for a wallet top-up.
func (c *Controller) StartTopUp(ctx context.Context, h bridge.Host, amount int) error {
	if !c.Session(h).Model().LoggedIn() {
		c.fail(ctx, h, "topup", ErrNotLoggedIn, MsgLoginRequired)
		return ErrNotLoggedIn
	}
	if amount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	return c.startInvoice(ctx, h, amount)
}

// startInvoice creates an invoice for amount stars and asks the user to
// confirm before the payment page is opened.
func (c *Controller) startInvoice(ctx context.Context, h bridge.Host, amount int) error {
	raw, err := h.InitData()
	if err != nil {
		c.fail(ctx, h, "invoice.create", err, MsgInvoiceFailed)
		return err
	}
	inv, err := c.api.CreateInvoice(ctx, raw, amount)
	if err != nil {
		c.fail(ctx, h, "invoice.create", err, MsgInvoiceFailed)
		return err
	}
	logger.Info(ctx, component, "invoice.created", slog.Int("amount", amount))

	c.popup(ctx, h, bridge.Popup{
		Title:   MsgPurchaseStarsTitle,
		Message: fmt.Sprintf(MsgConfirmInvoice, amount, amount),
		Buttons: []bridge.PopupButton{
			{ID: bridge.ButtonPay, Text: "Pay"},
			{ID: bridge.ButtonCancel, Text: "Cancel"},
		},
	}, func(ctx context.Context, button string) {
		if button != bridge.ButtonPay {
			return
		}
		if err := h.OpenInvoice(ctx, inv.URL, amount); err != nil {
			c.fail(ctx, h, "invoice.open", err, MsgOpenInvoiceFailed)
			return
		}
		pending := PendingInvoice{
			ID:      uuid.NewString(),
			Amount:  amount,
			URL:     inv.URL,
			Created: time.Now(),
		}
		c.Session(h).SetPending(pending)
		logger.Debug(ctx, component, "invoice.opened",
			slog.String("invoice_id", pending.ID),
			slog.Int("amount", amount),
		)
	})
	return nil
}

// PaymentCompleted handles the platform payment notification: the user is
// reloaded and told that the payment went through. Completion is not tied to
// any particular purchase attempt.
func (c *Controller) PaymentCompleted(ctx context.Context, ev bridge.Event) {
	if c.hosts == nil {
		logger.Warn(ctx, component, "payment.no_hosts", slog.Int64("user_id", ev.User.ID))
		return
	}
	h := c.hosts.HostForChat(ev.ChatID, ev.User)
	attrs := []slog.Attr{
		slog.Int64("user_id", ev.User.ID),
		slog.String("currency", ev.Currency),
		slog.Int("amount", ev.Amount),
	}
	if inv, ok := c.Session(h).TakePending(); ok {
		attrs = append(attrs,
			slog.String("invoice_id", inv.ID),
			slog.Bool("amount_matched", inv.Amount == ev.Amount),
		)
	} else {
		attrs = append(attrs, slog.Bool("uncorrelated", true))
	}
	logger.Info(ctx, component, "payment.completed", attrs...)

	_, _ = c.LoadUser(ctx, h)
	c.showSuccess(ctx, h, MsgPaymentCompleted)
	_ = c.Rerender(ctx, h)
}
