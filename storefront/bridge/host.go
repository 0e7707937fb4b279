// Package bridge is the host-platform surface of the storefront: popups,
// invoices, data submission, screen rendering and platform events.
package bridge

import (
	"context"
	"fmt"

	"github.com/m3rciful/paperbot/storefront/initdata"
	"github.com/m3rciful/paperbot/storefront/view"
)

// Popup button ids used by the storefront.
const (
	ButtonOK     = "ok"
	ButtonCancel = "cancel"
	ButtonBuy    = "buy"
	ButtonPay    = "pay"
)

// PopupButton is one choice on a popup.
type PopupButton struct {
	ID   string
	Text string
}

// Popup is a modal prompt. A popup without buttons gets a single OK button.
type Popup struct {
	Title   string
	Message string
	Buttons []PopupButton
}

// Alert builds an informational popup.
func Alert(message string) Popup {
	return Popup{Message: message}
}

// PopupCallback receives the id of the pressed button.
type PopupCallback func(ctx context.Context, buttonID string)

// Host is the per-user view of the platform.
type Host interface {
	// Expand brings the storefront surface into full view.
	Expand(ctx context.Context) error
	// ShowPopup shows p; cb runs once with the pressed button id.
	ShowPopup(ctx context.Context, p Popup, cb PopupCallback) error
	// OpenInvoice opens the payment page for an invoice link.
	OpenInvoice(ctx context.Context, url string, amount int) error
	// SendData hands an opaque payload to the platform.
	SendData(ctx context.Context, data []byte) error
	// InitData returns the opaque auth token identifying the user.
	InitData() (string, error)
	// Render replaces the storefront screen.
	Render(ctx context.Context, s view.Screen) error
	// User is the platform user this host serves.
	User() initdata.User
}

// EventType names a platform event.
type EventType string

// EventPaymentCompleted fires after a successful star payment.
const EventPaymentCompleted EventType = "paymentCompleted"

// Event is a platform notification.
type Event struct {
	Type     EventType
	User     initdata.User
	ChatID   int64
	Currency string
	Amount   int
	Payload  string
	ChargeID string
}

// EventHandler consumes platform events.
type EventHandler func(ctx context.Context, ev Event)

// HostError reports a failed host operation.
type HostError struct {
	Op  string
	Err error
}

func (e *HostError) Error() string {
	return fmt.Sprintf("bridge: %s: %v", e.Op, e.Err)
}

func (e *HostError) Unwrap() error { return e.Err }

// Code classifies the error for handler summaries.
func (e *HostError) Code() string { return "host_failure" }
