// Package storefront holds the domain types shared by the question-paper store:
// the session user, catalog entries, purchase records and profile statistics as
// reported by the storefront API.
package storefront

import "encoding/json"

// User is the storefront account bound to a Telegram user.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Stars     int    `json:"stars"`
}

// DisplayName returns the first name or a neutral fallback.
func (u User) DisplayName() string {
	if u.FirstName == "" {
		return "User"
	}
	return u.FirstName
}

// Paper is a purchasable question paper.
type Paper struct {
	ID    int64  `json:"id"`
	Name  string `json:"paper_name"`
	Price int    `json:"price"`
}

// PurchaseRecord is a history row for a paper the user owns.
type PurchaseRecord struct {
	PaperID    int64  `json:"paper_id"`
	PaperName  string `json:"paper_name"`
	Department string `json:"department"`
	Semester   string `json:"semester"`
	Year       string `json:"year"`
}

// ProfileStats aggregates the user's purchases.
type ProfileStats struct {
	TotalPapers     int            `json:"total_papers"`
	TotalSpent      int            `json:"total_spent"`
	DepartmentStats map[string]int `json:"department_stats"`
}

// PurchaseOutcome tags the variant carried by PurchaseResult.
type PurchaseOutcome int

const (
	// PurchaseRejected means the backend refused the purchase.
	PurchaseRejected PurchaseOutcome = iota
	// PurchaseCompleted means the paper was bought from the current balance.
	PurchaseCompleted
	// PurchaseNeedsPayment means the balance is short by RequiredStars.
	PurchaseNeedsPayment
)

func (o PurchaseOutcome) String() string {
	switch o {
	case PurchaseCompleted:
		return "completed"
	case PurchaseNeedsPayment:
		return "needs_payment"
	default:
		return "rejected"
	}
}

// PurchaseResult is the decoded response of a purchase attempt.
type PurchaseResult struct {
	Outcome       PurchaseOutcome
	RequiredStars int
	Message       string
}

// UnmarshalJSON maps {success, requiresPayment?, requiredStars?, message?} onto
// the tagged variant.
func (r *PurchaseResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		Success         bool   `json:"success"`
		RequiresPayment bool   `json:"requiresPayment"`
		RequiredStars   int    `json:"requiredStars"`
		Message         string `json:"message"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = PurchaseResult{Message: raw.Message}
	switch {
	case !raw.Success:
		r.Outcome = PurchaseRejected
	case raw.RequiresPayment:
		r.Outcome = PurchaseNeedsPayment
		r.RequiredStars = raw.RequiredStars
	default:
		r.Outcome = PurchaseCompleted
	}
	return nil
}

// Invoice is a host-platform payment link for a star amount.
type Invoice struct {
	URL string `json:"invoiceUrl"`
}

// RequestResult is the backend's answer to a paper delivery request.
type RequestResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ActionSendPaper tags the delivery payload dispatched after a paper request.
const ActionSendPaper = "send_paper"

// DeliveryPayload is the opaque message handed to the host for out-of-band
// paper delivery.
type DeliveryPayload struct {
	Action  string `json:"action"`
	PaperID int64  `json:"paper_id"`
}

// NewSendPaperPayload builds the payload for a paper request.
func NewSendPaperPayload(paperID int64) DeliveryPayload {
	return DeliveryPayload{Action: ActionSendPaper, PaperID: paperID}
}
