package invoice

import (
	"strings"
	"time"
)

// Status enumerates the invoice lifecycle states.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusOnHold     Status = "onhold"
	StatusPaid       Status = "publish"
	StatusRefunded   Status = "refunded"
	StatusCancelled  Status = "cancelled"
	StatusFailed     Status = "failed"
	StatusRenewal    Status = "renewal"
)

// StatusNicename returns the human readable label for a status.
func StatusNicename(s Status) string {
	switch s {
	case StatusPending:
		return "Pending Payment"
	case StatusPaid:
		return "Paid"
	case StatusProcessing:
		return "Processing"
	case StatusOnHold:
		return "On Hold"
	case StatusRefunded:
		return "Refunded"
	case StatusCancelled:
		return "Cancelled"
	case StatusFailed:
		return "Failed"
	case StatusRenewal:
		return "Renewal Payment"
	default:
		return string(s)
	}
}

// Mode records whether an invoice was processed against live or sandbox
// gateway credentials. The mode is captured at payment time so settled
// invoices keep their original value even if the gateway configuration
// changes later.
type Mode string

const (
	ModeLive Mode = "live"
	ModeTest Mode = "test"
)

// Note is an audit entry attached to an invoice.
type Note struct {
	Content   string    `json:"content"`
	System    bool      `json:"system"`
	CreatedAt time.Time `json:"createdAt"`
}

// Invoice is the billing document a checkout attempt settles.
type Invoice struct {
	ID             int64
	Number         string
	Key            string
	UserID         int64
	Email          string
	FirstName      string
	LastName       string
	Currency       string
	Subtotal       float64
	Tax            float64
	Discount       float64
	Total          float64
	Status         Status
	Recurring      bool
	SubscriptionID string
	Gateway        string
	Mode           Mode
	TransactionID  string
	DueDate        time.Time
	CreatedAt      time.Time
	CompletedAt    time.Time
	Notes          []Note
}

// NeedsPayment reports whether the invoice still awaits settlement.
func (i *Invoice) NeedsPayment() bool {
	switch i.Status {
	case StatusPending, StatusFailed, StatusOnHold:
		return true
	default:
		return false
	}
}

// IsPaid reports whether the invoice has been settled.
func (i *Invoice) IsPaid() bool {
	return i.Status == StatusPaid || i.Status == StatusRenewal
}

// IsFree reports whether the invoice carries nothing to charge.
func (i *Invoice) IsFree() bool {
	return i.Total <= 0
}

// FullName returns the customer name for display and email templating.
func (i *Invoice) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(i.FirstName) + " " + strings.TrimSpace(i.LastName))
}
