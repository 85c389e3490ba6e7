package invoice

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/currency"
)

// Handler serves read access to invoices by their public key. The key is the
// capability: whoever holds it can view the invoice without a session.
type Handler struct {
	Store    Store
	Currency currency.Options

	// TransactionLink renders the remote transaction URL for a settled
	// invoice. Wired from the gateway layer at startup.
	TransactionLink func(inv *Invoice) string
}

// Routes mounts the invoice endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/invoices/{key}", h.GetByKey)
}

type noteView struct {
	Content   string    `json:"content"`
	System    bool      `json:"system"`
	CreatedAt time.Time `json:"createdAt"`
}

type invoiceView struct {
	Number         string     `json:"number"`
	Key            string     `json:"key"`
	Status         string     `json:"status"`
	StatusLabel    string     `json:"statusLabel"`
	Currency       string     `json:"currency"`
	Subtotal       string     `json:"subtotal"`
	Tax            string     `json:"tax,omitempty"`
	Discount       string     `json:"discount,omitempty"`
	Total          string     `json:"total"`
	Gateway        string     `json:"gateway,omitempty"`
	Recurring      bool       `json:"recurring"`
	NeedsPayment   bool       `json:"needsPayment"`
	TransactionURL string     `json:"transactionUrl,omitempty"`
	DueDate        *time.Time `json:"dueDate,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	Notes          []noteView `json:"notes,omitempty"`
}

// GetByKey returns one invoice with display-formatted amounts.
func (h *Handler) GetByKey(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INVOICE_NOT_CONFIGURED", "invoice handler unavailable", nil)
		return
	}
	key := chi.URLParam(r, "key")
	inv, err := h.Store.GetByKey(r.Context(), key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "INVOICE_NOT_FOUND", "invoice not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load invoice", nil)
		return
	}

	view := invoiceView{
		Number:       inv.Number,
		Key:          inv.Key,
		Status:       string(inv.Status),
		StatusLabel:  StatusNicename(inv.Status),
		Currency:     inv.Currency,
		Subtotal:     currency.Price(inv.Subtotal, inv.Currency, h.Currency),
		Total:        currency.Price(inv.Total, inv.Currency, h.Currency),
		Gateway:      inv.Gateway,
		Recurring:    inv.Recurring,
		NeedsPayment: inv.NeedsPayment(),
		CreatedAt:    inv.CreatedAt,
	}
	if !inv.DueDate.IsZero() {
		due := inv.DueDate
		view.DueDate = &due
	}
	if !inv.CompletedAt.IsZero() {
		done := inv.CompletedAt
		view.CompletedAt = &done
	}
	if inv.Tax != 0 {
		view.Tax = currency.Price(inv.Tax, inv.Currency, h.Currency)
	}
	if inv.Discount != 0 {
		view.Discount = currency.Price(inv.Discount, inv.Currency, h.Currency)
	}
	if h.TransactionLink != nil && inv.TransactionID != "" {
		view.TransactionURL = h.TransactionLink(inv)
	}
	for _, note := range inv.Notes {
		if note.System {
			continue
		}
		view.Notes = append(view.Notes, noteView{Content: note.Content, System: note.System, CreatedAt: note.CreatedAt})
	}
	common.JSON(w, http.StatusOK, view)
}
