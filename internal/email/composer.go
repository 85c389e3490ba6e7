// Package email renders transactional invoice emails from templates with
// merge tags and dispatches them off the event bus.
package email

import (
	"strings"
	"time"

	"github.com/noah-isme/backend-billing/internal/currency"
	"github.com/noah-isme/backend-billing/internal/invoice"
)

// Composer fills merge tags like {invoice_number} and {invoice_total} into
// subject and body templates. Unknown tags are left untouched so typos are
// visible in the output instead of silently swallowed.
type Composer struct {
	SiteTitle string
	SiteURL   string
	DateFmt   string
	Currency  currency.Options
}

func (c *Composer) dateFormat() string {
	if c.DateFmt != "" {
		return c.DateFmt
	}
	return "January 2, 2006"
}

// Replacements builds the merge-tag table for one invoice. The {is_was} tag
// reads "is" while the due date is still ahead and "was" once it has passed,
// so a single reminder template covers both tenses.
func (c *Composer) Replacements(inv *invoice.Invoice, now time.Time) map[string]string {
	rep := map[string]string{
		"{site_title}": c.SiteTitle,
		"{date}":       now.Format(c.dateFormat()),
	}
	if inv == nil {
		return rep
	}

	rep["{name}"] = inv.FullName()
	rep["{full_name}"] = inv.FullName()
	rep["{first_name}"] = inv.FirstName
	rep["{last_name}"] = inv.LastName
	rep["{email}"] = inv.Email
	rep["{invoice_number}"] = inv.Number
	rep["{invoice_total}"] = currency.Price(inv.Total, inv.Currency, c.Currency)
	rep["{invoice_link}"] = strings.TrimRight(c.SiteURL, "/") + "/invoice/" + inv.Key
	rep["{invoice_date}"] = inv.CreatedAt.Format(c.dateFormat())

	if !inv.DueDate.IsZero() {
		rep["{invoice_due_date}"] = inv.DueDate.Format(c.dateFormat())
		if now.After(inv.DueDate) {
			rep["{is_was}"] = "was"
		} else {
			rep["{is_was}"] = "is"
		}
	} else {
		rep["{invoice_due_date}"] = ""
		rep["{is_was}"] = "is"
	}
	return rep
}

// Render substitutes every merge tag in the template.
func (c *Composer) Render(template string, inv *invoice.Invoice, now time.Time) string {
	rep := c.Replacements(inv, now)
	pairs := make([]string, 0, len(rep)*2)
	for tag, value := range rep {
		pairs = append(pairs, tag, value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// Template is one transactional email: a subject line and an HTML body, both
// carrying merge tags.
type Template struct {
	Subject string
	Body    string
}

// DefaultTemplates covers the notification topics out of the box. Operators
// override individual entries through configuration.
func DefaultTemplates() map[string]Template {
	return map[string]Template{
		"invoice.created": {
			Subject: "New invoice {invoice_number} from {site_title}",
			Body:    "<p>Hi {first_name},</p><p>Invoice {invoice_number} for {invoice_total} has been created. You can view and pay it here: {invoice_link}</p>",
		},
		"invoice.paid": {
			Subject: "Payment received for invoice {invoice_number}",
			Body:    "<p>Hi {first_name},</p><p>We received your payment of {invoice_total} for invoice {invoice_number}. Thank you!</p>",
		},
		"invoice.refunded": {
			Subject: "Invoice {invoice_number} refunded",
			Body:    "<p>Hi {first_name},</p><p>Your payment of {invoice_total} for invoice {invoice_number} has been refunded.</p>",
		},
		"invoice.overdue": {
			Subject: "Invoice {invoice_number} {is_was} due on {invoice_due_date}",
			Body:    "<p>Hi {first_name},</p><p>This is a reminder that invoice {invoice_number} for {invoice_total} {is_was} due on {invoice_due_date}. Pay it here: {invoice_link}</p>",
		},
		"payment.pending": {
			Subject: "Invoice {invoice_number} awaiting payment",
			Body:    "<p>Hi {first_name},</p><p>Your order for invoice {invoice_number} has been received and is awaiting payment confirmation.</p>",
		},
		"payment.failed": {
			Subject: "Payment failed for invoice {invoice_number}",
			Body:    "<p>Hi {first_name},</p><p>We could not process your payment for invoice {invoice_number}. Please try again: {invoice_link}</p>",
		},
	}
}
