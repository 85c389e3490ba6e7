package email

import (
	"context"
	"fmt"
	"time"

	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/events"
	"github.com/noah-isme/backend-billing/internal/invoice"
	"github.com/noah-isme/backend-billing/internal/obs"
)

// Notifier sends transactional emails for selected event topics. It plugs
// into the event bus as an events.Notifier.
type Notifier struct {
	Mail      common.EmailSender
	Invoices  invoice.Store
	Composer  *Composer
	Templates map[string]Template
	Enabled   bool
	// TopicToggles disables individual topics; topics absent from the map
	// stay enabled.
	TopicToggles map[string]bool

	// Now is swappable for tests.
	Now func() time.Time
}

// Notify implements events.Notifier. Events without a template or recipient
// are skipped silently; they are not errors.
func (n *Notifier) Notify(ctx context.Context, event events.Event) error {
	if n == nil || !n.Enabled || n.Mail == nil || n.Invoices == nil {
		return nil
	}
	if n.TopicToggles != nil {
		if enabled, ok := n.TopicToggles[event.Topic]; ok && !enabled {
			return nil
		}
	}
	tpl, ok := n.template(event.Topic)
	if !ok {
		return nil
	}

	inv, err := n.Invoices.Get(ctx, event.InvoiceID)
	if err != nil {
		return fmt.Errorf("email notify: load invoice %d: %w", event.InvoiceID, err)
	}
	if inv.Email == "" {
		return nil
	}

	now := time.Now()
	if n.Now != nil {
		now = n.Now()
	}
	subject := n.Composer.Render(tpl.Subject, inv, now)
	body := n.Composer.Render(tpl.Body, inv, now)
	if err := n.Mail.Send(inv.Email, subject, body); err != nil {
		if obs.EmailSentTotal != nil {
			obs.EmailSentTotal.WithLabelValues(event.Topic, "error").Inc()
		}
		return fmt.Errorf("email notify: send %s: %w", event.Topic, err)
	}
	if obs.EmailSentTotal != nil {
		obs.EmailSentTotal.WithLabelValues(event.Topic, "ok").Inc()
	}
	return nil
}

func (n *Notifier) template(topic string) (Template, bool) {
	if n.Templates != nil {
		if tpl, ok := n.Templates[topic]; ok {
			return tpl, true
		}
	}
	tpl, ok := DefaultTemplates()[topic]
	return tpl, ok
}
