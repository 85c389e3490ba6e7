package email_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/currency"
	"github.com/noah-isme/backend-billing/internal/email"
	"github.com/noah-isme/backend-billing/internal/events"
	"github.com/noah-isme/backend-billing/internal/invoice"
)

func testComposer() *email.Composer {
	return &email.Composer{
		SiteTitle: "Acme Billing",
		SiteURL:   "https://billing.example.com/",
		Currency:  currency.DefaultOptions(),
	}
}

func testInvoice(due time.Time) *invoice.Invoice {
	return &invoice.Invoice{
		ID: 42, Number: "WPINV-42", Key: "k42",
		Email: "jo@example.com", FirstName: "Jo", LastName: "Smith",
		Currency: "USD", Total: 1234.5,
		Status:    invoice.StatusPending,
		DueDate:   due,
		CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestComposerRender(t *testing.T) {
	c := testComposer()
	due := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	inv := testInvoice(due)
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	got := c.Render("Invoice {invoice_number} for {name}: {invoice_total} {is_was} due {invoice_due_date} via {site_title}", inv, now)
	require.Equal(t, "Invoice WPINV-42 for Jo Smith: $1,234.50 is due March 15, 2026 via Acme Billing", got)

	// past the due date the tense flips
	got = c.Render("{is_was}", inv, due.Add(24*time.Hour))
	require.Equal(t, "was", got)

	// unknown tags survive so template mistakes are visible
	require.Equal(t, "{bogus_tag}", c.Render("{bogus_tag}", inv, now))

	require.Equal(t, "https://billing.example.com/invoice/k42", c.Render("{invoice_link}", inv, now))
}

func TestNotifierSendsForTopic(t *testing.T) {
	due := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	inv := testInvoice(due)
	store := invoice.NewMemStore()
	require.NoError(t, store.Save(context.Background(), inv))

	outbox := &common.InMemoryEmail{}
	n := &email.Notifier{
		Mail:     outbox,
		Invoices: store,
		Composer: testComposer(),
		Enabled:  true,
	}

	err := n.Notify(context.Background(), events.Event{Topic: events.TopicInvoicePaid, InvoiceID: inv.ID})
	require.NoError(t, err)
	require.Len(t, outbox.Sent(), 1)
	require.Equal(t, "jo@example.com", outbox.Sent()[0].To)
	require.Equal(t, "Payment received for invoice WPINV-42", outbox.Sent()[0].Subject)
	require.Contains(t, outbox.Sent()[0].HTML, "$1,234.50")
}

func TestNotifierSkips(t *testing.T) {
	due := time.Now().Add(48 * time.Hour)
	inv := testInvoice(due)
	store := invoice.NewMemStore()
	require.NoError(t, store.Save(context.Background(), inv))
	outbox := &common.InMemoryEmail{}

	t.Run("disabled", func(t *testing.T) {
		n := &email.Notifier{Mail: outbox, Invoices: store, Composer: testComposer(), Enabled: false}
		require.NoError(t, n.Notify(context.Background(), events.Event{Topic: events.TopicInvoicePaid, InvoiceID: inv.ID}))
		require.Empty(t, outbox.Sent())
	})

	t.Run("topic toggled off", func(t *testing.T) {
		n := &email.Notifier{
			Mail: outbox, Invoices: store, Composer: testComposer(), Enabled: true,
			TopicToggles: map[string]bool{events.TopicInvoicePaid: false},
		}
		require.NoError(t, n.Notify(context.Background(), events.Event{Topic: events.TopicInvoicePaid, InvoiceID: inv.ID}))
		require.Empty(t, outbox.Sent())
	})

	t.Run("no template for topic", func(t *testing.T) {
		n := &email.Notifier{Mail: outbox, Invoices: store, Composer: testComposer(), Enabled: true}
		require.NoError(t, n.Notify(context.Background(), events.Event{Topic: "unknown.topic", InvoiceID: inv.ID}))
		require.Empty(t, outbox.Sent())
	})
}
