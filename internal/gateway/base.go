package gateway

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/noah-isme/backend-billing/internal/invoice"
)

// Base carries the descriptor plus the bits of site configuration gateways
// share. Concrete gateways embed it and get Descriptor and the URL helpers
// for free.
type Base struct {
	Desc Descriptor

	// SiteURL is the public origin return URLs are built against.
	SiteURL string

	// Resolver decides sandbox mode for settled invoices.
	Resolver *Resolver
}

// Descriptor returns the registration record.
func (b *Base) Descriptor() Descriptor { return b.Desc }

// IsSandbox reports the effective mode for the invoice, deferring to the
// resolver so settled invoices keep their historical mode.
func (b *Base) IsSandbox(inv *invoice.Invoice) bool {
	if b.Resolver != nil {
		return b.Resolver.IsSandbox(b.Desc.ID, inv)
	}
	return b.Desc.Sandbox
}

// TransactionURL renders the descriptor's transaction link for the invoice.
// The template's {sandbox} token expands to "sandbox." in test mode and to
// nothing in live mode; %s takes the remote transaction id. An empty template
// or a missing transaction id yields "".
func (b *Base) TransactionURL(inv *invoice.Invoice) string {
	if inv == nil {
		return ""
	}
	return b.expandURL(b.Desc.TransactionURL, inv.TransactionID, inv)
}

// SubscriptionURL renders the descriptor's subscription link, keyed by the
// remote subscription id.
func (b *Base) SubscriptionURL(inv *invoice.Invoice) string {
	if inv == nil {
		return ""
	}
	return b.expandURL(b.Desc.SubscriptionURL, inv.SubscriptionID, inv)
}

func (b *Base) expandURL(template, remoteID string, inv *invoice.Invoice) string {
	if template == "" || remoteID == "" {
		return ""
	}
	sandbox := ""
	if b.IsSandbox(inv) {
		sandbox = "sandbox."
	}
	return fmt.Sprintf(strings.ReplaceAll(template, "{sandbox}", sandbox), remoteID)
}

// ReturnURL is where the remote gateway sends the customer after payment. The
// invoice key rides along so the confirmation page can load the invoice
// without a session.
func (b *Base) ReturnURL(inv *invoice.Invoice) string {
	v := url.Values{}
	v.Set("payment-confirm", b.Desc.ID)
	if inv != nil {
		v.Set("invoice_key", inv.Key)
	}
	return strings.TrimRight(b.SiteURL, "/") + "/payment/confirm?" + v.Encode()
}
