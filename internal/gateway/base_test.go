package gateway

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/invoice"
)

func TestBaseTransactionURL(t *testing.T) {
	base := Base{
		Desc: Descriptor{
			ID:             "paypal",
			Sandbox:        false,
			TransactionURL: "https://www.{sandbox}paypal.com/activity/payment/%s",
		},
		SiteURL: "https://billing.example.com",
	}

	inv := &invoice.Invoice{TransactionID: "TX123"}
	require.Equal(t, "https://www.paypal.com/activity/payment/TX123", base.TransactionURL(inv))

	base.Desc.Sandbox = true
	require.Equal(t, "https://www.sandbox.paypal.com/activity/payment/TX123", base.TransactionURL(inv))

	require.Empty(t, base.TransactionURL(&invoice.Invoice{}))
	require.Empty(t, base.TransactionURL(nil))

	base.Desc.TransactionURL = ""
	require.Empty(t, base.TransactionURL(inv))
}

func TestBaseSubscriptionURL(t *testing.T) {
	base := Base{Desc: Descriptor{
		ID:              "paypal",
		SubscriptionURL: "https://www.{sandbox}paypal.com/profiles/%s",
	}}
	require.Equal(t,
		"https://www.paypal.com/profiles/SUB-9",
		base.SubscriptionURL(&invoice.Invoice{SubscriptionID: "SUB-9"}))
	require.Empty(t, base.SubscriptionURL(&invoice.Invoice{}))
}

func TestBaseReturnURL(t *testing.T) {
	base := Base{Desc: Descriptor{ID: "paypal"}, SiteURL: "https://billing.example.com/"}
	got := base.ReturnURL(&invoice.Invoice{Key: "abc123"})
	require.Equal(t, "https://billing.example.com/payment/confirm?invoice_key=abc123&payment-confirm=paypal", got)
}
