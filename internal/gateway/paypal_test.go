package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/invoice"
	"github.com/noah-isme/backend-billing/internal/resilience"
)

func testPayPal(client *resilience.HTTPClient) *PayPal {
	base := Base{
		Desc:    Descriptor{Enabled: true, Sandbox: false},
		SiteURL: "https://billing.example.com",
	}
	return NewPayPal(base, "merchant@example.com", "https://billing.example.com/api/v1/ipn/paypal", client)
}

func TestPayPalProcessPaymentRedirect(t *testing.T) {
	p := testPayPal(nil)
	inv := &invoice.Invoice{
		ID: 42, Number: "WPINV-42", Key: "k42", Email: "buyer@example.com",
		Currency: "USD", Subtotal: 90, Tax: 10, Total: 100,
		Status: invoice.StatusPending,
	}

	out, err := p.ProcessPayment(context.Background(), inv, nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeRedirect, out.Kind)

	u, err := url.Parse(out.RedirectURL)
	require.NoError(t, err)
	require.Equal(t, "www.paypal.com", u.Host)
	q := u.Query()
	require.Equal(t, "_cart", q.Get("cmd"))
	require.Equal(t, "merchant@example.com", q.Get("business"))
	require.Equal(t, "42", q.Get("invoice"))
	require.Equal(t, "USD", q.Get("currency_code"))
	require.Equal(t, "90.00", q.Get("amount_1"))
	require.Equal(t, "10.00", q.Get("tax_cart"))
	require.Contains(t, q.Get("return"), "invoice_key=k42")
}

func TestPayPalProcessPaymentRecurring(t *testing.T) {
	p := testPayPal(nil)
	inv := &invoice.Invoice{
		ID: 7, Number: "WPINV-7", Key: "k7", Currency: "USD",
		Total: 25, Recurring: true, Status: invoice.StatusPending,
	}

	out, err := p.ProcessPayment(context.Background(), inv, nil)
	require.NoError(t, err)
	u, err := url.Parse(out.RedirectURL)
	require.NoError(t, err)
	require.Equal(t, "_xclick-subscriptions", u.Query().Get("cmd"))
	require.Equal(t, "25.00", u.Query().Get("a3"))
}

func TestPayPalSandboxHost(t *testing.T) {
	p := testPayPal(nil)
	p.Desc.Sandbox = true
	out, err := p.ProcessPayment(context.Background(), &invoice.Invoice{ID: 1, Currency: "USD", Total: 5}, nil)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out.RedirectURL, "https://www.sandbox.paypal.com/"))
}

func TestPayPalVerifyIPN(t *testing.T) {
	var gotPostback string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotPostback = string(body)
		_, _ = w.Write([]byte("VERIFIED"))
	}))
	t.Cleanup(srv.Close)

	client := &resilience.HTTPClient{Client: srv.Client(), MaxAttempts: 1, Timeout: time.Second}
	p := testPayPal(client)
	// route the postback at the stub server instead of paypal.com
	p.postbackHost = srv.URL

	body := []byte("txn_id=TX9&payment_status=Completed&invoice=42&receiver_email=merchant@example.com")
	params := map[string]string{
		"txn_id":         "TX9",
		"payment_status": "Completed",
		"invoice":        "42",
		"receiver_email": "merchant@example.com",
	}

	res, err := p.VerifyIPN(context.Background(), body, params)
	require.NoError(t, err)
	require.Equal(t, int64(42), res.InvoiceID)
	require.Equal(t, "TX9", res.TransactionID)
	require.Equal(t, invoice.StatusPaid, res.Status)
	require.True(t, strings.HasPrefix(gotPostback, "cmd=_notify-validate&"))
}

func TestPayPalVerifyIPNInvalid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("INVALID"))
	}))
	t.Cleanup(srv.Close)

	client := &resilience.HTTPClient{Client: srv.Client(), MaxAttempts: 1, Timeout: time.Second}
	p := testPayPal(client)
	p.postbackHost = srv.URL

	_, err := p.VerifyIPN(context.Background(), []byte("txn_id=TX9"), map[string]string{"invoice": "42"})
	require.Error(t, err)
}

func TestPayPalStatusMapping(t *testing.T) {
	require.Equal(t, invoice.StatusPaid, payPalStatus("Completed"))
	require.Equal(t, invoice.StatusOnHold, payPalStatus("Pending"))
	require.Equal(t, invoice.StatusRefunded, payPalStatus("Refunded"))
	require.Equal(t, invoice.StatusFailed, payPalStatus("Denied"))
	require.Equal(t, invoice.StatusOnHold, payPalStatus("anything else"))
}
