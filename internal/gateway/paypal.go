package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/noah-isme/backend-billing/internal/invoice"
	"github.com/noah-isme/backend-billing/internal/resilience"
)

// PayPal implements the legacy Payments Standard flow: the customer is
// redirected to PayPal with the order encoded in the query string, and
// settlement arrives later as an IPN which is verified by posting the raw
// body back to PayPal.
type PayPal struct {
	Base

	// BusinessEmail is the merchant account receiving payments.
	BusinessEmail string

	// HTTP performs the IPN postback. Required for VerifyIPN.
	HTTP *resilience.HTTPClient

	// IPNURL is where PayPal should deliver notifications.
	IPNURL string

	// postbackHost overrides the verification endpoint in tests.
	postbackHost string
}

// payPalCurrencies is the set of ISO codes PayPal Standard accepts.
var payPalCurrencies = []string{
	"AUD", "BRL", "CAD", "CHF", "CZK", "DKK", "EUR", "GBP", "HKD", "HUF",
	"ILS", "JPY", "MXN", "MYR", "NOK", "NZD", "PHP", "PLN", "RUB", "SEK",
	"SGD", "THB", "TWD", "USD",
}

// NewPayPal builds the descriptor and gateway in one go so registration stays
// a single call at startup.
func NewPayPal(base Base, businessEmail, ipnURL string, client *resilience.HTTPClient) *PayPal {
	base.Desc.ID = "paypal"
	if base.Desc.AdminLabel == "" {
		base.Desc.AdminLabel = "PayPal Standard"
	}
	if base.Desc.CheckoutLabel == "" {
		base.Desc.CheckoutLabel = "PayPal"
	}
	if base.Desc.TransactionURL == "" {
		base.Desc.TransactionURL = "https://www.{sandbox}paypal.com/activity/payment/%s"
	}
	if base.Desc.SubscriptionURL == "" {
		base.Desc.SubscriptionURL = "https://www.{sandbox}paypal.com/cgi-bin/webscr?cmd=_profile-recurring-payments&encrypted_profile_id=%s"
	}
	base.Desc.Currencies = payPalCurrencies
	base.Desc.Supports = []Feature{
		FeatureSubscriptions, FeatureSandbox, FeatureBuyNow, FeatureAddons,
	}
	return &PayPal{Base: base, BusinessEmail: businessEmail, IPNURL: ipnURL, HTTP: client}
}

func (p *PayPal) webscrHost(inv *invoice.Invoice) string {
	if p.IsSandbox(inv) {
		return "https://www.sandbox.paypal.com/cgi-bin/webscr"
	}
	return "https://www.paypal.com/cgi-bin/webscr"
}

// ProcessPayment builds the hosted checkout redirect. No network call happens
// here; PayPal confirms the payment over IPN.
func (p *PayPal) ProcessPayment(_ context.Context, inv *invoice.Invoice, _ Submission) (Outcome, error) {
	if inv == nil {
		return Outcome{}, errors.New("paypal: nil invoice")
	}
	if strings.TrimSpace(p.BusinessEmail) == "" {
		return Outcome{}, errors.New("paypal: business email not configured")
	}

	v := url.Values{}
	v.Set("business", p.BusinessEmail)
	v.Set("email", inv.Email)
	v.Set("first_name", inv.FirstName)
	v.Set("last_name", inv.LastName)
	v.Set("invoice", strconv.FormatInt(inv.ID, 10))
	v.Set("custom", inv.Key)
	v.Set("currency_code", inv.Currency)
	v.Set("charset", "utf-8")
	v.Set("rm", "2")
	v.Set("no_shipping", "1")
	v.Set("return", p.ReturnURL(inv))
	v.Set("notify_url", p.IPNURL)

	if inv.Recurring {
		v.Set("cmd", "_xclick-subscriptions")
		v.Set("item_name", "Invoice "+inv.Number)
		v.Set("a3", strconv.FormatFloat(inv.Total, 'f', 2, 64))
		v.Set("src", "1")
	} else {
		v.Set("cmd", "_cart")
		v.Set("upload", "1")
		v.Set("item_name_1", "Invoice "+inv.Number)
		v.Set("amount_1", strconv.FormatFloat(inv.Subtotal, 'f', 2, 64))
		if inv.Tax > 0 {
			v.Set("tax_cart", strconv.FormatFloat(inv.Tax, 'f', 2, 64))
		}
		if inv.Discount > 0 {
			v.Set("discount_amount_cart", strconv.FormatFloat(inv.Discount, 'f', 2, 64))
		}
	}

	return Redirect(p.webscrHost(inv) + "?" + v.Encode()), nil
}

// VerifyIPN authenticates a notification by echoing the body back to PayPal
// with cmd=_notify-validate and checking for the VERIFIED response, then maps
// the payment_status field onto an invoice status.
func (p *PayPal) VerifyIPN(ctx context.Context, body []byte, params map[string]string) (IPNResult, error) {
	if p.HTTP == nil {
		return IPNResult{}, errors.New("paypal: http client not configured")
	}

	endpoint := p.postbackHost
	if endpoint == "" {
		endpoint = p.webscrHost(nil)
	}
	postback := "cmd=_notify-validate&" + string(body)
	req, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(postback))
	if err != nil {
		return IPNResult{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.HTTP.Do(ctx, req)
	if err != nil {
		return IPNResult{}, fmt.Errorf("paypal postback: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	answer, err := io.ReadAll(io.LimitReader(resp.Body, 32))
	if err != nil {
		return IPNResult{}, err
	}
	if strings.TrimSpace(string(answer)) != "VERIFIED" {
		return IPNResult{}, errors.New("paypal: ipn not verified")
	}

	if recv := strings.TrimSpace(params["receiver_email"]); recv != "" &&
		!strings.EqualFold(recv, p.BusinessEmail) {
		return IPNResult{}, errors.New("paypal: receiver email mismatch")
	}

	invoiceID, err := strconv.ParseInt(strings.TrimSpace(params["invoice"]), 10, 64)
	if err != nil {
		return IPNResult{}, errors.New("paypal: missing invoice reference")
	}

	return IPNResult{
		InvoiceID:     invoiceID,
		TransactionID: params["txn_id"],
		Status:        payPalStatus(params["payment_status"]),
	}, nil
}

func payPalStatus(status string) invoice.Status {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "completed", "processed":
		return invoice.StatusPaid
	case "pending":
		return invoice.StatusOnHold
	case "refunded", "reversed":
		return invoice.StatusRefunded
	case "denied", "expired", "voided":
		return invoice.StatusFailed
	default:
		return invoice.StatusOnHold
	}
}
