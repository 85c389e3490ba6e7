// Package checkout routes payment submissions to the gateway that should
// take them and applies the outcome to the invoice.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/events"
	"github.com/noah-isme/backend-billing/internal/gateway"
	"github.com/noah-isme/backend-billing/internal/invoice"
	"github.com/noah-isme/backend-billing/internal/lock"
	"github.com/noah-isme/backend-billing/internal/obs"
)

// gatewayIDPattern strips anything outside the identifier alphabet, so a
// crafted submission can never smuggle an arbitrary string into lookups.
var gatewayIDPattern = regexp.MustCompile(`[^a-zA-Z0-9\-_]`)

// SanitizeGatewayID reduces untrusted input to the gateway identifier
// alphabet.
func SanitizeGatewayID(raw string) string {
	return gatewayIDPattern.ReplaceAllString(strings.TrimSpace(raw), "")
}

// Result is the successful end of a checkout: where to send the customer.
type Result struct {
	RedirectURL string `json:"redirectUrl"`
	InvoiceKey  string `json:"invoiceKey"`
	Gateway     string `json:"gateway"`
}

// Dispatcher runs the checkout flow for one invoice at a time.
type Dispatcher struct {
	Invoices invoice.Store
	Registry *gateway.Registry
	Resolver *gateway.Resolver
	Bus      *events.Bus
	Locker   *lock.Locker
	Validate *validator.Validate

	SiteURL      string
	RequireTerms bool
	LockTTL      time.Duration
}

// noneGatewayID marks invoices that settled without any gateway involved,
// such as zero-total invoices.
const noneGatewayID = "none"

// Process validates the submission, resolves the gateway and hands the
// invoice over for payment. Validation problems are reported together in one
// AppError instead of stopping at the first.
func (d *Dispatcher) Process(ctx context.Context, invoiceID int64, sub gateway.Submission) (Result, error) {
	if d == nil || d.Invoices == nil || d.Registry == nil || d.Resolver == nil {
		return Result{}, errors.New("checkout dispatcher not configured")
	}
	ctx, span := otel.Tracer("checkout.Dispatcher").Start(ctx, "Dispatcher.Process")
	defer span.End()

	start := time.Now()
	gatewayLabel := "unresolved"
	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("checkout.gateway", gatewayLabel),
			attribute.String("checkout.result", result),
			attribute.Float64("checkout.duration_ms", obs.DurationMillis(time.Since(start))),
		)
		if obs.CheckoutTotal != nil {
			obs.CheckoutTotal.WithLabelValues(gatewayLabel, result).Inc()
		}
		if obs.CheckoutDuration != nil {
			obs.CheckoutDuration.WithLabelValues(gatewayLabel).Observe(obs.DurationMillis(time.Since(start)))
		}
	}()

	inv, err := d.Invoices.Get(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, invoice.ErrNotFound) {
			result = "not_found"
			return Result{}, common.NewAppError("INVOICE_NOT_FOUND", "invoice not found", http.StatusNotFound, err)
		}
		return Result{}, err
	}
	span.SetAttributes(attribute.Int64("invoice.id", inv.ID))

	if inv.IsPaid() {
		result = "already_paid"
		return Result{}, common.NewAppError("INVOICE_ALREADY_PAID", "this invoice has already been paid", http.StatusConflict, nil)
	}
	if !inv.NeedsPayment() {
		result = "not_payable"
		return Result{}, common.NewAppError("INVOICE_NOT_PAYABLE", "this invoice cannot be paid in its current state", http.StatusConflict, nil)
	}

	problems := d.validateSubmission(inv, sub)

	// Zero-total invoices settle right away with no gateway involved. The
	// submission itself still has to pass: terms and email apply to every
	// checkout, only the gateway checks are skipped.
	if inv.IsFree() {
		if len(problems) > 0 {
			result = "invalid"
			return Result{}, common.NewAppError("CHECKOUT_INVALID", "the submission could not be processed", http.StatusUnprocessableEntity, nil).
				WithDetails(problems)
		}
		return d.settleFree(ctx, inv, &gatewayLabel, &result)
	}

	gw, resolveProblems := d.resolveGateway(inv, sub)
	problems = append(problems, resolveProblems...)
	if gw != nil {
		gatewayLabel = gw.Descriptor().ID
		problems = append(problems, d.checkGateway(gw, inv)...)
	}

	if len(problems) > 0 {
		result = "invalid"
		return Result{}, common.NewAppError("CHECKOUT_INVALID", "the submission could not be processed", http.StatusUnprocessableEntity, nil).
			WithDetails(problems)
	}

	var res Result
	run := func(ctx context.Context) error {
		var err error
		res, err = d.pay(ctx, inv.ID, gw, sub, &result)
		return err
	}
	if d.Locker != nil {
		ttl := d.LockTTL
		if ttl <= 0 {
			ttl = 30 * time.Second
		}
		err = d.Locker.WithLock(ctx, lock.InvoiceKey(inv.ID), ttl, run)
	} else {
		err = run(ctx)
	}
	return res, err
}

// validateSubmission accumulates every submission problem instead of failing
// fast, so the customer can fix the whole form in one round trip.
func (d *Dispatcher) validateSubmission(inv *invoice.Invoice, sub gateway.Submission) []string {
	var problems []string

	if d.RequireTerms && sub[gateway.KeyAgreeToTerms] != "1" {
		problems = append(problems, "you must accept the terms and conditions")
	}

	email := strings.TrimSpace(sub[gateway.KeyEmail])
	if email == "" {
		email = inv.Email
	}
	if d.Validate != nil {
		if err := d.Validate.Var(email, "required,email"); err != nil {
			problems = append(problems, "a valid billing email address is required")
		}
	}
	return problems
}

// resolveGateway picks the gateway for the invoice: the sanitized submission
// choice first, then the gateway already stored on the invoice, then manual
// for invoices with nothing to charge up front, then the default. An inactive
// choice silently falls back to the default rather than erroring, matching
// what customers see when a method is retired mid-session.
func (d *Dispatcher) resolveGateway(inv *invoice.Invoice, sub gateway.Submission) (gateway.Gateway, []string) {
	for _, id := range []string{SanitizeGatewayID(sub.Gateway()), SanitizeGatewayID(inv.Gateway)} {
		if id == "" || id == noneGatewayID {
			continue
		}
		if gw, err := d.Registry.Get(id); err == nil {
			if gw.Descriptor().Enabled {
				return gw, nil
			}
			break
		}
	}
	// A zero subtotal with a positive total, such as a tax-only or
	// fee-only invoice, takes the manual gateway when it is enabled.
	if inv.Subtotal <= 0 {
		if gw, err := d.Registry.Get(gateway.ManualID); err == nil && gw.Descriptor().Enabled {
			return gw, nil
		}
	}
	gw, err := d.Registry.Default()
	if err != nil {
		return nil, []string{"no payment method is available"}
	}
	return gw, nil
}

// checkGateway runs the capability checks against the resolved gateway. All
// of them run even after one fails.
func (d *Dispatcher) checkGateway(gw gateway.Gateway, inv *invoice.Invoice) []string {
	var problems []string
	id := gw.Descriptor().ID

	if !d.Registry.IsActive(id) {
		problems = append(problems, fmt.Sprintf("%s is not available", gw.Descriptor().CheckoutLabel))
	}
	if inv.Recurring && !d.Resolver.Supports(id, gateway.FeatureSubscriptions) {
		problems = append(problems, fmt.Sprintf("%s does not support recurring payments", gw.Descriptor().CheckoutLabel))
	}
	if !d.Resolver.SupportsCurrency(id, inv.Currency) {
		problems = append(problems, fmt.Sprintf("%s does not support payments in %s", gw.Descriptor().CheckoutLabel, inv.Currency))
	}
	return problems
}

func (d *Dispatcher) settleFree(ctx context.Context, inv *invoice.Invoice, gatewayLabel, result *string) (Result, error) {
	*gatewayLabel = noneGatewayID
	if err := d.Invoices.SetGateway(ctx, inv.ID, noneGatewayID, inv.Mode); err != nil {
		return Result{}, err
	}
	paid, err := d.Invoices.MarkPaid(ctx, inv.ID, "")
	if err != nil {
		return Result{}, err
	}
	_ = d.Invoices.AddNote(ctx, inv.ID, "Invoice settled without payment: total is zero.", true)
	d.emit(ctx, events.TopicInvoicePaid, paid)
	*result = "free"
	return Result{RedirectURL: d.successURL(paid), InvoiceKey: paid.Key, Gateway: noneGatewayID}, nil
}

// pay runs under the per-invoice lock. The invoice is re-read so a settlement
// that won the race is observed instead of double-charged.
func (d *Dispatcher) pay(ctx context.Context, invoiceID int64, gw gateway.Gateway, sub gateway.Submission, result *string) (Result, error) {
	inv, err := d.Invoices.Get(ctx, invoiceID)
	if err != nil {
		return Result{}, err
	}
	if !inv.NeedsPayment() {
		*result = "already_settled"
		return Result{}, common.NewAppError("INVOICE_ALREADY_PAID", "this invoice has already been paid", http.StatusConflict, nil)
	}

	desc := gw.Descriptor()
	mode := invoice.ModeLive
	if d.Resolver.IsSandbox(desc.ID, inv) {
		mode = invoice.ModeTest
	}
	if err := d.Invoices.SetGateway(ctx, inv.ID, desc.ID, mode); err != nil {
		return Result{}, err
	}
	inv.Gateway = desc.ID
	inv.Mode = mode

	out, err := gw.ProcessPayment(ctx, inv, sub)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).
			Str("gateway", desc.ID).Int64("invoice_id", inv.ID).
			Msg("checkout_gateway_error")
		return Result{}, common.NewAppError("GATEWAY_ERROR", "the payment could not be processed, please try again", http.StatusBadGateway, err)
	}

	switch out.Kind {
	case gateway.OutcomeRedirect:
		*result = "redirect"
		return Result{RedirectURL: out.RedirectURL, InvoiceKey: inv.Key, Gateway: desc.ID}, nil

	case gateway.OutcomePaid:
		paid, err := d.Invoices.MarkPaid(ctx, inv.ID, out.TransactionID)
		if err != nil {
			return Result{}, err
		}
		_ = d.Invoices.AddNote(ctx, inv.ID,
			fmt.Sprintf("Payment completed via %s. Transaction ID: %s", desc.AdminLabel, out.TransactionID), true)
		d.emit(ctx, events.TopicInvoicePaid, paid)
		*result = "paid"
		return Result{RedirectURL: d.successURL(paid), InvoiceKey: paid.Key, Gateway: desc.ID}, nil

	case gateway.OutcomePending:
		if err := d.Invoices.UpdateStatus(ctx, inv.ID, invoice.StatusOnHold); err != nil {
			return Result{}, err
		}
		note := fmt.Sprintf("Awaiting payment via %s.", desc.AdminLabel)
		if out.Reference != "" {
			note += "\n" + out.Reference
		}
		_ = d.Invoices.AddNote(ctx, inv.ID, note, true)
		d.emit(ctx, events.TopicPaymentPending, inv)
		*result = "pending"
		return Result{RedirectURL: d.successURL(inv), InvoiceKey: inv.Key, Gateway: desc.ID}, nil

	case gateway.OutcomeFailed:
		if err := d.Invoices.UpdateStatus(ctx, inv.ID, invoice.StatusFailed); err != nil {
			return Result{}, err
		}
		_ = d.Invoices.AddNote(ctx, inv.ID,
			fmt.Sprintf("Payment via %s failed: %s", desc.AdminLabel, out.Reason), true)
		d.emit(ctx, events.TopicPaymentFailed, inv)
		// the raw reason stays in the log, the customer gets a generic message
		zerolog.Ctx(ctx).Warn().
			Str("gateway", desc.ID).Int64("invoice_id", inv.ID).Str("reason", out.Reason).
			Msg("checkout_payment_failed")
		*result = "failed"
		return Result{}, common.NewAppError("PAYMENT_FAILED", "the payment was declined", http.StatusPaymentRequired, nil)

	default:
		return Result{}, fmt.Errorf("checkout: unknown outcome %q from %s", out.Kind, desc.ID)
	}
}

func (d *Dispatcher) emit(ctx context.Context, topic string, inv *invoice.Invoice) {
	if d.Bus == nil || inv == nil {
		return
	}
	payload := map[string]any{
		"invoiceNumber": inv.Number,
		"gateway":       inv.Gateway,
		"total":         inv.Total,
		"currency":      inv.Currency,
	}
	if _, err := d.Bus.Emit(ctx, topic, inv.ID, payload); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("topic", topic).Msg("checkout_event_emit_failed")
	}
}

func (d *Dispatcher) successURL(inv *invoice.Invoice) string {
	v := url.Values{}
	v.Set("invoice_key", inv.Key)
	return strings.TrimRight(d.SiteURL, "/") + "/payment/success?" + v.Encode()
}
