// Package ipn receives asynchronous payment notifications and settles
// invoices from them.
package ipn

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-billing/internal/checkout"
	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/events"
	"github.com/noah-isme/backend-billing/internal/gateway"
	"github.com/noah-isme/backend-billing/internal/invoice"
	"github.com/noah-isme/backend-billing/internal/obs"
)

// Handler routes payment notifications to the gateway that can verify them
// and applies the verified settlement to the invoice.
type Handler struct {
	Registry  *gateway.Registry
	Invoices  invoice.Store
	Events    *events.Bus
	Replay    *redis.Client
	ReplayTTL time.Duration
}

// Routes mounts the notification endpoints. The query form keeps the URL the
// remote processors were historically configured with working.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/ipn/{gateway}", h.Handle)
	r.Post("/ipn", h.HandleLegacy)
	r.Get("/ipn", h.HandleLegacy)
}

// HandleLegacy serves ?listener=IPN&gateway=<id> requests by rewriting them
// onto the path form.
func (h *Handler) HandleLegacy(w http.ResponseWriter, r *http.Request) {
	if !strings.EqualFold(r.URL.Query().Get("listener"), "IPN") {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "unknown listener", nil)
		return
	}
	h.handle(w, r, r.URL.Query().Get("gateway"))
}

// Handle serves the path form.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, chi.URLParam(r, "gateway"))
}

func (h *Handler) handle(w http.ResponseWriter, r *http.Request, rawGateway string) {
	if h == nil || h.Registry == nil || h.Invoices == nil {
		common.JSONError(w, http.StatusInternalServerError, "IPN_NOT_CONFIGURED", "notification handler unavailable", nil)
		return
	}
	logger := zerolog.Ctx(r.Context())
	gatewayID := checkout.SanitizeGatewayID(rawGateway)

	record := func(result string) {
		if obs.IPNTotal != nil {
			label := gatewayID
			if label == "" {
				label = "unknown"
			}
			obs.IPNTotal.WithLabelValues(label, result).Inc()
		}
	}

	gw, err := h.Registry.Get(gatewayID)
	if err != nil {
		record("unknown_gateway")
		common.JSONError(w, http.StatusNotFound, "GATEWAY_NOT_SUPPORTED", "unknown gateway", nil)
		return
	}
	verifier, ok := gw.(gateway.IPNVerifier)
	if !ok {
		record("no_verifier")
		common.JSONError(w, http.StatusNotFound, "IPN_NOT_SUPPORTED", "gateway does not accept notifications", nil)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		record("bad_body")
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	params := notificationParams(r, body)
	result, err := verifier.VerifyIPN(r.Context(), body, params)
	if err != nil {
		// processors retry on non-2xx; an unverifiable notification is
		// logged and acknowledged so it is not redelivered forever
		logger.Warn().Err(err).Str("gateway", gatewayID).Msg("ipn_verification_failed")
		record("invalid")
		common.JSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	if h.Replay != nil && h.ReplayTTL > 0 {
		key := fmt.Sprintf("ipn:%s:%s", gatewayID, common.Sha256Hex(string(body)))
		fresh, err := h.Replay.SetNX(r.Context(), key, "1", h.ReplayTTL).Result()
		if err != nil {
			record("replay_store_error")
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", "unable to check replay state", nil)
			return
		}
		if !fresh {
			logger.Info().Str("gateway", gatewayID).Int64("invoice_id", result.InvoiceID).Msg("ipn_duplicate")
			record("duplicate")
			common.JSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
			return
		}
	}

	if err := h.apply(r, gatewayID, result); err != nil {
		if errors.Is(err, invoice.ErrNotFound) {
			record("invoice_not_found")
			common.JSONError(w, http.StatusNotFound, "INVOICE_NOT_FOUND", "invoice not found", nil)
			return
		}
		logger.Error().Err(err).Str("gateway", gatewayID).Int64("invoice_id", result.InvoiceID).Msg("ipn_settlement_failed")
		record("error")
		common.JSONError(w, http.StatusInternalServerError, "SETTLEMENT_ERROR", "unable to apply notification", nil)
		return
	}
	record("ok")
	common.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// apply moves the invoice to the notified status. Settlement is idempotent:
// a paid notification for a paid invoice changes nothing.
func (h *Handler) apply(r *http.Request, gatewayID string, result gateway.IPNResult) error {
	ctx := r.Context()
	switch result.Status {
	case invoice.StatusPaid:
		inv, err := h.Invoices.MarkPaid(ctx, result.InvoiceID, result.TransactionID)
		if err != nil {
			return err
		}
		_ = h.Invoices.AddNote(ctx, result.InvoiceID,
			fmt.Sprintf("Payment confirmed via %s notification. Transaction ID: %s", gatewayID, result.TransactionID), true)
		h.emit(r, events.TopicInvoicePaid, inv)
		return nil

	case invoice.StatusRefunded:
		if err := h.Invoices.UpdateStatus(ctx, result.InvoiceID, invoice.StatusRefunded); err != nil {
			return err
		}
		inv, err := h.Invoices.Get(ctx, result.InvoiceID)
		if err != nil {
			return err
		}
		_ = h.Invoices.AddNote(ctx, result.InvoiceID,
			fmt.Sprintf("Refund reported via %s notification.", gatewayID), true)
		h.emit(r, events.TopicInvoiceRefunded, inv)
		return nil

	case invoice.StatusFailed:
		inv, err := h.Invoices.Get(ctx, result.InvoiceID)
		if err != nil {
			return err
		}
		// a failure notice must not claw back a settled invoice
		if inv.IsPaid() {
			return nil
		}
		if err := h.Invoices.UpdateStatus(ctx, result.InvoiceID, invoice.StatusFailed); err != nil {
			return err
		}
		h.emit(r, events.TopicPaymentFailed, inv)
		return nil

	default:
		inv, err := h.Invoices.Get(ctx, result.InvoiceID)
		if err != nil {
			return err
		}
		if inv.IsPaid() {
			return nil
		}
		return h.Invoices.UpdateStatus(ctx, result.InvoiceID, result.Status)
	}
}

func (h *Handler) emit(r *http.Request, topic string, inv *invoice.Invoice) {
	if h.Events == nil || inv == nil {
		return
	}
	payload := map[string]any{
		"invoiceNumber": inv.Number,
		"gateway":       inv.Gateway,
		"total":         inv.Total,
		"currency":      inv.Currency,
	}
	if _, err := h.Events.Emit(r.Context(), topic, inv.ID, payload); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Str("topic", topic).Msg("ipn_event_emit_failed")
	}
}

// notificationParams flattens the query string and, for form posts, the body
// into the key/value map verifiers consume.
func notificationParams(r *http.Request, body []byte) map[string]string {
	params := map[string]string{}
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/x-www-form-urlencoded") || ct == "" {
		if form, err := url.ParseQuery(string(body)); err == nil {
			for key, values := range form {
				if len(values) > 0 {
					params[key] = values[0]
				}
			}
		}
	}
	return params
}
