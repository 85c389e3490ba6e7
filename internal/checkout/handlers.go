package checkout

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/gateway"
)

// Handler exposes the checkout dispatch and gateway listing endpoints.
type Handler struct {
	Dispatcher *Dispatcher
}

// Routes mounts the checkout endpoints on the router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/checkout/{invoiceID}", h.Checkout)
	r.Get("/gateways", h.Gateways)
}

// Checkout accepts the submitted form fields as a flat JSON object and runs
// the dispatch flow.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Dispatcher == nil {
		common.JSONError(w, http.StatusInternalServerError, "CHECKOUT_NOT_CONFIGURED", "checkout handler unavailable", nil)
		return
	}
	invoiceID, err := strconv.ParseInt(chi.URLParam(r, "invoiceID"), 10, 64)
	if err != nil || invoiceID <= 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid invoice id", nil)
		return
	}

	sub := gateway.Submission{}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
			return
		}
	}

	res, err := h.Dispatcher.Process(r.Context(), invoiceID, sub)
	if err != nil {
		common.JSONAppError(w, err, "checkout failed")
		return
	}
	common.JSON(w, http.StatusOK, res)
}

type gatewayView struct {
	ID                 string   `json:"id"`
	Label              string   `json:"label"`
	Description        string   `json:"description,omitempty"`
	Ordering           int      `json:"ordering"`
	Sandbox            bool     `json:"sandbox"`
	CheckoutButtonText string   `json:"checkoutButtonText,omitempty"`
	Supports           []string `json:"supports,omitempty"`
}

// Gateways lists the enabled payment methods in display order, the active
// default first.
func (h *Handler) Gateways(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Dispatcher == nil || h.Dispatcher.Registry == nil {
		common.JSONError(w, http.StatusInternalServerError, "CHECKOUT_NOT_CONFIGURED", "checkout handler unavailable", nil)
		return
	}
	gws := h.Dispatcher.Registry.List(true, true)
	views := make([]gatewayView, 0, len(gws))
	for _, gw := range gws {
		d := gw.Descriptor()
		features := make([]string, 0, len(d.Supports))
		for _, f := range d.Supports {
			features = append(features, string(f))
		}
		sort.Strings(features)
		views = append(views, gatewayView{
			ID:                 d.ID,
			Label:              d.CheckoutLabel,
			Description:        d.Description,
			Ordering:           d.Ordering,
			Sandbox:            d.Sandbox,
			CheckoutButtonText: d.CheckoutButtonText,
			Supports:           features,
		})
	}
	common.JSON(w, http.StatusOK, map[string]any{"gateways": views})
}
