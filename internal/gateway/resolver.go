package gateway

import (
	"slices"

	"github.com/noah-isme/backend-billing/internal/invoice"
)

// Resolver answers capability questions about registered gateways. A disabled
// gateway supports nothing, and currency exclusions beat currency allow-lists.
type Resolver struct {
	Reg *Registry
}

// Supports reports whether the gateway is enabled and advertises the feature.
// Unknown and disabled gateways support nothing.
func (r *Resolver) Supports(id string, f Feature) bool {
	if r == nil || r.Reg == nil {
		return false
	}
	gw, err := r.Reg.Get(id)
	if err != nil {
		return false
	}
	d := gw.Descriptor()
	return d.Enabled && d.HasFeature(f)
}

// SupportsCurrency reports whether the gateway accepts the ISO currency code.
// An empty allow-list accepts every code. A code on the exclusion list is
// rejected even when the allow-list names it.
func (r *Resolver) SupportsCurrency(id, code string) bool {
	if r == nil || r.Reg == nil {
		return false
	}
	gw, err := r.Reg.Get(id)
	if err != nil {
		return false
	}
	d := gw.Descriptor()
	allowed := len(d.Currencies) == 0 || slices.Contains(d.Currencies, code)
	if !allowed {
		return false
	}
	return !slices.Contains(d.ExcludeCurrencies, code)
}

// IsSandbox reports the effective mode for a payment. An invoice that no
// longer needs payment answers with the mode recorded on it, so links for
// paid, refunded and cancelled invoices keep pointing at the environment
// that processed them. Otherwise the gateway's current sandbox toggle
// decides.
func (r *Resolver) IsSandbox(id string, inv *invoice.Invoice) bool {
	if inv != nil && !inv.NeedsPayment() {
		return inv.Mode == invoice.ModeTest
	}
	if r == nil || r.Reg == nil {
		return false
	}
	gw, err := r.Reg.Get(id)
	if err != nil {
		return false
	}
	return gw.Descriptor().Sandbox
}
