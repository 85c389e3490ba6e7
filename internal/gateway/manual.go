package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/noah-isme/backend-billing/internal/invoice"
)

// ManualID names the gateway used for test payments and invoices settled by
// an operator. Zero-total invoices settle through it as well.
const ManualID = "manual"

// Manual settles immediately without contacting any payment processor.
type Manual struct {
	Base
}

// NewManual builds the descriptor and gateway. Manual supports every feature
// because nothing external constrains it.
func NewManual(base Base) *Manual {
	base.Desc.ID = ManualID
	if base.Desc.AdminLabel == "" {
		base.Desc.AdminLabel = "Test Payment"
	}
	if base.Desc.CheckoutLabel == "" {
		base.Desc.CheckoutLabel = "Manual Payment"
	}
	base.Desc.Supports = []Feature{
		FeatureSubscriptions, FeatureSandbox, FeatureTokens,
		FeatureRefunds, FeatureBuyNow, FeatureAddons,
	}
	return &Manual{Base: base}
}

// ProcessPayment marks the payment settled with a locally generated
// reference.
func (m *Manual) ProcessPayment(_ context.Context, inv *invoice.Invoice, _ Submission) (Outcome, error) {
	if inv == nil {
		return Outcome{}, errors.New("manual: nil invoice")
	}
	return Paid(fmt.Sprintf("manual-%d", inv.ID)), nil
}
