package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/backend-billing/internal/invoice"
)

// BankDetails is the account information shown to the customer after choosing
// a manual transfer.
type BankDetails struct {
	AccountName   string
	AccountNumber string
	BankName      string
	IBAN          string
	BIC           string
	SortCode      string
}

// BankTransfer accepts an order and asks the customer to pay out of band. The
// invoice stays on hold until an operator confirms the transfer.
type BankTransfer struct {
	Base

	Details      BankDetails
	Instructions string
}

// NewBankTransfer builds the descriptor and gateway.
func NewBankTransfer(base Base, details BankDetails, instructions string) *BankTransfer {
	base.Desc.ID = "bank_transfer"
	if base.Desc.AdminLabel == "" {
		base.Desc.AdminLabel = "Bank Transfer"
	}
	if base.Desc.CheckoutLabel == "" {
		base.Desc.CheckoutLabel = "Direct Bank Transfer"
	}
	if base.Desc.Ordering == 0 {
		base.Desc.Ordering = 11
	}
	base.Desc.Supports = []Feature{FeatureAddons}
	return &BankTransfer{Base: base, Details: details, Instructions: instructions}
}

// ProcessPayment records the transfer instructions against the invoice and
// leaves it awaiting confirmation.
func (b *BankTransfer) ProcessPayment(_ context.Context, inv *invoice.Invoice, _ Submission) (Outcome, error) {
	if inv == nil {
		return Outcome{}, errors.New("bank_transfer: nil invoice")
	}
	var sb strings.Builder
	if b.Instructions != "" {
		sb.WriteString(b.Instructions)
		sb.WriteString("\n")
	}
	writeDetail(&sb, "Account name", b.Details.AccountName)
	writeDetail(&sb, "Account number", b.Details.AccountNumber)
	writeDetail(&sb, "Bank", b.Details.BankName)
	writeDetail(&sb, "IBAN", b.Details.IBAN)
	writeDetail(&sb, "BIC/SWIFT", b.Details.BIC)
	writeDetail(&sb, "Sort code", b.Details.SortCode)
	writeDetail(&sb, "Reference", inv.Number)
	return Pending("", sb.String()), nil
}

func writeDetail(sb *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(sb, "%s: %s\n", label, value)
}
