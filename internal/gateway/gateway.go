package gateway

import (
	"context"
	"errors"

	"github.com/noah-isme/backend-billing/internal/invoice"
)

// Submission carries the raw key/value pairs posted with a checkout request.
// It is a plain map so transports can decode straight into it without the
// gateway package learning about HTTP.
type Submission map[string]string

// Well-known submission keys.
const (
	KeyGateway      = "wpi-gateway"
	KeyAgreeToTerms = "wpi_agree_to_terms"
	KeyEmail        = "billing_email"
)

// Gateway returns the gateway identifier the customer chose, or "" when the
// submission leaves the choice to the server.
func (s Submission) Gateway() string { return s[KeyGateway] }

// Outcome is the result of asking a gateway to take payment. Exactly one Kind
// applies; the remaining fields are populated according to it.
type Outcome struct {
	Kind OutcomeKind

	// RedirectURL is set for OutcomeRedirect.
	RedirectURL string

	// TransactionID is the remote reference, set for OutcomePaid and
	// OutcomePending when the gateway assigned one.
	TransactionID string

	// Reference is a human-readable note recorded against the invoice, such
	// as bank transfer instructions.
	Reference string

	// Reason explains OutcomeFailed. It is logged, never shown to customers.
	Reason string
}

type OutcomeKind string

const (
	// OutcomeRedirect sends the customer to the remote gateway to complete
	// payment. Settlement arrives later over IPN.
	OutcomeRedirect OutcomeKind = "redirect"
	// OutcomePaid settled synchronously.
	OutcomePaid OutcomeKind = "paid"
	// OutcomePending means the gateway accepted the order but payment happens
	// out of band, like a bank transfer.
	OutcomePending OutcomeKind = "pending"
	// OutcomeFailed means the gateway declined or errored.
	OutcomeFailed OutcomeKind = "failed"
)

// Redirect builds a redirect outcome.
func Redirect(url string) Outcome { return Outcome{Kind: OutcomeRedirect, RedirectURL: url} }

// Paid builds a settled outcome carrying the remote transaction id.
func Paid(transactionID string) Outcome {
	return Outcome{Kind: OutcomePaid, TransactionID: transactionID}
}

// Pending builds an awaiting-payment outcome with an optional note for the
// invoice, such as transfer instructions.
func Pending(transactionID, reference string) Outcome {
	return Outcome{Kind: OutcomePending, TransactionID: transactionID, Reference: reference}
}

// Failed builds a declined outcome. The reason stays server-side.
func Failed(reason string) Outcome { return Outcome{Kind: OutcomeFailed, Reason: reason} }

// Gateway is the contract every payment method implements. ProcessPayment
// must not mutate the invoice; the dispatcher applies the outcome.
type Gateway interface {
	Descriptor() Descriptor
	ProcessPayment(ctx context.Context, inv *invoice.Invoice, sub Submission) (Outcome, error)
}

// Refunder is implemented by gateways that can push a refund back to the
// original payment method.
type Refunder interface {
	ProcessRefund(ctx context.Context, inv *invoice.Invoice, amount float64) error
}

// IPNVerifier is implemented by gateways that receive asynchronous payment
// notifications. Verify authenticates the raw notification body and reports
// the settlement it describes.
type IPNVerifier interface {
	VerifyIPN(ctx context.Context, body []byte, params map[string]string) (IPNResult, error)
}

// IPNResult is a verified notification decoded into domain terms.
type IPNResult struct {
	InvoiceID     int64
	TransactionID string
	// Status is the invoice status the notification maps to.
	Status invoice.Status
}

// ErrRefundUnsupported is returned when a refund is requested from a gateway
// that cannot perform one.
var ErrRefundUnsupported = errors.New("gateway: refunds not supported")
