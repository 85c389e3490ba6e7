package events

// Topic constants for domain events emitted by the billing flows.
const (
	TopicInvoiceCreated  = "invoice.created"
	TopicInvoicePaid     = "invoice.paid"
	TopicInvoiceRefunded = "invoice.refunded"
	TopicInvoiceOverdue  = "invoice.overdue"
	TopicPaymentPending  = "payment.pending"
	TopicPaymentFailed   = "payment.failed"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicInvoiceCreated,
		TopicInvoicePaid,
		TopicInvoiceRefunded,
		TopicInvoiceOverdue,
		TopicPaymentPending,
		TopicPaymentFailed,
	}
}
