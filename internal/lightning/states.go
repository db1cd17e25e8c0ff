package lightning

import (
	dErrors "lnbridge/pkg/domain-errors"
)

// InvoiceState is the normalized invoice lifecycle. Settled and Cancelled
// are terminal.
type InvoiceState string

const (
	InvoiceStatePending   InvoiceState = "pending"
	InvoiceStateSettled   InvoiceState = "settled"
	InvoiceStateCancelled InvoiceState = "cancelled"
)

// PaymentState is the normalized payment lifecycle. Completed and Failed
// are terminal.
type PaymentState string

const (
	PaymentStatePending   PaymentState = "pending"
	PaymentStateCompleted PaymentState = "completed"
	PaymentStateFailed    PaymentState = "failed"
)

// mapInvoiceState maps a lightningd invoice status string. The daemon set
// is closed; anything unrecognized fails loudly rather than defaulting,
// because silently misclassifying invoice state is unsafe for money
// movement.
func mapInvoiceState(status string) (InvoiceState, error) {
	switch status {
	case "unpaid":
		return InvoiceStatePending, nil
	case "paid":
		return InvoiceStateSettled, nil
	case "expired":
		return InvoiceStateCancelled, nil
	default:
		return "", dErrors.Newf(dErrors.CodeServiceFailed, "unknown invoice status %q", status)
	}
}

// mapPaymentState maps a lightningd pay status string, failing loudly on
// unrecognized values.
func mapPaymentState(status string) (PaymentState, error) {
	switch status {
	case "pending":
		return PaymentStatePending, nil
	case "complete":
		return PaymentStateCompleted, nil
	case "failed":
		return PaymentStateFailed, nil
	default:
		return "", dErrors.Newf(dErrors.CodeServiceFailed, "unknown payment status %q", status)
	}
}
