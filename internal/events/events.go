// Package events defines the normalized domain events republished from the
// daemon's plugin stream, the translator that produces them, and the bus
// they are published on.
package events

import (
	"time"

	"lnbridge/internal/money"
)

// Routing keys the daemon's broker plugin attaches to its messages.
const (
	RoutingKeyInvoicePayment = "lightningd.message.invoice_payment"
	RoutingKeySendPaySuccess = "lightningd.message.sendpay_success"
)

// Event is a normalized domain event. Implementations are immutable value
// objects: constructed once from an inbound delivery and never mutated.
type Event interface {
	// Name is the stable event type identifier, also used as the bus
	// topic.
	Name() string
	// Key is the partitioning/dedupe identity of this event instance.
	Key() string
}

// InvoiceSettled records that an invoice held by the node was paid.
type InvoiceSettled struct {
	PreimageHash string
	Preimage     string
	AmountPaid   money.Millisatoshi
	Label        string
	Timestamp    time.Time
}

func (InvoiceSettled) Name() string { return "lightning.invoice.settled" }

func (e InvoiceSettled) Key() string { return e.PreimageHash }

// PaymentSucceeded records that an outgoing payment completed.
type PaymentSucceeded struct {
	Preimage     string
	PreimageHash string
	Amount       money.Millisatoshi
	AmountPaid   money.Millisatoshi
	Timestamp    time.Time
}

func (PaymentSucceeded) Name() string { return "lightning.payment.succeeded" }

func (e PaymentSucceeded) Key() string { return e.PreimageHash }
