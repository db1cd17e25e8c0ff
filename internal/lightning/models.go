// Package lightning exposes lightningd to the rest of the platform as a
// typed client with normalized invoice/payment vocabulary.
package lightning

import (
	"time"

	"lnbridge/internal/money"
)

// Invoice is a request for payment held by the node. Instances are
// transient results of a single RPC round trip; the bridge keeps no store
// of them. The preimage and the amount received stay empty until the
// invoice settles.
type Invoice struct {
	PaymentHash    string
	Preimage       string
	Bolt11         string
	Destination    string
	AmountMsat     money.Millisatoshi
	AmountPaidMsat money.Millisatoshi
	Label          string
	Description    string
	ExpirySeconds  int64
	BlockHeight    int64
	State          InvoiceState
	CreatedAt      time.Time
	SettledAt      time.Time
}

// Payment is an outgoing payment attempt. AmountSentMsat is at least
// AmountMsat; the difference is the routing fee actually settled.
type Payment struct {
	PaymentHash    string
	Preimage       string
	Bolt11         string
	Destination    string
	AmountMsat     money.Millisatoshi
	AmountSentMsat money.Millisatoshi
	MaxFeePercent  float64
	FeeMsat        money.Millisatoshi
	Label          string
	State          PaymentState
	CreatedAt      time.Time
}
