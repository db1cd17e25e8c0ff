package events

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"lnbridge/internal/money"
	dErrors "lnbridge/pkg/domain-errors"
)

// Translator decodes broker-delivered daemon payloads into domain events.
// It dispatches purely on routing key; unrecognized keys are valid no-ops,
// while malformed payloads for a recognized key are translation errors for
// that single message.
type Translator struct{}

// NewTranslator returns a stateless translator.
func NewTranslator() *Translator {
	return &Translator{}
}

type invoicePaymentPayload struct {
	InvoicePayment *struct {
		Preimage string `json:"preimage"`
		Msat     string `json:"msat"`
		Label    string `json:"label"`
	} `json:"invoice_payment"`
}

type sendPaySuccessPayload struct {
	SendPaySuccess *struct {
		PaymentPreimage string             `json:"payment_preimage"`
		PaymentHash     string             `json:"payment_hash"`
		Msatoshi        money.Millisatoshi `json:"msatoshi"`
		MsatoshiSent    money.Millisatoshi `json:"msatoshi_sent"`
	} `json:"sendpay_success"`
}

// Translate maps one delivery to a domain event. A nil event with nil
// error means the routing key is not one this bridge consumes.
func (t *Translator) Translate(routingKey string, payload []byte, deliveredAt time.Time) (Event, error) {
	switch routingKey {
	case RoutingKeyInvoicePayment:
		return t.invoiceSettled(payload, deliveredAt)
	case RoutingKeySendPaySuccess:
		return t.paymentSucceeded(payload, deliveredAt)
	default:
		return nil, nil
	}
}

// invoiceSettled derives the preimage hash by hashing the decoded
// preimage: the plugin does not send the hash on this path, and hashing
// locally keeps the pair consistent by construction.
func (t *Translator) invoiceSettled(payload []byte, deliveredAt time.Time) (Event, error) {
	var p invoicePaymentPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTranslation, "parse invoice_payment payload")
	}
	if p.InvoicePayment == nil {
		return nil, dErrors.New(dErrors.CodeTranslation, "invoice_payment object missing")
	}
	body := p.InvoicePayment

	preimage, err := hex.DecodeString(body.Preimage)
	if err != nil || len(preimage) == 0 {
		return nil, dErrors.New(dErrors.CodeTranslation, "invoice_payment preimage is not valid hex")
	}
	hash := sha256.Sum256(preimage)

	amount, err := money.Parse(body.Msat)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTranslation, "invoice_payment amount")
	}

	return InvoiceSettled{
		PreimageHash: hex.EncodeToString(hash[:]),
		Preimage:     body.Preimage,
		AmountPaid:   amount,
		Label:        body.Label,
		Timestamp:    deliveredAt,
	}, nil
}

// paymentSucceeded trusts the daemon-provided payment_hash verbatim: on
// this path the daemon has already verified the preimage against the hash
// it was paying to.
func (t *Translator) paymentSucceeded(payload []byte, deliveredAt time.Time) (Event, error) {
	var p sendPaySuccessPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTranslation, "parse sendpay_success payload")
	}
	if p.SendPaySuccess == nil {
		return nil, dErrors.New(dErrors.CodeTranslation, "sendpay_success object missing")
	}
	body := p.SendPaySuccess

	if body.PaymentPreimage == "" || body.PaymentHash == "" {
		return nil, dErrors.New(dErrors.CodeTranslation, "sendpay_success preimage or hash missing")
	}

	return PaymentSucceeded{
		Preimage:     body.PaymentPreimage,
		PreimageHash: body.PaymentHash,
		Amount:       body.Msatoshi,
		AmountPaid:   body.MsatoshiSent,
		Timestamp:    deliveredAt,
	}, nil
}
