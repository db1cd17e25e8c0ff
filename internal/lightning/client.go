package lightning

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"lnbridge/internal/money"
	"lnbridge/internal/platform/metrics"
	dErrors "lnbridge/pkg/domain-errors"
)

// Invoice expiry must stay within lightningd's accepted window.
const (
	MinExpirySeconds = 60
	MaxExpirySeconds = 31536000
)

// Caller issues one RPC round trip against the daemon socket.
type Caller interface {
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
}

// Policy gates an operation on a feature flag and a minimum amount.
type Policy struct {
	Enabled bool
	Minimum money.Millisatoshi
}

// Allows reports whether amount passes the policy. The default minimum is
// one millisatoshi, the smallest representable unit.
func (p Policy) Allows(amount money.Millisatoshi) bool {
	min := p.Minimum
	if min <= 0 {
		min = 1
	}
	return p.Enabled && amount >= min
}

// Config carries the payment policy knobs the client applies before and
// during daemon calls.
type Config struct {
	RequestPolicy Policy
	SendPolicy    Policy

	// MaxFeePercent is the fee ceiling passed to pay and used by the
	// fee estimate heuristic.
	MaxFeePercent float64
	// ExemptFee is the absolute fee floor below which the percentage
	// ceiling is not enforced.
	ExemptFee money.Millisatoshi
	// RiskFactor biases daemon route selection.
	RiskFactor int
	// SendTimeout bounds how long the daemon keeps retrying a payment.
	SendTimeout time.Duration
}

// Client is the typed lightningd RPC client. All operations are
// synchronous request/response over the shared transport.
type Client struct {
	rpc     Caller
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets a logger for operational reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New constructs a Client over the given transport.
func New(rpc Caller, cfg Config, opts ...Option) (*Client, error) {
	if rpc == nil {
		return nil, fmt.Errorf("rpc transport is required")
	}
	c := &Client{rpc: rpc, cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Wire shapes for the daemon replies this client reads.

type invoiceResult struct {
	PaymentHash string `json:"payment_hash"`
	Bolt11      string `json:"bolt11"`
	ExpiresAt   int64  `json:"expires_at"`
}

type nodeInfo struct {
	Blockheight int64 `json:"blockheight"`
}

type payResult struct {
	PaymentHash     string             `json:"payment_hash"`
	PaymentPreimage string             `json:"payment_preimage"`
	Msatoshi        money.Millisatoshi `json:"msatoshi"`
	MsatoshiSent    money.Millisatoshi `json:"msatoshi_sent"`
}

type decodedRequest struct {
	PaymentHash string             `json:"payment_hash"`
	Payee       string             `json:"payee"`
	Msatoshi    money.Millisatoshi `json:"msatoshi"`
	Description string             `json:"description"`
	Expiry      int64              `json:"expiry"`
	CreatedAt   int64              `json:"created_at"`
}

type listedInvoice struct {
	Label            string             `json:"label"`
	Bolt11           string             `json:"bolt11"`
	PaymentHash      string             `json:"payment_hash"`
	PaymentPreimage  string             `json:"payment_preimage"`
	Msatoshi         money.Millisatoshi `json:"msatoshi"`
	MsatoshiReceived money.Millisatoshi `json:"msatoshi_received"`
	Status           string             `json:"status"`
	Description      string             `json:"description"`
	ExpiresAt        int64              `json:"expires_at"`
	PaidAt           int64              `json:"paid_at"`
}

type listedPay struct {
	Bolt11          string             `json:"bolt11"`
	PaymentHash     string             `json:"payment_hash"`
	PaymentPreimage string             `json:"payment_preimage"`
	Status          string             `json:"status"`
	Msatoshi        money.Millisatoshi `json:"msatoshi"`
	MsatoshiSent    money.Millisatoshi `json:"msatoshi_sent"`
	CreatedAt       int64              `json:"created_at"`
	Label           string             `json:"label"`
}

type routeHop struct {
	ID       string             `json:"id"`
	Msatoshi money.Millisatoshi `json:"msatoshi"`
	Delay    int64              `json:"delay"`
}

// CanRequest reports whether the platform accepts inbound requests for
// this amount.
func (c *Client) CanRequest(amount money.Millisatoshi) bool {
	return c.cfg.RequestPolicy.Allows(amount)
}

// CanSend reports whether the platform accepts outbound payments of this
// amount.
func (c *Client) CanSend(amount money.Millisatoshi) bool {
	return c.cfg.SendPolicy.Allows(amount)
}

// RequestInvoice asks the daemon for a new invoice and merges the node's
// current block height into the result. Policy and expiry bounds are
// checked before any daemon call.
func (c *Client) RequestInvoice(ctx context.Context, amount money.Millisatoshi, label, description string, expirySeconds int64) (*Invoice, error) {
	if !c.CanRequest(amount) {
		return nil, dErrors.Newf(dErrors.CodePolicy, "requesting %s is not allowed", amount)
	}
	if expirySeconds < MinExpirySeconds || expirySeconds > MaxExpirySeconds {
		return nil, dErrors.Newf(dErrors.CodePolicy, "expiry %d outside [%d, %d] seconds", expirySeconds, MinExpirySeconds, MaxExpirySeconds)
	}

	var res invoiceResult
	err := c.call(ctx, "invoice", map[string]any{
		"msatoshi":    int64(amount),
		"label":       label,
		"description": description,
		"expiry":      expirySeconds,
	}, &res)
	if err != nil {
		return nil, err
	}

	var info nodeInfo
	if err := c.call(ctx, "getinfo", nil, &info); err != nil {
		return nil, err
	}

	return &Invoice{
		PaymentHash:   res.PaymentHash,
		Bolt11:        res.Bolt11,
		AmountMsat:    amount,
		Label:         label,
		Description:   description,
		ExpirySeconds: expirySeconds,
		BlockHeight:   info.Blockheight,
		State:         InvoiceStatePending,
		CreatedAt:     time.Now(),
	}, nil
}

// SendPayment pays a bolt11 request. The daemon is given the configured
// fee ceiling, risk factor, retry duration and exempt-fee floor; the fee
// settled is the amount sent minus the amount requested.
func (c *Client) SendPayment(ctx context.Context, bolt11 string, amount money.Millisatoshi) (*Payment, error) {
	if !c.CanSend(amount) {
		return nil, dErrors.Newf(dErrors.CodePolicy, "sending %s is not allowed", amount)
	}

	var res payResult
	err := c.call(ctx, "pay", map[string]any{
		"bolt11":        bolt11,
		"maxfeepercent": c.cfg.MaxFeePercent,
		"retry_for":     int64(c.cfg.SendTimeout.Seconds()),
		"riskfactor":    c.cfg.RiskFactor,
		"exemptfee":     int64(c.cfg.ExemptFee),
	}, &res)
	if err != nil {
		return nil, err
	}

	return &Payment{
		PaymentHash:    res.PaymentHash,
		Preimage:       res.PaymentPreimage,
		Bolt11:         bolt11,
		AmountMsat:     res.Msatoshi,
		AmountSentMsat: res.MsatoshiSent,
		MaxFeePercent:  c.cfg.MaxFeePercent,
		FeeMsat:        res.MsatoshiSent - res.Msatoshi,
		State:          PaymentStateCompleted,
		CreatedAt:      time.Now(),
	}, nil
}

// DecodeRequest decodes a bolt11 request without touching daemon-side
// state.
func (c *Client) DecodeRequest(ctx context.Context, bolt11 string) (*Invoice, error) {
	var res decodedRequest
	if err := c.call(ctx, "decodepay", map[string]any{"bolt11": bolt11}, &res); err != nil {
		return nil, err
	}
	return &Invoice{
		PaymentHash:   res.PaymentHash,
		Bolt11:        bolt11,
		Destination:   res.Payee,
		AmountMsat:    res.Msatoshi,
		Description:   res.Description,
		ExpirySeconds: res.Expiry,
		State:         InvoiceStatePending,
		CreatedAt:     time.Unix(res.CreatedAt, 0),
	}, nil
}

// EstimateFee estimates the fee for paying amount to destination.
//
// The estimate is the route-derived fee when the daemon's best route
// actually charges more than the heuristic ceiling; otherwise the ceiling
// itself. A zero-cost route is assumed to mean the daemon will not route
// that way in practice, so the ceiling is used.
func (c *Client) EstimateFee(ctx context.Context, destination string, amount money.Millisatoshi) (money.Millisatoshi, error) {
	ceiling := amount.PercentCeil(c.cfg.MaxFeePercent)
	if ceiling < c.cfg.ExemptFee {
		ceiling = c.cfg.ExemptFee
	}

	var res struct {
		Route []routeHop `json:"route"`
	}
	err := c.call(ctx, "getroute", map[string]any{
		"id":         destination,
		"msatoshi":   int64(amount),
		"riskfactor": c.cfg.RiskFactor,
	}, &res)
	if err != nil {
		return 0, err
	}

	var routeFee money.Millisatoshi
	for _, hop := range res.Route {
		routeFee += hop.Msatoshi - amount
	}
	if routeFee > ceiling {
		return routeFee, nil
	}
	return ceiling, nil
}

// LookupInvoice fetches an invoice by payment hash. Returns nil when the
// daemon knows no such invoice.
func (c *Client) LookupInvoice(ctx context.Context, paymentHash string) (*Invoice, error) {
	var res struct {
		Invoices []listedInvoice `json:"invoices"`
	}
	if err := c.call(ctx, "listinvoices", nil, &res); err != nil {
		return nil, err
	}
	for _, in := range res.Invoices {
		if in.PaymentHash != paymentHash {
			continue
		}
		state, err := mapInvoiceState(in.Status)
		if err != nil {
			return nil, err
		}
		inv := &Invoice{
			PaymentHash:    in.PaymentHash,
			Preimage:       in.PaymentPreimage,
			Bolt11:         in.Bolt11,
			AmountMsat:     in.Msatoshi,
			AmountPaidMsat: in.MsatoshiReceived,
			Label:          in.Label,
			Description:    in.Description,
			State:          state,
		}
		if in.PaidAt > 0 {
			inv.SettledAt = time.Unix(in.PaidAt, 0)
		}
		return inv, nil
	}
	return nil, nil
}

// LookupPayment fetches a payment by payment hash. Returns nil when the
// daemon has no record of it.
func (c *Client) LookupPayment(ctx context.Context, paymentHash string) (*Payment, error) {
	var res struct {
		Pays []listedPay `json:"pays"`
	}
	if err := c.call(ctx, "listpays", map[string]any{"payment_hash": paymentHash}, &res); err != nil {
		return nil, err
	}
	for _, p := range res.Pays {
		if p.PaymentHash != paymentHash {
			continue
		}
		state, err := mapPaymentState(p.Status)
		if err != nil {
			return nil, err
		}
		return &Payment{
			PaymentHash:    p.PaymentHash,
			Preimage:       p.PaymentPreimage,
			Bolt11:         p.Bolt11,
			AmountMsat:     p.Msatoshi,
			AmountSentMsat: p.MsatoshiSent,
			MaxFeePercent:  c.cfg.MaxFeePercent,
			FeeMsat:        p.MsatoshiSent - p.Msatoshi,
			Label:          p.Label,
			State:          state,
			CreatedAt:      time.Unix(p.CreatedAt, 0),
		}, nil
	}
	return nil, nil
}

// GetNodeInfo returns the daemon's getinfo result unmodified.
func (c *Client) GetNodeInfo(ctx context.Context) (map[string]any, error) {
	var res map[string]any
	if err := c.call(ctx, "getinfo", nil, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// call runs one RPC and decodes the result into out, recording metrics
// per method.
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	raw, err := c.rpc.Call(ctx, method, params)
	if err != nil {
		c.observe(method, "error")
		return err
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			c.observe(method, "error")
			return dErrors.Wrap(err, dErrors.CodeServiceFailed, "decode "+method+" result")
		}
	}
	c.observe(method, "ok")
	return nil
}

func (c *Client) observe(method, result string) {
	if c.metrics != nil {
		c.metrics.ObserveRPC(method, result)
	}
}
