package lightning

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lnbridge/internal/money"
	dErrors "lnbridge/pkg/domain-errors"
)

type scriptedCall struct {
	method string
	result string
	err    error
}

// scriptCaller replays canned daemon responses in order and records the
// params of every call.
type scriptCaller struct {
	t      *testing.T
	script []scriptedCall
	next   int
	params []map[string]any
}

func (s *scriptCaller) Call(_ context.Context, method string, params any) (json.RawMessage, error) {
	require.Less(s.t, s.next, len(s.script), "unexpected rpc call %q", method)
	step := s.script[s.next]
	s.next++
	require.Equal(s.t, step.method, method)

	var decoded map[string]any
	if params != nil {
		raw, err := json.Marshal(params)
		require.NoError(s.t, err)
		require.NoError(s.t, json.Unmarshal(raw, &decoded))
	}
	s.params = append(s.params, decoded)

	if step.err != nil {
		return nil, step.err
	}
	return json.RawMessage(step.result), nil
}

func testConfig() Config {
	return Config{
		RequestPolicy: Policy{Enabled: true, Minimum: 1000},
		SendPolicy:    Policy{Enabled: true, Minimum: 1000},
		MaxFeePercent: 0.5,
		ExemptFee:     5000,
		RiskFactor:    10,
		SendTimeout:   60 * time.Second,
	}
}

func newTestClient(t *testing.T, script ...scriptedCall) (*Client, *scriptCaller) {
	t.Helper()
	rpc := &scriptCaller{t: t, script: script}
	c, err := New(rpc, testConfig())
	require.NoError(t, err)
	return c, rpc
}

func TestNewRequiresTransport(t *testing.T) {
	_, err := New(nil, testConfig())
	assert.Error(t, err)
}

func TestPolicyAllows(t *testing.T) {
	assert.False(t, Policy{Enabled: false, Minimum: 1}.Allows(100))
	assert.False(t, Policy{Enabled: true, Minimum: 1000}.Allows(999))
	assert.True(t, Policy{Enabled: true, Minimum: 1000}.Allows(1000))
	// Default minimum is the smallest representable unit.
	assert.True(t, Policy{Enabled: true}.Allows(1))
	assert.False(t, Policy{Enabled: true}.Allows(0))
}

func TestRequestInvoice(t *testing.T) {
	t.Run("amount below minimum raises before any rpc call", func(t *testing.T) {
		c, rpc := newTestClient(t)
		_, err := c.RequestInvoice(context.Background(), 500, "order-1", "coffee", 3600)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodePolicy))
		assert.Zero(t, rpc.next)
	})

	t.Run("expiry outside bounds raises before any rpc call", func(t *testing.T) {
		for _, expiry := range []int64{59, 31536001, 0, -1} {
			c, rpc := newTestClient(t)
			_, err := c.RequestInvoice(context.Background(), 2000, "order-1", "coffee", expiry)
			require.Error(t, err, "expiry %d", expiry)
			assert.True(t, dErrors.HasCode(err, dErrors.CodePolicy))
			assert.Zero(t, rpc.next)
		}
	})

	t.Run("boundary expiries are accepted", func(t *testing.T) {
		for _, expiry := range []int64{60, 31536000} {
			c, _ := newTestClient(t,
				scriptedCall{method: "invoice", result: `{"payment_hash":"aa","bolt11":"lnbc1","expires_at":1700003600}`},
				scriptedCall{method: "getinfo", result: `{"blockheight":800000}`},
			)
			_, err := c.RequestInvoice(context.Background(), 2000, "order-1", "coffee", expiry)
			assert.NoError(t, err, "expiry %d", expiry)
		}
	})

	t.Run("merges daemon result and node block height", func(t *testing.T) {
		c, rpc := newTestClient(t,
			scriptedCall{method: "invoice", result: `{"payment_hash":"aa","bolt11":"lnbc1","expires_at":1700003600}`},
			scriptedCall{method: "getinfo", result: `{"blockheight":800000,"id":"02abc"}`},
		)
		inv, err := c.RequestInvoice(context.Background(), 2000, "order-1", "coffee", 3600)
		require.NoError(t, err)

		assert.Equal(t, "aa", inv.PaymentHash)
		assert.Equal(t, "lnbc1", inv.Bolt11)
		assert.Equal(t, money.Millisatoshi(2000), inv.AmountMsat)
		assert.Equal(t, "order-1", inv.Label)
		assert.Equal(t, int64(3600), inv.ExpirySeconds)
		assert.Equal(t, int64(800000), inv.BlockHeight)
		assert.Equal(t, InvoiceStatePending, inv.State)
		assert.Empty(t, inv.Preimage)
		assert.Zero(t, inv.AmountPaidMsat)

		assert.Equal(t, float64(2000), rpc.params[0]["msatoshi"])
		assert.Equal(t, float64(3600), rpc.params[0]["expiry"])
	})
}

func TestSendPayment(t *testing.T) {
	t.Run("amount below minimum raises before any rpc call", func(t *testing.T) {
		c, rpc := newTestClient(t)
		_, err := c.SendPayment(context.Background(), "lnbc1", 10)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodePolicy))
		assert.Zero(t, rpc.next)
	})

	t.Run("passes fee ceiling, risk factor, retry duration and exempt fee", func(t *testing.T) {
		c, rpc := newTestClient(t,
			scriptedCall{method: "pay", result: `{"payment_hash":"aa","payment_preimage":"bb","msatoshi":2000,"msatoshi_sent":2010}`},
		)
		_, err := c.SendPayment(context.Background(), "lnbc1", 2000)
		require.NoError(t, err)

		p := rpc.params[0]
		assert.Equal(t, "lnbc1", p["bolt11"])
		assert.Equal(t, 0.5, p["maxfeepercent"])
		assert.Equal(t, float64(60), p["retry_for"])
		assert.Equal(t, float64(10), p["riskfactor"])
		assert.Equal(t, float64(5000), p["exemptfee"])
	})

	t.Run("fee settled is sent minus requested", func(t *testing.T) {
		c, _ := newTestClient(t,
			scriptedCall{method: "pay", result: `{"payment_hash":"aa","payment_preimage":"bb","msatoshi":2000,"msatoshi_sent":2010}`},
		)
		pay, err := c.SendPayment(context.Background(), "lnbc1", 2000)
		require.NoError(t, err)
		assert.Equal(t, money.Millisatoshi(10), pay.FeeMsat)
		assert.Equal(t, "bb", pay.Preimage)
		assert.Equal(t, PaymentStateCompleted, pay.State)
	})

	t.Run("fee settled can be zero", func(t *testing.T) {
		c, _ := newTestClient(t,
			scriptedCall{method: "pay", result: `{"payment_hash":"aa","payment_preimage":"bb","msatoshi":2000,"msatoshi_sent":2000}`},
		)
		pay, err := c.SendPayment(context.Background(), "lnbc1", 2000)
		require.NoError(t, err)
		assert.Zero(t, pay.FeeMsat)
	})

	t.Run("transient daemon errors surface with the original code", func(t *testing.T) {
		c, _ := newTestClient(t,
			scriptedCall{method: "pay", err: dErrors.New(dErrors.CodeUnavailable, "pay: timeout").WithDaemonCode(210)},
		)
		_, err := c.SendPayment(context.Background(), "lnbc1", 2000)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
		assert.Equal(t, 210, dErrors.DaemonCode(err))
	})
}

func TestDecodeRequest(t *testing.T) {
	c, _ := newTestClient(t,
		scriptedCall{method: "decodepay", result: `{"payment_hash":"aa","payee":"02abc","msatoshi":2000,"description":"coffee","expiry":3600,"created_at":1700000000}`},
	)
	inv, err := c.DecodeRequest(context.Background(), "lnbc1")
	require.NoError(t, err)

	assert.Equal(t, "aa", inv.PaymentHash)
	assert.Equal(t, "02abc", inv.Destination)
	assert.Equal(t, money.Millisatoshi(2000), inv.AmountMsat)
	assert.Equal(t, int64(3600), inv.ExpirySeconds)
	assert.Equal(t, "lnbc1", inv.Bolt11)
	assert.Equal(t, time.Unix(1700000000, 0), inv.CreatedAt)
}

func TestEstimateFee(t *testing.T) {
	// Heuristic ceiling with these knobs: max(ceil(amount*0.5%), 5000msat).
	t.Run("route fee wins when above the ceiling", func(t *testing.T) {
		c, _ := newTestClient(t,
			scriptedCall{method: "getroute", result: `{"route":[{"id":"02a","msatoshi":1004000,"delay":40},{"id":"02b","msatoshi":1002000,"delay":30},{"id":"02c","msatoshi":1000000,"delay":9}]}`},
		)
		fee, err := c.EstimateFee(context.Background(), "02c", 1000000)
		require.NoError(t, err)
		// Hop-by-hop: (1004000-1000000)+(1002000-1000000)+(1000000-1000000)
		assert.Equal(t, money.Millisatoshi(6000), fee)
	})

	t.Run("zero-cost route falls back to the ceiling", func(t *testing.T) {
		c, _ := newTestClient(t,
			scriptedCall{method: "getroute", result: `{"route":[{"id":"02c","msatoshi":1000000,"delay":9}]}`},
		)
		fee, err := c.EstimateFee(context.Background(), "02c", 1000000)
		require.NoError(t, err)
		assert.Equal(t, money.Millisatoshi(5000), fee)
	})

	t.Run("percentage ceiling applies above the exempt floor", func(t *testing.T) {
		// 0.5% of 10_000_000 msat is 50_000, above the 5000 exempt floor.
		c, _ := newTestClient(t,
			scriptedCall{method: "getroute", result: `{"route":[{"id":"02c","msatoshi":10000000,"delay":9}]}`},
		)
		fee, err := c.EstimateFee(context.Background(), "02c", 10000000)
		require.NoError(t, err)
		assert.Equal(t, money.Millisatoshi(50000), fee)
	})

	t.Run("expensive route beats percentage ceiling", func(t *testing.T) {
		c, _ := newTestClient(t,
			scriptedCall{method: "getroute", result: `{"route":[{"id":"02a","msatoshi":10090000,"delay":40},{"id":"02c","msatoshi":10000000,"delay":9}]}`},
		)
		fee, err := c.EstimateFee(context.Background(), "02c", 10000000)
		require.NoError(t, err)
		assert.Equal(t, money.Millisatoshi(90000), fee)
	})
}

func TestLookupInvoice(t *testing.T) {
	t.Run("no match returns nil without error", func(t *testing.T) {
		c, _ := newTestClient(t,
			scriptedCall{method: "listinvoices", result: `{"invoices":[{"payment_hash":"other","status":"unpaid"}]}`},
		)
		inv, err := c.LookupInvoice(context.Background(), "aa")
		require.NoError(t, err)
		assert.Nil(t, inv)
	})

	t.Run("settled invoice maps all fields", func(t *testing.T) {
		c, _ := newTestClient(t,
			scriptedCall{method: "listinvoices", result: `{"invoices":[{"label":"order-1","bolt11":"lnbc1","payment_hash":"aa","payment_preimage":"bb","msatoshi":2000,"msatoshi_received":2000,"status":"paid","description":"coffee","paid_at":1700000100}]}`},
		)
		inv, err := c.LookupInvoice(context.Background(), "aa")
		require.NoError(t, err)
		require.NotNil(t, inv)
		assert.Equal(t, InvoiceStateSettled, inv.State)
		assert.Equal(t, "bb", inv.Preimage)
		assert.Equal(t, money.Millisatoshi(2000), inv.AmountPaidMsat)
		assert.Equal(t, time.Unix(1700000100, 0), inv.SettledAt)
	})

	t.Run("expired invoice is cancelled", func(t *testing.T) {
		c, _ := newTestClient(t,
			scriptedCall{method: "listinvoices", result: `{"invoices":[{"payment_hash":"aa","status":"expired"}]}`},
		)
		inv, err := c.LookupInvoice(context.Background(), "aa")
		require.NoError(t, err)
		assert.Equal(t, InvoiceStateCancelled, inv.State)
	})

	t.Run("unknown status is a service failure", func(t *testing.T) {
		c, _ := newTestClient(t,
			scriptedCall{method: "listinvoices", result: `{"invoices":[{"payment_hash":"aa","status":"weird"}]}`},
		)
		_, err := c.LookupInvoice(context.Background(), "aa")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeServiceFailed))
		assert.Contains(t, err.Error(), "weird")
	})
}

func TestLookupPayment(t *testing.T) {
	t.Run("no match returns nil without error", func(t *testing.T) {
		c, _ := newTestClient(t,
			scriptedCall{method: "listpays", result: `{"pays":[]}`},
		)
		pay, err := c.LookupPayment(context.Background(), "aa")
		require.NoError(t, err)
		assert.Nil(t, pay)
	})

	t.Run("complete payment maps fields and computes fee", func(t *testing.T) {
		c, _ := newTestClient(t,
			scriptedCall{method: "listpays", result: `{"pays":[{"bolt11":"lnbc1","payment_hash":"aa","payment_preimage":"bb","status":"complete","msatoshi":2000,"msatoshi_sent":2015,"created_at":1700000000}]}`},
		)
		pay, err := c.LookupPayment(context.Background(), "aa")
		require.NoError(t, err)
		require.NotNil(t, pay)
		assert.Equal(t, PaymentStateCompleted, pay.State)
		assert.Equal(t, money.Millisatoshi(15), pay.FeeMsat)
		assert.Equal(t, "bb", pay.Preimage)
	})

	t.Run("unknown status is a service failure", func(t *testing.T) {
		c, _ := newTestClient(t,
			scriptedCall{method: "listpays", result: `{"pays":[{"payment_hash":"aa","status":"unknown"}]}`},
		)
		_, err := c.LookupPayment(context.Background(), "aa")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeServiceFailed))
	})
}

func TestGetNodeInfo(t *testing.T) {
	c, _ := newTestClient(t,
		scriptedCall{method: "getinfo", result: `{"id":"02abc","alias":"bridge","blockheight":800000}`},
	)
	info, err := c.GetNodeInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "02abc", info["id"])
	assert.Equal(t, float64(800000), info["blockheight"])
}
