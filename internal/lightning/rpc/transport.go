// Package rpc implements the lightningd JSON-RPC transport: a single
// long-lived stream socket carrying one newline-terminated JSON document
// per response, with daemon error codes classified into the domain error
// taxonomy.
package rpc

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	dErrors "lnbridge/pkg/domain-errors"
)

// Daemon error codes the bridge treats as transient. Callers may retry.
const (
	codeRouteNotFound  = 205
	codePaymentTimeout = 210
)

type request struct {
	ID     int    `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Transport issues request/response calls over an established lightningd
// socket. The daemon handles one request at a time on a connection, so the
// transport enforces a single outstanding call with a mutex rather than
// relying on callers to serialize.
type Transport struct {
	mu     sync.Mutex
	conn   io.ReadWriter
	logger *slog.Logger
}

// Option configures the Transport.
type Option func(*Transport)

// WithLogger sets a logger for daemon error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// New wraps an already-established connection to the daemon socket.
// Opening and closing the socket is the caller's responsibility.
func New(conn io.ReadWriter, opts ...Option) *Transport {
	t := &Transport{conn: conn}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Call issues one RPC round trip and returns the raw result document.
//
// The read blocks until the daemon terminates its response with a newline;
// no timeout is imposed here, so callers needing bounded latency must wrap
// the call externally. Connection-level failures come back as
// CodeTransport and are fatal for this transport.
func (t *Transport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTransport, "call "+method)
	}

	if params == nil {
		params = map[string]any{}
	}
	payload, err := json.Marshal(request{Method: method, Params: params})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeServiceFailed, "encode "+method+" request")
	}
	if _, err := t.conn.Write(payload); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTransport, "write "+method+" request")
	}

	raw, err := t.readResponse()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTransport, "read "+method+" response")
	}

	var resp response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeServiceFailed, "malformed "+method+" response")
	}
	if resp.Error != nil {
		return nil, t.classify(method, resp.Error)
	}
	return resp.Result, nil
}

// readResponse accumulates reads until the buffer ends with the record
// separator. The daemon emits exactly one newline-terminated document per
// response and requests are never pipelined, so framing on the trailing
// byte is sufficient.
func (t *Transport) readResponse() ([]byte, error) {
	var buf []byte
	chunk := make([]byte, 4096)
	for {
		n, err := t.conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if buf[len(buf)-1] == '\n' {
				return buf, nil
			}
		}
		if err != nil {
			return nil, err
		}
	}
}

// classify maps a daemon error to the domain taxonomy, preserving the
// daemon's numeric code for the caller.
func (t *Transport) classify(method string, e *rpcError) error {
	switch e.Code {
	case codeRouteNotFound, codePaymentTimeout:
		return dErrors.Newf(dErrors.CodeUnavailable, "%s: %s", method, e.Message).WithDaemonCode(e.Code)
	default:
		if t.logger != nil {
			t.logger.Error("daemon rpc call failed",
				"method", method,
				"code", e.Code,
				"message", e.Message,
			)
		}
		return dErrors.Newf(dErrors.CodeServiceFailed, "%s: %s", method, e.Message).WithDaemonCode(e.Code)
	}
}
