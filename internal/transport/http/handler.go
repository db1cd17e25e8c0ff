// Package httptransport exposes the lightning client operations to the
// rest of the platform. Handlers delegate to the client without embedding
// business logic.
package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lnbridge/internal/lightning"
	"lnbridge/internal/money"
	dErrors "lnbridge/pkg/domain-errors"
)

// Service defines the lightning operations the HTTP layer exposes.
type Service interface {
	RequestInvoice(ctx context.Context, amount money.Millisatoshi, label, description string, expirySeconds int64) (*lightning.Invoice, error)
	SendPayment(ctx context.Context, bolt11 string, amount money.Millisatoshi) (*lightning.Payment, error)
	DecodeRequest(ctx context.Context, bolt11 string) (*lightning.Invoice, error)
	LookupInvoice(ctx context.Context, paymentHash string) (*lightning.Invoice, error)
	LookupPayment(ctx context.Context, paymentHash string) (*lightning.Payment, error)
	GetNodeInfo(ctx context.Context) (map[string]any, error)
}

// Handler wires lightning endpoints to the client.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a Handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the bridge endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/invoices", h.handleRequestInvoice)
	r.Get("/v1/invoices/{hash}", h.handleLookupInvoice)
	r.Post("/v1/payments", h.handleSendPayment)
	r.Get("/v1/payments/{hash}", h.handleLookupPayment)
	r.Post("/v1/decode", h.handleDecode)
	r.Get("/v1/info", h.handleInfo)
}

type requestInvoiceRequest struct {
	AmountMsat  int64  `json:"amount_msat"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Expiry      int64  `json:"expiry"`
}

type sendPaymentRequest struct {
	Bolt11     string `json:"bolt11"`
	AmountMsat int64  `json:"amount_msat"`
}

type decodeRequest struct {
	Bolt11 string `json:"bolt11"`
}

func (h *Handler) handleRequestInvoice(w http.ResponseWriter, r *http.Request) {
	var req requestInvoiceRequest
	if !h.decode(w, r, &req) {
		return
	}
	inv, err := h.service.RequestInvoice(r.Context(), money.Millisatoshi(req.AmountMsat), req.Label, req.Description, req.Expiry)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, inv)
}

func (h *Handler) handleSendPayment(w http.ResponseWriter, r *http.Request) {
	var req sendPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Bolt11 == "" {
		h.writeError(w, r, dErrors.New(dErrors.CodeValidation, "bolt11 is required"))
		return
	}
	pay, err := h.service.SendPayment(r.Context(), req.Bolt11, money.Millisatoshi(req.AmountMsat))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, pay)
}

func (h *Handler) handleDecode(w http.ResponseWriter, r *http.Request) {
	var req decodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Bolt11 == "" {
		h.writeError(w, r, dErrors.New(dErrors.CodeValidation, "bolt11 is required"))
		return
	}
	inv, err := h.service.DecodeRequest(r.Context(), req.Bolt11)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, inv)
}

func (h *Handler) handleLookupInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.LookupInvoice(r.Context(), chi.URLParam(r, "hash"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if inv == nil {
		h.writeError(w, r, dErrors.New(dErrors.CodeNotFound, "invoice not found"))
		return
	}
	h.writeJSON(w, http.StatusOK, inv)
}

func (h *Handler) handleLookupPayment(w http.ResponseWriter, r *http.Request) {
	pay, err := h.service.LookupPayment(r.Context(), chi.URLParam(r, "hash"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if pay == nil {
		h.writeError(w, r, dErrors.New(dErrors.CodeNotFound, "payment not found"))
		return
	}
	h.writeJSON(w, http.StatusOK, pay)
}

func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.GetNodeInfo(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		h.writeError(w, r, dErrors.Wrap(err, dErrors.CodeValidation, "invalid request body"))
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError translates domain error codes to HTTP statuses. Internal
// detail is not leaked to clients.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := dErrors.GetCode(err)
	status := statusFor(code)

	if status >= http.StatusInternalServerError && h.logger != nil {
		h.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"code", string(code),
			"error", err,
		)
	}

	body := map[string]any{"error": string(code)}
	if status < http.StatusInternalServerError {
		body["error_description"] = err.Error()
	}
	if daemon := dErrors.DaemonCode(err); daemon != 0 {
		body["daemon_code"] = daemon
	}
	h.writeJSON(w, status, body)
}

func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodePolicy, dErrors.CodeValidation:
		return http.StatusBadRequest
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	case dErrors.CodeServiceFailed, dErrors.CodeTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
