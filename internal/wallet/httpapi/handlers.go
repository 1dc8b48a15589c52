// Package httpapi exposes the wallet service HTTP surface: the
// transfer-to-bank entrypoint, the signed webhook callback and the
// operator endpoints.
package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"wallet2bank/internal/auth"
	"wallet2bank/internal/wallet/domain"
	"wallet2bank/internal/wallet/service"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wallet_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	}, []string{"method", "endpoint"})

	callbackAuthFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wallet_callback_auth_failures_total",
		Help: "Webhook callbacks rejected for signature or freshness",
	})
)

// Handler holds the saga service and the webhook verification inputs.
type Handler struct {
	service         *service.Service
	sharedSecret    string
	freshnessWindow time.Duration
}

// NewHandler creates the wallet HTTP handler.
func NewHandler(svc *service.Service, sharedSecret string, freshnessWindow time.Duration) *Handler {
	return &Handler{service: svc, sharedSecret: sharedSecret, freshnessWindow: freshnessWindow}
}

// TransferToBank handles POST /api/wallet/transfer-to-bank.
func (h *Handler) TransferToBank(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/api/wallet/transfer-to-bank"))
	defer timer.ObserveDuration()

	var req domain.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondText(w, r, http.StatusBadRequest, "Malformed JSON body", "/api/wallet/transfer-to-bank")
		return
	}
	if req.TransactionID == "" || req.WalletID == "" || req.ToBankAccount == "" || req.Currency == "" {
		h.respondText(w, r, http.StatusBadRequest, "Missing required fields", "/api/wallet/transfer-to-bank")
		return
	}
	if !req.Amount.IsPositive() {
		h.respondText(w, r, http.StatusBadRequest, "Amount must be positive", "/api/wallet/transfer-to-bank")
		return
	}

	msg, err := h.service.InitiateTransfer(r.Context(), req)
	if err != nil {
		h.respondTransferError(w, r, err)
		return
	}
	h.respondText(w, r, http.StatusOK, msg, "/api/wallet/transfer-to-bank")
}

func (h *Handler) respondTransferError(w http.ResponseWriter, r *http.Request, err error) {
	const endpoint = "/api/wallet/transfer-to-bank"

	var dup *domain.DuplicateTransactionError
	if errors.As(err, &dup) {
		// Informational rejection: an acknowledged no-op, not a failure.
		h.respondText(w, r, http.StatusOK, dup.Message, endpoint)
		return
	}
	var rejection *domain.BankRejectionError
	if errors.As(err, &rejection) {
		// A rejection without a real remote status code was produced on
		// this side, before transmission.
		code := rejection.StatusCode
		if code < 100 || code > 599 {
			code = http.StatusInternalServerError
		}
		h.respondText(w, r, code, "Bank transfer request failed", endpoint)
		return
	}
	switch {
	case errors.Is(err, domain.ErrWalletNotFound):
		h.respondText(w, r, http.StatusNotFound, "Wallet not found", endpoint)
	case errors.Is(err, domain.ErrCurrencyMismatch):
		h.respondText(w, r, http.StatusBadRequest, "Currency did not match", endpoint)
	case errors.Is(err, domain.ErrInsufficientFunds):
		h.respondText(w, r, http.StatusUnprocessableEntity, "Insufficient funds", endpoint)
	case errors.Is(err, domain.ErrBankUnavailable):
		h.respondText(w, r, http.StatusBadGateway, "Bank service unavailable. Try again later.", endpoint)
	default:
		log.Printf("transfer-to-bank failed: %v", err)
		h.respondText(w, r, http.StatusInternalServerError, "Internal error", endpoint)
	}
}

// TransferCallback handles POST /api/wallet/transfer-callback, the signed
// webhook the bank delivers after settlement.
func (h *Handler) TransferCallback(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/wallet/transfer-callback"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	var cb domain.CallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		h.respondText(w, r, http.StatusBadRequest, "Malformed JSON body", endpoint)
		return
	}
	if err := auth.VerifyRequest(h.sharedSecret, r.Header, cb.TransactionID, time.Now().UTC(), h.freshnessWindow); err != nil {
		callbackAuthFailures.Inc()
		if errors.Is(err, auth.ErrInvalidSignature) {
			h.respondText(w, r, http.StatusUnauthorized, "Invalid request signature", endpoint)
			return
		}
		h.respondText(w, r, http.StatusBadRequest, err.Error(), endpoint)
		return
	}

	if err := h.service.ConfirmTransfer(r.Context(), cb); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidTransactionID),
			errors.Is(err, domain.ErrConfirmationAlreadyReceived),
			errors.Is(err, domain.ErrInvalidCallbackStatus):
			h.respondText(w, r, http.StatusBadRequest, err.Error(), endpoint)
		default:
			log.Printf("transfer-callback failed: %v", err)
			h.respondText(w, r, http.StatusInternalServerError, "Internal error", endpoint)
		}
		return
	}
	httpRequestsTotal.WithLabelValues("POST", endpoint, "200").Inc()
	w.WriteHeader(http.StatusOK)
}

// ListUnknownTransactions handles GET /api/wallet/transactions/unknown,
// the operator view of records awaiting reconciliation.
func (h *Handler) ListUnknownTransactions(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/wallet/transactions/unknown"
	txns, err := h.service.ListUnknown(r.Context())
	if err != nil {
		log.Printf("listing unknown transactions failed: %v", err)
		h.respondText(w, r, http.StatusInternalServerError, "Internal error", endpoint)
		return
	}
	if txns == nil {
		txns = []*domain.Transaction{}
	}
	httpRequestsTotal.WithLabelValues("GET", endpoint, "200").Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(txns)
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) respondText(w http.ResponseWriter, r *http.Request, code int, msg, endpoint string) {
	httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	w.Write([]byte(msg))
}
