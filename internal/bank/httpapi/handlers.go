// Package httpapi exposes the bank service HTTP surface: the signed
// transfer ingress, the status query and the health endpoint.
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
	"wallet2bank/internal/bank/domain"
	"wallet2bank/internal/bank/service"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bank_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bank_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	}, []string{"method", "endpoint"})

	ingressAuthFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bank_ingress_auth_failures_total",
		Help: "Transfer requests rejected for signature or freshness",
	})
)

// Handler holds the settlement service and the request verification
// inputs.
type Handler struct {
	service         *service.Service
	sharedSecret    string
	freshnessWindow time.Duration
}

// NewHandler creates the bank HTTP handler.
func NewHandler(svc *service.Service, sharedSecret string, freshnessWindow time.Duration) *Handler {
	return &Handler{service: svc, sharedSecret: sharedSecret, freshnessWindow: freshnessWindow}
}

// AcceptTransfer handles POST /api/bank/transfer, the signed ingress
// from the wallet side. Accepted requests return 202 with the current
// status; settlement itself is asynchronous.
func (h *Handler) AcceptTransfer(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/bank/transfer"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	var req domain.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondText(w, r, http.StatusBadRequest, "Malformed JSON body", endpoint)
		return
	}
	if req.TransactionID == "" || req.FromWalletID == "" || req.ToBankAccount == "" || req.Currency == "" {
		h.respondText(w, r, http.StatusBadRequest, "Missing required fields", endpoint)
		return
	}
	if !req.Amount.IsPositive() {
		h.respondText(w, r, http.StatusBadRequest, "Amount must be positive", endpoint)
		return
	}
	if err := auth.VerifyRequest(h.sharedSecret, r.Header, req.TransactionID, time.Now().UTC(), h.freshnessWindow); err != nil {
		ingressAuthFailures.Inc()
		if errors.Is(err, auth.ErrInvalidSignature) {
			h.respondText(w, r, http.StatusUnauthorized, "Invalid request signature", endpoint)
			return
		}
		h.respondText(w, r, http.StatusBadRequest, err.Error(), endpoint)
		return
	}

	ack, err := h.service.AcceptTransfer(r.Context(), r.Header.Get(auth.HeaderIdempotencyKey), req)
	if err != nil {
		if errors.Is(err, domain.ErrIdempotencyKeyMismatch) {
			h.respondText(w, r, http.StatusBadRequest, err.Error(), endpoint)
			return
		}
		log.Printf("transfer ingress failed: %v", err)
		h.respondText(w, r, http.StatusInternalServerError, "Internal error", endpoint)
		return
	}
	h.respondJSON(w, r, http.StatusAccepted, ack, endpoint)
}

// TransferStatus handles GET /api/bank/transfer/status, the signed
// status query used by wallet-side reconciliation.
func (h *Handler) TransferStatus(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/bank/transfer/status"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("GET", endpoint))
	defer timer.ObserveDuration()

	transactionID := r.URL.Query().Get("transactionId")
	if transactionID == "" {
		h.respondText(w, r, http.StatusBadRequest, "transactionId query parameter is required", endpoint)
		return
	}
	if err := auth.VerifyRequest(h.sharedSecret, r.Header, transactionID, time.Now().UTC(), h.freshnessWindow); err != nil {
		ingressAuthFailures.Inc()
		if errors.Is(err, auth.ErrInvalidSignature) {
			h.respondText(w, r, http.StatusUnauthorized, "Invalid request signature", endpoint)
			return
		}
		h.respondText(w, r, http.StatusBadRequest, err.Error(), endpoint)
		return
	}

	ack, err := h.service.GetTransferStatus(r.Context(), transactionID, r.Header.Get(auth.HeaderIdempotencyKey))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.respondText(w, r, http.StatusNotFound, "Transaction not found", endpoint)
			return
		}
		log.Printf("status query failed: %v", err)
		h.respondText(w, r, http.StatusInternalServerError, "Internal error", endpoint)
		return
	}
	h.respondJSON(w, r, http.StatusOK, ack, endpoint)
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) respondJSON(w http.ResponseWriter, r *http.Request, code int, body any, endpoint string) {
	httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func (h *Handler) respondText(w http.ResponseWriter, r *http.Request, code int, msg, endpoint string) {
	httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	w.Write([]byte(msg))
}
