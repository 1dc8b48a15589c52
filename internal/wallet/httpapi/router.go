package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the wallet service routes.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/wallet/transfer-to-bank", h.TransferToBank).Methods(http.MethodPost)
	r.HandleFunc("/api/wallet/transfer-callback", h.TransferCallback).Methods(http.MethodPost)
	r.HandleFunc("/api/wallet/transactions/unknown", h.ListUnknownTransactions).Methods(http.MethodGet)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}
