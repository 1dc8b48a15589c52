package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"wallet2bank/internal/wallet/domain"
)

func TestRequestCounterUsesRequestMethod(t *testing.T) {
	const endpoint = "/api/wallet/transactions/unknown"
	h := &Handler{}
	req := httptest.NewRequest(http.MethodGet, endpoint, nil)

	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, endpoint, "200")
	before := testutil.ToFloat64(counter)
	h.respondText(httptest.NewRecorder(), req, http.StatusOK, "ok", endpoint)
	if got := testutil.ToFloat64(counter); got != before+1 {
		t.Errorf("GET counter = %v, want %v", got, before+1)
	}
}

func TestRejectionWithoutRemoteStatusMapsToInternalError(t *testing.T) {
	h := &Handler{}
	req := httptest.NewRequest(http.MethodPost, "/api/wallet/transfer-to-bank", nil)
	rec := httptest.NewRecorder()

	h.respondTransferError(rec, req, &domain.BankRejectionError{StatusCode: 0, Body: "failed to encode request body"})
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
