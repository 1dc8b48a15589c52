package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"wallet2bank/internal/auth"
	"wallet2bank/internal/outbound"
	"wallet2bank/internal/wallet/domain"
	"wallet2bank/internal/wallet/httpapi"
	"wallet2bank/internal/wallet/service"
)

const secret = "test-shared-secret"

type memWallets struct{ wallets map[string]*domain.Wallet }

func (m *memWallets) GetByWalletID(ctx context.Context, walletID string) (*domain.Wallet, error) {
	w, ok := m.wallets[walletID]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	return w, nil
}

func (m *memWallets) Lock(ctx context.Context, walletID string) (*domain.Wallet, error) {
	return m.GetByWalletID(ctx, walletID)
}

func (m *memWallets) Update(ctx context.Context, wallet *domain.Wallet) error {
	m.wallets[wallet.WalletID] = wallet
	return nil
}

type memStore struct {
	records map[string]*domain.Transaction
}

func (m *memStore) Get(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	return m.records[transactionID], nil
}

func (m *memStore) Create(ctx context.Context, txn *domain.Transaction) error {
	if _, ok := m.records[txn.TransactionID]; ok {
		return domain.ErrTransactionExists
	}
	m.records[txn.TransactionID] = txn
	return nil
}

func (m *memStore) Put(ctx context.Context, txn *domain.Transaction) error {
	m.records[txn.TransactionID] = txn
	return nil
}

func (m *memStore) Remove(ctx context.Context, txn *domain.Transaction) error {
	delete(m.records, txn.TransactionID)
	return nil
}

func (m *memStore) ListByStatus(ctx context.Context, status domain.Status) ([]*domain.Transaction, error) {
	var out []*domain.Transaction
	for _, txn := range m.records {
		if txn.Status == status {
			out = append(out, txn)
		}
	}
	return out, nil
}

type acceptingBank struct{}

func (acceptingBank) CheckHealth(ctx context.Context) bool { return true }

func (acceptingBank) SendTransfer(ctx context.Context, txn *domain.Transaction) outbound.Result {
	return outbound.Result{Outcome: outbound.Accepted, StatusCode: http.StatusAccepted}
}

func (acceptingBank) FetchStatus(ctx context.Context, transactionID, idempotencyKey string) (domain.Status, error) {
	return "", domain.ErrBankUnavailable
}

type noopTxm struct{}

func (noopTxm) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newServer(t *testing.T) (*httptest.Server, *memWallets, *memStore) {
	t.Helper()
	wallets := &memWallets{wallets: map[string]*domain.Wallet{
		"wallet-1": {ID: 1, WalletID: "wallet-1", Balance: decimal.RequireFromString("100"), Currency: "USD"},
	}}
	store := &memStore{records: map[string]*domain.Transaction{}}
	svc := service.New(wallets, store, acceptingBank{}, noopTxm{})
	srv := httptest.NewServer(httpapi.NewRouter(httpapi.NewHandler(svc, secret, auth.DefaultFreshnessWindow)))
	t.Cleanup(srv.Close)
	return srv, wallets, store
}

func TestTransferToBankEndpoint(t *testing.T) {
	srv, wallets, store := newServer(t)

	body := `{"transactionId":"txn-1","walletId":"wallet-1","toBankAccount":"acct-9","amount":40,"currency":"USD"}`
	resp, err := http.Post(srv.URL+"/api/wallet/transfer-to-bank", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, body = %s", resp.StatusCode, msg)
	}
	if got := wallets.wallets["wallet-1"].Balance.String(); got != "60" {
		t.Errorf("balance = %s, want 60", got)
	}
	if store.records["txn-1"] == nil || store.records["txn-1"].Status != domain.StatusPending {
		t.Errorf("record = %+v", store.records["txn-1"])
	}
}

func TestTransferToBankValidation(t *testing.T) {
	srv, _, _ := newServer(t)

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"malformed json", `{"transactionId":`, http.StatusBadRequest},
		{"missing fields", `{"transactionId":"txn-2"}`, http.StatusBadRequest},
		{"non-positive amount", `{"transactionId":"txn-2","walletId":"wallet-1","toBankAccount":"acct-9","amount":0,"currency":"USD"}`, http.StatusBadRequest},
		{"unknown wallet", `{"transactionId":"txn-2","walletId":"wallet-9","toBankAccount":"acct-9","amount":40,"currency":"USD"}`, http.StatusNotFound},
		{"insufficient funds", `{"transactionId":"txn-2","walletId":"wallet-1","toBankAccount":"acct-9","amount":400,"currency":"USD"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/wallet/transfer-to-bank", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.wantCode {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantCode)
			}
		})
	}
}

func signedCallback(t *testing.T, url string, cb domain.CallbackRequest, mutate func(*http.Request)) *http.Response {
	t.Helper()
	body, _ := json.Marshal(cb)
	req, err := http.NewRequest(http.MethodPost, url+"/api/wallet/transfer-callback", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	key := uuid.NewString()
	ts := time.Now().UTC().Format(time.RFC3339)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.HeaderIdempotencyKey, key)
	req.Header.Set(auth.HeaderTimestamp, ts)
	req.Header.Set(auth.HeaderSignature, auth.Sign(secret, key, ts, cb.TransactionID))
	if mutate != nil {
		mutate(req)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestTransferCallbackResolvesPending(t *testing.T) {
	srv, _, store := newServer(t)
	store.records["txn-5"] = &domain.Transaction{
		TransactionID: "txn-5", WalletID: "wallet-1",
		Amount: decimal.RequireFromString("40"), Status: domain.StatusPending,
	}

	resp := signedCallback(t, srv.URL, domain.CallbackRequest{
		TransactionID: "txn-5", Status: "SUCCESS", Message: "Transfer successful",
	}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if store.records["txn-5"].Status != domain.StatusSuccess {
		t.Errorf("status = %s, want SUCCESS", store.records["txn-5"].Status)
	}
}

func TestTransferCallbackAuthRejections(t *testing.T) {
	srv, _, store := newServer(t)
	store.records["txn-6"] = &domain.Transaction{
		TransactionID: "txn-6", WalletID: "wallet-1",
		Amount: decimal.RequireFromString("40"), Status: domain.StatusPending,
	}
	cb := domain.CallbackRequest{TransactionID: "txn-6", Status: "SUCCESS"}

	tests := []struct {
		name     string
		mutate   func(*http.Request)
		wantCode int
	}{
		{
			name:     "tampered signature",
			mutate:   func(r *http.Request) { r.Header.Set(auth.HeaderSignature, "deadbeef") },
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "missing timestamp",
			mutate:   func(r *http.Request) { r.Header.Del(auth.HeaderTimestamp) },
			wantCode: http.StatusBadRequest,
		},
		{
			name: "expired timestamp",
			mutate: func(r *http.Request) {
				ts := time.Now().UTC().Add(-10 * time.Minute).Format(time.RFC3339)
				key := r.Header.Get(auth.HeaderIdempotencyKey)
				r.Header.Set(auth.HeaderTimestamp, ts)
				r.Header.Set(auth.HeaderSignature, auth.Sign(secret, key, ts, cb.TransactionID))
			},
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := signedCallback(t, srv.URL, cb, tt.mutate)
			resp.Body.Close()
			if resp.StatusCode != tt.wantCode {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantCode)
			}
			if store.records["txn-6"].Status != domain.StatusPending {
				t.Error("rejected callback must not change the record")
			}
		})
	}
}

func TestListUnknownTransactions(t *testing.T) {
	srv, _, store := newServer(t)
	store.records["txn-7"] = &domain.Transaction{
		TransactionID: "txn-7", WalletID: "wallet-1",
		Amount: decimal.RequireFromString("40"), Status: domain.StatusUnknown,
	}

	resp, err := http.Get(srv.URL + "/api/wallet/transactions/unknown")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var txns []domain.Transaction
	if err := json.NewDecoder(resp.Body).Decode(&txns); err != nil {
		t.Fatal(err)
	}
	if len(txns) != 1 || txns[0].TransactionID != "txn-7" {
		t.Errorf("txns = %+v", txns)
	}
}
