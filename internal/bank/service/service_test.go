package service_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"wallet2bank/internal/bank/domain"
	"wallet2bank/internal/bank/service"
	"wallet2bank/internal/outbound"
)

// In-memory fakes for the settlement pipeline: an account table, a
// transaction table, a capture-only queue and a wallet gateway.

type fakeAccounts struct {
	accounts map[string]*domain.BankAccount
	getErr   error
}

func (f *fakeAccounts) GetByAccountNumber(ctx context.Context, accountNumber string) (*domain.BankAccount, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	a, ok := f.accounts[accountNumber]
	if !ok {
		return nil, nil
	}
	copy := *a
	return &copy, nil
}

func (f *fakeAccounts) Update(ctx context.Context, account *domain.BankAccount) error {
	copy := *account
	f.accounts[account.AccountNumber] = &copy
	return nil
}

type fakeTxns struct {
	records map[string]*domain.Transaction
}

func (f *fakeTxns) Create(ctx context.Context, txn *domain.Transaction) error {
	if _, ok := f.records[txn.TransactionID]; ok {
		return errors.New("duplicate transaction_id")
	}
	copy := *txn
	f.records[txn.TransactionID] = &copy
	return nil
}

func (f *fakeTxns) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	txn, ok := f.records[transactionID]
	if !ok {
		return nil, nil
	}
	copy := *txn
	return &copy, nil
}

func (f *fakeTxns) GetByTransactionIDAndKey(ctx context.Context, transactionID string, key uuid.UUID) (*domain.Transaction, error) {
	txn, ok := f.records[transactionID]
	if !ok || txn.IdempotencyKey != key {
		return nil, domain.ErrNotFound
	}
	copy := *txn
	return &copy, nil
}

func (f *fakeTxns) Update(ctx context.Context, txn *domain.Transaction) error {
	copy := *txn
	f.records[txn.TransactionID] = &copy
	return nil
}

func (f *fakeTxns) ListByStatus(ctx context.Context, status domain.Status) ([]*domain.Transaction, error) {
	var out []*domain.Transaction
	for _, txn := range f.records {
		if txn.Status == status {
			copy := *txn
			out = append(out, &copy)
		}
	}
	return out, nil
}

type fakeQueue struct {
	published []string
}

func (f *fakeQueue) Publish(ctx context.Context, transactionID string) error {
	f.published = append(f.published, transactionID)
	return nil
}

type fakeWallet struct {
	result    outbound.Result
	callbacks int
}

func (f *fakeWallet) SendCallback(ctx context.Context, txn *domain.Transaction) outbound.Result {
	f.callbacks++
	return f.result
}

type fakeTxm struct{}

func (fakeTxm) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func fixture() (*service.Service, *fakeAccounts, *fakeTxns, *fakeQueue, *fakeWallet) {
	accounts := &fakeAccounts{accounts: map[string]*domain.BankAccount{
		"acct-9": {ID: 1, AccountNumber: "acct-9", Balance: decimal.RequireFromString("10"), Currency: "USD"},
	}}
	txns := &fakeTxns{records: map[string]*domain.Transaction{}}
	queue := &fakeQueue{}
	wallet := &fakeWallet{result: outbound.Result{Outcome: outbound.Accepted, StatusCode: http.StatusOK}}
	svc := service.New(accounts, txns, queue, wallet, fakeTxm{}, 3)
	return svc, accounts, txns, queue, wallet
}

func usdRequest(txID string) domain.TransferRequest {
	return domain.TransferRequest{
		TransactionID: txID,
		FromWalletID:  "wallet-1",
		ToBankAccount: "acct-9",
		Amount:        decimal.RequireFromString("40"),
		Currency:      "USD",
	}
}

func TestAcceptTransferEnqueues(t *testing.T) {
	svc, _, txns, queue, _ := fixture()

	ack, err := svc.AcceptTransfer(context.Background(), uuid.NewString(), usdRequest("txn-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ack.Status != "PENDING" {
		t.Errorf("status = %s, want PENDING", ack.Status)
	}
	if txns.records["txn-1"] == nil {
		t.Fatal("expected a persisted record")
	}
	if len(queue.published) != 1 || queue.published[0] != "txn-1" {
		t.Errorf("published = %v, want [txn-1]", queue.published)
	}
}

func TestAcceptTransferIdempotentReplay(t *testing.T) {
	svc, _, txns, queue, _ := fixture()
	key := uuid.NewString()

	if _, err := svc.AcceptTransfer(context.Background(), key, usdRequest("txn-2")); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	// Simulate settlement landing between the two deliveries.
	txns.records["txn-2"].Status = domain.StatusSuccess

	ack, err := svc.AcceptTransfer(context.Background(), key, usdRequest("txn-2"))
	if err != nil {
		t.Fatalf("replay must not error: %v", err)
	}
	if ack.Status != "SUCCESS" {
		t.Errorf("replay status = %s, want the current SUCCESS", ack.Status)
	}
	if len(queue.published) != 1 {
		t.Errorf("replay must not enqueue again, published = %v", queue.published)
	}
}

func TestAcceptTransferKeyMismatch(t *testing.T) {
	svc, _, _, _, _ := fixture()

	if _, err := svc.AcceptTransfer(context.Background(), uuid.NewString(), usdRequest("txn-3")); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	_, err := svc.AcceptTransfer(context.Background(), uuid.NewString(), usdRequest("txn-3"))
	if !errors.Is(err, domain.ErrIdempotencyKeyMismatch) {
		t.Fatalf("expected ErrIdempotencyKeyMismatch, got %v", err)
	}

	_, err = svc.AcceptTransfer(context.Background(), "not-a-uuid", usdRequest("txn-4"))
	if !errors.Is(err, domain.ErrIdempotencyKeyMismatch) {
		t.Fatalf("expected ErrIdempotencyKeyMismatch for malformed key, got %v", err)
	}
}

func TestSettleSuccessCreditsAccount(t *testing.T) {
	svc, accounts, txns, _, _ := fixture()
	txns.records["txn-5"] = domain.NewTransaction(usdRequest("txn-5"), uuid.New())

	settled, err := svc.Settle(context.Background(), "txn-5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settled == nil || settled.Status != domain.StatusSuccess {
		t.Fatalf("expected a SUCCESS record, got %+v", settled)
	}
	if got := accounts.accounts["acct-9"].Balance.String(); got != "50" {
		t.Errorf("balance = %s, want 50", got)
	}
	if txns.records["txn-5"].Status != domain.StatusSuccess {
		t.Errorf("persisted status = %s, want SUCCESS", txns.records["txn-5"].Status)
	}
}

func TestSettleInvalidAccountFails(t *testing.T) {
	svc, _, txns, _, _ := fixture()
	req := usdRequest("txn-6")
	req.ToBankAccount = "acct-0"
	txns.records["txn-6"] = domain.NewTransaction(req, uuid.New())

	settled, err := svc.Settle(context.Background(), "txn-6")
	if err != nil {
		t.Fatalf("business failure is not a fault: %v", err)
	}
	if settled.Status != domain.StatusFailed {
		t.Errorf("status = %s, want FAILED", settled.Status)
	}
	if settled.Message != "Invalid bank account" {
		t.Errorf("message = %q", settled.Message)
	}
}

func TestSettleCurrencyMismatchFails(t *testing.T) {
	svc, accounts, txns, _, _ := fixture()
	req := usdRequest("txn-7")
	req.Currency = "EUR"
	txns.records["txn-7"] = domain.NewTransaction(req, uuid.New())

	settled, err := svc.Settle(context.Background(), "txn-7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settled.Status != domain.StatusFailed || settled.Message != "Invalid currency" {
		t.Errorf("got %s %q, want FAILED \"Invalid currency\"", settled.Status, settled.Message)
	}
	if got := accounts.accounts["acct-9"].Balance.String(); got != "10" {
		t.Errorf("failed settlement must not credit, balance = %s", got)
	}
}

func TestSettleDuplicateDeliveryDrops(t *testing.T) {
	svc, accounts, txns, _, _ := fixture()
	txn := domain.NewTransaction(usdRequest("txn-8"), uuid.New())
	txn.Status = domain.StatusSuccess
	txns.records["txn-8"] = txn

	settled, err := svc.Settle(context.Background(), "txn-8")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settled != nil {
		t.Fatalf("settled delivery must be dropped, got %+v", settled)
	}
	// The credit must not run twice.
	if got := accounts.accounts["acct-9"].Balance.String(); got != "10" {
		t.Errorf("balance = %s, want 10", got)
	}

	settled, err = svc.Settle(context.Background(), "txn-unknown")
	if err != nil || settled != nil {
		t.Fatalf("unknown id must ack-and-drop, got %+v, %v", settled, err)
	}
}

func TestSettleFaultRevertsToPending(t *testing.T) {
	svc, accounts, txns, _, _ := fixture()
	txns.records["txn-9"] = domain.NewTransaction(usdRequest("txn-9"), uuid.New())
	accounts.getErr = errors.New("connection reset")

	settled, err := svc.Settle(context.Background(), "txn-9")
	if err == nil || settled != nil {
		t.Fatalf("expected a fault, got %+v, %v", settled, err)
	}
	if errors.Is(err, domain.ErrRetriesExhausted) {
		t.Fatalf("first fault must still be retryable: %v", err)
	}
	got := txns.records["txn-9"]
	if got.Status != domain.StatusPending {
		t.Errorf("status = %s, want PENDING for redelivery", got.Status)
	}
	if got.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", got.RetryCount)
	}
}

func TestSettleFaultExhaustsRetries(t *testing.T) {
	svc, accounts, txns, _, _ := fixture()
	txns.records["txn-10"] = domain.NewTransaction(usdRequest("txn-10"), uuid.New())
	accounts.getErr = errors.New("connection reset")

	var err error
	for i := 0; i < 3; i++ {
		_, err = svc.Settle(context.Background(), "txn-10")
	}
	if !errors.Is(err, domain.ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted on the third fault, got %v", err)
	}
}

// A record whose post-fault revert failed stays PROCESSING forever:
// redeliveries see a non-PENDING status and drop. The sweep must put the
// stale record back in play and leave in-flight settlements alone.
func TestRequeueStaleRecoversStuckProcessing(t *testing.T) {
	svc, _, txns, queue, _ := fixture()

	stuck := domain.NewTransaction(usdRequest("txn-11"), uuid.New())
	stuck.Status = domain.StatusProcessing
	stuck.UpdatedAt = time.Now().UTC().Add(-10 * time.Minute)
	txns.records["txn-11"] = stuck

	inflight := domain.NewTransaction(usdRequest("txn-12"), uuid.New())
	inflight.Status = domain.StatusProcessing
	inflight.UpdatedAt = time.Now().UTC()
	txns.records["txn-12"] = inflight

	requeued, err := svc.RequeueStale(context.Background(), 5*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if requeued != 1 {
		t.Fatalf("requeued = %d, want 1", requeued)
	}
	got := txns.records["txn-11"]
	if got.Status != domain.StatusPending {
		t.Errorf("stuck record status = %s, want PENDING", got.Status)
	}
	if got.RetryCount != 1 {
		t.Errorf("stuck record retry count = %d, want 1", got.RetryCount)
	}
	if len(queue.published) != 1 || queue.published[0] != "txn-11" {
		t.Errorf("published = %v, want [txn-11]", queue.published)
	}
	if txns.records["txn-12"].Status != domain.StatusProcessing {
		t.Error("in-flight record must not be touched by the sweep")
	}
}

func TestNotifyWallet(t *testing.T) {
	svc, _, txns, _, wallet := fixture()
	txn := domain.NewTransaction(usdRequest("txn-11"), uuid.New())
	txns.records["txn-11"] = txn

	// Non-terminal records never produce a callback.
	svc.NotifyWallet(context.Background(), txn)
	if wallet.callbacks != 0 {
		t.Fatalf("PENDING must not notify, callbacks = %d", wallet.callbacks)
	}

	txn.Status = domain.StatusSuccess
	svc.NotifyWallet(context.Background(), txn)
	if wallet.callbacks != 1 {
		t.Fatalf("callbacks = %d, want 1", wallet.callbacks)
	}
}

func TestGetTransferStatus(t *testing.T) {
	svc, _, txns, _, _ := fixture()
	key := uuid.New()
	txn := domain.NewTransaction(usdRequest("txn-12"), key)
	txn.Status = domain.StatusSuccess
	txns.records["txn-12"] = txn

	ack, err := svc.GetTransferStatus(context.Background(), "txn-12", key.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ack.Status != "SUCCESS" {
		t.Errorf("status = %s, want SUCCESS", ack.Status)
	}

	_, err = svc.GetTransferStatus(context.Background(), "txn-12", uuid.NewString())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("wrong key must look like absence, got %v", err)
	}
	_, err = svc.GetTransferStatus(context.Background(), "txn-12", "garbage")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("malformed key must look like absence, got %v", err)
	}
}
