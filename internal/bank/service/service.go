// Package service implements the bank settlement pipeline: signed ingress
// with idempotent replay, queue-driven settlement and the webhook
// callback that closes the loop with the wallet side.
package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"wallet2bank/internal/bank/domain"
	"wallet2bank/internal/outbound"
)

var (
	settlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bank_settlements_total",
		Help: "Settlement outcomes by result",
	}, []string{"result"})

	callbackFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bank_callback_delivery_failures_total",
		Help: "Webhook callbacks whose delivery outcome stayed unknown after retries",
	})
)

// DefaultMaxSettleRetries bounds how many times a faulting settlement is
// requeued before its delivery parks in the dead-letter queue.
const DefaultMaxSettleRetries = 3

// Service coordinates the bank-side transfer pipeline.
type Service struct {
	accounts     domain.AccountRepository
	transactions domain.TransactionRepository
	queue        domain.SettlementQueue
	wallet       domain.WalletGateway
	txm          domain.TransactionManager
	maxRetries   int
}

// New wires the pipeline. maxRetries <= 0 falls back to the default.
func New(accounts domain.AccountRepository, transactions domain.TransactionRepository, queue domain.SettlementQueue, wallet domain.WalletGateway, txm domain.TransactionManager, maxRetries int) *Service {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxSettleRetries
	}
	return &Service{accounts: accounts, transactions: transactions, queue: queue, wallet: wallet, txm: txm, maxRetries: maxRetries}
}

// AcceptTransfer is the signed ingress. Replays with the first-seen
// idempotency key return the current status without new work; a repeat
// transactionId under a different key is rejected outright.
func (s *Service) AcceptTransfer(ctx context.Context, idempotencyKey string, req domain.TransferRequest) (domain.Acknowledgement, error) {
	key, err := uuid.Parse(idempotencyKey)
	if err != nil {
		return domain.Acknowledgement{}, domain.ErrIdempotencyKeyMismatch
	}

	existing, err := s.transactions.GetByTransactionID(ctx, req.TransactionID)
	if err != nil {
		return domain.Acknowledgement{}, fmt.Errorf("ingress lookup failed: %w", err)
	}
	if existing != nil {
		if existing.IdempotencyKey != key {
			return domain.Acknowledgement{}, domain.ErrIdempotencyKeyMismatch
		}
		// Idempotent replay: nothing new is enqueued.
		return domain.Acknowledgement{TransactionID: existing.TransactionID, Status: string(existing.Status)}, nil
	}

	txn := domain.NewTransaction(req, key)
	if err := s.transactions.Create(ctx, txn); err != nil {
		return domain.Acknowledgement{}, err
	}
	if err := s.queue.Publish(ctx, txn.TransactionID); err != nil {
		return domain.Acknowledgement{}, fmt.Errorf("failed to enqueue settlement for %s: %w", txn.TransactionID, err)
	}
	return domain.Acknowledgement{TransactionID: txn.TransactionID, Status: string(txn.Status)}, nil
}

// Settle processes one delivered transactionId. A nil first return means
// the delivery should be acknowledged and dropped; a non-nil transaction
// means settlement reached a terminal state and the wallet side must be
// notified. An error means a transient processing fault: the record has
// been reverted to PENDING and the delivery must be redelivered.
func (s *Service) Settle(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	txn, err := s.transactions.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("settlement lookup failed: %w", err)
	}
	if txn == nil || txn.Status != domain.StatusPending {
		// Duplicate delivery of an already-settled or unknown id:
		// acknowledge and drop, never credit twice.
		settlementsTotal.WithLabelValues("dropped").Inc()
		return nil, nil
	}

	txn.Status = domain.StatusProcessing
	txn.UpdatedAt = time.Now().UTC()
	if err := s.transactions.Update(ctx, txn); err != nil {
		return nil, fmt.Errorf("failed to mark %s processing: %w", transactionID, err)
	}

	settled, err := s.evaluate(ctx, txn)
	if err != nil {
		// Unexpected fault: revert to PENDING so queue redelivery gets
		// another run at it. The business outcome was not persisted.
		s.revert(ctx, txn)
		settlementsTotal.WithLabelValues("fault").Inc()
		if txn.RetryCount >= s.maxRetries {
			return nil, fmt.Errorf("%w for %s: %v", domain.ErrRetriesExhausted, transactionID, err)
		}
		return nil, err
	}
	settlementsTotal.WithLabelValues(string(settled.Status)).Inc()
	return settled, nil
}

// evaluate applies the settlement business rules inside one transaction.
// Success and failure are both business outcomes that persist and ack;
// only infrastructure errors propagate.
func (s *Service) evaluate(ctx context.Context, txn *domain.Transaction) (*domain.Transaction, error) {
	err := s.txm.WithTransaction(ctx, func(ctx context.Context) error {
		account, err := s.accounts.GetByAccountNumber(ctx, txn.BankAccount)
		if err != nil {
			return err
		}
		txn.UpdatedAt = time.Now().UTC()
		switch {
		case account == nil:
			txn.Status = domain.StatusFailed
			txn.Message = "Invalid bank account"
		case account.Currency != txn.Currency:
			txn.Status = domain.StatusFailed
			txn.Message = "Invalid currency"
		default:
			account.Credit(txn.Amount)
			if err := s.accounts.Update(ctx, account); err != nil {
				return err
			}
			txn.Status = domain.StatusSuccess
			txn.Message = "Transfer successful"
		}
		return s.transactions.Update(ctx, txn)
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// RequeueStale recovers records stuck in PROCESSING. Settle reverts a
// faulting record to PENDING before the delivery goes back to the queue;
// when that revert itself fails, every redelivery finds the record
// PROCESSING and drops it, so nothing would ever touch it again. Records
// untouched for longer than olderThan go back to PENDING and their ids are
// republished. Returns how many records were requeued.
func (s *Service) RequeueStale(ctx context.Context, olderThan time.Duration) (int, error) {
	txns, err := s.transactions.ListByStatus(ctx, domain.StatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("stale sweep lookup failed: %w", err)
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	requeued := 0
	for _, txn := range txns {
		if txn.UpdatedAt.After(cutoff) {
			// Likely still being settled right now.
			continue
		}
		txn.Status = domain.StatusPending
		txn.RetryCount++
		txn.UpdatedAt = time.Now().UTC()
		if err := s.transactions.Update(ctx, txn); err != nil {
			log.Printf("stale sweep: failed to revert %s: %v", txn.TransactionID, err)
			continue
		}
		if err := s.queue.Publish(ctx, txn.TransactionID); err != nil {
			log.Printf("stale sweep: failed to requeue %s: %v", txn.TransactionID, err)
			continue
		}
		settlementsTotal.WithLabelValues("requeued").Inc()
		log.Printf("stale sweep: requeued %s after %d attempts", txn.TransactionID, txn.RetryCount)
		requeued++
	}
	return requeued, nil
}

func (s *Service) revert(ctx context.Context, txn *domain.Transaction) {
	txn.Status = domain.StatusPending
	txn.RetryCount++
	txn.UpdatedAt = time.Now().UTC()
	if err := s.transactions.Update(ctx, txn); err != nil {
		log.Printf("failed to revert %s to PENDING: %v", txn.TransactionID, err)
	}
}

// NotifyWallet delivers the signed callback for a terminal record. When
// delivery outcome stays unknown after retries there is nothing left to
// compensate on this side; the wallet's reconciliation path is the
// recovery mechanism, so this only alerts.
func (s *Service) NotifyWallet(ctx context.Context, txn *domain.Transaction) {
	if !txn.Status.IsTerminal() {
		return
	}
	res := s.wallet.SendCallback(ctx, txn)
	switch res.Outcome {
	case outbound.Accepted:
		log.Printf("callback delivered for %s (%s)", txn.TransactionID, txn.Status)
	case outbound.Rejected:
		// The wallet side answered: most likely a duplicate delivery it
		// already confirmed. Terminal either way.
		log.Printf("callback rejected for %s (%d): %s", txn.TransactionID, res.StatusCode, res.Body)
	default:
		callbackFailures.Inc()
		log.Printf("ALERT: callback delivery unknown for %s after retries: %v", txn.TransactionID, res.Err)
	}
}

// GetTransferStatus is the signed status query used by wallet-side
// reconciliation.
func (s *Service) GetTransferStatus(ctx context.Context, transactionID, idempotencyKey string) (domain.Acknowledgement, error) {
	key, err := uuid.Parse(idempotencyKey)
	if err != nil {
		return domain.Acknowledgement{}, domain.ErrNotFound
	}
	txn, err := s.transactions.GetByTransactionIDAndKey(ctx, transactionID, key)
	if err != nil {
		return domain.Acknowledgement{}, err
	}
	return domain.Acknowledgement{TransactionID: txn.TransactionID, Status: string(txn.Status)}, nil
}
