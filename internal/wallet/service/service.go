// Package service implements the wallet-side transfer saga: debit the
// wallet, call the bank, and reconcile the three possible outcomes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"wallet2bank/internal/outbound"
	"wallet2bank/internal/wallet/domain"
)

// Messages returned to the wallet-facing caller.
const (
	msgProcessing     = "Transfer request accepted. Transaction is in processing."
	msgProcessedLater = "No transaction acknowledgement received. Transfer will be processed later."
)

// Service is the wallet saga orchestrator.
type Service struct {
	wallets      domain.WalletRepository
	transactions domain.TransactionStore
	bank         domain.BankGateway
	txm          domain.TransactionManager
}

// New wires the orchestrator.
func New(wallets domain.WalletRepository, transactions domain.TransactionStore, bank domain.BankGateway, txm domain.TransactionManager) *Service {
	return &Service{wallets: wallets, transactions: transactions, bank: bank, txm: txm}
}

// InitiateTransfer runs the saga for one transfer-to-bank request and
// returns the caller-facing acknowledgement message.
//
// The debit commits before the remote outcome is known; there is no lock
// across the network call. Correctness rests on the three-way outcome
// collapse: Accepted parks the record in PENDING awaiting the webhook,
// Rejected compensates synchronously, Unknown keeps the debit and the
// record until reconciliation because the bank may have completed the
// transfer.
func (s *Service) InitiateTransfer(ctx context.Context, req domain.TransferRequest) (string, error) {
	existing, err := s.transactions.Get(ctx, req.TransactionID)
	if err != nil {
		return "", fmt.Errorf("dedup lookup failed: %w", err)
	}
	if existing != nil {
		return "", domain.NewDuplicateTransaction(existing.Status)
	}

	wallet, err := s.wallets.GetByWalletID(ctx, req.WalletID)
	if err != nil {
		return "", err
	}
	if wallet.Currency != req.Currency {
		return "", domain.ErrCurrencyMismatch
	}

	// Fail fast while nothing has been debited. Advisory only: the probe
	// passing does not excuse Unknown handling below.
	if !s.bank.CheckHealth(ctx) {
		return "", domain.ErrBankUnavailable
	}

	txn := domain.NewTransaction(req)

	if err := s.debit(ctx, req.WalletID, req); err != nil {
		return "", err
	}

	res := s.bank.SendTransfer(ctx, txn)
	switch res.Outcome {
	case outbound.Accepted:
		txn.Status = domain.StatusPending
		txn.UpdatedAt = time.Now().UTC()
		if err := s.transactions.Create(ctx, txn); err != nil {
			if errors.Is(err, domain.ErrTransactionExists) {
				return s.loseInsertRace(ctx, req)
			}
			// The debit is committed and the bank accepted; losing the
			// record here would orphan the transfer. Surface loudly.
			return "", fmt.Errorf("transfer accepted but record persist failed for %s: %w", txn.TransactionID, err)
		}
		return msgProcessing, nil

	case outbound.Rejected:
		// Compensate before answering: credit the debit back and leave
		// no durable trace, since nothing was accepted downstream.
		if err := s.credit(ctx, req.WalletID, req); err != nil {
			return "", fmt.Errorf("compensation failed for %s: %w", txn.TransactionID, err)
		}
		if err := s.transactions.Remove(ctx, txn); err != nil {
			log.Printf("failed to discard rejected transaction %s: %v", txn.TransactionID, err)
		}
		return "", &domain.BankRejectionError{StatusCode: res.StatusCode, Body: string(res.Body)}

	default: // outbound.Unknown
		// Do NOT compensate: the bank may have completed the transfer
		// before the last response was lost.
		log.Printf("transfer %s outcome unknown after retries: %v", txn.TransactionID, res.Err)
		txn.Status = domain.StatusUnknown
		txn.UpdatedAt = time.Now().UTC()
		if err := s.transactions.Create(ctx, txn); err != nil {
			if errors.Is(err, domain.ErrTransactionExists) {
				return s.loseInsertRace(ctx, req)
			}
			return "", fmt.Errorf("failed to park unknown transaction %s: %w", txn.TransactionID, err)
		}
		return msgProcessedLater, nil
	}
}

// loseInsertRace finishes the losing side of two concurrent initiations
// for the same transactionId. Both passed the dedup lookup and both
// debited, but the bank settles one transfer per transactionId, so the
// loser's debit is an extra and is credited back before answering the way
// the dedup path would have.
func (s *Service) loseInsertRace(ctx context.Context, req domain.TransferRequest) (string, error) {
	if err := s.credit(ctx, req.WalletID, req); err != nil {
		return "", fmt.Errorf("compensation failed for %s: %w", req.TransactionID, err)
	}
	status := domain.StatusPending
	if existing, err := s.transactions.Get(ctx, req.TransactionID); err == nil && existing != nil {
		status = existing.Status
	}
	return "", domain.NewDuplicateTransaction(status)
}

func (s *Service) debit(ctx context.Context, walletID string, req domain.TransferRequest) error {
	return s.txm.WithTransaction(ctx, func(ctx context.Context) error {
		wallet, err := s.wallets.Lock(ctx, walletID)
		if err != nil {
			return err
		}
		if err := wallet.Debit(req.Amount); err != nil {
			return err
		}
		return s.wallets.Update(ctx, wallet)
	})
}

func (s *Service) credit(ctx context.Context, walletID string, req domain.TransferRequest) error {
	return s.txm.WithTransaction(ctx, func(ctx context.Context) error {
		wallet, err := s.wallets.Lock(ctx, walletID)
		if err != nil {
			return err
		}
		wallet.Credit(req.Amount)
		return s.wallets.Update(ctx, wallet)
	})
}

// ConfirmTransfer applies a webhook callback. Signature and freshness are
// verified at the HTTP boundary before this runs. A record already in a
// terminal status rejects the delivery, which makes duplicate callbacks
// harmless.
func (s *Service) ConfirmTransfer(ctx context.Context, cb domain.CallbackRequest) error {
	txn, err := s.transactions.Get(ctx, cb.TransactionID)
	if err != nil {
		return fmt.Errorf("callback lookup failed: %w", err)
	}
	if txn == nil {
		return domain.ErrInvalidTransactionID
	}
	if txn.Status.IsTerminal() {
		return domain.ErrConfirmationAlreadyReceived
	}
	return s.resolve(ctx, txn, domain.Status(strings.ToUpper(strings.TrimSpace(cb.Status))), cb.Message)
}

// resolve moves a non-terminal record to its reported terminal status,
// crediting the wallet back when the bank reports FAILED.
func (s *Service) resolve(ctx context.Context, txn *domain.Transaction, reported domain.Status, message string) error {
	switch reported {
	case domain.StatusSuccess:
		txn.Status = domain.StatusSuccess
	case domain.StatusFailed:
		err := s.txm.WithTransaction(ctx, func(ctx context.Context) error {
			wallet, err := s.wallets.Lock(ctx, txn.WalletID)
			if err != nil {
				return err
			}
			wallet.Credit(txn.Amount)
			return s.wallets.Update(ctx, wallet)
		})
		if err != nil {
			return fmt.Errorf("compensation failed for %s: %w", txn.TransactionID, err)
		}
		txn.Status = domain.StatusFailed
	default:
		return domain.ErrInvalidCallbackStatus
	}
	if message != "" {
		txn.Message = message
	}
	txn.UpdatedAt = time.Now().UTC()
	return s.transactions.Put(ctx, txn)
}

// ListUnknown enumerates records parked in UNKNOWN, from the durable
// store, for operators and the reconciliation loop.
func (s *Service) ListUnknown(ctx context.Context) ([]*domain.Transaction, error) {
	return s.transactions.ListByStatus(ctx, domain.StatusUnknown)
}

// ReconcileUnknown polls the bank status endpoint for every UNKNOWN record
// and resolves those the bank reports terminal, exactly as the webhook
// path would. Returns how many records were resolved.
func (s *Service) ReconcileUnknown(ctx context.Context) (int, error) {
	txns, err := s.ListUnknown(ctx)
	if err != nil {
		return 0, err
	}
	resolved := 0
	for _, txn := range txns {
		status, err := s.bank.FetchStatus(ctx, txn.TransactionID, txn.IdempotencyKey.String())
		if err != nil {
			log.Printf("reconciliation: status poll failed for %s: %v", txn.TransactionID, err)
			continue
		}
		if !status.IsTerminal() {
			continue
		}
		if err := s.resolve(ctx, txn, status, "resolved by reconciliation"); err != nil {
			log.Printf("reconciliation: resolve failed for %s: %v", txn.TransactionID, err)
			continue
		}
		resolved++
	}
	return resolved, nil
}
