// Package domain holds the wallet-side entities and the interfaces the
// saga orchestrator is wired against.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the wallet-side transfer state machine:
// INITIATED → PENDING → {SUCCESS, FAILED}, with INITIATED → UNKNOWN as the
// alternate branch and UNKNOWN → {SUCCESS, FAILED} as its resolution.
// INITIATED is transient and never persisted as its own row.
type Status string

const (
	StatusInitiated Status = "INITIATED"
	StatusPending   Status = "PENDING"
	StatusUnknown   Status = "UNKNOWN"
	StatusSuccess   Status = "SUCCESS"
	StatusFailed    Status = "FAILED"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Wallet is the wallet-side ledger entity. Credit and Debit are its only
// mutators; both apply whole amounts or nothing.
type Wallet struct {
	ID       int64
	WalletID string
	Balance  decimal.Decimal
	Currency string
}

// Debit subtracts amount from the balance. Fails with ErrInsufficientFunds
// when amount exceeds the balance.
func (w *Wallet) Debit(amount decimal.Decimal) error {
	if w.Balance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	w.Balance = w.Balance.Sub(amount)
	return nil
}

// Credit adds amount to the balance.
func (w *Wallet) Credit(amount decimal.Decimal) {
	w.Balance = w.Balance.Add(amount)
}

// Transaction is the wallet-side transfer record, correlated with the bank
// side by (TransactionID, IdempotencyKey). All fields except Status,
// Message and UpdatedAt are immutable once created.
type Transaction struct {
	ID             int64           `json:"id"`
	IdempotencyKey uuid.UUID       `json:"idempotencyKey"`
	TransactionID  string          `json:"transactionId"`
	WalletID       string          `json:"walletId"`
	BankAccount    string          `json:"bankAccount"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Status         Status          `json:"status"`
	Message        string          `json:"message"`
	RetryCount     int             `json:"retryCount"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// NewTransaction builds a transient INITIATED record for a transfer
// request, minting the idempotency key that correlates it with the bank
// side for the rest of its life.
func NewTransaction(req TransferRequest) *Transaction {
	now := time.Now().UTC()
	return &Transaction{
		IdempotencyKey: uuid.New(),
		TransactionID:  req.TransactionID,
		WalletID:       req.WalletID,
		BankAccount:    req.ToBankAccount,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Status:         StatusInitiated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// TransferRequest is the wallet-facing transfer-to-bank request body.
type TransferRequest struct {
	TransactionID string          `json:"transactionId"`
	WalletID      string          `json:"walletId"`
	ToBankAccount string          `json:"toBankAccount"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
}

// CallbackRequest is the signed webhook body the bank side delivers once
// settlement reaches a terminal status. ReferenceID echoes the idempotency
// key the bank minted for its own record.
type CallbackRequest struct {
	TransactionID string `json:"transactionId"`
	ReferenceID   string `json:"referenceId"`
	ProcessedAt   string `json:"processedAt"`
	Status        string `json:"status"`
	Message       string `json:"message"`
}
